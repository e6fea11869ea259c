package graph

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sortinghat/internal/repositories/memory"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
)

type recordingWriter struct {
	stmts []Statement
}

func (w *recordingWriter) Write(_ context.Context, stmts []Statement) error {
	w.stmts = append(w.stmts, stmts...)
	return nil
}

func operation(opType models.OperationType, entity, target string, args map[string]any) models.Operation {
	raw, _ := json.Marshal(args)
	return models.Operation{OUID: target, OpType: opType, EntityType: entity, Target: target, Args: raw}
}

func TestStatements(t *testing.T) {
	ops := []models.Operation{
		operation(models.OperationAdd, registry.EntityIndividual, "mk1", map[string]any{"mk": "mk1"}),
		operation(models.OperationAdd, registry.EntityIdentity, "u1", map[string]any{"uuid": "u1", "source": "git", "mk": "mk1"}),
		operation(models.OperationAdd, registry.EntityTeam, "core", map[string]any{"name": "core", "id": 2, "parent_org_id": 1}),
		operation(models.OperationUpdate, registry.EntityEnrollment, "mk2", map[string]any{
			"mk": "mk2", "group_id": 1, "start": "1900-01-01T00:00:00Z", "end": "2100-01-01T00:00:00Z", "from_mk": "mk1",
		}),
		operation(models.OperationAdd, registry.EntityDomain, "example.com", map[string]any{"domain": "example.com"}),
		operation(models.OperationDelete, registry.EntityIdentity, "u1", map[string]any{"uuid": "u1"}),
	}

	stmts, err := Statements(ops)
	require.NoError(t, err)
	require.Len(t, stmts, 7)

	assert.Equal(t, mergeIndividual, stmts[0].Cypher)
	assert.Equal(t, mergeIdentity, stmts[1].Cypher)
	assert.Equal(t, "git", stmts[1].Params["source"])

	assert.Equal(t, mergeGroup, stmts[2].Cypher)
	assert.Equal(t, string(models.GroupKindTeam), stmts[2].Params["kind"])
	assert.Equal(t, setParent, stmts[3].Cypher)
	assert.Equal(t, int64(1), stmts[3].Params["parent_id"])

	assert.Equal(t, withdraw, stmts[4].Cypher)
	assert.Equal(t, "mk1", stmts[4].Params["mk"])
	assert.Equal(t, enroll, stmts[5].Cypher)
	assert.Equal(t, "mk2", stmts[5].Params["mk"])

	assert.Equal(t, "MATCH (n:Identity {uuid: $key}) DETACH DELETE n", stmts[6].Cypher)
}

func TestStatementsRejectInvalidArgs(t *testing.T) {
	_, err := Statements([]models.Operation{{OUID: "x", EntityType: registry.EntityIndividual, Args: json.RawMessage(`{`)}})
	assert.Error(t, err)
}

func TestProjectorFollowsRegistry(t *testing.T) {
	ctx := context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	w := &recordingWriter{}
	svc := registry.NewService(memory.NewStore(), logger, registry.WithHooks(NewProjector(w, logger)))

	org, err := svc.AddOrganization(ctx, "Example")
	require.NoError(t, err)

	email := "jsmith@example.com"
	a, err := svc.AddIdentity(ctx, models.IdentityData{Source: "git", Email: &email}, nil)
	require.NoError(t, err)
	b, err := svc.AddIdentity(ctx, models.IdentityData{Source: "mls", Email: &email}, nil)
	require.NoError(t, err)
	_, err = svc.AddEnrollment(ctx, b.IndividualMK, models.GroupRef{Name: "Example"}, nil, nil, registry.EnrollOptions{})
	require.NoError(t, err)

	w.stmts = nil
	_, err = svc.MergeIndividuals(ctx, b.IndividualMK, a.IndividualMK)
	require.NoError(t, err)

	var moved, enrolled, deleted bool
	for _, stmt := range w.stmts {
		switch stmt.Cypher {
		case moveIdentity:
			moved = stmt.Params["uuid"] == b.UUID && stmt.Params["mk"] == a.IndividualMK
		case enroll:
			enrolled = stmt.Params["mk"] == a.IndividualMK && stmt.Params["group_id"] == org.ID
		case "MATCH (n:Individual {mk: $key}) DETACH DELETE n":
			deleted = stmt.Params["key"] == b.IndividualMK
		}
	}
	assert.True(t, moved)
	assert.True(t, enrolled)
	assert.True(t, deleted)
}
