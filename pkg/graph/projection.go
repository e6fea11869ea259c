package graph

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// Statement is one parameterized Cypher query.
type Statement struct {
	Cypher string
	Params map[string]any
}

const (
	mergeIndividual = `MERGE (i:Individual {mk: $mk})`
	lockIndividual  = `MATCH (i:Individual {mk: $mk}) SET i.is_locked = $is_locked`
	deleteNode      = `MATCH (n:%s {%s: $key}) DETACH DELETE n`
	mergeIdentity   = `MERGE (i:Individual {mk: $mk})
		MERGE (id:Identity {uuid: $uuid})
		SET id.source = $source
		MERGE (id)-[:IDENTITY_OF]->(i)`
	moveIdentity = `MATCH (id:Identity {uuid: $uuid})
		OPTIONAL MATCH (id)-[r:IDENTITY_OF]->()
		DELETE r
		WITH id
		MERGE (i:Individual {mk: $mk})
		MERGE (id)-[:IDENTITY_OF]->(i)`
	mergeGroup = `MERGE (g:Group {id: $id})
		SET g.name = $name, g.kind = $kind`
	setParent = `MATCH (g:Group {id: $id})
		OPTIONAL MATCH (g)-[r:PART_OF]->()
		DELETE r
		WITH g
		MERGE (p:Group {id: $parent_id})
		MERGE (g)-[:PART_OF]->(p)`
	enroll = `MERGE (i:Individual {mk: $mk})
		MERGE (g:Group {id: $group_id})
		MERGE (i)-[:ENROLLED_IN {start: $start, end: $end}]->(g)`
	withdraw = `MATCH (:Individual {mk: $mk})-[r:ENROLLED_IN {start: $start, end: $end}]->(:Group {id: $group_id})
		DELETE r`
)

type op struct {
	models.Operation
	args map[string]any
}

func (o op) str(key string) string {
	v, _ := o.args[key].(string)
	return v
}

func (o op) id(key string) (int64, bool) {
	switch v := o.args[key].(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	}
	return 0, false
}

func groupKind(entity string) models.GroupKind {
	switch entity {
	case registry.EntityOrganization:
		return models.GroupKindOrganization
	case registry.EntityTeam:
		return models.GroupKindTeam
	}
	return models.GroupKindGroup
}

// Statements translates committed operations into graph updates. Operations
// on entities outside the affiliation graph are ignored.
func Statements(ops []models.Operation) ([]Statement, error) {
	var out []Statement
	for _, raw := range ops {
		o := op{Operation: raw}
		if len(raw.Args) > 0 {
			if err := json.Unmarshal(raw.Args, &o.args); err != nil {
				return nil, fmt.Errorf("invalid args for operation %s: %w", raw.OUID, err)
			}
		}
		out = append(out, statementsFor(o)...)
	}
	return out, nil
}

func statementsFor(o op) []Statement {
	switch o.EntityType {
	case registry.EntityIndividual:
		switch o.OpType {
		case models.OperationAdd:
			return []Statement{{Cypher: mergeIndividual, Params: map[string]any{"mk": o.Target}}}
		case models.OperationUpdate:
			if locked, ok := o.args["is_locked"].(bool); ok {
				return []Statement{{Cypher: lockIndividual, Params: map[string]any{"mk": o.Target, "is_locked": locked}}}
			}
		case models.OperationDelete:
			return []Statement{{Cypher: fmt.Sprintf(deleteNode, "Individual", "mk"), Params: map[string]any{"key": o.Target}}}
		}

	case registry.EntityIdentity:
		switch o.OpType {
		case models.OperationAdd:
			return []Statement{{Cypher: mergeIdentity, Params: map[string]any{
				"mk": o.str("mk"), "uuid": o.Target, "source": o.str("source"),
			}}}
		case models.OperationUpdate:
			if to := o.str("to_mk"); to != "" {
				return []Statement{{Cypher: moveIdentity, Params: map[string]any{"uuid": o.Target, "mk": to}}}
			}
		case models.OperationDelete:
			return []Statement{{Cypher: fmt.Sprintf(deleteNode, "Identity", "uuid"), Params: map[string]any{"key": o.Target}}}
		}

	case registry.EntityOrganization, registry.EntityTeam, registry.EntityGroup:
		id, ok := o.id("id")
		if !ok {
			return nil
		}
		switch o.OpType {
		case models.OperationAdd, models.OperationUpdate:
			stmts := []Statement{{Cypher: mergeGroup, Params: map[string]any{
				"id": id, "name": o.str("name"), "kind": string(groupKind(o.EntityType)),
			}}}
			parent, ok := o.id("parent_id")
			if !ok {
				parent, ok = o.id("parent_org_id")
			}
			if ok {
				stmts = append(stmts, Statement{Cypher: setParent, Params: map[string]any{"id": id, "parent_id": parent}})
			}
			return stmts
		case models.OperationDelete:
			return []Statement{{Cypher: fmt.Sprintf(deleteNode, "Group", "id"), Params: map[string]any{"key": id}}}
		}

	case registry.EntityEnrollment:
		groupID, ok := o.id("group_id")
		if !ok {
			return nil
		}
		params := func(mk, start, end string) map[string]any {
			return map[string]any{"mk": mk, "group_id": groupID, "start": start, "end": end}
		}
		current := params(o.str("mk"), o.str("start"), o.str("end"))
		switch o.OpType {
		case models.OperationAdd:
			return []Statement{{Cypher: enroll, Params: current}}
		case models.OperationDelete:
			return []Statement{{Cypher: withdraw, Params: current}}
		case models.OperationUpdate:
			previous := params(o.str("mk"), o.str("start"), o.str("end"))
			if from := o.str("from_mk"); from != "" {
				previous["mk"] = from
			}
			if start := o.str("from_start"); start != "" {
				previous["start"], previous["end"] = start, o.str("from_end")
			}
			return []Statement{{Cypher: withdraw, Params: previous}, {Cypher: enroll, Params: current}}
		}
	}
	return nil
}

// Writer applies statements atomically. *Client implements it.
type Writer interface {
	Write(ctx context.Context, stmts []Statement) error
}

// Projector is a registry commit hook keeping the graph in step with the
// registry. Projection failures are logged and otherwise ignored.
type Projector struct {
	writer Writer
	logger ectologger.Logger
}

func NewProjector(writer Writer, logger ectologger.Logger) *Projector {
	return &Projector{writer: writer, logger: logger}
}

func (p *Projector) OnCommit(ctx context.Context, trx models.Transaction, ops []models.Operation) {
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.StartSpan(ctx, "graph.Projector.OnCommit")
	defer span.End()

	log := p.logger.WithContext(ctx).WithField("tuid", trx.TUID)

	stmts, err := Statements(ops)
	if err != nil {
		log.WithError(err).Error("Failed to build graph statements")
		return
	}
	if len(stmts) == 0 {
		return
	}
	if err := p.writer.Write(ctx, stmts); err != nil {
		log.WithError(err).Error("Failed to project transaction into graph")
		return
	}
	log.WithField("statements", len(stmts)).Debug("Projected transaction into graph")
}
