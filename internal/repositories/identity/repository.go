package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const tableName = "identities"

var columns = []string{"uuid", "source", "email", "name", "username", "individual_mk", "created_at", "last_modified"}

// Repository persists identities. The uuid is the fingerprint of the
// identity data, so a duplicate observation surfaces as a unique violation.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Get(ctx context.Context, uuid string) (*models.Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("uuid", uuid))
	query, args := sb.Build()

	var identity models.Identity
	if err := database.Executor(ctx, r.db).GetContext(ctx, &identity, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("identity", uuid)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get identity")
		return nil, fmt.Errorf("failed to get identity: %w", err)
	}
	return &identity, nil
}

func (r *Repository) Create(ctx context.Context, identity *models.Identity) error {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns...)
	ib.Values(identity.UUID, identity.Source, identity.Email, identity.Name, identity.Username,
		identity.IndividualMK, identity.CreatedAt, identity.LastModified)
	query, args := ib.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return errors.AlreadyExists("identity", identity.UUID)
		case database.IsForeignKeyViolation(err):
			return errors.NotFound("individual", identity.IndividualMK)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to create identity")
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, uuid string) error {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("uuid", uuid))
	query, args := db.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete identity")
		return fmt.Errorf("failed to delete identity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("identity", uuid)
	}
	return nil
}

// Reparent moves an identity to the individual mk.
func (r *Repository) Reparent(ctx context.Context, uuid, mk string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.Reparent")
	defer span.End()

	ub := database.NewUpdateBuilder(tableName)
	ub.Set(ub.Assign("individual_mk", mk), ub.Assign("last_modified", at))
	ub.Where(ub.Equal("uuid", uuid))
	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return errors.NotFound("individual", mk)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"uuid": uuid,
			"mk":   mk,
		}).Error("failed to move identity")
		return fmt.Errorf("failed to move identity: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("identity", uuid)
	}
	return nil
}

func (r *Repository) ListByIndividual(ctx context.Context, mk string) ([]models.Identity, error) {
	return r.List(ctx, models.IdentityFilter{IndividualMKs: []string{mk}})
}

// List returns identities ordered by uuid.
func (r *Repository) List(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, error) {
	ctx, span := tracing.StartSpan(ctx, "identity.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	var conds []string
	if len(filter.Sources) > 0 {
		conds = append(conds, sb.In("source", database.Args(filter.Sources)...))
	}
	if len(filter.IndividualMKs) > 0 {
		conds = append(conds, sb.In("individual_mk", database.Args(filter.IndividualMKs)...))
	}
	if len(filter.UUIDs) > 0 {
		conds = append(conds, sb.In("uuid", database.Args(filter.UUIDs)...))
	}
	if len(conds) > 0 {
		sb.Where(conds...)
	}
	sb.OrderBy("uuid").Asc()
	query, args := sb.Build()

	var out []models.Identity
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list identities")
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	return out, nil
}
