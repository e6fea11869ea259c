package individual

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

const tableName = "individuals"

var columns = []string{"mk", "is_locked", "created_at", "last_modified"}

// Repository persists individuals.
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

func (r *Repository) Get(ctx context.Context, mk string) (*models.Individual, error) {
	ctx, span := tracing.StartSpan(ctx, "individual.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("mk", mk))
	query, args := sb.Build()

	var ind models.Individual
	if err := database.Executor(ctx, r.db).GetContext(ctx, &ind, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("individual", mk)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get individual")
		return nil, fmt.Errorf("failed to get individual: %w", err)
	}
	return &ind, nil
}

func (r *Repository) Create(ctx context.Context, ind *models.Individual) error {
	ctx, span := tracing.StartSpan(ctx, "individual.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns...)
	ib.Values(ind.MK, ind.IsLocked, ind.CreatedAt, ind.LastModified)
	query, args := ib.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return errors.AlreadyExists("individual", ind.MK)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to create individual")
		return fmt.Errorf("failed to create individual: %w", err)
	}
	return nil
}

// Delete removes an individual. Profile, identities and enrollments go with
// it through the foreign keys.
func (r *Repository) Delete(ctx context.Context, mk string) error {
	ctx, span := tracing.StartSpan(ctx, "individual.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("mk", mk))
	query, args := db.Build()

	return r.exec(ctx, mk, "delete", query, args)
}

func (r *Repository) Touch(ctx context.Context, mk string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "individual.Repository.Touch")
	defer span.End()

	ub := database.NewUpdateBuilder(tableName)
	ub.Set(ub.Assign("last_modified", at))
	ub.Where(ub.Equal("mk", mk))
	query, args := ub.Build()

	return r.exec(ctx, mk, "touch", query, args)
}

func (r *Repository) SetLocked(ctx context.Context, mk string, locked bool, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "individual.Repository.SetLocked")
	defer span.End()

	ub := database.NewUpdateBuilder(tableName)
	ub.Set(ub.Assign("is_locked", locked), ub.Assign("last_modified", at))
	ub.Where(ub.Equal("mk", mk))
	query, args := ub.Build()

	return r.exec(ctx, mk, "lock", query, args)
}

func (r *Repository) exec(ctx context.Context, mk, action, query string, args []any) error {
	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("mk", mk).Errorf("failed to %s individual", action)
		return fmt.Errorf("failed to %s individual: %w", action, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("individual", mk)
	}
	return nil
}

// List returns individuals ordered by mk. Term matches the mk, the profile
// name or email, or any identity field.
func (r *Repository) List(ctx context.Context, filter models.IndividualFilter) ([]models.Individual, error) {
	ctx, span := tracing.StartSpan(ctx, "individual.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	var conds []string
	if len(filter.MKs) > 0 {
		conds = append(conds, sb.In("mk", database.Args(filter.MKs)...))
	}
	if filter.IsLocked != nil {
		conds = append(conds, sb.Equal("is_locked", *filter.IsLocked))
	}
	if len(filter.Sources) > 0 {
		sub := database.NewSelectBuilder("identities", "individual_mk")
		sub.Where(sub.In("source", database.Args(filter.Sources)...))
		conds = append(conds, sb.In("mk", sub))
	}
	if filter.Term != "" {
		pattern := "%" + filter.Term + "%"

		profiles := database.NewSelectBuilder("profiles", "individual_mk")
		profiles.Where(profiles.Or(profiles.ILike("name", pattern), profiles.ILike("email", pattern)))

		identities := database.NewSelectBuilder("identities", "individual_mk")
		identities.Where(identities.Or(
			identities.ILike("name", pattern),
			identities.ILike("email", pattern),
			identities.ILike("username", pattern),
		))

		conds = append(conds, sb.Or(sb.ILike("mk", pattern), sb.In("mk", profiles), sb.In("mk", identities)))
	}
	if len(conds) > 0 {
		sb.Where(conds...)
	}
	sb.OrderBy("mk").Asc()
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}
	query, args := sb.Build()

	var out []models.Individual
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list individuals")
		return nil, fmt.Errorf("failed to list individuals: %w", err)
	}
	return out, nil
}
