package alias

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const tableName = "aliases"

var columns = []string{"id", "alias", "organization_id", "created_at", "last_modified"}

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

func (r *Repository) Get(ctx context.Context, alias string) (*models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("alias", alias))
	query, args := sb.Build()

	var a models.Alias
	if err := database.Executor(ctx, r.db).GetContext(ctx, &a, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("alias", alias)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get alias")
		return nil, fmt.Errorf("failed to get alias: %w", err)
	}
	return &a, nil
}

func (r *Repository) Create(ctx context.Context, a *models.Alias) error {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns[1:]...)
	ib.Values(a.Alias, a.OrganizationID, a.CreatedAt, a.LastModified)
	ib.Returning("id")
	query, args := ib.Build()

	if err := database.Executor(ctx, r.db).GetContext(ctx, &a.ID, query, args...); err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return errors.AlreadyExists("alias", a.Alias)
		case database.IsForeignKeyViolation(err):
			return errors.NotFound("organization", fmt.Sprint(a.OrganizationID))
		}
		r.logger.WithContext(ctx).WithError(err).WithField("alias", a.Alias).Error("failed to create alias")
		return fmt.Errorf("failed to create alias: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, alias string) error {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("alias", alias))
	query, args := db.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("alias", alias).Error("failed to delete alias")
		return fmt.Errorf("failed to delete alias: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("alias", alias)
	}
	return nil
}

func (r *Repository) ListByOrganization(ctx context.Context, orgID int64) ([]models.Alias, error) {
	ctx, span := tracing.StartSpan(ctx, "alias.Repository.ListByOrganization")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("organization_id", orgID))
	sb.OrderBy("alias").Asc()
	query, args := sb.Build()

	var out []models.Alias
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list aliases")
		return nil, fmt.Errorf("failed to list aliases: %w", err)
	}
	return out, nil
}
