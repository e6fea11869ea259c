package exclusion

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const tableName = "matching_exclusions"

var columns = []string{"id", "term", "created_at"}

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

func (r *Repository) Get(ctx context.Context, term string) (*models.MatchingExclusion, error) {
	ctx, span := tracing.StartSpan(ctx, "exclusion.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("term", term))
	query, args := sb.Build()

	var e models.MatchingExclusion
	if err := database.Executor(ctx, r.db).GetContext(ctx, &e, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("matching exclusion", term)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get matching exclusion")
		return nil, fmt.Errorf("failed to get matching exclusion: %w", err)
	}
	return &e, nil
}

func (r *Repository) Create(ctx context.Context, e *models.MatchingExclusion) error {
	ctx, span := tracing.StartSpan(ctx, "exclusion.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns[1:]...)
	ib.Values(e.Term, e.CreatedAt)
	ib.Returning("id")
	query, args := ib.Build()

	if err := database.Executor(ctx, r.db).GetContext(ctx, &e.ID, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return errors.AlreadyExists("matching exclusion", e.Term)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to create matching exclusion")
		return fmt.Errorf("failed to create matching exclusion: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, term string) error {
	ctx, span := tracing.StartSpan(ctx, "exclusion.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("term", term))
	query, args := db.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete matching exclusion")
		return fmt.Errorf("failed to delete matching exclusion: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("matching exclusion", term)
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]models.MatchingExclusion, error) {
	ctx, span := tracing.StartSpan(ctx, "exclusion.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.OrderBy("term").Asc()
	query, args := sb.Build()

	var out []models.MatchingExclusion
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list matching exclusions")
		return nil, fmt.Errorf("failed to list matching exclusions: %w", err)
	}
	return out, nil
}
