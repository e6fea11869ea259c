package country

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const tableName = "countries"

var columns = []string{"code", "alpha3", "name"}

// Repository reads the ISO 3166 country table seeded by the migrations.
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

func (r *Repository) Get(ctx context.Context, code string) (*models.Country, error) {
	ctx, span := tracing.StartSpan(ctx, "country.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("code", strings.ToUpper(code)))
	query, args := sb.Build()

	var c models.Country
	if err := database.Executor(ctx, r.db).GetContext(ctx, &c, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("country", code)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get country")
		return nil, fmt.Errorf("failed to get country: %w", err)
	}
	return &c, nil
}

func (r *Repository) List(ctx context.Context) ([]models.Country, error) {
	ctx, span := tracing.StartSpan(ctx, "country.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.OrderBy("code").Asc()
	query, args := sb.Build()

	var out []models.Country
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list countries")
		return nil, fmt.Errorf("failed to list countries: %w", err)
	}
	return out, nil
}
