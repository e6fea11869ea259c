package domain

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const tableName = "domains"

var columns = []string{"id", "domain", "is_top_domain", "organization_id", "created_at", "last_modified"}

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

func (r *Repository) Get(ctx context.Context, domain string) (*models.Domain, error) {
	ctx, span := tracing.StartSpan(ctx, "domain.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("domain", domain))
	query, args := sb.Build()

	var d models.Domain
	if err := database.Executor(ctx, r.db).GetContext(ctx, &d, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("domain", domain)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get domain")
		return nil, fmt.Errorf("failed to get domain: %w", err)
	}
	return &d, nil
}

func (r *Repository) Create(ctx context.Context, d *models.Domain) error {
	ctx, span := tracing.StartSpan(ctx, "domain.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns[1:]...)
	ib.Values(d.Domain, d.IsTopDomain, d.OrganizationID, d.CreatedAt, d.LastModified)
	ib.Returning("id")
	query, args := ib.Build()

	if err := database.Executor(ctx, r.db).GetContext(ctx, &d.ID, query, args...); err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return errors.AlreadyExists("domain", d.Domain)
		case database.IsForeignKeyViolation(err):
			return errors.NotFound("organization", fmt.Sprint(d.OrganizationID))
		}
		r.logger.WithContext(ctx).WithError(err).WithField("domain", d.Domain).Error("failed to create domain")
		return fmt.Errorf("failed to create domain: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, d *models.Domain) error {
	ctx, span := tracing.StartSpan(ctx, "domain.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder(tableName)
	ub.Set(
		ub.Assign("is_top_domain", d.IsTopDomain),
		ub.Assign("organization_id", d.OrganizationID),
		ub.Assign("last_modified", d.LastModified),
	)
	ub.Where(ub.Equal("domain", d.Domain))
	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("domain", d.Domain).Error("failed to update domain")
		return fmt.Errorf("failed to update domain: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("domain", d.Domain)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, domain string) error {
	ctx, span := tracing.StartSpan(ctx, "domain.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("domain", domain))
	query, args := db.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("domain", domain).Error("failed to delete domain")
		return fmt.Errorf("failed to delete domain: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("domain", domain)
	}
	return nil
}

func (r *Repository) ListByOrganization(ctx context.Context, orgID int64) ([]models.Domain, error) {
	ctx, span := tracing.StartSpan(ctx, "domain.Repository.ListByOrganization")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("organization_id", orgID))
	sb.OrderBy("domain").Asc()
	query, args := sb.Build()

	var out []models.Domain
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list domains")
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}
	return out, nil
}
