package profile

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const (
	tableName    = "profiles"
	countryTable = "countries"
)

var columns = []string{"individual_mk", "name", "email", "is_bot", "gender", "gender_acc", "country_code"}

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

func (r *Repository) Get(ctx context.Context, mk string) (*models.Profile, error) {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("individual_mk", mk))
	query, args := sb.Build()

	var p models.Profile
	if err := database.Executor(ctx, r.db).GetContext(ctx, &p, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("profile", mk)
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get profile")
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if p.CountryCode == nil {
		return &p, nil
	}

	cb := database.NewSelectBuilder(countryTable, "code", "alpha3", "name")
	cb.Where(cb.Equal("code", *p.CountryCode))
	query, args = cb.Build()

	var country models.Country
	if err := database.Executor(ctx, r.db).GetContext(ctx, &country, query, args...); err != nil {
		if database.IsNoRows(err) {
			return &p, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get profile country")
		return nil, fmt.Errorf("failed to get profile country: %w", err)
	}
	p.Country = &country
	return &p, nil
}

func (r *Repository) Create(ctx context.Context, p *models.Profile) error {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns...)
	ib.Values(p.MK, p.Name, p.Email, p.IsBot, p.Gender, p.GenderAcc, p.CountryCode)
	query, args := ib.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return errors.AlreadyExists("profile", p.MK)
		}
		if database.IsForeignKeyViolation(err) {
			return errors.NotFound("country", deref(p.CountryCode))
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to create profile")
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, p *models.Profile) error {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder(tableName)
	ub.Set(
		ub.Assign("name", p.Name),
		ub.Assign("email", p.Email),
		ub.Assign("is_bot", p.IsBot),
		ub.Assign("gender", p.Gender),
		ub.Assign("gender_acc", p.GenderAcc),
		ub.Assign("country_code", p.CountryCode),
	)
	ub.Where(ub.Equal("individual_mk", p.MK))
	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return errors.NotFound("country", deref(p.CountryCode))
		}
		r.logger.WithContext(ctx).WithError(err).WithField("mk", p.MK).Error("failed to update profile")
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("profile", p.MK)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, mk string) error {
	ctx, span := tracing.StartSpan(ctx, "profile.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("individual_mk", mk))
	query, args := db.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete profile")
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("profile", mk)
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
