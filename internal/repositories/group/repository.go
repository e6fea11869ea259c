package group

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const tableName = "groups"

var columns = []string{"id", "name", "kind", "parent_id", "parent_org_id", "created_at", "last_modified"}

// Repository persists organizations, teams and standalone groups, which
// share one table discriminated by kind.
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

func (r *Repository) Get(ctx context.Context, id int64) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("id", id))
	return r.get(ctx, sb.Build, "group", fmt.Sprint(id))
}

func (r *Repository) FindByName(ctx context.Context, kind models.GroupKind, name string, parentOrgID *int64) (*models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.FindByName")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("kind", kind), sb.Equal("name", name))
	if kind == models.GroupKindTeam {
		if parentOrgID == nil {
			sb.Where(sb.IsNull("parent_org_id"))
		} else {
			sb.Where(sb.Equal("parent_org_id", *parentOrgID))
		}
	}
	return r.get(ctx, sb.Build, string(kind), name)
}

func (r *Repository) get(ctx context.Context, build func() (string, []any), entity, key string) (*models.Group, error) {
	query, args := build()

	var g models.Group
	if err := database.Executor(ctx, r.db).GetContext(ctx, &g, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound(entity, key)
		}
		r.logger.WithContext(ctx).WithError(err).Errorf("failed to get %s", entity)
		return nil, fmt.Errorf("failed to get %s: %w", entity, err)
	}
	return &g, nil
}

// Create inserts the group and sets its generated id.
func (r *Repository) Create(ctx context.Context, g *models.Group) error {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns[1:]...)
	ib.Values(g.Name, g.Kind, g.ParentID, g.ParentOrgID, g.CreatedAt, g.LastModified)
	ib.Returning("id")
	query, args := ib.Build()

	if err := database.Executor(ctx, r.db).GetContext(ctx, &g.ID, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return errors.AlreadyExists(string(g.Kind), g.Name)
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"name": g.Name,
			"kind": g.Kind,
		}).Error("failed to create group")
		return fmt.Errorf("failed to create group: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, g *models.Group) error {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder(tableName)
	ub.Set(
		ub.Assign("name", g.Name),
		ub.Assign("parent_id", g.ParentID),
		ub.Assign("parent_org_id", g.ParentOrgID),
		ub.Assign("last_modified", g.LastModified),
	)
	ub.Where(ub.Equal("id", g.ID))
	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return errors.AlreadyExists(string(g.Kind), g.Name)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", g.ID).Error("failed to update group")
		return fmt.Errorf("failed to update group: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound(string(g.Kind), g.Name)
	}
	return nil
}

// Delete removes a group without teams. Domains, aliases and enrollments of
// the group are removed by the foreign keys.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.Delete")
	defer span.End()

	g, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	children, err := r.ListChildren(ctx, id)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return errors.InvalidValuef("GROUP_HAS_CHILDREN_ERROR", "%s %s still has teams", g.Kind, g.Name)
	}

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("id", id))
	query, args := db.Build()

	if _, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("failed to delete group")
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return nil
}

func (r *Repository) ListChildren(ctx context.Context, parentID int64) ([]models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.ListChildren")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("parent_id", parentID))
	return r.list(ctx, sb)
}

func (r *Repository) ListByParentOrg(ctx context.Context, orgID int64) ([]models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.ListByParentOrg")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("parent_org_id", orgID))
	return r.list(ctx, sb)
}

// List returns groups of kind whose name contains the filter term.
func (r *Repository) List(ctx context.Context, kind models.GroupKind, filter models.OrganizationFilter) ([]models.Group, error) {
	ctx, span := tracing.StartSpan(ctx, "group.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("kind", kind))
	if filter.Term != "" {
		sb.Where(sb.ILike("name", "%"+filter.Term+"%"))
	}
	if filter.Limit > 0 {
		sb.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		sb.Offset(filter.Offset)
	}
	return r.list(ctx, sb)
}

func (r *Repository) list(ctx context.Context, sb *sqlbuilder.SelectBuilder) ([]models.Group, error) {
	sb.OrderBy("name", "id").Asc()
	query, args := sb.Build()

	var out []models.Group
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list groups")
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	return out, nil
}
