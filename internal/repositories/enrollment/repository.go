package enrollment

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

const (
	tableName  = "enrollments"
	groupTable = "groups"
)

var (
	columns      = []string{"id", "individual_mk", "group_id", "start_date", "end_date", "created_at", "last_modified"}
	groupColumns = []string{"id", "name", "kind", "parent_id", "parent_org_id", "created_at", "last_modified"}
)

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

func (r *Repository) Get(ctx context.Context, id int64) (*models.Enrollment, error) {
	ctx, span := tracing.StartSpan(ctx, "enrollment.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var e models.Enrollment
	if err := database.Executor(ctx, r.db).GetContext(ctx, &e, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("enrollment", fmt.Sprint(id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get enrollment")
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}
	return &e, nil
}

// Create inserts the enrollment and sets its generated id.
func (r *Repository) Create(ctx context.Context, e *models.Enrollment) error {
	ctx, span := tracing.StartSpan(ctx, "enrollment.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns[1:]...)
	ib.Values(e.IndividualMK, e.GroupID, e.Start, e.End, e.CreatedAt, e.LastModified)
	ib.Returning("id")
	query, args := ib.Build()

	if err := database.Executor(ctx, r.db).GetContext(ctx, &e.ID, query, args...); err != nil {
		switch {
		case database.IsUniqueViolation(err):
			return errors.AlreadyExists("enrollment", fmt.Sprintf("%s-%d-%s-%s", e.IndividualMK, e.GroupID,
				e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339)))
		case database.IsForeignKeyViolation(err):
			return errors.NotFound("group", fmt.Sprint(e.GroupID))
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"mk":       e.IndividualMK,
			"group_id": e.GroupID,
		}).Error("failed to create enrollment")
		return fmt.Errorf("failed to create enrollment: %w", err)
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "enrollment.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("id", id))
	query, args := db.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete enrollment")
		return fmt.Errorf("failed to delete enrollment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("enrollment", fmt.Sprint(id))
	}
	return nil
}

func (r *Repository) Reparent(ctx context.Context, id int64, mk string, at time.Time) error {
	ctx, span := tracing.StartSpan(ctx, "enrollment.Repository.Reparent")
	defer span.End()

	ub := database.NewUpdateBuilder(tableName)
	ub.Set(ub.Assign("individual_mk", mk), ub.Assign("last_modified", at))
	ub.Where(ub.Equal("id", id))
	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return errors.AlreadyExists("enrollment", fmt.Sprint(id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to move enrollment")
		return fmt.Errorf("failed to move enrollment: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("enrollment", fmt.Sprint(id))
	}
	return nil
}

func (r *Repository) ListByIndividual(ctx context.Context, mk string) ([]models.Enrollment, error) {
	return r.list(ctx, "individual_mk", mk, nil)
}

func (r *Repository) ListByIndividualAndGroup(ctx context.Context, mk string, groupID int64) ([]models.Enrollment, error) {
	return r.list(ctx, "individual_mk", mk, &groupID)
}

func (r *Repository) ListByGroup(ctx context.Context, groupID int64) ([]models.Enrollment, error) {
	return r.list(ctx, "group_id", groupID, nil)
}

// list returns enrollments ordered by period with their groups attached.
func (r *Repository) list(ctx context.Context, column string, value any, groupID *int64) ([]models.Enrollment, error) {
	ctx, span := tracing.StartSpan(ctx, "enrollment.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal(column, value))
	if groupID != nil {
		sb.Where(sb.Equal("group_id", *groupID))
	}
	sb.OrderBy("start_date", "end_date", "id").Asc()
	query, args := sb.Build()

	q := database.Executor(ctx, r.db)
	var out []models.Enrollment
	if err := q.SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list enrollments")
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	if len(out) == 0 {
		return out, nil
	}

	ids := make([]int64, 0, len(out))
	seen := map[int64]bool{}
	for _, e := range out {
		if !seen[e.GroupID] {
			seen[e.GroupID] = true
			ids = append(ids, e.GroupID)
		}
	}

	gb := database.NewSelectBuilder(groupTable, groupColumns...)
	gb.Where(gb.In("id", database.Args(ids)...))
	query, args = gb.Build()

	var groups []models.Group
	if err := q.SelectContext(ctx, &groups, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to load enrollment groups")
		return nil, fmt.Errorf("failed to load enrollment groups: %w", err)
	}
	byID := make(map[int64]*models.Group, len(groups))
	for i := range groups {
		byID[groups[i].ID] = &groups[i]
	}
	for i := range out {
		if g, ok := byID[out[i].GroupID]; ok {
			group := *g
			out[i].Group = &group
		}
	}
	return out, nil
}
