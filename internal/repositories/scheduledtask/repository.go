package scheduledtask

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const tableName = "scheduled_tasks"

var columns = []string{
	"id", "job_id", "job_type", "interval_minutes", "args", "last_execution",
	"executions", "failures", "failed", "created_at", "last_modified",
}

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

func (r *Repository) Get(ctx context.Context, id int64) (*models.ScheduledTask, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduledtask.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.Where(sb.Equal("id", id))
	query, args := sb.Build()

	var t models.ScheduledTask
	if err := database.Executor(ctx, r.db).GetContext(ctx, &t, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, errors.NotFound("scheduled task", fmt.Sprint(id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get scheduled task")
		return nil, fmt.Errorf("failed to get scheduled task: %w", err)
	}
	return &t, nil
}

func (r *Repository) Create(ctx context.Context, t *models.ScheduledTask) error {
	ctx, span := tracing.StartSpan(ctx, "scheduledtask.Repository.Create")
	defer span.End()

	ib := database.NewInsertBuilder(tableName, columns[1:]...)
	ib.Values(t.JobID, t.JobType, t.Interval, jsonArg(t.Args), t.LastExecution,
		t.Executions, t.Failures, t.Failed, t.CreatedAt, t.LastModified)
	ib.Returning("id")
	query, args := ib.Build()

	if err := database.Executor(ctx, r.db).GetContext(ctx, &t.ID, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("job_type", t.JobType).Error("failed to create scheduled task")
		return fmt.Errorf("failed to create scheduled task: %w", err)
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, t *models.ScheduledTask) error {
	ctx, span := tracing.StartSpan(ctx, "scheduledtask.Repository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder(tableName)
	ub.Set(
		ub.Assign("job_id", t.JobID),
		ub.Assign("interval_minutes", t.Interval),
		ub.Assign("args", jsonArg(t.Args)),
		ub.Assign("last_execution", t.LastExecution),
		ub.Assign("executions", t.Executions),
		ub.Assign("failures", t.Failures),
		ub.Assign("failed", t.Failed),
		ub.Assign("last_modified", t.LastModified),
	)
	ub.Where(ub.Equal("id", t.ID))
	query, args := ub.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", t.ID).Error("failed to update scheduled task")
		return fmt.Errorf("failed to update scheduled task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("scheduled task", fmt.Sprint(t.ID))
	}
	return nil
}

func (r *Repository) Delete(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "scheduledtask.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder(tableName)
	db.Where(db.Equal("id", id))
	query, args := db.Build()

	res, err := database.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("failed to delete scheduled task")
		return fmt.Errorf("failed to delete scheduled task: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.NotFound("scheduled task", fmt.Sprint(id))
	}
	return nil
}

func (r *Repository) List(ctx context.Context) ([]models.ScheduledTask, error) {
	ctx, span := tracing.StartSpan(ctx, "scheduledtask.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder(tableName, columns...)
	sb.OrderBy("id").Asc()
	query, args := sb.Build()

	var out []models.ScheduledTask
	if err := database.Executor(ctx, r.db).SelectContext(ctx, &out, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list scheduled tasks")
		return nil, fmt.Errorf("failed to list scheduled tasks: %w", err)
	}
	return out, nil
}

func jsonArg(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
