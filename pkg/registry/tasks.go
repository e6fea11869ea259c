package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/sortinghat/pkg/auditlog"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// Job types a scheduled task may run.
const (
	JobAffiliate = "affiliate"
	JobUnify     = "unify"
	JobGenderize = "genderize"
)

var jobTypes = map[string]bool{JobAffiliate: true, JobUnify: true, JobGenderize: true}

func validateTask(jobType string, interval int, args json.RawMessage) error {
	if !jobTypes[jobType] {
		return errors.InvalidValuef("JOB_TYPE_INVALID_ERROR", "job type '%s' is not valid", jobType)
	}
	if interval < 0 {
		return errors.InvalidValuef("INTERVAL_INVALID_ERROR", "'interval' (%d) must be greater or equal than 0", interval)
	}
	if len(args) > 0 && !json.Valid(args) {
		return errors.InvalidValue("ARGS_INVALID_ERROR", "'args' must be a JSON document")
	}
	return nil
}

// AddScheduledTask schedules jobType to run every interval minutes, or once
// when interval is 0.
func (s *Service) AddScheduledTask(ctx context.Context, jobType string, interval int, args json.RawMessage) (*models.ScheduledTask, error) {
	if err := validateTask(jobType, interval, args); err != nil {
		return nil, err
	}

	var out *models.ScheduledTask
	err := s.run(ctx, "add_scheduled_task", func(ctx context.Context, trxl *auditlog.Log) error {
		now := s.now()
		task := &models.ScheduledTask{
			JobType:      jobType,
			Interval:     interval,
			Args:         args,
			CreatedAt:    now,
			LastModified: now,
		}
		if err := s.store.Tasks().Create(ctx, task); err != nil {
			return err
		}
		out = task
		return trxl.Append(ctx, models.OperationAdd, EntityScheduledTask, fmt.Sprint(task.ID), map[string]any{
			"job_type": jobType, "interval": interval, "args": args,
		})
	})
	return out, err
}

// UpdateScheduledTask changes the interval and, when non-nil, the args of a
// task.
func (s *Service) UpdateScheduledTask(ctx context.Context, id int64, interval int, args json.RawMessage) (*models.ScheduledTask, error) {
	var out *models.ScheduledTask
	err := s.run(ctx, "update_scheduled_task", func(ctx context.Context, trxl *auditlog.Log) error {
		task, err := s.store.Tasks().Get(ctx, id)
		if err != nil {
			return err
		}
		if args == nil {
			args = task.Args
		}
		if err := validateTask(task.JobType, interval, args); err != nil {
			return err
		}
		task.Interval = interval
		task.Args = args
		task.LastModified = s.now()
		if err := s.store.Tasks().Update(ctx, task); err != nil {
			return err
		}
		out = task
		return trxl.Append(ctx, models.OperationUpdate, EntityScheduledTask, fmt.Sprint(id), map[string]any{
			"interval": interval, "args": args,
		})
	})
	return out, err
}

func (s *Service) DeleteScheduledTask(ctx context.Context, id int64) (*models.ScheduledTask, error) {
	var out *models.ScheduledTask
	err := s.run(ctx, "delete_scheduled_task", func(ctx context.Context, trxl *auditlog.Log) error {
		task, err := s.store.Tasks().Get(ctx, id)
		if err != nil {
			return err
		}
		if err := s.store.Tasks().Delete(ctx, id); err != nil {
			return err
		}
		out = task
		return trxl.Append(ctx, models.OperationDelete, EntityScheduledTask, fmt.Sprint(id), map[string]any{"id": id})
	})
	return out, err
}

func (s *Service) GetScheduledTask(ctx context.Context, id int64) (*models.ScheduledTask, error) {
	return s.store.Tasks().Get(ctx, id)
}

func (s *Service) ListScheduledTasks(ctx context.Context) ([]models.ScheduledTask, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.ListScheduledTasks")
	defer span.End()
	return s.store.Tasks().List(ctx)
}

// RecordExecution stores the outcome of one run of task. Bookkeeping is not
// audited.
func (s *Service) RecordExecution(ctx context.Context, task *models.ScheduledTask, jobID string, at time.Time, runErr error) error {
	task.JobID = &jobID
	task.LastExecution = &at
	task.LastModified = at
	if runErr != nil {
		task.Failures++
		task.Failed = true
	} else {
		task.Executions++
		task.Failed = false
	}
	return s.store.Tasks().Update(ctx, task)
}

// ListTransactions returns audit transactions matching filter, oldest first.
func (s *Service) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.ListTransactions")
	defer span.End()

	if filter.Limit < 0 {
		return nil, errors.InvalidFilter("limit", "must be positive")
	}
	if filter.Offset < 0 {
		return nil, errors.InvalidFilter("offset", "must be positive")
	}
	if filter.FromDate != nil && filter.ToDate != nil && filter.FromDate.After(*filter.ToDate) {
		return nil, errors.InvalidFilter("from_date", "must be before to_date")
	}
	return s.store.Transactions().ListTransactions(ctx, filter)
}

// GetTransaction returns a transaction with its operations in append order.
func (s *Service) GetTransaction(ctx context.Context, tuid string) (*models.Transaction, error) {
	if err := requireString("tuid", tuid); err != nil {
		return nil, err
	}
	trx, err := s.store.Transactions().GetTransaction(ctx, tuid)
	if err != nil {
		return nil, err
	}
	if trx.Operations, err = s.store.Transactions().ListOperations(ctx, tuid); err != nil {
		return nil, err
	}
	return trx, nil
}

func (s *Service) ListOperations(ctx context.Context, tuid string) ([]models.Operation, error) {
	return s.store.Transactions().ListOperations(ctx, tuid)
}
