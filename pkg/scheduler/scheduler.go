// Package scheduler runs the registry's scheduled tasks. Every worker polls
// the task table; a per-task distributed lock makes sure only one of them
// runs a given task at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	sctx "github.com/Ramsey-B/sortinghat/pkg/context"
	"github.com/Ramsey-B/sortinghat/pkg/metrics"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/redis"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

var (
	ErrExecutorAlreadyRunning = errors.New("executor already running")

	errNotDue = errors.New("task not due")
)

const (
	DefaultPollInterval = 30 * time.Second
	DefaultLockTTL      = 5 * time.Minute

	LockKeyPrefix = "scheduler:task:"
)

// Registry is the task bookkeeping the executor needs.
type Registry interface {
	ListScheduledTasks(ctx context.Context) ([]models.ScheduledTask, error)
	GetScheduledTask(ctx context.Context, id int64) (*models.ScheduledTask, error)
	RecordExecution(ctx context.Context, task *models.ScheduledTask, jobID string, at time.Time, runErr error) error
}

// Locker runs fn while holding key, or fails with redis.ErrLockNotAcquired.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error
}

// Handler runs one execution of a task.
type Handler func(ctx context.Context, task models.ScheduledTask) error

type Config struct {
	PollInterval time.Duration
	LockTTL      time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval: DefaultPollInterval,
		LockTTL:      DefaultLockTTL,
	}
}

type Executor struct {
	registry Registry
	locker   Locker
	handlers map[string]Handler
	config   Config
	logger   ectologger.Logger
	now      func() time.Time

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	mu       sync.RWMutex
}

func NewExecutor(registry Registry, locker Locker, config Config, logger ectologger.Logger) *Executor {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.LockTTL <= 0 {
		config.LockTTL = DefaultLockTTL
	}

	return &Executor{
		registry: registry,
		locker:   locker,
		handlers: map[string]Handler{},
		config:   config,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle registers the handler for jobType.
func (e *Executor) Handle(jobType string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[jobType] = h
}

func (e *Executor) handler(jobType string) (Handler, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handlers[jobType]
	return h, ok
}

// Start polls in the background until Stop is called or ctx is done.
func (e *Executor) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrExecutorAlreadyRunning
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.stoppedC = make(chan struct{})
	e.mu.Unlock()

	e.logger.WithContext(ctx).Infof("Starting task executor: poll_interval=%s", e.config.PollInterval)
	go e.pollLoop(ctx)
	return nil
}

// Stop waits for the running cycle to finish, or for ctx to expire.
func (e *Executor) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopCh)
	stopped := e.stoppedC
	e.mu.Unlock()

	select {
	case <-stopped:
		e.logger.WithContext(ctx).Info("Task executor stopped")
	case <-ctx.Done():
		e.logger.WithContext(ctx).Warn("Task executor shutdown timed out")
		return ctx.Err()
	}
	return nil
}

func (e *Executor) IsRunning() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

func (e *Executor) pollLoop(ctx context.Context) {
	defer close(e.stoppedC)

	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	e.RunOnce(ctx)
	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.RunOnce(ctx)
		}
	}
}

func (e *Executor) due(task models.ScheduledTask, now time.Time) bool {
	return !task.Retired() && !task.DueAt().After(now)
}

// RunOnce runs every task that is due and returns how many ran.
func (e *Executor) RunOnce(ctx context.Context) int {
	ctx, span := tracing.StartSpan(ctx, "scheduler.Executor.RunOnce")
	defer span.End()

	tasks, err := e.registry.ListScheduledTasks(ctx)
	if err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to list scheduled tasks")
		return 0
	}

	ran, skipped := 0, 0
	now := e.now()
	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		if !e.due(task, now) {
			continue
		}
		err := e.runTask(ctx, task.ID)
		switch {
		case err == nil:
			ran++
		case errors.Is(err, redis.ErrLockNotAcquired), errors.Is(err, errNotDue):
			skipped++
		default:
			e.logger.WithContext(ctx).WithError(err).WithField("task_id", task.ID).Error("Failed to run scheduled task")
		}
	}

	if ran > 0 || skipped > 0 {
		e.logger.WithContext(ctx).Infof("Task cycle completed: ran=%d skipped=%d", ran, skipped)
	}
	return ran
}

// runTask re-reads the task under its lock so a worker that lost the race
// does not run it twice.
func (e *Executor) runTask(ctx context.Context, id int64) error {
	return e.locker.WithLock(ctx, lockKey(id), e.config.LockTTL, func(ctx context.Context) error {
		task, err := e.registry.GetScheduledTask(ctx, id)
		if err != nil {
			return err
		}
		if !e.due(*task, e.now()) {
			return errNotDue
		}

		jobID := uuid.NewString()
		jobCtx := sctx.SetJobID(ctx, jobID)
		log := e.logger.WithContext(jobCtx).WithFields(map[string]any{
			"task_id":  task.ID,
			"job_type": task.JobType,
			"job_id":   jobID,
		})

		var runErr error
		if h, ok := e.handler(task.JobType); ok {
			log.Info("Running scheduled task")
			runErr = h(jobCtx, *task)
		} else {
			runErr = fmt.Errorf("no handler for job type %s", task.JobType)
		}

		status := "success"
		if runErr != nil {
			status = "failed"
			log.WithError(runErr).Error("Scheduled task failed")
		}
		metrics.TaskExecutionsTotal.WithLabelValues(task.JobType, status).Inc()

		if err := e.registry.RecordExecution(ctx, task, jobID, e.now(), runErr); err != nil {
			log.WithError(err).Error("Failed to record task execution")
			return err
		}
		return nil
	})
}

func lockKey(id int64) string {
	return fmt.Sprintf("%s%d", LockKeyPrefix, id)
}

// LocalLocker serializes tasks inside one process. It stands in for the
// Redis locker when a single worker runs.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: map[string]bool{}}
}

func (l *LocalLocker) WithLock(ctx context.Context, key string, _ time.Duration, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[key] {
		l.mu.Unlock()
		return redis.ErrLockNotAcquired
	}
	l.held[key] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()
	return fn(ctx)
}
