package scheduler

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/suite"

	"github.com/Ramsey-B/sortinghat/internal/repositories/memory"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/recommendation"
	"github.com/Ramsey-B/sortinghat/pkg/redis"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/unify"
)

type busyLocker struct{}

func (busyLocker) WithLock(context.Context, string, time.Duration, func(context.Context) error) error {
	return redis.ErrLockNotAcquired
}

type ExecutorSuite struct {
	suite.Suite
	ctx   context.Context
	clock time.Time
	svc   *registry.Service
	exec  *Executor
}

func TestExecutorSuite(t *testing.T) {
	suite.Run(t, new(ExecutorSuite))
}

func (s *ExecutorSuite) now() time.Time {
	return s.clock
}

func (s *ExecutorSuite) SetupTest() {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	s.ctx = context.Background()
	s.clock = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.svc = registry.NewService(memory.NewStore(), logger, registry.WithClock(s.now))

	s.exec = NewExecutor(s.svc, NewLocalLocker(), Config{PollInterval: time.Hour}, logger)
	s.exec.now = s.now
	RegisterJobs(s.exec,
		recommendation.NewRecommender(s.svc, logger),
		unify.NewUnifier(s.svc, nil, logger),
	)

	_, err := s.svc.AddOrganization(s.ctx, "Example")
	s.Require().NoError(err)
	_, err = s.svc.AddDomain(s.ctx, "Example", "example.com", true)
	s.Require().NoError(err)
	for _, source := range []string{"git", "mls"} {
		email := "jsmith@example.com"
		_, err := s.svc.AddIdentity(s.ctx, models.IdentityData{Source: source, Email: &email}, nil)
		s.Require().NoError(err)
	}
}

func (s *ExecutorSuite) task(id int64) *models.ScheduledTask {
	task, err := s.svc.GetScheduledTask(s.ctx, id)
	s.Require().NoError(err)
	return task
}

func (s *ExecutorSuite) TestRunsDueTasks() {
	unifyTask, err := s.svc.AddScheduledTask(s.ctx, registry.JobUnify, 60, json.RawMessage(`{"matcher":"email"}`))
	s.Require().NoError(err)
	affiliateTask, err := s.svc.AddScheduledTask(s.ctx, registry.JobAffiliate, 0, nil)
	s.Require().NoError(err)

	s.Equal(2, s.exec.RunOnce(s.ctx))

	inds, err := s.svc.ListIndividuals(s.ctx, models.IndividualFilter{})
	s.Require().NoError(err)
	s.Require().Len(inds, 1)
	s.Require().Len(inds[0].Enrollments, 1)
	s.Equal("Example", inds[0].Enrollments[0].Group.Name)

	u := s.task(unifyTask.ID)
	s.Equal(1, u.Executions)
	s.False(u.Failed)
	s.Require().NotNil(u.JobID)
	s.Require().NotNil(u.LastExecution)
	s.True(u.LastExecution.Equal(s.clock))

	a := s.task(affiliateTask.ID)
	s.True(a.Retired())

	trxs, err := s.svc.ListTransactions(s.ctx, models.TransactionFilter{})
	s.Require().NoError(err)
	suffixed := 0
	for _, trx := range trxs {
		if strings.HasSuffix(trx.Name, "-"+*u.JobID) || strings.HasSuffix(trx.Name, "-"+*a.JobID) {
			suffixed++
		}
	}
	s.Positive(suffixed)

	s.Equal(0, s.exec.RunOnce(s.ctx))

	s.clock = s.clock.Add(61 * time.Minute)
	s.Equal(1, s.exec.RunOnce(s.ctx))
	s.Equal(2, s.task(unifyTask.ID).Executions)
	s.Equal(1, s.task(affiliateTask.ID).Executions)
}

func (s *ExecutorSuite) TestRecordsFailures() {
	task, err := s.svc.AddScheduledTask(s.ctx, registry.JobGenderize, 10, nil)
	s.Require().NoError(err)

	s.Equal(1, s.exec.RunOnce(s.ctx))

	got := s.task(task.ID)
	s.Equal(0, got.Executions)
	s.Equal(1, got.Failures)
	s.True(got.Failed)
}

func (s *ExecutorSuite) TestSkipsLockedTasks() {
	task, err := s.svc.AddScheduledTask(s.ctx, registry.JobUnify, 0, nil)
	s.Require().NoError(err)

	s.exec.locker = busyLocker{}
	s.Equal(0, s.exec.RunOnce(s.ctx))
	s.Nil(s.task(task.ID).LastExecution)
}

func (s *ExecutorSuite) TestStartStop() {
	_, err := s.svc.AddScheduledTask(s.ctx, registry.JobUnify, 0, nil)
	s.Require().NoError(err)

	s.Require().NoError(s.exec.Start(s.ctx))
	s.ErrorIs(s.exec.Start(s.ctx), ErrExecutorAlreadyRunning)
	s.True(s.exec.IsRunning())

	s.Eventually(func() bool {
		tasks, err := s.svc.ListScheduledTasks(s.ctx)
		return err == nil && len(tasks) == 1 && tasks[0].Retired()
	}, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.Require().NoError(s.exec.Stop(ctx))
	s.False(s.exec.IsRunning())
}
