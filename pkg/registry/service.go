// Package registry is the identity registry API. Every mutating call runs in
// one store transaction framed by an audit transaction: it validates, writes,
// appends operations and commits, or rolls everything back.
package registry

import (
	"context"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/auditlog"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/metrics"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// Entity type tags written to Operation.entity_type.
const (
	EntityIndividual    = "individual"
	EntityIdentity      = "identity"
	EntityProfile       = "profile"
	EntityEnrollment    = "enrollment"
	EntityOrganization  = "organization"
	EntityTeam          = "team"
	EntityGroup         = "group"
	EntityDomain        = "domain"
	EntityAlias         = "alias"
	EntityExclusion     = "matching_exclusion"
	EntityScheduledTask = "scheduled_task"
)

// CommitHook observes transactions after their data is committed.
type CommitHook interface {
	OnCommit(ctx context.Context, trx models.Transaction, ops []models.Operation)
}

type Option func(*Service)

func WithHooks(hooks ...CommitHook) Option {
	return func(s *Service) {
		s.hooks = append(s.hooks, hooks...)
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

type Service struct {
	store  Store
	logger ectologger.Logger
	hooks  []CommitHook
	now    func() time.Time
}

func NewService(store Store, logger ectologger.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store for read-heavy collaborators.
func (s *Service) Store() Store {
	return s.store
}

// AddHook registers a hook after construction.
func (s *Service) AddHook(h CommitHook) {
	s.hooks = append(s.hooks, h)
}

// run executes fn as one top-level registry call named name.
func (s *Service) run(ctx context.Context, name string, fn func(ctx context.Context, trxl *auditlog.Log) error) (err error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service."+name)
	defer span.End()

	log := s.logger.WithContext(ctx).WithField("call", name)
	defer func() {
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.CallsTotal.WithLabelValues(name, status).Inc()
	}()

	trxl, err := auditlog.Open(ctx, s.store.Transactions(), name, s.now)
	if err != nil {
		log.WithError(err).Error("Failed to open transaction log")
		return err
	}

	// The transaction row is written outside the unit of work, so a failed
	// call still closes it, empty.
	abort := func() {
		trxl.Discard()
		if closeErr := trxl.Close(ctx); closeErr != nil {
			log.WithError(closeErr).Warn("Failed to close transaction log")
		}
	}

	txCtx, uow, err := s.store.Begin(ctx)
	if err != nil {
		log.WithError(err).Error("Failed to begin store transaction")
		abort()
		return err
	}
	rollback := func() {
		if rbErr := uow.Rollback(txCtx); rbErr != nil {
			log.WithError(rbErr).Error("Failed to roll back store transaction")
		}
	}

	if err = fn(txCtx, trxl); err != nil {
		rollback()
		abort()
		log.WithError(err).Debug("Registry call aborted")
		return err
	}

	if err = uow.Commit(txCtx); err != nil {
		rollback()
		abort()
		log.WithError(err).Error("Failed to commit store transaction")
		return err
	}

	if closeErr := trxl.Close(ctx); closeErr != nil {
		log.WithError(closeErr).Warn("Failed to close transaction log")
	}

	ops := trxl.Operations()
	metrics.ObserveOperations(ops)
	trx := trxl.Transaction()
	for _, hook := range s.hooks {
		hook.OnCommit(ctx, trx, ops)
	}

	log.WithFields(map[string]any{"tuid": trx.TUID, "operations": len(ops)}).Debug("Registry call committed")
	return nil
}

// unlocked fetches an individual and fails when it is locked.
func (s *Service) unlocked(ctx context.Context, mk string) (*models.Individual, error) {
	ind, err := s.store.Individuals().Get(ctx, mk)
	if err != nil {
		return nil, err
	}
	if ind.IsLocked {
		return nil, errors.Locked(mk)
	}
	return ind, nil
}

// touch bumps last_modified on each distinct individual.
func (s *Service) touch(ctx context.Context, at time.Time, mks ...string) error {
	seen := map[string]bool{}
	for _, mk := range mks {
		if mk == "" || seen[mk] {
			continue
		}
		seen[mk] = true
		if err := s.store.Individuals().Touch(ctx, mk, at); err != nil {
			return err
		}
	}
	return nil
}

// requireString rejects empty and whitespace-only values. field names the
// error, e.g. "name" yields NAME_NONE_ERROR / NAME_EMPTY_ERROR.
func requireString(field, value string) error {
	tag := strings.ToUpper(field)
	if value == "" {
		return errors.InvalidValuef(tag+"_NONE_ERROR", "'%s' cannot be None or an empty string", field)
	}
	if strings.TrimSpace(value) == "" {
		return errors.InvalidValuef(tag+"_EMPTY_ERROR", "'%s' cannot be composed by whitespaces only", field)
	}
	return nil
}

// optionalString validates a nullable input: nil passes, blank fails.
func optionalString(field string, value *string) error {
	if value == nil {
		return nil
	}
	return requireString(field, *value)
}
