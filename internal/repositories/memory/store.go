// Package memory is an in-process registry store. Transactions work on a
// copy of the state that replaces the committed state on commit, so a
// rollback leaves no trace. Only one transaction is open at a time.
package memory

import (
	"context"
	"sync"

	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
)

type state struct {
	individuals  map[string]models.Individual
	profiles     map[string]models.Profile
	identities   map[string]models.Identity
	enrollments  map[int64]models.Enrollment
	groups       map[int64]models.Group
	domains      map[string]models.Domain
	aliases      map[string]models.Alias
	countries    map[string]models.Country
	exclusions   map[string]models.MatchingExclusion
	transactions map[string]models.Transaction
	operations   []models.Operation
	tasks        map[int64]models.ScheduledTask
	seq          int64
}

func newState() *state {
	return &state{
		individuals:  map[string]models.Individual{},
		profiles:     map[string]models.Profile{},
		identities:   map[string]models.Identity{},
		enrollments:  map[int64]models.Enrollment{},
		groups:       map[int64]models.Group{},
		domains:      map[string]models.Domain{},
		aliases:      map[string]models.Alias{},
		countries:    map[string]models.Country{},
		exclusions:   map[string]models.MatchingExclusion{},
		transactions: map[string]models.Transaction{},
		tasks:        map[int64]models.ScheduledTask{},
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	ops := make([]models.Operation, len(s.operations))
	copy(ops, s.operations)
	return &state{
		individuals:  copyMap(s.individuals),
		profiles:     copyMap(s.profiles),
		identities:   copyMap(s.identities),
		enrollments:  copyMap(s.enrollments),
		groups:       copyMap(s.groups),
		domains:      copyMap(s.domains),
		aliases:      copyMap(s.aliases),
		countries:    copyMap(s.countries),
		exclusions:   copyMap(s.exclusions),
		transactions: copyMap(s.transactions),
		operations:   ops,
		tasks:        copyMap(s.tasks),
		seq:          s.seq,
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

type ctxKey struct{}

// Store implements registry.Store in memory.
type Store struct {
	txMu sync.Mutex
	mu   sync.RWMutex
	base *state
}

var _ registry.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{base: newState()}
}

// WithCountries seeds the read-only country table.
func (s *Store) WithCountries(countries ...models.Country) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range countries {
		s.base.countries[c.Code] = c
	}
	return s
}

type tx struct {
	store *Store
	st    *state
	done  bool
}

func (t *tx) Commit(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	t.store.base = t.st
	t.store.mu.Unlock()
	t.store.txMu.Unlock()
	return nil
}

func (t *tx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.txMu.Unlock()
	return nil
}

type joined struct{}

func (joined) Commit(ctx context.Context) error   { return nil }
func (joined) Rollback(ctx context.Context) error { return nil }

func (s *Store) Begin(ctx context.Context) (context.Context, registry.UnitOfWork, error) {
	if t := active(ctx); t != nil {
		return ctx, joined{}, nil
	}

	s.txMu.Lock()
	s.mu.RLock()
	st := s.base.clone()
	s.mu.RUnlock()

	t := &tx{store: s, st: st}
	return context.WithValue(ctx, ctxKey{}, t), t, nil
}

func active(ctx context.Context) *tx {
	t, ok := ctx.Value(ctxKey{}).(*tx)
	if !ok || t == nil || t.done {
		return nil
	}
	return t
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if t := active(ctx); t != nil {
		return fn(t.st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.base)
}

// write applies fn to the open transaction, or commits it immediately when
// ctx carries none.
func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	if t := active(ctx); t != nil {
		return fn(t.st)
	}
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.base.clone()
	if err := fn(st); err != nil {
		return err
	}
	s.base = st
	return nil
}

func (s *Store) Individuals() registry.IndividualStore   { return individuals{s} }
func (s *Store) Profiles() registry.ProfileStore         { return profiles{s} }
func (s *Store) Identities() registry.IdentityStore      { return identities{s} }
func (s *Store) Enrollments() registry.EnrollmentStore   { return enrollments{s} }
func (s *Store) Groups() registry.GroupStore             { return groups{s} }
func (s *Store) Domains() registry.DomainStore           { return domains{s} }
func (s *Store) Aliases() registry.AliasStore            { return aliases{s} }
func (s *Store) Countries() registry.CountryStore        { return countries{s} }
func (s *Store) Exclusions() registry.ExclusionStore     { return exclusions{s} }
func (s *Store) Transactions() registry.TransactionStore { return transactions{s} }
func (s *Store) Tasks() registry.TaskStore               { return tasks{s} }
