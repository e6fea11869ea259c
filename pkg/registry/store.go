package registry

import (
	"context"
	"time"

	"github.com/Ramsey-B/sortinghat/pkg/models"
)

// UnitOfWork is an open store transaction bound to the context returned by
// Store.Begin.
type UnitOfWork interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store is everything the registry needs from persistence. Lookups that miss
// return a NOT_FOUND error; unique violations return ALREADY_EXISTS.
type Store interface {
	Begin(ctx context.Context) (context.Context, UnitOfWork, error)

	Individuals() IndividualStore
	Profiles() ProfileStore
	Identities() IdentityStore
	Enrollments() EnrollmentStore
	Groups() GroupStore
	Domains() DomainStore
	Aliases() AliasStore
	Countries() CountryStore
	Exclusions() ExclusionStore
	Transactions() TransactionStore
	Tasks() TaskStore
}

type IndividualStore interface {
	Get(ctx context.Context, mk string) (*models.Individual, error)
	Create(ctx context.Context, individual *models.Individual) error
	Delete(ctx context.Context, mk string) error
	Touch(ctx context.Context, mk string, at time.Time) error
	SetLocked(ctx context.Context, mk string, locked bool, at time.Time) error
	List(ctx context.Context, filter models.IndividualFilter) ([]models.Individual, error)
}

type ProfileStore interface {
	Get(ctx context.Context, mk string) (*models.Profile, error)
	Create(ctx context.Context, profile *models.Profile) error
	Update(ctx context.Context, profile *models.Profile) error
	Delete(ctx context.Context, mk string) error
}

type IdentityStore interface {
	Get(ctx context.Context, uuid string) (*models.Identity, error)
	Create(ctx context.Context, identity *models.Identity) error
	Delete(ctx context.Context, uuid string) error
	Reparent(ctx context.Context, uuid, mk string, at time.Time) error
	ListByIndividual(ctx context.Context, mk string) ([]models.Identity, error)
	List(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, error)
}

type EnrollmentStore interface {
	Get(ctx context.Context, id int64) (*models.Enrollment, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	Delete(ctx context.Context, id int64) error
	Reparent(ctx context.Context, id int64, mk string, at time.Time) error
	ListByIndividual(ctx context.Context, mk string) ([]models.Enrollment, error)
	ListByIndividualAndGroup(ctx context.Context, mk string, groupID int64) ([]models.Enrollment, error)
	ListByGroup(ctx context.Context, groupID int64) ([]models.Enrollment, error)
}

type GroupStore interface {
	Get(ctx context.Context, id int64) (*models.Group, error)
	// FindByName returns the group of kind named name. Teams are looked up
	// inside parentOrgID; other kinds ignore it.
	FindByName(ctx context.Context, kind models.GroupKind, name string, parentOrgID *int64) (*models.Group, error)
	Create(ctx context.Context, group *models.Group) error
	Update(ctx context.Context, group *models.Group) error
	Delete(ctx context.Context, id int64) error
	ListChildren(ctx context.Context, parentID int64) ([]models.Group, error)
	ListByParentOrg(ctx context.Context, orgID int64) ([]models.Group, error)
	List(ctx context.Context, kind models.GroupKind, filter models.OrganizationFilter) ([]models.Group, error)
}

type DomainStore interface {
	Get(ctx context.Context, domain string) (*models.Domain, error)
	Create(ctx context.Context, domain *models.Domain) error
	Update(ctx context.Context, domain *models.Domain) error
	Delete(ctx context.Context, domain string) error
	ListByOrganization(ctx context.Context, orgID int64) ([]models.Domain, error)
}

type AliasStore interface {
	Get(ctx context.Context, alias string) (*models.Alias, error)
	Create(ctx context.Context, alias *models.Alias) error
	Delete(ctx context.Context, alias string) error
	ListByOrganization(ctx context.Context, orgID int64) ([]models.Alias, error)
}

type CountryStore interface {
	Get(ctx context.Context, code string) (*models.Country, error)
	List(ctx context.Context) ([]models.Country, error)
}

type ExclusionStore interface {
	Get(ctx context.Context, term string) (*models.MatchingExclusion, error)
	Create(ctx context.Context, exclusion *models.MatchingExclusion) error
	Delete(ctx context.Context, term string) error
	List(ctx context.Context) ([]models.MatchingExclusion, error)
}

// TransactionStore persists the audit log. CreateTransaction and Close run
// outside any open unit of work; CreateOperation runs inside it.
type TransactionStore interface {
	CreateTransaction(ctx context.Context, trx *models.Transaction) error
	CloseTransaction(ctx context.Context, tuid string, at time.Time) error
	CreateOperation(ctx context.Context, op *models.Operation) error
	GetTransaction(ctx context.Context, tuid string) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	ListOperations(ctx context.Context, tuid string) ([]models.Operation, error)
}

type TaskStore interface {
	Get(ctx context.Context, id int64) (*models.ScheduledTask, error)
	Create(ctx context.Context, task *models.ScheduledTask) error
	Update(ctx context.Context, task *models.ScheduledTask) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context) ([]models.ScheduledTask, error)
}
