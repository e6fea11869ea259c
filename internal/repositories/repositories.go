package repositories

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/internal/repositories/alias"
	"github.com/Ramsey-B/sortinghat/internal/repositories/audit"
	"github.com/Ramsey-B/sortinghat/internal/repositories/country"
	"github.com/Ramsey-B/sortinghat/internal/repositories/domain"
	"github.com/Ramsey-B/sortinghat/internal/repositories/enrollment"
	"github.com/Ramsey-B/sortinghat/internal/repositories/exclusion"
	"github.com/Ramsey-B/sortinghat/internal/repositories/group"
	"github.com/Ramsey-B/sortinghat/internal/repositories/identity"
	"github.com/Ramsey-B/sortinghat/internal/repositories/individual"
	"github.com/Ramsey-B/sortinghat/internal/repositories/profile"
	"github.com/Ramsey-B/sortinghat/internal/repositories/scheduledtask"
	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
)

// Store implements registry.Store over postgres. A unit of work is a
// database transaction carried on the context; repositories pick it up
// through database.Executor.
type Store struct {
	db database.DB

	individuals *individual.Repository
	profiles    *profile.Repository
	identities  *identity.Repository
	enrollments *enrollment.Repository
	groups      *group.Repository
	domains     *domain.Repository
	aliases     *alias.Repository
	countries   *country.Repository
	exclusions  *exclusion.Repository
	audit       *audit.Repository
	tasks       *scheduledtask.Repository
}

var _ registry.Store = (*Store)(nil)

func NewStore(db database.DB, logger ectologger.Logger) *Store {
	return &Store{
		db:          db,
		individuals: individual.NewRepository(db, logger),
		profiles:    profile.NewRepository(db, logger),
		identities:  identity.NewRepository(db, logger),
		enrollments: enrollment.NewRepository(db, logger),
		groups:      group.NewRepository(db, logger),
		domains:     domain.NewRepository(db, logger),
		aliases:     alias.NewRepository(db, logger),
		countries:   country.NewRepository(db, logger),
		exclusions:  exclusion.NewRepository(db, logger),
		audit:       audit.NewRepository(db, logger),
		tasks:       scheduledtask.NewRepository(db, logger),
	}
}

func (s *Store) Begin(ctx context.Context) (context.Context, registry.UnitOfWork, error) {
	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, tx, nil
}

func (s *Store) Individuals() registry.IndividualStore   { return s.individuals }
func (s *Store) Profiles() registry.ProfileStore         { return s.profiles }
func (s *Store) Identities() registry.IdentityStore      { return s.identities }
func (s *Store) Enrollments() registry.EnrollmentStore   { return s.enrollments }
func (s *Store) Groups() registry.GroupStore             { return s.groups }
func (s *Store) Domains() registry.DomainStore           { return s.domains }
func (s *Store) Aliases() registry.AliasStore            { return s.aliases }
func (s *Store) Countries() registry.CountryStore        { return s.countries }
func (s *Store) Exclusions() registry.ExclusionStore     { return s.exclusions }
func (s *Store) Transactions() registry.TransactionStore { return s.audit }
func (s *Store) Tasks() registry.TaskStore               { return s.tasks }
