package repositories_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Ramsey-B/sortinghat/internal/repositories"
	"github.com/Ramsey-B/sortinghat/pkg/database"
	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/period"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
)

const databaseName = "sortinghat"

func ptr[T any](v T) *T { return &v }

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

type PostgresSuite struct {
	suite.Suite
	ctx       context.Context
	container *tcpostgres.PostgresContainer
	db        database.DB
	svc       *registry.Service
}

func TestPostgresSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresSuite))
}

func (s *PostgresSuite) SetupSuite() {
	s.ctx = context.Background()
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})

	container, err := tcpostgres.Run(s.ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase(databaseName),
		tcpostgres.WithUsername("user"),
		tcpostgres.WithPassword("password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	dsn, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.db, err = database.Open(s.ctx, "postgres", dsn, logger)
	s.Require().NoError(err)

	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: "../../db/pg"})
	s.Require().NoError(migrations.Migrate(s.db, databaseName))

	s.svc = registry.NewService(repositories.NewStore(s.db, logger), logger)
}

func (s *PostgresSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		s.NoError(testcontainers.TerminateContainer(s.container))
	}
}

func (s *PostgresSuite) SetupTest() {
	_, err := s.db.ExecContext(s.ctx, `TRUNCATE individuals, groups, matching_exclusions, transactions, scheduled_tasks CASCADE`)
	s.Require().NoError(err)
}

func (s *PostgresSuite) addIdentity(source, email, name string) *models.Identity {
	identity, err := s.svc.AddIdentity(s.ctx, models.IdentityData{
		Source: source,
		Email:  ptr(email),
		Name:   ptr(name),
	}, nil)
	s.Require().NoError(err)
	return identity
}

func (s *PostgresSuite) TestCountriesSeeded() {
	country, err := s.svc.FindCountry(s.ctx, "ES")
	s.Require().NoError(err)
	s.Equal("ESP", country.Alpha3)
	s.Equal("Spain", country.Name)
}

func (s *PostgresSuite) TestIdentityLifecycle() {
	identity := s.addIdentity("scm", "jsmith@example.com", "John Smith")

	_, err := s.svc.AddIdentity(s.ctx, models.IdentityData{
		Source: "scm", Email: ptr("jsmith@example.com"), Name: ptr("John Smith"),
	}, nil)
	s.True(errors.Is(err, errors.CodeAlreadyExists))

	ind, err := s.svc.UpdateProfile(s.ctx, identity.UUID, models.ProfileUpdate{
		Name:        ptr("John Smith"),
		CountryCode: ptr("US"),
	})
	s.Require().NoError(err)
	s.Equal("John Smith", *ind.Profile.Name)
	s.Require().NotNil(ind.Profile.Country)
	s.Equal("USA", ind.Profile.Country.Alpha3)

	found, err := s.svc.ListIndividuals(s.ctx, models.IndividualFilter{Term: "jsmith"})
	s.Require().NoError(err)
	s.Require().Len(found, 1)
	s.Equal(identity.UUID, found[0].MK)

	_, err = s.svc.DeleteIndividual(s.ctx, identity.UUID)
	s.Require().NoError(err)
	_, err = s.svc.GetIndividual(s.ctx, identity.UUID)
	s.True(errors.Is(err, errors.CodeNotFound))
}

func (s *PostgresSuite) TestFailedMergeRollsBack() {
	from := s.addIdentity("scm", "jsmith@example.com", "John Smith")
	to := s.addIdentity("git", "jsmith@example.com", "J. Smith")

	_, err := s.svc.LockIndividual(s.ctx, to.UUID)
	s.Require().NoError(err)

	before, err := s.svc.ListOperations(s.ctx, "")
	s.Require().NoError(err)

	_, err = s.svc.MergeIndividuals(s.ctx, from.UUID, to.UUID)
	s.True(errors.Is(err, errors.CodeLockedIdentity))

	after, err := s.svc.ListOperations(s.ctx, "")
	s.Require().NoError(err)
	s.Len(after, len(before))

	ind, err := s.svc.GetIndividual(s.ctx, from.UUID)
	s.Require().NoError(err)
	s.Len(ind.Identities, 1)

	_, err = s.svc.UnlockIndividual(s.ctx, to.UUID)
	s.Require().NoError(err)
	merged, err := s.svc.MergeIndividuals(s.ctx, from.UUID, to.UUID)
	s.Require().NoError(err)
	s.Len(merged.Identities, 2)
}

func (s *PostgresSuite) TestEnrollmentsMergeOnTeams() {
	identity := s.addIdentity("scm", "jsmith@example.com", "John Smith")

	_, err := s.svc.AddOrganization(s.ctx, "Example")
	s.Require().NoError(err)
	_, err = s.svc.AddTeam(s.ctx, "Core", "Example", "")
	s.Require().NoError(err)

	team := models.GroupRef{Name: "Core", ParentOrg: "Example"}
	_, err = s.svc.AddEnrollment(s.ctx, identity.UUID, team, date(2000, 1, 1), date(2005, 1, 1), registry.EnrollOptions{})
	s.Require().NoError(err)
	_, err = s.svc.AddEnrollment(s.ctx, identity.UUID, team, date(2003, 1, 1), date(2010, 1, 1), registry.EnrollOptions{})
	s.Require().NoError(err)

	ind, err := s.svc.MergeEnrollments(s.ctx, identity.UUID, team)
	s.Require().NoError(err)
	s.Require().Len(ind.Enrollments, 1)
	s.True(ind.Enrollments[0].SamePeriod(*date(2000, 1, 1), *date(2010, 1, 1)))
	s.Require().NotNil(ind.Enrollments[0].Group)
	s.Equal("Core", ind.Enrollments[0].Group.Name)

	_, err = s.svc.UpdateEnrollment(s.ctx, identity.UUID, team,
		period.Period{Start: *date(2000, 1, 1), End: *date(2010, 1, 1)}, date(2001, 1, 1), date(2010, 1, 1))
	s.Require().NoError(err)

	_, err = s.svc.DeleteOrganization(s.ctx, "Example")
	s.Require().NoError(err)

	ind, err = s.svc.GetIndividual(s.ctx, identity.UUID)
	s.Require().NoError(err)
	s.Empty(ind.Enrollments)
}

func (s *PostgresSuite) TestDomainsAndAliases() {
	_, err := s.svc.AddOrganization(s.ctx, "Example")
	s.Require().NoError(err)
	_, err = s.svc.AddOrganization(s.ctx, "Other")
	s.Require().NoError(err)

	_, err = s.svc.AddDomain(s.ctx, "Example", "example.com", true)
	s.Require().NoError(err)
	_, err = s.svc.AddDomain(s.ctx, "Other", "example.com", false)
	s.True(errors.Is(err, errors.CodeAlreadyExists))

	_, err = s.svc.AddAlias(s.ctx, "Example", "Example Inc.")
	s.Require().NoError(err)

	moved, err := s.svc.MoveDomain(s.ctx, "example.com", "Other")
	s.Require().NoError(err)
	s.True(moved.IsTopDomain)

	org, err := s.svc.FindOrganization(s.ctx, "Example Inc.")
	s.Require().NoError(err)
	s.Equal("Example", org.Name)
	s.Empty(org.Domains)
	s.Len(org.Aliases, 1)
}

func (s *PostgresSuite) TestScheduledTaskArgs() {
	args := json.RawMessage(`{"uuids":["a","b"]}`)
	task, err := s.svc.AddScheduledTask(s.ctx, registry.JobAffiliate, 60, args)
	s.Require().NoError(err)
	s.NotZero(task.ID)

	tasks, err := s.svc.ListScheduledTasks(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(tasks, 1)
	s.JSONEq(string(args), string(tasks[0].Args))
	s.Equal(60, tasks[0].Interval)
}
