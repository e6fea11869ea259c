package unify_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sortinghat/internal/repositories/memory"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/unify"
)

func newLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// seed adds identities, each in its own individual, sharing one of classes
// emails.
func seed(t *testing.T, svc *registry.Service, identities, classes int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < identities; i++ {
		email := fmt.Sprintf("user%d@example.com", i%classes)
		name := fmt.Sprintf("Person %d", i)
		_, err := svc.AddIdentity(ctx, models.IdentityData{Source: "scm", Email: &email, Name: &name}, nil)
		require.NoError(t, err)
	}
}

func countIndividuals(t *testing.T, svc *registry.Service) int {
	t.Helper()
	inds, err := svc.Store().Individuals().List(context.Background(), models.IndividualFilter{})
	require.NoError(t, err)
	return len(inds)
}

func TestRecoveryPath(t *testing.T) {
	path := unify.RecoveryPath("/home/jdoe", "sortinghat", "localhost", 5432)
	assert.Equal(t, filepath.Join("/home/jdoe", ".sortinghat.d"), filepath.Dir(path))
	assert.Len(t, filepath.Base(path), 40+len(".log"))
	assert.Equal(t, path, unify.RecoveryPath("/home/jdoe", "sortinghat", "localhost", 5432))
	assert.NotEqual(t, path, unify.RecoveryPath("/home/jdoe", "sortinghat", "localhost", 5433))
}

func TestRecoveryFileJournal(t *testing.T) {
	path := unify.RecoveryPath(t.TempDir(), "db", "host", 1)
	rf, err := unify.OpenRecoveryFile(path)
	require.NoError(t, err)
	defer rf.Close()

	_, err = unify.OpenRecoveryFile(path)
	assert.Error(t, err)

	classes := []unify.Class{
		{Identities: []string{"a", "b"}},
		{Identities: []string{"c", "d", "e"}},
		{Identities: []string{"f", "g"}},
	}
	require.NoError(t, rf.Save(classes))
	require.NoError(t, rf.MarkProcessed(classes[0]))
	require.NoError(t, rf.MarkProcessed(classes[2]))

	pending, err := rf.Load()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, []string{"c", "d", "e"}, pending[0].Identities)
	assert.False(t, pending[0].Processed)

	require.NoError(t, rf.Delete())
	assert.False(t, rf.Exists())
	require.NoError(t, rf.Delete())
}

func TestRunMergesClasses(t *testing.T) {
	svc := registry.NewService(memory.NewStore(), newLogger())
	seed(t, svc, 30, 5)

	u := unify.NewUnifier(svc, nil, newLogger())
	stats, err := u.Run(context.Background(), unify.Options{Matcher: "email"})
	require.NoError(t, err)
	assert.Equal(t, unify.Stats{ProcessedTotal: 5, Matched: 5, Remaining: 0}, stats)
	assert.Equal(t, 5, countIndividuals(t, svc))

	stats, err = u.Run(context.Background(), unify.Options{Matcher: "email"})
	require.NoError(t, err)
	assert.Equal(t, unify.Stats{ProcessedTotal: 5, Matched: 0, Remaining: 5}, stats)
}

func TestRunRespectsExclusionsAndSources(t *testing.T) {
	ctx := context.Background()
	svc := registry.NewService(memory.NewStore(), newLogger())
	seed(t, svc, 6, 2)

	other := "user0@example.com"
	_, err := svc.AddIdentity(ctx, models.IdentityData{Source: "git", Email: &other}, nil)
	require.NoError(t, err)
	_, err = svc.AddExclusion(ctx, "user1@example.com")
	require.NoError(t, err)

	u := unify.NewUnifier(svc, nil, newLogger())
	stats, err := u.Run(ctx, unify.Options{Matcher: "email", Sources: []string{"scm"}, Pairwise: true})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	// user0 collapses to one, user1 stays as three, the git identity is untouched.
	assert.Equal(t, 5, countIndividuals(t, svc))
}

func TestRunStrictAndExcludeOverrides(t *testing.T) {
	ctx := context.Background()
	svc := registry.NewService(memory.NewStore(), newLogger())

	name, bot := "jsmith", "bot@example.com"
	for _, source := range []string{"scm", "git"} {
		_, err := svc.AddIdentity(ctx, models.IdentityData{Source: source, Name: &name}, nil)
		require.NoError(t, err)
		_, err = svc.AddIdentity(ctx, models.IdentityData{Source: source + "-bot", Email: &bot}, nil)
		require.NoError(t, err)
	}
	_, err := svc.AddExclusion(ctx, bot)
	require.NoError(t, err)

	u := unify.NewUnifier(svc, nil, newLogger())
	stats, err := u.Run(ctx, unify.Options{Matcher: "default"})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Matched)
	assert.Equal(t, 4, countIndividuals(t, svc))

	lax := false
	stats, err = u.Run(ctx, unify.Options{Matcher: "default", Strict: &lax})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 3, countIndividuals(t, svc))

	noExclusions := false
	stats, err = u.Run(ctx, unify.Options{Matcher: "default", Exclude: &noExclusions})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Matched)
	assert.Equal(t, 2, countIndividuals(t, svc))
}

// failingRegistry fails the failOn-th merge.
type failingRegistry struct {
	unify.Registry
	failOn int
	merges int
}

func (r *failingRegistry) MergeIndividuals(ctx context.Context, fromMK, toMK string) (*models.Individual, error) {
	r.merges++
	if r.merges == r.failOn {
		return nil, stderrors.New("connection reset by peer")
	}
	return r.Registry.MergeIndividuals(ctx, fromMK, toMK)
}

func TestRunRecoveryAfterMergeFailure(t *testing.T) {
	ctx := context.Background()
	svc := registry.NewService(memory.NewStore(), newLogger())
	// Five classes of six identities: five merges per class.
	seed(t, svc, 30, 5)

	path := unify.RecoveryPath(t.TempDir(), "sortinghat", "localhost", 5432)
	rf, err := unify.OpenRecoveryFile(path)
	require.NoError(t, err)
	defer rf.Close()

	// The 13th merge falls in the third class.
	failing := unify.NewUnifier(&failingRegistry{Registry: svc, failOn: 13}, rf, newLogger())
	stats, err := failing.Run(ctx, unify.Options{Matcher: "email", Recovery: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset by peer")
	assert.Equal(t, 2, stats.ProcessedTotal)

	pending, err := rf.Load()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for _, c := range pending {
		assert.False(t, c.Processed)
		assert.Len(t, c.Identities, 6)
	}

	stats, err = unify.NewUnifier(svc, rf, newLogger()).Run(ctx, unify.Options{Matcher: "email", Recovery: true})
	require.NoError(t, err)
	assert.Equal(t, unify.Stats{ProcessedTotal: 3, Matched: 3, Remaining: 0}, stats)
	assert.Equal(t, 5, countIndividuals(t, svc))
	assert.False(t, rf.Exists())
}

func TestRunUnknownMatcher(t *testing.T) {
	svc := registry.NewService(memory.NewStore(), newLogger())
	_, err := unify.NewUnifier(svc, nil, newLogger()).Run(context.Background(), unify.Options{Matcher: "fuzzy"})
	assert.Error(t, err)
}

func TestRunRecovery(t *testing.T) {
	svc := registry.NewService(memory.NewStore(), newLogger())
	seed(t, svc, 1000, 50)

	path := unify.RecoveryPath(t.TempDir(), "sortinghat", "localhost", 5432)
	rf, err := unify.OpenRecoveryFile(path)
	require.NoError(t, err)
	defer rf.Close()

	u := unify.NewUnifier(svc, rf, newLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stats, err := u.Run(ctx, unify.Options{
		Matcher:  "email",
		Recovery: true,
		OnClass: func(s unify.Stats) {
			if s.Matched == 20 {
				cancel()
			}
		},
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 20, stats.Matched)
	assert.True(t, rf.Exists())

	pending, err := rf.Load()
	require.NoError(t, err)
	assert.Len(t, pending, 30)
	assert.Equal(t, 1000-20*19, countIndividuals(t, svc))

	stats, err = u.Run(context.Background(), unify.Options{Matcher: "email", Recovery: true})
	require.NoError(t, err)
	assert.Equal(t, unify.Stats{ProcessedTotal: 30, Matched: 30, Remaining: 0}, stats)
	assert.Equal(t, 50, countIndividuals(t, svc))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
