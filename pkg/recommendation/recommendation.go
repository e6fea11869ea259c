// Package recommendation suggests changes to the registry: organizations an
// individual should be enrolled in, individuals that look like the same
// person and a gender for profiles that lack one.
package recommendation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/genderize"
	"github.com/Ramsey-B/sortinghat/pkg/metrics"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

const (
	EngineAffiliation = "affiliation"
	EngineMatches     = "matches"
	EngineGender      = "gender"

	defaultCacheSize = 1024
)

// Registry is the slice of the registry API recommendations read and write.
type Registry interface {
	GetIndividual(ctx context.Context, mk string) (*models.Individual, error)
	FindIndividualByUUID(ctx context.Context, uuid string) (*models.Individual, error)
	ListIndividuals(ctx context.Context, filter models.IndividualFilter) ([]models.Individual, error)
	ListIdentities(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, error)
	ExclusionTerms(ctx context.Context) (map[string]bool, error)
	FindDomain(ctx context.Context, domain string) (*models.Domain, error)
	GetGroup(ctx context.Context, id int64) (*models.Group, error)
	AddEnrollment(ctx context.Context, mk string, ref models.GroupRef, start, end *time.Time, opts registry.EnrollOptions) (*models.Individual, error)
	MergeEnrollments(ctx context.Context, mk string, ref models.GroupRef) (*models.Individual, error)
	UpdateProfile(ctx context.Context, mk string, update models.ProfileUpdate) (*models.Individual, error)
}

// Guesser infers a gender from a person's name.
type Guesser interface {
	Guess(ctx context.Context, name string) (*genderize.Guess, error)
}

// Recommendation is one engine answer for one requested key. Key is the
// mk or identity uuid the caller asked about; MK the individual it resolved
// to. An empty Organizations or Matches list means the individual was
// checked and nothing was found.
type Recommendation struct {
	Key           string   `json:"key"`
	MK            string   `json:"mk"`
	Organizations []string `json:"organizations,omitempty"`
	Matches       []string `json:"matches,omitempty"`
	Gender        *string  `json:"gender,omitempty"`
	Accuracy      *int     `json:"accuracy,omitempty"`
}

// Request selects what an engine looks at. Empty Keys means every
// individual in the registry.
type Request struct {
	Keys []string `json:"keys,omitempty"`
	// Targets restricts the individuals the matches engine compares against.
	Targets []string `json:"targets,omitempty"`
	// Matcher names the criteria the matches engine uses.
	Matcher string `json:"matcher,omitempty"`
	// Sources restricts the identities the matches engine considers.
	Sources []string `json:"sources,omitempty"`
	// Strict and Exclude override the matcher's validation mode and whether
	// exclusion terms apply. Nil keeps the matcher's defaults.
	Strict  *bool `json:"strict,omitempty"`
	Exclude *bool `json:"exclude,omitempty"`
}

// Engine produces recommendations for req.
type Engine func(ctx context.Context, r *Recommender, req Request) ([]Recommendation, error)

var (
	enginesMu sync.RWMutex
	engines   = map[string]Engine{}
)

func init() {
	Register(EngineAffiliation, func(ctx context.Context, r *Recommender, req Request) ([]Recommendation, error) {
		return r.RecommendAffiliations(ctx, req.Keys)
	})
	Register(EngineMatches, func(ctx context.Context, r *Recommender, req Request) ([]Recommendation, error) {
		return r.RecommendMatches(ctx, req)
	})
	Register(EngineGender, func(ctx context.Context, r *Recommender, req Request) ([]Recommendation, error) {
		return r.RecommendGender(ctx, req.Keys)
	})
}

// Register adds or replaces an engine.
func Register(name string, engine Engine) {
	enginesMu.Lock()
	defer enginesMu.Unlock()
	engines[name] = engine
}

// Engines returns the registered engine names, sorted.
func Engines() []string {
	enginesMu.RLock()
	defer enginesMu.RUnlock()
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type Option func(*Recommender)

// WithGuesser sets the gender source. Without one the gender engine fails.
func WithGuesser(g Guesser) Option {
	return func(r *Recommender) {
		r.guesser = g
	}
}

// WithCacheSize bounds the per-run domain cache.
func WithCacheSize(size int) Option {
	return func(r *Recommender) {
		if size > 0 {
			r.cacheSize = size
		}
	}
}

type Recommender struct {
	registry  Registry
	guesser   Guesser
	cacheSize int
	logger    ectologger.Logger
}

func NewRecommender(reg Registry, logger ectologger.Logger, opts ...Option) *Recommender {
	r := &Recommender{
		registry:  reg,
		cacheSize: defaultCacheSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Recommend runs the engine registered as name.
func (r *Recommender) Recommend(ctx context.Context, name string, req Request) ([]Recommendation, error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Recommender.Recommend")
	defer span.End()

	enginesMu.RLock()
	engine, ok := engines[name]
	enginesMu.RUnlock()
	if !ok {
		return nil, errors.UnknownRecommendation(name)
	}

	recs, err := engine(ctx, r, req)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("engine", name).Error("Failed to produce recommendations")
		return nil, err
	}
	metrics.RecommendationsTotal.WithLabelValues(name).Add(float64(len(recs)))
	return recs, nil
}

type target struct {
	key        string
	individual *models.Individual
}

// resolve maps keys to individuals. A key is an individual mk or, failing
// that, the uuid of one of its identities. Unknown keys are skipped.
func (r *Recommender) resolve(ctx context.Context, keys []string) ([]target, error) {
	if len(keys) == 0 {
		inds, err := r.registry.ListIndividuals(ctx, models.IndividualFilter{})
		if err != nil {
			return nil, err
		}
		out := make([]target, 0, len(inds))
		for i := range inds {
			out = append(out, target{key: inds[i].MK, individual: &inds[i]})
		}
		return out, nil
	}

	out := make([]target, 0, len(keys))
	for _, key := range keys {
		ind, err := r.registry.GetIndividual(ctx, key)
		if errors.Is(err, errors.CodeNotFound) {
			ind, err = r.registry.FindIndividualByUUID(ctx, key)
		}
		if errors.Is(err, errors.CodeNotFound) {
			r.logger.WithContext(ctx).WithField("key", key).Debug("Skipping unknown individual")
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, target{key: key, individual: ind})
	}
	return out, nil
}

// sortedSet returns the distinct values of in, sorted.
func sortedSet(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
