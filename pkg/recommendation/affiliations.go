package recommendation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@.]+\.[^\s@]+$`)

// domainLookup resolves email hosts to organizations for one run. Misses are
// cached too, as a nil entry.
type domainLookup struct {
	registry Registry
	domains  *lru.Cache[string, *models.Domain]
	orgs     *lru.Cache[int64, string]
}

func newDomainLookup(reg Registry, size int) (*domainLookup, error) {
	domains, err := lru.New[string, *models.Domain](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create domain cache: %w", err)
	}
	orgs, err := lru.New[int64, string](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create organization cache: %w", err)
	}
	return &domainLookup{registry: reg, domains: domains, orgs: orgs}, nil
}

func (l *domainLookup) domain(ctx context.Context, name string) (*models.Domain, error) {
	if d, ok := l.domains.Get(name); ok {
		return d, nil
	}
	d, err := l.registry.FindDomain(ctx, name)
	if errors.Is(err, errors.CodeNotFound) {
		d, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	l.domains.Add(name, d)
	return d, nil
}

func (l *domainLookup) organization(ctx context.Context, id int64) (string, error) {
	if name, ok := l.orgs.Get(id); ok {
		return name, nil
	}
	g, err := l.registry.GetGroup(ctx, id)
	if err != nil {
		return "", err
	}
	l.orgs.Add(id, g.Name)
	return g.Name, nil
}

// find returns the organization id for host: an exact domain match of any
// kind, else the closest parent domain flagged as top domain.
func (l *domainLookup) find(ctx context.Context, host string) (int64, bool, error) {
	d, err := l.domain(ctx, host)
	if err != nil {
		return 0, false, err
	}
	if d != nil {
		return d.OrganizationID, true, nil
	}

	for {
		i := strings.Index(host, ".")
		if i < 0 {
			return 0, false, nil
		}
		host = host[i+1:]
		d, err := l.domain(ctx, host)
		if err != nil {
			return 0, false, err
		}
		if d != nil && d.IsTopDomain {
			return d.OrganizationID, true, nil
		}
	}
}

// emailHost returns the lower-cased domain part of a well formed email.
func emailHost(email *string) (string, bool) {
	if email == nil {
		return "", false
	}
	e := strings.TrimSpace(*email)
	if !emailPattern.MatchString(e) {
		return "", false
	}
	return strings.ToLower(e[strings.LastIndex(e, "@")+1:]), true
}

// RecommendAffiliations returns, per individual, the organizations its
// identities' email domains point to and it is not yet enrolled in.
func (r *Recommender) RecommendAffiliations(ctx context.Context, keys []string) ([]Recommendation, error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Recommender.RecommendAffiliations")
	defer span.End()

	lookup, err := newDomainLookup(r.registry, r.cacheSize)
	if err != nil {
		return nil, err
	}
	targets, err := r.resolve(ctx, keys)
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(targets))
	for _, t := range targets {
		orgs, err := r.affiliations(ctx, lookup, t.individual)
		if err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("mk", t.individual.MK).Error("Failed to recommend affiliations")
			return nil, err
		}
		out = append(out, Recommendation{Key: t.key, MK: t.individual.MK, Organizations: orgs})
	}
	return out, nil
}

func (r *Recommender) affiliations(ctx context.Context, lookup *domainLookup, ind *models.Individual) ([]string, error) {
	enrolled := map[int64]bool{}
	for _, e := range ind.Enrollments {
		enrolled[e.GroupID] = true
	}

	var names []string
	for _, identity := range ind.Identities {
		host, ok := emailHost(identity.Email)
		if !ok {
			continue
		}
		orgID, found, err := lookup.find(ctx, host)
		if err != nil {
			return nil, err
		}
		if !found || enrolled[orgID] {
			continue
		}
		name, err := lookup.organization(ctx, orgID)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return sortedSet(names), nil
}
