package recommendation

import (
	"context"

	"github.com/Ramsey-B/sortinghat/pkg/matching"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// RecommendMatches returns, per requested individual, the mks of the other
// individuals owning an identity the matcher pairs with one of its own.
// Targets narrows the candidates; empty means every individual.
func (r *Recommender) RecommendMatches(ctx context.Context, req Request) ([]Recommendation, error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Recommender.RecommendMatches")
	defer span.End()

	name := req.Matcher
	if name == "" {
		name = "default"
	}
	exclusions, err := r.registry.ExclusionTerms(ctx)
	if err != nil {
		return nil, err
	}
	matcher, err := matching.New(name, matching.Options{
		Exclusions: exclusions,
		Strict:     req.Strict,
		Exclude:    req.Exclude,
	})
	if err != nil {
		return nil, err
	}

	sources, err := r.resolve(ctx, req.Keys)
	if err != nil {
		return nil, err
	}

	filter := models.IdentityFilter{Sources: req.Sources}
	if len(req.Targets) > 0 {
		targets, err := r.resolve(ctx, req.Targets)
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			out := make([]Recommendation, 0, len(sources))
			for _, s := range sources {
				out = append(out, Recommendation{Key: s.key, MK: s.individual.MK, Matches: []string{}})
			}
			return out, nil
		}
		for _, t := range targets {
			filter.IndividualMKs = append(filter.IndividualMKs, t.individual.MK)
		}
	}
	candidates, err := r.registry.ListIdentities(ctx, filter)
	if err != nil {
		return nil, err
	}

	out := make([]Recommendation, 0, len(sources))
	for _, s := range sources {
		var mks []string
		for _, own := range s.individual.Identities {
			if len(req.Sources) > 0 && !contains(req.Sources, own.Source) {
				continue
			}
			for _, c := range candidates {
				if c.IndividualMK == s.individual.MK {
					continue
				}
				if matcher.Match(own, c) {
					mks = append(mks, c.IndividualMK)
				}
			}
		}
		out = append(out, Recommendation{Key: s.key, MK: s.individual.MK, Matches: sortedSet(mks)})
	}
	return out, nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}
