package recommendation

import (
	"context"
	"fmt"
	"strings"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/genderize"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// displayName is the profile name, or the first identity name when the
// profile has none.
func displayName(ind *models.Individual) string {
	if ind.Profile != nil && ind.Profile.Name != nil && strings.TrimSpace(*ind.Profile.Name) != "" {
		return *ind.Profile.Name
	}
	for _, identity := range ind.Identities {
		if identity.Name != nil && strings.TrimSpace(*identity.Name) != "" {
			return *identity.Name
		}
	}
	return ""
}

// RecommendGender guesses a gender for each individual from its first name.
// Individuals without a usable name get a recommendation with no gender.
func (r *Recommender) RecommendGender(ctx context.Context, keys []string) ([]Recommendation, error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Recommender.RecommendGender")
	defer span.End()

	if r.guesser == nil {
		return nil, errors.New(errors.CodeRecommendation, "gender engine has no guesser configured")
	}
	targets, err := r.resolve(ctx, keys)
	if err != nil {
		return nil, err
	}

	guesses := map[string]*genderize.Guess{}
	out := make([]Recommendation, 0, len(targets))
	for _, t := range targets {
		rec := Recommendation{Key: t.key, MK: t.individual.MK}
		first := strings.ToLower(genderize.FirstName(displayName(t.individual)))
		if first == "" {
			out = append(out, rec)
			continue
		}

		guess, ok := guesses[first]
		if !ok {
			guess, err = r.guesser.Guess(ctx, first)
			if err != nil {
				return nil, fmt.Errorf("failed to guess gender for %s: %w", t.individual.MK, err)
			}
			guesses[first] = guess
		}
		if guess != nil && guess.Gender != nil {
			rec.Gender = guess.Gender
			rec.Accuracy = guess.Accuracy
		}
		out = append(out, rec)
	}
	return out, nil
}
