package recommendation

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// Result is what an apply run changed. Failures on one individual do not
// stop the others; they are reported in Errors.
type Result struct {
	Results []Recommendation `json:"results"`
	Errors  []string         `json:"errors,omitempty"`
}

// Affiliate enrolls each individual in its recommended organizations for
// the full period and then consolidates those enrollments.
func (r *Recommender) Affiliate(ctx context.Context, keys []string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Recommender.Affiliate")
	defer span.End()

	recs, err := r.Recommend(ctx, EngineAffiliation, Request{Keys: keys})
	if err != nil {
		return nil, err
	}

	res := &Result{Results: []Recommendation{}}
	for _, rec := range recs {
		var enrolled []string
		for _, org := range rec.Organizations {
			ref := models.GroupRef{Name: org}
			_, err := r.registry.AddEnrollment(ctx, rec.MK, ref, nil, nil, registry.EnrollOptions{})
			if err != nil && !errors.Is(err, errors.CodeAlreadyExists) {
				res.Errors = append(res.Errors, r.applyError(ctx, "affiliate", rec.MK, err))
				continue
			}
			if _, err := r.registry.MergeEnrollments(ctx, rec.MK, ref); err != nil {
				res.Errors = append(res.Errors, r.applyError(ctx, "affiliate", rec.MK, err))
				continue
			}
			enrolled = append(enrolled, org)
		}
		if len(enrolled) > 0 {
			res.Results = append(res.Results, Recommendation{Key: rec.Key, MK: rec.MK, Organizations: enrolled})
		}
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"affiliated": len(res.Results),
		"errors":     len(res.Errors),
	}).Info("Affiliation finished")
	return res, nil
}

// Genderize writes the guessed gender to every profile that has none.
func (r *Recommender) Genderize(ctx context.Context, keys []string) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "recommendation.Recommender.Genderize")
	defer span.End()

	targets, err := r.resolve(ctx, keys)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, t := range targets {
		if t.individual.Profile == nil || t.individual.Profile.Gender == nil {
			pending = append(pending, t.individual.MK)
		}
	}

	res := &Result{Results: []Recommendation{}}
	if len(pending) == 0 {
		return res, nil
	}

	recs, err := r.Recommend(ctx, EngineGender, Request{Keys: pending})
	if err != nil {
		return nil, err
	}
	for _, rec := range recs {
		if rec.Gender == nil {
			continue
		}
		update := models.ProfileUpdate{Gender: rec.Gender, GenderAcc: rec.Accuracy}
		if _, err := r.registry.UpdateProfile(ctx, rec.MK, update); err != nil {
			res.Errors = append(res.Errors, r.applyError(ctx, "genderize", rec.MK, err))
			continue
		}
		res.Results = append(res.Results, rec)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"genderized": len(res.Results),
		"errors":     len(res.Errors),
	}).Info("Genderize finished")
	return res, nil
}

func (r *Recommender) applyError(ctx context.Context, job, mk string, err error) string {
	r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"job": job,
		"mk":  mk,
	}).Warn("Failed to apply recommendation")
	return fmt.Sprintf("%s: %s", mk, err.Error())
}
