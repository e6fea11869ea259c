package registry

import (
	"context"

	"github.com/Ramsey-B/sortinghat/pkg/auditlog"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// AddExclusion stops term from producing matches.
func (s *Service) AddExclusion(ctx context.Context, term string) (*models.MatchingExclusion, error) {
	if err := requireString("term", term); err != nil {
		return nil, err
	}

	var out *models.MatchingExclusion
	err := s.run(ctx, "add_exclusion", func(ctx context.Context, trxl *auditlog.Log) error {
		e := &models.MatchingExclusion{Term: term, CreatedAt: s.now()}
		if err := s.store.Exclusions().Create(ctx, e); err != nil {
			return err
		}
		out = e
		return trxl.Append(ctx, models.OperationAdd, EntityExclusion, term, map[string]any{"term": term})
	})
	return out, err
}

func (s *Service) DeleteExclusion(ctx context.Context, term string) (*models.MatchingExclusion, error) {
	if err := requireString("term", term); err != nil {
		return nil, err
	}

	var out *models.MatchingExclusion
	err := s.run(ctx, "delete_exclusion", func(ctx context.Context, trxl *auditlog.Log) error {
		e, err := s.store.Exclusions().Get(ctx, term)
		if err != nil {
			return err
		}
		if err := s.store.Exclusions().Delete(ctx, term); err != nil {
			return err
		}
		out = e
		return trxl.Append(ctx, models.OperationDelete, EntityExclusion, term, map[string]any{"term": term})
	})
	return out, err
}

func (s *Service) ListExclusions(ctx context.Context) ([]models.MatchingExclusion, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.Service.ListExclusions")
	defer span.End()
	return s.store.Exclusions().List(ctx)
}

// ExclusionTerms returns the exclusion set keyed by term.
func (s *Service) ExclusionTerms(ctx context.Context) (map[string]bool, error) {
	exclusions, err := s.ListExclusions(ctx)
	if err != nil {
		return nil, err
	}
	terms := make(map[string]bool, len(exclusions))
	for _, e := range exclusions {
		terms[e.Term] = true
	}
	return terms, nil
}

func (s *Service) FindCountry(ctx context.Context, code string) (*models.Country, error) {
	if err := requireString("code", code); err != nil {
		return nil, err
	}
	return s.store.Countries().Get(ctx, code)
}

func (s *Service) ListCountries(ctx context.Context) ([]models.Country, error) {
	return s.store.Countries().List(ctx)
}
