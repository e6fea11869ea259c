// Package unify merges the individuals whose identities a matcher puts in
// the same equivalence class.
package unify

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
	"github.com/Ramsey-B/sortinghat/pkg/matching"
	"github.com/Ramsey-B/sortinghat/pkg/metrics"
	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/tracing"
)

// Registry is what unification needs from the identity registry.
type Registry interface {
	ListIdentities(ctx context.Context, filter models.IdentityFilter) ([]models.Identity, error)
	ExclusionTerms(ctx context.Context) (map[string]bool, error)
	FindIndividualByUUID(ctx context.Context, uuid string) (*models.Individual, error)
	MergeIndividuals(ctx context.Context, fromMK, toMK string) (*models.Individual, error)
}

type Options struct {
	// Matcher names a registered matcher. Defaults to "default".
	Matcher string
	// Sources restricts the identities considered.
	Sources []string
	// Recovery resumes from an existing journal and flushes the pending
	// classes back to it when a merge fails.
	Recovery bool
	// Pairwise disables the indexed fast path.
	Pairwise bool
	// Strict and Exclude override the matcher's validation mode and
	// whether exclusion terms apply. Nil keeps the matcher's defaults.
	Strict  *bool
	Exclude *bool
	// OnClass is called after every class is handled.
	OnClass func(Stats)
}

// Stats counts classes: ProcessedTotal handled, Matched merged into their
// anchor, Remaining handled without a merge.
type Stats struct {
	ProcessedTotal int `json:"processed_total"`
	Matched        int `json:"matched"`
	Remaining      int `json:"remaining"`
}

type Unifier struct {
	registry Registry
	recovery *RecoveryFile
	logger   ectologger.Logger
}

// NewUnifier builds a driver. recovery may be nil, in which case nothing is
// journaled.
func NewUnifier(registry Registry, recovery *RecoveryFile, logger ectologger.Logger) *Unifier {
	return &Unifier{
		registry: registry,
		recovery: recovery,
		logger:   logger,
	}
}

// Run computes or reloads the pending classes and merges each one into its
// first identity's individual. When ctx is cancelled the in-flight class is
// finished and the rest are written back to the journal.
func (u *Unifier) Run(ctx context.Context, opts Options) (stats Stats, err error) {
	ctx, span := tracing.StartSpan(ctx, "unify.Unifier.Run")
	defer span.End()

	start := time.Now()
	defer func() { metrics.UnifyDuration.Observe(time.Since(start).Seconds()) }()

	if opts.Matcher == "" {
		opts.Matcher = "default"
	}
	log := u.logger.WithContext(ctx).WithFields(map[string]any{
		"matcher":  opts.Matcher,
		"recovery": opts.Recovery,
	})

	var pending []Class
	if opts.Recovery && u.recovery != nil && u.recovery.Exists() {
		if pending, err = u.recovery.Load(); err != nil {
			log.WithError(err).Error("Failed to load recovery file")
			return stats, err
		}
		log.Infof("Resuming unification with %d pending classes", len(pending))
	} else {
		if pending, err = u.match(ctx, opts); err != nil {
			return stats, err
		}
		if u.recovery != nil {
			if err = u.recovery.Save(pending); err != nil {
				log.WithError(err).Error("Failed to write recovery file")
				return stats, err
			}
		}
		log.Infof("Unifying %d classes", len(pending))
	}

	for done, class := range Produce(ctx, pending) {
		if ctx.Err() != nil {
			break
		}
		merged, err := u.unifyClass(context.WithoutCancel(ctx), class)
		if err != nil {
			metrics.UnifyClassesTotal.WithLabelValues("failed").Inc()
			log.WithError(err).WithField("anchor", class.Identities[0]).Error("Failed to unify class")
			if opts.Recovery {
				u.flush(ctx, pending[done:])
			}
			return stats, err
		}

		stats.ProcessedTotal++
		if merged {
			stats.Matched++
			metrics.UnifyClassesTotal.WithLabelValues("matched").Inc()
		} else {
			metrics.UnifyClassesTotal.WithLabelValues("unchanged").Inc()
		}
		stats.Remaining = stats.ProcessedTotal - stats.Matched

		if u.recovery != nil {
			if err := u.recovery.MarkProcessed(class); err != nil {
				log.WithError(err).Warn("Failed to journal processed class")
			}
		}
		if opts.OnClass != nil {
			opts.OnClass(stats)
		}
	}

	if ctx.Err() != nil {
		if u.recovery != nil {
			u.flush(ctx, pending[stats.ProcessedTotal:])
		}
		log.WithFields(map[string]any{
			"processed": stats.ProcessedTotal,
			"pending":   len(pending) - stats.ProcessedTotal,
		}).Warn("Unification cancelled")
		return stats, ctx.Err()
	}

	if u.recovery != nil {
		if err := u.recovery.Delete(); err != nil {
			log.WithError(err).Warn("Failed to delete recovery file")
		}
	}
	log.WithFields(map[string]any{
		"processed_total": stats.ProcessedTotal,
		"matched":         stats.Matched,
	}).Info("Unification finished")
	return stats, nil
}

// match returns the classes of at least two identities among the filtered
// identity set.
func (u *Unifier) match(ctx context.Context, opts Options) ([]Class, error) {
	exclusions, err := u.registry.ExclusionTerms(ctx)
	if err != nil {
		return nil, err
	}
	matcher, err := matching.New(opts.Matcher, matching.Options{
		Exclusions: exclusions,
		Strict:     opts.Strict,
		Exclude:    opts.Exclude,
	})
	if err != nil {
		return nil, err
	}
	identities, err := u.registry.ListIdentities(ctx, models.IdentityFilter{Sources: opts.Sources})
	if err != nil {
		return nil, err
	}

	var classes [][]models.Identity
	if opts.Pairwise {
		classes = matching.Classes(matcher, identities)
	} else {
		classes = matcher.MatchFast(identities)
	}

	out := make([]Class, 0, len(classes))
	for _, c := range classes {
		if len(c) < 2 {
			continue
		}
		out = append(out, Class{Identities: matching.UUIDs(c)})
	}
	return out, nil
}

// unifyClass merges every individual of class into the individual owning
// its first identity. Locked individuals are left alone.
func (u *Unifier) unifyClass(ctx context.Context, class Class) (bool, error) {
	if len(class.Identities) < 2 {
		return false, nil
	}
	anchor := class.Identities[0]

	merged := false
	for _, uuid := range class.Identities[1:] {
		to, err := u.registry.FindIndividualByUUID(ctx, anchor)
		if err != nil {
			return merged, fmt.Errorf("failed to find anchor %s: %w", anchor, err)
		}
		from, err := u.registry.FindIndividualByUUID(ctx, uuid)
		if err != nil {
			return merged, fmt.Errorf("failed to find identity %s: %w", uuid, err)
		}
		if from.MK == to.MK {
			continue
		}
		if _, err := u.registry.MergeIndividuals(ctx, from.MK, to.MK); err != nil {
			if errors.Is(err, errors.CodeLockedIdentity) {
				u.logger.WithContext(ctx).WithFields(map[string]any{
					"from": from.MK,
					"to":   to.MK,
				}).Debug("Skipping locked individual")
				continue
			}
			return merged, err
		}
		merged = true
	}
	return merged, nil
}

func (u *Unifier) flush(ctx context.Context, remaining []Class) {
	if u.recovery == nil {
		return
	}
	if err := u.recovery.Save(remaining); err != nil {
		u.logger.WithContext(ctx).WithError(err).Error("Failed to flush recovery file")
	}
}

// Produce streams classes in order until ctx is done. Each value carries
// its position in classes.
func Produce(ctx context.Context, classes []Class) iter.Seq2[int, Class] {
	return func(yield func(int, Class) bool) {
		ch := make(chan Class)
		go func() {
			defer close(ch)
			for _, c := range classes {
				select {
				case ch <- c:
				case <-ctx.Done():
					return
				}
			}
		}()

		i := 0
		for c := range ch {
			if !yield(i, c) {
				drain(ch)
				return
			}
			i++
		}
	}
}

func drain(ch <-chan Class) {
	for range ch {
		continue
	}
}
