package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/sortinghat/pkg/models"
	"github.com/Ramsey-B/sortinghat/pkg/recommendation"
	"github.com/Ramsey-B/sortinghat/pkg/registry"
	"github.com/Ramsey-B/sortinghat/pkg/unify"
)

// IndividualsArgs selects the individuals affiliate and genderize work on.
// Empty means all of them.
type IndividualsArgs struct {
	UUIDs []string `json:"uuids,omitempty"`
}

type UnifyArgs struct {
	Matcher  string   `json:"matcher,omitempty"`
	Sources  []string `json:"sources,omitempty"`
	Pairwise bool     `json:"pairwise,omitempty"`
	Strict   *bool    `json:"strict,omitempty"`
	Exclude  *bool    `json:"exclude,omitempty"`
}

func decodeArgs(task models.ScheduledTask, v any) error {
	if len(task.Args) == 0 || string(task.Args) == "null" {
		return nil
	}
	if err := json.Unmarshal(task.Args, v); err != nil {
		return fmt.Errorf("invalid args for task %d: %w", task.ID, err)
	}
	return nil
}

// AffiliateHandler enrolls individuals in the organizations their email
// domains point to.
func AffiliateHandler(rec *recommendation.Recommender) Handler {
	return func(ctx context.Context, task models.ScheduledTask) error {
		var args IndividualsArgs
		if err := decodeArgs(task, &args); err != nil {
			return err
		}
		res, err := rec.Affiliate(ctx, args.UUIDs)
		if err != nil {
			return err
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("affiliate finished with %d errors, first: %s", len(res.Errors), res.Errors[0])
		}
		return nil
	}
}

func GenderizeHandler(rec *recommendation.Recommender) Handler {
	return func(ctx context.Context, task models.ScheduledTask) error {
		var args IndividualsArgs
		if err := decodeArgs(task, &args); err != nil {
			return err
		}
		res, err := rec.Genderize(ctx, args.UUIDs)
		if err != nil {
			return err
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("genderize finished with %d errors, first: %s", len(res.Errors), res.Errors[0])
		}
		return nil
	}
}

// UnifyLockKey is held for the whole of a unification run, whether it was
// started by a task or through the API.
const UnifyLockKey = "unify"

// RunUnify runs u while holding UnifyLockKey. It fails with
// redis.ErrLockNotAcquired when another run is in progress.
func RunUnify(ctx context.Context, locker Locker, ttl time.Duration, u *unify.Unifier, opts unify.Options) (unify.Stats, error) {
	var stats unify.Stats
	err := locker.WithLock(ctx, UnifyLockKey, ttl, func(ctx context.Context) error {
		var err error
		stats, err = u.Run(ctx, opts)
		return err
	})
	return stats, err
}

func UnifyHandler(u *unify.Unifier, locker Locker, ttl time.Duration) Handler {
	return func(ctx context.Context, task models.ScheduledTask) error {
		var args UnifyArgs
		if err := decodeArgs(task, &args); err != nil {
			return err
		}
		_, err := RunUnify(ctx, locker, ttl, u, unify.Options{
			Matcher:  args.Matcher,
			Sources:  args.Sources,
			Pairwise: args.Pairwise,
			Strict:   args.Strict,
			Exclude:  args.Exclude,
		})
		return err
	}
}

// RegisterJobs wires the standard job types.
func RegisterJobs(e *Executor, rec *recommendation.Recommender, u *unify.Unifier) {
	e.Handle(registry.JobAffiliate, AffiliateHandler(rec))
	e.Handle(registry.JobGenderize, GenderizeHandler(rec))
	e.Handle(registry.JobUnify, UnifyHandler(u, e.locker, e.config.LockTTL))
}
