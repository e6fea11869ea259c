package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	shcontext "github.com/Ramsey-B/sortinghat/pkg/context"
	"github.com/Ramsey-B/sortinghat/pkg/scheduler"
	"github.com/Ramsey-B/sortinghat/pkg/unify"
)

func newUnifyCmd() *cobra.Command {
	var (
		opts            unify.Options
		author          string
		strict, exclude bool
	)

	cmd := &cobra.Command{
		Use:   "unify",
		Short: "Merge individuals whose identities match",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, flush, err := setup()
			if err != nil {
				return err
			}
			defer flush()

			if opts.Matcher == "" {
				opts.Matcher = cfg.UnifyMatcher
			}
			if cmd.Flags().Changed("strict") {
				opts.Strict = &strict
			}
			if cmd.Flags().Changed("exclude") {
				opts.Exclude = &exclude
			}

			a := newApp(cfg, logger, appOptions{recovery: true})
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			defer stopWithTimeout(cfg, logger, "app", a.Stop)

			ctx := cmd.Context()
			if author != "" {
				ctx = shcontext.SetUserID(ctx, author)
			}

			stats, err := scheduler.RunUnify(ctx, a.locker, cfg.RedisLockTTL, a.unifier, opts)
			if err != nil {
				return err
			}
			return printJSON(stats)
		},
	}
	cmd.Flags().StringVar(&opts.Matcher, "matcher", "", "Matcher to use (default, email, email-name, email-name-lax)")
	cmd.Flags().StringSliceVar(&opts.Sources, "source", nil, "Only consider identities from these sources")
	cmd.Flags().BoolVar(&opts.Pairwise, "pairwise", false, "Compare identities pairwise instead of by index")
	cmd.Flags().BoolVar(&opts.Recovery, "recovery", false, "Resume a previously interrupted run")
	cmd.Flags().BoolVar(&strict, "strict", true, "Ignore malformed emails and single word names (defaults to the matcher's mode)")
	cmd.Flags().BoolVar(&exclude, "exclude", true, "Skip values listed as exclusion terms")
	cmd.Flags().StringVar(&author, "author", "", "Recorded as the author of the merge transactions")
	return cmd
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
