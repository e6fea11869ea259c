package main

import (
	"github.com/spf13/cobra"

	shcontext "github.com/Ramsey-B/sortinghat/pkg/context"
)

func newAffiliateCmd() *cobra.Command {
	var (
		keys      []string
		author    string
		genderize bool
	)

	cmd := &cobra.Command{
		Use:   "affiliate",
		Short: "Enroll individuals in the organizations of their email domains",
		Long:  "Enroll individuals in the organizations of their email domains. Without --uuid every individual is processed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, flush, err := setup()
			if err != nil {
				return err
			}
			defer flush()

			a := newApp(cfg, logger, appOptions{})
			if err := a.Start(cmd.Context()); err != nil {
				return err
			}
			defer stopWithTimeout(cfg, logger, "app", a.Stop)

			ctx := cmd.Context()
			if author != "" {
				ctx = shcontext.SetUserID(ctx, author)
			}

			apply := a.recommender.Affiliate
			if genderize {
				apply = a.recommender.Genderize
			}
			result, err := apply(ctx, keys)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringSliceVar(&keys, "uuid", nil, "Individual mk or identity uuid to process (repeatable)")
	cmd.Flags().StringVar(&author, "author", "", "Recorded as the author of the enrollments")
	cmd.Flags().BoolVar(&genderize, "genderize", false, "Assign genders instead of affiliations")
	return cmd
}
