package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/sortinghat/pkg/errors"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sortinghat",
		Short:         "Identity registry: unify, affiliate and audit contributor identities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newUnifyCmd(),
		newAffiliateCmd(),
	)
	return cmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(int(errors.CodeOf(err)))
	}
}
