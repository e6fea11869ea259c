package main

import (
	"github.com/spf13/cobra"
)

func newMigrateCmd() *cobra.Command {
	var (
		version uint
		force   int
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, flush, err := setup()
			if err != nil {
				return err
			}
			defer flush()

			if cmd.Flags().Changed("version") {
				cfg.DatabaseMigrationVersion = version
			}
			if cmd.Flags().Changed("force") {
				cfg.DatabaseMigrationForce = force
			}

			a := newApp(cfg, logger, appOptions{})
			if err := a.openDatabase(cmd.Context()); err != nil {
				return err
			}
			defer a.db.Close()

			if err := a.migrate(); err != nil {
				return err
			}
			logger.Info("Migrations applied")
			return nil
		},
	}
	cmd.Flags().UintVar(&version, "version", 0, "Migrate to this version instead of the latest")
	cmd.Flags().IntVar(&force, "force", 0, "Force the schema version before migrating (clears a dirty state)")
	return cmd
}
