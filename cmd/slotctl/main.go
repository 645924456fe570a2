// Command slotctl administers the clinic scheduler database: migrations,
// clinic seeding and read-only inspection of slots and notifications.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/zatekoja/clinicscheduler/internal/adapters/database"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/clinicscheduler/internal/infrastructure/observability"
	"github.com/zatekoja/clinicscheduler/pkg/config"
)

// app is built once per invocation by the root command
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
}

func (a *app) connect(ctx context.Context) (*postgres.Client, error) {
	return postgres.NewClient(ctx, &a.cfg.Database, a.logger)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "slotctl",
		Short: "Clinic scheduler administration",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = observability.InitLogger("slotctl", cfg.Server.Env, cfg.Log.Level)
			return nil
		},
		SilenceUsage: true,
	}

	rootCmd.AddCommand(migrateCmd(a))
	rootCmd.AddCommand(seedCmd(a))
	rootCmd.AddCommand(slotsCmd(a))
	rootCmd.AddCommand(notificationsCmd(a))
	return rootCmd
}

func migrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, err := a.connect(ctx)
			if err != nil {
				return err
			}
			defer client.Close()

			applied, err := database.Migrate(ctx, client, a.logger)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "database is up to date")
				return nil
			}
			for _, v := range applied {
				fmt.Fprintf(cmd.OutOrStdout(), "applied %s\n", v)
			}
			return nil
		},
	}
}
