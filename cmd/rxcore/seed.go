package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rxportal/rxcore/internal/auth"
	"github.com/rxportal/rxcore/internal/infrastructure/config"
	"github.com/rxportal/rxcore/internal/infrastructure/logging"
)

func newSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo admin, doctor and patient accounts",
		Long: `Creates admin@test.com, dr@test.com and patient@test.com when the users
table is empty. Runs regardless of RUN_SEED. Never use in production.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			log := logging.New(cfg.Logging, version)

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // process exits next

			n, err := auth.SeedDemo(cmd.Context(), auth.NewUserRepository(db.DB),
				auth.NewPasswordHasher(cfg.Security.Password.BcryptCost), log.Logger)
			if err != nil {
				return fmt.Errorf("seeding demo data: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d accounts created\n", n)
			return nil
		},
	}
}
