package main

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/identity-portal/internal/auth"
	"github.com/sakif/identity-portal/internal/config"
	"github.com/sakif/identity-portal/internal/repository/postgres"
	"github.com/sakif/identity-portal/internal/server"
	"github.com/sakif/identity-portal/internal/service"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all up schema migrations (postgres)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Database.Driver != config.DriverPostgres {
				return errors.New("migrate up only applies to DB_DRIVER=postgres; sqlite migrates on open")
			}
			if err := postgres.Migrate(cfg.Database.URL); err != nil {
				return err
			}
			logger.Info("schema migrations applied")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "credentials",
		Short: "Hash stored plaintext passwords",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := server.OpenStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			migrator := service.NewCredentialMigrator(store, auth.NewPasswordHasher(cfg.BcryptCost), logger)
			report, err := migrator.Run(cmd.Context())
			if err != nil {
				return err
			}
			if report.Failed > 0 {
				logger.Warn("some credentials could not be migrated", slog.Int("failed", report.Failed))
			}
			return nil
		},
	})

	return cmd
}
