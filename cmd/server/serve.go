package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/sakif/identity-portal/internal/server"
	"github.com/sakif/identity-portal/internal/service"
)

func newServeCmd() *cobra.Command {
	var skipMigration bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API.

Before the listener opens, any stored plaintext passwords are hashed so
that no login can observe a half-migrated credential.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			srv, err := server.New(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}

			if !skipMigration {
				migrator := service.NewCredentialMigrator(srv.Store(), srv.Hasher(), logger)
				if _, err := migrator.Run(cmd.Context()); err != nil {
					srv.Close()
					return fmt.Errorf("credential migration: %w", err)
				}
			}

			return srv.Start(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&skipMigration, "skip-credential-migration", false,
		"do not scan for plaintext passwords before serving")
	return cmd
}
