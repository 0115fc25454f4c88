package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/identity-portal/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "identity-portal",
		Short:         "User identity service with local signup and Keycloak SSO",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newMailWorkerCmd())
	return root
}

// loadConfig reads and validates the environment and builds the logger.
func loadConfig() (config.Config, *slog.Logger, error) {
	cfg := config.Load()
	logger := cfg.Logger(os.Stdout)
	if err := cfg.Validate(); err != nil {
		return cfg, logger, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, logger, nil
}
