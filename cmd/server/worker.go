package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sakif/identity-portal/internal/notify"
	"github.com/sakif/identity-portal/internal/server"
	"github.com/sakif/identity-portal/internal/service"
	"github.com/sakif/identity-portal/internal/vault"
)

func newMailWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mail-worker",
		Short: "Deliver queued verification mail over SMTP",
		Long: `Consume the RabbitMQ mail queue and deliver each message over SMTP.

SMTP settings are read from the store on every message, so changes saved
through the settings API apply without a restart.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.RabbitMQ.URL == "" {
				return errors.New("mail-worker needs RABBITMQ_URL")
			}

			store, err := server.OpenStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer store.Close()

			sealer, err := vault.ParseKey(cfg.SecretsKey)
			if err != nil {
				return fmt.Errorf("SECRETS_KEY: %w", err)
			}

			queue, _, err := server.NewQueue(cfg.RabbitMQ, logger)
			if err != nil {
				return err
			}
			defer queue.Close()

			settings := service.NewMailSettings(store, server.MailDefaults(cfg.Mail), sealer, logger)
			worker := notify.NewWorker(queue, notify.NewSMTPSender(settings), logger)

			if err := worker.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("mail worker stopped")
			return nil
		},
	}
}
