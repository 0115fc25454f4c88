package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/sakif/identity-portal/internal/config"
	"github.com/sakif/identity-portal/internal/lock"
	"github.com/sakif/identity-portal/internal/model"
	"github.com/sakif/identity-portal/internal/mq"
	"github.com/sakif/identity-portal/internal/notify"
	"github.com/sakif/identity-portal/internal/repository"
	"github.com/sakif/identity-portal/internal/repository/postgres"
	sqliteRepo "github.com/sakif/identity-portal/internal/repository/sqlite"
)

// lockTTL bounds how long a crashed instance can hold an email lock.
const lockTTL = 30 * time.Second

// OpenStore opens the database selected by DB_DRIVER. Postgres schema
// migrations are applied first; SQLite migrates itself on open.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (repository.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		if err := postgres.Migrate(cfg.URL); err != nil {
			return nil, err
		}
		db, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		return db, nil

	case config.DriverSQLite:
		if cfg.Path != ":memory:" {
			// Create the data directory on first run (like `mkdir -p`).
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
		db, err := sqliteRepo.New(cfg.Path)
		if err != nil {
			return nil, err
		}
		return db, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// NewLocker returns a Redis-backed locker when REDIS_ADDR is set, so
// several instances serialize on the same email, and an in-process one
// otherwise. The returned close func is never nil.
func NewLocker(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (lock.Locker, func() error, error) {
	if cfg.Addr == "" {
		logger.Debug("using in-process email locks")
		return lock.NewKeyedMutex(), func() error { return nil }, nil
	}

	client, err := lock.NewRedisClient(ctx, cfg.Addr, cfg.Password)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis email locks", slog.String("addr", cfg.Addr))
	return lock.NewRedisLocker(client, lockTTL), client.Close, nil
}

// NewQueue connects to the mail queue. Without RABBITMQ_URL the queue is
// in-process, and only a worker in the same process can drain it.
func NewQueue(cfg config.RabbitMQConfig, logger *slog.Logger) (*mq.MQ, bool, error) {
	if cfg.URL == "" {
		logger.Warn("RABBITMQ_URL not set, mail queue is in-process only")
		return mq.New(mq.NewMemoryBackend(0), cfg.Queue), true, nil
	}

	client, err := mq.NewRabbitMQClient(mq.RabbitMQConfig{
		URL:           cfg.URL,
		PrefetchCount: cfg.Prefetch,
	}, logger)
	if err != nil {
		return nil, false, err
	}
	return mq.New(client, cfg.Queue), false, nil
}

// MailDefaults converts the environment mail settings into the stored
// settings shape.
func MailDefaults(cfg config.MailConfig) model.MailConfig {
	return model.MailConfig{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Protocol:  "smtp",
		Auth:      cfg.Username != "",
		StartTLS:  cfg.StartTLS,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
	}
}

// FederationDefaults converts the environment Keycloak settings.
func FederationDefaults(cfg config.KeycloakConfig) model.FederationConfig {
	return model.FederationConfig{
		Enabled:      cfg.Enabled,
		ServerURL:    cfg.ServerURL,
		Realm:        cfg.Realm,
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	}
}

// newSender picks the verification mail transport. For the queue
// transport it also returns the queue so the server can run an
// in-process worker when the queue is not shared.
func newSender(cfg config.Config, smtp notify.Sender, logger *slog.Logger) (notify.Sender, *mq.MQ, bool, error) {
	switch cfg.Mail.Transport {
	case config.MailTransportLog:
		return notify.NewLogSender(logger), nil, false, nil
	case config.MailTransportQueue:
		queue, local, err := NewQueue(cfg.RabbitMQ, logger)
		if err != nil {
			return nil, nil, false, err
		}
		return notify.NewQueueSender(queue), queue, local, nil
	default:
		return smtp, nil, false, nil
	}
}
