// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mail transports selectable with MAIL_TRANSPORT.
const (
	MailTransportSMTP  = "smtp"
	MailTransportQueue = "queue"
	MailTransportLog   = "log"
)

// Database drivers selectable with DB_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Port          int
	PublicBaseURL string

	Database DatabaseConfig
	Session  SessionConfig
	Keycloak KeycloakConfig
	Mail     MailConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	Log      LogConfig

	BcryptCost    int
	StoreTimeout  time.Duration
	NotifyTimeout time.Duration

	// SecretsKey is a hex-encoded 32-byte key used to encrypt the stored
	// client secret. Empty disables encryption at rest.
	SecretsKey string

	// AdminEmails may read and change the settings API. Empty locks the
	// settings API for everyone.
	AdminEmails []string
}

type DatabaseConfig struct {
	Driver string
	Path   string // sqlite file
	URL    string // postgres DSN
}

type SessionConfig struct {
	JWTSecret string
	TTL       time.Duration
}

// KeycloakConfig seeds the federation settings until an administrator
// saves a configuration through the settings API.
type KeycloakConfig struct {
	Enabled      bool
	ServerURL    string
	Realm        string
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type MailConfig struct {
	Transport string
	Host      string
	Port      int
	Username  string
	Password  string
	StartTLS  bool
	FromEmail string
	FromName  string
}

// RabbitMQConfig is used by MAIL_TRANSPORT=queue. An empty URL selects
// an in-process queue drained by the server itself.
type RabbitMQConfig struct {
	URL      string
	Queue    string
	Prefetch int
}

type RedisConfig struct {
	Addr     string
	Password string
}

type LogConfig struct {
	Level  string
	Format string
}

// Load reads the configuration. With ENV=dev a local .env file is loaded
// first; variables already set in the environment win.
func Load() Config {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	port := getEnvInt("PORT", 8080)

	return Config{
		Port:          port,
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
			Path:   getEnv("DB_PATH", "data/identity.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		Session: SessionConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TTL:       getEnvDuration("SESSION_TTL", 8*time.Hour),
		},
		Keycloak: KeycloakConfig{
			Enabled:      getEnvBool("KEYCLOAK_ENABLED", true),
			ServerURL:    getEnv("KEYCLOAK_SERVER_URL", "http://localhost:8180"),
			Realm:        getEnv("KEYCLOAK_REALM", "webportal"),
			ClientID:     getEnv("KEYCLOAK_CLIENT_ID", "webportal-client"),
			ClientSecret: getEnv("KEYCLOAK_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("SSO_REDIRECT_URL", fmt.Sprintf("http://localhost:%d/api/auth/sso/callback", port)),
		},
		Mail: MailConfig{
			Transport: strings.ToLower(getEnv("MAIL_TRANSPORT", MailTransportSMTP)),
			Host:      getEnv("SMTP_HOST", "localhost"),
			Port:      getEnvInt("SMTP_PORT", 587),
			Username:  getEnv("SMTP_USERNAME", ""),
			Password:  getEnv("SMTP_PASSWORD", ""),
			StartTLS:  getEnvBool("SMTP_STARTTLS", true),
			FromEmail: getEnv("MAIL_FROM_EMAIL", "noreply@webportal.local"),
			FromName:  getEnv("MAIL_FROM_NAME", "Web Portal"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Queue:    getEnv("MAIL_QUEUE", "identity.mail"),
			Prefetch: getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
		BcryptCost:    getEnvInt("BCRYPT_COST", 12),
		StoreTimeout:  getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		NotifyTimeout: getEnvDuration("NOTIFY_TIMEOUT", 10*time.Second),
		SecretsKey:    getEnv("SECRETS_KEY", ""),
		AdminEmails:   getEnvList("ADMIN_EMAILS"),
	}
}

// Validate reports settings that would stop the server from starting.
func (c Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DB_PATH is required for sqlite"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver))
	}
	if len(c.Session.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	switch c.Mail.Transport {
	case MailTransportSMTP, MailTransportQueue, MailTransportLog:
	default:
		errs = append(errs, fmt.Errorf("unknown MAIL_TRANSPORT %q", c.Mail.Transport))
	}
	return errors.Join(errs...)
}

// Logger builds the process logger from LOG_LEVEL and LOG_FORMAT.
func (c Config) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Log.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, lowercasing and dropping
// blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.Atoi(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := strconv.ParseBool(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		if value, err := time.ParseDuration(strings.TrimSpace(valueStr)); err == nil {
			return value
		}
	}
	return defaultValue
}
