package config

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV", "test")

	cfg := Load()

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.Database.Driver != DriverSQLite {
		t.Errorf("Driver = %q, want sqlite", cfg.Database.Driver)
	}
	if !cfg.Keycloak.Enabled || cfg.Keycloak.Realm != "webportal" || cfg.Keycloak.ClientID != "webportal-client" {
		t.Errorf("Keycloak defaults = %+v", cfg.Keycloak)
	}
	if cfg.Keycloak.ServerURL != "http://localhost:8180" {
		t.Errorf("ServerURL = %q", cfg.Keycloak.ServerURL)
	}
	if cfg.StoreTimeout != 5*time.Second || cfg.NotifyTimeout != 10*time.Second {
		t.Errorf("timeouts = %v / %v", cfg.StoreTimeout, cfg.NotifyTimeout)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_DRIVER", "POSTGRES")
	t.Setenv("KEYCLOAK_ENABLED", "false")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("MAIL_TRANSPORT", "queue")

	cfg := Load()

	if cfg.Port != 9090 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.Database.Driver != DriverPostgres {
		t.Errorf("Driver = %q", cfg.Database.Driver)
	}
	if cfg.Keycloak.Enabled {
		t.Error("Keycloak.Enabled should be false")
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("TTL = %v", cfg.Session.TTL)
	}
	if cfg.Mail.Transport != MailTransportQueue {
		t.Errorf("Transport = %q", cfg.Mail.Transport)
	}
	if cfg.PublicBaseURL != "http://localhost:9090" {
		t.Errorf("PublicBaseURL = %q", cfg.PublicBaseURL)
	}
}

func TestLoad_AdminEmails(t *testing.T) {
	t.Setenv("ADMIN_EMAILS", " Admin@X.com, ,ops@x.com ")

	cfg := Load()

	if len(cfg.AdminEmails) != 2 || cfg.AdminEmails[0] != "admin@x.com" || cfg.AdminEmails[1] != "ops@x.com" {
		t.Errorf("AdminEmails = %q", cfg.AdminEmails)
	}

	t.Setenv("ADMIN_EMAILS", "")
	if got := Load().AdminEmails; len(got) != 0 {
		t.Errorf("empty ADMIN_EMAILS = %q, want none", got)
	}
}

func TestLoad_MalformedValuesFallBack(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("STORE_TIMEOUT", "soon")
	t.Setenv("SMTP_STARTTLS", "maybe")

	cfg := Load()

	if cfg.Port != 8080 || cfg.StoreTimeout != 5*time.Second || !cfg.Mail.StartTLS {
		t.Errorf("malformed values should fall back to defaults: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Port:     8080,
			Database: DatabaseConfig{Driver: DriverSQLite, Path: "x.db"},
			Session:  SessionConfig{JWTSecret: "0123456789abcdef"},
			Mail:     MailConfig{Transport: MailTransportLog},
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"short secret", func(c *Config) { c.Session.JWTSecret = "x" }, "JWT_SECRET"},
		{"postgres without url", func(c *Config) { c.Database.Driver = DriverPostgres }, "DATABASE_URL"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"unknown transport", func(c *Config) { c.Mail.Transport = "pigeon" }, "MAIL_TRANSPORT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	cfg := Config{Log: LogConfig{Level: "debug", Format: "json"}}

	cfg.Logger(&buf).Debug("hello")

	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}
