package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/sakif/identity-portal/internal/model"
)

// SettingsSource yields the SMTP settings in effect. Settings are resolved
// on every send so changes saved through the settings API apply at once.
type SettingsSource interface {
	ResolveMail(ctx context.Context) (model.MailConfig, error)
}

// StaticSettings is a SettingsSource that always returns the same config.
type StaticSettings model.MailConfig

func (s StaticSettings) ResolveMail(context.Context) (model.MailConfig, error) {
	return model.MailConfig(s), nil
}

// SMTPSender delivers mail through an SMTP relay using go-mail.
type SMTPSender struct {
	settings SettingsSource
}

func NewSMTPSender(settings SettingsSource) *SMTPSender {
	return &SMTPSender{settings: settings}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	cfg, err := s.settings.ResolveMail(ctx)
	if err != nil {
		return fmt.Errorf("notify: resolving mail settings: %w", err)
	}

	m, err := buildMessage(cfg, msg)
	if err != nil {
		return err
	}

	client, err := newClient(cfg)
	if err != nil {
		return err
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("notify: sending to %s via %s:%d: %w", msg.To, cfg.Host, cfg.Port, err)
	}
	return nil
}

func buildMessage(cfg model.MailConfig, msg Message) (*mail.Msg, error) {
	if cfg.FromEmail == "" {
		return nil, errors.New("notify: sender address is not configured")
	}

	m := mail.NewMsg()
	if cfg.FromName != "" {
		if err := m.FromFormat(cfg.FromName, cfg.FromEmail); err != nil {
			return nil, fmt.Errorf("notify: invalid sender: %w", err)
		}
	} else if err := m.From(cfg.FromEmail); err != nil {
		return nil, fmt.Errorf("notify: invalid sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("notify: invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

func newClient(cfg model.MailConfig) (*mail.Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("notify: SMTP host is not configured")
	}

	opts := []mail.Option{}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.StartTLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if cfg.Auth || cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("notify: configuring SMTP client: %w", err)
	}
	return client, nil
}
