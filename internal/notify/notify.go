// Package notify delivers outbound email. The identity service only sees
// the Sender interface; SMTP delivery, queue hand-off, and log-only
// output are interchangeable behind it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Message is one plain-text email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Sender delivers a message. Implementations must respect ctx.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const verificationSubject = "Verify Your Email - Web Portal"

// VerificationLink builds the link embedded in the verification email.
func VerificationLink(baseURL, token string) string {
	return strings.TrimRight(baseURL, "/") + "/verify?token=" + url.QueryEscape(token)
}

// VerificationEmail renders the message sent after signup.
func VerificationEmail(to, firstName, link, fromName string) Message {
	body := fmt.Sprintf("Hello %s,\n\n"+
		"Thank you for signing up for Web Portal!\n\n"+
		"Please click the link below to verify your email address:\n"+
		"%s\n\n"+
		"This link will expire in 24 hours.\n\n"+
		"If you didn't create an account, please ignore this email.\n\n"+
		"Best regards,\n"+
		"%s",
		firstName, link, fromName)

	return Message{To: to, Subject: verificationSubject, Body: body}
}

// LogSender writes messages to the logger instead of delivering them.
// Useful in development where no SMTP server is available.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("email (log transport)",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
