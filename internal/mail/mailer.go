// Package mail sends transactional mail for the auth flows.
package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"
)

// Mailer delivers a plain-text message to a single recipient.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Log is a Mailer that only logs the message. Used when SMTP is not
// configured, and in tests.
type Log struct {
	L *slog.Logger
}

// NewLog creates a logging mailer.
func NewLog(l *slog.Logger) *Log {
	return &Log{L: l}
}

// Send logs the message instead of delivering it.
func (m *Log) Send(ctx context.Context, to, subject, body string) error {
	m.L.InfoContext(ctx, "mail (not sent, smtp unconfigured)",
		"to", to, "subject", subject, "body", body)
	return nil
}

// SMTP is a Mailer backed by a plain SMTP relay.
type SMTP struct {
	Addr     string // host:port
	From     string
	Username string
	Password string
}

// NewSMTP creates an SMTP mailer. Username may be empty for relays that do
// not require authentication.
func NewSMTP(addr, from, username, password string) *SMTP {
	return &SMTP{Addr: addr, From: from, Username: username, Password: password}
}

// Send delivers the message via the configured relay. net/smtp does not take
// a context; cancellation is bounded by the dialer's defaults.
func (m *SMTP) Send(ctx context.Context, to, subject, body string) error {
	var auth smtp.Auth
	if m.Username != "" {
		host := m.Addr
		if i := strings.IndexByte(host, ':'); i >= 0 {
			host = host[:i]
		}
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}

	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s\r\n",
		m.From, to, subject, body)

	if err := smtp.SendMail(m.Addr, auth, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
