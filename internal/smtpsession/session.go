// Package smtpsession owns one SMTP submission lifecycle: connect (implicit
// TLS or STARTTLS upgrade), optional authentication, a single envelope
// transaction, and an unconditional close.
package smtpsession

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"log/slog"

	"bridgemail.io/mailbridge/internal/config"
	"bridgemail.io/mailbridge/pkg/base"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Client is the subset of smtp.Client the session drives. Abstracting it
// keeps the submit sequencing testable without a live server.
type Client interface {
	Auth(a sasl.Client) error
	SendMail(from string, to []string, r io.Reader) error
	Quit() error
	Close() error
}

// DialFunc opens a connection per the configured transport mode.
type DialFunc func(cfg config.Mail) (Client, error)

// Dial is the production DialFunc. With SMTPUseStartTLS set it dials in
// plaintext, exchanges greetings, upgrades via STARTTLS and greets again;
// otherwise it dials implicit TLS directly.
func Dial(cfg config.Mail) (Client, error) {
	tlsConfig := &tls.Config{ServerName: cfg.SMTPHost}
	if cfg.SMTPUseStartTLS {
		return smtp.DialStartTLS(cfg.SMTPAddr(), tlsConfig)
	}
	return smtp.DialTLS(cfg.SMTPAddr(), tlsConfig)
}

// Session performs a single submission. A Session is cheap; construct one
// per send call.
type Session struct {
	cfg    config.Mail
	dial   DialFunc
	logger *slog.Logger
}

func New(cfg config.Mail, logger *slog.Logger, dial DialFunc) *Session {
	if dial == nil {
		dial = Dial
	}
	return &Session{cfg: cfg, dial: dial, logger: logger}
}

// Submit connects, authenticates when credentials are configured, and
// submits raw to every envelope recipient in one transaction. The outcome
// is decided solely by the send step; close failures are logged and
// swallowed. There is no partial success: the server accepts the message
// for all recipients or the call fails.
func (s *Session) Submit(ctx context.Context, from string, recipients []string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	client, err := s.dial(s.cfg)
	if err != nil {
		return base.Transport("smtp connect", err)
	}
	defer s.close(client)

	if s.cfg.HasSMTPCredentials() {
		auth := sasl.NewPlainClient("", s.cfg.SMTPUser, s.cfg.SMTPPassword)
		if err := client.Auth(auth); err != nil {
			return base.Transport("smtp auth", err)
		}
	}

	if err := client.SendMail(from, recipients, bytes.NewReader(raw)); err != nil {
		return base.Transport("smtp send", err)
	}

	s.logger.Info("message submitted",
		slog.String("from", from),
		slog.Int("recipients", len(recipients)))
	return nil
}

// close quits gracefully and falls back to a forced close when the graceful
// path itself fails. Runs on every exit path of Submit.
func (s *Session) close(client Client) {
	if err := client.Quit(); err != nil {
		s.logger.Warn("smtp quit failed, forcing close", slog.Any("error", err))
		if cerr := client.Close(); cerr != nil {
			s.logger.Warn("smtp close failed", slog.Any("error", cerr))
		}
	}
}
