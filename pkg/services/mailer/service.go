// Package mailer provides the mail service façade. It holds the validated
// transport configuration and exposes send and fetch operations, each of
// which owns exactly one ephemeral transport session.
package mailer

import (
	"context"
	"log/slog"
	"strings"

	"bridgemail.io/mailbridge/internal/config"
	"bridgemail.io/mailbridge/internal/imapsession"
	"bridgemail.io/mailbridge/internal/pop3session"
	"bridgemail.io/mailbridge/internal/smtpsession"
	"bridgemail.io/mailbridge/pkg/base"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("bridgemail.io/mailbridge/pkg/services/mailer")

// Service defines the caller-facing mail operations.
type Service interface {
	SendEmail(ctx context.Context, msg base.OutboundMessage) error
	SendEmailAsync(ctx context.Context, msg base.OutboundMessage) <-chan error
	FetchUnseenIMAP(ctx context.Context, folder string, limit int, markSeen bool) (*base.FetchResult, error)
	FetchPOP3(ctx context.Context, limit int) (*base.FetchResult, error)
}

// ServiceImpl implements Service. The configuration is immutable and safe
// to share; every call constructs its own transport session, so a single
// ServiceImpl may be used concurrently without locking.
type ServiceImpl struct {
	cfg    config.Mail
	logger *slog.Logger

	smtpDial smtpsession.DialFunc
	imapDial imapsession.DialFunc
	pop3Dial pop3session.DialFunc

	sendCounter  metric.Int64Counter
	fetchCounter metric.Int64Counter
}

type ServiceOption func(*ServiceImpl) error

func NewService(opts ...ServiceOption) (*ServiceImpl, error) {
	var svc ServiceImpl
	for _, opt := range opts {
		if err := opt(&svc); err != nil {
			return nil, err
		}
	}

	if svc.logger == nil {
		return nil, errors.New("requires logger")
	}

	meter := otel.Meter("bridgemail.io/mailbridge/pkg/services/mailer")
	var err error
	if svc.sendCounter, err = meter.Int64Counter("mailbridge.send.total"); err != nil {
		return nil, err
	}
	if svc.fetchCounter, err = meter.Int64Counter("mailbridge.fetch.total"); err != nil {
		return nil, err
	}

	return &svc, nil
}

func WithConfig(cfg config.Mail) ServiceOption {
	return func(svc *ServiceImpl) error {
		svc.cfg = cfg
		return nil
	}
}

func WithLogger(logger *slog.Logger) ServiceOption {
	return func(svc *ServiceImpl) error {
		svc.logger = logger
		return nil
	}
}

// WithSMTPDialer overrides the SMTP dialer; used by tests.
func WithSMTPDialer(dial smtpsession.DialFunc) ServiceOption {
	return func(svc *ServiceImpl) error {
		svc.smtpDial = dial
		return nil
	}
}

// WithIMAPDialer overrides the IMAP dialer; used by tests.
func WithIMAPDialer(dial imapsession.DialFunc) ServiceOption {
	return func(svc *ServiceImpl) error {
		svc.imapDial = dial
		return nil
	}
}

// WithPOP3Dialer overrides the POP3 dialer; used by tests.
func WithPOP3Dialer(dial pop3session.DialFunc) ServiceOption {
	return func(svc *ServiceImpl) error {
		svc.pop3Dial = dial
		return nil
	}
}

// SendEmail validates the message, resolves the from address (explicit,
// then configured default, then SMTP user), composes the wire form and
// submits it over a fresh SMTP session. Configuration problems surface
// before any network I/O.
func (s *ServiceImpl) SendEmail(ctx context.Context, msg base.OutboundMessage) error {
	ctx, span := tracer.Start(ctx, "SendEmail")
	defer span.End()

	from := s.resolveFrom(msg.From)
	if from == "" {
		return base.Configf("no from address: explicit, %s and %s are all empty", "SMTP_FROM", "SMTP_USER")
	}
	if len(msg.To) == 0 {
		return base.Configf("no recipients")
	}
	if !msg.HasContent() {
		return base.Configf("message has neither plain nor html body")
	}
	msg.From = from

	raw, err := smtpsession.Compose(msg)
	if err != nil {
		return errors.Wrap(err, "composing message")
	}

	session := smtpsession.New(s.cfg, s.logger, s.smtpDial)
	err = session.Submit(ctx, from, msg.Recipients(), raw)
	s.sendCounter.Add(ctx, 1, metric.WithAttributes(attribute.Bool("ok", err == nil)))
	if err != nil {
		s.logger.ErrorContext(ctx, "send failed", slog.Any("error", err))
		return err
	}
	return nil
}

// SendEmailAsync runs SendEmail on a background goroutine and delivers the
// identical result on the returned channel. It adds no cancellation: an
// abandoned receive does not interrupt the underlying protocol session.
func (s *ServiceImpl) SendEmailAsync(ctx context.Context, msg base.OutboundMessage) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- s.SendEmail(ctx, msg)
	}()
	return done
}

// FetchUnseenIMAP returns up to limit unseen messages from folder, newest
// numeric id first. Requires a configured IMAP host; fails fast without
// one. The SMTP credential pair is reused for the IMAP login when set.
func (s *ServiceImpl) FetchUnseenIMAP(ctx context.Context, folder string, limit int, markSeen bool) (*base.FetchResult, error) {
	ctx, span := tracer.Start(ctx, "FetchUnseenIMAP")
	defer span.End()

	if !s.cfg.HasIMAP() {
		return nil, base.Configf("IMAP host not configured")
	}

	session := &imapsession.Session{
		Addr:     s.cfg.IMAPAddr(),
		SSL:      s.cfg.IMAPSSL,
		Username: s.cfg.SMTPUser,
		Password: s.cfg.SMTPPassword,
		DialFn:   s.imapDial,
		Logger:   s.logger,
	}

	result, err := session.FetchUnseen(ctx, imapsession.FetchOptions{
		Folder:   folder,
		Limit:    limit,
		MarkSeen: markSeen,
	})
	s.fetchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", "imap"),
		attribute.Bool("ok", err == nil)))
	if err != nil {
		s.logger.ErrorContext(ctx, "imap fetch failed", slog.Any("error", err))
		return nil, err
	}

	s.logSoft(ctx, result.Soft)
	return result, nil
}

// FetchPOP3 returns up to limit messages from the configured POP3 mailbox,
// newest-numbered first. Requires a configured POP3 host.
func (s *ServiceImpl) FetchPOP3(ctx context.Context, limit int) (*base.FetchResult, error) {
	ctx, span := tracer.Start(ctx, "FetchPOP3")
	defer span.End()

	if !s.cfg.HasPOP3() {
		return nil, base.Configf("POP3 host not configured")
	}

	session := &pop3session.Session{
		Host:     s.cfg.POP3Host,
		Port:     s.cfg.POP3Port,
		SSL:      s.cfg.POP3SSL,
		Username: s.cfg.SMTPUser,
		Password: s.cfg.SMTPPassword,
		DialFn:   s.pop3Dial,
		Logger:   s.logger,
	}

	result, err := session.FetchLatest(ctx, limit)
	s.fetchCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("source", "pop3"),
		attribute.Bool("ok", err == nil)))
	if err != nil {
		s.logger.ErrorContext(ctx, "pop3 fetch failed", slog.Any("error", err))
		return nil, err
	}

	s.logSoft(ctx, result.Soft)
	return result, nil
}

func (s *ServiceImpl) resolveFrom(explicit string) string {
	for _, candidate := range []string{explicit, s.cfg.DefaultFrom, s.cfg.SMTPUser} {
		if strings.TrimSpace(candidate) != "" {
			return strings.TrimSpace(candidate)
		}
	}
	return ""
}

func (s *ServiceImpl) logSoft(ctx context.Context, soft []base.SoftFailure) {
	for _, f := range soft {
		s.logger.WarnContext(ctx, "non-fatal fetch failure",
			slog.String("op", f.Op),
			slog.Any("error", f.Err))
	}
}
