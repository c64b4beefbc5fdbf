package emails

import (
	"context"
	"fmt"
	"log/slog"

	mail "github.com/go-mail/mail/v2"
	"github.com/google/uuid"

	"github.com/outbox-sh/outbox/internal/config"
	"github.com/outbox-sh/outbox/pkg/logger"
)

// Sender is the interface for sending emails
type Sender interface {
	Send(ctx context.Context, opts SendOptions) (*SendResult, error)
}

// SendOptions contains options for sending an email
type SendOptions struct {
	To       string
	From     string
	FromName string
	Subject  string
	Body     string
}

// SendResult contains the result of a successful send
type SendResult struct {
	MessageID string
}

// NewSender returns the SMTP sender when email is enabled and configured,
// otherwise the no-op sender. The no-op sender keeps the whole pipeline
// exercisable without a mail server.
func NewSender(cfg *config.Config, log *slog.Logger) Sender {
	if cfg.Email.Enabled && cfg.Email.IsConfigured() {
		return NewSMTPSender(&cfg.Email, log)
	}
	return NewNoopSender(log)
}

// SMTPSender sends emails over SMTP
type SMTPSender struct {
	cfg    *config.EmailConfig
	dialer *mail.Dialer
	log    *slog.Logger
}

// NewSMTPSender creates a new SMTP sender
func NewSMTPSender(cfg *config.EmailConfig, log *slog.Logger) *SMTPSender {
	dialer := mail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	dialer.Timeout = cfg.SendTimeout
	dialer.StartTLSPolicy = mail.OpportunisticStartTLS

	return &SMTPSender{
		cfg:    cfg,
		dialer: dialer,
		log:    log.With(logger.Scope("emails.smtp")),
	}
}

// Send delivers one email over SMTP. A fresh connection is dialed per send;
// at current volumes connection reuse is not worth the bookkeeping.
func (s *SMTPSender) Send(ctx context.Context, opts SendOptions) (*SendResult, error) {
	messageID := uuid.NewString()

	m := mail.NewMessage()
	m.SetAddressHeader("From", opts.From, opts.FromName)
	m.SetHeader("To", opts.To)
	m.SetHeader("Subject", opts.Subject)
	m.SetHeader("Message-Id", fmt.Sprintf("<%s@%s>", messageID, s.cfg.SMTPHost))
	// Bodies may carry markup; plain text renders fine as HTML
	m.SetBody("text/html", opts.Body)

	s.log.Debug("sending email",
		slog.String("to", opts.To),
		slog.String("subject", opts.Subject))

	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Error("failed to send email",
				slog.String("to", opts.To),
				logger.Error(err))
			return nil, fmt.Errorf("smtp send: %w", err)
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	s.log.Info("email sent",
		slog.String("to", opts.To),
		slog.String("message_id", messageID))

	return &SendResult{MessageID: messageID}, nil
}

// NoopSender pretends to send. Used when EMAIL_ENABLED=false so the
// scheduling pipeline runs end to end in development.
type NoopSender struct {
	log *slog.Logger
}

// NewNoopSender creates a new no-op sender
func NewNoopSender(log *slog.Logger) *NoopSender {
	return &NoopSender{
		log: log.With(logger.Scope("emails.noop")),
	}
}

// Send logs the email and returns a synthetic message id
func (s *NoopSender) Send(_ context.Context, opts SendOptions) (*SendResult, error) {
	messageID := "noop-" + uuid.NewString()

	s.log.Info("email send skipped (EMAIL_ENABLED=false)",
		slog.String("to", opts.To),
		slog.String("subject", opts.Subject),
		slog.String("message_id", messageID))

	return &SendResult{MessageID: messageID}, nil
}
