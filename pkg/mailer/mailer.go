package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kerane/projectdesk-api/pkg/config"
)

// Message is one outbound email.
type Message struct {
	To       string
	Subject  string
	HTML     string
	Metadata map[string]interface{}
}

// Mailer delivers messages. Implementations must honour the context deadline.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends mail through a plain SMTP relay. Every send is bounded by
// the configured timeout so a slow relay cannot stall the triggering request.
type SMTPMailer struct {
	addr    string
	from    string
	auth    smtp.Auth
	timeout time.Duration
	logger  *zap.Logger
}

// New returns an SMTP mailer, or a logging mailer when no host is configured.
func New(cfg config.SMTPConfig, logger *zap.Logger) Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		logger.Info("smtp host not configured, using logging mailer")
		return &LogMailer{from: cfg.From, logger: logger}
	}

	var auth smtp.Auth
	if cfg.Username != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SMTPMailer{
		addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		from:    cfg.From,
		auth:    auth,
		timeout: timeout,
		logger:  logger,
	}
}

// Send delivers a single message. smtp.SendMail has no context support, so the
// call runs in a goroutine and the caller is released once the deadline hits.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	raw := buildRawMessage(m.from, msg)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(m.addr, m.auth, m.from, []string{msg.To}, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp send to %s: %w", msg.To, err)
		}
		m.logger.Debug("email sent", zap.String("to", msg.To), zap.String("subject", msg.Subject))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp send to %s: %w", msg.To, ctx.Err())
	}
}

func buildRawMessage(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.HTML)
	return []byte(b.String())
}

// LogMailer records messages in the log instead of delivering them. Used in
// development and as a safe default when SMTP is not configured.
type LogMailer struct {
	from   string
	logger *zap.Logger
}

// Send logs the message details.
func (m *LogMailer) Send(_ context.Context, msg Message) error {
	m.logger.Info("email (logged, not sent)",
		zap.String("from", m.from),
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Any("metadata", msg.Metadata),
	)
	return nil
}
