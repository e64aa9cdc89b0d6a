// Package notify delivers out-of-band messages such as connection request
// emails.
package notify

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"
	"go.uber.org/zap"
)

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailNotifier sends HTML mail over SMTP.
type EmailNotifier struct {
	client *mail.Client
	from   string
	logger *zap.Logger
}

// NewEmailNotifier creates a notifier. Port 465 uses implicit TLS, any other
// port requires STARTTLS.
func NewEmailNotifier(cfg EmailConfig, logger *zap.Logger) (*EmailNotifier, error) {
	opts := []mail.Option{
		mail.WithPort(cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(cfg.Username),
		mail.WithPassword(cfg.Password),
	}
	if cfg.Port == 465 {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	from := cfg.From
	if from == "" {
		from = cfg.Username
	}

	return &EmailNotifier{
		client: client,
		from:   from,
		logger: logger,
	}, nil
}

// Notify sends one message and returns once the server accepted it or ctx
// expired.
func (n *EmailNotifier) Notify(ctx context.Context, address, subject, body string) error {
	msg, err := buildMessage(n.from, address, subject, body)
	if err != nil {
		return err
	}

	if err := n.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	n.logger.Debug("email sent", zap.String("to", address), zap.String("subject", subject))
	return nil
}

func buildMessage(from, to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("invalid sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("invalid recipient address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, body)
	return msg, nil
}

// LogNotifier records that a message would have been sent. Used when SMTP
// is not configured. Bodies carry live accept/reject links, so only the
// recipient, subject and body size are logged.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(ctx context.Context, address, subject, body string) error {
	n.logger.Info("notification (smtp disabled)",
		zap.String("to", address),
		zap.String("subject", subject),
		zap.Int("body_bytes", len(body)),
	)
	return nil
}
