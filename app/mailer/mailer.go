package mailer

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lysyi3m/rss-digest/app/cfg"
	"github.com/lysyi3m/rss-digest/app/digest"
)

type Mailer struct {
	cfg    Config
	dialer Dialer
}

func New(cfg Config, dialer Dialer) *Mailer {
	return &Mailer{cfg: cfg, dialer: dialer}
}

// Deliver sends one digest. Configuration problems are returned before any
// connection is made. In individual mode a failure for one recipient does not
// stop the others; in grouped mode the send error is returned.
func (m *Mailer) Deliver(ctx context.Context, req Request) (Report, error) {
	recipients := NormalizeRecipients(req.Recipients...)
	if len(recipients) == 0 {
		return Report{}, ErrNoRecipients
	}

	from := strings.TrimSpace(m.cfg.From)
	if from == "" {
		return Report{}, ErrMissingSender
	}

	report := Report{}

	if test := strings.TrimSpace(m.cfg.TestEmail); test != "" {
		slog.Info("TEST_EMAIL override active, routing digest to test address",
			"test_email", test,
			"original_recipients", strings.Join(MaskRecipients(recipients), ", "))
		recipients = []string{test}
		report.TestOverride = true
	}
	report.Recipients = len(recipients)

	if m.cfg.DryRun {
		slog.Info("DRY_RUN enabled, digest not sent",
			"subject", req.Subject,
			"recipients", strings.Join(MaskRecipients(recipients), ", "))
		report.DryRun = true
		return report, nil
	}

	text := req.Text
	if strings.TrimSpace(text) == "" {
		text = digest.HTMLToText(req.HTML)
	}

	if !m.cfg.SkipAuth && m.cfg.Password == "" {
		return report, ErrMissingCredentials
	}

	session, err := m.dialer.Dial(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.Debug("Failed to close SMTP session", "error", err)
		}
	}()

	base := Message{
		From:     from,
		FromName: m.cfg.FromName,
		ReplyTo:  cmp.Or(strings.TrimSpace(req.ReplyTo), m.cfg.ReplyTo),
		Subject:  req.Subject,
		HTML:     req.HTML,
		Text:     text,
	}

	if req.Individually {
		for _, rcpt := range recipients {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			msg := base
			msg.To = []string{rcpt}
			if err := session.Send(ctx, &msg); err != nil {
				report.Failed++
				slog.Error("Failed sending digest", "recipient", MaskRecipients([]string{rcpt})[0], "error", err)
				continue
			}
			report.Sent++
		}

		slog.Info("Digest sent individually", "sent", report.Sent, "failed", report.Failed)

		if report.Sent == 0 {
			return report, fmt.Errorf("%w: %d recipients failed", ErrNothingDelivered, report.Failed)
		}
		return report, nil
	}

	msg := base
	msg.To = []string{from}
	msg.Bcc = recipients
	if err := session.Send(ctx, &msg); err != nil {
		report.Failed = len(recipients)
		slog.Error("Failed sending BCC digest", "recipients", len(recipients), "error", err)
		return report, fmt.Errorf("failed to send digest: %w", err)
	}

	report.Sent = len(recipients)
	slog.Info("Digest sent", "bcc_recipients", len(recipients))

	return report, nil
}

// NewFromCfg wires a Mailer to the SMTP server described by the application
// configuration. SMTP_USERNAME falls back to EMAIL_FROM.
func NewFromCfg(c *cfg.Cfg) *Mailer {
	dialer := NewSMTPDialer(SMTPConfig{
		Host:     c.SMTPServer,
		Port:     c.SMTPPort,
		Timeout:  c.SMTPTimeout,
		Username: cmp.Or(c.SMTPUsername, c.EmailFrom),
		Password: c.EmailPassword,
		SkipAuth: c.SkipSMTPAuth,
	})

	return New(Config{
		From:      c.EmailFrom,
		FromName:  c.FromName,
		ReplyTo:   c.ReplyTo,
		TestEmail: c.TestEmail,
		Password:  c.EmailPassword,
		SkipAuth:  c.SkipSMTPAuth,
		DryRun:    c.DryRun,
	}, dialer)
}
