package mailer

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wneessen/go-mail"
)

const implicitTLSPort = 465

type SMTPConfig struct {
	Host     string
	Port     int
	Timeout  time.Duration
	Username string
	Password string
	SkipAuth bool
}

// SMTPDialer connects with implicit TLS on port 465 and opportunistic
// STARTTLS on every other port.
type SMTPDialer struct {
	cfg SMTPConfig
}

var _ Dialer = (*SMTPDialer)(nil)

func NewSMTPDialer(cfg SMTPConfig) *SMTPDialer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &SMTPDialer{cfg: cfg}
}

func (d *SMTPDialer) options() []mail.Option {
	opts := []mail.Option{
		mail.WithPort(d.cfg.Port),
		mail.WithTimeout(d.cfg.Timeout),
	}

	if d.cfg.Port == implicitTLSPort {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSOpportunistic))
	}

	if !d.cfg.SkipAuth {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(d.cfg.Username),
			mail.WithPassword(d.cfg.Password),
		)
	}

	return opts
}

func (d *SMTPDialer) Dial(ctx context.Context) (Session, error) {
	client, err := mail.NewClient(d.cfg.Host, d.options()...)
	if err != nil {
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	if d.cfg.Port != implicitTLSPort {
		slog.Debug("Using opportunistic STARTTLS, plaintext if unsupported", "server", d.cfg.Host, "port", d.cfg.Port)
	}

	if err := client.DialWithContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to dial %s:%d: %w", d.cfg.Host, d.cfg.Port, err)
	}

	return &smtpSession{client: client}, nil
}

type smtpSession struct {
	client *mail.Client
}

func (s *smtpSession) Send(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m, err := buildMsg(msg)
	if err != nil {
		return err
	}
	return s.client.Send(m)
}

func (s *smtpSession) Close() error {
	return s.client.Close()
}

func buildMsg(msg *Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	var err error
	if msg.FromName != "" {
		err = m.FromFormat(msg.FromName, msg.From)
	} else {
		err = m.From(msg.From)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}

	if err := m.To(msg.To...); err != nil {
		return nil, fmt.Errorf("invalid recipient: %w", err)
	}
	if len(msg.Bcc) > 0 {
		if err := m.Bcc(msg.Bcc...); err != nil {
			return nil, fmt.Errorf("invalid bcc recipient: %w", err)
		}
	}
	if msg.ReplyTo != "" {
		if err := m.ReplyTo(msg.ReplyTo); err != nil {
			return nil, fmt.Errorf("invalid reply-to %q: %w", msg.ReplyTo, err)
		}
	}

	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextPlain, cmp.Or(msg.Text, msg.Subject))
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	return m, nil
}
