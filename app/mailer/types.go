package mailer

import (
	"context"
	"errors"
)

var (
	ErrNoRecipients       = errors.New("no recipients provided")
	ErrMissingSender      = errors.New("EMAIL_FROM is not configured")
	ErrMissingCredentials = errors.New("EMAIL_PASSWORD required for SMTP authentication")
	ErrNothingDelivered   = errors.New("no message was delivered")
)

// Message is one outgoing email. Bcc recipients are not listed in headers.
type Message struct {
	From     string
	FromName string
	To       []string
	Bcc      []string
	ReplyTo  string
	Subject  string
	HTML     string
	Text     string
}

// Dialer opens one transport connection.
type Dialer interface {
	Dial(ctx context.Context) (Session, error)
}

// Session sends messages over an open connection until closed.
type Session interface {
	Send(ctx context.Context, msg *Message) error
	Close() error
}

type Config struct {
	From      string
	FromName  string
	ReplyTo   string
	TestEmail string
	Password  string
	SkipAuth  bool
	DryRun    bool
}

type Request struct {
	Recipients   []string
	Subject      string
	HTML         string
	Text         string
	ReplyTo      string
	Individually bool
}

// Report describes what a Deliver call did.
type Report struct {
	Recipients   int
	Sent         int
	Failed       int
	DryRun       bool
	TestOverride bool
}
