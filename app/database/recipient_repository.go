package database

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

var _ RecipientRepository = (*RecipientStore)(nil)

var ErrInvalidEmail = errors.New("invalid email address")

type RecipientStore struct {
	db *DB
}

func NewRecipientStore(db *DB) *RecipientStore {
	return &RecipientStore{db: db}
}

func (r *RecipientStore) ListRecipients(ctx context.Context) ([]Recipient, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT email, added_at FROM recipients ORDER BY added_at DESC, email ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to list recipients: %w", err)
	}
	defer rows.Close()

	var recipients []Recipient
	for rows.Next() {
		var rcpt Recipient
		if err := rows.Scan(&rcpt.Email, &rcpt.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan recipient: %w", err)
		}
		recipients = append(recipients, rcpt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate recipients: %w", err)
	}

	return recipients, nil
}

// AddRecipient inserts an address; false means it was already present.
func (r *RecipientStore) AddRecipient(ctx context.Context, email string) (bool, error) {
	email, err := ValidateEmail(email)
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx,
		"INSERT INTO recipients (email, added_at) VALUES (?, ?) ON CONFLICT(email) DO NOTHING",
		email, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to add recipient: %w", err)
	}

	n, _ := res.RowsAffected()
	return n == 1, nil
}

func (r *RecipientStore) DeleteRecipient(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM recipients WHERE email = ?", strings.TrimSpace(email))
	if err != nil {
		return fmt.Errorf("failed to delete recipient: %w", err)
	}
	return nil
}

// SetRecipients replaces the whole list in one transaction and returns the
// number of distinct addresses stored. Nothing changes if any address is invalid.
func (r *RecipientStore) SetRecipients(ctx context.Context, emails []string) (int, error) {
	seen := make(map[string]bool, len(emails))
	var clean []string
	for _, e := range emails {
		if strings.TrimSpace(e) == "" {
			continue
		}
		v, err := ValidateEmail(e)
		if err != nil {
			return 0, err
		}
		if !seen[v] {
			seen[v] = true
			clean = append(clean, v)
		}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM recipients"); err != nil {
		return 0, fmt.Errorf("failed to clear recipients: %w", err)
	}

	now := time.Now().UTC()
	for _, e := range clean {
		if _, err := tx.ExecContext(ctx, "INSERT INTO recipients (email, added_at) VALUES (?, ?)", e, now); err != nil {
			return 0, fmt.Errorf("failed to insert recipient %s: %w", e, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit recipients: %w", err)
	}

	return len(clean), nil
}

// ValidateEmail trims the address and checks it is a bare mailbox.
func ValidateEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return email, nil
}
