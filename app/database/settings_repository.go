package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var _ SettingsRepository = (*SettingsStore)(nil)

const leasePrefix = "lease:"

type SettingsStore struct {
	db *DB
}

func NewSettingsStore(db *DB) *SettingsStore {
	return &SettingsStore{db: db}
}

func (r *SettingsStore) GetSetting(ctx context.Context, key, fallback string) (string, error) {
	var value sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fallback, nil
		}
		return fallback, fmt.Errorf("failed to get setting %s: %w", key, err)
	}
	if !value.Valid {
		return fallback, nil
	}
	return value.String, nil
}

func (r *SettingsStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %s: %w", key, err)
	}
	return nil
}

// AcquireLease takes the named lease for ttl unless another holder's lease is
// still live. The returned token must be passed to ReleaseLease.
func (r *SettingsStore) AcquireLease(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	now := time.Now()
	token := strconv.FormatInt(now.Add(ttl).UnixNano(), 10)

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
		WHERE CAST(settings.value AS INTEGER) <= ?
	`, leasePrefix+name, token, now.UnixNano())
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", false, fmt.Errorf("failed to acquire lease %s: %w", name, err)
	}
	if n == 0 {
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLease drops the lease if it is still held with token.
func (r *SettingsStore) ReleaseLease(ctx context.Context, name, token string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM settings WHERE key = ? AND value = ?", leasePrefix+name, token)
	if err != nil {
		return fmt.Errorf("failed to release lease %s: %w", name, err)
	}
	return nil
}
