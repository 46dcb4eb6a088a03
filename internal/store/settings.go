package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SettingsRepository reads and writes the single settings row holding the
// serialized tenant context and the sealed license cache.
type SettingsRepository struct {
	q querier
}

// LoadTenant returns the serialized tenant context, or nil when none was
// ever saved.
func (r *SettingsRepository) LoadTenant(ctx context.Context) ([]byte, error) {
	var data sql.NullString
	err := r.q.QueryRowContext(ctx, `SELECT tenant FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !data.Valid) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant settings: %w", err)
	}
	return []byte(data.String), nil
}

// SaveTenant stores the serialized tenant context.
func (r *SettingsRepository) SaveTenant(ctx context.Context, data []byte) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO settings (id, tenant, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET tenant = excluded.tenant, updated_at = excluded.updated_at
	`, string(data), toNanos(time.Now()))
	if err != nil {
		return fmt.Errorf("save tenant settings: %w", err)
	}
	return nil
}

// LoadLicense returns the sealed license blob, or nil when none is cached.
func (r *SettingsRepository) LoadLicense(ctx context.Context) ([]byte, error) {
	var data []byte
	err := r.q.QueryRowContext(ctx, `SELECT license FROM settings WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load license settings: %w", err)
	}
	return data, nil
}

// SaveLicense stores the sealed license blob.
func (r *SettingsRepository) SaveLicense(ctx context.Context, data []byte) error {
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO settings (id, license, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET license = excluded.license, updated_at = excluded.updated_at
	`, data, toNanos(time.Now()))
	if err != nil {
		return fmt.Errorf("save license settings: %w", err)
	}
	return nil
}

// ResetInstallation clears the license cache and the tenant binding in one
// statement.
func (r *SettingsRepository) ResetInstallation(ctx context.Context) error {
	_, err := r.q.ExecContext(ctx, `
		UPDATE settings SET tenant = NULL, license = NULL, updated_at = ? WHERE id = 1
	`, toNanos(time.Now()))
	if err != nil {
		return fmt.Errorf("reset installation settings: %w", err)
	}
	return nil
}
