package deviceauth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

type postgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a PostgreSQL credential repository.
func NewPostgresRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

const userColumns = `u.id, u.email, u.name, u.role, u.store_id, u.is_active, u.pin_hash, u.master_pin_hash`

func (r *postgresRepository) GetDevice(ctx context.Context, id string) (*Device, error) {
	var d Device
	query := `
		SELECT id, name, store_id, assigned_user_id, is_active, is_locked, last_seen_at
		FROM devices
		WHERE id = $1
	`
	if err := r.db.GetContext(ctx, &d, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

func (r *postgresRepository) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	query := `SELECT ` + userColumns + ` FROM users u WHERE u.id = $1`
	if err := r.db.GetContext(ctx, &u, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (r *postgresRepository) ListDeviceCandidates(ctx context.Context, deviceID string) ([]Candidate, error) {
	query := `
		SELECT u.id AS "user.id", u.email AS "user.email", u.name AS "user.name", u.role AS "user.role",
		       u.store_id AS "user.store_id", u.is_active AS "user.is_active",
		       u.pin_hash AS "user.pin_hash", u.master_pin_hash AS "user.master_pin_hash",
		       p.pin_hash AS device_pin_hash
		FROM device_permissions p
		JOIN users u ON u.id = p.user_id
		WHERE p.device_id = $1
		ORDER BY p.created_at ASC, u.id ASC
	`
	var out []Candidate
	if err := r.db.SelectContext(ctx, &out, query, deviceID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postgresRepository) ListStoreAdmins(ctx context.Context, storeID string) ([]*User, error) {
	query := `
		SELECT DISTINCT ON (u.id) ` + userColumns + `
		FROM stores s
		JOIN users u ON u.id = s.created_by OR u.id = s.admin_id
		WHERE s.id = $1
		ORDER BY u.id
	`
	var out []*User
	if err := r.db.SelectContext(ctx, &out, query, storeID); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postgresRepository) ListSuperAdmins(ctx context.Context) ([]*User, error) {
	query := `
		SELECT ` + userColumns + `
		FROM users u
		WHERE u.role = $1 AND u.is_active = TRUE AND u.master_pin_hash IS NOT NULL
		ORDER BY u.created_at ASC, u.id ASC
	`
	var out []*User
	if err := r.db.SelectContext(ctx, &out, query, RoleSuperAdmin); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *postgresRepository) TouchDevice(ctx context.Context, id string, seenAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE devices SET last_seen_at = $1 WHERE id = $2`, seenAt, id)
	return err
}
