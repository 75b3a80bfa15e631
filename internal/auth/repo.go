package auth

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when no admin matches.
var ErrNotFound = errors.New("auth: admin not found")

// Repository defines persistence operations for admin accounts.
type Repository interface {
	FindByUsername(ctx context.Context, username string) (*AdminUser, error)
	UpsertAdmin(ctx context.Context, username, passwordHash string) (*AdminUser, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const adminColumns = `id, username, password_hash, is_active, created_at, updated_at`

func scanAdmin(row pgx.Row) (*AdminUser, error) {
	var u AdminUser
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsActive, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// FindByUsername fetches an admin by username.
func (r *PGRepository) FindByUsername(ctx context.Context, username string) (*AdminUser, error) {
	return scanAdmin(r.pool.QueryRow(ctx, `SELECT `+adminColumns+` FROM admin_users WHERE username = $1`, username))
}

// UpsertAdmin creates the admin or resets its password and reactivates it.
func (r *PGRepository) UpsertAdmin(ctx context.Context, username, passwordHash string) (*AdminUser, error) {
	now := time.Now().UTC()
	return scanAdmin(r.pool.QueryRow(ctx, `
INSERT INTO admin_users (username, password_hash, is_active, created_at, updated_at)
VALUES ($1, $2, TRUE, $3, $3)
ON CONFLICT (username) DO UPDATE
SET password_hash = EXCLUDED.password_hash, is_active = TRUE, updated_at = EXCLUDED.updated_at
RETURNING `+adminColumns, username, passwordHash, now))
}

var _ Repository = (*PGRepository)(nil)
