package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new admin account and returns it.
func (r *Repository) Create(ctx context.Context, email, passwordHash, displayName string) (*Admin, error) {
	var a Admin
	row := r.pool.QueryRow(ctx, `
		INSERT INTO admins (email, password_hash, display_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, email, passwordHash, displayName)
	if err := row.Scan(&a.ID, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.Email = email
	a.DisplayName = displayName
	return &a, nil
}

// GetByEmail returns the admin and password hash for login. Returns nil
// if not found.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*Admin, string, error) {
	var a Admin
	var passwordHash string
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, password_hash, created_at
		FROM admins WHERE email = $1
	`, email)
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &passwordHash, &a.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, "", nil
		}
		return nil, "", err
	}
	return &a, passwordHash, nil
}

// Count reports how many admin accounts exist. Registration is only open
// for bootstrap while the table is empty.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM admins`).Scan(&n)
	return n, err
}

// GetByID returns the admin with the given id, or nil.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Admin, error) {
	var a Admin
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, display_name, created_at
		FROM admins WHERE id = $1
	`, id)
	if err := row.Scan(&a.ID, &a.Email, &a.DisplayName, &a.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}
