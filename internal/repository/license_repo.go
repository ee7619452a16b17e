package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solpumpai/backend/internal/models"
)

// ErrNotFound is returned when a license row does not exist.
var ErrNotFound = errors.New("license not found")

type LicenseRepo struct {
	pool *pgxpool.Pool
}

func NewLicenseRepo(pool *pgxpool.Pool) *LicenseRepo {
	return &LicenseRepo{pool: pool}
}

func (r *LicenseRepo) Create(ctx context.Context, l *models.License) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO licenses (license_key, wallet_address, wallet_hash, calls_remaining, is_active, last_verified_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`, l.Key, l.Wallet, l.WalletHash, l.CallsRemaining, l.Active, l.LastVerifiedAt).Scan(&l.CreatedAt)
}

func (r *LicenseRepo) GetByKey(ctx context.Context, key string) (*models.License, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT license_key, wallet_address, wallet_hash, calls_remaining, is_active, last_verified_at, created_at
		FROM licenses WHERE license_key = $1
	`, key))
}

func (r *LicenseRepo) GetByWallet(ctx context.Context, wallet string) (*models.License, error) {
	return r.scanOne(r.pool.QueryRow(ctx, `
		SELECT license_key, wallet_address, wallet_hash, calls_remaining, is_active, last_verified_at, created_at
		FROM licenses WHERE wallet_address = $1
	`, wallet))
}

func (r *LicenseRepo) scanOne(row pgx.Row) (*models.License, error) {
	var l models.License
	err := row.Scan(&l.Key, &l.Wallet, &l.WalletHash, &l.CallsRemaining, &l.Active, &l.LastVerifiedAt, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// MarkVerified records the outcome of a balance re-verification: active
// licenses get a fresh last_verified_at, deactivated ones keep the stale
// timestamp so the next resolution re-checks again.
func (r *LicenseRepo) MarkVerified(ctx context.Context, key string, active bool, verifiedAt time.Time) error {
	if !active {
		tag, err := r.pool.Exec(ctx, `
			UPDATE licenses SET is_active = FALSE WHERE license_key = $1
		`, key)
		if err == nil && tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE licenses SET is_active = TRUE, last_verified_at = $2 WHERE license_key = $1
	`, key, verifiedAt)
	if err == nil && tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return err
}

// DecrementCallsTx atomically consumes one call, refusing to go below
// zero. Returns the remaining allowance. Call within a transaction so
// the decrement commits together with the usage record.
func (r *LicenseRepo) DecrementCallsTx(ctx context.Context, tx pgx.Tx, key string) (remaining int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE licenses SET calls_remaining = calls_remaining - 1
		WHERE license_key = $1 AND calls_remaining > 0
		RETURNING calls_remaining
	`, key).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return remaining, err
}

// AddCallsTx credits a purchased package. Call within the same
// transaction that inserts the payment record.
func (r *LicenseRepo) AddCallsTx(ctx context.Context, tx pgx.Tx, key string, calls int) (newTotal int, err error) {
	err = tx.QueryRow(ctx, `
		UPDATE licenses SET calls_remaining = calls_remaining + $2
		WHERE license_key = $1
		RETURNING calls_remaining
	`, key, calls).Scan(&newTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return newTotal, err
}

// List returns all licenses, newest first. Admin surface only.
func (r *LicenseRepo) List(ctx context.Context) ([]*models.License, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT license_key, wallet_address, wallet_hash, calls_remaining, is_active, last_verified_at, created_at
		FROM licenses ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.License
	for rows.Next() {
		var l models.License
		if err := rows.Scan(&l.Key, &l.Wallet, &l.WalletHash, &l.CallsRemaining, &l.Active, &l.LastVerifiedAt, &l.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &l)
	}
	return list, rows.Err()
}

// Begin starts a transaction on the underlying pool. Exposed so services
// can scope read-modify-write sequences to a single commit.
func (r *LicenseRepo) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}
