package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solpumpai/backend/internal/models"
)

type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

// CreateTx appends a usage record inside the given transaction so it
// commits atomically with the allowance decrement.
func (r *UsageRepo) CreateTx(ctx context.Context, tx pgx.Tx, u *models.UsageRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO usage_records (id, license_key, wallet_hash, model, cost)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, u.ID, u.LicenseKey, u.WalletHash, u.Model, u.Cost).Scan(&u.CreatedAt)
}

// TotalsByLicense sums lifetime calls and cost for the status endpoint.
func (r *UsageRepo) TotalsByLicense(ctx context.Context, licenseKey string) (*models.UsageTotals, error) {
	var t models.UsageTotals
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*), COALESCE(SUM(cost), 0)
		FROM usage_records WHERE license_key = $1
	`, licenseKey).Scan(&t.TotalCalls, &t.TotalCost)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// RollupDay upserts the aggregate row for the given day (UTC date).
func (r *UsageRepo) RollupDay(ctx context.Context, day string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO usage_rollups (day, call_count, total_cost, updated_at)
		SELECT $1::date, COUNT(*), COALESCE(SUM(cost), 0), NOW()
		FROM usage_records
		WHERE created_at >= $1::date AND created_at < $1::date + INTERVAL '1 day'
		ON CONFLICT (day) DO UPDATE
		SET call_count = EXCLUDED.call_count,
		    total_cost = EXCLUDED.total_cost,
		    updated_at = NOW()
	`, day)
	return err
}

// ListRollups returns the most recent daily aggregates, newest first.
func (r *UsageRepo) ListRollups(ctx context.Context, limit int) ([]*models.DailyUsage, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT day, call_count, total_cost
		FROM usage_rollups ORDER BY day DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.DailyUsage
	for rows.Next() {
		var d models.DailyUsage
		if err := rows.Scan(&d.Day, &d.CallCount, &d.TotalCost); err != nil {
			return nil, err
		}
		list = append(list, &d)
	}
	return list, rows.Err()
}
