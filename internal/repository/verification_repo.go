package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solpumpai/backend/internal/models"
)

type VerificationRepo struct {
	pool *pgxpool.Pool
}

func NewVerificationRepo(pool *pgxpool.Pool) *VerificationRepo {
	return &VerificationRepo{pool: pool}
}

func (r *VerificationRepo) Create(ctx context.Context, e *models.VerificationLogEntry) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO verification_log (id, wallet_hash, had_tokens, balance)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, e.ID, e.WalletHash, e.HadTokens, e.Balance).Scan(&e.CreatedAt)
}

// ListByWalletHash returns verification history for one wallet
// fingerprint, newest first. Admin surface only.
func (r *VerificationRepo) ListByWalletHash(ctx context.Context, walletHash string, limit int) ([]*models.VerificationLogEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, wallet_hash, had_tokens, balance, created_at
		FROM verification_log WHERE wallet_hash = $1
		ORDER BY created_at DESC LIMIT $2
	`, walletHash, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.VerificationLogEntry
	for rows.Next() {
		var e models.VerificationLogEntry
		if err := rows.Scan(&e.ID, &e.WalletHash, &e.HadTokens, &e.Balance, &e.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &e)
	}
	return list, rows.Err()
}
