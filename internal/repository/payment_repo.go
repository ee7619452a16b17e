package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/solpumpai/backend/internal/models"
)

// ErrDuplicateSignature is returned when a payment row with the same
// tx_signature already exists. The UNIQUE constraint is the arbitration
// mechanism under concurrent submissions: exactly one insert wins.
var ErrDuplicateSignature = errors.New("transaction signature already processed")

type PaymentRepo struct {
	pool *pgxpool.Pool
}

func NewPaymentRepo(pool *pgxpool.Pool) *PaymentRepo {
	return &PaymentRepo{pool: pool}
}

// CreateTx inserts a payment record inside the given transaction,
// mapping a unique violation on tx_signature to ErrDuplicateSignature.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRecord) error {
	err := tx.QueryRow(ctx, `
		INSERT INTO payments (id, license_key, wallet_hash, package, tokens_burned, calls_added, tx_signature)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, p.ID, p.LicenseKey, p.WalletHash, p.Package, p.TokensBurned, p.CallsAdded, p.TxSignature).Scan(&p.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrDuplicateSignature
	}
	return err
}

// SignatureExists is the cheap pre-check before consulting the oracle.
// The insert above remains the authoritative dedup.
func (r *PaymentRepo) SignatureExists(ctx context.Context, signature string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM payments WHERE tx_signature = $1)
	`, signature).Scan(&exists)
	return exists, err
}

// ListByLicense returns payment history for a license, newest first.
func (r *PaymentRepo) ListByLicense(ctx context.Context, licenseKey string) ([]*models.PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, license_key, wallet_hash, package, tokens_burned, calls_added, tx_signature, created_at
		FROM payments WHERE license_key = $1 ORDER BY created_at DESC
	`, licenseKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.PaymentRecord
	for rows.Next() {
		var p models.PaymentRecord
		if err := rows.Scan(&p.ID, &p.LicenseKey, &p.WalletHash, &p.Package, &p.TokensBurned, &p.CallsAdded, &p.TxSignature, &p.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}
