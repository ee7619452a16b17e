package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentRecord is created exactly once per verified burn transaction.
// The UNIQUE constraint on TxSignature is the idempotency guard for
// crediting: a replayed signature must never credit twice.
type PaymentRecord struct {
	ID           uuid.UUID `json:"id"`
	LicenseKey   string    `json:"license_key"`
	WalletHash   string    `json:"wallet_hash"`
	Package      string    `json:"package"`
	TokensBurned float64   `json:"tokens_burned"`
	CallsAdded   int       `json:"calls_added"`
	TxSignature  string    `json:"tx_signature"`
	CreatedAt    time.Time `json:"created_at"`
}
