package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationLogEntry records one consultation of the balance oracle,
// successful or not. Append-only audit trail.
type VerificationLogEntry struct {
	ID         uuid.UUID `json:"id"`
	WalletHash string    `json:"wallet_hash"`
	HadTokens  bool      `json:"had_tokens"`
	Balance    float64   `json:"balance"`
	CreatedAt  time.Time `json:"created_at"`
}
