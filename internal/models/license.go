package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Solana base58 address length bounds used for wallet validation.
const (
	MinWalletLen = 32
	MaxWalletLen = 44
)

// License binds a wallet address to an API license. One wallet has at
// most one license row, and the binding is permanent.
type License struct {
	Key            string    `json:"license_key"`
	Wallet         string    `json:"-"`
	WalletHash     string    `json:"wallet_hash"`
	CallsRemaining int       `json:"calls_remaining"`
	Active         bool      `json:"is_active"`
	LastVerifiedAt time.Time `json:"last_verified_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// FingerprintWallet returns the short non-reversible identifier stored
// alongside the raw address for indexing and audit queries.
func FingerprintWallet(wallet string) string {
	sum := sha256.Sum256([]byte(wallet))
	return hex.EncodeToString(sum[:])[:16]
}

// ShortWallet is the only form of a wallet address allowed in logs and
// response payloads.
func ShortWallet(wallet string) string {
	if len(wallet) < MinWalletLen {
		return wallet
	}
	return wallet[:8] + "..." + wallet[len(wallet)-4:]
}

// ValidWallet reports whether the address length fits the Solana format.
func ValidWallet(wallet string) bool {
	return len(wallet) >= MinWalletLen && len(wallet) <= MaxWalletLen
}
