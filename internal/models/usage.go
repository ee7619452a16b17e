package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageRecord is appended once per successful metered call. Rows are
// never updated or deleted.
type UsageRecord struct {
	ID         uuid.UUID `json:"id"`
	LicenseKey string    `json:"license_key"`
	WalletHash string    `json:"wallet_hash"`
	Model      string    `json:"model"`
	Cost       float64   `json:"cost"`
	CreatedAt  time.Time `json:"created_at"`
}

// UsageTotals aggregates a license's lifetime usage for the status endpoint.
type UsageTotals struct {
	TotalCalls int     `json:"total_calls"`
	TotalCost  float64 `json:"total_cost"`
}

// DailyUsage is one row of the usage_rollups reporting table maintained
// by the rollup worker.
type DailyUsage struct {
	Day       time.Time `json:"day"`
	CallCount int       `json:"call_count"`
	TotalCost float64   `json:"total_cost"`
}
