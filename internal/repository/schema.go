package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema DDL applied at startup. River's own tables are managed by
// rivermigrate in main.

const createLicensesTable = `
CREATE TABLE IF NOT EXISTS licenses (
    license_key VARCHAR(64) PRIMARY KEY,
    wallet_address VARCHAR(64) NOT NULL UNIQUE,
    wallet_hash VARCHAR(16) NOT NULL,
    calls_remaining INTEGER NOT NULL DEFAULT 0,
    is_active BOOLEAN NOT NULL DEFAULT TRUE,
    last_verified_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

    CHECK (calls_remaining >= 0)
);
CREATE INDEX IF NOT EXISTS idx_licenses_wallet_hash ON licenses (wallet_hash);
`

const createUsageTable = `
CREATE TABLE IF NOT EXISTS usage_records (
    id UUID PRIMARY KEY,
    license_key VARCHAR(64) NOT NULL REFERENCES licenses(license_key),
    wallet_hash VARCHAR(16) NOT NULL,
    model VARCHAR(100) NOT NULL,
    cost DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_usage_license ON usage_records (license_key);
CREATE INDEX IF NOT EXISTS idx_usage_created ON usage_records (created_at);
`

const createVerificationLogTable = `
CREATE TABLE IF NOT EXISTS verification_log (
    id UUID PRIMARY KEY,
    wallet_hash VARCHAR(16) NOT NULL,
    had_tokens BOOLEAN NOT NULL,
    balance DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_verification_wallet ON verification_log (wallet_hash);
`

const createPaymentsTable = `
CREATE TABLE IF NOT EXISTS payments (
    id UUID PRIMARY KEY,
    license_key VARCHAR(64) NOT NULL REFERENCES licenses(license_key),
    wallet_hash VARCHAR(16) NOT NULL,
    package VARCHAR(20) NOT NULL,
    tokens_burned DOUBLE PRECISION NOT NULL,
    calls_added INTEGER NOT NULL,
    tx_signature VARCHAR(128) NOT NULL UNIQUE,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const createAdminsTable = `
CREATE TABLE IF NOT EXISTS admins (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email VARCHAR(255) NOT NULL UNIQUE,
    password_hash VARCHAR(255) NOT NULL,
    display_name VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const createRollupsTable = `
CREATE TABLE IF NOT EXISTS usage_rollups (
    day DATE PRIMARY KEY,
    call_count INTEGER NOT NULL DEFAULT 0,
    total_cost DOUBLE PRECISION NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// InitSchema creates all application tables if they do not exist.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, ddl := range []string{
		createLicensesTable,
		createUsageTable,
		createVerificationLogTable,
		createPaymentsTable,
		createAdminsTable,
		createRollupsTable,
	} {
		if _, err := pool.Exec(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}
