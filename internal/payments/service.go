package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solpumpai/backend/internal/models"
	"github.com/solpumpai/backend/internal/repository"
	"github.com/solpumpai/backend/internal/solana"
)

var (
	// ErrUnknownPackage refuses package ids outside the fixed catalog.
	ErrUnknownPackage = errors.New("unknown package")

	// ErrDuplicateTransaction refuses a signature that already credited
	// a payment. Resubmission after a crash is a safe no-op.
	ErrDuplicateTransaction = errors.New("transaction already processed")

	// ErrBurnNotFound means no qualifying transfer to the burn wallet
	// was located in the trailing window.
	ErrBurnNotFound = errors.New("burn transaction not found")

	// ErrOracleUnavailable surfaces a chain RPC failure during burn
	// verification. No allowance change; the caller may resubmit.
	ErrOracleUnavailable = errors.New("chain rpc unavailable, try again")
)

// Licenses resolves license keys. Crediting deliberately skips balance
// re-verification: burning tokens is itself proof of holding them.
type Licenses interface {
	Lookup(ctx context.Context, key string) (*models.License, error)
}

// Store is the license allowance + payment persistence the pipeline needs.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	AddCallsTx(ctx context.Context, tx pgx.Tx, key string, calls int) (newTotal int, err error)
}

// PaymentLog inserts dedup records; CreateTx must map a tx_signature
// unique violation to repository.ErrDuplicateSignature.
type PaymentLog interface {
	CreateTx(ctx context.Context, tx pgx.Tx, p *models.PaymentRecord) error
	SignatureExists(ctx context.Context, signature string) (bool, error)
}

// BurnOracle locates qualifying burn transactions in recent history.
type BurnOracle interface {
	FindBurn(ctx context.Context, wallet, burnWallet, claimedSignature string, minAmount float64, window time.Duration) (*solana.Burn, error)
}

// Config holds the burn-verification parameters.
type Config struct {
	BurnWallet string
	BurnWindow time.Duration
}

// Receipt summarizes a successful crediting.
type Receipt struct {
	CallsAdded     int     `json:"calls_added"`
	CallsRemaining int     `json:"calls_remaining"`
	TokensBurned   float64 `json:"tokens_burned"`
}

// Service validates claimed burn transactions and credits call allowances
// exactly once per transaction signature.
type Service struct {
	licenses Licenses
	store    Store
	payments PaymentLog
	oracle   BurnOracle
	cfg      Config
	logger   *slog.Logger
}

func NewService(licenses Licenses, store Store, payments PaymentLog, oracle BurnOracle, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{licenses: licenses, store: store, payments: payments, oracle: oracle, cfg: cfg, logger: logger}
}

// Credit verifies the claimed burn and atomically credits the package's
// call grant. The tx_signature unique constraint is the sole idempotency
// guard: under a race, exactly one submission inserts and credits; the
// loser observes ErrDuplicateTransaction and no allowance change.
func (s *Service) Credit(ctx context.Context, licenseKey, packageID, signature string) (*Receipt, error) {
	lic, err := s.licenses.Lookup(ctx, licenseKey)
	if err != nil {
		return nil, err
	}

	pkg := Lookup(packageID)
	if pkg == nil {
		return nil, ErrUnknownPackage
	}

	// Cheap pre-check so replays skip the oracle round-trip. The insert
	// below remains the authoritative arbiter.
	seen, err := s.payments.SignatureExists(ctx, signature)
	if err != nil {
		return nil, fmt.Errorf("check signature: %w", err)
	}
	if seen {
		return nil, ErrDuplicateTransaction
	}

	s.logger.Info("verifying burn", "wallet", models.ShortWallet(lic.Wallet),
		"package", pkg.ID, "tokens_required", pkg.TokensNeeded)

	burn, err := s.oracle.FindBurn(ctx, lic.Wallet, s.cfg.BurnWallet, signature, pkg.TokensNeeded, s.cfg.BurnWindow)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if burn == nil {
		return nil, ErrBurnNotFound
	}

	tx, err := s.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin credit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Insert the dedup record first: a unique violation aborts before
	// any allowance change.
	if err := s.payments.CreateTx(ctx, tx, &models.PaymentRecord{
		ID:           uuid.New(),
		LicenseKey:   lic.Key,
		WalletHash:   lic.WalletHash,
		Package:      pkg.ID,
		TokensBurned: burn.Amount,
		CallsAdded:   pkg.CallsGranted,
		TxSignature:  signature,
	}); err != nil {
		if errors.Is(err, repository.ErrDuplicateSignature) {
			return nil, ErrDuplicateTransaction
		}
		return nil, fmt.Errorf("record payment: %w", err)
	}

	newTotal, err := s.store.AddCallsTx(ctx, tx, lic.Key, pkg.CallsGranted)
	if err != nil {
		return nil, fmt.Errorf("credit allowance: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit credit tx: %w", err)
	}

	s.logger.Info("allowance credited", "wallet", models.ShortWallet(lic.Wallet),
		"package", pkg.ID, "calls_added", pkg.CallsGranted, "calls_remaining", newTotal)

	return &Receipt{
		CallsAdded:     pkg.CallsGranted,
		CallsRemaining: newTotal,
		TokensBurned:   burn.Amount,
	}, nil
}
