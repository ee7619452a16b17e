package licensing

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/solpumpai/backend/internal/models"
	"github.com/solpumpai/backend/internal/repository"
)

const keyPrefix = "SOLPUMPAI-"

var (
	// ErrInvalidWallet is returned for addresses outside the Solana
	// length bounds. No state change.
	ErrInvalidWallet = errors.New("invalid wallet address format")

	// ErrUnknownLicense is returned when no license exists for a key.
	ErrUnknownLicense = errors.New("unknown license key")

	// ErrInsufficientBalance refuses issuance when the wallet holds
	// fewer tokens than the configured minimum. No record is created.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrLicenseDeactivated is returned when a re-verification just
	// found the balance below the minimum and flipped the license off.
	ErrLicenseDeactivated = errors.New("license deactivated: wallet no longer holds required tokens")
)

// Store is the license persistence the lifecycle manager needs.
type Store interface {
	Create(ctx context.Context, l *models.License) error
	GetByKey(ctx context.Context, key string) (*models.License, error)
	GetByWallet(ctx context.Context, wallet string) (*models.License, error)
	MarkVerified(ctx context.Context, key string, active bool, verifiedAt time.Time) error
}

// VerificationLog records every oracle consultation.
type VerificationLog interface {
	Create(ctx context.Context, e *models.VerificationLogEntry) error
}

// Oracle answers the single balance question the lifecycle cares about.
type Oracle interface {
	TokenBalance(ctx context.Context, wallet, mint string) (float64, error)
}

// Config holds the gating parameters.
type Config struct {
	TokenMint        string
	MinimumTokens    float64
	ReverifyInterval time.Duration
	StartingGrant    int
}

// Service owns the license lifecycle: issuance, resolution, and the
// periodic balance re-verification that drives the active flag.
type Service struct {
	store  Store
	vlog   VerificationLog
	oracle Oracle
	cfg    Config
	logger *slog.Logger

	// now is swapped out by tests.
	now func() time.Time
}

func NewService(store Store, vlog VerificationLog, oracle Oracle, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, vlog: vlog, oracle: oracle, cfg: cfg, logger: logger, now: time.Now}
}

// IssueOrFetch returns the wallet's license, creating one if the wallet
// holds enough tokens and has never been bound. The wallet↔license
// binding is permanent: a second issue call returns the existing row.
// created reports whether a new license was minted.
func (s *Service) IssueOrFetch(ctx context.Context, wallet string) (lic *models.License, created bool, err error) {
	if !models.ValidWallet(wallet) {
		return nil, false, ErrInvalidWallet
	}

	existing, err := s.store.GetByWallet(ctx, wallet)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, false, fmt.Errorf("load license by wallet: %w", err)
	}
	if existing != nil {
		if err := s.reverifyIfStale(ctx, existing); err != nil {
			return existing, false, err
		}
		if !existing.Active {
			return existing, false, ErrLicenseDeactivated
		}
		return existing, false, nil
	}

	// New wallet: issuance is balance-gated, never free.
	if !s.checkBalance(ctx, wallet) {
		return nil, false, ErrInsufficientBalance
	}

	now := s.now().UTC()
	lic = &models.License{
		Key:            newKey(),
		Wallet:         wallet,
		WalletHash:     models.FingerprintWallet(wallet),
		CallsRemaining: s.cfg.StartingGrant,
		Active:         true,
		LastVerifiedAt: now,
	}
	if err := s.store.Create(ctx, lic); err != nil {
		return nil, false, fmt.Errorf("create license: %w", err)
	}

	s.logger.Info("license issued", "wallet", models.ShortWallet(wallet), "starting_grant", s.cfg.StartingGrant)
	return lic, true, nil
}

// Resolve looks up a license by key and re-verifies the wallet balance
// if the last check is older than the configured interval. At most one
// oracle consultation happens per call.
func (s *Service) Resolve(ctx context.Context, key string) (*models.License, error) {
	lic, err := s.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	if err := s.reverifyIfStale(ctx, lic); err != nil {
		return lic, err
	}
	return lic, nil
}

// Lookup fetches a license without triggering re-verification. Used by
// the crediting pipeline (burning tokens is itself proof of holding
// them) and the status endpoint.
func (s *Service) Lookup(ctx context.Context, key string) (*models.License, error) {
	lic, err := s.store.GetByKey(ctx, key)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnknownLicense
	}
	if err != nil {
		return nil, fmt.Errorf("load license: %w", err)
	}
	return lic, nil
}

// reverifyIfStale consults the oracle when the license is overdue and
// flips the active flag accordingly. Deactivation is reversible: a
// later check that finds sufficient balance reactivates the license.
func (s *Service) reverifyIfStale(ctx context.Context, lic *models.License) error {
	now := s.now().UTC()
	if now.Sub(lic.LastVerifiedAt) <= s.cfg.ReverifyInterval {
		return nil
	}

	s.logger.Info("re-verifying token balance", "wallet", models.ShortWallet(lic.Wallet))

	if !s.checkBalance(ctx, lic.Wallet) {
		if err := s.store.MarkVerified(ctx, lic.Key, false, now); err != nil {
			return fmt.Errorf("deactivate license: %w", err)
		}
		lic.Active = false
		return ErrLicenseDeactivated
	}

	if err := s.store.MarkVerified(ctx, lic.Key, true, now); err != nil {
		return fmt.Errorf("mark verified: %w", err)
	}
	lic.Active = true
	lic.LastVerifiedAt = now
	return nil
}

// checkBalance asks the oracle whether the wallet meets the minimum
// holding and appends one verification log entry regardless of outcome.
// Oracle failures fail closed: an unreachable chain reads as no tokens.
func (s *Service) checkBalance(ctx context.Context, wallet string) bool {
	balance, err := s.oracle.TokenBalance(ctx, wallet, s.cfg.TokenMint)
	if err != nil {
		s.logger.Warn("balance check failed, treating as insufficient",
			"wallet", models.ShortWallet(wallet), "error", err)
		balance = 0
	}
	hadTokens := balance >= s.cfg.MinimumTokens

	entry := &models.VerificationLogEntry{
		ID:         uuid.New(),
		WalletHash: models.FingerprintWallet(wallet),
		HadTokens:  hadTokens,
		Balance:    balance,
	}
	if logErr := s.vlog.Create(ctx, entry); logErr != nil {
		s.logger.Error("append verification log", "error", logErr)
	}
	return hadTokens
}

// MinimumTokens exposes the configured threshold for refusal payloads.
func (s *Service) MinimumTokens() float64 { return s.cfg.MinimumTokens }

// newKey generates a high-entropy license key. Keys are random, never
// derived from the wallet address.
func newKey() string {
	buf := make([]byte, 20)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("crypto/rand failed: %v", err))
	}
	return keyPrefix + base64.RawURLEncoding.EncodeToString(buf)
}
