package metering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/solpumpai/backend/internal/anthropic"
	"github.com/solpumpai/backend/internal/models"
	"github.com/solpumpai/backend/internal/repository"
)

const (
	maxCompletionTokens = 1000

	// promptWindow bounds how much history goes into the prompt.
	promptWindow = 50
)

var (
	// ErrInactiveLicense refuses metered calls on a deactivated license.
	ErrInactiveLicense = errors.New("license is deactivated")

	// ErrNoCallsRemaining refuses metered calls once the allowance is
	// exhausted.
	ErrNoCallsRemaining = errors.New("no calls remaining")
)

// TxBeginner abstracts transaction creation so tests don't need a pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// LicenseStore is the allowance accounting the gate needs.
type LicenseStore interface {
	TxBeginner
	DecrementCallsTx(ctx context.Context, tx pgx.Tx, key string) (remaining int, err error)
}

// UsageStore appends usage records.
type UsageStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, u *models.UsageRecord) error
}

// AIClient is the downstream metered operation.
type AIClient interface {
	Complete(ctx context.Context, model, prompt string, maxTokens int) (*anthropic.Completion, error)
}

// CrashRound is one observed game round in the request payload.
type CrashRound struct {
	Multiplier float64 `json:"multiplier"`
}

// AnalyzeRequest is the metered operation payload.
type AnalyzeRequest struct {
	CrashHistory []CrashRound `json:"crash_history"`
}

// AnalyzeResult is returned on a successful metered call.
type AnalyzeResult struct {
	Analysis       string  `json:"analysis"`
	ModelUsed      string  `json:"model_used"`
	Cost           float64 `json:"cost"`
	CallsRemaining int     `json:"calls_remaining"`
}

// Gate meters consumption of the downstream AI provider: one allowance
// unit per successful call, decremented atomically with the usage record.
type Gate struct {
	licenses LicenseStore
	usage    UsageStore
	ai       AIClient
	pricing  PricingTable
	logger   *slog.Logger
}

func NewGate(licenses LicenseStore, usage UsageStore, ai AIClient, pricing PricingTable, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	if pricing == nil {
		pricing = DefaultPricing()
	}
	return &Gate{licenses: licenses, usage: usage, ai: ai, pricing: pricing, logger: logger}
}

// Analyze runs one metered call for an already-resolved license.
// The allowance is only decremented after the downstream call succeeds;
// a failed call leaves the license untouched.
func (g *Gate) Analyze(ctx context.Context, lic *models.License, req AnalyzeRequest) (*AnalyzeResult, error) {
	if !lic.Active {
		return nil, ErrInactiveLicense
	}
	if lic.CallsRemaining <= 0 {
		return nil, ErrNoCallsRemaining
	}

	model := pickModel(len(req.CrashHistory))
	prompt := buildPrompt(req.CrashHistory)

	completion, err := g.ai.Complete(ctx, model, prompt, maxCompletionTokens)
	if err != nil {
		return nil, fmt.Errorf("downstream completion: %w", err)
	}
	cost := g.pricing.Cost(model, completion.Usage)

	tx, err := g.licenses.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin meter tx: %w", err)
	}
	defer tx.Rollback(ctx)

	remaining, err := g.licenses.DecrementCallsTx(ctx, tx, lic.Key)
	if err != nil {
		// The conditional decrement found no calls left; a concurrent
		// request may have consumed the last one.
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoCallsRemaining
		}
		return nil, fmt.Errorf("decrement allowance: %w", err)
	}

	if err := g.usage.CreateTx(ctx, tx, &models.UsageRecord{
		ID:         uuid.New(),
		LicenseKey: lic.Key,
		WalletHash: lic.WalletHash,
		Model:      model,
		Cost:       cost,
	}); err != nil {
		return nil, fmt.Errorf("append usage record: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit meter tx: %w", err)
	}

	g.logger.Info("metered call", "wallet", models.ShortWallet(lic.Wallet),
		"model", model, "cost", cost, "calls_remaining", remaining)

	return &AnalyzeResult{
		Analysis:       completion.Text,
		ModelUsed:      model,
		Cost:           cost,
		CallsRemaining: remaining,
	}, nil
}

// buildPrompt formats the trailing multiplier window into the analysis
// prompt.
func buildPrompt(history []CrashRound) string {
	recent := history
	if len(recent) > promptWindow {
		recent = recent[len(recent)-promptWindow:]
	}
	parts := make([]string, len(recent))
	for i, r := range recent {
		parts[i] = fmt.Sprintf("%.2f", r.Multiplier)
	}

	return fmt.Sprintf(`Analyze crash game patterns: %s

Provide JSON prediction:
{
  "shouldBet": true/false,
  "targetMultiplier": 2.0,
  "confidence": "HIGH"/"MEDIUM"/"LOW",
  "probability2x": 0.65,
  "reasoning": "brief explanation"
}`, strings.Join(parts, ", "))
}
