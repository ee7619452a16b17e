package admin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/solpumpai/backend/internal/auth"
	"github.com/solpumpai/backend/internal/models"
	"github.com/solpumpai/backend/internal/repository"
)

const verificationPageSize = 100

// Handler serves the read-only admin surface. Every response exposes
// wallets only in fingerprint/truncated form.
type Handler struct {
	authSvc  auth.Service
	licenses *repository.LicenseRepo
	verifs   *repository.VerificationRepo
	usage    *repository.UsageRepo
	payments *repository.PaymentRepo
	log      *slog.Logger
}

func NewHandler(
	authSvc auth.Service,
	licenses *repository.LicenseRepo,
	verifs *repository.VerificationRepo,
	usage *repository.UsageRepo,
	payments *repository.PaymentRepo,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{authSvc: authSvc, licenses: licenses, verifs: verifs, usage: usage, payments: payments, log: log}
}

func (h *Handler) adminIDFromRequest(r *http.Request) (uuid.UUID, error) {
	authz := r.Header.Get("Authorization")
	if authz == "" {
		return uuid.Nil, fmt.Errorf("missing authorization")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, fmt.Errorf("bad authorization format")
	}
	token := strings.TrimSpace(authz[len(prefix):])
	if token == "" {
		return uuid.Nil, fmt.Errorf("empty token")
	}
	return h.authSvc.ValidateToken(r.Context(), token)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type licenseSummary struct {
	LicenseKey     string    `json:"license_key"`
	Wallet         string    `json:"wallet"`
	WalletHash     string    `json:"wallet_hash"`
	CallsRemaining int       `json:"calls_remaining"`
	IsActive       bool      `json:"is_active"`
	LastVerifiedAt time.Time `json:"last_verified_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// ListLicenses handles GET /api/v1/admin/licenses.
func (h *Handler) ListLicenses(w http.ResponseWriter, r *http.Request) {
	if _, err := h.adminIDFromRequest(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	list, err := h.licenses.List(r.Context())
	if err != nil {
		h.log.Error("list licenses", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]licenseSummary, 0, len(list))
	for _, l := range list {
		out = append(out, licenseSummary{
			LicenseKey:     l.Key,
			Wallet:         models.ShortWallet(l.Wallet),
			WalletHash:     l.WalletHash,
			CallsRemaining: l.CallsRemaining,
			IsActive:       l.Active,
			LastVerifiedAt: l.LastVerifiedAt,
			CreatedAt:      l.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// ListVerifications handles GET /api/v1/admin/verifications?wallet_hash=.
func (h *Handler) ListVerifications(w http.ResponseWriter, r *http.Request) {
	if _, err := h.adminIDFromRequest(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	walletHash := r.URL.Query().Get("wallet_hash")
	if walletHash == "" {
		http.Error(w, "wallet_hash query parameter required", http.StatusBadRequest)
		return
	}

	entries, err := h.verifs.ListByWalletHash(r.Context(), walletHash, verificationPageSize)
	if err != nil {
		h.log.Error("list verifications", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.VerificationLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// ListPayments handles GET /api/v1/admin/payments?license_key=.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	if _, err := h.adminIDFromRequest(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	licenseKey := r.URL.Query().Get("license_key")
	if licenseKey == "" {
		http.Error(w, "license_key query parameter required", http.StatusBadRequest)
		return
	}

	list, err := h.payments.ListByLicense(r.Context(), licenseKey)
	if err != nil {
		h.log.Error("list payments", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []*models.PaymentRecord{}
	}
	writeJSON(w, http.StatusOK, list)
}

// Stats handles GET /api/v1/admin/stats: the daily usage rollups
// maintained by the background worker.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if _, err := h.adminIDFromRequest(r); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	days := 30
	rollups, err := h.usage.ListRollups(r.Context(), days)
	if err != nil {
		h.log.Error("list rollups", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rollups == nil {
		rollups = []*models.DailyUsage{}
	}
	writeJSON(w, http.StatusOK, rollups)
}
