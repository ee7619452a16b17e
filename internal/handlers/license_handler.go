package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/solpumpai/backend/internal/licensing"
	"github.com/solpumpai/backend/internal/middleware"
	"github.com/solpumpai/backend/internal/models"
)

const buyLink = "https://pump.fun/C4br6g4CBAP2grzc2sUrU9wUN7eJGZZpePCN1yjapump"

// LicenseService is the lifecycle-manager surface the handlers need.
type LicenseService interface {
	IssueOrFetch(ctx context.Context, wallet string) (lic *models.License, created bool, err error)
	Lookup(ctx context.Context, key string) (*models.License, error)
	MinimumTokens() float64
}

// UsageTotals computes lifetime usage for the status endpoint.
type UsageTotals interface {
	TotalsByLicense(ctx context.Context, licenseKey string) (*models.UsageTotals, error)
}

// LicenseHandler serves the license issue/verify/status endpoints.
type LicenseHandler struct {
	Licenses LicenseService
	Usage    UsageTotals
	Logger   *slog.Logger
}

// --- POST /api/get-license ---

type getLicenseRequest struct {
	Wallet string `json:"wallet"`
}

type licenseIssuedResponse struct {
	LicenseKey     string `json:"license_key"`
	CallsRemaining int    `json:"calls_remaining"`
	Wallet         string `json:"wallet"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

// GetLicense handles POST /api/get-license: issue a new wallet-bound
// license or return the existing one.
func (h *LicenseHandler) GetLicense(w http.ResponseWriter, r *http.Request) {
	var req getLicenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Wallet == "" {
		http.Error(w, `{"error":"wallet address required"}`, http.StatusBadRequest)
		return
	}

	lic, created, err := h.Licenses.IssueOrFetch(r.Context(), req.Wallet)
	if err != nil {
		switch {
		case errors.Is(err, licensing.ErrInvalidWallet):
			http.Error(w, `{"error":"invalid Solana wallet address format"}`, http.StatusBadRequest)
		case errors.Is(err, licensing.ErrInsufficientBalance):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":    fmt.Sprintf("insufficient token balance, need at least %g tokens", h.Licenses.MinimumTokens()),
				"required": h.Licenses.MinimumTokens(),
				"buy_link": buyLink,
				"message":  "Buy tokens first, then come back to get your license.",
			})
		case errors.Is(err, licensing.ErrLicenseDeactivated):
			writeJSON(w, http.StatusForbidden, map[string]any{
				"error":    "token balance below minimum, license deactivated",
				"required": h.Licenses.MinimumTokens(),
				"buy_link": buyLink,
			})
		default:
			h.Logger.Error("issue license", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	status := "existing"
	message := "Welcome back! Your license is still active."
	if created {
		status = "new"
		message = fmt.Sprintf("License activated! You have %d free AI calls to get started.", lic.CallsRemaining)
	}
	writeJSON(w, http.StatusOK, licenseIssuedResponse{
		LicenseKey:     lic.Key,
		CallsRemaining: lic.CallsRemaining,
		Wallet:         models.ShortWallet(lic.Wallet),
		Status:         status,
		Message:        message,
	})
}

// --- POST /api/verify-license ---

type verifyResponse struct {
	Valid          bool   `json:"valid"`
	CallsRemaining int    `json:"calls_remaining"`
	Wallet         string `json:"wallet"`
}

// VerifyLicense handles POST /api/verify-license. Resolution (and any
// due re-verification) already happened in the auth middleware.
func (h *LicenseHandler) VerifyLicense(w http.ResponseWriter, r *http.Request) {
	lic := middleware.LicenseFromCtx(r.Context())
	if lic == nil {
		http.Error(w, `{"error":"license key required"}`, http.StatusUnauthorized)
		return
	}
	if !lic.Active {
		writeJSON(w, http.StatusForbidden, map[string]any{
			"error": "license deactivated",
			"valid": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, verifyResponse{
		Valid:          true,
		CallsRemaining: lic.CallsRemaining,
		Wallet:         models.ShortWallet(lic.Wallet),
	})
}

// --- GET /api/license-status ---

type statusResponse struct {
	Wallet         string  `json:"wallet"`
	CallsRemaining int     `json:"calls_remaining"`
	TotalCalls     int     `json:"total_calls"`
	TotalCost      float64 `json:"total_cost"`
	CreatedAt      int64   `json:"created_at"`
	IsActive       bool    `json:"is_active"`
}

// Status handles GET /api/license-status. Deliberately no
// re-verification on this path; it reports state as stored.
func (h *LicenseHandler) Status(w http.ResponseWriter, r *http.Request) {
	key := middleware.RawKeyFromCtx(r.Context())
	if key == "" {
		http.Error(w, `{"error":"license key required"}`, http.StatusUnauthorized)
		return
	}

	lic, err := h.Licenses.Lookup(r.Context(), key)
	if err != nil {
		if errors.Is(err, licensing.ErrUnknownLicense) {
			http.Error(w, `{"error":"invalid license key"}`, http.StatusUnauthorized)
			return
		}
		h.Logger.Error("license status", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	totals, err := h.Usage.TotalsByLicense(r.Context(), lic.Key)
	if err != nil {
		h.Logger.Error("usage totals", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Wallet:         models.ShortWallet(lic.Wallet),
		CallsRemaining: lic.CallsRemaining,
		TotalCalls:     totals.TotalCalls,
		TotalCost:      totals.TotalCost,
		CreatedAt:      lic.CreatedAt.Unix(),
		IsActive:       lic.Active,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
