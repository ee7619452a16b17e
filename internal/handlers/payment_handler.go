package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/solpumpai/backend/internal/licensing"
	"github.com/solpumpai/backend/internal/middleware"
	"github.com/solpumpai/backend/internal/payments"
)

// Crediting is the payment-pipeline surface the handler needs.
type Crediting interface {
	Credit(ctx context.Context, licenseKey, packageID, signature string) (*payments.Receipt, error)
}

// PaymentHandler serves the buy-calls and payment-info endpoints.
type PaymentHandler struct {
	Credits    Crediting
	BurnWallet string
	TokenMint  string
	Logger     *slog.Logger
}

// --- POST /api/buy-calls ---

type buyCallsRequest struct {
	Package   string `json:"package"`
	Signature string `json:"signature"`
}

type buyCallsResponse struct {
	Success        bool    `json:"success"`
	CallsAdded     int     `json:"calls_added"`
	CallsRemaining int     `json:"calls_remaining"`
	TokensBurned   float64 `json:"tokens_burned"`
}

// BuyCalls handles POST /api/buy-calls: verify a claimed burn and credit
// the package's call grant exactly once per transaction signature.
func (h *PaymentHandler) BuyCalls(w http.ResponseWriter, r *http.Request) {
	key := middleware.RawKeyFromCtx(r.Context())
	if key == "" {
		http.Error(w, `{"error":"license key required"}`, http.StatusUnauthorized)
		return
	}

	var req buyCallsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Package == "" || req.Signature == "" {
		http.Error(w, `{"error":"missing required fields"}`, http.StatusBadRequest)
		return
	}

	receipt, err := h.Credits.Credit(r.Context(), key, req.Package, req.Signature)
	if err != nil {
		switch {
		case errors.Is(err, licensing.ErrUnknownLicense):
			http.Error(w, `{"error":"invalid license key"}`, http.StatusUnauthorized)
		case errors.Is(err, payments.ErrUnknownPackage):
			http.Error(w, `{"error":"invalid package"}`, http.StatusBadRequest)
		case errors.Is(err, payments.ErrDuplicateTransaction):
			http.Error(w, `{"error":"transaction already processed"}`, http.StatusBadRequest)
		case errors.Is(err, payments.ErrBurnNotFound):
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "burn transaction not verified",
				"help":  "Make sure you sent tokens to the burn wallet within the last few minutes",
			})
		case errors.Is(err, payments.ErrOracleUnavailable):
			h.Logger.Error("burn verification unavailable", "error", err)
			http.Error(w, `{"error":"chain rpc unavailable, try again"}`, http.StatusServiceUnavailable)
		default:
			h.Logger.Error("credit failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, buyCallsResponse{
		Success:        true,
		CallsAdded:     receipt.CallsAdded,
		CallsRemaining: receipt.CallsRemaining,
		TokensBurned:   receipt.TokensBurned,
	})
}

// --- GET /api/payment-info ---

// PaymentInfo handles GET /api/payment-info: the public package catalog
// plus the burn destination.
func (h *PaymentHandler) PaymentInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"packages":    payments.Catalog,
		"burn_wallet": h.BurnWallet,
		"token_mint":  h.TokenMint,
		"instructions": []string{
			"Select a package",
			"Send tokens to the burn wallet address",
			"Submit the transaction signature",
			"Calls are added instantly",
		},
	})
}
