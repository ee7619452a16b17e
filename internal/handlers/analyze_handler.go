package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/solpumpai/backend/internal/anthropic"
	"github.com/solpumpai/backend/internal/metering"
	"github.com/solpumpai/backend/internal/middleware"
	"github.com/solpumpai/backend/internal/models"
)

// MeterGate runs one metered call against an already-resolved license.
type MeterGate interface {
	Analyze(ctx context.Context, lic *models.License, req metering.AnalyzeRequest) (*metering.AnalyzeResult, error)
}

// AnalyzeHandler serves the metered AI endpoint.
type AnalyzeHandler struct {
	Gate   MeterGate
	Logger *slog.Logger
}

// Analyze handles POST /api/analyze. The auth middleware has resolved
// the license (re-verifying if stale); the gate enforces the allowance.
func (h *AnalyzeHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	lic := middleware.LicenseFromCtx(r.Context())
	if lic == nil {
		http.Error(w, `{"error":"license key required"}`, http.StatusUnauthorized)
		return
	}

	var req metering.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}

	result, err := h.Gate.Analyze(r.Context(), lic, req)
	if err != nil {
		switch {
		case errors.Is(err, metering.ErrInactiveLicense):
			http.Error(w, `{"error":"license deactivated"}`, http.StatusForbidden)
		case errors.Is(err, metering.ErrNoCallsRemaining):
			writeJSON(w, http.StatusForbidden, map[string]string{
				"error": "no calls remaining",
				"help":  "Buy more calls at POST /api/buy-calls",
			})
		case errors.Is(err, anthropic.ErrUnavailable):
			h.Logger.Error("downstream unavailable", "error", err)
			http.Error(w, `{"error":"AI provider unavailable, try again"}`, http.StatusBadGateway)
		default:
			h.Logger.Error("analyze failed", "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
