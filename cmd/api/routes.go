package main

import (
	"log/slog"
	"net/http"

	"github.com/solpumpai/backend/internal/config"
	"github.com/solpumpai/backend/internal/handlers"
	"github.com/solpumpai/backend/internal/licensing"
	"github.com/solpumpai/backend/internal/metering"
	"github.com/solpumpai/backend/internal/middleware"
	"github.com/solpumpai/backend/internal/payments"
	"github.com/solpumpai/backend/internal/repository"
)

// RegisterLicenseRoutes adds the public license API to the given mux.
// Middleware chain: LicenseAuth (full resolve + re-verification) for
// verify/analyze; RequireLicenseKey (no re-verification) for buy-calls
// and status, per the crediting and status semantics.
func RegisterLicenseRoutes(
	mux *http.ServeMux,
	licSvc *licensing.Service,
	gate *metering.Gate,
	creditSvc *payments.Service,
	usageRepo *repository.UsageRepo,
	cfg *config.Config,
	logger *slog.Logger,
) {
	lh := &handlers.LicenseHandler{Licenses: licSvc, Usage: usageRepo, Logger: logger}
	ah := &handlers.AnalyzeHandler{Gate: gate, Logger: logger}
	ph := &handlers.PaymentHandler{
		Credits:    creditSvc,
		BurnWallet: cfg.BurnWallet,
		TokenMint:  cfg.TokenMint,
		Logger:     logger,
	}

	auth := middleware.LicenseAuth(licSvc, cfg.MinimumTokens)

	mux.HandleFunc("POST /api/get-license", lh.GetLicense)
	mux.Handle("POST /api/verify-license", auth(http.HandlerFunc(lh.VerifyLicense)))
	mux.Handle("POST /api/analyze", auth(http.HandlerFunc(ah.Analyze)))

	mux.Handle("POST /api/buy-calls", middleware.RequireLicenseKey(http.HandlerFunc(ph.BuyCalls)))
	mux.Handle("GET /api/license-status", middleware.RequireLicenseKey(http.HandlerFunc(lh.Status)))
	mux.HandleFunc("GET /api/payment-info", ph.PaymentInfo)
}
