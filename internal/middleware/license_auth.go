package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/solpumpai/backend/internal/licensing"
	"github.com/solpumpai/backend/internal/models"
)

// LicenseHeader carries the opaque license key on every licensed request.
const LicenseHeader = "X-License-Key"

type contextKey string

const (
	ctxLicenseKey contextKey = "license"
	ctxRawKeyKey  contextKey = "license_key_raw"
)

// Resolver is the lifecycle-manager surface the middleware needs.
type Resolver interface {
	Resolve(ctx context.Context, key string) (*models.License, error)
}

// LicenseAuth authenticates a request by resolving the X-License-Key
// header through the lifecycle manager. Resolution applies the balance
// re-verification exactly once; downstream handlers must use the license
// from context rather than resolving again.
func LicenseAuth(resolver Resolver, minimumTokens float64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(LicenseHeader)
			if key == "" {
				http.Error(w, `{"error":"license key required"}`, http.StatusUnauthorized)
				return
			}

			lic, err := resolver.Resolve(r.Context(), key)
			if err != nil {
				if errors.Is(err, licensing.ErrLicenseDeactivated) {
					body := fmt.Sprintf(`{"error":"license deactivated: wallet no longer holds required tokens","required":%g}`, minimumTokens)
					http.Error(w, body, http.StatusForbidden)
					return
				}
				if errors.Is(err, licensing.ErrUnknownLicense) {
					http.Error(w, `{"error":"invalid license key"}`, http.StatusUnauthorized)
					return
				}
				http.Error(w, `{"error":"license resolution failed"}`, http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ctxLicenseKey, lic)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireLicenseKey only extracts the raw key without resolving it,
// for paths that must not trigger re-verification (crediting, status).
func RequireLicenseKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(LicenseHeader)
		if key == "" {
			http.Error(w, `{"error":"license key required"}`, http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), ctxRawKeyKey, key)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LicenseFromCtx returns the resolved license or nil.
func LicenseFromCtx(ctx context.Context) *models.License {
	lic, _ := ctx.Value(ctxLicenseKey).(*models.License)
	return lic
}

// WithLicense returns a context carrying the given license.
func WithLicense(ctx context.Context, lic *models.License) context.Context {
	return context.WithValue(ctx, ctxLicenseKey, lic)
}

// RawKeyFromCtx returns the unresolved license key or "".
func RawKeyFromCtx(ctx context.Context) string {
	key, _ := ctx.Value(ctxRawKeyKey).(string)
	return key
}

// WithRawKey returns a context carrying the raw license key.
func WithRawKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, ctxRawKeyKey, key)
}
