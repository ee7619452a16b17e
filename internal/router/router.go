package router

import (
	"net/http"

	"github.com/solpumpai/backend/internal/admin"
	"github.com/solpumpai/backend/internal/auth"
)

// New returns an http.Handler serving the admin API under /api/v1.
func New(authHandler *auth.Handler, adminHandler *admin.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc(base+"/auth/register", authHandler.Register)
	mux.HandleFunc(base+"/auth/login", authHandler.Login)

	mux.HandleFunc(base+"/admin/licenses", methodGET(adminHandler.ListLicenses))
	mux.HandleFunc(base+"/admin/verifications", methodGET(adminHandler.ListVerifications))
	mux.HandleFunc(base+"/admin/payments", methodGET(adminHandler.ListPayments))
	mux.HandleFunc(base+"/admin/stats", methodGET(adminHandler.Stats))

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
