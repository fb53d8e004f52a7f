// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"context"
	"encoding/json"
	"net/http"
)

// CheckHealth handles GET /health — pings Postgres and, when the
// pending-authorization store is backed by Redis, Redis too. Returns 200 when
// everything answers, 503 otherwise. The in-process pending store has nothing
// to ping and reports "in-process".
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	pendingStatus := "in-process"

	if err := h.PS.CheckHealth(r.Context()); err != nil {
		logError(r, "postgres health check failed", "error", err)
		dbStatus = "error"
	}

	if hc, ok := h.Pending.(interface{ CheckHealth(context.Context) error }); ok {
		pendingStatus = "ok"
		if err := hc.CheckHealth(r.Context()); err != nil {
			logError(r, "pending store health check failed", "error", err)
			pendingStatus = "error"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if dbStatus == "error" || pendingStatus == "error" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}
	json.NewEncoder(w).Encode(struct {
		Postgres    string `json:"postgres"`
		PendingAuth string `json:"pending_auth"`
	}{dbStatus, pendingStatus})
}
