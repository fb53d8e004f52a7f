// middleware_test.go
package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/setlog/setlog/internal/token"
)

func TestRequireAuth(t *testing.T) {
	issuer := token.NewIssuer(testJWTSecret, time.Hour)
	userID := uuid.Must(uuid.NewV7())

	// Echo handler records the user ID the middleware injected.
	var gotID uuid.UUID
	var gotOK bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	protected := RequireAuth(issuer)(next)

	do := func(authorization string) *httptest.ResponseRecorder {
		gotID, gotOK = uuid.Nil, false
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		return rec
	}

	t.Run("valid token passes through", func(t *testing.T) {
		signed, err := issuer.Issue(userID)
		if err != nil {
			t.Fatalf("Issue: %v", err)
		}
		rec := do("Bearer " + signed)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
		if !gotOK || gotID != userID {
			t.Error("user ID not injected into context")
		}
	})

	t.Run("missing header", func(t *testing.T) {
		if rec := do(""); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("wrong scheme", func(t *testing.T) {
		signed, _ := issuer.Issue(userID)
		if rec := do("Basic " + signed); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("garbage token", func(t *testing.T) {
		if rec := do("Bearer not-a-jwt"); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("token signed with another secret", func(t *testing.T) {
		other := token.NewIssuer([]byte("some-other-secret-value-here"), time.Hour)
		signed, _ := other.Issue(userID)
		if rec := do("Bearer " + signed); rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
		if gotOK {
			t.Error("handler must not run for a rejected token")
		}
	})
}
