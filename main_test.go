// main_test.go
//
// Smoke tests: chi wiring via httptest.NewServer with in-memory stores.
// Catches middleware ordering, route grouping, and real HTTP header behavior
// that httptest.NewRecorder cannot exercise.
package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/setlog/setlog/internal/auth"
	"github.com/setlog/setlog/internal/config"
	"github.com/setlog/setlog/internal/oauth"
	"github.com/setlog/setlog/internal/store"
	"github.com/setlog/setlog/internal/testutil"
	"github.com/setlog/setlog/internal/token"
)

// newSmokeServer starts an httptest server on the full router, backed by the
// shared mocks and one provider named "mock".
func newSmokeServer(t *testing.T) (*httptest.Server, *testutil.MockStore, *testutil.MockProvider) {
	t.Helper()

	ms := testutil.NewMockStore()
	mp := &testutil.MockProvider{
		ProviderName: "mock",
		ExchangeResp: &oauth.TokenResponse{
			AccessToken:  "at-1",
			RefreshToken: "rt-1",
			ExpiresAt:    time.Now().Add(time.Hour),
		},
		ProfileResp: &oauth.Profile{
			ProviderUserID: "mock-100",
			Email:          "dj@example.com",
			DisplayName:    "DJ Mock",
		},
	}
	providers := map[string]oauth.Provider{"mock": mp}
	issuer := token.NewIssuer([]byte("smoke-test-secret-0123456789"), time.Hour)

	h := &auth.AuthHandler{
		PS:        ms,
		Tokens:    issuer,
		Custodian: auth.NewCustodian(ms, providers),
		Resolver:  auth.NewResolver(ms),

		Pending:    store.NewMemoryPendingStore(),
		PendingTTL: 10 * time.Minute,
		Providers:  providers,
		ProviderConfigs: map[string]oauth.Config{
			"mock": {
				ClientID:     "client-id",
				ClientSecret: "client-secret",
				RedirectURI:  "http://localhost:3000/callback",
			},
		},
		Environment: config.EnvDevelopment,
	}

	srv := httptest.NewServer(buildRouter(h, issuer))
	t.Cleanup(srv.Close)
	return srv, ms, mp
}

// doJSON issues a request and decodes the JSON response body.
func doJSON(t *testing.T, method, url, bearer, body string) (int, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var decoded map[string]any
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("decoding %q: %v", raw, err)
		}
	}
	return resp.StatusCode, decoded
}

func TestSmokeHealth(t *testing.T) {
	srv, _, _ := newSmokeServer(t)

	code, body := doJSON(t, http.MethodGet, srv.URL+"/health", "", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["postgres"] != "ok" {
		t.Errorf("postgres %v", body["postgres"])
	}
	if body["pending_auth"] != "in-process" {
		t.Errorf("pending_auth %v", body["pending_auth"])
	}
}

func TestSmokePasswordFlow(t *testing.T) {
	srv, _, _ := newSmokeServer(t)

	code, body := doJSON(t, http.MethodPost, srv.URL+"/auth/register", "",
		`{"username":"dj_smoke","email":"smoke@example.com","password":"longenough"}`)
	if code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %v", code, body)
	}

	code, body = doJSON(t, http.MethodPost, srv.URL+"/auth/login", "",
		`{"login":"dj_smoke","password":"longenough"}`)
	if code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %v", code, body)
	}
	bearer, _ := body["access_token"].(string)
	if bearer == "" {
		t.Fatal("login returned no access token")
	}

	code, body = doJSON(t, http.MethodGet, srv.URL+"/auth/me", bearer, "")
	if code != http.StatusOK {
		t.Fatalf("me: expected 200, got %d", code)
	}
	if body["username"] != "dj_smoke" {
		t.Errorf("me username %v", body["username"])
	}
}

func TestSmokeOAuthFlow(t *testing.T) {
	srv, ms, _ := newSmokeServer(t)

	code, body := doJSON(t, http.MethodGet, srv.URL+"/auth/mock/authorize", "", "")
	if code != http.StatusOK {
		t.Fatalf("authorize: expected 200, got %d: %v", code, body)
	}
	state, _ := body["state"].(string)
	if state == "" || body["authorization_url"] == "" {
		t.Fatalf("authorize body incomplete: %v", body)
	}

	code, body = doJSON(t, http.MethodPost, srv.URL+"/auth/mock/callback?code=authcode&state="+state, "", "")
	if code != http.StatusOK {
		t.Fatalf("callback: expected 200, got %d: %v", code, body)
	}
	bearer, _ := body["access_token"].(string)
	if bearer == "" {
		t.Fatal("callback returned no access token")
	}
	if len(ms.Users) != 1 {
		t.Fatalf("expected 1 created account, got %d", len(ms.Users))
	}

	code, body = doJSON(t, http.MethodGet, srv.URL+"/auth/mock/profile", bearer, "")
	if code != http.StatusOK {
		t.Fatalf("profile: expected 200, got %d: %v", code, body)
	}
	if body["provider_user_id"] != "mock-100" {
		t.Errorf("profile %v", body)
	}

	// Replayed state through the real router is still a 400.
	code, _ = doJSON(t, http.MethodPost, srv.URL+"/auth/mock/callback?code=authcode&state="+state, "", "")
	if code != http.StatusBadRequest {
		t.Errorf("replay: expected 400, got %d", code)
	}
}

func TestSmokeAuthRequired(t *testing.T) {
	srv, _, _ := newSmokeServer(t)

	for _, path := range []string{"/auth/me", "/auth/mock/profile"} {
		code, _ := doJSON(t, http.MethodGet, srv.URL+path, "", "")
		if code != http.StatusUnauthorized {
			t.Errorf("%s without token: expected 401, got %d", path, code)
		}
	}

	code, _ := doJSON(t, http.MethodGet, srv.URL+"/auth/me", "not-a-token", "")
	if code != http.StatusUnauthorized {
		t.Errorf("garbage token: expected 401, got %d", code)
	}
}

func TestSmokeProviderConfig(t *testing.T) {
	srv, _, _ := newSmokeServer(t)

	code, body := doJSON(t, http.MethodGet, srv.URL+"/auth/mock/config", "", "")
	if code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["configured"] != true || body["valid"] != true {
		t.Errorf("config body %v", body)
	}

	code, _ = doJSON(t, http.MethodGet, srv.URL+"/auth/myspace/config", "", "")
	if code != http.StatusNotFound {
		t.Errorf("unknown provider: expected 404, got %d", code)
	}
}
