// oauth_handler.go -- Generic OAuth2 authorize and callback handlers.
// Provider-specific logic lives in internal/oauth/*.go.
// Adding a new provider: implement oauth.Provider, register it in main.go.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/setlog/setlog/internal/config"
	"github.com/setlog/setlog/internal/oauth"
	"github.com/setlog/setlog/internal/store"
)

// GenerateState returns a fresh unguessable state token for the OAuth
// round-trip: 32 bytes from crypto/rand, URL-safe base64 without padding.
func GenerateState() (string, error) {
	var raw [32]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// Authorize handles GET /auth/{provider}/authorize -- registers a single-use
// state token and returns the provider consent-page URL for the client to
// navigate to. 503 when the provider fails the configuration policy, so a
// misconfigured deployment is caught before anyone leaves the site.
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	name, provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	if err := config.ValidateProvider(h.ProviderConfigs[name], h.Environment); err != nil {
		logWarn(r, "authorize on misconfigured provider", "provider", name, "error", err)
		ServiceUnavailable(w, "sign-in is not available right now")
		return
	}

	state, err := GenerateState()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	if err := h.Pending.Put(r.Context(), state, h.PendingTTL); err != nil {
		logError(r, "failed to register pending authorization", "error", err)
		InternalServerError(w, r, err)
		return
	}

	authURL, err := provider.AuthCodeURL(state)
	if err != nil {
		h.writeProviderError(w, r, name, err)
		return
	}

	logInfo(r, "authorization started", "provider", name)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp, _ := json.Marshal(map[string]string{
		"authorization_url": authURL,
		"state":             state,
	})
	w.Write(resp)
}

// Callback handles POST /auth/{provider}/callback -- consumes the state,
// exchanges the code, fetches the verified profile, resolves it to a local
// account, and issues a session token. The state check is uniform: unknown,
// expired, and replayed states are indistinguishable to the caller.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	name, provider, ok := h.provider(w, r)
	if !ok {
		return
	}

	// The provider redirect carries code and state as query params; clients
	// relaying them in a JSON body are accepted too.
	input := struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}{
		Code:  r.URL.Query().Get("code"),
		State: r.URL.Query().Get("state"),
	}
	if input.Code == "" && input.State == "" {
		if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
			logWarn(r, "failed to decode callback input", "error", err)
			BadRequest(w, r, "error decoding request body")
			return
		}
	}
	if input.Code == "" || input.State == "" {
		BadRequest(w, r, "code and state are required")
		return
	}

	consumed, err := h.Pending.Take(r.Context(), input.State)
	if err != nil {
		logError(r, "failed to consume pending authorization", "error", err)
		InternalServerError(w, r, err)
		return
	}
	if !consumed {
		logWarn(r, "callback with invalid state", "provider", name)
		BadRequest(w, r, "invalid or expired state")
		return
	}

	tokens, err := provider.Exchange(r.Context(), input.Code)
	if err != nil {
		h.writeProviderError(w, r, name, err)
		return
	}
	if tokens.AccessToken == "" {
		logWarn(r, "exchange returned no access token", "provider", name)
		BadRequest(w, r, "provider did not issue an access token")
		return
	}

	profile, err := provider.FetchProfile(r.Context(), tokens.AccessToken)
	if err != nil {
		h.writeProviderError(w, r, name, err)
		return
	}

	userID, err := h.Resolver.Resolve(r.Context(), name, profile, tokens)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			logWarn(r, "account resolution hit a uniqueness race", "provider", name, "error", err)
			Conflict(w, "account could not be created, please try again")
			return
		}
		logError(r, "account resolution failed", "provider", name, "error", err)
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "oauth sign-in completed", "provider", name, "user_id", userID)
	h.issueSession(w, r, userID)
}

// ProviderConfig handles GET /auth/{provider}/config -- deployment
// diagnostics. Reports whether the provider has credentials at all and
// whether they pass the environment's redirect-URI policy. Never includes
// the credential values themselves.
func (h *AuthHandler) ProviderConfig(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "provider")
	cfg, ok := h.ProviderConfigs[name]
	if !ok {
		NotFound(w)
		return
	}

	valid := config.ValidateProvider(cfg, h.Environment) == nil

	w.Header().Set("Content-Type", "application/json")
	resp, _ := json.Marshal(map[string]any{
		"provider":   name,
		"configured": cfg.Configured(),
		"valid":      valid,
	})
	w.Write(resp)
}

// ProviderProfile handles GET /auth/{provider}/profile -- returns the
// provider's current view of the authenticated user, refreshing the stored
// access token behind the scenes when needed.
func (h *AuthHandler) ProviderProfile(w http.ResponseWriter, r *http.Request) {
	name, _, ok := h.provider(w, r)
	if !ok {
		return
	}

	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		InternalServerError(w, r, errors.New("missing auth context"))
		return
	}

	profile, err := h.Custodian.FetchProfile(r.Context(), userID, name)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotLinked):
			BadRequest(w, r, "account is not linked to "+name)
		case errors.Is(err, ErrRefreshUnavailable):
			logInfo(r, "provider re-authorization required", "provider", name, "user_id", userID)
			Unauthorized(w, r, "provider authorization expired, please sign in with "+name+" again")
		default:
			h.writeProviderError(w, r, name, err)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp, _ := json.Marshal(map[string]string{
		"provider":         name,
		"provider_user_id": profile.ProviderUserID,
		"email":            profile.Email,
		"display_name":     profile.DisplayName,
		"avatar_url":       profile.AvatarURL,
	})
	w.Write(resp)
}

// provider reads the {provider} URL param and looks it up in Providers.
// Writes 404 and returns ok=false when the provider is unknown.
func (h *AuthHandler) provider(w http.ResponseWriter, r *http.Request) (string, oauth.Provider, bool) {
	name := chi.URLParam(r, "provider")
	p, ok := h.Providers[name]
	if !ok {
		NotFound(w)
		return "", nil, false
	}
	return name, p, true
}

// writeProviderError maps a classified provider failure to an HTTP response.
// Configuration and availability problems are 503 (nothing the user did);
// rejected grants and tokens are the user's to fix by signing in again.
// Unclassified errors are internal bugs and surface as 500.
func (h *AuthHandler) writeProviderError(w http.ResponseWriter, r *http.Request, name string, err error) {
	var pe *oauth.Error
	if !errors.As(err, &pe) {
		logError(r, "unclassified provider error", "provider", name, "error", err)
		InternalServerError(w, r, err)
		return
	}

	logWarn(r, "provider interaction failed", "provider", name, "error", err)
	switch pe.Kind {
	case oauth.KindInvalidGrant:
		BadRequest(w, r, pe.UserMessage())
	case oauth.KindInvalidToken:
		Unauthorized(w, r, pe.UserMessage())
	default:
		// Configuration, invalid client credentials, provider unreachable.
		ServiceUnavailable(w, pe.UserMessage())
	}
}
