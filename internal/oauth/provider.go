// provider.go -- OAuth provider interface and shared types.
package oauth

import (
	"context"
	"time"
)

// Profile holds the normalized identity a provider reports for a token's owner.
// All fields come from the provider's userinfo endpoint, verified server-side;
// never trust client-supplied values. Every field except ProviderUserID is
// optional -- empty string means the provider did not report it. SoundCloud
// never reports an email. AvatarURL is a provider-hosted URL; safe to store,
// but consuming apps should use CSP or server-side proxying before rendering it.
type Profile struct {
	ProviderUserID string // provider-specific stable user ID (Google "id", SoundCloud numeric id)
	Email          string
	DisplayName    string
	AvatarURL      string
}

// TokenResponse is the validated result of a code exchange or refresh.
// RefreshToken is empty when the provider did not issue one (common on
// refresh, and on SoundCloud's non-expiring grants). ExpiresAt is the zero
// time when the provider reported no expiry -- callers treat such tokens as
// non-expiring for refresh scheduling.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Provider is an OAuth2 identity provider (Google, SoundCloud).
// Implementations handle provider-specific endpoints, scopes, userinfo
// authorization schemes, and profile payload shapes.
type Provider interface {
	// Name returns the provider identifier used as the URL param and stored in the DB.
	Name() string

	// AuthCodeURL returns the provider's consent-page URL with client_id,
	// redirect_uri, response_type=code, scope, and the given state embedded.
	// Pure construction: fails with a KindConfiguration error, before any
	// network I/O, when the client id or redirect URI is not configured.
	AuthCodeURL(state string) (string, error)

	// Exchange trades an authorization code for tokens (grant_type=
	// authorization_code). Non-2xx responses are classified into the closed
	// error taxonomy; raw provider bodies never leave this boundary. A 2xx
	// response missing an access token yields a TokenResponse with an empty
	// AccessToken -- callers decide how to report that.
	Exchange(ctx context.Context, code string) (*TokenResponse, error)

	// FetchProfile GETs the provider's userinfo endpoint with the access
	// token. 401 is classified KindInvalidToken; other failures KindUnavailable.
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)

	// Refresh obtains a new access token (grant_type=refresh_token). Same
	// classification as Exchange; KindInvalidGrant here means the refresh
	// token itself is dead and the caller must force full re-authorization.
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
}

// Config is the per-provider client credential triple. Presence is checked by
// the client before any network I/O; the environment policy on RedirectURI
// (https in production) is enforced by internal/config at startup and on every
// authorize call.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Configured reports whether the fields needed to start an authorization flow
// are present. ClientSecret is only needed at exchange time, so it is not part
// of this check -- matching the diagnostics endpoint's "configured" flag.
func (c Config) Configured() bool {
	return c.ClientID != "" && c.RedirectURI != ""
}
