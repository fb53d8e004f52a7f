// client.go -- shared authorization-code-flow client.
//
// Google and SoundCloud differ only in endpoints, scopes, extra authorize
// params, the userinfo Authorization scheme, and the profile payload shape.
// Everything protocol-level lives here; google.go and soundcloud.go supply the
// per-provider pieces.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// requestTimeout bounds every provider round trip. No operation here retries
// automatically; the single refresh-and-retry lives in the token custodian.
const requestTimeout = 30 * time.Second

// maxErrorBody caps how much of a provider error body is read for
// classification and logging.
const maxErrorBody = 2048

// endpoints is the per-provider URL set.
type endpoints struct {
	authURL     string
	tokenURL    string
	userInfoURL string
}

// client implements Provider for any authorization-code provider.
type client struct {
	name       string
	cfg        Config
	endpoints  endpoints
	scopes     []string
	authParams []oauth2.AuthCodeOption // extra authorize-URL params (e.g. access_type=offline)
	authScheme string                  // userinfo Authorization scheme: "Bearer" or "OAuth"
	httpClient *http.Client
	mapProfile func(body []byte) (*Profile, error)
}

func (c *client) Name() string { return c.name }

// oauth2Config builds the x/oauth2 config for this provider.
// Constructed per call -- Config is immutable and this stays allocation-cheap.
func (c *client) oauth2Config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.endpoints.authURL,
			TokenURL: c.endpoints.tokenURL,
		},
		Scopes: c.scopes,
	}
}

// httpCtx injects the bounded-timeout HTTP client into ctx so x/oauth2 uses it
// for token-endpoint round trips.
func (c *client) httpCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// configError is the pre-I/O guard: every operation that would talk to the
// provider first fails fast when the client is not configured.
func (c *client) configError() error {
	if !c.cfg.Configured() {
		return &Error{Kind: KindConfiguration, Provider: c.name,
			cause: errors.New("client id or redirect URI not configured")}
	}
	return nil
}

// AuthCodeURL builds the consent-page URL. Pure construction, no network I/O.
func (c *client) AuthCodeURL(state string) (string, error) {
	if err := c.configError(); err != nil {
		return "", err
	}
	return c.oauth2Config().AuthCodeURL(state, c.authParams...), nil
}

// Exchange performs the authorization_code grant round trip.
func (c *client) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	if err := c.configError(); err != nil {
		return nil, err
	}
	tok, err := c.oauth2Config().Exchange(c.httpCtx(ctx), code)
	if err != nil {
		return nil, c.classifyTokenErr("exchanging code", err)
	}
	return tokenResponse(tok), nil
}

// Refresh performs the refresh_token grant round trip.
func (c *client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if err := c.configError(); err != nil {
		return nil, err
	}
	src := c.oauth2Config().TokenSource(c.httpCtx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, c.classifyTokenErr("refreshing token", err)
	}
	resp := tokenResponse(tok)
	// TokenSource echoes the input refresh token back; only a genuinely new
	// one should be persisted over the stored value.
	if resp.RefreshToken == refreshToken {
		resp.RefreshToken = ""
	}
	return resp, nil
}

// FetchProfile GETs the userinfo endpoint and maps the payload.
func (c *client) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building userinfo request: %w", err)
	}
	req.Header.Set("Authorization", c.authScheme+" "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Provider: c.name, cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Provider: c.name, cause: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &Error{Kind: KindInvalidToken, Provider: c.name,
			cause: fmt.Errorf("userinfo returned 401")}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, &Error{Kind: KindUnavailable, Provider: c.name,
			cause: fmt.Errorf("userinfo returned %d: %s", resp.StatusCode, truncate(body))}
	}

	profile, err := c.mapProfile(body)
	if err != nil {
		return nil, &Error{Kind: KindUnavailable, Provider: c.name,
			cause: fmt.Errorf("parsing userinfo payload: %w", err)}
	}
	return profile, nil
}

// classifyTokenErr turns an x/oauth2 error into a classified *Error. A
// *oauth2.RetrieveError carries the raw status and body, which feed the pure
// classifier; anything else (timeout, connection refused, TLS) is transient.
func (c *client) classifyTokenErr(op string, err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		kind := classify(re.Response.StatusCode, re.Body)
		return &Error{Kind: kind, Provider: c.name,
			cause: fmt.Errorf("%s: status %d: %s", op, re.Response.StatusCode, truncate(re.Body))}
	}
	return &Error{Kind: KindUnavailable, Provider: c.name, cause: fmt.Errorf("%s: %w", op, err)}
}

// tokenResponse converts an oauth2.Token. A zero Expiry means the provider
// reported no expires_in -- the token is treated as non-expiring.
func tokenResponse(tok *oauth2.Token) *TokenResponse {
	return &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.Expiry,
	}
}

// truncate clips a provider body for log output.
func truncate(body []byte) string {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return string(body)
}
