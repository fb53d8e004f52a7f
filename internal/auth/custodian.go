// custodian.go -- Provider token lifecycle.
//
// The custodian is the only component that reads or writes stored provider
// tokens after the initial sign-in. Callers ask for a usable access token (or
// a profile fetched with one) and never see refresh mechanics. All refresh
// decisions for one (user, provider) pair are serialized through a per-pair
// lock, so concurrent callers trigger at most one refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/setlog/setlog/internal/oauth"
	"github.com/setlog/setlog/internal/store"
)

// expiryBuffer is how long before the recorded expiry a token is already
// treated as expired. Covers clock skew against the provider plus the time
// the token spends in flight to the provider's API.
const expiryBuffer = 5 * time.Minute

var (
	// ErrNotLinked -- the user has no stored access token for the provider,
	// either because they never linked it or because a dead refresh token
	// forced the stored tokens to be cleared.
	ErrNotLinked = errors.New("provider not linked")

	// ErrRefreshUnavailable -- the stored access token is expired and cannot
	// be refreshed (no refresh token, or the provider rejected it). The user
	// must go through the authorization flow again.
	ErrRefreshUnavailable = errors.New("re-authorization required")
)

// CredentialStore is the slice of the persistence layer the custodian needs.
type CredentialStore interface {
	GetProviderCredential(ctx context.Context, userID uuid.UUID, provider string) (*store.ProviderCredential, error)
	UpdateProviderTokens(ctx context.Context, userID uuid.UUID, provider string, accessToken, refreshToken *string, expiresAt *time.Time) error
	ClearProviderTokens(ctx context.Context, userID uuid.UUID, provider string) error
}

// Custodian hands out valid provider access tokens, refreshing transparently
// when the stored one is expired or about to expire.
type Custodian struct {
	store     CredentialStore
	providers map[string]oauth.Provider
	now       func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewCustodian(s CredentialStore, providers map[string]oauth.Provider) *Custodian {
	return NewCustodianWithClock(s, providers, time.Now)
}

// NewCustodianWithClock injects the clock used for expiry decisions.
func NewCustodianWithClock(s CredentialStore, providers map[string]oauth.Provider, now func() time.Time) *Custodian {
	return &Custodian{
		store:     s,
		providers: providers,
		now:       now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// lock acquires the serialization lock for one (user, provider) pair and
// returns its release func. Lock entries are never removed; the map is
// bounded by active users times configured providers.
func (c *Custodian) lock(userID uuid.UUID, provider string) func() {
	key := userID.String() + "/" + provider
	c.mu.Lock()
	m, ok := c.locks[key]
	if !ok {
		m = &sync.Mutex{}
		c.locks[key] = m
	}
	c.mu.Unlock()
	m.Lock()
	return m.Unlock
}

// EnsureValid returns an access token for the provider that is not within
// expiryBuffer of its recorded expiry, refreshing and persisting new tokens
// if needed. Tokens with no recorded expiry are returned as-is.
func (c *Custodian) EnsureValid(ctx context.Context, userID uuid.UUID, provider string) (string, error) {
	unlock := c.lock(userID, provider)
	defer unlock()
	return c.ensureLocked(ctx, userID, provider, false)
}

// ensureLocked implements the refresh decision. When force is set the stored
// token's expiry is ignored and a refresh is attempted unconditionally --
// used after a userinfo 401 proves the token dead regardless of bookkeeping.
// Caller must hold the pair lock.
func (c *Custodian) ensureLocked(ctx context.Context, userID uuid.UUID, provider string, force bool) (string, error) {
	p, ok := c.providers[provider]
	if !ok {
		return "", fmt.Errorf("unknown provider %q", provider)
	}

	cred, err := c.store.GetProviderCredential(ctx, userID, provider)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotLinked
	}
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}
	if cred.AccessToken == nil {
		return "", ErrNotLinked
	}

	if !force && !c.needsRefresh(cred) {
		return *cred.AccessToken, nil
	}

	if cred.RefreshToken == nil {
		return "", ErrRefreshUnavailable
	}

	resp, err := p.Refresh(ctx, *cred.RefreshToken)
	if err != nil {
		if oauth.KindOf(err) == oauth.KindInvalidGrant {
			// Dead refresh token: clear stored tokens so later calls fail
			// fast with ErrNotLinked instead of repeating the round trip.
			if clearErr := c.store.ClearProviderTokens(ctx, userID, provider); clearErr != nil {
				return "", fmt.Errorf("clearing dead credentials: %w", clearErr)
			}
			return "", fmt.Errorf("%w: %v", ErrRefreshUnavailable, err)
		}
		return "", err
	}
	if resp.AccessToken == "" {
		return "", oauth.NewError(oauth.KindUnavailable, provider,
			errors.New("refresh response carried no access token"))
	}

	access := resp.AccessToken
	var refresh *string
	if resp.RefreshToken != "" {
		refresh = &resp.RefreshToken
	}
	var expiresAt *time.Time
	if !resp.ExpiresAt.IsZero() {
		expiresAt = &resp.ExpiresAt
	}
	if err := c.store.UpdateProviderTokens(ctx, userID, provider, &access, refresh, expiresAt); err != nil {
		return "", fmt.Errorf("persisting refreshed tokens: %w", err)
	}
	return access, nil
}

// needsRefresh reports whether the stored token is inside the expiry buffer.
func (c *Custodian) needsRefresh(cred *store.ProviderCredential) bool {
	if cred.ExpiresAt == nil {
		return false
	}
	return !c.now().Add(expiryBuffer).Before(*cred.ExpiresAt)
}

// FetchProfile fetches the provider's current profile for the user, handling
// token expiry transparently. A userinfo 401 on a token the bookkeeping
// considered valid triggers exactly one forced refresh and retry; a second
// 401 is returned to the caller as-is.
func (c *Custodian) FetchProfile(ctx context.Context, userID uuid.UUID, provider string) (*oauth.Profile, error) {
	p, ok := c.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	token, err := c.EnsureValid(ctx, userID, provider)
	if err != nil {
		return nil, err
	}

	profile, err := p.FetchProfile(ctx, token)
	if err == nil {
		return profile, nil
	}
	if oauth.KindOf(err) != oauth.KindInvalidToken {
		return nil, err
	}

	unlock := c.lock(userID, provider)
	token, err = c.ensureLocked(ctx, userID, provider, true)
	unlock()
	if err != nil {
		return nil, err
	}
	return p.FetchProfile(ctx, token)
}
