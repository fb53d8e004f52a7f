// resolver.go -- Maps verified provider identities to local accounts.
//
// Resolution order: existing provider link, then email match, then a fresh
// account. Linking by email never touches the account's password, and profile
// merge only fills fields the account has never set -- a later sign-in can
// never overwrite a display name or avatar the user already has.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/setlog/setlog/internal/oauth"
	"github.com/setlog/setlog/internal/store"
)

// maxUsernameAttempts caps collision suffix probing during account creation.
const maxUsernameAttempts = 50

// IdentityStore is the slice of the persistence layer the resolver needs.
type IdentityStore interface {
	GetUserByProviderID(ctx context.Context, provider, providerUserID string) (*store.User, error)
	GetUserByEmail(ctx context.Context, email string) (*store.User, error)
	GetProviderCredential(ctx context.Context, userID uuid.UUID, provider string) (*store.ProviderCredential, error)
	UpsertProviderCredential(ctx context.Context, userID uuid.UUID, provider, providerUserID string, accessToken, refreshToken *string, expiresAt *time.Time) error
	SetProfileIfEmpty(ctx context.Context, id uuid.UUID, displayName, avatarURL *string) error
	CreateUser(ctx context.Context, id uuid.UUID, username, email string, passwordHash, displayName, avatarURL *string) error
	UsernameExists(ctx context.Context, username string) (bool, error)
	EmailExists(ctx context.Context, email string) (bool, error)
}

// Resolver turns a verified provider profile into a local account ID,
// creating or linking accounts as needed.
type Resolver struct {
	store IdentityStore
}

func NewResolver(s IdentityStore) *Resolver {
	return &Resolver{store: s}
}

// Resolve finds or creates the local account for a provider identity and
// persists the tokens from the just-completed exchange. Safe to call again
// for the same identity; repeat sign-ins land on the same account.
func (r *Resolver) Resolve(ctx context.Context, provider string, profile *oauth.Profile, tokens *oauth.TokenResponse) (uuid.UUID, error) {
	// Existing link for this exact provider identity.
	user, err := r.store.GetUserByProviderID(ctx, provider, profile.ProviderUserID)
	if err == nil {
		return user.ID, r.attach(ctx, user.ID, provider, profile, tokens)
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("looking up provider identity: %w", err)
	}

	// Same verified email as an existing account: link, unless that account
	// already carries a link for this provider (a different identity at the
	// same provider must not hijack it).
	if profile.Email != "" {
		user, err = r.store.GetUserByEmail(ctx, profile.Email)
		switch {
		case err == nil:
			_, credErr := r.store.GetProviderCredential(ctx, user.ID, provider)
			if errors.Is(credErr, pgx.ErrNoRows) {
				return user.ID, r.attach(ctx, user.ID, provider, profile, tokens)
			}
			if credErr != nil {
				return uuid.Nil, fmt.Errorf("checking existing link: %w", credErr)
			}
			// Fall through to account creation.
		case !errors.Is(err, pgx.ErrNoRows):
			return uuid.Nil, fmt.Errorf("looking up account by email: %w", err)
		}
	}

	return r.create(ctx, provider, profile, tokens)
}

// attach persists the provider link and tokens on an existing account and
// fills any profile fields the account has never set.
func (r *Resolver) attach(ctx context.Context, userID uuid.UUID, provider string, profile *oauth.Profile, tokens *oauth.TokenResponse) error {
	access, refresh, expiresAt := tokenColumns(tokens)
	if err := r.store.UpsertProviderCredential(ctx, userID, provider, profile.ProviderUserID, access, refresh, expiresAt); err != nil {
		return fmt.Errorf("storing provider credentials: %w", err)
	}
	displayName, avatarURL := profileColumns(profile)
	if displayName == nil && avatarURL == nil {
		return nil
	}
	if err := r.store.SetProfileIfEmpty(ctx, userID, displayName, avatarURL); err != nil {
		return fmt.Errorf("merging profile: %w", err)
	}
	return nil
}

// create makes a new password-less account for the provider identity.
func (r *Resolver) create(ctx context.Context, provider string, profile *oauth.Profile, tokens *oauth.TokenResponse) (uuid.UUID, error) {
	username, err := r.pickUsername(ctx, provider, profile)
	if err != nil {
		return uuid.Nil, err
	}
	email, err := r.pickEmail(ctx, provider, username, profile.Email)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return uuid.Nil, fmt.Errorf("generating user id: %w", err)
	}
	displayName, avatarURL := profileColumns(profile)
	if err := r.store.CreateUser(ctx, id, username, email, nil, displayName, avatarURL); err != nil {
		return uuid.Nil, fmt.Errorf("creating account: %w", err)
	}
	return id, r.attach(ctx, id, provider, profile, tokens)
}

// pickUsername synthesizes a unique username from the profile. Preference
// order: display name, email local part, "{provider}_user"; collisions get a
// numeric suffix (base, base_1, base_2, ...).
func (r *Resolver) pickUsername(ctx context.Context, provider string, profile *oauth.Profile) (string, error) {
	base := normalizeUsername(profile.DisplayName)
	if base == "" {
		local, _, _ := strings.Cut(profile.Email, "@")
		base = normalizeUsername(local)
	}
	if base == "" {
		base = provider + "_user"
	}

	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		taken, err := r.store.UsernameExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking username: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d", base, i)
	}
	return "", fmt.Errorf("could not find a free username for %q", base)
}

// pickEmail returns the provider-reported email when it is free, otherwise a
// synthetic address in the provider's reserved domain. The synthetic domain
// ("{provider}.oauth") is not a real TLD, so these can never collide with a
// deliverable address a user registers.
func (r *Resolver) pickEmail(ctx context.Context, provider, username, reported string) (string, error) {
	if reported != "" {
		taken, err := r.store.EmailExists(ctx, reported)
		if err != nil {
			return "", fmt.Errorf("checking email: %w", err)
		}
		if !taken {
			return reported, nil
		}
	}

	base := username + "@" + provider + ".oauth"
	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		taken, err := r.store.EmailExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("checking email: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s_%d@%s.oauth", username, i, provider)
	}
	return "", fmt.Errorf("could not find a free synthetic email for %q", username)
}

// normalizeUsername lowercases and strips the input down to [a-z0-9_],
// mapping spaces and dashes to underscores. Returns "" when nothing usable
// remains or the result is too short to be a valid username.
func normalizeUsername(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '.':
			b.WriteByte('_')
		}
	}
	out := b.String()
	if len(out) > 24 {
		out = out[:24]
	}
	if len(out) < 3 {
		return ""
	}
	return out
}

// tokenColumns converts a token response into nullable storage columns.
func tokenColumns(tokens *oauth.TokenResponse) (access, refresh *string, expiresAt *time.Time) {
	if tokens.AccessToken != "" {
		access = &tokens.AccessToken
	}
	if tokens.RefreshToken != "" {
		refresh = &tokens.RefreshToken
	}
	if !tokens.ExpiresAt.IsZero() {
		expiresAt = &tokens.ExpiresAt
	}
	return access, refresh, expiresAt
}

// profileColumns converts optional profile fields into nullable columns.
func profileColumns(profile *oauth.Profile) (displayName, avatarURL *string) {
	if profile.DisplayName != "" {
		displayName = &profile.DisplayName
	}
	if profile.AvatarURL != "" {
		avatarURL = &profile.AvatarURL
	}
	return displayName, avatarURL
}
