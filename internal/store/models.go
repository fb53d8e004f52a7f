// models.go -- Shared domain types for the store package.
// Used by both Postgres (durable store) and the pending-authorization stores.
package store

import (
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrConflict is returned when an insert or update hits a uniqueness constraint
// (duplicate username, email, or provider identity). Callers use errors.Is to
// distinguish a write race from an infrastructure failure; conflicts are
// reported to the end user as "please try again" and never retried automatically.
var ErrConflict = errors.New("store conflict")

// ErrNoPassword is returned by GetPwdHashByUserID when the user exists but has
// no password_hash. This occurs for OAuth-only users.
var ErrNoPassword = errors.New("user has no password")

// User represents a row in the users table.
// Nullable columns are pointers — nil means SQL NULL.
type User struct {
	ID           uuid.UUID
	Username     string
	Email        string
	PasswordHash *string
	DisplayName  *string
	AvatarURL    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ProviderCredential represents a row in the provider_identities table: one
// linked external identity plus its token material for a single (user, provider)
// pair. AccessToken nil means the link exists but cannot call the provider's
// API; ExpiresAt nil means the token never expires for scheduling purposes.
type ProviderCredential struct {
	UserID         uuid.UUID
	Provider       string
	ProviderUserID string
	AccessToken    *string
	RefreshToken   *string
	ExpiresAt      *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
