// Package store handles all database and pending-authorization state.
//
// postgres.go -- pgxpool connection setup and queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// The store used by the program to connect with the Postgres db.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and returns a verified connection pool
// to PostgreSQL wrapped in a ready-to-use store.
// Call once at startup from main.go; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	// Ping db to make sure connection works
	err = pool.Ping(ctx)
	if err != nil {
		return nil, err
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
// Call via defer in main.go after creating the store.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings the database.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// mapConflict converts a Postgres unique violation (23505) into ErrConflict,
// wrapping so the constraint name stays visible in logs. Other errors pass
// through untouched.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
	}
	return err
}

const userColumns = "id, username, email, password_hash, display_name, avatar_url, created_at, updated_at"

// scanUser reads a users row into a User. Row order must match userColumns.
func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.DisplayName, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row. The caller generates the UUID v7 and (for
// password accounts) the Argon2id hash before calling this. passwordHash,
// displayName, and avatarURL may be nil -- OAuth-only accounts have no password.
// Duplicate username or email returns ErrConflict.
func (s *PostgresStore) CreateUser(ctx context.Context, id uuid.UUID, username, email string, passwordHash, displayName, avatarURL *string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO users (id, username, email, password_hash, display_name, avatar_url) VALUES ($1, $2, $3, $4, $5, $6)",
		id, username, email, passwordHash, displayName, avatarURL)
	return mapConflict(err)
}

// GetUserByID fetches a user by primary key.
// Returns pgx.ErrNoRows if not found.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1", id))
}

// GetUserByEmail fetches a user by exact email match.
// Returns pgx.ErrNoRows if not found.
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1", email))
}

// GetUserByLogin fetches a user whose username OR email matches the given
// identifier. Used by password login, which accepts either.
func (s *PostgresStore) GetUserByLogin(ctx context.Context, login string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		"SELECT "+userColumns+" FROM users WHERE username = $1 OR email = $1", login))
}

// GetUserByProviderID fetches the user linked to (provider, providerUserID).
// Returns pgx.ErrNoRows if no account carries that identity.
func (s *PostgresStore) GetUserByProviderID(ctx context.Context, provider, providerUserID string) (*User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT u.id, u.username, u.email, u.password_hash, u.display_name, u.avatar_url, u.created_at, u.updated_at
		 FROM users u
		 JOIN provider_identities pi ON pi.user_id = u.id
		 WHERE pi.provider = $1 AND pi.provider_user_id = $2`,
		provider, providerUserID))
}

// UsernameExists reports whether any user holds the given username.
func (s *PostgresStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)", username).Scan(&exists)
	return exists, err
}

// EmailExists reports whether any user holds the given email.
func (s *PostgresStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)", email).Scan(&exists)
	return exists, err
}

// GetPwdHashByUserID fetches the Argon2id hash for password verification.
// Returns ErrNoPassword for OAuth-only accounts (NULL password_hash).
func (s *PostgresStore) GetPwdHashByUserID(ctx context.Context, id uuid.UUID) (string, error) {
	var hash *string
	err := s.pool.QueryRow(ctx,
		"SELECT password_hash FROM users WHERE id = $1", id).Scan(&hash)
	if err != nil {
		return "", err
	}
	if hash == nil {
		return "", ErrNoPassword
	}
	return *hash, nil
}

// SetProfileIfEmpty fills display_name and/or avatar_url ONLY where the stored
// value is currently NULL. COALESCE keeps a populated local value authoritative
// over whatever the provider sent -- repeated logins never clobber user edits.
func (s *PostgresStore) SetProfileIfEmpty(ctx context.Context, id uuid.UUID, displayName, avatarURL *string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE users SET
			display_name = COALESCE(display_name, $2),
			avatar_url = COALESCE(avatar_url, $3),
			updated_at = now()
		 WHERE id = $1`,
		id, displayName, avatarURL)
	return err
}

// GetProviderCredential fetches the credential row for (userID, provider).
// Returns pgx.ErrNoRows when the account has never linked that provider.
func (s *PostgresStore) GetProviderCredential(ctx context.Context, userID uuid.UUID, provider string) (*ProviderCredential, error) {
	var c ProviderCredential
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, provider, provider_user_id, access_token, refresh_token, expires_at, created_at, updated_at
		 FROM provider_identities WHERE user_id = $1 AND provider = $2`,
		userID, provider).Scan(
		&c.UserID, &c.Provider, &c.ProviderUserID, &c.AccessToken, &c.RefreshToken, &c.ExpiresAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// UpsertProviderCredential links (provider, providerUserID) to the user and
// stores the token set, inserting on first link and overwriting token fields on
// every later login -- fresh tokens from the provider always win. A racing
// insert of the same provider identity on another account returns ErrConflict.
func (s *PostgresStore) UpsertProviderCredential(ctx context.Context, userID uuid.UUID, provider, providerUserID string, accessToken, refreshToken *string, expiresAt *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_identities (user_id, provider, provider_user_id, access_token, refresh_token, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, provider) DO UPDATE SET
			provider_user_id = EXCLUDED.provider_user_id,
			access_token = EXCLUDED.access_token,
			refresh_token = COALESCE(EXCLUDED.refresh_token, provider_identities.refresh_token),
			expires_at = EXCLUDED.expires_at,
			updated_at = now()`,
		userID, provider, providerUserID, accessToken, refreshToken, expiresAt)
	return mapConflict(err)
}

// UpdateProviderTokens overwrites the token fields after a refresh. The
// refresh_token is only replaced when the provider returned a new one (non-nil
// refreshToken) -- many providers omit it on refresh and the old one stays valid.
func (s *PostgresStore) UpdateProviderTokens(ctx context.Context, userID uuid.UUID, provider string, accessToken, refreshToken *string, expiresAt *time.Time) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE provider_identities SET
			access_token = $3,
			refresh_token = COALESCE($4, refresh_token),
			expires_at = $5,
			updated_at = now()
		 WHERE user_id = $1 AND provider = $2`,
		userID, provider, accessToken, refreshToken, expiresAt)
	return err
}

// ClearProviderTokens nulls access_token, refresh_token, and expires_at for
// (userID, provider). Called when a refresh token is rejected as invalid_grant:
// the token material is permanently dead and keeping it would make every later
// call repeat the same failed refresh. The provider_user_id link is kept.
func (s *PostgresStore) ClearProviderTokens(ctx context.Context, userID uuid.UUID, provider string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE provider_identities SET
			access_token = NULL, refresh_token = NULL, expires_at = NULL, updated_at = now()
		 WHERE user_id = $1 AND provider = $2`,
		userID, provider)
	return err
}
