// handler.go -- HTTP handlers for registration, login, and profile.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/setlog/setlog/internal/oauth"
	"github.com/setlog/setlog/internal/store"
	"github.com/setlog/setlog/internal/token"
)

// Store defines database operations needed by auth handlers.
// Satisfied by *store.PostgresStore — defined here (at consumer) per Go convention.
type Store interface {
	// CreateUser inserts a new user. passwordHash is nil for OAuth-only accounts.
	CreateUser(ctx context.Context, id uuid.UUID, username, email string, passwordHash, displayName, avatarURL *string) error

	// GetUserByID fetches a user by primary key.
	GetUserByID(ctx context.Context, id uuid.UUID) (*store.User, error)

	// GetUserByLogin fetches a user by username or email.
	GetUserByLogin(ctx context.Context, login string) (*store.User, error)

	// GetPwdHashByUserID fetches the Argon2id hash for password verification.
	// Returns store.ErrNoPassword for OAuth-only accounts.
	GetPwdHashByUserID(ctx context.Context, id uuid.UUID) (string, error)

	// CheckHealth pings the database.
	CheckHealth(ctx context.Context) error
}

// dummyPasswordHash is a precomputed Argon2id hash for timing attack mitigation.
// When a user doesn't exist (or has no password), verify against this so both
// paths take equal time.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=3,p=2$YWJjZGVmZ2hpamtsbW5vcA$kC6C6jqLzC0JLlJgXhHbKMhLLpVvLJLLQw/IqT9ZYPU"

// AuthHandler holds dependencies for all /auth/* HTTP handlers and middleware.
type AuthHandler struct {
	PS        Store
	Tokens    *token.Issuer
	Custodian *Custodian
	Resolver  *Resolver

	// OAuth flow dependencies; see oauth_handler.go.
	Pending         store.PendingStore
	PendingTTL      time.Duration
	Providers       map[string]oauth.Provider
	ProviderConfigs map[string]oauth.Config
	Environment     string
}

// Register handles POST /auth/register — username + email + password signup.
// Returns 201 with user_id, 400 for validation errors, 409 when the username
// or email is already taken.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerInput struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&registerInput); err != nil {
		logWarn(r, "failed to decode register input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	registerInput.Username = strings.ToLower(strings.TrimSpace(registerInput.Username))
	registerInput.Email = strings.ToLower(strings.TrimSpace(registerInput.Email))

	if msg := ValidateUsername(registerInput.Username); msg != "" {
		BadRequest(w, r, msg)
		return
	}
	if msg := ValidateEmail(registerInput.Email); msg != "" {
		BadRequest(w, r, msg)
		return
	}
	if msg := ValidatePassword(registerInput.Password); msg != "" {
		BadRequest(w, r, msg)
		return
	}

	hashedPassword, err := HashPassword(registerInput.Password)
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	userID, err := uuid.NewV7()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	err = h.PS.CreateUser(r.Context(), userID, registerInput.Username, registerInput.Email, &hashedPassword, nil, nil)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			logInfo(r, "registration attempted with taken username or email")
			Conflict(w, "username or email already in use")
			return
		}
		logError(r, "failed to create user", "error", err)
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "user registered", "user_id", userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write([]byte(`{"user_id":"` + userID.String() + `"}`))
}

// Login handles POST /auth/login — username-or-email + password authentication.
// Returns 200 with a bearer token, 401 for bad credentials. Argon2id dummy-hash
// equalises timing when the account doesn't exist or has no password.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var loginInput struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&loginInput); err != nil {
		logWarn(r, "failed to decode login input", "error", err)
		BadRequest(w, r, "error decoding request body")
		return
	}

	loginInput.Login = strings.ToLower(strings.TrimSpace(loginInput.Login))
	if loginInput.Login == "" || loginInput.Password == "" {
		Unauthorized(w, r, "invalid credentials")
		return
	}

	user, err := h.PS.GetUserByLogin(r.Context(), loginInput.Login)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Run dummy hash to equalise timing with found-user path.
			VerifyPassword(loginInput.Password, dummyPasswordHash)
			logInfo(r, "login attempted with unknown account")
		} else {
			logError(r, "failed to fetch user for login", "error", err)
		}
		Unauthorized(w, r, "invalid credentials")
		return
	}

	passwordHash, err := h.PS.GetPwdHashByUserID(r.Context(), user.ID)
	if err != nil {
		if errors.Is(err, store.ErrNoPassword) {
			// OAuth-only account -- same generic 401, same timing.
			VerifyPassword(loginInput.Password, dummyPasswordHash)
			logInfo(r, "password login attempted on oauth-only account", "user_id", user.ID)
			Unauthorized(w, r, "invalid credentials")
			return
		}
		InternalServerError(w, r, err)
		return
	}

	valid, err := VerifyPassword(loginInput.Password, passwordHash)
	if err != nil {
		logError(r, "password verification failed", "error", err)
		InternalServerError(w, r, err)
		return
	}
	if !valid {
		logInfo(r, "login attempted with incorrect password", "user_id", user.ID)
		Unauthorized(w, r, "invalid credentials")
		return
	}

	h.issueSession(w, r, user.ID)
}

// issueSession signs a bearer token for the account and writes the standard
// token response. Shared by password login and the OAuth callback.
func (h *AuthHandler) issueSession(w http.ResponseWriter, r *http.Request, userID uuid.UUID) {
	signed, err := h.Tokens.Issue(userID)
	if err != nil {
		logError(r, "failed to sign access token", "error", err)
		InternalServerError(w, r, err)
		return
	}

	logInfo(r, "session issued", "user_id", userID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	resp, _ := json.Marshal(map[string]string{
		"access_token": signed,
		"token_type":   "bearer",
	})
	w.Write(resp)
}

// Me handles GET /auth/me — returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		InternalServerError(w, r, errors.New("missing auth context"))
		return
	}

	user, err := h.PS.GetUserByID(r.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Token outlived the account.
			Unauthorized(w, r, "account no longer exists")
			return
		}
		InternalServerError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp, _ := json.Marshal(map[string]any{
		"id":           user.ID.String(),
		"username":     user.Username,
		"email":        user.Email,
		"display_name": user.DisplayName,
		"avatar_url":   user.AvatarURL,
		"created_at":   user.CreatedAt.UTC().Format(time.RFC3339),
	})
	w.Write(resp)
}
