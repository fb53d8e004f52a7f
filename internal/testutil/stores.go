// stores.go
//
// Shared mock implementations of the auth package's store interfaces and of
// oauth.Provider. Imported by test files across packages to avoid duplicate
// mock definitions.
package testutil

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/setlog/setlog/internal/oauth"
	"github.com/setlog/setlog/internal/store"
)

// MockStore implements auth.Store, auth.CredentialStore, and auth.IdentityStore.
//
// Always stateful...Users and Credentials are maps, like a real store, and
// misses return pgx.ErrNoRows exactly as the Postgres store does.
// Use *Err fields to inject errors for specific operations.
type MockStore struct {
	// Error injection...zero value means no error
	CreateUserErr   error
	GetUserErr      error
	CredentialErr   error
	UpsertErr       error
	UpdateTokensErr error
	ClearTokensErr  error

	Users       map[uuid.UUID]*store.User            // keyed by id
	Credentials map[string]*store.ProviderCredential // keyed by userID/provider

	mu sync.Mutex
}

// NewMockStore returns a MockStore seeded with the given users.
func NewMockStore(users ...*store.User) *MockStore {
	ms := &MockStore{
		Users:       make(map[uuid.UUID]*store.User),
		Credentials: make(map[string]*store.ProviderCredential),
	}
	for _, u := range users {
		ms.Users[u.ID] = u
	}
	return ms
}

func credKey(userID uuid.UUID, provider string) string {
	return userID.String() + "/" + provider
}

func (m *MockStore) CreateUser(_ context.Context, id uuid.UUID, username, email string, passwordHash, displayName, avatarURL *string) error {
	if m.CreateUserErr != nil {
		return m.CreateUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Username == username || u.Email == email {
			return store.ErrConflict
		}
	}
	now := time.Now()
	m.Users[id] = &store.User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		DisplayName:  displayName,
		AvatarURL:    avatarURL,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	return nil
}

func (m *MockStore) GetUserByID(_ context.Context, id uuid.UUID) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return u, nil
}

func (m *MockStore) GetUserByLogin(_ context.Context, login string) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	login = strings.ToLower(login)
	for _, u := range m.Users {
		if u.Username == login || u.Email == login {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockStore) GetUserByEmail(_ context.Context, email string) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockStore) GetUserByProviderID(_ context.Context, provider, providerUserID string) (*store.User, error) {
	if m.GetUserErr != nil {
		return nil, m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.Credentials {
		if c.Provider == provider && c.ProviderUserID == providerUserID {
			if u, ok := m.Users[c.UserID]; ok {
				return u, nil
			}
		}
	}
	return nil, pgx.ErrNoRows
}

func (m *MockStore) GetPwdHashByUserID(_ context.Context, id uuid.UUID) (string, error) {
	if m.GetUserErr != nil {
		return "", m.GetUserErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return "", pgx.ErrNoRows
	}
	if u.PasswordHash == nil {
		return "", store.ErrNoPassword
	}
	return *u.PasswordHash, nil
}

func (m *MockStore) UsernameExists(_ context.Context, username string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) EmailExists(_ context.Context, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.Users {
		if u.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) SetProfileIfEmpty(_ context.Context, id uuid.UUID, displayName, avatarURL *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Users[id]
	if !ok {
		return pgx.ErrNoRows
	}
	if u.DisplayName == nil && displayName != nil {
		u.DisplayName = displayName
	}
	if u.AvatarURL == nil && avatarURL != nil {
		u.AvatarURL = avatarURL
	}
	return nil
}

func (m *MockStore) GetProviderCredential(_ context.Context, userID uuid.UUID, provider string) (*store.ProviderCredential, error) {
	if m.CredentialErr != nil {
		return nil, m.CredentialErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Credentials[credKey(userID, provider)]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *c
	return &cp, nil
}

func (m *MockStore) UpsertProviderCredential(_ context.Context, userID uuid.UUID, provider, providerUserID string, accessToken, refreshToken *string, expiresAt *time.Time) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := credKey(userID, provider)
	existing, ok := m.Credentials[key]
	if ok {
		existing.ProviderUserID = providerUserID
		existing.AccessToken = accessToken
		if refreshToken != nil {
			existing.RefreshToken = refreshToken
		}
		existing.ExpiresAt = expiresAt
		existing.UpdatedAt = time.Now()
		return nil
	}
	now := time.Now()
	m.Credentials[key] = &store.ProviderCredential{
		UserID:         userID,
		Provider:       provider,
		ProviderUserID: providerUserID,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return nil
}

func (m *MockStore) UpdateProviderTokens(_ context.Context, userID uuid.UUID, provider string, accessToken, refreshToken *string, expiresAt *time.Time) error {
	if m.UpdateTokensErr != nil {
		return m.UpdateTokensErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Credentials[credKey(userID, provider)]
	if !ok {
		return pgx.ErrNoRows
	}
	c.AccessToken = accessToken
	if refreshToken != nil {
		c.RefreshToken = refreshToken
	}
	c.ExpiresAt = expiresAt
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MockStore) ClearProviderTokens(_ context.Context, userID uuid.UUID, provider string) error {
	if m.ClearTokensErr != nil {
		return m.ClearTokensErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Credentials[credKey(userID, provider)]
	if !ok {
		return pgx.ErrNoRows
	}
	c.AccessToken = nil
	c.RefreshToken = nil
	c.ExpiresAt = nil
	c.UpdatedAt = time.Now()
	return nil
}

func (m *MockStore) CheckHealth(_ context.Context) error {
	return nil
}

// MockProvider implements oauth.Provider with scripted responses and call
// counters. Zero-value fields mean "succeed with the configured response";
// set *Err fields to fail specific calls.
type MockProvider struct {
	ProviderName string

	AuthURL    string
	AuthURLErr error

	ExchangeResp *oauth.TokenResponse
	ExchangeErr  error

	// ProfileResp is returned by FetchProfile when ProfileErrs is exhausted.
	ProfileResp *oauth.Profile
	// ProfileErrs are consumed one per FetchProfile call, in order; a nil
	// entry means that call succeeds.
	ProfileErrs []error

	RefreshResp *oauth.TokenResponse
	RefreshErr  error

	mu            sync.Mutex
	ExchangeCalls int
	ProfileCalls  int
	RefreshCalls  int
}

func (p *MockProvider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

func (p *MockProvider) AuthCodeURL(state string) (string, error) {
	if p.AuthURLErr != nil {
		return "", p.AuthURLErr
	}
	if p.AuthURL == "" {
		return "https://provider.example/authorize?state=" + state, nil
	}
	return p.AuthURL + "?state=" + state, nil
}

func (p *MockProvider) Exchange(_ context.Context, code string) (*oauth.TokenResponse, error) {
	p.mu.Lock()
	p.ExchangeCalls++
	p.mu.Unlock()
	if p.ExchangeErr != nil {
		return nil, p.ExchangeErr
	}
	if p.ExchangeResp != nil {
		resp := *p.ExchangeResp
		return &resp, nil
	}
	return &oauth.TokenResponse{AccessToken: "access-" + code}, nil
}

func (p *MockProvider) FetchProfile(_ context.Context, accessToken string) (*oauth.Profile, error) {
	p.mu.Lock()
	n := p.ProfileCalls
	p.ProfileCalls++
	p.mu.Unlock()
	if n < len(p.ProfileErrs) && p.ProfileErrs[n] != nil {
		return nil, p.ProfileErrs[n]
	}
	if p.ProfileResp != nil {
		resp := *p.ProfileResp
		return &resp, nil
	}
	return &oauth.Profile{ProviderUserID: "mock-user"}, nil
}

func (p *MockProvider) Refresh(_ context.Context, refreshToken string) (*oauth.TokenResponse, error) {
	p.mu.Lock()
	p.RefreshCalls++
	p.mu.Unlock()
	if p.RefreshErr != nil {
		return nil, p.RefreshErr
	}
	if p.RefreshResp != nil {
		resp := *p.RefreshResp
		return &resp, nil
	}
	return &oauth.TokenResponse{AccessToken: "refreshed-access"}, nil
}
