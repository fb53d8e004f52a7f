package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// --- CreateUser ---

func TestCreateUser(t *testing.T) {
	ctx := context.Background()

	t.Run("inserts password account", func(t *testing.T) {
		t.Cleanup(func() { cleanupUsers(t, ctx, "create_pw") })
		id := mustCreateUser(t, ctx, "create_pw", "create_pw@example.com", strPtr("hash"))

		u, err := testStore.GetUserByID(ctx, id)
		if err != nil {
			t.Fatalf("GetUserByID: %v", err)
		}
		if u.Username != "create_pw" || u.Email != "create_pw@example.com" {
			t.Errorf("unexpected user row: %+v", u)
		}
		if u.PasswordHash == nil || *u.PasswordHash != "hash" {
			t.Error("password hash not stored")
		}
	})

	t.Run("inserts oauth-only account with nil password", func(t *testing.T) {
		t.Cleanup(func() { cleanupUsers(t, ctx, "create_oauth") })
		id := mustCreateUser(t, ctx, "create_oauth", "create_oauth@google.oauth", nil)

		u, err := testStore.GetUserByID(ctx, id)
		if err != nil {
			t.Fatalf("GetUserByID: %v", err)
		}
		if u.PasswordHash != nil {
			t.Error("oauth-only account should have NULL password_hash")
		}
	})

	t.Run("duplicate username maps to ErrConflict", func(t *testing.T) {
		t.Cleanup(func() { cleanupUsers(t, ctx, "create_dup") })
		mustCreateUser(t, ctx, "create_dup", "create_dup@example.com", nil)

		id, _ := uuid.NewV7()
		err := testStore.CreateUser(ctx, id, "create_dup", "other@example.com", nil, nil, nil)
		if !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate username, got %v", err)
		}
	})

	t.Run("duplicate email maps to ErrConflict", func(t *testing.T) {
		t.Cleanup(func() { cleanupUsers(t, ctx, "create_dupmail") })
		mustCreateUser(t, ctx, "create_dupmail", "dupmail@example.com", nil)

		id, _ := uuid.NewV7()
		err := testStore.CreateUser(ctx, id, "create_dupmail2", "dupmail@example.com", nil, nil, nil)
		if !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for duplicate email, got %v", err)
		}
	})
}

// --- Lookups ---

func TestGetUserByLogin(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { cleanupUsers(t, ctx, "login_lookup") })
	id := mustCreateUser(t, ctx, "login_lookup", "login_lookup@example.com", strPtr("hash"))

	t.Run("finds by username", func(t *testing.T) {
		u, err := testStore.GetUserByLogin(ctx, "login_lookup")
		if err != nil {
			t.Fatalf("GetUserByLogin: %v", err)
		}
		if u.ID != id {
			t.Errorf("expected user %v, got %v", id, u.ID)
		}
	})

	t.Run("finds by email", func(t *testing.T) {
		u, err := testStore.GetUserByLogin(ctx, "login_lookup@example.com")
		if err != nil {
			t.Fatalf("GetUserByLogin: %v", err)
		}
		if u.ID != id {
			t.Errorf("expected user %v, got %v", id, u.ID)
		}
	})

	t.Run("miss returns ErrNoRows", func(t *testing.T) {
		_, err := testStore.GetUserByLogin(ctx, "no_such_login")
		if !errors.Is(err, pgx.ErrNoRows) {
			t.Errorf("expected pgx.ErrNoRows, got %v", err)
		}
	})
}

func TestGetUserByProviderID(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { cleanupUsers(t, ctx, "prov_lookup") })
	id := mustCreateUser(t, ctx, "prov_lookup", "prov_lookup@example.com", nil)
	mustLinkProvider(t, ctx, id, "google", "g-prov-lookup", strPtr("at"), nil, nil)

	t.Run("finds linked user", func(t *testing.T) {
		u, err := testStore.GetUserByProviderID(ctx, "google", "g-prov-lookup")
		if err != nil {
			t.Fatalf("GetUserByProviderID: %v", err)
		}
		if u.ID != id {
			t.Errorf("expected user %v, got %v", id, u.ID)
		}
	})

	t.Run("same id under another provider misses", func(t *testing.T) {
		_, err := testStore.GetUserByProviderID(ctx, "soundcloud", "g-prov-lookup")
		if !errors.Is(err, pgx.ErrNoRows) {
			t.Errorf("expected pgx.ErrNoRows, got %v", err)
		}
	})
}

func TestGetPwdHashByUserID(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { cleanupUsers(t, ctx, "pwd_hash", "pwd_hash_oauth") })
	withPwd := mustCreateUser(t, ctx, "pwd_hash", "pwd_hash@example.com", strPtr("the-hash"))
	noPwd := mustCreateUser(t, ctx, "pwd_hash_oauth", "pwd_hash_oauth@google.oauth", nil)

	t.Run("returns hash", func(t *testing.T) {
		hash, err := testStore.GetPwdHashByUserID(ctx, withPwd)
		if err != nil {
			t.Fatalf("GetPwdHashByUserID: %v", err)
		}
		if hash != "the-hash" {
			t.Errorf("expected stored hash, got %q", hash)
		}
	})

	t.Run("oauth-only account returns ErrNoPassword", func(t *testing.T) {
		_, err := testStore.GetPwdHashByUserID(ctx, noPwd)
		if !errors.Is(err, ErrNoPassword) {
			t.Errorf("expected ErrNoPassword, got %v", err)
		}
	})
}

func TestUsernameAndEmailExists(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { cleanupUsers(t, ctx, "exists_check") })
	mustCreateUser(t, ctx, "exists_check", "exists_check@example.com", nil)

	if ok, err := testStore.UsernameExists(ctx, "exists_check"); err != nil || !ok {
		t.Errorf("UsernameExists(existing) = %v, %v; want true", ok, err)
	}
	if ok, err := testStore.UsernameExists(ctx, "free_username"); err != nil || ok {
		t.Errorf("UsernameExists(free) = %v, %v; want false", ok, err)
	}
	if ok, err := testStore.EmailExists(ctx, "exists_check@example.com"); err != nil || !ok {
		t.Errorf("EmailExists(existing) = %v, %v; want true", ok, err)
	}
}

// --- SetProfileIfEmpty ---

func TestSetProfileIfEmpty(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { cleanupUsers(t, ctx, "profile_merge") })
	id := mustCreateUser(t, ctx, "profile_merge", "profile_merge@example.com", nil)

	// First merge fills both empty fields.
	if err := testStore.SetProfileIfEmpty(ctx, id, strPtr("DJ Example"), strPtr("https://a/1.png")); err != nil {
		t.Fatalf("SetProfileIfEmpty: %v", err)
	}
	u, _ := testStore.GetUserByID(ctx, id)
	if u.DisplayName == nil || *u.DisplayName != "DJ Example" {
		t.Fatal("display_name not filled")
	}

	// Second merge must not overwrite.
	if err := testStore.SetProfileIfEmpty(ctx, id, strPtr("Impostor"), strPtr("https://a/2.png")); err != nil {
		t.Fatalf("second SetProfileIfEmpty: %v", err)
	}
	u, _ = testStore.GetUserByID(ctx, id)
	if *u.DisplayName != "DJ Example" {
		t.Errorf("display_name overwritten to %q", *u.DisplayName)
	}
	if *u.AvatarURL != "https://a/1.png" {
		t.Errorf("avatar_url overwritten to %q", *u.AvatarURL)
	}
}

// --- Provider credentials ---

func TestUpsertProviderCredential(t *testing.T) {
	ctx := context.Background()

	t.Run("insert then re-link updates tokens", func(t *testing.T) {
		t.Cleanup(func() { cleanupUsers(t, ctx, "upsert_cred") })
		id := mustCreateUser(t, ctx, "upsert_cred", "upsert_cred@example.com", nil)
		exp := time.Now().Add(time.Hour).Truncate(time.Second)
		mustLinkProvider(t, ctx, id, "google", "g-upsert", strPtr("at1"), strPtr("rt1"), &exp)

		// Re-link with a new access token and no refresh token: the stored
		// refresh token must survive (providers rarely re-issue one).
		mustLinkProvider(t, ctx, id, "google", "g-upsert", strPtr("at2"), nil, &exp)

		c, err := testStore.GetProviderCredential(ctx, id, "google")
		if err != nil {
			t.Fatalf("GetProviderCredential: %v", err)
		}
		if c.AccessToken == nil || *c.AccessToken != "at2" {
			t.Error("access token not updated")
		}
		if c.RefreshToken == nil || *c.RefreshToken != "rt1" {
			t.Error("stored refresh token should survive a re-link without one")
		}
	})

	t.Run("second user linking the same identity conflicts", func(t *testing.T) {
		t.Cleanup(func() { cleanupUsers(t, ctx, "upsert_a", "upsert_b") })
		a := mustCreateUser(t, ctx, "upsert_a", "upsert_a@example.com", nil)
		b := mustCreateUser(t, ctx, "upsert_b", "upsert_b@example.com", nil)
		mustLinkProvider(t, ctx, a, "google", "g-shared", nil, nil, nil)

		err := testStore.UpsertProviderCredential(ctx, b, "google", "g-shared", nil, nil, nil)
		if !errors.Is(err, ErrConflict) {
			t.Errorf("expected ErrConflict for cross-user identity, got %v", err)
		}
	})

	t.Run("miss returns ErrNoRows", func(t *testing.T) {
		id, _ := uuid.NewV7()
		_, err := testStore.GetProviderCredential(ctx, id, "google")
		if !errors.Is(err, pgx.ErrNoRows) {
			t.Errorf("expected pgx.ErrNoRows, got %v", err)
		}
	})
}

func TestUpdateProviderTokens(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { cleanupUsers(t, ctx, "update_tokens") })
	id := mustCreateUser(t, ctx, "update_tokens", "update_tokens@example.com", nil)
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	mustLinkProvider(t, ctx, id, "soundcloud", "sc-1", strPtr("at1"), strPtr("rt1"), &exp)

	// Refresh response without a new refresh token keeps the old one.
	newExp := time.Now().Add(2 * time.Hour).Truncate(time.Second)
	if err := testStore.UpdateProviderTokens(ctx, id, "soundcloud", strPtr("at2"), nil, &newExp); err != nil {
		t.Fatalf("UpdateProviderTokens: %v", err)
	}
	c, _ := testStore.GetProviderCredential(ctx, id, "soundcloud")
	if *c.AccessToken != "at2" || c.RefreshToken == nil || *c.RefreshToken != "rt1" {
		t.Errorf("unexpected tokens after refresh: %+v", c)
	}
	if c.ExpiresAt == nil || !c.ExpiresAt.Equal(newExp) {
		t.Errorf("expiry not updated: %v", c.ExpiresAt)
	}

	// Rotated refresh token replaces the old one.
	if err := testStore.UpdateProviderTokens(ctx, id, "soundcloud", strPtr("at3"), strPtr("rt2"), &newExp); err != nil {
		t.Fatalf("UpdateProviderTokens: %v", err)
	}
	c, _ = testStore.GetProviderCredential(ctx, id, "soundcloud")
	if *c.RefreshToken != "rt2" {
		t.Error("rotated refresh token not stored")
	}
}

func TestClearProviderTokens(t *testing.T) {
	ctx := context.Background()
	t.Cleanup(func() { cleanupUsers(t, ctx, "clear_tokens") })
	id := mustCreateUser(t, ctx, "clear_tokens", "clear_tokens@example.com", nil)
	exp := time.Now().Add(time.Hour)
	mustLinkProvider(t, ctx, id, "google", "g-clear", strPtr("at"), strPtr("rt"), &exp)

	if err := testStore.ClearProviderTokens(ctx, id, "google"); err != nil {
		t.Fatalf("ClearProviderTokens: %v", err)
	}

	// Tokens gone, link intact.
	c, err := testStore.GetProviderCredential(ctx, id, "google")
	if err != nil {
		t.Fatalf("credential row should survive clearing: %v", err)
	}
	if c.AccessToken != nil || c.RefreshToken != nil || c.ExpiresAt != nil {
		t.Errorf("token fields should be NULL after clearing: %+v", c)
	}
	if c.ProviderUserID != "g-clear" {
		t.Error("provider identity should survive clearing")
	}

	u, err := testStore.GetUserByProviderID(ctx, "google", "g-clear")
	if err != nil || u.ID != id {
		t.Errorf("identity lookup should still resolve after clearing: %v", err)
	}
}
