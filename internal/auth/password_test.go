// password_test.go

// unit tests for hashing, verification, and input validation.
package auth

import (
	"strings"
	"testing"
)

// --- HashPassword ---

func TestHashPassword(t *testing.T) {
	t.Run("output matches PHC format", func(t *testing.T) {
		hash, err := HashPassword("correcthorsebatterystaple")
		if err != nil {
			t.Fatalf("HashPassword returned error: %v", err)
		}

		// PHC format: $argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
		parts := strings.Split(hash, "$")
		if len(parts) != 6 {
			t.Fatalf("expected 6 parts, got %d: %q", len(parts), hash)
		}
		if parts[1] != "argon2id" {
			t.Errorf("algorithm: expected argon2id, got %q", parts[1])
		}
		if parts[2] != "v=19" {
			t.Errorf("version: expected v=19, got %q", parts[2])
		}
		if parts[3] != "m=65536,t=3,p=2" {
			t.Errorf("params: expected m=65536,t=3,p=2, got %q", parts[3])
		}
	})

	t.Run("unique salts per call", func(t *testing.T) {
		h1, err := HashPassword("same-password")
		if err != nil {
			t.Fatalf("first hash: %v", err)
		}
		h2, err := HashPassword("same-password")
		if err != nil {
			t.Fatalf("second hash: %v", err)
		}
		if h1 == h2 {
			t.Error("two hashes of the same password should differ (unique salts)")
		}
	})
}

// --- VerifyPassword ---

func TestVerifyPassword(t *testing.T) {
	t.Run("correct password verifies", func(t *testing.T) {
		password := "correcthorsebatterystaple"
		hash, err := HashPassword(password)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}

		match, err := VerifyPassword(password, hash)
		if err != nil {
			t.Fatalf("VerifyPassword: %v", err)
		}
		if !match {
			t.Error("correct password should verify")
		}
	})

	t.Run("wrong password rejected", func(t *testing.T) {
		hash, err := HashPassword("real-password")
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}

		match, err := VerifyPassword("wrong-password", hash)
		if err != nil {
			t.Fatalf("VerifyPassword: %v", err)
		}
		if match {
			t.Error("wrong password should not verify")
		}
	})

	t.Run("invalid hash format", func(t *testing.T) {
		if _, err := VerifyPassword("password", "not-a-valid-hash"); err == nil {
			t.Error("expected error for invalid hash format")
		}
	})

	t.Run("unsupported algorithm", func(t *testing.T) {
		bad := "$bcrypt$v=19$m=65536,t=3,p=2$c29tZXNhbHQ$c29tZWhhc2g"
		_, err := VerifyPassword("password", bad)
		if err == nil {
			t.Fatal("expected error for unsupported algorithm")
		}
		if !strings.Contains(err.Error(), "unsupported algorithm") {
			t.Errorf("expected 'unsupported algorithm' in error, got: %v", err)
		}
	})

	t.Run("invalid base64 salt", func(t *testing.T) {
		bad := "$argon2id$v=19$m=65536,t=3,p=2$!!!invalid!!!$c29tZWhhc2g"
		if _, err := VerifyPassword("password", bad); err == nil {
			t.Error("expected error for invalid base64 salt")
		}
	})

	// The dummy hash must verify cleanly -- a parse error on the timing
	// equalization path would be a different latency profile.
	t.Run("dummy hash parses", func(t *testing.T) {
		match, err := VerifyPassword("anything", dummyPasswordHash)
		if err != nil {
			t.Fatalf("dummy hash should parse: %v", err)
		}
		if match {
			t.Error("no real password should match the dummy hash")
		}
	})
}

// --- ValidatePassword ---

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{"empty string", "", "No password provided!"},
		{"one under minimum", "seven77", "Password too short!"},
		{"exactly minimum", "eightchr", ""},
		{"exactly maximum", strings.Repeat("a", 128), ""},
		{"one over maximum", strings.Repeat("a", 129), "Password too long!"},
		{"valid password", "correcthorsebatterystaple*", ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidatePassword(tc.input)
			if got != tc.wantMsg {
				t.Errorf("ValidatePassword(%q): expected %q, got %q", tc.input, tc.wantMsg, got)
			}
		})
	}
}

// --- ValidateEmail ---

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
	}{
		{"plain address", "dj@example.com", true},
		{"subdomain", "dj@mail.example.co.uk", true},
		{"empty", "", false},
		{"no at sign", "example.com", false},
		{"no domain", "dj@", false},
		{"spaces", "dj @example.com", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateEmail(tc.input)
			if (got == "") != tc.wantOK {
				t.Errorf("ValidateEmail(%q) = %q, wantOK %v", tc.input, got, tc.wantOK)
			}
		})
	}
}

// --- ValidateUsername ---

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		wantOK bool
	}{
		{"simple", "dj_example", true},
		{"digits", "dj2000", true},
		{"minimum length", "abc", true},
		{"maximum length", strings.Repeat("a", 30), true},
		{"empty", "", false},
		{"too short", "ab", false},
		{"too long", strings.Repeat("a", 31), false},
		{"uppercase rejected", "DJExample", false},
		{"spaces rejected", "dj example", false},
		{"punctuation rejected", "dj.example", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := ValidateUsername(tc.input)
			if (got == "") != tc.wantOK {
				t.Errorf("ValidateUsername(%q) = %q, wantOK %v", tc.input, got, tc.wantOK)
			}
		})
	}
}
