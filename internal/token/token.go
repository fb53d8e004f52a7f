// Package token mints and verifies the application's own bearer tokens.
//
// The identity broker's terminal step: once a local account id is resolved,
// Issue turns it into a signed HS256 JWT with sub and exp claims. Parse is the
// inverse, used by the auth middleware.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned by Parse for any token that fails signature,
// expiry, or claim checks. Callers report all causes identically as 401.
var ErrInvalidToken = errors.New("invalid token")

// Issuer signs and verifies bearer tokens for resolved account ids.
// The clock is injected so expiry behaviour is testable.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer signing with the given secret and token lifetime.
func NewIssuer(secret []byte, ttl time.Duration) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: time.Now}
}

// NewIssuerWithClock returns an Issuer with an injected clock, for tests.
func NewIssuerWithClock(secret []byte, ttl time.Duration, now func() time.Time) *Issuer {
	return &Issuer{secret: secret, ttl: ttl, now: now}
}

// Issue mints a bearer token for the given account id.
func (i *Issuer) Issue(accountID uuid.UUID) (string, error) {
	now := i.now()
	claims := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// Parse verifies a bearer token and returns the account id it was issued for.
// Restricts accepted algorithms to HS256 -- a token claiming any other method
// (including "none") is rejected outright.
func (i *Issuer) Parse(raw string) (uuid.UUID, error) {
	parsed, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
