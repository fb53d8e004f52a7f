// errors.go -- Closed error taxonomy for provider interactions.
//
// Classification happens exactly once, here, where the raw HTTP response is
// inspected. Everything above this boundary (custodian, resolver, handlers)
// switches on Kind and never re-interprets provider text. Raw response bodies
// go to logs only, truncated -- never into user-facing messages.
package oauth

import (
	"bytes"
	"errors"
	"fmt"
)

// Kind is the classification of a provider interaction failure.
type Kind int

const (
	// KindConfiguration -- our client id or redirect URI is missing, or fails
	// the environment policy. A deployment problem; reported as "service
	// unavailable" and not retryable by the caller.
	KindConfiguration Kind = iota + 1

	// KindInvalidGrant -- the authorization code or refresh token was rejected
	// (expired, reused, revoked). A normal occurrence when a user double-submits
	// or navigates back; reported as "please sign in again", never auto-retried.
	KindInvalidGrant

	// KindInvalidClient -- the provider rejected our own credentials. Distinct
	// from KindInvalidGrant for diagnostics, but handled as a configuration
	// error once detected: it indicates a deployment problem, not a user one.
	KindInvalidClient

	// KindInvalidToken -- the userinfo endpoint returned 401: the access token
	// is invalid or expired. Recoverable exactly once through the custodian's
	// refresh-and-retry; terminal everywhere else.
	KindInvalidToken

	// KindUnavailable -- timeout, network failure, or a 5xx/unclassifiable
	// response. Transient; the user may retry manually.
	KindUnavailable
)

// userMessage is the fixed user-safe message per kind.
func (k Kind) userMessage() string {
	switch k {
	case KindConfiguration:
		return "sign-in is not available right now"
	case KindInvalidGrant:
		return "authorization is no longer valid, please sign in again"
	case KindInvalidClient:
		return "sign-in is misconfigured, please contact support"
	case KindInvalidToken:
		return "access token is invalid or expired, please sign in again"
	default:
		return "the identity provider could not be reached, please try again"
	}
}

// Error is a classified provider failure. The user-safe message is fixed per
// kind; the wrapped cause (if any) carries diagnostic detail for logs.
type Error struct {
	Kind     Kind
	Provider string
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind.userMessage(), e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Kind.userMessage())
}

// NewError wraps cause as a classified provider failure. Provider clients use
// it after classify; callers may also use it for failure modes detected
// without a provider response to inspect, such as a 2xx token response that
// carries no access token.
func NewError(kind Kind, provider string, cause error) *Error {
	return &Error{Kind: kind, Provider: provider, cause: cause}
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.cause }

// UserMessage returns the fixed user-safe message for this error's kind.
func (e *Error) UserMessage() string { return e.Kind.userMessage() }

// KindOf extracts the classification from err, or 0 when err did not originate
// at the provider-client boundary (such errors surface as a generic 500 --
// masking an internal bug behind a reassuring message would hide real defects).
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return 0
}

// classify maps a non-2xx token-endpoint response to a Kind. Pure function of
// status and body, tested independently of any network I/O. Providers signal
// invalid_grant / invalid_client in the response body per RFC 6749 §5.2;
// anything else (5xx, gateway noise, unexpected 4xx) is treated as transient.
func classify(status int, body []byte) Kind {
	if status >= 500 {
		return KindUnavailable
	}
	lower := bytes.ToLower(body)
	switch {
	case bytes.Contains(lower, []byte("invalid_grant")):
		return KindInvalidGrant
	case bytes.Contains(lower, []byte("invalid_client")):
		return KindInvalidClient
	default:
		return KindUnavailable
	}
}
