// Package verifier defines the identity provider capability consumed by the
// authentication flow.
//
// stratapass does not issue identities itself. An external provider hands the
// browser a signed assertion; this package verifies assertions, looks up
// profile metadata for an issuer, and asks the provider to drop its own
// server-side session state on logout. The capability is an interface so
// handlers and the decision engine can be tested against a fake with no
// network dependency.
package verifier

import (
	"context"
	"errors"
)

// Identity is the verified content of an assertion.
type Identity struct {
	// Issuer is the stable unique identifier of the external identity.
	Issuer string
	// IssuedAt is the claim-issued-at timestamp in seconds. It drives the
	// replay check: an accepted login must carry a strictly newer value than
	// the account's last accepted login.
	IssuedAt int64
}

// Profile is provider-held metadata for an issuer, fetched at signup.
type Profile struct {
	Email string
}

// ErrVerificationFailed is returned when the provider rejects an assertion or
// the call times out. Both cases are surfaced as authentication failure and
// are never retried transparently.
var ErrVerificationFailed = errors.New("identity verification failed")

// Verifier is the identity provider capability.
type Verifier interface {
	// Verify validates an assertion and extracts the identity it asserts.
	Verify(ctx context.Context, assertion string) (Identity, error)

	// Metadata fetches profile metadata for an issuer.
	Metadata(ctx context.Context, issuer string) (Profile, error)

	// Invalidate asks the provider to drop its server-side session state for
	// the issuer. Best-effort: the local session is authoritative.
	Invalidate(ctx context.Context, issuer string) error
}
