// internal/domain/models/account.go
package models

// Terminology: Account Identifiers
//   - Issuer / issuer: The stable unique identifier of an external identity,
//     supplied by the identity provider (e.g. "did:ethr:0x…"). Primary key.
//   - SessionToken / session_token: The random server-side token that binds a
//     browser session to an issuer.

import "time"

// Account represents a user account derived from a verified identity assertion.
//
// An account is created exactly once, on the first successful assertion for
// its issuer, and is never deleted by the service. Email is captured from
// provider metadata at signup and is not re-derived on later logins.
type Account struct {
	Issuer string `bson:"issuer" json:"issuer"` // provider-supplied identity (unique)
	Email  string `bson:"email" json:"email"`   // from provider metadata at signup (lowercase)

	// LastLoginAt is the claim-issued-at of the most recently accepted login,
	// in seconds. It never decreases; assertions with an equal or older claim
	// timestamp are rejected as replays.
	LastLoginAt int64 `bson:"last_login_at" json:"last_login_at"`

	// AppleCount is incremented by authenticated purchase actions.
	AppleCount int64 `bson:"apple_count" json:"apple_count"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}
