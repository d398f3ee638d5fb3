// internal/domain/models/loginrecord.go
package models

import "time"

// Login outcomes recorded per attempt.
const (
	LoginOutcomeSignedUp       = "signed_up"
	LoginOutcomeLoggedIn       = "logged_in"
	LoginOutcomeReplayRejected = "replay_rejected"
	LoginOutcomeVerifyFailed   = "verification_failed"
)

// LoginRecord captures a single login attempt for an issuer.
// CreatedAt is indexed for recent-activity views.
type LoginRecord struct {
	Issuer    string    `bson:"issuer"`
	Outcome   string    `bson:"outcome"`
	CreatedAt time.Time `bson:"created_at"`
	IP        string    `bson:"ip"`
	UserAgent string    `bson:"user_agent,omitempty"`
}
