// Package authn implements the authentication decision flow: given a verified
// identity assertion it decides signup vs. login vs. replay rejection and
// applies the result to the account store.
//
// The replay guard is the security-critical piece. Each assertion carries a
// claim-issued-at timestamp; an account only accepts a login whose timestamp
// is strictly newer than the last accepted one. The comparison and the write
// are a single compare-and-swap in the store, so concurrent requests for the
// same issuer cannot both pass the check against a stale read.
package authn

import (
	"context"
	"errors"

	accountstore "github.com/dalemusser/stratapass/internal/app/store/accounts"
	"github.com/dalemusser/stratapass/internal/app/system/verifier"
	"github.com/dalemusser/stratapass/internal/domain/models"
	"go.uber.org/zap"
)

// Outcome classifies the result of an authentication attempt.
type Outcome string

const (
	// OutcomeSignedUp means a first-time assertion created a new account.
	OutcomeSignedUp Outcome = "signed_up"
	// OutcomeLoggedIn means an existing account accepted the login.
	OutcomeLoggedIn Outcome = "logged_in"
	// OutcomeReplayRejected means the claim timestamp was not strictly newer
	// than the account's last accepted login. Security rejection, not a
	// transient error: it is never retried.
	OutcomeReplayRejected Outcome = "replay_rejected"
	// OutcomeInvalidAssertion means the assertion was malformed (missing
	// issuer or claim timestamp) and was rejected before any store access.
	OutcomeInvalidAssertion Outcome = "invalid_assertion"
	// OutcomeVerificationFailed means the identity provider rejected the
	// assertion or the verification call timed out.
	OutcomeVerificationFailed Outcome = "verification_failed"
	// OutcomeError means a store failure prevented a decision. The request
	// fails as a server error rather than an authentication rejection.
	OutcomeError Outcome = "error"
)

var (
	// ErrInvalidAssertion marks a malformed assertion.
	ErrInvalidAssertion = errors.New("invalid assertion")
	// ErrReplayRejected marks a replayed assertion.
	ErrReplayRejected = errors.New("replay attack detected")
)

// Engine applies the authentication state machine.
type Engine struct {
	accounts *accountstore.Store
	verifier verifier.Verifier
	logger   *zap.Logger
}

// New creates an Engine.
func New(accounts *accountstore.Store, v verifier.Verifier, logger *zap.Logger) *Engine {
	return &Engine{
		accounts: accounts,
		verifier: v,
		logger:   logger,
	}
}

// Authenticate verifies the assertion and applies the signup/login/replay
// decision. The returned error is non-nil for every outcome other than
// OutcomeSignedUp and OutcomeLoggedIn; OutcomeError wraps the underlying
// store failure.
func (e *Engine) Authenticate(ctx context.Context, assertion string) (models.Account, Outcome, error) {
	ident, err := e.verifier.Verify(ctx, assertion)
	if err != nil {
		return models.Account{}, OutcomeVerificationFailed, err
	}
	return e.Decide(ctx, ident)
}

// Decide runs the decision state machine for an already-verified identity.
//
// Benign races (two first-time signups, or a concurrent login advancing the
// timestamp between our read and CAS) are resolved by re-reading once and
// following the appropriate branch. A replayed timestamp is rejected on
// whichever pass observes it.
func (e *Engine) Decide(ctx context.Context, ident verifier.Identity) (models.Account, Outcome, error) {
	if ident.Issuer == "" || ident.IssuedAt == 0 {
		return models.Account{}, OutcomeInvalidAssertion, ErrInvalidAssertion
	}

	const maxPasses = 2
	for pass := 0; pass < maxPasses; pass++ {
		acct, err := e.accounts.Get(ctx, ident.Issuer)
		switch {
		case err == nil:
			// Existing account: replay check, then CAS the new timestamp.
			if ident.IssuedAt <= acct.LastLoginAt {
				e.logger.Warn("replay attack detected",
					zap.String("issuer", ident.Issuer),
					zap.Int64("claim_iat", ident.IssuedAt),
					zap.Int64("last_login_at", acct.LastLoginAt))
				return *acct, OutcomeReplayRejected, ErrReplayRejected
			}
			err = e.accounts.CompareAndSwapLastLogin(ctx, ident.Issuer, acct.LastLoginAt, ident.IssuedAt)
			if err == accountstore.ErrConflict {
				// Another login advanced the timestamp first; re-read and
				// re-apply the replay check against the fresh value.
				continue
			}
			if err != nil {
				return models.Account{}, OutcomeError, err
			}
			acct.LastLoginAt = ident.IssuedAt
			return *acct, OutcomeLoggedIn, nil

		case err == accountstore.ErrNotFound:
			// First assertion for this issuer: signup.
			profile, perr := e.verifier.Metadata(ctx, ident.Issuer)
			if perr != nil {
				return models.Account{}, OutcomeVerificationFailed, perr
			}
			created, cerr := e.accounts.Create(ctx, models.Account{
				Issuer:      ident.Issuer,
				Email:       profile.Email,
				LastLoginAt: ident.IssuedAt,
			})
			if cerr == accountstore.ErrDuplicateIssuer {
				// Lost a signup race; the record now exists, retry as login.
				continue
			}
			if cerr != nil {
				return models.Account{}, OutcomeError, cerr
			}
			e.logger.Info("account created",
				zap.String("issuer", created.Issuer),
				zap.Int64("last_login_at", created.LastLoginAt))
			return created, OutcomeSignedUp, nil

		default:
			return models.Account{}, OutcomeError, err
		}
	}

	// Two passes both lost their race. With a fixed claim timestamp this only
	// happens under a store anomaly; surface it rather than looping.
	return models.Account{}, OutcomeError, accountstore.ErrConflict
}
