package testutil

import (
	"context"
	"sync"

	"github.com/dalemusser/stratapass/internal/app/system/verifier"
)

// FakeVerifier is an in-memory verifier.Verifier for handler and engine tests.
// Assertions are looked up verbatim in the Identities map; anything not present
// fails verification.
type FakeVerifier struct {
	mu sync.Mutex

	// Identities maps assertion strings to the identity they assert.
	Identities map[string]verifier.Identity
	// Profiles maps issuers to provider metadata.
	Profiles map[string]verifier.Profile

	// MetadataErr, when set, is returned from Metadata.
	MetadataErr error
	// InvalidateErr, when set, is returned from Invalidate.
	InvalidateErr error

	// Invalidated records issuers passed to Invalidate, in call order.
	Invalidated []string
}

// NewFakeVerifier returns an empty FakeVerifier.
func NewFakeVerifier() *FakeVerifier {
	return &FakeVerifier{
		Identities: make(map[string]verifier.Identity),
		Profiles:   make(map[string]verifier.Profile),
	}
}

// AddAssertion registers an assertion string as verifying to the given
// identity, with a profile for its issuer.
func (f *FakeVerifier) AddAssertion(assertion, issuer string, issuedAt int64, email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Identities[assertion] = verifier.Identity{Issuer: issuer, IssuedAt: issuedAt}
	f.Profiles[issuer] = verifier.Profile{Email: email}
}

func (f *FakeVerifier) Verify(ctx context.Context, assertion string) (verifier.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ident, ok := f.Identities[assertion]
	if !ok {
		return verifier.Identity{}, verifier.ErrVerificationFailed
	}
	return ident, nil
}

func (f *FakeVerifier) Metadata(ctx context.Context, issuer string) (verifier.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.MetadataErr != nil {
		return verifier.Profile{}, f.MetadataErr
	}
	return f.Profiles[issuer], nil
}

func (f *FakeVerifier) Invalidate(ctx context.Context, issuer string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InvalidateErr != nil {
		return f.InvalidateErr
	}
	f.Invalidated = append(f.Invalidated, issuer)
	return nil
}
