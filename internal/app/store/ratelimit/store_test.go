package ratelimit

import (
	"testing"
	"time"

	"github.com/dalemusser/stratapass/internal/testutil"
)

func TestStore_EnsureIndexes(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, 5, 15*time.Minute, 30*time.Minute)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() error = %v", err)
	}

	// Should be idempotent
	if err := store.EnsureIndexes(ctx); err != nil {
		t.Fatalf("EnsureIndexes() second call error = %v", err)
	}
}

func TestStore_CheckAllowed_NoRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, 5, 15*time.Minute, 30*time.Minute)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	allowed, remaining, lockedUntil := store.CheckAllowed(ctx, "did:test:fresh")

	if !allowed {
		t.Error("CheckAllowed() should return true for new issuer")
	}
	if remaining != 5 {
		t.Errorf("CheckAllowed() remaining = %d, want 5", remaining)
	}
	if lockedUntil != nil {
		t.Error("CheckAllowed() lockedUntil should be nil for new issuer")
	}
}

func TestStore_RecordFailure_IncreasesCount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, 5, 15*time.Minute, 30*time.Minute)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	issuer := "did:test:failing"

	lockedOut, _ := store.RecordFailure(ctx, issuer)
	if lockedOut {
		t.Error("RecordFailure() should not lock out on first failure")
	}

	allowed, remaining, _ := store.CheckAllowed(ctx, issuer)
	if !allowed {
		t.Error("CheckAllowed() should return true after one failure")
	}
	if remaining != 4 {
		t.Errorf("CheckAllowed() remaining = %d, want 4", remaining)
	}

	store.RecordFailure(ctx, issuer)
	store.RecordFailure(ctx, issuer)

	allowed, remaining, _ = store.CheckAllowed(ctx, issuer)
	if !allowed {
		t.Error("CheckAllowed() should return true after three failures")
	}
	if remaining != 2 {
		t.Errorf("CheckAllowed() remaining = %d, want 2", remaining)
	}
}

func TestStore_RecordFailure_TriggersLockout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, 3, 15*time.Minute, 30*time.Minute) // Only 3 attempts
	ctx, cancel := testutil.TestContext()
	defer cancel()

	issuer := "did:test:lockout"

	store.RecordFailure(ctx, issuer)
	store.RecordFailure(ctx, issuer)

	// Third failure should trigger lockout
	lockedOut, lockedUntil := store.RecordFailure(ctx, issuer)
	if !lockedOut {
		t.Error("RecordFailure() should return lockedOut=true at max attempts")
	}
	if lockedUntil == nil {
		t.Error("RecordFailure() should return lockedUntil time")
	}
	if lockedUntil != nil && lockedUntil.Before(time.Now().Add(29*time.Minute)) {
		t.Error("lockedUntil should be at least 29 minutes in the future")
	}
}

func TestStore_CheckAllowed_WhenLocked(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, 2, 15*time.Minute, 30*time.Minute) // Only 2 attempts
	ctx, cancel := testutil.TestContext()
	defer cancel()

	issuer := "did:test:locked"

	store.RecordFailure(ctx, issuer)
	store.RecordFailure(ctx, issuer)

	allowed, remaining, lockedUntil := store.CheckAllowed(ctx, issuer)
	if allowed {
		t.Error("CheckAllowed() should return false when locked")
	}
	if remaining != -1 {
		t.Errorf("CheckAllowed() remaining = %d, want -1 when locked", remaining)
	}
	if lockedUntil == nil {
		t.Error("CheckAllowed() should return lockedUntil when locked")
	}
}

func TestStore_RecordSuccess_ClearsRecord(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, 5, 15*time.Minute, 30*time.Minute)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	issuer := "did:test:recovered"

	store.RecordFailure(ctx, issuer)
	store.RecordFailure(ctx, issuer)

	store.RecordSuccess(ctx, issuer)

	allowed, remaining, _ := store.CheckAllowed(ctx, issuer)
	if !allowed {
		t.Error("CheckAllowed() should return true after success")
	}
	if remaining != 5 {
		t.Errorf("CheckAllowed() remaining = %d, want 5 after success", remaining)
	}
}

func TestStore_WindowExpiry_ResetsCounter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	// Very short window for testing
	store := New(db, 5, 1*time.Millisecond, 30*time.Minute)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	issuer := "did:test:window"

	store.RecordFailure(ctx, issuer)
	store.RecordFailure(ctx, issuer)

	time.Sleep(10 * time.Millisecond)

	allowed, remaining, _ := store.CheckAllowed(ctx, issuer)
	if !allowed {
		t.Error("CheckAllowed() should return true after window expiry")
	}
	if remaining != 5 {
		t.Errorf("CheckAllowed() remaining = %d, want 5 after window expiry", remaining)
	}
}
