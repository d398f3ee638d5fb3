package tasks_test

import (
	"testing"
	"time"

	"github.com/dalemusser/stratapass/internal/app/store/sessions"
	"github.com/dalemusser/stratapass/internal/app/system/tasks"
	"github.com/dalemusser/stratapass/internal/testutil"
	"go.uber.org/zap"
)

func TestExpiredSessionCloseJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// One session past expiry, one still live.
	err := store.Create(ctx, sessions.Session{
		Token:     "tok-stale",
		Issuer:    "did:test:jobs",
		ExpiresAt: time.Now().Add(-time.Minute),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	err = store.Create(ctx, sessions.Session{
		Token:     "tok-live",
		Issuer:    "did:test:jobs",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	job := tasks.ExpiredSessionCloseJob(db, zap.NewNop())
	if err := job.Run(ctx); err != nil {
		t.Fatalf("job run error = %v", err)
	}

	// The live session survives, the stale one is closed as expired.
	active, err := store.ListByIssuer(ctx, "did:test:jobs")
	if err != nil {
		t.Fatalf("ListByIssuer() error = %v", err)
	}
	if len(active) != 1 || active[0].Token != "tok-live" {
		t.Errorf("active sessions = %+v, want only tok-live", active)
	}
}

func TestSessionHistoryPruneJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := sessions.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	err := store.Create(ctx, sessions.Session{
		Token:     "tok-open",
		Issuer:    "did:test:prune",
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// Pruning with a zero retention must still never touch open sessions.
	job := tasks.SessionHistoryPruneJob(db, zap.NewNop(), 0)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("job run error = %v", err)
	}

	active, err := store.ListByIssuer(ctx, "did:test:prune")
	if err != nil {
		t.Fatalf("ListByIssuer() error = %v", err)
	}
	if len(active) != 1 {
		t.Errorf("active sessions = %d, want 1", len(active))
	}
}
