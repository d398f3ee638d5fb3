package logout

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/dalemusser/stratapass/internal/app/store/sessions"
	"github.com/dalemusser/stratapass/internal/app/system/auditlog"
	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/testutil"
	"go.uber.org/zap"
)

var errProvider = errors.New("provider unavailable")

func TestHandler_Logout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	sessionsStore := sessions.New(db)
	fake := testutil.NewFakeVerifier()

	sessionMgr, err := auth.NewSessionManager("test-session-key-0123456789abcdefghij", "", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	sessionMgr.SetSessionResolver(sessions.NewResolver(sessionsStore, logger))

	h := NewHandler(sessionMgr, sessionsStore, fake, auditlog.New(nil, logger, auditlog.Config{Auth: "off"}), logger)
	router := Routes(h, sessionMgr)

	ctx, cancel := testutil.TestContext()
	defer cancel()

	t.Run("logout revokes the session and notifies the provider", func(t *testing.T) {
		acct := testutil.TestAccount{Issuer: "did:test:out1", Email: "out1@test.com", Token: "tok-out1"}
		err := sessionsStore.Create(ctx, sessions.Session{
			Token:     acct.Token,
			Issuer:    acct.Issuer,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		req := testutil.NewAuthenticatedRequest(http.MethodPost, "/", acct)
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, req)
		rec.AssertStatus(t, http.StatusOK)
		rec.AssertContains(t, "logged_out")

		// The server-side token must no longer resolve.
		if _, ok := sessions.NewResolver(sessionsStore, logger).ResolveToken(ctx, acct.Token); ok {
			t.Error("session token still resolves after logout")
		}
		// The closed record is preserved with its end reason.
		listed, err := sessionsStore.ListByIssuer(ctx, acct.Issuer)
		if err != nil {
			t.Fatalf("ListByIssuer() error = %v", err)
		}
		if len(listed) != 0 {
			t.Errorf("active sessions = %d, want 0", len(listed))
		}

		// Provider-side logout must have been requested.
		if len(fake.Invalidated) != 1 || fake.Invalidated[0] != acct.Issuer {
			t.Errorf("provider invalidations = %v, want [%s]", fake.Invalidated, acct.Issuer)
		}
	})

	t.Run("provider failure still revokes locally", func(t *testing.T) {
		fake.InvalidateErr = errProvider

		acct := testutil.TestAccount{Issuer: "did:test:out2", Email: "out2@test.com", Token: "tok-out2"}
		err := sessionsStore.Create(ctx, sessions.Session{
			Token:     acct.Token,
			Issuer:    acct.Issuer,
			ExpiresAt: time.Now().Add(time.Hour),
		})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		req := testutil.NewAuthenticatedRequest(http.MethodPost, "/", acct)
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, req)
		rec.AssertStatus(t, http.StatusOK)

		if _, ok := sessions.NewResolver(sessionsStore, logger).ResolveToken(ctx, acct.Token); ok {
			t.Error("session token still resolves after logout")
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := testutil.NewRequest(http.MethodPost, "/")
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, req)
		rec.AssertStatus(t, http.StatusUnauthorized)
	})
}
