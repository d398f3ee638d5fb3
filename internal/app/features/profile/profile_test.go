package profile

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	accountstore "github.com/dalemusser/stratapass/internal/app/store/accounts"
	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/domain/models"
	"github.com/dalemusser/stratapass/internal/testutil"
	"go.uber.org/zap"
)

func TestHandler_Get(t *testing.T) {
	db := testutil.SetupTestDB(t)
	accounts := accountstore.New(db)
	h := NewHandler(accounts, zap.NewNop())

	sessionMgr, err := auth.NewSessionManager("test-session-key-0123456789abcdefghij", "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	router := Routes(h, sessionMgr)

	ctx, cancel := testutil.TestContext()
	defer cancel()

	acct := testutil.TestAccount{Issuer: "did:test:profile", Email: "profile@test.com", Token: "tok"}
	if _, err := accounts.Create(ctx, models.Account{
		Issuer:      acct.Issuer,
		Email:       acct.Email,
		LastLoginAt: 1234,
	}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	t.Run("returns fresh account data", func(t *testing.T) {
		req := testutil.NewAuthenticatedRequest(http.MethodGet, "/", acct)
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, req)
		rec.AssertStatus(t, http.StatusOK)

		var resp projection
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Issuer != acct.Issuer {
			t.Errorf("issuer = %q, want %q", resp.Issuer, acct.Issuer)
		}
		if resp.Email != acct.Email {
			t.Errorf("email = %q, want %q", resp.Email, acct.Email)
		}
		if resp.LastLoginAt != 1234 {
			t.Errorf("last_login_at = %d, want 1234", resp.LastLoginAt)
		}
		if resp.AppleCount != 0 {
			t.Errorf("apple_count = %d, want 0", resp.AppleCount)
		}
	})

	t.Run("reflects external mutation on next request", func(t *testing.T) {
		if _, err := accounts.IncrementAppleCount(ctx, acct.Issuer, "op-profile"); err != nil {
			t.Fatalf("IncrementAppleCount() error = %v", err)
		}

		req := testutil.NewAuthenticatedRequest(http.MethodGet, "/", acct)
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, req)
		rec.AssertStatus(t, http.StatusOK)

		var resp projection
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.AppleCount != 1 {
			t.Errorf("apple_count = %d, want 1", resp.AppleCount)
		}
	})

	t.Run("unauthenticated", func(t *testing.T) {
		req := testutil.NewRequest(http.MethodGet, "/")
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, req)
		rec.AssertStatus(t, http.StatusUnauthorized)
	})

	t.Run("session for deleted account", func(t *testing.T) {
		ghost := testutil.TestAccount{Issuer: "did:test:gone", Email: "gone@test.com", Token: "tok2"}
		req := testutil.NewAuthenticatedRequest(http.MethodGet, "/", ghost)
		rec := testutil.NewRecorder()
		router.ServeHTTP(rec, req)
		rec.AssertStatus(t, http.StatusUnauthorized)
	})
}
