package login

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	accountstore "github.com/dalemusser/stratapass/internal/app/store/accounts"
	loginstore "github.com/dalemusser/stratapass/internal/app/store/logins"
	"github.com/dalemusser/stratapass/internal/app/store/ratelimit"
	"github.com/dalemusser/stratapass/internal/app/store/sessions"
	"github.com/dalemusser/stratapass/internal/app/system/auditlog"
	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/app/system/authn"
	"github.com/dalemusser/stratapass/internal/domain/models"
	"github.com/dalemusser/stratapass/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const testSessionKey = "test-session-key-0123456789abcdefghij"

func newTestHandler(t *testing.T, db *mongo.Database, fake *testutil.FakeVerifier, limiter *ratelimit.Store) (*Handler, *sessions.Store) {
	t.Helper()
	logger := zap.NewNop()

	sessionMgr, err := auth.NewSessionManager(testSessionKey, "", "", time.Hour, false, logger)
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}

	accounts := accountstore.New(db)
	sessionsStore := sessions.New(db)
	engine := authn.New(accounts, fake, logger)
	auditLogger := auditlog.New(nil, logger, auditlog.Config{Auth: "off"})

	h := NewHandler(fake, engine, sessionMgr, sessionsStore, loginstore.New(db), limiter, auditLogger, time.Hour, logger)
	return h, sessionsStore
}

func postLogin(h *Handler, assertion string) *httptest.ResponseRecorder {
	body, _ := json.Marshal(map[string]string{"assertion": assertion})
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	Routes(h).ServeHTTP(rec, req)
	return rec
}

func TestHandler_Login(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := testutil.NewFakeVerifier()
	h, sessionsStore := newTestHandler(t, db, fake, nil)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	fake.AddAssertion("assert-100", "did:test:login1", 100, "login1@test.com")
	fake.AddAssertion("assert-150", "did:test:login1", 150, "login1@test.com")
	fake.AddAssertion("assert-120", "did:test:login1", 120, "login1@test.com")

	t.Run("missing assertion", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		rec := httptest.NewRecorder()
		Routes(h).ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("first login signs up", func(t *testing.T) {
		rec := postLogin(h, "assert-100")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d. Body: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		var resp loginResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if resp.Outcome != string(authn.OutcomeSignedUp) {
			t.Errorf("outcome = %q, want %q", resp.Outcome, authn.OutcomeSignedUp)
		}
		if resp.Issuer != "did:test:login1" {
			t.Errorf("issuer = %q, want %q", resp.Issuer, "did:test:login1")
		}

		// A session cookie must be set and a server-side record created.
		if len(rec.Result().Cookies()) == 0 {
			t.Error("no session cookie set")
		}
		active, err := sessionsStore.ListByIssuer(ctx, "did:test:login1")
		if err != nil {
			t.Fatalf("ListByIssuer() error = %v", err)
		}
		if len(active) != 1 {
			t.Errorf("active sessions = %d, want 1", len(active))
		}
	})

	t.Run("newer assertion logs in", func(t *testing.T) {
		rec := postLogin(h, "assert-150")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d. Body: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var resp loginResponse
		json.NewDecoder(rec.Body).Decode(&resp)
		if resp.Outcome != string(authn.OutcomeLoggedIn) {
			t.Errorf("outcome = %q, want %q", resp.Outcome, authn.OutcomeLoggedIn)
		}
	})

	t.Run("older assertion is rejected as replay", func(t *testing.T) {
		rec := postLogin(h, "assert-120")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
		// No new session may be created for a rejected login.
		active, err := sessionsStore.ListByIssuer(ctx, "did:test:login1")
		if err != nil {
			t.Fatalf("ListByIssuer() error = %v", err)
		}
		if len(active) != 2 {
			t.Errorf("active sessions = %d, want 2", len(active))
		}
	})

	t.Run("reusing an accepted assertion is rejected", func(t *testing.T) {
		rec := postLogin(h, "assert-150")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("unverifiable assertion", func(t *testing.T) {
		rec := postLogin(h, "not-a-real-assertion")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
		}
	})

	t.Run("assertion via authorization header", func(t *testing.T) {
		fake.AddAssertion("assert-hdr", "did:test:login2", 100, "login2@test.com")
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		req.Header.Set("Authorization", "Bearer assert-hdr")
		rec := httptest.NewRecorder()
		Routes(h).ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want %d. Body: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})
}

func TestHandler_LoginRateLimited(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := testutil.NewFakeVerifier()
	limiter := ratelimit.New(db, 3, 15*time.Minute, 15*time.Minute)
	h, _ := newTestHandler(t, db, fake, limiter)

	// Sign up, then exhaust the failure budget with replays of the same
	// assertion. The next attempt must be rejected with 429 before the
	// decision flow runs, even with a fresh timestamp.
	fake.AddAssertion("rl-100", "did:test:rl", 100, "rl@test.com")
	fake.AddAssertion("rl-200", "did:test:rl", 200, "rl@test.com")

	if rec := postLogin(h, "rl-100"); rec.Code != http.StatusOK {
		t.Fatalf("signup status = %d, want %d", rec.Code, http.StatusOK)
	}
	for i := 0; i < 3; i++ {
		if rec := postLogin(h, "rl-100"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("replay %d status = %d, want %d", i, rec.Code, http.StatusUnauthorized)
		}
	}

	rec := postLogin(h, "rl-200")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
}

func TestHandler_LoginRateLimitedByClientIP(t *testing.T) {
	db := testutil.SetupTestDB(t)
	fake := testutil.NewFakeVerifier()
	limiter := ratelimit.New(db, 3, 15*time.Minute, 15*time.Minute)
	h, _ := newTestHandler(t, db, fake, limiter)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	// Unverifiable assertions have no issuer to key on, so the failures
	// accrue against the client IP. httptest requests share a RemoteAddr,
	// which stands in for one client hammering the endpoint.
	for i := 0; i < 3; i++ {
		if rec := postLogin(h, "garbage-assertion"); rec.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d status = %d, want %d", i, rec.Code, http.StatusUnauthorized)
		}
	}

	// Each failed attempt leaves a history record even without an issuer.
	records, err := loginstore.New(db).ListByIssuer(ctx, "", 10)
	if err != nil {
		t.Fatalf("ListByIssuer() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("login records = %d, want 3", len(records))
	}
	for _, rec := range records {
		if rec.Outcome != models.LoginOutcomeVerifyFailed {
			t.Errorf("outcome = %q, want %q", rec.Outcome, models.LoginOutcomeVerifyFailed)
		}
	}

	// Once locked, even a valid assertion from this client is refused
	// before verification runs.
	fake.AddAssertion("ip-100", "did:test:ip", 100, "ip@test.com")
	rec := postLogin(h, "ip-100")
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header not set")
	}
}
