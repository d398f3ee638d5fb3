// Package login implements POST /login: it accepts an identity assertion,
// runs the authentication decision flow, and establishes a session on success.
package login

import (
	"net/http"
	"time"

	"github.com/dalemusser/stratapass/internal/app/store/audit"
	loginstore "github.com/dalemusser/stratapass/internal/app/store/logins"
	"github.com/dalemusser/stratapass/internal/app/store/ratelimit"
	"github.com/dalemusser/stratapass/internal/app/store/sessions"
	"github.com/dalemusser/stratapass/internal/app/system/auditlog"
	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/app/system/authn"
	"github.com/dalemusser/stratapass/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapass/internal/app/system/network"
	"github.com/dalemusser/stratapass/internal/app/system/normalize"
	"github.com/dalemusser/stratapass/internal/app/system/verifier"
	"github.com/dalemusser/stratapass/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides the login handler.
type Handler struct {
	verifier      verifier.Verifier
	engine        *authn.Engine
	sessionMgr    *auth.SessionManager
	sessionsStore *sessions.Store
	loginsStore   *loginstore.Store
	rateLimiter   *ratelimit.Store // nil disables rate limiting
	auditLogger   *auditlog.Logger
	sessionMaxAge time.Duration
	logger        *zap.Logger
}

// NewHandler creates a new login Handler.
func NewHandler(
	v verifier.Verifier,
	engine *authn.Engine,
	sessionMgr *auth.SessionManager,
	sessionsStore *sessions.Store,
	loginsStore *loginstore.Store,
	rateLimiter *ratelimit.Store,
	auditLogger *auditlog.Logger,
	sessionMaxAge time.Duration,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		verifier:      v,
		engine:        engine,
		sessionMgr:    sessionMgr,
		sessionsStore: sessionsStore,
		loginsStore:   loginsStore,
		rateLimiter:   rateLimiter,
		auditLogger:   auditLogger,
		sessionMaxAge: sessionMaxAge,
		logger:        logger,
	}
}

// Routes returns a chi.Router with the login route mounted.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/", h.handleLogin)
	return r
}

// loginResponse is the body returned for an accepted login.
type loginResponse struct {
	Issuer  string `json:"issuer"`
	Email   string `json:"email"`
	Outcome string `json:"outcome"`
}

// handleLogin verifies the assertion and applies the signup/login decision.
//
// Failure semantics: verification failures and replays are 401 and are never
// retried here; rate-limited issuers get 429; store failures are 500. The
// assertion may arrive in the JSON body or as an Authorization bearer token.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Assertion string `json:"assertion"`
	}
	// Body is optional when the Authorization header carries the assertion.
	_ = jsonutil.Decode(r, &in)

	assertion := normalize.Assertion(in.Assertion)
	if assertion == "" {
		assertion = normalize.Assertion(r.Header.Get("Authorization"))
	}
	if assertion == "" {
		jsonutil.BadRequest(w, "missing assertion")
		return
	}

	// The issuer is unknown until the assertion verifies, so unverifiable
	// requests are throttled by client IP.
	ipKey := "ip:" + network.GetClientIP(r)
	if h.rateLimiter != nil {
		allowed, _, lockedUntil := h.rateLimiter.CheckAllowed(r.Context(), ipKey)
		if !allowed {
			h.auditLogger.AuthEvent(r.Context(), r, audit.EventLoginRateLimited, "", false, "client locked out")
			if lockedUntil != nil {
				w.Header().Set("Retry-After", lockedUntil.UTC().Format(http.TimeFormat))
			}
			jsonutil.TooManyRequests(w, "too many failed login attempts")
			return
		}
	}

	ident, err := h.verifier.Verify(r.Context(), assertion)
	if err != nil {
		_ = h.loginsStore.CreateFrom(r.Context(), r, "", models.LoginOutcomeVerifyFailed)
		h.auditLogger.AuthEvent(r.Context(), r, audit.EventLoginVerificationFailed, "", false, err.Error())
		if h.rateLimiter != nil {
			if lockedOut, _ := h.rateLimiter.RecordFailure(r.Context(), ipKey); lockedOut {
				h.auditLogger.AuthEvent(r.Context(), r, audit.EventLoginLockedOut, "", false, "client lockout triggered")
			}
		}
		jsonutil.Unauthorized(w, "could not log user in")
		return
	}

	if h.rateLimiter != nil {
		allowed, _, lockedUntil := h.rateLimiter.CheckAllowed(r.Context(), ident.Issuer)
		if !allowed {
			h.auditLogger.AuthEvent(r.Context(), r, audit.EventLoginRateLimited, ident.Issuer, false, "locked out")
			if lockedUntil != nil {
				w.Header().Set("Retry-After", lockedUntil.UTC().Format(http.TimeFormat))
			}
			jsonutil.TooManyRequests(w, "too many failed login attempts")
			return
		}
	}

	acct, outcome, err := h.engine.Decide(r.Context(), ident)
	switch outcome {
	case authn.OutcomeSignedUp, authn.OutcomeLoggedIn:
		h.establishSession(w, r, acct, outcome)

	case authn.OutcomeReplayRejected:
		_ = h.loginsStore.CreateFrom(r.Context(), r, ident.Issuer, models.LoginOutcomeReplayRejected)
		h.auditLogger.AuthEvent(r.Context(), r, audit.EventLoginReplayRejected, ident.Issuer, false, "replayed claim timestamp")
		if h.rateLimiter != nil {
			if lockedOut, _ := h.rateLimiter.RecordFailure(r.Context(), ident.Issuer); lockedOut {
				h.auditLogger.AuthEvent(r.Context(), r, audit.EventLoginLockedOut, ident.Issuer, false, "lockout triggered")
			}
		}
		jsonutil.Unauthorized(w, "could not log user in")

	case authn.OutcomeInvalidAssertion:
		h.auditLogger.AuthEvent(r.Context(), r, audit.EventLoginInvalidAssertion, ident.Issuer, false, "malformed assertion")
		jsonutil.Unauthorized(w, "could not log user in")

	default:
		h.logger.Error("login failed on store error",
			zap.String("issuer", ident.Issuer),
			zap.Error(err))
		jsonutil.InternalError(w, "login unavailable")
	}
}

// establishSession creates the server-side session record and the cookie,
// records the login, and writes the success response.
func (h *Handler) establishSession(w http.ResponseWriter, r *http.Request, acct models.Account, outcome authn.Outcome) {
	token, err := auth.GenerateSessionToken()
	if err != nil {
		h.logger.Error("session token generation failed", zap.Error(err))
		jsonutil.InternalError(w, "login unavailable")
		return
	}

	err = h.sessionsStore.Create(r.Context(), sessions.Session{
		Token:     token,
		Issuer:    acct.Issuer,
		IPAddress: network.GetClientIP(r),
		UserAgent: r.UserAgent(),
		ExpiresAt: time.Now().Add(h.sessionMaxAge),
	})
	if err != nil {
		h.logger.Error("session record creation failed",
			zap.String("issuer", acct.Issuer),
			zap.Error(err))
		jsonutil.InternalError(w, "login unavailable")
		return
	}

	if _, err := h.sessionMgr.CreateSession(w, r, acct.Issuer, token); err != nil {
		h.logger.Error("session cookie creation failed",
			zap.String("issuer", acct.Issuer),
			zap.Error(err))
		jsonutil.InternalError(w, "login unavailable")
		return
	}

	recorded := models.LoginOutcomeLoggedIn
	auditType := audit.EventLoginSuccess
	if outcome == authn.OutcomeSignedUp {
		recorded = models.LoginOutcomeSignedUp
		auditType = audit.EventSignupSuccess
	}
	_ = h.loginsStore.CreateFrom(r.Context(), r, acct.Issuer, recorded)
	h.auditLogger.AuthEvent(r.Context(), r, auditType, acct.Issuer, true, "")
	if h.rateLimiter != nil {
		h.rateLimiter.RecordSuccess(r.Context(), acct.Issuer)
	}

	jsonutil.OK(w, loginResponse{
		Issuer:  acct.Issuer,
		Email:   acct.Email,
		Outcome: string(outcome),
	})
}
