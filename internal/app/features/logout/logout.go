// internal/app/features/logout/logout.go
package logout

import (
	"net/http"

	"github.com/dalemusser/stratapass/internal/app/store/sessions"
	"github.com/dalemusser/stratapass/internal/app/system/auditlog"
	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapass/internal/app/system/verifier"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler provides logout handlers.
type Handler struct {
	sessionMgr    *auth.SessionManager
	sessionsStore *sessions.Store
	verifier      verifier.Verifier
	auditLogger   *auditlog.Logger
	logger        *zap.Logger
}

// NewHandler creates a new logout Handler.
func NewHandler(
	sessionMgr *auth.SessionManager,
	sessionsStore *sessions.Store,
	v verifier.Verifier,
	auditLogger *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		sessionMgr:    sessionMgr,
		sessionsStore: sessionsStore,
		verifier:      v,
		auditLogger:   auditLogger,
		logger:        logger,
	}
}

// Routes returns a chi.Router with logout routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireAuth)
	r.Post("/", h.handleLogout)
	return r
}

// handleLogout terminates the session locally and asks the identity provider
// to drop its server-side session for the issuer. Both sides are attempted
// even if one fails: the local revocation is authoritative, the provider side
// is best-effort.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	acct, ok := auth.CurrentAccount(r)
	if !ok {
		jsonutil.Unauthorized(w, "not logged in")
		return
	}

	h.auditLogger.Logout(r.Context(), r, acct.Issuer)

	// Revoke the server-side session record (preserved for audit, records duration).
	if token := acct.SessionToken(); token != "" {
		if err := h.sessionsStore.Close(r.Context(), token, sessions.EndReasonLogout); err != nil {
			h.logger.Warn("failed to close session in store",
				zap.String("issuer", acct.Issuer),
				zap.Error(err))
		}
	}

	// Best-effort provider-side logout.
	if err := h.verifier.Invalidate(r.Context(), acct.Issuer); err != nil {
		h.logger.Warn("provider-side logout failed",
			zap.String("issuer", acct.Issuer),
			zap.Error(err))
	}

	h.sessionMgr.DestroySession(w, r)

	jsonutil.OK(w, map[string]string{"status": "logged_out"})
}
