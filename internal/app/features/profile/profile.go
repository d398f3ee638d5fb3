// Package profile implements GET /: the authenticated caller's account
// projection.
package profile

import (
	"context"
	"net/http"
	"time"

	accountstore "github.com/dalemusser/stratapass/internal/app/store/accounts"
	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapass/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// Handler provides the profile handler.
type Handler struct {
	accounts *accountstore.Store
	logger   *zap.Logger
}

// NewHandler creates a new profile Handler.
func NewHandler(accounts *accountstore.Store, logger *zap.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		logger:   logger,
	}
}

// Routes returns a chi.Router with the profile route mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireAuth)
	r.Get("/", h.handleGet)
	return r
}

// projection is the account view returned to the client.
type projection struct {
	Issuer      string `json:"issuer"`
	Email       string `json:"email"`
	LastLoginAt int64  `json:"last_login_at"`
	AppleCount  int64  `json:"apple_count"`
	CreatedAt   string `json:"created_at"`
}

// handleGet returns the caller's account, freshly loaded by issuer.
// The response carries an X-CSRF-Token header for subsequent POSTs.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.CurrentAccount(r)

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	acct, err := h.accounts.Get(ctx, sess.Issuer)
	if err != nil {
		if err == accountstore.ErrNotFound {
			// Session outlived the account record; treat as unauthenticated.
			jsonutil.Unauthorized(w, "not logged in")
			return
		}
		h.logger.Error("profile load failed",
			zap.String("issuer", sess.Issuer),
			zap.Error(err))
		jsonutil.InternalError(w, "profile unavailable")
		return
	}

	w.Header().Set("X-CSRF-Token", csrf.Token(r))
	jsonutil.OK(w, projection{
		Issuer:      acct.Issuer,
		Email:       acct.Email,
		LastLoginAt: acct.LastLoginAt,
		AppleCount:  acct.AppleCount,
		CreatedAt:   acct.CreatedAt.UTC().Format(time.RFC3339),
	})
}
