// Package purchase implements POST /buy-apple: an authenticated counter
// increment on the caller's account.
package purchase

import (
	"context"
	"net/http"

	accountstore "github.com/dalemusser/stratapass/internal/app/store/accounts"
	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/app/system/jsonutil"
	"github.com/dalemusser/stratapass/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handler provides the purchase handler.
type Handler struct {
	accounts *accountstore.Store
	logger   *zap.Logger
}

// NewHandler creates a new purchase Handler.
func NewHandler(accounts *accountstore.Store, logger *zap.Logger) *Handler {
	return &Handler{
		accounts: accounts,
		logger:   logger,
	}
}

// Routes returns a chi.Router with the purchase route mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireAuth)
	r.Post("/", h.handleBuyApple)
	return r
}

// handleBuyApple increments the caller's apple count.
//
// Idempotency: the client may send an Idempotency-Key header (a UUID) naming
// the logical action. Retries with the same key are applied at most once.
// Without the key each request is its own action and a server-side key is
// generated.
func (h *Handler) handleBuyApple(w http.ResponseWriter, r *http.Request) {
	sess, _ := auth.CurrentAccount(r)

	opID := r.Header.Get("Idempotency-Key")
	if opID != "" {
		if _, err := uuid.Parse(opID); err != nil {
			jsonutil.BadRequest(w, "Idempotency-Key must be a UUID")
			return
		}
	} else {
		opID = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
	defer cancel()

	count, err := h.accounts.IncrementAppleCount(ctx, sess.Issuer, opID)
	if err != nil {
		if err == accountstore.ErrNotFound {
			jsonutil.Unauthorized(w, "not logged in")
			return
		}
		h.logger.Error("apple purchase failed",
			zap.String("issuer", sess.Issuer),
			zap.String("op_id", opID),
			zap.Error(err))
		jsonutil.InternalError(w, "purchase unavailable")
		return
	}

	h.logger.Debug("apple purchased",
		zap.String("issuer", sess.Issuer),
		zap.Int64("apple_count", count))

	jsonutil.OK(w, map[string]int64{"apple_count": count})
}
