package auth

// Terminology: Account Identifiers
//   - Issuer / issuer: The stable unique identifier of an external identity,
//     supplied by the identity provider. Primary key for account records.
//   - SessionToken / session_token: The random server-side token that binds a
//     browser session to an issuer.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/stratapass/internal/app/system/jsonutil"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.uber.org/zap"
)

// Session error classification for logging and monitoring.
type sessionErrorType int

const (
	sessionErrUnknown sessionErrorType = iota
	sessionErrExpired                  // timestamp expired - normal
	sessionErrTampered                 // MAC invalid - potential attack
	sessionErrCorrupted                // decode/decrypt failed - corruption or key rotation
	sessionErrBackend                  // store/backend failure
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	isAuthKey       = "is_authenticated"
	issuerKey       = "issuer"
	sessionTokenKey = "session_token"
)

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager - injectable session management                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager encapsulates the session cookie store and configuration.
// The cookie is transport only: it carries a random session token whose
// validity is decided server-side by the SessionResolver, so revocation
// (logout, expiry) takes effect even against a captured cookie.
// Use NewSessionManager to create an instance.
type SessionManager struct {
	store    *sessions.CookieStore
	logger   *zap.Logger
	name     string
	resolver SessionResolver
	fetcher  AccountFetcher
}

// NewSessionManager creates a new SessionManager with the provided configuration.
//
// Parameters:
//   - sessionKey: signing key for cookies (must be ≥32 chars in production)
//   - name: session cookie name (defaults to "stratapass-session" if empty)
//   - domain: cookie domain (empty means current host)
//   - maxAge: session cookie lifetime (e.g., 24*time.Hour)
//   - secure: if true, cookies are Secure (for HTTPS production)
//   - logger: zap logger for session error logging
//
// Returns an error if sessionKey is empty or too weak for production mode.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, &SessionConfigError{Message: "session key is empty; provide ≥32 random chars"}
	}

	isWeak := len(sessionKey) < 32 || isDefaultKey(sessionKey)

	if secure {
		// In production mode, require a strong key - fail startup if weak
		if isWeak {
			return nil, &SessionConfigError{
				Message: "session key is too weak for production; provide ≥32 random chars (not the default dev key)",
			}
		}
	} else if isWeak {
		// In dev mode, warn but allow weak keys
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(sessionKey)),
			zap.Bool("is_default", isDefaultKey(sessionKey)))
	}

	if name == "" {
		name = "stratapass-session"
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	opts := &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
	}

	// SameSite=Lax allows cookies on same-site requests and top-level
	// navigations while blocking cross-site POST requests.
	opts.SameSite = http.SameSiteLaxMode

	store.Options = opts

	logger.Info("session manager initialized",
		zap.Bool("secure", secure),
		zap.String("name", name),
		zap.String("domain", domain))

	return &SessionManager{
		store:  store,
		logger: logger,
		name:   name,
	}, nil
}

// SessionConfigError is returned when session configuration is invalid.
type SessionConfigError struct {
	Message string
}

func (e *SessionConfigError) Error() string {
	return e.Message
}

// SessionName returns the configured session cookie name.
func (sm *SessionManager) SessionName() string {
	return sm.name
}

// SetSessionResolver sets the SessionResolver used by LoadSession to decide
// whether a presented session token is still valid. This must be called after
// database initialization.
func (sm *SessionManager) SetSessionResolver(sr SessionResolver) {
	sm.resolver = sr
}

// SetAccountFetcher sets the AccountFetcher used by LoadSession to fetch
// fresh account data on each request. This must be called after database
// initialization.
func (sm *SessionManager) SetAccountFetcher(af AccountFetcher) {
	sm.fetcher = af
}

/*─────────────────────────────────────────────────────────────────────────────*
| Collaborator interfaces                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionResolver resolves a session token to its bound issuer.
// Implementations should return ok=false for revoked or expired tokens.
type SessionResolver interface {
	// ResolveToken returns the issuer bound to the token, or ok=false if the
	// token is unknown, revoked, or expired.
	ResolveToken(ctx context.Context, token string) (issuer string, ok bool)
}

// AccountFetcher fetches fresh account data from the database.
// Implementations should return nil if the account is not found.
type AccountFetcher interface {
	// FetchAccount retrieves an account by issuer. Returns nil if the account
	// is missing or any other condition that should invalidate the session.
	FetchAccount(ctx context.Context, issuer string) *SessionAccount
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-Account helper                                                      |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionAccount represents the authenticated account in the request context.
// The data is fetched fresh from the database on each request; the session
// never caches account fields, so externally-driven changes are visible
// immediately.
type SessionAccount struct {
	Issuer string
	Email  string
	Token  string // Session token for session management
}

// SessionToken returns the session token for this account's current session.
func (a *SessionAccount) SessionToken() string {
	return a.Token
}

type ctxKey string

const currentAccountKey ctxKey = "currentAccount"

// CurrentAccount returns the account & "found?" flag from the request context.
func CurrentAccount(r *http.Request) (*SessionAccount, bool) {
	a, ok := r.Context().Value(currentAccountKey).(*SessionAccount)
	return a, ok
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// LoadSession returns middleware that injects the account into context if the
// request carries a valid session. The session token is resolved against the
// server-side session store, then the account is re-fetched by issuer.
func (sm *SessionManager) LoadSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.logSessionError(err, r)
		}

		if isAuth, _ := sess.Values[isAuthKey].(bool); isAuth {
			token := getString(sess, sessionTokenKey)

			issuer, ok := "", false
			if sm.resolver != nil && token != "" {
				issuer, ok = sm.resolver.ResolveToken(r.Context(), token)
			}

			if ok && sm.fetcher != nil {
				if a := sm.fetcher.FetchAccount(r.Context(), issuer); a != nil {
					a.Token = token
					r = withAccount(r, a)
				} else {
					ok = false
				}
			}

			if !ok {
				// Token revoked, expired, or account gone - clear the cookie.
				sm.logger.Info("session invalidated",
					zap.String("issuer", getString(sess, issuerKey)),
					zap.String("path", r.URL.Path))
				sess.Values[isAuthKey] = false
				delete(sess.Values, issuerKey)
				delete(sess.Values, sessionTokenKey)
				_ = sess.Save(r, w) // Best effort to clear
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth returns middleware that ensures there is an account in context.
// Callers are JSON API clients; unauthenticated requests get a plain 401.
func (sm *SessionManager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentAccount(r); ok {
			next.ServeHTTP(w, r)
			return
		}
		jsonutil.Unauthorized(w, "not logged in")
	})
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func withAccount(r *http.Request, a *SessionAccount) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentAccountKey, a))
}

// WithTestAccount injects a SessionAccount into the request context for testing.
func WithTestAccount(r *http.Request, a *SessionAccount) *http.Request {
	return withAccount(r, a)
}

// getString safely extracts a string from a session value.
func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

// isDefaultKey checks if the session key appears to be a default/placeholder value.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	patterns := []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	}
	for _, p := range patterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// logSessionError categorizes a session/cookie error and logs it at the
// appropriate level.
func (sm *SessionManager) logSessionError(err error, r *http.Request) {
	errType, category := classifySessionError(err)
	switch errType {
	case sessionErrExpired:
		sm.logger.Debug("session expired, starting fresh session",
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	case sessionErrTampered:
		sm.logger.Warn("session MAC validation failed (possible tampering)",
			zap.String("category", category),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()))
	case sessionErrCorrupted:
		sm.logger.Info("session decode failed, starting fresh session",
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	case sessionErrBackend:
		sm.logger.Error("session store error, starting fresh session",
			zap.Error(err),
			zap.String("path", r.URL.Path))
	default:
		sm.logger.Warn("session error, starting fresh session",
			zap.Error(err),
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	}
}

// classifySessionError categorizes a session/cookie error for appropriate logging.
func classifySessionError(err error) (sessionErrorType, string) {
	if err == nil {
		return sessionErrUnknown, "none"
	}

	errStr := strings.ToLower(err.Error())

	if scErr, ok := err.(securecookie.Error); ok {
		if !scErr.IsDecode() {
			return sessionErrBackend, "backend"
		}

		switch {
		case strings.Contains(errStr, "expired timestamp"):
			return sessionErrExpired, "expired"
		case strings.Contains(errStr, "mac") || strings.Contains(errStr, "hash"):
			return sessionErrTampered, "mac_invalid"
		case strings.Contains(errStr, "decrypt"):
			return sessionErrCorrupted, "decrypt_failed"
		case strings.Contains(errStr, "base64") || strings.Contains(errStr, "decode"):
			return sessionErrCorrupted, "decode_failed"
		default:
			return sessionErrCorrupted, "decode_other"
		}
	}

	return sessionErrBackend, "unknown"
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session Management                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// CreateSession establishes a cookie session binding the issuer to the given
// session token. The caller is responsible for creating the matching
// server-side session record; see the login feature.
// If token is empty, a new token will be generated.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, r *http.Request, issuer, token string) (string, error) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		// Create new session if can't get existing
		sess, _ = sm.store.New(r, sm.name)
	}

	if token == "" {
		token, err = GenerateSessionToken()
		if err != nil {
			return "", err
		}
	}

	sess.Values[isAuthKey] = true
	sess.Values[issuerKey] = issuer
	sess.Values[sessionTokenKey] = token

	if err := sess.Save(r, w); err != nil {
		return "", err
	}
	return token, nil
}

// GetSessionToken returns the session token from the current request.
func (sm *SessionManager) GetSessionToken(r *http.Request) string {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		return ""
	}
	return getString(sess, sessionTokenKey)
}

// GenerateSessionToken generates a random URL-safe token for session tracking.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// DestroySession expires the session cookie. Server-side revocation of the
// session record is the caller's responsibility.
func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		return
	}

	sess.Values[isAuthKey] = false
	delete(sess.Values, issuerKey)
	delete(sess.Values, sessionTokenKey)

	sess.Options.MaxAge = -1
	_ = sess.Save(r, w)
}
