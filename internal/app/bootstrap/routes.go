// internal/app/bootstrap/routes.go
package bootstrap

import (
	"net/http"
	"time"

	healthfeature "github.com/dalemusser/stratapass/internal/app/features/health"
	loginfeature "github.com/dalemusser/stratapass/internal/app/features/login"
	logoutfeature "github.com/dalemusser/stratapass/internal/app/features/logout"
	profilefeature "github.com/dalemusser/stratapass/internal/app/features/profile"
	purchasefeature "github.com/dalemusser/stratapass/internal/app/features/purchase"
	accountstore "github.com/dalemusser/stratapass/internal/app/store/accounts"
	"github.com/dalemusser/stratapass/internal/app/store/audit"
	loginstore "github.com/dalemusser/stratapass/internal/app/store/logins"
	"github.com/dalemusser/stratapass/internal/app/store/ratelimit"
	"github.com/dalemusser/stratapass/internal/app/store/sessions"
	"github.com/dalemusser/stratapass/internal/app/system/auditlog"
	"github.com/dalemusser/stratapass/internal/app/system/auth"
	"github.com/dalemusser/stratapass/internal/app/system/authn"
	"github.com/dalemusser/stratapass/internal/app/system/verifier"
	"github.com/dalemusser/waffle/config"
	"github.com/dalemusser/waffle/middleware"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"go.uber.org/zap"
)

// BuildHandler constructs the root HTTP handler (router) for this WAFFLE app.
//
// WAFFLE calls this after configuration, DB connections, schema setup, and
// any Startup hooks have completed. At this point you have access to:
//   - coreCfg: WAFFLE core configuration (ports, env, timeouts, etc.)
//   - appCfg: app-specific configuration defined in AppConfig
//   - deps: any DB or backend clients bundled in DBDeps
//   - logger: the fully configured zap.Logger for this app
//
// This function should:
//  1. Create a router (chi, standard mux, etc.)
//  2. Mount feature routers for different parts of your application
//  3. Add any additional middleware needed for specific routes
//  4. Return the configured router as an http.Handler
func BuildHandler(coreCfg *config.CoreConfig, appCfg AppConfig, deps DBDeps, logger *zap.Logger) (http.Handler, error) {
	// Create the session manager using app config.
	// Secure cookies are enabled in production mode.
	secure := coreCfg.Env == "prod"
	sessionMgr, err := auth.NewSessionManager(appCfg.SessionKey, appCfg.SessionName, appCfg.SessionDomain, appCfg.SessionMaxAge, secure, logger)
	if err != nil {
		logger.Error("session manager init failed", zap.Error(err))
		return nil, err
	}

	// The cookie only carries the session token; the sessions collection is
	// what decides whether a session is still live. Hooking up the resolver
	// and fetcher here is what makes logout and expiry take effect on the
	// very next request.
	sessionsStore := sessions.New(deps.MongoDatabase)
	sessionMgr.SetSessionResolver(sessions.NewResolver(sessionsStore, logger))
	sessionMgr.SetAccountFetcher(accountstore.NewFetcher(deps.MongoDatabase, logger))

	// Identity provider client for assertion verification and admin calls.
	// The call timeout comes from timeouts.Verifier(), configured in Startup.
	providerClient, err := verifier.NewProviderClient(verifier.Config{
		BaseURL: appCfg.VerifierBaseURL,
		Secret:  appCfg.VerifierSecret,
	}, logger)
	if err != nil {
		logger.Error("provider client init failed", zap.Error(err))
		return nil, err
	}

	// Create audit store and logger for security event tracking.
	auditStore := audit.New(deps.MongoDatabase)
	auditLogger := auditlog.New(auditStore, logger, auditlog.Config{
		Auth: appCfg.AuditLogAuth,
	})

	accountsStore := accountstore.New(deps.MongoDatabase)
	loginsStore := loginstore.New(deps.MongoDatabase)

	// The engine owns the signup-vs-login decision and the replay check.
	engine := authn.New(accountsStore, providerClient, logger)

	r := chi.NewRouter()

	// ─────────────────────────────────────────────────────────────────────────────
	// Global Middleware (applies to ALL routes)
	// ─────────────────────────────────────────────────────────────────────────────

	// Request timeout middleware: prevents requests from hanging indefinitely.
	r.Use(chimw.Timeout(30 * time.Second))

	// CORS middleware: must be early in the chain to handle preflight requests.
	r.Use(middleware.CORSFromConfig(coreCfg))

	// Security headers middleware: adds X-Frame-Options, X-Content-Type-Options, etc.
	r.Use(middleware.SecurityHeadersFromConfig(coreCfg))

	// Session middleware: loads the session account into context if logged in.
	r.Use(sessionMgr.LoadSession)

	// CSRF protection middleware with path-based exemption for the login route.
	// Cookie name is "stratapass_csrf" to avoid collisions with other services
	// on the same domain.
	csrfOpts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.CookieName("stratapass_csrf"),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			logger.Warn("CSRF validation failed",
				zap.String("path", req.URL.Path),
				zap.String("method", req.Method),
				zap.String("reason", csrf.FailureReason(req).Error()),
			)
			http.Error(w, "CSRF token invalid or missing", http.StatusForbidden)
		})),
	}
	// In dev mode, trust localhost origins for CSRF validation.
	trustedOrigins := []string{
		"localhost:8080",
		"localhost:3000",
		"127.0.0.1:8080",
		"127.0.0.1:3000",
	}
	if !secure {
		csrfOpts = append(csrfOpts, csrf.TrustedOrigins(trustedOrigins))
	}
	if appCfg.SessionDomain != "" {
		csrfOpts = append(csrfOpts, csrf.Domain(appCfg.SessionDomain))
	}
	csrfProtect := csrf.Protect([]byte(appCfg.CSRFKey), csrfOpts...)

	// Wrap CSRF middleware to skip for the login route: a client posting an
	// identity assertion has no session cookie yet, so there is no token to
	// present. The assertion itself is the proof of intent. The profile
	// response hands out a token for subsequent mutating calls.
	csrfMiddleware := func(next http.Handler) http.Handler {
		csrfHandler := csrfProtect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			switch req.URL.Path {
			case "/login":
				next.ServeHTTP(w, req)
				return
			}
			csrfHandler.ServeHTTP(w, req)
		})
	}
	r.Use(csrfMiddleware)

	// ─────────────────────────────────────────────────────────────────────────────
	// Routes
	// ─────────────────────────────────────────────────────────────────────────────

	// Health check endpoints for load balancers and orchestrators
	healthHandler := healthfeature.NewHandler(deps.MongoClient, logger)
	r.Mount("/health", healthfeature.Routes(healthHandler))

	// Rate limiting for login attempts (nil if disabled)
	var rateLimitStore *ratelimit.Store
	if appCfg.RateLimitEnabled {
		rateLimitStore = ratelimit.New(
			deps.MongoDatabase,
			appCfg.RateLimitLoginAttempts,
			appCfg.RateLimitLoginWindow,
			appCfg.RateLimitLoginLockout,
		)
	}

	// Authentication
	loginHandler := loginfeature.NewHandler(
		providerClient,
		engine,
		sessionMgr,
		sessionsStore,
		loginsStore,
		rateLimitStore,
		auditLogger,
		appCfg.SessionMaxAge,
		logger,
	)
	r.Mount("/login", loginfeature.Routes(loginHandler))

	logoutHandler := logoutfeature.NewHandler(sessionMgr, sessionsStore, providerClient, auditLogger, logger)
	r.Mount("/logout", logoutfeature.Routes(logoutHandler, sessionMgr))

	// Authenticated account profile at the root
	profileHandler := profilefeature.NewHandler(accountsStore, logger)
	r.Mount("/", profilefeature.Routes(profileHandler, sessionMgr))

	// Purchase endpoint ($1 apple)
	purchaseHandler := purchasefeature.NewHandler(accountsStore, logger)
	r.Mount("/buy-apple", purchasefeature.Routes(purchaseHandler, sessionMgr))

	return r, nil
}
