// internal/app/system/verifier/providerclient.go
package verifier

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dalemusser/stratapass/internal/app/system/normalize"
	"github.com/dalemusser/stratapass/internal/app/system/timeouts"
	"github.com/golang-jwt/jwt/v5"
	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"
)

// ProviderClient implements Verifier against a provider that signs assertions
// as HS256 JWTs (sub = issuer, iat = claim timestamp) and exposes an admin
// HTTP API for metadata lookup and server-side logout.
//
// Assertions are verified locally with the shared secret; only Metadata and
// Invalidate go over the network, each under a caller-imposed timeout.
type ProviderClient struct {
	baseURL   string
	secret    []byte
	timeout   time.Duration
	client    *http.Client
	sanitizer *bluemonday.Policy
	logger    *zap.Logger
}

// Config holds provider client configuration.
type Config struct {
	// BaseURL is the provider admin API root (e.g. https://api.provider.example).
	BaseURL string
	// Secret is the shared HS256 signing secret for assertions.
	Secret string
	// Timeout overrides the shared verifier timeout for each provider API
	// call; zero uses timeouts.Verifier(). Expiry surfaces as
	// ErrVerificationFailed to the caller.
	Timeout time.Duration
}

// NewProviderClient creates a ProviderClient.
func NewProviderClient(cfg Config, logger *zap.Logger) (*ProviderClient, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("verifier secret is empty")
	}
	return &ProviderClient{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		secret:    []byte(cfg.Secret),
		timeout:   cfg.Timeout,
		client:    &http.Client{},
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger,
	}, nil
}

// callTimeout is the deadline applied to each provider API call.
func (p *ProviderClient) callTimeout() time.Duration {
	if p.timeout > 0 {
		return p.timeout
	}
	return timeouts.Verifier()
}

// assertionClaims is the claim set the provider embeds in assertions.
type assertionClaims struct {
	jwt.RegisteredClaims
}

// Verify validates the assertion signature and extracts issuer and claim
// timestamp. Any parse or signature failure maps to ErrVerificationFailed;
// the detailed cause is logged, not returned, so callers treat all
// verification failures uniformly (never retried).
func (p *ProviderClient) Verify(ctx context.Context, assertion string) (Identity, error) {
	var claims assertionClaims
	_, err := jwt.ParseWithClaims(assertion, &claims,
		func(t *jwt.Token) (any, error) { return p.secret, nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		p.logger.Debug("assertion rejected", zap.Error(err))
		return Identity{}, ErrVerificationFailed
	}

	ident := Identity{Issuer: normalize.Issuer(claims.Subject)}
	if claims.IssuedAt != nil {
		ident.IssuedAt = claims.IssuedAt.Unix()
	}
	return ident, nil
}

// Metadata fetches profile metadata for an issuer from the provider admin API.
// Provider-supplied strings are sanitized before they are stored anywhere.
func (p *ProviderClient) Metadata(ctx context.Context, issuer string) (Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout())
	defer cancel()

	endpoint := p.baseURL + "/v1/admin/user/get?issuer=" + url.QueryEscape(issuer)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Profile{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.Warn("provider metadata lookup failed",
			zap.String("issuer", issuer),
			zap.Error(err))
		return Profile{}, ErrVerificationFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("provider metadata lookup rejected",
			zap.String("issuer", issuer),
			zap.Int("status", resp.StatusCode))
		return Profile{}, ErrVerificationFailed
	}

	var body struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Profile{}, fmt.Errorf("decode provider metadata: %w", err)
	}

	return Profile{
		Email: normalize.Email(p.sanitizer.Sanitize(body.Email)),
	}, nil
}

// Invalidate asks the provider to drop its server-side session for the issuer.
func (p *ProviderClient) Invalidate(ctx context.Context, issuer string) error {
	ctx, cancel := context.WithTimeout(ctx, p.callTimeout())
	defer cancel()

	endpoint := p.baseURL + "/v1/admin/user/logout"
	payload, _ := json.Marshal(map[string]string{"issuer": issuer})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(payload)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("provider logout: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider logout: unexpected status %d", resp.StatusCode)
	}
	return nil
}
