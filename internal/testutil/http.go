package testutil

import (
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/dalemusser/stratapass/internal/app/system/auth"
)

// TestAccount represents account data for testing HTTP handlers.
type TestAccount struct {
	Issuer string
	Email  string
	Token  string
}

// Account returns a TestAccount with a stable issuer.
func Account() TestAccount {
	return TestAccount{
		Issuer: "did:test:abc123",
		Email:  "account@test.com",
		Token:  "test-session-token",
	}
}

// WithAccount adds an account to the request context for testing authenticated
// handlers. This bypasses the session middleware and injects the account directly.
func WithAccount(r *http.Request, acct TestAccount) *http.Request {
	sessionAccount := &auth.SessionAccount{
		Issuer: acct.Issuer,
		Email:  acct.Email,
		Token:  acct.Token,
	}
	return auth.WithTestAccount(r, sessionAccount)
}

// NewRequest creates an HTTP request for testing.
func NewRequest(method, target string) *http.Request {
	return httptest.NewRequest(method, target, nil)
}

// NewAuthenticatedRequest creates an HTTP request with an account in context.
func NewAuthenticatedRequest(method, target string, acct TestAccount) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	return WithAccount(req, acct)
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t interface{ Errorf(string, ...any) }, expected int) {
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d", r.Code, expected)
	}
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t interface{ Errorf(string, ...any) }, expected string) {
	body := r.Body.String()
	if !strings.Contains(body, expected) {
		t.Errorf("response body does not contain %q", expected)
	}
}
