package normalize

import "testing"

func TestEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"User@Example.COM", "user@example.com"},
		{"  padded@example.com  ", "padded@example.com"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := Email(tt.in); got != tt.want {
			t.Errorf("Email(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIssuer(t *testing.T) {
	// Issuers are opaque; case must survive.
	if got := Issuer("  did:ethr:0xABC  "); got != "did:ethr:0xABC" {
		t.Errorf("Issuer() = %q, want %q", got, "did:ethr:0xABC")
	}
}

func TestAssertion(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"raw-token", "raw-token"},
		{"Bearer raw-token", "raw-token"},
		{"bearer raw-token", "raw-token"},
		{"  Bearer   raw-token  ", "raw-token"},
		{"Bearer", "Bearer"}, // no payload, left as-is
		{"", ""},
	}
	for _, tt := range tests {
		if got := Assertion(tt.in); got != tt.want {
			t.Errorf("Assertion(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
