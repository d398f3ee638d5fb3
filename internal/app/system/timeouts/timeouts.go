// Package timeouts provides centralized timeout values for handler operations.
package timeouts

import (
	"sync"
	"time"
)

// Default timeout values (used if Configure is not called).
const (
	DefaultPing     = 2 * time.Second
	DefaultShort    = 5 * time.Second
	DefaultVerifier = 5 * time.Second
)

// mu protects all timeout values from concurrent access.
var mu sync.RWMutex

// Configurable timeout values.
var (
	ping     = DefaultPing
	short    = DefaultShort
	verifier = DefaultVerifier
)

// Ping returns the timeout for health checks.
func Ping() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return ping
}

// Short returns the timeout for simple store operations.
func Short() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return short
}

// Verifier returns the caller-imposed timeout for identity provider calls.
// The provider is the only potentially slow external dependency; expiry is
// surfaced to the caller as a verification failure.
func Verifier() time.Duration {
	mu.RLock()
	defer mu.RUnlock()
	return verifier
}

// Config holds timeout configuration values.
type Config struct {
	Ping     time.Duration
	Short    time.Duration
	Verifier time.Duration
}

// Configure sets custom timeout values. Zero fields keep the current value.
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()
	if cfg.Ping > 0 {
		ping = cfg.Ping
	}
	if cfg.Short > 0 {
		short = cfg.Short
	}
	if cfg.Verifier > 0 {
		verifier = cfg.Verifier
	}
}

// Reset restores all timeouts to defaults.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	ping = DefaultPing
	short = DefaultShort
	verifier = DefaultVerifier
}
