// Package oauth implements the OAuth Driver (C1): Authorization Code + PKCE
// for Antigravity, Device Authorization + PKCE for Qwen, token refresh, and
// the pending-request registry backing the thin command/HTTP surface.
package oauth

import (
	"errors"
	"time"
)

// Tokens is the normalized result of any OAuth exchange (code, device poll,
// or refresh) — spec.md §4.1.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // epoch ms
	ProjectID    string
	Email        string // best-effort; empty if discovery failed
}

// RefreshBuffer is the window before expiry at which a token is considered
// expired (spec.md §4.1 isTokenExpired).
const RefreshBuffer = 5 * time.Minute

// IsTokenExpired implements spec.md §4.1's isTokenExpired(expires_at, buffer).
func IsTokenExpired(expiresAtMs int64, buffer time.Duration) bool {
	if expiresAtMs == 0 {
		return true
	}
	now := time.Now().UnixMilli()
	return now >= expiresAtMs-buffer.Milliseconds()
}

// Driver is the shared surface both vendor OAuth drivers implement.
type Driver interface {
	// Refresh exchanges a refresh token (and, for Antigravity, a known
	// project id) for a fresh Tokens.
	Refresh(refreshToken, projectID string) (Tokens, error)
}

// Sentinel errors (spec.md §7).
var (
	ErrInvalidState         = errors.New("oauth: invalid or corrupt state")
	ErrMissingRefreshToken  = errors.New("oauth: token exchange returned no refresh token")
	ErrDeviceCodeExpired    = errors.New("oauth: device code expired")
	ErrAccessDenied         = errors.New("oauth: user denied authorization")
	ErrInvalidGrant         = errors.New("oauth: refresh token revoked (invalid_grant)")
)

// ProtocolError wraps an unrecognized OAuth error response (e.g. device
// flow errors other than the RFC 8628 standard set).
type ProtocolError struct {
	Code        string
	Description string
}

func (e *ProtocolError) Error() string {
	if e.Description != "" {
		return "oauth: " + e.Code + ": " + e.Description
	}
	return "oauth: " + e.Code
}
