// internal/auth/auth.go
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"strings"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid admin token")
)

// AdminGuard checks bearer tokens against a configured admin secret.
// Tokens are compared through HMAC digests so the comparison time does not
// depend on where the strings differ or on their lengths.
type AdminGuard struct {
	key    []byte
	digest []byte
}

// NewAdminGuard returns nil when secret is empty.
func NewAdminGuard(secret string) *AdminGuard {
	if secret == "" {
		return nil
	}
	key := []byte("ava-admin-guard")
	return &AdminGuard{key: key, digest: sum(key, secret)}
}

// Enabled reports whether a secret is configured.
func (g *AdminGuard) Enabled() bool {
	return g != nil
}

// Check validates an Authorization header value.
func (g *AdminGuard) Check(authorization string) error {
	token, ok := BearerToken(authorization)
	if !ok {
		return ErrMissingToken
	}
	if !hmac.Equal(sum(g.key, token), g.digest) {
		return ErrInvalidToken
	}
	return nil
}

// BearerToken extracts the token from "Bearer <token>".
func BearerToken(authorization string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(authorization), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func sum(key []byte, value string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(value))
	return h.Sum(nil)
}
