package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the display fields read from a JWT access token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that has passed.
func (c Claims) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// ParseClaims decodes token without verifying its signature. The
// signing key lives on the server; the result is for display only.
func ParseClaims(token string) (Claims, bool) {
	if token == "" {
		return Claims{}, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, false
	}
	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, false
	}

	var claims Claims
	if subject, err := mapClaims.GetSubject(); err == nil {
		claims.Subject = subject
	}
	if issued, err := mapClaims.GetIssuedAt(); err == nil && issued != nil {
		claims.IssuedAt = issued.Time
	}
	if expires, err := mapClaims.GetExpirationTime(); err == nil && expires != nil {
		claims.ExpiresAt = expires.Time
	}
	return claims, true
}

// Claims returns the claims of the current access token. ok is false
// when logged out or when the token is not a JWT.
func (m *Manager) Claims() (Claims, bool) {
	return ParseClaims(m.Token())
}

// TokenExpired reports whether the current token is a JWT past its expiry.
func (m *Manager) TokenExpired() bool {
	claims, ok := m.Claims()
	return ok && claims.Expired(m.now())
}
