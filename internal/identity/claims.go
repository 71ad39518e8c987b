// Package identity implements docchat.IdentityProvider against the hosted
// identity REST API and in process for tests and offline use.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims are the ID-token claims docchat relies on.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// ParseUnverified decodes an ID token without checking its signature.
// Tokens from the REST provider are verified by the backend, not the client;
// the client only needs the subject and expiry.
func ParseUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("decoding id token: %w", err)
	}
	return claims, nil
}

// expiry returns the token's exp claim, or fallback when it has none.
func (c *Claims) expiry(fallback time.Time) time.Time {
	if c.ExpiresAt != nil {
		return c.ExpiresAt.Time
	}
	return fallback
}
