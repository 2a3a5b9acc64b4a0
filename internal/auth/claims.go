package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims holds the fields of an Arduino cloud access token that the client
// needs to authenticate against the broker.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"http://arduino.cc/id,omitempty"`
	Username string `json:"http://arduino.cc/username,omitempty"`
}

// ParseClaims extracts the claims of a cloud access token without verifying
// its signature. The broker performs verification when the token is presented
// as the MQTT password; the client only needs the identity it carries.
//
// Parameters:
//   - token: The raw JWT, optionally prefixed with "Bearer "
//
// Returns:
//   - *Claims: The decoded claims
//   - error: ErrTokenMissing for an empty token, ErrTokenInvalid when the
//     token cannot be decoded or carries no user identity
func ParseClaims(token string) (*Claims, error) {
	token = RawToken(token)
	if token == "" {
		return nil, ErrTokenMissing
	}

	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}
	if claims.Identity() == "" {
		return nil, fmt.Errorf("%w: missing user id", ErrTokenInvalid)
	}
	return claims, nil
}

// RawToken strips surrounding whitespace and an optional "Bearer " prefix.
func RawToken(token string) string {
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
}

// Identity returns the user id the broker expects as MQTT username. The
// Arduino id claim wins over the standard subject.
func (c *Claims) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return c.Subject
}

// ExpiresIn reports how long the token stays valid after now. ok is false
// when the token carries no expiry.
func (c *Claims) ExpiresIn(now time.Time) (remaining time.Duration, ok bool) {
	if c.ExpiresAt == nil {
		return 0, false
	}
	return c.ExpiresAt.Sub(now), true
}

// Expired reports whether the token expiry lies at or before now.
func (c *Claims) Expired(now time.Time) bool {
	remaining, ok := c.ExpiresIn(now)
	return ok && remaining <= 0
}

// ClientID returns the MQTT client id for a user session: the user id and
// the connect time in Unix milliseconds, joined by a colon.
func ClientID(userID string, now time.Time) string {
	return fmt.Sprintf("%s:%d", userID, now.UnixMilli())
}
