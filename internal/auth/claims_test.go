package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// signToken builds a token the way the identity service does. The key is
// irrelevant because ParseClaims never verifies it.
func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}
	return token
}

func TestParseClaims(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	token := signToken(t, jwt.MapClaims{
		"sub":                        "auth0|5b8e",
		"http://arduino.cc/id":       "9f1c7d3e-8b11-4e3a-a2a4-0c7d5f5b6a10",
		"http://arduino.cc/username": "maker",
		"exp":                        exp.Unix(),
	})

	claims, err := ParseClaims(token)
	if err != nil {
		t.Fatalf("ParseClaims() error = %v", err)
	}

	if got := claims.Identity(); got != "9f1c7d3e-8b11-4e3a-a2a4-0c7d5f5b6a10" {
		t.Errorf("Identity() = %q, want the arduino id claim", got)
	}
	if claims.Username != "maker" {
		t.Errorf("Username = %q, want %q", claims.Username, "maker")
	}
	if claims.Subject != "auth0|5b8e" {
		t.Errorf("Subject = %q, want %q", claims.Subject, "auth0|5b8e")
	}

	now := exp.Add(-time.Hour)
	remaining, ok := claims.ExpiresIn(now)
	if !ok || remaining != time.Hour {
		t.Errorf("ExpiresIn() = %v, %v, want 1h, true", remaining, ok)
	}
	if claims.Expired(now) {
		t.Error("Expired() = true before expiry")
	}
	if !claims.Expired(exp) {
		t.Error("Expired() = false at expiry")
	}
}

func TestParseClaims_SubjectFallback(t *testing.T) {
	claims, err := ParseClaims("Bearer " + signToken(t, jwt.MapClaims{"sub": "user-42"}))
	if err != nil {
		t.Fatalf("ParseClaims() error = %v", err)
	}
	if got := claims.Identity(); got != "user-42" {
		t.Errorf("Identity() = %q, want %q", got, "user-42")
	}
	if _, ok := claims.ExpiresIn(time.Now()); ok {
		t.Error("ExpiresIn() ok = true for a token without exp")
	}
	if claims.Expired(time.Now()) {
		t.Error("Expired() = true for a token without exp")
	}
}

func TestParseClaims_Errors(t *testing.T) {
	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrTokenMissing},
		{"bearer only", "Bearer ", ErrTokenMissing},
		{"garbage", "not-a-jwt", ErrTokenInvalid},
		{"bad segment", "a.b.c", ErrTokenInvalid},
		{"no identity", signToken(t, jwt.MapClaims{"iss": "https://login.arduino.cc/"}), ErrTokenInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseClaims(tt.token)
			if !errors.Is(err, tt.want) {
				t.Errorf("ParseClaims() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestClientID(t *testing.T) {
	now := time.UnixMilli(1536743296123)
	if got := ClientID("user-42", now); got != "user-42:1536743296123" {
		t.Errorf("ClientID() = %q, want %q", got, "user-42:1536743296123")
	}
}

func TestRawToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc.def.ghi", "abc.def.ghi"},
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"  Bearer abc.def.ghi\n", "abc.def.ghi"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := RawToken(tt.in); got != tt.want {
			t.Errorf("RawToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
