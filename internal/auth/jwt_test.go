package auth

import (
	"strings"
	"testing"
)

func TestGenerateToken_RequiresSecret(t *testing.T) {
	InitializeJWT("")
	if _, err := GenerateToken("01ABC", "a@example.com", false); err == nil {
		t.Fatal("expected error when secret is not initialized")
	}
}

func TestTokenRoundTrip(t *testing.T) {
	InitializeJWT("0123456789abcdef0123456789abcdef")

	token, err := GenerateToken("01HZXK3V9T", "admin@example.com", true)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	claims, err := ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error: %v", err)
	}

	if claims.UserID != "01HZXK3V9T" {
		t.Errorf("UserID = %q, want %q", claims.UserID, "01HZXK3V9T")
	}
	if claims.Email != "admin@example.com" {
		t.Errorf("Email = %q, want %q", claims.Email, "admin@example.com")
	}
	if !claims.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}
	if claims.ExpiresAt == nil {
		t.Error("ExpiresAt not set")
	}
}

func TestValidateToken_RejectsGarbage(t *testing.T) {
	InitializeJWT("0123456789abcdef0123456789abcdef")

	tests := []struct {
		name  string
		token string
	}{
		{name: "empty", token: ""},
		{name: "not a jwt", token: "definitely-not-a-token"},
		{name: "truncated", token: "eyJhbGciOiJIUzI1NiJ9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ValidateToken(tt.token); err == nil {
				t.Errorf("ValidateToken(%q) succeeded, want error", tt.token)
			}
		})
	}
}

func TestValidateToken_RejectsWrongSecret(t *testing.T) {
	InitializeJWT("0123456789abcdef0123456789abcdef")
	token, err := GenerateToken("01HZXK3V9T", "a@example.com", false)
	if err != nil {
		t.Fatalf("GenerateToken() error: %v", err)
	}

	InitializeJWT("ffffffffffffffffffffffffffffffff")
	if _, err := ValidateToken(token); err == nil || !strings.Contains(err.Error(), "failed to parse token") {
		t.Errorf("ValidateToken() with wrong secret = %v, want parse failure", err)
	}
}
