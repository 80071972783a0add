package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidate(t *testing.T) {
	secret := "supersecret"
	userID := "user-123"

	token, err := GenerateToken(userID, secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %q, want %q", claims.UserID, userID)
	}
	if claims.Subject != userID {
		t.Errorf("Subject = %q, want %q", claims.Subject, userID)
	}
}

func TestWrongSecret(t *testing.T) {
	token, err := GenerateToken("user-123", "secret-a", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(token, "secret-b"); err == nil {
		t.Error("expected error with wrong secret")
	}
}

func TestExpiredToken(t *testing.T) {
	token, err := GenerateToken("user-123", "secret", -time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken(token, "secret"); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestGarbageToken(t *testing.T) {
	if _, err := ValidateToken("not.a.token", "secret"); err == nil {
		t.Error("expected error for malformed token")
	}
}
