package security

import (
	"context"
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "hunter2" {
		t.Fatalf("expected hash to differ from the plain password")
	}
	if !CheckPasswordHash("hunter2", hash) {
		t.Fatalf("expected matching password to verify")
	}
	if CheckPasswordHash("hunter3", hash) {
		t.Fatalf("expected wrong password to be rejected")
	}
	if CheckPasswordHash("anything", "") {
		t.Fatalf("expected empty hash to reject every password")
	}
}

func TestGenerateTokenCarriesIdentity(t *testing.T) {
	InitJWT([]byte("test-secret"))

	tokenString, err := GenerateToken("u-1", "Ada", time.Hour)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	token, err := jwtauth.VerifyToken(TokenAuth, tokenString)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	claims, err := token.AsMap(context.Background())
	if err != nil {
		t.Fatalf("claims: %v", err)
	}

	id, err := GetUserIDFromClaims(claims)
	if err != nil || id != "u-1" {
		t.Fatalf("expected user id u-1, got %q (%v)", id, err)
	}
	if name := GetDisplayNameFromClaims(claims); name != "Ada" {
		t.Fatalf("expected display name Ada, got %q", name)
	}
}

func TestDisplayNameFallsBackToUserID(t *testing.T) {
	claims := map[string]interface{}{"user_id": "u-9"}
	if name := GetDisplayNameFromClaims(claims); name != "u-9" {
		t.Fatalf("expected fallback to user id, got %q", name)
	}
}
