package security

import (
	"errors"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
)

var TokenAuth *jwtauth.JWTAuth

func InitJWT(secret []byte) {
	TokenAuth = jwtauth.New("HS256", secret, nil)
}

// GenerateToken issues a token for the identity collaborator's user. Both
// values are opaque to the engine.
func GenerateToken(userID, displayName string, ttl time.Duration) (string, error) {
	if TokenAuth == nil {
		return "", errors.New("jwt is not initialized")
	}
	claims := jwt.MapClaims{
		"user_id":      userID,
		"display_name": displayName,
		"exp":          time.Now().Add(ttl).Unix(),
		"iat":          time.Now().Unix(),
	}
	_, tokenString, err := TokenAuth.Encode(claims)
	return tokenString, err
}

// Helper functions to extract claims, can be used in middleware or services
func GetUserIDFromClaims(claims jwt.MapClaims) (string, error) {
	id, ok := claims["user_id"].(string)
	if !ok || id == "" {
		return "", errors.New("user_id claim is missing or not a string")
	}
	return id, nil
}

// GetDisplayNameFromClaims falls back to the user id when no display name was issued.
func GetDisplayNameFromClaims(claims jwt.MapClaims) string {
	if name, ok := claims["display_name"].(string); ok && name != "" {
		return name
	}
	id, _ := claims["user_id"].(string)
	return id
}
