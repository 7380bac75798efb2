package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"codearena/internal/common"
	"codearena/internal/common/security"
	"codearena/internal/domain/model"

	"github.com/google/uuid"
)

// AuthService mints bearer tokens for local development. Production identities
// come from an external provider that signs tokens with the same secret.
type AuthService struct {
	enabled bool
	ttl     time.Duration
}

func NewAuthService(enabled bool, ttl time.Duration) *AuthService {
	return &AuthService{enabled: enabled, ttl: ttl}
}

type TokenRequest struct {
	UserID      string `json:"userId,omitempty"` // Generated when empty
	DisplayName string `json:"displayName"`
}

type AuthResponse struct {
	User  model.Identity `json:"user"`
	Token string         `json:"token"`
}

func (s *AuthService) IssueDevToken(_ context.Context, req TokenRequest) (*AuthResponse, error) {
	if !s.enabled {
		return nil, common.Errorf("dev tokens are disabled: %w", common.ErrForbidden)
	}
	name := strings.TrimSpace(req.DisplayName)
	if name == "" {
		return nil, common.Errorf("displayName is required: %w", common.ErrValidation)
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = uuid.NewString()
	}

	token, err := security.GenerateToken(userID, name, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	return &AuthResponse{User: model.Identity{UserID: userID, DisplayName: name}, Token: token}, nil
}
