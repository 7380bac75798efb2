package handler

import (
	"encoding/json"
	"net/http"

	"codearena/internal/app/service"
	"codearena/internal/common"

	"github.com/go-chi/chi/v5"
)

type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/token", h.issueToken)
}

func (h *AuthHandler) issueToken(w http.ResponseWriter, r *http.Request) {
	var req service.TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithDomainError(w, common.Errorf("invalid request payload: %v: %w", err, common.ErrValidation))
		return
	}

	resp, err := h.authService.IssueDevToken(r.Context(), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, resp)
}
