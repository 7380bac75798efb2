package handler

import (
	"encoding/json"
	"net/http"

	"codearena/internal/api/middleware"
	"codearena/internal/app/service"
	"codearena/internal/common"

	"github.com/go-chi/chi/v5"
)

type GameHandler struct {
	gameService *service.GameService
}

func NewGameHandler(gs *service.GameService) *GameHandler {
	return &GameHandler{gameService: gs}
}

func (h *GameHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/{gameID}", h.getGame)            // GET /api/v1/games/{gameID}
	r.Post("/{gameID}/submit", h.submitGame) // POST /api/v1/games/{gameID}/submit
}

func (h *GameHandler) getGame(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	game, err := h.gameService.GetGame(r.Context(), chi.URLParam(r, "gameID"), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, game)
}

func (h *GameHandler) submitGame(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentityFromContext(r.Context())

	var req service.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithDomainError(w, common.Errorf("invalid request payload: %v: %w", err, common.ErrValidation))
		return
	}

	resp, err := h.gameService.Submit(r.Context(), chi.URLParam(r, "gameID"), caller, req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}
