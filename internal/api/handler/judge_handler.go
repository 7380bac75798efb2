package handler

import (
	"encoding/json"
	"net/http"

	"codearena/internal/api/middleware"
	"codearena/internal/app/service"
	"codearena/internal/common"

	"github.com/go-chi/chi/v5"
)

// JudgeHandler exposes the judge outside of a game. Bot matches use it to
// verify the player's solution.
type JudgeHandler struct {
	judgeService *service.JudgeService
}

func NewJudgeHandler(js *service.JudgeService) *JudgeHandler {
	return &JudgeHandler{judgeService: js}
}

func (h *JudgeHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Post("/", h.judge) // POST /api/v1/judge
}

func (h *JudgeHandler) judge(w http.ResponseWriter, r *http.Request) {
	var req service.JudgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithDomainError(w, common.Errorf("invalid request payload: %v: %w", err, common.ErrValidation))
		return
	}

	verdict, err := h.judgeService.Judge(r.Context(), req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, verdict)
}
