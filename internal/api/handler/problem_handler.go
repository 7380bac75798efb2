package handler

import (
	"net/http"

	"codearena/internal/api/middleware"
	"codearena/internal/app/service"
	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type ProblemHandler struct {
	problemService *service.ProblemService
}

func NewProblemHandler(ps *service.ProblemService) *ProblemHandler {
	return &ProblemHandler{problemService: ps}
}

func (h *ProblemHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.listProblems)            // GET /api/v1/problems?difficulty=EASY
	r.Get("/{problemSlug}", h.getProblem) // GET /api/v1/problems/sum-of-two
}

func (h *ProblemHandler) listProblems(w http.ResponseWriter, r *http.Request) {
	problems, err := h.problemService.ListProblems(r.Context(), r.URL.Query().Get("difficulty"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}

	type problemsResponse struct {
		Problems []model.Problem `json:"problems"`
		Total    int             `json:"total"`
	}
	common.RespondWithJSON(w, http.StatusOK, problemsResponse{Problems: problems, Total: len(problems)})
}

func (h *ProblemHandler) getProblem(w http.ResponseWriter, r *http.Request) {
	problem, err := h.problemService.GetProblemDetails(r.Context(), chi.URLParam(r, "problemSlug"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, problem)
}
