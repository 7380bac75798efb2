package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"codearena/internal/api/middleware"
	"codearena/internal/app/service"
	"codearena/internal/common"

	"github.com/go-chi/chi/v5"
)

type RoomHandler struct {
	roomService *service.RoomService
}

func NewRoomHandler(rs *service.RoomService) *RoomHandler {
	return &RoomHandler{roomService: rs}
}

func (h *RoomHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Get("/", h.listRooms)   // GET /api/v1/rooms
	r.Post("/", h.createRoom) // POST /api/v1/rooms
	r.Route("/{code}", func(rr chi.Router) {
		rr.Get("/", h.getRoom)
		rr.Delete("/", h.deleteRoom)
		rr.Post("/join", h.joinRoom)
		rr.Post("/leave", h.leaveRoom)
		rr.Post("/start", h.startRoom)
	})
}

func (h *RoomHandler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.roomService.ListRooms(r.Context())
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, rooms)
}

func (h *RoomHandler) createRoom(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentityFromContext(r.Context())

	var req service.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.RespondWithDomainError(w, common.Errorf("invalid request payload: %v: %w", err, common.ErrValidation))
		return
	}

	room, err := h.roomService.CreateRoom(r.Context(), caller, req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, room)
}

func (h *RoomHandler) getRoom(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	room, err := h.roomService.GetRoom(r.Context(), chi.URLParam(r, "code"), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) joinRoom(w http.ResponseWriter, r *http.Request) {
	caller, _ := middleware.GetIdentityFromContext(r.Context())

	// The body is optional for public rooms.
	var req service.JoinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		common.RespondWithDomainError(w, common.Errorf("invalid request payload: %v: %w", err, common.ErrValidation))
		return
	}

	room, err := h.roomService.JoinRoom(r.Context(), chi.URLParam(r, "code"), caller, req.Password)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) leaveRoom(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	room, err := h.roomService.LeaveRoom(r.Context(), chi.URLParam(r, "code"), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, room)
}

func (h *RoomHandler) deleteRoom(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	if err := h.roomService.DeleteRoom(r.Context(), chi.URLParam(r, "code"), userID); err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RoomHandler) startRoom(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	game, err := h.roomService.StartRoom(r.Context(), chi.URLParam(r, "code"), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, game)
}
