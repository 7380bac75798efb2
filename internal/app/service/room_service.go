package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"unicode/utf8"

	"codearena/internal/common"
	"codearena/internal/common/security"
	"codearena/internal/domain/model"
	"codearena/internal/domain/repository"
	"codearena/internal/platform/events"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	roomCodeAlphabet   = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	roomCodeAttempts   = 12
	maxRoomNameLength  = 64
	maxDurationMinutes = 24 * 60
)

// errNoChange aborts a repository update without writing.
var errNoChange = errors.New("no change")

type RoomService struct {
	roomRepo    repository.RoomRepository
	gameService *GameService
	publisher   events.Publisher
	clock       clockwork.Clock
	newCode     func() string
}

func NewRoomService(roomRepo repository.RoomRepository, gameService *GameService, publisher events.Publisher, clock clockwork.Clock) *RoomService {
	return &RoomService{
		roomRepo:    roomRepo,
		gameService: gameService,
		publisher:   publisher,
		clock:       clock,
		newCode:     randomRoomCode,
	}
}

type CreateRoomRequest struct {
	Name      string             `json:"name"`
	IsPrivate bool               `json:"isPrivate"`
	Password  string             `json:"password,omitempty"`
	Settings  model.RoomSettings `json:"settings"`
}

type JoinRoomRequest struct {
	Password string `json:"password,omitempty"`
}

func randomRoomCode() string {
	b := make([]byte, model.RoomCodeLength)
	for i := range b {
		b[i] = roomCodeAlphabet[rand.IntN(len(roomCodeAlphabet))]
	}
	return string(b)
}

// normalizeSettings applies defaults and rejects malformed settings.
func normalizeSettings(in model.RoomSettings) (model.RoomSettings, error) {
	s := in
	if s.MaxPlayers == 0 {
		s.MaxPlayers = model.DefaultMaxPlayers
	}
	if s.MaxPlayers < model.MinPlayers || s.MaxPlayers > model.MaxPlayers {
		return s, common.Errorf("maxPlayers must be between %d and %d: %w", model.MinPlayers, model.MaxPlayers, common.ErrValidation)
	}
	if s.TaskCount < 1 {
		return s, common.Errorf("taskCount must be at least 1: %w", common.ErrValidation)
	}
	if s.DurationMinutes < 0 || s.DurationMinutes > maxDurationMinutes {
		return s, common.Errorf("durationMinutes must be between 0 and %d: %w", maxDurationMinutes, common.ErrValidation)
	}

	if s.Language == "" {
		s.Language = model.LanguageGo
	}
	lang, ok := model.ParseLanguage(string(s.Language))
	if !ok {
		return s, common.Errorf("unsupported language %q: %w", s.Language, common.ErrValidation)
	}
	s.Language = lang

	if s.Difficulty == "" {
		s.Difficulty = model.DifficultyEasy
	}
	diff, ok := model.ParseDifficulty(string(s.Difficulty))
	if !ok {
		return s, common.Errorf("unknown difficulty %q: %w", s.Difficulty, common.ErrValidation)
	}
	s.Difficulty = diff

	if len(s.TaskDifficulties) == 0 {
		s.TaskDifficulties = make([]model.Difficulty, s.TaskCount)
		for i := range s.TaskDifficulties {
			s.TaskDifficulties[i] = s.Difficulty
		}
	} else {
		if len(s.TaskDifficulties) != s.TaskCount {
			return s, common.Errorf("taskDifficulties has %d entries, taskCount is %d: %w", len(s.TaskDifficulties), s.TaskCount, common.ErrValidation)
		}
		out := make([]model.Difficulty, len(s.TaskDifficulties))
		for i, d := range s.TaskDifficulties {
			parsed, ok := model.ParseDifficulty(string(d))
			if !ok {
				return s, common.Errorf("taskDifficulties[%d]: unknown difficulty %q: %w", i, d, common.ErrValidation)
			}
			out[i] = parsed
		}
		s.TaskDifficulties = out
	}

	if s.TaskCount > model.MaxTaskCount {
		s.TaskCount = model.MaxTaskCount
		s.TaskDifficulties = s.TaskDifficulties[:model.MaxTaskCount]
	}
	return s, nil
}

func (s *RoomService) CreateRoom(ctx context.Context, caller model.Identity, req CreateRoomRequest) (*model.Room, error) {
	if caller.UserID == "" {
		return nil, common.ErrUnauthorized
	}
	settings, err := normalizeSettings(req.Settings)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(req.Name)
	if utf8.RuneCountInString(name) > maxRoomNameLength {
		return nil, common.Errorf("name longer than %d characters: %w", maxRoomNameLength, common.ErrValidation)
	}

	var secret string
	if req.IsPrivate {
		password := strings.TrimSpace(req.Password)
		if password == "" {
			return nil, common.Errorf("password is required for a private room: %w", common.ErrValidation)
		}
		secret, err = security.HashPassword(password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash room password: %w", err)
		}
	}

	now := s.clock.Now().UTC()
	for attempt := 0; attempt < roomCodeAttempts; attempt++ {
		room := &model.Room{
			Code:           s.newCode(),
			Name:           name,
			OwnerUserID:    caller.UserID,
			IsPrivate:      req.IsPrivate,
			PasswordSecret: secret,
			Settings:       settings,
			Members: map[string]model.RoomMember{
				caller.UserID: {UserID: caller.UserID, DisplayName: caller.DisplayName, JoinedAt: now},
			},
			Status:    model.RoomStatusWaiting,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if room.Name == "" {
			room.Name = "Room " + room.Code
		}

		err := s.roomRepo.Create(ctx, room)
		if errors.Is(err, common.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create room: %w", err)
		}

		log.Info().Str("room_code", room.Code).Str("owner", caller.UserID).Bool("private", room.IsPrivate).Msg("room created")
		s.publish(ctx, events.Event{Type: events.RoomCreated, RoomCode: room.Code, UserID: caller.UserID})
		return room.Redacted(caller.UserID), nil
	}
	return nil, common.Errorf("failed to generate a unique room code: %w", common.ErrConflict)
}

func (s *RoomService) GetRoom(ctx context.Context, code, viewerUserID string) (*model.Room, error) {
	room, err := s.roomRepo.Get(ctx, model.CanonicalRoomCode(code))
	if err != nil {
		return nil, err
	}
	return room.Redacted(viewerUserID), nil
}

// ListRooms returns joinable rooms without member details.
func (s *RoomService) ListRooms(ctx context.Context) ([]*model.Room, error) {
	rooms, err := s.roomRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms: %w", err)
	}
	out := make([]*model.Room, 0, len(rooms))
	for _, r := range rooms {
		if r.Status != model.RoomStatusWaiting {
			continue
		}
		out = append(out, r.Redacted(""))
	}
	return out, nil
}

func (s *RoomService) JoinRoom(ctx context.Context, code string, caller model.Identity, password string) (*model.Room, error) {
	if caller.UserID == "" {
		return nil, common.ErrUnauthorized
	}
	code = model.CanonicalRoomCode(code)

	var unchanged *model.Room
	room, err := s.roomRepo.Update(ctx, code, func(r *model.Room) error {
		if r.HasMember(caller.UserID) {
			unchanged = r.Clone()
			return errNoChange
		}
		if r.Status != model.RoomStatusWaiting {
			return common.Errorf("room %s is %s: %w", r.Code, r.Status, common.ErrInvalidState)
		}
		if r.IsPrivate && !security.CheckPasswordHash(strings.TrimSpace(password), r.PasswordSecret) {
			return common.Errorf("wrong room password: %w", common.ErrForbidden)
		}
		if len(r.Members) >= r.Settings.MaxPlayers {
			return common.Errorf("room %s has %d/%d players: %w", r.Code, len(r.Members), r.Settings.MaxPlayers, common.ErrFull)
		}
		now := s.clock.Now().UTC()
		if r.Members == nil {
			r.Members = map[string]model.RoomMember{}
		}
		r.Members[caller.UserID] = model.RoomMember{UserID: caller.UserID, DisplayName: caller.DisplayName, JoinedAt: now}
		r.UpdatedAt = now
		return nil
	})
	if errors.Is(err, errNoChange) {
		return unchanged.Redacted(caller.UserID), nil
	}
	if err != nil {
		return nil, err
	}

	log.Info().Str("room_code", code).Str("user_id", caller.UserID).Int("players", len(room.Members)).Msg("player joined room")
	s.publish(ctx, events.Event{Type: events.RoomJoined, RoomCode: code, UserID: caller.UserID})
	return room.Redacted(caller.UserID), nil
}

// LeaveRoom removes the caller. When the owner leaves a non-empty room the
// earliest-joined remaining member becomes owner. Empty rooms are kept.
func (s *RoomService) LeaveRoom(ctx context.Context, code, userID string) (*model.Room, error) {
	code = model.CanonicalRoomCode(code)

	var unchanged *model.Room
	var newOwner string
	room, err := s.roomRepo.Update(ctx, code, func(r *model.Room) error {
		if !r.HasMember(userID) {
			unchanged = r.Clone()
			return errNoChange
		}
		delete(r.Members, userID)
		newOwner = ""
		if r.OwnerUserID == userID && len(r.Members) > 0 {
			r.OwnerUserID = r.MembersInJoinOrder()[0].UserID
			newOwner = r.OwnerUserID
		}
		r.UpdatedAt = s.clock.Now().UTC()
		return nil
	})
	if errors.Is(err, errNoChange) {
		return unchanged.Redacted(userID), nil
	}
	if err != nil {
		return nil, err
	}

	ev := log.Info().Str("room_code", code).Str("user_id", userID).Int("players", len(room.Members))
	if newOwner != "" {
		ev = ev.Str("new_owner", newOwner)
	}
	ev.Msg("player left room")
	s.publish(ctx, events.Event{Type: events.RoomLeft, RoomCode: code, UserID: userID})
	return room.Redacted(userID), nil
}

func (s *RoomService) DeleteRoom(ctx context.Context, code, userID string) error {
	code = model.CanonicalRoomCode(code)
	room, err := s.roomRepo.Get(ctx, code)
	if err != nil {
		return err
	}
	if room.OwnerUserID != userID {
		return common.Errorf("only the owner can delete room %s: %w", code, common.ErrForbidden)
	}
	if err := s.roomRepo.Delete(ctx, code); err != nil {
		return err
	}
	if room.ActiveGameID != "" {
		if err := s.gameService.Delete(ctx, room.ActiveGameID); err != nil && !errors.Is(err, common.ErrNotFound) {
			log.Error().Err(err).Str("room_code", code).Str("game_id", room.ActiveGameID).Msg("failed to delete game of deleted room")
		}
	}
	log.Info().Str("room_code", code).Msg("room deleted")
	s.publish(ctx, events.Event{Type: events.RoomDeleted, RoomCode: code, UserID: userID, GameID: room.ActiveGameID})
	return nil
}

// startAttempts bounds how often StartRoom re-reads a room that changed
// between the snapshot and the RUNNING transition.
const startAttempts = 3

// StartRoom creates the game and moves the room to RUNNING. The game is
// written first from a room snapshot; the room transition is a single update
// guarded on that snapshot's version, so a room starts at most once and the
// game's players are exactly the members at the transition. A losing racer
// deletes its orphaned game.
func (s *RoomService) StartRoom(ctx context.Context, code, userID string) (*model.Game, error) {
	code = model.CanonicalRoomCode(code)
	var err error
	for attempt := 1; attempt <= startAttempts; attempt++ {
		var game *model.Game
		game, err = s.startOnce(ctx, code, userID)
		if err == nil {
			log.Info().Str("room_code", code).Str("game_id", game.ID).Int("problems", len(game.Problems)).
				Int("players", len(game.Players)).Msg("room started")
			s.publish(ctx, events.Event{Type: events.RoomStarted, RoomCode: code, GameID: game.ID, UserID: userID})
			game.MyUserID = userID
			return game, nil
		}
		if !errors.Is(err, common.ErrConflict) {
			return nil, err
		}
		log.Debug().Str("room_code", code).Int("attempt", attempt).Msg("room changed while starting, retrying")
	}
	return nil, err
}

func (s *RoomService) startOnce(ctx context.Context, code, userID string) (*model.Game, error) {
	room, err := s.roomRepo.Get(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := checkStartable(room, userID); err != nil {
		return nil, err
	}

	game, err := s.gameService.CreateFromRoom(ctx, room)
	if err != nil {
		return nil, err
	}

	_, err = s.roomRepo.Update(ctx, code, func(r *model.Room) error {
		if err := checkStartable(r, userID); err != nil {
			return err
		}
		if r.Version != room.Version {
			return common.Errorf("room %s changed while starting: %w", code, common.ErrConflict)
		}
		now := s.clock.Now().UTC()
		r.Status = model.RoomStatusRunning
		r.ActiveGameID = game.ID
		r.StartedAt = &now
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		if derr := s.gameService.Delete(ctx, game.ID); derr != nil {
			log.Error().Err(derr).Str("game_id", game.ID).Msg("failed to delete orphaned game")
		}
		return nil, err
	}
	return game, nil
}

func checkStartable(r *model.Room, userID string) error {
	if r.OwnerUserID != userID {
		return common.Errorf("only the owner can start room %s: %w", r.Code, common.ErrForbidden)
	}
	if r.Status != model.RoomStatusWaiting {
		return common.Errorf("room %s is %s: %w", r.Code, r.Status, common.ErrInvalidState)
	}
	if len(r.Members) < model.MinPlayers {
		return common.Errorf("room %s has no players: %w", r.Code, common.ErrInvalidState)
	}
	return nil
}

func (s *RoomService) publish(ctx context.Context, ev events.Event) {
	if s.publisher == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = s.clock.Now().UTC()
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		log.Warn().Err(err).Str("event", ev.Type).Msg("failed to publish event")
	}
}
