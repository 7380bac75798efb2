package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"codearena/internal/common"
	"codearena/internal/domain/model"
	"codearena/internal/domain/repository"
	"codearena/internal/platform/events"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type GameService struct {
	gameRepo       repository.GameRepository
	roomRepo       repository.RoomRepository
	problemService *ProblemService
	judge          Judge
	publisher      events.Publisher
	clock          clockwork.Clock
}

func NewGameService(
	gameRepo repository.GameRepository,
	roomRepo repository.RoomRepository,
	problemService *ProblemService,
	judge Judge,
	publisher events.Publisher,
	clock clockwork.Clock,
) *GameService {
	return &GameService{
		gameRepo:       gameRepo,
		roomRepo:       roomRepo,
		problemService: problemService,
		judge:          judge,
		publisher:      publisher,
		clock:          clock,
	}
}

type SubmitRequest struct {
	ProblemID string `json:"problemId"`
	Code      string `json:"code"`
}

type SubmitResponse struct {
	Game    *model.Game    `json:"game"`
	Verdict *model.Verdict `json:"verdict"`
}

// CreateFromRoom stores a new running game built from the room's settings
// and current members. It does not touch the room.
func (s *GameService) CreateFromRoom(ctx context.Context, room *model.Room) (*model.Game, error) {
	problems, err := s.problemService.PickForGame(ctx, room.Settings)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	members := room.MembersInJoinOrder()
	game := &model.Game{
		ID:              uuid.NewString(),
		RoomCode:        room.Code,
		Language:        room.Settings.Language,
		DurationMinutes: room.Settings.DurationMinutes,
		Problems:        problems,
		Players:         make([]model.Player, 0, len(members)),
		StartedAt:       now,
		Status:          model.GameStatusRunning,
		Progress:        make(map[string]model.Progress, len(members)),
		Version:         1,
	}
	if room.Settings.DurationMinutes > 0 {
		endsAt := now.Add(time.Duration(room.Settings.DurationMinutes) * time.Minute)
		game.EndsAt = &endsAt
	}
	for _, m := range members {
		game.Players = append(game.Players, model.Player{UserID: m.UserID, DisplayName: m.DisplayName})
		game.Progress[m.UserID] = model.Progress{UserID: m.UserID, DisplayName: m.DisplayName}
	}

	if err := s.gameRepo.Create(ctx, game); err != nil {
		return nil, fmt.Errorf("failed to create game: %w", err)
	}
	return game, nil
}

// GetGame returns the game as seen by viewerUserID, finishing it first if
// its deadline has passed.
func (s *GameService) GetGame(ctx context.Context, id, viewerUserID string) (*model.Game, error) {
	game, err := s.gameRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if game.Expired(s.clock.Now()) {
		if expired, err := s.expire(ctx, id); err != nil {
			log.Warn().Err(err).Str("game_id", id).Msg("lazy expiry failed")
		} else if expired != nil {
			game = expired
		}
	}
	game.MyUserID = viewerUserID
	return game, nil
}

// ExpireGame finishes the game without a winner when its deadline has
// passed. It reports whether this call finished it.
func (s *GameService) ExpireGame(ctx context.Context, id string) (bool, error) {
	game, err := s.expire(ctx, id)
	if err != nil {
		return false, err
	}
	return game != nil, nil
}

func (s *GameService) expire(ctx context.Context, id string) (*model.Game, error) {
	game, err := s.gameRepo.Update(ctx, id, func(g *model.Game) error {
		now := s.clock.Now().UTC()
		if !g.Expired(now) {
			return errNoChange
		}
		g.Finish(now, "")
		return nil
	})
	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("game_id", id).Str("room_code", game.RoomCode).Msg("game finished: time expired")
	s.afterFinish(ctx, game)
	return game, nil
}

func (s *GameService) Submit(ctx context.Context, id string, caller model.Identity, req SubmitRequest) (*SubmitResponse, error) {
	problemID := strings.TrimSpace(req.ProblemID)
	if problemID == "" {
		return nil, common.Errorf("problemId is required: %w", common.ErrValidation)
	}
	if strings.TrimSpace(req.Code) == "" {
		return nil, common.Errorf("code is required: %w", common.ErrValidation)
	}

	game, err := s.GetGame(ctx, id, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !game.IsPlayer(caller.UserID) {
		return nil, common.Errorf("user is not a player of game %s: %w", id, common.ErrForbidden)
	}
	if !game.HasProblem(problemID) {
		return nil, common.Errorf("problem %s is not part of game %s: %w", problemID, id, common.ErrValidation)
	}
	if game.Status != model.GameStatusRunning {
		return nil, common.Errorf("game %s has finished: %w", id, common.ErrInvalidState)
	}

	verdict, err := s.judge.Judge(ctx, JudgeRequest{ProblemID: problemID, Language: game.Language, Code: req.Code})
	if err != nil {
		log.Error().Err(err).Str("game_id", id).Str("problem_id", problemID).Msg("judge failed")
		return nil, err
	}

	var newlySolved, expiredMeanwhile bool
	updated, err := s.gameRepo.Update(ctx, id, func(g *model.Game) error {
		newlySolved, expiredMeanwhile = false, false
		now := s.clock.Now().UTC()
		if g.Status != model.GameStatusRunning {
			return common.Errorf("game %s has finished: %w", id, common.ErrInvalidState)
		}
		if g.Expired(now) {
			g.Finish(now, "")
			expiredMeanwhile = true
			return nil
		}

		if g.Progress == nil {
			g.Progress = map[string]model.Progress{}
		}
		pr := g.Progress[caller.UserID]
		pr.UserID = caller.UserID
		if pr.DisplayName == "" {
			pr.DisplayName = caller.DisplayName
		}
		if pr.Solved == nil {
			pr.Solved = map[string]bool{}
		}
		if pr.LastSubmit == nil {
			pr.LastSubmit = map[string]model.LastSubmit{}
		}
		pr.LastSubmit[problemID] = model.LastSubmit{Correct: verdict.Passed, ErrorMessage: verdict.ErrorMessage, At: now}
		if verdict.Passed && !pr.Solved[problemID] {
			pr.Solved[problemID] = true
			newlySolved = true
		}
		g.Progress[caller.UserID] = pr

		if g.SolvedAll(caller.UserID) {
			g.Finish(now, caller.UserID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if expiredMeanwhile {
		log.Info().Str("game_id", id).Msg("game finished: time expired during judging")
		s.afterFinish(ctx, updated)
		return nil, common.Errorf("game %s has finished: %w", id, common.ErrInvalidState)
	}

	log.Info().Str("game_id", id).Str("user_id", caller.UserID).Str("problem_id", problemID).
		Bool("passed", verdict.Passed).Int("solved", updated.SolvedCount(caller.UserID)).Msg("submission judged")
	if newlySolved {
		s.publish(ctx, events.Event{Type: events.GameSolved, GameID: id, RoomCode: updated.RoomCode, UserID: caller.UserID,
			Payload: map[string]any{"problemId": problemID, "solved": updated.SolvedCount(caller.UserID)}})
	}
	if updated.Status == model.GameStatusFinished {
		log.Info().Str("game_id", id).Str("winner", updated.WinnerUserID).Msg("game finished: all problems solved")
		s.afterFinish(ctx, updated)
	}

	updated.MyUserID = caller.UserID
	return &SubmitResponse{Game: updated, Verdict: verdict}, nil
}

func (s *GameService) Delete(ctx context.Context, id string) error {
	return s.gameRepo.Delete(ctx, id)
}

// afterFinish moves the owning room to FINISHED and announces the result.
func (s *GameService) afterFinish(ctx context.Context, game *model.Game) {
	_, err := s.roomRepo.Update(ctx, game.RoomCode, func(r *model.Room) error {
		if r.ActiveGameID != game.ID || r.Status != model.RoomStatusRunning {
			return errNoChange
		}
		r.Status = model.RoomStatusFinished
		r.UpdatedAt = s.clock.Now().UTC()
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) && !errors.Is(err, common.ErrNotFound) {
		log.Error().Err(err).Str("room_code", game.RoomCode).Str("game_id", game.ID).Msg("failed to finish room")
	}
	s.publish(ctx, events.Event{Type: events.GameFinished, GameID: game.ID, RoomCode: game.RoomCode, UserID: game.WinnerUserID,
		Payload: game.Scoreboard()})
}

func (s *GameService) publish(ctx context.Context, ev events.Event) {
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
