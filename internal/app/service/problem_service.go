package service

import (
	"context"
	"fmt"

	"codearena/internal/common"
	"codearena/internal/domain/model"
	"codearena/internal/domain/repository"

	"github.com/rs/zerolog/log"
)

type ProblemService struct {
	problemRepo repository.ProblemRepository
}

func NewProblemService(problemRepo repository.ProblemRepository) *ProblemService {
	return &ProblemService{problemRepo: problemRepo}
}

// ListProblems returns published problems, optionally filtered by difficulty.
func (s *ProblemService) ListProblems(ctx context.Context, difficulty string) ([]model.Problem, error) {
	var d model.Difficulty
	if difficulty != "" {
		parsed, ok := model.ParseDifficulty(difficulty)
		if !ok {
			return nil, common.Errorf("unknown difficulty %q: %w", difficulty, common.ErrValidation)
		}
		d = parsed
	}
	problems, err := s.problemRepo.ListProblems(ctx, d, model.StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to list problems: %w", err)
	}
	return problems, nil
}

func (s *ProblemService) GetProblemDetails(ctx context.Context, problemSlug string) (*model.Problem, error) {
	problem, err := s.problemRepo.FindProblemBySlug(ctx, problemSlug)
	if err != nil {
		return nil, err
	}
	if problem.Status != model.StatusPublished {
		return nil, common.ErrNotFound
	}
	return problem, nil
}

// PickForGame freezes the problem list for a new game. One published problem
// is chosen per requested difficulty without repeats, then any unused
// published problem, then generated warm-ups so the result always has
// exactly count entries.
func (s *ProblemService) PickForGame(ctx context.Context, settings model.RoomSettings) ([]model.GameProblem, error) {
	count := settings.TaskCount
	if count < 1 {
		count = 1
	}
	if count > model.MaxTaskCount {
		count = model.MaxTaskCount
	}
	wanted := settings.TaskDifficulties
	if len(wanted) == 0 {
		wanted = []model.Difficulty{settings.Difficulty}
	}

	catalog, err := s.problemRepo.ListProblems(ctx, "", model.StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("failed to load problem catalog: %w", err)
	}

	picked := make([]model.GameProblem, 0, count)
	used := make(map[string]bool, count)
	pick := func(d model.Difficulty) bool {
		for i := range catalog {
			p := &catalog[i]
			if used[p.ID] || (d != "" && p.Difficulty != d) {
				continue
			}
			used[p.ID] = true
			picked = append(picked, p.Snapshot())
			return true
		}
		return false
	}

	for i := 0; i < count; i++ {
		pick(wanted[i%len(wanted)])
	}
	for len(picked) < count {
		if !pick("") {
			break
		}
	}
	for n := 1; len(picked) < count; n++ {
		d := wanted[len(picked)%len(wanted)]
		picked = append(picked, warmupProblem(n, d))
	}

	if warmups := count - len(used); warmups > 0 {
		log.Warn().Int("requested", count).Int("warmups", warmups).Msg("catalog too small, padded game with warm-up problems")
	}
	return picked, nil
}

func warmupProblem(n int, d model.Difficulty) model.GameProblem {
	return model.GameProblem{
		ID:         fmt.Sprintf("warmup-%d", n),
		Title:      fmt.Sprintf("Warm-up %d", n),
		Difficulty: d,
		Statement:  "Warm-up task. Submit any solution the judge accepts.",
	}
}
