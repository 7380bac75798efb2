package model

import "time"

type GameStatus string

const (
	GameStatusRunning  GameStatus = "RUNNING"
	GameStatusFinished GameStatus = "FINISHED"
)

// GameProblem is the frozen copy of a catalog problem taken when the game starts.
type GameProblem struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Difficulty   Difficulty `json:"difficulty"`
	Statement    string     `json:"statement"`
	InputFormat  string     `json:"inputFormat,omitempty"`
	OutputFormat string     `json:"outputFormat,omitempty"`
	Samples      []Sample   `json:"samples,omitempty"`
}

type Player struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type Progress struct {
	UserID      string                `json:"userId"`
	DisplayName string                `json:"displayName"`
	Solved      map[string]bool       `json:"solved,omitempty"`
	LastSubmit  map[string]LastSubmit `json:"lastSubmit,omitempty"`
}

type Game struct {
	ID              string              `json:"id"`
	RoomCode        string              `json:"roomCode"`
	Language        Language            `json:"language"`
	DurationMinutes int                 `json:"durationMinutes"`
	Problems        []GameProblem       `json:"problems"`
	Players         []Player            `json:"players"` // Room members at start, join order
	StartedAt       time.Time           `json:"startedAt"`
	EndsAt          *time.Time          `json:"endsAt,omitempty"` // nil = unlimited
	FinishedAt      *time.Time          `json:"finishedAt,omitempty"`
	Status          GameStatus          `json:"status"`
	Progress        map[string]Progress `json:"progress,omitempty"`
	WinnerUserID    string              `json:"winnerUserId,omitempty"`
	MyUserID        string              `json:"myUserId,omitempty"`
	Version         int64               `json:"version"`
}

func (g *Game) HasProblem(problemID string) bool {
	for _, p := range g.Problems {
		if p.ID == problemID {
			return true
		}
	}
	return false
}

func (g *Game) IsPlayer(userID string) bool {
	for _, p := range g.Players {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// SolvedCount counts the game's problems the user has solved. Progress
// entries for problems outside the game are ignored.
func (g *Game) SolvedCount(userID string) int {
	pr, ok := g.Progress[userID]
	if !ok {
		return 0
	}
	n := 0
	for _, p := range g.Problems {
		if pr.Solved[p.ID] {
			n++
		}
	}
	return n
}

func (g *Game) SolvedAll(userID string) bool {
	return len(g.Problems) > 0 && g.SolvedCount(userID) == len(g.Problems)
}

// Expired reports whether a running game has reached its deadline.
func (g *Game) Expired(now time.Time) bool {
	return g.Status == GameStatusRunning && g.EndsAt != nil && !now.Before(*g.EndsAt)
}

// Remaining returns max(0, endsAt-now); limited is false for unlimited games.
func (g *Game) Remaining(now time.Time) (remaining time.Duration, limited bool) {
	if g.EndsAt == nil {
		return 0, false
	}
	d := g.EndsAt.Sub(now)
	if d < 0 {
		d = 0
	}
	return d, true
}

// Finish moves the game to FINISHED. It reports false when the game was already finished.
func (g *Game) Finish(now time.Time, winnerUserID string) bool {
	if g.Status == GameStatusFinished {
		return false
	}
	g.Status = GameStatusFinished
	g.FinishedAt = &now
	g.WinnerUserID = winnerUserID
	return true
}

func (g *Game) Clone() *Game {
	if g == nil {
		return nil
	}
	cp := *g
	cp.Problems = append([]GameProblem(nil), g.Problems...)
	cp.Players = append([]Player(nil), g.Players...)
	if g.EndsAt != nil {
		t := *g.EndsAt
		cp.EndsAt = &t
	}
	if g.FinishedAt != nil {
		t := *g.FinishedAt
		cp.FinishedAt = &t
	}
	if g.Progress != nil {
		cp.Progress = make(map[string]Progress, len(g.Progress))
		for uid, pr := range g.Progress {
			np := Progress{UserID: pr.UserID, DisplayName: pr.DisplayName}
			if pr.Solved != nil {
				np.Solved = make(map[string]bool, len(pr.Solved))
				for k, v := range pr.Solved {
					np.Solved[k] = v
				}
			}
			if pr.LastSubmit != nil {
				np.LastSubmit = make(map[string]LastSubmit, len(pr.LastSubmit))
				for k, v := range pr.LastSubmit {
					np.LastSubmit[k] = v
				}
			}
			cp.Progress[uid] = np
		}
	}
	return &cp
}
