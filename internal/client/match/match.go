// Package match keeps a client's view of a running game in sync with the
// server and derives the scoreboard and clock from it.
package match

import (
	"context"
	"errors"
	"sync"
	"time"

	"codearena/internal/client/poll"
	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval          = 1500 * time.Millisecond
	DefaultFinishedRedirectDelay = 2 * time.Second
)

var (
	ErrStopped  = errors.New("match: reconciler stopped")
	ErrGameGone = errors.New("game no longer exists")
)

type GameAPI interface {
	GetGame(ctx context.Context, id string) (*model.Game, error)
	Submit(ctx context.Context, gameID, problemID, code string) (*model.Verdict, error)
}

type Config struct {
	GameID                string
	PollInterval          time.Duration
	FinishedRedirectDelay time.Duration
}

// View is a snapshot of the match. Game must be treated as read-only.
type View struct {
	Game       *model.Game
	Scoreboard []model.ScoreboardEntry
	Remaining  time.Duration
	Unlimited  bool
	Finished   bool
	Winner     string
	Submitting bool
	Err        error
}

// LastSubmit returns the latest verdict recorded for the viewer on a problem.
func (v View) LastSubmit(problemID string) (model.LastSubmit, bool) {
	if v.Game == nil {
		return model.LastSubmit{}, false
	}
	ls, ok := v.Game.Progress[v.Game.MyUserID].LastSubmit[problemID]
	return ls, ok
}

// Solved reports whether the viewer has solved the problem, per the server.
func (v View) Solved(problemID string) bool {
	if v.Game == nil {
		return false
	}
	return v.Game.Progress[v.Game.MyUserID].Solved[problemID]
}

type Reconciler struct {
	api     GameAPI
	clock   clockwork.Clock
	cfg     Config
	tracker poll.Tracker

	inbox   chan func(ctx context.Context)
	done    chan struct{}
	leave   chan struct{}
	changed chan struct{}

	mu   sync.RWMutex
	snap View

	// Owned by the Run goroutine.
	game          *model.Game
	finished      bool
	gone          bool
	submitting    int
	lastErr       error
	redirectTimer clockwork.Timer
	left          bool
}

func NewReconciler(api GameAPI, clock clockwork.Clock, cfg Config) *Reconciler {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.FinishedRedirectDelay <= 0 {
		cfg.FinishedRedirectDelay = DefaultFinishedRedirectDelay
	}
	return &Reconciler{
		api:     api,
		clock:   clock,
		cfg:     cfg,
		inbox:   make(chan func(ctx context.Context), 16),
		done:    make(chan struct{}),
		leave:   make(chan struct{}),
		changed: make(chan struct{}, 1),
	}
}

// Leave is closed when the view should return to the room browser.
func (r *Reconciler) Leave() <-chan struct{} { return r.leave }

// Changes is signalled (coalesced) whenever the snapshot changes.
func (r *Reconciler) Changes() <-chan struct{} { return r.changed }

// View returns the latest snapshot with the clock evaluated now.
func (r *Reconciler) View() View {
	r.mu.RLock()
	v := r.snap
	r.mu.RUnlock()
	if v.Game != nil {
		remaining, limited := v.Game.Remaining(r.clock.Now())
		v.Remaining, v.Unlimited = remaining, !limited
		if v.Finished {
			v.Remaining = 0
		}
	}
	return v
}

// Run polls the game until ctx is cancelled or the view is left.
func (r *Reconciler) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	ticker := r.clock.NewTicker(r.cfg.PollInterval)
	defer func() {
		ticker.Stop()
		poll.StopTimer(r.redirectTimer)
		cancel()
		close(r.done)
	}()

	r.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			if !r.gone {
				r.poll(ctx)
			}
		case fn := <-r.inbox:
			fn(ctx)
			r.publish()
		case <-poll.TimerChan(r.redirectTimer):
			r.redirectTimer = nil
			r.left = true
			close(r.leave)
			return nil
		}
	}
}

func (r *Reconciler) post(fn func(ctx context.Context)) bool {
	select {
	case r.inbox <- fn:
		return true
	case <-r.done:
		return false
	}
}

func (r *Reconciler) poll(ctx context.Context) {
	seq := r.tracker.Next()
	go func() {
		game, err := r.api.GetGame(ctx, r.cfg.GameID)
		r.post(func(context.Context) { r.applyPoll(seq, game, err) })
	}()
}

func (r *Reconciler) applyPoll(seq uint64, game *model.Game, err error) {
	if !r.tracker.Accept(seq) {
		log.Debug().Str("game_id", r.cfg.GameID).Uint64("seq", seq).Msg("discarding stale game poll")
		return
	}
	if r.gone {
		return
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			r.gone = true
			r.lastErr = ErrGameGone
			r.scheduleRedirect()
			log.Info().Str("game_id", r.cfg.GameID).Msg("game vanished, leaving match")
			return
		}
		log.Warn().Err(err).Str("game_id", r.cfg.GameID).Msg("game poll failed")
		return
	}

	if r.game != nil && game.Version == r.game.Version && game.Status == r.game.Status {
		return
	}
	r.game = game
	if game.Status == model.GameStatusFinished && !r.finished {
		r.finished = true
		r.scheduleRedirect()
		log.Info().Str("game_id", game.ID).Str("winner", game.WinnerUserID).Msg("game finished")
	}
}

func (r *Reconciler) scheduleRedirect() {
	if r.redirectTimer != nil || r.left {
		return
	}
	r.redirectTimer = r.clock.NewTimer(r.cfg.FinishedRedirectDelay)
}

// Submit sends code to the judge and re-polls the game so the verdict's
// effect shows up from the server's state. Solved flags are never set
// locally. The verdict or error is returned as is and never retried.
func (r *Reconciler) Submit(ctx context.Context, problemID, code string) (*model.Verdict, error) {
	var reject error
	started := make(chan struct{})
	if !r.post(func(context.Context) {
		defer close(started)
		switch {
		case r.finished || r.gone:
			reject = common.Errorf("game %s is over: %w", r.cfg.GameID, common.ErrInvalidState)
		case r.game != nil && !r.game.HasProblem(problemID):
			reject = common.Errorf("problem %q is not part of this game: %w", problemID, common.ErrValidation)
		default:
			r.submitting++
		}
	}) {
		return nil, ErrStopped
	}
	select {
	case <-started:
	case <-r.done:
		return nil, ErrStopped
	}
	if reject != nil {
		return nil, reject
	}

	verdict, err := r.api.Submit(ctx, r.cfg.GameID, problemID, code)
	r.post(func(ctx context.Context) {
		r.submitting--
		r.lastErr = err
		if err != nil {
			log.Warn().Err(err).Str("game_id", r.cfg.GameID).Str("problem_id", problemID).Msg("submission failed")
		}
		r.poll(ctx)
	})
	return verdict, err
}

func (r *Reconciler) publish() {
	v := View{
		Game:       r.game,
		Finished:   r.finished,
		Submitting: r.submitting > 0,
		Err:        r.lastErr,
	}
	if r.game != nil {
		v.Scoreboard = r.game.Scoreboard()
		v.Winner = r.game.WinnerUserID
	}
	r.mu.Lock()
	r.snap = v
	r.mu.Unlock()
	select {
	case r.changed <- struct{}{}:
	default:
	}
}
