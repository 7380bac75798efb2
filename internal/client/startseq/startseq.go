// Package startseq runs the owner's local pre-start countdown and commits it
// to the server exactly once.
package startseq

import (
	"context"
	"errors"
	"sync"
	"time"

	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	DefaultCountdown = 5 * time.Second
	DefaultStep      = 100 * time.Millisecond
)

var ErrCommitted = errors.New("startseq: countdown already committed")

type State int

const (
	Idle State = iota
	Countdown
	Committed
)

func (s State) String() string {
	switch s {
	case Countdown:
		return "COUNTDOWN"
	case Committed:
		return "COMMITTED"
	default:
		return "IDLE"
	}
}

type Starter interface {
	StartRoom(ctx context.Context, code string) (*model.Game, error)
}

type Config struct {
	Countdown time.Duration
	Step      time.Duration
}

type Sequencer struct {
	starter Starter
	clock   clockwork.Clock
	code    string
	cfg     Config

	mu       sync.Mutex
	state    State
	deadline time.Time
	stop     chan struct{}
	done     chan struct{}
	game     *model.Game
	err      error
}

func New(starter Starter, clock clockwork.Clock, code string, cfg Config) *Sequencer {
	if cfg.Countdown <= 0 {
		cfg.Countdown = DefaultCountdown
	}
	if cfg.Step <= 0 {
		cfg.Step = DefaultStep
	}
	return &Sequencer{
		starter: starter,
		clock:   clock,
		code:    model.CanonicalRoomCode(code),
		cfg:     cfg,
		done:    make(chan struct{}),
	}
}

// Trigger opens the countdown. Only the owner of a WAITING room may do so.
// Triggering again while the countdown runs is a no-op.
func (s *Sequencer) Trigger(ctx context.Context, isOwner bool, status model.RoomStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.state == Committed:
		return ErrCommitted
	case s.state == Countdown:
		return nil
	case !isOwner:
		return common.Errorf("only the room owner can start the game: %w", common.ErrForbidden)
	case status != model.RoomStatusWaiting:
		return common.Errorf("room is %s, not %s: %w", status, model.RoomStatusWaiting, common.ErrInvalidState)
	}

	s.state = Countdown
	s.deadline = s.clock.Now().Add(s.cfg.Countdown)
	s.stop = make(chan struct{})
	log.Info().Str("room_code", s.code).Dur("countdown", s.cfg.Countdown).Msg("start countdown opened")
	go s.run(ctx, s.stop)
	return nil
}

func (s *Sequencer) run(ctx context.Context, stop chan struct{}) {
	ticker := s.clock.NewTicker(s.cfg.Step)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			s.abort(stop)
			return
		case <-ticker.Chan():
			if s.Remaining() > 0 {
				continue
			}
			s.commit(ctx, stop)
			return
		}
	}
}

func (s *Sequencer) commit(ctx context.Context, stop chan struct{}) {
	s.mu.Lock()
	if s.state != Countdown || s.stop != stop {
		s.mu.Unlock()
		return
	}
	s.state = Committed
	s.mu.Unlock()

	game, err := s.starter.StartRoom(ctx, s.code)
	if err != nil {
		log.Warn().Err(err).Str("room_code", s.code).Msg("start failed after countdown")
	} else {
		log.Info().Str("room_code", s.code).Str("game_id", game.ID).Msg("game started")
	}

	s.mu.Lock()
	s.game, s.err = game, err
	s.mu.Unlock()
	close(s.done)
}

func (s *Sequencer) abort(stop chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Countdown && s.stop == stop {
		s.state = Idle
		s.stop = nil
	}
}

// Stop cancels a running countdown. A committed sequencer is unaffected.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Countdown {
		return
	}
	close(s.stop)
	s.stop = nil
	s.state = Idle
}

func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Remaining is the time left on the countdown, zero outside of it.
func (s *Sequencer) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Countdown {
		return 0
	}
	d := s.deadline.Sub(s.clock.Now())
	if d < 0 {
		return 0
	}
	return d
}

// Label is the countdown as shown to players: "3", "2", "1" or "GO". It is
// empty while idle.
func (s *Sequencer) Label() string {
	switch s.State() {
	case Idle:
		return ""
	case Committed:
		return "GO"
	}
	return LabelFor(s.Remaining())
}

func LabelFor(remaining time.Duration) string {
	switch {
	case remaining > 3500*time.Millisecond:
		return "3"
	case remaining > 2000*time.Millisecond:
		return "2"
	case remaining > 500*time.Millisecond:
		return "1"
	default:
		return "GO"
	}
}

// Done is closed once the start call made on commit has returned.
func (s *Sequencer) Done() <-chan struct{} { return s.done }

// Result is the outcome of the start call. Valid after Done is closed.
func (s *Sequencer) Result() (*model.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game, s.err
}
