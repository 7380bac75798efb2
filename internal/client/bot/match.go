package bot

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"codearena/internal/app/service"
	"codearena/internal/client/poll"
	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("bot: match stopped")

type MatchConfig struct {
	Difficulty  model.Difficulty
	Language    model.Language
	ProblemID   string
	Duration    time.Duration // 0 = difficulty default
	Tick        time.Duration
	RevealDelay time.Duration
	Seed        uint64
}

type MatchView struct {
	Progress    float64
	Transcript  []string
	Lines       int
	Outcome     Outcome
	Reason      Reason
	Revealed    bool
	Remaining   time.Duration
	LowTime     bool
	Attempts    int
	LastVerdict *model.Verdict
	Err         error
}

// Match drives a Race against a wall clock. The player's code is verified by
// the judge; the bot keeps running while a verification is in flight.
type Match struct {
	judge service.Judge
	clock clockwork.Clock
	cfg   MatchConfig

	inbox   chan func()
	done    chan struct{}
	ended   chan struct{}
	changed chan struct{}

	mu   sync.RWMutex
	view MatchView

	// Owned by the Run goroutine.
	race        *Race
	rng         *rand.Rand
	deadline    time.Time
	revealTimer clockwork.Timer
	revealed    bool
	lowTime     bool
	attempts    int
	lastVerdict *model.Verdict
	lastErr     error
}

func NewMatch(judge service.Judge, clock clockwork.Clock, cfg MatchConfig) *Match {
	if cfg.Tick <= 0 {
		cfg.Tick = TickInterval
	}
	if cfg.RevealDelay <= 0 {
		cfg.RevealDelay = RevealDelay
	}
	if cfg.Seed == 0 {
		cfg.Seed = uint64(clock.Now().UnixNano())
	}
	cfg.Duration = MatchDuration(cfg.Difficulty, cfg.Duration)
	return &Match{
		judge:   judge,
		clock:   clock,
		cfg:     cfg,
		inbox:   make(chan func(), 16),
		done:    make(chan struct{}),
		ended:   make(chan struct{}),
		changed: make(chan struct{}, 1),
		race:    NewRace(cfg.Difficulty, cfg.Duration, cfg.Tick),
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed>>1|1)),
	}
}

func (m *Match) Duration() time.Duration { return m.cfg.Duration }

// Ended is closed when the outcome has been decided and, for a win, revealed.
func (m *Match) Ended() <-chan struct{} { return m.ended }

func (m *Match) Changes() <-chan struct{} { return m.changed }

// View returns the latest snapshot with the clock evaluated now.
func (m *Match) View() MatchView {
	m.mu.RLock()
	v := m.view
	deadline := m.deadline
	m.mu.RUnlock()
	if v.Outcome == Undecided && !deadline.IsZero() {
		v.Remaining = max(0, deadline.Sub(m.clock.Now()))
		v.LowTime = v.Remaining > 0 && v.Remaining <= LowTimeThreshold
	}
	return v
}

// Run ticks the bot until the race is decided (and a win revealed) or ctx is
// cancelled.
func (m *Match) Run(ctx context.Context) error {
	ticker := m.clock.NewTicker(m.cfg.Tick)
	m.mu.Lock()
	m.deadline = m.clock.Now().Add(m.cfg.Duration)
	m.mu.Unlock()
	// The clock runs out independently of the tick period.
	deadlineTimer := m.clock.NewTimer(m.cfg.Duration)
	defer func() {
		ticker.Stop()
		poll.StopTimer(deadlineTimer)
		poll.StopTimer(m.revealTimer)
		close(m.done)
	}()
	log.Info().Str("difficulty", string(m.cfg.Difficulty)).Dur("duration", m.cfg.Duration).
		Float64("increment", m.race.Increment()).Msg("bot match started")
	m.publish()

	tickC := ticker.Chan()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tickC:
			m.tick()
		case <-poll.TimerChan(deadlineTimer):
			deadlineTimer = nil
			m.expire()
		case fn := <-m.inbox:
			fn()
		case <-poll.TimerChan(m.revealTimer):
			m.revealTimer = nil
			m.revealed = true
		}

		if m.race.Decided() && tickC != nil {
			// No more progress once the outcome is fixed.
			tickC = nil
			ticker.Stop()
			poll.StopTimer(deadlineTimer)
			deadlineTimer = nil
			if m.race.Outcome() == Win {
				m.revealTimer = m.clock.NewTimer(m.cfg.RevealDelay)
			} else {
				m.revealed = true
			}
		}
		m.publish()
		if m.revealed {
			close(m.ended)
			return nil
		}
	}
}

// expire decides the race as lost once the clock has run out. It reports
// whether the race is decided.
func (m *Match) expire() bool {
	if m.race.Decided() {
		return true
	}
	if m.clock.Now().Before(m.deadline) {
		return false
	}
	m.race.TimeUp()
	log.Info().Msg("bot match over: time up")
	return true
}

func (m *Match) tick() {
	if m.expire() {
		return
	}
	if m.race.Tick(m.rng) {
		log.Info().Int("ticks", m.race.Ticks()).Msg("bot match over: bot finished first")
		return
	}
	remaining := m.deadline.Sub(m.clock.Now())
	if remaining <= LowTimeThreshold && !m.lowTime {
		m.lowTime = true
		log.Info().Dur("remaining", remaining).Msg("bot match: low time")
	}
}

// Submit verifies code with the judge. A passing verdict wins the match if
// the race is still open when the verdict is applied; a verdict that lands
// after the bot finished or the clock ran out is dropped and reported as
// common.ErrInvalidState. Judge failures are returned and do not stop the bot.
func (m *Match) Submit(ctx context.Context, code string) (*model.Verdict, error) {
	var reject error
	ran := make(chan struct{})
	select {
	case m.inbox <- func() {
		defer close(ran)
		if m.expire() {
			reject = common.Errorf("match is over (%s): %w", m.race.Outcome(), common.ErrInvalidState)
			return
		}
		m.attempts++
	}:
	case <-m.done:
		return nil, ErrStopped
	}
	select {
	case <-ran:
	case <-m.done:
		return nil, ErrStopped
	}
	if reject != nil {
		return nil, reject
	}

	verdict, err := m.judge.Judge(ctx, service.JudgeRequest{ProblemID: m.cfg.ProblemID, Language: m.cfg.Language, Code: code})
	var over Outcome
	applied := make(chan bool, 1)
	select {
	case m.inbox <- func() {
		if m.expire() {
			over = m.race.Outcome()
			applied <- false
			return
		}
		applied <- true
		m.lastErr = err
		if err != nil {
			log.Warn().Err(err).Msg("bot match: verification failed")
			return
		}
		m.lastVerdict = verdict
		if verdict.Passed && m.race.PlayerPassed() {
			log.Info().Float64("bot_progress", m.race.Progress()).Msg("bot match over: player solved first")
		}
	}:
	case <-m.done:
		return nil, ErrStopped
	}
	select {
	case ok := <-applied:
		if !ok {
			return nil, common.Errorf("verdict arrived after the match ended (%s): %w", over, common.ErrInvalidState)
		}
	case <-m.done:
		return nil, ErrStopped
	}
	return verdict, err
}

func (m *Match) publish() {
	v := MatchView{
		Progress:    m.race.Progress(),
		Transcript:  m.race.Transcript(),
		Lines:       m.race.LinesWritten(),
		Outcome:     m.race.Outcome(),
		Reason:      m.race.Reason(),
		Revealed:    m.revealed,
		Attempts:    m.attempts,
		LastVerdict: m.lastVerdict,
		Err:         m.lastErr,
	}
	m.mu.Lock()
	m.view = v
	m.mu.Unlock()
	select {
	case m.changed <- struct{}{}:
	default:
	}
}
