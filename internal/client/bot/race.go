// Package bot simulates a local opponent for solo practice. The opponent has
// no server-side presence: its progress is a timer-driven counter and its
// transcript is masked filler.
package bot

import (
	"math/rand/v2"
	"strings"
	"time"

	"codearena/internal/domain/model"
)

const (
	TickInterval       = 600 * time.Millisecond
	RevealDelay        = 5 * time.Second
	LowTimeThreshold   = 10 * time.Second
	MinMatchDuration   = time.Minute
	MaxTranscriptLines = 22
	LineProbability    = 0.7

	minLineLen = 6
	maxLineLen = 160
	maskGlyph  = "█"
)

type Outcome int

const (
	Undecided Outcome = iota
	Win
	Lose
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "WIN"
	case Lose:
		return "LOSE"
	default:
		return "UNDECIDED"
	}
}

type Reason int

const (
	ReasonNone Reason = iota
	ReasonPlayerSolved
	ReasonBotFinished
	ReasonTimeUp
)

func (r Reason) String() string {
	switch r {
	case ReasonPlayerSolved:
		return "player solved"
	case ReasonBotFinished:
		return "bot finished"
	case ReasonTimeUp:
		return "time up"
	default:
		return ""
	}
}

// SpeedFactor scales how fast the bot advances; harder bots are faster.
func SpeedFactor(d model.Difficulty) float64 {
	switch d {
	case model.DifficultyHard:
		return 0.95
	case model.DifficultyMedium:
		return 0.85
	default:
		return 0.75
	}
}

// MatchDuration returns override when set, else the difficulty's default,
// never less than a minute.
func MatchDuration(d model.Difficulty, override time.Duration) time.Duration {
	dur := override
	if dur <= 0 {
		switch d {
		case model.DifficultyHard:
			dur = 45 * time.Minute
		case model.DifficultyMedium:
			dur = 25 * time.Minute
		default:
			dur = 12 * time.Minute
		}
	}
	if dur < MinMatchDuration {
		dur = MinMatchDuration
	}
	return dur
}

// Race is the bot-versus-player state machine. The first resolution wins
// and is never revisited. A Race is not safe for concurrent use.
type Race struct {
	increment  float64
	progress   float64
	ticks      int
	outcome    Outcome
	reason     Reason
	transcript []string
	lines      int
}

func NewRace(d model.Difficulty, duration, tick time.Duration) *Race {
	if tick <= 0 {
		tick = TickInterval
	}
	ticksPerMatch := float64(duration) / float64(tick)
	return &Race{increment: 100 / ticksPerMatch * SpeedFactor(d)}
}

func (r *Race) Progress() float64 { return r.progress }
func (r *Race) Ticks() int { return r.ticks }
func (r *Race) Outcome() Outcome { return r.outcome }
func (r *Race) Reason() Reason { return r.reason }
func (r *Race) Decided() bool { return r.outcome != Undecided }
func (r *Race) Increment() float64 { return r.increment }
func (r *Race) Transcript() []string { return append([]string(nil), r.transcript...) }

// LinesWritten counts every transcript line ever added, including dropped ones.
func (r *Race) LinesWritten() int { return r.lines }

// Tick advances the bot one step. It reports whether this tick decided the race.
func (r *Race) Tick(rng *rand.Rand) bool {
	if r.Decided() {
		return false
	}
	r.ticks++
	r.progress += r.increment
	if rng.Float64() < LineProbability {
		r.pushLine(maskedLine(40 + rng.IntN(60)))
	}
	if r.progress >= 100 {
		r.progress = 100
		r.decide(Lose, ReasonBotFinished)
		return true
	}
	return false
}

// PlayerPassed records an accepted player submission. It reports whether the
// player won, which is only the case while the bot is still short of 100.
func (r *Race) PlayerPassed() bool {
	if r.Decided() {
		return false
	}
	r.decide(Win, ReasonPlayerSolved)
	return true
}

// TimeUp ends an undecided race as a loss.
func (r *Race) TimeUp() bool {
	if r.Decided() {
		return false
	}
	r.decide(Lose, ReasonTimeUp)
	return true
}

func (r *Race) decide(o Outcome, why Reason) {
	r.outcome = o
	r.reason = why
}

func (r *Race) pushLine(line string) {
	r.lines++
	r.transcript = append(r.transcript, line)
	if over := len(r.transcript) - MaxTranscriptLines; over > 0 {
		r.transcript = append(r.transcript[:0:0], r.transcript[over:]...)
	}
}

func maskedLine(n int) string {
	n = min(max(n, minLineLen), maxLineLen)
	return strings.Repeat(maskGlyph, n)
}
