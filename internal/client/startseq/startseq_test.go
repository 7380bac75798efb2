package startseq

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/jonboulle/clockwork"
)

type countingStarter struct {
	calls atomic.Int32
	err   error
}

func (c *countingStarter) StartRoom(_ context.Context, code string) (*model.Game, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return &model.Game{ID: "g-" + code, RoomCode: code, Status: model.GameStatusRunning}, nil
}

func waitDone(t *testing.T, s *Sequencer) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("start never committed; state = %s", s.State())
	}
}

func TestLabelFor(t *testing.T) {
	cases := []struct {
		remaining time.Duration
		want      string
	}{
		{5000 * time.Millisecond, "3"},
		{3501 * time.Millisecond, "3"},
		{3500 * time.Millisecond, "2"},
		{2001 * time.Millisecond, "2"},
		{2000 * time.Millisecond, "1"},
		{501 * time.Millisecond, "1"},
		{500 * time.Millisecond, "GO"},
		{0, "GO"},
	}
	for _, tc := range cases {
		if got := LabelFor(tc.remaining); got != tc.want {
			t.Errorf("LabelFor(%v) = %q, want %q", tc.remaining, got, tc.want)
		}
	}
}

func TestCountdownCommitsOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	starter := &countingStarter{}
	s := New(starter, clock, "abcd2345", Config{})
	ctx := context.Background()

	if s.Label() != "" {
		t.Fatalf("idle label = %q", s.Label())
	}
	if err := s.Trigger(ctx, true, model.RoomStatusWaiting); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	clock.BlockUntilContext(ctx, 1)

	if s.Label() != "3" {
		t.Fatalf("label at start = %q", s.Label())
	}
	steps := []struct {
		advance time.Duration
		want    string
	}{
		{1600 * time.Millisecond, "2"},
		{1500 * time.Millisecond, "1"},
		{1500 * time.Millisecond, "GO"},
	}
	last := s.Remaining()
	for _, st := range steps {
		clock.Advance(st.advance)
		if got := s.Label(); got != st.want {
			t.Fatalf("label = %q, want %q", got, st.want)
		}
		if r := s.Remaining(); r > last {
			t.Fatalf("remaining grew from %v to %v", last, r)
		} else {
			last = r
		}
		// Retriggering mid-countdown must not restart or double-start.
		if err := s.Trigger(ctx, true, model.RoomStatusWaiting); err != nil {
			t.Fatalf("retrigger: %v", err)
		}
	}
	if starter.calls.Load() != 0 {
		t.Fatal("started before the countdown finished")
	}

	clock.Advance(400 * time.Millisecond)
	waitDone(t, s)

	game, err := s.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if game.RoomCode != "ABCD2345" {
		t.Fatalf("started room %q", game.RoomCode)
	}
	if n := starter.calls.Load(); n != 1 {
		t.Fatalf("StartRoom called %d times", n)
	}
	if s.State() != Committed || s.Label() != "GO" {
		t.Fatalf("state = %s label = %q", s.State(), s.Label())
	}
	if err := s.Trigger(ctx, true, model.RoomStatusWaiting); !errors.Is(err, ErrCommitted) {
		t.Fatalf("trigger after commit: %v", err)
	}
}

func TestTriggerGuards(t *testing.T) {
	s := New(&countingStarter{}, clockwork.NewFakeClock(), "ROOM", Config{})
	ctx := context.Background()

	if err := s.Trigger(ctx, false, model.RoomStatusWaiting); !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("non-owner: %v", err)
	}
	if err := s.Trigger(ctx, true, model.RoomStatusRunning); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("running room: %v", err)
	}
	if s.State() != Idle {
		t.Fatalf("state = %s", s.State())
	}
}

func TestFailedStartDoesNotReopenCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	starter := &countingStarter{err: common.ErrInvalidState}
	s := New(starter, clock, "ROOM", Config{})
	ctx := context.Background()

	if err := s.Trigger(ctx, true, model.RoomStatusWaiting); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	clock.BlockUntilContext(ctx, 1)
	clock.Advance(DefaultCountdown)
	waitDone(t, s)

	if _, err := s.Result(); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("result err = %v", err)
	}
	if err := s.Trigger(ctx, true, model.RoomStatusWaiting); !errors.Is(err, ErrCommitted) {
		t.Fatalf("retrigger after failure: %v", err)
	}
	if s.State() != Committed {
		t.Fatalf("state = %s", s.State())
	}
	if n := starter.calls.Load(); n != 1 {
		t.Fatalf("StartRoom called %d times", n)
	}
}

func TestStopCancelsCountdown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	starter := &countingStarter{}
	s := New(starter, clock, "ROOM", Config{})
	ctx := context.Background()

	if err := s.Trigger(ctx, true, model.RoomStatusWaiting); err != nil {
		t.Fatalf("trigger: %v", err)
	}
	clock.BlockUntilContext(ctx, 1)
	s.Stop()
	if s.State() != Idle || s.Remaining() != 0 {
		t.Fatalf("state = %s remaining = %v", s.State(), s.Remaining())
	}
	clock.Advance(2 * DefaultCountdown)
	time.Sleep(20 * time.Millisecond)
	if starter.calls.Load() != 0 {
		t.Fatal("stopped countdown still started the game")
	}
}
