package match

import (
	"context"
	"errors"
	"testing"
	"time"

	"codearena/internal/app/service"
	"codearena/internal/common"
	"codearena/internal/domain/model"
	"codearena/internal/domain/repository"
	"codearena/internal/platform/events"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
)

var (
	alice = model.Identity{UserID: "u-alice", DisplayName: "alice"}
	bob   = model.Identity{UserID: "u-bob", DisplayName: "bob"}
)

// serverAPI calls the game service in process as a fixed user.
type serverAPI struct {
	games *service.GameService
	me    model.Identity
}

func (s serverAPI) GetGame(ctx context.Context, id string) (*model.Game, error) {
	return s.games.GetGame(ctx, id, s.me.UserID)
}

func (s serverAPI) Submit(ctx context.Context, gameID, problemID, code string) (*model.Verdict, error) {
	resp, err := s.games.Submit(ctx, gameID, s.me, service.SubmitRequest{ProblemID: problemID, Code: code})
	if err != nil {
		return nil, err
	}
	return resp.Verdict, nil
}

type fixture struct {
	clock *clockwork.FakeClock
	games *service.GameService
	game  *model.Game
}

func newFixture(t *testing.T, settings model.RoomSettings) *fixture {
	t.Helper()
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	rooms := repository.NewMemoryRoomRepository()
	problems := service.NewProblemService(repository.NewMemoryProblemRepository(repository.SeedProblems()...))
	games := service.NewGameService(repository.NewMemoryGameRepository(), rooms, problems, service.MockJudge{}, events.NewNoopPublisher(), clock)
	roomSvc := service.NewRoomService(rooms, games, events.NewNoopPublisher(), clock)

	room, err := roomSvc.CreateRoom(ctx, alice, service.CreateRoomRequest{Name: "match", Settings: settings})
	if err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	clock.Advance(time.Second)
	if _, err := roomSvc.JoinRoom(ctx, room.Code, bob, ""); err != nil {
		t.Fatalf("JoinRoom: %v", err)
	}
	game, err := roomSvc.StartRoom(ctx, room.Code, alice.UserID)
	if err != nil {
		t.Fatalf("StartRoom: %v", err)
	}
	return &fixture{clock: clock, games: games, game: game}
}

func (f *fixture) run(t *testing.T, me model.Identity) (*Reconciler, chan error) {
	t.Helper()
	r := NewReconciler(serverAPI{games: f.games, me: me}, f.clock, Config{GameID: f.game.ID})
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errc := make(chan error, 1)
	go func() { errc <- r.Run(ctx) }()
	waitFor(t, r, "first poll", func(v View) bool { return v.Game != nil })
	return r, errc
}

func waitFor(t *testing.T, r *Reconciler, what string, cond func(View) bool) View {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if v := r.View(); cond(v) {
			return v
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s; view = %+v", what, r.View())
	return View{}
}

func TestSubmitReflectsServerState(t *testing.T) {
	f := newFixture(t, model.RoomSettings{TaskCount: 2, DurationMinutes: 10})
	r, _ := f.run(t, alice)
	ctx := context.Background()
	p1, p2 := f.game.Problems[0].ID, f.game.Problems[1].ID

	v := r.View()
	if v.Unlimited || v.Remaining != 10*time.Minute {
		t.Fatalf("remaining = %v unlimited = %v", v.Remaining, v.Unlimited)
	}

	verdict, err := r.Submit(ctx, p1, "print(4)")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if verdict.Passed {
		t.Fatal("wrong code passed")
	}
	waitFor(t, r, "failed verdict", func(v View) bool {
		ls, ok := v.LastSubmit(p1)
		return ok && !ls.Correct
	})

	if _, err := r.Submit(ctx, p1, "correct"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v = waitFor(t, r, "solved", func(v View) bool { return v.Solved(p1) })
	if ls, _ := v.LastSubmit(p1); !ls.Correct {
		t.Fatalf("last submit = %+v", ls)
	}
	if v.Solved(p2) || v.Finished {
		t.Fatal("game advanced further than one solved problem")
	}

	want := []model.ScoreboardEntry{
		{Rank: 1, UserID: alice.UserID, DisplayName: "alice", Solved: 1},
		{Rank: 2, UserID: bob.UserID, DisplayName: "bob", Solved: 0},
	}
	if diff := cmp.Diff(want, v.Scoreboard); diff != "" {
		t.Fatalf("scoreboard mismatch (-want +got):\n%s", diff)
	}

	if _, err := r.Submit(ctx, "not-in-game", "correct"); !errors.Is(err, common.ErrValidation) {
		t.Fatalf("foreign problem: %v", err)
	}
}

func TestFinishedGameLeavesAfterDelay(t *testing.T) {
	f := newFixture(t, model.RoomSettings{TaskCount: 1})
	r, errc := f.run(t, alice)
	ctx := context.Background()

	if v := r.View(); !v.Unlimited {
		t.Fatal("game without duration should be unlimited")
	}
	if _, err := r.Submit(ctx, f.game.Problems[0].ID, "CORRECT"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	v := waitFor(t, r, "finished", func(v View) bool { return v.Finished })
	if v.Winner != alice.UserID {
		t.Fatalf("winner = %q", v.Winner)
	}
	if _, err := r.Submit(ctx, f.game.Problems[0].ID, "CORRECT"); !errors.Is(err, common.ErrInvalidState) {
		t.Fatalf("submit after finish: %v", err)
	}

	select {
	case <-r.Leave():
		t.Fatal("left before the redirect delay")
	default:
	}
	// poll ticker + redirect timer
	f.clock.BlockUntilContext(ctx, 2)
	f.clock.Advance(DefaultFinishedRedirectDelay)
	select {
	case <-r.Leave():
	case <-time.After(2 * time.Second):
		t.Fatal("never left the finished game")
	}
	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestExpiredGameObservedFinished(t *testing.T) {
	f := newFixture(t, model.RoomSettings{TaskCount: 2, DurationMinutes: 1})
	r, _ := f.run(t, bob)
	ctx := context.Background()

	if _, err := f.games.Submit(ctx, f.game.ID, alice, service.SubmitRequest{ProblemID: f.game.Problems[0].ID, Code: "CORRECT"}); err != nil {
		t.Fatalf("alice submit: %v", err)
	}

	f.clock.BlockUntilContext(ctx, 1)
	f.clock.Advance(61 * time.Second)
	v := waitFor(t, r, "expired", func(v View) bool { return v.Finished })
	if v.Winner != "" {
		t.Fatalf("expired game has winner %q", v.Winner)
	}
	if v.Remaining != 0 || v.Unlimited {
		t.Fatalf("remaining = %v unlimited = %v", v.Remaining, v.Unlimited)
	}
	if len(v.Scoreboard) != 2 || v.Scoreboard[0].UserID != alice.UserID || v.Scoreboard[0].Solved != 1 {
		t.Fatalf("scoreboard = %+v", v.Scoreboard)
	}
}

func TestVanishedGameLeaves(t *testing.T) {
	f := newFixture(t, model.RoomSettings{TaskCount: 1})
	r, errc := f.run(t, alice)
	ctx := context.Background()

	if err := f.games.Delete(ctx, f.game.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	f.clock.BlockUntilContext(ctx, 1)
	f.clock.Advance(DefaultPollInterval)
	v := waitFor(t, r, "gone", func(v View) bool { return v.Err != nil })
	if !errors.Is(v.Err, ErrGameGone) {
		t.Fatalf("err = %v", v.Err)
	}

	f.clock.BlockUntilContext(ctx, 2)
	f.clock.Advance(DefaultFinishedRedirectDelay)
	select {
	case <-r.Leave():
	case <-time.After(2 * time.Second):
		t.Fatal("never left the vanished game")
	}
	if err := <-errc; err != nil {
		t.Fatalf("run: %v", err)
	}
}
