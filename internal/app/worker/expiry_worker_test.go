package worker

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

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

type fixture struct {
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	clock   *clockwork.FakeClock
	games   repository.GameRepository
	gameSvc *service.GameService
	locker  *RedisLocker
	worker  *ExpiryWorker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	f := &fixture{
		mr:     mr,
		rdb:    rdb,
		clock:  clockwork.NewFakeClockAt(time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)),
		games:  repository.NewRedisGameRepository(rdb),
		locker: NewRedisLocker(rdb),
	}
	problems := service.NewProblemService(repository.NewMemoryProblemRepository(repository.SeedProblems()...))
	f.gameSvc = service.NewGameService(f.games, repository.NewRedisRoomRepository(rdb), problems,
		service.MockJudge{}, events.NewNoopPublisher(), f.clock)
	f.worker = NewExpiryWorker(f.games, f.gameSvc, f.locker, f.clock, ExpiryConfig{Interval: time.Second, BatchSize: 10, LockTTL: 5 * time.Second})
	return f
}

func (f *fixture) startGame(t *testing.T, code string, minutes int) *model.Game {
	t.Helper()
	room := &model.Room{
		Code:     code,
		Settings: model.RoomSettings{Language: model.LanguageGo, Difficulty: model.DifficultyEasy, TaskCount: 1, DurationMinutes: minutes, MaxPlayers: 2},
		Members:  map[string]model.RoomMember{"u1": {UserID: "u1", DisplayName: "one"}},
	}
	game, err := f.gameSvc.CreateFromRoom(context.Background(), room)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func TestSweepFinishesDueGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	short := f.startGame(t, "AAAA2222", 1)
	long := f.startGame(t, "BBBB3333", 5)
	unlimited := f.startGame(t, "CCCC4444", 0)

	if n := f.worker.Sweep(ctx); n != 0 {
		t.Fatalf("sweep before deadline finished %d games", n)
	}

	f.clock.Advance(2 * time.Minute)
	if n := f.worker.Sweep(ctx); n != 1 {
		t.Fatalf("sweep finished %d games, want 1", n)
	}
	got, err := f.games.Get(ctx, short.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != model.GameStatusFinished || got.WinnerUserID != "" {
		t.Fatalf("short game: status %s winner %q", got.Status, got.WinnerUserID)
	}
	for _, id := range []string{long.ID, unlimited.ID} {
		g, _ := f.games.Get(ctx, id)
		if g.Status != model.GameStatusRunning {
			t.Fatalf("game %s finished early", id)
		}
	}

	if n := f.worker.Sweep(ctx); n != 0 {
		t.Fatalf("second sweep finished %d games", n)
	}
	if f.mr.Exists("lock:game-expiry:" + short.ID) {
		t.Fatal("lock was not released")
	}
}

func TestSweepSkipsLockedGames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	game := f.startGame(t, "AAAA2222", 1)
	f.clock.Advance(time.Minute)

	token, err := f.locker.Acquire(ctx, lockKey(game.ID), time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if n := f.worker.Sweep(ctx); n != 0 {
		t.Fatalf("sweep ignored the lock, finished %d", n)
	}
	if _, err := f.locker.Release(ctx, lockKey(game.ID), token); err != nil {
		t.Fatalf("release: %v", err)
	}
	if n := f.worker.Sweep(ctx); n != 1 {
		t.Fatalf("sweep after release finished %d, want 1", n)
	}
}

func TestSweepDropsStaleDeadlines(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mr.ZAdd("games:deadlines", 1, "ghost"); err != nil {
		t.Fatalf("zadd: %v", err)
	}
	if n := f.worker.Sweep(context.Background()); n != 0 {
		t.Fatalf("finished %d", n)
	}
	if f.mr.Exists("games:deadlines") {
		t.Fatal("stale deadline still indexed")
	}
}

type expirerFunc func(ctx context.Context, id string) (bool, error)

func (f expirerFunc) ExpireGame(ctx context.Context, id string) (bool, error) { return f(ctx, id) }

func TestStartSweepsOnEveryTick(t *testing.T) {
	clock := clockwork.NewFakeClock()
	games := repository.NewMemoryGameRepository()
	endsAt := clock.Now().Add(-time.Second)
	if err := games.Create(context.Background(), &model.Game{ID: "g1", Status: model.GameStatusRunning, EndsAt: &endsAt}); err != nil {
		t.Fatalf("create: %v", err)
	}

	calls := make(chan string, 4)
	expirer := expirerFunc(func(_ context.Context, id string) (bool, error) {
		calls <- id
		return true, nil
	})
	w := NewExpiryWorker(games, expirer, NewMemoryLocker(clock), clock, ExpiryConfig{Interval: 500 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	if err := clock.BlockUntilContext(ctx, 1); err != nil {
		t.Fatalf("worker never armed its ticker: %v", err)
	}
	clock.Advance(500 * time.Millisecond)
	select {
	case id := <-calls:
		if id != "g1" {
			t.Fatalf("expired %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no sweep after a tick")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRedisLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()
	l := NewRedisLocker(rdb)
	ctx := context.Background()

	token, err := l.Acquire(ctx, "k", 10*time.Second)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := l.Acquire(ctx, "k", 10*time.Second); !errors.Is(err, common.ErrLockFailed) {
		t.Fatalf("second acquire: got %v", err)
	}
	if ok, _ := l.Release(ctx, "k", "someone-else"); ok {
		t.Fatal("released with a foreign token")
	}
	if ok, err := l.Release(ctx, "k", token); err != nil || !ok {
		t.Fatalf("release: ok=%v err=%v", ok, err)
	}

	if _, err := l.Acquire(ctx, "k", 10*time.Second); err != nil {
		t.Fatalf("reacquire: %v", err)
	}
	mr.FastForward(11 * time.Second)
	if _, err := l.Acquire(ctx, "k", 10*time.Second); err != nil {
		t.Fatalf("acquire after ttl: %v", err)
	}
}

func TestMemoryLocker(t *testing.T) {
	clock := clockwork.NewFakeClock()
	l := NewMemoryLocker(clock)
	ctx := context.Background()

	token, _ := l.Acquire(ctx, "k", time.Second)
	if _, err := l.Acquire(ctx, "k", time.Second); !errors.Is(err, common.ErrLockFailed) {
		t.Fatalf("second acquire: got %v", err)
	}
	clock.Advance(time.Second)
	if _, err := l.Acquire(ctx, "k", time.Second); err != nil {
		t.Fatalf("acquire after expiry: %v", err)
	}
	if ok, _ := l.Release(ctx, "k", token); ok {
		t.Fatal("stale token released a newer lease")
	}
}
