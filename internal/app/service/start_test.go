package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"codearena/internal/common"
	"codearena/internal/domain/model"
	"codearena/internal/domain/repository"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

// interleavingRooms runs before once, ahead of the first Update, to simulate
// another request committing between a read and a guarded write.
type interleavingRooms struct {
	repository.RoomRepository

	mu     sync.Mutex
	fired  bool
	before func()
}

func (r *interleavingRooms) Update(ctx context.Context, code string, fn func(room *model.Room) error) (*model.Room, error) {
	r.mu.Lock()
	hook := r.before
	if r.fired {
		hook = nil
	}
	r.fired = true
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return r.RoomRepository.Update(ctx, code, fn)
}

func storedGames(t *testing.T, env *testEnv) []string {
	t.Helper()
	ids, err := env.games.DueForExpiry(context.Background(), env.clock.Now().Add(24*time.Hour), 0)
	if err != nil {
		t.Fatalf("DueForExpiry: %v", err)
	}
	return ids
}

func TestStartRoomSnapshotsMembersAtTransition(t *testing.T) {
	rooms := &interleavingRooms{RoomRepository: repository.NewMemoryRoomRepository()}
	env := newTestEnvWith(t, rooms, repository.NewMemoryGameRepository())
	ctx := context.Background()

	room := env.createRoom(t, alice, model.RoomSettings{TaskCount: 1, DurationMinutes: 10})
	env.clock.Advance(time.Second)
	rooms.before = func() {
		if _, err := env.roomSvc.JoinRoom(ctx, room.Code, bob, ""); err != nil {
			t.Errorf("join during start: %v", err)
		}
	}

	game, err := env.roomSvc.StartRoom(ctx, room.Code, alice.UserID)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	want := []model.Player{{UserID: alice.UserID, DisplayName: "alice"}, {UserID: bob.UserID, DisplayName: "bob"}}
	if diff := cmp.Diff(want, game.Players); diff != "" {
		t.Fatalf("players mismatch (-want +got):\n%s", diff)
	}

	got, _ := env.roomSvc.GetRoom(ctx, room.Code, alice.UserID)
	if got.ActiveGameID != game.ID || len(got.Members) != 2 {
		t.Fatalf("room after start: %+v", got)
	}
	if ids := storedGames(t, env); len(ids) != 1 || ids[0] != game.ID {
		t.Fatalf("stored games = %v, want only %s", ids, game.ID)
	}
	if _, err := env.gameSvc.Submit(ctx, game.ID, bob, SubmitRequest{ProblemID: game.Problems[0].ID, Code: "correct"}); err != nil {
		t.Fatalf("late joiner cannot submit: %v", err)
	}
}

func TestStartRoomGivesUpWhenRoomKeepsChanging(t *testing.T) {
	base := repository.NewMemoryRoomRepository()
	env := newTestEnvWith(t, base, repository.NewMemoryGameRepository())
	ctx := context.Background()
	room := env.createRoom(t, alice, model.RoomSettings{TaskCount: 1, DurationMinutes: 10})

	// Every start attempt sees a rename land between its read and its write.
	churn := &churningRooms{RoomRepository: base}
	env.roomSvc.roomRepo = churn

	if _, err := env.roomSvc.StartRoom(ctx, room.Code, alice.UserID); !errors.Is(err, common.ErrConflict) {
		t.Fatalf("start under churn: got %v", err)
	}
	if churn.attempts != startAttempts {
		t.Fatalf("attempts = %d, want %d", churn.attempts, startAttempts)
	}
	if ids := storedGames(t, env); len(ids) != 0 {
		t.Fatalf("orphaned games left behind: %v", ids)
	}
	got, _ := env.roomSvc.GetRoom(ctx, room.Code, alice.UserID)
	if got.Status != model.RoomStatusWaiting {
		t.Fatalf("status = %s", got.Status)
	}
}

type churningRooms struct {
	repository.RoomRepository
	attempts int
}

func (r *churningRooms) Update(ctx context.Context, code string, fn func(room *model.Room) error) (*model.Room, error) {
	r.attempts++
	if _, err := r.RoomRepository.Update(ctx, code, func(room *model.Room) error {
		room.Name += "!"
		return nil
	}); err != nil {
		return nil, err
	}
	return r.RoomRepository.Update(ctx, code, fn)
}

func TestConcurrentStartsCreateOneGame(t *testing.T) {
	backends := map[string]func(t *testing.T) (repository.RoomRepository, repository.GameRepository){
		"memory": func(*testing.T) (repository.RoomRepository, repository.GameRepository) {
			return repository.NewMemoryRoomRepository(), repository.NewMemoryGameRepository()
		},
		"redis": func(t *testing.T) (repository.RoomRepository, repository.GameRepository) {
			mr := miniredis.RunT(t)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { rdb.Close() })
			return repository.NewRedisRoomRepository(rdb), repository.NewRedisGameRepository(rdb)
		},
	}
	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			rooms, games := backend(t)
			env := newTestEnvWith(t, rooms, games)
			ctx := context.Background()
			room := env.createRoom(t, alice, model.RoomSettings{TaskCount: 1, DurationMinutes: 10})

			const racers = 2
			var (
				wg      sync.WaitGroup
				started = make([]*model.Game, racers)
				errs    = make([]error, racers)
				starts  = make(chan struct{})
			)
			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					<-starts
					started[i], errs[i] = env.roomSvc.StartRoom(ctx, room.Code, alice.UserID)
				}(i)
			}
			close(starts)
			wg.Wait()

			var winner *model.Game
			for i := range errs {
				switch {
				case errs[i] == nil:
					if winner != nil {
						t.Fatalf("both starts succeeded: %s and %s", winner.ID, started[i].ID)
					}
					winner = started[i]
				case !errors.Is(errs[i], common.ErrInvalidState):
					t.Fatalf("losing start: got %v, want InvalidState", errs[i])
				}
			}
			if winner == nil {
				t.Fatalf("no start succeeded: %v", errs)
			}

			got, _ := env.roomSvc.GetRoom(ctx, room.Code, alice.UserID)
			if got.Status != model.RoomStatusRunning || got.ActiveGameID != winner.ID {
				t.Fatalf("room after race: %+v", got)
			}
			if ids := storedGames(t, env); len(ids) != 1 || ids[0] != winner.ID {
				t.Fatalf("stored games = %v, want only %s", ids, winner.ID)
			}
		})
	}
}
