package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

type GameRepository interface {
	Create(ctx context.Context, game *model.Game) error
	Get(ctx context.Context, id string) (*model.Game, error)
	Update(ctx context.Context, id string, fn func(game *model.Game) error) (*model.Game, error)
	Delete(ctx context.Context, id string) error
	// DueForExpiry lists ids of running games whose deadline is at or before now.
	DueForExpiry(ctx context.Context, now time.Time, limit int) ([]string, error)
}

const gameDeadlinesKey = "games:deadlines"

func gameKey(id string) string {
	return "game:" + id
}

type redisGameRepository struct {
	rdb *redis.Client
}

func NewRedisGameRepository(rdb *redis.Client) GameRepository {
	return &redisGameRepository{rdb: rdb}
}

func (r *redisGameRepository) Create(ctx context.Context, game *model.Game) error {
	data, err := json.Marshal(game)
	if err != nil {
		return fmt.Errorf("redisGameRepository.Create encode: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, gameKey(game.ID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redisGameRepository.Create: %w", err)
	}
	if !ok {
		return fmt.Errorf("game %s already exists: %w", game.ID, common.ErrConflict)
	}
	if game.EndsAt != nil && game.Status == model.GameStatusRunning {
		err := r.rdb.ZAdd(ctx, gameDeadlinesKey, redis.Z{
			Score:  float64(game.EndsAt.UnixMilli()),
			Member: game.ID,
		}).Err()
		if err != nil {
			return fmt.Errorf("redisGameRepository.Create deadline: %w", err)
		}
	}
	return nil
}

func (r *redisGameRepository) Get(ctx context.Context, id string) (*model.Game, error) {
	return getJSON[model.Game](ctx, r.rdb, gameKey(id))
}

func (r *redisGameRepository) Update(ctx context.Context, id string, fn func(game *model.Game) error) (*model.Game, error) {
	key := gameKey(id)
	return updateJSON(ctx, r.rdb, key,
		func(game *model.Game) error {
			if err := fn(game); err != nil {
				return err
			}
			game.Version++
			return nil
		},
		func(pipe redis.Pipeliner, game *model.Game, encoded []byte) {
			pipe.Set(ctx, key, encoded, 0)
			if game.Status == model.GameStatusFinished {
				pipe.ZRem(ctx, gameDeadlinesKey, game.ID)
			}
		},
	)
}

func (r *redisGameRepository) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, gameKey(id))
		pipe.ZRem(ctx, gameDeadlinesKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisGameRepository.Delete: %w", err)
	}
	if del.Val() == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *redisGameRepository) DueForExpiry(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := r.rdb.ZRangeByScore(ctx, gameDeadlinesKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("redisGameRepository.DueForExpiry: %w", err)
	}
	return ids, nil
}

type memoryGameRepository struct {
	mu    sync.Mutex
	games map[string]*model.Game
}

func NewMemoryGameRepository() GameRepository {
	return &memoryGameRepository{games: make(map[string]*model.Game)}
}

func (r *memoryGameRepository) Create(_ context.Context, game *model.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.games[game.ID]; exists {
		return fmt.Errorf("game %s already exists: %w", game.ID, common.ErrConflict)
	}
	r.games[game.ID] = game.Clone()
	return nil
}

func (r *memoryGameRepository) Get(_ context.Context, id string) (*model.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	game, ok := r.games[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return game.Clone(), nil
}

func (r *memoryGameRepository) Update(_ context.Context, id string, fn func(game *model.Game) error) (*model.Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.games[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version++
	r.games[id] = next
	return next.Clone(), nil
}

func (r *memoryGameRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.games[id]; !ok {
		return common.ErrNotFound
	}
	delete(r.games, id)
	return nil
}

func (r *memoryGameRepository) DueForExpiry(_ context.Context, now time.Time, limit int) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	type due struct {
		id     string
		endsAt time.Time
	}
	var all []due
	for _, g := range r.games {
		if g.Status == model.GameStatusRunning && g.EndsAt != nil && !g.EndsAt.After(now) {
			all = append(all, due{id: g.ID, endsAt: *g.EndsAt})
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].endsAt.Before(all[j].endsAt) })
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	ids := make([]string, len(all))
	for i, d := range all {
		ids[i] = d.id
	}
	return ids, nil
}
