package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"codearena/internal/common"
	"codearena/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

// RoomRepository is the authoritative room store. Update is the only way to
// change a stored room; it bumps Version on every successful write.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	Get(ctx context.Context, code string) (*model.Room, error)
	List(ctx context.Context) ([]*model.Room, error)
	Update(ctx context.Context, code string, fn func(room *model.Room) error) (*model.Room, error)
	Delete(ctx context.Context, code string) error
}

const roomIndexKey = "rooms:index"

func roomKey(code string) string {
	return "room:" + code
}

type redisRoomRepository struct {
	rdb *redis.Client
}

func NewRedisRoomRepository(rdb *redis.Client) RoomRepository {
	return &redisRoomRepository{rdb: rdb}
}

func (r *redisRoomRepository) Create(ctx context.Context, room *model.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("redisRoomRepository.Create encode: %w", err)
	}
	ok, err := r.rdb.SetNX(ctx, roomKey(room.Code), data, 0).Result()
	if err != nil {
		return fmt.Errorf("redisRoomRepository.Create: %w", err)
	}
	if !ok {
		return fmt.Errorf("room code %s already taken: %w", room.Code, common.ErrConflict)
	}
	if err := r.rdb.SAdd(ctx, roomIndexKey, room.Code).Err(); err != nil {
		return fmt.Errorf("redisRoomRepository.Create index: %w", err)
	}
	return nil
}

func (r *redisRoomRepository) Get(ctx context.Context, code string) (*model.Room, error) {
	return getJSON[model.Room](ctx, r.rdb, roomKey(code))
}

func (r *redisRoomRepository) List(ctx context.Context) ([]*model.Room, error) {
	codes, err := r.rdb.SMembers(ctx, roomIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redisRoomRepository.List index: %w", err)
	}
	if len(codes) == 0 {
		return []*model.Room{}, nil
	}
	keys := make([]string, len(codes))
	for i, c := range codes {
		keys[i] = roomKey(c)
	}
	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redisRoomRepository.List: %w", err)
	}
	rooms := make([]*model.Room, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Deleted between SMEMBERS and MGET.
			continue
		}
		var room model.Room
		if err := json.Unmarshal([]byte(s), &room); err != nil {
			return nil, fmt.Errorf("redisRoomRepository.List decode %s: %w", codes[i], err)
		}
		rooms = append(rooms, &room)
	}
	sortRooms(rooms)
	return rooms, nil
}

func (r *redisRoomRepository) Update(ctx context.Context, code string, fn func(room *model.Room) error) (*model.Room, error) {
	key := roomKey(code)
	return updateJSON(ctx, r.rdb, key,
		func(room *model.Room) error {
			if err := fn(room); err != nil {
				return err
			}
			room.Version++
			return nil
		},
		func(pipe redis.Pipeliner, _ *model.Room, encoded []byte) {
			pipe.Set(ctx, key, encoded, 0)
		},
	)
}

func (r *redisRoomRepository) Delete(ctx context.Context, code string) error {
	var del *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, roomKey(code))
		pipe.SRem(ctx, roomIndexKey, code)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redisRoomRepository.Delete: %w", err)
	}
	if del.Val() == 0 {
		return common.ErrNotFound
	}
	return nil
}

// Newest first, code breaking ties so listings are stable.
func sortRooms(rooms []*model.Room) {
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].Code < rooms[j].Code
	})
}

type memoryRoomRepository struct {
	mu    sync.Mutex
	rooms map[string]*model.Room
}

// NewMemoryRoomRepository keeps rooms in process memory. Used by tests and
// single-node dev runs with STORE_BACKEND=memory.
func NewMemoryRoomRepository() RoomRepository {
	return &memoryRoomRepository{rooms: make(map[string]*model.Room)}
}

func (r *memoryRoomRepository) Create(_ context.Context, room *model.Room) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.rooms[room.Code]; exists {
		return fmt.Errorf("room code %s already taken: %w", room.Code, common.ErrConflict)
	}
	r.rooms[room.Code] = room.Clone()
	return nil
}

func (r *memoryRoomRepository) Get(_ context.Context, code string) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[code]
	if !ok {
		return nil, common.ErrNotFound
	}
	return room.Clone(), nil
}

func (r *memoryRoomRepository) List(_ context.Context) ([]*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rooms := make([]*model.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		rooms = append(rooms, room.Clone())
	}
	sortRooms(rooms)
	return rooms, nil
}

func (r *memoryRoomRepository) Update(_ context.Context, code string, fn func(room *model.Room) error) (*model.Room, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.rooms[code]
	if !ok {
		return nil, common.ErrNotFound
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.Version++
	r.rooms[code] = next
	return next.Clone(), nil
}

func (r *memoryRoomRepository) Delete(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[code]; !ok {
		return common.ErrNotFound
	}
	delete(r.rooms, code)
	return nil
}
