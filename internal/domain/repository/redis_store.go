package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"codearena/internal/common"

	"github.com/redis/go-redis/v9"
)

// maxTxRetries bounds optimistic WATCH retries before giving up with ErrConflict.
const maxTxRetries = 16

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getJSON[T any](ctx context.Context, c stringGetter, key string) (*T, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &v, nil
}

// updateJSON runs a WATCH/MULTI read-modify-write on key. mutate sees a fresh
// copy on every attempt; write queues the replacement into the transaction.
// Errors returned by mutate abort the update and are passed through untouched.
func updateJSON[T any](
	ctx context.Context,
	rdb *redis.Client,
	key string,
	mutate func(v *T) error,
	write func(pipe redis.Pipeliner, v *T, encoded []byte),
) (*T, error) {
	var out *T
	txf := func(tx *redis.Tx) error {
		v, err := getJSON[T](ctx, tx, key)
		if err != nil {
			return err
		}
		if err := mutate(v); err != nil {
			return err
		}
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			write(pipe, v, encoded)
			return nil
		})
		if err != nil {
			return err
		}
		out = v
		return nil
	}

	for i := 0; i < maxTxRetries; i++ {
		err := rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update %s: too much contention: %w", key, common.ErrConflict)
}
