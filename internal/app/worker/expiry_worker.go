package worker

import (
	"context"
	"errors"
	"time"

	"codearena/internal/common"
	"codearena/internal/domain/repository"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// GameExpirer finishes a game whose deadline has passed and reports whether
// this call did it. *service.GameService implements it.
type GameExpirer interface {
	ExpireGame(ctx context.Context, id string) (bool, error)
}

type ExpiryConfig struct {
	Interval  time.Duration
	BatchSize int
	LockTTL   time.Duration
}

// ExpiryWorker finishes timed-out games from the deadline index so rooms
// move to FINISHED even when nobody is polling. Several server instances may
// run it; a per-game lock keeps them from racing on the same game.
type ExpiryWorker struct {
	games   repository.GameRepository
	expirer GameExpirer
	locker  Locker
	clock   clockwork.Clock
	cfg     ExpiryConfig
}

func NewExpiryWorker(games repository.GameRepository, expirer GameExpirer, locker Locker, clock clockwork.Clock, cfg ExpiryConfig) *ExpiryWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Second
	}
	return &ExpiryWorker{games: games, expirer: expirer, locker: locker, clock: clock, cfg: cfg}
}

func lockKey(gameID string) string {
	return "lock:game-expiry:" + gameID
}

// Start sweeps every interval until ctx is cancelled.
func (w *ExpiryWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.cfg.Interval).Int("batch", w.cfg.BatchSize).Msg("Expiry worker started")
	ticker := w.clock.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Expiry worker stopping...")
			return
		case <-ticker.Chan():
			w.Sweep(ctx)
		}
	}
}

// Sweep expires one batch of due games and returns how many it finished.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	ids, err := w.games.DueForExpiry(ctx, w.clock.Now(), w.cfg.BatchSize)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("failed to load games due for expiry")
		}
		return 0
	}
	finished := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if w.expireWithLock(ctx, id) {
			finished++
		}
	}
	if finished > 0 {
		log.Info().Int("finished", finished).Int("due", len(ids)).Msg("expiry sweep finished games")
	}
	return finished
}

func (w *ExpiryWorker) expireWithLock(ctx context.Context, id string) bool {
	key := lockKey(id)
	token, err := w.locker.Acquire(ctx, key, w.cfg.LockTTL)
	if errors.Is(err, common.ErrLockFailed) {
		log.Debug().Str("game_id", id).Msg("game expiry locked by another worker")
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("game_id", id).Msg("failed to lock game for expiry")
		return false
	}
	defer func() {
		released, err := w.locker.Release(context.WithoutCancel(ctx), key, token)
		if err != nil {
			log.Error().Err(err).Str("game_id", id).Msg("failed to release expiry lock")
		} else if !released {
			log.Warn().Str("game_id", id).Msg("expiry lock expired before release")
		}
	}()

	finished, err := w.expirer.ExpireGame(ctx, id)
	if errors.Is(err, common.ErrNotFound) {
		// Stale index entry; Delete also clears the deadline.
		if derr := w.games.Delete(ctx, id); derr != nil && !errors.Is(derr, common.ErrNotFound) {
			log.Warn().Err(derr).Str("game_id", id).Msg("failed to drop stale deadline")
		}
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("game_id", id).Msg("failed to expire game")
		return false
	}
	return finished
}
