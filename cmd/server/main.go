package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codearena/internal/api"
	"codearena/internal/app/service"
	"codearena/internal/app/worker"
	"codearena/internal/common/security"
	"codearena/internal/domain/repository"
	"codearena/internal/platform/cache"
	"codearena/internal/platform/config"
	"codearena/internal/platform/database"
	"codearena/internal/platform/events"
	"codearena/internal/platform/logger"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

func main() {
	// 1. Load Configuration
	config.Load()
	cfg := config.AppConfig
	logger.Setup(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("store", cfg.StoreBackend).Str("catalog", cfg.CatalogBackend).Str("judge", cfg.JudgeMode).Msg("Configuration loaded")

	// 2. Initialize JWT
	security.InitJWT(cfg.JWTKey)

	clock := clockwork.NewRealClock()

	// 3. Room and game store
	var (
		roomRepo repository.RoomRepository
		gameRepo repository.GameRepository
		locker   worker.Locker
	)
	switch cfg.StoreBackend {
	case config.BackendMemory:
		roomRepo = repository.NewMemoryRoomRepository()
		gameRepo = repository.NewMemoryGameRepository()
		locker = worker.NewMemoryLocker(clock)
		log.Warn().Msg("Using in-memory room store; state is lost on restart")
	default:
		cache.ConnectRedis()
		defer cache.CloseRedis()
		roomRepo = repository.NewRedisRoomRepository(cache.RDB)
		gameRepo = repository.NewRedisGameRepository(cache.RDB)
		locker = worker.NewRedisLocker(cache.RDB)
	}

	// 4. Problem catalog
	var problemRepo repository.ProblemRepository
	switch cfg.CatalogBackend {
	case config.BackendPostgres:
		database.Connect()
		defer database.Close()
		problemRepo = repository.NewPgProblemRepository(database.DB)
	default:
		problemRepo = repository.NewMemoryProblemRepository(repository.SeedProblems()...)
	}

	// 5. Judge
	var judge service.Judge = service.MockJudge{}
	if cfg.JudgeMode == config.JudgeModeHTTP {
		judge = service.NewHTTPJudge(cfg.ExecutorURL, cfg.ExecutorTimeout, cfg.JudgeRunTimeout)
		log.Info().Str("url", cfg.ExecutorURL).Msg("Using HTTP judge")
	}

	// 6. Event publisher
	publisher := events.NewNoopPublisher()
	if cfg.NATSURL != "" {
		p, err := events.NewNATSPublisher(events.NATSConfig{URL: cfg.NATSURL, SubjectPrefix: cfg.NATSSubjectPrefix, MaxReconnects: -1})
		if err != nil {
			log.Fatal().Err(err).Msg("Could not connect to NATS")
		}
		publisher = p
		log.Info().Str("url", cfg.NATSURL).Msg("Publishing lifecycle events to NATS")
	}
	defer publisher.Close()

	// 7. Initialize Services
	problemService := service.NewProblemService(problemRepo)
	gameService := service.NewGameService(gameRepo, roomRepo, problemService, judge, publisher, clock)
	services := api.Services{
		Auth:    service.NewAuthService(cfg.AllowDevTokens, cfg.JWTExp),
		Rooms:   service.NewRoomService(roomRepo, gameService, publisher, clock),
		Games:   gameService,
		Problem: problemService,
		Judge:   service.NewJudgeService(judge, problemRepo),
	}

	// 8. Expiry worker (as a goroutine)
	expiryWorker := worker.NewExpiryWorker(gameRepo, gameService, locker, clock, worker.ExpiryConfig{
		Interval:  cfg.ExpirySweepInterval,
		BatchSize: cfg.ExpiryBatchSize,
		LockTTL:   cfg.ExpiryLockTTL,
	})
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go expiryWorker.Start(workerCtx)

	// 9. Router & HTTP Server
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      api.NewRouter(services, cfg.CORSOrigins),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.ExecutorTimeout + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Info().Str("port", cfg.APIPort).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("port", cfg.APIPort).Msg("Could not listen")
		}
	}()

	<-stop

	log.Info().Msg("Shutting down server...")
	workerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server and worker stopped gracefully")
}
