package api

import (
	"net/http"
	"time"

	"codearena/internal/api/handler"
	"codearena/internal/app/service"
	"codearena/internal/common/security"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog/hlog"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Auth    *service.AuthService
	Rooms   *service.RoomService
	Games   *service.GameService
	Problem *service.ProblemService
	Judge   *service.JudgeService
}

func NewRouter(services Services, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(hlog.NewHandler(log.Logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Stringer("url", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(hlog.RequestIDHandler("req_id", "X-Request-Id"))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	// Verifies the bearer token if present; Authenticator enforces it per route group.
	r.Use(jwtauth.Verifier(security.TokenAuth))

	// Public health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(v1 chi.Router) {
		// Dev token minting (public, disabled unless ALLOW_DEV_TOKENS)
		v1.Route("/auth", handler.NewAuthHandler(services.Auth).RegisterRoutes)

		v1.Route("/rooms", handler.NewRoomHandler(services.Rooms).RegisterRoutes)
		v1.Route("/games", handler.NewGameHandler(services.Games).RegisterRoutes)
		v1.Route("/problems", handler.NewProblemHandler(services.Problem).RegisterRoutes)
		v1.Route("/judge", handler.NewJudgeHandler(services.Judge).RegisterRoutes)
	})

	c := cors.New(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
