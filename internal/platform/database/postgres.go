package database

import (
	"context"
	"database/sql"
	"time"

	"codearena/internal/platform/config"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB serves the problem catalog. It is only read at game start and by the
// problem endpoints, so the pool stays small.
var DB *sql.DB

const pingTimeout = 5 * time.Second

func Connect() {
	var err error
	DB, err = sql.Open("pgx", config.AppConfig.DBConnStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Error opening catalog database")
	}

	DB.SetMaxOpenConns(8)
	DB.SetMaxIdleConns(4)
	DB.SetConnMaxIdleTime(time.Minute)
	DB.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = DB.PingContext(ctx); err != nil {
		log.Fatal().Err(err).Str("host", config.AppConfig.DBHost).Str("db", config.AppConfig.DBName).
			Msg("Error connecting to catalog database")
	}

	log.Info().Str("host", config.AppConfig.DBHost).Str("db", config.AppConfig.DBName).Msg("Connected to problem catalog")
}

func Close() {
	if DB == nil {
		return
	}
	if err := DB.Close(); err != nil {
		log.Warn().Err(err).Msg("Closing catalog database")
		return
	}
	log.Info().Msg("Catalog database closed")
}
