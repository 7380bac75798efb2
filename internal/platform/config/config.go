package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	BackendRedis    = "redis"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"

	JudgeModeMock = "mock"
	JudgeModeHTTP = "http"
)

type Config struct {
	APIPort     string
	LogLevel    string
	LogPretty   bool
	CORSOrigins []string

	JWTKey         []byte
	JWTExp         time.Duration
	AllowDevTokens bool

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string
	DBConnStr  string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	StoreBackend   string // redis | memory
	CatalogBackend string // postgres | memory

	JudgeMode       string // mock | http
	ExecutorURL     string
	ExecutorTimeout time.Duration
	JudgeRunTimeout time.Duration

	NATSURL           string
	NATSSubjectPrefix string

	ExpirySweepInterval time.Duration
	ExpiryBatchSize     int
	ExpiryLockTTL       time.Duration
}

var AppConfig *Config

func Load() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	AppConfig = &Config{
		APIPort:     getEnv("API_PORT", "8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogPretty:   getEnvAsBool("LOG_PRETTY", true),
		CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),

		JWTKey:         []byte(getEnv("JWT_SECRET", "defaultsecret")),
		JWTExp:         time.Duration(getEnvAsInt("JWT_EXPIRATION_HOURS", 72)) * time.Hour,
		AllowDevTokens: getEnvAsBool("ALLOW_DEV_TOKENS", false),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "user"),
		DBPassword: getEnv("DB_PASSWORD", "password"),
		DBName:     getEnv("DB_NAME", "codearena"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		StoreBackend:   getEnv("STORE_BACKEND", BackendRedis),
		CatalogBackend: getEnv("CATALOG_BACKEND", BackendMemory),

		JudgeMode:       getEnv("JUDGE_MODE", JudgeModeMock),
		ExecutorURL:     getEnv("EXECUTOR_URL", "http://localhost:9000/execute"),
		ExecutorTimeout: time.Duration(getEnvAsInt("EXECUTOR_TIMEOUT_SECONDS", 30)) * time.Second,
		JudgeRunTimeout: time.Duration(getEnvAsInt("JUDGE_RUN_TIMEOUT_MS", 2000)) * time.Millisecond,

		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "arena"),

		ExpirySweepInterval: time.Duration(getEnvAsInt("EXPIRY_SWEEP_MS", 1000)) * time.Millisecond,
		ExpiryBatchSize:     getEnvAsInt("EXPIRY_BATCH_SIZE", 50),
		ExpiryLockTTL:       time.Duration(getEnvAsInt("EXPIRY_LOCK_TTL_SECONDS", 10)) * time.Second,
	}

	AppConfig.DBConnStr = "host=" + AppConfig.DBHost +
		" port=" + AppConfig.DBPort +
		" user=" + AppConfig.DBUser +
		" password=" + AppConfig.DBPassword +
		" dbname=" + AppConfig.DBName +
		" sslmode=" + AppConfig.DBSslMode
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return fallback
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, fallback []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
