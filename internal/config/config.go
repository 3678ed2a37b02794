package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"replay-tracker/internal/constants"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

type Config struct {
	DBPath           string
	ServerPort       string
	LogLevel         string
	UploadRateLimit  int
	UploadRateWindow time.Duration
}

func Load(logger zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debug().Msg(".env file not found, using environment variables or defaults")
	}

	cfg := &Config{
		DBPath:           getEnv("DB_PATH", "replays.db"),
		ServerPort:       getEnv("SERVER_PORT", "8080"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		UploadRateLimit:  constants.UploadRateLimit,
		UploadRateWindow: constants.UploadRateWindow,
	}

	if raw := os.Getenv("UPLOAD_RATE_LIMIT"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("UPLOAD_RATE_LIMIT must be a positive integer, got %q", raw)
		}
		cfg.UploadRateLimit = limit
	}
	if raw := os.Getenv("UPLOAD_RATE_WINDOW"); raw != "" {
		window, err := time.ParseDuration(raw)
		if err != nil || window <= 0 {
			return nil, fmt.Errorf("UPLOAD_RATE_WINDOW must be a positive duration, got %q", raw)
		}
		cfg.UploadRateWindow = window
	}

	logger.Info().
		Str("db_path", cfg.DBPath).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel).
		Int("upload_rate_limit", cfg.UploadRateLimit).
		Dur("upload_rate_window", cfg.UploadRateWindow).
		Msg("configuration loaded")

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var Module = fx.Provide(Load)
