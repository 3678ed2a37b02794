package fx

import (
	"replay-tracker/internal/config"
	"replay-tracker/internal/constants"
	"replay-tracker/internal/database"
	"replay-tracker/internal/domain"
	"replay-tracker/internal/logger"
	"replay-tracker/internal/ratelimit"
	"replay-tracker/internal/repository"
	"replay-tracker/internal/server"
	"replay-tracker/internal/service"

	"go.uber.org/fx"
)

func provideUploadGate(cfg *config.Config) *ratelimit.Window {
	return ratelimit.New(cfg.UploadRateLimit, cfg.UploadRateWindow, constants.RateLimitCapacity)
}

var Module = fx.Options(
	fx.Provide(logger.New),
	fx.Provide(config.Load),
	fx.Provide(database.New),
	// repos
	fx.Provide(
		repository.NewGameRepository,
		repository.NewClientRepository,
		func(r *repository.GameRepository) domain.GameRepository { return r },
		func(r *repository.ClientRepository) domain.ClientRepository { return r },
	),
	// upload gate
	fx.Provide(provideUploadGate),
	// svc
	fx.Provide(service.NewUploadService),
	fx.Provide(service.NewStatsService),
	fx.Provide(service.NewClientService),
	// server
	fx.Provide(server.NewTrackerServer),
)
