package service

import (
	"context"
	"fmt"

	"replay-tracker/internal/constants"
	"replay-tracker/internal/domain"
	"replay-tracker/internal/stats"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type StatsService struct {
	games  domain.GameRepository
	logger zerolog.Logger
}

func NewStatsService(games domain.GameRepository, logger zerolog.Logger) *StatsService {
	return &StatsService{games: games, logger: logger}
}

// GetPlayerStats recomputes the derived view for tag from the stored game
// set. The tag arrives already transport-decoded; it is matched exactly.
// A tag with no games is ErrNotFound, which the transport maps to 404.
func (s *StatsService) GetPlayerStats(ctx context.Context, tag string) (*stats.PlayerStats, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	games, err := s.games.SelectByPlayerTag(ctx, tag)
	if err != nil {
		s.logger.Error().Err(err).Str("tag", tag).Msg("failed to load games for player")
		return nil, fmt.Errorf("%w: loading games for player", domain.ErrPersistence)
	}

	view := stats.Aggregate(games, tag, constants.RecentOpponentsLimit)
	if view.TotalGames == 0 {
		return nil, fmt.Errorf("%w: no games for player %s", domain.ErrNotFound, tag)
	}

	s.logger.Debug().
		Str("tag", tag).
		Int("total_games", view.TotalGames).
		Float64("win_rate", view.WinRate).
		Msg("player stats computed")

	return &view, nil
}

type Overview struct {
	TotalGames   int           `json:"total_games"`
	TotalPlayers int           `json:"total_players"`
	RecentGames  []domain.Game `json:"recent_games"`
}

// GetOverview gathers the landing-page numbers concurrently.
func (s *StatsService) GetOverview(ctx context.Context, recentLimit int) (*Overview, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	var overview Overview
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		count, err := s.games.CountGames(ctx)
		overview.TotalGames = count
		return err
	})
	g.Go(func() error {
		count, err := s.games.CountDistinctPlayerTags(ctx)
		overview.TotalPlayers = count
		return err
	})
	g.Go(func() error {
		recent, err := s.games.SelectRecent(ctx, recentLimit)
		overview.RecentGames = recent
		return err
	})

	if err := g.Wait(); err != nil {
		s.logger.Error().Err(err).Msg("failed to build overview")
		return nil, fmt.Errorf("%w: building overview", domain.ErrPersistence)
	}
	return &overview, nil
}

// GetRecentGames returns the newest stored games, capped at
// MaxRecentGamesLimit.
func (s *StatsService) GetRecentGames(ctx context.Context, limit int) ([]domain.Game, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if limit <= 0 {
		limit = constants.RecentGamesLimit
	}
	if limit > constants.MaxRecentGamesLimit {
		limit = constants.MaxRecentGamesLimit
	}

	games, err := s.games.SelectRecent(ctx, limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to load recent games")
		return nil, fmt.Errorf("%w: loading recent games", domain.ErrPersistence)
	}
	return games, nil
}
