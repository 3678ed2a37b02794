package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"replay-tracker/internal/constants"
	"replay-tracker/internal/domain"
	"replay-tracker/internal/ratelimit"
	"replay-tracker/internal/replay"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Item statuses reported in the per-game detail of an upload summary.
const (
	StatusNew       = "new"
	StatusDuplicate = "duplicate"
	StatusError     = "error"
)

type GameDetail struct {
	Index       int    `json:"index"`
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint,omitempty"`
	GameID      string `json:"game_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

type UploadSummary struct {
	NewGames   int          `json:"new_games"`
	Duplicates int          `json:"duplicates"`
	Errors     int          `json:"errors"`
	Details    []GameDetail `json:"details"`
}

type UploadService struct {
	games   domain.GameRepository
	clients domain.ClientRepository
	gate    *ratelimit.Window
	logger  zerolog.Logger
}

func NewUploadService(games domain.GameRepository, clients domain.ClientRepository, gate *ratelimit.Window, logger zerolog.Logger) *UploadService {
	return &UploadService{games: games, clients: clients, gate: gate, logger: logger}
}

// ProcessUpload ingests one batch for an already-authenticated client.
// Items are isolated: a malformed game only bumps the error count for its
// own slot. A storage failure is systemic; the failed item and everything
// after it are counted as errors, and the summary is returned together
// with the wrapped ErrPersistence so the transport can answer 5xx while
// still reporting the work that did complete.
func (s *UploadService) ProcessUpload(ctx context.Context, clientID string, rawGames []json.RawMessage) (*UploadSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.RequestTimeout)
	defer cancel()

	if !s.gate.Allow(clientID) {
		s.logger.Warn().Str("client_id", clientID).Msg("upload batch rejected by rate gate")
		return nil, fmt.Errorf("%w: client %s", domain.ErrRateLimited, clientID)
	}

	s.logger.Info().
		Str("client_id", clientID).
		Int("batch_size", len(rawGames)).
		Msg("processing upload batch")

	summary := &UploadSummary{Details: make([]GameDetail, 0, len(rawGames))}
	var persistErr error

	for i, raw := range rawGames {
		if persistErr != nil {
			summary.Errors++
			summary.Details = append(summary.Details, GameDetail{
				Index: i, Status: StatusError, Reason: "storage unavailable",
			})
			continue
		}

		detail, err := s.processGame(ctx, clientID, i, raw)
		switch detail.Status {
		case StatusNew:
			summary.NewGames++
		case StatusDuplicate:
			summary.Duplicates++
		case StatusError:
			summary.Errors++
		}
		summary.Details = append(summary.Details, detail)

		if err != nil && !errors.Is(err, domain.ErrValidation) {
			persistErr = fmt.Errorf("%w: batch aborted at item %d", domain.ErrPersistence, i)
		}
	}

	// One liveness update per batch. An authenticated request is evidence
	// of activity even when every item failed validation.
	if err := s.clients.TouchLastActive(ctx, clientID, time.Now().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("client_id", clientID).Msg("failed to touch client last_active")
		if persistErr == nil {
			persistErr = fmt.Errorf("%w: touching client last_active", domain.ErrPersistence)
		}
	}

	s.logger.Info().
		Str("client_id", clientID).
		Int("new_games", summary.NewGames).
		Int("duplicates", summary.Duplicates).
		Int("errors", summary.Errors).
		Msg("upload batch processed")

	return summary, persistErr
}

// processGame handles one batch item. A returned validation error only
// concerns this item; any other error is a storage failure the caller
// must treat as fatal for the rest of the batch.
func (s *UploadService) processGame(ctx context.Context, clientID string, index int, raw json.RawMessage) (GameDetail, error) {
	game, err := replay.NormalizeJSON(raw)
	if err != nil {
		s.logger.Debug().Err(err).Int("index", index).Msg("rejected game record")
		return GameDetail{Index: index, Status: StatusError, Reason: err.Error()}, err
	}

	// Fast path before the insert; the unique constraint still backstops
	// the race between the check and the write.
	existing, err := s.games.FindByFingerprint(ctx, game.Fingerprint)
	if err != nil {
		s.logger.Error().Err(err).Int("index", index).Msg("fingerprint lookup failed")
		return GameDetail{Index: index, Status: StatusError, Fingerprint: game.Fingerprint, Reason: "storage unavailable"}, err
	}
	if existing != nil {
		return GameDetail{Index: index, Status: StatusDuplicate, Fingerprint: game.Fingerprint, GameID: existing.ID}, nil
	}

	game.ID = uuid.NewString()
	game.ClientID = clientID
	game.UploadDate = time.Now().UTC()

	result, err := s.games.Insert(ctx, game)
	if err != nil {
		s.logger.Error().Err(err).Int("index", index).Msg("game insert failed")
		return GameDetail{Index: index, Status: StatusError, Fingerprint: game.Fingerprint, Reason: "storage unavailable"}, err
	}
	if result == domain.AlreadyExists {
		// Lost the dedup race to a concurrent upload of the same match.
		return GameDetail{Index: index, Status: StatusDuplicate, Fingerprint: game.Fingerprint}, nil
	}

	s.logger.Debug().
		Str("game_id", game.ID).
		Str("fingerprint", game.Fingerprint).
		Msg("game stored")
	return GameDetail{Index: index, Status: StatusNew, Fingerprint: game.Fingerprint, GameID: game.ID}, nil
}
