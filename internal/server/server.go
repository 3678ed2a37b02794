package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"replay-tracker/internal/constants"
	"replay-tracker/internal/domain"
	"replay-tracker/internal/middleware"
	"replay-tracker/internal/service"

	"github.com/rs/zerolog"
)

// TrackerServer exposes the upload and stats surfaces over JSON HTTP.
type TrackerServer struct {
	uploadSvc *service.UploadService
	statsSvc  *service.StatsService
	clientSvc *service.ClientService
	logger    zerolog.Logger
}

func NewTrackerServer(uploadSvc *service.UploadService, statsSvc *service.StatsService, clientSvc *service.ClientService, logger zerolog.Logger) *TrackerServer {
	return &TrackerServer{uploadSvc: uploadSvc, statsSvc: statsSvc, clientSvc: clientSvc, logger: logger}
}

// Routes registers all endpoints on mux. Authenticated routes are wrapped
// with the API-key middleware here so main only assembles the outer chain.
func (s *TrackerServer) Routes(mux *http.ServeMux) {
	authRequired := middleware.APIKeyAuth(s.clientSvc, s.logger)

	mux.HandleFunc("POST /api/clients/register", s.handleRegister)
	mux.Handle("POST /api/clients/refresh", authRequired(http.HandlerFunc(s.handleRefresh)))
	mux.Handle("POST /api/games/upload", authRequired(http.HandlerFunc(s.handleUpload)))
	mux.HandleFunc("GET /api/players/{tag}/stats", s.handlePlayerStats)
	mux.HandleFunc("GET /api/games/recent", s.handleRecentGames)
	mux.HandleFunc("GET /api/overview", s.handleOverview)
}

type registerRequest struct {
	Hostname string `json:"hostname"`
	Platform string `json:"platform"`
	Version  string `json:"version"`
}

func (s *TrackerServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed registration body")
		return
	}

	reg, err := s.clientSvc.Register(r.Context(), req.Hostname, req.Platform, req.Version)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, reg)
}

// handleRefresh lets an already-registered client report fresh metadata
// without rotating its key.
func (s *TrackerServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	client := middleware.GetClient(r.Context())
	if client == nil {
		s.writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed registration body")
		return
	}

	if err := s.clientSvc.Reregister(r.Context(), client, req.Hostname, req.Platform, req.Version); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

type uploadRequest struct {
	ClientID string            `json:"client_id"`
	Games    []json.RawMessage `json:"games"`
}

type uploadResponse struct {
	Status     string               `json:"status"`
	NewGames   int                  `json:"new_games"`
	Duplicates int                  `json:"duplicates"`
	Errors     int                  `json:"errors"`
	Details    []service.GameDetail `json:"details"`
}

func (s *TrackerServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	client := middleware.GetClient(r.Context())
	if client == nil {
		s.writeError(w, http.StatusUnauthorized, "authentication failed")
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed upload body")
		return
	}

	// The payload may name the owning client; it must match the key used.
	if req.ClientID != "" && req.ClientID != client.ID {
		s.logger.Warn().
			Str("authenticated", client.ID).
			Str("claimed", req.ClientID).
			Msg("upload client id mismatch")
		s.writeError(w, http.StatusForbidden, domain.ErrClientMismatch.Error())
		return
	}

	summary, err := s.uploadSvc.ProcessUpload(r.Context(), client.ID, req.Games)
	if err != nil && summary == nil {
		s.writeServiceError(w, err)
		return
	}

	resp := uploadResponse{
		Status:     "success",
		NewGames:   summary.NewGames,
		Duplicates: summary.Duplicates,
		Errors:     summary.Errors,
		Details:    summary.Details,
	}
	status := http.StatusOK
	if err != nil {
		// Partial batch: report completed work, but as a server failure.
		resp.Status = "error"
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, resp)
}

func (s *TrackerServer) handlePlayerStats(w http.ResponseWriter, r *http.Request) {
	tag := r.PathValue("tag")
	if tag == "" {
		s.writeError(w, http.StatusBadRequest, "missing player tag")
		return
	}

	view, err := s.statsSvc.GetPlayerStats(r.Context(), tag)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, view)
}

type gameView struct {
	ID        string            `json:"id"`
	StartTime time.Time         `json:"start_time"`
	LastFrame int               `json:"last_frame"`
	StageID   int               `json:"stage_id"`
	GameType  string            `json:"game_type"`
	Players   []playerEntryView `json:"players"`
}

type playerEntryView struct {
	Tag           string `json:"tag"`
	CharacterName string `json:"character_name"`
	Result        string `json:"result"`
}

func (s *TrackerServer) handleRecentGames(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	games, err := s.statsSvc.GetRecentGames(r.Context(), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"games": toGameViews(games)})
}

func (s *TrackerServer) handleOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.statsSvc.GetOverview(r.Context(), constants.RecentGamesLimit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"total_games":   overview.TotalGames,
		"total_players": overview.TotalPlayers,
		"recent_games":  toGameViews(overview.RecentGames),
	})
}

func toGameViews(games []domain.Game) []gameView {
	views := make([]gameView, len(games))
	for i, g := range games {
		players := make([]playerEntryView, len(g.Players))
		for j, p := range g.Players {
			players[j] = playerEntryView{
				Tag:           p.Tag,
				CharacterName: p.CharacterName,
				Result:        string(p.Result),
			}
		}
		views[i] = gameView{
			ID:        g.ID,
			StartTime: g.StartTime,
			LastFrame: g.LastFrame,
			StageID:   g.StageID,
			GameType:  g.GameType,
			Players:   players,
		}
	}
	return views
}

func (s *TrackerServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *TrackerServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"status": "error", "error": msg})
}

// writeServiceError maps the error taxonomy onto HTTP statuses.
func (s *TrackerServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.writeError(w, http.StatusNotFound, "no data")
	case errors.Is(err, domain.ErrAuthentication):
		s.writeError(w, http.StatusUnauthorized, "authentication failed")
	case errors.Is(err, domain.ErrClientMismatch):
		s.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		s.writeError(w, http.StatusTooManyRequests, "upload rate limit exceeded")
	case errors.Is(err, domain.ErrValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
