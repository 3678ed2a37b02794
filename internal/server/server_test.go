package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"replay-tracker/internal/auth"
	"replay-tracker/internal/domain"
	"replay-tracker/internal/ratelimit"
	"replay-tracker/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testClientID = "client-1"
	testAPIKey   = "test-api-key"
)

type fakeGameRepo struct {
	mu            sync.Mutex
	byFingerprint map[string]*domain.Game
	insertCalls   int
	failInsert    bool
}

func newFakeGameRepo() *fakeGameRepo {
	return &fakeGameRepo{byFingerprint: make(map[string]*domain.Game)}
}

func (f *fakeGameRepo) FindByFingerprint(_ context.Context, fp string) (*domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byFingerprint[fp], nil
}

func (f *fakeGameRepo) Insert(_ context.Context, game *domain.Game) (domain.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.failInsert {
		return domain.Inserted, fmt.Errorf("database is locked")
	}
	stored := *game
	f.byFingerprint[game.Fingerprint] = &stored
	return domain.Inserted, nil
}

func (f *fakeGameRepo) SelectByPlayerTag(_ context.Context, tag string) ([]domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var games []domain.Game
	for _, g := range f.byFingerprint {
		if _, ok := g.Self(tag); ok {
			games = append(games, *g)
		}
	}
	return games, nil
}

func (f *fakeGameRepo) SelectRecent(_ context.Context, limit int) ([]domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var games []domain.Game
	for _, g := range f.byFingerprint {
		if len(games) == limit {
			break
		}
		games = append(games, *g)
	}
	return games, nil
}

func (f *fakeGameRepo) CountGames(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byFingerprint), nil
}

func (f *fakeGameRepo) CountDistinctPlayerTags(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tags := make(map[string]bool)
	for _, g := range f.byFingerprint {
		for _, p := range g.Players {
			tags[p.Tag] = true
		}
	}
	return len(tags), nil
}

type fakeClientRepo struct {
	mu      sync.Mutex
	clients map[string]*domain.Client
	touches int
}

func newFakeClientRepo() *fakeClientRepo {
	return &fakeClientRepo{clients: make(map[string]*domain.Client)}
}

func (f *fakeClientRepo) Insert(_ context.Context, c *domain.Client) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clients[c.ID] = c
	return nil
}

func (f *fakeClientRepo) UpdateMetadata(_ context.Context, c *domain.Client) error {
	return nil
}

func (f *fakeClientRepo) GetByID(_ context.Context, id string) (*domain.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.clients[id]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: client", domain.ErrNotFound)
}

func (f *fakeClientRepo) GetByKeyDigest(_ context.Context, digest string) (*domain.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.clients {
		if c.APIKeyDigest == digest {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: client", domain.ErrNotFound)
}

func (f *fakeClientRepo) TouchLastActive(_ context.Context, id string, ts time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return nil
}

// newTestMux builds the full route table over in-memory repositories with
// one pre-registered client.
func newTestMux(t *testing.T, gateLimit int) (*http.ServeMux, *fakeGameRepo, *fakeClientRepo) {
	t.Helper()

	games := newFakeGameRepo()
	clients := newFakeClientRepo()
	clients.clients[testClientID] = &domain.Client{
		ID:           testClientID,
		APIKeyDigest: auth.Digest(testAPIKey),
	}

	nop := zerolog.Nop()
	gate := ratelimit.New(gateLimit, time.Minute, 16)
	srv := NewTrackerServer(
		service.NewUploadService(games, clients, gate, nop),
		service.NewStatsService(games, nop),
		service.NewClientService(clients, nop),
		nop,
	)

	mux := http.NewServeMux()
	srv.Routes(mux)
	return mux, games, clients
}

func uploadBody(t *testing.T, clientID string) *bytes.Buffer {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"client_id": clientID,
		"games": []map[string]any{{
			"stage_id":   31,
			"start_time": "2023-04-01T19:30:00Z",
			"last_frame": 10403,
			"player_data": []map[string]any{
				{"player_tag": "ALICE#1", "character_name": "Fox", "result": "Win"},
				{"player_tag": "BOB#2", "character_name": "Marth", "result": "Loss"},
			},
		}},
	})
	require.NoError(t, err)
	return bytes.NewBuffer(body)
}

func doUpload(mux *http.ServeMux, body *bytes.Buffer, apiKey string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/games/upload", body)
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestUploadSuccess(t *testing.T) {
	mux, games, _ := newTestMux(t, 100)

	rec := doUpload(mux, uploadBody(t, testClientID), testAPIKey)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, 1, resp.NewGames)
	assert.Equal(t, 1, games.insertCalls)
}

func TestUploadClientIDMismatch(t *testing.T) {
	mux, games, clients := newTestMux(t, 100)

	rec := doUpload(mux, uploadBody(t, "someone-else"), testAPIKey)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 0, games.insertCalls, "mismatched batch must not be processed")
	assert.Equal(t, 0, clients.touches, "mismatched batch is not activity")
}

func TestUploadMissingKey(t *testing.T) {
	mux, games, _ := newTestMux(t, 100)

	rec := doUpload(mux, uploadBody(t, testClientID), "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, games.insertCalls)
}

func TestUploadUnknownKey(t *testing.T) {
	mux, _, _ := newTestMux(t, 100)

	rec := doUpload(mux, uploadBody(t, testClientID), "wrong-key")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUploadRateLimited(t *testing.T) {
	mux, _, _ := newTestMux(t, 1)

	first := doUpload(mux, uploadBody(t, testClientID), testAPIKey)
	require.Equal(t, http.StatusOK, first.Code)

	second := doUpload(mux, uploadBody(t, testClientID), testAPIKey)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestUploadPersistenceFailure(t *testing.T) {
	mux, games, _ := newTestMux(t, 100)
	games.failInsert = true

	rec := doUpload(mux, uploadBody(t, testClientID), testAPIKey)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, 0, resp.NewGames)
	assert.Equal(t, 1, resp.Errors, "partial counts are still reported")
}

func TestPlayerStatsNotFound(t *testing.T) {
	mux, _, _ := newTestMux(t, 100)

	req := httptest.NewRequest(http.MethodGet, "/api/players/NOBODY%231/stats", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPlayerStatsFound(t *testing.T) {
	mux, _, _ := newTestMux(t, 100)

	rec := doUpload(mux, uploadBody(t, testClientID), testAPIKey)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/players/ALICE%231/stats", nil)
	statsRec := httptest.NewRecorder()
	mux.ServeHTTP(statsRec, req)

	require.Equal(t, http.StatusOK, statsRec.Code)
	var view struct {
		TotalGames int     `json:"total_games"`
		WinRate    float64 `json:"win_rate"`
	}
	require.NoError(t, json.Unmarshal(statsRec.Body.Bytes(), &view))
	assert.Equal(t, 1, view.TotalGames)
	assert.Equal(t, 100.0, view.WinRate)
}
