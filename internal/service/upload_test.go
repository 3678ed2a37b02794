package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"replay-tracker/internal/domain"
	"replay-tracker/internal/ratelimit"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGameRepo is an in-memory GameRepository keyed by fingerprint.
type fakeGameRepo struct {
	mu            sync.Mutex
	byFingerprint map[string]*domain.Game
	insertCalls   int
	failInsertOn  int // 1-based insert call that fails; 0 = never
	failFind      bool
	raceOnInsert  bool // report AlreadyExists even for unseen fingerprints
	lastLimit     int
}

func newFakeGameRepo() *fakeGameRepo {
	return &fakeGameRepo{byFingerprint: make(map[string]*domain.Game)}
}

func (f *fakeGameRepo) FindByFingerprint(_ context.Context, fp string) (*domain.Game, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFind {
		return nil, fmt.Errorf("connection refused")
	}
	return f.byFingerprint[fp], nil
}

func (f *fakeGameRepo) Insert(_ context.Context, game *domain.Game) (domain.InsertResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	if f.failInsertOn != 0 && f.insertCalls >= f.failInsertOn {
		return domain.Inserted, fmt.Errorf("database is locked")
	}
	if f.raceOnInsert {
		return domain.AlreadyExists, nil
	}
	if _, exists := f.byFingerprint[game.Fingerprint]; exists {
		return domain.AlreadyExists, nil
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
	f.lastLimit = limit
	var games []domain.Game
	for _, g := range f.byFingerprint {
		games = append(games, *g)
	}
	if len(games) > limit {
		games = games[:limit]
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

// fakeClientRepo records liveness touches.
type fakeClientRepo struct {
	mu        sync.Mutex
	clients   map[string]*domain.Client
	touches   []time.Time
	failTouch bool
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
	if f.failTouch {
		return fmt.Errorf("database is locked")
	}
	f.touches = append(f.touches, ts)
	return nil
}

func newTestUploadService(games *fakeGameRepo, clients *fakeClientRepo) *UploadService {
	gate := ratelimit.New(100, time.Minute, 16)
	return NewUploadService(games, clients, gate, zerolog.Nop())
}

func rawGameDoc(t *testing.T, startTime string, lastFrame int, tags ...string) json.RawMessage {
	t.Helper()
	players := make([]map[string]any, len(tags))
	for i, tag := range tags {
		players[i] = map[string]any{"player_tag": tag, "character_name": "Fox"}
	}
	doc, err := json.Marshal(map[string]any{
		"stage_id":    31,
		"start_time":  startTime,
		"last_frame":  lastFrame,
		"player_data": players,
	})
	require.NoError(t, err)
	return doc
}

func TestProcessUploadEmptyBatch(t *testing.T) {
	games := newFakeGameRepo()
	clients := newFakeClientRepo()
	svc := newTestUploadService(games, clients)

	summary, err := svc.ProcessUpload(context.Background(), "client-1", nil)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.NewGames)
	assert.Equal(t, 0, summary.Duplicates)
	assert.Equal(t, 0, summary.Errors)
	assert.Len(t, clients.touches, 1, "empty batch still counts as activity")
}

func TestProcessUploadIsolatesInvalidItems(t *testing.T) {
	games := newFakeGameRepo()
	clients := newFakeClientRepo()
	svc := newTestUploadService(games, clients)

	batch := []json.RawMessage{
		rawGameDoc(t, "2023-04-01T19:00:00Z", 9000, "A#1", "B#2"),
		rawGameDoc(t, "2023-04-01T19:10:00Z", 9100, "A#1"), // one player
		rawGameDoc(t, "2023-04-01T19:20:00Z", 9200, "A#1", "C#3"),
	}

	summary, err := svc.ProcessUpload(context.Background(), "client-1", batch)
	require.NoError(t, err)

	assert.Equal(t, 2, summary.NewGames)
	assert.Equal(t, 0, summary.Duplicates)
	assert.Equal(t, 1, summary.Errors)
	require.Len(t, summary.Details, 3)
	assert.Equal(t, StatusError, summary.Details[1].Status)
	assert.NotEmpty(t, summary.Details[1].Reason)
	assert.Len(t, clients.touches, 1)
}

func TestProcessUploadDuplicateWithinBatch(t *testing.T) {
	games := newFakeGameRepo()
	clients := newFakeClientRepo()
	svc := newTestUploadService(games, clients)

	doc := rawGameDoc(t, "2023-04-01T19:00:00Z", 9000, "A#1", "B#2")
	summary, err := svc.ProcessUpload(context.Background(), "client-1", []json.RawMessage{doc, doc})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.NewGames)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 0, summary.Errors)
}

func TestProcessUploadDuplicateAcrossClients(t *testing.T) {
	games := newFakeGameRepo()
	clients := newFakeClientRepo()
	svc := newTestUploadService(games, clients)

	// The same match captured by two machines shares its fingerprint.
	doc := rawGameDoc(t, "2023-04-01T19:00:00Z", 9000, "A#1", "B#2")

	first, err := svc.ProcessUpload(context.Background(), "client-1", []json.RawMessage{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, first.NewGames)

	second, err := svc.ProcessUpload(context.Background(), "client-2", []json.RawMessage{doc})
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewGames)
	assert.Equal(t, 1, second.Duplicates)
	assert.Equal(t, 0, second.Errors)

	count, err := games.CountGames(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestProcessUploadReclassifiesInsertRace(t *testing.T) {
	games := newFakeGameRepo()
	games.raceOnInsert = true
	clients := newFakeClientRepo()
	svc := newTestUploadService(games, clients)

	doc := rawGameDoc(t, "2023-04-01T19:00:00Z", 9000, "A#1", "B#2")
	summary, err := svc.ProcessUpload(context.Background(), "client-1", []json.RawMessage{doc})
	require.NoError(t, err)

	assert.Equal(t, 0, summary.NewGames)
	assert.Equal(t, 1, summary.Duplicates)
	assert.Equal(t, 0, summary.Errors)
}

func TestProcessUploadPersistenceOutage(t *testing.T) {
	games := newFakeGameRepo()
	games.failInsertOn = 2
	clients := newFakeClientRepo()
	svc := newTestUploadService(games, clients)

	batch := []json.RawMessage{
		rawGameDoc(t, "2023-04-01T19:00:00Z", 9000, "A#1", "B#2"),
		rawGameDoc(t, "2023-04-01T19:10:00Z", 9100, "A#1", "B#2"),
		rawGameDoc(t, "2023-04-01T19:20:00Z", 9200, "A#1", "B#2"),
	}

	summary, err := svc.ProcessUpload(context.Background(), "client-1", batch)
	require.ErrorIs(t, err, domain.ErrPersistence)
	require.NotNil(t, summary, "completed work must still be reported")

	assert.Equal(t, 1, summary.NewGames)
	assert.Equal(t, 2, summary.Errors, "failed and remaining items are errors, not skips")
	assert.Equal(t, StatusError, summary.Details[1].Status)
	assert.Equal(t, StatusError, summary.Details[2].Status)
	assert.Len(t, clients.touches, 1, "liveness touch is still attempted")
}

func TestProcessUploadTouchFailure(t *testing.T) {
	games := newFakeGameRepo()
	clients := newFakeClientRepo()
	clients.failTouch = true
	svc := newTestUploadService(games, clients)

	doc := rawGameDoc(t, "2023-04-01T19:00:00Z", 9000, "A#1", "B#2")
	summary, err := svc.ProcessUpload(context.Background(), "client-1", []json.RawMessage{doc})

	require.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 1, summary.NewGames, "stored games keep their outcome")
}

func TestProcessUploadRateLimited(t *testing.T) {
	games := newFakeGameRepo()
	clients := newFakeClientRepo()
	gate := ratelimit.New(1, time.Minute, 16)
	svc := NewUploadService(games, clients, gate, zerolog.Nop())

	_, err := svc.ProcessUpload(context.Background(), "client-1", nil)
	require.NoError(t, err)

	_, err = svc.ProcessUpload(context.Background(), "client-1", nil)
	require.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Len(t, clients.touches, 1, "rejected batch is not activity")
}
