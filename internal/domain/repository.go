package domain

import (
	"context"
	"time"
)

// InsertResult tags the outcome of an insert guarded by the fingerprint
// uniqueness constraint. A constraint hit is a normal outcome, not an
// error, so the orchestrator can count it as a duplicate.
type InsertResult int

const (
	Inserted InsertResult = iota
	AlreadyExists
)

// GameRepository is the persistence contract for games. Implementations
// must enforce fingerprint uniqueness at the storage layer and write each
// game (row plus player entries) atomically.
type GameRepository interface {
	// FindByFingerprint returns (nil, nil) when no game matches.
	FindByFingerprint(ctx context.Context, fingerprint string) (*Game, error)
	Insert(ctx context.Context, game *Game) (InsertResult, error)
	// SelectByPlayerTag returns games containing the tag, newest first.
	SelectByPlayerTag(ctx context.Context, tag string) ([]Game, error)
	SelectRecent(ctx context.Context, limit int) ([]Game, error)
	CountGames(ctx context.Context) (int, error)
	CountDistinctPlayerTags(ctx context.Context) (int, error)
}

// ClientRepository is the persistence contract for uploader clients.
type ClientRepository interface {
	Insert(ctx context.Context, client *Client) error
	UpdateMetadata(ctx context.Context, client *Client) error
	GetByID(ctx context.Context, id string) (*Client, error)
	GetByKeyDigest(ctx context.Context, digest string) (*Client, error)
	// TouchLastActive moves last_active forward; it never rewinds it.
	TouchLastActive(ctx context.Context, id string, ts time.Time) error
}
