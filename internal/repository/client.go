package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"replay-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type ClientRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewClientRepository(sqlDB *sql.DB, logger zerolog.Logger) *ClientRepository {
	return &ClientRepository{db: sqlDB, logger: logger}
}

func (r *ClientRepository) Insert(ctx context.Context, client *domain.Client) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clients (id, hostname, platform, version, api_key_digest, registration_date, last_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		client.ID, client.Hostname, client.Platform, client.Version,
		client.APIKeyDigest, client.RegistrationDate, client.LastActive,
	)
	if err != nil {
		return fmt.Errorf("failed to insert client: %w", err)
	}
	return nil
}

func (r *ClientRepository) UpdateMetadata(ctx context.Context, client *domain.Client) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE clients SET hostname = ?, platform = ?, version = ? WHERE id = ?`,
		client.Hostname, client.Platform, client.Version, client.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client metadata: %w", err)
	}
	return nil
}

func (r *ClientRepository) GetByID(ctx context.Context, id string) (*domain.Client, error) {
	return r.getOne(ctx, `WHERE id = ?`, id)
}

func (r *ClientRepository) GetByKeyDigest(ctx context.Context, digest string) (*domain.Client, error) {
	return r.getOne(ctx, `WHERE api_key_digest = ?`, digest)
}

func (r *ClientRepository) getOne(ctx context.Context, where string, arg any) (*domain.Client, error) {
	var c domain.Client
	err := r.db.QueryRowContext(ctx, `
		SELECT id, hostname, platform, version, api_key_digest, registration_date, last_active
		FROM clients `+where, arg).
		Scan(&c.ID, &c.Hostname, &c.Platform, &c.Version, &c.APIKeyDigest, &c.RegistrationDate, &c.LastActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: client", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query client: %w", err)
	}
	return &c, nil
}

// TouchLastActive only moves last_active forward; a stale timestamp from a
// slow request cannot rewind it.
func (r *ClientRepository) TouchLastActive(ctx context.Context, id string, ts time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE clients SET last_active = ? WHERE id = ? AND last_active < ?`,
		ts, id, ts,
	)
	if err != nil {
		return fmt.Errorf("failed to touch client last_active: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read touch result: %w", err)
	}
	if affected == 0 {
		// Either the client is unknown or last_active is already newer;
		// only the former is worth reporting.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}
