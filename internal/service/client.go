package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"replay-tracker/internal/auth"
	"replay-tracker/internal/constants"
	"replay-tracker/internal/domain"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type ClientService struct {
	clients domain.ClientRepository
	logger  zerolog.Logger
}

func NewClientService(clients domain.ClientRepository, logger zerolog.Logger) *ClientService {
	return &ClientService{clients: clients, logger: logger}
}

// Registration is returned once; the plain API key is never stored or
// shown again.
type Registration struct {
	ClientID string `json:"client_id"`
	APIKey   string `json:"api_key"`
}

func (s *ClientService) Register(ctx context.Context, hostname, platform, version string) (*Registration, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	key, err := auth.NewAPIKey()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	client := &domain.Client{
		ID:               uuid.NewString(),
		Hostname:         hostname,
		Platform:         platform,
		Version:          version,
		APIKeyDigest:     auth.Digest(key),
		RegistrationDate: now,
		LastActive:       now,
	}

	if err := s.clients.Insert(ctx, client); err != nil {
		s.logger.Error().Err(err).Str("hostname", hostname).Msg("failed to register client")
		return nil, fmt.Errorf("%w: registering client", domain.ErrPersistence)
	}

	s.logger.Info().
		Str("client_id", client.ID).
		Str("hostname", hostname).
		Str("platform", platform).
		Str("version", version).
		Msg("client registered")

	return &Registration{ClientID: client.ID, APIKey: key}, nil
}

// Reregister refreshes the metadata of an already-authenticated client and
// counts as activity.
func (s *ClientService) Reregister(ctx context.Context, client *domain.Client, hostname, platform, version string) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	client.Hostname = hostname
	client.Platform = platform
	client.Version = version

	if err := s.clients.UpdateMetadata(ctx, client); err != nil {
		s.logger.Error().Err(err).Str("client_id", client.ID).Msg("failed to update client metadata")
		return fmt.Errorf("%w: updating client metadata", domain.ErrPersistence)
	}
	if err := s.clients.TouchLastActive(ctx, client.ID, time.Now().UTC()); err != nil {
		s.logger.Warn().Err(err).Str("client_id", client.ID).Msg("failed to touch client last_active")
	}
	return nil
}

// Authenticate resolves an API key to its client. Unknown keys surface as
// ErrAuthentication; storage failures keep their own class.
func (s *ClientService) Authenticate(ctx context.Context, apiKey string) (*domain.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	if apiKey == "" {
		return nil, fmt.Errorf("%w: missing api key", domain.ErrAuthentication)
	}

	client, err := s.clients.GetByKeyDigest(ctx, auth.Digest(apiKey))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown api key", domain.ErrAuthentication)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: resolving api key", domain.ErrPersistence)
	}
	return client, nil
}
