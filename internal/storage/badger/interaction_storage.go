package badger

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// InteractionStorage implements the InteractionStorage interface for Badger
type InteractionStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewInteractionStorage creates a new InteractionStorage instance
func NewInteractionStorage(db *BadgerDB, logger arbor.ILogger) interfaces.InteractionStorage {
	return &InteractionStorage{
		db:     db,
		logger: logger,
	}
}

// Get fetches an interaction by its "METHOD url" key; nil when absent.
func (s *InteractionStorage) Get(ctx context.Context, key string) (*models.HTTPInteraction, error) {
	var interaction models.HTTPInteraction
	if err := s.db.Store().Get(key, &interaction); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get interaction %s: %w", key, err)
	}
	return &interaction, nil
}

// Upsert stores an interaction, last writer wins. The original CreatedAt
// is preserved across rewrites of the same key.
func (s *InteractionStorage) Upsert(ctx context.Context, interaction *models.HTTPInteraction) error {
	var existing models.HTTPInteraction
	err := s.db.Store().Get(interaction.Key, &existing)
	if err == nil {
		interaction.CreatedAt = existing.CreatedAt
	} else if err != badgerhold.ErrNotFound {
		return fmt.Errorf("failed to get interaction %s: %w", interaction.Key, err)
	}
	interaction.UpdatedAt = time.Now().UTC()

	if err := s.db.Store().Upsert(interaction.Key, interaction); err != nil {
		return fmt.Errorf("failed to upsert interaction %s: %w", interaction.Key, err)
	}
	return nil
}

// Purge removes all captured interactions.
func (s *InteractionStorage) Purge(ctx context.Context) error {
	if err := s.db.Store().DeleteMatching(&models.HTTPInteraction{}, nil); err != nil {
		return fmt.Errorf("failed to purge interactions: %w", err)
	}
	s.logger.Info().Msg("HTTP interaction cache purged")
	return nil
}

// Count returns the number of captured interactions.
func (s *InteractionStorage) Count(ctx context.Context) (int, error) {
	count, err := s.db.Store().Count(&models.HTTPInteraction{}, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to count interactions: %w", err)
	}
	return int(count), nil
}
