// Package httpcache caches upstream Drone API responses keyed by
// (method, URL). Only successful GET interactions are retained, so replaying
// a cached response is always equivalent to refetching an immutable resource.
package httpcache

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
)

// Service implements HTTPCacheService on top of the interaction storage.
type Service struct {
	interactions interfaces.InteractionStorage
	events       interfaces.EventService
	logger       arbor.ILogger
}

// NewService creates a new HTTP cache service
func NewService(interactions interfaces.InteractionStorage, events interfaces.EventService, logger arbor.ILogger) interfaces.HTTPCacheService {
	return &Service{
		interactions: interactions,
		events:       events,
		logger:       logger,
	}
}

// Lookup returns the stored interaction for (method, url), or nil on a miss.
// Emits http-cache-hit / http-cache-miss accordingly.
func (s *Service) Lookup(ctx context.Context, method, url string) (*models.HTTPInteraction, error) {
	key := models.InteractionKey(method, url)

	interaction, err := s.interactions.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	eventType := interfaces.EventHTTPCacheHit
	if interaction == nil {
		eventType = interfaces.EventHTTPCacheMiss
	}
	_ = s.events.Publish(ctx, interfaces.Event{
		Type:    eventType,
		Payload: map[string]any{"method": method, "url": url},
	})

	if interaction == nil {
		s.logger.Trace().Str("key", key).Msg("Cache miss")
		return nil, nil
	}

	s.logger.Trace().Str("key", key).Msg("Cache hit")
	return interaction, nil
}

// Upsert stores the request/response pair. Non-GET requests and non-200
// responses are never cached; those calls are a no-op returning nil.
func (s *Service) Upsert(ctx context.Context, req *models.CapturedRequest, resp *models.CapturedResponse) (*models.HTTPInteraction, error) {
	if req.Method != http.MethodGet || resp.Status != http.StatusOK {
		s.logger.Trace().
			Str("method", req.Method).
			Int("status", resp.Status).
			Str("url", req.URL).
			Msg("Interaction not cacheable, skipping")
		return nil, nil
	}

	interaction, err := models.NewHTTPInteraction(req, resp)
	if err != nil {
		return nil, err
	}
	if err := s.interactions.Upsert(ctx, interaction); err != nil {
		return nil, err
	}

	s.logger.Trace().
		Str("key", interaction.Key).
		Int("body_bytes", len(resp.Body)).
		Msg("Interaction cached")

	return interaction, nil
}

// Purge removes all cached interactions.
func (s *Service) Purge(ctx context.Context) error {
	return s.interactions.Purge(ctx)
}

// Count returns the number of cached interactions.
func (s *Service) Count(ctx context.Context) (int, error) {
	return s.interactions.Count(ctx)
}
