package interfaces

import (
	"context"

	"github.com/ternarybob/dronebutler/internal/models"
)

// HTTPCacheService is the content-addressed store of upstream API
// interactions, keyed by (method, URL).
type HTTPCacheService interface {
	// Lookup returns the stored interaction or nil on a miss.
	Lookup(ctx context.Context, method, url string) (*models.HTTPInteraction, error)

	// Upsert stores the pair only for GET requests with a 200 response;
	// anything else is a no-op returning nil.
	Upsert(ctx context.Context, req *models.CapturedRequest, resp *models.CapturedResponse) (*models.HTTPInteraction, error)

	// Purge removes all entries.
	Purge(ctx context.Context) error

	Count(ctx context.Context) (int, error)
}
