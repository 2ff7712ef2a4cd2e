package interfaces

import (
	"context"

	"github.com/ternarybob/dronebutler/internal/models"
)

// SearchService indexes build documents for external search.
// Indexing is best-effort: callers log and swallow failures.
type SearchService interface {
	IndexBuild(ctx context.Context, doc *models.BuildDocument) error
}
