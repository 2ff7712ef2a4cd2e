package interfaces

import (
	"context"

	"github.com/ternarybob/dronebutler/internal/models"
)

// JobProducer enqueues build-analysis jobs with the broker.
type JobProducer interface {
	// Enqueue submits through the reply-oriented ingress and blocks until
	// the broker echoes the envelope back (synchronous back-pressure).
	Enqueue(ctx context.Context, envelope *models.JobEnvelope) error

	// EnqueueNoWait submits through the fire-and-forget ingress. Messages
	// beyond the broker's high-water mark are silently dropped.
	EnqueueNoWait(ctx context.Context, envelope *models.JobEnvelope) error

	Close() error
}

// BuildProcessor drives the per-job fetch/gate/persist/analyze sequence.
type BuildProcessor interface {
	Process(ctx context.Context, buildID int, ignoreFilters bool) error
}
