package interfaces

import "context"

// EventType is a named signal on the in-process event bus.
type EventType string

// Signals published by the core pipeline.
const (
	EventHTTPCacheHit       EventType = "http-cache-hit"
	EventHTTPCacheMiss      EventType = "http-cache-miss"
	EventGetBuilds          EventType = "get-builds"
	EventIterBuildsByPage   EventType = "iter-builds-by-page"
	EventGetBuildInfo       EventType = "get-build-info"
	EventGetBuildStepOutput EventType = "get-build-step-output"
	EventUserCreated        EventType = "user-created"
	EventUserUpdated        EventType = "user-updated"
	EventTokenCreated       EventType = "token-created"
	EventTokenUpdated       EventType = "token-updated"
	EventGithubEvent        EventType = "github-event"
)

// Event carries a signal and its payload.
type Event struct {
	Type    EventType
	Payload map[string]any
}

// EventHandler processes a published event. Handlers run synchronously on
// the publisher's goroutine and must be re-entrant.
type EventHandler func(ctx context.Context, event Event) error

// EventService is the process-local publish/subscribe bus.
type EventService interface {
	Subscribe(eventType EventType, handler EventHandler) error
	// Publish delivers the event to every subscriber synchronously.
	// A failing or panicking subscriber never prevents the others from
	// receiving the signal.
	Publish(ctx context.Context, event Event) error
	Close() error
}
