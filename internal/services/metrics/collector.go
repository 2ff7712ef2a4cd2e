// Package metrics exposes pipeline counters by subscribing to the event
// bus. The collector observes; it never influences the pipeline.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/interfaces"
)

// Collector counts pipeline events for Prometheus scraping.
type Collector struct {
	cacheLookups *prometheus.CounterVec
	apiCalls     *prometheus.CounterVec
	logger       arbor.ILogger
}

// NewCollector creates a new metrics collector and registers its counters.
func NewCollector(registry prometheus.Registerer, logger arbor.ILogger) (*Collector, error) {
	c := &Collector{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dronebutler",
			Subsystem: "httpcache",
			Name:      "lookups_total",
			Help:      "HTTP interaction cache lookups by outcome.",
		}, []string{"outcome"}),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dronebutler",
			Subsystem: "drone",
			Name:      "api_calls_total",
			Help:      "Drone API operations by name.",
		}, []string{"operation"}),
		logger: logger,
	}

	for _, collector := range []prometheus.Collector{c.cacheLookups, c.apiCalls} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Bind subscribes the counters to the event bus.
func (c *Collector) Bind(events interfaces.EventService) error {
	subscriptions := map[interfaces.EventType]func(){
		interfaces.EventHTTPCacheHit:       func() { c.cacheLookups.WithLabelValues("hit").Inc() },
		interfaces.EventHTTPCacheMiss:      func() { c.cacheLookups.WithLabelValues("miss").Inc() },
		interfaces.EventGetBuilds:          func() { c.apiCalls.WithLabelValues("get_builds").Inc() },
		interfaces.EventIterBuildsByPage:   func() { c.apiCalls.WithLabelValues("iter_builds_by_page").Inc() },
		interfaces.EventGetBuildInfo:       func() { c.apiCalls.WithLabelValues("get_build_info").Inc() },
		interfaces.EventGetBuildStepOutput: func() { c.apiCalls.WithLabelValues("get_build_step_output").Inc() },
	}

	for eventType, inc := range subscriptions {
		inc := inc
		if err := events.Subscribe(eventType, func(ctx context.Context, e interfaces.Event) error {
			inc()
			return nil
		}); err != nil {
			return err
		}
	}

	c.logger.Debug().Msg("Metrics collector bound to event bus")
	return nil
}
