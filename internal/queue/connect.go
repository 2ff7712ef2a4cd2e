// Package queue implements the job queue: a broker binding a synchronous
// ingress, a fire-and-forget ingress and a load-balanced egress over NATS,
// plus the producer and worker-pool sides of those endpoints.
package queue

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
)

// Connect opens the NATS connection shared by broker, producer and workers.
func Connect(config *common.QueueConfig, logger arbor.ILogger) (*nats.Conn, error) {
	conn, err := nats.Connect(config.ServerURL,
		nats.Name(common.UserAgent()),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("Queue connection lost")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("Queue connection restored")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to queue server %s: %w", config.ServerURL, err)
	}
	return conn, nil
}
