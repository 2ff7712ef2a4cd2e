package queue

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
)

// Producer is the client side of the broker's two ingresses.
type Producer struct {
	conn   *nats.Conn
	config *common.QueueConfig
	logger arbor.ILogger
}

// NewProducer creates a new job producer
func NewProducer(conn *nats.Conn, config *common.QueueConfig, logger arbor.ILogger) interfaces.JobProducer {
	return &Producer{
		conn:   conn,
		config: config,
		logger: logger,
	}
}

// Enqueue submits through the synchronous ingress and blocks until the
// broker echoes the envelope back.
func (p *Producer) Enqueue(ctx context.Context, envelope *models.JobEnvelope) error {
	data, err := envelope.ToJSON()
	if err != nil {
		return err
	}

	reply, err := p.conn.RequestWithContext(ctx, p.config.SubmitSubject, data)
	if err != nil {
		return fmt.Errorf("failed to enqueue build %d: %w", envelope.BuildID, err)
	}
	if string(reply.Data) != string(data) {
		return fmt.Errorf("broker acknowledged build %d with a mismatched envelope", envelope.BuildID)
	}

	p.logger.Debug().Int("build_id", envelope.BuildID).Msg("Job enqueued")
	return nil
}

// EnqueueNoWait submits through the fire-and-forget ingress. The broker
// silently drops messages beyond its high-water mark.
func (p *Producer) EnqueueNoWait(ctx context.Context, envelope *models.JobEnvelope) error {
	data, err := envelope.ToJSON()
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.config.PushSubject, data); err != nil {
		return fmt.Errorf("failed to push build %d: %w", envelope.BuildID, err)
	}
	return nil
}

// Close flushes pending publishes.
func (p *Producer) Close() error {
	return p.conn.Flush()
}
