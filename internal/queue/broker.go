package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/models"
)

// requestFunc issues one dispatch attempt and waits for a worker ack.
type requestFunc func(subject string, data []byte, timeout time.Duration) (*nats.Msg, error)

// Broker binds the queue's three endpoints: the reply-oriented submit
// ingress, the fire-and-forget push ingress, and the dispatch egress
// consumed by the worker group. Each loop iteration polls both ingresses
// with a bounded timeout and forwards available envelopes to dispatch.
type Broker struct {
	conn    *nats.Conn
	config  *common.QueueConfig
	logger  arbor.ILogger
	request requestFunc

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewBroker creates a new queue broker
func NewBroker(conn *nats.Conn, config *common.QueueConfig, logger arbor.ILogger) *Broker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Broker{
		conn:    conn,
		config:  config,
		logger:  logger,
		request: conn.Request,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
}

// Start runs the broker loop in the background.
func (b *Broker) Start() error {
	b.logger.Info().
		Str("submit", b.config.SubmitSubject).
		Str("push", b.config.PushSubject).
		Str("dispatch", b.config.DispatchSubject).
		Msg("Starting queue broker")

	go b.run()
	return nil
}

// Stop unbinds the ingresses and waits for the loop to exit. In-flight
// dispatch is best-effort.
func (b *Broker) Stop() error {
	b.cancel()
	<-b.done
	b.logger.Info().Msg("Queue broker stopped")
	return nil
}

// run drives bind → serve → on error unbind, sleep, rebind. The postmortem
// rebind prevents one bad payload or transport hiccup from killing the
// broker.
func (b *Broker) run() {
	defer close(b.done)

	for {
		err := b.serve()
		if b.ctx.Err() != nil {
			return
		}
		b.logger.Error().Err(err).
			Dur("postmortem_sleep", b.config.PostmortemSleep).
			Msg("Broker loop failed, rebinding after sleep")

		select {
		case <-time.After(b.config.PostmortemSleep):
		case <-b.ctx.Done():
			return
		}
	}
}

func (b *Broker) serve() error {
	hwm := b.config.HighWaterMark
	if hwm < 1 {
		hwm = 1
	}

	// Bounded ingress channels: the push side silently drops messages
	// beyond the high-water mark (at-most-once on that path).
	submitCh := make(chan *nats.Msg, hwm)
	pushCh := make(chan *nats.Msg, hwm)

	submitSub, err := b.conn.ChanSubscribe(b.config.SubmitSubject, submitCh)
	if err != nil {
		return fmt.Errorf("failed to bind submit ingress: %w", err)
	}
	defer submitSub.Unsubscribe()

	pushSub, err := b.conn.ChanSubscribe(b.config.PushSubject, pushCh)
	if err != nil {
		return fmt.Errorf("failed to bind push ingress: %w", err)
	}
	defer pushSub.Unsubscribe()

	poll := time.NewTicker(b.config.PollTimeout)
	defer poll.Stop()

	for {
		select {
		case msg := <-pushCh:
			if err := b.forward(msg.Data); err != nil {
				return err
			}
		case msg := <-submitCh:
			if err := b.forward(msg.Data); err != nil {
				return err
			}
			// Echo the envelope back as the acknowledgement.
			if err := msg.Respond(msg.Data); err != nil {
				b.logger.Warn().Err(err).Msg("Failed to acknowledge submit")
			}
		case <-poll.C:
			// bounded poll; nothing pending
		case <-b.ctx.Done():
			return b.ctx.Err()
		}
	}
}

// forward hands one envelope to the dispatch egress, blocking until a
// worker acknowledges receipt. A malformed envelope is dropped with a
// warning instead of tripping the postmortem rebind.
func (b *Broker) forward(data []byte) error {
	envelope, err := models.ParseJobEnvelope(data)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Dropping malformed job envelope")
		return nil
	}

	for {
		_, err := b.request(b.config.DispatchSubject, data, b.config.DispatchTimeout)
		if err == nil {
			b.logger.Debug().
				Int("build_id", envelope.BuildID).
				Bool("ignore_filters", envelope.IgnoreFilters).
				Msg("Job dispatched")
			return nil
		}
		if !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, nats.ErrNoResponders) {
			return fmt.Errorf("dispatch failed: %w", err)
		}
		// No worker free yet; keep waiting cooperatively.
		select {
		case <-b.ctx.Done():
			return b.ctx.Err()
		default:
		}
	}
}
