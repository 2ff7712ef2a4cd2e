package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
)

// WorkerPool runs one broker task plus count-1 puller workers. Workers join
// the dispatch queue group, so each job is handled by exactly one of them.
type WorkerPool struct {
	conn      *nats.Conn
	queueCfg  *common.QueueConfig
	workerCfg *common.WorkersConfig
	processor interfaces.BuildProcessor
	logger    arbor.ILogger

	broker *Broker
	ctx    context.Context
	cancel context.CancelFunc
	done   []chan struct{}
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(conn *nats.Conn, queueCfg *common.QueueConfig, workerCfg *common.WorkersConfig, processor interfaces.BuildProcessor, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		conn:      conn,
		queueCfg:  queueCfg,
		workerCfg: workerCfg,
		processor: processor,
		logger:    logger,
		broker:    NewBroker(conn, queueCfg, logger),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the broker and the puller workers.
func (wp *WorkerPool) Start() error {
	if wp.workerCfg.Count < 2 {
		return fmt.Errorf("worker pool needs at least 2 tasks, got %d", wp.workerCfg.Count)
	}

	if err := wp.broker.Start(); err != nil {
		return err
	}

	pullers := wp.workerCfg.Count - 1
	wp.logger.Info().
		Int("pullers", pullers).
		Str("worker_group", wp.queueCfg.WorkerGroup).
		Msg("Starting worker pool")

	for i := 0; i < pullers; i++ {
		done := make(chan struct{})
		wp.done = append(wp.done, done)
		go wp.worker(common.NewWorkerID(), done)
	}
	return nil
}

// Stop stops accepting new jobs and waits for workers to finish their
// current job. Jobs are never interrupted mid-processing.
func (wp *WorkerPool) Stop() error {
	wp.cancel()
	_ = wp.broker.Stop()
	for _, done := range wp.done {
		<-done
	}
	wp.logger.Info().Msg("Worker pool stopped")
	return nil
}

// worker polls the dispatch queue group for envelopes and runs the build
// processor. The should-run check happens between jobs only.
func (wp *WorkerPool) worker(workerID string, done chan struct{}) {
	defer close(done)

	sub, err := wp.conn.QueueSubscribeSync(wp.queueCfg.DispatchSubject, wp.queueCfg.WorkerGroup)
	if err != nil {
		wp.logger.Error().Err(err).Str("worker_id", workerID).Msg("Worker failed to join dispatch group")
		return
	}
	defer sub.Unsubscribe()

	wp.logger.Debug().Str("worker_id", workerID).Msg("Worker started")

	for {
		if wp.ctx.Err() != nil {
			return
		}

		msg, err := sub.NextMsg(wp.workerCfg.PollTimeout)
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			if wp.ctx.Err() != nil {
				return
			}
			wp.logger.Error().Err(err).Str("worker_id", workerID).Msg("Worker poll failed")
			wp.sleep(wp.workerCfg.PostmortemSleep)
			continue
		}

		// Ack receipt so the broker's dispatch unblocks.
		if msg.Reply != "" {
			_ = msg.Respond(msg.Data)
		}

		wp.handle(workerID, msg.Data)
	}
}

func (wp *WorkerPool) handle(workerID string, data []byte) {
	envelope, err := models.ParseJobEnvelope(data)
	if err != nil {
		wp.logger.Warn().Err(err).Str("worker_id", workerID).Msg("Discarding malformed job envelope")
		return
	}

	wp.logger.Info().
		Str("worker_id", workerID).
		Int("build_id", envelope.BuildID).
		Bool("ignore_filters", envelope.IgnoreFilters).
		Msg("Processing job")

	if err := wp.processor.Process(wp.ctx, envelope.BuildID, envelope.IgnoreFilters); err != nil {
		wp.logger.Error().Err(err).
			Str("worker_id", workerID).
			Int("build_id", envelope.BuildID).
			Msg("Job failed")
		wp.sleep(wp.workerCfg.PostmortemSleep)
	}
}

func (wp *WorkerPool) sleep(d time.Duration) {
	select {
	case <-time.After(d):
	case <-wp.ctx.Done():
	}
}
