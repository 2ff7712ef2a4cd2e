// Package scheduler periodically sweeps recent builds and enqueues them
// for analysis through the fire-and-forget ingress.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/models"
)

const sweepPageLimit = 25

// Service drives the periodic build sweep.
type Service struct {
	config   *common.Config
	client   interfaces.DroneClient
	producer interfaces.JobProducer
	logger   arbor.ILogger

	cron    *cron.Cron
	mu      sync.Mutex
	running bool
}

// NewService creates a new scheduler service
func NewService(config *common.Config, client interfaces.DroneClient, producer interfaces.JobProducer, logger arbor.ILogger) *Service {
	return &Service{
		config:   config,
		client:   client,
		producer: producer,
		logger:   logger,
		cron:     cron.New(),
	}
}

// Start registers the sweep on the configured cron expression.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.Scheduler.Schedule
	if _, err := s.cron.AddFunc(schedule, func() {
		if err := s.Sweep(context.Background()); err != nil {
			s.logger.Error().Err(err).Msg("Build sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid scheduler expression %q: %w", schedule, err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", schedule).Msg("Scheduler started")
	return nil
}

// Stop halts the cron loop, waiting for a running sweep to finish.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	<-s.cron.Stop().Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
	return nil
}

// Sweep pages through recent builds and enqueues each one. Drops beyond
// the broker's high-water mark are acceptable; the next sweep retries.
func (s *Service) Sweep(ctx context.Context) error {
	owner, repo := s.config.Drone.Owner, s.config.Drone.Repo

	pages, err := s.client.IterBuildsByPage(ctx, owner, repo, sweepPageLimit, s.config.Drone.InitialPage)
	if err != nil {
		return fmt.Errorf("failed to start build sweep for %s/%s: %w", owner, repo, err)
	}

	enqueued := 0
	for page := range pages {
		for _, build := range page.Builds {
			envelope := &models.JobEnvelope{BuildID: build.Number}
			if err := s.producer.EnqueueNoWait(ctx, envelope); err != nil {
				s.logger.Warn().Err(err).Int("build", build.Number).Msg("Failed to enqueue build")
				continue
			}
			enqueued++
		}
	}

	s.logger.Info().
		Str("owner", owner).Str("repo", repo).
		Int("enqueued", enqueued).
		Msg("Build sweep completed")
	return nil
}
