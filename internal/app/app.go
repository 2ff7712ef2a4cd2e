// Package app wires the application components together in dependency
// order: storage, event bus, HTTP cache, API client, rule set, processor,
// then the broker and worker pool on top.
package app

import (
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/drone"
	"github.com/ternarybob/dronebutler/internal/interfaces"
	"github.com/ternarybob/dronebutler/internal/queue"
	"github.com/ternarybob/dronebutler/internal/rules"
	"github.com/ternarybob/dronebutler/internal/services/events"
	"github.com/ternarybob/dronebutler/internal/services/httpcache"
	"github.com/ternarybob/dronebutler/internal/services/metrics"
	"github.com/ternarybob/dronebutler/internal/services/notify"
	"github.com/ternarybob/dronebutler/internal/services/scheduler"
	"github.com/ternarybob/dronebutler/internal/services/search"
	badgerstorage "github.com/ternarybob/dronebutler/internal/storage/badger"
	"github.com/ternarybob/dronebutler/internal/workers/builds"
)

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	StorageManager interfaces.StorageManager
	EventService   interfaces.EventService
	CacheService   interfaces.HTTPCacheService
	DroneClient    interfaces.DroneClient
	SearchService  interfaces.SearchService
	Notifier       interfaces.Notifier
	RuleSet        *rules.RuleSet
	Processor      interfaces.BuildProcessor
	Metrics        *metrics.Collector
	Registry       *prometheus.Registry

	SchedulerService *scheduler.Service

	conn     *nats.Conn
	Producer interfaces.JobProducer
	Pool     *queue.WorkerPool
}

// New initializes the core pipeline components. Queue connectivity is
// deferred to StartWorkers / ConnectProducer so that one-shot commands
// do not spin up the worker pool.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Storage layer (Badger).
	storageManager, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	app.StorageManager = storageManager
	logger.Debug().
		Str("storage", "badger").
		Str("path", cfg.Storage.Badger.Path).
		Msg("Storage layer initialized")

	// Event bus and the metrics collector that observes it.
	app.EventService = events.NewService(logger)
	app.Registry = prometheus.NewRegistry()
	app.Metrics, err = metrics.NewCollector(app.Registry, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}
	if err := app.Metrics.Bind(app.EventService); err != nil {
		return nil, fmt.Errorf("failed to bind metrics collector: %w", err)
	}

	// HTTP cache in front of the Drone API client.
	app.CacheService = httpcache.NewService(storageManager.InteractionStorage(), app.EventService, logger)
	app.DroneClient = drone.NewClient(&cfg.Drone, app.CacheService, app.EventService, logger)

	// Search side-channel is optional; the processor treats a nil indexer
	// as disabled.
	if cfg.Search.Enabled {
		app.SearchService, err = search.NewIndexer(&cfg.Search, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize search indexer: %w", err)
		}
		logger.Debug().
			Str("host", cfg.Search.Host).
			Int("port", cfg.Search.Port).
			Msg("Search indexer initialized")
	}

	app.Notifier = notify.NewSlackNotifier(&cfg.Slack, logger)

	// Rule set: file-based when configured, built-in default otherwise.
	if cfg.Rules.Path != "" {
		app.RuleSet, err = rules.LoadRuleSet(cfg.Rules.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to load rule set: %w", err)
		}
		logger.Info().Str("path", cfg.Rules.Path).Str("ruleset", app.RuleSet.Name).Msg("Rule set loaded")
	} else {
		app.RuleSet = rules.DefaultRuleSet(cfg.Drone.Owner, cfg.Drone.Repo)
		logger.Info().Str("ruleset", app.RuleSet.Name).Msg("Using built-in rule set")
	}
	app.RuleSet = app.RuleSet.WithLogger(logger)

	app.Processor = builds.NewProcessor(
		&cfg.Drone,
		app.DroneClient,
		app.StorageManager,
		app.RuleSet,
		app.Notifier,
		app.SearchService,
		logger,
	)

	logger.Info().
		Str("owner", cfg.Drone.Owner).
		Str("repo", cfg.Drone.Repo).
		Bool("search_enabled", cfg.Search.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

// StartWorkers connects to the queue server and starts the broker and the
// worker pool, plus the scheduler when enabled.
func (a *App) StartWorkers() error {
	if err := a.connect(); err != nil {
		return err
	}

	a.Pool = queue.NewWorkerPool(a.conn, &a.Config.Queue, &a.Config.Workers, a.Processor, a.Logger)
	if err := a.Pool.Start(); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	if a.Config.Scheduler.Enabled {
		a.SchedulerService = a.NewScheduler()
		if err := a.SchedulerService.Start(); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	return nil
}

// NewScheduler builds a sweep service bound to the current producer.
// Call after queue connectivity is established.
func (a *App) NewScheduler() *scheduler.Service {
	return scheduler.NewService(a.Config, a.DroneClient, a.Producer, a.Logger)
}

// ConnectProducer establishes queue connectivity for one-shot commands
// that only need to enqueue jobs.
func (a *App) ConnectProducer() (interfaces.JobProducer, error) {
	if err := a.connect(); err != nil {
		return nil, err
	}
	return a.Producer, nil
}

func (a *App) connect() error {
	if a.conn != nil {
		return nil
	}
	conn, err := queue.Connect(&a.Config.Queue, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to connect to queue server: %w", err)
	}
	a.conn = conn
	a.Producer = queue.NewProducer(conn, &a.Config.Queue, a.Logger)
	return nil
}

// Close shuts down components in reverse initialization order.
func (a *App) Close() error {
	if a.SchedulerService != nil {
		if err := a.SchedulerService.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop scheduler")
		}
	}

	if a.Pool != nil {
		if err := a.Pool.Stop(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to stop worker pool")
		} else {
			a.Logger.Info().Msg("Worker pool stopped")
		}
	}

	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush producer")
		}
	}

	if a.conn != nil {
		a.conn.Close()
		a.Logger.Info().Msg("Queue connection closed")
	}

	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
		a.Logger.Info().Msg("Storage closed")
	}

	return nil
}
