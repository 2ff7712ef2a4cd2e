package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
// Priority: defaults -> YAML file -> environment variables.
type Config struct {
	Environment string          `yaml:"environment"` // "development" or "production"
	Drone       DroneConfig     `yaml:"drone"`
	Queue       QueueConfig     `yaml:"queue"`
	Workers     WorkersConfig   `yaml:"workers"`
	Storage     StorageConfig   `yaml:"storage"`
	Search      SearchConfig    `yaml:"search"`
	Slack       SlackConfig     `yaml:"slack"`
	Rules       RulesConfig     `yaml:"rules"`
	Scheduler   SchedulerConfig `yaml:"scheduler"`
	Logging     LoggingConfig   `yaml:"logging"`
}

// DroneConfig holds the upstream Drone server connection parameters.
type DroneConfig struct {
	URL            string        `yaml:"url" validate:"required"`
	AccessToken    string        `yaml:"access_token" validate:"required"`
	Owner          string        `yaml:"owner"`
	Repo           string        `yaml:"repo"`
	MaxPages       int           `yaml:"max_pages"`       // Max pages fetched per GetBuilds call
	MaxBuilds      int           `yaml:"max_builds"`      // Max builds returned per GetBuilds call
	InitialPage    int           `yaml:"initial_page"`    // First page number for pagination
	RequestTimeout time.Duration `yaml:"request_timeout"` // Per-request HTTP deadline
	RateLimit      time.Duration `yaml:"rate_limit"`      // Minimum interval between uncached requests
}

// QueueConfig holds the broker endpoint addresses and back-pressure bounds.
type QueueConfig struct {
	ServerURL       string        `yaml:"server_url"`       // NATS server URL
	SubmitSubject   string        `yaml:"submit_subject"`   // Reply-oriented ingress (ack per message)
	PushSubject     string        `yaml:"push_subject"`     // Fire-and-forget ingress
	DispatchSubject string        `yaml:"dispatch_subject"` // Fan-out egress consumed by workers
	WorkerGroup     string        `yaml:"worker_group"`     // Queue group name for worker fan-out
	HighWaterMark   int           `yaml:"high_water_mark"`  // Per-ingress buffered message bound
	PollTimeout     time.Duration `yaml:"poll_timeout"`     // Bounded poll interval
	PostmortemSleep time.Duration `yaml:"postmortem_sleep"` // Sleep before rebind after a loop error
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"` // Per-attempt wait for a free worker
}

// WorkersConfig controls the worker pool.
type WorkersConfig struct {
	Count           int           `yaml:"count"`            // Total tasks: 1 broker + count-1 pullers
	PollTimeout     time.Duration `yaml:"poll_timeout"`     // Per-worker poll bound
	PostmortemSleep time.Duration `yaml:"postmortem_sleep"` // Sleep after an unhandled job error
}

type StorageConfig struct {
	Badger BadgerConfig `yaml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration.
type BadgerConfig struct {
	Path           string `yaml:"path"`             // Database directory path
	InMemory       bool   `yaml:"in_memory"`        // Run without disk persistence (tests)
	ResetOnStartup bool   `yaml:"reset_on_startup"` // Delete database on startup
}

// SearchConfig holds the Elasticsearch side-channel parameters.
type SearchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	PoolSize  int    `yaml:"pool_size"`
	LogsIndex string `yaml:"logs_index"` // Index name prefix for build documents
}

// SlackConfig holds the notifier credentials.
type SlackConfig struct {
	BotToken       string `yaml:"bot_token"`
	DefaultChannel string `yaml:"default_channel"`
}

// RulesConfig points at the ruleset definition file.
type RulesConfig struct {
	Path string `yaml:"path"` // YAML ruleset file; empty = built-in default ruleset
}

// SchedulerConfig controls the periodic build scanner.
type SchedulerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"` // Cron expression
	Branch   string `yaml:"branch"`
}

type LoggingConfig struct {
	Level  string   `yaml:"level"`  // "debug", "info", "warn", "error"
	Output []string `yaml:"output"` // "stdout", "file"
}

// DefaultConfig returns the baseline configuration before file and env overrides.
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Drone: DroneConfig{
			MaxPages:       4,
			MaxBuilds:      400,
			InitialPage:    0,
			RequestTimeout: 30 * time.Second,
			RateLimit:      250 * time.Millisecond,
		},
		Queue: QueueConfig{
			ServerURL:       "nats://localhost:4222",
			SubmitSubject:   "builds.jobs.submit",
			PushSubject:     "builds.jobs.push",
			DispatchSubject: "builds.jobs.dispatch",
			WorkerGroup:     "build-workers",
			HighWaterMark:   1,
			PollTimeout:     100 * time.Millisecond,
			PostmortemSleep: 10 * time.Second,
			DispatchTimeout: time.Second,
		},
		Workers: WorkersConfig{
			Count:           2,
			PollTimeout:     100 * time.Millisecond,
			PostmortemSleep: time.Second,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{Path: "./data/dronebutler"},
		},
		Search: SearchConfig{
			Host:      "localhost",
			Port:      9200,
			PoolSize:  10,
			LogsIndex: "drone-builds",
		},
		Scheduler: SchedulerConfig{
			Schedule: "@every 5m",
			Branch:   "master",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env.
// An empty path skips the file layer (env-only configuration).
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks required keys. A missing Drone URL or token aborts startup.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			var missing []string
			for _, fe := range verrs {
				missing = append(missing, fe.Namespace())
			}
			return fmt.Errorf("missing required configuration: %s (set in config file or BUTLER_* environment)", strings.Join(missing, ", "))
		}
		return err
	}
	if c.Workers.Count < 2 {
		return fmt.Errorf("workers.count must be at least 2 (one broker task plus at least one puller)")
	}
	return nil
}

// applyEnvOverrides applies BUTLER_* environment variable overrides. Environment wins over file.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("BUTLER_ENV"); env != "" {
		config.Environment = env
	}

	if url := os.Getenv("BUTLER_DRONE_URL"); url != "" {
		config.Drone.URL = url
	}
	if token := os.Getenv("BUTLER_DRONE_ACCESS_TOKEN"); token != "" {
		config.Drone.AccessToken = token
	}
	if owner := os.Getenv("BUTLER_DRONE_OWNER"); owner != "" {
		config.Drone.Owner = owner
	}
	if repo := os.Getenv("BUTLER_DRONE_REPO"); repo != "" {
		config.Drone.Repo = repo
	}
	if maxPages := os.Getenv("BUTLER_DRONE_MAX_PAGES"); maxPages != "" {
		if n, err := strconv.Atoi(maxPages); err == nil {
			config.Drone.MaxPages = n
		}
	}
	if maxBuilds := os.Getenv("BUTLER_DRONE_MAX_BUILDS"); maxBuilds != "" {
		if n, err := strconv.Atoi(maxBuilds); err == nil {
			config.Drone.MaxBuilds = n
		}
	}
	if initialPage := os.Getenv("BUTLER_DRONE_INITIAL_PAGE"); initialPage != "" {
		if n, err := strconv.Atoi(initialPage); err == nil {
			config.Drone.InitialPage = n
		}
	}
	if timeout := os.Getenv("BUTLER_DRONE_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Drone.RequestTimeout = d
		}
	}

	if url := os.Getenv("BUTLER_QUEUE_SERVER_URL"); url != "" {
		config.Queue.ServerURL = url
	}
	if subj := os.Getenv("BUTLER_QUEUE_SUBMIT_SUBJECT"); subj != "" {
		config.Queue.SubmitSubject = subj
	}
	if subj := os.Getenv("BUTLER_QUEUE_PUSH_SUBJECT"); subj != "" {
		config.Queue.PushSubject = subj
	}
	if subj := os.Getenv("BUTLER_QUEUE_DISPATCH_SUBJECT"); subj != "" {
		config.Queue.DispatchSubject = subj
	}
	if hwm := os.Getenv("BUTLER_QUEUE_HIGH_WATER_MARK"); hwm != "" {
		if n, err := strconv.Atoi(hwm); err == nil {
			config.Queue.HighWaterMark = n
		}
	}
	if poll := os.Getenv("BUTLER_QUEUE_POLL_TIMEOUT"); poll != "" {
		if d, err := time.ParseDuration(poll); err == nil {
			config.Queue.PollTimeout = d
		}
	}

	if count := os.Getenv("BUTLER_WORKERS_COUNT"); count != "" {
		if n, err := strconv.Atoi(count); err == nil {
			config.Workers.Count = n
		}
	}

	if path := os.Getenv("BUTLER_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if enabled := os.Getenv("BUTLER_SEARCH_ENABLED"); enabled != "" {
		config.Search.Enabled = enabled == "true" || enabled == "1"
	}
	if host := os.Getenv("BUTLER_SEARCH_HOST"); host != "" {
		config.Search.Host = host
	}
	if port := os.Getenv("BUTLER_SEARCH_PORT"); port != "" {
		if n, err := strconv.Atoi(port); err == nil {
			config.Search.Port = n
		}
	}
	if index := os.Getenv("BUTLER_SEARCH_LOGS_INDEX"); index != "" {
		config.Search.LogsIndex = index
	}

	if token := os.Getenv("BUTLER_SLACK_BOT_TOKEN"); token != "" {
		config.Slack.BotToken = token
	}
	if channel := os.Getenv("BUTLER_SLACK_DEFAULT_CHANNEL"); channel != "" {
		config.Slack.DefaultChannel = channel
	}

	if path := os.Getenv("BUTLER_RULES_PATH"); path != "" {
		config.Rules.Path = path
	}

	if enabled := os.Getenv("BUTLER_SCHEDULER_ENABLED"); enabled != "" {
		config.Scheduler.Enabled = enabled == "true" || enabled == "1"
	}
	if schedule := os.Getenv("BUTLER_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}

	if level := os.Getenv("BUTLER_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("BUTLER_LOG_OUTPUT"); output != "" {
		config.Logging.Output = strings.Split(output, ",")
	}
}
