package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/dronebutler/internal/app"
	"github.com/ternarybob/dronebutler/internal/common"
	"github.com/ternarybob/dronebutler/internal/models"
)

var (
	// Command-line flags
	configFile    = flag.String("config", "", "Configuration file path (default: dronebutler.yaml if present, else env-only)")
	configFileC   = flag.String("c", "", "Configuration file path (shorthand)")
	ignoreFilters = flag.Bool("ignore-filters", false, "Bypass the opt-in user and status filters (enqueue command)")
	showVersion   = flag.Bool("version", false, "Print version information")
	showVersionV  = flag.Bool("v", false, "Print version information (shorthand)")
)

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), `Usage: dronebutler [flags] <command>

Commands:
  serve                 Run the broker, worker pool and scheduler
  enqueue <build_id>    Submit one build for analysis and wait for the ack
  scan                  Sweep recent builds and enqueue them
  version               Print version information

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	if *showVersion || *showVersionV {
		fmt.Printf("DroneButler version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	command := flag.Arg(0)
	if command == "" {
		command = "serve"
	}
	if command == "version" {
		fmt.Printf("DroneButler version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file -> env)
	// 2. Initialize logger
	// 3. Print banner
	// 4. Wire the application
	configPath := *configFile
	if *configFileC != "" {
		configPath = *configFileC
	}
	if configPath == "" {
		if env := os.Getenv("BUTLER_CONFIG"); env != "" {
			configPath = env
		} else if _, err := os.Stat("dronebutler.yaml"); err == nil {
			configPath = "dronebutler.yaml"
		}
	}

	config, err := common.LoadFromFile(configPath)
	if err != nil {
		// Use temporary logger for startup errors
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Str("path", configPath).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("config_file", configPath).
		Str("environment", config.Environment).
		Str("owner", config.Drone.Owner).
		Str("repo", config.Drone.Repo).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	switch command {
	case "serve":
		err = runServe(application, logger)
	case "enqueue":
		err = runEnqueue(application, flag.Arg(1), *ignoreFilters)
	case "scan":
		err = runScan(application)
	default:
		flag.Usage()
		os.Exit(2)
	}

	if err != nil {
		logger.Fatal().Str("command", command).Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

// runServe starts the broker and worker pool and blocks until interrupted.
func runServe(application *app.App, logger arbor.ILogger) error {
	if err := application.StartWorkers(); err != nil {
		return err
	}

	logger.Info().
		Str("server", application.Config.Queue.ServerURL).
		Int("workers", application.Config.Workers.Count).
		Bool("scheduler", application.Config.Scheduler.Enabled).
		Msg("DroneButler ready - Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Interrupt signal received, shutting down")
	return nil
}

// runEnqueue submits one build through the reply-oriented ingress and
// waits for the broker's acknowledgment.
func runEnqueue(application *app.App, arg string, ignoreFilters bool) error {
	if arg == "" {
		return fmt.Errorf("enqueue requires a build number argument")
	}
	buildID, err := strconv.Atoi(arg)
	if err != nil {
		return fmt.Errorf("invalid build number %q: %w", arg, err)
	}

	producer, err := application.ConnectProducer()
	if err != nil {
		return err
	}

	envelope := &models.JobEnvelope{BuildID: buildID, IgnoreFilters: ignoreFilters}
	if err := producer.Enqueue(context.Background(), envelope); err != nil {
		return fmt.Errorf("failed to enqueue build %d: %w", buildID, err)
	}

	application.Logger.Info().
		Int("build", buildID).
		Bool("ignore_filters", ignoreFilters).
		Msg("Build enqueued")
	return nil
}

// runScan performs a single sweep of recent builds, enqueueing each one.
func runScan(application *app.App) error {
	if _, err := application.ConnectProducer(); err != nil {
		return err
	}

	sweep := application.NewScheduler()
	if err := sweep.Sweep(context.Background()); err != nil {
		return fmt.Errorf("build sweep failed: %w", err)
	}
	return nil
}
