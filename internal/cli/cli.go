// ============================================================================
// Producer Agent CLI - Command Line Interface
// ============================================================================
//
// Package: internal/cli
// File: cli.go
// Purpose: user-facing command line interface based on the Cobra
// framework.
//
// Command Structure:
//   producer-agent                    # Root command
//   ├── run                           # Start the producer agent
//   │   └── --config, -c             # Specify config file
//   ├── status                        # Show resolved configuration
//   ├── --version                     # Display version information
//   └── --help                        # Display help information
//
// Configuration Management:
//   Uses YAML format config file (default: configs/default.yaml).
//   The producer and metrics sections hold agent-local knobs (type,
//   worker pool sizing, timing, metrics server). The control_plane
//   section is passed to internal/config.Resolver as overrides, which
//   take precedence over BITSKY_BASE_URL / BITSKY_SECURITY_KEY /
//   GLOBAL_ID from the environment.
//
// run Command:
//   Starts the producer agent:
//   1. Load config file (agent-local knobs) and merge resolver
//      overrides (control-plane connection details)
//   2. Build the reference worker pool and wire it into a Producer
//   3. Start the Prometheus metrics server (if enabled)
//   4. Start the Producer
//   5. Listen for SIGINT/SIGTERM and stop gracefully
//
//   Examples:
//     ./producer-agent run
//     ./producer-agent run -c custom-config.yaml
//
// status Command:
//   Display the configuration the agent would run with, without
//   starting it:
//   - Resolved control-plane connection (base URL, global id)
//   - Worker pool sizing
//   - Metrics server settings
//
//   Examples:
//     ./producer-agent status
//
// Signal Handling:
//   run captures SIGINT and SIGTERM and stops the Producer gracefully,
//   letting any in-flight job reach Teardown before the process exits.
//
// Metrics Service:
//   If enabled in config, starts an HTTP server in a separate
//   goroutine exposing /metrics in Prometheus text format.
// ============================================================================

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bitsky-io/producer-agent/internal/agent"
	"github.com/bitsky-io/producer-agent/internal/config"
	"github.com/bitsky-io/producer-agent/internal/controlplane"
	"github.com/bitsky-io/producer-agent/internal/metrics"
	"github.com/bitsky-io/producer-agent/internal/soi"
	"github.com/bitsky-io/producer-agent/internal/worker"
	"github.com/bitsky-io/producer-agent/pkg/types"
)

var log = slog.Default()

// Config is the configuration file structure: agent-local knobs
// (worker pool sizing, timing defaults, metrics server) plus optional
// control-plane connection values that runAgent and showStatus hand to
// internal/config.Resolver as overrides.
type Config struct {
	Producer struct {
		Type                      string `yaml:"type"`
		WorkerCount               int    `yaml:"worker_count"`
		WorkerBufferSize          int    `yaml:"worker_buffer_size"`
		PollingIntervalWatchSec   int    `yaml:"polling_interval_watch_seconds"`
		DefaultPollingIntervalSec int    `yaml:"default_polling_interval_seconds"`
		CollectJobTimeoutSec      int    `yaml:"collect_job_timeout_seconds"`
	} `yaml:"producer"`

	ControlPlane struct {
		BaseURL     string `yaml:"base_url"`
		GlobalID    string `yaml:"global_id"`
		SecurityKey string `yaml:"security_key"`
	} `yaml:"control_plane"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
		Port    int  `yaml:"port"`
	} `yaml:"metrics"`
}

var configFile string

// BuildCLI assembles the root command and its subcommands.
func BuildCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "producer-agent",
		Short: "Producer Agent: polls a Metadata Service and dispatches collection jobs",
		Long: `Producer Agent polls a Metadata Service control plane for its remote
configuration and, while active, fetches batches of intelligences,
hands them to a pluggable collection worker, and reports outcomes back
to their target systems and the control plane.`,
		Version: "1.0.0",
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/default.yaml", "config file path")

	rootCmd.AddCommand(buildRunCommand())
	rootCmd.AddCommand(buildStatusCommand())

	return rootCmd
}

func buildRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the producer agent",
		Long:  "Start the config watcher and job loop and run until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAgent()
		},
	}
	return cmd
}

func runAgent() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Warn("failed to load config file; continuing with defaults and environment", "path", configFile, "error", err)
		cfg = &Config{}
	}
	applyDefaults(cfg)

	log.Info("starting producer agent", "type", cfg.Producer.Type, "workers", cfg.Producer.WorkerCount)

	resolver := config.NewResolver()
	resolver.SetOverrides(config.Overrides{
		BaseURL:     cfg.ControlPlane.BaseURL,
		GlobalID:    cfg.ControlPlane.GlobalID,
		SecurityKey: cfg.ControlPlane.SecurityKey,
	})

	cpClient := controlplane.NewClient()
	soiClient := soi.NewClient()

	pool := worker.NewPool(cfg.Producer.WorkerBufferSize, referenceCollect)
	if err := pool.Start(cfg.Producer.WorkerCount); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}
	defer pool.Stop()

	constants := agent.Constants{
		PollingIntervalWatchAgent: time.Duration(cfg.Producer.PollingIntervalWatchSec) * time.Second,
		CollectJobTimeout:         time.Duration(cfg.Producer.CollectJobTimeoutSec) * time.Second,
		DefaultPollingIntervalSec: cfg.Producer.DefaultPollingIntervalSec,
		DefaultType:               cfg.Producer.Type,
	}

	producer := agent.NewProducer(resolver, cpClient, soiClient, constants)
	if err := producer.SetWorker(pool); err != nil {
		return fmt.Errorf("failed to install worker: %w", err)
	}

	if cfg.Metrics.Enabled {
		collector := metrics.NewCollector()
		producer.SetMetrics(collector)
		go func() {
			log.Info("starting metrics server", "port", cfg.Metrics.Port)
			if err := metrics.StartServer(cfg.Metrics.Port); err != nil {
				log.Error("metrics server stopped", "error", err)
			}
		}()
	}

	if err := producer.Start(); err != nil {
		return fmt.Errorf("failed to start producer: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("received shutdown signal, stopping gracefully")
	producer.Stop()
	log.Info("producer agent stopped")
	return nil
}

// referenceCollect is the reference CollectFunc shipped with the
// agent: it returns a placeholder dataset carrying the item's globalId
// (or the context's error once it is done). Integrators are expected to install their own worker.Pool
// (or types.Worker) with a domain-specific CollectFunc via
// Producer.SetWorker before calling Start in production.
func referenceCollect(ctx context.Context, item *types.Intelligence) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	return map[string]any{"globalId": item.GlobalID, "collectedAt": "reference-worker"}, nil
}

func buildStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the configuration the agent would run with",
		Long:  "Resolve and display control-plane connection details, worker sizing, and metrics settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showStatus()
		},
	}
	return cmd
}

func showStatus() error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		log.Warn("failed to load config file; showing defaults and environment", "path", configFile, "error", err)
		cfg = &Config{}
	}
	applyDefaults(cfg)

	resolver := config.NewResolver()
	resolver.SetOverrides(config.Overrides{
		BaseURL:     cfg.ControlPlane.BaseURL,
		GlobalID:    cfg.ControlPlane.GlobalID,
		SecurityKey: cfg.ControlPlane.SecurityKey,
	})
	snap := resolver.Resolve()

	fmt.Println()
	fmt.Println("Producer Agent Status")
	fmt.Println("======================")
	fmt.Println()

	fmt.Println("Configuration:")
	fmt.Printf("  Config File:      %s\n", configFile)
	fmt.Printf("  Producer Type:    %s\n", cfg.Producer.Type)
	fmt.Printf("  Worker Count:     %d\n", cfg.Producer.WorkerCount)
	fmt.Printf("  Worker Buffer:    %d\n", cfg.Producer.WorkerBufferSize)
	fmt.Printf("  Watch Interval:   %ds\n", cfg.Producer.PollingIntervalWatchSec)
	fmt.Printf("  Job Timeout:      %ds\n", cfg.Producer.CollectJobTimeoutSec)
	fmt.Println()

	fmt.Println("Control Plane:")
	if snap.BaseURL == "" {
		fmt.Println("  Base URL:         (unset — agent will stay in a degraded, inactive state)")
	} else {
		fmt.Printf("  Base URL:         %s\n", snap.BaseURL)
	}
	if snap.GlobalID == "" {
		fmt.Println("  Global ID:        (unset)")
	} else {
		fmt.Printf("  Global ID:        %s\n", snap.GlobalID)
	}
	fmt.Printf("  Serial ID:        %s\n", snap.SerialID)
	fmt.Println()

	fmt.Println("Metrics:")
	if cfg.Metrics.Enabled {
		fmt.Printf("  Status:           enabled on http://localhost:%d/metrics\n", cfg.Metrics.Port)
	} else {
		fmt.Println("  Status:           disabled")
	}
	fmt.Println()

	return nil
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Producer.Type == "" {
		cfg.Producer.Type = agent.DefaultProducerType
	}
	if cfg.Producer.WorkerCount <= 0 {
		cfg.Producer.WorkerCount = 4
	}
	if cfg.Producer.WorkerBufferSize <= 0 {
		cfg.Producer.WorkerBufferSize = 100
	}
	if cfg.Producer.PollingIntervalWatchSec <= 0 {
		cfg.Producer.PollingIntervalWatchSec = int(agent.DefaultPollingIntervalWatchAgent / time.Second)
	}
	if cfg.Producer.DefaultPollingIntervalSec <= 0 {
		cfg.Producer.DefaultPollingIntervalSec = agent.DefaultPollingIntervalSeconds
	}
	if cfg.Producer.CollectJobTimeoutSec <= 0 {
		cfg.Producer.CollectJobTimeoutSec = int(agent.DefaultCollectJobTimeout / time.Second)
	}
	if cfg.Metrics.Port <= 0 {
		cfg.Metrics.Port = 9090
	}
}
