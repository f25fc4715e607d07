package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bitsky-io/producer-agent/pkg/types"
)

func TestBuildCLI(t *testing.T) {
	cmd := BuildCLI()

	assert.NotNil(t, cmd, "BuildCLI should return a non-nil command")
	assert.Equal(t, "producer-agent", cmd.Use)
	assert.Equal(t, "1.0.0", cmd.Version)

	commands := cmd.Commands()
	assert.Len(t, commands, 2, "should have 2 subcommands")

	commandNames := make(map[string]bool)
	for _, c := range commands {
		commandNames[c.Use] = true
	}
	assert.True(t, commandNames["run"], "should have 'run' command")
	assert.True(t, commandNames["status"], "should have 'status' command")

	configFlag := cmd.PersistentFlags().Lookup("config")
	assert.NotNil(t, configFlag, "should have --config flag")
	assert.Equal(t, "configs/default.yaml", configFlag.DefValue)
}

func TestBuildRunCommand(t *testing.T) {
	cmd := buildRunCommand()

	assert.NotNil(t, cmd)
	assert.Equal(t, "run", cmd.Use)
	assert.Contains(t, cmd.Short, "Start")
	assert.NotNil(t, cmd.RunE)
}

func TestBuildStatusCommand(t *testing.T) {
	cmd := buildStatusCommand()

	assert.NotNil(t, cmd)
	assert.Equal(t, "status", cmd.Use)
	assert.Contains(t, cmd.Short, "configuration")
	assert.NotNil(t, cmd.RunE)
}

func TestLoadConfig_ValidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test_config.yaml")

	configContent := `
producer:
  type: SERVICE_AGENT_TYPE
  worker_count: 4
  worker_buffer_size: 100
  polling_interval_watch_seconds: 30
  default_polling_interval_seconds: 10
  collect_job_timeout_seconds: 300

control_plane:
  base_url: "https://metadata.example.com"
  global_id: "agent-1"
  security_key: "secret"

metrics:
  enabled: true
  port: 8080
`

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	cfg, err := loadConfig(configPath)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "SERVICE_AGENT_TYPE", cfg.Producer.Type)
	assert.Equal(t, 4, cfg.Producer.WorkerCount)
	assert.Equal(t, 100, cfg.Producer.WorkerBufferSize)
	assert.Equal(t, 30, cfg.Producer.PollingIntervalWatchSec)
	assert.Equal(t, 10, cfg.Producer.DefaultPollingIntervalSec)
	assert.Equal(t, 300, cfg.Producer.CollectJobTimeoutSec)

	assert.Equal(t, "https://metadata.example.com", cfg.ControlPlane.BaseURL)
	assert.Equal(t, "agent-1", cfg.ControlPlane.GlobalID)
	assert.Equal(t, "secret", cfg.ControlPlane.SecurityKey)

	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 8080, cfg.Metrics.Port)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := loadConfig("/nonexistent/config.yaml")

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid.yaml")

	invalidYAML := `
producer:
  worker_count: "not a number"
  invalid yaml structure
    broken indentation
`

	err := os.WriteFile(configPath, []byte(invalidYAML), 0644)
	require.NoError(t, err)

	cfg, err := loadConfig(configPath)

	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "failed to parse config YAML")
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "empty.yaml")

	err := os.WriteFile(configPath, []byte(""), 0644)
	require.NoError(t, err)

	cfg, err := loadConfig(configPath)
	assert.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, 0, cfg.Producer.WorkerCount)
}

func TestLoadConfig_PartialConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.yaml")

	partialConfig := `
producer:
  worker_count: 2
`

	err := os.WriteFile(configPath, []byte(partialConfig), 0644)
	require.NoError(t, err)

	cfg, err := loadConfig(configPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Producer.WorkerCount)
	assert.Empty(t, cfg.ControlPlane.BaseURL)
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	assert.Equal(t, "SERVICE_AGENT_TYPE", cfg.Producer.Type)
	assert.Equal(t, 4, cfg.Producer.WorkerCount)
	assert.Equal(t, 100, cfg.Producer.WorkerBufferSize)
	assert.Equal(t, 30, cfg.Producer.PollingIntervalWatchSec)
	assert.Equal(t, 10, cfg.Producer.DefaultPollingIntervalSec)
	assert.Equal(t, 300, cfg.Producer.CollectJobTimeoutSec)
	assert.Equal(t, 9090, cfg.Metrics.Port)
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Producer.Type = "CUSTOM_TYPE"
	cfg.Producer.WorkerCount = 16
	cfg.Metrics.Port = 7000

	applyDefaults(cfg)

	assert.Equal(t, "CUSTOM_TYPE", cfg.Producer.Type)
	assert.Equal(t, 16, cfg.Producer.WorkerCount)
	assert.Equal(t, 7000, cfg.Metrics.Port)
}

func TestShowStatus(t *testing.T) {
	orig := configFile
	defer func() { configFile = orig }()
	configFile = "/nonexistent/config.yaml"

	err := showStatus()
	assert.NoError(t, err, "showStatus should not return an error even with a missing config file")
}

func TestReferenceCollect(t *testing.T) {
	item := &types.Intelligence{GlobalID: "item-1"}
	dataset, err := referenceCollect(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, "item-1", dataset["globalId"])
}

func TestReferenceCollect_RespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	item := &types.Intelligence{GlobalID: "item-1"}
	_, err := referenceCollect(ctx, item)
	assert.Error(t, err)
}
