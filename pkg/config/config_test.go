package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	o := cfg.Orchestrator
	assert.Equal(t, "memory", cfg.GetDatabaseType())
	assert.Equal(t, 100, o.Execution.MaxConcurrentExecutions)
	assert.Equal(t, 500, o.Execution.MaxConcurrentTasks)
	assert.Equal(t, 5*time.Minute, o.Execution.TaskTimeout)
	assert.Equal(t, time.Hour, o.Execution.WorkflowTimeout)
	assert.Equal(t, 3, o.Execution.Retry.MaxAttempts)
	assert.Equal(t, 5*time.Second, o.Execution.Retry.BaseDelay)
	assert.Equal(t, 10, o.Workers.DefaultCapacity)
	assert.Equal(t, 200, o.Workers.MaxWorkers)
	assert.Equal(t, 100.0, o.Resources.CPU)
	assert.Equal(t, 16384.0, o.Resources.Memory)
	assert.Equal(t, time.Second, o.Background.QueueInterval)
	assert.Equal(t, 10*time.Second, o.Background.HealthInterval)
	assert.Equal(t, 10*time.Minute, o.Prediction.CacheTTL)
	require.NoError(t, Validate(cfg))
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
orchestrator:
  general:
    log_level: debug
  storage:
    type: sqlite
    dsn: "file:test.db"
  execution:
    max_concurrent_executions: 5
    task_timeout: 2s
    workflow_timeout: 30s
    retry:
      max_attempts: 1
      base_delay: 100ms
  workers:
    default_strategy: ROUND_ROBIN
`))
	require.NoError(t, err)
	o := cfg.Orchestrator
	assert.True(t, cfg.IsDebug())
	assert.Equal(t, "sqlite", cfg.GetDatabaseType())
	assert.Equal(t, "file:test.db", cfg.GetDatabaseDSN())
	assert.Equal(t, 5, o.Execution.MaxConcurrentExecutions)
	assert.Equal(t, 2*time.Second, o.Execution.TaskTimeout)
	assert.Equal(t, 100*time.Millisecond, o.Execution.Retry.BaseDelay)
	assert.Equal(t, "ROUND_ROBIN", o.Workers.DefaultStrategy)
	assert.Equal(t, 500, o.Execution.MaxConcurrentTasks)
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(c *OrchestratorConfig){
		"bad log level":      func(c *OrchestratorConfig) { c.Orchestrator.General.LogLevel = "verbose" },
		"bad storage":        func(c *OrchestratorConfig) { c.Orchestrator.Storage.Type = "redis" },
		"missing dsn":        func(c *OrchestratorConfig) { c.Orchestrator.Storage.Type = "mysql" },
		"workflow < task":    func(c *OrchestratorConfig) { c.Orchestrator.Execution.WorkflowTimeout = time.Second },
		"retry too many":     func(c *OrchestratorConfig) { c.Orchestrator.Execution.Retry.MaxAttempts = 101 },
		"delay over max":     func(c *OrchestratorConfig) { c.Orchestrator.Execution.Retry.BaseDelay = time.Hour },
		"bad strategy":       func(c *OrchestratorConfig) { c.Orchestrator.Workers.DefaultStrategy = "RANDOM" },
		"negative resources": func(c *OrchestratorConfig) { c.Orchestrator.Resources.CPU = -1 },
		"bad port":           func(c *OrchestratorConfig) { c.Orchestrator.API.Port = 70000 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, Validate(cfg))
		})
	}
	assert.Error(t, Validate(nil))
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("orchestrator:\n  api:\n    port: 9090\n"), 0o644))

	t.Setenv(EnvDatabaseType, "postgres")
	t.Setenv(EnvDatabaseDSN, "postgres://localhost/orchestrator")
	t.Setenv(EnvLogLevel, "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Orchestrator.API.Port)
	assert.Equal(t, "postgres", cfg.GetDatabaseType())
	assert.Equal(t, "postgres://localhost/orchestrator", cfg.GetDatabaseDSN())
	assert.Equal(t, "warn", cfg.Orchestrator.General.LogLevel)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Orchestrator.API.Port)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("orchestrator: ["), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}
