package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-orchestrator/pkg/config"
	"github.com/LENAX/workflow-orchestrator/pkg/core/engine"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
	"github.com/LENAX/workflow-orchestrator/pkg/plugin"
)

func TestApp_Lifecycle(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.Background.Disabled = true
	cfg.Orchestrator.Plugins.AuditCapacity = 10

	a, err := New(cfg, "test")
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	def, err := a.Orchestrator.CreateWorkflowDefinition(context.Background(), workflow.NewWorkflowDefinition("notify", types.ExecutionModeSequential,
		&workflow.TaskDefinition{ID: "wait", Type: types.TaskTypeDelay, Config: map[string]interface{}{"duration_ms": 5}},
		&workflow.TaskDefinition{ID: "tell", Type: types.TaskTypeNotification, Config: map[string]interface{}{"channel": "log", "message": "done"}},
	), "acme", "alice")
	require.NoError(t, err)

	execution, err := a.Orchestrator.ExecuteWorkflow(context.Background(), def.ID, nil, "acme", "alice", engine.ExecuteOptions{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		e := a.Orchestrator.GetExecutionStatus(execution.ExecutionID)
		return e != nil && e.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	assert.True(t, a.Orchestrator.GetExecutionStatus(execution.ExecutionID).Success)

	require.Eventually(t, func() bool {
		return len(a.Audit.Records()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	records := a.Audit.Records()
	assert.Equal(t, plugin.EventDefinitionCreated, records[0].Event)
	assert.Equal(t, "alice", records[0].UserID)

	p, err := a.Orchestrator.PredictPerformance(context.Background(), def.ID)
	require.NoError(t, err)
	assert.Equal(t, "historical", p.Source)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
}

func TestApp_EmailPluginRequiresParams(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.Plugins.Email.Enabled = true

	_, err := New(cfg, "test")
	assert.Error(t, err)
}

func TestApp_UnknownStorage(t *testing.T) {
	cfg := config.Default()
	cfg.Orchestrator.Storage.Type = "cassandra"

	_, err := New(cfg, "test")
	assert.Error(t, err)
}
