package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
	"github.com/LENAX/workflow-orchestrator/pkg/storage"
)

func newTestRepo(t *testing.T) *storage.SQLRepository {
	t.Helper()
	repo, err := NewRepository(filepath.Join(t.TempDir(), "orchestrator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRepository_Definitions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	def := workflow.NewWorkflowDefinition("etl", types.ExecutionModeConditional,
		&workflow.TaskDefinition{ID: "extract", Type: types.TaskTypeCustom},
		&workflow.TaskDefinition{ID: "load", Type: types.TaskTypeCustom, Dependencies: []string{"extract"},
			Condition: &workflow.Condition{Field: "tasks.extract.status", Operator: workflow.OpEquals, Value: "COMPLETED"}},
	)
	def.ID = "wf-1"
	def.Category = "data"
	def.Schedule = "0 */5 * * * *"
	def.CreatedAt = time.Now()
	def.UpdatedAt = def.CreatedAt
	require.NoError(t, repo.SaveDefinition(ctx, def))

	got, err := repo.GetDefinition(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, "etl", got.Name)
	assert.Equal(t, types.ExecutionModeConditional, got.ExecutionMode)
	require.Len(t, got.Tasks, 2)
	assert.Equal(t, []string{"extract"}, got.Tasks[1].Dependencies)
	require.NotNil(t, got.Tasks[1].Condition)
	assert.Equal(t, workflow.OpEquals, got.Tasks[1].Condition.Operator)
	assert.True(t, got.IsActive())
	assert.WithinDuration(t, def.CreatedAt, got.CreatedAt, time.Second)

	// 再次保存走UPSERT
	def.SetActive(false, "bob")
	def.RecordExecution(true, 120*time.Millisecond)
	require.NoError(t, repo.SaveDefinition(ctx, def))
	got, err = repo.GetDefinition(ctx, "wf-1")
	require.NoError(t, err)
	assert.False(t, got.IsActive())
	assert.Equal(t, int64(1), got.Stats().ExecutionCount)

	all, err := repo.ListDefinitions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.DeleteDefinition(ctx, "wf-1"))
	_, err = repo.GetDefinition(ctx, "wf-1")
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
	assert.ErrorAs(t, repo.DeleteDefinition(ctx, "wf-1"), &nf)
}

func TestSQLiteRepository_Executions(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	e := workflow.NewWorkflowExecution("wf-1", "tenant", "alice", map[string]interface{}{"region": "eu"})
	require.NoError(t, e.Start([]string{"a", "b"}))
	require.NoError(t, repo.SaveExecution(ctx, e))

	r := workflow.NewTaskExecutionResult(e.ExecutionID, "a")
	r.MarkCompleted(map[string]interface{}{"rows": 3})
	e.UpdateTaskResult(r)
	require.NoError(t, e.Complete(true))
	require.NoError(t, repo.SaveExecution(ctx, e))

	got, err := repo.GetExecution(ctx, e.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionCompleted, got.Status)
	assert.True(t, got.Success)
	assert.Equal(t, "eu", got.InputData["region"])
	res, ok := got.TaskResult("a")
	require.True(t, ok)
	assert.Equal(t, types.TaskCompleted, res.Status)
	assert.True(t, got.IsTerminal())

	running := workflow.NewWorkflowExecution("wf-1", "tenant", "alice", nil)
	require.NoError(t, running.Start([]string{"a"}))
	require.NoError(t, repo.SaveExecution(ctx, running))
	require.NoError(t, repo.SaveExecution(ctx, workflow.NewWorkflowExecution("wf-2", "tenant", "alice", nil)))

	list, err := repo.ListExecutions(ctx, storage.ExecutionFilter{WorkflowID: "wf-1"})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = repo.ListExecutions(ctx, storage.ExecutionFilter{Status: types.ExecutionCompleted})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, e.ExecutionID, list[0].ExecutionID)

	list, err = repo.ListExecutions(ctx, storage.ExecutionFilter{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	n, err := repo.DeleteExecutionsBefore(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	n, err = repo.DeleteExecutionsBefore(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetExecution(ctx, e.ExecutionID)
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestSQLiteRepository_ReopenKeepsSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	repo, err := NewRepository(path)
	require.NoError(t, err)
	def := workflow.NewWorkflowDefinition("keep", types.ExecutionModeSequential, &workflow.TaskDefinition{ID: "t", Type: types.TaskTypeDelay})
	def.ID = "wf-keep"
	require.NoError(t, repo.SaveDefinition(context.Background(), def))
	require.NoError(t, repo.Close())

	repo, err = NewRepository(path)
	require.NoError(t, err)
	defer repo.Close()
	got, err := repo.GetDefinition(context.Background(), "wf-keep")
	require.NoError(t, err)
	assert.Equal(t, "keep", got.Name)
}

func TestFileDir(t *testing.T) {
	assert.Equal(t, "", fileDir(":memory:"))
	assert.Equal(t, "", fileDir("file::memory:?cache=shared"))
	assert.Equal(t, "", fileDir("orchestrator.db"))
	assert.Equal(t, "data", fileDir("./data/orchestrator.db"))
	assert.Equal(t, "/var/lib/orch", fileDir("file:/var/lib/orch/db.sqlite?_busy_timeout=5000"))
}

func TestOpen_CreatesDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "dir", "orchestrator.db")
	repo, err := NewRepository(dsn)
	require.NoError(t, err)
	defer repo.Close()
	_, err = os.Stat(filepath.Dir(dsn))
	assert.NoError(t, err)
}
