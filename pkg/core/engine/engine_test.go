package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-orchestrator/pkg/config"
	"github.com/LENAX/workflow-orchestrator/pkg/core/events"
	"github.com/LENAX/workflow-orchestrator/pkg/core/optimizer"
	"github.com/LENAX/workflow-orchestrator/pkg/core/resource"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/worker"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
	"github.com/LENAX/workflow-orchestrator/pkg/storage"
)

func testConfig() *config.OrchestratorConfig {
	cfg := config.Default()
	cfg.Orchestrator.Background.Disabled = true
	cfg.Orchestrator.Execution.Retry.MaxAttempts = 0
	cfg.Orchestrator.Execution.Retry.BaseDelay = 10 * time.Millisecond
	cfg.Orchestrator.Execution.Retry.MaxDelay = 50 * time.Millisecond
	return cfg
}

func newTestOrchestrator(t *testing.T, runner worker.Runner, mutate func(*config.OrchestratorConfig), opts ...Option) *Orchestrator {
	t.Helper()
	cfg := testConfig()
	if mutate != nil {
		mutate(cfg)
	}
	opts = append(opts, WithRunner(types.TaskTypeCustom, runner))
	o, err := NewOrchestrator(cfg, opts...)
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Stop(ctx)
	})
	return o
}

func customTasks(ids ...string) []*workflow.TaskDefinition {
	tasks := make([]*workflow.TaskDefinition, 0, len(ids))
	for _, id := range ids {
		tasks = append(tasks, &workflow.TaskDefinition{ID: id, Name: id, Type: types.TaskTypeCustom})
	}
	return tasks
}

func createDefinition(t *testing.T, o *Orchestrator, mode types.ExecutionMode, tasks ...*workflow.TaskDefinition) *workflow.WorkflowDefinition {
	t.Helper()
	def, err := o.CreateWorkflowDefinition(context.Background(), workflow.NewWorkflowDefinition("wf-"+string(mode), mode, tasks...), "tenant", "alice")
	require.NoError(t, err)
	return def
}

func waitTerminal(t *testing.T, o *Orchestrator, executionID string) *workflow.WorkflowExecution {
	t.Helper()
	var final *workflow.WorkflowExecution
	require.Eventually(t, func() bool {
		final = o.GetExecutionStatus(executionID)
		return final != nil && final.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	return final
}

// recorder 记录被调用的任务ID
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func failingOn(rec *recorder, failID string) worker.Runner {
	return worker.RunnerFunc(func(_ context.Context, task *workflow.TaskDefinition, _ map[string]interface{}) (map[string]interface{}, error) {
		rec.add(task.ID)
		if task.ID == failID {
			return nil, fmt.Errorf("task %s failed deterministically", task.ID)
		}
		return map[string]interface{}{"task": task.ID}, nil
	})
}

func blockingRunner(release <-chan struct{}) worker.Runner {
	return worker.RunnerFunc(func(ctx context.Context, _ *workflow.TaskDefinition, _ map[string]interface{}) (map[string]interface{}, error) {
		select {
		case <-release:
			return map[string]interface{}{}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
}

func TestSequential_StopOnError(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, failingOn(rec, "t2"), nil)
	tasks := customTasks("t1", "t2", "t3")
	tasks[1].ErrorHandlingStrategy = types.StopOnError
	def := createDefinition(t, o, types.ExecutionModeSequential, tasks...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionRunning, started.Status)

	final := waitTerminal(t, o, started.ExecutionID)
	assert.Equal(t, types.ExecutionFailed, final.Status)
	assert.False(t, final.Success)

	r1, ok := final.TaskResult("t1")
	require.True(t, ok)
	assert.Equal(t, types.TaskCompleted, r1.Status)
	r2, ok := final.TaskResult("t2")
	require.True(t, ok)
	assert.Equal(t, types.TaskFailed, r2.Status)
	r3, ok := final.TaskResult("t3")
	require.True(t, ok)
	assert.Equal(t, types.TaskPending, r3.Status)
	assert.Nil(t, r3.StartTime)
	assert.Equal(t, []string{"t1", "t2"}, rec.list())
}

func TestSequential_ContinueOnError(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, failingOn(rec, "t2"), nil)
	tasks := customTasks("t1", "t2", "t3")
	tasks[1].ErrorHandlingStrategy = types.ContinueOnError
	def := createDefinition(t, o, types.ExecutionModeSequential, tasks...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, o, started.ExecutionID)

	assert.Equal(t, types.ExecutionCompleted, final.Status)
	assert.Equal(t, []string{"t1", "t2", "t3"}, rec.list())
	assert.Equal(t, 1, final.ErrorCount())
	assert.Equal(t, 100.0, final.Progress())
}

func TestParallel_PartialFailureStillCompletes(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, failingOn(rec, "p2"), nil)
	def := createDefinition(t, o, types.ExecutionModeParallel, customTasks("p1", "p2", "p3")...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, o, started.ExecutionID)

	assert.Equal(t, types.ExecutionCompleted, final.Status)
	assert.True(t, final.Success)
	assert.Len(t, final.Errors, 1)
	assert.Equal(t, 2, final.CountByStatus(types.TaskCompleted))
	assert.ElementsMatch(t, []string{"p1", "p2", "p3"}, rec.list())
}

func TestParallel_AllFailed(t *testing.T) {
	o := newTestOrchestrator(t, worker.RunnerFunc(func(context.Context, *workflow.TaskDefinition, map[string]interface{}) (map[string]interface{}, error) {
		return nil, errors.New("boom")
	}), nil)
	def := createDefinition(t, o, types.ExecutionModeParallel, customTasks("p1", "p2")...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, o, started.ExecutionID)
	assert.Equal(t, types.ExecutionFailed, final.Status)
	assert.Len(t, final.Errors, 2)
}

func TestTaskTimeout_BeatsSlowWorker(t *testing.T) {
	o := newTestOrchestrator(t, worker.RunnerFunc(func(context.Context, *workflow.TaskDefinition, map[string]interface{}) (map[string]interface{}, error) {
		time.Sleep(200 * time.Millisecond)
		return map[string]interface{}{"late": true}, nil
	}), nil)
	tasks := customTasks("slow")
	tasks[0].TimeoutMs = 50
	def := createDefinition(t, o, types.ExecutionModeSequential, tasks...)

	begin := time.Now()
	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, o, started.ExecutionID)
	elapsed := time.Since(begin)

	result, ok := final.TaskResult("slow")
	require.True(t, ok)
	assert.Equal(t, types.TaskFailed, result.Status)
	require.NotNil(t, result.Error)
	assert.Equal(t, types.CodeTaskTimeout, result.Error.Code)
	assert.Less(t, elapsed, 180*time.Millisecond)

	// 超时后迟到的结果不能覆盖终态
	time.Sleep(250 * time.Millisecond)
	again := o.GetExecutionStatus(started.ExecutionID)
	r, _ := again.TaskResult("slow")
	assert.Equal(t, types.TaskFailed, r.Status)
	assert.Nil(t, r.Output["late"])
}

func TestExecuteWorkflow_CapacityCeiling(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o := newTestOrchestrator(t, blockingRunner(release), func(c *config.OrchestratorConfig) {
		c.Orchestrator.Execution.MaxConcurrentExecutions = 2
	})
	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1")...)

	for i := 0; i < 2; i++ {
		_, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
		require.NoError(t, err)
	}
	_, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	var capErr *types.CapacityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, 2, capErr.Limit)
	assert.Equal(t, 2, o.ActiveExecutionCount())
	assert.Len(t, o.ListExecutions(def.ID), 2)
}

func TestExecuteWorkflow_ZeroTasksRejected(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, failingOn(rec, ""), nil)
	def := createDefinition(t, o, types.ExecutionModeSequential)

	_, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, rec.list())
	assert.Empty(t, o.ListExecutions(def.ID))
}

func TestExecuteWorkflow_UnknownAndInactive(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, failingOn(rec, ""), nil)

	_, err := o.ExecuteWorkflow(context.Background(), "missing", nil, "tenant", "alice", ExecuteOptions{})
	var nf *types.NotFoundError
	require.ErrorAs(t, err, &nf)

	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1")...)
	require.NoError(t, o.SetWorkflowActive(context.Background(), def.ID, false, "bob"))
	_, err = o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)

	stored, err := o.GetWorkflowDefinition(def.ID)
	require.NoError(t, err)
	assert.Equal(t, types.DefinitionInactive, stored.Status())
	assert.Equal(t, "bob", stored.UpdatedBy)
}

func TestWorkflowTimeout_FailsExecution(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o := newTestOrchestrator(t, blockingRunner(release), nil)
	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1", "t2")...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{Timeout: 100 * time.Millisecond})
	require.NoError(t, err)
	final := waitTerminal(t, o, started.ExecutionID)

	assert.Equal(t, types.ExecutionFailed, final.Status)
	codes := make([]string, 0, len(final.Errors))
	for _, e := range final.Errors {
		codes = append(codes, e.Code)
	}
	assert.Contains(t, codes, types.CodeWorkflowTimeout)
	r2, ok := final.TaskResult("t2")
	require.True(t, ok)
	assert.Equal(t, types.TaskPending, r2.Status)
	assert.Nil(t, r2.StartTime)
	assert.Equal(t, 0, o.ActiveExecutionCount())
}

func TestProgress_IsMonotonic(t *testing.T) {
	o := newTestOrchestrator(t, worker.RunnerFunc(func(context.Context, *workflow.TaskDefinition, map[string]interface{}) (map[string]interface{}, error) {
		time.Sleep(10 * time.Millisecond)
		return map[string]interface{}{}, nil
	}), nil)
	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("a", "b", "c", "d", "e")...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)

	last := 0.0
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap := o.GetExecutionStatus(started.ExecutionID)
		require.NotNil(t, snap)
		p := snap.Progress()
		assert.GreaterOrEqual(t, p, last)
		last = p
		if snap.IsTerminal() {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, 100.0, last)
}

func TestConditional_DependenciesAndConditions(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, worker.RunnerFunc(func(_ context.Context, task *workflow.TaskDefinition, _ map[string]interface{}) (map[string]interface{}, error) {
		rec.add(task.ID)
		return map[string]interface{}{"ok": true}, nil
	}), nil)

	tasks := customTasks("extract", "load", "alert", "report")
	tasks[1].Dependencies = []string{"extract"}
	tasks[1].Condition = &workflow.Condition{Field: "tasks.extract.output.ok", Operator: workflow.OpEquals, Value: true}
	tasks[2].Dependencies = []string{"extract"}
	tasks[2].Condition = &workflow.Condition{Field: "tasks.extract.output.ok", Operator: workflow.OpEquals, Value: false}
	tasks[3].Dependencies = []string{"load", "alert"}
	def := createDefinition(t, o, types.ExecutionModeConditional, tasks...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, o, started.ExecutionID)

	assert.Equal(t, types.ExecutionCompleted, final.Status)
	alert, ok := final.TaskResult("alert")
	require.True(t, ok)
	assert.Equal(t, types.TaskSkipped, alert.Status)
	assert.Equal(t, true, alert.Output["skipped"])

	calls := rec.list()
	require.Len(t, calls, 3)
	assert.Equal(t, "extract", calls[0])
	assert.Equal(t, "report", calls[2])
	assert.NotContains(t, calls, "alert")
}

func TestConditional_StopOnErrorHaltsDependents(t *testing.T) {
	rec := &recorder{}
	o := newTestOrchestrator(t, failingOn(rec, "a"), nil)
	tasks := customTasks("a", "b")
	tasks[1].Dependencies = []string{"a"}
	def := createDefinition(t, o, types.ExecutionModeConditional, tasks...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, o, started.ExecutionID)
	assert.Equal(t, types.ExecutionFailed, final.Status)
	assert.Equal(t, []string{"a"}, rec.list())
}

func TestCreateWorkflowDefinition_RejectsCycle(t *testing.T) {
	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil)
	tasks := customTasks("a", "b")
	tasks[0].Dependencies = []string{"b"}
	tasks[1].Dependencies = []string{"a"}

	_, err := o.CreateWorkflowDefinition(context.Background(), workflow.NewWorkflowDefinition("cyclic", types.ExecutionModeConditional, tasks...), "tenant", "alice")
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Empty(t, o.ListWorkflowDefinitions(DefinitionFilter{}))
}

func TestRunnerPanic_FailsTaskNotOrchestrator(t *testing.T) {
	o := newTestOrchestrator(t, worker.RunnerFunc(func(context.Context, *workflow.TaskDefinition, map[string]interface{}) (map[string]interface{}, error) {
		panic("runner exploded")
	}), nil)
	def := createDefinition(t, o, types.ExecutionModeParallel, customTasks("x")...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	final := waitTerminal(t, o, started.ExecutionID)
	assert.Equal(t, types.ExecutionFailed, final.Status)
	r, ok := final.TaskResult("x")
	require.True(t, ok)
	assert.Contains(t, r.Error.Message, "runner exploded")
}

func TestCancelExecution(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o := newTestOrchestrator(t, blockingRunner(release), nil)
	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1")...)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)

	require.NoError(t, o.CancelExecution(context.Background(), started.ExecutionID, "operator request"))
	final := o.GetExecutionStatus(started.ExecutionID)
	require.NotNil(t, final)
	assert.Equal(t, types.ExecutionFailed, final.Status)
	assert.Equal(t, "operator request", final.CancelReason)
	assert.Equal(t, 0, o.ActiveExecutionCount())

	err = o.CancelExecution(context.Background(), started.ExecutionID, "again")
	assert.ErrorIs(t, err, types.ErrInvalidState)

	var nf *types.NotFoundError
	assert.ErrorAs(t, o.CancelExecution(context.Background(), "missing", ""), &nf)
}

func TestGetExecutionStatus_Unknown(t *testing.T) {
	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil)
	assert.Nil(t, o.GetExecutionStatus("nope"))
}

func TestLifecycleEvents(t *testing.T) {
	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil)

	received := make(chan *events.Event, 8)
	_, err := o.Events().SubscribeAll(func(_ context.Context, e *events.Event) error {
		received <- e
		return nil
	})
	require.NoError(t, err)

	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1", "t2")...)
	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	waitTerminal(t, o, started.ExecutionID)

	seen := make(map[events.Type]*events.Event)
	timeout := time.After(2 * time.Second)
	for len(seen) < 3 {
		select {
		case e := <-received:
			seen[e.Type] = e
		case <-timeout:
			t.Fatalf("timed out waiting for events, got %d", len(seen))
		}
	}
	created := seen[events.WorkflowDefinitionCreated]
	assert.Equal(t, def.ID, created.WorkflowID)
	assert.Equal(t, 2, created.TaskCount)

	completed := seen[events.WorkflowExecutionCompleted]
	assert.Equal(t, started.ExecutionID, completed.ExecutionID)
	assert.True(t, completed.Success)
	require.NotNil(t, completed.Summary)
	assert.Equal(t, 2, completed.Summary.CompletedTasks)
}

func TestPerformanceMetrics(t *testing.T) {
	o := newTestOrchestrator(t, worker.RunnerFunc(func(_ context.Context, _ *workflow.TaskDefinition, input map[string]interface{}) (map[string]interface{}, error) {
		if input["fail"] == true {
			return nil, errors.New("requested failure")
		}
		return map[string]interface{}{}, nil
	}), nil)
	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1")...)

	for _, input := range []map[string]interface{}{{"fail": false}, {"fail": true}} {
		started, err := o.ExecuteWorkflow(context.Background(), def.ID, input, "tenant", "alice", ExecuteOptions{})
		require.NoError(t, err)
		waitTerminal(t, o, started.ExecutionID)
	}

	m, err := o.GetPerformanceMetrics(def.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.TotalExecutions)
	assert.Equal(t, int64(1), m.SuccessfulExecutions)
	assert.InDelta(t, 50.0, m.SuccessRate, 0.001)
	assert.Equal(t, 0, m.ActiveExecutions)
	assert.Equal(t, 1, m.Definitions)
	assert.Contains(t, m.Resources, resource.CPU)

	all, err := o.GetPerformanceMetrics("")
	require.NoError(t, err)
	assert.Equal(t, int64(2), all.TotalExecutions)

	_, err = o.GetPerformanceMetrics("missing")
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)

	executions := o.ListExecutions(def.ID)
	require.Len(t, executions, 2)
	assert.False(t, executions[0].CreatedAt.Before(executions[1].CreatedAt))
}

type panickyOptimizer struct{ optimizer.Historical }

func (panickyOptimizer) OptimizeWorkflow(context.Context, *workflow.WorkflowDefinition) error {
	panic("optimizer bug")
}

func TestDefinitionManagement(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o := newTestOrchestrator(t, blockingRunner(release), nil, WithOptimizer(panickyOptimizer{}))

	etl := workflow.NewWorkflowDefinition("etl", types.ExecutionModeSequential, customTasks("t1")...)
	etl.Category = "data"
	etl.Tags = []string{"nightly"}
	created, err := o.CreateWorkflowDefinition(context.Background(), etl, "tenant", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.True(t, created.IsActive())
	assert.Equal(t, "alice", created.CreatedBy)

	dup := workflow.NewWorkflowDefinition("dup", types.ExecutionModeSequential, customTasks("t1")...)
	dup.ID = created.ID
	_, err = o.CreateWorkflowDefinition(context.Background(), dup, "tenant", "alice")
	var ve *types.ValidationError
	assert.ErrorAs(t, err, &ve)

	_, err = o.CreateWorkflowDefinition(context.Background(), workflow.NewWorkflowDefinition("bad", "RANDOM", customTasks("t1")...), "tenant", "alice")
	assert.ErrorAs(t, err, &ve)

	other := createDefinition(t, o, types.ExecutionModeParallel, customTasks("p1")...)

	assert.Len(t, o.ListWorkflowDefinitions(DefinitionFilter{}), 2)
	byTag := o.ListWorkflowDefinitions(DefinitionFilter{Tags: []string{"nightly"}})
	require.Len(t, byTag, 1)
	assert.Equal(t, created.ID, byTag[0].ID)
	assert.Len(t, o.ListWorkflowDefinitions(DefinitionFilter{Category: "data"}), 1)
	assert.Len(t, o.ListWorkflowDefinitions(DefinitionFilter{TenantID: "other"}), 0)

	update := workflow.NewWorkflowDefinition("etl-v2", types.ExecutionModeSequential, customTasks("t1", "t2")...)
	updated, err := o.UpdateWorkflowDefinition(context.Background(), created.ID, update, "bob")
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID)
	assert.Equal(t, "alice", updated.CreatedBy)
	assert.Equal(t, "bob", updated.UpdatedBy)
	assert.Len(t, updated.Tasks, 2)

	started, err := o.ExecuteWorkflow(context.Background(), other.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	err = o.DeleteWorkflowDefinition(context.Background(), other.ID)
	assert.ErrorIs(t, err, types.ErrInvalidState)

	require.NoError(t, o.CancelExecution(context.Background(), started.ExecutionID, ""))
	require.NoError(t, o.DeleteWorkflowDefinition(context.Background(), other.ID))
	_, err = o.GetWorkflowDefinition(other.ID)
	var nf *types.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestUpdateWorkflowDefinition_KeepsStatisticsUnderLoad(t *testing.T) {
	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil)
	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1")...)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			next := workflow.NewWorkflowDefinition(fmt.Sprintf("etl-v%d", i), types.ExecutionModeSequential, customTasks("t1")...)
			_, err := o.UpdateWorkflowDefinition(context.Background(), def.ID, next, "bob")
			assert.NoError(t, err)
		}
	}()

	const runs = 150
	for i := 0; i < runs; i++ {
		started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
		require.NoError(t, err)
		waitTerminal(t, o, started.ExecutionID)
	}
	close(stop)
	wg.Wait()

	final, err := o.GetWorkflowDefinition(def.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(runs), final.Statistics.ExecutionCount)
	assert.Equal(t, int64(runs), final.Statistics.SuccessCount)
}

func TestSetWorkflowActive_SurvivesUpdate(t *testing.T) {
	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil)
	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1")...)
	require.NoError(t, o.SetWorkflowActive(context.Background(), def.ID, false, "bob"))

	updated, err := o.UpdateWorkflowDefinition(context.Background(), def.ID,
		workflow.NewWorkflowDefinition("etl-v2", types.ExecutionModeSequential, customTasks("t1")...), "bob")
	require.NoError(t, err)
	assert.False(t, updated.IsActive())
}

func TestCreateWorkflowDefinition_ConcurrentSameID(t *testing.T) {
	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil)

	const callers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			def := workflow.NewWorkflowDefinition(fmt.Sprintf("etl-%d", i), types.ExecutionModeSequential, customTasks("t1")...)
			def.ID = "shared-id"
			if _, err := o.CreateWorkflowDefinition(context.Background(), def, "tenant", "alice"); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			} else {
				var ve *types.ValidationError
				assert.ErrorAs(t, err, &ve)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	assert.Len(t, o.ListWorkflowDefinitions(DefinitionFilter{}), 1)
}

func TestPredictPerformance_Cached(t *testing.T) {
	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil, WithOptimizer(optimizer.Historical{}))
	tasks := customTasks("t1", "t2")
	tasks[0].TimeoutMs = 1000
	tasks[1].TimeoutMs = 2000
	def := createDefinition(t, o, types.ExecutionModeSequential, tasks...)

	p, err := o.PredictPerformance(context.Background(), def.ID)
	require.NoError(t, err)
	assert.Equal(t, "historical", p.Source)
	assert.Equal(t, 3000.0, p.EstimatedExecutionTime)

	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	waitTerminal(t, o, started.ExecutionID)

	p, err = o.PredictPerformance(context.Background(), def.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.BasedOnExecutions)
}

func TestStart_LoadsPersistedDefinitions(t *testing.T) {
	repo := storage.NewMemoryRepository()
	def := workflow.NewWorkflowDefinition("persisted", types.ExecutionModeSequential, customTasks("t1")...)
	def.ID = "wf-persisted"
	require.NoError(t, repo.SaveDefinition(context.Background(), def))

	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil, WithRepository(repo))
	loaded, err := o.GetWorkflowDefinition("wf-persisted")
	require.NoError(t, err)
	assert.Equal(t, "persisted", loaded.Name)

	started, err := o.ExecuteWorkflow(context.Background(), loaded.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)
	waitTerminal(t, o, started.ExecutionID)

	require.Eventually(t, func() bool {
		saved, err := repo.GetExecution(context.Background(), started.ExecutionID)
		return err == nil && saved.Status == types.ExecutionCompleted
	}, time.Second, 5*time.Millisecond)
}

func TestScheduledTrigger(t *testing.T) {
	o := newTestOrchestrator(t, failingOn(&recorder{}, ""), nil)
	def := workflow.NewWorkflowDefinition("nightly", types.ExecutionModeSequential, customTasks("t1")...)
	def.Schedule = "0 0 2 * * *"
	created, err := o.CreateWorkflowDefinition(context.Background(), def, "tenant", "alice")
	require.NoError(t, err)

	assert.Equal(t, []string{created.ID}, o.scheduler.Registered())
	expr, ok := o.scheduler.Expression(created.ID)
	require.True(t, ok)
	assert.Equal(t, "0 0 2 * * *", expr)
	assert.Error(t, o.scheduler.Register(created.ID, "nightly", "0 0 2 * * *"))
	assert.Error(t, o.scheduler.Register("x", "x", "not a cron"))

	o.triggerScheduled(context.Background(), created.ID)
	executions := o.ListExecutions(created.ID)
	require.Len(t, executions, 1)
	assert.Equal(t, ScheduleUser, executions[0].UserID)
	assert.Equal(t, "tenant", executions[0].TenantID)

	require.NoError(t, o.SetWorkflowActive(context.Background(), created.ID, false, "bob"))
	assert.Empty(t, o.scheduler.Registered())
}

func TestBackground_Jobs(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	o := newTestOrchestrator(t, blockingRunner(release), nil)
	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1")...)
	bg := o.background

	assert.Equal(t, 0, bg.ProcessQueue())

	_, err := o.resources.Allocate("ghost-execution", resource.Requirements{CPU: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, bg.RebalanceResources())
	assert.Equal(t, 0, o.resources.ReservationCount())

	stuck, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)

	sample := bg.SamplePerformance()
	assert.Equal(t, 1, sample.ActiveExecutions)
	assert.Equal(t, 1, sample.Definitions)

	o.mu.Lock()
	o.active[stuck.ExecutionID].deadline = time.Now().Add(-time.Hour)
	o.mu.Unlock()

	health := bg.CheckHealth()
	assert.Equal(t, 1, health.TimedOut)
	assert.Equal(t, HealthDegraded, health.Status)
	assert.Equal(t, health, o.Health())

	final := o.GetExecutionStatus(stuck.ExecutionID)
	require.NotNil(t, final)
	assert.Equal(t, types.ExecutionFailed, final.Status)
	require.NotEmpty(t, final.Errors)
	assert.Equal(t, types.CodeWorkflowTimeout, final.Errors[len(final.Errors)-1].Code)

	past := time.Now().Add(-48 * time.Hour)
	o.mu.Lock()
	o.history[stuck.ExecutionID].CompletionTime = &past
	o.mu.Unlock()

	health = bg.CheckHealth()
	assert.Equal(t, 1, health.Pruned)
	assert.Equal(t, HealthHealthy, health.Status)
	assert.Nil(t, o.GetExecutionStatus(stuck.ExecutionID))
}

func TestEveryInterval(t *testing.T) {
	assert.Equal(t, time.Second, everyInterval(10*time.Millisecond))
	assert.Equal(t, 30*time.Second, everyInterval(30*time.Second+200*time.Millisecond))
}

func TestStop_CancelsActiveExecutions(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	cfg := testConfig()
	o, err := NewOrchestrator(cfg, WithRunner(types.TaskTypeCustom, blockingRunner(release)))
	require.NoError(t, err)
	require.NoError(t, o.Start(context.Background()))

	def := createDefinition(t, o, types.ExecutionModeSequential, customTasks("t1")...)
	started, err := o.ExecuteWorkflow(context.Background(), def.ID, nil, "tenant", "alice", ExecuteOptions{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.Stop(ctx))

	final := o.GetExecutionStatus(started.ExecutionID)
	require.NotNil(t, final)
	assert.Equal(t, types.ExecutionFailed, final.Status)
	assert.Equal(t, "orchestrator shutdown", final.CancelReason)
}
