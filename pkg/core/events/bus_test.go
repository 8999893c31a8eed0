package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

type recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *recorder) handle(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) first() *Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[0]
}

func TestBus_PublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	def := workflow.NewWorkflowDefinition("wf", types.ExecutionModeSequential)
	assert.NoError(t, bus.Publish(DefinitionCreated(def, "tenant", "user")))
	assert.Equal(t, int64(1), bus.Stats().Published)
}

func TestBus_SubscribeReceivesOnlyItsType(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	created := &recorder{}
	started := &recorder{}
	_, err := bus.Subscribe(WorkflowDefinitionCreated, created.handle)
	require.NoError(t, err)
	_, err = bus.Subscribe(WorkflowExecutionStarted, started.handle)
	require.NoError(t, err)

	def := workflow.NewWorkflowDefinition("orders", types.ExecutionModeParallel,
		&workflow.TaskDefinition{ID: "a", Type: types.TaskTypeDelay})
	require.NoError(t, bus.Publish(DefinitionCreated(def, "tenant-1", "user-1")))

	require.Eventually(t, func() bool { return created.len() == 1 }, time.Second, 5*time.Millisecond)
	e := created.first()
	assert.Equal(t, WorkflowDefinitionCreated, e.Type)
	assert.Equal(t, def.ID, e.WorkflowID)
	assert.Equal(t, "orders", e.WorkflowName)
	assert.Equal(t, "tenant-1", e.TenantID)
	assert.Equal(t, 1, e.TaskCount)
	assert.Equal(t, 0, started.len())
}

func TestBus_CompletedEventCarriesSummary(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	_, err := bus.Subscribe(WorkflowExecutionCompleted, rec.handle)
	require.NoError(t, err)

	execution := workflow.NewWorkflowExecution("wf-1", "t", "u", nil)
	require.NoError(t, execution.Start([]string{"a", "b"}))
	r := workflow.NewTaskExecutionResult(execution.ExecutionID, "a")
	r.MarkCompleted(nil)
	execution.UpdateTaskResult(r)
	require.NoError(t, execution.Complete(true))

	require.NoError(t, bus.Publish(ExecutionCompleted(execution)))
	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)

	e := rec.first()
	assert.True(t, e.Success)
	assert.Equal(t, string(types.ExecutionCompleted), e.Status)
	require.NotNil(t, e.Summary)
	assert.Equal(t, 2, e.Summary.TotalTasks)
	assert.Equal(t, 1, e.Summary.CompletedTasks)
}

func TestBus_HandlerErrorsAndPanicsDoNotStopDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	calls := 0
	_, err := bus.Subscribe(WorkflowExecutionStarted, func(context.Context, *Event) error {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		switch n {
		case 1:
			return errors.New("boom")
		case 2:
			panic("handler bug")
		}
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		execution := workflow.NewWorkflowExecution("wf", "", "", nil)
		require.NoError(t, bus.Publish(ExecutionStarted(execution)))
	}
	require.Eventually(t, func() bool {
		s := bus.Stats()
		return s.Handled == 1 && s.Failed == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	rec := &recorder{}
	id, err := bus.Subscribe(WorkflowExecutionStarted, rec.handle)
	require.NoError(t, err)
	assert.Equal(t, 1, bus.SubscriptionCount())

	assert.True(t, bus.Unsubscribe(id))
	assert.False(t, bus.Unsubscribe(id))
	assert.Equal(t, 0, bus.SubscriptionCount())

	require.NoError(t, bus.Publish(ExecutionStarted(workflow.NewWorkflowExecution("wf", "", "", nil))))
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 0, rec.len())
}

func TestBus_SubscribeAllAndValidation(t *testing.T) {
	bus := NewBus()

	rec := &recorder{}
	ids, err := bus.SubscribeAll(rec.handle)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	_, err = bus.Subscribe("unknown.type", rec.handle)
	assert.Error(t, err)
	_, err = bus.Subscribe(WorkflowExecutionStarted, nil)
	assert.Error(t, err)
	assert.Error(t, bus.Publish(&Event{Type: "unknown.type"}))

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(ExecutionStarted(workflow.NewWorkflowExecution("wf", "", "", nil))), ErrBusClosed)
	_, err = bus.Subscribe(WorkflowExecutionStarted, rec.handle)
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.NoError(t, bus.Close())
}
