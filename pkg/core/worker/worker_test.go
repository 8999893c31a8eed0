package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	taskctx "github.com/LENAX/workflow-orchestrator/pkg/core/task"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

func delayTask(id string, strategy types.RoutingStrategy) *workflow.TaskDefinition {
	return &workflow.TaskDefinition{ID: id, Type: types.TaskTypeDelay, RoutingStrategy: strategy}
}

func TestPool_LazyCreation(t *testing.T) {
	p := NewPool(PoolConfig{DefaultCapacity: 1, MaxWorkers: 10}, DefaultRunners(nil))
	assert.Empty(t, p.Workers())

	w1, err := p.GetWorkerForTask(delayTask("a", ""))
	require.NoError(t, err)
	assert.Len(t, p.Workers(), 1)

	// w1 满载，需要再创建一个
	w2, err := p.GetWorkerForTask(delayTask("b", ""))
	require.NoError(t, err)
	assert.NotEqual(t, w1.ID(), w2.ID())
	assert.Len(t, p.Workers(), 2)

	// 归还后复用，不再创建
	w1.Done(true)
	w3, err := p.GetWorkerForTask(delayTask("c", ""))
	require.NoError(t, err)
	assert.Equal(t, w1.ID(), w3.ID())
	assert.Len(t, p.Workers(), 2)
}

func TestPool_WorkerLimitNeverBlocks(t *testing.T) {
	p := NewPool(PoolConfig{DefaultCapacity: 1, MaxWorkers: 1}, nil)
	_, err := p.GetWorkerForTask(delayTask("a", ""))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := p.GetWorkerForTask(delayTask("b", ""))
		done <- err
	}()
	select {
	case err := <-done:
		assert.True(t, errors.Is(err, types.ErrNoWorkerAvailable))
	case <-time.After(time.Second):
		t.Fatal("GetWorkerForTask 不应阻塞")
	}
}

func TestPool_WorkersOnlyServeTheirType(t *testing.T) {
	p := NewPool(PoolConfig{}, nil)
	_, err := p.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeAPICall, Capacity: 5})
	require.NoError(t, err)

	w, err := p.GetWorkerForTask(delayTask("a", ""))
	require.NoError(t, err)
	assert.Equal(t, types.TaskTypeDelay, w.TaskType())
	assert.Equal(t, 2, p.Stats().TotalWorkers)

	_, err = p.RegisterWorker(WorkerSpec{TaskType: "NOPE"})
	assert.Error(t, err)
}

func TestRouting_RoundRobinFairness(t *testing.T) {
	const k, m = 4, 4000
	p := NewPool(PoolConfig{DefaultCapacity: 1000}, nil)
	for i := 0; i < k; i++ {
		_, err := p.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay})
		require.NoError(t, err)
	}

	counts := make(map[string]int)
	for i := 0; i < m; i++ {
		w, err := p.GetWorkerForTask(delayTask(fmt.Sprintf("t%d", i), types.RoutingRoundRobin))
		require.NoError(t, err)
		counts[w.ID()]++
		w.Done(true)
	}
	require.Len(t, counts, k)
	for id, c := range counts {
		assert.InDelta(t, m/k, c, float64(m/k)*0.05, "worker %s", id)
	}
}

func TestRouting_LeastLoaded(t *testing.T) {
	p := NewPool(PoolConfig{DefaultCapacity: 10}, nil)
	a, _ := p.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay})
	b, _ := p.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay})

	// 相同负载取先出现者
	w, err := p.GetWorkerForTask(delayTask("1", types.RoutingLeastLoaded))
	require.NoError(t, err)
	assert.Equal(t, a.ID(), w.ID())

	w, err = p.GetWorkerForTask(delayTask("2", types.RoutingLeastLoaded))
	require.NoError(t, err)
	assert.Equal(t, b.ID(), w.ID())
}

func TestRouting_PerformanceBased(t *testing.T) {
	p := NewPool(PoolConfig{DefaultCapacity: 10}, nil)
	a, _ := p.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay})
	b, _ := p.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay})

	// a 失败一次，分数下降
	require.True(t, a.tryAcquire())
	a.Done(false)
	assert.Less(t, a.PerformanceScore(), b.PerformanceScore())

	w, err := p.GetWorkerForTask(delayTask("1", types.RoutingPerformanceBased))
	require.NoError(t, err)
	assert.Equal(t, b.ID(), w.ID())
}

func TestRouting_SkillBased(t *testing.T) {
	p := NewPool(PoolConfig{DefaultCapacity: 10}, nil)
	_, _ = p.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay})
	b, _ := p.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay, Skills: map[types.TaskType]float64{types.TaskTypeDelay: 150}})

	w, err := p.GetWorkerForTask(delayTask("1", types.RoutingSkillBased))
	require.NoError(t, err)
	assert.Equal(t, b.ID(), w.ID())

	// 全部相同时取第一个
	p2 := NewPool(PoolConfig{DefaultCapacity: 10}, nil)
	c, _ := p2.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay})
	_, _ = p2.RegisterWorker(WorkerSpec{TaskType: types.TaskTypeDelay})
	w, err = p2.GetWorkerForTask(delayTask("1", types.RoutingSkillBased))
	require.NoError(t, err)
	assert.Equal(t, c.ID(), w.ID())
}

func TestPool_ConcurrentAcquireRespectsCapacity(t *testing.T) {
	p := NewPool(PoolConfig{DefaultCapacity: 3, MaxWorkers: 4}, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := p.GetWorkerForTask(delayTask(fmt.Sprintf("t%d", i), types.RoutingRoundRobin)); err == nil {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 12, acquired)
	for _, info := range p.Workers() {
		assert.LessOrEqual(t, info.Load, info.Capacity)
	}
}

func TestWorker_RunRecoversPanic(t *testing.T) {
	p := NewPool(PoolConfig{}, map[types.TaskType]Runner{
		types.TaskTypeCustom: RunnerFunc(func(context.Context, *workflow.TaskDefinition, map[string]interface{}) (map[string]interface{}, error) {
			panic("boom")
		}),
	})
	w, err := p.GetWorkerForTask(&workflow.TaskDefinition{ID: "c", Type: types.TaskTypeCustom})
	require.NoError(t, err)
	_, err = w.Run(context.Background(), &workflow.TaskDefinition{ID: "c", Type: types.TaskTypeCustom}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panic")
}

func TestWorker_MissingRunnerIsPermanent(t *testing.T) {
	p := NewPool(PoolConfig{}, nil)
	task := &workflow.TaskDefinition{ID: "c", Type: types.TaskTypeCustom}
	w, err := p.GetWorkerForTask(task)
	require.NoError(t, err)
	_, err = w.Run(context.Background(), task, nil)
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))

	p.RegisterRunner(types.TaskTypeCustom, RunnerFunc(func(context.Context, *workflow.TaskDefinition, map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}))
	out, err := w.Run(context.Background(), task, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["ok"])
}

func TestRunner_APICall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id": 7, "name": "alice"}`))
		case "/html":
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte(`<html><body><ul><li class="item">one</li><li class="item"> two </li></ul></body></html>`))
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	r := NewAPICallRunner(srv.Client())
	ctx := context.Background()

	out, err := r.Run(ctx, &workflow.TaskDefinition{ID: "j", Config: map[string]interface{}{"url": srv.URL + "/json"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 200, out["status_code"])
	assert.Equal(t, "alice", out["body"].(map[string]interface{})["name"])

	out, err = r.Run(ctx, &workflow.TaskDefinition{ID: "h", Config: map[string]interface{}{
		"url": srv.URL + "/html", "selector": "li.item",
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"one", "two"}, out["selected"])

	_, err = r.Run(ctx, &workflow.TaskDefinition{ID: "m", Config: map[string]interface{}{"url": srv.URL + "/missing"}}, nil)
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err), "4xx 不可重试")

	_, err = r.Run(ctx, &workflow.TaskDefinition{ID: "b", Config: map[string]interface{}{"url": srv.URL + "/bad"}}, nil)
	require.Error(t, err)
	assert.True(t, types.IsRetryable(err), "5xx 可重试")

	_, err = r.Run(ctx, &workflow.TaskDefinition{ID: "n"}, nil)
	assert.False(t, types.IsRetryable(err))
}

func TestRunner_DataTransformAndValidation(t *testing.T) {
	input := map[string]interface{}{
		"user": map[string]interface{}{"name": "bob", "email": "bob@example.com"},
	}
	out, err := DataTransformRunner{}.Run(context.Background(), &workflow.TaskDefinition{ID: "t", Config: map[string]interface{}{
		"mapping":   map[string]interface{}{"name": "user.name", "mail": "user.email", "none": "user.phone"},
		"constants": map[string]interface{}{"source": "crm"},
	}}, input)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "bob", "mail": "bob@example.com", "source": "crm"}, out)

	out, err = ValidationRunner{}.Run(context.Background(), &workflow.TaskDefinition{ID: "v", Config: map[string]interface{}{
		"required_fields": []interface{}{"user.name"},
	}}, input)
	require.NoError(t, err)
	assert.Equal(t, true, out["valid"])

	_, err = ValidationRunner{}.Run(context.Background(), &workflow.TaskDefinition{ID: "v", Config: map[string]interface{}{
		"required_fields": []interface{}{"user.phone"},
	}}, input)
	require.Error(t, err)
	assert.False(t, types.IsRetryable(err))
}

type recordingNotifier struct {
	messages []string
	data     []map[string]interface{}
}

func (n *recordingNotifier) Notify(_ context.Context, _, _, message string, data map[string]interface{}) error {
	n.messages = append(n.messages, message)
	n.data = append(n.data, data)
	return nil
}

func TestRunner_NotificationAndDelay(t *testing.T) {
	n := &recordingNotifier{}
	out, err := NotificationRunner{Notifier: n}.Run(context.Background(), &workflow.TaskDefinition{ID: "n", Config: map[string]interface{}{
		"channel": "email", "recipient": "ops@example.com", "message": "done",
	}}, nil)
	require.NoError(t, err)
	assert.Equal(t, true, out["delivered"])
	assert.Equal(t, []string{"done"}, n.messages)

	runCtx := taskctx.WithRunInfo(context.Background(), taskctx.RunInfo{ExecutionID: "ex-1", TaskID: "n", Attempt: 2})
	_, err = NotificationRunner{Notifier: n}.Run(runCtx, &workflow.TaskDefinition{ID: "n", Config: map[string]interface{}{
		"message": "again",
	}}, map[string]interface{}{"region": "eu"})
	require.NoError(t, err)
	require.Len(t, n.data, 2)
	assert.Equal(t, "ex-1", n.data[1]["execution_id"])
	assert.Equal(t, 2, n.data[1]["attempt"])
	assert.Equal(t, "eu", n.data[1]["region"])

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = DelayRunner{}.Run(ctx, &workflow.TaskDefinition{ID: "d", Config: map[string]interface{}{"duration_ms": 1000}}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
