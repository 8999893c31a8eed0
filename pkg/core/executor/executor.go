package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/LENAX/workflow-orchestrator/pkg/core/resource"
	taskctx "github.com/LENAX/workflow-orchestrator/pkg/core/task"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/worker"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// Config 任务执行单元配置
type Config struct {
	// MaxConcurrentTasks 全局同时运行的任务数上限
	MaxConcurrentTasks int
	// DefaultTimeout 任务未设置 TimeoutMs 时的超时
	DefaultTimeout time.Duration
	// DefaultRetry 任务未设置 RetryPolicy 时的重试策略
	DefaultRetry workflow.RetryPolicy
	// MaxRetryDelay 单次退避上限
	MaxRetryDelay time.Duration
}

// Observer 任务执行观测钩子
type Observer interface {
	ObserveTaskAttempt(taskType types.TaskType, status types.TaskStatus, duration time.Duration)
	ObserveTaskRetry(taskType types.TaskType)
}

type nopObserver struct{}

func (nopObserver) ObserveTaskAttempt(types.TaskType, types.TaskStatus, time.Duration) {}
func (nopObserver) ObserveTaskRetry(types.TaskType)                                     {}

// Executor 任务执行单元（对外导出）
// 负责单个任务的一次执行：等待任务槽位、预留资源、获取Worker、超时竞争与重试退避
type Executor struct {
	cfg       Config
	workers   *worker.Pool
	resources *resource.Pool
	observer  Observer

	mu      sync.Mutex
	running int
	waiters []*waiter
	seq     uint64
}

// waiter 等待任务槽位的排队项，按优先级降序、同优先级先到先得
type waiter struct {
	ctx      context.Context
	priority types.Priority
	seq      uint64
	ready    chan struct{}
	granted  bool
}

// runOutcome Worker 一次运行的结果，只通过 channel 交回，不直接写结果对象
type runOutcome struct {
	output map[string]interface{}
	err    error
}

// NewExecutor 创建任务执行单元（对外导出）
func NewExecutor(cfg Config, workers *worker.Pool, resources *resource.Pool, observer Observer) *Executor {
	if cfg.MaxConcurrentTasks <= 0 {
		cfg.MaxConcurrentTasks = 500
	}
	if cfg.DefaultTimeout <= 0 {
		cfg.DefaultTimeout = 5 * time.Minute
	}
	if cfg.MaxRetryDelay <= 0 {
		cfg.MaxRetryDelay = 5 * time.Minute
	}
	if observer == nil {
		observer = nopObserver{}
	}
	return &Executor{
		cfg:       cfg,
		workers:   workers,
		resources: resources,
		observer:  observer,
	}
}

// Execute 执行任务直到成功或重试耗尽，返回最终结果
// 总尝试次数不超过 RetryPolicy.MaxAttempts+1，重试复用同一条结果记录
func (e *Executor) Execute(ctx context.Context, task *workflow.TaskDefinition, execution *workflow.WorkflowExecution) *workflow.TaskExecutionResult {
	result := workflow.NewTaskExecutionResult(execution.ExecutionID, task.ID)
	result.MarkRunning()
	execution.UpdateTaskResult(result)

	policy := e.retryPolicy(task)
	for {
		attemptStart := time.Now()
		output, workerID, taskErr := e.attempt(ctx, task, execution, result.RetryCount)
		if workerID != "" {
			result.WorkerID = workerID
		}
		if taskErr == nil {
			result.MarkCompleted(output)
			execution.UpdateTaskResult(result)
			e.observer.ObserveTaskAttempt(task.Type, types.TaskCompleted, time.Since(attemptStart))
			log.Printf("[Executor] ✅ 任务完成: Execution=%s, Task=%s, Retry=%d, Duration=%dms",
				execution.ExecutionID, task.ID, result.RetryCount, result.DurationMs)
			return result.Clone()
		}
		e.observer.ObserveTaskAttempt(task.Type, types.TaskFailed, time.Since(attemptStart))

		if !taskErr.IsRetryable || result.RetryCount >= policy.MaxAttempts || ctx.Err() != nil {
			result.MarkFailed(taskErr)
			execution.UpdateTaskResult(result)
			log.Printf("[Executor] ❌ 任务失败: Execution=%s, Task=%s, Retry=%d, Error=%s",
				execution.ExecutionID, task.ID, result.RetryCount, taskErr.Message)
			return result.Clone()
		}

		delay := BackoffDelay(policy, result.RetryCount, e.cfg.MaxRetryDelay)
		result.RetryCount++
		result.Error = taskErr
		execution.UpdateTaskResult(result)
		e.observer.ObserveTaskRetry(task.Type)
		log.Printf("[Executor] 🔄 任务重试: Execution=%s, Task=%s, 第%d次重试, 延迟=%v, Error=%s",
			execution.ExecutionID, task.ID, result.RetryCount, delay, taskErr.Message)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.MarkFailed(contextError(task.ID, ctx.Err()))
			execution.UpdateTaskResult(result)
			return result.Clone()
		}
	}
}

// attempt 单次尝试，返回输出、WorkerID 和结构化错误
func (e *Executor) attempt(ctx context.Context, task *workflow.TaskDefinition, execution *workflow.WorkflowExecution, retryCount int) (map[string]interface{}, string, *workflow.TaskError) {
	resolved := task.Clone()
	config, err := workflow.ResolveConfig(task.Config, execution.PlaceholderParams())
	if err != nil {
		log.Printf("[Executor] Task=%s 占位符替换不完整: %v", task.ID, err)
	}
	resolved.Config = config

	if err := e.acquireSlot(ctx, execution.GetPriority()); err != nil {
		return nil, "", contextError(task.ID, err)
	}
	defer e.releaseSlot()

	reservationID := ""
	if e.resources != nil && !task.Resources.IsZero() {
		id, err := e.resources.Allocate(execution.ExecutionID, task.Resources)
		if err != nil {
			te := workflow.NewTaskError(task.ID, types.CodeResourceExhausted, err.Error(), types.SeverityMedium, true)
			return nil, "", te
		}
		reservationID = id
	}
	releaseReservation := func() {
		if reservationID != "" {
			e.resources.Release(reservationID)
		}
	}

	w, err := e.workers.GetWorkerForTask(resolved)
	if err != nil {
		releaseReservation()
		te := workflow.NewTaskError(task.ID, types.CodeNoWorker, err.Error(), types.SeverityMedium, true)
		return nil, "", te
	}

	timeout := e.cfg.DefaultTimeout
	if task.TimeoutMs > 0 {
		timeout = time.Duration(task.TimeoutMs) * time.Millisecond
	}

	runCtx, cancel := context.WithCancel(taskctx.WithRunInfo(ctx, taskctx.RunInfo{
		WorkflowID:  execution.WorkflowID,
		ExecutionID: execution.ExecutionID,
		TaskID:      resolved.ID,
		TaskName:    resolved.Name,
		WorkerID:    w.ID(),
		Attempt:     retryCount + 1,
	}))
	defer cancel()
	done := make(chan runOutcome, 1)
	input := execution.Input()
	go func() {
		output, runErr := w.Run(runCtx, resolved, input)
		w.Done(runErr == nil)
		releaseReservation()
		done <- runOutcome{output: output, err: runErr}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case outcome := <-done:
		if outcome.err == nil {
			return outcome.output, w.ID(), nil
		}
		if ctx.Err() != nil {
			return nil, w.ID(), contextError(task.ID, ctx.Err())
		}
		execErr := &types.TaskExecutionError{TaskID: task.ID, Retryable: types.IsRetryable(outcome.err), Err: outcome.err}
		severity := types.SeverityMedium
		if !execErr.Retryable {
			severity = types.SeverityHigh
		}
		te := workflow.NewTaskError(task.ID, types.CodeTaskFailed, execErr.Error(), severity, execErr.Retryable)
		te.Context = map[string]interface{}{"worker_id": w.ID(), "attempt": retryCount + 1}
		return nil, w.ID(), te
	case <-timer.C:
		// 超时方胜出，Worker 的运行被放弃，其结果只会落入缓冲 channel
		timeoutErr := &types.TaskTimeoutError{TaskID: task.ID, Timeout: timeout}
		te := workflow.NewTaskError(task.ID, types.CodeTaskTimeout, timeoutErr.Error(), types.SeverityMedium, true)
		te.Context = map[string]interface{}{"worker_id": w.ID(), "attempt": retryCount + 1, "timeout_ms": timeout.Milliseconds()}
		log.Printf("[Executor] ⏱️ 任务超时: Execution=%s, Task=%s, Timeout=%v", execution.ExecutionID, task.ID, timeout)
		return nil, w.ID(), te
	case <-ctx.Done():
		return nil, w.ID(), contextError(task.ID, ctx.Err())
	}
}

func (e *Executor) retryPolicy(task *workflow.TaskDefinition) workflow.RetryPolicy {
	if task.RetryPolicy != nil {
		return *task.RetryPolicy
	}
	return e.cfg.DefaultRetry
}

// BackoffDelay 第 retryCount 次失败后的等待时间 baseDelay*2^retryCount，不超过上限
func BackoffDelay(policy workflow.RetryPolicy, retryCount int, maxDelay time.Duration) time.Duration {
	if policy.MaxDelayMs > 0 {
		maxDelay = time.Duration(policy.MaxDelayMs) * time.Millisecond
	}
	base := time.Duration(policy.BaseDelayMs) * time.Millisecond
	if base <= 0 {
		return 0
	}
	if retryCount > 30 {
		return maxDelay
	}
	delay := base * time.Duration(1<<uint(retryCount))
	if maxDelay > 0 && (delay > maxDelay || delay <= 0) {
		return maxDelay
	}
	return delay
}

// contextError 执行被取消或工作流超时，不可重试
func contextError(taskID string, err error) *workflow.TaskError {
	if errors.Is(err, context.DeadlineExceeded) {
		return workflow.NewTaskError(taskID, types.CodeWorkflowTimeout,
			fmt.Sprintf("workflow deadline exceeded while running task %s", taskID), types.SeverityHigh, false)
	}
	return workflow.NewTaskError(taskID, types.CodeCancelled,
		fmt.Sprintf("task %s aborted: %v", taskID, types.ErrCancelled), types.SeverityHigh, false)
}

// acquireSlot 获取任务槽位，满载时按优先级排队，ctx 结束时退出队列
func (e *Executor) acquireSlot(ctx context.Context, priority types.Priority) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	if e.running < e.cfg.MaxConcurrentTasks && len(e.waiters) == 0 {
		e.running++
		e.mu.Unlock()
		return nil
	}
	e.seq++
	w := &waiter{ctx: ctx, priority: priority, seq: e.seq, ready: make(chan struct{})}
	idx := sort.Search(len(e.waiters), func(i int) bool {
		return e.waiters[i].priority < w.priority
	})
	e.waiters = append(e.waiters, nil)
	copy(e.waiters[idx+1:], e.waiters[idx:])
	e.waiters[idx] = w
	e.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		e.mu.Lock()
		if w.granted {
			e.mu.Unlock()
			e.releaseSlot()
			return ctx.Err()
		}
		e.removeWaiterLocked(w)
		e.mu.Unlock()
		return ctx.Err()
	}
}

// releaseSlot 归还槽位，有排队者时直接移交
func (e *Executor) releaseSlot() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for len(e.waiters) > 0 {
		w := e.waiters[0]
		e.waiters = e.waiters[1:]
		if w.ctx.Err() != nil {
			continue
		}
		w.granted = true
		close(w.ready)
		return
	}
	e.running--
}

func (e *Executor) removeWaiterLocked(target *waiter) {
	for i, w := range e.waiters {
		if w == target {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			return
		}
	}
}

// DrainQueue 清理已取消的排队项，并把空闲槽位分配给排队者，返回分配数量
func (e *Executor) DrainQueue() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	alive := e.waiters[:0]
	for _, w := range e.waiters {
		if w.ctx.Err() == nil {
			alive = append(alive, w)
		}
	}
	for i := len(alive); i < len(e.waiters); i++ {
		e.waiters[i] = nil
	}
	e.waiters = alive

	granted := 0
	for e.running < e.cfg.MaxConcurrentTasks && len(e.waiters) > 0 {
		w := e.waiters[0]
		e.waiters = e.waiters[1:]
		w.granted = true
		close(w.ready)
		e.running++
		granted++
	}
	return granted
}

// QueuedTasks 排队等待槽位的任务数
func (e *Executor) QueuedTasks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.waiters)
}

// RunningTasks 占用槽位的任务数
func (e *Executor) RunningTasks() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// SetMaxConcurrentTasks 调整任务槽位上限，扩容后由 DrainQueue 放行排队者
func (e *Executor) SetMaxConcurrentTasks(n int) error {
	if n <= 0 {
		return fmt.Errorf("并发任务数必须大于0")
	}
	e.mu.Lock()
	e.cfg.MaxConcurrentTasks = n
	e.mu.Unlock()
	e.DrainQueue()
	return nil
}
