package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/LENAX/workflow-orchestrator/pkg/core/dag"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// TaskRunner 执行单个任务，executor.Executor 实现该接口
type TaskRunner interface {
	Execute(ctx context.Context, task *workflow.TaskDefinition, execution *workflow.WorkflowExecution) *workflow.TaskExecutionResult
}

// Outcome 一次驱动的结果
// Failure 非空表示执行级失败（超时、取消、panic），此时 Success 为 false
type Outcome struct {
	Success bool
	Stopped bool
	Failure *workflow.TaskError
}

// Controller 工作流执行控制器（对外导出）
// 按执行模式调度任务，只负责驱动，不负责终结执行
type Controller struct {
	runner TaskRunner
}

// NewController 创建执行控制器
func NewController(runner TaskRunner) *Controller {
	return &Controller{runner: runner}
}

// Start 写入待执行任务并进入 RUNNING
func (c *Controller) Start(execution *workflow.WorkflowExecution, taskIDs []string) error {
	return execution.Start(taskIDs)
}

// Drive 按定义的执行模式驱动执行，直到全部任务处理完、提前停止或 ctx 结束
func (c *Controller) Drive(ctx context.Context, execution *workflow.WorkflowExecution, def *workflow.WorkflowDefinition) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Controller] ❌ 驱动执行发生panic: Execution=%s, panic=%v\n%s", execution.ExecutionID, r, debug.Stack())
			outcome = Outcome{Failure: panicFailure(r)}
		}
	}()

	var err error
	switch def.ExecutionMode {
	case types.ExecutionModeSequential:
		outcome = c.runSequential(ctx, execution, def)
	case types.ExecutionModeParallel:
		outcome, err = c.runParallel(ctx, execution, def)
	case types.ExecutionModeConditional:
		outcome, err = c.runConditional(ctx, execution, def)
	default:
		err = fmt.Errorf("不支持的执行模式: %s", def.ExecutionMode)
	}
	if err != nil {
		return Outcome{Failure: workflow.NewTaskError("", types.CodeExecutionFailed, err.Error(), types.SeverityHigh, false)}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Outcome{Failure: contextFailure(ctxErr)}
	}
	return outcome
}

// runSequential 按定义顺序逐个执行，STOP_ON_ERROR 任务失败时提前停止
func (c *Controller) runSequential(ctx context.Context, execution *workflow.WorkflowExecution, def *workflow.WorkflowDefinition) Outcome {
	for ctx.Err() == nil {
		taskID, ok := execution.NextPending()
		if !ok {
			break
		}
		task, found := def.Task(taskID)
		if !found {
			continue
		}
		result := c.runTask(ctx, task, execution)
		if result.Status == types.TaskFailed && task.ErrorStrategy() == types.StopOnError {
			log.Printf("[Controller] 任务失败，停止后续任务: Execution=%s, Task=%s", execution.ExecutionID, task.ID)
			return Outcome{Stopped: true}
		}
	}
	return Outcome{Success: execution.Progress() == 100}
}

// runParallel 全部任务并发执行，单个失败不取消其他任务，至少一个任务成功即视为成功
func (c *Controller) runParallel(ctx context.Context, execution *workflow.WorkflowExecution, def *workflow.WorkflowDefinition) (Outcome, error) {
	var g errgroup.Group
	for _, task := range def.Tasks {
		execution.TakePending(task.ID)
		g.Go(func() error {
			return c.runTaskSafely(ctx, task, execution)
		})
	}
	if err := g.Wait(); err != nil {
		return Outcome{}, err
	}
	return Outcome{Success: execution.CountByStatus(types.TaskCompleted) >= 1}, nil
}

// runConditional 按依赖分批执行：依赖全部结束的任务组成一批并发执行
func (c *Controller) runConditional(ctx context.Context, execution *workflow.WorkflowExecution, def *workflow.WorkflowDefinition) (Outcome, error) {
	graph, err := dag.Build(def.TaskIDs(), def.DependencyMap())
	if err != nil {
		return Outcome{}, fmt.Errorf("构建依赖图失败: %w", err)
	}

	done := make(map[string]bool, graph.Len())
	dispatched := make(map[string]bool, graph.Len())
	for ctx.Err() == nil {
		ready := graph.Ready(done, dispatched)
		if len(ready) == 0 {
			break
		}

		var (
			g       errgroup.Group
			mu      sync.Mutex
			stopped bool
		)
		for _, taskID := range ready {
			task, found := def.Task(taskID)
			dispatched[taskID] = true
			if !found {
				continue
			}
			execution.TakePending(taskID)
			g.Go(func() error {
				result, err := c.runTaskRecovered(ctx, task, execution)
				if err != nil {
					return err
				}
				if result.Status == types.TaskFailed && task.ErrorStrategy() == types.StopOnError {
					mu.Lock()
					stopped = true
					mu.Unlock()
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return Outcome{}, err
		}
		for _, taskID := range ready {
			done[taskID] = true
		}
		if stopped {
			log.Printf("[Controller] 依赖任务失败，停止调度: Execution=%s", execution.ExecutionID)
			return Outcome{Stopped: true}, nil
		}
	}
	return Outcome{Success: execution.Progress() == 100}, nil
}

// runTask 条件不满足时标记 SKIPPED，否则交给执行单元
func (c *Controller) runTask(ctx context.Context, task *workflow.TaskDefinition, execution *workflow.WorkflowExecution) *workflow.TaskExecutionResult {
	if task.Condition != nil {
		ok, err := task.Condition.Evaluate(execution.ConditionScope())
		result := workflow.NewTaskExecutionResult(execution.ExecutionID, task.ID)
		switch {
		case err != nil:
			result.MarkFailed(workflow.NewTaskError(task.ID, types.CodeInvalidInput,
				fmt.Sprintf("条件求值失败: %v", err), types.SeverityHigh, false))
			execution.UpdateTaskResult(result)
			return result
		case !ok:
			result.MarkSkipped("condition not met")
			execution.UpdateTaskResult(result)
			log.Printf("[Controller] 条件不满足，跳过任务: Execution=%s, Task=%s", execution.ExecutionID, task.ID)
			return result
		}
	}
	return c.runner.Execute(ctx, task, execution)
}

func (c *Controller) runTaskSafely(ctx context.Context, task *workflow.TaskDefinition, execution *workflow.WorkflowExecution) error {
	_, err := c.runTaskRecovered(ctx, task, execution)
	return err
}

// runTaskRecovered 在任务 goroutine 内捕获 panic，转成 error 交给 errgroup
func (c *Controller) runTaskRecovered(ctx context.Context, task *workflow.TaskDefinition, execution *workflow.WorkflowExecution) (result *workflow.TaskExecutionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Controller] ❌ 任务goroutine发生panic: Execution=%s, Task=%s, panic=%v", execution.ExecutionID, task.ID, r)
			err = fmt.Errorf("task %s panic: %v", task.ID, r)
		}
	}()
	return c.runTask(ctx, task, execution), nil
}

func panicFailure(r interface{}) *workflow.TaskError {
	return workflow.NewTaskError("", types.CodeExecutionFailed, fmt.Sprintf("panic: %v", r), types.SeverityHigh, false)
}

// contextFailure ctx 结束对应的执行级错误
func contextFailure(err error) *workflow.TaskError {
	if errors.Is(err, context.DeadlineExceeded) {
		return workflow.NewTaskError("", types.CodeWorkflowTimeout, "workflow execution timeout", types.SeverityHigh, false)
	}
	return workflow.NewTaskError("", types.CodeCancelled, "workflow execution cancelled", types.SeverityHigh, false)
}
