package workflow

import (
	"fmt"
	"time"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
)

// TaskError 记录在执行上的结构化错误（对外导出）
type TaskError struct {
	TaskID      string                 `json:"task_id,omitempty"`
	Code        string                 `json:"code"`
	Message     string                 `json:"message"`
	Severity    types.Severity         `json:"severity"`
	IsRetryable bool                   `json:"is_retryable"`
	Timestamp   time.Time              `json:"timestamp"`
	Context     map[string]interface{} `json:"context,omitempty"`
}

// NewTaskError 创建结构化错误
func NewTaskError(taskID, code, message string, severity types.Severity, retryable bool) *TaskError {
	return &TaskError{
		TaskID:      taskID,
		Code:        code,
		Message:     message,
		Severity:    severity,
		IsRetryable: retryable,
		Timestamp:   time.Now(),
	}
}

func (e *TaskError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return fmt.Sprintf("[%s] task %s: %s", e.Code, e.TaskID, e.Message)
}

// Clone 拷贝错误
func (e *TaskError) Clone() *TaskError {
	if e == nil {
		return nil
	}
	c := *e
	c.Context = cloneMap(e.Context)
	return &c
}

// TaskExecutionResult 单个任务在一次执行中的结果（对外导出）
// 以 (ExecutionID, TaskID) 为键，重试复用同一条记录
type TaskExecutionResult struct {
	ExecutionID  string                 `json:"execution_id"`
	TaskID       string                 `json:"task_id"`
	Status       types.TaskStatus       `json:"status"`
	WorkerID     string                 `json:"worker_id,omitempty"`
	StartTime    *time.Time             `json:"start_time,omitempty"`
	CompleteTime *time.Time             `json:"complete_time,omitempty"`
	DurationMs   int64                  `json:"duration_ms"`
	Output       map[string]interface{} `json:"output,omitempty"`
	Error        *TaskError             `json:"error,omitempty"`
	RetryCount   int                    `json:"retry_count"`
}

// NewTaskExecutionResult 创建 PENDING 状态的结果
func NewTaskExecutionResult(executionID, taskID string) *TaskExecutionResult {
	return &TaskExecutionResult{
		ExecutionID: executionID,
		TaskID:      taskID,
		Status:      types.TaskPending,
	}
}

// MarkRunning 进入 RUNNING，首次进入时记录开始时间
func (r *TaskExecutionResult) MarkRunning() {
	r.Status = types.TaskRunning
	if r.StartTime == nil {
		now := time.Now()
		r.StartTime = &now
	}
}

// MarkCompleted 成功结束
func (r *TaskExecutionResult) MarkCompleted(output map[string]interface{}) {
	r.finish(types.TaskCompleted)
	r.Output = output
	r.Error = nil
}

// MarkFailed 失败结束
func (r *TaskExecutionResult) MarkFailed(taskErr *TaskError) {
	r.finish(types.TaskFailed)
	r.Error = taskErr
}

// MarkSkipped 条件不满足跳过
func (r *TaskExecutionResult) MarkSkipped(reason string) {
	r.finish(types.TaskSkipped)
	r.Output = map[string]interface{}{"skipped": true, "reason": reason}
}

func (r *TaskExecutionResult) finish(status types.TaskStatus) {
	now := time.Now()
	if r.StartTime == nil {
		r.StartTime = &now
	}
	r.CompleteTime = &now
	r.DurationMs = now.Sub(*r.StartTime).Milliseconds()
	r.Status = status
}

// Clone 拷贝结果
func (r *TaskExecutionResult) Clone() *TaskExecutionResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.StartTime != nil {
		t := *r.StartTime
		c.StartTime = &t
	}
	if r.CompleteTime != nil {
		t := *r.CompleteTime
		c.CompleteTime = &t
	}
	c.Output = cloneMap(r.Output)
	c.Error = r.Error.Clone()
	return &c
}
