package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrInvalidState 状态机不允许当前迁移
	ErrInvalidState = errors.New("invalid state transition")
	// ErrResourceExhausted 资源池容量不足
	ErrResourceExhausted = errors.New("resource pool exhausted")
	// ErrNoWorkerAvailable 无可用Worker且无法创建新Worker
	ErrNoWorkerAvailable = errors.New("no worker available")
	// ErrCancelled 执行被外部取消
	ErrCancelled = errors.New("execution cancelled")
)

// 错误码，记录在 TaskError.Code 上
const (
	CodeTaskTimeout       = "TASK_TIMEOUT"
	CodeTaskFailed        = "TASK_EXECUTION_FAILED"
	CodeResourceExhausted = "RESOURCE_EXHAUSTED"
	CodeNoWorker          = "NO_WORKER_AVAILABLE"
	CodeExecutionFailed   = "EXECUTION_FAILED"
	CodeWorkflowTimeout   = "WORKFLOW_TIMEOUT"
	CodeCancelled         = "CANCELLED"
	CodeInvalidInput      = "INVALID_INPUT"
)

// ValidationError 定义或输入结构校验失败，包含全部违规项
type ValidationError struct {
	Violations []string
}

// NewValidationError 创建校验错误
func NewValidationError(violations ...string) *ValidationError {
	return &ValidationError{Violations: violations}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Violations, "; "))
}

// NotFoundError 工作流或执行不存在
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// CapacityError 达到并发执行上限
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("maximum concurrent executions reached (%d)", e.Limit)
}

// TaskTimeoutError 任务超过截止时间，按重试策略可重试
type TaskTimeoutError struct {
	TaskID  string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s execution timeout after %v", e.TaskID, e.Timeout)
}

// TaskExecutionError Worker执行报错
type TaskExecutionError struct {
	TaskID    string
	Retryable bool
	Err       error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %s execution failed: %v", e.TaskID, e.Err)
}

func (e *TaskExecutionError) Unwrap() error {
	return e.Err
}

// WorkflowExecutionError 驱动执行时的未预期故障，对该执行总是致命的
type WorkflowExecutionError struct {
	ExecutionID string
	Err         error
}

func (e *WorkflowExecutionError) Error() string {
	return fmt.Sprintf("workflow execution %s failed: %v", e.ExecutionID, e.Err)
}

func (e *WorkflowExecutionError) Unwrap() error {
	return e.Err
}

// NonRetryable Runner返回该错误表示不应重试
type NonRetryable struct {
	Err error
}

// Permanent 将错误标记为不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryable{Err: err}
}

func (e *NonRetryable) Error() string {
	return e.Err.Error()
}

func (e *NonRetryable) Unwrap() error {
	return e.Err
}

// IsRetryable 判断错误是否可重试
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var nr *NonRetryable
	if errors.As(err, &nr) {
		return false
	}
	var te *TaskExecutionError
	if errors.As(err, &te) {
		return te.Retryable
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return false
	}
	return !errors.Is(err, ErrCancelled)
}
