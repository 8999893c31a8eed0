package dto

import (
	"time"

	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// APIResponse 通用API响应结构
type APIResponse[T any] struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse[T any](data T) APIResponse[T] {
	return APIResponse[T]{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) APIResponse[any] {
	return APIResponse[any]{
		Code:    code,
		Message: message,
	}
}

// WorkflowSummary Workflow摘要信息
type WorkflowSummary struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Category      string    `json:"category,omitempty"`
	ExecutionMode string    `json:"execution_mode"`
	TaskCount     int       `json:"task_count"`
	Status        string    `json:"status"`
	Schedule      string    `json:"schedule,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// WorkflowDetail Workflow详细信息
type WorkflowDetail struct {
	WorkflowSummary
	Tasks      []*workflow.TaskDefinition `json:"tasks"`
	Statistics workflow.Statistics        `json:"statistics"`
	TenantID   string                     `json:"tenant_id,omitempty"`
	CreatedBy  string                     `json:"created_by,omitempty"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

// NewWorkflowSummary 定义转摘要
func NewWorkflowSummary(def *workflow.WorkflowDefinition) WorkflowSummary {
	return WorkflowSummary{
		ID:            def.ID,
		Name:          def.Name,
		Description:   def.Description,
		Category:      def.Category,
		ExecutionMode: string(def.ExecutionMode),
		TaskCount:     len(def.Tasks),
		Status:        string(def.Status()),
		Schedule:      def.Schedule,
		Tags:          def.Tags,
		CreatedAt:     def.CreatedAt,
	}
}

// NewWorkflowDetail 定义转详情
func NewWorkflowDetail(def *workflow.WorkflowDefinition) WorkflowDetail {
	return WorkflowDetail{
		WorkflowSummary: NewWorkflowSummary(def),
		Tasks:           def.Tasks,
		Statistics:      def.Stats(),
		TenantID:        def.TenantID,
		CreatedBy:       def.CreatedBy,
		UpdatedAt:       def.UpdatedAt,
	}
}

// ExecutionSummary 执行摘要信息
type ExecutionSummary struct {
	ID             string           `json:"id"`
	WorkflowID     string           `json:"workflow_id"`
	Status         string           `json:"status"`
	Success        bool             `json:"success"`
	Progress       float64          `json:"progress"`
	CreatedAt      time.Time        `json:"created_at"`
	CompletionTime *time.Time       `json:"completion_time,omitempty"`
	Duration       string           `json:"duration,omitempty"`
	CancelReason   string           `json:"cancel_reason,omitempty"`
	Summary        workflow.Summary `json:"summary"`
}

// NewExecutionSummary 执行快照转摘要
func NewExecutionSummary(e *workflow.WorkflowExecution) ExecutionSummary {
	s := e.Summarize()
	out := ExecutionSummary{
		ID:             e.ExecutionID,
		WorkflowID:     e.WorkflowID,
		Status:         string(e.Status),
		Success:        e.Success,
		Progress:       s.Progress,
		CreatedAt:      e.CreatedAt,
		CompletionTime: e.CompletionTime,
		CancelReason:   e.CancelReason,
		Summary:        s,
	}
	if e.CompletionTime != nil {
		out.Duration = FormatDuration(e.Duration())
	}
	return out
}

// ExecuteResponse 执行响应
type ExecuteResponse struct {
	ExecutionID string `json:"execution_id"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status            string   `json:"status"`
	Version           string   `json:"version"`
	Uptime            string   `json:"uptime"`
	Timestamp         string   `json:"timestamp"`
	ActiveExecutions  int      `json:"active_executions"`
	QueuedTasks       int      `json:"queued_tasks"`
	WorkerUtilization float64  `json:"worker_utilization"`
	Problems          []string `json:"problems,omitempty"`
}

// ListResponse 列表响应
type ListResponse[T any] struct {
	Total   int  `json:"total"`
	Items   []T  `json:"items"`
	HasMore bool `json:"has_more"`
}

// FormatDuration 格式化时长
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}
