// Package events 定义工作流生命周期事件及基于 Watermill 的事件总线
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// Type 事件类型，同时作为 Watermill topic
type Type string

const (
	WorkflowDefinitionCreated  Type = "workflow.definition.created"  // 工作流定义已创建
	WorkflowExecutionStarted   Type = "workflow.execution.started"   // 执行已启动
	WorkflowExecutionCompleted Type = "workflow.execution.completed" // 执行已结束（成功或失败）
)

// AllTypes 全部生命周期事件类型
func AllTypes() []Type {
	return []Type{WorkflowDefinitionCreated, WorkflowExecutionStarted, WorkflowExecutionCompleted}
}

// IsValid 是否为已知事件类型
func (t Type) IsValid() bool {
	for _, known := range AllTypes() {
		if t == known {
			return true
		}
	}
	return false
}

// Event 生命周期事件
type Event struct {
	ID          string    `json:"id"`
	Type        Type      `json:"type"`
	WorkflowID  string    `json:"workflow_id"`
	ExecutionID string    `json:"execution_id,omitempty"`
	TenantID    string    `json:"tenant_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Timestamp   time.Time `json:"timestamp"`

	// 定义创建事件
	WorkflowName string `json:"workflow_name,omitempty"`
	TaskCount    int    `json:"task_count,omitempty"`

	// 执行结束事件
	Success    bool              `json:"success"`
	Status     string            `json:"status,omitempty"`
	DurationMs int64             `json:"duration_ms,omitempty"`
	Summary    *workflow.Summary `json:"summary,omitempty"`
}

func newEvent(t Type, workflowID string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       t,
		WorkflowID: workflowID,
		Timestamp:  time.Now(),
	}
}

// DefinitionCreated 构造定义创建事件
func DefinitionCreated(def *workflow.WorkflowDefinition, tenantID, userID string) *Event {
	e := newEvent(WorkflowDefinitionCreated, def.ID)
	e.TenantID = tenantID
	e.UserID = userID
	e.WorkflowName = def.Name
	e.TaskCount = len(def.Tasks)
	return e
}

// ExecutionStarted 构造执行启动事件
func ExecutionStarted(execution *workflow.WorkflowExecution) *Event {
	e := newEvent(WorkflowExecutionStarted, execution.WorkflowID)
	e.ExecutionID = execution.ExecutionID
	e.TenantID = execution.TenantID
	e.UserID = execution.UserID
	e.Status = string(execution.GetStatus())
	e.TaskCount = len(execution.TaskIDs)
	return e
}

// ExecutionCompleted 构造执行结束事件，携带结果摘要
func ExecutionCompleted(execution *workflow.WorkflowExecution) *Event {
	e := newEvent(WorkflowExecutionCompleted, execution.WorkflowID)
	snapshot := execution.Snapshot()
	summary := snapshot.Summarize()
	e.ExecutionID = snapshot.ExecutionID
	e.TenantID = snapshot.TenantID
	e.UserID = snapshot.UserID
	e.Status = string(snapshot.Status)
	e.Success = snapshot.Success
	e.DurationMs = snapshot.DurationMs
	e.TaskCount = len(snapshot.TaskIDs)
	e.Summary = &summary
	return e
}
