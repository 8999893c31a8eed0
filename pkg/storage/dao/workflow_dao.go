package dao

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// DefinitionDAO workflow_definition表的数据访问对象（内部使用）
// 可查询的列单独存放，完整定义以JSON存放在 payload
type DefinitionDAO struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	Category      string    `db:"category"`
	ExecutionMode string    `db:"execution_mode"`
	Active        bool      `db:"active"`
	TenantID      string    `db:"tenant_id"`
	Schedule      string    `db:"schedule"`
	Payload       string    `db:"payload"` // JSON格式存储
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// ExecutionDAO workflow_execution表的数据访问对象（内部使用）
type ExecutionDAO struct {
	ID             string       `db:"id"`
	WorkflowID     string       `db:"workflow_id"`
	Status         string       `db:"status"`
	TenantID       string       `db:"tenant_id"`
	Success        bool         `db:"success"`
	CreatedAt      time.Time    `db:"created_at"`
	CompletionTime sql.NullTime `db:"completion_time"`
	Payload        string       `db:"payload"` // JSON格式存储
}

// DefinitionColumns workflow_definition的列，顺序与DDL一致
var DefinitionColumns = []string{
	"id", "name", "category", "execution_mode", "active", "tenant_id", "schedule", "payload", "created_at", "updated_at",
}

// ExecutionColumns workflow_execution的列
var ExecutionColumns = []string{
	"id", "workflow_id", "status", "tenant_id", "success", "created_at", "completion_time", "payload",
}

// FromDefinition 定义转DAO
func FromDefinition(def *workflow.WorkflowDefinition) (*DefinitionDAO, error) {
	payload, err := json.Marshal(def)
	if err != nil {
		return nil, fmt.Errorf("序列化工作流定义失败: %w", err)
	}
	return &DefinitionDAO{
		ID:            def.ID,
		Name:          def.Name,
		Category:      def.Category,
		ExecutionMode: string(def.ExecutionMode),
		Active:        def.IsActive(),
		TenantID:      def.TenantID,
		Schedule:      def.Schedule,
		Payload:       string(payload),
		CreatedAt:     def.CreatedAt.UTC(),
		UpdatedAt:     def.UpdatedAt.UTC(),
	}, nil
}

// ToDefinition DAO转定义，启用状态以列为准
func (d *DefinitionDAO) ToDefinition() (*workflow.WorkflowDefinition, error) {
	def := &workflow.WorkflowDefinition{}
	if err := json.Unmarshal([]byte(d.Payload), def); err != nil {
		return nil, fmt.Errorf("反序列化工作流定义失败: id=%s, %w", d.ID, err)
	}
	def.ID = d.ID
	def.Active = d.Active
	return def, nil
}

// FromExecution 执行快照转DAO
func FromExecution(e *workflow.WorkflowExecution) (*ExecutionDAO, error) {
	snapshot := e.Snapshot()
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("序列化执行记录失败: %w", err)
	}
	d := &ExecutionDAO{
		ID:         snapshot.ExecutionID,
		WorkflowID: snapshot.WorkflowID,
		Status:     string(snapshot.Status),
		TenantID:   snapshot.TenantID,
		Success:    snapshot.Success,
		CreatedAt:  snapshot.CreatedAt.UTC(),
		Payload:    string(payload),
	}
	if snapshot.CompletionTime != nil {
		d.CompletionTime = sql.NullTime{Time: snapshot.CompletionTime.UTC(), Valid: true}
	}
	return d, nil
}

// ToExecution DAO转执行快照
func (d *ExecutionDAO) ToExecution() (*workflow.WorkflowExecution, error) {
	e := &workflow.WorkflowExecution{}
	if err := json.Unmarshal([]byte(d.Payload), e); err != nil {
		return nil, fmt.Errorf("反序列化执行记录失败: id=%s, %w", d.ID, err)
	}
	return e, nil
}
