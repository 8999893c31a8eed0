package dto

import "github.com/LENAX/workflow-orchestrator/pkg/core/workflow"

// 请求头中的租户与用户标识
const (
	HeaderTenantID = "X-Tenant-ID"
	HeaderUserID   = "X-User-ID"
)

// WorkflowRequest 创建或更新Workflow请求，CLI 从 YAML 文件读取同一结构
type WorkflowRequest struct {
	Name          string                     `json:"name" yaml:"name" binding:"required"`
	Description   string                     `json:"description" yaml:"description"`
	Category      string                     `json:"category" yaml:"category"`
	ExecutionMode string                     `json:"execution_mode" yaml:"execution_mode" binding:"required,oneof=SEQUENTIAL PARALLEL CONDITIONAL"`
	Tasks         []*workflow.TaskDefinition `json:"tasks" yaml:"tasks"`
	Tags          []string                   `json:"tags" yaml:"tags"`
	Schedule      string                     `json:"schedule" yaml:"schedule"`
}

// ExecuteWorkflowRequest 执行Workflow请求
type ExecuteWorkflowRequest struct {
	Input     map[string]interface{} `json:"input" binding:"omitempty"`
	Priority  int                    `json:"priority" binding:"omitempty,min=0,max=20"`
	TimeoutMs int64                  `json:"timeout_ms" binding:"omitempty,min=0"`
}

// ActivateRequest 启用/停用请求
type ActivateRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// CancelRequest 取消执行请求
type CancelRequest struct {
	Reason string `json:"reason"`
}

// WorkflowQueryRequest Workflow列表查询
type WorkflowQueryRequest struct {
	Category string   `form:"category"`
	Status   string   `form:"status" binding:"omitempty,oneof=ACTIVE INACTIVE"`
	Tags     []string `form:"tag"`
}

// ExecutionQueryRequest 执行列表查询
type ExecutionQueryRequest struct {
	WorkflowID string `form:"workflow_id"`
	Status     string `form:"status" binding:"omitempty,oneof=CREATED RUNNING COMPLETED FAILED"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=100"`
	Offset     int    `form:"offset" binding:"omitempty,min=0"`
}

// GetDefaultLimit 获取默认limit
func (r *ExecutionQueryRequest) GetDefaultLimit() int {
	if r.Limit <= 0 {
		return 20
	}
	return r.Limit
}
