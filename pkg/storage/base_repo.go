// Package storage 工作流定义与执行记录的持久化
package storage

import (
	"context"
	"time"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// DefinitionRepository 工作流定义存储（对外导出）
// 不存在时返回 *types.NotFoundError
type DefinitionRepository interface {
	SaveDefinition(ctx context.Context, def *workflow.WorkflowDefinition) error
	GetDefinition(ctx context.Context, id string) (*workflow.WorkflowDefinition, error)
	ListDefinitions(ctx context.Context) ([]*workflow.WorkflowDefinition, error)
	DeleteDefinition(ctx context.Context, id string) error
}

// ExecutionFilter 执行记录查询条件，零值字段不参与过滤
type ExecutionFilter struct {
	WorkflowID string
	Status     types.ExecutionStatus
	Limit      int
}

// ExecutionRepository 执行记录存储（对外导出）
// 保存的是执行快照，按 CreatedAt 倒序返回
type ExecutionRepository interface {
	SaveExecution(ctx context.Context, execution *workflow.WorkflowExecution) error
	GetExecution(ctx context.Context, id string) (*workflow.WorkflowExecution, error)
	ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*workflow.WorkflowExecution, error)
	DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error)
}

// Repository 编排器使用的完整存储
type Repository interface {
	DefinitionRepository
	ExecutionRepository
	Close() error
}
