// Package optimizer 工作流优化与性能预估的建议性钩子
// 结果只用于展示，不影响定义创建与执行
package optimizer

import (
	"context"

	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// Prediction 性能预估
type Prediction struct {
	WorkflowID             string  `json:"workflow_id"`
	EstimatedExecutionTime float64 `json:"estimated_execution_time_ms"`
	EstimatedSuccessRate   float64 `json:"estimated_success_rate"`
	BasedOnExecutions      int64   `json:"based_on_executions"`
	Source                 string  `json:"source"`
}

// Optimizer 建议性优化钩子
type Optimizer interface {
	// OptimizeWorkflow 在定义创建时调用，失败只记录日志
	OptimizeWorkflow(ctx context.Context, def *workflow.WorkflowDefinition) error
	// PredictPerformance 预估执行耗时与成功率
	PredictPerformance(ctx context.Context, def *workflow.WorkflowDefinition) (Prediction, error)
}

// Noop 不做任何事的默认实现
type Noop struct{}

// OptimizeWorkflow 实现 Optimizer 接口
func (Noop) OptimizeWorkflow(context.Context, *workflow.WorkflowDefinition) error { return nil }

// PredictPerformance 实现 Optimizer 接口
func (Noop) PredictPerformance(_ context.Context, def *workflow.WorkflowDefinition) (Prediction, error) {
	return Prediction{WorkflowID: def.ID, Source: "noop"}, nil
}

// Historical 基于定义统计信息的预估
// 没有历史执行时按任务超时之和估计耗时，成功率取 100
type Historical struct{}

// OptimizeWorkflow 实现 Optimizer 接口
func (Historical) OptimizeWorkflow(context.Context, *workflow.WorkflowDefinition) error { return nil }

// PredictPerformance 实现 Optimizer 接口
func (Historical) PredictPerformance(_ context.Context, def *workflow.WorkflowDefinition) (Prediction, error) {
	stats := def.Stats()
	p := Prediction{
		WorkflowID:        def.ID,
		BasedOnExecutions: stats.ExecutionCount,
		Source:            "historical",
	}
	if stats.ExecutionCount > 0 {
		p.EstimatedExecutionTime = stats.AverageExecutionTime
		p.EstimatedSuccessRate = stats.SuccessRate()
		return p, nil
	}
	var total int64
	for _, task := range def.Tasks {
		total += task.TimeoutMs
	}
	p.EstimatedExecutionTime = float64(total)
	p.EstimatedSuccessRate = 100
	return p, nil
}
