package workflow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/workflow-orchestrator/pkg/core/resource"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
)

// RetryPolicy 重试策略（对外导出）
type RetryPolicy struct {
	// MaxAttempts 最大重试次数，总尝试次数不超过 MaxAttempts+1
	MaxAttempts int `json:"max_attempts" yaml:"max_attempts" validate:"gte=0,lte=100"`
	// BaseDelayMs 退避基数，第n次重试前等待 BaseDelayMs*2^n
	BaseDelayMs int64 `json:"base_delay_ms" yaml:"base_delay_ms" validate:"gte=0"`
	// MaxDelayMs 单次退避上限，0表示使用全局配置
	MaxDelayMs int64 `json:"max_delay_ms,omitempty" yaml:"max_delay_ms" validate:"gte=0"`
}

// TaskDefinition 任务定义（对外导出）
// 归属于唯一的 WorkflowDefinition，ID 在该定义内唯一
type TaskDefinition struct {
	ID                    string                      `json:"id" yaml:"id" validate:"required"`
	Name                  string                      `json:"name" yaml:"name"`
	Type                  types.TaskType              `json:"type" yaml:"type" validate:"required,oneof=API_CALL DATA_TRANSFORM VALIDATION NOTIFICATION DELAY CUSTOM"`
	RoutingStrategy       types.RoutingStrategy       `json:"routing_strategy,omitempty" yaml:"routing_strategy" validate:"omitempty,oneof=ROUND_ROBIN LEAST_LOADED PERFORMANCE_BASED SKILL_BASED"`
	TimeoutMs             int64                       `json:"timeout_ms,omitempty" yaml:"timeout_ms" validate:"gte=0"`
	RetryPolicy           *RetryPolicy                `json:"retry_policy,omitempty" yaml:"retry_policy"`
	ErrorHandlingStrategy types.ErrorHandlingStrategy `json:"error_handling_strategy,omitempty" yaml:"error_handling_strategy" validate:"omitempty,oneof=STOP_ON_ERROR CONTINUE"`
	Dependencies          []string                    `json:"dependencies,omitempty" yaml:"dependencies"`
	Condition             *Condition                  `json:"condition,omitempty" yaml:"condition"`
	Config                map[string]interface{}      `json:"config,omitempty" yaml:"config"`
	Resources             resource.Requirements       `json:"resources,omitempty" yaml:"resources"`
}

// ErrorStrategy 返回生效的错误处理策略，未设置时为 STOP_ON_ERROR
func (t *TaskDefinition) ErrorStrategy() types.ErrorHandlingStrategy {
	if t.ErrorHandlingStrategy == "" {
		return types.StopOnError
	}
	return t.ErrorHandlingStrategy
}

// Clone 深拷贝任务定义
func (t *TaskDefinition) Clone() *TaskDefinition {
	if t == nil {
		return nil
	}
	c := *t
	if t.RetryPolicy != nil {
		rp := *t.RetryPolicy
		c.RetryPolicy = &rp
	}
	if t.Condition != nil {
		cond := *t.Condition
		c.Condition = &cond
	}
	c.Dependencies = append([]string(nil), t.Dependencies...)
	c.Config = cloneMap(t.Config)
	return &c
}

// Statistics 定义的运行统计
type Statistics struct {
	ExecutionCount       int64   `json:"execution_count"`
	SuccessCount         int64   `json:"success_count"`
	AverageExecutionTime float64 `json:"average_execution_time_ms"`
}

// SuccessRate 成功率（0~100）
func (s Statistics) SuccessRate() float64 {
	if s.ExecutionCount == 0 {
		return 0
	}
	return float64(s.SuccessCount) / float64(s.ExecutionCount) * 100
}

// WorkflowDefinition 工作流定义（对外导出）
type WorkflowDefinition struct {
	mu sync.Mutex

	ID            string              `json:"id"`
	Name          string              `json:"name" yaml:"name" validate:"required"`
	Description   string              `json:"description,omitempty" yaml:"description"`
	Category      string              `json:"category,omitempty" yaml:"category"`
	ExecutionMode types.ExecutionMode `json:"execution_mode" yaml:"execution_mode" validate:"required,oneof=SEQUENTIAL PARALLEL CONDITIONAL"`
	Tasks         []*TaskDefinition   `json:"tasks" yaml:"tasks" validate:"dive,required"`
	Tags          []string            `json:"tags,omitempty" yaml:"tags"`
	Active        bool                `json:"active" yaml:"active"`
	// Schedule 可选的cron表达式（秒级），设置后按计划触发执行
	Schedule  string    `json:"schedule,omitempty" yaml:"schedule"`
	TenantID  string    `json:"tenant_id,omitempty"`
	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Statistics Statistics `json:"statistics"`
}

// NewWorkflowDefinition 创建工作流定义（对外导出）
func NewWorkflowDefinition(name string, mode types.ExecutionMode, tasks ...*TaskDefinition) *WorkflowDefinition {
	now := time.Now()
	return &WorkflowDefinition{
		ID:            uuid.NewString(),
		Name:          name,
		ExecutionMode: mode,
		Tasks:         tasks,
		Active:        true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Status 由 Active 派生的定义状态
func (d *WorkflowDefinition) Status() types.DefinitionStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Active {
		return types.DefinitionActive
	}
	return types.DefinitionInactive
}

// IsActive 是否启用
func (d *WorkflowDefinition) IsActive() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Active
}

// SetActive 启用/停用定义
func (d *WorkflowDefinition) SetActive(active bool, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Active = active
	d.UpdatedBy = userID
	d.UpdatedAt = time.Now()
}

// Task 按ID查找任务定义
func (d *WorkflowDefinition) Task(taskID string) (*TaskDefinition, bool) {
	for _, t := range d.Tasks {
		if t != nil && t.ID == taskID {
			return t, true
		}
	}
	return nil, false
}

// TaskIDs 定义顺序的任务ID列表
func (d *WorkflowDefinition) TaskIDs() []string {
	ids := make([]string, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		if t != nil {
			ids = append(ids, t.ID)
		}
	}
	return ids
}

// DependencyMap 任务ID -> 依赖任务ID列表
func (d *WorkflowDefinition) DependencyMap() map[string][]string {
	deps := make(map[string][]string, len(d.Tasks))
	for _, t := range d.Tasks {
		if t != nil && len(t.Dependencies) > 0 {
			deps[t.ID] = append([]string(nil), t.Dependencies...)
		}
	}
	return deps
}

// HasAnyTag 是否包含任一标签
func (d *WorkflowDefinition) HasAnyTag(tags []string) bool {
	for _, want := range tags {
		for _, have := range d.Tags {
			if want == have {
				return true
			}
		}
	}
	return false
}

// RecordExecution 在定义自身的锁下更新统计（读-改-写原子）
func (d *WorkflowDefinition) RecordExecution(success bool, duration time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := &d.Statistics
	s.ExecutionCount++
	if success {
		s.SuccessCount++
	}
	ms := float64(duration.Milliseconds())
	s.AverageExecutionTime = (s.AverageExecutionTime*float64(s.ExecutionCount-1) + ms) / float64(s.ExecutionCount)
}

// Stats 统计快照
func (d *WorkflowDefinition) Stats() Statistics {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Statistics
}

// Clone 深拷贝定义（含统计快照），用于对外返回和持久化
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &WorkflowDefinition{
		ID:            d.ID,
		Name:          d.Name,
		Description:   d.Description,
		Category:      d.Category,
		ExecutionMode: d.ExecutionMode,
		Tags:          append([]string(nil), d.Tags...),
		Active:        d.Active,
		Schedule:      d.Schedule,
		TenantID:      d.TenantID,
		CreatedBy:     d.CreatedBy,
		UpdatedBy:     d.UpdatedBy,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
		Statistics:    d.Statistics,
	}
	c.Tasks = make([]*TaskDefinition, 0, len(d.Tasks))
	for _, t := range d.Tasks {
		c.Tasks = append(c.Tasks, t.Clone())
	}
	return c
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if nested, ok := v.(map[string]interface{}); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
