package types

// ExecutionMode 工作流执行模式（对外导出）
type ExecutionMode string

const (
	// ExecutionModeSequential 顺序执行，逐个任务推进
	ExecutionModeSequential ExecutionMode = "SEQUENTIAL"
	// ExecutionModeParallel 并行执行，全部任务同时启动，等待全部结束
	ExecutionModeParallel ExecutionMode = "PARALLEL"
	// ExecutionModeConditional 条件执行，按依赖关系逐层放行
	ExecutionModeConditional ExecutionMode = "CONDITIONAL"
)

// IsValid 检查执行模式是否有效
func (m ExecutionMode) IsValid() bool {
	switch m {
	case ExecutionModeSequential, ExecutionModeParallel, ExecutionModeConditional:
		return true
	default:
		return false
	}
}

// TaskType 任务类型（对外导出）
// 封闭集合，每种类型由一个 worker.Runner 负责执行
type TaskType string

const (
	TaskTypeAPICall       TaskType = "API_CALL"
	TaskTypeDataTransform TaskType = "DATA_TRANSFORM"
	TaskTypeValidation    TaskType = "VALIDATION"
	TaskTypeNotification  TaskType = "NOTIFICATION"
	TaskTypeDelay         TaskType = "DELAY"
	TaskTypeCustom        TaskType = "CUSTOM"
)

// AllTaskTypes 返回全部任务类型
func AllTaskTypes() []TaskType {
	return []TaskType{
		TaskTypeAPICall,
		TaskTypeDataTransform,
		TaskTypeValidation,
		TaskTypeNotification,
		TaskTypeDelay,
		TaskTypeCustom,
	}
}

// IsValid 检查任务类型是否有效
func (t TaskType) IsValid() bool {
	for _, tt := range AllTaskTypes() {
		if tt == t {
			return true
		}
	}
	return false
}

// RoutingStrategy Worker路由策略（对外导出）
type RoutingStrategy string

const (
	RoutingRoundRobin       RoutingStrategy = "ROUND_ROBIN"
	RoutingLeastLoaded      RoutingStrategy = "LEAST_LOADED"
	RoutingPerformanceBased RoutingStrategy = "PERFORMANCE_BASED"
	RoutingSkillBased       RoutingStrategy = "SKILL_BASED"
)

// IsValid 检查路由策略是否有效（空值表示使用默认策略）
func (s RoutingStrategy) IsValid() bool {
	switch s {
	case "", RoutingRoundRobin, RoutingLeastLoaded, RoutingPerformanceBased, RoutingSkillBased:
		return true
	default:
		return false
	}
}

// ErrorHandlingStrategy 任务失败后的处理策略（对外导出）
type ErrorHandlingStrategy string

const (
	// StopOnError 任务失败即终止整个执行
	StopOnError ErrorHandlingStrategy = "STOP_ON_ERROR"
	// ContinueOnError 记录错误后继续执行后续任务
	ContinueOnError ErrorHandlingStrategy = "CONTINUE"
)

// IsValid 检查错误处理策略是否有效（空值视为 STOP_ON_ERROR）
func (s ErrorHandlingStrategy) IsValid() bool {
	switch s {
	case "", StopOnError, ContinueOnError:
		return true
	default:
		return false
	}
}

// ExecutionStatus 工作流执行状态
type ExecutionStatus string

const (
	ExecutionCreated   ExecutionStatus = "CREATED"
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
)

// IsTerminal 是否为终态
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed
}

// TaskStatus 任务执行状态
type TaskStatus string

const (
	TaskPending   TaskStatus = "PENDING"
	TaskRunning   TaskStatus = "RUNNING"
	TaskCompleted TaskStatus = "COMPLETED"
	TaskFailed    TaskStatus = "FAILED"
	// TaskSkipped 条件不满足而跳过
	TaskSkipped TaskStatus = "SKIPPED"
)

// IsTerminal 是否为终态
func (s TaskStatus) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// DefinitionStatus 工作流定义状态，由 Active 标志派生
type DefinitionStatus string

const (
	DefinitionActive   DefinitionStatus = "ACTIVE"
	DefinitionInactive DefinitionStatus = "INACTIVE"
)

// Severity 错误严重程度
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Priority 执行优先级，数值越大越优先获得任务槽位
type Priority int

const (
	PriorityLow      Priority = 0
	PriorityNormal   Priority = 5
	PriorityHigh     Priority = 10
	PriorityCritical Priority = 20
)
