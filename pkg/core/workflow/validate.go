package workflow

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/LENAX/workflow-orchestrator/pkg/core/dag"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ScheduleParser 秒级cron解析器，与调度器保持一致
var ScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate 校验工作流定义，返回的 *types.ValidationError 列出全部违规项
// 零任务的定义允许创建，但不能执行
func Validate(def *WorkflowDefinition) error {
	if def == nil {
		return types.NewValidationError("workflow definition is required")
	}

	violations := make([]string, 0)
	if err := structValidator().Struct(def); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			for _, fe := range fieldErrs {
				violations = append(violations, describeFieldError(fe))
			}
		} else {
			violations = append(violations, err.Error())
		}
	}

	seen := make(map[string]bool, len(def.Tasks))
	for i, t := range def.Tasks {
		if t == nil || t.ID == "" {
			continue
		}
		if seen[t.ID] {
			violations = append(violations, fmt.Sprintf("Tasks[%d].ID: duplicate task id %q", i, t.ID))
		}
		seen[t.ID] = true
	}

	if def.ExecutionMode == types.ExecutionModeConditional {
		violations = append(violations, validateDependencies(def, seen)...)
	}

	if def.Schedule != "" {
		if _, err := ScheduleParser.Parse(def.Schedule); err != nil {
			violations = append(violations, fmt.Sprintf("Schedule: invalid cron expression %q: %v", def.Schedule, err))
		}
	}

	if len(violations) > 0 {
		return types.NewValidationError(violations...)
	}
	return nil
}

// validateDependencies 条件模式下依赖必须引用同一定义内的任务，且不能成环
func validateDependencies(def *WorkflowDefinition, known map[string]bool) []string {
	violations := make([]string, 0)
	broken := false
	for _, t := range def.Tasks {
		if t == nil {
			continue
		}
		for _, depID := range t.Dependencies {
			if depID == t.ID {
				violations = append(violations, fmt.Sprintf("task %q depends on itself", t.ID))
				broken = true
				continue
			}
			if !known[depID] {
				violations = append(violations, fmt.Sprintf("task %q depends on unknown task %q", t.ID, depID))
				broken = true
			}
		}
	}
	if broken || len(known) != len(def.TaskIDs()) {
		return violations
	}
	if _, err := dag.Build(def.TaskIDs(), def.DependencyMap()); err != nil {
		violations = append(violations, err.Error())
	}
	return violations
}

func describeFieldError(fe validator.FieldError) string {
	ns := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", ns)
	case "oneof":
		return fmt.Sprintf("%s: invalid value %q, must be one of [%s]", ns, fmt.Sprint(fe.Value()), fe.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", ns, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", ns, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", ns, fe.Tag())
	}
}

// CanExecute 执行前校验：定义需启用且至少包含一个任务
func CanExecute(def *WorkflowDefinition) error {
	if len(def.Tasks) == 0 {
		return types.NewValidationError(fmt.Sprintf("workflow %s has no tasks", def.ID))
	}
	if !def.IsActive() {
		return types.NewValidationError(fmt.Sprintf("workflow %s is inactive", def.ID))
	}
	return nil
}
