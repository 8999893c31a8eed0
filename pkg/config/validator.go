package config

import (
	"fmt"
)

// Validate 校验配置合法性
func Validate(cfg *OrchestratorConfig) error {
	if cfg == nil {
		return fmt.Errorf("配置不能为空")
	}
	o := &cfg.Orchestrator

	// 校验General
	if o.General.InstanceName == "" {
		return fmt.Errorf("instance_name不能为空")
	}
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLevels[o.General.LogLevel] {
		return fmt.Errorf("log_level必须是debug/info/warn/error之一")
	}

	// 校验Storage
	validDBTypes := map[string]bool{
		"memory":     true,
		"sqlite":     true,
		"postgres":   true,
		"postgresql": true,
		"mysql":      true,
	}
	if !validDBTypes[o.Storage.Type] {
		return fmt.Errorf("storage.type必须是memory/sqlite/postgres/mysql之一")
	}
	if o.Storage.Type != "memory" && o.Storage.DSN == "" {
		return fmt.Errorf("storage.dsn不能为空")
	}
	if o.Storage.MaxIdleConns > o.Storage.MaxOpenConns {
		return fmt.Errorf("storage.max_idle_conns不能大于max_open_conns")
	}

	// 校验Execution
	if o.Execution.MaxConcurrentExecutions <= 0 {
		return fmt.Errorf("execution.max_concurrent_executions必须大于0")
	}
	if o.Execution.MaxConcurrentTasks <= 0 {
		return fmt.Errorf("execution.max_concurrent_tasks必须大于0")
	}
	if o.Execution.TaskTimeout <= 0 {
		return fmt.Errorf("execution.task_timeout必须大于0")
	}
	if o.Execution.WorkflowTimeout < o.Execution.TaskTimeout {
		return fmt.Errorf("execution.workflow_timeout不能小于task_timeout")
	}

	// 校验Retry
	r := o.Execution.Retry
	if r.MaxAttempts < 0 || r.MaxAttempts > 100 {
		return fmt.Errorf("execution.retry.max_attempts必须在0~100之间")
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("execution.retry.base_delay/max_delay不能为负数")
	}
	if r.MaxDelay > 0 && r.BaseDelay > r.MaxDelay {
		return fmt.Errorf("execution.retry.base_delay不能大于max_delay")
	}

	// 校验Workers
	if o.Workers.DefaultCapacity <= 0 {
		return fmt.Errorf("workers.default_capacity必须大于0")
	}
	if o.Workers.MaxWorkers <= 0 {
		return fmt.Errorf("workers.max_workers必须大于0")
	}
	validStrategies := map[string]bool{
		"ROUND_ROBIN":       true,
		"LEAST_LOADED":      true,
		"PERFORMANCE_BASED": true,
		"SKILL_BASED":       true,
	}
	if !validStrategies[o.Workers.DefaultStrategy] {
		return fmt.Errorf("workers.default_strategy无效: %s", o.Workers.DefaultStrategy)
	}

	// 校验Resources
	if o.Resources.CPU < 0 || o.Resources.Memory < 0 || o.Resources.Storage < 0 || o.Resources.Network < 0 {
		return fmt.Errorf("resources不能为负数")
	}

	// 校验API
	if o.API.Port <= 0 || o.API.Port > 65535 {
		return fmt.Errorf("api.port必须在1~65535之间")
	}
	return nil
}
