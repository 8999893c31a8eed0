package config

import (
	"time"
)

// OrchestratorConfig 编排器配置（对外导出）
type OrchestratorConfig struct {
	Orchestrator struct {
		General struct {
			InstanceName string `yaml:"instance_name"`
			LogLevel     string `yaml:"log_level"`
			Env          string `yaml:"env"`
		} `yaml:"general"`
		Storage struct {
			Type            string        `yaml:"type"`
			DSN             string        `yaml:"dsn"`
			MaxOpenConns    int           `yaml:"max_open_conns"`
			MaxIdleConns    int           `yaml:"max_idle_conns"`
			ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
		} `yaml:"storage"`
		Execution struct {
			MaxConcurrentExecutions int           `yaml:"max_concurrent_executions"`
			MaxConcurrentTasks      int           `yaml:"max_concurrent_tasks"`
			TaskTimeout             time.Duration `yaml:"task_timeout"`
			WorkflowTimeout         time.Duration `yaml:"workflow_timeout"`
			TimeoutGrace            time.Duration `yaml:"timeout_grace"`
			HistoryRetention        time.Duration `yaml:"history_retention"`
			Retry                   struct {
				MaxAttempts int           `yaml:"max_attempts"`
				BaseDelay   time.Duration `yaml:"base_delay"`
				MaxDelay    time.Duration `yaml:"max_delay"`
			} `yaml:"retry"`
		} `yaml:"execution"`
		Workers struct {
			DefaultCapacity int    `yaml:"default_capacity"`
			MaxWorkers      int    `yaml:"max_workers"`
			DefaultStrategy string `yaml:"default_strategy"`
		} `yaml:"workers"`
		Resources struct {
			CPU     float64 `yaml:"cpu"`
			Memory  float64 `yaml:"memory"`
			Storage float64 `yaml:"storage"`
			Network float64 `yaml:"network"`
		} `yaml:"resources"`
		Background struct {
			Disabled            bool          `yaml:"disabled"`
			QueueInterval       time.Duration `yaml:"queue_interval"`
			PerformanceInterval time.Duration `yaml:"performance_interval"`
			ResourceInterval    time.Duration `yaml:"resource_interval"`
			HealthInterval      time.Duration `yaml:"health_interval"`
		} `yaml:"background"`
		Prediction struct {
			CacheTTL time.Duration `yaml:"cache_ttl"`
		} `yaml:"prediction"`
		Events struct {
			OutputBuffer int64 `yaml:"output_buffer"`
		} `yaml:"events"`
		API struct {
			Host string `yaml:"host"`
			Port int    `yaml:"port"`
		} `yaml:"api"`
		Plugins struct {
			AuditCapacity int `yaml:"audit_capacity"`
			// Email 邮件告警插件，params 原样传给插件 Init
			Email struct {
				Enabled bool              `yaml:"enabled"`
				Params  map[string]string `yaml:"params"`
			} `yaml:"email"`
		} `yaml:"plugins"`
	} `yaml:"orchestrator"`
}

// Default 返回填好默认值的配置
func Default() *OrchestratorConfig {
	cfg := &OrchestratorConfig{}
	cfg.ApplyDefaults()
	return cfg
}

// GetDatabaseType 获取存储类型
func (c *OrchestratorConfig) GetDatabaseType() string {
	return c.Orchestrator.Storage.Type
}

// GetDatabaseDSN 获取数据库DSN
func (c *OrchestratorConfig) GetDatabaseDSN() string {
	return c.Orchestrator.Storage.DSN
}

// IsDebug 日志级别是否为 debug
func (c *OrchestratorConfig) IsDebug() bool {
	return c.Orchestrator.General.LogLevel == "debug"
}

// ApplyDefaults 应用默认值
// 数值类字段为 0 时视为未配置
func (c *OrchestratorConfig) ApplyDefaults() {
	o := &c.Orchestrator

	// General默认值
	if o.General.InstanceName == "" {
		o.General.InstanceName = "workflow-orchestrator"
	}
	if o.General.LogLevel == "" {
		o.General.LogLevel = "info"
	}
	if o.General.Env == "" {
		o.General.Env = "dev"
	}

	// Storage默认值
	if o.Storage.Type == "" {
		o.Storage.Type = "memory"
	}
	if o.Storage.MaxOpenConns <= 0 {
		o.Storage.MaxOpenConns = 10
	}
	if o.Storage.MaxIdleConns <= 0 {
		o.Storage.MaxIdleConns = 5
	}
	if o.Storage.ConnMaxLifetime <= 0 {
		o.Storage.ConnMaxLifetime = 2 * time.Hour
	}

	// Execution默认值
	if o.Execution.MaxConcurrentExecutions <= 0 {
		o.Execution.MaxConcurrentExecutions = 100
	}
	if o.Execution.MaxConcurrentTasks <= 0 {
		o.Execution.MaxConcurrentTasks = 500
	}
	if o.Execution.TaskTimeout <= 0 {
		o.Execution.TaskTimeout = 5 * time.Minute
	}
	if o.Execution.WorkflowTimeout <= 0 {
		o.Execution.WorkflowTimeout = time.Hour
	}
	if o.Execution.TimeoutGrace <= 0 {
		o.Execution.TimeoutGrace = 30 * time.Second
	}
	if o.Execution.HistoryRetention <= 0 {
		o.Execution.HistoryRetention = 24 * time.Hour
	}

	// Retry默认值
	if o.Execution.Retry.MaxAttempts <= 0 {
		o.Execution.Retry.MaxAttempts = 3
	}
	if o.Execution.Retry.BaseDelay <= 0 {
		o.Execution.Retry.BaseDelay = 5 * time.Second
	}
	if o.Execution.Retry.MaxDelay <= 0 {
		o.Execution.Retry.MaxDelay = 5 * time.Minute
	}

	// Workers默认值
	if o.Workers.DefaultCapacity <= 0 {
		o.Workers.DefaultCapacity = 10
	}
	if o.Workers.MaxWorkers <= 0 {
		o.Workers.MaxWorkers = 200
	}
	if o.Workers.DefaultStrategy == "" {
		o.Workers.DefaultStrategy = "LEAST_LOADED"
	}

	// Resources默认值
	if o.Resources.CPU <= 0 {
		o.Resources.CPU = 100
	}
	if o.Resources.Memory <= 0 {
		o.Resources.Memory = 16384
	}
	if o.Resources.Storage <= 0 {
		o.Resources.Storage = 1000000
	}
	if o.Resources.Network <= 0 {
		o.Resources.Network = 1000
	}

	// Background默认值
	if o.Background.QueueInterval <= 0 {
		o.Background.QueueInterval = time.Second
	}
	if o.Background.PerformanceInterval <= 0 {
		o.Background.PerformanceInterval = 30 * time.Second
	}
	if o.Background.ResourceInterval <= 0 {
		o.Background.ResourceInterval = 60 * time.Second
	}
	if o.Background.HealthInterval <= 0 {
		o.Background.HealthInterval = 10 * time.Second
	}

	if o.Prediction.CacheTTL <= 0 {
		o.Prediction.CacheTTL = 10 * time.Minute
	}
	if o.Events.OutputBuffer <= 0 {
		o.Events.OutputBuffer = 64
	}

	// API默认值
	if o.API.Host == "" {
		o.API.Host = "0.0.0.0"
	}
	if o.API.Port <= 0 {
		o.API.Port = 8080
	}

	if o.Plugins.AuditCapacity <= 0 {
		o.Plugins.AuditCapacity = 1000
	}
}
