package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	EnvDatabaseType = "ORCHESTRATOR_DB_TYPE"
	EnvDatabaseDSN  = "ORCHESTRATOR_DB_DSN"
	EnvLogLevel     = "ORCHESTRATOR_LOG_LEVEL"
)

// Load 加载配置文件，文件不存在时使用默认配置
// 加载后依次应用环境变量覆盖、默认值和校验
func Load(path string) (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
			// 使用默认配置
		default:
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg.ApplyEnv()
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse 从YAML内容解析配置
func Parse(data []byte) (*OrchestratorConfig, error) {
	cfg := &OrchestratorConfig{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 用环境变量覆盖存储与日志配置
func (c *OrchestratorConfig) ApplyEnv() {
	if v := os.Getenv(EnvDatabaseType); v != "" {
		c.Orchestrator.Storage.Type = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Orchestrator.Storage.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Orchestrator.General.LogLevel = v
	}
}
