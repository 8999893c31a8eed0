package storage

import (
	"fmt"

	"github.com/LENAX/workflow-orchestrator/pkg/config"
	"github.com/LENAX/workflow-orchestrator/pkg/storage"
	"github.com/LENAX/workflow-orchestrator/pkg/storage/mysql"
	"github.com/LENAX/workflow-orchestrator/pkg/storage/postgres"
	pkgsqlite "github.com/LENAX/workflow-orchestrator/pkg/storage/sqlite"
)

// NewRepository 按数据库类型创建存储（内部方法）
// dbType: 数据库类型（memory/sqlite/mysql/postgres）
// dsn: 数据库连接字符串，memory 时忽略
func NewRepository(dbType, dsn string) (storage.Repository, error) {
	switch dbType {
	case "", "memory":
		return storage.NewMemoryRepository(), nil
	case "sqlite":
		repo, err := pkgsqlite.NewRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("create sqlite repository failed: %w", err)
		}
		return repo, nil
	case "mysql":
		repo, err := mysql.NewRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("create mysql repository failed: %w", err)
		}
		return repo, nil
	case "postgres", "postgresql":
		repo, err := postgres.NewRepository(dsn)
		if err != nil {
			return nil, fmt.Errorf("create postgres repository failed: %w", err)
		}
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// FromConfig 按配置创建存储并设置连接池参数
func FromConfig(cfg *config.OrchestratorConfig) (storage.Repository, error) {
	repo, err := NewRepository(cfg.GetDatabaseType(), cfg.GetDatabaseDSN())
	if err != nil {
		return nil, err
	}
	if sqlRepo, ok := repo.(*storage.SQLRepository); ok {
		s := cfg.Orchestrator.Storage
		db := sqlRepo.GetDB()
		if s.MaxOpenConns > 0 {
			db.SetMaxOpenConns(s.MaxOpenConns)
		}
		if s.MaxIdleConns > 0 {
			db.SetMaxIdleConns(s.MaxIdleConns)
		}
		if s.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(s.ConnMaxLifetime)
		}
	}
	return repo, nil
}
