package postgres

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/LENAX/workflow-orchestrator/pkg/storage"
)

// duplicateCodes 对象已存在（42P07 duplicate_table，42710 duplicate_object）
var duplicateCodes = map[pq.ErrorCode]bool{
	"42P07": true,
	"42710": true,
}

// PostgresDialect PostgreSQL方言实现（对外导出）
type PostgresDialect struct{}

// NewPostgresDialect 创建PostgreSQL方言实例
func NewPostgresDialect() *PostgresDialect {
	return &PostgresDialect{}
}

// Name 返回方言名称
func (d *PostgresDialect) Name() string {
	return "postgres"
}

// UpsertSQL 返回PostgreSQL的UPSERT语句（使用ON CONFLICT DO UPDATE）
// sqlx的NamedExec会把:name转换为$1, $2, ...
func (d *PostgresDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}

	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = EXCLUDED.%s", col, col)
	}

	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		conflictColumn,
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 转换DDL为PostgreSQL兼容格式
func (d *PostgresDialect) CreateTableSQL(schema string) string {
	result := schema

	// 替换DATETIME为TIMESTAMP
	result = strings.ReplaceAll(result, "DATETIME", "TIMESTAMP")

	// 替换布尔INTEGER为BOOLEAN
	result = strings.ReplaceAll(result, "INTEGER NOT NULL DEFAULT 0", "BOOLEAN NOT NULL DEFAULT FALSE")

	return result
}

// ConfigureDB 返回PostgreSQL配置SQL
func (d *PostgresDialect) ConfigureDB() []string {
	return []string{
		"SET timezone = 'UTC';",
	}
}

// IsDuplicateSchemaError 表或索引已存在
func (d *PostgresDialect) IsDuplicateSchemaError(err error) bool {
	pqErr, ok := err.(*pq.Error)
	return ok && duplicateCodes[pqErr.Code]
}

// Open 打开PostgreSQL数据库
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	return db, nil
}

// NewRepository 通过DSN创建PostgreSQL存储（对外导出）
func NewRepository(dsn string) (*storage.SQLRepository, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	repo, err := storage.NewSQLRepository(db, NewPostgresDialect())
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// 确保实现接口
var _ storage.Dialect = (*PostgresDialect)(nil)
