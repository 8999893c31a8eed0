package mysql

import (
	"errors"
	"fmt"
	"strings"

	driver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/LENAX/workflow-orchestrator/pkg/storage"
)

// errDupKeyName 索引已存在
const errDupKeyName = 1061

// MySQLDialect MySQL方言实现（对外导出）
type MySQLDialect struct{}

// NewMySQLDialect 创建MySQL方言实例
func NewMySQLDialect() *MySQLDialect {
	return &MySQLDialect{}
}

// Name 返回方言名称
func (d *MySQLDialect) Name() string {
	return "mysql"
}

// UpsertSQL 返回MySQL的UPSERT语句（ON DUPLICATE KEY UPDATE）
func (d *MySQLDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	updateParts := make([]string, len(updateColumns))
	for i, col := range updateColumns {
		updateParts[i] = fmt.Sprintf("%s = VALUES(%s)", col, col)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
		strings.Join(updateParts, ", "),
	)
}

// CreateTableSQL 转换DDL为MySQL兼容格式
// MySQL不支持 CREATE INDEX IF NOT EXISTS，重复建索引的错误由 IsDuplicateSchemaError 忽略
func (d *MySQLDialect) CreateTableSQL(schema string) string {
	result := schema
	result = strings.ReplaceAll(result, "INTEGER NOT NULL DEFAULT 0", "TINYINT(1) NOT NULL DEFAULT 0")
	result = strings.ReplaceAll(result, "TEXT NOT NULL", "LONGTEXT NOT NULL")
	result = strings.ReplaceAll(result, "CREATE INDEX IF NOT EXISTS", "CREATE INDEX")
	if strings.HasPrefix(strings.TrimSpace(result), "CREATE TABLE") {
		result += " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4"
	}
	return result
}

// ConfigureDB 返回MySQL配置SQL
func (d *MySQLDialect) ConfigureDB() []string {
	return []string{
		"SET time_zone = '+00:00';",
	}
}

// IsDuplicateSchemaError 索引已存在
func (d *MySQLDialect) IsDuplicateSchemaError(err error) bool {
	var myErr *driver.MySQLError
	return errors.As(err, &myErr) && myErr.Number == errDupKeyName
}

// NormalizeDSN 确保DSN包含parseTime=true
// dsn格式: user:password@tcp(host:port)/dbname?parseTime=true
func NormalizeDSN(dsn string) string {
	if strings.Contains(dsn, "parseTime=true") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}

// Open 打开MySQL数据库
func Open(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", NormalizeDSN(dsn))
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	return db, nil
}

// NewRepository 通过DSN创建MySQL存储（对外导出）
func NewRepository(dsn string) (*storage.SQLRepository, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	repo, err := storage.NewSQLRepository(db, NewMySQLDialect())
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// 确保实现接口
var _ storage.Dialect = (*MySQLDialect)(nil)
