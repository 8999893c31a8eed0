package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/LENAX/workflow-orchestrator/pkg/storage"
)

// SQLiteDialect SQLite方言实现（对外导出）
type SQLiteDialect struct{}

// NewSQLiteDialect 创建SQLite方言实例
func NewSQLiteDialect() *SQLiteDialect {
	return &SQLiteDialect{}
}

// Name 返回方言名称
func (d *SQLiteDialect) Name() string {
	return "sqlite"
}

// UpsertSQL 返回SQLite的UPSERT语句
// 为了兼容旧版本，使用 INSERT OR REPLACE
func (d *SQLiteDialect) UpsertSQL(tableName string, columns []string, conflictColumn string, updateColumns []string) string {
	namedPlaceholders := make([]string, len(columns))
	for i, col := range columns {
		namedPlaceholders[i] = ":" + col
	}
	return fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(namedPlaceholders, ", "),
	)
}

// CreateTableSQL 返回创建表的DDL（SQLite原样返回）
func (d *SQLiteDialect) CreateTableSQL(schema string) string {
	return schema
}

// ConfigureDB 返回SQLite配置SQL
func (d *SQLiteDialect) ConfigureDB() []string {
	return []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=30000;",
		"PRAGMA wal_autocheckpoint=1000;",
		"PRAGMA synchronous=NORMAL;",
	}
}

// IsDuplicateSchemaError SQLite支持IF NOT EXISTS，无需忽略错误
func (d *SQLiteDialect) IsDuplicateSchemaError(error) bool {
	return false
}

// Open 打开SQLite数据库
// 文件型DSN会先创建所在目录
func Open(dsn string) (*sqlx.DB, error) {
	if dir := fileDir(dsn); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("创建数据目录失败: %w", err)
		}
	}
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("数据库连接失败: %w", err)
	}
	return db, nil
}

// fileDir 返回文件型DSN的目录，内存库与当前目录返回空
func fileDir(dsn string) string {
	path := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" || strings.Contains(dsn, "mode=memory") {
		return ""
	}
	if dir := filepath.Dir(path); dir != "." {
		return dir
	}
	return ""
}

// NewRepository 通过DSN创建SQLite存储（对外导出）
func NewRepository(dsn string) (*storage.SQLRepository, error) {
	db, err := Open(dsn)
	if err != nil {
		return nil, err
	}
	repo, err := storage.NewSQLRepository(db, NewSQLiteDialect())
	if err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// 确保实现接口
var _ storage.Dialect = (*SQLiteDialect)(nil)
