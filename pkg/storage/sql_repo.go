package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
	"github.com/LENAX/workflow-orchestrator/pkg/storage/dao"
)

const (
	definitionTable = "workflow_definition"
	executionTable  = "workflow_execution"
)

// schema 通用DDL，由各方言转换
var schema = []string{
	`CREATE TABLE IF NOT EXISTS workflow_definition (
		id VARCHAR(64) PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(128) NOT NULL DEFAULT '',
		execution_mode VARCHAR(32) NOT NULL,
		active INTEGER NOT NULL DEFAULT 0,
		tenant_id VARCHAR(64) NOT NULL DEFAULT '',
		schedule VARCHAR(128) NOT NULL DEFAULT '',
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS workflow_execution (
		id VARCHAR(64) PRIMARY KEY,
		workflow_id VARCHAR(64) NOT NULL,
		status VARCHAR(32) NOT NULL,
		tenant_id VARCHAR(64) NOT NULL DEFAULT '',
		success INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		completion_time DATETIME,
		payload TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_execution_workflow_id ON workflow_execution(workflow_id)`,
	`CREATE INDEX IF NOT EXISTS idx_workflow_execution_completion_time ON workflow_execution(completion_time)`,
}

// SQLRepository 基于sqlx的关系型存储（对外导出）
// 方言负责DDL与UPSERT语法差异
type SQLRepository struct {
	db      *sqlx.DB
	dialect Dialect

	upsertDefinition string
	upsertExecution  string
}

// NewSQLRepository 执行方言配置并初始化表结构（对外导出）
func NewSQLRepository(db *sqlx.DB, dialect Dialect) (*SQLRepository, error) {
	r := &SQLRepository{
		db:               db,
		dialect:          dialect,
		upsertDefinition: dialect.UpsertSQL(definitionTable, dao.DefinitionColumns, "id", dao.DefinitionColumns[1:]),
		upsertExecution:  dialect.UpsertSQL(executionTable, dao.ExecutionColumns, "id", dao.ExecutionColumns[1:]),
	}
	for _, stmt := range dialect.ConfigureDB() {
		if _, err := db.Exec(stmt); err != nil {
			log.Printf("[Storage] 数据库配置失败（已忽略）: dialect=%s, sql=%s, Error=%v", dialect.Name(), stmt, err)
		}
	}
	if err := r.initSchema(); err != nil {
		return nil, fmt.Errorf("初始化表结构失败: %w", err)
	}
	return r, nil
}

// initSchema 初始化数据库表结构
func (r *SQLRepository) initSchema() error {
	for _, stmt := range schema {
		ddl := r.dialect.CreateTableSQL(stmt)
		if _, err := r.db.Exec(ddl); err != nil {
			if r.dialect.IsDuplicateSchemaError(err) {
				continue
			}
			return fmt.Errorf("执行DDL失败: %w", err)
		}
	}
	return nil
}

// GetDB 获取底层数据库连接（对外导出）
func (r *SQLRepository) GetDB() *sqlx.DB {
	return r.db
}

// Dialect 当前方言
func (r *SQLRepository) Dialect() Dialect {
	return r.dialect
}

func (r *SQLRepository) SaveDefinition(ctx context.Context, def *workflow.WorkflowDefinition) error {
	if def == nil || def.ID == "" {
		return types.NewValidationError("definition id is required")
	}
	row, err := dao.FromDefinition(def)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, r.upsertDefinition, row); err != nil {
		return fmt.Errorf("保存工作流定义失败: id=%s, %w", def.ID, err)
	}
	return nil
}

func (r *SQLRepository) GetDefinition(ctx context.Context, id string) (*workflow.WorkflowDefinition, error) {
	var row dao.DefinitionDAO
	query := r.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(dao.DefinitionColumns, ", "), definitionTable))
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &types.NotFoundError{Kind: "workflow", ID: id}
		}
		return nil, fmt.Errorf("查询工作流定义失败: %w", err)
	}
	return row.ToDefinition()
}

func (r *SQLRepository) ListDefinitions(ctx context.Context) ([]*workflow.WorkflowDefinition, error) {
	var rows []dao.DefinitionDAO
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at ASC", strings.Join(dao.DefinitionColumns, ", "), definitionTable)
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("查询工作流定义列表失败: %w", err)
	}
	out := make([]*workflow.WorkflowDefinition, 0, len(rows))
	for i := range rows {
		def, err := rows[i].ToDefinition()
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (r *SQLRepository) DeleteDefinition(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE id = ?", definitionTable)), id)
	if err != nil {
		return fmt.Errorf("删除工作流定义失败: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &types.NotFoundError{Kind: "workflow", ID: id}
	}
	return nil
}

func (r *SQLRepository) SaveExecution(ctx context.Context, execution *workflow.WorkflowExecution) error {
	if execution == nil || execution.ExecutionID == "" {
		return types.NewValidationError("execution id is required")
	}
	row, err := dao.FromExecution(execution)
	if err != nil {
		return err
	}
	if _, err := r.db.NamedExecContext(ctx, r.upsertExecution, row); err != nil {
		return fmt.Errorf("保存执行记录失败: id=%s, %w", row.ID, err)
	}
	return nil
}

func (r *SQLRepository) GetExecution(ctx context.Context, id string) (*workflow.WorkflowExecution, error) {
	var row dao.ExecutionDAO
	query := r.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", strings.Join(dao.ExecutionColumns, ", "), executionTable))
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &types.NotFoundError{Kind: "execution", ID: id}
		}
		return nil, fmt.Errorf("查询执行记录失败: %w", err)
	}
	return row.ToExecution()
}

func (r *SQLRepository) ListExecutions(ctx context.Context, filter ExecutionFilter) ([]*workflow.WorkflowExecution, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 3)
	if filter.WorkflowID != "" {
		conditions = append(conditions, "workflow_id = ?")
		args = append(args, filter.WorkflowID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s", strings.Join(dao.ExecutionColumns, ", "), executionTable)
	if len(conditions) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(conditions, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC")
	if filter.Limit > 0 {
		b.WriteString(" LIMIT ?")
		args = append(args, filter.Limit)
	}

	var rows []dao.ExecutionDAO
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(b.String()), args...); err != nil {
		return nil, fmt.Errorf("查询执行记录列表失败: %w", err)
	}
	out := make([]*workflow.WorkflowExecution, 0, len(rows))
	for i := range rows {
		e, err := rows[i].ToExecution()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (r *SQLRepository) DeleteExecutionsBefore(ctx context.Context, before time.Time) (int64, error) {
	query := r.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE completion_time IS NOT NULL AND completion_time < ?", executionTable))
	res, err := r.db.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("清理执行记录失败: %w", err)
	}
	return res.RowsAffected()
}

// Close 关闭数据库连接（对外导出）
func (r *SQLRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

var _ Repository = (*SQLRepository)(nil)
