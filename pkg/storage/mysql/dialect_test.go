package mysql

import (
	"errors"
	"fmt"
	"testing"

	driver "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestMySQLDialect(t *testing.T) {
	d := NewMySQLDialect()
	assert.Equal(t, "mysql", d.Name())

	upsert := d.UpsertSQL("workflow_definition", []string{"id", "name"}, "id", []string{"name"})
	assert.Equal(t, "INSERT INTO workflow_definition (id, name) VALUES (:id, :name) ON DUPLICATE KEY UPDATE name = VALUES(name)", upsert)

	ddl := d.CreateTableSQL("CREATE TABLE IF NOT EXISTS t (active INTEGER NOT NULL DEFAULT 0, payload TEXT NOT NULL)")
	assert.Equal(t, "CREATE TABLE IF NOT EXISTS t (active TINYINT(1) NOT NULL DEFAULT 0, payload LONGTEXT NOT NULL) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4", ddl)
	assert.Equal(t, "CREATE INDEX idx ON t(a)", d.CreateTableSQL("CREATE INDEX IF NOT EXISTS idx ON t(a)"))

	dup := &driver.MySQLError{Number: errDupKeyName, Message: "Duplicate key name"}
	assert.True(t, d.IsDuplicateSchemaError(dup))
	assert.True(t, d.IsDuplicateSchemaError(fmt.Errorf("wrapped: %w", dup)))
	assert.False(t, d.IsDuplicateSchemaError(&driver.MySQLError{Number: 1045}))
	assert.False(t, d.IsDuplicateSchemaError(errors.New("other")))
}

func TestNormalizeDSN(t *testing.T) {
	assert.Equal(t, "u:p@tcp(h:3306)/db?parseTime=true", NormalizeDSN("u:p@tcp(h:3306)/db"))
	assert.Equal(t, "u:p@tcp(h:3306)/db?charset=utf8mb4&parseTime=true", NormalizeDSN("u:p@tcp(h:3306)/db?charset=utf8mb4"))
	assert.Equal(t, "u:p@tcp(h:3306)/db?parseTime=true", NormalizeDSN("u:p@tcp(h:3306)/db?parseTime=true"))
}
