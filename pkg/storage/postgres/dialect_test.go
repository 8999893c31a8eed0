package postgres

import (
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestPostgresDialect(t *testing.T) {
	d := NewPostgresDialect()
	assert.Equal(t, "postgres", d.Name())

	upsert := d.UpsertSQL("workflow_execution", []string{"id", "status"}, "id", []string{"status"})
	assert.Equal(t, "INSERT INTO workflow_execution (id, status) VALUES (:id, :status) ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status", upsert)

	ddl := d.CreateTableSQL("created_at DATETIME NOT NULL, active INTEGER NOT NULL DEFAULT 0")
	assert.Equal(t, "created_at TIMESTAMP NOT NULL, active BOOLEAN NOT NULL DEFAULT FALSE", ddl)

	assert.True(t, d.IsDuplicateSchemaError(&pq.Error{Code: "42P07"}))
	assert.False(t, d.IsDuplicateSchemaError(&pq.Error{Code: "23505"}))
	assert.False(t, d.IsDuplicateSchemaError(errors.New("other")))
}
