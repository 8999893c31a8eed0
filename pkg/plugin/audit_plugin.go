package plugin

import (
	"context"
	"log"
	"sync"
	"time"
)

// AuditRecord 审计记录
type AuditRecord struct {
	Event       TriggerEvent `json:"event"`
	WorkflowID  string       `json:"workflow_id"`
	ExecutionID string       `json:"execution_id,omitempty"`
	TenantID    string       `json:"tenant_id,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	Status      string       `json:"status,omitempty"`
	RecordedAt  time.Time    `json:"recorded_at"`
}

// AuditLogPlugin 记录生命周期事件，保留最近 capacity 条
type AuditLogPlugin struct {
	mu       sync.Mutex
	capacity int
	records  []AuditRecord
}

// NewAuditLogPlugin 创建审计插件，capacity<=0 时保留1000条
func NewAuditLogPlugin(capacity int) *AuditLogPlugin {
	if capacity <= 0 {
		capacity = 1000
	}
	return &AuditLogPlugin{capacity: capacity}
}

func (a *AuditLogPlugin) Name() string {
	return "audit"
}

func (a *AuditLogPlugin) Init(map[string]string) error {
	return nil
}

// Execute 追加一条审计记录
func (a *AuditLogPlugin) Execute(_ context.Context, data PluginData) error {
	rec := AuditRecord{
		Event:       data.Event,
		WorkflowID:  data.WorkflowID,
		ExecutionID: data.ExecutionID,
		TenantID:    data.TenantID,
		UserID:      data.UserID,
		Status:      data.Status,
		RecordedAt:  time.Now(),
	}
	a.mu.Lock()
	a.records = append(a.records, rec)
	if over := len(a.records) - a.capacity; over > 0 {
		a.records = append([]AuditRecord(nil), a.records[over:]...)
	}
	a.mu.Unlock()

	log.Printf("[Audit] event=%s, workflow=%s, execution=%s, user=%s, status=%s",
		rec.Event, rec.WorkflowID, rec.ExecutionID, rec.UserID, rec.Status)
	return nil
}

// Records 审计记录副本，按时间先后
func (a *AuditLogPlugin) Records() []AuditRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditRecord(nil), a.records...)
}
