package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// MemoryRepository 进程内存储，默认存储实现
// 读写均使用副本，调用方修改返回值不影响已保存的数据
type MemoryRepository struct {
	mu          sync.RWMutex
	definitions map[string]*workflow.WorkflowDefinition
	executions  map[string]*workflow.WorkflowExecution
}

// NewMemoryRepository 创建内存存储
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		definitions: make(map[string]*workflow.WorkflowDefinition),
		executions:  make(map[string]*workflow.WorkflowExecution),
	}
}

func (r *MemoryRepository) SaveDefinition(_ context.Context, def *workflow.WorkflowDefinition) error {
	if def == nil || def.ID == "" {
		return types.NewValidationError("definition id is required")
	}
	c := def.Clone()
	r.mu.Lock()
	r.definitions[c.ID] = c
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetDefinition(_ context.Context, id string) (*workflow.WorkflowDefinition, error) {
	r.mu.RLock()
	def, ok := r.definitions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &types.NotFoundError{Kind: "workflow", ID: id}
	}
	return def.Clone(), nil
}

func (r *MemoryRepository) ListDefinitions(_ context.Context) ([]*workflow.WorkflowDefinition, error) {
	r.mu.RLock()
	out := make([]*workflow.WorkflowDefinition, 0, len(r.definitions))
	for _, def := range r.definitions {
		out = append(out, def.Clone())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) DeleteDefinition(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.definitions[id]; !ok {
		return &types.NotFoundError{Kind: "workflow", ID: id}
	}
	delete(r.definitions, id)
	return nil
}

func (r *MemoryRepository) SaveExecution(_ context.Context, execution *workflow.WorkflowExecution) error {
	if execution == nil || execution.ExecutionID == "" {
		return types.NewValidationError("execution id is required")
	}
	snapshot := execution.Snapshot()
	r.mu.Lock()
	r.executions[snapshot.ExecutionID] = snapshot
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepository) GetExecution(_ context.Context, id string) (*workflow.WorkflowExecution, error) {
	r.mu.RLock()
	e, ok := r.executions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, &types.NotFoundError{Kind: "execution", ID: id}
	}
	return e.Snapshot(), nil
}

func (r *MemoryRepository) ListExecutions(_ context.Context, filter ExecutionFilter) ([]*workflow.WorkflowExecution, error) {
	r.mu.RLock()
	out := make([]*workflow.WorkflowExecution, 0)
	for _, e := range r.executions {
		if filter.WorkflowID != "" && e.WorkflowID != filter.WorkflowID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e.Snapshot())
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) DeleteExecutionsBefore(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, e := range r.executions {
		if e.CompletionTime != nil && e.CompletionTime.Before(before) {
			delete(r.executions, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

var _ Repository = (*MemoryRepository)(nil)
