package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/qmuntal/stateless"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
)

// 执行状态机触发器
const (
	triggerStart    = "start"
	triggerComplete = "complete"
	triggerFail     = "fail"
)

// CancelReasonCancelled 外部取消时记录的原因
const CancelReasonCancelled = "CANCELLED"

// WorkflowExecution 工作流的一次执行（对外导出）
// 状态迁移 CREATED -> RUNNING -> COMPLETED | FAILED 由状态机约束，终态不可再迁移
type WorkflowExecution struct {
	mu  sync.RWMutex
	fsm *stateless.StateMachine

	ExecutionID    string                          `json:"execution_id"`
	WorkflowID     string                          `json:"workflow_id"`
	TenantID       string                          `json:"tenant_id,omitempty"`
	UserID         string                          `json:"user_id,omitempty"`
	InputData      map[string]interface{}          `json:"input_data,omitempty"`
	TaskIDs        []string                        `json:"task_ids"`
	PendingTaskIDs []string                        `json:"pending_task_ids"`
	TaskResults    map[string]*TaskExecutionResult `json:"task_results"`
	Errors         []*TaskError                    `json:"errors"`
	Status         types.ExecutionStatus           `json:"status"`
	Priority       types.Priority                  `json:"priority"`
	CancelReason   string                          `json:"cancel_reason,omitempty"`
	CreatedAt      time.Time                       `json:"created_at"`
	StartTime      *time.Time                      `json:"start_time,omitempty"`
	CompletionTime *time.Time                      `json:"completion_time,omitempty"`
	DurationMs     int64                           `json:"duration_ms"`
	// Timeout 工作流级超时，0表示使用全局配置
	Timeout time.Duration `json:"timeout,omitempty"`
	Success bool          `json:"success"`
}

// NewWorkflowExecution 创建 CREATED 状态的执行（对外导出）
func NewWorkflowExecution(workflowID, tenantID, userID string, input map[string]interface{}) *WorkflowExecution {
	e := &WorkflowExecution{
		ExecutionID: uuid.NewString(),
		WorkflowID:  workflowID,
		TenantID:    tenantID,
		UserID:      userID,
		InputData:   cloneMap(input),
		TaskResults: make(map[string]*TaskExecutionResult),
		Errors:      make([]*TaskError, 0),
		Status:      types.ExecutionCreated,
		Priority:    types.PriorityNormal,
		CreatedAt:   time.Now(),
	}
	e.fsm = newExecutionFSM(e)
	return e
}

// newExecutionFSM 使用外部存储，状态直接落在 Status 字段上
func newExecutionFSM(e *WorkflowExecution) *stateless.StateMachine {
	sm := stateless.NewStateMachineWithExternalStorage(
		func(_ context.Context) (stateless.State, error) {
			return e.Status, nil
		},
		func(_ context.Context, state stateless.State) error {
			e.Status = state.(types.ExecutionStatus)
			return nil
		},
		stateless.FiringImmediate,
	)
	sm.Configure(types.ExecutionCreated).
		Permit(triggerStart, types.ExecutionRunning).
		Permit(triggerFail, types.ExecutionFailed)
	sm.Configure(types.ExecutionRunning).
		Permit(triggerComplete, types.ExecutionCompleted).
		Permit(triggerFail, types.ExecutionFailed)
	sm.Configure(types.ExecutionCompleted)
	sm.Configure(types.ExecutionFailed)
	return sm
}

// machine 懒加载状态机（从存储反序列化的执行没有状态机），调用方需持有写锁
func (e *WorkflowExecution) machine() *stateless.StateMachine {
	if e.fsm == nil {
		e.fsm = newExecutionFSM(e)
	}
	return e.fsm
}

func (e *WorkflowExecution) fireLocked(trigger string) error {
	if err := e.machine().Fire(trigger); err != nil {
		return fmt.Errorf("%w: %s -> %s: %v", types.ErrInvalidState, e.Status, trigger, err)
	}
	return nil
}

// Start 写入待执行任务列表并进入 RUNNING，仅允许从 CREATED 开始
func (e *WorkflowExecution) Start(taskIDs []string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Status != types.ExecutionCreated {
		return fmt.Errorf("%w: execution %s is %s, expected %s",
			types.ErrInvalidState, e.ExecutionID, e.Status, types.ExecutionCreated)
	}
	if err := e.fireLocked(triggerStart); err != nil {
		return err
	}
	e.TaskIDs = append([]string(nil), taskIDs...)
	e.PendingTaskIDs = append([]string(nil), taskIDs...)
	now := time.Now()
	e.StartTime = &now
	for _, id := range taskIDs {
		if _, ok := e.TaskResults[id]; !ok {
			e.TaskResults[id] = NewTaskExecutionResult(e.ExecutionID, id)
		}
	}
	return nil
}

// GetStatus 当前状态
func (e *WorkflowExecution) GetStatus() types.ExecutionStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Status
}

// IsTerminal 是否已结束
func (e *WorkflowExecution) IsTerminal() bool {
	return e.GetStatus().IsTerminal()
}

// NextPending 取出下一个待执行的任务ID
func (e *WorkflowExecution) NextPending() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.PendingTaskIDs) == 0 || e.Status.IsTerminal() {
		return "", false
	}
	id := e.PendingTaskIDs[0]
	e.PendingTaskIDs = e.PendingTaskIDs[1:]
	return id, true
}

// TakePending 从待执行列表中移除指定任务
func (e *WorkflowExecution) TakePending(taskID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, id := range e.PendingTaskIDs {
		if id == taskID {
			e.PendingTaskIDs = append(e.PendingTaskIDs[:i], e.PendingTaskIDs[i+1:]...)
			return
		}
	}
}

// PendingCount 待执行任务数
func (e *WorkflowExecution) PendingCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.PendingTaskIDs)
}

// UpdateTaskResult 写入任务结果快照
// 执行已结束或该任务结果已是终态时拒绝写入，返回false
func (e *WorkflowExecution) UpdateTaskResult(r *TaskExecutionResult) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Status.IsTerminal() {
		return false
	}
	if existing, ok := e.TaskResults[r.TaskID]; ok && existing.Status.IsTerminal() {
		return false
	}
	e.TaskResults[r.TaskID] = r.Clone()
	if r.Status == types.TaskFailed && r.Error != nil {
		e.Errors = append(e.Errors, r.Error.Clone())
	}
	return true
}

// TaskResult 获取任务结果快照
func (e *WorkflowExecution) TaskResult(taskID string) (*TaskExecutionResult, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.TaskResults[taskID]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

// AddError 追加执行级错误
func (e *WorkflowExecution) AddError(taskErr *TaskError) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Status.IsTerminal() {
		return
	}
	e.Errors = append(e.Errors, taskErr)
}

// ErrorCount 错误数量
func (e *WorkflowExecution) ErrorCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.Errors)
}

// Progress 进度百分比 = 已到终态的任务数 / 任务总数 * 100
func (e *WorkflowExecution) Progress() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.progressLocked()
}

func (e *WorkflowExecution) progressLocked() float64 {
	if len(e.TaskIDs) == 0 {
		return 0
	}
	done := 0
	for _, id := range e.TaskIDs {
		if r, ok := e.TaskResults[id]; ok && r.Status.IsTerminal() {
			done++
		}
	}
	return float64(done) / float64(len(e.TaskIDs)) * 100
}

// CountByStatus 按任务状态统计
func (e *WorkflowExecution) CountByStatus(status types.TaskStatus) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := 0
	for _, r := range e.TaskResults {
		if r.Status == status {
			n++
		}
	}
	return n
}

// ConditionScope 条件求值作用域：input.* 与 tasks.<id>.status / tasks.<id>.output.*
func (e *WorkflowExecution) ConditionScope() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tasks := make(map[string]interface{}, len(e.TaskResults))
	for id, r := range e.TaskResults {
		tasks[id] = map[string]interface{}{
			"status": string(r.Status),
			"output": cloneMap(r.Output),
		}
	}
	return map[string]interface{}{
		"input": cloneMap(e.InputData),
		"tasks": tasks,
	}
}

// Input 输入数据副本
func (e *WorkflowExecution) Input() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := cloneMap(e.InputData)
	if out == nil {
		out = make(map[string]interface{})
	}
	return out
}

// GetPriority 执行优先级
func (e *WorkflowExecution) GetPriority() types.Priority {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Priority
}

// PlaceholderParams 占位符参数：输入数据的键，以及 <taskID>.<outputKey>
func (e *WorkflowExecution) PlaceholderParams() map[string]interface{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	params := make(map[string]interface{}, len(e.InputData))
	for k, v := range e.InputData {
		params[k] = v
	}
	for id, r := range e.TaskResults {
		for k, v := range r.Output {
			params[id+"."+k] = v
		}
	}
	return params
}

// Complete 结束执行，success 决定进入 COMPLETED 还是 FAILED
// 已是终态时返回 ErrInvalidState，保证只有一方能完成终结
func (e *WorkflowExecution) Complete(success bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	trigger := triggerFail
	if success {
		trigger = triggerComplete
	}
	if err := e.fireLocked(trigger); err != nil {
		return err
	}
	e.finishLocked(success)
	return nil
}

// Fail 记录错误并置为 FAILED（CREATED 或 RUNNING 均可）
func (e *WorkflowExecution) Fail(taskErr *TaskError, cancelReason string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fireLocked(triggerFail); err != nil {
		return err
	}
	if taskErr != nil {
		e.Errors = append(e.Errors, taskErr)
	}
	e.CancelReason = cancelReason
	e.finishLocked(false)
	return nil
}

func (e *WorkflowExecution) finishLocked(success bool) {
	now := time.Now()
	e.CompletionTime = &now
	if e.StartTime != nil {
		e.DurationMs = now.Sub(*e.StartTime).Milliseconds()
	}
	e.Success = success
}

// Duration 执行时长，未结束时为已运行时长
func (e *WorkflowExecution) Duration() time.Duration {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.StartTime == nil {
		return 0
	}
	if e.CompletionTime != nil {
		return e.CompletionTime.Sub(*e.StartTime)
	}
	return time.Since(*e.StartTime)
}

// Snapshot 深拷贝当前状态，用于对外返回、事件和持久化
func (e *WorkflowExecution) Snapshot() *WorkflowExecution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := &WorkflowExecution{
		ExecutionID:    e.ExecutionID,
		WorkflowID:     e.WorkflowID,
		TenantID:       e.TenantID,
		UserID:         e.UserID,
		InputData:      cloneMap(e.InputData),
		TaskIDs:        append([]string(nil), e.TaskIDs...),
		PendingTaskIDs: append([]string(nil), e.PendingTaskIDs...),
		TaskResults:    make(map[string]*TaskExecutionResult, len(e.TaskResults)),
		Errors:         make([]*TaskError, 0, len(e.Errors)),
		Status:         e.Status,
		Priority:       e.Priority,
		CancelReason:   e.CancelReason,
		CreatedAt:      e.CreatedAt,
		DurationMs:     e.DurationMs,
		Timeout:        e.Timeout,
		Success:        e.Success,
	}
	if e.StartTime != nil {
		t := *e.StartTime
		s.StartTime = &t
	}
	if e.CompletionTime != nil {
		t := *e.CompletionTime
		s.CompletionTime = &t
	}
	for id, r := range e.TaskResults {
		s.TaskResults[id] = r.Clone()
	}
	for _, te := range e.Errors {
		s.Errors = append(s.Errors, te.Clone())
	}
	return s
}

// Summary 执行摘要
type Summary struct {
	TotalTasks     int     `json:"total_tasks"`
	CompletedTasks int     `json:"completed_tasks"`
	FailedTasks    int     `json:"failed_tasks"`
	SkippedTasks   int     `json:"skipped_tasks"`
	ErrorCount     int     `json:"error_count"`
	Progress       float64 `json:"progress"`
}

// Summarize 生成执行摘要
func (e *WorkflowExecution) Summarize() Summary {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s := Summary{
		TotalTasks: len(e.TaskIDs),
		ErrorCount: len(e.Errors),
		Progress:   e.progressLocked(),
	}
	for _, r := range e.TaskResults {
		switch r.Status {
		case types.TaskCompleted:
			s.CompletedTasks++
		case types.TaskFailed:
			s.FailedTasks++
		case types.TaskSkipped:
			s.SkippedTasks++
		}
	}
	return s
}
