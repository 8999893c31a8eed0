package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/workflow-orchestrator/pkg/config"
	"github.com/LENAX/workflow-orchestrator/pkg/core/cache"
	"github.com/LENAX/workflow-orchestrator/pkg/core/events"
	"github.com/LENAX/workflow-orchestrator/pkg/core/executor"
	"github.com/LENAX/workflow-orchestrator/pkg/core/metrics"
	"github.com/LENAX/workflow-orchestrator/pkg/core/optimizer"
	"github.com/LENAX/workflow-orchestrator/pkg/core/resource"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/worker"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
	"github.com/LENAX/workflow-orchestrator/pkg/storage"
)

// ScheduleUser 定时触发的执行使用的用户ID
const ScheduleUser = "cron"

// ExecuteOptions 单次执行的可选参数
type ExecuteOptions struct {
	Priority types.Priority
	// Timeout 覆盖全局工作流超时，0表示使用配置
	Timeout time.Duration
}

// DefinitionFilter 定义列表过滤条件，零值字段不参与过滤
type DefinitionFilter struct {
	Category string
	Status   types.DefinitionStatus
	Tags     []string
	TenantID string
}

// PerformanceMetrics 性能指标
// WorkflowID 为空表示全部工作流的汇总
type PerformanceMetrics struct {
	WorkflowID           string                              `json:"workflow_id,omitempty"`
	Definitions          int                                 `json:"definitions"`
	TotalExecutions      int64                               `json:"total_executions"`
	SuccessfulExecutions int64                               `json:"successful_executions"`
	SuccessRate          float64                             `json:"success_rate"`
	AverageExecutionTime float64                             `json:"average_execution_time_ms"`
	ActiveExecutions     int                                 `json:"active_executions"`
	QueuedTasks          int                                 `json:"queued_tasks"`
	RunningTasks         int                                 `json:"running_tasks"`
	Workers              worker.Stats                        `json:"workers"`
	Resources            map[resource.Kind]resource.Capacity `json:"resources"`
}

// activeExecution 运行中的执行及其取消函数
type activeExecution struct {
	execution  *workflow.WorkflowExecution
	definition *workflow.WorkflowDefinition
	cancel     context.CancelFunc
	deadline   time.Time
}

// Orchestrator 工作流编排服务（对外导出）
// 定义、活跃执行与历史执行都保存在自身的 map 中，由 mu 保护
type Orchestrator struct {
	cfg        *config.OrchestratorConfig
	repo       storage.Repository
	bus        *events.Bus
	ownsBus    bool
	optimizer  optimizer.Optimizer
	metrics    *metrics.Collector
	resources  *resource.Pool
	workers    *worker.Pool
	executor   *executor.Executor
	controller *Controller

	predictions *cache.TTLCache[optimizer.Prediction]
	scheduler   *CronScheduler
	background  *Background

	mu          sync.RWMutex
	definitions map[string]*workflow.WorkflowDefinition
	active      map[string]*activeExecution
	history     map[string]*workflow.WorkflowExecution

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup
	running    bool
	health     HealthStatus
}

type orchestratorOptions struct {
	repo      storage.Repository
	bus       *events.Bus
	optimizer optimizer.Optimizer
	metrics   *metrics.Collector
	runners   map[types.TaskType]worker.Runner
	notifier  worker.Notifier
}

// Option 编排器选项
type Option func(*orchestratorOptions)

// WithRepository 使用指定存储，默认内存存储
func WithRepository(repo storage.Repository) Option {
	return func(o *orchestratorOptions) { o.repo = repo }
}

// WithEventBus 使用外部事件总线，调用方负责关闭
func WithEventBus(bus *events.Bus) Option {
	return func(o *orchestratorOptions) { o.bus = bus }
}

// WithOptimizer 设置建议性优化器，默认 optimizer.Noop
func WithOptimizer(opt optimizer.Optimizer) Option {
	return func(o *orchestratorOptions) { o.optimizer = opt }
}

// WithMetrics 设置 Prometheus 指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *orchestratorOptions) { o.metrics = c }
}

// WithRunner 注册任务类型的 Runner，覆盖内置实现
func WithRunner(taskType types.TaskType, runner worker.Runner) Option {
	return func(o *orchestratorOptions) {
		if o.runners == nil {
			o.runners = make(map[types.TaskType]worker.Runner)
		}
		o.runners[taskType] = runner
	}
}

// WithNotifier 设置 NOTIFICATION 任务使用的通知实现
func WithNotifier(n worker.Notifier) Option {
	return func(o *orchestratorOptions) { o.notifier = n }
}

// NewOrchestrator 创建编排器（对外导出）
func NewOrchestrator(cfg *config.OrchestratorConfig, opts ...Option) (*Orchestrator, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("配置校验失败: %w", err)
	}
	options := &orchestratorOptions{}
	for _, opt := range opts {
		opt(options)
	}
	c := &cfg.Orchestrator

	o := &Orchestrator{
		cfg:         cfg,
		repo:        options.repo,
		bus:         options.bus,
		optimizer:   options.optimizer,
		metrics:     options.metrics,
		predictions: cache.New[optimizer.Prediction](c.Prediction.CacheTTL),
		definitions: make(map[string]*workflow.WorkflowDefinition),
		active:      make(map[string]*activeExecution),
		history:     make(map[string]*workflow.WorkflowExecution),
		health:      HealthStatus{Status: HealthHealthy},
	}
	if o.repo == nil {
		o.repo = storage.NewMemoryRepository()
	}
	if o.bus == nil {
		o.bus = events.NewBus(events.WithDebug(cfg.IsDebug(), false), events.WithOutputBuffer(c.Events.OutputBuffer))
		o.ownsBus = true
	}
	if o.optimizer == nil {
		o.optimizer = optimizer.Noop{}
	}
	if o.metrics == nil {
		o.metrics = metrics.NewCollector()
	}

	runners := worker.DefaultRunners(options.notifier)
	for tt, r := range options.runners {
		runners[tt] = r
	}

	o.resources = resource.NewPool(resource.Requirements{
		CPU:     c.Resources.CPU,
		Memory:  c.Resources.Memory,
		Storage: c.Resources.Storage,
		Network: c.Resources.Network,
	})
	o.workers = worker.NewPool(worker.PoolConfig{
		DefaultCapacity: c.Workers.DefaultCapacity,
		MaxWorkers:      c.Workers.MaxWorkers,
		DefaultStrategy: types.RoutingStrategy(c.Workers.DefaultStrategy),
	}, runners)
	o.executor = executor.NewExecutor(executor.Config{
		MaxConcurrentTasks: c.Execution.MaxConcurrentTasks,
		DefaultTimeout:     c.Execution.TaskTimeout,
		DefaultRetry: workflow.RetryPolicy{
			MaxAttempts: c.Execution.Retry.MaxAttempts,
			BaseDelayMs: c.Execution.Retry.BaseDelay.Milliseconds(),
			MaxDelayMs:  c.Execution.Retry.MaxDelay.Milliseconds(),
		},
		MaxRetryDelay: c.Execution.Retry.MaxDelay,
	}, o.workers, o.resources, o.metrics)
	o.controller = NewController(o.executor)
	o.scheduler = NewCronScheduler(o.triggerScheduled)
	o.background = NewBackground(o)
	o.baseCtx, o.baseCancel = context.WithCancel(context.Background())
	return o, nil
}

// Start 加载已持久化的定义并启动定时调度与后台任务
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil
	}
	o.running = true
	o.mu.Unlock()

	defs, err := o.repo.ListDefinitions(ctx)
	if err != nil {
		return fmt.Errorf("加载工作流定义失败: %w", err)
	}
	o.mu.Lock()
	for _, def := range defs {
		o.definitions[def.ID] = def
	}
	count := len(o.definitions)
	o.mu.Unlock()
	o.metrics.SetDefinitions(count)

	for _, def := range defs {
		if def.Schedule != "" && def.IsActive() {
			if err := o.scheduler.Register(def.ID, def.Name, def.Schedule); err != nil {
				log.Printf("[Orchestrator] ❌ 注册定时调度失败: WorkflowID=%s, Error=%v", def.ID, err)
			}
		}
	}
	o.scheduler.Start()
	if !o.cfg.Orchestrator.Background.Disabled {
		if err := o.background.Start(); err != nil {
			return fmt.Errorf("启动后台任务失败: %w", err)
		}
	}
	log.Printf("[Orchestrator] ✅ 编排服务已启动: definitions=%d", count)
	return nil
}

// Stop 停止调度，取消全部活跃执行并等待驱动 goroutine 退出
func (o *Orchestrator) Stop(ctx context.Context) error {
	o.mu.Lock()
	wasRunning := o.running
	o.running = false
	ids := make([]string, 0, len(o.active))
	for id := range o.active {
		ids = append(ids, id)
	}
	o.mu.Unlock()

	if wasRunning {
		o.scheduler.Stop()
		o.background.Stop()
	}
	for _, id := range ids {
		if err := o.CancelExecution(ctx, id, "orchestrator shutdown"); err != nil && !errors.Is(err, types.ErrInvalidState) {
			log.Printf("[Orchestrator] 取消执行失败: Execution=%s, Error=%v", id, err)
		}
	}
	o.baseCancel()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if o.ownsBus {
		if err := o.bus.Close(); err != nil {
			return fmt.Errorf("关闭事件总线失败: %w", err)
		}
	}
	log.Println("[Orchestrator] ✅ 编排服务已停止")
	return nil
}

// Events 生命周期事件总线
func (o *Orchestrator) Events() *events.Bus {
	return o.bus
}

// Metrics Prometheus 指标收集器
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// RegisterRunner 注册或替换任务类型的 Runner
func (o *Orchestrator) RegisterRunner(taskType types.TaskType, runner worker.Runner) {
	o.workers.RegisterRunner(taskType, runner)
}

// RegisterWorker 预先创建 Worker
func (o *Orchestrator) RegisterWorker(spec worker.WorkerSpec) (worker.Info, error) {
	w, err := o.workers.RegisterWorker(spec)
	if err != nil {
		return worker.Info{}, err
	}
	return w.Info(), nil
}

// Workers Worker 快照
func (o *Orchestrator) Workers() []worker.Info {
	return o.workers.Workers()
}

// CreateWorkflowDefinition 校验并保存工作流定义
// 校验失败返回 *types.ValidationError，列出全部违规项
func (o *Orchestrator) CreateWorkflowDefinition(ctx context.Context, def *workflow.WorkflowDefinition, tenantID, userID string) (*workflow.WorkflowDefinition, error) {
	if def == nil {
		return nil, types.NewValidationError("workflow definition is required")
	}
	stored := def.Clone()
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	now := time.Now()
	stored.TenantID = tenantID
	stored.CreatedBy = userID
	stored.UpdatedBy = userID
	stored.CreatedAt = now
	stored.UpdatedAt = now
	stored.Active = true
	stored.Statistics = workflow.Statistics{}

	if err := workflow.Validate(stored); err != nil {
		return nil, err
	}

	o.optimize(ctx, stored)

	// 查重与占位在同一把写锁内完成，持久化失败时撤销占位
	o.mu.Lock()
	if _, exists := o.definitions[stored.ID]; exists {
		o.mu.Unlock()
		return nil, types.NewValidationError(fmt.Sprintf("workflow id %s already exists", stored.ID))
	}
	o.definitions[stored.ID] = stored
	o.mu.Unlock()

	if err := o.repo.SaveDefinition(ctx, stored); err != nil {
		o.mu.Lock()
		if o.definitions[stored.ID] == stored {
			delete(o.definitions, stored.ID)
		}
		o.mu.Unlock()
		return nil, fmt.Errorf("保存工作流定义失败: %w", err)
	}
	o.mu.RLock()
	count := len(o.definitions)
	o.mu.RUnlock()
	o.metrics.SetDefinitions(count)

	if stored.Schedule != "" {
		if err := o.scheduler.Register(stored.ID, stored.Name, stored.Schedule); err != nil {
			log.Printf("[Orchestrator] ❌ 注册定时调度失败: WorkflowID=%s, Error=%v", stored.ID, err)
		}
	}

	o.publish(events.DefinitionCreated(stored, tenantID, userID))
	log.Printf("[Orchestrator] ✅ 工作流定义已创建: ID=%s, Name=%s, Mode=%s, Tasks=%d",
		stored.ID, stored.Name, stored.ExecutionMode, len(stored.Tasks))
	return stored.Clone(), nil
}

// optimize 建议性优化，失败或 panic 只记录日志
func (o *Orchestrator) optimize(ctx context.Context, def *workflow.WorkflowDefinition) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Orchestrator] 优化器panic（已忽略）: WorkflowID=%s, panic=%v", def.ID, r)
		}
	}()
	if err := o.optimizer.OptimizeWorkflow(ctx, def.Clone()); err != nil {
		log.Printf("[Orchestrator] 优化器失败（已忽略）: WorkflowID=%s, Error=%v", def.ID, err)
	}
}

// UpdateWorkflowDefinition 替换定义内容，保留ID、创建信息、启用状态和统计
// 运行中的执行继续使用启动时的定义副本
func (o *Orchestrator) UpdateWorkflowDefinition(ctx context.Context, id string, def *workflow.WorkflowDefinition, userID string) (*workflow.WorkflowDefinition, error) {
	if def == nil {
		return nil, types.NewValidationError("workflow definition is required")
	}
	o.mu.RLock()
	current, ok := o.definitions[id]
	o.mu.RUnlock()
	if !ok {
		return nil, &types.NotFoundError{Kind: "workflow", ID: id}
	}

	existing := current.Clone()
	updated := def.Clone()
	updated.ID = id
	updated.TenantID = existing.TenantID
	updated.CreatedBy = existing.CreatedBy
	updated.CreatedAt = existing.CreatedAt
	updated.Active = existing.Active
	updated.Statistics = existing.Statistics
	updated.UpdatedBy = userID
	updated.UpdatedAt = time.Now()

	if err := workflow.Validate(updated); err != nil {
		return nil, err
	}

	// 统计与启用状态只在 o.mu 下变更（finalize / SetWorkflowActive），
	// 在同一把锁内读取并替换，替换期间结束的执行不会丢失统计
	o.mu.Lock()
	current, ok = o.definitions[id]
	if !ok {
		o.mu.Unlock()
		return nil, &types.NotFoundError{Kind: "workflow", ID: id}
	}
	updated.Statistics = current.Stats()
	updated.Active = current.IsActive()
	o.definitions[id] = updated
	o.mu.Unlock()

	if err := o.repo.SaveDefinition(ctx, updated.Clone()); err != nil {
		return nil, fmt.Errorf("保存工作流定义失败: %w", err)
	}
	o.predictions.Delete(id)
	o.reschedule(updated)

	log.Printf("[Orchestrator] ✅ 工作流定义已更新: ID=%s, Tasks=%d", id, len(updated.Tasks))
	return updated.Clone(), nil
}

// SetWorkflowActive 启用或停用工作流定义
func (o *Orchestrator) SetWorkflowActive(ctx context.Context, id string, active bool, userID string) error {
	o.mu.Lock()
	def, ok := o.definitions[id]
	if !ok {
		o.mu.Unlock()
		return &types.NotFoundError{Kind: "workflow", ID: id}
	}
	def.SetActive(active, userID)
	o.mu.Unlock()
	if err := o.repo.SaveDefinition(ctx, def.Clone()); err != nil {
		return fmt.Errorf("保存工作流定义失败: %w", err)
	}
	o.reschedule(def.Clone())
	log.Printf("[Orchestrator] 工作流状态已更新: ID=%s, Active=%v", id, active)
	return nil
}

func (o *Orchestrator) reschedule(def *workflow.WorkflowDefinition) {
	o.scheduler.Unregister(def.ID)
	if def.Schedule != "" && def.IsActive() {
		if err := o.scheduler.Register(def.ID, def.Name, def.Schedule); err != nil {
			log.Printf("[Orchestrator] ❌ 注册定时调度失败: WorkflowID=%s, Error=%v", def.ID, err)
		}
	}
}

// DeleteWorkflowDefinition 删除定义，存在引用它的活跃执行时拒绝
func (o *Orchestrator) DeleteWorkflowDefinition(ctx context.Context, id string) error {
	o.mu.Lock()
	if _, ok := o.definitions[id]; !ok {
		o.mu.Unlock()
		return &types.NotFoundError{Kind: "workflow", ID: id}
	}
	for _, a := range o.active {
		if a.execution.WorkflowID == id {
			o.mu.Unlock()
			return fmt.Errorf("%w: workflow %s has active executions", types.ErrInvalidState, id)
		}
	}
	delete(o.definitions, id)
	count := len(o.definitions)
	o.mu.Unlock()

	o.scheduler.Unregister(id)
	o.predictions.Delete(id)
	o.metrics.SetDefinitions(count)
	if err := o.repo.DeleteDefinition(ctx, id); err != nil {
		return fmt.Errorf("删除工作流定义失败: %w", err)
	}
	log.Printf("[Orchestrator] 工作流定义已删除: ID=%s", id)
	return nil
}

// GetWorkflowDefinition 获取定义副本
func (o *Orchestrator) GetWorkflowDefinition(id string) (*workflow.WorkflowDefinition, error) {
	o.mu.RLock()
	def, ok := o.definitions[id]
	o.mu.RUnlock()
	if !ok {
		return nil, &types.NotFoundError{Kind: "workflow", ID: id}
	}
	return def.Clone(), nil
}

// ListWorkflowDefinitions 按条件列出定义，按创建时间升序
func (o *Orchestrator) ListWorkflowDefinitions(filter DefinitionFilter) []*workflow.WorkflowDefinition {
	o.mu.RLock()
	defs := make([]*workflow.WorkflowDefinition, 0, len(o.definitions))
	for _, def := range o.definitions {
		defs = append(defs, def)
	}
	o.mu.RUnlock()

	out := make([]*workflow.WorkflowDefinition, 0, len(defs))
	for _, def := range defs {
		c := def.Clone()
		if filter.Category != "" && c.Category != filter.Category {
			continue
		}
		if filter.Status != "" && c.Status() != filter.Status {
			continue
		}
		if filter.TenantID != "" && c.TenantID != filter.TenantID {
			continue
		}
		if len(filter.Tags) > 0 && !c.HasAnyTag(filter.Tags) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// ExecuteWorkflow 创建并异步驱动一次执行，返回 RUNNING 状态的快照
func (o *Orchestrator) ExecuteWorkflow(ctx context.Context, workflowID string, input map[string]interface{}, tenantID, userID string, opts ExecuteOptions) (*workflow.WorkflowExecution, error) {
	o.mu.Lock()
	stored, ok := o.definitions[workflowID]
	if !ok {
		o.mu.Unlock()
		return nil, &types.NotFoundError{Kind: "workflow", ID: workflowID}
	}
	if err := workflow.CanExecute(stored); err != nil {
		o.mu.Unlock()
		return nil, err
	}
	limit := o.cfg.Orchestrator.Execution.MaxConcurrentExecutions
	if len(o.active) >= limit {
		o.mu.Unlock()
		return nil, &types.CapacityError{Limit: limit}
	}

	def := stored.Clone()
	execution := workflow.NewWorkflowExecution(workflowID, tenantID, userID, input)
	if opts.Priority != 0 {
		execution.Priority = opts.Priority
	}
	timeout := o.cfg.Orchestrator.Execution.WorkflowTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}
	execution.Timeout = timeout
	if err := o.controller.Start(execution, def.TaskIDs()); err != nil {
		o.mu.Unlock()
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(o.baseCtx, timeout)
	entry := &activeExecution{
		execution:  execution,
		definition: def,
		cancel:     cancel,
		deadline:   time.Now().Add(timeout),
	}
	o.active[execution.ExecutionID] = entry
	activeCount := len(o.active)
	o.wg.Add(1)
	o.mu.Unlock()

	o.metrics.SetActiveExecutions(activeCount)
	snapshot := execution.Snapshot()
	o.persist(ctx, snapshot)
	o.publish(events.ExecutionStarted(execution))
	log.Printf("[Orchestrator] 🚀 开始执行工作流: Execution=%s, Workflow=%s, Mode=%s, Tasks=%d",
		execution.ExecutionID, workflowID, def.ExecutionMode, len(def.Tasks))

	go o.run(runCtx, entry)
	return snapshot, nil
}

// run 驱动执行直到结束，然后终结
func (o *Orchestrator) run(ctx context.Context, entry *activeExecution) {
	defer o.wg.Done()
	defer entry.cancel()

	outcome := o.controller.Drive(ctx, entry.execution, entry.definition)
	if outcome.Failure != nil {
		reason := ""
		if outcome.Failure.Code == types.CodeCancelled {
			reason = workflow.CancelReasonCancelled
		}
		o.finalize(entry, false, outcome.Failure, reason)
		return
	}
	o.finalize(entry, outcome.Success, nil, "")
}

// finalize 终态迁移、统计更新、活跃到历史的移动在同一把锁内完成
// 只有赢得状态迁移的一方执行后续的释放、持久化和事件发布
func (o *Orchestrator) finalize(entry *activeExecution, success bool, failure *workflow.TaskError, cancelReason string) bool {
	execution := entry.execution
	id := execution.ExecutionID

	o.mu.Lock()
	var err error
	if failure != nil {
		err = execution.Fail(failure, cancelReason)
	} else {
		err = execution.Complete(success)
	}
	if err != nil {
		o.mu.Unlock()
		return false
	}
	status := execution.GetStatus()
	duration := execution.Duration()
	if def, ok := o.definitions[execution.WorkflowID]; ok {
		def.RecordExecution(status == types.ExecutionCompleted, duration)
	}
	delete(o.active, id)
	o.history[id] = execution
	activeCount := len(o.active)
	o.mu.Unlock()

	entry.cancel()
	if released := o.resources.ReleaseOwner(id); released > 0 {
		log.Printf("[Orchestrator] 释放执行残留的资源预留: Execution=%s, count=%d", id, released)
	}
	o.predictions.Delete(execution.WorkflowID)
	o.metrics.SetActiveExecutions(activeCount)
	o.metrics.ObserveExecution(execution.WorkflowID, status, duration)

	o.persist(context.Background(), execution.Snapshot())
	if def, err := o.GetWorkflowDefinition(execution.WorkflowID); err == nil {
		if err := o.repo.SaveDefinition(context.Background(), def); err != nil {
			log.Printf("[Orchestrator] 保存定义统计失败: WorkflowID=%s, Error=%v", def.ID, err)
		}
	}
	o.publish(events.ExecutionCompleted(execution))

	if status == types.ExecutionCompleted {
		log.Printf("[Orchestrator] ✅ 工作流执行完成: Execution=%s, Duration=%v", id, duration)
	} else {
		log.Printf("[Orchestrator] ❌ 工作流执行失败: Execution=%s, Duration=%v, Errors=%d", id, duration, execution.ErrorCount())
	}
	return true
}

// triggerScheduled 定时触发的执行，以 cron 用户身份提交
func (o *Orchestrator) triggerScheduled(ctx context.Context, workflowID string) {
	def, err := o.GetWorkflowDefinition(workflowID)
	if err != nil {
		log.Printf("❌ [Cron调度器] 工作流不存在: WorkflowID=%s", workflowID)
		return
	}
	input := map[string]interface{}{"trigger": "cron", "scheduled_at": time.Now().Format(time.RFC3339)}
	execution, err := o.ExecuteWorkflow(ctx, workflowID, input, def.TenantID, ScheduleUser, ExecuteOptions{})
	if err != nil {
		log.Printf("❌ [Cron调度器] 提交Workflow失败: WorkflowID=%s, Error=%v", workflowID, err)
		return
	}
	log.Printf("✅ [Cron调度器] Workflow已提交执行: WorkflowID=%s, Execution=%s", workflowID, execution.ExecutionID)
}

// CancelExecution 取消运行中的执行，执行以 FAILED 结束并记录取消原因
func (o *Orchestrator) CancelExecution(ctx context.Context, executionID, reason string) error {
	o.mu.RLock()
	entry, ok := o.active[executionID]
	_, inHistory := o.history[executionID]
	o.mu.RUnlock()
	if !ok {
		if inHistory {
			return fmt.Errorf("%w: execution %s already finished", types.ErrInvalidState, executionID)
		}
		return &types.NotFoundError{Kind: "execution", ID: executionID}
	}
	if reason == "" {
		reason = workflow.CancelReasonCancelled
	}
	failure := workflow.NewTaskError("", types.CodeCancelled, fmt.Sprintf("execution cancelled: %s", reason), types.SeverityHigh, false)
	if !o.finalize(entry, false, failure, reason) {
		return fmt.Errorf("%w: execution %s already finished", types.ErrInvalidState, executionID)
	}
	log.Printf("[Orchestrator] 执行已取消: Execution=%s, Reason=%s", executionID, reason)
	return nil
}

// GetExecutionStatus 依次查找活跃执行与历史执行，不存在返回 nil
func (o *Orchestrator) GetExecutionStatus(executionID string) *workflow.WorkflowExecution {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if a, ok := o.active[executionID]; ok {
		return a.execution.Snapshot()
	}
	if e, ok := o.history[executionID]; ok {
		return e.Snapshot()
	}
	return nil
}

// ListExecutions 列出活跃与历史执行，workflowID 为空时返回全部，按创建时间倒序
func (o *Orchestrator) ListExecutions(workflowID string) []*workflow.WorkflowExecution {
	o.mu.RLock()
	all := make([]*workflow.WorkflowExecution, 0, len(o.active)+len(o.history))
	for _, a := range o.active {
		all = append(all, a.execution)
	}
	for _, e := range o.history {
		all = append(all, e)
	}
	o.mu.RUnlock()

	out := make([]*workflow.WorkflowExecution, 0, len(all))
	for _, e := range all {
		if workflowID != "" && e.WorkflowID != workflowID {
			continue
		}
		out = append(out, e.Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// ActiveExecutionCount 活跃执行数
func (o *Orchestrator) ActiveExecutionCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.active)
}

// GetPerformanceMetrics workflowID 非空时返回该工作流的指标，否则返回汇总
func (o *Orchestrator) GetPerformanceMetrics(workflowID string) (PerformanceMetrics, error) {
	o.mu.RLock()
	defs := make([]*workflow.WorkflowDefinition, 0, len(o.definitions))
	if workflowID != "" {
		def, ok := o.definitions[workflowID]
		if !ok {
			o.mu.RUnlock()
			return PerformanceMetrics{}, &types.NotFoundError{Kind: "workflow", ID: workflowID}
		}
		defs = append(defs, def)
	} else {
		for _, def := range o.definitions {
			defs = append(defs, def)
		}
	}
	activeCount := 0
	for _, a := range o.active {
		if workflowID == "" || a.execution.WorkflowID == workflowID {
			activeCount++
		}
	}
	definitionCount := len(o.definitions)
	o.mu.RUnlock()

	m := PerformanceMetrics{
		WorkflowID:       workflowID,
		Definitions:      definitionCount,
		ActiveExecutions: activeCount,
		QueuedTasks:      o.executor.QueuedTasks(),
		RunningTasks:     o.executor.RunningTasks(),
		Workers:          o.workers.Stats(),
		Resources:        o.resources.Snapshot(),
	}
	totalTime := 0.0
	for _, def := range defs {
		s := def.Stats()
		m.TotalExecutions += s.ExecutionCount
		m.SuccessfulExecutions += s.SuccessCount
		totalTime += s.AverageExecutionTime * float64(s.ExecutionCount)
	}
	if m.TotalExecutions > 0 {
		m.SuccessRate = float64(m.SuccessfulExecutions) / float64(m.TotalExecutions) * 100
		m.AverageExecutionTime = totalTime / float64(m.TotalExecutions)
	}
	return m, nil
}

// PredictPerformance 性能预估，结果按 TTL 缓存，仅供参考
func (o *Orchestrator) PredictPerformance(ctx context.Context, workflowID string) (optimizer.Prediction, error) {
	if p, ok := o.predictions.Get(workflowID); ok {
		return p, nil
	}
	def, err := o.GetWorkflowDefinition(workflowID)
	if err != nil {
		return optimizer.Prediction{}, err
	}
	p, err := o.optimizer.PredictPerformance(ctx, def)
	if err != nil {
		return optimizer.Prediction{}, fmt.Errorf("性能预估失败: %w", err)
	}
	o.predictions.Set(workflowID, p)
	return p, nil
}

// Health 最近一次健康检查结果
func (o *Orchestrator) Health() HealthStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.health
}

func (o *Orchestrator) publish(e *events.Event) {
	if err := o.bus.Publish(e); err != nil {
		log.Printf("[Orchestrator] 发布事件失败（已忽略）: type=%s, Error=%v", e.Type, err)
	}
}

func (o *Orchestrator) persist(ctx context.Context, snapshot *workflow.WorkflowExecution) {
	if err := o.repo.SaveExecution(ctx, snapshot); err != nil {
		log.Printf("[Orchestrator] 保存执行记录失败: Execution=%s, Error=%v", snapshot.ExecutionID, err)
	}
}
