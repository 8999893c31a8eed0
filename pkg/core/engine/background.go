package engine

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/LENAX/workflow-orchestrator/pkg/core/metrics"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// 健康状态
const (
	HealthHealthy   = "HEALTHY"
	HealthDegraded  = "DEGRADED"
	HealthUnhealthy = "UNHEALTHY"
)

// HealthStatus 最近一次健康检查结果
type HealthStatus struct {
	Status            string    `json:"status"`
	ActiveExecutions  int       `json:"active_executions"`
	QueuedTasks       int       `json:"queued_tasks"`
	WorkerUtilization float64   `json:"worker_utilization"`
	TimedOut          int       `json:"timed_out"`
	Pruned            int       `json:"pruned"`
	Problems          []string  `json:"problems,omitempty"`
	CheckedAt         time.Time `json:"checked_at"`
}

// Background 后台处理器：队列处理、性能采样、资源整理与健康检查
// 各任务按固定间隔运行，SkipIfStillRunning 保证同一任务不会重入
type Background struct {
	o       *Orchestrator
	cron    *cron.Cron
	mu      sync.Mutex
	started bool
}

// NewBackground 创建后台处理器
func NewBackground(o *Orchestrator) *Background {
	return &Background{
		o:    o,
		cron: cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
	}
}

// Start 注册并启动全部后台任务
func (b *Background) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	cfg := b.o.cfg.Orchestrator.Background
	jobs := []struct {
		name     string
		interval time.Duration
		fn       func()
	}{
		{"queue", cfg.QueueInterval, func() { b.ProcessQueue() }},
		{"performance", cfg.PerformanceInterval, func() { b.SamplePerformance() }},
		{"resource", cfg.ResourceInterval, func() { b.RebalanceResources() }},
		{"health", cfg.HealthInterval, func() { b.CheckHealth() }},
	}
	for _, job := range jobs {
		spec := fmt.Sprintf("@every %s", everyInterval(job.interval))
		if _, err := b.cron.AddFunc(spec, job.fn); err != nil {
			return fmt.Errorf("注册后台任务%s失败: %w", job.name, err)
		}
	}
	b.cron.Start()
	b.started = true
	log.Printf("[Background] ✅ 后台任务已启动: queue=%v, performance=%v, resource=%v, health=%v",
		cfg.QueueInterval, cfg.PerformanceInterval, cfg.ResourceInterval, cfg.HealthInterval)
	return nil
}

// Stop 停止后台任务并等待运行中的任务返回
func (b *Background) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	<-b.cron.Stop().Done()
	b.started = false
	log.Println("[Background] ✅ 后台任务已停止")
}

// everyInterval @every 的最小粒度为1秒
func everyInterval(d time.Duration) time.Duration {
	if d < time.Second {
		return time.Second
	}
	return d.Truncate(time.Second)
}

// ProcessQueue 唤醒排队中的任务，返回被唤醒的数量
func (b *Background) ProcessQueue() int {
	n := b.o.executor.DrainQueue()
	if n > 0 {
		log.Printf("[Background] 队列处理: 唤醒排队任务 %d 个", n)
	}
	return n
}

// SamplePerformance 采集一次运行时指标
func (b *Background) SamplePerformance() metrics.Sample {
	o := b.o
	o.mu.RLock()
	sample := metrics.Sample{
		ActiveExecutions: len(o.active),
		Definitions:      len(o.definitions),
	}
	o.mu.RUnlock()

	sample.QueuedTasks = o.executor.QueuedTasks()
	sample.RunningTasks = o.executor.RunningTasks()
	sample.Workers = o.workers.Stats()
	sample.Resources = o.resources.Utilization()
	sample.At = time.Now()
	o.metrics.Record(sample)
	return sample
}

// RebalanceResources 释放不属于任何活跃执行的资源预留，返回释放数量
func (b *Background) RebalanceResources() int {
	o := b.o
	released := 0
	for _, owner := range o.resources.Owners() {
		o.mu.RLock()
		_, active := o.active[owner]
		o.mu.RUnlock()
		if active {
			continue
		}
		released += o.resources.ReleaseOwner(owner)
	}
	if released > 0 {
		log.Printf("[Background] 资源整理: 释放孤立预留 %d 个", released)
	}
	if err := o.resources.CheckInvariant(); err != nil {
		log.Printf("[Background] ❌ 资源账目异常: %v", err)
	}
	return released
}

// CheckHealth 强制结束超过截止时间加宽限期的执行，清理过期历史并更新健康状态
func (b *Background) CheckHealth() HealthStatus {
	o := b.o
	cfg := o.cfg.Orchestrator.Execution
	now := time.Now()

	o.mu.RLock()
	var overdue []*activeExecution
	for _, a := range o.active {
		if now.After(a.deadline.Add(cfg.TimeoutGrace)) {
			overdue = append(overdue, a)
		}
	}
	o.mu.RUnlock()

	timedOut := 0
	for _, a := range overdue {
		failure := workflow.NewTaskError("", types.CodeWorkflowTimeout,
			fmt.Sprintf("execution exceeded timeout %v", a.execution.Timeout), types.SeverityHigh, false)
		if o.finalize(a, false, failure, "") {
			timedOut++
			log.Printf("[Background] ❌ 执行超时被强制结束: Execution=%s", a.execution.ExecutionID)
		}
	}

	pruned := b.pruneHistory(now.Add(-cfg.HistoryRetention))
	o.predictions.Purge()

	status := HealthStatus{
		Status:      HealthHealthy,
		QueuedTasks: o.executor.QueuedTasks(),
		TimedOut:    timedOut,
		Pruned:      pruned,
		CheckedAt:   now,
	}
	workers := o.workers.Stats()
	status.WorkerUtilization = workers.Utilization()

	o.mu.Lock()
	status.ActiveExecutions = len(o.active)
	limit := cfg.MaxConcurrentExecutions
	if status.ActiveExecutions >= limit {
		status.Problems = append(status.Problems, fmt.Sprintf("active executions at limit %d", limit))
	}
	if status.WorkerUtilization >= 0.9 {
		status.Problems = append(status.Problems, fmt.Sprintf("worker utilization %.0f%%", status.WorkerUtilization*100))
	}
	if timedOut > 0 {
		status.Problems = append(status.Problems, fmt.Sprintf("%d executions timed out", timedOut))
	}
	if err := o.resources.CheckInvariant(); err != nil {
		status.Status = HealthUnhealthy
		status.Problems = append(status.Problems, err.Error())
	} else if len(status.Problems) > 0 {
		status.Status = HealthDegraded
	}
	o.health = status
	o.mu.Unlock()

	if status.Status != HealthHealthy {
		log.Printf("[Background] 健康检查: status=%s, problems=%v", status.Status, status.Problems)
	}
	return status
}

// pruneHistory 删除完成时间早于 before 的历史执行
func (b *Background) pruneHistory(before time.Time) int {
	o := b.o
	o.mu.Lock()
	pruned := 0
	for id, e := range o.history {
		if e.CompletionTime != nil && e.CompletionTime.Before(before) {
			delete(o.history, id)
			pruned++
		}
	}
	o.mu.Unlock()

	if _, err := o.repo.DeleteExecutionsBefore(context.Background(), before); err != nil {
		log.Printf("[Background] 清理历史执行记录失败: %v", err)
	}
	if pruned > 0 {
		log.Printf("[Background] 清理过期历史执行 %d 个", pruned)
	}
	return pruned
}
