package engine

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// TriggerFunc 定时触发时调用，参数为工作流ID
type TriggerFunc func(ctx context.Context, workflowID string)

// CronScheduler 定时调度器（对外导出）
type CronScheduler struct {
	cron    *cron.Cron
	trigger TriggerFunc
	entries map[string]cron.EntryID // workflowID -> cron.EntryID映射
	exprs   map[string]string
	mu      sync.RWMutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCronScheduler 创建定时调度器（对外导出）
func NewCronScheduler(trigger TriggerFunc) *CronScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &CronScheduler{
		cron: cron.New(
			cron.WithParser(workflow.ScheduleParser), // 支持秒级精度
			cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
		),
		trigger: trigger,
		entries: make(map[string]cron.EntryID),
		exprs:   make(map[string]string),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Register 注册工作流的定时触发（对外导出）
func (cs *CronScheduler) Register(workflowID, name, expr string) error {
	if expr == "" {
		return fmt.Errorf("Workflow %s 未设置Cron表达式", workflowID)
	}
	if _, err := workflow.ScheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("Workflow %s 的Cron表达式无效: %w", workflowID, err)
	}

	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.entries[workflowID]; exists {
		return fmt.Errorf("Workflow %s 已注册到定时调度器", workflowID)
	}

	entryID, err := cs.cron.AddFunc(expr, func() {
		log.Printf("🕐 [Cron调度器] 触发Workflow执行: ID=%s, Name=%s", workflowID, name)
		cs.trigger(cs.ctx, workflowID)
	})
	if err != nil {
		return fmt.Errorf("添加Cron任务失败: %w", err)
	}
	cs.entries[workflowID] = entryID
	cs.exprs[workflowID] = expr

	log.Printf("✅ [Cron调度器] 已注册Workflow: ID=%s, Name=%s, CronExpr=%s", workflowID, name, expr)
	return nil
}

// Unregister 取消注册，未注册时返回 false（对外导出）
func (cs *CronScheduler) Unregister(workflowID string) bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()

	entryID, exists := cs.entries[workflowID]
	if !exists {
		return false
	}
	cs.cron.Remove(entryID)
	delete(cs.entries, workflowID)
	delete(cs.exprs, workflowID)

	log.Printf("✅ [Cron调度器] 已取消注册Workflow: ID=%s", workflowID)
	return true
}

// Start 启动定时调度器（对外导出）
func (cs *CronScheduler) Start() {
	cs.cron.Start()
	log.Println("✅ [Cron调度器] 已启动")
}

// Stop 停止定时调度器，等待正在触发的任务返回（对外导出）
func (cs *CronScheduler) Stop() {
	cs.cancel()
	<-cs.cron.Stop().Done()
	log.Println("✅ [Cron调度器] 已停止")
}

// Registered 已注册的工作流ID，升序
func (cs *CronScheduler) Registered() []string {
	cs.mu.RLock()
	defer cs.mu.RUnlock()

	ids := make([]string, 0, len(cs.entries))
	for id := range cs.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Expression 已注册工作流的cron表达式
func (cs *CronScheduler) Expression(workflowID string) (string, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	expr, ok := cs.exprs[workflowID]
	return expr, ok
}
