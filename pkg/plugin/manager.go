package plugin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"github.com/LENAX/workflow-orchestrator/pkg/core/events"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// TriggerEvent 插件触发事件类型（对外导出）
type TriggerEvent string

const (
	EventDefinitionCreated TriggerEvent = TriggerEvent(events.WorkflowDefinitionCreated)  // 定义创建
	EventExecutionStarted  TriggerEvent = TriggerEvent(events.WorkflowExecutionStarted)   // 执行启动
	EventExecutionFinished TriggerEvent = TriggerEvent(events.WorkflowExecutionCompleted) // 执行结束（成功或失败）
	EventExecutionFailed   TriggerEvent = "workflow.execution.failed"                     // 执行失败
)

// PluginBinding 插件绑定规则（对外导出）
type PluginBinding struct {
	PluginName string                     // 插件名称
	Event      TriggerEvent               // 触发事件
	Condition  func(data PluginData) bool // 可选：条件函数，满足条件才触发
}

// PluginData 传递给插件的数据（对外导出）
type PluginData struct {
	Event        TriggerEvent      // 触发事件
	WorkflowID   string            // 工作流ID
	WorkflowName string            // 工作流名称（定义创建事件）
	ExecutionID  string            // 执行ID（如果有）
	TenantID     string            // 租户
	UserID       string            // 用户
	Status       string            // 状态
	Success      bool              // 是否成功
	DurationMs   int64             // 执行耗时
	Summary      *workflow.Summary // 执行摘要（执行结束事件）
	Data         map[string]interface{}
}

// FromEvent 生命周期事件转插件数据
func FromEvent(e *events.Event) PluginData {
	return PluginData{
		Event:        TriggerEvent(e.Type),
		WorkflowID:   e.WorkflowID,
		WorkflowName: e.WorkflowName,
		ExecutionID:  e.ExecutionID,
		TenantID:     e.TenantID,
		UserID:       e.UserID,
		Status:       e.Status,
		Success:      e.Success,
		DurationMs:   e.DurationMs,
		Summary:      e.Summary,
	}
}

// Manager 插件管理器（对外导出）
type Manager struct {
	plugins  map[string]Plugin                // 已注册的插件（插件名称 -> 插件实例）
	bindings map[TriggerEvent][]PluginBinding // 事件绑定（事件类型 -> 绑定列表）
	mu       sync.RWMutex                     // 读写锁

	subscriber events.Subscriber
	subs       []events.SubscriptionID
}

// NewManager 创建插件管理器（对外导出）
func NewManager() *Manager {
	return &Manager{
		plugins:  make(map[string]Plugin),
		bindings: make(map[TriggerEvent][]PluginBinding),
	}
}

// Register 注册插件
func (pm *Manager) Register(plugin Plugin) error {
	if plugin == nil {
		return fmt.Errorf("插件不能为空")
	}

	name := plugin.Name()
	if name == "" {
		return fmt.Errorf("插件名称不能为空")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; exists {
		return fmt.Errorf("插件 %s 已注册", name)
	}

	pm.plugins[name] = plugin
	return nil
}

// RegisterWithInit 注册并初始化插件
func (pm *Manager) RegisterWithInit(plugin Plugin, params map[string]string) error {
	if err := pm.Register(plugin); err != nil {
		return err
	}

	if err := plugin.Init(params); err != nil {
		// 初始化失败，移除已注册的插件
		pm.mu.Lock()
		delete(pm.plugins, plugin.Name())
		pm.mu.Unlock()
		return fmt.Errorf("插件 %s 初始化失败: %w", plugin.Name(), err)
	}

	return nil
}

// Bind 绑定插件到事件
func (pm *Manager) Bind(binding PluginBinding) error {
	if binding.PluginName == "" {
		return fmt.Errorf("插件名称不能为空")
	}
	if binding.Event == "" {
		return fmt.Errorf("触发事件不能为空")
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[binding.PluginName]; !exists {
		return fmt.Errorf("插件 %s 未注册", binding.PluginName)
	}
	pm.bindings[binding.Event] = append(pm.bindings[binding.Event], binding)
	return nil
}

// Trigger 按绑定依次执行插件，汇总全部插件错误
func (pm *Manager) Trigger(ctx context.Context, event TriggerEvent, data PluginData) error {
	pm.mu.RLock()
	bindings := append([]PluginBinding(nil), pm.bindings[event]...)
	pm.mu.RUnlock()

	if len(bindings) == 0 {
		return nil // 没有绑定，直接返回
	}

	data.Event = event
	var errs []error
	for _, binding := range bindings {
		if binding.Condition != nil && !binding.Condition(data) {
			continue
		}

		pm.mu.RLock()
		plugin, exists := pm.plugins[binding.PluginName]
		pm.mu.RUnlock()
		if !exists {
			continue
		}

		if err := pm.execute(ctx, plugin, data); err != nil {
			errs = append(errs, fmt.Errorf("插件 %s 执行失败: %w", binding.PluginName, err))
		}
	}
	return errors.Join(errs...)
}

// execute 执行插件，插件 panic 转为错误
func (pm *Manager) execute(ctx context.Context, plugin Plugin, data PluginData) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("插件panic: %v", r)
		}
	}()
	return plugin.Execute(ctx, data)
}

// Attach 订阅事件总线上的全部生命周期事件
// 执行失败时额外触发 EventExecutionFailed
func (pm *Manager) Attach(subscriber events.Subscriber) error {
	pm.mu.Lock()
	if pm.subscriber != nil {
		pm.mu.Unlock()
		return fmt.Errorf("插件管理器已订阅事件总线")
	}
	pm.subscriber = subscriber
	pm.mu.Unlock()

	ids := make([]events.SubscriptionID, 0, len(events.AllTypes()))
	for _, t := range events.AllTypes() {
		id, err := subscriber.Subscribe(t, pm.handle)
		if err != nil {
			for _, subID := range ids {
				subscriber.Unsubscribe(subID)
			}
			pm.mu.Lock()
			pm.subscriber = nil
			pm.mu.Unlock()
			return fmt.Errorf("订阅事件 %s 失败: %w", t, err)
		}
		ids = append(ids, id)
	}

	pm.mu.Lock()
	pm.subs = ids
	pm.mu.Unlock()
	log.Printf("✅ [PluginManager] 已订阅生命周期事件: %d 个", len(ids))
	return nil
}

// Detach 取消事件总线订阅
func (pm *Manager) Detach() {
	pm.mu.Lock()
	subscriber, ids := pm.subscriber, pm.subs
	pm.subscriber, pm.subs = nil, nil
	pm.mu.Unlock()
	if subscriber == nil {
		return
	}
	for _, id := range ids {
		subscriber.Unsubscribe(id)
	}
}

func (pm *Manager) handle(ctx context.Context, e *events.Event) error {
	data := FromEvent(e)
	err := pm.Trigger(ctx, data.Event, data)
	if e.Type == events.WorkflowExecutionCompleted && !e.Success {
		err = errors.Join(err, pm.Trigger(ctx, EventExecutionFailed, data))
	}
	if err != nil {
		log.Printf("❌ [PluginManager] %v", err)
	}
	return err
}

// GetPlugin 获取已注册的插件
func (pm *Manager) GetPlugin(name string) (Plugin, bool) {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	plugin, exists := pm.plugins[name]
	return plugin, exists
}

// ListPlugins 列出所有已注册的插件，按名称排序
func (pm *Manager) ListPlugins() []string {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	names := make([]string, 0, len(pm.plugins))
	for name := range pm.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Unregister 取消注册插件，同时移除相关绑定
func (pm *Manager) Unregister(name string) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if _, exists := pm.plugins[name]; !exists {
		return fmt.Errorf("插件 %s 未注册", name)
	}
	delete(pm.plugins, name)

	for event := range pm.bindings {
		filtered := make([]PluginBinding, 0)
		for _, binding := range pm.bindings[event] {
			if binding.PluginName != name {
				filtered = append(filtered, binding)
			}
		}
		pm.bindings[event] = filtered
	}
	return nil
}
