// Package plugin 订阅生命周期事件的插件，以及通知任务使用的通知渠道
package plugin

import "context"

// Plugin 插件接口（对外导出）
type Plugin interface {
	// Name 插件名称
	Name() string
	// Init 初始化插件
	Init(params map[string]string) error
	// Execute 执行插件逻辑
	Execute(ctx context.Context, data PluginData) error
}
