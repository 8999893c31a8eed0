package plugin

import (
	"context"
	"sync"

	"github.com/LENAX/workflow-orchestrator/pkg/core/worker"
)

// NotifierRouter 按渠道分发通知，未注册的渠道交给 fallback
type NotifierRouter struct {
	mu       sync.RWMutex
	channels map[string]worker.Notifier
	fallback worker.Notifier
}

// NewNotifierRouter 创建通知路由，fallback 为空时使用 worker.LogNotifier
func NewNotifierRouter(fallback worker.Notifier) *NotifierRouter {
	if fallback == nil {
		fallback = worker.LogNotifier{}
	}
	return &NotifierRouter{
		channels: make(map[string]worker.Notifier),
		fallback: fallback,
	}
}

// Route 注册渠道
func (r *NotifierRouter) Route(channel string, n worker.Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[channel] = n
}

// Notify 实现 worker.Notifier
func (r *NotifierRouter) Notify(ctx context.Context, channel, recipient, message string, data map[string]interface{}) error {
	r.mu.RLock()
	n, ok := r.channels[channel]
	r.mu.RUnlock()
	if !ok {
		n = r.fallback
	}
	return n.Notify(ctx, channel, recipient, message, data)
}

var _ worker.Notifier = (*NotifierRouter)(nil)
var _ worker.Notifier = (*EmailPlugin)(nil)
