package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// ErrBusClosed 事件总线已关闭
var ErrBusClosed = errors.New("事件总线已关闭")

// Handler 事件处理函数，返回的错误只记录日志，不会重投
type Handler func(ctx context.Context, event *Event) error

// SubscriptionID 订阅ID
type SubscriptionID string

// Publisher 发布生命周期事件
type Publisher interface {
	Publish(event *Event) error
}

// Subscriber 订阅生命周期事件
type Subscriber interface {
	Subscribe(eventType Type, handler Handler) (SubscriptionID, error)
	Unsubscribe(id SubscriptionID) bool
}

type options struct {
	debug        bool
	trace        bool
	outputBuffer int64
}

// Option 事件总线选项
type Option func(*options)

// WithDebug 打开 Watermill 的调试/追踪日志
func WithDebug(debug, trace bool) Option {
	return func(o *options) {
		o.debug = debug
		o.trace = trace
	}
}

// WithOutputBuffer 设置每个订阅者的输出缓冲
func WithOutputBuffer(size int64) Option {
	return func(o *options) {
		if size > 0 {
			o.outputBuffer = size
		}
	}
}

type subscription struct {
	id        SubscriptionID
	eventType Type
	cancel    context.CancelFunc
	done      chan struct{}
}

// Bus 基于 Watermill GoChannel 的进程内事件总线
// Publish 不等待订阅者确认，没有订阅者时事件直接丢弃
type Bus struct {
	pubsub *gochannel.GoChannel

	mu     sync.Mutex
	subs   map[SubscriptionID]*subscription
	nextID int64
	closed atomic.Bool

	published atomic.Int64
	handled   atomic.Int64
	failed    atomic.Int64
}

// NewBus 创建事件总线
func NewBus(opts ...Option) *Bus {
	o := &options{outputBuffer: 64}
	for _, opt := range opts {
		opt(o)
	}

	var logger watermill.LoggerAdapter = watermill.NopLogger{}
	if o.debug || o.trace {
		logger = watermill.NewStdLogger(o.debug, o.trace)
	}

	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer:            o.outputBuffer,
				Persistent:                     false,
				BlockPublishUntilSubscriberAck: false,
			},
			logger,
		),
		subs:   make(map[SubscriptionID]*subscription),
	}
}

// Publish 发布事件
func (b *Bus) Publish(event *Event) error {
	if event == nil {
		return nil
	}
	if b.closed.Load() {
		return ErrBusClosed
	}
	if !event.Type.IsValid() {
		return fmt.Errorf("未知事件类型: %s", event.Type)
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	msg := message.NewMessage(event.ID, payload)
	msg.Metadata.Set("event_type", string(event.Type))
	msg.Metadata.Set("workflow_id", event.WorkflowID)
	if event.ExecutionID != "" {
		msg.Metadata.Set("execution_id", event.ExecutionID)
	}

	if err := b.pubsub.Publish(string(event.Type), msg); err != nil {
		return fmt.Errorf("发布事件失败: %w", err)
	}
	b.published.Add(1)
	return nil
}

// Subscribe 订阅指定类型的事件，handler 在独立 goroutine 中按到达顺序调用
func (b *Bus) Subscribe(eventType Type, handler Handler) (SubscriptionID, error) {
	if handler == nil {
		return "", errors.New("handler 不能为空")
	}
	if !eventType.IsValid() {
		return "", fmt.Errorf("未知事件类型: %s", eventType)
	}
	if b.closed.Load() {
		return "", ErrBusClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	messages, err := b.pubsub.Subscribe(ctx, string(eventType))
	if err != nil {
		cancel()
		return "", fmt.Errorf("订阅事件失败: %w", err)
	}

	b.mu.Lock()
	b.nextID++
	sub := &subscription{
		id:        SubscriptionID(fmt.Sprintf("sub_%d", b.nextID)),
		eventType: eventType,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go b.consume(ctx, sub, messages, handler)
	return sub.id, nil
}

// SubscribeAll 订阅全部事件类型
func (b *Bus) SubscribeAll(handler Handler) ([]SubscriptionID, error) {
	ids := make([]SubscriptionID, 0, len(AllTypes()))
	for _, t := range AllTypes() {
		id, err := b.Subscribe(t, handler)
		if err != nil {
			for _, prev := range ids {
				b.Unsubscribe(prev)
			}
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (b *Bus) consume(ctx context.Context, sub *subscription, messages <-chan *message.Message, handler Handler) {
	defer close(sub.done)
	for msg := range messages {
		var event Event
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			log.Printf("[EventBus] ❌ 事件反序列化失败: subscription=%s, err=%v", sub.id, err)
			msg.Ack()
			continue
		}
		if err := b.dispatch(ctx, handler, &event); err != nil {
			b.failed.Add(1)
			log.Printf("[EventBus] ❌ 事件处理失败: type=%s, subscription=%s, err=%v", event.Type, sub.id, err)
		} else {
			b.handled.Add(1)
		}
		msg.Ack()
	}
}

func (b *Bus) dispatch(ctx context.Context, handler Handler, event *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, event)
}

// Unsubscribe 取消订阅并等待该订阅的处理 goroutine 退出，返回订阅是否存在
// 不能在同一订阅的 handler 内调用
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()
	if !ok {
		return false
	}
	sub.cancel()
	<-sub.done
	return true
}

// SubscriptionCount 当前订阅数
func (b *Bus) SubscriptionCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Stats 发布/处理计数
type Stats struct {
	Published     int64 `json:"published"`
	Handled       int64 `json:"handled"`
	Failed        int64 `json:"failed"`
	Subscriptions int   `json:"subscriptions"`
}

// Stats 返回计数快照
func (b *Bus) Stats() Stats {
	return Stats{
		Published:     b.published.Load(),
		Handled:       b.handled.Load(),
		Failed:        b.failed.Load(),
		Subscriptions: b.SubscriptionCount(),
	}
}

// Close 关闭总线并等待订阅者退出
func (b *Bus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	b.mu.Lock()
	subs := make([]*subscription, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.cancel()
	}
	err := b.pubsub.Close()
	for _, sub := range subs {
		<-sub.done
	}
	return err
}
