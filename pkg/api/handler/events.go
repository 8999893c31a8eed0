package handler

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/LENAX/workflow-orchestrator/pkg/api/dto"
	"github.com/LENAX/workflow-orchestrator/pkg/core/events"
)

const (
	streamBuffer = 64
	writeTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// EventHandler 生命周期事件的 websocket 推送
type EventHandler struct {
	subscriber events.Subscriber
}

// NewEventHandler 创建EventHandler
func NewEventHandler(subscriber events.Subscriber) *EventHandler {
	return &EventHandler{subscriber: subscriber}
}

// parseTypes 解析 types 查询参数，为空时订阅全部事件
func parseTypes(raw string) ([]events.Type, bool) {
	if raw == "" {
		return events.AllTypes(), true
	}
	out := make([]events.Type, 0)
	for _, part := range strings.Split(raw, ",") {
		t := events.Type(strings.TrimSpace(part))
		if t == "" {
			continue
		}
		if !t.IsValid() {
			return nil, false
		}
		out = append(out, t)
	}
	return out, len(out) > 0
}

// Stream 推送生命周期事件，可按 types 与 workflow_id 过滤
// GET /api/v1/events/ws
func (h *EventHandler) Stream(c *gin.Context) {
	eventTypes, ok := parseTypes(c.Query("types"))
	if !ok {
		c.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, "types参数错误"))
		return
	}
	workflowID := c.Query("workflow_id")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// 慢客户端丢弃事件，不阻塞事件总线
	stream := make(chan *events.Event, streamBuffer)
	forward := func(_ context.Context, e *events.Event) error {
		if workflowID != "" && e.WorkflowID != workflowID {
			return nil
		}
		select {
		case stream <- e:
		default:
			log.Printf("[EventStream] 客户端过慢，丢弃事件: type=%s, id=%s", e.Type, e.ID)
		}
		return nil
	}

	ids := make([]events.SubscriptionID, 0, len(eventTypes))
	defer func() {
		for _, id := range ids {
			h.subscriber.Unsubscribe(id)
		}
	}()
	for _, t := range eventTypes {
		id, err := h.subscriber.Subscribe(t, forward)
		if err != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "failed to subscribe to events"))
			return
		}
		ids = append(ids, id)
	}

	// 读协程只用于感知客户端断开
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case e := <-stream:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		}
	}
}
