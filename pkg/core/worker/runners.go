package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	taskctx "github.com/LENAX/workflow-orchestrator/pkg/core/task"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// DefaultRunners 内置 Runner，CUSTOM 类型需要调用方注册
func DefaultRunners(notifier Notifier) map[types.TaskType]Runner {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return map[types.TaskType]Runner{
		types.TaskTypeAPICall:       NewAPICallRunner(nil),
		types.TaskTypeDataTransform: DataTransformRunner{},
		types.TaskTypeValidation:    ValidationRunner{},
		types.TaskTypeNotification:  NotificationRunner{Notifier: notifier},
		types.TaskTypeDelay:         DelayRunner{},
	}
}

// APICallRunner 发起HTTP请求
// config: url(必填) method headers body selector expect_status
// 配置 selector 时用 CSS 选择器从HTML响应中提取文本
type APICallRunner struct {
	Client *http.Client
}

// NewAPICallRunner 创建 APICallRunner，client 为空时使用默认客户端
func NewAPICallRunner(client *http.Client) *APICallRunner {
	if client == nil {
		client = &http.Client{}
	}
	return &APICallRunner{Client: client}
}

// Run 实现 Runner 接口
func (r *APICallRunner) Run(ctx context.Context, task *workflow.TaskDefinition, _ map[string]interface{}) (map[string]interface{}, error) {
	url, _ := task.Config["url"].(string)
	if url == "" {
		return nil, types.Permanent(fmt.Errorf("task %s: config.url is required", task.ID))
	}
	method := strings.ToUpper(stringOr(task.Config["method"], http.MethodGet))

	var body io.Reader
	if raw, ok := task.Config["body"]; ok && raw != nil {
		switch b := raw.(type) {
		case string:
			body = strings.NewReader(b)
		default:
			payload, err := json.Marshal(b)
			if err != nil {
				return nil, types.Permanent(fmt.Errorf("task %s: encode body: %w", task.ID, err))
			}
			body = bytes.NewReader(payload)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, types.Permanent(fmt.Errorf("task %s: build request: %w", task.ID, err))
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if headers, ok := task.Config["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			req.Header.Set(k, fmt.Sprintf("%v", v))
		}
	}

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("task %s: request failed: %w", task.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("task %s: read response: %w", task.ID, err)
	}

	if expected, ok := toInt(task.Config["expect_status"]); ok && resp.StatusCode != expected {
		return nil, types.Permanent(fmt.Errorf("task %s: unexpected status %d, expected %d", task.ID, resp.StatusCode, expected))
	}
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("task %s: server error %d", task.ID, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return nil, types.Permanent(fmt.Errorf("task %s: client error %d", task.ID, resp.StatusCode))
	}

	output := map[string]interface{}{
		"status_code": resp.StatusCode,
	}
	contentType := resp.Header.Get("Content-Type")
	if strings.Contains(contentType, "json") {
		var parsed interface{}
		if err := json.Unmarshal(data, &parsed); err == nil {
			output["body"] = parsed
		} else {
			output["body"] = string(data)
		}
	} else {
		output["body"] = string(data)
	}

	if selector, _ := task.Config["selector"].(string); selector != "" {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
		if err != nil {
			return nil, types.Permanent(fmt.Errorf("task %s: parse html: %w", task.ID, err))
		}
		selected := make([]interface{}, 0)
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			selected = append(selected, strings.TrimSpace(s.Text()))
		})
		output["selected"] = selected
	}
	return output, nil
}

// DataTransformRunner 字段映射
// config.mapping: 目标字段 -> 输入中的点分路径；config.constants: 直接写入的常量
type DataTransformRunner struct{}

// Run 实现 Runner 接口
func (DataTransformRunner) Run(_ context.Context, task *workflow.TaskDefinition, input map[string]interface{}) (map[string]interface{}, error) {
	output := make(map[string]interface{})
	if constants, ok := task.Config["constants"].(map[string]interface{}); ok {
		for k, v := range constants {
			output[k] = v
		}
	}
	mapping, ok := task.Config["mapping"].(map[string]interface{})
	if !ok {
		for k, v := range input {
			if _, exists := output[k]; !exists {
				output[k] = v
			}
		}
		return output, nil
	}
	for target, src := range mapping {
		path, ok := src.(string)
		if !ok {
			return nil, types.Permanent(fmt.Errorf("task %s: mapping %s must be a string path", task.ID, target))
		}
		if v, found := lookup(input, path); found {
			output[target] = v
		}
	}
	return output, nil
}

// ValidationRunner 校验必填字段
// config.required_fields: 输入中必须存在且非空的点分路径
type ValidationRunner struct{}

// Run 实现 Runner 接口
func (ValidationRunner) Run(_ context.Context, task *workflow.TaskDefinition, input map[string]interface{}) (map[string]interface{}, error) {
	fields, _ := task.Config["required_fields"].([]interface{})
	missing := make([]string, 0)
	for _, f := range fields {
		path := fmt.Sprintf("%v", f)
		v, found := lookup(input, path)
		if !found || v == nil || v == "" {
			missing = append(missing, path)
		}
	}
	if len(missing) > 0 {
		return nil, types.Permanent(types.NewValidationError(
			fmt.Sprintf("task %s: missing required fields %v", task.ID, missing)))
	}
	return map[string]interface{}{"valid": true, "checked": len(fields)}, nil
}

// Notifier 通知投递钩子
type Notifier interface {
	Notify(ctx context.Context, channel, recipient, message string, data map[string]interface{}) error
}

// LogNotifier 仅写日志的通知实现
type LogNotifier struct{}

// Notify 实现 Notifier 接口
func (LogNotifier) Notify(_ context.Context, channel, recipient, message string, _ map[string]interface{}) error {
	log.Printf("[Notification] channel=%s, recipient=%s, message=%s", channel, recipient, message)
	return nil
}

// NotificationRunner 通过 Notifier 发送通知
// config: channel recipient message
type NotificationRunner struct {
	Notifier Notifier
}

// Run 实现 Runner 接口
func (r NotificationRunner) Run(ctx context.Context, task *workflow.TaskDefinition, input map[string]interface{}) (map[string]interface{}, error) {
	channel := stringOr(task.Config["channel"], "log")
	recipient := stringOr(task.Config["recipient"], "")
	message := stringOr(task.Config["message"], "")
	if message == "" {
		return nil, types.Permanent(fmt.Errorf("task %s: config.message is required", task.ID))
	}
	data := make(map[string]interface{}, len(input)+6)
	for k, v := range input {
		data[k] = v
	}
	if info, ok := taskctx.GetRunInfo(ctx); ok {
		for k, v := range info.Fields() {
			data[k] = v
		}
	}
	if err := r.Notifier.Notify(ctx, channel, recipient, message, data); err != nil {
		return nil, err
	}
	return map[string]interface{}{"delivered": true, "channel": channel, "recipient": recipient}, nil
}

// DelayRunner 等待指定时长，ctx 取消时提前返回
// config.duration_ms: 等待毫秒数
type DelayRunner struct{}

// Run 实现 Runner 接口
func (DelayRunner) Run(ctx context.Context, task *workflow.TaskDefinition, _ map[string]interface{}) (map[string]interface{}, error) {
	ms, _ := toInt(task.Config["duration_ms"])
	if ms < 0 {
		return nil, types.Permanent(fmt.Errorf("task %s: duration_ms must not be negative", task.ID))
	}
	timer := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer timer.Stop()
	select {
	case <-timer.C:
		return map[string]interface{}{"delayed_ms": ms}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func lookup(m map[string]interface{}, path string) (interface{}, bool) {
	if v, ok := m[path]; ok {
		return v, true
	}
	var current interface{} = m
	for _, part := range strings.Split(path, ".") {
		next, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		if current, ok = next[part]; !ok {
			return nil, false
		}
	}
	return current, true
}

func stringOr(v interface{}, fallback string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return fallback
}

func toInt(v interface{}) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	}
	return 0, false
}
