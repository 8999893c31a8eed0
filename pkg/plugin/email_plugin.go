package plugin

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"net/smtp"
	"strings"
	"sync"
)

// sendFunc 发送一封已构建好的邮件
type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// EmailPlugin 邮件插件（对外导出）
// 作为插件在执行结束时发送告警，同时作为 email 渠道的通知实现
type EmailPlugin struct {
	mu       sync.RWMutex
	name     string
	smtpHost string
	smtpPort int
	username string
	password string
	from     string
	to       []string
	enabled  bool
	send     sendFunc
}

// NewEmailPlugin 创建邮件插件（对外导出）
func NewEmailPlugin() *EmailPlugin {
	e := &EmailPlugin{name: "email"}
	e.send = e.deliver
	return e
}

// Name 插件名称
func (e *EmailPlugin) Name() string {
	return e.name
}

// Init 初始化插件
func (e *EmailPlugin) Init(params map[string]string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.smtpHost = params["smtp_host"]
	if e.smtpHost == "" {
		return fmt.Errorf("smtp_host参数不能为空")
	}

	// SMTP端口（默认25）
	e.smtpPort = 25
	if portStr := params["smtp_port"]; portStr != "" {
		if _, err := fmt.Sscanf(portStr, "%d", &e.smtpPort); err != nil {
			return fmt.Errorf("smtp_port参数格式错误: %w", err)
		}
	}

	// 用户名和密码（可选，用于认证）
	e.username = params["username"]
	e.password = params["password"]

	e.from = params["from"]
	if e.from == "" {
		return fmt.Errorf("from参数不能为空")
	}

	// 收件人地址（多个用逗号分隔）
	e.to = splitRecipients(params["to"])
	if len(e.to) == 0 {
		return fmt.Errorf("to参数不能为空")
	}

	e.enabled = true
	log.Printf("✅ [EmailPlugin] 初始化完成: SMTP=%s:%d, From=%s, To=%v", e.smtpHost, e.smtpPort, e.from, e.to)
	return nil
}

// Execute 发送生命周期事件邮件
func (e *EmailPlugin) Execute(_ context.Context, data PluginData) error {
	e.mu.RLock()
	enabled, to := e.enabled, e.to
	e.mu.RUnlock()
	if !enabled {
		return fmt.Errorf("邮件插件未初始化")
	}

	subject := buildSubject(data)
	if err := e.sendEmail(to, subject, buildBody(data)); err != nil {
		log.Printf("❌ [EmailPlugin] 发送邮件失败: %v", err)
		return err
	}
	log.Printf("✅ [EmailPlugin] 邮件发送成功: Event=%s, Subject=%s", data.Event, subject)
	return nil
}

// Notify 实现 worker.Notifier，recipient 为空时发给默认收件人
func (e *EmailPlugin) Notify(_ context.Context, channel, recipient, message string, _ map[string]interface{}) error {
	e.mu.RLock()
	enabled, to := e.enabled, e.to
	e.mu.RUnlock()
	if !enabled {
		return fmt.Errorf("邮件插件未初始化")
	}
	if r := splitRecipients(recipient); len(r) > 0 {
		to = r
	}
	return e.sendEmail(to, fmt.Sprintf("[%s] 工作流通知", channel), message)
}

func splitRecipients(s string) []string {
	out := make([]string, 0)
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// buildSubject 构建邮件主题
func buildSubject(data PluginData) string {
	switch data.Event {
	case EventDefinitionCreated:
		return fmt.Sprintf("[工作流创建] %s - %s", data.WorkflowName, data.WorkflowID)
	case EventExecutionStarted:
		return fmt.Sprintf("[执行启动] %s - %s", data.WorkflowID, data.ExecutionID)
	case EventExecutionFinished:
		if data.Success {
			return fmt.Sprintf("[执行完成] %s - %s", data.WorkflowID, data.ExecutionID)
		}
		return fmt.Sprintf("[执行失败] %s - %s", data.WorkflowID, data.ExecutionID)
	case EventExecutionFailed:
		return fmt.Sprintf("[执行失败] %s - %s", data.WorkflowID, data.ExecutionID)
	default:
		return fmt.Sprintf("[系统通知] %s", data.Event)
	}
}

// buildBody 构建邮件正文
func buildBody(data PluginData) string {
	var body strings.Builder
	body.WriteString(fmt.Sprintf("事件类型: %s\n", data.Event))
	if data.Status != "" {
		body.WriteString(fmt.Sprintf("状态: %s\n", data.Status))
	}
	if data.WorkflowID != "" {
		body.WriteString(fmt.Sprintf("Workflow ID: %s\n", data.WorkflowID))
	}
	if data.ExecutionID != "" {
		body.WriteString(fmt.Sprintf("Execution ID: %s\n", data.ExecutionID))
	}
	if data.DurationMs > 0 {
		body.WriteString(fmt.Sprintf("耗时: %dms\n", data.DurationMs))
	}
	if s := data.Summary; s != nil {
		body.WriteString(fmt.Sprintf("任务: 共%d, 完成%d, 失败%d, 跳过%d, 错误%d\n",
			s.TotalTasks, s.CompletedTasks, s.FailedTasks, s.SkippedTasks, s.ErrorCount))
	}
	if len(data.Data) > 0 {
		body.WriteString("\n详细信息:\n")
		for k, v := range data.Data {
			body.WriteString(fmt.Sprintf("  %s: %v\n", k, v))
		}
	}
	return body.String()
}

// sendEmail 发送邮件
func (e *EmailPlugin) sendEmail(to []string, subject, body string) error {
	e.mu.RLock()
	addr := fmt.Sprintf("%s:%d", e.smtpHost, e.smtpPort)
	from := e.from
	var auth smtp.Auth
	if e.username != "" && e.password != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.smtpHost)
	}
	send := e.send
	e.mu.RUnlock()

	return send(addr, auth, from, to, []byte(buildMessage(from, to, subject, body)))
}

// deliver 默认发送实现，465端口走TLS
func (e *EmailPlugin) deliver(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if e.smtpPort == 465 {
		return e.sendEmailTLS(addr, auth, from, to, msg)
	}
	return smtp.SendMail(addr, auth, from, to, msg)
}

// sendEmailTLS 通过TLS发送邮件（用于465端口）
func (e *EmailPlugin) sendEmailTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{
		ServerName: e.smtpHost,
	})
	if err != nil {
		return fmt.Errorf("TLS连接失败: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, e.smtpHost)
	if err != nil {
		return fmt.Errorf("创建SMTP客户端失败: %w", err)
	}
	defer client.Close()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP认证失败: %w", err)
		}
	}
	if err := client.Mail(from); err != nil {
		return fmt.Errorf("设置发件人失败: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("设置收件人失败: %w", err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("获取数据写入器失败: %w", err)
	}
	if _, err := writer.Write(msg); err != nil {
		return fmt.Errorf("写入邮件内容失败: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("关闭数据写入器失败: %w", err)
	}
	return client.Quit()
}

// buildMessage 构建邮件消息
func buildMessage(from string, to []string, subject, body string) string {
	var message strings.Builder
	message.WriteString(fmt.Sprintf("From: %s\r\n", from))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	message.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	message.WriteString("\r\n")
	message.WriteString(body)
	return message.String()
}
