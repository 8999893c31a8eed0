// Package output CLI 的彩色文本、表格与JSON输出
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// Writer 输出目标，测试中可替换
var Writer io.Writer = os.Stdout

// PrintJSON 输出JSON格式
func PrintJSON(data interface{}) error {
	encoder := json.NewEncoder(Writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Success 输出成功消息
func Success(format string, args ...interface{}) {
	color.New(color.FgGreen, color.Bold).Fprintf(Writer, "✅ "+format+"\n", args...)
}

// Error 输出错误消息
func Error(format string, args ...interface{}) {
	color.New(color.FgRed, color.Bold).Fprintf(Writer, "❌ "+format+"\n", args...)
}

// Info 输出信息
func Info(format string, args ...interface{}) {
	color.New(color.FgCyan).Fprintf(Writer, "ℹ️  "+format+"\n", args...)
}

// Warning 输出警告
func Warning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(Writer, "⚠️  "+format+"\n", args...)
}

// Field 输出对齐的键值行
func Field(name string, value interface{}) {
	fmt.Fprintf(Writer, "%-10s %v\n", name+":", value)
}

// Status 按状态着色
func Status(status string) string {
	switch status {
	case "COMPLETED", "ACTIVE", "HEALTHY":
		return color.GreenString(status)
	case "FAILED", "UNHEALTHY":
		return color.RedString(status)
	case "RUNNING", "DEGRADED":
		return color.YellowString(status)
	case "INACTIVE", "CREATED", "SKIPPED":
		return color.HiBlackString(status)
	default:
		return status
	}
}
