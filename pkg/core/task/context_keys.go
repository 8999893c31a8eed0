package task

import "context"

// context key类型，用于类型安全的context.Value访问
type contextKey string

const (
	// RunInfoKey 当前任务运行信息在context中的key
	RunInfoKey contextKey = "task.run"
)

// RunInfo 单次任务尝试的标识信息（对外导出）
// 由执行单元在调用 Runner 前写入 context
type RunInfo struct {
	WorkflowID  string
	ExecutionID string
	TaskID      string
	TaskName    string
	WorkerID    string
	Attempt     int
}

// WithRunInfo 将运行信息添加到context中（对外导出）
func WithRunInfo(ctx context.Context, info RunInfo) context.Context {
	return context.WithValue(ctx, RunInfoKey, info)
}

// GetRunInfo 从context中获取运行信息（对外导出）
func GetRunInfo(ctx context.Context) (RunInfo, bool) {
	info, ok := ctx.Value(RunInfoKey).(RunInfo)
	return info, ok
}

// GetExecutionID 从context中获取Execution ID，不存在时返回空串
func GetExecutionID(ctx context.Context) string {
	info, _ := GetRunInfo(ctx)
	return info.ExecutionID
}

// GetTaskID 从context中获取Task ID
func GetTaskID(ctx context.Context) string {
	info, _ := GetRunInfo(ctx)
	return info.TaskID
}

// Fields 以 map 形式返回非空字段，便于附加到通知或日志
func (r RunInfo) Fields() map[string]interface{} {
	out := make(map[string]interface{}, 6)
	set := func(k, v string) {
		if v != "" {
			out[k] = v
		}
	}
	set("workflow_id", r.WorkflowID)
	set("execution_id", r.ExecutionID)
	set("task_id", r.TaskID)
	set("task_name", r.TaskName)
	set("worker_id", r.WorkerID)
	if r.Attempt > 0 {
		out["attempt"] = r.Attempt
	}
	return out
}
