package worker

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

const (
	// initialScore 新Worker的性能分和本职技能分
	initialScore = 100.0
	// scoreDecay 性能分的指数滑动平均系数
	scoreDecay = 0.9
)

// Runner 某一任务类型的执行钩子（对外导出）
// 返回的错误统一视为任务失败；用 types.Permanent 包装表示不可重试
type Runner interface {
	Run(ctx context.Context, task *workflow.TaskDefinition, input map[string]interface{}) (map[string]interface{}, error)
}

// RunnerFunc 函数形式的 Runner
type RunnerFunc func(ctx context.Context, task *workflow.TaskDefinition, input map[string]interface{}) (map[string]interface{}, error)

// Run 实现 Runner 接口
func (f RunnerFunc) Run(ctx context.Context, task *workflow.TaskDefinition, input map[string]interface{}) (map[string]interface{}, error) {
	return f(ctx, task, input)
}

// Worker 某一任务类型的执行者（对外导出）
type Worker struct {
	mu sync.Mutex

	id        string
	taskType  types.TaskType
	capacity  int
	runner    Runner
	createdAt time.Time

	load         int
	score        float64
	skills       map[types.TaskType]float64
	runs         int64
	successes    int64
	failures     int64
	lastActiveAt time.Time
}

// Info Worker状态快照
type Info struct {
	ID               string                     `json:"id"`
	TaskType         types.TaskType             `json:"task_type"`
	Available        bool                       `json:"available"`
	Load             int                        `json:"load"`
	Capacity         int                        `json:"capacity"`
	PerformanceScore float64                    `json:"performance_score"`
	Skills           map[types.TaskType]float64 `json:"skills"`
	Runs             int64                      `json:"runs"`
	Successes        int64                      `json:"successes"`
	Failures         int64                      `json:"failures"`
	CreatedAt        time.Time                  `json:"created_at"`
	LastActiveAt     time.Time                  `json:"last_active_at,omitempty"`
}

func newWorker(taskType types.TaskType, capacity int, skills map[types.TaskType]float64, runner Runner) *Worker {
	if capacity <= 0 {
		capacity = 1
	}
	s := map[types.TaskType]float64{taskType: initialScore}
	for tt, v := range skills {
		s[tt] = v
	}
	return &Worker{
		id:        fmt.Sprintf("worker_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
		taskType:  taskType,
		capacity:  capacity,
		runner:    runner,
		createdAt: time.Now(),
		score:     initialScore,
		skills:    s,
	}
}

// ID Worker ID
func (w *Worker) ID() string {
	return w.id
}

// TaskType 服务的任务类型
func (w *Worker) TaskType() types.TaskType {
	return w.taskType
}

// CanHandle 是否能执行该类型的任务
func (w *Worker) CanHandle(taskType types.TaskType) bool {
	return w.taskType == taskType
}

// IsAvailable 当前负载未达到容量
func (w *Worker) IsAvailable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load < w.capacity
}

// Load 当前负载
func (w *Worker) Load() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.load
}

// PerformanceScore 性能分
func (w *Worker) PerformanceScore() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.score
}

// Skill 某任务类型的技能分
func (w *Worker) Skill(taskType types.TaskType) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.skills[taskType]
}

// tryAcquire 负载未满时占用一个名额
func (w *Worker) tryAcquire() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.load >= w.capacity {
		return false
	}
	w.load++
	w.lastActiveAt = time.Now()
	return true
}

// Run 调用 Runner 执行任务，Runner 的 panic 转换为错误
// 负载由 Done 归还，调用方必须在 Run 返回后调用 Done
func (w *Worker) Run(ctx context.Context, task *workflow.TaskDefinition, input map[string]interface{}) (output map[string]interface{}, err error) {
	w.mu.Lock()
	runner := w.runner
	w.mu.Unlock()
	if runner == nil {
		return nil, types.Permanent(fmt.Errorf("no runner registered for task type %s", w.taskType))
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("runner panic: %v\n%s", r, debug.Stack())
		}
	}()
	return runner.Run(ctx, task, input)
}

// Done 归还负载并更新性能分与技能分
func (w *Worker) Done(success bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.load > 0 {
		w.load--
	}
	w.runs++
	if success {
		w.successes++
		w.score = w.score*scoreDecay + initialScore*(1-scoreDecay)
		w.skills[w.taskType] = w.skills[w.taskType]*scoreDecay + initialScore*(1-scoreDecay)
	} else {
		w.failures++
		w.score *= scoreDecay
		w.skills[w.taskType] *= scoreDecay
	}
	w.lastActiveAt = time.Now()
}

// Info 状态快照
func (w *Worker) Info() Info {
	w.mu.Lock()
	defer w.mu.Unlock()
	skills := make(map[types.TaskType]float64, len(w.skills))
	for k, v := range w.skills {
		skills[k] = v
	}
	return Info{
		ID:               w.id,
		TaskType:         w.taskType,
		Available:        w.load < w.capacity,
		Load:             w.load,
		Capacity:         w.capacity,
		PerformanceScore: w.score,
		Skills:           skills,
		Runs:             w.runs,
		Successes:        w.successes,
		Failures:         w.failures,
		CreatedAt:        w.createdAt,
		LastActiveAt:     w.lastActiveAt,
	}
}
