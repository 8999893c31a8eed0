package worker

import (
	"fmt"
	"log"
	"sync"

	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// PoolConfig Worker池配置
type PoolConfig struct {
	// DefaultCapacity 按需创建的Worker的并发容量
	DefaultCapacity int
	// MaxWorkers Worker总数上限，达到后不再创建
	MaxWorkers int
	// DefaultStrategy 任务未指定路由策略时使用
	DefaultStrategy types.RoutingStrategy
}

// WorkerSpec 预置Worker的描述
type WorkerSpec struct {
	TaskType types.TaskType             `json:"task_type" yaml:"task_type"`
	Capacity int                        `json:"capacity" yaml:"capacity"`
	Skills   map[types.TaskType]float64 `json:"skills,omitempty" yaml:"skills"`
}

// Pool Worker池（对外导出）
// 选择与占用负载在池锁内一次完成，并发获取不会超出Worker容量
type Pool struct {
	mu      sync.Mutex
	cfg     PoolConfig
	workers []*Worker
	byType  map[types.TaskType][]*Worker
	rr      map[types.TaskType]uint64
	runners map[types.TaskType]Runner
}

// NewPool 创建Worker池，runners 为各任务类型的执行钩子
func NewPool(cfg PoolConfig, runners map[types.TaskType]Runner) *Pool {
	if cfg.DefaultCapacity <= 0 {
		cfg.DefaultCapacity = 10
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 200
	}
	if cfg.DefaultStrategy == "" {
		cfg.DefaultStrategy = types.RoutingLeastLoaded
	}
	p := &Pool{
		cfg:     cfg,
		byType:  make(map[types.TaskType][]*Worker),
		rr:      make(map[types.TaskType]uint64),
		runners: make(map[types.TaskType]Runner),
	}
	for tt, r := range runners {
		p.runners[tt] = r
	}
	return p
}

// RegisterRunner 注册或替换某任务类型的 Runner，已有Worker同步生效
func (p *Pool) RegisterRunner(taskType types.TaskType, runner Runner) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.runners[taskType] = runner
	for _, w := range p.byType[taskType] {
		w.mu.Lock()
		w.runner = runner
		w.mu.Unlock()
	}
}

// RegisterWorker 预置一个Worker
func (p *Pool) RegisterWorker(spec WorkerSpec) (*Worker, error) {
	if !spec.TaskType.IsValid() {
		return nil, types.NewValidationError(fmt.Sprintf("invalid task type %q", spec.TaskType))
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.workers) >= p.cfg.MaxWorkers {
		return nil, fmt.Errorf("%w: worker limit %d reached", types.ErrNoWorkerAvailable, p.cfg.MaxWorkers)
	}
	capacity := spec.Capacity
	if capacity <= 0 {
		capacity = p.cfg.DefaultCapacity
	}
	w := newWorker(spec.TaskType, capacity, spec.Skills, p.runners[spec.TaskType])
	p.addLocked(w)
	return w, nil
}

func (p *Pool) addLocked(w *Worker) {
	p.workers = append(p.workers, w)
	p.byType[w.taskType] = append(p.byType[w.taskType], w)
}

// GetWorkerForTask 为任务选择一个可用Worker并占用一个负载名额
// 没有可用Worker时按需创建一个；达到上限时立即返回 ErrNoWorkerAvailable，不会阻塞
func (p *Pool) GetWorkerForTask(task *workflow.TaskDefinition) (*Worker, error) {
	if task == nil {
		return nil, types.NewValidationError("task is required")
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := make([]*Worker, 0, len(p.byType[task.Type]))
	for _, w := range p.byType[task.Type] {
		if w.CanHandle(task.Type) && w.IsAvailable() {
			candidates = append(candidates, w)
		}
	}

	if len(candidates) == 0 {
		if len(p.workers) >= p.cfg.MaxWorkers {
			return nil, fmt.Errorf("%w: task %s (%s), worker limit %d reached",
				types.ErrNoWorkerAvailable, task.ID, task.Type, p.cfg.MaxWorkers)
		}
		w := newWorker(task.Type, p.cfg.DefaultCapacity, nil, p.runners[task.Type])
		p.addLocked(w)
		log.Printf("[WorkerPool] 创建新Worker: %s, TaskType=%s", w.id, task.Type)
		candidates = append(candidates, w)
	}

	strategy := task.RoutingStrategy
	if strategy == "" {
		strategy = p.cfg.DefaultStrategy
	}
	selected := p.selectLocked(strategy, task.Type, candidates)
	if !selected.tryAcquire() {
		return nil, fmt.Errorf("%w: worker %s became unavailable", types.ErrNoWorkerAvailable, selected.id)
	}
	return selected, nil
}

func (p *Pool) selectLocked(strategy types.RoutingStrategy, taskType types.TaskType, candidates []*Worker) *Worker {
	if len(candidates) == 1 {
		return candidates[0]
	}
	switch strategy {
	case types.RoutingRoundRobin:
		idx := p.rr[taskType] % uint64(len(candidates))
		p.rr[taskType]++
		return candidates[idx]
	case types.RoutingPerformanceBased:
		return SelectPerformanceBased(candidates)
	case types.RoutingSkillBased:
		return SelectSkillBased(candidates, taskType)
	default:
		return SelectLeastLoaded(candidates)
	}
}

// Workers 全部Worker的快照
func (p *Pool) Workers() []Info {
	p.mu.Lock()
	workers := append([]*Worker(nil), p.workers...)
	p.mu.Unlock()
	out := make([]Info, 0, len(workers))
	for _, w := range workers {
		out = append(out, w.Info())
	}
	return out
}

// Stats Worker池统计
type Stats struct {
	TotalWorkers     int                    `json:"total_workers"`
	AvailableWorkers int                    `json:"available_workers"`
	TotalLoad        int                    `json:"total_load"`
	TotalCapacity    int                    `json:"total_capacity"`
	ByType           map[types.TaskType]int `json:"by_type"`
	AverageScore     float64                `json:"average_score"`
}

// Utilization 负载占容量比例
func (s Stats) Utilization() float64 {
	if s.TotalCapacity == 0 {
		return 0
	}
	return float64(s.TotalLoad) / float64(s.TotalCapacity)
}

// Stats 统计快照
func (p *Pool) Stats() Stats {
	infos := p.Workers()
	s := Stats{ByType: make(map[types.TaskType]int)}
	scoreSum := 0.0
	for _, info := range infos {
		s.TotalWorkers++
		if info.Available {
			s.AvailableWorkers++
		}
		s.TotalLoad += info.Load
		s.TotalCapacity += info.Capacity
		s.ByType[info.TaskType]++
		scoreSum += info.PerformanceScore
	}
	if s.TotalWorkers > 0 {
		s.AverageScore = scoreSum / float64(s.TotalWorkers)
	}
	return s
}
