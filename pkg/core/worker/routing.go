package worker

import "github.com/LENAX/workflow-orchestrator/pkg/core/types"

// SelectLeastLoaded 负载最小者，相同时取先出现者
func SelectLeastLoaded(candidates []*Worker) *Worker {
	var best *Worker
	bestLoad := 0
	for _, w := range candidates {
		load := w.Load()
		if best == nil || load < bestLoad {
			best, bestLoad = w, load
		}
	}
	return best
}

// SelectPerformanceBased 性能分最高者，相同时取先出现者
func SelectPerformanceBased(candidates []*Worker) *Worker {
	var best *Worker
	bestScore := 0.0
	for _, w := range candidates {
		score := w.PerformanceScore()
		if best == nil || score > bestScore {
			best, bestScore = w, score
		}
	}
	return best
}

// SelectSkillBased 该任务类型技能分最高者，全部相同时取第一个
func SelectSkillBased(candidates []*Worker, taskType types.TaskType) *Worker {
	var best *Worker
	bestSkill := 0.0
	for _, w := range candidates {
		skill := w.Skill(taskType)
		if best == nil || skill > bestSkill {
			best, bestSkill = w, skill
		}
	}
	return best
}
