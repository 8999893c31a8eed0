// Package metrics 编排器的 Prometheus 指标
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LENAX/workflow-orchestrator/pkg/core/resource"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/worker"
)

const namespace = "orchestrator"

// Collector 编排器指标集合，使用独立 Registry，便于多实例与测试
type Collector struct {
	registry *prometheus.Registry

	tasksTotal        *prometheus.CounterVec
	taskDuration      *prometheus.HistogramVec
	taskRetries       *prometheus.CounterVec
	executionsTotal   *prometheus.CounterVec
	executionDuration prometheus.Histogram
	definitions       prometheus.Gauge
	activeExecutions  prometheus.Gauge
	queuedTasks       prometheus.Gauge
	runningTasks      prometheus.Gauge
	workers           prometheus.Gauge
	workerUtilization prometheus.Gauge
	workerScore       prometheus.Gauge
	resourceUsage     *prometheus.GaugeVec
	lastSample        prometheus.Gauge
}

// NewCollector 创建并注册全部指标
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		tasksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_attempts_total",
				Help:      "Total number of task attempts by type and outcome",
			},
			[]string{"task_type", "status"},
		),
		taskDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_attempt_duration_seconds",
				Help:      "Duration of a single task attempt",
				Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
			},
			[]string{"task_type"},
		),
		taskRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_retries_total",
				Help:      "Total number of scheduled task retries",
			},
			[]string{"task_type"},
		),
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_executions_total",
				Help:      "Total number of finished workflow executions",
			},
			[]string{"workflow_id", "status"},
		),
		executionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_execution_duration_seconds",
				Help:      "Duration of finished workflow executions",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 9),
			},
		),
		definitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workflow_definitions",
			Help:      "Number of stored workflow definitions",
		}),
		activeExecutions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_executions",
			Help:      "Number of running workflow executions",
		}),
		queuedTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queued_tasks",
			Help:      "Number of tasks waiting for an execution slot",
		}),
		runningTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "running_tasks",
			Help:      "Number of tasks holding an execution slot",
		}),
		workers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "workers",
			Help:      "Number of workers in the pool",
		}),
		workerUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_utilization_ratio",
			Help:      "Total worker load divided by total worker capacity",
		}),
		workerScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "worker_average_performance_score",
			Help:      "Average worker performance score",
		}),
		resourceUsage: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "resource_utilization_ratio",
				Help:      "Allocated share of each pooled resource",
			},
			[]string{"resource"},
		),
		lastSample: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_sample_timestamp_seconds",
			Help:      "Unix time of the last performance sample",
		}),
	}

	c.registry.MustRegister(
		c.tasksTotal,
		c.taskDuration,
		c.taskRetries,
		c.executionsTotal,
		c.executionDuration,
		c.definitions,
		c.activeExecutions,
		c.queuedTasks,
		c.runningTasks,
		c.workers,
		c.workerUtilization,
		c.workerScore,
		c.resourceUsage,
		c.lastSample,
	)
	return c
}

// Registry 返回指标注册表
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler /metrics 端点
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveTaskAttempt 记录一次任务尝试
func (c *Collector) ObserveTaskAttempt(taskType types.TaskType, status types.TaskStatus, duration time.Duration) {
	c.tasksTotal.WithLabelValues(string(taskType), string(status)).Inc()
	c.taskDuration.WithLabelValues(string(taskType)).Observe(duration.Seconds())
}

// ObserveTaskRetry 记录一次重试
func (c *Collector) ObserveTaskRetry(taskType types.TaskType) {
	c.taskRetries.WithLabelValues(string(taskType)).Inc()
}

// ObserveExecution 记录一次执行结束
func (c *Collector) ObserveExecution(workflowID string, status types.ExecutionStatus, duration time.Duration) {
	c.executionsTotal.WithLabelValues(workflowID, string(status)).Inc()
	c.executionDuration.Observe(duration.Seconds())
}

// SetActiveExecutions 更新活跃执行数
func (c *Collector) SetActiveExecutions(n int) {
	c.activeExecutions.Set(float64(n))
}

// SetDefinitions 更新定义数量
func (c *Collector) SetDefinitions(n int) {
	c.definitions.Set(float64(n))
}

// Sample 后台性能采样的输入
type Sample struct {
	ActiveExecutions int
	QueuedTasks      int
	RunningTasks     int
	Definitions      int
	Workers          worker.Stats
	Resources        map[resource.Kind]float64
	At               time.Time
}

// Record 写入一次采样
func (c *Collector) Record(s Sample) {
	c.activeExecutions.Set(float64(s.ActiveExecutions))
	c.queuedTasks.Set(float64(s.QueuedTasks))
	c.runningTasks.Set(float64(s.RunningTasks))
	c.definitions.Set(float64(s.Definitions))
	c.workers.Set(float64(s.Workers.TotalWorkers))
	c.workerUtilization.Set(s.Workers.Utilization())
	c.workerScore.Set(s.Workers.AverageScore)
	for kind, ratio := range s.Resources {
		c.resourceUsage.WithLabelValues(string(kind)).Set(ratio)
	}
	at := s.At
	if at.IsZero() {
		at = time.Now()
	}
	c.lastSample.Set(float64(at.Unix()))
}
