package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-orchestrator/pkg/api/dto"
	"github.com/LENAX/workflow-orchestrator/pkg/core/engine"
)

// SystemHandler 健康检查、全局指标与Worker查询
type SystemHandler struct {
	orchestrator *engine.Orchestrator
	version      string
	startTime    time.Time
}

// NewSystemHandler 创建SystemHandler
func NewSystemHandler(o *engine.Orchestrator, version string) *SystemHandler {
	return &SystemHandler{
		orchestrator: o,
		version:      version,
		startTime:    time.Now(),
	}
}

// Health 健康检查，UNHEALTHY 时返回503
// GET /health
func (h *SystemHandler) Health(c *gin.Context) {
	health := h.orchestrator.Health()
	status := health.Status
	if status == "" {
		status = engine.HealthHealthy
	}

	code := http.StatusOK
	if status == engine.HealthUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, dto.NewSuccessResponse(dto.HealthResponse{
		Status:            status,
		Version:           h.version,
		Uptime:            dto.FormatDuration(time.Since(h.startTime)),
		Timestamp:         time.Now().Format(time.RFC3339),
		ActiveExecutions:  h.orchestrator.ActiveExecutionCount(),
		QueuedTasks:       health.QueuedTasks,
		WorkerUtilization: health.WorkerUtilization,
		Problems:          health.Problems,
	}))
}

// Ready 就绪检查
// GET /ready
func (h *SystemHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"status": "ready",
	}))
}

// Performance 全局性能指标
// GET /api/v1/metrics
func (h *SystemHandler) Performance(c *gin.Context) {
	m, err := h.orchestrator.GetPerformanceMetrics("")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(m))
}

// Workers Worker列表
// GET /api/v1/workers
func (h *SystemHandler) Workers(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(h.orchestrator.Workers()))
}
