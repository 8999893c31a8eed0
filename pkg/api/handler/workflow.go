package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-orchestrator/pkg/api/dto"
	"github.com/LENAX/workflow-orchestrator/pkg/core/engine"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// WorkflowHandler Workflow API处理器
type WorkflowHandler struct {
	orchestrator *engine.Orchestrator
}

// NewWorkflowHandler 创建WorkflowHandler
func NewWorkflowHandler(o *engine.Orchestrator) *WorkflowHandler {
	return &WorkflowHandler{orchestrator: o}
}

func toDefinition(req dto.WorkflowRequest) *workflow.WorkflowDefinition {
	return &workflow.WorkflowDefinition{
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		ExecutionMode: types.ExecutionMode(req.ExecutionMode),
		Tasks:         req.Tasks,
		Tags:          req.Tags,
		Schedule:      req.Schedule,
	}
}

// List 列出Workflow
// GET /api/v1/workflows
func (h *WorkflowHandler) List(c *gin.Context) {
	var query dto.WorkflowQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, fmt.Sprintf("查询参数错误: %v", err))
		return
	}
	tenantID, _ := identity(c)

	defs := h.orchestrator.ListWorkflowDefinitions(engine.DefinitionFilter{
		Category: query.Category,
		Status:   types.DefinitionStatus(query.Status),
		Tags:     query.Tags,
		TenantID: tenantID,
	})
	items := make([]dto.WorkflowSummary, 0, len(defs))
	for _, def := range defs {
		items = append(items, dto.NewWorkflowSummary(def))
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.WorkflowSummary]{
		Total: len(items),
		Items: items,
	}))
}

// Create 创建Workflow定义
// POST /api/v1/workflows
func (h *WorkflowHandler) Create(c *gin.Context) {
	var req dto.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("请求参数错误: %v", err))
		return
	}
	tenantID, userID := identity(c)

	def, err := h.orchestrator.CreateWorkflowDefinition(c.Request.Context(), toDefinition(req), tenantID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(dto.NewWorkflowDetail(def)))
}

// Get 获取Workflow详情
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) Get(c *gin.Context) {
	def, err := h.orchestrator.GetWorkflowDefinition(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewWorkflowDetail(def)))
}

// Update 更新Workflow定义
// PUT /api/v1/workflows/:id
func (h *WorkflowHandler) Update(c *gin.Context) {
	var req dto.WorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("请求参数错误: %v", err))
		return
	}
	_, userID := identity(c)

	def, err := h.orchestrator.UpdateWorkflowDefinition(c.Request.Context(), c.Param("id"), toDefinition(req), userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.NewWorkflowDetail(def)))
}

// Activate 启用或停用Workflow
// POST /api/v1/workflows/:id/activate
func (h *WorkflowHandler) Activate(c *gin.Context) {
	var req dto.ActivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, fmt.Sprintf("请求参数错误: %v", err))
		return
	}
	_, userID := identity(c)
	id := c.Param("id")

	if err := h.orchestrator.SetWorkflowActive(c.Request.Context(), id, *req.Active, userID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]interface{}{
		"id":     id,
		"active": *req.Active,
	}))
}

// Delete 删除Workflow
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.orchestrator.DeleteWorkflowDefinition(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "删除成功",
		"id":      id,
	}))
}

// Execute 执行Workflow
// POST /api/v1/workflows/:id/execute
func (h *WorkflowHandler) Execute(c *gin.Context) {
	var req dto.ExecuteWorkflowRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, fmt.Sprintf("请求参数错误: %v", err))
		return
	}
	tenantID, userID := identity(c)

	execution, err := h.orchestrator.ExecuteWorkflow(c.Request.Context(), c.Param("id"), req.Input, tenantID, userID, engine.ExecuteOptions{
		Priority: types.Priority(req.Priority),
		Timeout:  time.Duration(req.TimeoutMs) * time.Millisecond,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.NewSuccessResponse(dto.ExecuteResponse{
		ExecutionID: execution.ExecutionID,
		Status:      string(execution.Status),
		Message:     "执行已提交",
	}))
}

// Metrics 单个Workflow的性能指标
// GET /api/v1/workflows/:id/metrics
func (h *WorkflowHandler) Metrics(c *gin.Context) {
	m, err := h.orchestrator.GetPerformanceMetrics(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(m))
}

// Prediction 性能预估
// GET /api/v1/workflows/:id/prediction
func (h *WorkflowHandler) Prediction(c *gin.Context) {
	p, err := h.orchestrator.PredictPerformance(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(p))
}
