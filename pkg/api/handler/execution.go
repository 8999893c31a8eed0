package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-orchestrator/pkg/api/dto"
	"github.com/LENAX/workflow-orchestrator/pkg/core/engine"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
)

// ExecutionHandler 执行记录API处理器
type ExecutionHandler struct {
	orchestrator *engine.Orchestrator
}

// NewExecutionHandler 创建ExecutionHandler
func NewExecutionHandler(o *engine.Orchestrator) *ExecutionHandler {
	return &ExecutionHandler{orchestrator: o}
}

// List 列出执行记录，按创建时间倒序分页
// GET /api/v1/executions
func (h *ExecutionHandler) List(c *gin.Context) {
	var query dto.ExecutionQueryRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		badRequest(c, fmt.Sprintf("查询参数错误: %v", err))
		return
	}

	all := h.orchestrator.ListExecutions(query.WorkflowID)
	items := make([]dto.ExecutionSummary, 0, len(all))
	for _, e := range all {
		if query.Status != "" && e.Status != types.ExecutionStatus(query.Status) {
			continue
		}
		items = append(items, dto.NewExecutionSummary(e))
	}

	// 分页
	limit := query.GetDefaultLimit()
	offset := query.Offset
	total := len(items)
	if offset >= total {
		items = []dto.ExecutionSummary{}
	} else {
		end := offset + limit
		if end > total {
			end = total
		}
		items = items[offset:end]
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(dto.ListResponse[dto.ExecutionSummary]{
		Total:   total,
		Items:   items,
		HasMore: offset+limit < total,
	}))
}

// Get 获取执行详情，包含各任务结果与错误
// GET /api/v1/executions/:id
func (h *ExecutionHandler) Get(c *gin.Context) {
	id := c.Param("id")
	execution := h.orchestrator.GetExecutionStatus(id)
	if execution == nil {
		respondError(c, &types.NotFoundError{Kind: "execution", ID: id})
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(execution))
}

// Cancel 取消执行
// POST /api/v1/executions/:id/cancel
func (h *ExecutionHandler) Cancel(c *gin.Context) {
	var req dto.CancelRequest
	// 请求体可选
	_ = c.ShouldBindJSON(&req)
	id := c.Param("id")

	if err := h.orchestrator.CancelExecution(c.Request.Context(), id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.NewSuccessResponse(map[string]string{
		"message": "执行已取消",
		"id":      id,
	}))
}
