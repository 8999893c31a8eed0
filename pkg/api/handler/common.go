package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-orchestrator/pkg/api/dto"
	"github.com/LENAX/workflow-orchestrator/pkg/core/types"
)

// respondError 按错误类型映射HTTP状态码
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var (
		validationErr *types.ValidationError
		notFoundErr   *types.NotFoundError
		capacityErr   *types.CapacityError
	)
	switch {
	case errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.As(err, &notFoundErr):
		status = http.StatusNotFound
	case errors.As(err, &capacityErr):
		status = http.StatusTooManyRequests
	case errors.Is(err, types.ErrInvalidState):
		status = http.StatusConflict
	}
	c.JSON(status, dto.NewErrorResponse(status, err.Error()))
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, dto.NewErrorResponse(http.StatusBadRequest, message))
}

// identity 请求头中的租户与用户
func identity(c *gin.Context) (tenantID, userID string) {
	return c.GetHeader(dto.HeaderTenantID), c.GetHeader(dto.HeaderUserID)
}
