package api

import (
	"github.com/gin-gonic/gin"

	"github.com/LENAX/workflow-orchestrator/pkg/api/handler"
	"github.com/LENAX/workflow-orchestrator/pkg/api/middleware"
	"github.com/LENAX/workflow-orchestrator/pkg/core/engine"
)

// SetupRouter 设置路由
func SetupRouter(o *engine.Orchestrator, version string) *gin.Engine {
	router := gin.New()

	// 全局中间件
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS())

	// 创建handlers
	workflowHandler := handler.NewWorkflowHandler(o)
	executionHandler := handler.NewExecutionHandler(o)
	systemHandler := handler.NewSystemHandler(o, version)
	eventHandler := handler.NewEventHandler(o.Events())

	// 健康检查与Prometheus指标（不带前缀）
	router.GET("/health", systemHandler.Health)
	router.GET("/ready", systemHandler.Ready)
	router.GET("/metrics", gin.WrapH(o.Metrics().Handler()))

	// API v1 路由组
	v1 := router.Group("/api/v1")
	{
		workflows := v1.Group("/workflows")
		{
			workflows.GET("", workflowHandler.List)
			workflows.POST("", workflowHandler.Create)
			workflows.GET("/:id", workflowHandler.Get)
			workflows.PUT("/:id", workflowHandler.Update)
			workflows.DELETE("/:id", workflowHandler.Delete)
			workflows.POST("/:id/activate", workflowHandler.Activate)
			workflows.POST("/:id/execute", workflowHandler.Execute)
			workflows.GET("/:id/metrics", workflowHandler.Metrics)
			workflows.GET("/:id/prediction", workflowHandler.Prediction)
		}

		executions := v1.Group("/executions")
		{
			executions.GET("", executionHandler.List)
			executions.GET("/:id", executionHandler.Get)
			executions.POST("/:id/cancel", executionHandler.Cancel)
		}

		v1.GET("/metrics", systemHandler.Performance)
		v1.GET("/workers", systemHandler.Workers)
		v1.GET("/events/ws", eventHandler.Stream)
	}

	return router
}
