// Package client 编排服务 HTTP API 的客户端
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/LENAX/workflow-orchestrator/pkg/api/dto"
	"github.com/LENAX/workflow-orchestrator/pkg/core/engine"
	"github.com/LENAX/workflow-orchestrator/pkg/core/optimizer"
	"github.com/LENAX/workflow-orchestrator/pkg/core/worker"
	"github.com/LENAX/workflow-orchestrator/pkg/core/workflow"
)

// Client HTTP API客户端
type Client struct {
	baseURL    string
	tenantID   string
	userID     string
	httpClient *http.Client
}

// New 创建客户端
func New(baseURL, tenantID, userID string) *Client {
	return &Client{
		baseURL:  baseURL,
		tenantID: tenantID,
		userID:   userID,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ========== Workflow API ==========

// ListWorkflows 列出Workflow
func (c *Client) ListWorkflows(category, status string) (*dto.ListResponse[dto.WorkflowSummary], error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}
	if status != "" {
		params.Set("status", status)
	}
	var resp dto.APIResponse[dto.ListResponse[dto.WorkflowSummary]]
	if err := c.do(http.MethodGet, withQuery("/api/v1/workflows", params), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetWorkflow 获取Workflow详情
func (c *Client) GetWorkflow(id string) (*dto.WorkflowDetail, error) {
	var resp dto.APIResponse[dto.WorkflowDetail]
	if err := c.do(http.MethodGet, "/api/v1/workflows/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// CreateWorkflow 创建Workflow定义
func (c *Client) CreateWorkflow(req dto.WorkflowRequest) (*dto.WorkflowDetail, error) {
	var resp dto.APIResponse[dto.WorkflowDetail]
	if err := c.do(http.MethodPost, "/api/v1/workflows", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// UpdateWorkflow 更新Workflow定义
func (c *Client) UpdateWorkflow(id string, req dto.WorkflowRequest) (*dto.WorkflowDetail, error) {
	var resp dto.APIResponse[dto.WorkflowDetail]
	if err := c.do(http.MethodPut, "/api/v1/workflows/"+id, req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// SetWorkflowActive 启用或停用Workflow
func (c *Client) SetWorkflowActive(id string, active bool) error {
	var resp dto.APIResponse[any]
	return c.do(http.MethodPost, "/api/v1/workflows/"+id+"/activate", dto.ActivateRequest{Active: &active}, &resp)
}

// DeleteWorkflow 删除Workflow
func (c *Client) DeleteWorkflow(id string) error {
	var resp dto.APIResponse[any]
	return c.do(http.MethodDelete, "/api/v1/workflows/"+id, nil, &resp)
}

// ExecuteWorkflow 执行Workflow
func (c *Client) ExecuteWorkflow(id string, req dto.ExecuteWorkflowRequest) (*dto.ExecuteResponse, error) {
	var resp dto.APIResponse[dto.ExecuteResponse]
	if err := c.do(http.MethodPost, "/api/v1/workflows/"+id+"/execute", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetWorkflowMetrics 单个Workflow的性能指标
func (c *Client) GetWorkflowMetrics(id string) (*engine.PerformanceMetrics, error) {
	var resp dto.APIResponse[engine.PerformanceMetrics]
	if err := c.do(http.MethodGet, "/api/v1/workflows/"+id+"/metrics", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// PredictWorkflow 性能预估
func (c *Client) PredictWorkflow(id string) (*optimizer.Prediction, error) {
	var resp dto.APIResponse[optimizer.Prediction]
	if err := c.do(http.MethodGet, "/api/v1/workflows/"+id+"/prediction", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ========== Execution API ==========

// ListExecutions 列出执行记录
func (c *Client) ListExecutions(workflowID, status string, limit, offset int) (*dto.ListResponse[dto.ExecutionSummary], error) {
	params := url.Values{}
	if workflowID != "" {
		params.Set("workflow_id", workflowID)
	}
	if status != "" {
		params.Set("status", status)
	}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		params.Set("offset", strconv.Itoa(offset))
	}
	var resp dto.APIResponse[dto.ListResponse[dto.ExecutionSummary]]
	if err := c.do(http.MethodGet, withQuery("/api/v1/executions", params), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// GetExecution 获取执行详情
func (c *Client) GetExecution(id string) (*workflow.WorkflowExecution, error) {
	var resp dto.APIResponse[*workflow.WorkflowExecution]
	if err := c.do(http.MethodGet, "/api/v1/executions/"+id, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CancelExecution 取消执行
func (c *Client) CancelExecution(id, reason string) error {
	var resp dto.APIResponse[any]
	return c.do(http.MethodPost, "/api/v1/executions/"+id+"/cancel", dto.CancelRequest{Reason: reason}, &resp)
}

// ========== System API ==========

// Metrics 全局性能指标
func (c *Client) Metrics() (*engine.PerformanceMetrics, error) {
	var resp dto.APIResponse[engine.PerformanceMetrics]
	if err := c.do(http.MethodGet, "/api/v1/metrics", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// Workers Worker列表
func (c *Client) Workers() ([]worker.Info, error) {
	var resp dto.APIResponse[[]worker.Info]
	if err := c.do(http.MethodGet, "/api/v1/workers", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Health 健康检查
func (c *Client) Health() (*dto.HealthResponse, error) {
	var resp dto.APIResponse[dto.HealthResponse]
	if err := c.do(http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// ========== HTTP Methods ==========

func withQuery(path string, params url.Values) string {
	if len(params) == 0 {
		return path
	}
	return path + "?" + params.Encode()
}

// apiResult 只用于读取响应码
type apiResult struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *Client) do(method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("序列化请求体失败: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("创建请求失败: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tenantID != "" {
		req.Header.Set(dto.HeaderTenantID, c.tenantID)
	}
	if c.userID != "" {
		req.Header.Set(dto.HeaderUserID, c.userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	return parseResponse(resp, result)
}

func parseResponse(resp *http.Response, result interface{}) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("读取响应体失败: %w", err)
	}

	var head apiResult
	if err := json.Unmarshal(body, &head); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}
	if head.Code != 0 {
		return &APIError{StatusCode: resp.StatusCode, Message: head.Message}
	}
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("解析响应失败: %w, body: %s", err, string(body))
	}
	return nil
}

// APIError 服务端返回的错误
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}
