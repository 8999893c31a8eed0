// Package cmd 编排服务命令行工具
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/LENAX/workflow-orchestrator/pkg/cli/client"
)

var (
	// 全局变量
	serverURL  string
	tenantID   string
	userID     string
	outputJSON bool
)

// rootCmd 根命令
var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Workflow Orchestrator CLI - 工作流编排命令行工具",
	Long: `Workflow Orchestrator CLI 是一个用于管理工作流定义与执行的命令行工具。

支持的功能：
  - 管理Workflow（创建、更新、列出、查看、启停、删除、执行）
  - 查看执行状态、取消执行
  - 查询性能指标与Worker状态
  - 启动HTTP API服务

使用示例：
  # 从YAML文件创建Workflow
  orchestrator workflow create -f ./workflow.yaml

  # 执行Workflow
  orchestrator workflow execute <workflow-id>

  # 查看执行状态
  orchestrator execution status <execution-id>

  # 启动HTTP服务
  orchestrator server start --config ./configs/orchestrator.yaml`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(serverURL, tenantID, userID)
}

func init() {
	// 全局参数
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080", "编排服务地址")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "租户ID")
	rootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("USER"), "用户ID")
	rootCmd.PersistentFlags().BoolVarP(&outputJSON, "json", "j", false, "使用JSON格式输出")

	// 添加子命令
	rootCmd.AddCommand(workflowCmd)
	rootCmd.AddCommand(executionCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(workersCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(versionCmd)
}
