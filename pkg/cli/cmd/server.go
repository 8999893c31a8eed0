package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/LENAX/workflow-orchestrator/internal/app"
	"github.com/LENAX/workflow-orchestrator/pkg/api"
	"github.com/LENAX/workflow-orchestrator/pkg/cli/output"
	"github.com/LENAX/workflow-orchestrator/pkg/config"
)

var (
	serverPort int
	configPath string
	serverHost string
)

// serverCmd server子命令
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "服务管理命令",
	Long:  `管理Workflow Orchestrator HTTP API服务。`,
}

// serverStartCmd 启动服务
var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "启动HTTP API服务",
	Long: `启动Workflow Orchestrator HTTP API服务。

示例：
  # 使用默认配置启动（内存存储）
  orchestrator server start

  # 指定端口启动
  orchestrator server start --port 8080

  # 指定配置文件启动
  orchestrator server start --config ./configs/orchestrator.yaml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configPath == "" {
			// 尝试默认配置路径
			for _, p := range []string{"./configs/orchestrator.yaml", "./config/orchestrator.yaml", "./orchestrator.yaml"} {
				if _, err := os.Stat(p); err == nil {
					configPath = p
					break
				}
			}
		}
		if configPath != "" {
			output.Info("使用配置文件: %s", configPath)
		} else {
			output.Warning("未找到配置文件，使用默认配置")
		}

		cfg, err := config.Load(configPath)
		if err != nil {
			output.Error("加载配置失败: %v", err)
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Orchestrator.API.Port = serverPort
		}
		if cmd.Flags().Changed("host") {
			cfg.Orchestrator.API.Host = serverHost
		}

		a, err := app.New(cfg, Version)
		if err != nil {
			output.Error("创建服务失败: %v", err)
			return err
		}
		ctx := context.Background()
		if err := a.Start(ctx); err != nil {
			output.Error("启动编排器失败: %v", err)
			return err
		}

		go func() {
			if err := a.Server.Start(); err != nil {
				log.Printf("API服务器错误: %v", err)
			}
		}()

		output.Success("Workflow Orchestrator started on %s", a.Server.Addr())

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		output.Info("正在关闭服务...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), api.DefaultServerConfig().WriteTimeout)
		defer cancel()
		if err := a.Shutdown(shutdownCtx); err != nil {
			output.Error("关闭服务失败: %v", err)
			return err
		}
		output.Success("服务已停止")
		return nil
	},
}

func init() {
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "监听端口")
	serverStartCmd.Flags().StringVarP(&serverHost, "host", "H", "0.0.0.0", "监听地址")
	serverStartCmd.Flags().StringVarP(&configPath, "config", "c", "", "配置文件路径")

	serverCmd.AddCommand(serverStartCmd)
}
