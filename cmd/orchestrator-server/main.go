package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LENAX/workflow-orchestrator/internal/app"
	"github.com/LENAX/workflow-orchestrator/pkg/api"
	"github.com/LENAX/workflow-orchestrator/pkg/config"
)

var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	// 命令行参数
	configPath := flag.String("config", "./configs/orchestrator.yaml", "配置文件路径")
	host := flag.String("host", "", "监听地址（覆盖配置）")
	port := flag.Int("port", 0, "监听端口（覆盖配置）")
	flag.Parse()

	log.Printf("Workflow Orchestrator Server v%s (commit=%s, built=%s)", Version, GitCommit, BuildTime)
	log.Printf("配置文件: %s", *configPath)

	// 1. 加载配置
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *host != "" {
		cfg.Orchestrator.API.Host = *host
	}
	if *port > 0 {
		cfg.Orchestrator.API.Port = *port
	}

	// 2. 组装并启动编排器
	a, err := app.New(cfg, Version)
	if err != nil {
		log.Fatalf("创建服务失败: %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		log.Fatalf("启动编排器失败: %v", err)
	}

	// 3. 在goroutine中启动API服务器
	go func() {
		if err := a.Server.Start(); err != nil {
			log.Printf("API服务器错误: %v", err)
		}
	}()

	log.Printf("✅ Workflow Orchestrator Server started on %s", a.Server.Addr())

	// 4. 等待中断信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("正在关闭服务...")

	// 5. 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), api.DefaultServerConfig().WriteTimeout)
	defer cancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		log.Printf("关闭服务失败: %v", err)
	}
}
