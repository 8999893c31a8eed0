// Package app 组装存储、插件、编排器与HTTP服务，供服务端二进制与 CLI 的 server 命令共用
package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/LENAX/workflow-orchestrator/internal/storage"
	"github.com/LENAX/workflow-orchestrator/pkg/api"
	"github.com/LENAX/workflow-orchestrator/pkg/config"
	"github.com/LENAX/workflow-orchestrator/pkg/core/engine"
	"github.com/LENAX/workflow-orchestrator/pkg/core/optimizer"
	"github.com/LENAX/workflow-orchestrator/pkg/plugin"
	repo "github.com/LENAX/workflow-orchestrator/pkg/storage"
)

// App 一个完整的编排服务实例
type App struct {
	Config       *config.OrchestratorConfig
	Repository   repo.Repository
	Orchestrator *engine.Orchestrator
	Plugins      *plugin.Manager
	Audit        *plugin.AuditLogPlugin
	Server       *api.APIServer
}

// New 按配置组装服务，不启动任何后台任务
func New(cfg *config.OrchestratorConfig, version string) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	c := &cfg.Orchestrator

	repository, err := storage.FromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("创建存储失败: %w", err)
	}

	plugins := plugin.NewManager()
	audit := plugin.NewAuditLogPlugin(c.Plugins.AuditCapacity)
	if err := plugins.RegisterWithInit(audit, nil); err != nil {
		_ = repository.Close()
		return nil, err
	}
	for _, ev := range []plugin.TriggerEvent{plugin.EventDefinitionCreated, plugin.EventExecutionStarted, plugin.EventExecutionFinished} {
		if err := plugins.Bind(plugin.PluginBinding{PluginName: audit.Name(), Event: ev}); err != nil {
			_ = repository.Close()
			return nil, err
		}
	}

	notifier := plugin.NewNotifierRouter(nil)
	if c.Plugins.Email.Enabled {
		email := plugin.NewEmailPlugin()
		if err := plugins.RegisterWithInit(email, c.Plugins.Email.Params); err != nil {
			_ = repository.Close()
			return nil, err
		}
		if err := plugins.Bind(plugin.PluginBinding{PluginName: email.Name(), Event: plugin.EventExecutionFailed}); err != nil {
			_ = repository.Close()
			return nil, err
		}
		notifier.Route(email.Name(), email)
	}

	o, err := engine.NewOrchestrator(cfg,
		engine.WithRepository(repository),
		engine.WithOptimizer(optimizer.Historical{}),
		engine.WithNotifier(notifier),
	)
	if err != nil {
		_ = repository.Close()
		return nil, err
	}

	server := api.NewAPIServer(o, api.ServerConfig{
		Host:         c.API.Host,
		Port:         c.API.Port,
		ReadTimeout:  api.DefaultServerConfig().ReadTimeout,
		WriteTimeout: api.DefaultServerConfig().WriteTimeout,
		Debug:        cfg.IsDebug(),
	}, version)

	return &App{
		Config:       cfg,
		Repository:   repository,
		Orchestrator: o,
		Plugins:      plugins,
		Audit:        audit,
		Server:       server,
	}, nil
}

// Start 订阅插件并启动编排器，HTTP服务由调用方另行启动
func (a *App) Start(ctx context.Context) error {
	if err := a.Plugins.Attach(a.Orchestrator.Events()); err != nil {
		return err
	}
	if err := a.Orchestrator.Start(ctx); err != nil {
		a.Plugins.Detach()
		return err
	}
	return nil
}

// Shutdown 依次关闭HTTP服务、插件订阅、编排器与存储
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if err := a.Server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	a.Plugins.Detach()
	if err := a.Orchestrator.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("停止编排器失败: %w", err))
	}
	if err := a.Repository.Close(); err != nil {
		errs = append(errs, fmt.Errorf("关闭存储失败: %w", err))
	}
	if len(errs) == 0 {
		log.Println("✅ 服务已停止")
	}
	return errors.Join(errs...)
}
