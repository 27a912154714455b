package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gregrebin/cihat-bot/internal/app"
	"github.com/gregrebin/cihat-bot/internal/config"
	"github.com/gregrebin/cihat-bot/internal/injector"
	"github.com/gregrebin/cihat-bot/internal/log"
	"github.com/gregrebin/cihat-bot/internal/monitor"
	"github.com/gregrebin/cihat-bot/internal/store"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "配置文件路径，默认使用 configs/config.yaml")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	logger, err := log.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer func(logger *zap.Logger) {
		_ = logger.Sync()
	}(logger)

	sqliteStore, err := store.NewSQLite(cfg.Database)
	if err != nil {
		logger.Error("初始化数据库失败", zap.Error(err))
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			logger.Warn("关闭数据库失败", zap.Error(closeErr))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metrics *monitor.Metrics
	if cfg.Monitor.Enabled {
		metrics = monitor.NewMetrics()
		metrics.Serve(ctx, cfg.Monitor.Port, logger)
	}

	registry := app.BuildRegistry(cfg, sqliteStore, metrics, logger)
	inj := injector.New(registry)

	root, err := inj.Inject("application", cfg.Application.Name)
	if err != nil {
		logger.Error("组装模块树失败", zap.Error(err))
		os.Exit(1)
	}

	go func() {
		<-ctx.Done()
		logger.Info("系统收到退出信号，正在停止")
		root.Base().Stop()
	}()

	if err := root.Base().Run(context.Background()); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("系统运行异常", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("系统已安全退出")
}
