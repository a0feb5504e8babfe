package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/common/logger"
	"github.com/viljami/ruuvi-home-sub001/internal/config"
	"github.com/viljami/ruuvi-home-sub001/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "ruuvi-maintenance")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting ruuvi-maintenance service",
		zap.Duration("interval", cfg.Maintenance.Interval),
	)

	// 创建服务
	maintService, err := service.NewMaintenanceService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create maintenance service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 中断信号触发取消
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	// 阻塞运行维护循环，直到取消
	if err := maintService.Start(ctx); err != nil {
		zapLogger.Error("Maintenance loop exited with error", zap.Error(err))
	}

	if err := maintService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
