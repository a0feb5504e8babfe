package service

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/common/database"
	"github.com/viljami/ruuvi-home-sub001/internal/config"
	"github.com/viljami/ruuvi-home-sub001/internal/maintenance"
)

// MaintenanceService 存储维护服务
type MaintenanceService struct {
	config  *config.Config
	logger  *zap.Logger
	db      *sql.DB
	manager *maintenance.Manager
}

// NewMaintenanceService 创建维护服务
func NewMaintenanceService(cfg *config.Config, logger *zap.Logger) (*MaintenanceService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	manager := maintenance.NewManager(
		db,
		cfg.Maintenance.Interval,
		cfg.Maintenance.CompressAfter,
		cfg.Maintenance.RetainRaw,
		cfg.Maintenance.RollupLag,
		logger,
	)

	return &MaintenanceService{
		config:  cfg,
		logger:  logger,
		db:      db,
		manager: manager,
	}, nil
}

// Start 启动服务（阻塞到上下文取消）
func (s *MaintenanceService) Start(ctx context.Context) error {
	s.logger.Info("Starting maintenance service")
	return s.manager.Run(ctx)
}

// Stop 停止服务
func (s *MaintenanceService) Stop(ctx context.Context) error {
	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Maintenance service stopped")
	return nil
}
