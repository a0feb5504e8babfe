package service

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/common/database"
	mqttcommon "github.com/viljami/ruuvi-home-sub001/common/mqtt"
	rediscommon "github.com/viljami/ruuvi-home-sub001/common/redis"
	"github.com/viljami/ruuvi-home-sub001/internal/config"
	"github.com/viljami/ruuvi-home-sub001/internal/consumer"
	"github.com/viljami/ruuvi-home-sub001/internal/ingest"
	"github.com/viljami/ruuvi-home-sub001/internal/metrics"
	"github.com/viljami/ruuvi-home-sub001/internal/notifier"
	"github.com/viljami/ruuvi-home-sub001/internal/repository"
	"github.com/viljami/ruuvi-home-sub001/internal/validator"
)

// IngestService 摄取服务
//
// 组装 MQTT 消费者、解码验证管道、TimescaleDB 写入和
// Redis Stream 变更通知。
type IngestService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqttcommon.Client
	consumer   *consumer.MQTTConsumer
	counters   *metrics.PipelineCounters
}

// NewIngestService 创建摄取服务
func NewIngestService(cfg *config.Config, logger *zap.Logger) (*IngestService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis
	redisClient := rediscommon.NewRedisClient(&cfg.Redis)
	if err := rediscommon.Ping(context.Background(), redisClient); err != nil {
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	// 初始化MQTT，客户端ID加随机后缀避免多实例互踢
	mqttCfg := cfg.MQTT
	mqttCfg.ClientID = fmt.Sprintf("%s-%s", cfg.MQTT.ClientID, uuid.New().String()[:8])
	mqttClient, err := mqttcommon.NewClient(&mqttCfg, logger)
	if err != nil {
		rediscommon.Close(redisClient)
		database.Close(db)
		return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
	}

	readingRepo := repository.NewReadingRepository(db, logger)

	// 用库内各传感器最近序列号预热去重缓存，
	// 避免重启后把网关重放的旧帧再次入库
	v := validator.NewValidator(cfg.Ingest.SequenceWindow, logger)
	if lastSeen, err := readingRepo.LatestSequences(context.Background()); err != nil {
		logger.Warn("Failed to warm sequence cache, starting cold", zap.Error(err))
	} else {
		v.Warm(lastSeen)
	}

	streamNotifier := notifier.NewStreamNotifier(redisClient, cfg.Ingest.NotifyStream, cfg.Ingest.NotifyMaxLen, logger)
	writer := ingest.NewWriter(readingRepo, streamNotifier, logger, cfg.Ingest.MaxAttempts, cfg.Ingest.BackoffBase)

	counters := metrics.NewPipelineCounters()
	mqttConsumer := consumer.NewMQTTConsumer(cfg, mqttClient, v, writer, counters, logger)

	return &IngestService{
		config:     cfg,
		logger:     logger,
		db:         db,
		redis:      redisClient,
		mqttClient: mqttClient,
		consumer:   mqttConsumer,
		counters:   counters,
	}, nil
}

// Start 启动服务
func (s *IngestService) Start(ctx context.Context) error {
	s.logger.Info("Starting ingest service components")

	go s.logCounters(ctx)

	// 启动MQTT消费者
	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start MQTT consumer: %w", err)
	}

	s.logger.Info("Ingest service started successfully")
	return nil
}

// Stop 停止服务
func (s *IngestService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping ingest service")

	if s.consumer != nil {
		if err := s.consumer.Stop(ctx); err != nil {
			s.logger.Error("Error stopping consumer", zap.Error(err))
		}
	}

	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	if s.redis != nil {
		rediscommon.Close(s.redis)
	}

	if s.db != nil {
		database.Close(s.db)
	}

	// 最后一次输出计数器，保留停机前的管道状态
	s.counters.LogSummary(s.logger)

	s.logger.Info("Ingest service stopped")
	return nil
}

// logCounters 周期输出管道计数器摘要
func (s *IngestService) logCounters(ctx context.Context) {
	interval := s.config.Ingest.CountersEvery
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.counters.LogSummary(s.logger)
		}
	}
}
