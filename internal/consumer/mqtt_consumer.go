package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	mqttcommon "github.com/viljami/ruuvi-home-sub001/common/mqtt"
	"github.com/viljami/ruuvi-home-sub001/internal/config"
	"github.com/viljami/ruuvi-home-sub001/internal/decoder"
	"github.com/viljami/ruuvi-home-sub001/internal/metrics"
	"github.com/viljami/ruuvi-home-sub001/internal/models"
	"github.com/viljami/ruuvi-home-sub001/internal/validator"
)

// Ingester 已验证读数的提交接口
type Ingester interface {
	Ingest(ctx context.Context, reading *models.SensorReading) error
}

// MQTTConsumer 网关消息消费者
//
// 从 MQTT 拉取网关转发的广播批次，逐标签执行
// 解码 -> 验证 -> 摄取；单个坏帧只计数和记录日志，
// 绝不中断同批次后续帧的处理。
type MQTTConsumer struct {
	config     *config.Config
	mqttClient *mqttcommon.Client
	validator  *validator.Validator
	writer     Ingester
	counters   *metrics.PipelineCounters
	logger     *zap.Logger

	now func() time.Time // 测试注入
}

// NewMQTTConsumer 创建MQTT消费者
func NewMQTTConsumer(
	cfg *config.Config,
	mqttClient *mqttcommon.Client,
	v *validator.Validator,
	writer Ingester,
	counters *metrics.PipelineCounters,
	logger *zap.Logger,
) *MQTTConsumer {
	return &MQTTConsumer{
		config:     cfg,
		mqttClient: mqttClient,
		validator:  v,
		writer:     writer,
		counters:   counters,
		logger:     logger,
		now:        time.Now,
	}
}

// Start 启动消费者
func (c *MQTTConsumer) Start(ctx context.Context) error {
	if err := c.mqttClient.Subscribe(c.config.Ingest.Topic, c.config.MQTT.QoS, c.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to gateway topic: %w", err)
	}

	c.logger.Info("MQTT consumer started",
		zap.String("topic", c.config.Ingest.Topic),
	)
	return nil
}

// Stop 停止消费者
func (c *MQTTConsumer) Stop(ctx context.Context) error {
	if err := c.mqttClient.Unsubscribe(c.config.Ingest.Topic); err != nil {
		c.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	c.logger.Info("MQTT consumer stopped")
	return nil
}

// handleMessage 处理MQTT消息
//
// 消息可能是批量形式 {gateway_id, received_at, tags:[...]}
// 或网关逐标签形式 {gw_mac, rssi, ts, data}；按 tags 数组区分。
func (c *MQTTConsumer) handleMessage(topic string, payload []byte) error {
	c.logger.Debug("Received MQTT message",
		zap.String("topic", topic),
		zap.Int("payload_size", len(payload)),
	)

	var batch models.GatewayBatch
	if err := json.Unmarshal(payload, &batch); err == nil && len(batch.Tags) > 0 {
		c.processBatch(&batch)
		return nil
	}

	var message models.GatewayMessage
	if err := json.Unmarshal(payload, &message); err != nil {
		return fmt.Errorf("failed to unmarshal gateway message: %w", err)
	}

	// 主题格式: ruuvi/{gateway_mac}/{tag_mac}
	tagHint := ""
	if parts := strings.Split(topic, "/"); len(parts) >= 3 {
		tagHint = parts[2]
	}

	c.processTag(tagHint, message.GatewayMAC, message.RSSI, c.observedAt(message.Timestamp), message.Data)
	return nil
}

// processBatch 处理批量消息，逐标签独立处理
func (c *MQTTConsumer) processBatch(batch *models.GatewayBatch) {
	observedAt := c.observedAt(batch.ReceivedAt)
	for _, tag := range batch.Tags {
		c.processTag(tag.SensorID, batch.GatewayID, tag.RSSI, observedAt, tag.PayloadHex)
	}
}

// processTag 单标签管道: 解码 -> 验证 -> 摄取
func (c *MQTTConsumer) processTag(tagHint, gatewayMAC string, rssi int, observedAt time.Time, payloadHex string) {
	c.counters.IncFramesReceived()

	raw, err := decoder.ExtractPayload(payloadHex)
	if err != nil {
		c.counters.IncDecodeFailures()
		c.logger.Warn("Failed to extract payload",
			zap.String("tag", tagHint),
			zap.Error(err),
		)
		return
	}

	reading, err := decoder.Decode(raw)
	if err != nil {
		c.counters.IncDecodeFailures()
		c.logger.Warn("Failed to decode frame",
			zap.String("tag", tagHint),
			zap.Error(err),
		)
		return
	}

	// 载荷内MAC与带外地址不一致时记录日志，不作为致命错误
	if hint := NormalizeMAC(tagHint); hint != "" && hint != reading.SensorID {
		c.logger.Warn("Payload MAC does not match tag address",
			zap.String("payload_mac", reading.SensorID),
			zap.String("tag_mac", hint),
		)
	}

	reading.GatewayID = NormalizeMAC(gatewayMAC)
	reading.ObservedAt = observedAt
	reading.RSSI = rssi

	if err := c.validator.Validate(reading); err != nil {
		var rangeErr *validator.RangeViolationError
		switch {
		case errors.As(err, &rangeErr):
			c.counters.IncRangeRejects()
			c.logger.Warn("Reading rejected: range violation",
				zap.String("sensor_id", reading.SensorID),
				zap.String("field", rangeErr.Field),
				zap.Float64("value", rangeErr.Value),
			)
		case errors.Is(err, validator.ErrDuplicateOrReplay):
			c.counters.IncDuplicateRejects()
			c.logger.Debug("Reading rejected: duplicate or replay",
				zap.String("sensor_id", reading.SensorID),
			)
		default:
			c.counters.IncRangeRejects()
			c.logger.Warn("Reading rejected",
				zap.String("sensor_id", reading.SensorID),
				zap.Error(err),
			)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Ingest.WriteTimeout)
	defer cancel()

	if err := c.writer.Ingest(ctx, reading); err != nil {
		c.counters.IncIngestFailures()
		c.logger.Error("Failed to ingest reading",
			zap.String("sensor_id", reading.SensorID),
			zap.Error(err),
		)
		return
	}

	c.counters.IncCommitted()
}

// observedAt 网关时间戳换算，缺失时退回本地接收时间
func (c *MQTTConsumer) observedAt(unixSeconds int64) time.Time {
	if unixSeconds <= 0 {
		return c.now().UTC()
	}
	return time.Unix(unixSeconds, 0).UTC()
}

// NormalizeMAC 归一化MAC为大写冒号分隔格式
// 接受 "aabbccddeeff" 和 "aa:bb:cc:dd:ee:ff" 两种输入
func NormalizeMAC(mac string) string {
	cleaned := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(mac), ":", ""))
	if len(cleaned) != 12 {
		return strings.ToUpper(strings.TrimSpace(mac))
	}
	parts := make([]string, 0, 6)
	for i := 0; i < 12; i += 2 {
		parts = append(parts, cleaned[i:i+2])
	}
	return strings.Join(parts, ":")
}
