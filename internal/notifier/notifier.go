package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	rediscommon "github.com/viljami/ruuvi-home-sub001/common/redis"
)

// ChangeNotification 变更通知载荷
type ChangeNotification struct {
	SensorID   string `json:"sensor_id"`
	ObservedAt string `json:"observed_at"` // ISO-8601 UTC
}

// StreamNotifier 基于 Redis Streams 的变更通知扇出
//
// 投递语义为 at-most-once、尽力而为；需要可靠投递的消费方
// 应通过原始查询接口定期对账。
type StreamNotifier struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *zap.Logger
}

// NewStreamNotifier 创建变更通知器
// maxLen <= 0 时不限制流长度
func NewStreamNotifier(client *redis.Client, stream string, maxLen int64, logger *zap.Logger) *StreamNotifier {
	return &StreamNotifier{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger,
	}
}

// NotifyCommitted 发布一条 {sensor_id, observed_at} 通知
//
// 只应在写入持久提交之后调用（notification-after-commit）。
func (n *StreamNotifier) NotifyCommitted(ctx context.Context, sensorID string, observedAt time.Time) error {
	notification := ChangeNotification{
		SensorID:   sensorID,
		ObservedAt: observedAt.UTC().Format(time.RFC3339),
	}

	var streamID string
	var err error
	if n.maxLen > 0 {
		// 近似裁剪，避免流无限增长
		streamID, err = n.client.XAdd(ctx, &redis.XAddArgs{
			Stream: n.stream,
			MaxLen: n.maxLen,
			Approx: true,
			Values: map[string]interface{}{
				"sensor_id":   notification.SensorID,
				"observed_at": notification.ObservedAt,
			},
		}).Result()
	} else {
		streamID, err = rediscommon.PublishToStream(ctx, n.client, n.stream, map[string]interface{}{
			"sensor_id":   notification.SensorID,
			"observed_at": notification.ObservedAt,
		})
	}
	if err != nil {
		return fmt.Errorf("failed to publish change notification: %w", err)
	}

	n.logger.Debug("Published change notification",
		zap.String("sensor_id", sensorID),
		zap.String("stream", n.stream),
		zap.String("stream_id", streamID),
	)

	return nil
}
