package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/internal/models"
)

// ErrUnavailable 存储在有限重试后仍不可用
//
// 调用方自行决定缓冲、丢弃或终止工作进程；写入器不持有持久队列。
var ErrUnavailable = errors.New("storage unavailable")

// Inserter 读数写入接口
type Inserter interface {
	Insert(ctx context.Context, reading *models.SensorReading) error
}

// Notifier 提交通知接口
type Notifier interface {
	NotifyCommitted(ctx context.Context, sensorID string, observedAt time.Time) error
}

// Writer 摄取写入器
//
// 每条已验证读数写入一个不可变行，有限指数退避重试，
// 提交成功后才发出变更通知（notification-after-commit）。
type Writer struct {
	repo        Inserter
	notifier    Notifier
	logger      *zap.Logger
	maxAttempts int
	baseBackoff time.Duration
}

// NewWriter 创建摄取写入器
// maxAttempts <= 0 时默认3次，baseBackoff <= 0 时默认250ms
func NewWriter(repo Inserter, notifier Notifier, logger *zap.Logger, maxAttempts int, baseBackoff time.Duration) *Writer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = 250 * time.Millisecond
	}
	return &Writer{
		repo:        repo,
		notifier:    notifier,
		logger:      logger,
		maxAttempts: maxAttempts,
		baseBackoff: baseBackoff,
	}
}

// Ingest 提交一条已验证读数
//
// 超时/取消由调用方通过 ctx 控制；超时视为失败，
// 重试是幂等的（重复行由验证器在写入前拦截）。
func (w *Writer) Ingest(ctx context.Context, reading *models.SensorReading) error {
	backoff := w.baseBackoff

	var lastErr error
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		lastErr = w.repo.Insert(ctx, reading)
		if lastErr == nil {
			w.notifyCommitted(ctx, reading)
			return nil
		}

		w.logger.Warn("Insert attempt failed",
			zap.String("sensor_id", reading.SensorID),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt == w.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}

	return fmt.Errorf("%w: %d attempts exhausted: %v", ErrUnavailable, w.maxAttempts, lastErr)
}

// notifyCommitted 提交后发出变更通知
// 通知是尽力而为的（at-most-once），失败只记录日志，不影响摄取结果
func (w *Writer) notifyCommitted(ctx context.Context, reading *models.SensorReading) {
	if w.notifier == nil {
		return
	}
	if err := w.notifier.NotifyCommitted(ctx, reading.SensorID, reading.ObservedAt); err != nil {
		w.logger.Warn("Failed to publish change notification",
			zap.String("sensor_id", reading.SensorID),
			zap.Error(err),
		)
	}
}
