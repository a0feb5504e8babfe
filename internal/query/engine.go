package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/internal/models"
	"github.com/viljami/ruuvi-home-sub001/internal/repository"
)

// ErrBadRequest 查询参数非法
var ErrBadRequest = errors.New("bad request")

// QueryError 带原因说明的参数错误
type QueryError struct {
	Reason string
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("bad request: %s", e.Reason)
}

func (e *QueryError) Unwrap() error {
	return ErrBadRequest
}

func badRequest(format string, args ...interface{}) error {
	return &QueryError{Reason: fmt.Sprintf(format, args...)}
}

// ReadingStore 查询引擎对存储层的依赖
type ReadingStore interface {
	QueryRange(ctx context.Context, sensorID string, start, end time.Time, limit int) ([]*models.SensorReading, error)
	LatestBySensor(ctx context.Context, sensorID string) (*models.SensorReading, error)
	ActiveSensors(ctx context.Context) ([]*models.SensorReading, error)
	BucketedRaw(ctx context.Context, sensorID string, width time.Duration, start, end time.Time) ([]*models.TimeBucket, error)
	BucketedRollup(ctx context.Context, view repository.RollupView, sensorID string, start, end time.Time) ([]*models.TimeBucket, error)
	Stats(ctx context.Context, sensorID string, window time.Duration) (*models.SensorStats, error)
	StorageStats(ctx context.Context) (*models.StorageStats, error)
}

// Engine 时序查询引擎
//
// 分桶查询按桶宽和时间范围在原始行与连续聚合视图之间选路:
// 桶宽达到预聚合粒度且查询范围完全落在热窗口之外时走视图，
// 否则走原始行的 time_bucket 聚合。结果按桶数补齐空桶。
type Engine struct {
	store           ReadingStore
	rollupThreshold time.Duration
	hotWindow       time.Duration
	maxLimit        int
	logger          *zap.Logger

	now func() time.Time // 测试注入
}

// NewEngine 创建查询引擎
func NewEngine(store ReadingStore, rollupThreshold, hotWindow time.Duration, maxLimit int, logger *zap.Logger) *Engine {
	return &Engine{
		store:           store,
		rollupThreshold: rollupThreshold,
		hotWindow:       hotWindow,
		maxLimit:        maxLimit,
		logger:          logger,
		now:             time.Now,
	}
}

// QueryRange 查询时间范围内的原始读数，按时间升序
//
// limit 为 0 或超过上限时取配置上限。
func (e *Engine) QueryRange(ctx context.Context, sensorID string, start, end time.Time, limit int) ([]*models.SensorReading, error) {
	if err := validateRange(sensorID, start, end); err != nil {
		return nil, err
	}
	if limit < 0 {
		return nil, badRequest("limit must not be negative")
	}
	if limit == 0 || limit > e.maxLimit {
		limit = e.maxLimit
	}

	return e.store.QueryRange(ctx, sensorID, start, end, limit)
}

// Latest 查询单传感器最近一条读数，无数据时返回 (nil, nil)
func (e *Engine) Latest(ctx context.Context, sensorID string) (*models.SensorReading, error) {
	if sensorID == "" {
		return nil, badRequest("sensor_id is required")
	}
	return e.store.LatestBySensor(ctx, sensorID)
}

// ActiveSensors 查询近24小时内有数据的传感器的最近读数
func (e *Engine) ActiveSensors(ctx context.Context) ([]*models.SensorReading, error) {
	return e.store.ActiveSensors(ctx)
}

// QueryBucketed 分桶聚合查询
//
// 返回切片长度恒等于 [start, end) 内的桶数，
// 无数据的桶以 Count = 0 占位。
func (e *Engine) QueryBucketed(ctx context.Context, sensorID string, start, end time.Time, width time.Duration) ([]*models.TimeBucket, error) {
	if err := validateRange(sensorID, start, end); err != nil {
		return nil, err
	}
	if width <= 0 {
		return nil, badRequest("bucket width must be positive")
	}

	first := start.Truncate(width)
	count := int(end.Sub(first) / width)
	if first.Add(time.Duration(count) * width).Before(end) {
		count++
	}
	if count > e.maxLimit {
		return nil, badRequest("range/width yields %d buckets, max is %d", count, e.maxLimit)
	}

	var (
		buckets []*models.TimeBucket
		err     error
	)

	if view, ok := e.rollupFor(end, width); ok {
		buckets, err = e.store.BucketedRollup(ctx, view, sensorID, start, end)
	} else {
		buckets, err = e.store.BucketedRaw(ctx, sensorID, width, start, end)
	}
	if err != nil {
		return nil, err
	}

	return fillGaps(buckets, first, width, count), nil
}

// Stats 查询单传感器时间窗口统计
func (e *Engine) Stats(ctx context.Context, sensorID string, window time.Duration) (*models.SensorStats, error) {
	if sensorID == "" {
		return nil, badRequest("sensor_id is required")
	}
	if window <= 0 {
		return nil, badRequest("window must be positive")
	}
	return e.store.Stats(ctx, sensorID, window)
}

// StorageStats 查询存储统计
func (e *Engine) StorageStats(ctx context.Context) (*models.StorageStats, error) {
	return e.store.StorageStats(ctx)
}

// rollupFor 判断是否可走连续聚合视图
//
// 只有桶宽恰好等于视图粒度、且查询范围结束时间早于
// 热窗口（视图刷新滞后覆盖范围）时才选择视图。
func (e *Engine) rollupFor(end time.Time, width time.Duration) (repository.RollupView, bool) {
	if width < e.rollupThreshold {
		return "", false
	}
	if !end.Before(e.now().Add(-e.hotWindow)) {
		return "", false
	}

	switch width {
	case time.Hour:
		return repository.RollupHourly, true
	case 24 * time.Hour:
		return repository.RollupDaily, true
	default:
		return "", false
	}
}

func validateRange(sensorID string, start, end time.Time) error {
	if sensorID == "" {
		return badRequest("sensor_id is required")
	}
	if start.IsZero() || end.IsZero() {
		return badRequest("start and end are required")
	}
	if !start.Before(end) {
		return badRequest("start must be before end")
	}
	return nil
}

// fillGaps 按桶数补齐空桶，保证输出长度与时间覆盖精确对应
func fillGaps(buckets []*models.TimeBucket, first time.Time, width time.Duration, count int) []*models.TimeBucket {
	byStart := make(map[int64]*models.TimeBucket, len(buckets))
	for _, b := range buckets {
		byStart[b.BucketStart.Unix()] = b
	}

	filled := make([]*models.TimeBucket, 0, count)
	for i := 0; i < count; i++ {
		startAt := first.Add(time.Duration(i) * width)
		if b, ok := byStart[startAt.Unix()]; ok {
			filled = append(filled, b)
			continue
		}
		filled = append(filled, &models.TimeBucket{BucketStart: startAt.UTC()})
	}
	return filled
}
