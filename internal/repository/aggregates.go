package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/viljami/ruuvi-home-sub001/internal/models"
)

// RollupView 预维护的连续聚合视图
type RollupView string

const (
	// RollupHourly 小时级连续聚合
	RollupHourly RollupView = "sensor_readings_hourly"
	// RollupDaily 天级连续聚合
	RollupDaily RollupView = "sensor_readings_daily"
)

// BucketedRaw 对原始行做按需时间分桶聚合
//
// 桶内没有行时不产生结果行；空桶补齐由查询引擎负责。
func (r *ReadingRepository) BucketedRaw(ctx context.Context, sensorID string, width time.Duration, start, end time.Time) ([]*models.TimeBucket, error) {
	query := `
		SELECT
			time_bucket(make_interval(secs => $2), observed_at) AS bucket,
			AVG(temperature) AS avg_temperature,
			MIN(temperature) AS min_temperature,
			MAX(temperature) AS max_temperature,
			AVG(humidity) AS avg_humidity,
			MIN(humidity) AS min_humidity,
			MAX(humidity) AS max_humidity,
			AVG(pressure) AS avg_pressure,
			MIN(pressure) AS min_pressure,
			MAX(pressure) AS max_pressure,
			COUNT(*) AS reading_count
		FROM sensor_readings
		WHERE sensor_id = $1
		  AND observed_at >= $3
		  AND observed_at < $4
		GROUP BY bucket
		ORDER BY bucket
	`

	rows, err := r.db.QueryContext(ctx, query, sensorID, width.Seconds(), start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query raw buckets: %w", err)
	}
	defer rows.Close()

	return scanBuckets(rows)
}

// BucketedRollup 从连续聚合视图读取预计算分桶
//
// 视图的新鲜度受刷新调度限制；需要严格实时一致性的
// 调用方应使用原始查询。
func (r *ReadingRepository) BucketedRollup(ctx context.Context, view RollupView, sensorID string, start, end time.Time) ([]*models.TimeBucket, error) {
	// 视图名来自固定枚举，不拼接外部输入
	query := fmt.Sprintf(`
		SELECT
			bucket,
			avg_temperature, min_temperature, max_temperature,
			avg_humidity, min_humidity, max_humidity,
			avg_pressure, min_pressure, max_pressure,
			reading_count
		FROM %s
		WHERE sensor_id = $1
		  AND bucket >= $2
		  AND bucket < $3
		ORDER BY bucket
	`, view)

	rows, err := r.db.QueryContext(ctx, query, sensorID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query rollup %s: %w", view, err)
	}
	defer rows.Close()

	return scanBuckets(rows)
}

// Stats 传感器在尾随时间窗口内的统计
func (r *ReadingRepository) Stats(ctx context.Context, sensorID string, window time.Duration) (*models.SensorStats, error) {
	query := `
		SELECT
			COALESCE(AVG(temperature), 0) AS avg_temperature,
			COALESCE(MIN(temperature), 0) AS min_temperature,
			COALESCE(MAX(temperature), 0) AS max_temperature,
			COALESCE(AVG(humidity), 0) AS avg_humidity,
			COALESCE(MIN(humidity), 0) AS min_humidity,
			COALESCE(MAX(humidity), 0) AS max_humidity,
			COALESCE(AVG(pressure), 0) AS avg_pressure,
			COALESCE(MIN(pressure), 0) AS min_pressure,
			COALESCE(MAX(pressure), 0) AS max_pressure,
			COUNT(*) AS reading_count
		FROM sensor_readings
		WHERE sensor_id = $1
		  AND observed_at > NOW() - make_interval(secs => $2)
	`

	stats := &models.SensorStats{}
	err := r.db.QueryRowContext(ctx, query, sensorID, window.Seconds()).Scan(
		&stats.AvgTemperature,
		&stats.MinTemperature,
		&stats.MaxTemperature,
		&stats.AvgHumidity,
		&stats.MinHumidity,
		&stats.MaxHumidity,
		&stats.AvgPressure,
		&stats.MinPressure,
		&stats.MaxPressure,
		&stats.ReadingCount,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor stats: %w", err)
	}

	return stats, nil
}

// scanBuckets 扫描分桶聚合行，NULL聚合值转换为nil指针
func scanBuckets(rows *sql.Rows) ([]*models.TimeBucket, error) {
	var buckets []*models.TimeBucket
	for rows.Next() {
		bucket := &models.TimeBucket{}
		var avgT, minT, maxT sql.NullFloat64
		var avgH, minH, maxH sql.NullFloat64
		var avgP, minP, maxP sql.NullFloat64

		err := rows.Scan(
			&bucket.BucketStart,
			&avgT, &minT, &maxT,
			&avgH, &minH, &maxH,
			&avgP, &minP, &maxP,
			&bucket.Count,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bucket row: %w", err)
		}

		if avgT.Valid {
			bucket.AvgTemperature = &avgT.Float64
		}
		if minT.Valid {
			bucket.MinTemperature = &minT.Float64
		}
		if maxT.Valid {
			bucket.MaxTemperature = &maxT.Float64
		}
		if avgH.Valid {
			bucket.AvgHumidity = &avgH.Float64
		}
		if minH.Valid {
			bucket.MinHumidity = &minH.Float64
		}
		if maxH.Valid {
			bucket.MaxHumidity = &maxH.Float64
		}
		if avgP.Valid {
			bucket.AvgPressure = &avgP.Float64
		}
		if minP.Valid {
			bucket.MinPressure = &minP.Float64
		}
		if maxP.Valid {
			bucket.MaxPressure = &maxP.Float64
		}

		buckets = append(buckets, bucket)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bucket rows: %w", err)
	}
	return buckets, nil
}
