package models

import (
	"time"
)

// TimeBucket 时间分桶聚合结果
// 空桶以 Count = 0 表示，聚合字段为 nil。
type TimeBucket struct {
	BucketStart time.Time `json:"bucket_start"`

	AvgTemperature *float64 `json:"avg_temperature"`
	MinTemperature *float64 `json:"min_temperature"`
	MaxTemperature *float64 `json:"max_temperature"`

	AvgHumidity *float64 `json:"avg_humidity"`
	MinHumidity *float64 `json:"min_humidity"`
	MaxHumidity *float64 `json:"max_humidity"`

	AvgPressure *float64 `json:"avg_pressure"`
	MinPressure *float64 `json:"min_pressure"`
	MaxPressure *float64 `json:"max_pressure"`

	Count int64 `json:"count"`
}

// SensorStats 传感器时间窗口统计
type SensorStats struct {
	AvgTemperature float64 `json:"avg_temperature"`
	MinTemperature float64 `json:"min_temperature"`
	MaxTemperature float64 `json:"max_temperature"`
	AvgHumidity    float64 `json:"avg_humidity"`
	MinHumidity    float64 `json:"min_humidity"`
	MaxHumidity    float64 `json:"max_humidity"`
	AvgPressure    float64 `json:"avg_pressure"`
	MinPressure    float64 `json:"min_pressure"`
	MaxPressure    float64 `json:"max_pressure"`
	ReadingCount   int64   `json:"reading_count"`
}

// ChunkStats 单个时间分区（chunk）的存储统计
type ChunkStats struct {
	ChunkName         string     `json:"chunk_name"`
	RangeStart        *time.Time `json:"range_start"`
	RangeEnd          *time.Time `json:"range_end"`
	IsCompressed      bool       `json:"is_compressed"`
	UncompressedBytes int64      `json:"uncompressed_bytes"`
	CompressedBytes   int64      `json:"compressed_bytes"`
}

// StorageStats 存储统计（容量规划用，只读诊断）
type StorageStats struct {
	TableName  string       `json:"table_name"`
	TotalBytes int64        `json:"total_bytes"`
	RowCount   int64        `json:"row_count"`
	OldestData *time.Time   `json:"oldest_data"`
	NewestData *time.Time   `json:"newest_data"`
	Chunks     []ChunkStats `json:"chunks"`
}
