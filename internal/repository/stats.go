package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/viljami/ruuvi-home-sub001/internal/models"
)

// StorageStats 存储统计（只读诊断，最终一致即可）
//
// 逐 chunk 报告压缩前后大小，来自 TimescaleDB 的分区元数据。
func (r *ReadingRepository) StorageStats(ctx context.Context) (*models.StorageStats, error) {
	stats := &models.StorageStats{TableName: "sensor_readings"}

	summary := `
		SELECT
			COALESCE(hypertable_size('sensor_readings'), 0) AS total_bytes,
			(SELECT COUNT(*) FROM sensor_readings) AS row_count,
			(SELECT MIN(observed_at) FROM sensor_readings) AS oldest_data,
			(SELECT MAX(observed_at) FROM sensor_readings) AS newest_data
	`
	var oldest, newest sql.NullTime
	err := r.db.QueryRowContext(ctx, summary).Scan(
		&stats.TotalBytes,
		&stats.RowCount,
		&oldest,
		&newest,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage summary: %w", err)
	}
	if oldest.Valid {
		stats.OldestData = &oldest.Time
	}
	if newest.Valid {
		stats.NewestData = &newest.Time
	}

	chunks := `
		SELECT
			c.chunk_name,
			c.range_start,
			c.range_end,
			c.is_compressed,
			COALESCE(s.before_compression_total_bytes,
			         chunks_total_size.total_bytes, 0) AS uncompressed_bytes,
			COALESCE(s.after_compression_total_bytes, 0) AS compressed_bytes
		FROM timescaledb_information.chunks c
		LEFT JOIN chunk_compression_stats('sensor_readings') s
		       ON s.chunk_name = c.chunk_name
		LEFT JOIN LATERAL (
			SELECT pg_total_relation_size(format('%I.%I', c.chunk_schema, c.chunk_name)) AS total_bytes
		) chunks_total_size ON TRUE
		WHERE c.hypertable_name = 'sensor_readings'
		ORDER BY c.range_start
	`
	rows, err := r.db.QueryContext(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		chunk := models.ChunkStats{}
		var rangeStart, rangeEnd sql.NullTime
		var uncompressed, compressed sql.NullInt64

		err := rows.Scan(
			&chunk.ChunkName,
			&rangeStart,
			&rangeEnd,
			&chunk.IsCompressed,
			&uncompressed,
			&compressed,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		if rangeStart.Valid {
			chunk.RangeStart = &rangeStart.Time
		}
		if rangeEnd.Valid {
			chunk.RangeEnd = &rangeEnd.Time
		}
		if uncompressed.Valid {
			chunk.UncompressedBytes = uncompressed.Int64
		}
		if compressed.Valid {
			chunk.CompressedBytes = compressed.Int64
		}

		stats.Chunks = append(stats.Chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chunk rows: %w", err)
	}

	return stats, nil
}
