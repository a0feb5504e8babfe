package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/internal/models"
)

// readingColumns 读数表列清单，与持久化模式一致
const readingColumns = `
	sensor_id, gateway_id, temperature, humidity, pressure,
	battery, tx_power, movement_counter, sequence_number,
	acceleration, acceleration_x, acceleration_y, acceleration_z,
	rssi, observed_at`

// ReadingRepository 传感器读数时序数据仓库
type ReadingRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewReadingRepository 创建传感器读数仓库
func NewReadingRepository(db *sql.DB, logger *zap.Logger) *ReadingRepository {
	return &ReadingRepository{
		db:     db,
		logger: logger,
	}
}

// Insert 插入一条不可变读数行
//
// 同一 (sensor_id, observed_at) 允许重复行（时钟粒度），
// 去重完全由验证器的序列号检查承担，不依赖存储唯一约束。
func (r *ReadingRepository) Insert(ctx context.Context, reading *models.SensorReading) error {
	query := `
		INSERT INTO sensor_readings (
			sensor_id, gateway_id, temperature, humidity, pressure,
			battery, tx_power, movement_counter, sequence_number,
			acceleration, acceleration_x, acceleration_y, acceleration_z,
			rssi, observed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
		)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		reading.SensorID,
		reading.GatewayID,
		reading.Temperature,
		reading.Humidity,
		reading.Pressure,
		reading.Battery,
		reading.TxPower,
		reading.MovementCounter,
		reading.SequenceNumber,
		reading.Acceleration,
		reading.AccelerationX,
		reading.AccelerationY,
		reading.AccelerationZ,
		reading.RSSI,
		reading.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}

	return nil
}

// QueryRange 按时间范围查询原始读数（升序）
// limit <= 0 表示不限制行数
func (r *ReadingRepository) QueryRange(ctx context.Context, sensorID string, start, end time.Time, limit int) ([]*models.SensorReading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE sensor_id = $1
		  AND observed_at >= $2
		  AND observed_at <= $3
		ORDER BY observed_at ASC
	`
	args := []interface{}{sensorID, start, end}
	if limit > 0 {
		query += ` LIMIT $4`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// LatestBySensor 查询传感器最近一条读数
// 无数据时返回 (nil, nil)
func (r *ReadingRepository) LatestBySensor(ctx context.Context, sensorID string) (*models.SensorReading, error) {
	query := `
		SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE sensor_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`

	row := r.db.QueryRowContext(ctx, query, sensorID)
	reading, err := scanReading(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reading: %w", err)
	}

	return reading, nil
}

// ActiveSensors 查询最近24小时内每个传感器的最新读数
func (r *ReadingRepository) ActiveSensors(ctx context.Context) ([]*models.SensorReading, error) {
	query := `
		SELECT DISTINCT ON (sensor_id) ` + readingColumns + `
		FROM sensor_readings
		WHERE observed_at > NOW() - INTERVAL '24 hours'
		ORDER BY sensor_id, observed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active sensors: %w", err)
	}
	defer rows.Close()

	return scanReadings(rows)
}

// LatestSequences 查询每个传感器最近一行的序列号
// 用于启动时重建验证器的去重缓存；序列号未知的行被跳过
func (r *ReadingRepository) LatestSequences(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT DISTINCT ON (sensor_id) sensor_id, sequence_number
		FROM sensor_readings
		ORDER BY sensor_id, observed_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest sequences: %w", err)
	}
	defer rows.Close()

	sequences := make(map[string]int)
	for rows.Next() {
		var sensorID string
		var sequence sql.NullInt64
		if err := rows.Scan(&sensorID, &sequence); err != nil {
			return nil, fmt.Errorf("failed to scan sequence row: %w", err)
		}
		if sequence.Valid {
			sequences[sensorID] = int(sequence.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sequence rows: %w", err)
	}

	return sequences, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanReading 扫描单行读数，NULL列转换为nil指针
func scanReading(row rowScanner) (*models.SensorReading, error) {
	reading := &models.SensorReading{}
	var temperature, humidity, pressure, acceleration sql.NullFloat64
	var battery, txPower, movementCounter, sequenceNumber sql.NullInt64
	var accX, accY, accZ sql.NullInt64

	err := row.Scan(
		&reading.SensorID,
		&reading.GatewayID,
		&temperature,
		&humidity,
		&pressure,
		&battery,
		&txPower,
		&movementCounter,
		&sequenceNumber,
		&acceleration,
		&accX,
		&accY,
		&accZ,
		&reading.RSSI,
		&reading.ObservedAt,
	)
	if err != nil {
		return nil, err
	}

	if temperature.Valid {
		reading.Temperature = &temperature.Float64
	}
	if humidity.Valid {
		reading.Humidity = &humidity.Float64
	}
	if pressure.Valid {
		reading.Pressure = &pressure.Float64
	}
	if acceleration.Valid {
		reading.Acceleration = &acceleration.Float64
	}
	if battery.Valid {
		v := int(battery.Int64)
		reading.Battery = &v
	}
	if txPower.Valid {
		v := int(txPower.Int64)
		reading.TxPower = &v
	}
	if movementCounter.Valid {
		v := int(movementCounter.Int64)
		reading.MovementCounter = &v
	}
	if sequenceNumber.Valid {
		v := int(sequenceNumber.Int64)
		reading.SequenceNumber = &v
	}
	if accX.Valid {
		v := int(accX.Int64)
		reading.AccelerationX = &v
	}
	if accY.Valid {
		v := int(accY.Int64)
		reading.AccelerationY = &v
	}
	if accZ.Valid {
		v := int(accZ.Int64)
		reading.AccelerationZ = &v
	}

	return reading, nil
}

func scanReadings(rows *sql.Rows) ([]*models.SensorReading, error) {
	var readings []*models.SensorReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reading row: %w", err)
		}
		readings = append(readings, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate reading rows: %w", err)
	}
	return readings, nil
}
