package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/internal/models"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *ReadingRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewReadingRepository(db, logger)

	return db, mock, repo
}

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

var readingColumnNames = []string{
	"sensor_id", "gateway_id", "temperature", "humidity", "pressure",
	"battery", "tx_power", "movement_counter", "sequence_number",
	"acceleration", "acceleration_x", "acceleration_y", "acceleration_z",
	"rssi", "observed_at",
}

func TestInsert_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	observedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	reading := &models.SensorReading{
		SensorID:        "AA:BB:CC:DD:EE:FF",
		GatewayID:       "C8:25:2D:8E:9C:2C",
		Temperature:     floatPtr(21.5),
		Humidity:        floatPtr(45.0),
		Pressure:        floatPtr(1013.25),
		Battery:         intPtr(2900),
		TxPower:         intPtr(4),
		MovementCounter: intPtr(12),
		SequenceNumber:  intPtr(3001),
		Acceleration:    floatPtr(1002.5),
		AccelerationX:   intPtr(4),
		AccelerationY:   intPtr(-8),
		AccelerationZ:   intPtr(1002),
		RSSI:            -61,
		ObservedAt:      observedAt,
	}

	mock.ExpectExec(`INSERT INTO sensor_readings`).
		WithArgs(
			"AA:BB:CC:DD:EE:FF", "C8:25:2D:8E:9C:2C",
			21.5, 45.0, 1013.25,
			int64(2900), int64(4), int64(12), int64(3001),
			1002.5, int64(4), int64(-8), int64(1002),
			int64(-61), observedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), reading)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_AbsentFieldsAsNull(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	observedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// 哨兵字段以NULL入库，不是数值默认值
	reading := &models.SensorReading{
		SensorID:    "AA:BB:CC:DD:EE:FF",
		GatewayID:   "C8:25:2D:8E:9C:2C",
		Temperature: floatPtr(19.32),
		RSSI:        -70,
		ObservedAt:  observedAt,
	}

	mock.ExpectExec(`INSERT INTO sensor_readings`).
		WithArgs(
			"AA:BB:CC:DD:EE:FF", "C8:25:2D:8E:9C:2C",
			19.32, nil, nil,
			nil, nil, nil, nil,
			nil, nil, nil, nil,
			int64(-70), observedAt,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Insert(context.Background(), reading)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_StorageError(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO sensor_readings`).
		WillReturnError(sql.ErrConnDone)

	err := repo.Insert(context.Background(), &models.SensorReading{
		SensorID:   "AA:BB:CC:DD:EE:FF",
		ObservedAt: time.Now(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRange_Success(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)
	observedAt := start.Add(time.Hour)

	rows := sqlmock.NewRows(readingColumnNames).
		AddRow("AA:BB:CC:DD:EE:FF", "C8:25:2D:8E:9C:2C", 21.5, 45.0, 1013.25,
			2900, 4, 12, 3001, 1002.5, 4, -8, 1002, -61, observedAt).
		AddRow("AA:BB:CC:DD:EE:FF", "C8:25:2D:8E:9C:2C", nil, nil, nil,
			nil, nil, nil, nil, nil, nil, nil, nil, -72, observedAt.Add(time.Minute))

	mock.ExpectQuery(`SELECT(.|\s)+FROM sensor_readings`).
		WithArgs("AA:BB:CC:DD:EE:FF", start, end).
		WillReturnRows(rows)

	readings, err := repo.QueryRange(context.Background(), "AA:BB:CC:DD:EE:FF", start, end, 0)
	require.NoError(t, err)
	require.Len(t, readings, 2)

	require.NotNil(t, readings[0].Temperature)
	assert.Equal(t, 21.5, *readings[0].Temperature)
	require.NotNil(t, readings[0].SequenceNumber)
	assert.Equal(t, 3001, *readings[0].SequenceNumber)
	assert.Equal(t, -61, readings[0].RSSI)

	// NULL列还原为nil指针，不是数值0
	assert.Nil(t, readings[1].Temperature)
	assert.Nil(t, readings[1].Battery)
	assert.Nil(t, readings[1].SequenceNumber)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryRange_WithLimit(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	start := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	mock.ExpectQuery(`SELECT(.|\s)+FROM sensor_readings(.|\s)+LIMIT \$4`).
		WithArgs("AA:BB:CC:DD:EE:FF", start, end, int64(100)).
		WillReturnRows(sqlmock.NewRows(readingColumnNames))

	readings, err := repo.QueryRange(context.Background(), "AA:BB:CC:DD:EE:FF", start, end, 100)
	require.NoError(t, err)
	assert.Empty(t, readings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestBySensor_NoRows(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT(.|\s)+FROM sensor_readings`).
		WithArgs("AA:BB:CC:DD:EE:FF").
		WillReturnRows(sqlmock.NewRows(readingColumnNames))

	reading, err := repo.LatestBySensor(context.Background(), "AA:BB:CC:DD:EE:FF")
	require.NoError(t, err)
	assert.Nil(t, reading)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestSequences(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"sensor_id", "sequence_number"}).
		AddRow("AA:AA:AA:AA:AA:AA", 120).
		AddRow("BB:BB:BB:BB:BB:BB", nil).
		AddRow("CC:CC:CC:CC:CC:CC", 65000)

	mock.ExpectQuery(`SELECT DISTINCT ON \(sensor_id\)`).
		WillReturnRows(rows)

	sequences, err := repo.LatestSequences(context.Background())
	require.NoError(t, err)

	// 序列号为NULL（未知）的传感器不进入缓存
	assert.Len(t, sequences, 2)
	assert.Equal(t, 120, sequences["AA:AA:AA:AA:AA:AA"])
	assert.Equal(t, 65000, sequences["CC:CC:CC:CC:CC:CC"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestActiveSensors(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	observedAt := time.Now().UTC()
	rows := sqlmock.NewRows(readingColumnNames).
		AddRow("AA:AA:AA:AA:AA:AA", "C8:25:2D:8E:9C:2C", 20.0, 40.0, 1000.0,
			2800, 4, 1, 10, 981.0, 0, 0, 981, -55, observedAt)

	mock.ExpectQuery(`SELECT DISTINCT ON \(sensor_id\)`).
		WillReturnRows(rows)

	readings, err := repo.ActiveSensors(context.Background())
	require.NoError(t, err)
	require.Len(t, readings, 1)
	assert.Equal(t, "AA:AA:AA:AA:AA:AA", readings[0].SensorID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
