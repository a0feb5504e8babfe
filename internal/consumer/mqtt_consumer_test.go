package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/internal/config"
	"github.com/viljami/ruuvi-home-sub001/internal/metrics"
	"github.com/viljami/ruuvi-home-sub001/internal/models"
	"github.com/viljami/ruuvi-home-sub001/internal/validator"
)

// 官方DF5样例帧，序列号205，MAC CB:B8:33:4C:88:4F
const sampleFrameHex = "0201061BFF99040512FC5394C37C0004FFFC040CAC364200CDCBB8334C884F"

// 同一传感器、序列号206的变体
const sampleFrameNextSeqHex = "0201061BFF99040512FC5394C37C0004FFFC040CAC364200CECBB8334C884F"

type fakeIngester struct {
	readings []*models.SensorReading
	err      error
}

func (f *fakeIngester) Ingest(ctx context.Context, reading *models.SensorReading) error {
	if f.err != nil {
		return f.err
	}
	f.readings = append(f.readings, reading)
	return nil
}

func newTestConsumer(t *testing.T, writer Ingester) (*MQTTConsumer, *metrics.PipelineCounters) {
	t.Helper()

	cfg := &config.Config{}
	cfg.Ingest.Topic = "ruuvi/+/+"
	cfg.Ingest.WriteTimeout = 5 * time.Second
	cfg.Ingest.SequenceWindow = validator.DefaultSequenceWindow

	logger := zap.NewNop()
	counters := metrics.NewPipelineCounters()
	v := validator.NewValidator(cfg.Ingest.SequenceWindow, logger)

	c := NewMQTTConsumer(cfg, nil, v, writer, counters, logger)
	c.now = func() time.Time { return time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC) }
	return c, counters
}

func TestHandleMessage_SingleGatewayMessage(t *testing.T) {
	writer := &fakeIngester{}
	c, counters := newTestConsumer(t, writer)

	payload, err := json.Marshal(models.GatewayMessage{
		GatewayMAC: "aa:bb:cc:dd:ee:ff",
		RSSI:       -62,
		Timestamp:  1717243200,
		Data:       sampleFrameHex,
	})
	require.NoError(t, err)

	err = c.handleMessage("ruuvi/AA:BB:CC:DD:EE:FF/CB:B8:33:4C:88:4F", payload)
	require.NoError(t, err)

	require.Len(t, writer.readings, 1)
	reading := writer.readings[0]
	assert.Equal(t, "CB:B8:33:4C:88:4F", reading.SensorID)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", reading.GatewayID)
	assert.Equal(t, -62, reading.RSSI)
	assert.Equal(t, time.Unix(1717243200, 0).UTC(), reading.ObservedAt)

	snapshot := counters.Snapshot()
	assert.Equal(t, int64(1), snapshot["frames_received"])
	assert.Equal(t, int64(1), snapshot["readings_committed"])
}

func TestHandleMessage_MissingTimestampUsesLocalClock(t *testing.T) {
	writer := &fakeIngester{}
	c, _ := newTestConsumer(t, writer)

	payload, err := json.Marshal(models.GatewayMessage{
		GatewayMAC: "AA:BB:CC:DD:EE:FF",
		Data:       sampleFrameHex,
	})
	require.NoError(t, err)

	require.NoError(t, c.handleMessage("ruuvi/AA:BB:CC:DD:EE:FF/CB:B8:33:4C:88:4F", payload))

	require.Len(t, writer.readings, 1)
	assert.Equal(t, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC), writer.readings[0].ObservedAt)
}

func TestHandleMessage_Batch(t *testing.T) {
	writer := &fakeIngester{}
	c, counters := newTestConsumer(t, writer)

	payload, err := json.Marshal(models.GatewayBatch{
		GatewayID:  "AA:BB:CC:DD:EE:FF",
		ReceivedAt: 1717243200,
		Tags: []models.GatewayTag{
			{SensorID: "CB:B8:33:4C:88:4F", RSSI: -60, PayloadHex: sampleFrameHex},
			{SensorID: "CB:B8:33:4C:88:4F", RSSI: -61, PayloadHex: sampleFrameNextSeqHex},
		},
	})
	require.NoError(t, err)

	require.NoError(t, c.handleMessage("gateway/AA:BB:CC:DD:EE:FF", payload))

	require.Len(t, writer.readings, 2)
	assert.Equal(t, -60, writer.readings[0].RSSI)
	assert.Equal(t, -61, writer.readings[1].RSSI)

	snapshot := counters.Snapshot()
	assert.Equal(t, int64(2), snapshot["frames_received"])
	assert.Equal(t, int64(2), snapshot["readings_committed"])
}

func TestHandleMessage_BadFrameDoesNotAbortBatch(t *testing.T) {
	writer := &fakeIngester{}
	c, counters := newTestConsumer(t, writer)

	payload, err := json.Marshal(models.GatewayBatch{
		GatewayID:  "AA:BB:CC:DD:EE:FF",
		ReceivedAt: 1717243200,
		Tags: []models.GatewayTag{
			{SensorID: "11:22:33:44:55:66", RSSI: -50, PayloadHex: "not-hex-at-all"},
			{SensorID: "CB:B8:33:4C:88:4F", RSSI: -60, PayloadHex: sampleFrameHex},
		},
	})
	require.NoError(t, err)

	require.NoError(t, c.handleMessage("gateway/AA:BB:CC:DD:EE:FF", payload))

	require.Len(t, writer.readings, 1)
	assert.Equal(t, "CB:B8:33:4C:88:4F", writer.readings[0].SensorID)

	snapshot := counters.Snapshot()
	assert.Equal(t, int64(2), snapshot["frames_received"])
	assert.Equal(t, int64(1), snapshot["decode_failures"])
	assert.Equal(t, int64(1), snapshot["readings_committed"])
}

func TestHandleMessage_DuplicateRejected(t *testing.T) {
	writer := &fakeIngester{}
	c, counters := newTestConsumer(t, writer)

	payload, err := json.Marshal(models.GatewayMessage{
		GatewayMAC: "AA:BB:CC:DD:EE:FF",
		Timestamp:  1717243200,
		Data:       sampleFrameHex,
	})
	require.NoError(t, err)

	require.NoError(t, c.handleMessage("ruuvi/AA:BB:CC:DD:EE:FF/CB:B8:33:4C:88:4F", payload))
	require.NoError(t, c.handleMessage("ruuvi/AA:BB:CC:DD:EE:FF/CB:B8:33:4C:88:4F", payload))

	require.Len(t, writer.readings, 1)

	snapshot := counters.Snapshot()
	assert.Equal(t, int64(2), snapshot["frames_received"])
	assert.Equal(t, int64(1), snapshot["duplicate_rejects"])
	assert.Equal(t, int64(1), snapshot["readings_committed"])
}

func TestHandleMessage_IngestFailureCounted(t *testing.T) {
	writer := &fakeIngester{err: errors.New("storage down")}
	c, counters := newTestConsumer(t, writer)

	payload, err := json.Marshal(models.GatewayMessage{
		GatewayMAC: "AA:BB:CC:DD:EE:FF",
		Timestamp:  1717243200,
		Data:       sampleFrameHex,
	})
	require.NoError(t, err)

	require.NoError(t, c.handleMessage("ruuvi/AA:BB:CC:DD:EE:FF/CB:B8:33:4C:88:4F", payload))

	snapshot := counters.Snapshot()
	assert.Equal(t, int64(1), snapshot["ingest_failures"])
	assert.Equal(t, int64(0), snapshot["readings_committed"])
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	c, _ := newTestConsumer(t, &fakeIngester{})

	err := c.handleMessage("ruuvi/AA/BB", []byte("{not json"))
	assert.Error(t, err)
}

func TestHandleMessage_MACMismatchStillIngested(t *testing.T) {
	writer := &fakeIngester{}
	c, _ := newTestConsumer(t, writer)

	payload, err := json.Marshal(models.GatewayMessage{
		GatewayMAC: "AA:BB:CC:DD:EE:FF",
		Timestamp:  1717243200,
		Data:       sampleFrameHex,
	})
	require.NoError(t, err)

	// 主题里的标签地址与载荷MAC不一致
	require.NoError(t, c.handleMessage("ruuvi/AA:BB:CC:DD:EE:FF/11:22:33:44:55:66", payload))

	require.Len(t, writer.readings, 1)
	assert.Equal(t, "CB:B8:33:4C:88:4F", writer.readings[0].SensorID)
}

func TestNormalizeMAC(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"aabbccddeeff", "AA:BB:CC:DD:EE:FF"},
		{"aa:bb:cc:dd:ee:ff", "AA:BB:CC:DD:EE:FF"},
		{"CB:B8:33:4C:88:4F", "CB:B8:33:4C:88:4F"},
		{" cbb8334c884f ", "CB:B8:33:4C:88:4F"},
		{"", ""},
		{"short", "SHORT"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, NormalizeMAC(tt.input), "input %q", tt.input)
	}
}
