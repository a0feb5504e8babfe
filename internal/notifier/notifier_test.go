package notifier

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func TestNotifyCommitted(t *testing.T) {
	mr, client := setupRedis(t)
	defer client.Close()

	n := NewStreamNotifier(client, "ruuvi:readings:committed", 0, zap.NewNop())

	observedAt := time.Date(2026, 8, 1, 12, 30, 0, 0, time.UTC)
	err := n.NotifyCommitted(context.Background(), "AA:BB:CC:DD:EE:FF", observedAt)
	require.NoError(t, err)

	entries, err := client.XRange(context.Background(), "ruuvi:readings:committed", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", entries[0].Values["sensor_id"])
	assert.Equal(t, "2026-08-01T12:30:00Z", entries[0].Values["observed_at"])

	_ = mr
}

func TestNotifyCommitted_MultipleReadings(t *testing.T) {
	_, client := setupRedis(t)
	defer client.Close()

	n := NewStreamNotifier(client, "ruuvi:readings:committed", 0, zap.NewNop())

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := n.NotifyCommitted(context.Background(), "AA:BB:CC:DD:EE:FF", base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
	}

	length, err := client.XLen(context.Background(), "ruuvi:readings:committed").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(5), length)
}

func TestNotifyCommitted_RedisUnavailable(t *testing.T) {
	mr, client := setupRedis(t)
	defer client.Close()

	n := NewStreamNotifier(client, "ruuvi:readings:committed", 0, zap.NewNop())

	mr.Close()

	err := n.NotifyCommitted(context.Background(), "AA:BB:CC:DD:EE:FF", time.Now())
	assert.Error(t, err)
}
