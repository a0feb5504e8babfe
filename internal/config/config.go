package config

import (
	"os"
	"strconv"
	"time"

	"github.com/viljami/ruuvi-home-sub001/common/config"
)

// Config 服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 摄取管道配置
	Ingest struct {
		Topic          string        // 网关数据主题，如 "ruuvi/+/+"
		NotifyStream   string        // 变更通知流名称
		NotifyMaxLen   int64         // 通知流近似最大长度，0为不限制
		WriteTimeout   time.Duration // 单条读数提交超时
		MaxAttempts    int           // 写入重试次数上限
		BackoffBase    time.Duration // 指数退避基准
		SequenceWindow int           // 序列号回绕窗口
		CountersEvery  time.Duration // 计数器摘要日志周期
	}

	// 查询引擎配置
	Query struct {
		RollupThreshold time.Duration // 大于等于该桶宽时考虑预聚合
		HotWindow       time.Duration // 热窗口内强制走原始行
		MaxLimit        int           // 原始查询行数上限
	}

	// 保留/压缩管理配置
	Maintenance struct {
		Interval      time.Duration // 调度周期
		CompressAfter time.Duration // 压缩早于该时长的分区
		RetainRaw     time.Duration // 原始数据保留期限
		RollupLag     time.Duration // 连续聚合刷新滞后窗口
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "ruuvi_home")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = 0

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "ruuvi-ingest")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1

	// 摄取管道配置
	cfg.Ingest.Topic = getEnv("RUUVI_TOPIC", "ruuvi/+/+")
	cfg.Ingest.NotifyStream = getEnv("NOTIFY_STREAM", "ruuvi:readings:committed")
	cfg.Ingest.NotifyMaxLen = int64(getEnvInt("NOTIFY_STREAM_MAXLEN", 10000))
	cfg.Ingest.WriteTimeout = getEnvDuration("INGEST_WRITE_TIMEOUT", 5*time.Second)
	cfg.Ingest.MaxAttempts = getEnvInt("INGEST_MAX_ATTEMPTS", 3)
	cfg.Ingest.BackoffBase = getEnvDuration("INGEST_BACKOFF_BASE", 250*time.Millisecond)
	cfg.Ingest.SequenceWindow = getEnvInt("SEQUENCE_WINDOW", 32768)
	cfg.Ingest.CountersEvery = getEnvDuration("COUNTERS_LOG_INTERVAL", 5*time.Minute)

	// 查询引擎配置
	cfg.Query.RollupThreshold = getEnvDuration("QUERY_ROLLUP_THRESHOLD", time.Hour)
	cfg.Query.HotWindow = getEnvDuration("QUERY_HOT_WINDOW", 3*time.Hour)
	cfg.Query.MaxLimit = getEnvInt("QUERY_MAX_LIMIT", 10000)

	// 保留/压缩管理配置
	cfg.Maintenance.Interval = getEnvDuration("MAINTENANCE_INTERVAL", time.Hour)
	cfg.Maintenance.CompressAfter = getEnvDuration("COMPRESS_AFTER", 7*24*time.Hour)
	cfg.Maintenance.RetainRaw = getEnvDuration("RETAIN_RAW", 5*365*24*time.Hour)
	cfg.Maintenance.RollupLag = getEnvDuration("ROLLUP_LAG", 3*time.Hour)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
