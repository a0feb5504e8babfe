package maintenance

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/internal/repository"
)

// Manager 存储维护调度器
//
// 周期执行压缩、过期清理和连续聚合刷新。任何一步失败只记录
// 日志并继续后续步骤，下个周期自然重试，不影响摄取路径。
type Manager struct {
	db            *sql.DB
	interval      time.Duration
	compressAfter time.Duration
	retainRaw     time.Duration
	rollupLag     time.Duration
	logger        *zap.Logger

	now func() time.Time // 测试注入
}

// NewManager 创建维护调度器
func NewManager(db *sql.DB, interval, compressAfter, retainRaw, rollupLag time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		db:            db,
		interval:      interval,
		compressAfter: compressAfter,
		retainRaw:     retainRaw,
		rollupLag:     rollupLag,
		logger:        logger,
		now:           time.Now,
	}
}

// Run 按周期运行维护，直到上下文取消
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("Maintenance manager started",
		zap.Duration("interval", m.interval),
		zap.Duration("compress_after", m.compressAfter),
		zap.Duration("retain_raw", m.retainRaw),
	)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	// 启动时先跑一轮
	m.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Maintenance manager stopped")
			return nil
		case <-ticker.C:
			m.RunOnce(ctx)
		}
	}
}

// RunOnce 执行一轮维护
func (m *Manager) RunOnce(ctx context.Context) {
	started := m.now()

	m.compressChunks(ctx)
	m.dropExpiredChunks(ctx)
	m.refreshRollups(ctx)

	m.logger.Info("Maintenance cycle finished",
		zap.Duration("elapsed", m.now().Sub(started)),
	)
}

// compressChunks 压缩早于保留阈值的未压缩分区
//
// 逐分区压缩，单个分区失败不阻塞其余分区。
func (m *Manager) compressChunks(ctx context.Context) {
	cutoff := m.now().Add(-m.compressAfter)

	rows, err := m.db.QueryContext(ctx, `
		SELECT format('%I.%I', chunk_schema, chunk_name)
		FROM timescaledb_information.chunks
		WHERE hypertable_name = 'sensor_readings'
		  AND NOT is_compressed
		  AND range_end < $1`, cutoff)
	if err != nil {
		m.logger.Error("Failed to list compressible chunks", zap.Error(err))
		return
	}
	defer rows.Close()

	var chunks []string
	for rows.Next() {
		var chunk string
		if err := rows.Scan(&chunk); err != nil {
			m.logger.Error("Failed to scan chunk name", zap.Error(err))
			return
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		m.logger.Error("Failed to iterate compressible chunks", zap.Error(err))
		return
	}

	compressed := 0
	for _, chunk := range chunks {
		if _, err := m.db.ExecContext(ctx, `SELECT compress_chunk($1::regclass)`, chunk); err != nil {
			m.logger.Error("Failed to compress chunk",
				zap.String("chunk", chunk),
				zap.Error(err),
			)
			continue
		}
		compressed++
	}

	if len(chunks) > 0 {
		m.logger.Info("Chunk compression finished",
			zap.Int("candidates", len(chunks)),
			zap.Int("compressed", compressed),
		)
	}
}

// dropExpiredChunks 删除超过原始数据保留期限的整分区
func (m *Manager) dropExpiredChunks(ctx context.Context) {
	cutoff := m.now().Add(-m.retainRaw)

	if _, err := m.db.ExecContext(ctx,
		`SELECT drop_chunks('sensor_readings', $1::timestamptz)`, cutoff); err != nil {
		m.logger.Error("Failed to drop expired chunks", zap.Error(err))
		return
	}

	m.logger.Debug("Expired chunks dropped", zap.Time("cutoff", cutoff))
}

// refreshRollups 刷新连续聚合视图
//
// 只刷新到滞后窗口之前，避免和热数据写入竞争。
func (m *Manager) refreshRollups(ctx context.Context) {
	end := m.now().Add(-m.rollupLag)

	for _, view := range []repository.RollupView{repository.RollupHourly, repository.RollupDaily} {
		stmt := fmt.Sprintf(`CALL refresh_continuous_aggregate('%s', NULL, $1::timestamptz)`, view)
		if _, err := m.db.ExecContext(ctx, stmt, end); err != nil {
			m.logger.Error("Failed to refresh continuous aggregate",
				zap.String("view", string(view)),
				zap.Error(err),
			)
			continue
		}
	}
}
