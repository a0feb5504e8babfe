package metrics

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// PipelineCounters 摄取管道计数器
//
// 解码/验证失败是局部的、不传播的，只通过计数器和日志可观测。
type PipelineCounters struct {
	framesReceived    atomic.Int64
	decodeFailures    atomic.Int64
	rangeRejects      atomic.Int64
	duplicateRejects  atomic.Int64
	ingestFailures    atomic.Int64
	readingsCommitted atomic.Int64
}

// NewPipelineCounters 创建计数器
func NewPipelineCounters() *PipelineCounters {
	return &PipelineCounters{}
}

func (c *PipelineCounters) IncFramesReceived()   { c.framesReceived.Add(1) }
func (c *PipelineCounters) IncDecodeFailures()   { c.decodeFailures.Add(1) }
func (c *PipelineCounters) IncRangeRejects()     { c.rangeRejects.Add(1) }
func (c *PipelineCounters) IncDuplicateRejects() { c.duplicateRejects.Add(1) }
func (c *PipelineCounters) IncIngestFailures()   { c.ingestFailures.Add(1) }
func (c *PipelineCounters) IncCommitted()        { c.readingsCommitted.Add(1) }

// Snapshot 当前计数快照
func (c *PipelineCounters) Snapshot() map[string]int64 {
	return map[string]int64{
		"frames_received":    c.framesReceived.Load(),
		"decode_failures":    c.decodeFailures.Load(),
		"range_rejects":      c.rangeRejects.Load(),
		"duplicate_rejects":  c.duplicateRejects.Load(),
		"ingest_failures":    c.ingestFailures.Load(),
		"readings_committed": c.readingsCommitted.Load(),
	}
}

// LogSummary 输出计数器摘要日志
func (c *PipelineCounters) LogSummary(logger *zap.Logger) {
	logger.Info("Pipeline counters",
		zap.Int64("frames_received", c.framesReceived.Load()),
		zap.Int64("decode_failures", c.decodeFailures.Load()),
		zap.Int64("range_rejects", c.rangeRejects.Load()),
		zap.Int64("duplicate_rejects", c.duplicateRejects.Load()),
		zap.Int64("ingest_failures", c.ingestFailures.Load()),
		zap.Int64("readings_committed", c.readingsCommitted.Load()),
	)
}
