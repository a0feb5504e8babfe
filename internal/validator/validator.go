package validator

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/viljami/ruuvi-home-sub001/internal/models"
)

// 物理量有效范围
const (
	MinTemperature = -163.835
	MaxTemperature = 163.835
	MinHumidity    = 0.0
	MaxHumidity    = 100.0
	MinPressure    = 500.0
	MaxPressure    = 1155.35
	MinBattery     = 1600
	MaxBattery     = 3646
	MinTxPower     = -40
	MaxTxPower     = 20
)

// sequenceModulus 序列号循环模数（0-65534循环，65535为未知）
const sequenceModulus = 65535

// DefaultSequenceWindow 默认回绕窗口：前向差小于计数器范围的一半视为前进
const DefaultSequenceWindow = 32768

// ErrDuplicateOrReplay 序列号重复或回放
var ErrDuplicateOrReplay = errors.New("duplicate or replayed reading")

// RangeViolationError 数值超出物理有效范围
type RangeViolationError struct {
	Field string
	Value float64
}

func (e *RangeViolationError) Error() string {
	return fmt.Sprintf("range violation: field %s value %g", e.Field, e.Value)
}

// Validator 读数验证器
//
// 维护每个传感器最近接受的序列号缓存（核心中唯一的共享可变状态），
// 锁保护，启动时通过 Warm 从存储重建。
type Validator struct {
	window int
	logger *zap.Logger

	mu       sync.Mutex
	lastSeen map[string]int // sensor_id -> 最近接受的序列号
}

// NewValidator 创建验证器
// window <= 0 时使用 DefaultSequenceWindow
func NewValidator(window int, logger *zap.Logger) *Validator {
	if window <= 0 {
		window = DefaultSequenceWindow
	}
	return &Validator{
		window:   window,
		logger:   logger,
		lastSeen: make(map[string]int),
	}
}

// Warm 从存储重建的序列号状态预热缓存
func (v *Validator) Warm(sequences map[string]int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for sensorID, seq := range sequences {
		v.lastSeen[sensorID] = seq
	}
	v.logger.Info("Sequence cache warmed", zap.Int("sensors", len(sequences)))
}

// Validate 验证读数
//
// 规则按顺序应用：
//  1. 物理范围检查 —— 超出范围的非哨兵值返回 RangeViolationError
//  2. 序列号去重 —— 回绕感知比较，不严格前进返回 ErrDuplicateOrReplay
//  3. 接受并记住新序列号
func (v *Validator) Validate(reading *models.SensorReading) error {
	if err := CheckRanges(reading); err != nil {
		return err
	}

	// 序列号未知时不参与去重，直接接受
	if reading.SequenceNumber == nil {
		return nil
	}
	next := *reading.SequenceNumber

	v.mu.Lock()
	defer v.mu.Unlock()

	if last, ok := v.lastSeen[reading.SensorID]; ok {
		if !isForward(last, next, v.window) {
			return fmt.Errorf("%w: sensor %s last %d next %d",
				ErrDuplicateOrReplay, reading.SensorID, last, next)
		}
	}
	v.lastSeen[reading.SensorID] = next
	return nil
}

// CheckRanges 物理范围检查（纯函数，只检查非nil字段）
func CheckRanges(reading *models.SensorReading) error {
	if t := reading.Temperature; t != nil && (*t < MinTemperature || *t > MaxTemperature) {
		return &RangeViolationError{Field: "temperature", Value: *t}
	}
	if h := reading.Humidity; h != nil && (*h < MinHumidity || *h > MaxHumidity) {
		return &RangeViolationError{Field: "humidity", Value: *h}
	}
	if p := reading.Pressure; p != nil && (*p < MinPressure || *p > MaxPressure) {
		return &RangeViolationError{Field: "pressure", Value: *p}
	}
	if b := reading.Battery; b != nil && (*b < MinBattery || *b > MaxBattery) {
		return &RangeViolationError{Field: "battery", Value: float64(*b)}
	}
	if tx := reading.TxPower; tx != nil && (*tx < MinTxPower || *tx > MaxTxPower) {
		return &RangeViolationError{Field: "tx_power", Value: float64(*tx)}
	}
	return nil
}

// isForward 回绕感知的序列号前进判断
//
// 前向差按模 65535 计算；差为0（重复）或不小于窗口（回放/乱序）
// 均不视为前进。合法的计数器回绕（如 65530 -> 3）前向差很小，被接受。
func isForward(last, next, window int) bool {
	delta := (next - last + sequenceModulus) % sequenceModulus
	return delta > 0 && delta < window
}
