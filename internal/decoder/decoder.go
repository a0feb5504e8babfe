package decoder

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/viljami/ruuvi-home-sub001/internal/models"
)

// DF5 格式常量
const (
	// FormatDF5 数据格式版本字节
	FormatDF5 = 0x05

	// PayloadLength DF5 载荷固定长度（字节）
	PayloadLength = 24

	temperatureUnknown = -32768 // int16 哨兵
	humidityUnknown    = 0xFFFF
	pressureUnknown    = 0xFFFF
	accelUnknown       = -32768
	batteryUnknown     = 0x7FF // 11位全1
	txPowerUnknown     = 0x1F  // 5位全1
	movementUnknown    = 0xFF
	sequenceUnknown    = 0xFFFF
)

// 解码错误
var (
	// ErrTooShort 载荷长度不足24字节
	ErrTooShort = errors.New("payload too short")
	// ErrUnsupportedFormat 格式版本字节不是5
	ErrUnsupportedFormat = errors.New("unsupported data format")
)

// Decode 解码 DF5 二进制载荷为传感器读数
//
// 只填充载荷内解码出的字段（测量值与 SensorID）；
// GatewayID、ObservedAt、RSSI 由调用方根据网关元数据补充。
// 哨兵位模式解码为 nil（"未上报"），不会解码为数值默认值。
// 对任何字节序列都不会越界访问或 panic。
func Decode(payload []byte) (*models.SensorReading, error) {
	if len(payload) < PayloadLength {
		return nil, fmt.Errorf("%w: got %d bytes, need %d", ErrTooShort, len(payload), PayloadLength)
	}
	if payload[0] != FormatDF5 {
		return nil, fmt.Errorf("%w: format byte 0x%02X", ErrUnsupportedFormat, payload[0])
	}

	reading := &models.SensorReading{
		SensorID: formatMAC(payload[18:24]),
	}

	// 温度: 有符号大端，单位 0.005 °C
	if raw := int16(binary.BigEndian.Uint16(payload[1:3])); raw != temperatureUnknown {
		v := float64(raw) * 0.005
		reading.Temperature = &v
	}

	// 湿度: 无符号大端，单位 0.0025 %
	if raw := binary.BigEndian.Uint16(payload[3:5]); raw != humidityUnknown {
		v := float64(raw) * 0.0025
		reading.Humidity = &v
	}

	// 气压: 无符号大端，偏移 +50000 Pa，换算为 hPa
	if raw := binary.BigEndian.Uint16(payload[5:7]); raw != pressureUnknown {
		v := float64(uint32(raw)+50000) / 100.0
		reading.Pressure = &v
	}

	// 加速度: 三轴有符号大端，单位 1 mg；
	// 任一轴为哨兵值时三轴与幅值均视为未上报
	accX := int16(binary.BigEndian.Uint16(payload[7:9]))
	accY := int16(binary.BigEndian.Uint16(payload[9:11]))
	accZ := int16(binary.BigEndian.Uint16(payload[11:13]))
	if accX != accelUnknown && accY != accelUnknown && accZ != accelUnknown {
		x, y, z := int(accX), int(accY), int(accZ)
		reading.AccelerationX = &x
		reading.AccelerationY = &y
		reading.AccelerationZ = &z
		magnitude := math.Sqrt(float64(x*x + y*y + z*z))
		reading.Acceleration = &magnitude
	}

	// 电源信息: 高11位电池电压（+1600 mV），低5位发射功率（×2−40 dBm）
	power := binary.BigEndian.Uint16(payload[13:15])
	if battRaw := power >> 5; battRaw != 0 && battRaw != batteryUnknown {
		v := int(battRaw) + 1600
		reading.Battery = &v
	}
	if txRaw := power & 0x1F; txRaw != txPowerUnknown {
		v := int(txRaw)*2 - 40
		reading.TxPower = &v
	}

	// 移动计数器: 0-254，255为未知
	if payload[15] != movementUnknown {
		v := int(payload[15])
		reading.MovementCounter = &v
	}

	// 测量序列号: 0-65534，65535为未知
	if raw := binary.BigEndian.Uint16(payload[16:18]); raw != sequenceUnknown {
		v := int(raw)
		reading.SequenceNumber = &v
	}

	return reading, nil
}

// formatMAC 格式化为大写冒号分隔的MAC字符串
func formatMAC(mac []byte) string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X",
		mac[0], mac[1], mac[2], mac[3], mac[4], mac[5])
}
