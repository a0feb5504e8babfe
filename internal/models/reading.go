package models

import (
	"time"
)

// SensorReading 单条传感器读数（由解码器创建后不可变）
//
// 指针字段为 nil 表示固件上报了保留哨兵值（"未上报"），
// 与数值 0 严格区分。
type SensorReading struct {
	SensorID   string    `json:"sensor_id"`  // 传感器MAC，大写冒号分隔格式
	GatewayID  string    `json:"gateway_id"` // 网关MAC
	ObservedAt time.Time `json:"observed_at"`

	Temperature *float64 `json:"temperature"` // 摄氏度
	Humidity    *float64 `json:"humidity"`    // 相对湿度百分比
	Pressure    *float64 `json:"pressure"`    // hPa

	AccelerationX *int     `json:"acceleration_x"` // mg
	AccelerationY *int     `json:"acceleration_y"` // mg
	AccelerationZ *int     `json:"acceleration_z"` // mg
	Acceleration  *float64 `json:"acceleration"`   // 合成加速度幅值 mg

	Battery         *int `json:"battery"`          // 电池电压 mV
	TxPower         *int `json:"tx_power"`         // 发射功率 dBm
	MovementCounter *int `json:"movement_counter"` // 0-254，255为未知
	SequenceNumber  *int `json:"sequence_number"`  // 0-65534，65535为未知

	RSSI int `json:"rssi"` // 网关侧信号强度 dBm
}
