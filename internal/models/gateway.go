package models

// GatewayMessage 网关单标签消息
// 主题格式: ruuvi/{gateway_mac}/{tag_mac}
type GatewayMessage struct {
	GatewayMAC string `json:"gw_mac"` // 网关MAC
	RSSI       int    `json:"rssi"`   // 网关侧信号强度
	GatewayTS  int64  `json:"gwts"`   // 网关时间戳
	Timestamp  int64  `json:"ts"`     // 接收时间戳（unix秒）
	Data       string `json:"data"`   // 广播数据（hex编码）
	Coords     string `json:"coords"` // 坐标
}

// GatewayBatch 网关批量消息
type GatewayBatch struct {
	GatewayID  string       `json:"gateway_id"`
	ReceivedAt int64        `json:"received_at"` // unix秒
	Tags       []GatewayTag `json:"tags"`
}

// GatewayTag 批量消息中的单个标签记录
type GatewayTag struct {
	SensorID   string `json:"sensor_id"`
	RSSI       int    `json:"rssi"`
	PayloadHex string `json:"payload_hex"` // 厂商自定义广播数据（hex编码）
}
