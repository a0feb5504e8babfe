package decoder

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// manufacturerMarker 广播数据中厂商自定义块标记:
// AD结构类型 0xFF + 公司ID 0x0499（小端）
const manufacturerMarker = "FF9904"

// hexPayloadLength 载荷的hex字符长度
const hexPayloadLength = PayloadLength * 2

// ExtractPayload 从hex编码的广播数据中提取厂商自定义载荷
//
// 网关转发的可能是完整广播记录（含AD结构头）或已提取的载荷。
// 含 FF9904 标记时取标记之后的部分，否则视为已提取的载荷。
// 超出载荷长度的尾部字节（如部分网关附加的RSSI字节）被忽略。
func ExtractPayload(hexData string) ([]byte, error) {
	data := strings.ToUpper(strings.TrimSpace(hexData))

	if idx := strings.Index(data, manufacturerMarker); idx >= 0 {
		data = data[idx+len(manufacturerMarker):]
	}

	if len(data) > hexPayloadLength {
		data = data[:hexPayloadLength]
	}

	payload, err := hex.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid hex payload: %w", err)
	}

	return payload, nil
}
