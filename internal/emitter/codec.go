// Package emitter は検出結果をMQTTブローカーへ送信する
package emitter

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"irodori/internal/detector"
)

// Format はペイロードの形式
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ParseFormat は設定値をFormatに変換する。空文字はJSON
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatJSON:
		return FormatJSON, nil
	case FormatMsgpack:
		return FormatMsgpack, nil
	default:
		return "", fmt.Errorf("サポートされていないペイロード形式: %s", s)
	}
}

// Message は送信する検出結果
type Message struct {
	SessionID string `json:"session_id" msgpack:"session_id"`
	Timestamp int64  `json:"timestamp" msgpack:"timestamp"` // Unixミリ秒
	RGB       [3]int `json:"rgb" msgpack:"rgb"`
	Hex       string `json:"hex" msgpack:"hex"`
	Name      string `json:"name" msgpack:"name"`
	Region    [4]int `json:"region_coords" msgpack:"region_coords"`
}

// NewMessage は検出結果からMessageを作る
func NewMessage(sessionID string, result detector.Result, at time.Time) Message {
	return Message{
		SessionID: sessionID,
		Timestamp: at.UnixMilli(),
		RGB:       result.RGB.Array(),
		Hex:       result.Hex,
		Name:      result.Name,
		Region:    result.Region.Coords(),
	}
}

// Marshal はMessageを指定形式でエンコードする
func (f Format) Marshal(m Message) ([]byte, error) {
	switch f {
	case FormatJSON:
		return json.Marshal(m)
	case FormatMsgpack:
		return msgpack.Marshal(m)
	default:
		return nil, fmt.Errorf("サポートされていないペイロード形式: %s", f)
	}
}

// Unmarshal は指定形式のペイロードをMessageに復元する
func (f Format) Unmarshal(data []byte, m *Message) error {
	switch f {
	case FormatJSON:
		return json.Unmarshal(data, m)
	case FormatMsgpack:
		return msgpack.Unmarshal(data, m)
	default:
		return fmt.Errorf("サポートされていないペイロード形式: %s", f)
	}
}
