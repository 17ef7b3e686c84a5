// Package palette は色の抽出と命名を担う
//
// # 責務
// - 画素領域からk-meansクラスタリングで支配色を求める
// - RGB値を13種類の代表色名に分類する
// - RGBと #rrggbb 形式の相互変換
//
// # 仕様
//   - 色名の判定は範囲テーブルを定義順に走査し、最初に含まれた範囲を採用する
//   - どの範囲にも入らない場合は代表色とのユークリッド距離が最小のものを採用する
//   - クラスタリングは固定シードで再現性を保ち、複数回の初期化から最良の結果を選ぶ
package palette

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// RGB は0-255の整数3チャンネルの色
type RGB struct {
	R int
	G int
	B int
}

// Hex は小文字の #rrggbb 形式を返す
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Vector は距離計算用の浮動小数点ベクトルを返す
func (c RGB) Vector() []float64 {
	return []float64{float64(c.R), float64(c.G), float64(c.B)}
}

// Array は [r, g, b] を返す
func (c RGB) Array() [3]int {
	return [3]int{c.R, c.G, c.B}
}

// ParseHex は #rrggbb 形式の文字列をRGBに変換する
func ParseHex(s string) (RGB, error) {
	if len(s) != 7 || s[0] != '#' {
		return RGB{}, fmt.Errorf("無効なカラーコード: %q", s)
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("無効なカラーコード: %q: %w", s, err)
	}
	return RGB{R: int(uint8(v >> 16)), G: int(uint8(v >> 8)), B: int(uint8(v))}, nil
}

// MarshalJSON は [r, g, b] 形式で出力する
func (c RGB) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Array())
}

// UnmarshalJSON は [r, g, b] 形式を読み込む
func (c *RGB) UnmarshalJSON(data []byte) error {
	var a [3]int
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("RGB値の解析に失敗: %w", err)
	}
	*c = RGB{R: a[0], G: a[1], B: a[2]}
	return nil
}

func (c RGB) String() string {
	return fmt.Sprintf("(%d, %d, %d)", c.R, c.G, c.B)
}

func clampChannel(v int) int {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return v
}
