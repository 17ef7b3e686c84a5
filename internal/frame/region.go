package frame

import (
	"encoding/json"
	"fmt"
	"image"
)

// DefaultRegionRatio は注目領域が占める幅・高さの既定割合
const DefaultRegionRatio = 0.5

// Region は注目領域の矩形。End は含まない
type Region struct {
	StartX int
	StartY int
	EndX   int
	EndY   int
}

// CenterRegion はフレーム中央で幅・高さの ratio 分を占める領域を返す
//
// 領域サイズと中央寄せのオフセットはどちらも切り捨てで計算する。
// 200x200 で ratio 0.5 なら (50,50)-(150,150) になる。
func CenterRegion(width, height int, ratio float64) Region {
	regionWidth := int(float64(width) * ratio)
	regionHeight := int(float64(height) * ratio)

	startX := (width - regionWidth) / 2
	startY := (height - regionHeight) / 2

	return Region{
		StartX: startX,
		StartY: startY,
		EndX:   startX + regionWidth,
		EndY:   startY + regionHeight,
	}
}

// Dx は領域の幅
func (r Region) Dx() int {
	return r.EndX - r.StartX
}

// Dy は領域の高さ
func (r Region) Dy() int {
	return r.EndY - r.StartY
}

// Empty は面積が0以下かどうかを返す
func (r Region) Empty() bool {
	return r.Dx() <= 0 || r.Dy() <= 0
}

// Within は領域が width x height のフレームに収まるかどうかを返す
func (r Region) Within(width, height int) bool {
	return r.StartX >= 0 && r.StartY >= 0 &&
		r.StartX <= r.EndX && r.StartY <= r.EndY &&
		r.EndX <= width && r.EndY <= height
}

// Rect はimage.Rectangleに変換する
func (r Region) Rect() image.Rectangle {
	return image.Rect(r.StartX, r.StartY, r.EndX, r.EndY)
}

// Coords は (start_x, start_y, end_x, end_y) を返す
func (r Region) Coords() [4]int {
	return [4]int{r.StartX, r.StartY, r.EndX, r.EndY}
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.StartX, r.StartY, r.EndX, r.EndY)
}

// MarshalJSON は [start_x, start_y, end_x, end_y] 形式で出力する
func (r Region) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Coords())
}

// UnmarshalJSON は [start_x, start_y, end_x, end_y] 形式を読み込む
func (r *Region) UnmarshalJSON(data []byte) error {
	var c [4]int
	if err := json.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("領域座標の解析に失敗: %w", err)
	}
	*r = Region{StartX: c[0], StartY: c[1], EndX: c[2], EndY: c[3]}
	return nil
}
