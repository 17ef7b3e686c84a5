package frame

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// 注目領域の枠線の既定値
var (
	DefaultOutlineColor     = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	DefaultOutlineThickness = 2
)

// DrawRectangle はフレームに矩形の枠線を直接描画する
//
// (StartX, StartY) と (EndX, EndY) を両端に含む枠を描く。
// 線幅は枠の座標を中心に広がり、フレーム外にはみ出した部分は描かない。
func DrawRectangle(f *Frame, r Region, c color.Color, thickness int) {
	if f.Empty() || thickness <= 0 {
		return
	}

	half := thickness / 2
	x0, y0 := r.StartX-half, r.StartY-half
	x1, y1 := r.EndX-half+thickness, r.EndY-half+thickness

	// 上、下、左、右の順
	strips := []image.Rectangle{
		image.Rect(x0, y0, x1, y0+thickness),
		image.Rect(x0, r.EndY-half, x1, y1),
		image.Rect(x0, y0, x0+thickness, y1),
		image.Rect(r.EndX-half, y0, r.EndX-half+thickness, y1),
	}

	src := image.NewUniform(c)
	bounds := f.Bounds()
	for _, s := range strips {
		s = s.Intersect(bounds)
		if s.Empty() {
			continue
		}
		draw.Draw(f, s, src, image.Point{}, draw.Src)
	}
}
