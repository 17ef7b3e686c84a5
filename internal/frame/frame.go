// Package frame はカメラから取得した1枚分の画素データを扱う
//
// フレームは3チャンネルの画素を行優先で詰めたバッファで、
// チャンネル順（RGB / BGR）を明示的に保持する。
// キャプチャデバイスはBGRで、解析と表示はRGBで扱うことが多いため、
// 順序を取り違えないように型で区別する。
package frame

import (
	"fmt"
	"image"
	"image/color"
)

// ChannelOrder は1画素内のチャンネル並び順
type ChannelOrder int

const (
	OrderRGB ChannelOrder = iota // R, G, B の順
	OrderBGR                     // B, G, R の順（OpenCV系デバイス）
)

// String はチャンネル順の表示名を返す
func (o ChannelOrder) String() string {
	switch o {
	case OrderRGB:
		return "RGB"
	case OrderBGR:
		return "BGR"
	default:
		return fmt.Sprintf("ChannelOrder(%d)", int(o))
	}
}

// Frame は3チャンネル画素の2次元グリッド
type Frame struct {
	Width  int
	Height int
	Order  ChannelOrder
	Pix    []uint8 // 1画素3バイト、行優先
}

// New は黒で初期化されたフレームを作成する
func New(width, height int, order ChannelOrder) *Frame {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Frame{
		Width:  width,
		Height: height,
		Order:  order,
		Pix:    make([]uint8, width*height*3),
	}
}

// FromImage は任意のimage.ImageからRGB順のフレームを作成する
func FromImage(img image.Image) *Frame {
	b := img.Bounds()
	f := New(b.Dx(), b.Dy(), OrderRGB)

	// よく使う形式は直接コピーする
	if rgba, ok := img.(*image.RGBA); ok {
		for y := 0; y < f.Height; y++ {
			src := rgba.Pix[y*rgba.Stride:]
			dst := f.Pix[y*f.Width*3:]
			for x := 0; x < f.Width; x++ {
				dst[x*3] = src[x*4]
				dst[x*3+1] = src[x*4+1]
				dst[x*3+2] = src[x*4+2]
			}
		}
		return f
	}

	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			f.SetRGB(x, y, c.R, c.G, c.B)
		}
	}
	return f
}

// FromBGR はBGR順のバイト列をコピーしてフレームを作成する
func FromBGR(width, height int, data []byte) (*Frame, error) {
	if len(data) != width*height*3 {
		return nil, fmt.Errorf("画素データ長が不正です: got %d, want %d", len(data), width*height*3)
	}
	f := New(width, height, OrderBGR)
	copy(f.Pix, data)
	return f, nil
}

// Empty は画素を1つも持たないかどうかを返す
func (f *Frame) Empty() bool {
	return f == nil || f.Width <= 0 || f.Height <= 0
}

func (f *Frame) offset(x, y int) int {
	return (y*f.Width + x) * 3
}

// RGBAt は(x, y)の画素をRGBで返す
func (f *Frame) RGBAt(x, y int) (r, g, b uint8) {
	i := f.offset(x, y)
	p := f.Pix[i : i+3 : i+3]
	if f.Order == OrderBGR {
		return p[2], p[1], p[0]
	}
	return p[0], p[1], p[2]
}

// SetRGB は(x, y)の画素をRGBで設定する
func (f *Frame) SetRGB(x, y int, r, g, b uint8) {
	i := f.offset(x, y)
	p := f.Pix[i : i+3 : i+3]
	if f.Order == OrderBGR {
		p[0], p[1], p[2] = b, g, r
		return
	}
	p[0], p[1], p[2] = r, g, b
}

// ColorModel はimage.Imageの実装
func (f *Frame) ColorModel() color.Model {
	return color.RGBAModel
}

// Bounds はimage.Imageの実装
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// At はimage.Imageの実装。チャンネル順に関わらずRGBとして返す
func (f *Frame) At(x, y int) color.Color {
	if !image.Pt(x, y).In(f.Bounds()) {
		return color.RGBA{}
	}
	r, g, b := f.RGBAt(x, y)
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// Set はdraw.Imageの実装
func (f *Frame) Set(x, y int, c color.Color) {
	if !image.Pt(x, y).In(f.Bounds()) {
		return
	}
	rgba := color.RGBAModel.Convert(c).(color.RGBA)
	f.SetRGB(x, y, rgba.R, rgba.G, rgba.B)
}

// Clone はフレームの複製を返す
func (f *Frame) Clone() *Frame {
	c := &Frame{Width: f.Width, Height: f.Height, Order: f.Order, Pix: make([]uint8, len(f.Pix))}
	copy(c.Pix, f.Pix)
	return c
}

// Convert は指定したチャンネル順のフレームを返す。同じ順序なら複製を返す
func (f *Frame) Convert(order ChannelOrder) *Frame {
	out := f.Clone()
	if f.Order == order {
		return out
	}
	for i := 0; i+2 < len(out.Pix); i += 3 {
		out.Pix[i], out.Pix[i+2] = out.Pix[i+2], out.Pix[i]
	}
	out.Order = order
	return out
}

// Crop は領域内の画素をコピーした新しいフレームを返す
func (f *Frame) Crop(r Region) (*Frame, error) {
	if !r.Within(f.Width, f.Height) {
		return nil, fmt.Errorf("領域 %v がフレーム %dx%d の範囲外です", r, f.Width, f.Height)
	}
	out := New(r.Dx(), r.Dy(), f.Order)
	rowBytes := out.Width * 3
	for y := 0; y < out.Height; y++ {
		src := f.offset(r.StartX, r.StartY+y)
		copy(out.Pix[y*rowBytes:(y+1)*rowBytes], f.Pix[src:src+rowBytes])
	}
	return out, nil
}

// ToRGBA はエンコード用に*image.RGBAへ変換する
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(f.Bounds())
	for y := 0; y < f.Height; y++ {
		dst := img.Pix[y*img.Stride:]
		for x := 0; x < f.Width; x++ {
			r, g, b := f.RGBAt(x, y)
			dst[x*4] = r
			dst[x*4+1] = g
			dst[x*4+2] = b
			dst[x*4+3] = 255
		}
	}
	return img
}
