package palette

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// 代表色の名前
const (
	NameRed     = "Red"
	NameGreen   = "Green"
	NameBlue    = "Blue"
	NameYellow  = "Yellow"
	NameOrange  = "Orange"
	NamePurple  = "Purple"
	NamePink    = "Pink"
	NameBrown   = "Brown"
	NameBlack   = "Black"
	NameWhite   = "White"
	NameGray    = "Gray"
	NameCyan    = "Cyan"
	NameMagenta = "Magenta"
	NameUnknown = "Unknown"
)

// colorRange はRGB空間の軸平行な箱（両端を含む）
type colorRange struct {
	name  string
	lower RGB
	upper RGB
}

func (r colorRange) contains(c RGB) bool {
	return r.lower.R <= c.R && c.R <= r.upper.R &&
		r.lower.G <= c.G && c.G <= r.upper.G &&
		r.lower.B <= c.B && c.B <= r.upper.B
}

// rangeTable は範囲判定のテーブル
//
// 範囲は重なっているものがあり、定義順で先に一致したものを採用する。
// 並びを変えると分類結果が変わるため順序を維持すること。
var rangeTable = []colorRange{
	{NameRed, RGB{200, 0, 0}, RGB{255, 100, 100}},
	{NameGreen, RGB{0, 200, 0}, RGB{100, 255, 100}},
	{NameBlue, RGB{0, 0, 200}, RGB{100, 100, 255}},
	{NameYellow, RGB{200, 200, 0}, RGB{255, 255, 100}},
	{NameOrange, RGB{200, 100, 0}, RGB{255, 165, 50}},
	{NamePurple, RGB{100, 0, 100}, RGB{180, 80, 180}},
	{NamePink, RGB{200, 100, 150}, RGB{255, 182, 193}},
	{NameBrown, RGB{100, 40, 0}, RGB{165, 42, 42}},
	{NameBlack, RGB{0, 0, 0}, RGB{50, 50, 50}},
	{NameWhite, RGB{200, 200, 200}, RGB{255, 255, 255}},
	{NameGray, RGB{100, 100, 100}, RGB{180, 180, 180}},
	{NameCyan, RGB{0, 200, 200}, RGB{100, 255, 255}},
	{NameMagenta, RGB{200, 0, 200}, RGB{255, 100, 255}},
}

// canonicalColor は最近傍判定に使う代表色
type canonicalColor struct {
	name string
	rgb  RGB
}

// canonicalTable は最近傍判定のテーブル。距離が同じ場合は先のものを採用する
var canonicalTable = []canonicalColor{
	{NameRed, RGB{255, 0, 0}},
	{NameGreen, RGB{0, 255, 0}},
	{NameBlue, RGB{0, 0, 255}},
	{NameYellow, RGB{255, 255, 0}},
	{NameOrange, RGB{255, 165, 0}},
	{NamePurple, RGB{128, 0, 128}},
	{NamePink, RGB{255, 192, 203}},
	{NameBrown, RGB{165, 42, 42}},
	{NameBlack, RGB{0, 0, 0}},
	{NameWhite, RGB{255, 255, 255}},
	{NameGray, RGB{128, 128, 128}},
	{NameCyan, RGB{0, 255, 255}},
	{NameMagenta, RGB{255, 0, 255}},
}

// Names は代表色の名前を定義順で返す
func Names() []string {
	names := make([]string, len(canonicalTable))
	for i, c := range canonicalTable {
		names[i] = c.name
	}
	return names
}

// Canonical は代表色名に対応する基準RGBを返す
func Canonical(name string) (RGB, bool) {
	for _, c := range canonicalTable {
		if c.name == name {
			return c.rgb, true
		}
	}
	return RGB{}, false
}

// ColorName はRGB値を代表色名に分類する
//
// 0-255の範囲外の値でもパニックせず、最近傍判定で必ず名前を返す。
func ColorName(c RGB) string {
	for _, r := range rangeTable {
		if r.contains(c) {
			return r.name
		}
	}
	return nearestName(c)
}

// nearestName は最もユークリッド距離が近い代表色名を返す
func nearestName(c RGB) string {
	v := c.Vector()
	closest := NameUnknown
	minDistance := math.Inf(1)

	for _, canon := range canonicalTable {
		d := floats.Distance(v, canon.rgb.Vector(), 2)
		if d < minDistance {
			minDistance = d
			closest = canon.name
		}
	}
	return closest
}
