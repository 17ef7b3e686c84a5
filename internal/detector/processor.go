// Package detector はフレームから支配色を検出し、結果をまとめる
package detector

import (
	"fmt"
	"image/color"

	"irodori/internal/frame"
	"irodori/internal/palette"
)

// Result は1フレーム分の検出結果
type Result struct {
	RGB    palette.RGB  `json:"rgb"`
	Hex    string       `json:"hex"`
	Name   string       `json:"name"`
	Region frame.Region `json:"region_coords"`
}

// Options はフレーム処理の設定
type Options struct {
	RegionRatio      float64 // 注目領域が占める幅・高さの割合 (0, 1]
	Extractor        palette.ExtractorOptions
	OutlineColor     color.RGBA
	OutlineThickness int
}

// DefaultOptions は既定のフレーム処理設定を返す
func DefaultOptions() Options {
	return Options{
		RegionRatio:      frame.DefaultRegionRatio,
		Extractor:        palette.DefaultExtractorOptions(),
		OutlineColor:     frame.DefaultOutlineColor,
		OutlineThickness: frame.DefaultOutlineThickness,
	}
}

// Processor は注目領域の切り出し、支配色の抽出、命名、枠線描画を行う
type Processor struct {
	opts      Options
	extractor *palette.Extractor
}

// NewProcessor は新しいProcessorを作成する
func NewProcessor(opts Options) (*Processor, error) {
	if opts.RegionRatio <= 0 || opts.RegionRatio > 1 {
		return nil, fmt.Errorf("無効な領域比率: %v", opts.RegionRatio)
	}
	if opts.OutlineThickness < 0 {
		return nil, fmt.Errorf("無効な枠線の太さ: %d", opts.OutlineThickness)
	}

	extractor, err := palette.NewExtractor(opts.Extractor)
	if err != nil {
		return nil, err
	}

	return &Processor{opts: opts, extractor: extractor}, nil
}

// Process はフレームを処理し、枠線を描いたフレームと検出結果を返す
//
// 枠線は渡されたフレームに直接描画される。
// 元の画素が必要な場合は呼び出し側で複製しておくこと。
func (p *Processor) Process(f *frame.Frame) (*frame.Frame, Result, error) {
	if f.Empty() {
		return nil, Result{}, fmt.Errorf("フレームの処理に失敗: %w", palette.ErrEmptyRegion)
	}

	region := frame.CenterRegion(f.Width, f.Height, p.opts.RegionRatio)
	if region.Empty() {
		return nil, Result{}, fmt.Errorf("注目領域 %v が空です: %w", region, palette.ErrEmptyRegion)
	}

	roi, err := f.Crop(region)
	if err != nil {
		return nil, Result{}, fmt.Errorf("注目領域の切り出しに失敗: %w", err)
	}

	dominant, err := p.extractor.Dominant(roi)
	if err != nil {
		return nil, Result{}, fmt.Errorf("支配色の抽出に失敗: %w", err)
	}

	result := Result{
		RGB:    dominant,
		Hex:    dominant.Hex(),
		Name:   palette.ColorName(dominant),
		Region: region,
	}

	frame.DrawRectangle(f, region, p.opts.OutlineColor, p.opts.OutlineThickness)

	return f, result, nil
}
