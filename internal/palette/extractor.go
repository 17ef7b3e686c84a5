package palette

import (
	"errors"
	"fmt"

	"golang.org/x/image/draw"

	"irodori/internal/frame"
)

// 縮小後の既定サイズ
const (
	DefaultSampleWidth  = 100
	DefaultSampleHeight = 100
)

// ErrEmptyRegion は面積0の領域から色を求めようとしたことを表す
var ErrEmptyRegion = errors.New("領域の画素がありません")

// ExtractorOptions は支配色抽出の設定
type ExtractorOptions struct {
	KMeans       KMeansOptions
	SampleWidth  int // クラスタリング前に縮小する幅
	SampleHeight int // クラスタリング前に縮小する高さ
}

// DefaultExtractorOptions は既定の抽出設定を返す
func DefaultExtractorOptions() ExtractorOptions {
	return ExtractorOptions{
		KMeans:       DefaultKMeansOptions(),
		SampleWidth:  DefaultSampleWidth,
		SampleHeight: DefaultSampleHeight,
	}
}

// Extractor は画素領域から支配色を求める
type Extractor struct {
	opts ExtractorOptions
}

// NewExtractor は新しいExtractorを作成する
func NewExtractor(opts ExtractorOptions) (*Extractor, error) {
	if err := opts.KMeans.Validate(); err != nil {
		return nil, fmt.Errorf("k-means設定が無効: %w", err)
	}
	if opts.SampleWidth < 1 || opts.SampleHeight < 1 {
		return nil, fmt.Errorf("無効な縮小サイズ: %dx%d", opts.SampleWidth, opts.SampleHeight)
	}
	return &Extractor{opts: opts}, nil
}

// Dominant は設定のクラスタ数で支配色を求める
func (e *Extractor) Dominant(region *frame.Frame) (RGB, error) {
	return e.DominantK(region, e.opts.KMeans.K)
}

// DominantK はk個のクラスタに分けたうち、最も画素数が多いクラスタの中心を返す
//
// 領域は固定サイズに縮小してからクラスタリングするため、
// 入力サイズに関わらず処理時間はほぼ一定になる。
func (e *Extractor) DominantK(region *frame.Frame, k int) (RGB, error) {
	if region.Empty() {
		return RGB{}, ErrEmptyRegion
	}

	samples := e.samples(region)

	opts := e.opts.KMeans
	opts.K = k
	clustering, err := KMeans(samples, opts)
	if err != nil {
		return RGB{}, fmt.Errorf("クラスタリングに失敗: %w", err)
	}

	center := clustering.Centers[clustering.Largest()]
	return RGB{
		R: clampChannel(int(center[0])),
		G: clampChannel(int(center[1])),
		B: clampChannel(int(center[2])),
	}, nil
}

// samples は領域を縮小しRGB順に揃えてサンプル列に平坦化する
func (e *Extractor) samples(region *frame.Frame) [][]float64 {
	small := frame.New(e.opts.SampleWidth, e.opts.SampleHeight, region.Order)
	draw.BiLinear.Scale(small, small.Bounds(), region, region.Bounds(), draw.Src, nil)

	rgb := small.Convert(frame.OrderRGB)

	samples := make([][]float64, 0, rgb.Width*rgb.Height)
	for i := 0; i+2 < len(rgb.Pix); i += 3 {
		samples = append(samples, []float64{
			float64(rgb.Pix[i]),
			float64(rgb.Pix[i+1]),
			float64(rgb.Pix[i+2]),
		})
	}
	return samples
}
