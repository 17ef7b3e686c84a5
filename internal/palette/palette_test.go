package palette

import (
	"errors"
	"fmt"
	"math"
	"testing"

	"irodori/internal/frame"
)

// splitFrame は上側 ratio を top 色、残りを bottom 色で塗ったフレームを作る
func splitFrame(width, height int, order frame.ChannelOrder, ratio float64, top, bottom RGB) *frame.Frame {
	f := frame.New(width, height, order)
	border := int(float64(height) * ratio)
	for y := 0; y < height; y++ {
		c := top
		if y >= border {
			c = bottom
		}
		for x := 0; x < width; x++ {
			f.SetRGB(x, y, uint8(c.R), uint8(c.G), uint8(c.B))
		}
	}
	return f
}

func TestHexRoundTrip(t *testing.T) {
	// 全 256^3 通りを確認する
	for r := 0; r < 256; r++ {
		for g := 0; g < 256; g++ {
			for b := 0; b < 256; b++ {
				c := RGB{r, g, b}
				got, err := ParseHex(c.Hex())
				if err != nil {
					t.Fatalf("ParseHex(%q) failed: %v", c.Hex(), err)
				}
				if got != c {
					t.Fatalf("round trip mismatch: %v -> %s -> %v", c, c.Hex(), got)
				}
			}
		}
	}
}

func TestHexFormat(t *testing.T) {
	testCases := []struct {
		rgb  RGB
		want string
	}{
		{RGB{0, 0, 0}, "#000000"},
		{RGB{255, 255, 255}, "#ffffff"},
		{RGB{10, 171, 5}, "#0aab05"},
	}
	for _, tc := range testCases {
		if got := tc.rgb.Hex(); got != tc.want {
			t.Errorf("Hex(%v) = %s, want %s", tc.rgb, got, tc.want)
		}
	}

	for _, bad := range []string{"", "ffffff", "#fff", "#gg0000", "#-12345", "#1234567"} {
		if _, err := ParseHex(bad); err == nil {
			t.Errorf("ParseHex(%q) expected error", bad)
		}
	}
}

func TestKMeans_Deterministic(t *testing.T) {
	samples := make([][]float64, 0, 300)
	for i := 0; i < 100; i++ {
		v := float64(i % 7)
		samples = append(samples,
			[]float64{10 + v, 10, 10},
			[]float64{120, 130 + v, 110},
			[]float64{240, 20, 230 - v},
		)
	}

	opts := DefaultKMeansOptions()
	a, err := KMeans(samples, opts)
	if err != nil {
		t.Fatalf("KMeans failed: %v", err)
	}
	b, err := KMeans(samples, opts)
	if err != nil {
		t.Fatalf("KMeans failed: %v", err)
	}

	if a.Inertia != b.Inertia {
		t.Errorf("inertia differs between runs: %v != %v", a.Inertia, b.Inertia)
	}
	for i := range a.Labels {
		if a.Labels[i] != b.Labels[i] {
			t.Fatalf("labels differ at %d", i)
		}
	}

	// 3つの塊はそれぞれ別のクラスタになる
	sizes := a.Sizes()
	for c, s := range sizes {
		if s != 100 {
			t.Errorf("cluster %d has %d samples, want 100", c, s)
		}
	}
}

func TestKMeans_RestartsKeepLowestInertia(t *testing.T) {
	// 離れた3つの正方形。各4点
	var samples [][]float64
	for _, origin := range [][2]float64{{0, 0}, {100, 0}, {0, 100}} {
		for _, d := range [][2]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}} {
			samples = append(samples, []float64{origin[0] + d[0], origin[1] + d[1], 0})
		}
	}

	// 悪い初期中心から始めると2つの正方形をまとめた局所解に留まる
	local := lloyd(samples, [][]float64{{0, 0, 0}, {1, 1, 0}, {50, 50, 0}}, 300, 0)
	if local.Inertia < 1000 {
		t.Fatalf("expected a local optimum, got inertia %v", local.Inertia)
	}

	opts := KMeansOptions{K: 3, Restarts: 10, MaxIterations: 300, Tolerance: DefaultTolerance, Seed: 42}
	best, err := KMeans(samples, opts)
	if err != nil {
		t.Fatalf("KMeans failed: %v", err)
	}
	if best.Inertia >= local.Inertia {
		t.Errorf("inertia %v is not below local optimum %v", best.Inertia, local.Inertia)
	}
	// 各正方形の慣性は0.5*4
	if math.Abs(best.Inertia-6) > 1e-9 {
		t.Errorf("inertia = %v, want 6", best.Inertia)
	}

	// 正方形ごとに同じラベル、正方形どうしは別のラベル
	seen := map[int]bool{}
	for g := 0; g < 3; g++ {
		label := best.Labels[g*4]
		for i := g*4 + 1; i < g*4+4; i++ {
			if best.Labels[i] != label {
				t.Errorf("group %d split: labels %v", g, best.Labels[g*4:g*4+4])
			}
		}
		if seen[label] {
			t.Errorf("groups share label %d: %v", label, best.Labels)
		}
		seen[label] = true
	}

	for seed := uint64(0); seed < 20; seed++ {
		single := opts
		single.Restarts = 1
		single.Seed = seed
		got, err := KMeans(samples, single)
		if err != nil {
			t.Fatalf("KMeans(seed=%d) failed: %v", seed, err)
		}
		if best.Inertia > got.Inertia {
			t.Errorf("seed %d: single run inertia %v is below restarted %v", seed, got.Inertia, best.Inertia)
		}
	}
}

func TestKMeans_SingleCluster(t *testing.T) {
	samples := [][]float64{{0, 0, 0}, {10, 20, 30}, {20, 40, 60}}
	opts := DefaultKMeansOptions()
	opts.K = 1

	c, err := KMeans(samples, opts)
	if err != nil {
		t.Fatalf("KMeans failed: %v", err)
	}
	want := []float64{10, 20, 30}
	for i := range want {
		if math.Abs(c.Centers[0][i]-want[i]) > 1e-9 {
			t.Errorf("center = %v, want %v", c.Centers[0], want)
			break
		}
	}
}

func TestKMeans_MoreClustersThanSamples(t *testing.T) {
	samples := [][]float64{{1, 1, 1}, {200, 200, 200}}
	opts := DefaultKMeansOptions()
	opts.K = 5

	c, err := KMeans(samples, opts)
	if err != nil {
		t.Fatalf("KMeans failed: %v", err)
	}
	if len(c.Centers) != 2 {
		t.Errorf("expected clusters clamped to 2, got %d", len(c.Centers))
	}
	if c.Inertia != 0 {
		t.Errorf("expected zero inertia, got %v", c.Inertia)
	}
}

func TestKMeans_InvalidOptions(t *testing.T) {
	samples := [][]float64{{1, 2, 3}}
	testCases := []struct {
		name string
		opts KMeansOptions
	}{
		{"クラスタ数0", KMeansOptions{K: 0, Restarts: 10, MaxIterations: 10}},
		{"初期化回数0", KMeansOptions{K: 1, Restarts: 0, MaxIterations: 10}},
		{"反復回数0", KMeansOptions{K: 1, Restarts: 1, MaxIterations: 0}},
		{"負の収束判定値", KMeansOptions{K: 1, Restarts: 1, MaxIterations: 1, Tolerance: -1}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := KMeans(samples, tc.opts); err == nil {
				t.Error("Expected error")
			}
		})
	}

	if _, err := KMeans(nil, DefaultKMeansOptions()); err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestClustering_LargestTieBreak(t *testing.T) {
	c := &Clustering{
		Centers: [][]float64{{0}, {1}, {2}},
		Labels:  []int{2, 1, 2, 1, 0},
	}
	if got := c.Largest(); got != 1 {
		t.Errorf("Largest() = %d, want 1", got)
	}
}

func TestExtractor_DominantRed(t *testing.T) {
	red := RGB{255, 0, 0}
	blue := RGB{0, 0, 255}

	ex, err := NewExtractor(DefaultExtractorOptions())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	for _, order := range []frame.ChannelOrder{frame.OrderRGB, frame.OrderBGR} {
		for _, size := range []int{100, 240} {
			t.Run(fmt.Sprintf("%s_%d", order, size), func(t *testing.T) {
				region := splitFrame(size, size, order, 0.9, red, blue)

				got, err := ex.DominantK(region, 2)
				if err != nil {
					t.Fatalf("DominantK failed: %v", err)
				}
				if name := ColorName(got); name != NameRed {
					t.Errorf("dominant %v classified as %s, want %s", got, name, NameRed)
				}
			})
		}
	}
}

func TestExtractor_DefaultClusters(t *testing.T) {
	ex, err := NewExtractor(DefaultExtractorOptions())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	region := splitFrame(80, 60, frame.OrderBGR, 0.25, RGB{255, 255, 255}, RGB{0, 200, 40})
	got, err := ex.Dominant(region)
	if err != nil {
		t.Fatalf("Dominant failed: %v", err)
	}
	if name := ColorName(got); name != NameGreen {
		t.Errorf("dominant %v classified as %s, want %s", got, name, NameGreen)
	}
}

func TestExtractor_EmptyRegion(t *testing.T) {
	ex, err := NewExtractor(DefaultExtractorOptions())
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}

	for _, f := range []*frame.Frame{
		frame.New(0, 10, frame.OrderRGB),
		frame.New(10, 0, frame.OrderRGB),
		nil,
	} {
		if _, err := ex.Dominant(f); !errors.Is(err, ErrEmptyRegion) {
			t.Errorf("Expected ErrEmptyRegion, got %v", err)
		}
	}
}

func TestNewExtractor_Invalid(t *testing.T) {
	opts := DefaultExtractorOptions()
	opts.KMeans.K = 0
	if _, err := NewExtractor(opts); err == nil {
		t.Error("Expected error for zero clusters")
	}

	opts = DefaultExtractorOptions()
	opts.SampleWidth = 0
	if _, err := NewExtractor(opts); err == nil {
		t.Error("Expected error for zero sample width")
	}
}
