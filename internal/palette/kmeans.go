package palette

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// k-meansの既定値
const (
	DefaultClusters      = 3
	DefaultRestarts      = 10
	DefaultMaxIterations = 300
	DefaultTolerance     = 1e-4
	DefaultSeed          = 42
)

// KMeansOptions はk-meansクラスタリングの設定
type KMeansOptions struct {
	K             int     // クラスタ数
	Restarts      int     // 初期化のやり直し回数。慣性が最小の結果を採用する
	MaxIterations int     // 1回の試行での最大反復回数
	Tolerance     float64 // 中心移動量の収束判定（データの平均分散に対する比）
	Seed          uint64  // 乱数シード
}

// DefaultKMeansOptions は既定のk-means設定を返す
func DefaultKMeansOptions() KMeansOptions {
	return KMeansOptions{
		K:             DefaultClusters,
		Restarts:      DefaultRestarts,
		MaxIterations: DefaultMaxIterations,
		Tolerance:     DefaultTolerance,
		Seed:          DefaultSeed,
	}
}

// Validate は設定の妥当性を検証する
func (o KMeansOptions) Validate() error {
	if o.K < 1 {
		return fmt.Errorf("クラスタ数は1以上が必要です: %d", o.K)
	}
	if o.Restarts < 1 {
		return fmt.Errorf("初期化回数は1以上が必要です: %d", o.Restarts)
	}
	if o.MaxIterations < 1 {
		return fmt.Errorf("最大反復回数は1以上が必要です: %d", o.MaxIterations)
	}
	if o.Tolerance < 0 {
		return fmt.Errorf("収束判定値が負です: %v", o.Tolerance)
	}
	return nil
}

// Clustering はk-meansの結果
type Clustering struct {
	Centers [][]float64 // クラスタ中心
	Labels  []int       // サンプルごとの所属クラスタ
	Inertia float64     // 各サンプルと所属中心との距離の二乗和
}

// Sizes はクラスタごとのサンプル数を返す
func (c *Clustering) Sizes() []int {
	sizes := make([]int, len(c.Centers))
	for _, l := range c.Labels {
		sizes[l]++
	}
	return sizes
}

// Largest は最もサンプル数が多いクラスタの番号を返す。同数なら番号が小さい方
func (c *Clustering) Largest() int {
	sizes := c.Sizes()
	counts := make([]float64, len(sizes))
	for i, s := range sizes {
		counts[i] = float64(s)
	}
	return floats.MaxIdx(counts)
}

// KMeans はサンプルをk個のクラスタに分割する
//
// 初期中心はk-means++で選び、Restarts回の試行のうち慣性が最小のものを返す。
// 同じSeedなら同じ結果になる。サンプル数がKより少ない場合はサンプル数に合わせる。
func KMeans(samples [][]float64, opts KMeansOptions) (*Clustering, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, errors.New("サンプルがありません")
	}

	k := opts.K
	if k > len(samples) {
		k = len(samples)
	}

	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
	tol := toleranceFor(samples, opts.Tolerance)

	var best *Clustering
	for i := 0; i < opts.Restarts; i++ {
		centers := initPlusPlus(samples, k, rng)
		result := lloyd(samples, centers, opts.MaxIterations, tol)
		if best == nil || result.Inertia < best.Inertia {
			best = result
		}
	}
	return best, nil
}

// toleranceFor は特徴ごとの分散の平均に比例した収束判定値を返す
func toleranceFor(samples [][]float64, tol float64) float64 {
	if tol == 0 {
		return 0
	}
	dim := len(samples[0])
	column := make([]float64, len(samples))
	variances := make([]float64, dim)
	for d := 0; d < dim; d++ {
		for i, s := range samples {
			column[i] = s[d]
		}
		if len(column) > 1 {
			variances[d] = stat.Variance(column, nil)
		}
	}
	return tol * stat.Mean(variances, nil)
}

// initPlusPlus はk-means++で初期中心を選ぶ
//
// 各ステップで 2+log(k) 個の候補を距離の二乗に比例した確率で引き、
// 全体のポテンシャルを最も下げる候補を採用する。
func initPlusPlus(samples [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(samples)
	trials := 2 + int(math.Log(float64(k)))

	centers := make([][]float64, 0, k)
	first := samples[rng.IntN(n)]
	centers = append(centers, append([]float64(nil), first...))

	closest := make([]float64, n)
	for i, s := range samples {
		closest[i] = sqDist(s, first)
	}
	potential := floats.Sum(closest)

	cumulative := make([]float64, n)
	candidateDist := make([][]float64, trials)
	for t := range candidateDist {
		candidateDist[t] = make([]float64, n)
	}
	candidatePot := make([]float64, trials)
	candidateIdx := make([]int, trials)

	for len(centers) < k {
		floats.CumSum(cumulative, closest)
		for t := 0; t < trials; t++ {
			target := rng.Float64() * potential
			idx := sort.SearchFloat64s(cumulative, target)
			if idx >= n {
				idx = n - 1
			}
			candidateIdx[t] = idx

			cand := samples[idx]
			for i, s := range samples {
				candidateDist[t][i] = math.Min(closest[i], sqDist(s, cand))
			}
			candidatePot[t] = floats.Sum(candidateDist[t])
		}

		bestTrial := floats.MinIdx(candidatePot)
		potential = candidatePot[bestTrial]
		copy(closest, candidateDist[bestTrial])
		centers = append(centers, append([]float64(nil), samples[candidateIdx[bestTrial]]...))
	}
	return centers
}

// lloyd は中心の更新と割り当てを収束するまで繰り返す
func lloyd(samples [][]float64, centers [][]float64, maxIter int, tol float64) *Clustering {
	k := len(centers)
	dim := len(samples[0])
	labels := make([]int, len(samples))

	next := make([][]float64, k)
	for c := range next {
		next[c] = make([]float64, dim)
	}
	counts := make([]int, k)

	for iter := 0; iter < maxIter; iter++ {
		assign(samples, centers, labels)

		for c := range next {
			floats.Scale(0, next[c])
			counts[c] = 0
		}
		for i, s := range samples {
			floats.Add(next[labels[i]], s)
			counts[labels[i]]++
		}
		for c := range next {
			if counts[c] == 0 {
				relocateEmpty(samples, centers, labels, next[c])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}

		shift := 0.0
		for c := range centers {
			shift += sqDist(centers[c], next[c])
			copy(centers[c], next[c])
		}
		if shift <= tol {
			break
		}
	}

	inertia := assign(samples, centers, labels)
	return &Clustering{Centers: centers, Labels: labels, Inertia: inertia}
}

// assign は各サンプルを最も近い中心に割り当て、慣性を返す。距離が同じなら番号が小さい方
func assign(samples [][]float64, centers [][]float64, labels []int) float64 {
	inertia := 0.0
	for i, s := range samples {
		bestLabel := 0
		bestDist := sqDist(s, centers[0])
		for c := 1; c < len(centers); c++ {
			if d := sqDist(s, centers[c]); d < bestDist {
				bestDist = d
				bestLabel = c
			}
		}
		labels[i] = bestLabel
		inertia += bestDist
	}
	return inertia
}

// relocateEmpty は空になったクラスタの中心を、現在の中心から最も遠いサンプルへ移す
func relocateEmpty(samples [][]float64, centers [][]float64, labels []int, dst []float64) {
	far := 0
	farDist := -1.0
	for i, s := range samples {
		if d := sqDist(s, centers[labels[i]]); d > farDist {
			farDist = d
			far = i
		}
	}
	copy(dst, samples[far])
}

func sqDist(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
