// Package vsom implements the VSOM Trainer (C12): a Kohonen self-organizing
// map trained over interaction embeddings, used to surface a topological
// summary of the memory store.
package vsom

import (
	"math"
	"math/rand/v2"

	"github.com/danja/semem/store"
)

// Config tunes the SOM grid and training schedule (§4.12).
type Config struct {
	GridSize       int // G, default 20 (G x G grid)
	Epochs         int // default 100
	LearningRateStart float64 // default 0.1
	LearningRateEnd   float64 // default 0.01
	Seed           uint64
}

func DefaultConfig() Config {
	return Config{GridSize: 20, Epochs: 100, LearningRateStart: 0.1, LearningRateEnd: 0.01}
}

// Map is a trained SOM: a GridSize x GridSize grid of weight vectors, each
// the same dimension as the training embeddings.
type Map struct {
	cfg     Config
	dim     int
	weights [][]float32 // len GridSize*GridSize, row-major
}

// Result summarizes training quality (§4.12's reporting requirement).
type Result struct {
	QuantizationError float64
	TopographicError  float64
	Epochs            int
}

// Train runs the full Kohonen training loop over vecs and returns the
// trained Map plus its quality metrics. Deterministic for a fixed
// Config.Seed and input order.
func Train(vecs [][]float32, cfg Config) (*Map, Result) {
	if cfg.GridSize <= 0 {
		cfg.GridSize = 20
	}
	if cfg.Epochs <= 0 {
		cfg.Epochs = 100
	}
	if cfg.LearningRateStart <= 0 {
		cfg.LearningRateStart = 0.1
	}
	if cfg.LearningRateEnd <= 0 {
		cfg.LearningRateEnd = 0.01
	}
	if len(vecs) == 0 {
		return &Map{cfg: cfg}, Result{}
	}
	dim := len(vecs[0])
	n := cfg.GridSize * cfg.GridSize

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	weights := make([][]float32, n)
	for i := range weights {
		w := make([]float32, dim)
		src := vecs[rng.IntN(len(vecs))]
		copy(w, src)
		weights[i] = w
	}
	m := &Map{cfg: cfg, dim: dim, weights: weights}

	sigmaStart := float64(cfg.GridSize) / 2
	sigmaEnd := 1.0

	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		progress := float64(epoch) / float64(cfg.Epochs)
		lr := cfg.LearningRateStart * math.Pow(cfg.LearningRateEnd/cfg.LearningRateStart, progress)
		sigma := sigmaStart * math.Pow(sigmaEnd/sigmaStart, progress)

		for _, v := range vecs {
			bmu := m.bmu(v)
			bx, by := m.coords(bmu)
			for idx := range weights {
				x, y := m.coords(idx)
				dist2 := float64((x-bx)*(x-bx) + (y-by)*(y-by))
				influence := math.Exp(-dist2 / (2 * sigma * sigma))
				if influence < 1e-6 {
					continue
				}
				for d := 0; d < dim; d++ {
					weights[idx][d] += float32(lr*influence) * (v[d] - weights[idx][d])
				}
			}
		}
	}

	return m, Result{
		QuantizationError: m.quantizationError(vecs),
		TopographicError:  m.topographicError(vecs),
		Epochs:            cfg.Epochs,
	}
}

func (m *Map) coords(idx int) (int, int) {
	return idx % m.cfg.GridSize, idx / m.cfg.GridSize
}

// bmu returns the index of the best matching unit: the node whose weight
// vector has the smallest cosine distance (1 - cosine similarity) to v.
func (m *Map) bmu(v []float32) int {
	best := 0
	bestDist := math.MaxFloat64
	for i, w := range m.weights {
		d := 1 - store.CosineSimilarity(v, w)
		if d < bestDist {
			bestDist = d
			best = i
		}
	}
	return best
}

// BMU exposes the best-matching-unit lookup plus its grid coordinates, which
// place a vector on the map.
func (m *Map) BMU(v []float32) (index, x, y int) {
	idx := m.bmu(v)
	x, y = m.coords(idx)
	return idx, x, y
}

// GridSize returns the map's G x G dimension.
func (m *Map) GridSize() int { return m.cfg.GridSize }

// quantizationError is the mean squared Euclidean distance between each
// input and its BMU's weight vector (§4.12) — the standard SOM fit metric.
// BMU selection itself stays cosine-based (bmu above); only the reported
// error uses the spec's literal ‖x - w_BMU‖².
func (m *Map) quantizationError(vecs [][]float32) float64 {
	if len(vecs) == 0 {
		return 0
	}
	var total float64
	for _, v := range vecs {
		w := m.weights[m.bmu(v)]
		var sq float64
		for d := 0; d < len(v) && d < len(w); d++ {
			diff := float64(v[d] - w[d])
			sq += diff * diff
		}
		total += sq
	}
	return total / float64(len(vecs))
}

// topographicError is the fraction of inputs whose first and second BMU are
// not adjacent on the grid — a standard SOM quality measure for how well
// the map preserves topology.
func (m *Map) topographicError(vecs [][]float32) float64 {
	if len(vecs) == 0 {
		return 0
	}
	errCount := 0
	for _, v := range vecs {
		first, second := m.twoBMUs(v)
		fx, fy := m.coords(first)
		sx, sy := m.coords(second)
		dx, dy := fx-sx, fy-sy
		if dx < 0 {
			dx = -dx
		}
		if dy < 0 {
			dy = -dy
		}
		if dx > 1 || dy > 1 {
			errCount++
		}
	}
	return float64(errCount) / float64(len(vecs))
}

func (m *Map) twoBMUs(v []float32) (int, int) {
	first, second := -1, -1
	bestD, secondD := math.MaxFloat64, math.MaxFloat64
	for i, w := range m.weights {
		d := 1 - store.CosineSimilarity(v, w)
		if d < bestD {
			second, secondD = first, bestD
			first, bestD = i, d
		} else if d < secondD {
			second, secondD = i, d
		}
	}
	return first, second
}
