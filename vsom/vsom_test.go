package vsom

import "testing"

func clusteredVecs() [][]float32 {
	var out [][]float32
	for i := 0; i < 10; i++ {
		out = append(out, []float32{1, 0.01 * float32(i), 0})
	}
	for i := 0; i < 10; i++ {
		out = append(out, []float32{0, 1, 0.01 * float32(i)})
	}
	return out
}

func TestTrainEmptyInput(t *testing.T) {
	m, res := Train(nil, DefaultConfig())
	if m == nil {
		t.Fatal("expected non-nil map for empty input")
	}
	if res.Epochs != 0 {
		t.Fatalf("expected 0 epochs recorded for empty input, got %d", res.Epochs)
	}
}

func TestTrainProducesLowQuantizationErrorOnClusteredData(t *testing.T) {
	cfg := Config{GridSize: 6, Epochs: 30, LearningRateStart: 0.2, LearningRateEnd: 0.02, Seed: 7}
	m, res := Train(clusteredVecs(), cfg)
	if m.GridSize() != 6 {
		t.Fatalf("expected grid size 6, got %d", m.GridSize())
	}
	if res.QuantizationError > 0.3 {
		t.Fatalf("expected low quantization error on tight clusters, got %v", res.QuantizationError)
	}
}

func TestTrainIsDeterministicForFixedSeed(t *testing.T) {
	cfg := Config{GridSize: 4, Epochs: 10, LearningRateStart: 0.2, LearningRateEnd: 0.02, Seed: 42}
	vecs := clusteredVecs()
	m1, _ := Train(vecs, cfg)
	m2, _ := Train(vecs, cfg)

	for i := range m1.weights {
		for d := range m1.weights[i] {
			if m1.weights[i][d] != m2.weights[i][d] {
				t.Fatalf("expected identical weights for same seed, diverged at node %d dim %d", i, d)
			}
		}
	}
}

func TestBMUReturnsValidGridCoordinates(t *testing.T) {
	cfg := Config{GridSize: 5, Epochs: 5, LearningRateStart: 0.2, LearningRateEnd: 0.02, Seed: 1}
	m, _ := Train(clusteredVecs(), cfg)
	_, x, y := m.BMU([]float32{1, 0, 0})
	if x < 0 || x >= 5 || y < 0 || y >= 5 {
		t.Fatalf("BMU coordinates out of grid bounds: (%d,%d)", x, y)
	}
}
