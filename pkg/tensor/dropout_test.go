package tensor

import (
	"sync"
	"testing"
)

// attentionWeights returns a uniform (N, H, S, T) weight tensor, the shape
// dropout sees inside multi-head attention.
func attentionWeights(n, h, s, tLen int) *Tensor {
	return Full([]int{n, h, s, tLen}, 1/float32(tLen))
}

func TestDropout_Inference(t *testing.T) {
	weights := attentionWeights(2, 4, 3, 5)

	for _, p := range []float32{0, 0.1, 0.5} {
		result := weights.Dropout(p, false)
		if !result.Equals(weights, 0) {
			t.Errorf("p=%v: inference dropout changed values", p)
		}
		if &result.Data[0] == &weights.Data[0] {
			t.Errorf("p=%v: expected a copy, got the input's storage", p)
		}
	}
}

func TestDropout_ZeroProbability(t *testing.T) {
	weights := attentionWeights(1, 2, 4, 4)
	if result := weights.Dropout(0, true); !result.Equals(weights, 0) {
		t.Error("Dropout with p=0 must keep every value")
	}
}

func TestDropout_InvalidProbability(t *testing.T) {
	for _, p := range []float32{1, 1.5, -0.1} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("Expected panic for p=%v", p)
				}
			}()
			attentionWeights(1, 1, 2, 2).Dropout(p, true)
		}()
	}
}

// TestDropout_Training checks the drop rate and the 1/(1-p) scaling on a
// batch of attention weights.
func TestDropout_Training(t *testing.T) {
	SetDropoutSeed(42)

	n, h, s, tLen := 4, 4, 8, 8
	weights := attentionWeights(n, h, s, tLen)
	p := float32(0.3)

	result := weights.Dropout(p, true)
	if !result.ShapeEquals(weights.Shape) {
		t.Fatalf("Expected shape %v, got %v", weights.Shape, result.Shape)
	}

	kept := weights.Data[0] * (1 / (1 - p))
	dropped := 0
	for i, v := range result.Data {
		switch v {
		case 0:
			dropped++
		case kept:
		default:
			t.Fatalf("Index %d: expected 0 or %f, got %f", i, kept, v)
		}
	}

	rate := float32(dropped) / float32(len(result.Data))
	if rate < 0.2 || rate > 0.4 {
		t.Errorf("Expected drop rate around %v, got %v", p, rate)
	}
}

func TestSetDropoutSeed_Repeatable(t *testing.T) {
	weights := attentionWeights(2, 2, 4, 4)

	SetDropoutSeed(7)
	first := weights.Dropout(0.5, true)
	SetDropoutSeed(7)
	second := weights.Dropout(0.5, true)
	if !first.Equals(second, 0) {
		t.Error("Same seed produced different dropout masks")
	}

	SetDropoutSeed(8)
	third := weights.Dropout(0.5, true)
	if first.Equals(third, 0) {
		t.Error("Different seeds produced identical dropout masks")
	}
}

// TestDropout_ConcurrentCallers runs training dropout from several goroutines
// at once; run with -race to check the shared generator.
func TestDropout_ConcurrentCallers(t *testing.T) {
	SetDropoutSeed(1)
	weights := attentionWeights(2, 4, 6, 6)
	kept := weights.Data[0] * 2

	const callers = 8
	results := make([]*Tensor, callers)
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = weights.Dropout(0.5, true)
		}(i)
	}
	wg.Wait()

	for i, r := range results {
		if !r.ShapeEquals(weights.Shape) {
			t.Fatalf("caller %d: expected shape %v, got %v", i, weights.Shape, r.Shape)
		}
		for j, v := range r.Data {
			if v != 0 && v != kept {
				t.Fatalf("caller %d index %d: expected 0 or %f, got %f", i, j, kept, v)
			}
		}
	}
}
