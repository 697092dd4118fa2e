package layer

import (
	"math"
	"math/rand"
	"testing"

	"github.com/pkg/errors"

	"captioning/pkg/tensor"
)

// sequenceInput returns a (batch, seq, dim) tensor whose rows have distinct
// means and spreads.
func sequenceInput(batch, seq, dim int) *tensor.Tensor {
	x := tensor.NewTensor([]int{batch, seq, dim})
	for b := 0; b < batch; b++ {
		for s := 0; s < seq; s++ {
			offset := float32(10 * (b*seq + s))
			spread := float32(s + 1)
			for d := 0; d < dim; d++ {
				x.Set(offset+spread*float32(d), b, s, d)
			}
		}
	}
	return x
}

func TestNewLayerNorm(t *testing.T) {
	ln := NewLayerNorm(8, DefaultNormEps)

	if ln.Eps != DefaultNormEps {
		t.Errorf("Expected Eps=%v, got %v", DefaultNormEps, ln.Eps)
	}
	if !ln.Scale.ShapeEquals([]int{8}) || !ln.Shift.ShapeEquals([]int{8}) {
		t.Fatalf("Expected scale and shift of shape [8], got %v and %v", ln.Scale.Shape, ln.Shift.Shape)
	}
	if !ln.Scale.Equals(tensor.Full([]int{8}, 1), 0) {
		t.Errorf("Expected scale of ones, got %v", ln.Scale)
	}
	if !ln.Shift.Equals(tensor.NewTensor([]int{8}), 0) {
		t.Errorf("Expected shift of zeros, got %v", ln.Shift)
	}
}

// TestLayerNorm_Sequence normalizes every (batch, position) row of a caption
// sequence to zero mean and unit variance.
func TestLayerNorm_Sequence(t *testing.T) {
	batch, seq, dim := 2, 3, 8
	ln := NewLayerNorm(dim, DefaultNormEps)

	output, err := ln.Forward(sequenceInput(batch, seq, dim))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	if !output.ShapeEquals([]int{batch, seq, dim}) {
		t.Fatalf("Expected shape [%d %d %d], got %v", batch, seq, dim, output.Shape)
	}

	for b := 0; b < batch; b++ {
		for s := 0; s < seq; s++ {
			var mean, variance float64
			for d := 0; d < dim; d++ {
				mean += float64(output.Get(b, s, d))
			}
			mean /= float64(dim)
			for d := 0; d < dim; d++ {
				diff := float64(output.Get(b, s, d)) - mean
				variance += diff * diff
			}
			variance /= float64(dim)

			if math.Abs(mean) > 1e-5 {
				t.Errorf("(%d,%d): mean = %v, expected ~0", b, s, mean)
			}
			if math.Abs(variance-1) > 1e-3 {
				t.Errorf("(%d,%d): variance = %v, expected ~1", b, s, variance)
			}
		}
	}
}

// TestLayerNorm_KnownValues checks one row by hand: [0, 2, 4, 6] has mean 3
// and variance 5.
func TestLayerNorm_KnownValues(t *testing.T) {
	ln := NewLayerNorm(4, DefaultNormEps)
	input, _ := tensor.FromSlice([]float32{0, 2, 4, 6}, []int{1, 1, 4})

	output, err := ln.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	invStd := 1 / math.Sqrt(5+float64(DefaultNormEps))
	for d, x := range []float64{0, 2, 4, 6} {
		want := (x - 3) * invStd
		if got := float64(output.Get(0, 0, d)); math.Abs(got-want) > 1e-5 {
			t.Errorf("dim %d: expected %f, got %f", d, want, got)
		}
	}
}

// TestLayerNorm_ScaleShift checks output = normalized * scale + shift per dimension.
func TestLayerNorm_ScaleShift(t *testing.T) {
	dim := 8
	rng := rand.New(rand.NewSource(3))
	input := sequenceInput(2, 2, dim)

	plain, err := NewLayerNorm(dim, DefaultNormEps).Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	ln := NewLayerNorm(dim, DefaultNormEps)
	NormalInit(ln.Scale, 1, rng)
	NormalInit(ln.Shift, 1, rng)
	affine, err := ln.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for i, v := range affine.Data {
		d := i % dim
		want := plain.Data[i]*ln.Scale.Data[d] + ln.Shift.Data[d]
		if math.Abs(float64(v-want)) > 1e-5 {
			t.Errorf("Index %d: expected %f, got %f", i, want, v)
		}
	}
}

func TestLayerNorm_InvalidInput(t *testing.T) {
	ln := NewLayerNorm(8, DefaultNormEps)

	tests := []struct {
		name  string
		shape []int
	}{
		{"0D tensor", []int{}},
		{"wrong embedding dim", []int{2, 3, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ln.Forward(tensor.NewTensor(tt.shape)); !errors.Is(err, tensor.ErrShape) {
				t.Errorf("Expected ErrShape, got %v", err)
			}
		})
	}
}

// TestLayerNorm_Parameters checks that the enumeration hands out the live
// scale and shift tensors, in that order.
func TestLayerNorm_Parameters(t *testing.T) {
	ln := NewLayerNorm(8, DefaultNormEps)

	params := ln.Parameters()
	if len(params) != 2 {
		t.Fatalf("Expected 2 parameters, got %d", len(params))
	}
	if params[0] != ln.Scale || params[1] != ln.Shift {
		t.Error("Expected Parameters() to return Scale then Shift")
	}

	Fill(params[1], 0.5)
	out, err := ln.Forward(tensor.NewTensor([]int{1, 1, 8}))
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	for d := 0; d < 8; d++ {
		if v := out.Get(0, 0, d); v != 0.5 {
			t.Errorf("dim %d: expected shift 0.5 on a constant row, got %f", d, v)
		}
	}
}

// TestLayerNorm_PerPosition checks that each position is normalized on its own:
// scaling one position must not change another position's output.
func TestLayerNorm_PerPosition(t *testing.T) {
	embDim := 3
	ln := NewLayerNorm(embDim, DefaultNormEps)

	input, _ := tensor.FromSlice([]float32{
		1, 2, 3,
		10, 20, 40,
	}, []int{1, 2, embDim})
	scaled := input.Clone()
	for d := 0; d < embDim; d++ {
		scaled.Set(scaled.Get(0, 1, d)*100, 0, 1, d)
	}

	a, err := ln.Forward(input)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}
	b, err := ln.Forward(scaled)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	for d := 0; d < embDim; d++ {
		if a.Get(0, 0, d) != b.Get(0, 0, d) {
			t.Errorf("Position 0 changed at dim %d: %v vs %v", d, a.Get(0, 0, d), b.Get(0, 0, d))
		}
		if math.Abs(float64(a.Get(0, 1, d)-b.Get(0, 1, d))) > 1e-4 {
			t.Errorf("Normalization should be scale invariant at dim %d: %v vs %v", d, a.Get(0, 1, d), b.Get(0, 1, d))
		}
	}
}
