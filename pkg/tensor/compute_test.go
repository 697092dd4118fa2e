package tensor

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

// TestMatmul tests matrix multiplication
func TestMatmul(t *testing.T) {
	tests := []struct {
		name          string
		aShape        []int
		bShape        []int
		aData         []float32
		bData         []float32
		expectedData  []float32
		expectedShape []int
		errString     string
	}{
		{
			name:          "2D matmul",
			aShape:        []int{2, 2},
			bShape:        []int{2, 2},
			aData:         []float32{1, 2, 3, 4},
			bData:         []float32{5, 6, 7, 8},
			expectedData:  []float32{19, 22, 43, 50},
			expectedShape: []int{2, 2},
		},
		{
			name:          "rectangular matmul",
			aShape:        []int{2, 3},
			bShape:        []int{3, 2},
			aData:         []float32{1, 2, 3, 4, 5, 6},
			bData:         []float32{7, 8, 9, 10, 11, 12},
			expectedData:  []float32{58, 64, 139, 154},
			expectedShape: []int{2, 2},
		},
		{
			name:          "3D by shared 2D",
			aShape:        []int{2, 1, 2},
			bShape:        []int{2, 3},
			aData:         []float32{1, 0, 0, 1},
			bData:         []float32{1, 2, 3, 4, 5, 6},
			expectedData:  []float32{1, 2, 3, 4, 5, 6},
			expectedShape: []int{2, 1, 3},
		},
		{
			name:          "batched matmul",
			aShape:        []int{2, 2, 2},
			bShape:        []int{2, 2, 2},
			aData:         []float32{1, 2, 3, 4, 5, 6, 7, 8},
			bData:         []float32{1, 0, 0, 1, 0, 1, 1, 0},
			expectedData:  []float32{1, 2, 3, 4, 6, 5, 8, 7},
			expectedShape: []int{2, 2, 2},
		},
		{
			name:      "incompatible shapes",
			aShape:    []int{2, 3},
			bShape:    []int{2, 3},
			aData:     []float32{1, 2, 3, 4, 5, 6},
			bData:     []float32{1, 2, 3, 4, 5, 6},
			errString: "inner dimensions 3 and 2 don't match",
		},
		{
			name:      "mismatched batch",
			aShape:    []int{2, 1, 2},
			bShape:    []int{3, 2, 1},
			aData:     []float32{1, 2, 3, 4},
			bData:     []float32{1, 2, 3, 4, 5, 6},
			errString: "incompatible batch dimensions",
		},
		{
			name:      "1D tensor",
			aShape:    []int{4},
			bShape:    []int{4},
			aData:     []float32{1, 2, 3, 4},
			bData:     []float32{1, 2, 3, 4},
			errString: "requires at least 2D tensors",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _ := FromSlice(tt.aData, tt.aShape)
			b, _ := FromSlice(tt.bData, tt.bShape)
			result, err := Matmul(a, b)

			if tt.errString != "" {
				if err == nil {
					t.Fatal("Expected error, got nil")
				}
				if !errors.Is(err, ErrShape) {
					t.Errorf("Expected ErrShape, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.errString) {
					t.Errorf("Expected error containing %q, got %q", tt.errString, err.Error())
				}
				return
			}

			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if !result.ShapeEquals(tt.expectedShape) {
				t.Fatalf("Expected shape %v, got %v", tt.expectedShape, result.Shape)
			}
			for i, v := range result.Data {
				if !floatEquals(v, tt.expectedData[i], 1e-5) {
					t.Errorf("Data mismatch at index %d: expected %f, got %f", i, tt.expectedData[i], v)
				}
			}
		})
	}
}

// TestMatmulTransposed checks a @ b^T against an explicit transpose.
func TestMatmulTransposed(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	a := randomTensor(rng, []int{2, 3, 4, 5})
	b := randomTensor(rng, []int{2, 3, 6, 5})

	got, err := DefaultCompute.MatmulTransposed(a, b)
	if err != nil {
		t.Fatalf("MatmulTransposed failed: %v", err)
	}

	bT, err := b.Transpose(2, 3)
	if err != nil {
		t.Fatalf("Transpose failed: %v", err)
	}
	want, err := Matmul(a, bT)
	if err != nil {
		t.Fatalf("Matmul failed: %v", err)
	}

	if !got.ShapeEquals([]int{2, 3, 4, 6}) {
		t.Fatalf("Expected shape [2 3 4 6], got %v", got.Shape)
	}
	if !got.Equals(want, 1e-5) {
		t.Error("MatmulTransposed does not match Matmul with explicit transpose")
	}
}

// TestCompute_WorkerCountInvariant checks that parallel execution gives the
// same result as serial execution.
func TestCompute_WorkerCountInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	a := randomTensor(rng, []int{8, 5, 4})
	b := randomTensor(rng, []int{8, 4, 3})

	serial, err := (&Compute{Workers: 1}).Matmul(a, b)
	if err != nil {
		t.Fatalf("serial Matmul failed: %v", err)
	}

	for _, workers := range []int{2, 3, 16} {
		parallel, err := (&Compute{Workers: workers}).Matmul(a, b)
		if err != nil {
			t.Fatalf("Matmul with %d workers failed: %v", workers, err)
		}
		if !parallel.Equals(serial, 0) {
			t.Errorf("Result with %d workers differs from serial result", workers)
		}
	}
}

func BenchmarkMatmulBatched(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	x := randomTensor(rng, []int{16, 64, 64})
	y := randomTensor(rng, []int{16, 64, 64})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Matmul(x, y); err != nil {
			b.Fatal(err)
		}
	}
}

func randomTensor(rng *rand.Rand, shape []int) *Tensor {
	t := NewTensor(shape)
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64())
	}
	return t
}
