package model

import (
	"testing"

	"github.com/pkg/errors"

	"captioning/pkg/tensor"
)

func TestPositionalEncoding_Forward(t *testing.T) {
	pe := NewPositionalEncoding(4, 2, 0.1)
	for i := range pe.Table.Data {
		pe.Table.Data[i] = float32(i)
	}

	x := tensor.Full([]int{2, 3, 2}, 1)
	out, err := pe.Forward(x, false)
	if err != nil {
		t.Fatalf("Forward failed: %v", err)
	}

	if !out.ShapeEquals([]int{2, 3, 2}) {
		t.Fatalf("Expected shape [2 3 2], got %v", out.Shape)
	}
	for b := 0; b < 2; b++ {
		for s := 0; s < 3; s++ {
			for d := 0; d < 2; d++ {
				want := 1 + float32(s*2+d)
				if got := out.Get(b, s, d); got != want {
					t.Errorf("(%d,%d,%d): expected %f, got %f", b, s, d, want, got)
				}
			}
		}
	}
}

func TestPositionalEncoding_FullLength(t *testing.T) {
	pe := NewPositionalEncoding(3, 4, 0)
	if _, err := pe.Forward(tensor.NewTensor([]int{1, 3, 4}), false); err != nil {
		t.Errorf("S == max_len should succeed: %v", err)
	}
}

func TestPositionalEncoding_Errors(t *testing.T) {
	pe := NewPositionalEncoding(3, 4, 0)

	tests := []struct {
		name  string
		shape []int
	}{
		{"too long", []int{1, 4, 4}},
		{"wrong dim", []int{1, 2, 5}},
		{"2D input", []int{2, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := pe.Forward(tensor.NewTensor(tt.shape), false); !errors.Is(err, tensor.ErrShape) {
				t.Errorf("Expected ErrShape, got %v", err)
			}
		})
	}
}
