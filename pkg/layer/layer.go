// Package layer provides the weight-owning building blocks of the caption
// decoder: dense projections, embedding tables, layer normalization and the
// position-wise feed-forward network.
//
// Every layer owns its weights exclusively. Weights are never modified by a
// forward pass, so one layer may serve concurrent callers.
package layer

import (
	"math/rand"

	"captioning/pkg/tensor"
)

// NormalInit fills t with samples from N(0, std^2).
func NormalInit(t *tensor.Tensor, std float32, rng *rand.Rand) {
	for i := range t.Data {
		t.Data[i] = float32(rng.NormFloat64()) * std
	}
}

// Fill sets every element of t to value.
func Fill(t *tensor.Tensor, value float32) {
	for i := range t.Data {
		t.Data[i] = value
	}
}

// Zero sets every element of t to 0.
func Zero(t *tensor.Tensor) {
	Fill(t, 0)
}
