package layer

import (
	"math"

	"captioning/pkg/tensor"
)

// DefaultNormEps is the epsilon added to the variance before normalizing.
const DefaultNormEps = 1e-5

// LayerNorm implements layer normalization with learnable scale and shift.
//
// LayerNorm normalizes each position across the last (embedding) dimension
// only, never across batch or sequence, and then applies the learned scale
// (gamma) and shift (beta).
//
// Formula:
//
//	mean = mean(x, dim=-1)
//	var = var(x, dim=-1)  (biased)
//	output = (x - mean) / sqrt(var + eps) * scale + shift
type LayerNorm struct {
	Scale *tensor.Tensor // (emb_dim,) - gamma parameter
	Shift *tensor.Tensor // (emb_dim,) - beta parameter
	Eps   float32        // Small constant for numerical stability
}

// NewLayerNorm creates a new LayerNorm layer with scale=1 and shift=0.
func NewLayerNorm(embDim int, eps float32) *LayerNorm {
	return &LayerNorm{
		Scale: tensor.Full([]int{embDim}, 1),
		Shift: tensor.NewTensor([]int{embDim}),
		Eps:   eps,
	}
}

// Forward applies layer normalization to the input.
//
// Input shape: (batch, seq, emb_dim) or any shape where last dim is emb_dim
// Output shape: same as input
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) == 0 {
		return nil, tensor.ShapeErrorf("cannot apply LayerNorm to 0D tensor")
	}

	sliceSize := x.Shape[len(x.Shape)-1]
	if sliceSize != len(ln.Scale.Data) {
		return nil, tensor.ShapeErrorf("input last dimension %d doesn't match LayerNorm dimension %d",
			sliceSize, len(ln.Scale.Data))
	}

	result := tensor.NewTensor(x.Shape)

	for offset := 0; offset < len(x.Data); offset += sliceSize {
		row := x.Data[offset : offset+sliceSize]

		mean := float32(0)
		for _, v := range row {
			mean += v
		}
		mean /= float32(sliceSize)

		variance := float32(0)
		for _, v := range row {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float32(sliceSize)

		invStd := float32(1.0 / math.Sqrt(float64(variance+ln.Eps)))

		out := result.Data[offset : offset+sliceSize]
		for i, v := range row {
			out[i] = (v-mean)*invStd*ln.Scale.Data[i] + ln.Shift.Data[i]
		}
	}

	return result, nil
}

// Parameters returns the scale and shift tensors.
func (ln *LayerNorm) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{ln.Scale, ln.Shift}
}
