package layer

import (
	"fmt"

	"github.com/pkg/errors"

	"captioning/pkg/tensor"
)

// Linear implements a fully connected layer y = x @ Weight + Bias.
type Linear struct {
	Weight *tensor.Tensor // (in_features, out_features)
	Bias   *tensor.Tensor // (out_features,)

	compute *tensor.Compute
}

// NewLinear creates a linear layer with zero weights and bias. A nil compute
// selects tensor.DefaultCompute.
func NewLinear(inFeatures, outFeatures int, compute *tensor.Compute) *Linear {
	if inFeatures <= 0 || outFeatures <= 0 {
		panic(fmt.Sprintf("linear layer dimensions must be positive, got %d -> %d", inFeatures, outFeatures))
	}
	if compute == nil {
		compute = tensor.DefaultCompute
	}
	return &Linear{
		Weight:  tensor.NewTensor([]int{inFeatures, outFeatures}),
		Bias:    tensor.NewTensor([]int{outFeatures}),
		compute: compute,
	}
}

// InFeatures returns the input width.
func (l *Linear) InFeatures() int { return l.Weight.Shape[0] }

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int { return l.Weight.Shape[1] }

// Forward applies the projection to the last dimension.
//
// Input shape: (..., in_features)
// Output shape: (..., out_features)
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if len(x.Shape) < 2 {
		return nil, tensor.ShapeErrorf("linear layer expects at least 2D input, got shape %v", x.Shape)
	}
	if last := x.Shape[len(x.Shape)-1]; last != l.InFeatures() {
		return nil, tensor.ShapeErrorf("input dimension %d doesn't match linear input dimension %d",
			last, l.InFeatures())
	}

	out, err := l.compute.Matmul(x, l.Weight)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply linear weight")
	}

	width := l.OutFeatures()
	for off := 0; off < len(out.Data); off += width {
		row := out.Data[off : off+width]
		for i, b := range l.Bias.Data {
			row[i] += b
		}
	}
	return out, nil
}

// Parameters returns the weight and bias tensors.
func (l *Linear) Parameters() []*tensor.Tensor {
	return []*tensor.Tensor{l.Weight, l.Bias}
}
