package layer

import (
	"github.com/pkg/errors"

	"captioning/pkg/tensor"
)

// FeedForward implements the position-wise MLP of a decoder layer.
//
// Architecture:
//  1. FC1: (batch, seq, emb_dim) -> (batch, seq, hidden_dim)
//  2. ReLU
//  3. Dropout (training only)
//  4. FC2: (batch, seq, hidden_dim) -> (batch, seq, emb_dim)
//
// Every position is transformed independently.
type FeedForward struct {
	FC1     *Linear
	FC2     *Linear
	Dropout float32
}

// NewFeedForward creates a feed-forward network emb_dim -> hidden_dim -> emb_dim.
func NewFeedForward(embDim, hiddenDim int, dropout float32, compute *tensor.Compute) *FeedForward {
	return &FeedForward{
		FC1:     NewLinear(embDim, hiddenDim, compute),
		FC2:     NewLinear(hiddenDim, embDim, compute),
		Dropout: dropout,
	}
}

// Forward computes the feed-forward transformation.
//
// Input shape: (batch, seq, emb_dim)
// Output shape: (batch, seq, emb_dim)
func (ff *FeedForward) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	hidden, err := ff.FC1.Forward(x)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute FC1 projection")
	}

	hidden = hidden.ReLU().Dropout(ff.Dropout, training)

	output, err := ff.FC2.Forward(hidden)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute FC2 projection")
	}

	return output, nil
}

// Parameters returns the weights and biases of both projections.
func (ff *FeedForward) Parameters() []*tensor.Tensor {
	return append(ff.FC1.Parameters(), ff.FC2.Parameters()...)
}
