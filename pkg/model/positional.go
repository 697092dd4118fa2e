package model

import (
	"github.com/pkg/errors"

	"captioning/pkg/tensor"
)

// PositionalEncoding adds a learned vector per position to a sequence.
type PositionalEncoding struct {
	Table   *tensor.Tensor // (max_len, emb_dim)
	Dropout float32
}

// NewPositionalEncoding creates a zero-initialized table for maxLen positions.
func NewPositionalEncoding(maxLen, embDim int, dropout float32) *PositionalEncoding {
	return &PositionalEncoding{
		Table:   tensor.NewTensor([]int{maxLen, embDim}),
		Dropout: dropout,
	}
}

// MaxLen returns the number of positions the table covers.
func (p *PositionalEncoding) MaxLen() int { return p.Table.Shape[0] }

// Forward computes Dropout(x + Table[0:S]).
//
// Input shape: (batch, S, emb_dim) with S <= MaxLen()
// Output shape: (batch, S, emb_dim)
func (p *PositionalEncoding) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if len(x.Shape) != 3 {
		return nil, tensor.ShapeErrorf("expected 3D input (batch, seq, dim), got shape %v", x.Shape)
	}
	seqLen, embDim := x.Shape[1], x.Shape[2]
	if seqLen > p.MaxLen() {
		return nil, tensor.ShapeErrorf("sequence length %d exceeds max length %d", seqLen, p.MaxLen())
	}
	if embDim != p.Table.Shape[1] {
		return nil, tensor.ShapeErrorf("input dim %d does not match positional dim %d", embDim, p.Table.Shape[1])
	}

	positions, err := p.Table.SliceN([]int{0, 0}, []int{seqLen, embDim})
	if err != nil {
		return nil, errors.Wrap(err, "failed to slice positional table")
	}

	// (batch, S, D) + (S, D) broadcasts over the batch
	out, err := tensor.Add(x, positions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to add positional encoding")
	}
	return out.Dropout(p.Dropout, training), nil
}
