// Package attention implements the attention layers of the caption decoder
// and the residual blocks built from them.
//
// This package provides:
//   - AttentionLayer: single-head scaled dot-product attention
//   - MultiHeadAttentionLayer: attention split across heads with an output projection
//   - SelfAttentionBlock, CrossAttentionBlock, FeedForwardBlock: residual + LayerNorm wrappers
//   - DecoderLayer: self-attention, cross-attention and feed-forward blocks in that order
//
// Masks are multiplicative (1 = may attend, 0 = may not) and are converted
// to additive form before the softmax.
package attention

import (
	"math"

	"github.com/pkg/errors"

	"captioning/pkg/layer"
	"captioning/pkg/tensor"
)

// MaskedLogit is the additive bias applied to disallowed positions.
const MaskedLogit = -1e9

// AttentionLayer implements single-head scaled dot-product attention.
//
//	Y = dropout(softmax((Q K^T) / sqrt(D) + M)) V
//
// Query, key and value each pass through their own D -> D projection. There
// is no output projection.
type AttentionLayer struct {
	EmbedDim int
	Dropout  float32

	QueryProj *layer.Linear
	KeyProj   *layer.Linear
	ValueProj *layer.Linear

	compute *tensor.Compute
}

// NewAttentionLayer creates a single-head attention layer with zero weights.
func NewAttentionLayer(embedDim int, dropout float32, compute *tensor.Compute) *AttentionLayer {
	if compute == nil {
		compute = tensor.DefaultCompute
	}
	return &AttentionLayer{
		EmbedDim:  embedDim,
		Dropout:   dropout,
		QueryProj: layer.NewLinear(embedDim, embedDim, compute),
		KeyProj:   layer.NewLinear(embedDim, embedDim, compute),
		ValueProj: layer.NewLinear(embedDim, embedDim, compute),
		compute:   compute,
	}
}

// Forward computes attention of query over key/value.
//
// Input shapes:
//   - query: (batch, S, D)
//   - key, value: (batch, T, D), identical shapes
//   - mask: optional multiplicative mask broadcastable to (S, T), or nil
//
// Output shape: (batch, S, D)
func (a *AttentionLayer) Forward(query, key, value, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if err := validateInputs(query, key, value, a.EmbedDim); err != nil {
		return nil, err
	}
	N, S, T := query.Shape[0], query.Shape[1], key.Shape[1]

	q, k, v, err := project(query, key, value, a.QueryProj, a.KeyProj, a.ValueProj)
	if err != nil {
		return nil, err
	}

	// scores: (batch, S, D) @ (batch, T, D)^T -> (batch, S, T)
	scores, err := a.compute.MatmulTransposed(q, k)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute attention scores")
	}
	if !scores.ShapeEquals([]int{N, S, T}) {
		return nil, tensor.ShapeErrorf("attention scores have shape %v, expected [%d %d %d]", scores.Shape, N, S, T)
	}
	scores = scores.Scale(float32(1.0 / math.Sqrt(float64(a.EmbedDim))))

	weights, err := attentionWeights(scores, mask, a.Dropout, training)
	if err != nil {
		return nil, err
	}

	// weights: (batch, S, T) @ V: (batch, T, D) -> (batch, S, D)
	output, err := a.compute.Matmul(weights, v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply attention to value")
	}

	return output, nil
}

// Linears returns the projections owned by the layer.
func (a *AttentionLayer) Linears() []*layer.Linear {
	return []*layer.Linear{a.QueryProj, a.KeyProj, a.ValueProj}
}

// AdditiveMask converts a multiplicative 0/1 mask into additive form:
// 1 maps to 0 and 0 maps to MaskedLogit, i.e. (1 - mask) * -1e9.
func AdditiveMask(mask *tensor.Tensor) *tensor.Tensor {
	additive := tensor.NewTensor(mask.Shape)
	for i, m := range mask.Data {
		additive.Data[i] = (1 - m) * MaskedLogit
	}
	return additive
}

// attentionWeights masks, normalizes over the key axis and applies dropout.
func attentionWeights(scores, mask *tensor.Tensor, dropout float32, training bool) (*tensor.Tensor, error) {
	if mask != nil {
		if len(mask.Shape) > len(scores.Shape) {
			return nil, tensor.ShapeErrorf("mask of shape %v has more dimensions than scores %v", mask.Shape, scores.Shape)
		}
		var err error
		scores, err = tensor.Add(scores, AdditiveMask(mask))
		if err != nil {
			return nil, errors.Wrap(err, "failed to apply attention mask")
		}
	}

	weights, err := tensor.SoftmaxLast(scores)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply softmax")
	}

	return weights.Dropout(dropout, training), nil
}

// project applies the query, key and value projections.
func project(query, key, value *tensor.Tensor, qProj, kProj, vProj *layer.Linear) (q, k, v *tensor.Tensor, err error) {
	if q, err = qProj.Forward(query); err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to compute query projection")
	}
	if k, err = kProj.Forward(key); err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to compute key projection")
	}
	if v, err = vProj.Forward(value); err != nil {
		return nil, nil, nil, errors.Wrap(err, "failed to compute value projection")
	}
	return q, k, v, nil
}

// validateInputs checks the (N,S,D) / (N,T,D) contract shared by both layers.
func validateInputs(query, key, value *tensor.Tensor, embedDim int) error {
	if len(query.Shape) != 3 {
		return tensor.ShapeErrorf("expected 3D query (batch, seq, dim), got shape %v", query.Shape)
	}
	if !key.ShapeEquals(value.Shape) {
		return tensor.ShapeErrorf("key shape %v does not match value shape %v", key.Shape, value.Shape)
	}
	if len(key.Shape) != 3 {
		return tensor.ShapeErrorf("expected 3D key/value (batch, seq, dim), got shape %v", key.Shape)
	}
	if query.Shape[0] != key.Shape[0] {
		return tensor.ShapeErrorf("query batch %d does not match key batch %d", query.Shape[0], key.Shape[0])
	}
	if query.Shape[2] != embedDim || key.Shape[2] != embedDim {
		return tensor.ShapeErrorf("embedding dimension mismatch: query %v, key %v, layer %d",
			query.Shape, key.Shape, embedDim)
	}
	return nil
}
