package attention

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"captioning/pkg/layer"
	"captioning/pkg/tensor"
)

// MultiHeadAttentionLayer implements multi-head scaled dot-product attention.
//
// The projected query, key and value are split into NumHeads groups of
// HeadDim = EmbedDim / NumHeads features. Each head attends independently
// with logits scaled by 1/sqrt(HeadDim); the heads are concatenated and
// passed through HeadProj.
type MultiHeadAttentionLayer struct {
	EmbedDim int
	NumHeads int
	HeadDim  int
	Dropout  float32

	QueryProj *layer.Linear
	KeyProj   *layer.Linear
	ValueProj *layer.Linear
	HeadProj  *layer.Linear // output projection applied to the concatenated heads

	compute *tensor.Compute
}

// NewMultiHeadAttentionLayer creates a multi-head attention layer with zero
// weights. It panics if embedDim is not divisible by numHeads.
func NewMultiHeadAttentionLayer(embedDim, numHeads int, dropout float32, compute *tensor.Compute) *MultiHeadAttentionLayer {
	if numHeads <= 0 || embedDim%numHeads != 0 {
		panic(fmt.Sprintf("embed_dim (%d) must be divisible by num_heads (%d)", embedDim, numHeads))
	}
	if compute == nil {
		compute = tensor.DefaultCompute
	}

	return &MultiHeadAttentionLayer{
		EmbedDim:  embedDim,
		NumHeads:  numHeads,
		HeadDim:   embedDim / numHeads,
		Dropout:   dropout,
		QueryProj: layer.NewLinear(embedDim, embedDim, compute),
		KeyProj:   layer.NewLinear(embedDim, embedDim, compute),
		ValueProj: layer.NewLinear(embedDim, embedDim, compute),
		HeadProj:  layer.NewLinear(embedDim, embedDim, compute),
		compute:   compute,
	}
}

// Forward computes multi-head attention.
//
// Input shapes:
//   - query: (batch, S, D)
//   - key, value: (batch, T, D), identical shapes
//   - mask: optional multiplicative mask broadcastable to (S, T), or nil
//
// Output shape: (batch, S, D)
func (m *MultiHeadAttentionLayer) Forward(query, key, value, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	if err := validateInputs(query, key, value, m.EmbedDim); err != nil {
		return nil, err
	}
	N, S, T, H := query.Shape[0], query.Shape[1], key.Shape[1], m.NumHeads

	// Step 1: Project to Q, K, V: (batch, seq, D)
	q, k, v, err := project(query, key, value, m.QueryProj, m.KeyProj, m.ValueProj)
	if err != nil {
		return nil, err
	}

	// Step 2: Split heads: (batch, seq, D) -> (batch, seq, H, D/H) -> (batch, H, seq, D/H)
	q, err = m.splitHeads(q, N, S)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split query heads")
	}
	k, err = m.splitHeads(k, N, T)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split key heads")
	}
	v, err = m.splitHeads(v, N, T)
	if err != nil {
		return nil, errors.Wrap(err, "failed to split value heads")
	}

	// Step 3: Per-head logits: (batch, H, S, D/H) @ (batch, H, T, D/H)^T -> (batch, H, S, T)
	scores, err := m.compute.MatmulTransposed(q, k)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute attention scores")
	}
	if !scores.ShapeEquals([]int{N, H, S, T}) {
		return nil, tensor.ShapeErrorf("attention scores have shape %v, expected [%d %d %d %d]", scores.Shape, N, H, S, T)
	}

	// Scale by the per-head dimension
	scores = scores.Scale(float32(1.0 / math.Sqrt(float64(m.HeadDim))))

	// Step 4: Mask (broadcast over batch and heads), softmax over T, dropout
	weights, err := attentionWeights(scores, mask, m.Dropout, training)
	if err != nil {
		return nil, err
	}

	// Step 5: (batch, H, S, T) @ (batch, H, T, D/H) -> (batch, H, S, D/H)
	heads, err := m.compute.Matmul(weights, v)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply attention to value")
	}

	// Step 6: Merge heads: (batch, H, S, D/H) -> (batch, S, H, D/H) -> (batch, S, D)
	heads, err = heads.Transpose(1, 2)
	if err != nil {
		return nil, errors.Wrap(err, "failed to transpose attention output")
	}
	merged, err := heads.View([]int{N, S, m.EmbedDim})
	if err != nil {
		return nil, errors.Wrap(err, "failed to merge heads")
	}

	// Step 7: Output projection
	output, err := m.HeadProj.Forward(merged)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply output projection")
	}
	if !output.ShapeEquals([]int{N, S, m.EmbedDim}) {
		return nil, tensor.ShapeErrorf("attention output has shape %v, expected [%d %d %d]", output.Shape, N, S, m.EmbedDim)
	}

	return output, nil
}

// splitHeads reshapes (batch, seq, D) into (batch, H, seq, D/H).
func (m *MultiHeadAttentionLayer) splitHeads(x *tensor.Tensor, batch, seq int) (*tensor.Tensor, error) {
	split, err := x.View([]int{batch, seq, m.NumHeads, m.HeadDim})
	if err != nil {
		return nil, err
	}
	return split.Transpose(1, 2)
}

// Linears returns the projections owned by the layer.
func (m *MultiHeadAttentionLayer) Linears() []*layer.Linear {
	return []*layer.Linear{m.QueryProj, m.KeyProj, m.ValueProj, m.HeadProj}
}
