package attention

import (
	"github.com/pkg/errors"

	"captioning/pkg/layer"
	"captioning/pkg/tensor"
)

// Every block computes
//
//	output = Norm(input + Dropout(Transform(input, ...)))
//
// i.e. a residual connection around the dropout-regularized transform
// followed by LayerNorm over the embedding axis (post-norm).

// SelfAttentionBlock applies masked multi-head self-attention to the
// sequence (query = key = value = seq).
type SelfAttentionBlock struct {
	Attn    *MultiHeadAttentionLayer
	Norm    *layer.LayerNorm
	Dropout float32
}

// NewSelfAttentionBlock creates a self-attention block.
func NewSelfAttentionBlock(embedDim, numHeads int, dropout float32, compute *tensor.Compute) *SelfAttentionBlock {
	return &SelfAttentionBlock{
		Attn:    NewMultiHeadAttentionLayer(embedDim, numHeads, dropout, compute),
		Norm:    layer.NewLayerNorm(embedDim, layer.DefaultNormEps),
		Dropout: dropout,
	}
}

// Forward computes Norm(seq + Dropout(SelfAttn(seq, seq, seq, mask))).
//
// Input shapes:
//   - seq: (batch, T, D)
//   - mask: causal mask (T, T)
//
// Output shape: (batch, T, D)
func (b *SelfAttentionBlock) Forward(seq, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	attnOut, err := b.Attn.Forward(seq, seq, seq, mask, training)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute self-attention")
	}
	return residualNorm(seq, attnOut, b.Norm, b.Dropout, training)
}

// CrossAttentionBlock lets the caption sequence attend to the conditioning
// memory (query = seq, key = value = cond). No mask is applied.
type CrossAttentionBlock struct {
	Attn    *MultiHeadAttentionLayer
	Norm    *layer.LayerNorm
	Dropout float32
}

// NewCrossAttentionBlock creates a cross-attention block.
func NewCrossAttentionBlock(embedDim, numHeads int, dropout float32, compute *tensor.Compute) *CrossAttentionBlock {
	return &CrossAttentionBlock{
		Attn:    NewMultiHeadAttentionLayer(embedDim, numHeads, dropout, compute),
		Norm:    layer.NewLayerNorm(embedDim, layer.DefaultNormEps),
		Dropout: dropout,
	}
}

// Forward computes Norm(seq + Dropout(CrossAttn(seq, cond, cond))).
//
// Input shapes:
//   - seq: (batch, T, D)
//   - cond: (batch, M, D), M = 1 for a single image feature
//
// Output shape: (batch, T, D)
func (b *CrossAttentionBlock) Forward(seq, cond *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	attnOut, err := b.Attn.Forward(seq, cond, cond, nil, training)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute cross-attention")
	}
	return residualNorm(seq, attnOut, b.Norm, b.Dropout, training)
}

// FeedForwardBlock wraps the position-wise MLP.
type FeedForwardBlock struct {
	FF      *layer.FeedForward
	Norm    *layer.LayerNorm
	Dropout float32
}

// NewFeedForwardBlock creates a feed-forward block with hidden width ffDim.
func NewFeedForwardBlock(embedDim, ffDim int, dropout float32, compute *tensor.Compute) *FeedForwardBlock {
	return &FeedForwardBlock{
		FF:      layer.NewFeedForward(embedDim, ffDim, dropout, compute),
		Norm:    layer.NewLayerNorm(embedDim, layer.DefaultNormEps),
		Dropout: dropout,
	}
}

// Forward computes Norm(seq + Dropout(MLP(seq))).
func (b *FeedForwardBlock) Forward(seq *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	ffOut, err := b.FF.Forward(seq, training)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute feed-forward")
	}
	return residualNorm(seq, ffOut, b.Norm, b.Dropout, training)
}

// residualNorm computes norm(input + dropout(transformed)).
func residualNorm(input, transformed *tensor.Tensor, norm *layer.LayerNorm, dropout float32, training bool) (*tensor.Tensor, error) {
	if !transformed.ShapeEquals(input.Shape) {
		return nil, tensor.ShapeErrorf("transform output shape %v does not match input shape %v",
			transformed.Shape, input.Shape)
	}

	sum, err := tensor.Add(input, transformed.Dropout(dropout, training))
	if err != nil {
		return nil, errors.Wrap(err, "failed to add residual")
	}

	out, err := norm.Forward(sum)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply layer norm")
	}
	return out, nil
}
