package attention

import (
	"github.com/pkg/errors"

	"captioning/pkg/layer"
	"captioning/pkg/tensor"
)

// DecoderLayer composes the three blocks in fixed order:
// self-attention -> cross-attention -> feed-forward. It holds no state
// between calls.
type DecoderLayer struct {
	SelfAttn    *SelfAttentionBlock
	CrossAttn   *CrossAttentionBlock
	FeedForward *FeedForwardBlock
}

// NewDecoderLayer creates a decoder layer.
func NewDecoderLayer(embedDim, numHeads, ffDim int, dropout float32, compute *tensor.Compute) *DecoderLayer {
	return &DecoderLayer{
		SelfAttn:    NewSelfAttentionBlock(embedDim, numHeads, dropout, compute),
		CrossAttn:   NewCrossAttentionBlock(embedDim, numHeads, dropout, compute),
		FeedForward: NewFeedForwardBlock(embedDim, ffDim, dropout, compute),
	}
}

// Forward runs one decoder layer.
//
// Input shapes:
//   - seq: (batch, T, D), the evolving caption sequence
//   - memory: (batch, M, D), the conditioning features
//   - mask: causal mask (T, T)
//
// Output shape: (batch, T, D)
func (l *DecoderLayer) Forward(seq, memory, mask *tensor.Tensor, training bool) (*tensor.Tensor, error) {
	out, err := l.SelfAttn.Forward(seq, mask, training)
	if err != nil {
		return nil, errors.Wrap(err, "self-attention block")
	}

	out, err = l.CrossAttn.Forward(out, memory, training)
	if err != nil {
		return nil, errors.Wrap(err, "cross-attention block")
	}

	out, err = l.FeedForward.Forward(out, training)
	if err != nil {
		return nil, errors.Wrap(err, "feed-forward block")
	}

	return out, nil
}

// Linears returns every dense projection in the layer.
func (l *DecoderLayer) Linears() []*layer.Linear {
	linears := append(l.SelfAttn.Attn.Linears(), l.CrossAttn.Attn.Linears()...)
	return append(linears, l.FeedForward.FF.FC1, l.FeedForward.FF.FC2)
}

// Norms returns the layer's three LayerNorms.
func (l *DecoderLayer) Norms() []*layer.LayerNorm {
	return []*layer.LayerNorm{l.SelfAttn.Norm, l.CrossAttn.Norm, l.FeedForward.Norm}
}
