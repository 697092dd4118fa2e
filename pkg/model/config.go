// Package model implements the transformer caption decoder.
//
// The decoder conditions on one precomputed image feature vector per sample
// and produces per-position vocabulary scores:
//   - Token embeddings with the NULL token as padding row
//   - Learned positional encoding
//   - A stack of post-norm decoder layers (self-attention, cross-attention, feed-forward)
//   - A linear projection to vocabulary scores
//
// Sample decodes greedily, running the full forward pass at every step.
package model

import "captioning/pkg/tensor"

// Config holds the decoder hyperparameters.
type Config struct {
	// InputDim is the width of the image feature vector
	InputDim int

	// EmbedDim is the model dimension D
	EmbedDim int

	// NumHeads is the number of attention heads; it must divide EmbedDim
	NumHeads int

	// NumLayers is the number of decoder layers
	NumLayers int

	// MaxLength is the capacity of the positional encoding table
	MaxLength int

	// FeedForwardDim is the hidden width of the position-wise MLP
	FeedForwardDim int

	// Dropout is applied after embeddings, attention weights and every residual branch
	Dropout float32

	// Seed drives weight initialization
	Seed int64
}

// DefaultConfig returns the standard captioning configuration for the given
// feature and embedding widths.
func DefaultConfig(inputDim, embedDim int) Config {
	return Config{
		InputDim:       inputDim,
		EmbedDim:       embedDim,
		NumHeads:       4,
		NumLayers:      2,
		MaxLength:      50,
		FeedForwardDim: 2048,
		Dropout:        0.1,
	}
}

// Validate checks that the configuration describes a buildable decoder.
func (c Config) Validate() error {
	switch {
	case c.InputDim <= 0:
		return configErrorf("input_dim must be positive, got %d", c.InputDim)
	case c.EmbedDim <= 0:
		return configErrorf("embed_dim must be positive, got %d", c.EmbedDim)
	case c.NumHeads <= 0:
		return configErrorf("num_heads must be positive, got %d", c.NumHeads)
	case c.NumLayers <= 0:
		return configErrorf("num_layers must be positive, got %d", c.NumLayers)
	case c.MaxLength <= 0:
		return configErrorf("max_length must be positive, got %d", c.MaxLength)
	case c.FeedForwardDim <= 0:
		return configErrorf("feed_forward_dim must be positive, got %d", c.FeedForwardDim)
	case c.Dropout < 0 || c.Dropout >= 1:
		return configErrorf("dropout must be in [0, 1), got %g", c.Dropout)
	}
	if c.EmbedDim%c.NumHeads != 0 {
		return tensor.ShapeErrorf("embed_dim (%d) must be divisible by num_heads (%d)", c.EmbedDim, c.NumHeads)
	}
	return nil
}

// HeadDim returns the dimension per attention head.
func (c Config) HeadDim() int {
	return c.EmbedDim / c.NumHeads
}
