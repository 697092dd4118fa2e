package model

import (
	"math/rand"

	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"captioning/pkg/layer"
	"captioning/pkg/model/attention"
	"captioning/pkg/tensor"
	"captioning/pkg/vocab"
)

// InitStd is the standard deviation of the normal initialization applied to
// every projection and embedding weight.
const InitStd = 0.02

// TransformerDecoder generates captions conditioned on image features.
//
// Architecture:
//  1. Caption embedding: lookup table (vocab_size, emb_dim), NULL is the padding row
//  2. Positional encoding: learned (max_length, emb_dim)
//  3. Feature embedding: linear (input_dim, emb_dim), used as a length-1 memory
//  4. Decoder layers: stack of NumLayers layers
//  5. Score projection: linear (emb_dim, vocab_size)
type TransformerDecoder struct {
	Config           Config
	Vocab            *vocab.Vocabulary
	CaptionEmbedding *layer.Embedding
	Positional       *PositionalEncoding
	FeatureEmbedding *layer.Linear
	Layers           []*attention.DecoderLayer
	ScoreProjection  *layer.Linear
	Training         bool // If false, dropout is disabled
}

// New creates a decoder with weights initialized from cfg.Seed. A nil
// compute selects tensor.DefaultCompute.
func New(cfg Config, vocabulary *vocab.Vocabulary, compute *tensor.Compute) (*TransformerDecoder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid config")
	}
	if vocabulary == nil {
		return nil, configErrorf("vocabulary is required")
	}
	if compute == nil {
		compute = tensor.DefaultCompute
	}

	vocabSize := vocabulary.Size()
	m := &TransformerDecoder{
		Config:           cfg,
		Vocab:            vocabulary,
		CaptionEmbedding: layer.NewEmbedding(vocabSize, cfg.EmbedDim, vocabulary.NullID()),
		Positional:       NewPositionalEncoding(cfg.MaxLength, cfg.EmbedDim, cfg.Dropout),
		FeatureEmbedding: layer.NewLinear(cfg.InputDim, cfg.EmbedDim, compute),
		Layers:           make([]*attention.DecoderLayer, cfg.NumLayers),
		ScoreProjection:  layer.NewLinear(cfg.EmbedDim, vocabSize, compute),
		Training:         true,
	}
	for i := range m.Layers {
		m.Layers[i] = attention.NewDecoderLayer(cfg.EmbedDim, cfg.NumHeads, cfg.FeedForwardDim, cfg.Dropout, compute)
	}

	m.initializeWeights(rand.New(rand.NewSource(cfg.Seed)))

	klog.V(1).InfoS("Created caption decoder",
		"vocabSize", vocabSize, "inputDim", cfg.InputDim, "embedDim", cfg.EmbedDim,
		"numHeads", cfg.NumHeads, "numLayers", cfg.NumLayers, "maxLength", cfg.MaxLength,
		"parameters", m.NumParameters())
	return m, nil
}

// SetTraining sets the training mode. When training=false, dropout is disabled.
func (m *TransformerDecoder) SetTraining(training bool) {
	m.Training = training
}

// Forward scores every caption position against the vocabulary.
//
// Inputs:
//   - features: (batch, input_dim)
//   - captions: batch rows of T token ids in [0, vocab_size), 1 <= T <= MaxLength
//
// Output shape: (batch, T, vocab_size), unnormalized scores
func (m *TransformerDecoder) Forward(features *tensor.Tensor, captions [][]int) (*tensor.Tensor, error) {
	return m.forward(features, captions, m.Training)
}

func (m *TransformerDecoder) forward(features *tensor.Tensor, captions [][]int, training bool) (*tensor.Tensor, error) {
	if len(features.Shape) != 2 || features.Shape[1] != m.Config.InputDim {
		return nil, tensor.ShapeErrorf("expected features of shape (batch, %d), got %v", m.Config.InputDim, features.Shape)
	}
	batchSize := features.Shape[0]
	if len(captions) != batchSize {
		return nil, tensor.ShapeErrorf("got %d captions for %d feature vectors", len(captions), batchSize)
	}

	// Step 1: Caption embeddings (batch, T, D)
	x, err := m.CaptionEmbedding.Forward(captions)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed captions")
	}
	seqLen := x.Shape[1]
	if seqLen == 0 {
		return nil, tensor.ShapeErrorf("captions must have at least one token")
	}

	// Step 2: Positional encoding
	x, err = m.Positional.Forward(x, training)
	if err != nil {
		return nil, errors.Wrap(err, "failed to apply positional encoding")
	}

	// Step 3: Feature memory (batch, input_dim) -> (batch, 1, D)
	memory, err := m.FeatureEmbedding.Forward(features)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed features")
	}
	memory, err = memory.View([]int{batchSize, 1, m.Config.EmbedDim})
	if err != nil {
		return nil, errors.Wrap(err, "failed to unsqueeze feature memory")
	}

	// Step 4: Causal mask for the current length
	mask := CausalMask(seqLen)

	// Step 5: Decoder layers
	for i, l := range m.Layers {
		x, err = l.Forward(x, memory, mask, training)
		if err != nil {
			return nil, errors.Wrapf(err, "failed in decoder layer %d", i)
		}
	}

	// Step 6: Vocabulary scores (batch, T, D) -> (batch, T, V)
	scores, err := m.ScoreProjection.Forward(x)
	if err != nil {
		return nil, errors.Wrap(err, "failed to compute vocabulary scores")
	}
	return scores, nil
}

// initializeWeights assigns every weight tensor once:
//   - Projection and embedding weights: N(0, 0.02^2)
//   - Biases: zeros
//   - LayerNorm scale: ones, shift: zeros
//   - The NULL embedding row: zeros
func (m *TransformerDecoder) initializeWeights(rng *rand.Rand) {
	layer.NormalInit(m.CaptionEmbedding.Weight, InitStd, rng)
	m.CaptionEmbedding.ZeroPaddingRow()
	layer.NormalInit(m.Positional.Table, InitStd, rng)

	for _, l := range m.linears() {
		layer.NormalInit(l.Weight, InitStd, rng)
		layer.Zero(l.Bias)
	}
	for _, dl := range m.Layers {
		for _, norm := range dl.Norms() {
			layer.Fill(norm.Scale, 1)
			layer.Zero(norm.Shift)
		}
	}
}

// linears lists every dense projection in a fixed order.
func (m *TransformerDecoder) linears() []*layer.Linear {
	linears := []*layer.Linear{m.FeatureEmbedding}
	for _, dl := range m.Layers {
		linears = append(linears, dl.Linears()...)
	}
	return append(linears, m.ScoreProjection)
}

// Parameters returns every weight tensor of the decoder.
func (m *TransformerDecoder) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{m.CaptionEmbedding.Weight, m.Positional.Table}
	for _, l := range m.linears() {
		params = append(params, l.Parameters()...)
	}
	for _, dl := range m.Layers {
		for _, norm := range dl.Norms() {
			params = append(params, norm.Parameters()...)
		}
	}
	return params
}

// NumParameters returns the total number of weights.
func (m *TransformerDecoder) NumParameters() int {
	total := 0
	for _, p := range m.Parameters() {
		total += p.Size()
	}
	return total
}
