package model

import (
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"captioning/pkg/tensor"
)

// Sample generates captions with greedy decoding.
//
// Starting from a START token per sample, each step runs the full forward
// pass over the tokens chosen so far, takes the scores at the last position
// and appends the highest-scoring id (lowest id on ties). Generation always
// runs for maxLength steps; there is no early stop on the end token.
//
// Parameters:
//   - features: (batch, input_dim)
//   - maxLength: number of tokens to generate, 1 <= maxLength <= Config.MaxLength
//
// Returns batch rows of exactly maxLength ids. Dropout is disabled
// regardless of the Training flag.
func (m *TransformerDecoder) Sample(features *tensor.Tensor, maxLength int) ([][]int, error) {
	startID, ok := m.Vocab.StartID()
	if !ok {
		return nil, configErrorf("sampling requires a start token in the vocabulary")
	}
	if maxLength < 1 || maxLength > m.Config.MaxLength {
		return nil, tensor.ShapeErrorf("max length %d outside [1, %d]", maxLength, m.Config.MaxLength)
	}
	if len(features.Shape) != 2 {
		return nil, tensor.ShapeErrorf("expected 2D features (batch, input_dim), got shape %v", features.Shape)
	}
	batchSize := features.Shape[0]

	nullID := m.Vocab.NullID()
	captions := make([][]int, batchSize)
	partial := make([][]int, batchSize)
	for b := range captions {
		captions[b] = make([]int, maxLength)
		for t := range captions[b] {
			captions[b][t] = nullID
		}
		partial[b] = make([]int, 1, maxLength)
		partial[b][0] = startID
	}

	for t := 0; t < maxLength; t++ {
		// Step 1: Full forward pass over the partial captions: (batch, t+1, vocab_size)
		scores, err := m.forward(features, partial, false)
		if err != nil {
			return nil, errors.Wrapf(err, "forward pass failed at step %d", t)
		}

		// Step 2: Scores at the last position: (batch, vocab_size)
		last, err := extractLastPosition(scores)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to extract last position at step %d", t)
		}

		// Step 3: Greedy choice, written out and fed back
		next := argmax(last)
		recordStep(captions, partial, next, t)
		klog.V(3).InfoS("Sampled step", "step", t, "tokens", next)
	}

	klog.V(2).InfoS("Sampled captions", "batch", batchSize, "length", maxLength)
	return captions, nil
}

// recordStep writes step t's choices into captions and, unless t is the
// final step, appends them to the partial captions of the next forward pass.
// Partial rows never outgrow their maxLength capacity.
func recordStep(captions, partial [][]int, next []int, t int) {
	for b, id := range next {
		captions[b][t] = id
		if t+1 < len(captions[b]) {
			partial[b] = append(partial[b], id)
		}
	}
}

// extractLastPosition extracts the scores of the last caption position.
//
// Input shape: (batch, seq, vocab_size)
// Output shape: (batch, vocab_size)
func extractLastPosition(scores *tensor.Tensor) (*tensor.Tensor, error) {
	if len(scores.Shape) != 3 {
		return nil, tensor.ShapeErrorf("expected 3D scores (batch, seq, vocab_size), got shape %v", scores.Shape)
	}

	batchSize, seqLen, vocabSize := scores.Shape[0], scores.Shape[1], scores.Shape[2]

	result, err := scores.SliceN([]int{0, seqLen - 1, 0}, []int{batchSize, seqLen, vocabSize})
	if err != nil {
		return nil, err
	}

	// SliceN returns [batch, 1, vocab_size], squeeze to [batch, vocab_size]
	return result.View([]int{batchSize, vocabSize})
}

// argmax returns the index of the first maximum of each row of a
// (batch, vocab_size) tensor.
func argmax(scores *tensor.Tensor) []int {
	batchSize, vocabSize := scores.Shape[0], scores.Shape[1]
	ids := make([]int, batchSize)

	for b := 0; b < batchSize; b++ {
		row := scores.Data[b*vocabSize : (b+1)*vocabSize]
		maxIdx := 0
		for v := 1; v < vocabSize; v++ {
			if row[v] > row[maxIdx] {
				maxIdx = v
			}
		}
		ids[b] = maxIdx
	}
	return ids
}
