package layer

import (
	"fmt"

	"captioning/pkg/tensor"
)

// Embedding implements a token embedding lookup table.
//
// PaddingIdx names the row used for padding tokens. The row takes part in
// lookups like any other; callers keep it at zero by convention.
type Embedding struct {
	Weight     *tensor.Tensor // (num_embeddings, embed_dim)
	PaddingIdx int            // -1 when there is no padding row
}

// NewEmbedding creates a zero-initialized embedding table.
func NewEmbedding(numEmbeddings, embedDim, paddingIdx int) *Embedding {
	if numEmbeddings <= 0 || embedDim <= 0 {
		panic(fmt.Sprintf("embedding dimensions must be positive, got (%d, %d)", numEmbeddings, embedDim))
	}
	if paddingIdx >= numEmbeddings {
		panic(fmt.Sprintf("padding index %d out of range for %d embeddings", paddingIdx, numEmbeddings))
	}
	return &Embedding{
		Weight:     tensor.NewTensor([]int{numEmbeddings, embedDim}),
		PaddingIdx: paddingIdx,
	}
}

// NumEmbeddings returns the number of rows in the table.
func (e *Embedding) NumEmbeddings() int { return e.Weight.Shape[0] }

// EmbedDim returns the width of each row.
func (e *Embedding) EmbedDim() int { return e.Weight.Shape[1] }

// Forward looks up one row per id.
//
// Input: ids, one row of length seq per batch element; all rows must have the same length
// Output shape: (batch, seq, embed_dim)
func (e *Embedding) Forward(ids [][]int) (*tensor.Tensor, error) {
	batchSize := len(ids)
	if batchSize == 0 {
		return nil, tensor.ShapeErrorf("embedding lookup requires at least one sequence")
	}
	seqLen := len(ids[0])
	embDim := e.EmbedDim()
	vocabSize := e.NumEmbeddings()

	output := tensor.NewTensor([]int{batchSize, seqLen, embDim})

	for b, row := range ids {
		if len(row) != seqLen {
			return nil, tensor.ShapeErrorf("sequence %d has length %d, expected %d", b, len(row), seqLen)
		}
		for s, tokenID := range row {
			if tokenID < 0 || tokenID >= vocabSize {
				return nil, tensor.RangeErrorf("invalid token ID %d at position (%d, %d), vocab size is %d",
					tokenID, b, s, vocabSize)
			}

			srcOffset := tokenID * embDim
			dstOffset := (b*seqLen + s) * embDim
			copy(output.Data[dstOffset:dstOffset+embDim], e.Weight.Data[srcOffset:srcOffset+embDim])
		}
	}

	return output, nil
}

// ZeroPaddingRow clears the padding row, if any.
func (e *Embedding) ZeroPaddingRow() {
	if e.PaddingIdx < 0 {
		return
	}
	embDim := e.EmbedDim()
	row := e.Weight.Data[e.PaddingIdx*embDim : (e.PaddingIdx+1)*embDim]
	for i := range row {
		row[i] = 0
	}
}
