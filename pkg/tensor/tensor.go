// Package tensor provides the dense float32 tensor used by the caption decoder.
//
// Tensors are row-major with a flat data slice. Sequence tensors use the
// layout (batch, seq, dim), per-head tensors (batch, heads, seq, head_dim)
// and masks (seq, seq).
package tensor

import (
	"fmt"
	"math"
	"strings"
)

// Tensor represents a multi-dimensional array of float32 values.
// It stores data in a flat slice with shape information for indexing.
type Tensor struct {
	Data    []float32 // Flattened data storage
	Shape   []int     // Dimensions (e.g., [batch, heads, seq, dim])
	Strides []int     // Precomputed strides for indexing
}

// NewTensor creates a new tensor with the given shape, initialized to zeros.
func NewTensor(shape []int) *Tensor {
	return &Tensor{
		Data:    make([]float32, numElements(shape)),
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}
}

// Full creates a tensor with every element set to value.
func Full(shape []int, value float32) *Tensor {
	t := NewTensor(shape)
	for i := range t.Data {
		t.Data[i] = value
	}
	return t
}

// FromSlice creates a tensor from existing data with the given shape.
// The data is copied. Returns ErrShape if data size doesn't match the shape.
func FromSlice(data []float32, shape []int) (*Tensor, error) {
	expectedSize := 1
	for _, dim := range shape {
		if dim < 0 {
			return nil, ShapeErrorf("invalid dimension %d in shape %v", dim, shape)
		}
		expectedSize *= dim
	}
	if len(data) != expectedSize {
		return nil, ShapeErrorf("data size %d does not match shape %v (expected %d elements)",
			len(data), shape, expectedSize)
	}

	dataCopy := make([]float32, len(data))
	copy(dataCopy, data)

	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(shape),
		Strides: computeStrides(shape),
	}, nil
}

// View returns a new tensor with a different shape but sharing the same underlying data.
func (t *Tensor) View(newShape []int) (*Tensor, error) {
	newSize := 1
	for _, dim := range newShape {
		if dim < 0 {
			return nil, ShapeErrorf("invalid dimension %d in shape %v", dim, newShape)
		}
		newSize *= dim
	}

	if newSize != len(t.Data) {
		return nil, ShapeErrorf("cannot view tensor of size %d as shape %v (total size %d)",
			len(t.Data), newShape, newSize)
	}

	return &Tensor{
		Data:    t.Data,
		Shape:   copyShape(newShape),
		Strides: computeStrides(newShape),
	}, nil
}

// Reshape returns a view with a different shape (same underlying data).
// It panics if the sizes differ.
func (t *Tensor) Reshape(newShape []int) *Tensor {
	result, err := t.View(newShape)
	if err != nil {
		panic(err)
	}
	return result
}

// Transpose exchanges two dimensions of the tensor and returns a contiguous copy.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	rank := len(t.Shape)
	if dim1 < 0 || dim1 >= rank || dim2 < 0 || dim2 >= rank {
		return nil, ShapeErrorf("invalid transpose dimensions %d and %d for tensor with %d dimensions",
			dim1, dim2, rank)
	}

	if dim1 == dim2 {
		return t.Clone(), nil
	}

	newShape := copyShape(t.Shape)
	newShape[dim1], newShape[dim2] = newShape[dim2], newShape[dim1]
	result := NewTensor(newShape)

	// Destination strides permuted back into source order, so walking the
	// source in row-major order gives the destination offset directly.
	dstStrides := copyShape(result.Strides)
	dstStrides[dim1], dstStrides[dim2] = dstStrides[dim2], dstStrides[dim1]

	indices := make([]int, rank)
	dstIdx := 0
	for srcIdx := range t.Data {
		result.Data[dstIdx] = t.Data[srcIdx]

		for d := rank - 1; d >= 0; d-- {
			indices[d]++
			dstIdx += dstStrides[d]
			if indices[d] < t.Shape[d] {
				break
			}
			dstIdx -= indices[d] * dstStrides[d]
			indices[d] = 0
		}
	}

	return result, nil
}

// Size returns the total number of elements in the tensor.
func (t *Tensor) Size() int {
	return numElements(t.Shape)
}

// FlatIndex converts multi-dimensional indices to a flat index.
func (t *Tensor) FlatIndex(indices []int) int {
	if len(indices) != len(t.Shape) {
		panic(fmt.Sprintf("indices length %d does not match shape dimensions %d",
			len(indices), len(t.Shape)))
	}

	idx := 0
	for i := 0; i < len(t.Shape); i++ {
		if indices[i] < 0 || indices[i] >= t.Shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d with size %d",
				indices[i], i, t.Shape[i]))
		}
		idx += indices[i] * t.Strides[i]
	}
	return idx
}

// Get retrieves a value at the specified indices.
func (t *Tensor) Get(indices ...int) float32 {
	return t.Data[t.FlatIndex(indices)]
}

// Set sets a value at the specified indices.
func (t *Tensor) Set(value float32, indices ...int) {
	t.Data[t.FlatIndex(indices)] = value
}

// Clone creates a deep copy of the tensor.
func (t *Tensor) Clone() *Tensor {
	dataCopy := make([]float32, len(t.Data))
	copy(dataCopy, t.Data)
	return &Tensor{
		Data:    dataCopy,
		Shape:   copyShape(t.Shape),
		Strides: copyShape(t.Strides),
	}
}

// ShapeEquals checks if the tensor has exactly the given shape.
func (t *Tensor) ShapeEquals(shape []int) bool {
	if len(t.Shape) != len(shape) {
		return false
	}
	for i := range t.Shape {
		if t.Shape[i] != shape[i] {
			return false
		}
	}
	return true
}

// Equals checks if two tensors have the same shape and approximately equal values.
func (t *Tensor) Equals(other *Tensor, tolerance float32) bool {
	if !t.ShapeEquals(other.Shape) {
		return false
	}
	for i := range t.Data {
		if math.Abs(float64(t.Data[i]-other.Data[i])) > float64(tolerance) {
			return false
		}
	}
	return true
}

// SliceN extracts a sub-tensor from the given ranges for all dimensions.
func (t *Tensor) SliceN(starts, ends []int) (*Tensor, error) {
	if len(starts) != len(t.Shape) || len(ends) != len(t.Shape) {
		return nil, ShapeErrorf("starts and ends must have same length as tensor dimensions (%d), got %d and %d",
			len(t.Shape), len(starts), len(ends))
	}

	newShape := make([]int, len(t.Shape))
	for i := 0; i < len(t.Shape); i++ {
		if starts[i] < 0 || starts[i] > t.Shape[i] {
			return nil, ShapeErrorf("invalid start index %d for dimension %d with size %d", starts[i], i, t.Shape[i])
		}
		if ends[i] < starts[i] || ends[i] > t.Shape[i] {
			return nil, ShapeErrorf("invalid end index %d for dimension %d (start=%d, size=%d)", ends[i], i, starts[i], t.Shape[i])
		}
		newShape[i] = ends[i] - starts[i]
	}

	result := NewTensor(newShape)
	if result.Size() == 0 {
		return result, nil
	}

	// Copy contiguous runs along the last dimension.
	last := len(t.Shape) - 1
	run := newShape[last]
	outer := result.Size() / run
	srcIndices := copyShape(starts)
	for o := 0; o < outer; o++ {
		srcOffset := 0
		for d := 0; d < len(t.Shape); d++ {
			srcOffset += srcIndices[d] * t.Strides[d]
		}
		copy(result.Data[o*run:(o+1)*run], t.Data[srcOffset:srcOffset+run])

		for d := last - 1; d >= 0; d-- {
			srcIndices[d]++
			if srcIndices[d] < ends[d] {
				break
			}
			srcIndices[d] = starts[d]
		}
	}

	return result, nil
}

// Scale multiplies all elements by a scalar.
func (t *Tensor) Scale(s float32) *Tensor {
	result := NewTensor(t.Shape)
	for i := range t.Data {
		result.Data[i] = t.Data[i] * s
	}
	return result
}

// Softmax applies a numerically stable softmax along the specified dimension.
func Softmax(t *Tensor, dim int) (*Tensor, error) {
	if dim < 0 || dim >= len(t.Shape) {
		return nil, ShapeErrorf("invalid dimension %d for tensor with %d dimensions", dim, len(t.Shape))
	}

	result := NewTensor(t.Shape)

	n := t.Shape[dim]
	stride := t.Strides[dim]
	if n == 0 {
		return result, nil
	}
	numSlices := len(t.Data) / n

	expVals := make([]float32, n)
	for sliceIdx := 0; sliceIdx < numSlices; sliceIdx++ {
		// Offset of element 0 of this slice: outer block plus inner position.
		outerIdx, innerIdx := sliceIdx/stride, sliceIdx%stride
		base := outerIdx*n*stride + innerIdx

		// Find max for numerical stability
		maxVal := float32(math.Inf(-1))
		for i := 0; i < n; i++ {
			if v := t.Data[base+i*stride]; v > maxVal {
				maxVal = v
			}
		}

		expSum := float32(0)
		for i := 0; i < n; i++ {
			expVals[i] = float32(math.Exp(float64(t.Data[base+i*stride] - maxVal)))
			expSum += expVals[i]
		}

		for i := 0; i < n; i++ {
			result.Data[base+i*stride] = expVals[i] / expSum
		}
	}

	return result, nil
}

// SoftmaxLast applies softmax along the last dimension.
func SoftmaxLast(t *Tensor) (*Tensor, error) {
	return Softmax(t, len(t.Shape)-1)
}

// Add performs element-wise addition with broadcasting.
func Add(a, b *Tensor) (*Tensor, error) {
	return elementWiseOp(a, b, func(x, y float32) float32 { return x + y })
}

// elementWiseOp performs an element-wise operation with broadcasting.
func elementWiseOp(a, b *Tensor, op func(float32, float32) float32) (*Tensor, error) {
	outShape, err := broadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, ShapeErrorf("cannot broadcast shapes %v and %v: %v", a.Shape, b.Shape, err)
	}

	result := NewTensor(outShape)
	if result.Size() == 0 {
		return result, nil
	}

	aStrides := broadcastStrides(a.Shape, outShape)
	bStrides := broadcastStrides(b.Shape, outShape)

	rank := len(outShape)
	indices := make([]int, rank)
	aIdx, bIdx := 0, 0
	for i := range result.Data {
		result.Data[i] = op(a.Data[aIdx], b.Data[bIdx])

		for d := rank - 1; d >= 0; d-- {
			indices[d]++
			aIdx += aStrides[d]
			bIdx += bStrides[d]
			if indices[d] < outShape[d] {
				break
			}
			aIdx -= indices[d] * aStrides[d]
			bIdx -= indices[d] * bStrides[d]
			indices[d] = 0
		}
	}

	return result, nil
}

// broadcastShapes computes the broadcasted shape of two shapes.
func broadcastShapes(a, b []int) ([]int, error) {
	maxLen := max(len(a), len(b))
	result := make([]int, maxLen)

	for i := 0; i < maxLen; i++ {
		dimA := 1
		if i < len(a) {
			dimA = a[len(a)-1-i]
		}
		dimB := 1
		if i < len(b) {
			dimB = b[len(b)-1-i]
		}

		if dimA != dimB && dimA != 1 && dimB != 1 {
			return nil, fmt.Errorf("incompatible dimensions %d and %d", dimA, dimB)
		}

		if dimA == 1 {
			result[maxLen-1-i] = dimB
		} else {
			result[maxLen-1-i] = dimA
		}
	}

	return result, nil
}

// broadcastStrides returns strides of inShape aligned to outShape, with zero
// stride on broadcast dimensions.
func broadcastStrides(inShape, outShape []int) []int {
	inStrides := computeStrides(inShape)
	out := make([]int, len(outShape))
	diff := len(outShape) - len(inShape)
	for i := range inShape {
		if inShape[i] != 1 {
			out[i+diff] = inStrides[i]
		}
	}
	return out
}

// String returns a string representation of the tensor.
func (t *Tensor) String() string {
	var sb strings.Builder
	sb.WriteString("Tensor[")
	for i, dim := range t.Shape {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(fmt.Sprintf("%d", dim))
	}
	sb.WriteString("]: ")
	if len(t.Data) > 0 {
		sb.WriteString(formatData(t.Shape, t.Data, 0))
	}
	return sb.String()
}

// formatData recursively formats tensor data, eliding long dimensions.
func formatData(shape []int, data []float32, offset int) string {
	if len(shape) == 0 {
		return fmt.Sprintf("%g", data[offset])
	}

	var sb strings.Builder
	sb.WriteString("[")
	if len(shape) == 1 {
		for i := 0; i < shape[0] && i < 6; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%g", data[offset+i]))
		}
		if shape[0] > 6 {
			sb.WriteString(", ...")
		}
		sb.WriteString("]")
		return sb.String()
	}

	subSize := numElements(shape[1:])
	for i := 0; i < shape[0] && i < 3; i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(formatData(shape[1:], data, offset+i*subSize))
	}
	if shape[0] > 3 {
		sb.WriteString(", ...")
	}
	sb.WriteString("]")
	return sb.String()
}

func numElements(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

func computeStrides(shape []int) []int {
	strides := make([]int, len(shape))
	stride := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = stride
		stride *= shape[i]
	}
	return strides
}

// copyShape creates a copy of a shape slice
func copyShape(shape []int) []int {
	result := make([]int, len(shape))
	copy(result, shape)
	return result
}
