package model

import "captioning/pkg/tensor"

// CausalMask returns the (size, size) lower-triangular mask with
// mask[i,j] = 1 iff j <= i.
func CausalMask(size int) *tensor.Tensor {
	mask := tensor.NewTensor([]int{size, size})
	for i := 0; i < size; i++ {
		for j := 0; j <= i; j++ {
			mask.Data[i*size+j] = 1
		}
	}
	return mask
}
