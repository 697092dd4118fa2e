package tensor

// ReLU applies the rectified linear unit max(0, x) element-wise.
//
// Input: tensor of any shape
// Output: tensor of the same shape
func (t *Tensor) ReLU() *Tensor {
	result := NewTensor(t.Shape)
	for i, x := range t.Data {
		if x > 0 {
			result.Data[i] = x
		}
	}
	return result
}

// ReLU is a standalone function that applies ReLU to a tensor.
func ReLU(t *Tensor) *Tensor {
	return t.ReLU()
}
