package tensor

import (
	"math/rand"
	"sync"
	"time"
)

var (
	dropoutMu   sync.Mutex
	dropoutRand *rand.Rand
)

// Dropout randomly zeros out elements with probability p during training and
// scales the survivors by 1/(1-p). During inference (training=false), or with
// p == 0, the input is returned as a copy.
func (t *Tensor) Dropout(p float32, training bool) *Tensor {
	if !training || p == 0 {
		return t.Clone()
	}

	if p < 0 || p >= 1 {
		panic("dropout probability must be in [0, 1)")
	}

	dropoutMu.Lock()
	defer dropoutMu.Unlock()

	if dropoutRand == nil {
		dropoutRand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	result := NewTensor(t.Shape)
	scale := 1 / (1 - p) // Inverted dropout scaling

	for i := range t.Data {
		if dropoutRand.Float32() >= p {
			result.Data[i] = t.Data[i] * scale
		}
	}

	return result
}

// SetDropoutSeed sets the random seed for dropout (useful for testing).
func SetDropoutSeed(seed int64) {
	dropoutMu.Lock()
	defer dropoutMu.Unlock()
	dropoutRand = rand.New(rand.NewSource(seed))
}
