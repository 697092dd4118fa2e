package tensor

import (
	"runtime"
	"sync"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Compute is the execution context for matrix products. Batch and head
// matrices are independent, so Compute spreads them across Workers
// goroutines; results do not depend on the worker count.
type Compute struct {
	Workers int
}

// DefaultCompute uses one worker per available CPU.
var DefaultCompute = &Compute{Workers: runtime.GOMAXPROCS(0)}

// Matmul performs matrix multiplication on the last two dimensions.
//
// Supported operand shapes:
//   - (..., m, n) @ (n, p) -> (..., m, p): the right operand is shared
//   - (..., m, n) @ (..., n, p) -> (..., m, p): batched, leading dims must match
func (c *Compute) Matmul(a, b *Tensor) (*Tensor, error) {
	return c.matmul(a, b, false)
}

// MatmulTransposed computes a @ b^T on the last two dimensions. With a of
// shape (..., m, n) and b of shape (..., p, n) the result is (..., m, p).
// It avoids materialising the transpose of b.
func (c *Compute) MatmulTransposed(a, b *Tensor) (*Tensor, error) {
	return c.matmul(a, b, true)
}

// Matmul multiplies with DefaultCompute.
func Matmul(a, b *Tensor) (*Tensor, error) {
	return DefaultCompute.Matmul(a, b)
}

func (c *Compute) matmul(a, b *Tensor, transB bool) (*Tensor, error) {
	if len(a.Shape) < 2 || len(b.Shape) < 2 {
		return nil, ShapeErrorf("matmul requires at least 2D tensors, got %dD and %dD",
			len(a.Shape), len(b.Shape))
	}

	m, n := a.Shape[len(a.Shape)-2], a.Shape[len(a.Shape)-1]
	bRows, bCols := b.Shape[len(b.Shape)-2], b.Shape[len(b.Shape)-1]
	nb, p := bRows, bCols
	if transB {
		nb, p = bCols, bRows
	}
	if n != nb {
		return nil, ShapeErrorf("incompatible shapes for matmul: %v and %v (inner dimensions %d and %d don't match)",
			a.Shape, b.Shape, n, nb)
	}

	tB := blas.NoTrans
	if transB {
		tB = blas.Trans
	}

	batchDims := a.Shape[:len(a.Shape)-2]
	resultShape := append(copyShape(batchDims), m, p)
	result := NewTensor(resultShape)
	if result.Size() == 0 || n == 0 {
		return result, nil
	}

	// Shared right operand: fold every leading dimension into the rows of a
	// single GEMM.
	if len(b.Shape) == 2 {
		rows := len(a.Data) / n
		blas32.Gemm(blas.NoTrans, tB, 1,
			general(a.Data, rows, n),
			general(b.Data, bRows, bCols),
			0, general(result.Data, rows, p))
		return result, nil
	}

	if len(b.Shape) != len(a.Shape) {
		return nil, ShapeErrorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
	}
	for i := range batchDims {
		if a.Shape[i] != b.Shape[i] {
			return nil, ShapeErrorf("incompatible batch dimensions for matmul: %v and %v", a.Shape, b.Shape)
		}
	}

	batchSize := numElements(batchDims)
	c.parallel(batchSize, func(i int) {
		aOff, bOff, rOff := i*m*n, i*bRows*bCols, i*m*p
		blas32.Gemm(blas.NoTrans, tB, 1,
			general(a.Data[aOff:aOff+m*n], m, n),
			general(b.Data[bOff:bOff+bRows*bCols], bRows, bCols),
			0, general(result.Data[rOff:rOff+m*p], m, p))
	})

	return result, nil
}

// parallel runs fn(0..count-1) across the configured workers.
func (c *Compute) parallel(count int, fn func(i int)) {
	workers := 1
	if c != nil && c.Workers > 1 {
		workers = min(c.Workers, count)
	}
	if workers <= 1 {
		for i := 0; i < count; i++ {
			fn(i)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(w int) {
			defer wg.Done()
			for i := w; i < count; i += workers {
				fn(i)
			}
		}(w)
	}
	wg.Wait()
}

func general(data []float32, rows, cols int) blas32.General {
	return blas32.General{Rows: rows, Cols: cols, Stride: cols, Data: data}
}
