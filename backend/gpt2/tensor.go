// Package gpt2 is a small pure-Go GPT-2 forward pass over safetensors
// checkpoints. Weights are loaded once and only read afterwards; all
// per-sequence state lives in a KVCache.
package gpt2

import (
	"fmt"
	"math"
)

// Tensor is a dense row-major float32 array
type Tensor struct {
	Data  []float32
	Shape []int
}

// NewTensor creates a zeroed tensor with the given shape
func NewTensor(shape ...int) *Tensor {
	return &Tensor{
		Data:  make([]float32, numElements(shape)),
		Shape: shape,
	}
}

// Size returns total number of elements
func (t *Tensor) Size() int {
	return numElements(t.Shape)
}

// Rows returns the size of the first dimension of a 2D tensor
func (t *Tensor) Rows() int { return t.Shape[0] }

// Cols returns the size of the last dimension
func (t *Tensor) Cols() int { return t.Shape[len(t.Shape)-1] }

// Row returns a view of row i of a 2D tensor
func (t *Tensor) Row(i int) []float32 {
	cols := t.Cols()
	return t.Data[i*cols : (i+1)*cols]
}

func numElements(shape []int) int {
	size := 1
	for _, dim := range shape {
		size *= dim
	}
	return size
}

// Linear computes x @ w + b for x [n, in], w [in, out], b [out] (b may be
// nil). GPT-2 stores its projections as [in, out], so no transpose is needed.
func Linear(x, w, b *Tensor) *Tensor {
	if x.Cols() != w.Rows() {
		panic(fmt.Sprintf("incompatible shapes: [%d,%d] x [%d,%d]", x.Rows(), x.Cols(), w.Rows(), w.Cols()))
	}

	n, in, out := x.Rows(), x.Cols(), w.Cols()
	result := NewTensor(n, out)

	for i := 0; i < n; i++ {
		dst := result.Data[i*out : (i+1)*out]
		if b != nil {
			copy(dst, b.Data)
		}
		src := x.Data[i*in : (i+1)*in]
		// i-k-j order walks w row by row
		for k, a := range src {
			if a == 0 {
				continue
			}
			wRow := w.Data[k*out : (k+1)*out]
			for j, wv := range wRow {
				dst[j] += a * wv
			}
		}
	}

	return result
}

// AddInPlace adds b into a element-wise
func AddInPlace(a, b *Tensor) {
	if len(a.Data) != len(b.Data) {
		panic("tensors must have same size")
	}
	for i := range a.Data {
		a.Data[i] += b.Data[i]
	}
}

// GELUInPlace applies the tanh approximation of GELU used by GPT-2
func GELUInPlace(t *Tensor) {
	const c = 0.7978845608028654 // sqrt(2/pi)
	for i, x := range t.Data {
		x3 := x * x * x
		inner := c * float64(x+0.044715*x3)
		t.Data[i] = 0.5 * x * (1.0 + float32(math.Tanh(inner)))
	}
}

// LayerNorm normalizes each row of x and applies weight and bias
func LayerNorm(x, weight, bias *Tensor, eps float32) *Tensor {
	result := NewTensor(x.Shape...)
	hidden := x.Cols()
	rows := x.Size() / hidden

	for i := 0; i < rows; i++ {
		row := x.Data[i*hidden : (i+1)*hidden]
		dst := result.Data[i*hidden : (i+1)*hidden]

		mean := float32(0)
		for _, v := range row {
			mean += v
		}
		mean /= float32(hidden)

		variance := float32(0)
		for _, v := range row {
			diff := v - mean
			variance += diff * diff
		}
		variance /= float32(hidden)

		inv := float32(1.0 / math.Sqrt(float64(variance+eps)))
		for j, v := range row {
			dst[j] = (v-mean)*inv*weight.Data[j] + bias.Data[j]
		}
	}

	return result
}

// softmaxInPlace normalizes scores into probabilities
func softmaxInPlace(scores []float32) {
	maxVal := scores[0]
	for _, v := range scores[1:] {
		if v > maxVal {
			maxVal = v
		}
	}

	sum := float32(0)
	for i, v := range scores {
		e := float32(math.Exp(float64(v - maxVal)))
		scores[i] = e
		sum += e
	}

	for i := range scores {
		scores[i] /= sum
	}
}
