// Package tensor implements a dense row-major float64 tensor of arbitrary rank
// together with explicit multi-index iteration helpers.
package tensor

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/YuminosukeSato/ebmgo/pkg/errors"
)

// Tensor is a dense row-major array. The zero value is not usable; build
// tensors with New, Zeros or FromData.
type Tensor struct {
	shape   []int
	strides []int
	data    []float64
}

// New allocates a zero-filled tensor with the given shape.
func New(shape ...int) *Tensor {
	size := 1
	for _, s := range shape {
		if s < 0 {
			panic(fmt.Sprintf("tensor: negative dimension %d", s))
		}
		size *= s
	}
	sh := append([]int(nil), shape...)
	return &Tensor{shape: sh, strides: stridesOf(sh), data: make([]float64, size)}
}

// Zeros is an alias for New that reads better at call sites building weight tensors.
func Zeros(shape ...int) *Tensor { return New(shape...) }

// FromData wraps data (not copied) with the given shape.
func FromData(data []float64, shape ...int) (*Tensor, error) {
	size := 1
	for _, s := range shape {
		size *= s
	}
	if size != len(data) {
		return nil, errors.NewDimensionError("tensor.FromData", size, len(data), 0)
	}
	sh := append([]int(nil), shape...)
	return &Tensor{shape: sh, strides: stridesOf(sh), data: data}, nil
}

// Full returns a tensor filled with v.
func Full(v float64, shape ...int) *Tensor {
	t := New(shape...)
	for i := range t.data {
		t.data[i] = v
	}
	return t
}

func stridesOf(shape []int) []int {
	strides := make([]int, len(shape))
	acc := 1
	for i := len(shape) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= shape[i]
	}
	return strides
}

// Shape returns a copy of the tensor shape.
func (t *Tensor) Shape() []int { return append([]int(nil), t.shape...) }

// Dim returns the length of axis.
func (t *Tensor) Dim(axis int) int { return t.shape[axis] }

// Rank returns the number of axes.
func (t *Tensor) Rank() int { return len(t.shape) }

// Size returns the total number of cells.
func (t *Tensor) Size() int { return len(t.data) }

// Data returns the backing slice in row-major order.
func (t *Tensor) Data() []float64 { return t.data }

// Offset converts a multi-index into a flat offset.
func (t *Tensor) Offset(idx []int) int {
	off := 0
	for i, v := range idx {
		off += v * t.strides[i]
	}
	return off
}

// At returns the value at idx.
func (t *Tensor) At(idx ...int) float64 { return t.data[t.Offset(idx)] }

// Set stores v at idx.
func (t *Tensor) Set(v float64, idx ...int) { t.data[t.Offset(idx)] = v }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return &Tensor{
		shape:   append([]int(nil), t.shape...),
		strides: append([]int(nil), t.strides...),
		data:    append([]float64(nil), t.data...),
	}
}

// SameShape reports whether t and o have identical shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	if len(t.shape) != len(o.shape) {
		return false
	}
	for i := range t.shape {
		if t.shape[i] != o.shape[i] {
			return false
		}
	}
	return true
}

// Sum returns the sum of all cells.
func (t *Tensor) Sum() float64 { return floats.Sum(t.data) }

// Scale multiplies every cell by s in place.
func (t *Tensor) Scale(s float64) { floats.Scale(s, t.data) }

// Add adds o into t in place.
func (t *Tensor) Add(o *Tensor) error {
	if !t.SameShape(o) {
		return errors.NewValueError("tensor.Add", fmt.Sprintf("shape %v does not match %v", o.shape, t.shape))
	}
	floats.Add(t.data, o.data)
	return nil
}

// AddScalar adds v to every cell in place.
func (t *Tensor) AddScalar(v float64) { floats.AddConst(v, t.data) }

// Equal reports exact equality of shape and values. NaN equals NaN.
func (t *Tensor) Equal(o *Tensor) bool {
	if !t.SameShape(o) {
		return false
	}
	for i, v := range t.data {
		w := o.data[i]
		if v != w && !(math.IsNaN(v) && math.IsNaN(w)) {
			return false
		}
	}
	return true
}

// EqualApprox reports equality within tol.
func (t *Tensor) EqualApprox(o *Tensor, tol float64) bool {
	return t.SameShape(o) && floats.EqualApprox(t.data, o.data, tol)
}

// Transpose returns a new tensor whose axis i is axis perm[i] of t.
func (t *Tensor) Transpose(perm []int) (*Tensor, error) {
	if len(perm) != len(t.shape) {
		return nil, errors.NewDimensionError("tensor.Transpose", len(t.shape), len(perm), 1)
	}
	shape := make([]int, len(perm))
	for i, p := range perm {
		shape[i] = t.shape[p]
	}
	out := New(shape...)
	src := make([]int, len(perm))
	ForEachIndex(shape, func(idx []int) {
		for i, p := range perm {
			src[p] = idx[i]
		}
		out.data[out.Offset(idx)] = t.data[t.Offset(src)]
	})
	return out, nil
}

// Slice calls fn with every multi-index whose coordinate on axis equals pos.
func (t *Tensor) Slice(axis, pos int, fn func(idx []int)) {
	shape := t.Shape()
	shape[axis] = 1
	ForEachIndex(shape, func(idx []int) {
		idx[axis] = pos
		fn(idx)
		idx[axis] = 0
	})
}

// SliceSum sums the cells whose coordinate on axis equals pos.
func (t *Tensor) SliceSum(axis, pos int) float64 {
	var s float64
	t.Slice(axis, pos, func(idx []int) { s += t.data[t.Offset(idx)] })
	return s
}

// SetSlice stores v at every cell whose coordinate on axis equals pos.
func (t *Tensor) SetSlice(axis, pos int, v float64) {
	t.Slice(axis, pos, func(idx []int) { t.data[t.Offset(idx)] = v })
}

// AxisSums returns the marginal sums along axis.
func (t *Tensor) AxisSums(axis int) []float64 {
	out := make([]float64, t.shape[axis])
	ForEachIndex(t.shape, func(idx []int) {
		out[idx[axis]] += t.data[t.Offset(idx)]
	})
	return out
}

// ForEachIndex visits every multi-index of shape in row-major order. The idx
// slice is reused between calls and must not be retained.
func ForEachIndex(shape []int, fn func(idx []int)) {
	for _, s := range shape {
		if s == 0 {
			return
		}
	}
	idx := make([]int, len(shape))
	for {
		fn(idx)
		if !NextIndex(idx, shape) {
			return
		}
	}
}

// NextIndex advances idx to the next row-major multi-index of shape and
// reports false after the last one.
func NextIndex(idx, shape []int) bool {
	for axis := len(shape) - 1; axis >= 0; axis-- {
		idx[axis]++
		if idx[axis] < shape[axis] {
			return true
		}
		idx[axis] = 0
	}
	return false
}

type tensorJSON struct {
	Shape []int     `json:"shape"`
	Data  []float64 `json:"data"`
}

// MarshalJSON implements json.Marshaler.
func (t *Tensor) MarshalJSON() ([]byte, error) {
	return json.Marshal(tensorJSON{Shape: t.shape, Data: t.data})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Tensor) UnmarshalJSON(b []byte) error {
	var raw tensorJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "decode tensor")
	}
	if raw.Data == nil {
		raw.Data = []float64{}
	}
	dec, err := FromData(raw.Data, raw.Shape...)
	if err != nil {
		return err
	}
	*t = *dec
	return nil
}

// String renders shape and values for debugging.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v%v", t.shape, t.data)
}
