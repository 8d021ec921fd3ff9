// Package tensor provides the dense H×W×C arrays that flow through the
// analog signal chain.
package tensor

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// ErrShapeMismatch is returned when tensors that must agree in shape do not.
var ErrShapeMismatch = errors.New("tensor: shape mismatch")

// Shape is the (height, width, channel) extent of a tensor or a tile.
type Shape struct {
	H, W, C int
}

// S is a short constructor for Shape.
func S(h, w, c int) Shape {
	return Shape{H: h, W: w, C: c}
}

// Volume returns the number of elements covered by the shape.
func (s Shape) Volume() int {
	return s.H * s.W * s.C
}

// Valid reports whether every dimension is positive.
func (s Shape) Valid() bool {
	return s.H > 0 && s.W > 0 && s.C > 0
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d, %d, %d)", s.H, s.W, s.C)
}

// Tensor is a row-major H×W×C array of float64 values. Index (h, w, c) lives
// at (h*W+w)*C+c.
//
// Tensor is not safe for concurrent use.
type Tensor struct {
	shape Shape
	data  []float64
}

// New creates a zero tensor. It panics on a non-positive dimension.
func New(s Shape) *Tensor {
	if !s.Valid() {
		panic(fmt.Sprintf("tensor: invalid shape %s", s))
	}

	return &Tensor{shape: s, data: make([]float64, s.Volume())}
}

// Full creates a tensor with every element set to v.
func Full(s Shape, v float64) *Tensor {
	t := New(s)
	for i := range t.data {
		t.data[i] = v
	}

	return t
}

// FromSlice wraps a copy of data as a tensor of shape s.
func FromSlice(s Shape, data []float64) *Tensor {
	t := New(s)
	if len(data) != len(t.data) {
		panic(fmt.Sprintf("tensor: %d values cannot fill shape %s",
			len(data), s))
	}

	copy(t.data, data)

	return t
}

// FromGen fills a tensor in row-major order with values from gen.
func FromGen(s Shape, gen func() float64) *Tensor {
	t := New(s)
	for i := range t.data {
		t.data[i] = gen()
	}

	return t
}

// Shape returns the extent of the tensor.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// Data exposes the backing slice.
func (t *Tensor) Data() []float64 {
	return t.data
}

func (t *Tensor) index(h, w, c int) int {
	return (h*t.shape.W+w)*t.shape.C + c
}

// At returns the element at (h, w, c).
func (t *Tensor) At(h, w, c int) float64 {
	return t.data[t.index(h, w, c)]
}

// Set writes the element at (h, w, c).
func (t *Tensor) Set(h, w, c int, v float64) {
	t.data[t.index(h, w, c)] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	return FromSlice(t.shape, t.data)
}

// Map returns a new tensor with f applied to every element.
func (t *Tensor) Map(f func(float64) float64) *Tensor {
	out := New(t.shape)
	for i, v := range t.data {
		out.data[i] = f(v)
	}

	return out
}

// Scale multiplies every element by k.
func (t *Tensor) Scale(k float64) *Tensor {
	return t.Map(func(v float64) float64 { return v * k })
}

// Clip bounds every element to [lo, hi].
func (t *Tensor) Clip(lo, hi float64) *Tensor {
	return t.Map(func(v float64) float64 {
		return math.Min(math.Max(v, lo), hi)
	})
}

// Sum adds all elements.
func (t *Tensor) Sum() float64 {
	s := 0.0
	for _, v := range t.data {
		s += v
	}

	return s
}

// Mean returns the arithmetic mean of all elements.
func (t *Tensor) Mean() float64 {
	return t.Sum() / float64(len(t.data))
}

// Std returns the population standard deviation of all elements.
func (t *Tensor) Std() float64 {
	m := t.Mean()
	acc := 0.0
	for _, v := range t.data {
		acc += (v - m) * (v - m)
	}

	return math.Sqrt(acc / float64(len(t.data)))
}

// Min returns the smallest element.
func (t *Tensor) Min() float64 {
	m := math.Inf(1)
	for _, v := range t.data {
		m = math.Min(m, v)
	}

	return m
}

// Max returns the largest element.
func (t *Tensor) Max() float64 {
	m := math.Inf(-1)
	for _, v := range t.data {
		m = math.Max(m, v)
	}

	return m
}

// AllClose reports whether o has the same shape and every element is within
// tol of t.
func (t *Tensor) AllClose(o *Tensor, tol float64) bool {
	if t.shape != o.shape {
		return false
	}

	for i, v := range t.data {
		if math.Abs(v-o.data[i]) > tol {
			return false
		}
	}

	return true
}

// SameShape returns ErrShapeMismatch unless every tensor has the same shape.
func SameShape(ts ...*Tensor) error {
	for i := 1; i < len(ts); i++ {
		if ts[i].shape != ts[0].shape {
			return errors.Wrapf(ErrShapeMismatch, "operand %d is %s, operand 0 is %s",
				i, ts[i].shape, ts[0].shape)
		}
	}

	return nil
}

// Zip combines two same-shape tensors element by element. It panics on a
// shape mismatch; callers check with SameShape first.
func Zip(a, b *Tensor, f func(x, y float64) float64) *Tensor {
	if a.shape != b.shape {
		panic(fmt.Sprintf("tensor: cannot zip %s with %s", a.shape, b.shape))
	}

	out := New(a.shape)
	for i := range a.data {
		out.data[i] = f(a.data[i], b.data[i])
	}

	return out
}

// Add returns a + b.
func Add(a, b *Tensor) *Tensor {
	return Zip(a, b, func(x, y float64) float64 { return x + y })
}

// Sub returns a - b.
func Sub(a, b *Tensor) *Tensor {
	return Zip(a, b, func(x, y float64) float64 { return x - y })
}

// Mul returns the element-wise product of a and b.
func Mul(a, b *Tensor) *Tensor {
	return Zip(a, b, func(x, y float64) float64 { return x * y })
}

// MaxOf returns the element-wise maximum across same-shape tensors.
func MaxOf(ts ...*Tensor) *Tensor {
	out := ts[0].Clone()
	for _, t := range ts[1:] {
		out = Zip(out, t, math.Max)
	}

	return out
}

// MeanOf returns the element-wise mean across same-shape tensors.
func MeanOf(ts ...*Tensor) *Tensor {
	out := New(ts[0].shape)
	for _, t := range ts {
		out = Add(out, t)
	}

	return out.Scale(1 / float64(len(ts)))
}

// Broadcast expands size-1 dimensions of t to s. Dimensions that are not 1
// must already match.
func (t *Tensor) Broadcast(s Shape) *Tensor {
	bh := t.shape.H == 1 && s.H != 1
	bw := t.shape.W == 1 && s.W != 1
	bc := t.shape.C == 1 && s.C != 1

	if (!bh && t.shape.H != s.H) || (!bw && t.shape.W != s.W) ||
		(!bc && t.shape.C != s.C) {
		panic(fmt.Sprintf("tensor: cannot broadcast %s to %s", t.shape, s))
	}

	out := New(s)
	for h := 0; h < s.H; h++ {
		sh := h
		if bh {
			sh = 0
		}

		for w := 0; w < s.W; w++ {
			sw := w
			if bw {
				sw = 0
			}

			for c := 0; c < s.C; c++ {
				sc := c
				if bc {
					sc = 0
				}

				out.Set(h, w, c, t.At(sh, sw, sc))
			}
		}
	}

	return out
}

// Channel extracts one channel as an H×W×1 tensor.
func (t *Tensor) Channel(c int) *Tensor {
	out := New(Shape{H: t.shape.H, W: t.shape.W, C: 1})
	for h := 0; h < t.shape.H; h++ {
		for w := 0; w < t.shape.W; w++ {
			out.Set(h, w, 0, t.At(h, w, c))
		}
	}

	return out
}

// ConcatC stacks tensors with equal H and W along the channel axis.
func ConcatC(ts ...*Tensor) *Tensor {
	h, w, c := ts[0].shape.H, ts[0].shape.W, 0
	for _, t := range ts {
		if t.shape.H != h || t.shape.W != w {
			panic(fmt.Sprintf("tensor: cannot concat %s with %s",
				t.shape, ts[0].shape))
		}

		c += t.shape.C
	}

	out := New(Shape{H: h, W: w, C: c})
	base := 0
	for _, t := range ts {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				for k := 0; k < t.shape.C; k++ {
					out.Set(y, x, base+k, t.At(y, x, k))
				}
			}
		}

		base += t.shape.C
	}

	return out
}

// Reshape reinterprets the data under a new shape of equal volume. A 2-D
// H×W input given as (H, W, 1) is a common use.
func (t *Tensor) Reshape(s Shape) *Tensor {
	if s.Volume() != t.shape.Volume() {
		panic(fmt.Sprintf("tensor: cannot reshape %s to %s", t.shape, s))
	}

	return FromSlice(s, t.data)
}
