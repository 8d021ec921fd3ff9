package tensor

import "fmt"

// Padding selects how a sliding window treats the input border.
type Padding int

const (
	// Valid keeps only windows that lie fully inside the input.
	Valid Padding = iota
	// Same zero-pads so that the output extent is ceil(in/stride).
	Same
)

// Name returns the name of the padding mode.
func (p Padding) Name() string {
	switch p {
	case Valid:
		return "valid"
	case Same:
		return "same"
	default:
		panic("invalid padding")
	}
}

// OutputSize returns the number of window positions along one axis.
func OutputSize(in, k, stride int, p Padding) int {
	switch p {
	case Valid:
		if in < k {
			return 0
		}

		return (in-k)/stride + 1
	case Same:
		return (in + stride - 1) / stride
	default:
		panic("invalid padding")
	}
}

// PadBefore returns the number of zero rows (or columns) inserted before the
// first input element.
func PadBefore(in, k, stride int, p Padding) int {
	if p == Valid {
		return 0
	}

	out := OutputSize(in, k, stride, p)
	total := (out-1)*stride + k - in
	if total < 0 {
		total = 0
	}

	return total / 2
}

// Window describes a 2-D sliding window over the H and W axes.
type Window struct {
	KH, KW           int
	StrideH, StrideW int
	Padding          Padding
}

// OutputHW returns the number of window positions along H and W.
func (win Window) OutputHW(in Shape) (int, int) {
	return OutputSize(in.H, win.KH, win.StrideH, win.Padding),
		OutputSize(in.W, win.KW, win.StrideW, win.Padding)
}

func (win Window) mustBeValid() {
	if win.KH <= 0 || win.KW <= 0 || win.StrideH <= 0 || win.StrideW <= 0 {
		panic(fmt.Sprintf("tensor: invalid window %+v", win))
	}
}

// Convolve slides each kernel plane over img. kernel has shape
// (KH, KW, N) and yields N output channels; each output element is the sum
// over the window and over all input channels of mul(pixel, weight). The
// window strides and padding come from win; KH and KW are taken from kernel.
func Convolve(
	img, kernel *Tensor,
	win Window,
	mul func(pixel, weight float64) float64,
) *Tensor {
	win.KH, win.KW = kernel.shape.H, kernel.shape.W
	win.mustBeValid()

	outH, outW := win.OutputHW(img.shape)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("tensor: kernel %s does not fit image %s",
			kernel.shape, img.shape))
	}

	padT := PadBefore(img.shape.H, win.KH, win.StrideH, win.Padding)
	padL := PadBefore(img.shape.W, win.KW, win.StrideW, win.Padding)

	out := New(Shape{H: outH, W: outW, C: kernel.shape.C})
	for oh := 0; oh < outH; oh++ {
		for ow := 0; ow < outW; ow++ {
			for n := 0; n < kernel.shape.C; n++ {
				acc := 0.0
				for i := 0; i < win.KH; i++ {
					y := oh*win.StrideH + i - padT
					if y < 0 || y >= img.shape.H {
						continue
					}

					for j := 0; j < win.KW; j++ {
						x := ow*win.StrideW + j - padL
						if x < 0 || x >= img.shape.W {
							continue
						}

						wgt := kernel.At(i, j, n)
						for c := 0; c < img.shape.C; c++ {
							acc += mul(img.At(y, x, c), wgt)
						}
					}
				}

				out.Set(oh, ow, n, acc)
			}
		}
	}

	return out
}

// Reduce slides win over every channel of t independently and collapses
// each window with f. Positions that fall into zero padding are skipped.
func Reduce(t *Tensor, win Window, f func(patch []float64) float64) *Tensor {
	win.mustBeValid()

	outH, outW := win.OutputHW(t.shape)
	if outH <= 0 || outW <= 0 {
		panic(fmt.Sprintf("tensor: window %dx%d does not fit %s",
			win.KH, win.KW, t.shape))
	}

	padT := PadBefore(t.shape.H, win.KH, win.StrideH, win.Padding)
	padL := PadBefore(t.shape.W, win.KW, win.StrideW, win.Padding)

	out := New(Shape{H: outH, W: outW, C: t.shape.C})
	patch := make([]float64, 0, win.KH*win.KW)
	for oh := 0; oh < outH; oh++ {
		for ow := 0; ow < outW; ow++ {
			for c := 0; c < t.shape.C; c++ {
				patch = patch[:0]
				for i := 0; i < win.KH; i++ {
					y := oh*win.StrideH + i - padT
					if y < 0 || y >= t.shape.H {
						continue
					}

					for j := 0; j < win.KW; j++ {
						x := ow*win.StrideW + j - padL
						if x < 0 || x >= t.shape.W {
							continue
						}

						patch = append(patch, t.At(y, x, c))
					}
				}

				out.Set(oh, ow, c, f(patch))
			}
		}
	}

	return out
}
