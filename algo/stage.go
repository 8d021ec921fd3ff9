// Package algo describes the image-processing pipeline as a dataflow graph
// of stages.
package algo

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/tensor"
)

// ErrShapeMismatch marks a stage whose computed output shape differs from
// the declared one, or whose producer does not feed the expected shape.
var ErrShapeMismatch = errors.New("algo: shape mismatch")

// A Stage is one node of the algorithm graph.
type Stage interface {
	Name() string
	OutputShape() tensor.Shape

	// InputShapes lists the shape expected from each producer, in order.
	InputShapes() []tensor.Shape

	Producers() []Stage
	Consumers() []Stage

	// Ready reports whether the producer has finished.
	Ready(producer string) bool

	// AllReady reports whether every producer has finished.
	AllReady() bool

	core() *stageCore
}

type stageCore struct {
	name      string
	output    tensor.Shape
	producers []Stage
	consumers []Stage
	ready     map[string]bool
}

func (s *stageCore) Name() string              { return s.name }
func (s *stageCore) OutputShape() tensor.Shape { return s.output }
func (s *stageCore) Producers() []Stage        { return s.producers }
func (s *stageCore) Consumers() []Stage        { return s.consumers }
func (s *stageCore) core() *stageCore          { return s }

func (s *stageCore) Ready(producer string) bool {
	return s.ready[producer]
}

func (s *stageCore) AllReady() bool {
	for _, p := range s.producers {
		if !s.ready[p.Name()] {
			return false
		}
	}

	return true
}

// Connect makes producer an input of consumer. Inputs are numbered in the
// order of Connect calls.
func Connect(producer, consumer Stage) {
	c := consumer.core()
	c.producers = append(c.producers, producer)
}

// PixelInput is a source stage that only has a shape.
type PixelInput struct {
	stageCore
}

// NewPixelInput creates a source stage.
func NewPixelInput(name string, shape tensor.Shape) *PixelInput {
	return &PixelInput{stageCore: stageCore{name: name, output: shape}}
}

// InputShapes returns nil; a pixel input has no producers.
func (p *PixelInput) InputShapes() []tensor.Shape {
	return nil
}

// Stride is the step of a sliding window.
type Stride struct {
	H, W int
}

// ProcessSpec describes a stencil stage. Inputs, Kernels, Strides and
// Paddings are per producer and must have the same length.
type ProcessSpec struct {
	Inputs   []tensor.Shape
	Kernels  []tensor.Shape
	Strides  []Stride
	Paddings []tensor.Padding

	// NumKernels is the number of kernels applied. Zero means one.
	NumKernels int

	// Output is checked against the computed shape. Zero skips the check.
	Output tensor.Shape
}

// ProcessStage is a stencil operation. Each input is swept by its kernel;
// a kernel with C equal to the input C reduces across channels, a kernel
// with C of one works per channel.
type ProcessStage struct {
	stageCore
	spec ProcessSpec
}

// NewProcessStage validates the spec and creates the stage.
func NewProcessStage(name string, spec ProcessSpec) (*ProcessStage, error) {
	if spec.NumKernels == 0 {
		spec.NumKernels = 1
	}

	out, err := spec.outputShape()
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s", name)
	}

	if spec.Output != (tensor.Shape{}) && spec.Output != out {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"stage %s: declared output %s, computed %s",
			name, spec.Output, out)
	}

	spec.Output = out

	return &ProcessStage{
		stageCore: stageCore{name: name, output: out},
		spec:      spec,
	}, nil
}

func (spec ProcessSpec) outputShape() (tensor.Shape, error) {
	n := len(spec.Inputs)
	if n == 0 {
		return tensor.Shape{}, errors.New("process stage needs an input")
	}

	if len(spec.Kernels) != n || len(spec.Strides) != n ||
		len(spec.Paddings) != n {
		return tensor.Shape{}, errors.Errorf(
			"%d inputs, %d kernels, %d strides, %d paddings",
			n, len(spec.Kernels), len(spec.Strides), len(spec.Paddings))
	}

	var out tensor.Shape
	for i := range spec.Inputs {
		o, err := spec.inputOutput(i)
		if err != nil {
			return tensor.Shape{}, err
		}

		if i > 0 && o != out {
			return tensor.Shape{}, errors.Wrapf(ErrShapeMismatch,
				"input %d yields %s, input 0 yields %s", i, o, out)
		}

		out = o
	}

	return out, nil
}

func (spec ProcessSpec) inputOutput(i int) (tensor.Shape, error) {
	in, k, s, p := spec.Inputs[i], spec.Kernels[i], spec.Strides[i],
		spec.Paddings[i]

	if !in.Valid() || !k.Valid() || s.H <= 0 || s.W <= 0 {
		return tensor.Shape{}, errors.Errorf(
			"input %d: shape %s, kernel %s, stride %dx%d",
			i, in, k, s.H, s.W)
	}

	if in.C%k.C != 0 {
		return tensor.Shape{}, errors.Wrapf(ErrShapeMismatch,
			"input %d: %d channels cannot be split by kernel depth %d",
			i, in.C, k.C)
	}

	out := tensor.S(
		tensor.OutputSize(in.H, k.H, s.H, p),
		tensor.OutputSize(in.W, k.W, s.W, p),
		in.C/k.C*spec.NumKernels,
	)

	if !out.Valid() {
		return tensor.Shape{}, errors.Wrapf(ErrShapeMismatch,
			"input %d: kernel %s does not fit %s", i, k, in)
	}

	return out, nil
}

// InputShapes returns the per-producer input shapes.
func (p *ProcessStage) InputShapes() []tensor.Shape {
	return p.spec.Inputs
}

// Kernels returns the per-producer kernel shapes.
func (p *ProcessStage) Kernels() []tensor.Shape {
	return p.spec.Kernels
}

// Strides returns the per-producer strides.
func (p *ProcessStage) Strides() []Stride {
	return p.spec.Strides
}

// Paddings returns the per-producer padding modes.
func (p *ProcessStage) Paddings() []tensor.Padding {
	return p.spec.Paddings
}

// NumKernels returns the number of kernels.
func (p *ProcessStage) NumKernels() int {
	return p.spec.NumKernels
}

// OpType is the layer type of a DNN stage.
type OpType int

const (
	Conv2D OpType = iota
	DWConv2D
	FC
)

// Name returns the name of the layer type.
func (o OpType) Name() string {
	switch o {
	case Conv2D:
		return "Conv2D"
	case DWConv2D:
		return "DWConv2D"
	case FC:
		return "FC"
	default:
		panic("invalid op type")
	}
}

// KernelShape is a 4-D weight shape.
type KernelShape struct {
	H, W, In, Out int
}

// DNNSpec describes a DNN layer. A zero Output is computed.
type DNNSpec struct {
	Op     OpType
	Input  tensor.Shape
	Kernel KernelShape
	Stride int
	Output tensor.Shape
}

// DNNProcessStage is a DNN layer. Convolutions use same padding.
type DNNProcessStage struct {
	stageCore
	spec DNNSpec
}

// NewDNNProcessStage validates the spec and creates the stage.
func NewDNNProcessStage(name string, spec DNNSpec) (*DNNProcessStage, error) {
	if spec.Stride == 0 {
		spec.Stride = 1
	}

	out, err := spec.outputShape()
	if err != nil {
		return nil, errors.Wrapf(err, "stage %s", name)
	}

	if spec.Output != (tensor.Shape{}) && spec.Output != out {
		return nil, errors.Wrapf(ErrShapeMismatch,
			"stage %s: declared output %s, computed %s",
			name, spec.Output, out)
	}

	spec.Output = out

	return &DNNProcessStage{
		stageCore: stageCore{name: name, output: out},
		spec:      spec,
	}, nil
}

func (spec DNNSpec) outputShape() (tensor.Shape, error) {
	in, k, s := spec.Input, spec.Kernel, spec.Stride

	if !in.Valid() || s < 0 {
		return tensor.Shape{}, errors.Errorf("input %s, stride %d", in, s)
	}

	switch spec.Op {
	case Conv2D, DWConv2D:
		if k.H <= 0 || k.W <= 0 {
			return tensor.Shape{}, errors.Errorf("kernel %+v", k)
		}

		if k.In != in.C {
			return tensor.Shape{}, errors.Wrapf(ErrShapeMismatch,
				"kernel expects %d channels, input has %d", k.In, in.C)
		}

		c := k.Out
		if spec.Op == DWConv2D {
			c = in.C
		}

		if c <= 0 {
			return tensor.Shape{}, errors.Errorf("kernel %+v", k)
		}

		return tensor.S(
			tensor.OutputSize(in.H, k.H, s, tensor.Same),
			tensor.OutputSize(in.W, k.W, s, tensor.Same),
			c,
		), nil
	case FC:
		if k.In != in.Volume() {
			return tensor.Shape{}, errors.Wrapf(ErrShapeMismatch,
				"kernel expects %d inputs, input has %d", k.In, in.Volume())
		}

		if k.Out <= 0 {
			return tensor.Shape{}, errors.Errorf("kernel %+v", k)
		}

		return tensor.S(1, 1, k.Out), nil
	default:
		return tensor.Shape{}, errors.Errorf("unknown op %d", spec.Op)
	}
}

// InputShapes returns the single input feature map.
func (d *DNNProcessStage) InputShapes() []tensor.Shape {
	return []tensor.Shape{d.spec.Input}
}

// Op returns the layer type.
func (d *DNNProcessStage) Op() OpType {
	return d.spec.Op
}

// Kernel returns the weight shape.
func (d *DNNProcessStage) Kernel() KernelShape {
	return d.spec.Kernel
}

// Stride returns the stride along both axes.
func (d *DNNProcessStage) Stride() int {
	return d.spec.Stride
}
