package analog

import (
	"github.com/pkg/errors"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/camsim/tensor"
)

// A Primitive is a single analog circuit block.
type Primitive interface {
	Name() string

	// ID identifies the instance. Random state in an Env is keyed by it.
	ID() string

	// Energy returns the energy of one operation in joules.
	Energy() (float64, error)

	// Apply runs the functional model on inputs.
	Apply(env *Env, inputs []*tensor.Tensor) ([]*tensor.Tensor, error)
}

// OpConfig carries the sliding-window parameters of the algorithm stage that
// a kernel-dependent primitive executes.
type OpConfig struct {
	KernelH, KernelW int
	StrideH, StrideW int
	NumKernels       int
	Padding          tensor.Padding
}

// Window returns the window described by the configuration.
func (c OpConfig) Window() tensor.Window {
	return tensor.Window{
		KH:      c.KernelH,
		KW:      c.KernelW,
		StrideH: c.StrideH,
		StrideW: c.StrideW,
		Padding: c.Padding,
	}
}

func (c OpConfig) validate() error {
	if c.KernelH <= 0 || c.KernelW <= 0 || c.StrideH <= 0 || c.StrideW <= 0 {
		return errors.Wrapf(ErrParameter, "window %dx%d stride %dx%d",
			c.KernelH, c.KernelW, c.StrideH, c.StrideW)
	}

	if c.NumKernels < 0 {
		return errors.Wrapf(ErrParameter, "%d kernels", c.NumKernels)
	}

	return nil
}

func (c OpConfig) kernels() int {
	if c.NumKernels == 0 {
		return 1
	}

	return c.NumKernels
}

// A Configurable primitive needs the window of its algorithm stage before it
// can report energy or run.
type Configurable interface {
	Configure(op OpConfig) error
}

type base struct {
	name  string
	id    string
	noise NoiseParams
}

func newBase(name string, noise NoiseParams) base {
	return base{
		name:  name,
		id:    sim.GetIDGenerator().Generate(),
		noise: noise.withDefaults(),
	}
}

// Name returns the name of the primitive.
func (b *base) Name() string {
	return b.name
}

// ID returns the instance ID of the primitive.
func (b *base) ID() string {
	return b.id
}

// Noise returns the functional contract of the primitive.
func (b *base) Noise() NoiseParams {
	return b.noise
}

func (b *base) expectInputs(inputs []*tensor.Tensor, n int) error {
	if len(inputs) != n {
		return errors.Wrapf(ErrFanIn, "%s: want %d, got %d",
			b.name, n, len(inputs))
	}

	for i, in := range inputs {
		if in == nil {
			return errors.Wrapf(ErrFanIn, "%s: input %d is nil", b.name, i)
		}
	}

	return nil
}

func (b *base) validateNoise() error {
	return errors.Wrapf(b.noise.Validate(), "%s", b.name)
}

// linear applies the primitive's contract to a single input.
func (b *base) linear(env *Env, in *tensor.Tensor) *tensor.Tensor {
	return b.noise.transfer(env, b.id, in)
}

// applyLinear is the Apply of every single-input linear primitive.
func (b *base) applyLinear(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := b.expectInputs(inputs, 1); err != nil {
		return nil, err
	}

	if err := b.validateNoise(); err != nil {
		return nil, err
	}

	return []*tensor.Tensor{b.linear(env, inputs[0])}, nil
}

type configured struct {
	op  OpConfig
	set bool
}

func (c *configured) Configure(op OpConfig) error {
	if err := op.validate(); err != nil {
		return err
	}

	c.op = op
	c.set = true

	return nil
}

func (c *configured) requireConfig(name string) error {
	if !c.set {
		return errors.Wrapf(ErrNotConfigured, "%s", name)
	}

	return nil
}

func nonNegative(name string, values map[string]float64) error {
	for k, v := range values {
		if v < 0 {
			return errors.Wrapf(ErrParameter, "%s: %s = %g", name, k, v)
		}
	}

	return nil
}
