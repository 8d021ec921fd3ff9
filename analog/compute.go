package analog

import (
	"math"

	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/tensor"
)

// PassiveSCArraySpec describes a bank of switched capacitors that share
// charge. Supplies may hold one value for all capacitors.
type PassiveSCArraySpec struct {
	Capacitances []float64
	Supplies     []float64

	// NumInputs fixes the fan-in. Zero accepts any positive fan-in.
	NumInputs int

	Noise NoiseParams
}

// PassiveSCArray averages its inputs by charge sharing.
type PassiveSCArray struct {
	base
	spec PassiveSCArraySpec
}

// NewPassiveSCArray creates a passive switched-capacitor array.
func NewPassiveSCArray(name string, spec PassiveSCArraySpec) *PassiveSCArray {
	return &PassiveSCArray{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns sum(C_i * V_i^2).
func (p *PassiveSCArray) Energy() (float64, error) {
	s := p.spec
	if len(s.Supplies) != 1 && len(s.Supplies) != len(s.Capacitances) {
		return 0, errors.Wrapf(ErrParameter,
			"%s: %d supplies for %d capacitors",
			p.name, len(s.Supplies), len(s.Capacitances))
	}

	total := 0.0
	for i, c := range s.Capacitances {
		v := s.Supplies[0]
		if len(s.Supplies) > 1 {
			v = s.Supplies[i]
		}

		e, err := capEnergy(p.name, c, v)
		if err != nil {
			return 0, err
		}

		total += e
	}

	return total, nil
}

// Apply returns mean(inputs) + noise.
func (p *PassiveSCArray) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if p.spec.NumInputs > 0 {
		if err := p.expectInputs(inputs, p.spec.NumInputs); err != nil {
			return nil, err
		}
	} else if len(inputs) == 0 {
		return nil, errors.Wrapf(ErrFanIn, "%s: no inputs", p.name)
	}

	return p.reduceInputs(env, inputs, tensor.MeanOf)
}

func (b *base) reduceInputs(
	env *Env,
	inputs []*tensor.Tensor,
	f func(ts ...*tensor.Tensor) *tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := b.validateNoise(); err != nil {
		return nil, err
	}

	if err := tensor.SameShape(inputs...); err != nil {
		return nil, errors.Wrapf(err, "%s", b.name)
	}

	return []*tensor.Tensor{b.linear(env, f(inputs...))}, nil
}

// MaximumVoltageSpec describes a winner-take-all maximum circuit.
type MaximumVoltageSpec struct {
	Supply      float64
	BiasCurrent float64
	FrameTime   float64
	CompTime    float64

	// NumInputs fixes the fan-in. Zero accepts any positive fan-in.
	NumInputs int

	Noise NoiseParams
}

// MaximumVoltage outputs the element-wise maximum of its inputs. It is
// modeled with a linear gain and Gaussian noise.
type MaximumVoltage struct {
	base
	spec MaximumVoltageSpec
}

// NewMaximumVoltage creates a maximum-voltage circuit.
func NewMaximumVoltage(name string, spec MaximumVoltageSpec) *MaximumVoltage {
	return &MaximumVoltage{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns V*0.5*I*T_frame + V*I*T_comp.
func (p *MaximumVoltage) Energy() (float64, error) {
	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"supply":       s.Supply,
		"bias current": s.BiasCurrent,
		"frame time":   s.FrameTime,
		"comp time":    s.CompTime,
	}); err != nil {
		return 0, err
	}

	v, i := s.Supply, s.BiasCurrent

	return v*0.5*i*s.FrameTime + v*i*s.CompTime, nil
}

// Apply returns max(inputs) + noise.
func (p *MaximumVoltage) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if p.spec.NumInputs > 0 {
		if err := p.expectInputs(inputs, p.spec.NumInputs); err != nil {
			return nil, err
		}
	} else if len(inputs) == 0 {
		return nil, errors.Wrapf(ErrFanIn, "%s: no inputs", p.name)
	}

	return p.reduceInputs(env, inputs, tensor.MaxOf)
}

// AnalogReLUSpec describes a rectifier.
type AnalogReLUSpec struct {
	Supply      float64
	BiasCurrent float64
	Time        float64
	Noise       NoiseParams
}

// AnalogReLU clamps negative values to zero after its gain stage.
type AnalogReLU struct {
	base
	spec AnalogReLUSpec
}

// NewAnalogReLU creates a rectifier.
func NewAnalogReLU(name string, spec AnalogReLUSpec) *AnalogReLU {
	return &AnalogReLU{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns V*I*T.
func (p *AnalogReLU) Energy() (float64, error) {
	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"supply": s.Supply, "bias current": s.BiasCurrent, "time": s.Time,
	}); err != nil {
		return 0, err
	}

	return s.Supply * s.BiasCurrent * s.Time, nil
}

// Apply returns max(gain*I + noise, 0).
func (p *AnalogReLU) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	out, err := p.applyLinear(env, inputs)
	if err != nil {
		return nil, err
	}

	return []*tensor.Tensor{out[0].Clip(0, math.Inf(1))}, nil
}

// checkKernel verifies that a kernel tensor matches the configured window.
func checkKernel(name string, op OpConfig, kernel *tensor.Tensor) error {
	want := tensor.S(op.KernelH, op.KernelW, op.kernels())
	if kernel.Shape() != want {
		return errors.Wrapf(tensor.ErrShapeMismatch,
			"%s: kernel is %s, configured for %s", name, kernel.Shape(), want)
	}

	return nil
}

func kernelVolume(op OpConfig) float64 {
	return float64(op.KernelH * op.KernelW)
}

// VoltageConvSpec describes a capacitor-DAC convolution in the voltage
// domain, read out through a source follower.
type VoltageConvSpec struct {
	UnitCapacitance float64
	Supply          float64
	Follower        SourceFollowerSpec

	// Noise is the capacitor-array noise.
	Noise NoiseParams
}

// VoltageConv computes sliding-window dot products on voltages.
type VoltageConv struct {
	base
	configured
	spec VoltageConvSpec
	sf   *SourceFollower
}

// NewVoltageConv creates a voltage-domain convolution.
func NewVoltageConv(name string, spec VoltageConvSpec) *VoltageConv {
	return &VoltageConv{
		base: newBase(name, spec.Noise),
		spec: spec,
		sf:   NewSourceFollower(name+".SF", spec.Follower),
	}
}

// Energy returns the energy of one output pixel across all kernels.
func (p *VoltageConv) Energy() (float64, error) {
	if err := p.requireConfig(p.name); err != nil {
		return 0, err
	}

	caps, err := capEnergy(p.name, p.spec.UnitCapacitance, p.spec.Supply)
	if err != nil {
		return 0, err
	}

	sf, err := p.sf.Energy()
	if err != nil {
		return 0, err
	}

	return float64(p.op.kernels()) * (kernelVolume(p.op)*caps + sf), nil
}

// Apply convolves inputs[0] with the kernel in inputs[1].
func (p *VoltageConv) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.requireConfig(p.name); err != nil {
		return nil, err
	}

	if err := p.expectInputs(inputs, 2); err != nil {
		return nil, err
	}

	if err := p.validateNoise(); err != nil {
		return nil, err
	}

	if err := checkKernel(p.name, p.op, inputs[1]); err != nil {
		return nil, err
	}

	dot := tensor.Convolve(inputs[0], inputs[1], p.op.Window(),
		func(x, w float64) float64 { return x * w })

	return p.sf.Apply(env, []*tensor.Tensor{p.linear(env, dot)})
}

// TimeConvSpec describes a convolution on pulse widths: current mirrors
// multiply and an analog memory integrates.
type TimeConvSpec struct {
	Mirror CurrentMirrorSpec
	Memory ActiveAnalogMemorySpec
}

// TimeConv computes sliding-window dot products in the time domain.
type TimeConv struct {
	base
	configured
	mirror *CurrentMirror
	memory *ActiveAnalogMemory
}

// NewTimeConv creates a time-domain convolution.
func NewTimeConv(name string, spec TimeConvSpec) *TimeConv {
	return &TimeConv{
		base:   newBase(name, NoiseParams{}),
		mirror: NewCurrentMirror(name+".CM", spec.Mirror),
		memory: NewActiveAnalogMemory(name+".AM", spec.Memory),
	}
}

// Energy returns the energy of one output pixel across all kernels.
func (p *TimeConv) Energy() (float64, error) {
	if err := p.requireConfig(p.name); err != nil {
		return 0, err
	}

	cm, err := p.mirror.Energy()
	if err != nil {
		return 0, err
	}

	mem, err := p.memory.Energy()
	if err != nil {
		return 0, err
	}

	return float64(p.op.kernels()) * (kernelVolume(p.op)*cm + mem), nil
}

// Apply multiplies every window element through the mirror, sums, and
// stores the result in the memory.
func (p *TimeConv) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.requireConfig(p.name); err != nil {
		return nil, err
	}

	if err := p.expectInputs(inputs, 2); err != nil {
		return nil, err
	}

	mn := p.mirror.noise
	if err := mn.Validate(); err != nil {
		return nil, errors.Wrapf(err, "%s", p.mirror.name)
	}

	if err := checkKernel(p.name, p.op, inputs[1]); err != nil {
		return nil, err
	}

	r := env.Rand(p.mirror.id)
	g := mn.gain()
	dot := tensor.Convolve(inputs[0], inputs[1], p.op.Window(),
		func(x, w float64) float64 {
			return gaussian(r, g*x*w+mn.Offset, mn.Sigma)
		})

	return p.memory.Apply(env, []*tensor.Tensor{dot})
}

// BinaryConvSpec describes a binary-weight convolution that accumulates
// positive and negative weights on separate capacitor banks.
type BinaryConvSpec struct {
	UnitCapacitance float64
	Supply          float64
	Amplifier       ColumnAmplifierSpec
}

// BinaryConv returns the positive and negative partial sums separately.
type BinaryConv struct {
	base
	configured
	spec BinaryConvSpec
	pos  *ColumnAmplifier
	neg  *ColumnAmplifier
}

// NewBinaryConv creates a binary-weight convolution.
func NewBinaryConv(name string, spec BinaryConvSpec) *BinaryConv {
	return &BinaryConv{
		base: newBase(name, NoiseParams{}),
		spec: spec,
		pos:  NewColumnAmplifier(name+".Pos", spec.Amplifier),
		neg:  NewColumnAmplifier(name+".Neg", spec.Amplifier),
	}
}

// Energy returns the energy of one output pixel across all kernels.
func (p *BinaryConv) Energy() (float64, error) {
	if err := p.requireConfig(p.name); err != nil {
		return 0, err
	}

	caps, err := capEnergy(p.name, p.spec.UnitCapacitance, p.spec.Supply)
	if err != nil {
		return 0, err
	}

	amps, err := sumEnergy(p.pos, p.neg)
	if err != nil {
		return 0, err
	}

	return float64(p.op.kernels()) * (kernelVolume(p.op)*caps + amps), nil
}

// Apply returns [positive sum, negative sum]; the consumer subtracts them.
func (p *BinaryConv) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.requireConfig(p.name); err != nil {
		return nil, err
	}

	if err := p.expectInputs(inputs, 2); err != nil {
		return nil, err
	}

	if err := checkKernel(p.name, p.op, inputs[1]); err != nil {
		return nil, err
	}

	win := p.op.Window()
	posDot := tensor.Convolve(inputs[0], inputs[1], win,
		func(x, w float64) float64 { return x * math.Max(w, 0) })
	negDot := tensor.Convolve(inputs[0], inputs[1], win,
		func(x, w float64) float64 { return x * math.Max(-w, 0) })

	pos, err := p.pos.Apply(env, []*tensor.Tensor{posDot})
	if err != nil {
		return nil, err
	}

	neg, err := p.neg.Apply(env, []*tensor.Tensor{negDot})
	if err != nil {
		return nil, err
	}

	return []*tensor.Tensor{pos[0], neg[0]}, nil
}

// MaxPool takes the maximum of each window through a maximum-voltage
// circuit.
type MaxPool struct {
	base
	configured
	max *MaximumVoltage
}

// NewMaxPool creates an analog max-pooling block.
func NewMaxPool(name string, spec MaximumVoltageSpec) *MaxPool {
	return &MaxPool{
		base: newBase(name, NoiseParams{}),
		max:  NewMaximumVoltage(name+".Max", spec),
	}
}

// Energy returns the energy of one output pixel.
func (p *MaxPool) Energy() (float64, error) {
	if err := p.requireConfig(p.name); err != nil {
		return 0, err
	}

	return p.max.Energy()
}

// Apply pools each window.
func (p *MaxPool) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.requireConfig(p.name); err != nil {
		return nil, err
	}

	if err := p.expectInputs(inputs, 1); err != nil {
		return nil, err
	}

	pooled := tensor.Reduce(inputs[0], p.op.Window(), maxOfPatch)

	return p.max.applyLinear(env, []*tensor.Tensor{pooled})
}

func maxOfPatch(patch []float64) float64 {
	m := math.Inf(-1)
	for _, v := range patch {
		m = math.Max(m, v)
	}

	return m
}

func meanOfPatch(patch []float64) float64 {
	if len(patch) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range patch {
		sum += v
	}

	return sum / float64(len(patch))
}

// PassiveBinningSpec describes charge-sharing binning.
type PassiveBinningSpec struct {
	UnitCapacitance float64
	Supply          float64
	Noise           NoiseParams
}

// PassiveBinning averages each window by charge sharing.
type PassiveBinning struct {
	base
	configured
	spec PassiveBinningSpec
}

// NewPassiveBinning creates a passive binning block.
func NewPassiveBinning(name string, spec PassiveBinningSpec) *PassiveBinning {
	return &PassiveBinning{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns the energy of one output pixel.
func (p *PassiveBinning) Energy() (float64, error) {
	if err := p.requireConfig(p.name); err != nil {
		return 0, err
	}

	e, err := capEnergy(p.name, p.spec.UnitCapacitance, p.spec.Supply)

	return kernelVolume(p.op) * e, err
}

// Apply bins each window.
func (p *PassiveBinning) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.requireConfig(p.name); err != nil {
		return nil, err
	}

	if err := p.expectInputs(inputs, 1); err != nil {
		return nil, err
	}

	binned := tensor.Reduce(inputs[0], p.op.Window(), meanOfPatch)

	return p.applyLinear(env, []*tensor.Tensor{binned})
}

// ActiveBinning averages each window with a column amplifier.
type ActiveBinning struct {
	base
	configured
	amp *ColumnAmplifier
}

// NewActiveBinning creates an active binning block.
func NewActiveBinning(name string, spec ColumnAmplifierSpec) *ActiveBinning {
	return &ActiveBinning{
		base: newBase(name, NoiseParams{}),
		amp:  NewColumnAmplifier(name+".Amp", spec),
	}
}

// Energy returns the energy of one output pixel.
func (p *ActiveBinning) Energy() (float64, error) {
	if err := p.requireConfig(p.name); err != nil {
		return 0, err
	}

	return p.amp.Energy()
}

// Apply bins each window.
func (p *ActiveBinning) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.requireConfig(p.name); err != nil {
		return nil, err
	}

	if err := p.expectInputs(inputs, 1); err != nil {
		return nil, err
	}

	binned := tensor.Reduce(inputs[0], p.op.Window(), meanOfPatch)

	return p.amp.Apply(env, []*tensor.Tensor{binned})
}
