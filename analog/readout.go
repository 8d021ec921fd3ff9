package analog

import (
	"math"

	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/physics"
	"github.com/sarchlab/camsim/tensor"
)

// SourceFollowerSpec describes a source-follower buffer.
type SourceFollowerSpec struct {
	Supply      float64
	BiasCurrent float64
	Time        float64
	Noise       NoiseParams
}

// SourceFollower buffers a voltage onto a load. Its energy is V*I*T.
type SourceFollower struct {
	base
	spec SourceFollowerSpec
}

// NewSourceFollower creates a source follower.
func NewSourceFollower(name string, spec SourceFollowerSpec) *SourceFollower {
	return &SourceFollower{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns V*I*T.
func (p *SourceFollower) Energy() (float64, error) {
	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"supply": s.Supply, "bias current": s.BiasCurrent, "time": s.Time,
	}); err != nil {
		return 0, err
	}

	return s.Supply * s.BiasCurrent * s.Time, nil
}

// Apply runs the linear contract.
func (p *SourceFollower) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	return p.applyLinear(env, inputs)
}

// ColumnAmplifierSpec describes a switched-capacitor column amplifier.
type ColumnAmplifierSpec struct {
	InputCapacitance    float64
	FeedbackCapacitance float64
	LoadCapacitance     float64
	Supply              float64
	HoldTime            float64

	// Gain is the closed-loop gain used to size the opamp. Zero means
	// InputCapacitance/FeedbackCapacitance.
	Gain float64

	// Bandwidth is the settling bandwidth. Zero means 1/HoldTime.
	Bandwidth float64

	Differential bool
	Inversion    physics.Inversion
	Oracle       physics.Oracle

	Noise NoiseParams
}

// ColumnAmplifier is a per-column switched-capacitor gain stage.
type ColumnAmplifier struct {
	base
	spec ColumnAmplifierSpec
}

// NewColumnAmplifier creates a column amplifier.
func NewColumnAmplifier(
	name string,
	spec ColumnAmplifierSpec,
) *ColumnAmplifier {
	if spec.Oracle == nil {
		spec.Oracle = physics.Default
	}

	return &ColumnAmplifier{base: newBase(name, spec.Noise), spec: spec}
}

// OpampCurrent returns the bias current asked from the oracle.
func (p *ColumnAmplifier) OpampCurrent() float64 {
	s := p.spec

	gain := s.Gain
	if gain == 0 && s.FeedbackCapacitance > 0 {
		gain = s.InputCapacitance / s.FeedbackCapacitance
	}

	return s.Oracle.GmID(s.LoadCapacitance, gain,
		bandwidth(s.Bandwidth, s.HoldTime), s.Differential, s.Inversion)
}

// Energy returns (Cin + Cfb + Cload)*V^2 + V*I_opamp*T_hold.
func (p *ColumnAmplifier) Energy() (float64, error) {
	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"input capacitance":    s.InputCapacitance,
		"feedback capacitance": s.FeedbackCapacitance,
		"load capacitance":     s.LoadCapacitance,
		"supply":               s.Supply,
		"hold time":            s.HoldTime,
	}); err != nil {
		return 0, err
	}

	caps := s.InputCapacitance + s.FeedbackCapacitance + s.LoadCapacitance
	v := s.Supply

	return caps*v*v + v*p.OpampCurrent()*s.HoldTime, nil
}

// Apply runs the linear contract, with column-wise PRNU if requested.
func (p *ColumnAmplifier) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	return p.applyLinear(env, inputs)
}

func bandwidth(bw, holdTime float64) float64 {
	if bw > 0 {
		return bw
	}

	if holdTime > 0 {
		return 1 / holdTime
	}

	return 0
}

// ActiveAnalogMemorySpec describes an opamp-buffered sample-and-hold.
type ActiveAnalogMemorySpec struct {
	SampleCapacitance       float64
	CompensationCapacitance float64
	Supply                  float64
	HoldTime                float64
	Bandwidth               float64
	Inversion               physics.Inversion
	Oracle                  physics.Oracle
	Noise                   NoiseParams
}

// ActiveAnalogMemory stores a value on a capacitor behind a unity-gain
// buffer.
type ActiveAnalogMemory struct {
	base
	spec ActiveAnalogMemorySpec
}

// NewActiveAnalogMemory creates an active analog memory.
func NewActiveAnalogMemory(
	name string,
	spec ActiveAnalogMemorySpec,
) *ActiveAnalogMemory {
	if spec.Oracle == nil {
		spec.Oracle = physics.Default
	}

	return &ActiveAnalogMemory{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns V*I_opamp*T_hold + (Cs + Cc)*V^2.
func (p *ActiveAnalogMemory) Energy() (float64, error) {
	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"sample capacitance":       s.SampleCapacitance,
		"compensation capacitance": s.CompensationCapacitance,
		"supply":                   s.Supply,
		"hold time":                s.HoldTime,
	}); err != nil {
		return 0, err
	}

	current := s.Oracle.GmID(s.SampleCapacitance, 1,
		bandwidth(s.Bandwidth, s.HoldTime), false, s.Inversion)
	v := s.Supply
	caps := s.SampleCapacitance + s.CompensationCapacitance

	return v*current*s.HoldTime + caps*v*v, nil
}

// Apply runs the linear contract.
func (p *ActiveAnalogMemory) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	return p.applyLinear(env, inputs)
}

// PassiveAnalogMemorySpec describes a bare storage capacitor.
type PassiveAnalogMemorySpec struct {
	Capacitance float64
	Supply      float64
	Noise       NoiseParams
}

// PassiveAnalogMemory stores a value on a switched capacitor.
type PassiveAnalogMemory struct {
	base
	spec PassiveAnalogMemorySpec
}

// NewPassiveAnalogMemory creates a passive analog memory.
func NewPassiveAnalogMemory(
	name string,
	spec PassiveAnalogMemorySpec,
) *PassiveAnalogMemory {
	return &PassiveAnalogMemory{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns C*V^2.
func (p *PassiveAnalogMemory) Energy() (float64, error) {
	return capEnergy(p.name, p.spec.Capacitance, p.spec.Supply)
}

// Apply runs the linear contract.
func (p *PassiveAnalogMemory) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	return p.applyLinear(env, inputs)
}

func capEnergy(name string, c, v float64) (float64, error) {
	if err := nonNegative(name, map[string]float64{
		"capacitance": c, "supply": v,
	}); err != nil {
		return 0, err
	}

	return c * v * v, nil
}

// CurrentMirrorSpec describes a current mirror. With EnableCompute the
// mirror ratio is set by a weight input and the block multiplies.
type CurrentMirrorSpec struct {
	Supply        float64
	Current       float64
	Time          float64
	EnableCompute bool
	Noise         NoiseParams
}

// CurrentMirror copies (or scales) a current.
type CurrentMirror struct {
	base
	spec CurrentMirrorSpec
}

// NewCurrentMirror creates a current mirror.
func NewCurrentMirror(name string, spec CurrentMirrorSpec) *CurrentMirror {
	return &CurrentMirror{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns V*I*T.
func (p *CurrentMirror) Energy() (float64, error) {
	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"supply": s.Supply, "current": s.Current, "time": s.Time,
	}); err != nil {
		return 0, err
	}

	return s.Supply * s.Current * s.Time, nil
}

// Apply returns gain*I + noise, or gain*I*W + noise when computing.
func (p *CurrentMirror) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if !p.spec.EnableCompute {
		return p.applyLinear(env, inputs)
	}

	if err := p.expectInputs(inputs, 2); err != nil {
		return nil, err
	}

	if err := p.validateNoise(); err != nil {
		return nil, err
	}

	w, err := matchShape(inputs[1], inputs[0].Shape())
	if err != nil {
		return nil, errors.Wrapf(err, "%s", p.name)
	}

	return []*tensor.Tensor{p.linear(env, tensor.Mul(inputs[0], w))}, nil
}

// matchShape broadcasts w to s where possible.
func matchShape(w *tensor.Tensor, s tensor.Shape) (*tensor.Tensor, error) {
	ws := w.Shape()
	if ws == s {
		return w, nil
	}

	fits := func(a, b int) bool { return a == b || a == 1 }
	if !fits(ws.H, s.H) || !fits(ws.W, s.W) || !fits(ws.C, s.C) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch,
			"cannot broadcast %s to %s", ws, s)
	}

	return w.Broadcast(s), nil
}

// DigitalToCurrentSpec describes a current-steering DAC.
type DigitalToCurrentSpec struct {
	Supply     float64
	Current    float64
	Time       float64
	Resolution int
	Noise      NoiseParams
}

// DigitalToCurrent converts digital weights into currents.
type DigitalToCurrent struct {
	base
	spec DigitalToCurrentSpec
}

// NewDigitalToCurrent creates a current DAC.
func NewDigitalToCurrent(
	name string,
	spec DigitalToCurrentSpec,
) *DigitalToCurrent {
	return &DigitalToCurrent{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns V*I*T*2^resolution.
func (p *DigitalToCurrent) Energy() (float64, error) {
	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"supply": s.Supply, "current": s.Current, "time": s.Time,
	}); err != nil {
		return 0, err
	}

	if s.Resolution < 0 {
		return 0, errors.Wrapf(ErrParameter, "%s: resolution %d",
			p.name, s.Resolution)
	}

	return s.Supply * s.Current * s.Time * math.Exp2(float64(s.Resolution)),
		nil
}

// Apply runs the linear contract.
func (p *DigitalToCurrent) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	return p.applyLinear(env, inputs)
}

// ComparatorSpec describes a continuous-time comparator.
type ComparatorSpec struct {
	Supply      float64
	BiasCurrent float64
	Time        float64
	Noise       NoiseParams
}

// Comparator passes its first input where it exceeds the second.
type Comparator struct {
	base
	spec ComparatorSpec
}

// NewComparator creates a comparator.
func NewComparator(name string, spec ComparatorSpec) *Comparator {
	return &Comparator{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns V*I*T.
func (p *Comparator) Energy() (float64, error) {
	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"supply": s.Supply, "bias current": s.BiasCurrent, "time": s.Time,
	}); err != nil {
		return 0, err
	}

	return s.Supply * s.BiasCurrent * s.Time, nil
}

// Apply returns where(gain*(I1 - I2) + noise >= 0, I1, 0).
func (p *Comparator) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.expectInputs(inputs, 2); err != nil {
		return nil, err
	}

	if err := p.validateNoise(); err != nil {
		return nil, err
	}

	if err := tensor.SameShape(inputs...); err != nil {
		return nil, errors.Wrapf(err, "%s", p.name)
	}

	diff := p.linear(env, tensor.Sub(inputs[0], inputs[1]))
	out := tensor.Zip(inputs[0], diff, func(x, d float64) float64 {
		if d >= 0 {
			return x
		}

		return 0
	})

	return []*tensor.Tensor{out}, nil
}

// ADCSpec describes an analog-to-digital converter.
type ADCSpec struct {
	// FOM is the Walden figure of merit in joules per conversion step.
	FOM        float64
	Resolution int
	VMax       float64
	Noise      NoiseParams
}

// ADC quantizes a voltage into a digital code.
type ADC struct {
	base
	spec ADCSpec
}

// NewADC creates an ADC.
func NewADC(name string, spec ADCSpec) *ADC {
	return &ADC{base: newBase(name, spec.Noise), spec: spec}
}

func (p *ADC) validate() error {
	if p.spec.Resolution <= 0 || p.spec.Resolution > 32 {
		return errors.Wrapf(ErrParameter, "%s: resolution %d",
			p.name, p.spec.Resolution)
	}

	if p.spec.FOM < 0 {
		return errors.Wrapf(ErrParameter, "%s: FOM %g", p.name, p.spec.FOM)
	}

	return nil
}

// Energy returns FOM*2^resolution.
func (p *ADC) Energy() (float64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	return p.spec.FOM * math.Exp2(float64(p.spec.Resolution)), nil
}

// Apply returns round(clip(I + noise, 0, VMax) * (2^res - 1) / VMax).
func (p *ADC) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if p.spec.VMax <= 0 {
		return nil, errors.Wrapf(ErrParameter, "%s: vmax %g",
			p.name, p.spec.VMax)
	}

	out, err := p.applyLinear(env, inputs)
	if err != nil {
		return nil, err
	}

	levels := math.Exp2(float64(p.spec.Resolution)) - 1
	codes := out[0].Clip(0, p.spec.VMax).Map(func(v float64) float64 {
		return math.Round(v * levels / p.spec.VMax)
	})

	return []*tensor.Tensor{codes}, nil
}
