package analog

import (
	"math"
	"math/rand/v2"

	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/physics"
	"github.com/sarchlab/camsim/tensor"
)

// PinnedPhotodiodeSpec describes a pinned photodiode.
type PinnedPhotodiodeSpec struct {
	Capacitance float64
	Supply      float64

	// DarkCurrent is the mean number of dark electrons per exposure.
	DarkCurrent float64

	// EnableDCNU replaces DarkCurrent with a fixed per-pixel field of
	// relative standard deviation DCNUSigma.
	EnableDCNU bool
	DCNUSigma  float64
}

// PinnedPhotodiode converts photons into electrons with shot noise.
type PinnedPhotodiode struct {
	base
	spec PinnedPhotodiodeSpec
}

// NewPinnedPhotodiode creates a pinned photodiode.
func NewPinnedPhotodiode(
	name string,
	spec PinnedPhotodiodeSpec,
) *PinnedPhotodiode {
	return &PinnedPhotodiode{base: newBase(name, NoiseParams{}), spec: spec}
}

// Energy returns C_pd*V_pd^2.
func (p *PinnedPhotodiode) Energy() (float64, error) {
	return capEnergy(p.name, p.spec.Capacitance, p.spec.Supply)
}

// Apply returns Poisson(I) + Poisson(dark), clipped at zero.
func (p *PinnedPhotodiode) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.expectInputs(inputs, 1); err != nil {
		return nil, err
	}

	s := p.spec
	if err := nonNegative(p.name, map[string]float64{
		"dark current": s.DarkCurrent, "dcnu sigma": s.DCNUSigma,
	}); err != nil {
		return nil, err
	}

	photons := inputs[0]
	if photons.Min() < 0 {
		return nil, errors.Wrapf(ErrParameter, "%s: negative photon count",
			p.name)
	}

	dark := p.darkField(env, photons.Shape())
	r := env.Rand(p.id)

	out := tensor.New(photons.Shape())
	data := out.Data()
	for i, lambda := range photons.Data() {
		d := s.DarkCurrent
		if dark != nil {
			d = dark.Data()[i]
		}

		data[i] = poisson(r, lambda) + poisson(r, d)
	}

	return []*tensor.Tensor{out}, nil
}

func (p *PinnedPhotodiode) darkField(
	env *Env,
	shape tensor.Shape,
) *tensor.Tensor {
	s := p.spec
	if !s.EnableDCNU || s.DCNUSigma == 0 || s.DarkCurrent == 0 {
		return nil
	}

	return env.Field(p.id, fieldDCNU, shape,
		func(r *rand.Rand, shape tensor.Shape) *tensor.Tensor {
			return tensor.FromGen(shape, func() float64 {
				v := gaussian(r, s.DarkCurrent, s.DarkCurrent*s.DCNUSigma)
				return math.Max(v, 0)
			})
		})
}

// FloatingDiffusionSpec describes the charge-to-voltage sense node. The
// noise gain is the conversion gain and the noise sigma is the reset (kTC)
// noise.
type FloatingDiffusionSpec struct {
	Capacitance float64
	Supply      float64
	EnableCDS   bool
	Noise       NoiseParams
}

// FloatingDiffusion turns collected charge into a voltage sample.
type FloatingDiffusion struct {
	base
	spec FloatingDiffusionSpec
}

// NewFloatingDiffusion creates a floating diffusion node.
func NewFloatingDiffusion(
	name string,
	spec FloatingDiffusionSpec,
) *FloatingDiffusion {
	return &FloatingDiffusion{base: newBase(name, spec.Noise), spec: spec}
}

// Energy returns C_fd*V^2.
func (p *FloatingDiffusion) Energy() (float64, error) {
	return capEnergy(p.name, p.spec.Capacitance, p.spec.Supply)
}

// Apply returns [signal + reset, reset] with CDS enabled, or
// [signal + reset] otherwise.
func (p *FloatingDiffusion) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.expectInputs(inputs, 1); err != nil {
		return nil, err
	}

	if err := p.validateNoise(); err != nil {
		return nil, err
	}

	gainOnly := p.noise
	gainOnly.Sigma = 0
	signal := gainOnly.transfer(env, p.id, inputs[0])

	reset := tensor.New(signal.Shape())
	addNoise(reset, env.Rand(p.id), p.noise.Sigma, 0)

	sum := tensor.Add(signal, reset)
	if !p.spec.EnableCDS {
		return []*tensor.Tensor{sum}, nil
	}

	return []*tensor.Tensor{sum, reset}, nil
}

// CorrelatedDoubleSamplingSpec describes a CDS stage.
type CorrelatedDoubleSamplingSpec struct {
	SampleCapacitance float64
	Supply            float64
	Noise             NoiseParams
}

// CorrelatedDoubleSampling subtracts the reset sample from the signal
// sample.
type CorrelatedDoubleSampling struct {
	base
	spec CorrelatedDoubleSamplingSpec
}

// NewCorrelatedDoubleSampling creates a CDS stage.
func NewCorrelatedDoubleSampling(
	name string,
	spec CorrelatedDoubleSamplingSpec,
) *CorrelatedDoubleSampling {
	return &CorrelatedDoubleSampling{
		base: newBase(name, spec.Noise),
		spec: spec,
	}
}

// Energy charges both sample capacitors once: 2*C*V^2.
func (p *CorrelatedDoubleSampling) Energy() (float64, error) {
	e, err := capEnergy(p.name, p.spec.SampleCapacitance, p.spec.Supply)
	return 2 * e, err
}

// Apply returns gain*(signal - reset) + noise.
func (p *CorrelatedDoubleSampling) Apply(
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

	diff := tensor.Sub(inputs[0], inputs[1])

	return []*tensor.Tensor{p.linear(env, diff)}, nil
}

// ActivePixelSensorSpec describes a 3T or 4T active pixel with its column
// readout.
type ActivePixelSensorSpec struct {
	NumTransistor int
	EnableCDS     bool

	PDCapacitance float64
	PDSupply      float64

	// FDCapacitance is only charged by 4T pixels.
	FDCapacitance float64

	LoadCapacitance float64

	// OutputSwing is the column swing. Zero means 1 V.
	OutputSwing float64

	// NumReadout is the number of column reads per frame. Zero means one
	// read, or two with CDS.
	NumReadout int

	// DynamicSF scales the readout term by OutputSwing/PDSupply.
	DynamicSF bool

	ArrayVSize int
	TechNode   float64
	Pitch      float64
	Oracle     physics.Oracle

	DarkCurrent float64
	EnableDCNU  bool
	DCNUSigma   float64

	// FDNoise holds the conversion gain and the reset noise.
	FDNoise NoiseParams

	// SFNoise holds the source-follower gain and read noise.
	SFNoise NoiseParams
}

// ActivePixelSensor chains a photodiode, a sense node, optional CDS and a
// source follower.
type ActivePixelSensor struct {
	base
	spec ActivePixelSensorSpec

	pd  *PinnedPhotodiode
	fd  *FloatingDiffusion
	cds *CorrelatedDoubleSampling
	sf  *SourceFollower
}

// NewActivePixelSensor creates an active pixel.
func NewActivePixelSensor(
	name string,
	spec ActivePixelSensorSpec,
) *ActivePixelSensor {
	if spec.Oracle == nil {
		spec.Oracle = physics.Default
	}

	p := &ActivePixelSensor{
		base: newBase(name, spec.SFNoise),
		spec: spec,
	}

	p.pd = NewPinnedPhotodiode(name+".PD", PinnedPhotodiodeSpec{
		Capacitance: spec.PDCapacitance,
		Supply:      spec.PDSupply,
		DarkCurrent: spec.DarkCurrent,
		EnableDCNU:  spec.EnableDCNU,
		DCNUSigma:   spec.DCNUSigma,
	})
	p.fd = NewFloatingDiffusion(name+".FD", FloatingDiffusionSpec{
		Capacitance: spec.FDCapacitance,
		Supply:      spec.PDSupply,
		EnableCDS:   spec.EnableCDS,
		Noise:       spec.FDNoise,
	})
	p.sf = NewSourceFollower(name+".SF", SourceFollowerSpec{
		Supply: spec.PDSupply,
		Noise:  spec.SFNoise,
	})

	if spec.EnableCDS {
		p.cds = NewCorrelatedDoubleSampling(name+".CDS",
			CorrelatedDoubleSamplingSpec{Supply: spec.PDSupply})
	}

	return p
}

func (p *ActivePixelSensor) numReadout() int {
	switch {
	case p.spec.NumReadout > 0:
		return p.spec.NumReadout
	case p.spec.EnableCDS:
		return 2
	default:
		return 1
	}
}

func (p *ActivePixelSensor) outputSwing() float64 {
	if p.spec.OutputSwing == 0 {
		return 1
	}

	return p.spec.OutputSwing
}

// Energy returns C_pd*V^2 + [4T] C_fd*V^2 +
// N_readout*(C_load + C_parasitic)*V*V_swing.
func (p *ActivePixelSensor) Energy() (float64, error) {
	s := p.spec
	if s.NumTransistor != 3 && s.NumTransistor != 4 {
		return 0, errors.Wrapf(ErrParameter,
			"%s: %d-transistor pixels are not supported",
			p.name, s.NumTransistor)
	}

	if err := nonNegative(p.name, map[string]float64{
		"pd capacitance":   s.PDCapacitance,
		"fd capacitance":   s.FDCapacitance,
		"load capacitance": s.LoadCapacitance,
		"supply":           s.PDSupply,
		"output swing":     s.OutputSwing,
	}); err != nil {
		return 0, err
	}

	v := s.PDSupply
	swing := p.outputSwing()

	e := s.PDCapacitance * v * v
	if s.NumTransistor == 4 {
		e += s.FDCapacitance * v * v
	}

	parasitic := s.Oracle.ParasiticCapacitance(s.ArrayVSize, s.TechNode, s.Pitch)
	readout := float64(p.numReadout()) *
		(s.LoadCapacitance + parasitic) * v * swing

	if s.DynamicSF && v > 0 {
		readout *= swing / v
	}

	return e + readout, nil
}

// Apply turns photons into a pixel output voltage.
func (p *ActivePixelSensor) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	if err := p.expectInputs(inputs, 1); err != nil {
		return nil, err
	}

	charge, err := p.pd.Apply(env, inputs)
	if err != nil {
		return nil, err
	}

	samples, err := p.fd.Apply(env, charge)
	if err != nil {
		return nil, err
	}

	if p.cds != nil {
		samples, err = p.cds.Apply(env, samples)
		if err != nil {
			return nil, err
		}
	}

	return p.sf.Apply(env, samples)
}

// DigitalPixelSensorSpec describes a pixel with an in-pixel ADC.
type DigitalPixelSensorSpec struct {
	Pixel ActivePixelSensorSpec
	ADC   ADCSpec
}

// DigitalPixelSensor is an active pixel followed by its own ADC.
type DigitalPixelSensor struct {
	base
	aps *ActivePixelSensor
	adc *ADC
}

// NewDigitalPixelSensor creates a digital pixel.
func NewDigitalPixelSensor(
	name string,
	spec DigitalPixelSensorSpec,
) *DigitalPixelSensor {
	return &DigitalPixelSensor{
		base: newBase(name, NoiseParams{}),
		aps:  NewActivePixelSensor(name+".APS", spec.Pixel),
		adc:  NewADC(name+".ADC", spec.ADC),
	}
}

// Energy returns the pixel energy plus one conversion.
func (p *DigitalPixelSensor) Energy() (float64, error) {
	return sumEnergy(p.aps, p.adc)
}

// Apply returns digital codes.
func (p *DigitalPixelSensor) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	v, err := p.aps.Apply(env, inputs)
	if err != nil {
		return nil, err
	}

	return p.adc.Apply(env, v)
}

// PulseWidthModulationPixelSpec describes a pixel that encodes light as a
// pulse width. Noise maps electrons to time.
type PulseWidthModulationPixelSpec struct {
	Photodiode PinnedPhotodiodeSpec
	Comparator ComparatorSpec
	Noise      NoiseParams
}

// PulseWidthModulationPixel is a photodiode whose voltage is compared
// against a ramp.
type PulseWidthModulationPixel struct {
	base
	pd   *PinnedPhotodiode
	comp *Comparator
}

// NewPulseWidthModulationPixel creates a PWM pixel.
func NewPulseWidthModulationPixel(
	name string,
	spec PulseWidthModulationPixelSpec,
) *PulseWidthModulationPixel {
	return &PulseWidthModulationPixel{
		base: newBase(name, spec.Noise),
		pd:   NewPinnedPhotodiode(name+".PD", spec.Photodiode),
		comp: NewComparator(name+".Comp", spec.Comparator),
	}
}

// Energy returns the photodiode energy plus the comparator energy.
func (p *PulseWidthModulationPixel) Energy() (float64, error) {
	return sumEnergy(p.pd, p.comp)
}

// Apply returns a pulse width per pixel.
func (p *PulseWidthModulationPixel) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	charge, err := p.pd.Apply(env, inputs)
	if err != nil {
		return nil, err
	}

	return p.applyLinear(env, charge)
}

func sumEnergy(ps ...Primitive) (float64, error) {
	total := 0.0
	for _, p := range ps {
		e, err := p.Energy()
		if err != nil {
			return 0, err
		}

		total += e
	}

	return total, nil
}
