package digital

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/tensor"
)

// ErrUnsupportedStage is returned when a unit cannot run a stage.
var ErrUnsupportedStage = errors.New("digital: stage not supported by unit")

// Throughput is what a unit does for one firing of a stage.
type Throughput struct {
	// InTiles holds the pixels read from each producer.
	InTiles []tensor.Shape
	OutTile tensor.Shape
	// Delay is the number of compute cycles of one firing.
	Delay int
}

// TotalRead returns the pixels read per firing, summed over producers.
func (t Throughput) TotalRead() int {
	n := 0
	for _, s := range t.InTiles {
		n += s.Volume()
	}

	return n
}

// TotalWrite returns the pixels written per full firing.
func (t Throughput) TotalWrite() int {
	return t.OutTile.Volume()
}

// A Unit is a digital compute block that runs stages.
type Unit interface {
	Name() string

	InputBuffer() Memory
	OutputBuffer() Memory
	SetInputBuffer(m Memory)
	SetOutputBuffer(m Memory)

	// NumStages is the pipeline depth. It adds NumStages-1 cycles to the
	// first firing of each reservation.
	NumStages() int

	Throughput(stage algo.Stage) (Throughput, error)

	AddComputeCycles(n int)
	AddWrites(n int)
	ComputeCycles() int
	Writes() int

	// Reset clears the counters of a previous run.
	Reset()

	// ComputeEnergy returns the energy spent so far, in pJ.
	ComputeEnergy() float64
}

type unitBase struct {
	name      string
	in, out   Memory
	numStages int

	computeCycles int
	writes        int
}

func newUnitBase(name string, numStages int) unitBase {
	if numStages <= 0 {
		numStages = 1
	}

	return unitBase{name: name, numStages: numStages}
}

func (u *unitBase) Name() string         { return u.name }
func (u *unitBase) InputBuffer() Memory  { return u.in }
func (u *unitBase) OutputBuffer() Memory { return u.out }
func (u *unitBase) NumStages() int       { return u.numStages }
func (u *unitBase) ComputeCycles() int   { return u.computeCycles }
func (u *unitBase) Writes() int          { return u.writes }

func (u *unitBase) SetInputBuffer(m Memory) {
	u.in = m
	m.AllowAccess(u.name)
}

func (u *unitBase) SetOutputBuffer(m Memory) {
	u.out = m
	m.AllowAccess(u.name)
}

func (u *unitBase) AddComputeCycles(n int) {
	u.computeCycles += n
}

func (u *unitBase) AddWrites(n int) {
	u.writes += n
}

func (u *unitBase) Reset() {
	u.computeCycles = 0
	u.writes = 0
}

func unsupported(u Unit, s algo.Stage) error {
	return errors.Wrapf(ErrUnsupportedStage, "unit %s, stage %s (%T)",
		u.Name(), s.Name(), s)
}

// GenericUnitSpec describes a unit with a fixed firing shape.
type GenericUnitSpec struct {
	// InputTiles is one tile per producer. A single tile is used for all
	// producers.
	InputTiles []tensor.Shape
	OutputTile tensor.Shape
	// Delay defaults to one cycle per firing.
	Delay     int
	NumStages int
	// EnergyPerCycle is in pJ.
	EnergyPerCycle float64
}

// GenericUnit reads and writes fixed tiles no matter the stage.
type GenericUnit struct {
	unitBase
	spec GenericUnitSpec
}

// NewGenericUnit creates a generic unit.
func NewGenericUnit(name string, spec GenericUnitSpec) *GenericUnit {
	if !spec.OutputTile.Valid() {
		panic("output tile must be positive")
	}

	if spec.Delay <= 0 {
		spec.Delay = 1
	}

	return &GenericUnit{
		unitBase: newUnitBase(name, spec.NumStages),
		spec:     spec,
	}
}

func (g *GenericUnit) Throughput(s algo.Stage) (Throughput, error) {
	n := len(s.InputShapes())
	tiles := make([]tensor.Shape, n)

	switch {
	case n == 0:
	case len(g.spec.InputTiles) == 1:
		for i := range tiles {
			tiles[i] = g.spec.InputTiles[0]
		}
	case len(g.spec.InputTiles) == n:
		copy(tiles, g.spec.InputTiles)
	default:
		return Throughput{}, errors.Errorf(
			"unit %s has %d input tiles, stage %s has %d inputs",
			g.name, len(g.spec.InputTiles), s.Name(), n)
	}

	return Throughput{
		InTiles: tiles,
		OutTile: g.spec.OutputTile,
		Delay:   g.spec.Delay,
	}, nil
}

func (g *GenericUnit) ComputeEnergy() float64 {
	return float64(g.computeCycles) * g.spec.EnergyPerCycle
}

// SystolicArraySpec describes a weight-stationary MAC array.
type SystolicArraySpec struct {
	Rows, Cols int
	NumStages  int
	// EnergyPerMAC is in pJ.
	EnergyPerMAC float64
}

// SystolicArray runs DNN layers. Output rows of a convolution map onto the
// array rows and output channels onto the columns.
type SystolicArray struct {
	unitBase
	spec SystolicArraySpec
}

// NewSystolicArray creates a systolic array.
func NewSystolicArray(name string, spec SystolicArraySpec) *SystolicArray {
	if spec.Rows <= 0 || spec.Cols <= 0 {
		panic("systolic array size must be positive")
	}

	return &SystolicArray{
		unitBase: newUnitBase(name, spec.NumStages),
		spec:     spec,
	}
}

func (a *SystolicArray) Throughput(s algo.Stage) (Throughput, error) {
	d, ok := s.(*algo.DNNProcessStage)
	if !ok {
		return Throughput{}, unsupported(a, s)
	}

	in := d.InputShapes()[0]
	out := d.OutputShape()
	k := d.Kernel()
	r, c := a.spec.Rows, a.spec.Cols

	switch d.Op() {
	case algo.Conv2D, algo.DWConv2D:
		tw := min(out.W, r)
		tc := min(out.C, c)
		inC := in.C
		delay := k.H * k.W * in.C

		if d.Op() == algo.DWConv2D {
			inC = tc
			delay = k.H * k.W
		}

		return Throughput{
			InTiles: []tensor.Shape{
				tensor.S(k.H, (tw-1)*d.Stride()+k.W, inC),
			},
			OutTile: tensor.S(1, tw, tc),
			Delay:   delay,
		}, nil
	case algo.FC:
		return Throughput{
			InTiles: []tensor.Shape{in},
			OutTile: tensor.S(1, 1, out.C),
			Delay:   ceilDiv(k.In*k.Out, r*c),
		}, nil
	default:
		return Throughput{}, unsupported(a, s)
	}
}

func (a *SystolicArray) ComputeEnergy() float64 {
	return float64(a.computeCycles*a.spec.Rows*a.spec.Cols) *
		a.spec.EnergyPerMAC
}

// SIMDProcessorSpec describes a vector unit.
type SIMDProcessorSpec struct {
	Lanes     int
	NumStages int
	// EnergyPerMAC is in pJ.
	EnergyPerMAC float64
}

// SIMDProcessor runs DNN layers one output channel at a time, with the
// lanes spread along the output row. A fully connected layer writes the
// whole output vector in one firing, with the MACs spread over the lanes.
type SIMDProcessor struct {
	unitBase
	spec SIMDProcessorSpec
}

// NewSIMDProcessor creates a SIMD processor.
func NewSIMDProcessor(name string, spec SIMDProcessorSpec) *SIMDProcessor {
	if spec.Lanes <= 0 {
		panic("SIMD lanes must be positive")
	}

	return &SIMDProcessor{
		unitBase: newUnitBase(name, spec.NumStages),
		spec:     spec,
	}
}

func (p *SIMDProcessor) Throughput(s algo.Stage) (Throughput, error) {
	d, ok := s.(*algo.DNNProcessStage)
	if !ok {
		return Throughput{}, unsupported(p, s)
	}

	in := d.InputShapes()[0]
	out := d.OutputShape()
	k := d.Kernel()
	l := p.spec.Lanes

	switch d.Op() {
	case algo.Conv2D, algo.DWConv2D:
		tw := min(out.W, l)
		inC := in.C
		delay := k.H * k.W * in.C

		if d.Op() == algo.DWConv2D {
			inC = 1
			delay = k.H * k.W
		}

		return Throughput{
			InTiles: []tensor.Shape{
				tensor.S(k.H, (tw-1)*d.Stride()+k.W, inC),
			},
			OutTile: tensor.S(1, tw, 1),
			Delay:   delay,
		}, nil
	case algo.FC:
		return Throughput{
			InTiles: []tensor.Shape{in},
			OutTile: tensor.S(1, 1, out.C),
			Delay:   ceilDiv(k.In*k.Out, l),
		}, nil
	default:
		return Throughput{}, unsupported(p, s)
	}
}

func (p *SIMDProcessor) ComputeEnergy() float64 {
	return float64(p.computeCycles*p.spec.Lanes) * p.spec.EnergyPerMAC
}

// DefaultADCEnergy is the conversion energy of one pixel, in pJ.
const DefaultADCEnergy = 600.0

// ADCSpec describes the analog-to-digital boundary of the chip.
type ADCSpec struct {
	OutputTile tensor.Shape
	NumStages  int
	// EnergyPerPixel is in pJ and defaults to DefaultADCEnergy.
	EnergyPerPixel float64
}

// ADC emits converted pixels into the digital domain. It has no input
// buffer and only runs stages without producers.
type ADC struct {
	unitBase
	spec ADCSpec
}

// NewADC creates an ADC unit.
func NewADC(name string, spec ADCSpec) *ADC {
	if !spec.OutputTile.Valid() {
		panic("output tile must be positive")
	}

	if spec.EnergyPerPixel == 0 {
		spec.EnergyPerPixel = DefaultADCEnergy
	}

	return &ADC{
		unitBase: newUnitBase(name, spec.NumStages),
		spec:     spec,
	}
}

// SetInputBuffer panics; an ADC reads from the analog domain.
func (a *ADC) SetInputBuffer(Memory) {
	panic("ADC unit has no input buffer")
}

func (a *ADC) Throughput(s algo.Stage) (Throughput, error) {
	if len(s.InputShapes()) != 0 {
		return Throughput{}, unsupported(a, s)
	}

	return Throughput{OutTile: a.spec.OutputTile, Delay: 1}, nil
}

func (a *ADC) ComputeEnergy() float64 {
	return float64(a.writes) * a.spec.EnergyPerPixel
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
