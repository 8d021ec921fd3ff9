package analog

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/tensor"
)

// Layer is the die an array resides on.
type Layer int

const (
	SensorLayer Layer = iota
	ComputeLayer
	OffChip
)

// Name returns the name of the layer.
func (l Layer) Name() string {
	switch l {
	case SensorLayer:
		return "sensor"
	case ComputeLayer:
		return "compute"
	case OffChip:
		return "off-chip"
	default:
		panic("invalid layer")
	}
}

type componentEntry struct {
	component *Component
	count     int
}

// An Array tiles components over a 2-D region and connects to other arrays.
type Array struct {
	name        string
	layer       Layer
	inputShapes []tensor.Shape
	outputShape tensor.Shape

	components   []componentEntry
	inputDomains []Domain
	outputDomain Domain

	sources      []*Component
	destinations []*Component

	producers []*Array
	consumers []*Array
}

// ArrayBuilder builds arrays.
type ArrayBuilder struct {
	layer       Layer
	inputShapes []tensor.Shape
	outputShape tensor.Shape
}

// WithLayer sets the residence layer.
func (b ArrayBuilder) WithLayer(l Layer) ArrayBuilder {
	b.layer = l
	return b
}

// WithNumInput sets the input tile shapes.
func (b ArrayBuilder) WithNumInput(ss ...tensor.Shape) ArrayBuilder {
	b.inputShapes = append([]tensor.Shape(nil), ss...)
	return b
}

// WithNumOutput sets the output tile shape.
func (b ArrayBuilder) WithNumOutput(s tensor.Shape) ArrayBuilder {
	b.outputShape = s
	return b
}

// Build creates an empty array. Components are added with AddComponent.
func (b ArrayBuilder) Build(name string) *Array {
	if !b.outputShape.Valid() {
		panic(fmt.Sprintf("array %s has invalid output shape %s",
			name, b.outputShape))
	}

	return &Array{
		name:        name,
		layer:       b.layer,
		inputShapes: b.inputShapes,
		outputShape: b.outputShape,
	}
}

// Name returns the name of the array.
func (a *Array) Name() string {
	return a.name
}

// Layer returns the residence layer.
func (a *Array) Layer() Layer {
	return a.layer
}

// OutputShape returns the output tile of the array.
func (a *Array) OutputShape() tensor.Shape {
	return a.outputShape
}

// InputShapes returns the input tiles of the array.
func (a *Array) InputShapes() []tensor.Shape {
	return a.inputShapes
}

// InputDomains returns the domains accepted by the first component.
func (a *Array) InputDomains() []Domain {
	return a.inputDomains
}

// OutputDomain returns the domain produced by the last component.
func (a *Array) OutputDomain() Domain {
	return a.outputDomain
}

// Producers returns the upstream arrays.
func (a *Array) Producers() []*Array {
	return a.producers
}

// Consumers returns the downstream arrays.
func (a *Array) Consumers() []*Array {
	return a.consumers
}

// Components returns the components in evaluation order.
func (a *Array) Components() []*Component {
	cs := make([]*Component, len(a.components))
	for i, e := range a.components {
		cs[i] = e.component
	}

	return cs
}

// NumTiles returns how many instances of c the array holds.
func (a *Array) NumTiles(c *Component) int {
	for _, e := range a.components {
		if e.component == c {
			return e.count
		}
	}

	return 0
}

// AddComponent appends count instances of c. The first component fixes the
// input domains of the array and the last one its output domain.
func (a *Array) AddComponent(c *Component, count int) {
	if count <= 0 {
		panic(fmt.Sprintf("array %s: component %s has count %d",
			a.name, c.name, count))
	}

	if len(a.components) == 0 {
		a.inputDomains = c.inputDomains
	}

	a.components = append(a.components,
		componentEntry{component: c, count: count})
	a.outputDomain = c.outputDomain
}

// SetSourceComponents overrides the head components used by the domain
// check. By default the first component is the only head.
func (a *Array) SetSourceComponents(cs ...*Component) {
	a.sources = cs
}

// SetDestinationComponents overrides the tail components used by the domain
// check. By default the last component is the only tail.
func (a *Array) SetDestinationComponents(cs ...*Component) {
	a.destinations = cs
}

// SourceComponents returns the head components.
func (a *Array) SourceComponents() []*Component {
	if len(a.sources) > 0 || len(a.components) == 0 {
		return a.sources
	}

	return []*Component{a.components[0].component}
}

// DestinationComponents returns the tail components.
func (a *Array) DestinationComponents() []*Component {
	if len(a.destinations) > 0 || len(a.components) == 0 {
		return a.destinations
	}

	return []*Component{a.components[len(a.components)-1].component}
}

// Connect adds an edge from producer to consumer.
func Connect(producer, consumer *Array) {
	producer.consumers = append(producer.consumers, consumer)
	consumer.producers = append(consumer.producers, producer)
}

// Energy returns the energy to produce one output tile, in joules: the sum
// of every component's energy scaled by how many component outputs make up
// one array output.
func (a *Array) Energy() (float64, error) {
	if len(a.components) == 0 {
		return 0, errors.Errorf("array %s has no component", a.name)
	}

	total := 0.0
	for _, e := range a.components {
		ce, err := e.component.Energy()
		if err != nil {
			return 0, errors.Wrapf(err, "array %s", a.name)
		}

		ratio := float64(a.outputShape.Volume()) /
			float64(e.component.outputShape.Volume())
		total += ce * ratio
	}

	slog.Debug("Analog array energy",
		"Array", a.name, "Joules", total)

	return total, nil
}

// Configure passes the stage window to every component that needs it.
func (a *Array) Configure(op OpConfig) error {
	for _, e := range a.components {
		if err := e.component.Configure(op); err != nil {
			return errors.Wrapf(err, "array %s", a.name)
		}
	}

	return nil
}

// NeedsConfig reports whether any component has a kernel-dependent
// primitive.
func (a *Array) NeedsConfig() bool {
	for _, e := range a.components {
		if e.component.NeedsConfig() {
			return true
		}
	}

	return false
}

// ComponentOutput records what one component produced during Noise.
type ComponentOutput struct {
	Component string
	Outputs   []*tensor.Tensor
}

// Evaluation is the result of a functional run of an array.
type Evaluation struct {
	Outputs       []*tensor.Tensor
	Intermediates []ComponentOutput
}

// Noise runs the functional model of the whole component chain.
func (a *Array) Noise(env *Env, inputs []*tensor.Tensor) (Evaluation, error) {
	if len(a.components) == 0 {
		return Evaluation{}, errors.Errorf("array %s has no component", a.name)
	}

	eval := Evaluation{}
	outs := inputs
	for _, e := range a.components {
		var err error

		outs, err = e.component.Apply(env, outs)
		if err != nil {
			return Evaluation{}, errors.Wrapf(err, "array %s", a.name)
		}

		eval.Intermediates = append(eval.Intermediates, ComponentOutput{
			Component: e.component.name,
			Outputs:   outs,
		})
	}

	eval.Outputs = outs

	return eval, nil
}
