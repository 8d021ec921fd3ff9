package analog

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/tensor"
)

type primitiveEntry struct {
	primitive Primitive
	count     int
}

// A Component is a chain of primitives that turns input-domain signals into
// one output-domain signal. The functional model visits every primitive
// once in order; the energy model counts each primitive count times.
type Component struct {
	name         string
	inputDomains []Domain
	outputDomain Domain
	inputShapes  []tensor.Shape
	outputShape  tensor.Shape
	primitives   []primitiveEntry
}

// ComponentBuilder builds components.
type ComponentBuilder struct {
	inputDomains []Domain
	outputDomain Domain
	inputShapes  []tensor.Shape
	outputShape  tensor.Shape
	primitives   []primitiveEntry
}

// WithInputDomains sets the domains the component accepts.
func (b ComponentBuilder) WithInputDomains(ds ...Domain) ComponentBuilder {
	b.inputDomains = append([]Domain(nil), ds...)
	return b
}

// WithOutputDomain sets the domain the component produces.
func (b ComponentBuilder) WithOutputDomain(d Domain) ComponentBuilder {
	b.outputDomain = d
	return b
}

// WithNumInput sets the input tile shapes of one component instance.
func (b ComponentBuilder) WithNumInput(ss ...tensor.Shape) ComponentBuilder {
	b.inputShapes = append([]tensor.Shape(nil), ss...)
	return b
}

// WithNumOutput sets the output tile shape of one component instance.
func (b ComponentBuilder) WithNumOutput(s tensor.Shape) ComponentBuilder {
	b.outputShape = s
	return b
}

// WithPrimitive appends a primitive that occurs count times in the
// component.
func (b ComponentBuilder) WithPrimitive(p Primitive, count int) ComponentBuilder {
	b.primitives = append(append([]primitiveEntry(nil), b.primitives...),
		primitiveEntry{primitive: p, count: count})
	return b
}

// Build creates the component.
func (b ComponentBuilder) Build(name string) *Component {
	if len(b.primitives) == 0 {
		panic(fmt.Sprintf("component %s has no primitive", name))
	}

	if len(b.inputDomains) == 0 {
		panic(fmt.Sprintf("component %s has no input domain", name))
	}

	if !b.outputShape.Valid() {
		panic(fmt.Sprintf("component %s has invalid output shape %s",
			name, b.outputShape))
	}

	for _, e := range b.primitives {
		if e.count <= 0 {
			panic(fmt.Sprintf("component %s: primitive %s has count %d",
				name, e.primitive.Name(), e.count))
		}
	}

	return &Component{
		name:         name,
		inputDomains: b.inputDomains,
		outputDomain: b.outputDomain,
		inputShapes:  b.inputShapes,
		outputShape:  b.outputShape,
		primitives:   b.primitives,
	}
}

// Name returns the name of the component.
func (c *Component) Name() string {
	return c.name
}

// InputDomains returns the domains the component accepts.
func (c *Component) InputDomains() []Domain {
	return c.inputDomains
}

// OutputDomain returns the domain the component produces.
func (c *Component) OutputDomain() Domain {
	return c.outputDomain
}

// OutputShape returns the output tile of one component instance.
func (c *Component) OutputShape() tensor.Shape {
	return c.outputShape
}

// InputShapes returns the input tiles of one component instance.
func (c *Component) InputShapes() []tensor.Shape {
	return c.inputShapes
}

// Primitives lists the primitives in evaluation order.
func (c *Component) Primitives() []Primitive {
	ps := make([]Primitive, len(c.primitives))
	for i, e := range c.primitives {
		ps[i] = e.primitive
	}

	return ps
}

// Energy returns the sum of count*energy over all primitives, in joules.
func (c *Component) Energy() (float64, error) {
	total := 0.0
	for _, e := range c.primitives {
		pe, err := e.primitive.Energy()
		if err != nil {
			return 0, errors.Wrapf(err, "component %s", c.name)
		}

		total += float64(e.count) * pe
	}

	return total, nil
}

// Configure forwards the stage window to every kernel-dependent primitive.
func (c *Component) Configure(op OpConfig) error {
	for _, e := range c.primitives {
		if p, ok := e.primitive.(Configurable); ok {
			if err := p.Configure(op); err != nil {
				return errors.Wrapf(err, "component %s", c.name)
			}
		}
	}

	return nil
}

// NeedsConfig reports whether any primitive implements Configurable.
func (c *Component) NeedsConfig() bool {
	for _, e := range c.primitives {
		if _, ok := e.primitive.(Configurable); ok {
			return true
		}
	}

	return false
}

// Apply feeds inputs through the primitive chain.
func (c *Component) Apply(
	env *Env,
	inputs []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	outs := inputs
	for _, e := range c.primitives {
		var err error

		outs, err = e.primitive.Apply(env, outs)
		if err != nil {
			return nil, errors.Wrapf(err, "component %s", c.name)
		}
	}

	return outs, nil
}
