package algo

import (
	"github.com/pkg/errors"
)

// Graph owns a set of stages and their finalized wiring.
type Graph struct {
	stages []Stage
	byName map[string]Stage
	order  []Stage
	built  bool
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{byName: make(map[string]Stage)}
}

// Add registers stages. Names must be unique.
func (g *Graph) Add(stages ...Stage) error {
	for _, s := range stages {
		if _, ok := g.byName[s.Name()]; ok {
			return errors.Errorf("duplicate stage %s", s.Name())
		}

		g.byName[s.Name()] = s
		g.stages = append(g.stages, s)
	}

	g.built = false

	return nil
}

// Stages returns the stages in insertion order.
func (g *Graph) Stages() []Stage {
	return g.stages
}

// Lookup finds a stage by name.
func (g *Graph) Lookup(name string) (Stage, bool) {
	s, ok := g.byName[name]
	return s, ok
}

// Build finalizes the graph: it checks every edge, fills consumer lists,
// clears the ready boards and computes the topological order.
func (g *Graph) Build() error {
	for _, s := range g.stages {
		s.core().consumers = nil
	}

	for _, s := range g.stages {
		if err := g.checkProducers(s); err != nil {
			return err
		}

		for _, p := range s.Producers() {
			pc := p.core()
			pc.consumers = append(pc.consumers, s)
		}
	}

	g.ResetReady()

	order, err := g.sort()
	if err != nil {
		return err
	}

	g.order = order
	g.built = true

	return nil
}

func (g *Graph) checkProducers(s Stage) error {
	inputs := s.InputShapes()
	producers := s.Producers()

	if len(producers) != len(inputs) {
		return errors.Errorf("stage %s has %d producers for %d inputs",
			s.Name(), len(producers), len(inputs))
	}

	for i, p := range producers {
		if g.byName[p.Name()] != p {
			return errors.Errorf("stage %s: producer %s is not in the graph",
				s.Name(), p.Name())
		}

		if p.OutputShape() != inputs[i] {
			return errors.Wrapf(ErrShapeMismatch,
				"stage %s input %d expects %s, producer %s outputs %s",
				s.Name(), i, inputs[i], p.Name(), p.OutputShape())
		}
	}

	return nil
}

func (g *Graph) sort() ([]Stage, error) {
	placed := make(map[Stage]bool, len(g.stages))
	order := make([]Stage, 0, len(g.stages))

	for len(order) < len(g.stages) {
		var next Stage

		for _, s := range g.stages {
			if !placed[s] && g.producersPlaced(s, placed) {
				next = s
				break
			}
		}

		if next == nil {
			return nil, errors.New("algorithm graph has a cycle")
		}

		placed[next] = true
		order = append(order, next)
	}

	return order, nil
}

func (g *Graph) producersPlaced(s Stage, placed map[Stage]bool) bool {
	for _, p := range s.Producers() {
		if !placed[p] {
			return false
		}
	}

	return true
}

// TopoOrder returns producers before consumers, insertion order breaking
// ties. It panics if the graph has not been built.
func (g *Graph) TopoOrder() []Stage {
	g.mustBeBuilt()
	return g.order
}

// OutputStages returns the stages without consumers.
func (g *Graph) OutputStages() []Stage {
	g.mustBeBuilt()

	var outs []Stage
	for _, s := range g.order {
		if len(s.Consumers()) == 0 {
			outs = append(outs, s)
		}
	}

	return outs
}

// MarkDone sets the ready bit of s on every consumer of s.
func (g *Graph) MarkDone(s Stage) {
	g.mustBeBuilt()

	for _, c := range s.Consumers() {
		c.core().ready[s.Name()] = true
	}
}

// ResetReady clears every ready board.
func (g *Graph) ResetReady() {
	for _, s := range g.stages {
		c := s.core()
		c.ready = make(map[string]bool, len(c.producers))
	}
}

func (g *Graph) mustBeBuilt() {
	if !g.built {
		panic("graph is not built")
	}
}
