// Package config describes the hardware of a sensor and the options of a
// simulation run.
package config

import (
	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/analog"
	"github.com/sarchlab/camsim/digital"
)

// BlockKind tells which part of the hardware a block belongs to.
type BlockKind int

const (
	KindNone BlockKind = iota
	KindAnalog
	KindCompute
	KindMemory
)

// Name returns the name of the block kind.
func (k BlockKind) Name() string {
	switch k {
	case KindNone:
		return "none"
	case KindAnalog:
		return "analog"
	case KindCompute:
		return "compute"
	case KindMemory:
		return "memory"
	default:
		panic("invalid block kind")
	}
}

// Hardware lists every block of a sensor. Blocks are built by the caller
// and referenced by name from the mapping table.
type Hardware struct {
	Name    string
	Analog  []*analog.Array
	Compute []digital.Unit
	Memory  []digital.Memory

	kinds map[string]BlockKind
}

// Kind returns the kind of the named block, or KindNone.
func (h *Hardware) Kind(name string) BlockKind {
	return h.kinds[name]
}

// AnalogArray finds an analog array by name.
func (h *Hardware) AnalogArray(name string) (*analog.Array, bool) {
	for _, a := range h.Analog {
		if a.Name() == name {
			return a, true
		}
	}

	return nil, false
}

// ComputeUnit finds a compute unit by name.
func (h *Hardware) ComputeUnit(name string) (digital.Unit, bool) {
	for _, u := range h.Compute {
		if u.Name() == name {
			return u, true
		}
	}

	return nil, false
}

// MemoryBlock finds a memory by name.
func (h *Hardware) MemoryBlock(name string) (digital.Memory, bool) {
	for _, m := range h.Memory {
		if m.Name() == name {
			return m, true
		}
	}

	return nil, false
}

// FirstADC returns the first ADC among the compute units.
func (h *Hardware) FirstADC() (*digital.ADC, bool) {
	for _, u := range h.Compute {
		if adc, ok := u.(*digital.ADC); ok {
			return adc, true
		}
	}

	return nil, false
}

// HardwareBuilder can build hardware descriptions.
type HardwareBuilder struct {
	arrays   []*analog.Array
	units    []digital.Unit
	memories []digital.Memory
}

// WithAnalogArrays adds analog arrays.
func (b HardwareBuilder) WithAnalogArrays(arrays ...*analog.Array) HardwareBuilder {
	b.arrays = append(append([]*analog.Array(nil), b.arrays...), arrays...)
	return b
}

// WithComputeUnits adds digital compute units.
func (b HardwareBuilder) WithComputeUnits(units ...digital.Unit) HardwareBuilder {
	b.units = append(append([]digital.Unit(nil), b.units...), units...)
	return b
}

// WithMemories adds digital memories.
func (b HardwareBuilder) WithMemories(memories ...digital.Memory) HardwareBuilder {
	b.memories = append(append([]digital.Memory(nil), b.memories...),
		memories...)
	return b
}

// Build creates the hardware description. Block names must be unique
// across all kinds.
func (b HardwareBuilder) Build(name string) (*Hardware, error) {
	h := &Hardware{
		Name:    name,
		Analog:  b.arrays,
		Compute: b.units,
		Memory:  b.memories,
		kinds:   make(map[string]BlockKind),
	}

	add := func(block string, kind BlockKind) error {
		if prev, dup := h.kinds[block]; dup {
			return errors.Errorf("hardware %s: block %s is both %s and %s",
				name, block, prev.Name(), kind.Name())
		}

		h.kinds[block] = kind

		return nil
	}

	for _, a := range b.arrays {
		if err := add(a.Name(), KindAnalog); err != nil {
			return nil, err
		}
	}

	for _, u := range b.units {
		if err := add(u.Name(), KindCompute); err != nil {
			return nil, err
		}
	}

	for _, m := range b.memories {
		if err := add(m.Name(), KindMemory); err != nil {
			return nil, err
		}
	}

	return h, nil
}
