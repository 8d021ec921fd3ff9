// Package api runs energy and functional simulations of a sensor: the
// hardware, the algorithm graph, and the table mapping each stage onto an
// analog array or a digital compute unit.
package api

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/digital"
	"github.com/sarchlab/camsim/tensor"
)

var (
	// ErrUnmapped marks a stage that the mapping table does not place.
	ErrUnmapped = errors.New("api: stage is not mapped")

	// ErrUnknownTarget marks a mapping to a block that is neither an
	// analog array nor a compute unit.
	ErrUnknownTarget = errors.New("api: unknown mapping target")

	// ErrLint marks a sensor that failed structural verification.
	ErrLint = errors.New("api: sensor failed verification")
)

// Simulator provides the simulation entry points of a sensor.
type Simulator interface {
	// EnergySimulation runs the analog energy model and the digital
	// cycle-level scheduler and returns the energy of every block.
	EnergySimulation() (EnergyReport, error)

	// FunctionalSimulation runs the analog functional model. inputs supplies
	// the raw tensors of each stage that needs them: photons for pixel
	// stages, weights for stages that take kernels. The result holds the
	// outputs of the analog output stages.
	FunctionalSimulation(
		inputs map[string][]*tensor.Tensor,
	) (map[string][]*tensor.Tensor, error)

	// AnalogEnergySimulation returns the energy of each mapped analog
	// array, in pJ.
	AnalogEnergySimulation() (map[string]float64, error)
}

// EnergyReport is the result of an energy simulation. Energies are in pJ.
type EnergyReport struct {
	Total  float64
	Blocks map[string]float64
	Cycles digital.Result
}

// BlockNames returns the block names in sorted order.
func (r EnergyReport) BlockNames() []string {
	names := make([]string, 0, len(r.Blocks))
	for n := range r.Blocks {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}
