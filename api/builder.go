package api

import (
	"github.com/sarchlab/akita/v4/monitoring"

	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/config"
)

// SimulatorBuilder creates a new instance of Simulator.
type SimulatorBuilder struct {
	hw      *config.Hardware
	graph   *algo.Graph
	mapping map[string]string
	run     config.RunConfig
	runSet  bool
	monitor *monitoring.Monitor
}

// WithHardware sets the sensor hardware.
func (b SimulatorBuilder) WithHardware(hw *config.Hardware) SimulatorBuilder {
	b.hw = hw
	return b
}

// WithGraph sets the algorithm graph.
func (b SimulatorBuilder) WithGraph(g *algo.Graph) SimulatorBuilder {
	b.graph = g
	return b
}

// WithMapping sets the stage to block mapping table.
func (b SimulatorBuilder) WithMapping(mapping map[string]string) SimulatorBuilder {
	b.mapping = make(map[string]string, len(mapping))
	for k, v := range mapping {
		b.mapping[k] = v
	}

	return b
}

// WithRunConfig sets the run options. The default is
// config.DefaultRunConfig().
func (b SimulatorBuilder) WithRunConfig(c config.RunConfig) SimulatorBuilder {
	b.run = c
	b.runSet = true

	return b
}

// WithMonitor registers the scheduler engine and component of every energy
// simulation with m.
func (b SimulatorBuilder) WithMonitor(m *monitoring.Monitor) SimulatorBuilder {
	b.monitor = m
	return b
}

// Build creates a simulator.
func (b SimulatorBuilder) Build(name string) Simulator {
	if b.hw == nil {
		panic("simulator requires hardware")
	}

	if b.graph == nil {
		panic("simulator requires an algorithm graph")
	}

	run := b.run
	if !b.runSet {
		run = config.DefaultRunConfig()
	}

	return &simulatorImpl{
		name:    name,
		hw:      b.hw,
		graph:   b.graph,
		mapping: b.mapping,
		run:     run,
		monitor: b.monitor,
	}
}
