package api

import (
	"log/slog"
	"strings"

	"github.com/pkg/errors"
	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/analog"
	"github.com/sarchlab/camsim/config"
	"github.com/sarchlab/camsim/digital"
	"github.com/sarchlab/camsim/tensor"
	"github.com/sarchlab/camsim/verify"
)

const joulesToPicojoules = 1e12

type simulatorImpl struct {
	name    string
	hw      *config.Hardware
	graph   *algo.Graph
	mapping map[string]string
	run     config.RunConfig
	monitor *monitoring.Monitor

	analogStages  []algo.Stage
	digitalStages []algo.Stage
}

// prepare builds the graph, splits the stages by domain and lints the
// sensor. Timing issues are logged; structural issues abort.
func (s *simulatorImpl) prepare() error {
	if err := s.graph.Build(); err != nil {
		return errors.Wrapf(err, "simulator %s", s.name)
	}

	s.analogStages = nil
	s.digitalStages = nil

	for _, st := range s.graph.TopoOrder() {
		target, ok := s.mapping[st.Name()]
		if !ok {
			return errors.Wrapf(ErrUnmapped, "stage %s", st.Name())
		}

		switch s.hw.Kind(target) {
		case config.KindAnalog:
			s.analogStages = append(s.analogStages, st)
		case config.KindCompute:
			s.digitalStages = append(s.digitalStages, st)
		default:
			return errors.Wrapf(ErrUnknownTarget, "stage %s mapped to %q",
				st.Name(), target)
		}
	}

	issues := verify.RunLint(s.hw, s.graph, s.mapping)

	var msgs []string
	for _, issue := range issues {
		if issue.Type == verify.IssueStruct {
			msgs = append(msgs, issue.Message)
			continue
		}

		slog.Warn("Lint",
			"Type", string(issue.Type),
			"Stage", issue.Stage,
			"Block", issue.Block,
			"Message", issue.Message,
		)
	}

	if len(msgs) > 0 {
		return errors.Wrap(ErrLint, strings.Join(msgs, "; "))
	}

	return nil
}

func (s *simulatorImpl) arrayOf(st algo.Stage) *analog.Array {
	a, ok := s.hw.AnalogArray(s.mapping[st.Name()])
	if !ok {
		panic("stage is not on an analog array")
	}

	return a
}

// configure passes the window of st to a if a has kernel primitives.
func configure(a *analog.Array, st algo.Stage) error {
	if !a.NeedsConfig() {
		return nil
	}

	op, ok := opConfig(st)
	if !ok {
		return errors.Wrapf(analog.ErrNotConfigured,
			"array %s needs a window but stage %s has none",
			a.Name(), st.Name())
	}

	return a.Configure(op)
}

func opConfig(st algo.Stage) (analog.OpConfig, bool) {
	switch s := st.(type) {
	case *algo.ProcessStage:
		k := s.Kernels()[0]

		return analog.OpConfig{
			KernelH:    k.H,
			KernelW:    k.W,
			StrideH:    s.Strides()[0].H,
			StrideW:    s.Strides()[0].W,
			NumKernels: s.NumKernels(),
			Padding:    s.Paddings()[0],
		}, true
	case *algo.DNNProcessStage:
		if s.Op() == algo.FC {
			return analog.OpConfig{}, false
		}

		return analog.OpConfig{
			KernelH:    s.Kernel().H,
			KernelW:    s.Kernel().W,
			StrideH:    s.Stride(),
			StrideW:    s.Stride(),
			NumKernels: s.OutputShape().C,
			Padding:    tensor.Same,
		}, true
	default:
		return analog.OpConfig{}, false
	}
}

// AnalogEnergySimulation charges each analog array the energy of its
// output stages once per output tile. Stages chained on one array share its
// work, so only the stages whose output leaves the array are charged.
func (s *simulatorImpl) AnalogEnergySimulation() (map[string]float64, error) {
	if err := s.prepare(); err != nil {
		return nil, err
	}

	return s.analogEnergy()
}

func (s *simulatorImpl) analogEnergy() (map[string]float64, error) {
	energy := make(map[string]float64)

	for _, group := range s.arrayGroups() {
		for _, st := range outputStages(group, s.mapping) {
			a := s.arrayOf(st)

			if err := configure(a, st); err != nil {
				return nil, err
			}

			perTile, err := a.Energy()
			if err != nil {
				return nil, errors.Wrapf(err, "stage %s", st.Name())
			}

			tiles := numTiles(st.OutputShape(), a.OutputShape())
			energy[a.Name()] += perTile * float64(tiles) * joulesToPicojoules

			slog.Debug("Analog stage energy",
				"Stage", st.Name(),
				"Array", a.Name(),
				"Tiles", tiles,
				"PicoJoules", perTile*float64(tiles)*joulesToPicojoules,
			)
		}
	}

	return energy, nil
}

// arrayGroups splits the analog stages by target array, keeping
// topological order within and across groups.
func (s *simulatorImpl) arrayGroups() [][]algo.Stage {
	index := make(map[string]int)

	var groups [][]algo.Stage

	for _, st := range s.analogStages {
		target := s.mapping[st.Name()]

		i, ok := index[target]
		if !ok {
			i = len(groups)
			index[target] = i
			groups = append(groups, nil)
		}

		groups[i] = append(groups[i], st)
	}

	return groups
}

// outputStages returns the stages of group that have no consumers or feed
// a stage mapped elsewhere. A closed group returns all of its stages.
func outputStages(group []algo.Stage, mapping map[string]string) []algo.Stage {
	if len(group) == 0 {
		return nil
	}

	target := mapping[group[0].Name()]

	var outs []algo.Stage

	for _, st := range group {
		if len(st.Consumers()) == 0 {
			outs = append(outs, st)
			continue
		}

		for _, c := range st.Consumers() {
			if mapping[c.Name()] != target {
				outs = append(outs, st)
				break
			}
		}
	}

	if len(outs) == 0 {
		return group
	}

	return outs
}

func numTiles(out, tile tensor.Shape) int {
	return (out.Volume() + tile.Volume() - 1) / tile.Volume()
}

// EnergySimulation runs the analog energy model followed by the digital
// scheduler.
func (s *simulatorImpl) EnergySimulation() (EnergyReport, error) {
	if err := s.prepare(); err != nil {
		return EnergyReport{}, err
	}

	report := EnergyReport{Blocks: make(map[string]float64)}

	analogEnergy, err := s.analogEnergy()
	if err != nil {
		return EnergyReport{}, err
	}

	for name, e := range analogEnergy {
		report.Blocks[name] = e
	}

	if len(s.digitalStages) > 0 {
		result, err := s.runScheduler()
		if err != nil {
			return EnergyReport{}, err
		}

		report.Cycles = result
		for name, e := range result.Energy {
			report.Blocks[name] += e
		}
	}

	for _, name := range report.BlockNames() {
		report.Total += report.Blocks[name]
	}

	slog.Info("Energy simulation",
		"Simulator", s.name,
		"PicoJoules", report.Total,
		"Cycles", report.Cycles.TotalCycles,
	)

	return report, nil
}

// runScheduler maps every digital stage on its unit. Analog producers of
// digital stages are replaced by pixel inputs of the same name and shape on
// the first ADC.
func (s *simulatorImpl) runScheduler() (digital.Result, error) {
	engine := sim.NewSerialEngine()
	b := digital.NewSchedulerBuilder().
		WithEngine(engine).
		WithFreq(s.run.Freq()).
		WithMaxCycles(s.run.MaxCycles)

	boundary := make(map[string]bool)

	for _, st := range s.digitalStages {
		for _, p := range st.Producers() {
			if s.hw.Kind(s.mapping[p.Name()]) != config.KindAnalog ||
				boundary[p.Name()] {
				continue
			}

			adc, ok := s.hw.FirstADC()
			if !ok {
				return digital.Result{}, errors.Errorf(
					"stage %s reads analog stage %s but there is no ADC",
					st.Name(), p.Name())
			}

			boundary[p.Name()] = true
			b = b.WithStage(algo.NewPixelInput(p.Name(), p.OutputShape()), adc)
		}

		u, _ := s.hw.ComputeUnit(s.mapping[st.Name()])
		b = b.WithStage(st, u)
	}

	for _, m := range s.hw.Memory {
		b = b.WithMemory(m)
	}

	sched := b.Build(s.name + ".Scheduler")

	if s.monitor != nil {
		s.monitor.RegisterEngine(engine)
		s.monitor.RegisterComponent(sched)
	}

	return sched.Run()
}

// FunctionalSimulation evaluates analog stages as their producers finish.
func (s *simulatorImpl) FunctionalSimulation(
	inputs map[string][]*tensor.Tensor,
) (map[string][]*tensor.Tensor, error) {
	if err := s.prepare(); err != nil {
		return nil, err
	}

	env := analog.NewEnv(s.run.Seed)
	outputs := make(map[string][]*tensor.Tensor)
	s.graph.ResetReady()

	for _, st := range s.analogStages {
		if !st.AllReady() {
			return nil, errors.Errorf(
				"analog stage %s depends on a stage outside the analog domain",
				st.Name())
		}

		ins, err := stageInputs(st, outputs, inputs[st.Name()])
		if err != nil {
			return nil, err
		}

		a := s.arrayOf(st)
		if err := configure(a, st); err != nil {
			return nil, err
		}

		eval, err := a.Noise(env, ins)
		if err != nil {
			return nil, errors.Wrapf(err, "stage %s", st.Name())
		}

		if len(eval.Outputs) == 0 ||
			eval.Outputs[0].Shape() != st.OutputShape() {
			return nil, errors.Wrapf(tensor.ErrShapeMismatch,
				"stage %s declares output %s, array %s produced %s",
				st.Name(), st.OutputShape(), a.Name(), shapesOf(eval.Outputs))
		}

		outputs[st.Name()] = eval.Outputs
		s.graph.MarkDone(st)

		slog.Debug("Analog stage evaluated",
			"Stage", st.Name(),
			"Array", a.Name(),
			"Outputs", len(eval.Outputs),
		)
	}

	result := make(map[string][]*tensor.Tensor)
	for _, st := range s.analogOutputStages() {
		result[st.Name()] = outputs[st.Name()]
	}

	return result, nil
}

// stageInputs lists the producer outputs of st followed by the caller's
// tensors, and checks them against the input shapes of the stage. A stage
// without producers reads a frame of its own output shape. Tensors past the
// declared inputs, such as kernels, are passed through unchecked.
func stageInputs(
	st algo.Stage,
	outputs map[string][]*tensor.Tensor,
	extra []*tensor.Tensor,
) ([]*tensor.Tensor, error) {
	var ins []*tensor.Tensor
	for _, p := range st.Producers() {
		ins = append(ins, outputs[p.Name()]...)
	}

	ins = append(ins, extra...)

	want := st.InputShapes()
	if len(st.Producers()) == 0 && len(want) == 0 {
		want = []tensor.Shape{st.OutputShape()}
	}

	if len(ins) < len(want) {
		return nil, errors.Wrapf(tensor.ErrShapeMismatch,
			"stage %s takes %d inputs, got %d", st.Name(), len(want), len(ins))
	}

	for i, shape := range want {
		if ins[i] == nil || ins[i].Shape() != shape {
			return nil, errors.Wrapf(tensor.ErrShapeMismatch,
				"stage %s input %d: want %s, got %s",
				st.Name(), i, shape, shapesOf(ins[i:i+1]))
		}
	}

	return ins, nil
}

func shapesOf(ts []*tensor.Tensor) string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		if t == nil {
			names = append(names, "nil")
			continue
		}

		names = append(names, t.Shape().String())
	}

	return strings.Join(names, ",")
}

// analogOutputStages returns the analog stages whose output leaves the
// analog domain: no consumers, or a consumer mapped to a compute unit.
func (s *simulatorImpl) analogOutputStages() []algo.Stage {
	var outs []algo.Stage

	for _, st := range s.analogStages {
		if len(st.Consumers()) == 0 {
			outs = append(outs, st)
			continue
		}

		for _, c := range st.Consumers() {
			if s.hw.Kind(s.mapping[c.Name()]) != config.KindAnalog {
				outs = append(outs, st)
				break
			}
		}
	}

	if len(outs) == 0 {
		return s.analogStages
	}

	return outs
}
