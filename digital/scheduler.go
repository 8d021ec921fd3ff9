package digital

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/camsim/algo"
)

// HookPosStageTransition marks a stage moving between phases. The hook item
// is a StageTransition.
var HookPosStageTransition = &sim.HookPos{Name: "Stage Transition"}

// StageTransition describes one phase change.
type StageTransition struct {
	Stage string
	Unit  string
	From  Phase
	To    Phase
	Cycle uint64
}

// Result is the outcome of a cycle-level run.
type Result struct {
	TotalCycles uint64
	// FinishCycle maps each finished stage to the cycle it finished in.
	FinishCycle map[string]uint64
	// Energy maps each unit and memory to its energy, in pJ.
	Energy     map[string]float64
	Unfinished []string
}

// TotalEnergy sums the energy of all blocks, in pJ.
func (r Result) TotalEnergy() float64 {
	names := make([]string, 0, len(r.Energy))
	for n := range r.Energy {
		names = append(names, n)
	}

	sort.Strings(names)

	sum := 0.0
	for _, n := range names {
		sum += r.Energy[n]
	}

	return sum
}

type mapping struct {
	stage algo.Stage
	unit  Unit
}

// SchedulerBuilder can create schedulers.
type SchedulerBuilder struct {
	engine    sim.Engine
	freq      sim.Freq
	maxCycles uint64
	mappings  []mapping
	memories  []Memory
}

// NewSchedulerBuilder returns a builder with a 1 GHz clock.
func NewSchedulerBuilder() SchedulerBuilder {
	return SchedulerBuilder{freq: 1 * sim.GHz}
}

// WithEngine sets the engine.
func (b SchedulerBuilder) WithEngine(engine sim.Engine) SchedulerBuilder {
	b.engine = engine
	return b
}

// WithFreq sets the clock frequency.
func (b SchedulerBuilder) WithFreq(freq sim.Freq) SchedulerBuilder {
	b.freq = freq
	return b
}

// WithMaxCycles bounds the run. Zero means no bound.
func (b SchedulerBuilder) WithMaxCycles(n uint64) SchedulerBuilder {
	b.maxCycles = n
	return b
}

// WithStage maps a stage onto a unit. Producers are matched by name among
// the mapped stages.
func (b SchedulerBuilder) WithStage(s algo.Stage, u Unit) SchedulerBuilder {
	b.mappings = append(append([]mapping(nil), b.mappings...), mapping{s, u})
	return b
}

// WithMemory registers a memory so that its energy is reported even when
// no mapped unit uses it.
func (b SchedulerBuilder) WithMemory(m Memory) SchedulerBuilder {
	b.memories = append(append([]Memory(nil), b.memories...), m)
	return b
}

// Build creates a scheduler.
func (b SchedulerBuilder) Build(name string) *Scheduler {
	if b.engine == nil {
		panic("scheduler requires an engine")
	}

	s := &Scheduler{
		mappings:  b.mappings,
		memories:  b.memories,
		maxCycles: b.maxCycles,
		board:     NewReservationBoard(),
	}
	s.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, s)

	return s
}

// Scheduler advances every stage of a pipeline by one step per cycle.
type Scheduler struct {
	*sim.TickingComponent

	mappings []mapping
	memories []Memory

	stages    []*stageState
	board     *ReservationBoard
	cycle     uint64
	maxCycles uint64
	progress  bool
	err       error
}

// Cycle returns the number of cycles simulated so far.
func (s *Scheduler) Cycle() uint64 {
	return s.cycle
}

// Run prepares the stages and simulates until every stage finishes, the
// cycle bound is hit, or a buffer error occurs.
func (s *Scheduler) Run() (Result, error) {
	if err := s.prepare(); err != nil {
		return Result{}, err
	}

	s.TickNow()
	s.Engine.Run()

	if s.err != nil {
		return Result{}, s.err
	}

	return s.result(), nil
}

func (s *Scheduler) prepare() error {
	s.reset()

	byName := make(map[string]*stageState, len(s.mappings))
	order := make([]*stageState, 0, len(s.mappings))

	for _, m := range s.mappings {
		if _, dup := byName[m.stage.Name()]; dup {
			return errors.Errorf("stage %s is mapped twice", m.stage.Name())
		}

		st := &stageState{stage: m.stage, unit: m.unit}
		byName[m.stage.Name()] = st
		order = append(order, st)
	}

	for _, st := range order {
		if err := s.prepareStage(st, byName); err != nil {
			return err
		}
	}

	sorted, err := sortStages(order)
	if err != nil {
		return err
	}

	s.stages = sorted

	return nil
}

// reset clears the counters and regions that units and memories kept from
// an earlier run.
func (s *Scheduler) reset() {
	units := make(map[Unit]bool)
	memories := make(map[Memory]bool)

	for _, m := range s.memories {
		memories[m] = true
	}

	for _, m := range s.mappings {
		units[m.unit] = true

		for _, buf := range []Memory{m.unit.InputBuffer(), m.unit.OutputBuffer()} {
			if buf != nil {
				memories[buf] = true
			}
		}
	}

	for u := range units {
		u.Reset()
	}

	for m := range memories {
		m.Reset()
	}
}

func (s *Scheduler) prepareStage(
	st *stageState,
	byName map[string]*stageState,
) error {
	for _, p := range st.stage.Producers() {
		ps, ok := byName[p.Name()]
		if !ok {
			return errors.Errorf("stage %s: producer %s is not mapped",
				st.name(), p.Name())
		}

		st.producers = append(st.producers, ps)
		ps.consumers = append(ps.consumers, st)
	}

	tp, err := st.unit.Throughput(st.stage)
	if err != nil {
		return err
	}

	if tp.Delay <= 0 || !tp.OutTile.Valid() {
		return errors.Errorf("unit %s: invalid throughput %+v for stage %s",
			st.unit.Name(), tp, st.name())
	}

	if len(st.producers) > 0 && st.unit.InputBuffer() == nil {
		return errors.Errorf("stage %s has producers but unit %s has no "+
			"input buffer", st.name(), st.unit.Name())
	}

	st.tp = tp
	st.windows = windowsOf(st.stage)
	st.numFirings = numFirings(st.stage.OutputShape(), tp.OutTile)

	key := RegionKey{Unit: st.unit.Name(), Stage: st.name()}
	if out := st.unit.OutputBuffer(); out != nil {
		st.region = out.ReserveRegion(key, st.stage.OutputShape())
	} else {
		st.region = NewRegion(st.stage.OutputShape())
	}

	return nil
}

func sortStages(stages []*stageState) ([]*stageState, error) {
	placed := make(map[*stageState]bool, len(stages))
	sorted := make([]*stageState, 0, len(stages))

	for len(sorted) < len(stages) {
		next := -1

		for i, st := range stages {
			if placed[st] {
				continue
			}

			ready := true
			for _, p := range st.producers {
				ready = ready && placed[p]
			}

			if ready {
				next = i
				break
			}
		}

		if next < 0 {
			return nil, errors.New("stage graph has a cycle")
		}

		placed[stages[next]] = true
		sorted = append(sorted, stages[next])
	}

	return sorted, nil
}

// Tick advances all stages by one cycle.
func (s *Scheduler) Tick() bool {
	if s.err != nil || s.done() {
		return false
	}

	if s.maxCycles > 0 && s.cycle >= s.maxCycles {
		return false
	}

	s.cycle++
	s.progress = false

	for _, st := range s.stages {
		if err := s.step(st); err != nil {
			s.err = errors.Wrapf(err, "cycle %d, stage %s", s.cycle, st.name())
			return false
		}
	}

	if !s.progress && !s.done() {
		slog.Warn("No stage can make progress", "Cycle", s.cycle)
		return false
	}

	return !s.done()
}

func (s *Scheduler) done() bool {
	for _, st := range s.stages {
		if !st.finished {
			return false
		}
	}

	return true
}

// step moves a stage through as many phases as it can finish this cycle.
func (s *Scheduler) step(st *stageState) error {
	for {
		var (
			more bool
			err  error
		)

		switch st.phase {
		case PhaseIdle:
			more = s.start(st)
		case PhaseReading:
			more, err = s.read(st)
		case PhaseProcessing:
			more = s.process(st)
		case PhaseWriting:
			more, err = s.write(st)
		case PhaseFinished:
			return nil
		}

		if err != nil || !more {
			return err
		}
	}
}

func (s *Scheduler) transit(st *stageState, to Phase) {
	from := st.phase
	st.phase = to
	s.progress = true

	Trace("Stage",
		"Behavior", "Transition",
		"Stage", st.name(),
		"Unit", st.unit.Name(),
		"Cycle", s.cycle,
		"From", from.Name(),
		"To", to.Name(),
	)

	s.InvokeHook(sim.HookCtx{
		Domain: s,
		Pos:    HookPosStageTransition,
		Item: StageTransition{
			Stage: st.name(),
			Unit:  st.unit.Name(),
			From:  from,
			To:    to,
			Cycle: s.cycle,
		},
	})
}

func (s *Scheduler) start(st *stageState) bool {
	if !st.inputsReady() {
		return false
	}

	if !s.board.ReservedBy(st.name(), st.unit.Name()) {
		if !s.board.Reserve(st.name(), st.unit.Name()) {
			return false
		}

		st.needFill = true
	}

	st.readRemain = st.tp.TotalRead()
	st.writeRemain = st.currentBox().Volume()
	st.written = 0
	s.transit(st, PhaseReading)

	return true
}

// read takes what the input buffer holds, up to what the firing still
// needs. Once producers are done, what is missing is padding.
func (s *Scheduler) read(st *stageState) (bool, error) {
	buf := st.unit.InputBuffer()

	if st.readRemain > 0 && buf != nil {
		n := st.readRemain
		if !buf.HaveDataRead(n) {
			n = min(buf.Stored(), n)
		}

		if n > 0 {
			if err := buf.ReadData(n); err != nil {
				return false, err
			}

			st.readRemain -= n
			s.progress = true
		}

		if st.readRemain > 0 && !st.allProducersFinished() {
			return false, nil
		}

		s.release(st, buf)
	}

	st.readRemain = 0
	st.cyclesRemain = st.tp.Delay

	if st.needFill {
		st.cyclesRemain += st.unit.NumStages() - 1
		st.needFill = false
	}

	s.transit(st, PhaseProcessing)

	return true, nil
}

// release retires the share of each producer that this firing moved past.
// Only the last consumer of a producer releases, so shared producers are
// retired once.
func (s *Scheduler) release(st *stageState, buf Memory) {
	for _, p := range st.producers {
		if p.unit.OutputBuffer() != buf {
			continue
		}

		if p.consumers[len(p.consumers)-1] != st {
			continue
		}

		buf.Release(st.releaseShare(p))
	}
}

func (s *Scheduler) process(st *stageState) bool {
	st.cyclesRemain--
	st.unit.AddComputeCycles(1)
	s.progress = true

	if st.cyclesRemain > 0 {
		return false
	}

	s.transit(st, PhaseWriting)

	return true
}

// write moves as much of the firing output as fits into the output buffer
// and stamps each batch as it lands.
func (s *Scheduler) write(st *stageState) (bool, error) {
	out := st.unit.OutputBuffer()
	n := st.writeRemain

	if out != nil {
		if !out.HaveSpaceToWrite(n) {
			n = min(n, out.FreeSpace())
		}

		if n <= 0 {
			return false, nil
		}

		if err := out.WriteData(n); err != nil {
			return false, err
		}

		s.progress = true
	}

	st.unit.AddWrites(n)
	st.region.StampPart(st.currentBox(), st.written, n)
	st.written += n
	st.writeRemain -= n

	if st.writeRemain > 0 {
		return false, nil
	}

	st.firing++

	if st.firing < st.numFirings {
		s.transit(st, PhaseIdle)
		return false, nil
	}

	s.finish(st)

	return false, nil
}

func (s *Scheduler) finish(st *stageState) {
	st.finished = true
	st.finishCycle = s.cycle
	s.board.Release(st.name(), st.unit.Name())
	s.transit(st, PhaseFinished)
}

func (s *Scheduler) result() Result {
	r := Result{
		FinishCycle: make(map[string]uint64),
		Energy:      make(map[string]float64),
	}

	for _, st := range s.stages {
		if !st.finished {
			r.Unfinished = append(r.Unfinished, st.name())
			continue
		}

		r.FinishCycle[st.name()] = st.finishCycle
		if st.finishCycle > r.TotalCycles {
			r.TotalCycles = st.finishCycle
		}
	}

	for _, st := range s.stages {
		r.Energy[st.unit.Name()] = st.unit.ComputeEnergy()

		for _, m := range []Memory{st.unit.InputBuffer(), st.unit.OutputBuffer()} {
			if m != nil {
				r.Energy[m.Name()] = m.AccessEnergy()
			}
		}
	}

	for _, m := range s.memories {
		r.Energy[m.Name()] = m.AccessEnergy()
	}

	if len(r.Unfinished) > 0 {
		r.TotalCycles = s.cycle

		var sb strings.Builder
		PrintState(&sb, s)

		slog.Warn("Simulation stopped before all stages finished",
			"Cycle", s.cycle,
			"Unfinished", strings.Join(r.Unfinished, ","),
		)
		slog.Debug(sb.String())
	}

	return r
}
