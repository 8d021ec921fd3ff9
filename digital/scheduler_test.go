package digital_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/akita/v4/sim"

	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/digital"
	"github.com/sarchlab/camsim/tensor"
)

type transitionRecorder struct {
	items []digital.StageTransition
}

func (r *transitionRecorder) Func(ctx sim.HookCtx) {
	if ctx.Pos != digital.HookPosStageTransition {
		return
	}

	r.items = append(r.items, ctx.Item.(digital.StageTransition))
}

func pointwise(name string, in tensor.Shape, k int, p tensor.Padding) *algo.ProcessStage {
	st, err := algo.NewProcessStage(name, algo.ProcessSpec{
		Inputs:   []tensor.Shape{in},
		Kernels:  []tensor.Shape{tensor.S(k, k, in.C)},
		Strides:  []algo.Stride{{H: 1, W: 1}},
		Paddings: []tensor.Padding{p},
	})
	Expect(err).NotTo(HaveOccurred())

	return st
}

var _ = Describe("Scheduler", func() {
	var (
		engine sim.Engine
		pixels *algo.PixelInput
		adc    *digital.ADC
		unit   *digital.GenericUnit
	)

	BeforeEach(func() {
		engine = sim.NewSerialEngine()
		pixels = algo.NewPixelInput("Pixels", tensor.S(32, 32, 1))
		adc = digital.NewADC("ADC", digital.ADCSpec{
			OutputTile: tensor.S(1, 32, 1),
		})
	})

	build := func(buf digital.Memory, numStages int, maxCycles uint64) *digital.Scheduler {
		unit = digital.NewGenericUnit("Unit", digital.GenericUnitSpec{
			InputTiles:     []tensor.Shape{tensor.S(1, 1, 1)},
			OutputTile:     tensor.S(1, 1, 1),
			NumStages:      numStages,
			EnergyPerCycle: 1,
		})
		adc.SetOutputBuffer(buf)
		unit.SetInputBuffer(buf)

		st := pointwise("Conv", tensor.S(32, 32, 1), 1, tensor.Valid)
		algo.Connect(pixels, st)

		return digital.NewSchedulerBuilder().
			WithEngine(engine).
			WithFreq(1 * sim.GHz).
			WithMaxCycles(maxCycles).
			WithStage(st, unit).
			WithStage(pixels, adc).
			Build("Scheduler")
	}

	It("should stream a frame through a line buffer", func() {
		buf := digital.NewLineBuffer("LB", digital.LineBufferSpec{
			Rows: 2, RowLength: 32,
		})
		s := build(buf, 1, 0)

		r, err := s.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Unfinished).To(BeEmpty())
		Expect(r.FinishCycle["Conv"]).To(Equal(uint64(1024)))
		Expect(r.FinishCycle["Pixels"]).To(BeNumerically("<", 1024))
		Expect(r.TotalCycles).To(Equal(uint64(1024)))
		Expect(adc.Writes()).To(Equal(1024))
		Expect(unit.Writes()).To(Equal(1024))
		Expect(buf.TotalWrites()).To(Equal(1024))
		Expect(r.Energy["ADC"]).To(BeNumerically("~", 1024*600.0, 1e-6))
		Expect(r.Energy["Unit"]).To(BeNumerically("~", 1024.0, 1e-9))
	})

	It("should add the pipeline fill once", func() {
		buf := digital.NewLineBuffer("LB", digital.LineBufferSpec{
			Rows: 2, RowLength: 32,
		})
		s := build(buf, 3, 0)

		r, err := s.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(r.FinishCycle["Conv"]).To(Equal(uint64(1026)))
	})

	It("should stream a frame through a FIFO", func() {
		buf := digital.NewFIFO("FIFO", digital.FIFOSpec{Capacity: 32})
		s := build(buf, 1, 0)

		r, err := s.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(r.FinishCycle["Conv"]).To(Equal(uint64(1024)))
		Expect(buf.TotalReads()).To(Equal(1024))
		Expect(buf.Stored()).To(Equal(0))
	})

	It("should drain a FIFO smaller than one converted row", func() {
		pixels = algo.NewPixelInput("Pixels", tensor.S(4, 4, 1))
		adc = digital.NewADC("ADC", digital.ADCSpec{
			OutputTile: tensor.S(1, 4, 1),
		})
		buf := digital.NewFIFO("FIFO", digital.FIFOSpec{Capacity: 2})
		unit = digital.NewGenericUnit("Unit", digital.GenericUnitSpec{
			InputTiles: []tensor.Shape{tensor.S(1, 1, 1)},
			OutputTile: tensor.S(1, 1, 1),
		})
		adc.SetOutputBuffer(buf)
		unit.SetInputBuffer(buf)

		st := pointwise("Conv", tensor.S(4, 4, 1), 1, tensor.Valid)
		algo.Connect(pixels, st)

		r, err := digital.NewSchedulerBuilder().
			WithEngine(engine).
			WithStage(pixels, adc).
			WithStage(st, unit).
			Build("Scheduler").
			Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Unfinished).To(BeEmpty())
		Expect(r.FinishCycle["Pixels"]).To(Equal(uint64(15)))
		Expect(r.FinishCycle["Conv"]).To(Equal(uint64(16)))
		Expect(adc.Writes()).To(Equal(16))
		Expect(unit.Writes()).To(Equal(16))
		Expect(buf.TotalReads()).To(Equal(16))
		Expect(buf.Stored()).To(Equal(0))
	})

	It("should stream through a FIFO smaller than one firing", func() {
		pixels = algo.NewPixelInput("Pixels", tensor.S(4, 4, 1))
		adc = digital.NewADC("ADC", digital.ADCSpec{
			OutputTile: tensor.S(1, 4, 1),
		})
		buf := digital.NewFIFO("FIFO", digital.FIFOSpec{Capacity: 1})
		unit = digital.NewGenericUnit("Unit", digital.GenericUnitSpec{
			InputTiles: []tensor.Shape{tensor.S(1, 2, 1)},
			OutputTile: tensor.S(1, 2, 1),
		})
		adc.SetOutputBuffer(buf)
		unit.SetInputBuffer(buf)

		st := pointwise("Conv", tensor.S(4, 4, 1), 1, tensor.Valid)
		algo.Connect(pixels, st)

		r, err := digital.NewSchedulerBuilder().
			WithEngine(engine).
			WithStage(pixels, adc).
			WithStage(st, unit).
			Build("Scheduler").
			Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Unfinished).To(BeEmpty())
		Expect(r.FinishCycle["Conv"]).To(Equal(uint64(16)))
		Expect(unit.Writes()).To(Equal(16))
		Expect(buf.TotalReads()).To(Equal(16))
		Expect(buf.TotalWrites()).To(Equal(16))
	})

	It("should give the same result on a second run", func() {
		buf := digital.NewLineBuffer("LB", digital.LineBufferSpec{
			Rows: 2, RowLength: 32,
		})
		unit = digital.NewGenericUnit("Unit", digital.GenericUnitSpec{
			InputTiles:     []tensor.Shape{tensor.S(1, 1, 1)},
			OutputTile:     tensor.S(1, 1, 1),
			EnergyPerCycle: 1,
		})
		adc.SetOutputBuffer(buf)
		unit.SetInputBuffer(buf)

		st := pointwise("Conv", tensor.S(32, 32, 1), 1, tensor.Valid)
		algo.Connect(pixels, st)

		run := func() digital.Result {
			r, err := digital.NewSchedulerBuilder().
				WithEngine(sim.NewSerialEngine()).
				WithStage(pixels, adc).
				WithStage(st, unit).
				Build("Scheduler").
				Run()
			Expect(err).NotTo(HaveOccurred())

			return r
		}

		first := run()
		second := run()

		Expect(second.Unfinished).To(BeEmpty())
		Expect(second.TotalCycles).To(Equal(first.TotalCycles))
		Expect(second.Energy).To(Equal(first.Energy))
		Expect(buf.TotalWrites()).To(Equal(1024))
	})

	It("should report stages left at the cycle bound", func() {
		buf := digital.NewLineBuffer("LB", digital.LineBufferSpec{
			Rows: 2, RowLength: 32,
		})
		s := build(buf, 1, 100)

		r, err := s.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Unfinished).To(ConsistOf("Conv"))
		Expect(r.TotalCycles).To(Equal(uint64(100)))
		Expect(s.Cycle()).To(Equal(uint64(100)))
	})

	It("should stop when no stage can move", func() {
		buf := digital.NewLineBuffer("LB", digital.LineBufferSpec{
			Rows: 1, RowLength: 32,
		})
		unit = digital.NewGenericUnit("Unit", digital.GenericUnitSpec{
			InputTiles: []tensor.Shape{tensor.S(3, 3, 1)},
			OutputTile: tensor.S(1, 1, 1),
		})
		adc.SetOutputBuffer(buf)
		unit.SetInputBuffer(buf)

		st := pointwise("Blur", tensor.S(32, 32, 1), 3, tensor.Same)
		algo.Connect(pixels, st)

		s := digital.NewSchedulerBuilder().
			WithEngine(engine).
			WithStage(pixels, adc).
			WithStage(st, unit).
			Build("Scheduler")

		r, err := s.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(r.Unfinished).To(ConsistOf("Pixels", "Blur"))
		Expect(s.Cycle()).To(Equal(uint64(3)))
	})

	It("should invoke hooks on every transition", func() {
		buf := digital.NewFIFO("FIFO", digital.FIFOSpec{Capacity: 32})
		s := build(buf, 1, 0)
		rec := &transitionRecorder{}
		s.AcceptHook(rec)

		_, err := s.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(rec.items[0]).To(Equal(digital.StageTransition{
			Stage: "Pixels",
			Unit:  "ADC",
			From:  digital.PhaseIdle,
			To:    digital.PhaseReading,
			Cycle: 1,
		}))

		last := rec.items[len(rec.items)-1]
		Expect(last.Stage).To(Equal("Conv"))
		Expect(last.To).To(Equal(digital.PhaseFinished))
		Expect(last.Cycle).To(Equal(uint64(1024)))
	})

	It("should run a convolution on a systolic array", func() {
		pixels = algo.NewPixelInput("Pixels", tensor.S(8, 8, 3))
		adc = digital.NewADC("ADC", digital.ADCSpec{
			OutputTile: tensor.S(1, 8, 3),
		})
		sa := digital.NewSystolicArray("SA", digital.SystolicArraySpec{
			Rows: 4, Cols: 4, NumStages: 2, EnergyPerMAC: 1,
		})
		buf := digital.NewDoubleBuffer("DB", digital.MemorySpec{})
		adc.SetOutputBuffer(buf)
		sa.SetInputBuffer(buf)

		st := conv("Conv", tensor.S(8, 8, 3),
			algo.KernelShape{H: 3, W: 3, In: 3, Out: 4}, 1)
		algo.Connect(pixels, st)

		s := digital.NewSchedulerBuilder().
			WithEngine(engine).
			WithStage(pixels, adc).
			WithStage(st, sa).
			Build("Scheduler")

		r, err := s.Run()

		Expect(err).NotTo(HaveOccurred())
		Expect(r.FinishCycle["Conv"]).To(Equal(uint64(434)))
		Expect(sa.ComputeCycles()).To(Equal(433))
		Expect(sa.Writes()).To(Equal(256))
		Expect(r.Energy["SA"]).To(BeNumerically("~", 433*16.0, 1e-9))
	})

	It("should reject an unmapped producer", func() {
		st := pointwise("Conv", tensor.S(32, 32, 1), 1, tensor.Valid)
		algo.Connect(pixels, st)
		u := digital.NewGenericUnit("Unit", digital.GenericUnitSpec{
			InputTiles: []tensor.Shape{tensor.S(1, 1, 1)},
			OutputTile: tensor.S(1, 1, 1),
		})
		u.SetInputBuffer(digital.NewDoubleBuffer("DB", digital.MemorySpec{}))

		s := digital.NewSchedulerBuilder().
			WithEngine(engine).
			WithStage(st, u).
			Build("Scheduler")

		_, err := s.Run()

		Expect(err).To(HaveOccurred())
	})
})
