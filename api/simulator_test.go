package api_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/analog"
	"github.com/sarchlab/camsim/api"
	"github.com/sarchlab/camsim/config"
	"github.com/sarchlab/camsim/digital"
	"github.com/sarchlab/camsim/tensor"
)

func pixelArray(noise analog.NoiseParams) *analog.Array {
	pixel := analog.ComponentBuilder{}.
		WithInputDomains(analog.Optical).
		WithOutputDomain(analog.Voltage).
		WithNumOutput(tensor.S(1, 1, 1)).
		WithPrimitive(analog.NewSourceFollower("Pixel.SF",
			analog.SourceFollowerSpec{
				Supply: 1, BiasCurrent: 1e-6, Time: 1e-6, Noise: noise,
			}), 1).
		Build("Pixel")

	a := analog.ArrayBuilder{}.
		WithNumOutput(tensor.S(1, 4, 1)).
		Build("PixelArray")
	a.AddComponent(pixel, 4)

	return a
}

func convArray() *analog.Array {
	conv := analog.ComponentBuilder{}.
		WithInputDomains(analog.Voltage, analog.Digital).
		WithOutputDomain(analog.Voltage).
		WithNumOutput(tensor.S(1, 1, 1)).
		WithPrimitive(analog.NewVoltageConv("Conv.Cap",
			analog.VoltageConvSpec{
				UnitCapacitance: 1e-15,
				Supply:          1,
				Follower: analog.SourceFollowerSpec{
					Supply: 1, BiasCurrent: 1e-6, Time: 1e-6,
				},
			}), 1).
		Build("Conv")

	a := analog.ArrayBuilder{}.
		WithNumOutput(tensor.S(1, 4, 1)).
		Build("ConvArray")
	a.AddComponent(conv, 4)

	return a
}

var _ = Describe("Simulator", func() {
	var (
		pixels  *analog.Array
		adc     *digital.ADC
		unit    *digital.GenericUnit
		buf     *digital.LineBuffer
		graph   *algo.Graph
		mapping map[string]string
		run     config.RunConfig
	)

	BeforeEach(func() {
		pixels = pixelArray(analog.NoiseParams{Gain: 2})
		adc = digital.NewADC("ADC", digital.ADCSpec{
			OutputTile: tensor.S(1, 4, 1),
		})
		unit = digital.NewGenericUnit("Unit", digital.GenericUnitSpec{
			InputTiles:     []tensor.Shape{tensor.S(1, 1, 1)},
			OutputTile:     tensor.S(1, 1, 1),
			EnergyPerCycle: 1,
		})
		buf = digital.NewLineBuffer("LB", digital.LineBufferSpec{
			Rows: 2, RowLength: 4,
		})
		adc.SetOutputBuffer(buf)
		unit.SetInputBuffer(buf)

		src := algo.NewPixelInput("Pixels", tensor.S(4, 4, 1))
		scale, err := algo.NewProcessStage("Scale", algo.ProcessSpec{
			Inputs:   []tensor.Shape{tensor.S(4, 4, 1)},
			Kernels:  []tensor.Shape{tensor.S(1, 1, 1)},
			Strides:  []algo.Stride{{H: 1, W: 1}},
			Paddings: []tensor.Padding{tensor.Valid},
		})
		Expect(err).NotTo(HaveOccurred())
		algo.Connect(src, scale)

		graph = algo.NewGraph()
		Expect(graph.Add(src, scale)).To(Succeed())

		mapping = map[string]string{
			"Pixels": "PixelArray",
			"Scale":  "Unit",
		}

		run = config.DefaultRunConfig()
		run.Seed = 7
	})

	build := func() api.Simulator {
		hw, err := config.HardwareBuilder{}.
			WithAnalogArrays(pixels).
			WithComputeUnits(adc, unit).
			WithMemories(buf).
			Build("Sensor")
		Expect(err).NotTo(HaveOccurred())

		return api.SimulatorBuilder{}.
			WithHardware(hw).
			WithGraph(graph).
			WithMapping(mapping).
			WithRunConfig(run).
			Build("Simulator")
	}

	It("should charge the analog array once per output tile", func() {
		energy, err := build().AnalogEnergySimulation()

		Expect(err).NotTo(HaveOccurred())
		Expect(energy).To(HaveLen(1))
		Expect(energy["PixelArray"]).To(BeNumerically("~", 16, 1e-9))
	})

	It("should charge stages chained on one array only once", func() {
		mapping["Scale"] = "PixelArray"

		energy, err := build().AnalogEnergySimulation()

		Expect(err).NotTo(HaveOccurred())
		Expect(energy).To(HaveLen(1))
		Expect(energy["PixelArray"]).To(BeNumerically("~", 16, 1e-9))
	})

	It("should report the same energy when run twice", func() {
		s := build()

		first, err := s.EnergySimulation()
		Expect(err).NotTo(HaveOccurred())
		second, err := s.EnergySimulation()
		Expect(err).NotTo(HaveOccurred())

		Expect(second.Total).To(BeNumerically("~", first.Total, 1e-9))
		Expect(second.Blocks).To(HaveLen(len(first.Blocks)))
		for name, e := range first.Blocks {
			Expect(second.Blocks[name]).To(BeNumerically("~", e, 1e-9))
		}
		Expect(second.Cycles.TotalCycles).To(Equal(first.Cycles.TotalCycles))
	})

	It("should add the digital energy of the scheduler", func() {
		report, err := build().EnergySimulation()

		Expect(err).NotTo(HaveOccurred())
		Expect(report.Blocks["PixelArray"]).To(BeNumerically("~", 16, 1e-9))
		Expect(report.Blocks["ADC"]).To(
			BeNumerically("~", 16*digital.DefaultADCEnergy, 1e-9))
		Expect(report.Blocks["Unit"]).To(BeNumerically("~", 16, 1e-9))
		Expect(report.Cycles.Unfinished).To(BeEmpty())
		Expect(report.Cycles.TotalCycles).To(BeNumerically(">", 0))

		sum := 0.0
		for _, name := range report.BlockNames() {
			sum += report.Blocks[name]
		}
		Expect(report.Total).To(BeNumerically("~", sum, 1e-9))
	})

	It("should reject an unmapped stage", func() {
		delete(mapping, "Scale")

		_, err := build().EnergySimulation()

		Expect(err).To(MatchError(api.ErrUnmapped))
	})

	It("should reject a stage mapped to a memory", func() {
		mapping["Scale"] = "LB"

		_, err := build().EnergySimulation()

		Expect(err).To(MatchError(api.ErrUnknownTarget))
	})

	It("should reject a sensor with a structural issue", func() {
		unit = digital.NewGenericUnit("Unit", digital.GenericUnitSpec{
			InputTiles: []tensor.Shape{tensor.S(1, 1, 1)},
			OutputTile: tensor.S(1, 1, 1),
		})

		_, err := build().EnergySimulation()

		Expect(err).To(MatchError(api.ErrLint))
	})

	It("should run the analog chain on the supplied photons", func() {
		in := tensor.Full(tensor.S(4, 4, 1), 3)

		out, err := build().FunctionalSimulation(
			map[string][]*tensor.Tensor{"Pixels": {in}})

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveKey("Pixels"))
		Expect(out["Pixels"]).To(HaveLen(1))
		Expect(out["Pixels"][0].AllClose(
			tensor.Full(tensor.S(4, 4, 1), 6), 1e-12)).To(BeTrue())
	})

	It("should reject photons of the wrong shape", func() {
		in := tensor.Full(tensor.S(4, 3, 1), 3)

		_, err := build().FunctionalSimulation(
			map[string][]*tensor.Tensor{"Pixels": {in}})

		Expect(err).To(MatchError(tensor.ErrShapeMismatch))
	})

	It("should reject a run without photons", func() {
		_, err := build().FunctionalSimulation(nil)

		Expect(err).To(MatchError(tensor.ErrShapeMismatch))
	})

	It("should reject an array that mixes channels a stage keeps apart", func() {
		pixels = pixelArray(analog.NoiseParams{})
		conv := convArray()
		analog.Connect(pixels, conv)

		src := algo.NewPixelInput("Pixels", tensor.S(4, 4, 2))
		st, err := algo.NewProcessStage("Conv", algo.ProcessSpec{
			Inputs:   []tensor.Shape{tensor.S(4, 4, 2)},
			Kernels:  []tensor.Shape{tensor.S(1, 1, 1)},
			Strides:  []algo.Stride{{H: 1, W: 1}},
			Paddings: []tensor.Padding{tensor.Valid},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(st.OutputShape()).To(Equal(tensor.S(4, 4, 2)))
		algo.Connect(src, st)

		graph = algo.NewGraph()
		Expect(graph.Add(src, st)).To(Succeed())
		mapping = map[string]string{"Pixels": "PixelArray", "Conv": "ConvArray"}

		hw, err := config.HardwareBuilder{}.
			WithAnalogArrays(pixels, conv).
			Build("Sensor")
		Expect(err).NotTo(HaveOccurred())

		s := api.SimulatorBuilder{}.
			WithHardware(hw).
			WithGraph(graph).
			WithMapping(mapping).
			WithRunConfig(run).
			Build("Simulator")

		_, err = s.FunctionalSimulation(map[string][]*tensor.Tensor{
			"Pixels": {tensor.Full(tensor.S(4, 4, 2), 1)},
			"Conv":   {tensor.Full(tensor.S(1, 1, 1), 1)},
		})

		Expect(err).To(MatchError(tensor.ErrShapeMismatch))
	})

	It("should repeat a noisy run under the same seed", func() {
		pixels = pixelArray(analog.NoiseParams{Gain: 1, Sigma: 0.1})
		in := tensor.Full(tensor.S(4, 4, 1), 3)
		s := build()

		a, err := s.FunctionalSimulation(map[string][]*tensor.Tensor{"Pixels": {in}})
		Expect(err).NotTo(HaveOccurred())
		b, err := s.FunctionalSimulation(map[string][]*tensor.Tensor{"Pixels": {in}})
		Expect(err).NotTo(HaveOccurred())

		Expect(a["Pixels"][0].Data()).To(Equal(b["Pixels"][0].Data()))
		Expect(a["Pixels"][0].AllClose(in, 1e-12)).To(BeFalse())
	})
})
