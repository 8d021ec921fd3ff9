// Command camsim simulates a stacked sensor: a 4T pixel array read out row
// by row into an ADC, a systolic array running a 3x3 convolution out of a
// line buffer, and a SIMD processor running a depthwise layer after it.
//
// Run options are read from the YAML file named by CAMSIM_CONFIG.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/sarchlab/akita/v4/monitoring"
	"github.com/tebeka/atexit"

	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/analog"
	"github.com/sarchlab/camsim/api"
	"github.com/sarchlab/camsim/config"
	"github.com/sarchlab/camsim/digital"
	"github.com/sarchlab/camsim/report"
	"github.com/sarchlab/camsim/tensor"
	"github.com/sarchlab/camsim/verify"
)

const (
	height = 32
	width  = 32
)

func pixelArray() *analog.Array {
	aps := analog.NewActivePixelSensor("APS", analog.ActivePixelSensorSpec{
		NumTransistor:   4,
		EnableCDS:       true,
		PDCapacitance:   100e-15,
		PDSupply:        2.5,
		FDCapacitance:   10e-15,
		LoadCapacitance: 1e-12,
		ArrayVSize:      height,
		TechNode:        65,
		Pitch:           4,
		DarkCurrent:     2,
		FDNoise:         analog.NoiseParams{Gain: 1e-3, Sigma: 1e-4},
		SFNoise:         analog.NoiseParams{Gain: 0.85, Sigma: 5e-4},
	})

	pixel := analog.ComponentBuilder{}.
		WithInputDomains(analog.Optical).
		WithOutputDomain(analog.Voltage).
		WithNumOutput(tensor.S(1, 1, 1)).
		WithPrimitive(aps, 1).
		Build("Pixel")

	a := analog.ArrayBuilder{}.
		WithLayer(analog.SensorLayer).
		WithNumOutput(tensor.S(1, width, 1)).
		Build("PixelArray")
	a.AddComponent(pixel, width)

	return a
}

func hardware() *config.Hardware {
	lineBuffer := digital.NewLineBuffer("LineBuffer", digital.LineBufferSpec{
		MemorySpec: digital.MemorySpec{ReadEnergy: 0.5, WriteEnergy: 0.5},
		Rows:       3,
		RowLength:  width,
	})
	scratch := digital.NewDoubleBuffer("Scratch", digital.MemorySpec{
		ReadWord: 8, WriteWord: 8, ReadEnergy: 2, WriteEnergy: 2,
	})

	adc := digital.NewADC("ADC", digital.ADCSpec{
		OutputTile: tensor.S(1, width, 1),
	})
	systolic := digital.NewSystolicArray("Systolic", digital.SystolicArraySpec{
		Rows: 8, Cols: 8, NumStages: 4, EnergyPerMAC: 0.2,
	})
	simd := digital.NewSIMDProcessor("SIMD", digital.SIMDProcessorSpec{
		Lanes: 8, NumStages: 2, EnergyPerMAC: 0.3,
	})

	adc.SetOutputBuffer(lineBuffer)
	systolic.SetInputBuffer(lineBuffer)
	systolic.SetOutputBuffer(scratch)
	simd.SetInputBuffer(scratch)

	hw, err := config.HardwareBuilder{}.
		WithAnalogArrays(pixelArray()).
		WithComputeUnits(adc, systolic, simd).
		WithMemories(lineBuffer, scratch).
		Build("StackedSensor")
	if err != nil {
		panic(err)
	}

	return hw
}

func graph() *algo.Graph {
	pixels := algo.NewPixelInput("Pixels", tensor.S(height, width, 1))

	conv, err := algo.NewDNNProcessStage("Conv", algo.DNNSpec{
		Op:     algo.Conv2D,
		Input:  tensor.S(height, width, 1),
		Kernel: algo.KernelShape{H: 3, W: 3, In: 1, Out: 8},
		Stride: 1,
	})
	if err != nil {
		panic(err)
	}

	dw, err := algo.NewDNNProcessStage("DWConv", algo.DNNSpec{
		Op:     algo.DWConv2D,
		Input:  conv.OutputShape(),
		Kernel: algo.KernelShape{H: 3, W: 3, In: 8, Out: 8},
		Stride: 2,
	})
	if err != nil {
		panic(err)
	}

	algo.Connect(pixels, conv)
	algo.Connect(conv, dw)

	g := algo.NewGraph()
	if err := g.Add(pixels, conv, dw); err != nil {
		panic(err)
	}

	if err := g.Build(); err != nil {
		panic(err)
	}

	return g
}

func loadRunConfig() config.RunConfig {
	path := os.Getenv("CAMSIM_CONFIG")
	if path == "" {
		return config.DefaultRunConfig()
	}

	run, err := config.LoadRunConfig(path)
	if err != nil {
		panic(err)
	}

	return run
}

func setupLogging(run config.RunConfig) {
	level, err := run.Level()
	if err != nil {
		panic(err)
	}

	f, err := os.Create(run.LogFile)
	if err != nil {
		panic(err)
	}

	atexit.Register(func() { f.Close() })

	handler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func main() {
	run := loadRunConfig()
	setupLogging(run)

	hw := hardware()
	g := graph()
	mapping := map[string]string{
		"Pixels": "PixelArray",
		"Conv":   "Systolic",
		"DWConv": "SIMD",
	}

	check := verify.GenerateReport(hw, g, mapping)
	check.WriteReport(os.Stdout)

	if !check.OK() {
		atexit.Exit(1)
	}

	builder := api.SimulatorBuilder{}.
		WithHardware(hw).
		WithGraph(g).
		WithMapping(mapping).
		WithRunConfig(run)

	if run.Monitor {
		monitor := monitoring.NewMonitor()
		monitor.StartServer()
		builder = builder.WithMonitor(monitor)
	}

	simulator := builder.Build("Simulator")

	energy, err := simulator.EnergySimulation()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}

	report.EnergyTable(os.Stdout, energy)
	report.CycleTable(os.Stdout, energy.Cycles)

	photons := tensor.FromGen(tensor.S(height, width, 1),
		tensor.MakeIncreasingGen(100))

	out, err := simulator.FunctionalSimulation(
		map[string][]*tensor.Tensor{"Pixels": {photons}})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}

	frame := out["Pixels"][0]
	fmt.Printf("Pixel voltages: mean %.4f V, std %.4f V, range [%.4f, %.4f]\n",
		frame.Mean(), frame.Std(), frame.Min(), frame.Max())

	atexit.Exit(0)
}
