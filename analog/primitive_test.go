package analog_test

import (
	"math"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/camsim/analog"
	"github.com/sarchlab/camsim/physics"
	"github.com/sarchlab/camsim/tensor"
)

var _ = Describe("Primitive energy", func() {
	var (
		mockCtrl *gomock.Controller
		oracle   *MockOracle
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		oracle = NewMockOracle(mockCtrl)
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	It("should charge a 3T pixel and its column line", func() {
		oracle.EXPECT().
			ParasiticCapacitance(128, 130.0, 4.0).
			Return(50e-15)

		aps := analog.NewActivePixelSensor("APS", analog.ActivePixelSensorSpec{
			NumTransistor:   3,
			PDCapacitance:   100e-15,
			PDSupply:        1.8,
			LoadCapacitance: 1e-12,
			ArrayVSize:      128,
			TechNode:        130,
			Pitch:           4,
			Oracle:          oracle,
		})

		e, err := aps.Energy()

		Expect(err).NotTo(HaveOccurred())
		expected := 100e-15*1.8*1.8 + (1e-12+50e-15)*1.8*1
		Expect(e).To(BeNumerically("~", expected, 1e-18))
	})

	It("should charge the floating diffusion and read twice for 4T CDS", func() {
		oracle.EXPECT().
			ParasiticCapacitance(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(0.0)

		aps := analog.NewActivePixelSensor("APS", analog.ActivePixelSensorSpec{
			NumTransistor:   4,
			EnableCDS:       true,
			PDCapacitance:   100e-15,
			FDCapacitance:   10e-15,
			PDSupply:        1,
			LoadCapacitance: 1e-12,
			OutputSwing:     0.5,
			Oracle:          oracle,
		})

		e, err := aps.Energy()

		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeNumerically("~", 110e-15+2*1e-12*0.5, 1e-18))
	})

	It("should scale the readout of a dynamic source follower", func() {
		oracle.EXPECT().
			ParasiticCapacitance(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(0.0)

		aps := analog.NewActivePixelSensor("APS", analog.ActivePixelSensorSpec{
			NumTransistor:   3,
			PDSupply:        2,
			LoadCapacitance: 1e-12,
			OutputSwing:     1,
			DynamicSF:       true,
			Oracle:          oracle,
		})

		e, err := aps.Energy()

		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeNumerically("~", 1e-12*2*1*0.5, 1e-18))
	})

	It("should reject a pixel with an unsupported transistor count", func() {
		aps := analog.NewActivePixelSensor("APS", analog.ActivePixelSensorSpec{
			NumTransistor: 5,
			Oracle:        oracle,
		})

		_, err := aps.Energy()

		Expect(err).To(MatchError(analog.ErrParameter))
	})

	It("should size the column amplifier opamp through the oracle", func() {
		oracle.EXPECT().
			GmID(500e-15, gomock.Any(), gomock.Any(), false,
				physics.ModerateInversion).
			Return(1e-6).
			Times(1)

		amp := analog.NewColumnAmplifier("Amp", analog.ColumnAmplifierSpec{
			InputCapacitance:    400e-15,
			FeedbackCapacitance: 100e-15,
			LoadCapacitance:     500e-15,
			Supply:              1.5,
			HoldTime:            1e-6,
			Inversion:           physics.ModerateInversion,
			Oracle:              oracle,
		})

		e, err := amp.Energy()

		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeNumerically("~", 1e-12*2.25+1.5e-12, 1e-18))
	})

	It("should bias the active analog memory at unity gain", func() {
		oracle.EXPECT().
			GmID(1e-12, 1.0, 2e6, false, physics.WeakInversion).
			Return(2e-6)

		mem := analog.NewActiveAnalogMemory("AM", analog.ActiveAnalogMemorySpec{
			SampleCapacitance:       1e-12,
			CompensationCapacitance: 1e-12,
			Supply:                  1,
			HoldTime:                1e-6,
			Bandwidth:               2e6,
			Inversion:               physics.WeakInversion,
			Oracle:                  oracle,
		})

		e, err := mem.Energy()

		Expect(err).NotTo(HaveOccurred())
		Expect(e).To(BeNumerically("~", 2e-12+2e-12, 1e-18))
	})

	It("should follow the closed-form formulas", func() {
		check := func(p analog.Primitive, expected float64) {
			e, err := p.Energy()
			Expect(err).NotTo(HaveOccurred())
			Expect(e).To(BeNumerically("~", expected, expected*1e-9),
				p.Name())
		}

		check(analog.NewPinnedPhotodiode("PD", analog.PinnedPhotodiodeSpec{
			Capacitance: 100e-15, Supply: 2,
		}), 400e-15)
		check(analog.NewSourceFollower("SF", analog.SourceFollowerSpec{
			Supply: 1.8, BiasCurrent: 1e-6, Time: 1e-6,
		}), 1.8e-12)
		check(analog.NewPassiveAnalogMemory("PM",
			analog.PassiveAnalogMemorySpec{Capacitance: 1e-12, Supply: 1.5},
		), 2.25e-12)
		check(analog.NewCurrentMirror("CM", analog.CurrentMirrorSpec{
			Supply: 1, Current: 1e-6, Time: 1e-6,
		}), 1e-12)
		check(analog.NewDigitalToCurrent("DAC", analog.DigitalToCurrentSpec{
			Supply: 1, Current: 1e-6, Time: 1e-6, Resolution: 4,
		}), 16e-12)
		check(analog.NewComparator("Comp", analog.ComparatorSpec{
			Supply: 1, BiasCurrent: 3e-6, Time: 1e-6,
		}), 3e-12)
		check(analog.NewADC("ADC", analog.ADCSpec{
			FOM: 1e-13, Resolution: 10,
		}), 1024e-13)
		check(analog.NewPassiveSCArray("SC", analog.PassiveSCArraySpec{
			Capacitances: []float64{1e-12, 2e-12},
			Supplies:     []float64{1, 2},
		}), 9e-12)
		check(analog.NewMaximumVoltage("Max", analog.MaximumVoltageSpec{
			Supply: 1, BiasCurrent: 2e-6, FrameTime: 1e-3, CompTime: 1e-6,
		}), 1e-9+2e-12)
		check(analog.NewCorrelatedDoubleSampling("CDS",
			analog.CorrelatedDoubleSamplingSpec{
				SampleCapacitance: 1e-12, Supply: 1,
			}), 2e-12)
		check(analog.NewAnalogReLU("ReLU", analog.AnalogReLUSpec{
			Supply: 1, BiasCurrent: 1e-6, Time: 2e-6,
		}), 2e-12)
	})

	It("should reject negative parameters", func() {
		pd := analog.NewPinnedPhotodiode("PD", analog.PinnedPhotodiodeSpec{
			Capacitance: -1, Supply: 1,
		})

		_, err := pd.Energy()

		Expect(err).To(MatchError(analog.ErrParameter))
	})

	It("should reject mismatched supply lists", func() {
		sc := analog.NewPassiveSCArray("SC", analog.PassiveSCArraySpec{
			Capacitances: []float64{1, 2, 3},
			Supplies:     []float64{1, 2},
		})

		_, err := sc.Energy()

		Expect(err).To(MatchError(analog.ErrParameter))
	})
})

var _ = Describe("Primitive functional model", func() {
	var (
		env *analog.Env
		in  *tensor.Tensor
	)

	BeforeEach(func() {
		env = analog.NewEnv(1)
		in = tensor.FromGen(tensor.S(4, 4, 2), tensor.MakeIncreasingGen(0))
	})

	It("should pass inputs through an ideal primitive", func() {
		ps := []analog.Primitive{
			analog.NewSourceFollower("SF", analog.SourceFollowerSpec{}),
			analog.NewColumnAmplifier("Amp", analog.ColumnAmplifierSpec{}),
			analog.NewPassiveAnalogMemory("PM",
				analog.PassiveAnalogMemorySpec{}),
			analog.NewActiveAnalogMemory("AM",
				analog.ActiveAnalogMemorySpec{}),
			analog.NewCurrentMirror("CM", analog.CurrentMirrorSpec{}),
			analog.NewDigitalToCurrent("DAC", analog.DigitalToCurrentSpec{}),
			analog.NewAnalogReLU("ReLU", analog.AnalogReLUSpec{}),
		}

		for _, p := range ps {
			out, err := p.Apply(env, []*tensor.Tensor{in})

			Expect(err).NotTo(HaveOccurred(), p.Name())
			Expect(out).To(HaveLen(1))
			Expect(out[0].Data()).To(Equal(in.Data()), p.Name())
		}
	})

	It("should not modify its input", func() {
		sf := analog.NewSourceFollower("SF", analog.SourceFollowerSpec{
			Noise: analog.NoiseParams{Gain: 2, Sigma: 1},
		})
		before := in.Clone()

		_, err := sf.Apply(env, []*tensor.Tensor{in})

		Expect(err).NotTo(HaveOccurred())
		Expect(in.Data()).To(Equal(before.Data()))
	})

	It("should apply gain and offset", func() {
		sf := analog.NewSourceFollower("SF", analog.SourceFollowerSpec{
			Noise: analog.NoiseParams{Gain: 0.5, Offset: 1},
		})

		out, err := sf.Apply(env, []*tensor.Tensor{in})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].At(0, 0, 1)).To(Equal(2.0))
	})

	It("should default a zero gain to unity unless zero gain is asked for", func() {
		ideal := analog.NewSourceFollower("SF", analog.SourceFollowerSpec{})
		blocked := analog.NewSourceFollower("Off", analog.SourceFollowerSpec{
			Noise: analog.NoiseParams{ZeroGain: true, Offset: 0.25},
		})

		out, err := blocked.Apply(env, []*tensor.Tensor{in})

		Expect(err).NotTo(HaveOccurred())
		Expect(ideal.Noise().Gain).To(Equal(1.0))
		Expect(blocked.Noise().Gain).To(Equal(0.0))
		Expect(out[0].AllClose(tensor.Full(in.Shape(), 0.25), 0)).To(BeTrue())
	})

	It("should draw integer shot noise with Poisson variance", func() {
		pd := analog.NewPinnedPhotodiode("PD", analog.PinnedPhotodiodeSpec{})
		photons := tensor.Full(tensor.S(100, 100, 1), 400)

		out, err := pd.Apply(env, []*tensor.Tensor{photons})

		Expect(err).NotTo(HaveOccurred())
		for _, v := range out[0].Data() {
			Expect(v).To(Equal(float64(int64(v))))
		}
		Expect(out[0].Mean()).To(BeNumerically("~", 400, 1))
		Expect(out[0].Std()).To(BeNumerically("~", 20, 1))
	})

	It("should add read noise with the requested sigma", func() {
		sf := analog.NewSourceFollower("SF", analog.SourceFollowerSpec{
			Noise: analog.NoiseParams{Sigma: 0.5},
		})
		zeros := tensor.New(tensor.S(100, 100, 1))

		out, err := sf.Apply(env, []*tensor.Tensor{zeros})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Mean()).To(BeNumerically("~", 0, 0.02))
		Expect(out[0].Std()).To(BeNumerically("~", 0.5, 0.02))
	})

	It("should reject a negative sigma at first use", func() {
		sf := analog.NewSourceFollower("SF", analog.SourceFollowerSpec{
			Noise: analog.NoiseParams{Sigma: -1},
		})

		_, err := sf.Apply(env, []*tensor.Tensor{in})

		Expect(err).To(MatchError(analog.ErrNoise))
	})

	It("should reject the wrong fan-in", func() {
		cds := analog.NewCorrelatedDoubleSampling("CDS",
			analog.CorrelatedDoubleSamplingSpec{})

		_, err := cds.Apply(env, []*tensor.Tensor{in})

		Expect(err).To(MatchError(analog.ErrFanIn))
	})

	It("should output zeros from a dark photodiode without light", func() {
		pd := analog.NewPinnedPhotodiode("PD", analog.PinnedPhotodiodeSpec{})

		out, err := pd.Apply(env,
			[]*tensor.Tensor{tensor.New(tensor.S(8, 8, 1))})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Max()).To(Equal(0.0))
		Expect(out[0].Min()).To(Equal(0.0))
	})

	It("should produce shot noise around the photon count", func() {
		pd := analog.NewPinnedPhotodiode("PD", analog.PinnedPhotodiodeSpec{})

		for _, lambda := range []float64{5, 100} {
			photons := tensor.Full(tensor.S(100, 100, 1), lambda)
			out, err := pd.Apply(env, []*tensor.Tensor{photons})

			Expect(err).NotTo(HaveOccurred())
			Expect(out[0].Min()).To(BeNumerically(">=", 0))
			Expect(out[0].Mean()).To(BeNumerically("~", lambda, lambda*0.02))
			Expect(out[0].Std()).
				To(BeNumerically("~", math.Sqrt(lambda), math.Sqrt(lambda)*0.1))
		}
	})

	It("should reject negative photon counts", func() {
		pd := analog.NewPinnedPhotodiode("PD", analog.PinnedPhotodiodeSpec{})

		_, err := pd.Apply(env,
			[]*tensor.Tensor{tensor.Full(tensor.S(1, 1, 1), -1)})

		Expect(err).To(MatchError(analog.ErrParameter))
	})

	It("should keep the dark-current field fixed", func() {
		pd := analog.NewPinnedPhotodiode("PD", analog.PinnedPhotodiodeSpec{
			DarkCurrent: 1000,
			EnableDCNU:  true,
			DCNUSigma:   0.2,
		})
		dark := []*tensor.Tensor{tensor.New(tensor.S(16, 16, 1))}

		first, err := pd.Apply(env, dark)
		Expect(err).NotTo(HaveOccurred())
		second, err := pd.Apply(env, dark)
		Expect(err).NotTo(HaveOccurred())

		Expect(env.NumFields()).To(Equal(1))
		Expect(first[0].Std()).To(BeNumerically(">", 100))
		corr := tensor.Mul(
			first[0].Map(func(v float64) float64 { return v - first[0].Mean() }),
			second[0].Map(func(v float64) float64 { return v - second[0].Mean() }),
		).Mean() / (first[0].Std() * second[0].Std())
		Expect(corr).To(BeNumerically(">", 0.9))
	})

	It("should return the reset sample with the signal under CDS", func() {
		fd := analog.NewFloatingDiffusion("FD", analog.FloatingDiffusionSpec{
			EnableCDS: true,
			Noise:     analog.NoiseParams{Gain: 2, Sigma: 3},
		})

		out, err := fd.Apply(env, []*tensor.Tensor{in})

		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(HaveLen(2))
		Expect(tensor.Sub(out[0], out[1]).AllClose(in.Scale(2), 1e-9)).
			To(BeTrue())
		Expect(out[1].Std()).To(BeNumerically(">", 0))
	})

	It("should cancel reset noise in a CDS pixel", func() {
		aps := analog.NewActivePixelSensor("APS", analog.ActivePixelSensorSpec{
			NumTransistor: 4,
			EnableCDS:     true,
			FDNoise:       analog.NoiseParams{Sigma: 5},
		})

		out, err := aps.Apply(env,
			[]*tensor.Tensor{tensor.New(tensor.S(8, 8, 1))})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Max()).To(Equal(0.0))
		Expect(out[0].Min()).To(Equal(0.0))
	})

	It("should keep reset noise without CDS", func() {
		aps := analog.NewActivePixelSensor("APS", analog.ActivePixelSensorSpec{
			NumTransistor: 3,
			FDNoise:       analog.NoiseParams{Sigma: 5},
		})

		out, err := aps.Apply(env,
			[]*tensor.Tensor{tensor.New(tensor.S(8, 8, 1))})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Std()).To(BeNumerically(">", 0))
	})

	It("should quantize in the ADC", func() {
		adc := analog.NewADC("ADC", analog.ADCSpec{Resolution: 8, VMax: 1})
		v := tensor.FromSlice(tensor.S(1, 5, 1),
			[]float64{0, 0.5, 1, 2, -1})

		out, err := adc.Apply(env, []*tensor.Tensor{v})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Data()).To(Equal([]float64{0, 128, 255, 255, 0}))
	})

	It("should run a digital pixel into codes", func() {
		dps := analog.NewDigitalPixelSensor("DPS", analog.DigitalPixelSensorSpec{
			Pixel: analog.ActivePixelSensorSpec{
				NumTransistor: 4,
				FDNoise:       analog.NoiseParams{Gain: 0.01},
			},
			ADC: analog.ADCSpec{Resolution: 4, VMax: 1},
		})

		out, err := dps.Apply(env,
			[]*tensor.Tensor{tensor.Full(tensor.S(2, 2, 1), 1000)})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Data()).To(Equal([]float64{15, 15, 15, 15}))
	})

	It("should pass the first input where it is not smaller", func() {
		comp := analog.NewComparator("Comp", analog.ComparatorSpec{})
		a := tensor.FromSlice(tensor.S(1, 3, 1), []float64{3, 1, 2})
		b := tensor.FromSlice(tensor.S(1, 3, 1), []float64{2, 2, 2})

		out, err := comp.Apply(env, []*tensor.Tensor{a, b})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Data()).To(Equal([]float64{3, 0, 2}))
	})

	It("should multiply by the weight in a computing mirror", func() {
		cm := analog.NewCurrentMirror("CM", analog.CurrentMirrorSpec{
			EnableCompute: true,
		})
		w := tensor.FromSlice(tensor.S(1, 1, 2), []float64{2, -1})

		out, err := cm.Apply(env, []*tensor.Tensor{in, w})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].At(0, 0, 0)).To(Equal(2.0))
		Expect(out[0].At(0, 0, 1)).To(Equal(-2.0))
	})

	It("should average and maximize across inputs", func() {
		a := tensor.Full(tensor.S(2, 2, 1), 1)
		b := tensor.Full(tensor.S(2, 2, 1), 3)
		sc := analog.NewPassiveSCArray("SC", analog.PassiveSCArraySpec{
			NumInputs: 2,
		})
		mx := analog.NewMaximumVoltage("Max", analog.MaximumVoltageSpec{})

		mean, err := sc.Apply(env, []*tensor.Tensor{a, b})
		Expect(err).NotTo(HaveOccurred())
		peak, err := mx.Apply(env, []*tensor.Tensor{a, b})
		Expect(err).NotTo(HaveOccurred())

		Expect(mean[0].Data()).To(Equal([]float64{2, 2, 2, 2}))
		Expect(peak[0].Data()).To(Equal([]float64{3, 3, 3, 3}))

		_, err = sc.Apply(env, []*tensor.Tensor{a})
		Expect(err).To(MatchError(analog.ErrFanIn))
	})

	It("should rectify", func() {
		relu := analog.NewAnalogReLU("ReLU", analog.AnalogReLUSpec{})
		v := tensor.FromSlice(tensor.S(1, 2, 1), []float64{-1, 1})

		out, err := relu.Apply(env, []*tensor.Tensor{v})

		Expect(err).NotTo(HaveOccurred())
		Expect(out[0].Data()).To(Equal([]float64{0, 1}))
	})
})
