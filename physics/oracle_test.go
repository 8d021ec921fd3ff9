package physics_test

import (
	"math"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/camsim/physics"
)

var _ = Describe("DefaultOracle", func() {
	var o physics.DefaultOracle

	It("should grow parasitics with array height and pitch", func() {
		small := o.ParasiticCapacitance(64, 130, 4)
		tall := o.ParasiticCapacitance(128, 130, 4)
		wide := o.ParasiticCapacitance(128, 130, 8)
		Expect(tall).To(BeNumerically("~", 2*small, 1e-20))
		Expect(wide).To(BeNumerically(">", tall))
		Expect(o.ParasiticCapacitance(0, 130, 4)).To(BeZero())
	})

	It("should keep the column parasitic in the tens of femtofarads", func() {
		c := o.ParasiticCapacitance(128, 130, 4)
		Expect(c).To(BeNumerically(">", 10e-15))
		Expect(c).To(BeNumerically("<", 100e-15))
	})

	It("should need more current in strong inversion", func() {
		weak := o.GmID(1e-12, 2, 1e6, false, physics.WeakInversion)
		strong := o.GmID(1e-12, 2, 1e6, false, physics.StrongInversion)
		Expect(strong).To(BeNumerically("~", 4*weak, 1e-18))
		Expect(weak).To(BeNumerically("~", 2*math.Pi*1e-12*2*1e6/20, 1e-18))
	})

	It("should double current for differential stages", func() {
		se := o.GmID(1e-12, 1, 1e6, false, physics.ModerateInversion)
		diff := o.GmID(1e-12, 1, 1e6, true, physics.ModerateInversion)
		Expect(diff).To(BeNumerically("~", 2*se, 1e-18))
	})

	It("should look up nominal supplies", func() {
		Expect(o.NominalSupply(180)).To(Equal(1.8))
		Expect(o.NominalSupply(110)).To(Equal(1.5))
		Expect(o.NominalSupply(7)).To(Equal(0.8))
		Expect(o.NominalSupply(1000)).To(Equal(3.3))
	})

	It("should name inversion levels", func() {
		Expect(physics.ModerateInversion.Name()).To(Equal("moderate"))
		Expect(func() { physics.Inversion(9).Name() }).To(Panic())
	})
})
