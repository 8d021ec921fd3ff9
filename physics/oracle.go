// Package physics holds the physical-design helpers that the analog energy
// models treat as opaque numeric oracles.
package physics

import (
	"math"
	"sort"
)

// Inversion is the operating region of a biased transistor.
type Inversion int

const (
	WeakInversion Inversion = iota
	ModerateInversion
	StrongInversion
)

// Name returns the name of the inversion level.
func (i Inversion) Name() string {
	switch i {
	case WeakInversion:
		return "weak"
	case ModerateInversion:
		return "moderate"
	case StrongInversion:
		return "strong"
	default:
		panic("invalid inversion level")
	}
}

// GmOverID returns the transconductance efficiency (1/V) of the region.
func (i Inversion) GmOverID() float64 {
	switch i {
	case WeakInversion:
		return 20
	case ModerateInversion:
		return 10
	case StrongInversion:
		return 5
	default:
		panic("invalid inversion level")
	}
}

// Oracle answers the circuit-sizing questions that the energy formulas
// depend on.
type Oracle interface {
	// ParasiticCapacitance returns the column-line parasitic capacitance in
	// farads for an array of arrayHeight pixels at the given technology node
	// (nm) and pixel pitch (um).
	ParasiticCapacitance(arrayHeight int, techNode, pitch float64) float64

	// GmID returns the bias current in amperes that an amplifier driving
	// load (F) needs to reach gain at bandwidth (Hz).
	GmID(load, gain, bandwidth float64, differential bool,
		inversion Inversion) float64

	// NominalSupply returns the core supply voltage of a technology node.
	NominalSupply(techNode float64) float64
}

// DefaultOracle implements Oracle with first-order analytical models.
type DefaultOracle struct{}

// Default is the oracle used when a block is not given one.
var Default Oracle = DefaultOracle{}

// wireCapPerUm is the column-wire capacitance per micron, in farads.
const wireCapPerUm = 0.05e-15

// junctionCap is the drain-junction load that each row select transistor
// adds to the column line at 130 nm, in farads.
const junctionCap = 0.08e-15

// ParasiticCapacitance models the column line as a wire of arrayHeight
// pixel pitches plus one select-transistor junction per row. Junction
// capacitance scales linearly with feature size.
func (DefaultOracle) ParasiticCapacitance(
	arrayHeight int,
	techNode, pitch float64,
) float64 {
	if arrayHeight <= 0 {
		return 0
	}

	perRow := pitch*wireCapPerUm + junctionCap*techNode/130

	return float64(arrayHeight) * perRow
}

// GmID sizes the input pair for a closed-loop gain-bandwidth product of
// gain*bandwidth against load. A differential stage burns two branches.
func (DefaultOracle) GmID(
	load, gain, bandwidth float64,
	differential bool,
	inversion Inversion,
) float64 {
	gm := 2 * math.Pi * load * math.Max(gain, 1) * bandwidth
	current := gm / inversion.GmOverID()

	if differential {
		current *= 2
	}

	return current
}

var nominalSupplies = []struct {
	node   float64
	supply float64
}{
	{22, 0.8},
	{28, 0.9},
	{45, 1.0},
	{65, 1.1},
	{90, 1.2},
	{130, 1.5},
	{180, 1.8},
	{250, 2.5},
	{350, 3.3},
}

// NominalSupply returns the supply of the closest node that is not smaller
// than techNode, saturating at both ends of the table.
func (DefaultOracle) NominalSupply(techNode float64) float64 {
	i := sort.Search(len(nominalSupplies), func(i int) bool {
		return nominalSupplies[i].node >= techNode
	})

	if i == len(nominalSupplies) {
		i = len(nominalSupplies) - 1
	}

	return nominalSupplies[i].supply
}
