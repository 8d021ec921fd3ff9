package digital

import (
	"log/slog"

	"github.com/sarchlab/camsim/tensor"
)

// RegionKey names the output region of a producer stage on a unit.
type RegionKey struct {
	Unit  string
	Stage string
}

// Box is an axis-aligned block of an H×W×C region.
type Box struct {
	H0, W0, C0 int
	H, W, C    int
}

// Volume returns the number of positions in the box.
func (b Box) Volume() int {
	if b.H <= 0 || b.W <= 0 || b.C <= 0 {
		return 0
	}

	return b.H * b.W * b.C
}

// At returns the i-th position of the box, walking channels fastest, then
// columns, then rows.
func (b Box) At(i int) (h, w, c int) {
	c = b.C0 + i%b.C
	w = b.W0 + (i/b.C)%b.W
	h = b.H0 + i/(b.C*b.W)

	return h, w, c
}

// Region is a dense bitmap of which output positions of a stage have been
// written. Positions outside the shape read as written, so that windows
// hanging over the border only wait for the real data.
type Region struct {
	shape   tensor.Shape
	bits    []bool
	stamped int
}

// NewRegion creates an empty region.
func NewRegion(shape tensor.Shape) *Region {
	if !shape.Valid() {
		panic("region shape must be positive")
	}

	return &Region{shape: shape, bits: make([]bool, shape.Volume())}
}

// Shape returns the extent of the region.
func (r *Region) Shape() tensor.Shape {
	return r.shape
}

func (r *Region) inside(h, w, c int) bool {
	return h >= 0 && h < r.shape.H &&
		w >= 0 && w < r.shape.W &&
		c >= 0 && c < r.shape.C
}

func (r *Region) index(h, w, c int) int {
	return (h*r.shape.W+w)*r.shape.C + c
}

// Stamp marks every position of b as written. Stamping a position twice has
// no effect. Positions outside the region are reported and skipped.
func (r *Region) Stamp(b Box) {
	outside := 0

	for h := b.H0; h < b.H0+b.H; h++ {
		for w := b.W0; w < b.W0+b.W; w++ {
			for c := b.C0; c < b.C0+b.C; c++ {
				if !r.inside(h, w, c) {
					outside++
					continue
				}

				i := r.index(h, w, c)
				if !r.bits[i] {
					r.bits[i] = true
					r.stamped++
				}
			}
		}
	}

	if outside > 0 {
		slog.Warn("Stamp outside region",
			"Shape", r.shape.String(), "Positions", outside)
	}
}

// StampPart marks n positions of b as written, starting at position from
// in the order of Box.At.
func (r *Region) StampPart(b Box, from, n int) {
	end := min(from+n, b.Volume())

	for i := from; i < end; i++ {
		h, w, c := b.At(i)
		if !r.inside(h, w, c) {
			continue
		}

		if j := r.index(h, w, c); !r.bits[j] {
			r.bits[j] = true
			r.stamped++
		}
	}
}

// Ready reports whether every position of b inside the region is written.
func (r *Region) Ready(b Box) bool {
	for h := b.H0; h < b.H0+b.H; h++ {
		for w := b.W0; w < b.W0+b.W; w++ {
			for c := b.C0; c < b.C0+b.C; c++ {
				if r.inside(h, w, c) && !r.bits[r.index(h, w, c)] {
					return false
				}
			}
		}
	}

	return true
}

// Stamped returns the number of written positions.
func (r *Region) Stamped() int {
	return r.stamped
}

// Complete reports whether the whole region is written.
func (r *Region) Complete() bool {
	return r.stamped == len(r.bits)
}

// ReservationBoard records which stage holds each unit.
type ReservationBoard struct {
	owner map[string]string
}

// NewReservationBoard creates an empty board.
func NewReservationBoard() *ReservationBoard {
	return &ReservationBoard{owner: make(map[string]string)}
}

// Reserve gives unit to stage if the unit is free or already held by it.
func (b *ReservationBoard) Reserve(stage, unit string) bool {
	owner, held := b.owner[unit]
	if held {
		return owner == stage
	}

	b.owner[unit] = stage

	return true
}

// ReservedBy reports whether stage holds unit.
func (b *ReservationBoard) ReservedBy(stage, unit string) bool {
	owner, held := b.owner[unit]
	return held && owner == stage
}

// Release frees unit if stage holds it.
func (b *ReservationBoard) Release(stage, unit string) {
	if b.ReservedBy(stage, unit) {
		delete(b.owner, unit)
	}
}

// Owner returns the stage holding unit.
func (b *ReservationBoard) Owner(unit string) (string, bool) {
	owner, held := b.owner[unit]
	return owner, held
}
