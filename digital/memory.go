package digital

import (
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/tensor"
)

var (
	// ErrCapacity marks a write that does not fit in a bounded memory.
	ErrCapacity = errors.New("digital: memory over capacity")

	// ErrUnderflow marks a read of data that was never stored.
	ErrUnderflow = errors.New("digital: memory underflow")
)

// A Memory is a buffer between a producer unit and a consumer unit. It
// counts stored pixels and accesses; it does not hold values.
type Memory interface {
	Name() string

	HaveSpaceToWrite(n int) bool
	FreeSpace() int
	WriteData(n int) error

	HaveDataRead(n int) bool
	ReadData(n int) error

	// Release retires n pixels that consumers no longer need. Memories
	// that pop on read ignore it.
	Release(n int)

	Stored() int
	TotalReads() int
	TotalWrites() int

	// AccessEnergy returns the read and write energy so far, in pJ.
	AccessEnergy() float64

	AllowAccess(unit string)
	CanAccess(unit string) bool
	Accessors() []string

	// ReserveRegion creates the progress bitmap of a producer stage.
	ReserveRegion(key RegionKey, shape tensor.Shape) *Region
	Region(key RegionKey) (*Region, bool)

	// Reset empties the memory and clears its counters and regions.
	// Accessors are kept.
	Reset()
}

// MemorySpec holds the access costs shared by all memories. Word sizes are
// in pixels and default to one; energies are per word in pJ.
type MemorySpec struct {
	ReadWord    int
	WriteWord   int
	ReadEnergy  float64
	WriteEnergy float64
}

type memoryBase struct {
	name string
	spec MemorySpec

	stored int
	reads  int
	writes int

	accessors map[string]bool
	regions   map[RegionKey]*Region
}

func newMemoryBase(name string, spec MemorySpec) memoryBase {
	if spec.ReadWord <= 0 {
		spec.ReadWord = 1
	}

	if spec.WriteWord <= 0 {
		spec.WriteWord = 1
	}

	return memoryBase{
		name:      name,
		spec:      spec,
		accessors: make(map[string]bool),
		regions:   make(map[RegionKey]*Region),
	}
}

func (m *memoryBase) Name() string     { return m.name }
func (m *memoryBase) Stored() int      { return m.stored }
func (m *memoryBase) TotalReads() int  { return m.reads }
func (m *memoryBase) TotalWrites() int { return m.writes }

func (m *memoryBase) AccessEnergy() float64 {
	return float64(m.writes)/float64(m.spec.WriteWord)*m.spec.WriteEnergy +
		float64(m.reads)/float64(m.spec.ReadWord)*m.spec.ReadEnergy
}

func (m *memoryBase) AllowAccess(unit string) {
	m.accessors[unit] = true
}

func (m *memoryBase) CanAccess(unit string) bool {
	return m.accessors[unit]
}

func (m *memoryBase) Accessors() []string {
	names := make([]string, 0, len(m.accessors))
	for n := range m.accessors {
		names = append(names, n)
	}

	sort.Strings(names)

	return names
}

func (m *memoryBase) ReserveRegion(
	key RegionKey,
	shape tensor.Shape,
) *Region {
	r := NewRegion(shape)
	m.regions[key] = r

	return r
}

func (m *memoryBase) Region(key RegionKey) (*Region, bool) {
	r, ok := m.regions[key]
	return r, ok
}

func (m *memoryBase) Reset() {
	m.stored = 0
	m.reads = 0
	m.writes = 0
	m.regions = make(map[RegionKey]*Region)
}

func (m *memoryBase) Release(n int) {
	m.stored -= n
	if m.stored < 0 {
		m.stored = 0
	}
}

func (m *memoryBase) mustBePositive(n int) {
	if n <= 0 {
		panic("access size must be positive")
	}
}

// FIFOSpec describes a bounded first-in first-out buffer.
type FIFOSpec struct {
	MemorySpec
	Capacity int
}

// FIFO pops pixels as they are read.
type FIFO struct {
	memoryBase
	capacity int
}

// NewFIFO creates a FIFO.
func NewFIFO(name string, spec FIFOSpec) *FIFO {
	if spec.Capacity <= 0 {
		panic("FIFO capacity must be positive")
	}

	return &FIFO{
		memoryBase: newMemoryBase(name, spec.MemorySpec),
		capacity:   spec.Capacity,
	}
}

// Capacity returns the number of pixels the FIFO holds.
func (f *FIFO) Capacity() int {
	return f.capacity
}

func (f *FIFO) HaveSpaceToWrite(n int) bool {
	return f.stored+n <= f.capacity
}

func (f *FIFO) FreeSpace() int {
	return f.capacity - f.stored
}

func (f *FIFO) WriteData(n int) error {
	f.mustBePositive(n)

	if !f.HaveSpaceToWrite(n) {
		return errors.Wrapf(ErrCapacity, "%s: %d stored, %d written, %d max",
			f.name, f.stored, n, f.capacity)
	}

	f.stored += n
	f.writes += n

	return nil
}

func (f *FIFO) HaveDataRead(n int) bool {
	return f.stored >= n
}

func (f *FIFO) ReadData(n int) error {
	f.mustBePositive(n)

	if !f.HaveDataRead(n) {
		return errors.Wrapf(ErrUnderflow, "%s: %d stored, %d read",
			f.name, f.stored, n)
	}

	f.stored -= n
	f.reads += n

	return nil
}

// Release does nothing; a FIFO retires data when it is read.
func (f *FIFO) Release(int) {}

// LineBufferSpec describes a buffer of Rows image rows.
type LineBufferSpec struct {
	MemorySpec
	Rows      int
	RowLength int
}

// LineBuffer is a sliding window of image rows. Reads do not retire data;
// consumers release rows as they move past them.
type LineBuffer struct {
	memoryBase
	rows      int
	rowLength int
}

// NewLineBuffer creates a line buffer.
func NewLineBuffer(name string, spec LineBufferSpec) *LineBuffer {
	if spec.Rows <= 0 || spec.RowLength <= 0 {
		panic("line buffer size must be positive")
	}

	return &LineBuffer{
		memoryBase: newMemoryBase(name, spec.MemorySpec),
		rows:       spec.Rows,
		rowLength:  spec.RowLength,
	}
}

// Rows returns the number of rows the buffer holds.
func (l *LineBuffer) Rows() int {
	return l.rows
}

// RowLength returns the number of pixels in one row.
func (l *LineBuffer) RowLength() int {
	return l.rowLength
}

// Capacity returns rows * row length.
func (l *LineBuffer) Capacity() int {
	return l.rows * l.rowLength
}

func (l *LineBuffer) HaveSpaceToWrite(n int) bool {
	return l.stored+n <= l.Capacity()
}

func (l *LineBuffer) FreeSpace() int {
	return l.Capacity() - l.stored
}

func (l *LineBuffer) WriteData(n int) error {
	l.mustBePositive(n)

	if !l.HaveSpaceToWrite(n) {
		return errors.Wrapf(ErrCapacity, "%s: %d stored, %d written, %d max",
			l.name, l.stored, n, l.Capacity())
	}

	l.stored += n
	l.writes += n

	return nil
}

func (l *LineBuffer) HaveDataRead(int) bool {
	return l.stored > 0
}

func (l *LineBuffer) ReadData(n int) error {
	l.mustBePositive(n)

	if l.stored == 0 {
		return errors.Wrapf(ErrUnderflow, "%s: read %d from empty buffer",
			l.name, n)
	}

	l.reads += n

	return nil
}

// DoubleBuffer is a tile scratchpad that never fills up.
type DoubleBuffer struct {
	memoryBase
}

// NewDoubleBuffer creates a double buffer.
func NewDoubleBuffer(name string, spec MemorySpec) *DoubleBuffer {
	return &DoubleBuffer{memoryBase: newMemoryBase(name, spec)}
}

func (d *DoubleBuffer) HaveSpaceToWrite(int) bool {
	return true
}

func (d *DoubleBuffer) FreeSpace() int {
	return math.MaxInt
}

func (d *DoubleBuffer) WriteData(n int) error {
	d.mustBePositive(n)

	d.stored += n
	d.writes += n

	return nil
}

func (d *DoubleBuffer) HaveDataRead(int) bool {
	return d.stored > 0
}

func (d *DoubleBuffer) ReadData(n int) error {
	d.mustBePositive(n)

	if d.stored == 0 {
		return errors.Wrapf(ErrUnderflow, "%s: read %d from empty buffer",
			d.name, n)
	}

	d.reads += n

	return nil
}
