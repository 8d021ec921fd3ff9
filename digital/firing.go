package digital

import (
	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/tensor"
)

// Phase is where a stage is within its current firing.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseReading
	PhaseProcessing
	PhaseWriting
	PhaseFinished
)

// Name returns the name of the phase.
func (p Phase) Name() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseReading:
		return "reading"
	case PhaseProcessing:
		return "processing"
	case PhaseWriting:
		return "writing"
	case PhaseFinished:
		return "finished"
	default:
		panic("invalid phase")
	}
}

func (p Phase) String() string {
	return p.Name()
}

// window is how a stage reads one producer. Output channels come in groups
// of groupOut, each reading groupIn consecutive input channels.
type window struct {
	kh, kw   int
	sh, sw   int
	padding  tensor.Padding
	groupIn  int
	groupOut int
	wholeMap bool
}

func windowsOf(s algo.Stage) []window {
	n := len(s.InputShapes())
	wins := make([]window, n)

	switch st := s.(type) {
	case *algo.ProcessStage:
		for i := range wins {
			wins[i] = window{
				kh:       st.Kernels()[i].H,
				kw:       st.Kernels()[i].W,
				sh:       st.Strides()[i].H,
				sw:       st.Strides()[i].W,
				padding:  st.Paddings()[i],
				groupIn:  st.Kernels()[i].C,
				groupOut: st.NumKernels(),
			}
		}
	case *algo.DNNProcessStage:
		if st.Op() == algo.FC {
			wins[0] = window{wholeMap: true}
			break
		}

		w := window{
			kh:       st.Kernel().H,
			kw:       st.Kernel().W,
			sh:       st.Stride(),
			sw:       st.Stride(),
			padding:  tensor.Same,
			groupIn:  st.InputShapes()[0].C,
			groupOut: st.OutputShape().C,
		}

		if st.Op() == algo.DWConv2D {
			w.groupIn, w.groupOut = 1, 1
		}

		wins[0] = w
	default:
		for i := range wins {
			wins[i] = window{wholeMap: true}
		}
	}

	return wins
}

// need returns the part of a producer that an output box depends on: the
// rows and columns under the window and the channels of its groups.
func (w window) need(out Box, in tensor.Shape) Box {
	full := Box{H: in.H, W: in.W, C: in.C}
	if w.wholeMap {
		return full
	}

	padT := tensor.PadBefore(in.H, w.kh, w.sh, w.padding)
	full.H0 = out.H0*w.sh - padT
	full.H = (out.H-1)*w.sh + w.kh

	padL := tensor.PadBefore(in.W, w.kw, w.sw, w.padding)
	full.W0 = out.W0*w.sw - padL
	full.W = (out.W-1)*w.sw + w.kw

	if w.groupIn > 0 && w.groupOut > 0 {
		g0 := out.C0 / w.groupOut
		g1 := (out.C0 + out.C - 1) / w.groupOut
		full.C0 = g0 * w.groupIn
		full.C = (g1 - g0 + 1) * w.groupIn
	}

	return full
}

// firingBox returns the output positions written by firing k. Firings walk
// channels fastest, then columns, then rows, and are clipped at the border.
func firingBox(k int, out, tile tensor.Shape) Box {
	nc := ceilDiv(out.C, tile.C)
	nw := ceilDiv(out.W, tile.W)

	c := k % nc
	w := (k / nc) % nw
	h := k / (nc * nw)

	b := Box{H0: h * tile.H, W0: w * tile.W, C0: c * tile.C}
	b.H = min(tile.H, out.H-b.H0)
	b.W = min(tile.W, out.W-b.W0)
	b.C = min(tile.C, out.C-b.C0)

	return b
}

func numFirings(out, tile tensor.Shape) int {
	return ceilDiv(out.H, tile.H) * ceilDiv(out.W, tile.W) *
		ceilDiv(out.C, tile.C)
}

// stageState is the progress of one stage on its unit.
type stageState struct {
	stage     algo.Stage
	unit      Unit
	producers []*stageState
	consumers []*stageState

	tp      Throughput
	windows []window
	region  *Region

	phase      Phase
	firing     int
	numFirings int

	readRemain   int
	writeRemain  int
	written      int
	cyclesRemain int
	needFill     bool

	finished    bool
	finishCycle uint64
}

func (st *stageState) name() string {
	return st.stage.Name()
}

func (st *stageState) currentBox() Box {
	return firingBox(st.firing, st.stage.OutputShape(), st.tp.OutTile)
}

func (st *stageState) allProducersFinished() bool {
	for _, p := range st.producers {
		if !p.finished {
			return false
		}
	}

	return true
}

// inputsReady reports whether every producer has written the part the
// current firing depends on. A producer stuck on a full FIFO counts as ready,
// since only this stage can drain it.
func (st *stageState) inputsReady() bool {
	box := st.currentBox()

	for i, p := range st.producers {
		if p.finished {
			continue
		}

		need := st.windows[i].need(box, st.stage.InputShapes()[i])
		if p.region.Ready(need) {
			continue
		}

		if !p.blockedOn(st.unit.InputBuffer()) {
			return false
		}
	}

	return true
}

// blockedOn reports whether st waits to write into a full FIFO buf.
func (st *stageState) blockedOn(buf Memory) bool {
	fifo, ok := buf.(*FIFO)
	if !ok || st.unit.OutputBuffer() != buf {
		return false
	}

	return st.phase == PhaseWriting && fifo.FreeSpace() == 0
}

// releaseShare returns how many pixels of producer p the current firing
// retires from a shared buffer. The shares sum to the producer's volume.
func (st *stageState) releaseShare(p *stageState) int {
	v := p.stage.OutputShape().Volume()
	k := st.firing

	return v*(k+1)/st.numFirings - v*k/st.numFirings
}
