package verify

import (
	"fmt"
	"sort"

	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/analog"
	"github.com/sarchlab/camsim/config"
	"github.com/sarchlab/camsim/digital"
)

// RunLint performs static checks on a hardware description, an algorithm
// graph and the mapping between them. The graph must be built.
// Returns a list of issues found, or empty list if no issues.
func RunLint(
	hw *config.Hardware,
	g *algo.Graph,
	mapping map[string]string,
) []Issue {
	var issues []Issue

	issues = append(issues, checkMapping(hw, g, mapping)...)

	// STRUCT: analog domains
	if err := analog.CheckConnectConsistency(mappedArrays(hw, mapping)); err != nil {
		issues = append(issues, Issue{
			Type:    IssueStruct,
			Message: err.Error(),
		})
	}

	for _, s := range g.TopoOrder() {
		u, ok := hw.ComputeUnit(mapping[s.Name()])
		if !ok {
			continue
		}

		issues = append(issues, checkDigitalStage(hw, mapping, s, u)...)
	}

	// TIMING: buffer sizing and unit sharing
	issues = append(issues, checkTimingConstraints(hw, g, mapping)...)

	return issues
}

func checkMapping(
	hw *config.Hardware,
	g *algo.Graph,
	mapping map[string]string,
) []Issue {
	var issues []Issue

	for _, s := range g.Stages() {
		target, ok := mapping[s.Name()]
		if !ok {
			issues = append(issues, Issue{
				Type:    IssueStruct,
				Stage:   s.Name(),
				Message: fmt.Sprintf("Stage %s is not mapped", s.Name()),
			})

			continue
		}

		kind := hw.Kind(target)
		if kind == config.KindAnalog || kind == config.KindCompute {
			continue
		}

		issues = append(issues, Issue{
			Type:  IssueStruct,
			Stage: s.Name(),
			Block: target,
			Message: fmt.Sprintf(
				"Stage %s is mapped to %s, which is not an analog array "+
					"or compute unit", s.Name(), target),
			Details: map[string]interface{}{"kind": kind.Name()},
		})
	}

	names := make([]string, 0, len(mapping))
	for name := range mapping {
		names = append(names, name)
	}

	sort.Strings(names)

	for _, name := range names {
		if _, ok := g.Lookup(name); !ok {
			issues = append(issues, Issue{
				Type:    IssueStruct,
				Stage:   name,
				Block:   mapping[name],
				Message: fmt.Sprintf("Mapping names unknown stage %s", name),
			})
		}
	}

	return issues
}

func mappedArrays(hw *config.Hardware, mapping map[string]string) []*analog.Array {
	used := make(map[string]bool)
	for _, target := range mapping {
		used[target] = true
	}

	var arrays []*analog.Array
	for _, a := range hw.Analog {
		if used[a.Name()] {
			arrays = append(arrays, a)
		}
	}

	return arrays
}

func checkDigitalStage(
	hw *config.Hardware,
	mapping map[string]string,
	s algo.Stage,
	u digital.Unit,
) []Issue {
	var issues []Issue

	if _, err := u.Throughput(s); err != nil {
		issues = append(issues, Issue{
			Type:    IssueStruct,
			Stage:   s.Name(),
			Block:   u.Name(),
			Message: err.Error(),
		})
	}

	for _, p := range s.Producers() {
		target := mapping[p.Name()]

		switch hw.Kind(target) {
		case config.KindAnalog:
			adc, ok := hw.FirstADC()
			if !ok {
				issues = append(issues, Issue{
					Type:  IssueStruct,
					Stage: s.Name(),
					Block: target,
					Message: fmt.Sprintf(
						"Stage %s reads analog stage %s but there is no ADC",
						s.Name(), p.Name()),
				})

				continue
			}

			issues = append(issues, checkBufferSharing(s, u, p, adc)...)
		case config.KindCompute:
			pu, _ := hw.ComputeUnit(target)
			issues = append(issues, checkBufferSharing(s, u, p, pu)...)
		}
	}

	return issues
}

// checkBufferSharing validates that a digital producer writes into the
// buffer its consumer reads from.
func checkBufferSharing(
	s algo.Stage,
	u digital.Unit,
	p algo.Stage,
	pu digital.Unit,
) []Issue {
	in, out := u.InputBuffer(), pu.OutputBuffer()

	switch {
	case in == nil:
		return []Issue{{
			Type:  IssueStruct,
			Stage: s.Name(),
			Block: u.Name(),
			Message: fmt.Sprintf("Unit %s runs %s but has no input buffer",
				u.Name(), s.Name()),
		}}
	case out == nil:
		return []Issue{{
			Type:  IssueStruct,
			Stage: p.Name(),
			Block: pu.Name(),
			Message: fmt.Sprintf("Unit %s runs %s but has no output buffer",
				pu.Name(), p.Name()),
		}}
	case in != out:
		return []Issue{{
			Type:  IssueStruct,
			Stage: s.Name(),
			Block: in.Name(),
			Message: fmt.Sprintf(
				"Stage %s reads %s but producer %s writes %s",
				s.Name(), in.Name(), p.Name(), out.Name()),
			Details: map[string]interface{}{
				"consumer_buffer": in.Name(),
				"producer_buffer": out.Name(),
			},
		}}
	case !in.CanAccess(u.Name()) || !in.CanAccess(pu.Name()):
		return []Issue{{
			Type:    IssueStruct,
			Block:   in.Name(),
			Message: fmt.Sprintf("Buffer %s does not admit both units", in.Name()),
			Details: map[string]interface{}{"accessors": in.Accessors()},
		}}
	}

	return nil
}

// checkTimingConstraints flags buffers that cannot hold what one firing of
// their consumer needs, and bounded buffers between stages that share a
// unit. Both throttle or stall the scheduler.
func checkTimingConstraints(
	hw *config.Hardware,
	g *algo.Graph,
	mapping map[string]string,
) []Issue {
	var issues []Issue

	for _, s := range g.TopoOrder() {
		u, ok := hw.ComputeUnit(mapping[s.Name()])
		if !ok || u.InputBuffer() == nil {
			continue
		}

		tp, err := u.Throughput(s)
		if err != nil {
			continue
		}

		switch buf := u.InputBuffer().(type) {
		case *digital.FIFO:
			if tp.TotalRead() > buf.Capacity() {
				issues = append(issues, Issue{
					Type:  IssueTiming,
					Stage: s.Name(),
					Block: buf.Name(),
					Message: fmt.Sprintf(
						"FIFO %s holds %d pixels, one firing of %s reads %d",
						buf.Name(), buf.Capacity(), s.Name(), tp.TotalRead()),
					Details: map[string]interface{}{
						"capacity":      buf.Capacity(),
						"required_read": tp.TotalRead(),
					},
				})
			}
		case *digital.LineBuffer:
			rows := 0
			for _, t := range tp.InTiles {
				rows = max(rows, t.H)
			}

			if rows > buf.Rows() {
				issues = append(issues, Issue{
					Type:  IssueTiming,
					Stage: s.Name(),
					Block: buf.Name(),
					Message: fmt.Sprintf(
						"Line buffer %s holds %d rows, %s needs %d",
						buf.Name(), buf.Rows(), s.Name(), rows),
					Details: map[string]interface{}{
						"rows":          buf.Rows(),
						"required_rows": rows,
					},
				})
			}
		}

		for _, p := range s.Producers() {
			if mapping[p.Name()] != u.Name() {
				continue
			}

			if _, unbounded := u.OutputBuffer().(*digital.DoubleBuffer); unbounded {
				continue
			}

			issues = append(issues, Issue{
				Type:  IssueTiming,
				Stage: s.Name(),
				Block: u.Name(),
				Message: fmt.Sprintf(
					"Stages %s and %s share unit %s through a bounded buffer",
					p.Name(), s.Name(), u.Name()),
			})
		}
	}

	return issues
}
