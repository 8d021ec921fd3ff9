// Package report renders simulation results as tables.
package report

import (
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/sarchlab/camsim/api"
	"github.com/sarchlab/camsim/digital"
)

// EnergyTable writes the energy of every block, largest first, with its
// share of the total.
func EnergyTable(w io.Writer, r api.EnergyReport) {
	names := r.BlockNames()
	sort.SliceStable(names, func(i, j int) bool {
		return r.Blocks[names[i]] > r.Blocks[names[j]]
	})

	t := table.NewWriter()
	t.SetTitle("Energy (pJ)")
	t.AppendHeader(table.Row{"Block", "Energy", "Share"})

	for _, name := range names {
		t.AppendRow(table.Row{
			name,
			fmt.Sprintf("%.3f", r.Blocks[name]),
			share(r.Blocks[name], r.Total),
		})
	}

	t.AppendFooter(table.Row{"Total", fmt.Sprintf("%.3f", r.Total), ""})

	fmt.Fprintln(w, t.Render())
}

func share(v, total float64) string {
	if total == 0 {
		return "-"
	}

	return fmt.Sprintf("%.1f%%", 100*v/total)
}

// CycleTable writes the finish cycle of every digital stage in finishing
// order. Unfinished stages come last.
func CycleTable(w io.Writer, r digital.Result) {
	names := make([]string, 0, len(r.FinishCycle))
	for name := range r.FinishCycle {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool {
		ci, cj := r.FinishCycle[names[i]], r.FinishCycle[names[j]]
		if ci != cj {
			return ci < cj
		}

		return names[i] < names[j]
	})

	t := table.NewWriter()
	t.SetTitle("Digital stages")
	t.AppendHeader(table.Row{"Stage", "Finish cycle"})

	for _, name := range names {
		t.AppendRow(table.Row{name, r.FinishCycle[name]})
	}

	for _, name := range r.Unfinished {
		t.AppendRow(table.Row{name, "unfinished"})
	}

	t.AppendFooter(table.Row{"Total", r.TotalCycles})

	fmt.Fprintln(w, t.Render())
}
