package digital

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/jedib0t/go-pretty/v6/table"
)

const (
	LevelTrace slog.Level = slog.LevelInfo + 1
)

func Trace(msg string, args ...any) {
	slog.Log(context.Background(), LevelTrace, msg, args...)
}

// PrintState writes one row per stage with its phase, firing progress and
// the unit it holds.
func PrintState(w io.Writer, s *Scheduler) {
	t := table.NewWriter()
	t.SetTitle(fmt.Sprintf("Scheduler %s @ cycle %d", s.Name(), s.cycle))
	t.AppendHeader(table.Row{
		"Stage", "Unit", "Phase", "Firing", "Read", "Write", "Cycles",
	})

	for _, st := range s.stages {
		owner := ""
		if s.board.ReservedBy(st.name(), st.unit.Name()) {
			owner = "*"
		}

		t.AppendRow(table.Row{
			st.name(),
			st.unit.Name() + owner,
			st.phase.Name(),
			fmt.Sprintf("%d/%d", st.firing, st.numFirings),
			st.readRemain,
			st.writeRemain,
			st.cyclesRemain,
		})
	}

	fmt.Fprintln(w, t.Render())
}
