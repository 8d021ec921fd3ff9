package verify

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/sarchlab/camsim/algo"
	"github.com/sarchlab/camsim/config"
)

// VerificationReport represents a complete verification report
type VerificationReport struct {
	Hardware     string
	StageCount   int
	MappedBlocks map[string]string
	LintIssues   []Issue
	StructIssues []Issue
	TimingIssues []Issue
}

// GenerateReport runs lint and sorts the issues by type.
func GenerateReport(
	hw *config.Hardware,
	g *algo.Graph,
	mapping map[string]string,
) *VerificationReport {
	report := &VerificationReport{
		Hardware:     hw.Name,
		StageCount:   len(g.Stages()),
		MappedBlocks: mapping,
	}

	report.LintIssues = RunLint(hw, g, mapping)

	// Categorize issues
	for _, issue := range report.LintIssues {
		if issue.Type == IssueStruct {
			report.StructIssues = append(report.StructIssues, issue)
		} else {
			report.TimingIssues = append(report.TimingIssues, issue)
		}
	}

	return report
}

// OK reports whether the description can be simulated.
func (r *VerificationReport) OK() bool {
	return len(r.StructIssues) == 0
}

// WriteReport writes a formatted report to a writer
func (r *VerificationReport) WriteReport(w io.Writer) {
	separator := strings.Repeat("=", 60)
	dash := strings.Repeat("-", 60)

	fmt.Fprintln(w, separator)
	fmt.Fprintf(w, "SENSOR VERIFICATION REPORT: %s\n", r.Hardware)
	fmt.Fprintln(w, separator)

	fmt.Fprintf(w, "\n%d stages, %d mapped\n", r.StageCount, len(r.MappedBlocks))

	if len(r.LintIssues) == 0 {
		fmt.Fprintln(w, "✓ No lint issues found!")
	} else {
		fmt.Fprintf(w, "⚠ Found %d lint issues:\n", len(r.LintIssues))
	}

	if len(r.StructIssues) > 0 {
		fmt.Fprintf(w, "\nSTRUCT ISSUES (%d):\n", len(r.StructIssues))
		fmt.Fprintln(w, dash)

		for _, issue := range r.StructIssues {
			fmt.Fprintf(w, "  [%s %s] %s\n",
				orDash(issue.Stage), orDash(issue.Block), issue.Message)
		}
	}

	if len(r.TimingIssues) > 0 {
		fmt.Fprintf(w, "\nTIMING ISSUES (%d):\n", len(r.TimingIssues))
		fmt.Fprintln(w, dash)

		for i, issue := range r.TimingIssues {
			fmt.Fprintf(w, "  Issue %d: [%s %s]\n",
				i+1, orDash(issue.Stage), orDash(issue.Block))
			fmt.Fprintf(w, "    Message: %s\n", issue.Message)

			if issue.Details != nil {
				if rows, ok := issue.Details["required_rows"]; ok {
					fmt.Fprintf(w, "    Required rows: %v\n", rows)
				}
				if read, ok := issue.Details["required_read"]; ok {
					fmt.Fprintf(w, "    Required read: %v pixels\n", read)
				}
			}
		}
	}

	fmt.Fprintln(w, "\n"+separator)
	fmt.Fprintln(w, "RECOMMENDATION")
	fmt.Fprintln(w, separator)

	switch {
	case !r.OK():
		fmt.Fprintln(w, "✗ FIX STRUCT ISSUES BEFORE SIMULATING")
	case len(r.TimingIssues) > 0:
		fmt.Fprintln(w, "⚠ BUFFER SIZING MAY STALL THE SCHEDULER")
		fmt.Fprintln(w, "Grow the flagged buffers or move a stage to another unit.")
	default:
		fmt.Fprintln(w, "✓ SENSOR PASSED ALL CHECKS")
	}

	fmt.Fprintln(w)
}

// SaveReportToFile saves the report to a file
func (r *VerificationReport) SaveReportToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrap(err, "failed to create report file")
	}
	defer file.Close()

	r.WriteReport(file)

	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}

	return s
}
