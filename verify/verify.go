// Package verify checks a sensor description before it is simulated.
//
// RunLint looks at the hardware, the algorithm graph and the mapping table
// together and reports two kinds of issues:
//
//   - STRUCT issues make a simulation meaningless or impossible: a stage
//     without a mapping, a mapping to a block that does not exist, analog
//     arrays whose signal domains do not line up, a digital stage that reads
//     from a buffer its producer never writes.
//   - TIMING issues let the simulation start but can stall it: a FIFO
//     smaller than one firing of its consumer, a line buffer with fewer rows
//     than the consumer's kernel, two stages on one unit that feed each other
//     through a bounded buffer.
//
// # Usage Example
//
//	issues := verify.RunLint(hw, graph, mapping)
//	report := verify.GenerateReport(hw, graph, mapping)
//	report.WriteReport(os.Stdout)
package verify

// IssueType categorizes lint issues
type IssueType string

const (
	IssueStruct IssueType = "STRUCT" // Mapping or structure error
	IssueTiming IssueType = "TIMING" // Buffer sizing that can stall the scheduler
)

// Issue represents a single lint issue
type Issue struct {
	Type    IssueType              // STRUCT or TIMING
	Stage   string                 // Algorithm stage, empty if not applicable
	Block   string                 // Hardware block, empty if not applicable
	Message string                 // Human-readable description
	Details map[string]interface{} // Additional structured data
}

// HasStruct reports whether any issue is structural.
func HasStruct(issues []Issue) bool {
	for _, i := range issues {
		if i.Type == IssueStruct {
			return true
		}
	}

	return false
}
