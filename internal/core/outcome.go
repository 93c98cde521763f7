package core

import (
	"fmt"
	"time"
)

// Outcome is the classification of one test run.
type Outcome int

// Outcomes. The integer values travel between processes and must not be reordered.
const (
	Pass Outcome = iota
	Fail
	Crashed
	Timeout
	// Error is an infrastructure failure, such as a result channel that could not be created.
	Error
)

func (o Outcome) String() string {
	switch o {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Crashed:
		return "crashed"
	case Timeout:
		return "timeout"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	return o >= Pass && o <= Error
}

// Record is the reported result of one test.
type Record struct {
	Suite      string        `json:"suite"`
	Test       string        `json:"test"`
	RunID      string        `json:"run_id"`
	Outcome    Outcome       `json:"outcome"`
	Violations []Violation   `json:"violations,omitempty"`
	Tallies    []Tally       `json:"tallies,omitempty"`
	Message    string        `json:"message,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Reporter receives test results as they complete, then a summary.
// Calls are never concurrent.
type Reporter interface {
	Report(record Record)
	Finish(summary Summary)
}

// Summary counts outcomes across a run.
type Summary struct {
	Suite    string        `json:"suite"`
	RunID    string        `json:"run_id"`
	Total    int           `json:"total"`
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Crashed  int           `json:"crashed"`
	TimedOut int           `json:"timed_out"`
	Errored  int           `json:"errored"`
	Duration time.Duration `json:"duration"`
}

// Add counts one outcome.
func (s *Summary) Add(outcome Outcome) {
	s.Total++

	switch outcome {
	case Pass:
		s.Passed++
	case Fail:
		s.Failed++
	case Crashed:
		s.Crashed++
	case Timeout:
		s.TimedOut++
	case Error:
		s.Errored++
	}
}

// OK reports whether every counted test passed.
func (s Summary) OK() bool {
	return s.Passed == s.Total
}

func (s Summary) String() string {
	return fmt.Sprintf("%d tests: %d passed, %d failed, %d crashed, %d timed out, %d errored (%s)",
		s.Total, s.Passed, s.Failed, s.Crashed, s.TimedOut, s.Errored, s.Duration.Round(time.Millisecond))
}
