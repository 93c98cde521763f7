package core

import "fmt"

// Kind classifies a violation.
type Kind int

// Violation kinds.
const (
	UnexpectedCall Kind = iota + 1
	OrderingViolation
	ArgumentMismatch
	UnsatisfiedExpectation
	NegativeExpectationViolated
	ConfigurationError
	// AssertionFailure is a failure reported by the test body itself (T.Errorf, T.Fatalf).
	AssertionFailure
	// Panicked is a panic that escaped the test body.
	Panicked
)

func (k Kind) String() string {
	switch k {
	case UnexpectedCall:
		return "unexpected call"
	case OrderingViolation:
		return "ordering violation"
	case ArgumentMismatch:
		return "argument mismatch"
	case UnsatisfiedExpectation:
		return "unsatisfied expectation"
	case NegativeExpectationViolated:
		return "negative expectation violated"
	case ConfigurationError:
		return "configuration error"
	case AssertionFailure:
		return "assertion failure"
	case Panicked:
		return "panic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Violation is a discrepancy between expected and actual behavior, recorded for reporting.
type Violation struct {
	Kind     Kind   `json:"kind"`
	Function string `json:"function,omitempty"`
	Origin   Origin `json:"origin"`
	Message  string `json:"message"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s: %s", v.Origin, v.Kind, v.Message)
}

// Tally counts the activity of one mocked function during a test.
type Tally struct {
	Function   string `json:"function"`
	Expected   int    `json:"expected"`
	Actual     int    `json:"actual"`
	Matched    int    `json:"matched"`
	Violations int    `json:"violations"`
}

// Report is the end-of-test result of a registry: per-function tallies and every violation,
// in the order they were recorded.
type Report struct {
	Tallies    []Tally     `json:"tallies,omitempty"`
	Violations []Violation `json:"violations,omitempty"`
}

// Passed reports whether the test recorded no violations.
func (r Report) Passed() bool {
	return len(r.Violations) == 0
}

// Tally returns the tally for function, if it was seen.
func (r Report) Tally(function string) (Tally, bool) {
	for _, tally := range r.Tallies {
		if tally.Function == function {
			return tally, true
		}
	}

	return Tally{}, false
}
