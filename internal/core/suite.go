package core

import (
	"errors"
	"fmt"
	"time"
)

// Suite is a named, ordered collection of tests sharing setup and teardown.
type Suite struct {
	Name     string
	Setup    func(*T) // runs before each test body, in the test's process
	Teardown func(*T) // runs after each test body, even when the body failed
	Tests    []Test
}

// Test is one test case.
type Test struct {
	Name string
	Body func(*T)
	// Timeout overrides the run's per-test timeout when non-zero.
	Timeout time.Duration
}

// Exported variables.
var (
	ErrDuplicateTest = errors.New("duplicate test name")
	ErrInvalidSuite  = errors.New("invalid suite")
)

// Lookup finds a test by name.
func (s Suite) Lookup(name string) (Test, int, bool) {
	for index, test := range s.Tests {
		if test.Name == name {
			return test, index, true
		}
	}

	return Test{}, -1, false
}

// Validate checks that every test has a unique name and a body.
func (s Suite) Validate() error {
	seen := make(map[string]bool, len(s.Tests))

	for index, test := range s.Tests {
		if test.Name == "" {
			return fmt.Errorf("%w: test %d has no name", ErrInvalidSuite, index)
		}

		if test.Body == nil {
			return fmt.Errorf("%w: test %q has no body", ErrInvalidSuite, test.Name)
		}

		if seen[test.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateTest, test.Name)
		}

		seen[test.Name] = true
	}

	return nil
}

// Execute runs one test in the current process: setup, body and teardown against a fresh T,
// then tallies. Setup failures skip the body; teardown always runs.
func Execute(suite Suite, test Test) (Outcome, Report, string) {
	t := NewT(test.Name)

	RunBody(t, suite.Setup)

	if !t.Failed() {
		RunBody(t, test.Body)
	}

	RunBody(t, suite.Teardown)

	report := t.Tally()
	if report.Passed() {
		return Pass, report, t.Logs()
	}

	return Fail, report, t.Logs()
}
