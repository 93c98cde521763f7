package core

import (
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
)

// T is the per-test context handed to a test body. It owns the test's mock registry.
type T struct {
	name     string
	registry *Registry

	mu   sync.Mutex
	logs []string
}

// NewT creates a test context with an empty registry.
func NewT(name string) *T {
	return &T{name: name, registry: NewRegistry()}
}

// AlwaysExpect registers an expectation for function that matches any number of calls.
func (t *T) AlwaysExpect(function string, constraints ...any) {
	t.register(&Expectation{
		Function:     function,
		Constraints:  toConstraints(constraints),
		Multiplicity: Always,
		Origin:       CallerOrigin(1),
	})
}

// AlwaysRespond registers an expectation for function that matches any number of calls
// satisfying constraints, each returning value.
func (t *T) AlwaysRespond(function string, value any, constraints ...any) {
	t.register(&Expectation{
		Function:     function,
		Constraints:  toConstraints(constraints),
		Return:       value,
		Multiplicity: Always,
		Origin:       CallerOrigin(1),
	})
}

// AlwaysReturn registers an expectation for function that matches every call, returning value.
func (t *T) AlwaysReturn(function string, value any) {
	t.register(&Expectation{Function: function, Return: value, Multiplicity: Always, Origin: CallerOrigin(1)})
}

// Call records a call to a mocked function made from the caller's location and
// returns the matched expectation's return value, or nil.
func (t *T) Call(function string, args ...any) any {
	return t.CallAt(CallerOrigin(1), function, args...)
}

// CallAt records a call to a mocked function made from site.
// Generated mocks use it to report the location of the code under test.
func (t *T) CallAt(site Origin, function string, args ...any) any {
	_, value := t.registry.RecordCall(function, args, site)

	return value
}

// Errorf records an assertion failure and lets the test continue.
func (t *T) Errorf(format string, args ...any) {
	t.registry.Violate(Violation{
		Kind:    AssertionFailure,
		Origin:  CallerOrigin(1),
		Message: fmt.Sprintf(format, args...),
	})
}

// Expect registers an expectation for the next call to function, in order.
// Each constraint is either a Constraint (gomega matchers qualify) or a value to compare for equality.
func (t *T) Expect(function string, constraints ...any) {
	t.register(&Expectation{Function: function, Constraints: toConstraints(constraints), Origin: CallerOrigin(1)})
}

// ExpectNever registers that function must not be called at all.
func (t *T) ExpectNever(function string) {
	t.register(&Expectation{Function: function, Negative: true, Origin: CallerOrigin(1)})
}

// ExpectNot registers that function must not be called with args satisfying constraints.
func (t *T) ExpectNot(function string, constraints ...any) {
	t.register(&Expectation{
		Function:    function,
		Constraints: toConstraints(constraints),
		Negative:    true,
		Origin:      CallerOrigin(1),
	})
}

// Failed reports whether anything has gone wrong in the test so far.
func (t *T) Failed() bool {
	return len(t.registry.Violations()) > 0
}

// Fatalf records an assertion failure and stops the test body.
func (t *T) Fatalf(format string, args ...any) {
	t.registry.Violate(Violation{
		Kind:    AssertionFailure,
		Origin:  CallerOrigin(1),
		Message: fmt.Sprintf(format, args...),
	})

	panic(stopTest)
}

// Logf adds a line to the test's output.
func (t *T) Logf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logs = append(t.logs, fmt.Sprintf(format, args...))
}

// Logs returns the lines logged so far, joined by newlines.
func (t *T) Logs() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return strings.Join(t.logs, "\n")
}

// Name returns the test's name.
func (t *T) Name() string {
	return t.name
}

// Registry returns the test's mock registry.
func (t *T) Registry() *Registry {
	return t.registry
}

// Tally closes out the test's expectations. See Registry.Tally.
func (t *T) Tally() Report {
	return t.registry.Tally()
}

// WillRespond registers the next expected call to function, constrained by constraints,
// returning value.
func (t *T) WillRespond(function string, value any, constraints ...any) {
	t.register(&Expectation{
		Function:    function,
		Constraints: toConstraints(constraints),
		Return:      value,
		Origin:      CallerOrigin(1),
	})
}

// WillReturn registers the next expected call to function with any args, returning value.
func (t *T) WillReturn(function string, value any) {
	t.register(&Expectation{Function: function, Return: value, Origin: CallerOrigin(1)})
}

// RunBody runs body against t, converting a panic into a Panicked violation.
// A stop requested by T.Fatalf is not a panic.
func RunBody(t *T, body func(*T)) {
	if body == nil {
		return
	}

	defer func() {
		recovered := recover()
		if recovered == nil || recovered == stopTest {
			return
		}

		t.registry.Violate(Violation{
			Kind:    Panicked,
			Message: fmt.Sprintf("panic: %v\n%s", recovered, debug.Stack()),
		})
	}()

	body(t)
}

// unexported variables.
var (
	//nolint:gochecknoglobals // sentinel compared by identity when recovering
	stopTest = &fatalSentinel{}
)

type fatalSentinel struct{}

func (t *T) register(expectation *Expectation) {
	err := t.registry.Register(expectation)
	if err != nil {
		t.registry.Violate(Violation{
			Kind:     ConfigurationError,
			Function: expectation.Function,
			Origin:   expectation.Origin,
			Message:  err.Error(),
		})
	}
}

// toConstraints converts registration args: constraints are used as-is, anything else
// must be equal to the actual argument.
func toConstraints(values []any) []Constraint {
	if len(values) == 0 {
		return nil
	}

	constraints := make([]Constraint, len(values))

	for index, value := range values {
		if constraint, ok := value.(Constraint); ok {
			constraints[index] = constraint

			continue
		}

		constraints[index] = Equal(value)
	}

	return constraints
}
