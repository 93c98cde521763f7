// Package core provides the internal implementation of forktest's expectation engine: constraints,
// expectations, the per-test registry, and the per-test context handed to test bodies.
package core

import (
	"fmt"
	"sync"
)

// Registry is the per-test store of expectations and call tallies, keyed by function name.
// The zero value is not usable; create one with NewRegistry.
type Registry struct {
	mu         sync.Mutex
	functions  map[string]*functionState
	order      []string // function names in first-seen order, for stable reports
	violations []Violation
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{functions: make(map[string]*functionState)}
}

// Clear empties the registry: no expectations, no tallies, no violations.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clear()
}

// Pending returns the expectations for function that could still match a call:
// queued once-expectations followed by always-expectations.
func (r *Registry) Pending(function string) []*Expectation {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.functions[function]
	if !ok {
		return nil
	}

	pending := make([]*Expectation, 0, len(state.queue)+len(state.always))
	pending = append(pending, state.queue...)

	return append(pending, state.always...)
}

// RecordCall checks one actual call against the registered expectations.
// It returns whether the call was matched and, if so, the matched expectation's return value.
// Mismatches never abort: they are recorded as violations and the zero value is returned.
//
// Only the head of a function's once-queue is eligible. When the head does not match,
// always-expectations are tried next; when nothing matches, the head is discarded as
// unsatisfied so later calls are checked against the next expectation.
func (r *Registry) RecordCall(function string, args []any, site Origin) (bool, any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.state(function)
	state.tally.Actual++

	if state.arity < 0 {
		state.arity = len(args)
	}

	call := FormatCall(function, args)

	for _, negative := range state.negative {
		ok, _, err := negative.match(args)
		if err != nil {
			r.violate(Violation{Kind: ConfigurationError, Function: function, Origin: negative.Origin, Message: err.Error()})

			continue
		}

		if ok {
			r.violate(Violation{
				Kind:     NegativeExpectationViolated,
				Function: function,
				Origin:   negative.Origin,
				Message:  fmt.Sprintf("%s was called, but %s must never happen", call, negative),
			})

			return false, nil
		}
	}

	if len(state.queue) > 0 {
		return r.matchHead(state, call, args, site)
	}

	if expectation := r.matchAlways(state, args); expectation != nil {
		return true, expectation.Return
	}

	if passed := firstMatch(state.passed, args); passed != nil {
		r.violate(Violation{
			Kind:     OrderingViolation,
			Function: function,
			Origin:   site,
			Message:  fmt.Sprintf("%s matched %s, but the queue had already moved past it", call, passed),
		})

		return false, nil
	}

	r.violate(Violation{
		Kind:     UnexpectedCall,
		Function: function,
		Origin:   site,
		Message:  call + " was not expected",
	})

	return false, nil
}

// Register adds an expectation for its function.
// It fails with ErrConfiguration if the expectation has no function name, or if the function
// has already been called with fewer args than the expectation has constraints.
func (r *Registry) Register(expectation *Expectation) error {
	if expectation == nil || expectation.Function == "" {
		return fmt.Errorf("%w: expectation has no function name", ErrConfiguration)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state := r.state(expectation.Function)

	if state.arity >= 0 && len(expectation.Constraints) > state.arity {
		return fmt.Errorf("%w: %s has %d constraints, but %s was called with %d args",
			ErrConfiguration, expectation, len(expectation.Constraints), expectation.Function, state.arity)
	}

	switch {
	case expectation.Negative:
		state.negative = append(state.negative, expectation)
	case expectation.Multiplicity == Always:
		state.always = append(state.always, expectation)
	default:
		state.queue = append(state.queue, expectation)
		state.tally.Expected++
	}

	return nil
}

// Tally closes out the test: every once-expectation still queued is recorded as unsatisfied,
// then the tallies and violations are returned and the registry is cleared.
func (r *Registry) Tally() Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range r.order {
		state := r.functions[name]
		for _, expectation := range state.queue {
			r.violate(Violation{
				Kind:     UnsatisfiedExpectation,
				Function: name,
				Origin:   expectation.Origin,
				Message:  expectation.String() + " was never satisfied",
			})
		}

		state.queue = nil
	}

	report := Report{Tallies: r.tallies(), Violations: r.violations}

	r.clear()

	return report
}

// Tallies returns a snapshot of the per-function tallies, in first-seen order.
func (r *Registry) Tallies() []Tally {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.tallies()
}

// Violate records a violation that was detected outside the matcher, such as a failed assertion.
func (r *Registry) Violate(violation Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.violate(violation)
}

// Violations returns a snapshot of the violations recorded so far.
func (r *Registry) Violations() []Violation {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Violation(nil), r.violations...)
}

type functionState struct {
	queue    []*Expectation // once-expectations, in registration order
	always   []*Expectation
	negative []*Expectation
	passed   []*Expectation // once-expectations discarded as unsatisfied
	arity    int            // -1 until the first call
	tally    Tally
}

func (r *Registry) clear() {
	r.functions = make(map[string]*functionState)
	r.order = nil
	r.violations = nil
}

// matchAlways returns the first always-expectation matching args, counting the hit.
func (r *Registry) matchAlways(state *functionState, args []any) *Expectation {
	for _, expectation := range state.always {
		ok, _, err := expectation.match(args)
		if err != nil {
			r.violate(Violation{
				Kind:     ConfigurationError,
				Function: expectation.Function,
				Origin:   expectation.Origin,
				Message:  err.Error(),
			})

			continue
		}

		if ok {
			state.tally.Matched++

			return expectation
		}
	}

	return nil
}

func (r *Registry) matchHead(state *functionState, call string, args []any, site Origin) (bool, any) {
	head := state.queue[0]

	ok, reason, err := head.match(args)
	if err != nil {
		state.queue = state.queue[1:]
		r.violate(Violation{Kind: ConfigurationError, Function: head.Function, Origin: head.Origin, Message: err.Error()})

		return false, nil
	}

	if ok {
		state.queue = state.queue[1:]
		state.tally.Matched++

		return true, head.Return
	}

	if expectation := r.matchAlways(state, args); expectation != nil {
		return true, expectation.Return
	}

	kind := ArgumentMismatch
	if firstMatch(state.queue[1:], args) != nil || firstMatch(state.passed, args) != nil {
		kind = OrderingViolation
	}

	r.violate(Violation{
		Kind:     kind,
		Function: head.Function,
		Origin:   site,
		Message:  fmt.Sprintf("%s did not match expected next %s: %s", call, head, reason),
	})
	r.violate(Violation{
		Kind:     UnsatisfiedExpectation,
		Function: head.Function,
		Origin:   head.Origin,
		Message:  head.String() + " was never satisfied",
	})

	state.queue = state.queue[1:]
	state.passed = append(state.passed, head)

	return false, nil
}

func (r *Registry) state(function string) *functionState {
	state, ok := r.functions[function]
	if !ok {
		state = &functionState{arity: -1, tally: Tally{Function: function}}
		r.functions[function] = state
		r.order = append(r.order, function)
	}

	return state
}

func (r *Registry) tallies() []Tally {
	tallies := make([]Tally, 0, len(r.order))
	for _, name := range r.order {
		tallies = append(tallies, r.functions[name].tally)
	}

	return tallies
}

func (r *Registry) violate(violation Violation) {
	if state, ok := r.functions[violation.Function]; ok {
		state.tally.Violations++
	}

	r.violations = append(r.violations, violation)
}

// firstMatch returns the first expectation matching args, ignoring configuration errors.
func firstMatch(expectations []*Expectation, args []any) *Expectation {
	for _, expectation := range expectations {
		if ok, _, err := expectation.match(args); ok && err == nil {
			return expectation
		}
	}

	return nil
}
