package core

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/akedrou/textdiff"
	"github.com/onsi/gomega"
	"github.com/onsi/gomega/types"
)

// Constraint is a predicate over a single argument value.
// Compatible with gomega.GomegaMatcher via duck typing - any type
// implementing Match and FailureMessage will work.
type Constraint interface {
	Match(actual any) (success bool, err error)
	FailureMessage(actual any) string
}

// Describer is implemented by constraints that can say what they expect, for diagnostics.
type Describer interface {
	Describe() string
}

// Any returns a constraint that matches any value.
func Any() Constraint {
	return anyConstraint{}
}

// Compare returns a constraint that compares a numeric argument against value using op.
// Supported ops are ==, !=, <, <=, >, >= and ~ (approximately equal, with an optional threshold).
func Compare(op string, value any, threshold ...any) Constraint {
	args := append([]any{value}, threshold...)

	return &gomegaConstraint{
		matcher:     gomega.BeNumerically(op, args...),
		description: fmt.Sprintf("%s %#v", op, value),
	}
}

// Describe returns a short human description of what c expects.
func Describe(c Constraint) string {
	if c == nil {
		return "_"
	}

	if d, ok := c.(Describer); ok {
		return d.Describe()
	}

	return fmt.Sprintf("matches %T", c)
}

// Equal returns a constraint that matches values deeply equal to expected.
// A typed nil and an untyped nil are considered equal; a nil slice or map is not equal to an
// empty one.
func Equal(expected any) Constraint {
	return equalConstraint{expected: expected}
}

// MatchPattern returns a constraint that matches strings (or Stringers, errors, byte slices)
// against the regular expression pattern.
func MatchPattern(pattern string) Constraint {
	return &gomegaConstraint{
		matcher:     gomega.MatchRegexp(pattern),
		description: "=~ /" + pattern + "/",
	}
}

// MatchValue checks if actual satisfies the constraint.
// Returns (success, errorMessage). If success is true, errorMessage is empty.
// A nil constraint matches anything.
func MatchValue(actual any, constraint Constraint) (bool, string) {
	if constraint == nil {
		return true, ""
	}

	success, err := constraint.Match(actual)
	if err != nil {
		return false, err.Error()
	}

	if !success {
		return false, constraint.FailureMessage(actual)
	}

	return true, ""
}

// Satisfy returns a constraint that uses a predicate function to check for a match.
// The predicate should return nil if the value matches, or an error describing
// the mismatch if it does not.
func Satisfy[T any](predicate func(T) error) Constraint {
	return &satisfyConstraint[T]{predicate: predicate}
}

// unexported variables.
var (
	errTypeMismatch = errors.New("type mismatch")
)

type anyConstraint struct{}

func (anyConstraint) Describe() string {
	return "_"
}

// FailureMessage returns an empty string since Any always matches.
func (anyConstraint) FailureMessage(any) string {
	return ""
}

// Match always returns true - matches any value.
func (anyConstraint) Match(any) (bool, error) {
	return true, nil
}

type equalConstraint struct {
	expected any
}

func (c equalConstraint) Describe() string {
	return fmt.Sprintf("== %#v", c.expected)
}

func (c equalConstraint) FailureMessage(actual any) string {
	expectedStr, expectedIsStr := c.expected.(string)
	actualStr, actualIsStr := actual.(string)

	if expectedIsStr && actualIsStr && (strings.Contains(expectedStr, "\n") || strings.Contains(actualStr, "\n")) {
		return "strings differ:\n" + textdiff.Unified("expected", "actual", expectedStr, actualStr)
	}

	return fmt.Sprintf("expected %#v, got %#v", c.expected, actual)
}

func (c equalConstraint) Match(actual any) (bool, error) {
	return deepEqual(actual, c.expected), nil
}

// gomegaConstraint adapts a gomega matcher, keeping a description for diagnostics.
type gomegaConstraint struct {
	matcher     types.GomegaMatcher
	description string
}

func (c *gomegaConstraint) Describe() string {
	return c.description
}

func (c *gomegaConstraint) FailureMessage(actual any) string {
	return c.matcher.FailureMessage(actual)
}

func (c *gomegaConstraint) Match(actual any) (bool, error) {
	success, err := c.matcher.Match(actual)
	if err != nil {
		return false, fmt.Errorf("%s: %w", c.description, err)
	}

	return success, nil
}

type satisfyConstraint[T any] struct {
	predicate func(T) error
	lastErr   error
}

func (m *satisfyConstraint[T]) Describe() string {
	return fmt.Sprintf("satisfies func(%T)", *new(T))
}

func (m *satisfyConstraint[T]) FailureMessage(actual any) string {
	if m.lastErr != nil {
		return fmt.Sprintf("value %v does not satisfy predicate: %v", actual, m.lastErr)
	}

	return fmt.Sprintf("value %v does not satisfy predicate", actual)
}

func (m *satisfyConstraint[T]) Match(actual any) (bool, error) {
	val, ok := actual.(T)

	if !ok {
		return false, fmt.Errorf("%w: expected %T, got %T", errTypeMismatch, *new(T), actual)
	}

	m.lastErr = m.predicate(val)

	return m.lastErr == nil, nil
}

// deepEqual checks whether two values are deeply equal.
// Typed and untyped nils compare equal; everything else depends on reflect.DeepEqual.
func deepEqual(actual, expected any) bool {
	// handle, for instance, nil == (*int)nil
	if isNil(actual) && isNil(expected) {
		return true
	}

	return reflect.DeepEqual(actual, expected)
}

// isNil returns whether the value is nil, typed or untyped.
func isNil(value any) bool {
	reflected := reflect.ValueOf(value)
	if !reflected.IsValid() {
		return true
	}

	switch reflected.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface,
		reflect.Map, reflect.Pointer, reflect.Slice:
		return reflected.IsNil()
	default:
		return false
	}
}
