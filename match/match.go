// Package match provides argument constraints for forktest expectations.
// This package is designed to be dot-imported alongside gomega matchers:
//
//	import (
//	    . "github.com/onsi/gomega"
//	    . "github.com/toejough/forktest/match"
//	)
//
//	t.Expect("Store.Put", MatchesPattern("^user/"), BeAny)
//	t.WillRespond("Store.Get", 42, HaveLen(3))
//
// Any gomega matcher works as a constraint; plain values are compared with Equals.
package match

import "github.com/toejough/forktest/internal/core"

// Constraint is a predicate over a single argument value.
// Compatible with gomega.GomegaMatcher via duck typing - any type
// implementing Match and FailureMessage will work.
type Constraint = core.Constraint

// BeAny is a constraint that matches any value.
// Useful when you don't care about a particular argument.
//
//nolint:gochecknoglobals // Intentional exported constant-like value
var BeAny = core.Any()

// Compares returns a constraint comparing a numeric argument against value.
// op is one of ==, !=, <, <=, >, >= or ~ (approximately, with an optional threshold).
func Compares(op string, value any, threshold ...any) Constraint {
	return core.Compare(op, value, threshold...)
}

// Equals returns a constraint matching values deeply equal to expected.
func Equals(expected any) Constraint {
	return core.Equal(expected)
}

// MatchesPattern returns a constraint matching strings against a regular expression.
func MatchesPattern(pattern string) Constraint {
	return core.MatchPattern(pattern)
}

// Satisfies returns a constraint that uses a predicate function to check for a match.
// The predicate should return nil if the value matches, or an error describing
// the mismatch if it does not.
//
// Example:
//
//	t.Expect("Add", Satisfies(func(x int) error {
//	    if x < 0 { return fmt.Errorf("expected positive, got %d", x) }
//	    return nil
//	}))
func Satisfies[T any](predicate func(T) error) Constraint {
	return core.Satisfy(predicate)
}
