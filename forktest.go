// Package forktest runs each test case in its own child process and mocks functions with
// ordered, constraint-based expectations.
//
// A test binary hands control to forktest from TestMain, so that the processes it spawns run
// a single test instead of the whole binary:
//
//	func TestMain(m *testing.M) {
//	    forktest.Main(m, suite)
//	}
//
//	func TestSuite(t *testing.T) {
//	    forktest.Run(t, suite)
//	}
//
// This is the public API entry point. Implementation lives in internal/core.
package forktest

import (
	"github.com/toejough/forktest/internal/core"
	"github.com/toejough/forktest/internal/driver"
)

// Types re-exported from internal/core.

// Constraint is a predicate over a single argument value.
type Constraint = core.Constraint

// Kind classifies a violation.
type Kind = core.Kind

// Origin is a source location used in diagnostics.
type Origin = core.Origin

// Outcome is the classification of one test run.
type Outcome = core.Outcome

// Record is the reported result of one test.
type Record = core.Record

// Reporter receives test results as they complete, then a summary.
type Reporter = core.Reporter

// Results holds the return values of a mocked function with more than one result.
type Results = core.Results

// Suite is a named, ordered collection of tests sharing setup and teardown.
type Suite = core.Suite

// Summary counts outcomes across a run.
type Summary = core.Summary

// T is the per-test context handed to a test body.
type T = core.T

// Test is one test case.
type Test = core.Test

// Violation is a discrepancy between expected and actual behavior.
type Violation = core.Violation

// Outcomes.
const (
	Pass    = core.Pass
	Fail    = core.Fail
	Crashed = core.Crashed
	Timeout = core.Timeout
	Error   = core.Error
)

// Violation kinds.
const (
	UnexpectedCall              = core.UnexpectedCall
	OrderingViolation           = core.OrderingViolation
	ArgumentMismatch            = core.ArgumentMismatch
	UnsatisfiedExpectation      = core.UnsatisfiedExpectation
	NegativeExpectationViolated = core.NegativeExpectationViolated
	ConfigurationError          = core.ConfigurationError
	AssertionFailure            = core.AssertionFailure
	Panicked                    = core.Panicked
)

// Functions re-exported from internal/core.

// CallerOrigin returns the location of the caller skip frames above the function calling it.
func CallerOrigin(skip int) Origin {
	return core.CallerOrigin(skip + 1)
}

// NewT creates a test context outside of a driver run, for use in ordinary go tests.
func NewT(name string) *T {
	return core.NewT(name)
}

// Returned converts a mock return value to R, giving R's zero value for nil or a value of another type.
func Returned[R any](value any) R {
	return core.Returned[R](value)
}

// Unpack spreads a mock return value over n results.
func Unpack(value any, n int) Results {
	return core.Unpack(value, n)
}

// Types and functions re-exported from internal/driver.

// CommandFunc builds the command that runs one test in a child process.
type CommandFunc = driver.CommandFunc

// Config holds the settings of a run.
type Config = driver.Config

// Option configures a run.
type Option = driver.Option

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return driver.DefaultConfig()
}

// LoadConfig reads settings from FORKTEST_* environment variables and an optional config file.
func LoadConfig(path string) (Config, error) {
	return driver.LoadConfig(path)
}

// WithCommand sets how child processes are built.
func WithCommand(command CommandFunc) Option {
	return driver.WithCommand(command)
}

// WithConfig replaces the run's configuration.
func WithConfig(config Config) Option {
	return driver.WithConfig(config)
}

// WithReporter sends results to reporter instead of the go test reporter.
func WithReporter(reporter Reporter) Option {
	return driver.WithReporter(reporter)
}
