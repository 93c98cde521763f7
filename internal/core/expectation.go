package core

import (
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// Multiplicity says whether an expectation is consumed by its first match.
type Multiplicity int

// Multiplicities.
const (
	Once Multiplicity = iota
	Always
)

func (m Multiplicity) String() string {
	switch m {
	case Once:
		return "once"
	case Always:
		return "always"
	default:
		return fmt.Sprintf("Multiplicity(%d)", int(m))
	}
}

// Expectation is one recorded expected call.
type Expectation struct {
	Function     string
	Constraints  []Constraint // one per argument; positions past the end are "don't care"
	Return       any
	Multiplicity Multiplicity
	// Negative expectations describe calls that must never happen.
	Negative bool
	Origin   Origin
}

// String renders the expectation the way a call would look, e.g. "f(arg0 == 1, _)".
func (e *Expectation) String() string {
	if len(e.Constraints) == 0 {
		return e.Function + "(...)"
	}

	parts := make([]string, len(e.Constraints))

	for i, c := range e.Constraints {
		description := Describe(c)
		if description == "_" {
			parts[i] = description

			continue
		}

		parts[i] = fmt.Sprintf("arg%d %s", i, description)
	}

	return e.Function + "(" + strings.Join(parts, ", ") + ")"
}

// match checks args against the constraints. It returns an error wrapping
// ErrConfiguration when there are more constraints than args, and otherwise
// (false, reason) when some argument fails its constraint.
func (e *Expectation) match(args []any) (bool, string, error) {
	if len(e.Constraints) > len(args) {
		return false, "", fmt.Errorf("%w: %s has %d constraints, but the call passed %d args",
			ErrConfiguration, e, len(e.Constraints), len(args))
	}

	for index, constraint := range e.Constraints {
		ok, failureMsg := MatchValue(args[index], constraint)
		if ok {
			continue
		}

		if failureMsg == "" {
			failureMsg = fmt.Sprintf("constraint failed for value %#v", args[index])
		}

		return false, fmt.Sprintf("arg %d: %s", index, failureMsg), nil
	}

	return true, "", nil
}

// Origin is a source location used in diagnostics.
type Origin struct {
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// CallerOrigin returns the location of the caller skip frames above its own caller.
// CallerOrigin(0) is the location of the function calling CallerOrigin.
func CallerOrigin(skip int) Origin {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Origin{}
	}

	return Origin{File: file, Line: line}
}

func (o Origin) String() string {
	if o.File == "" {
		return "<unknown>"
	}

	return fmt.Sprintf("%s:%d", filepath.Base(o.File), o.Line)
}

// Exported variables.
var (
	// ErrConfiguration marks expectations that can never be checked as registered.
	ErrConfiguration = errors.New("mock configuration error")
)

// FormatCall renders an actual call, e.g. `f(2, "x")`.
func FormatCall(function string, args []any) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = fmt.Sprintf("%#v", arg)
	}

	return function + "(" + strings.Join(parts, ", ") + ")"
}
