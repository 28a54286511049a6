// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package errs defines the error taxonomy shared by the input generator, the backends and the harness.
//
// Every error is a typed struct, so callers can extract details with errors.As, and each one also
// matches a sentinel with errors.Is:
//
//	var execErr *errs.ExecutionError
//	if errors.As(err, &execErr) {
//		fmt.Println(execErr.Diagnostic)
//	}
//	if errors.Is(err, errs.ErrExecution) { ... }
//
// All of them are local to a single test case: they make the case Errored (or Failed, for
// StructuralMismatchError), never the whole suite.
package errs

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Sentinels matched by the typed errors through errors.Is.
var (
	ErrInvalidShape        = errors.New("invalid shape")
	ErrUnsupportedDType    = errors.New("unsupported dtype")
	ErrUnsupportedOperator = errors.New("unsupported operator")
	ErrInvalidAttribute    = errors.New("invalid attribute")
	ErrExecution           = errors.New("execution failed")
	ErrStructuralMismatch  = errors.New("structural mismatch")
)

// InvalidShapeError is returned when a shape is empty or has a dimension <= 0.
type InvalidShapeError struct {
	Dimensions []int
	Reason     string
}

func (e *InvalidShapeError) Error() string {
	return fmt.Sprintf("invalid shape %v: %s", e.Dimensions, e.Reason)
}

// Is implements errors.Is.
func (e *InvalidShapeError) Is(target error) bool { return target == ErrInvalidShape }

// UnsupportedDTypeError is returned for dtypes outside the supported enumeration, or not
// handled by a particular backend/operator.
type UnsupportedDTypeError struct {
	// DType is the offending dtype name, as given.
	DType string
	// Context optionally tells who rejected it, e.g. "cast on backend go".
	Context string
}

func (e *UnsupportedDTypeError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("unsupported dtype %q", e.DType)
	}
	return fmt.Sprintf("unsupported dtype %q for %s", e.DType, e.Context)
}

// Is implements errors.Is.
func (e *UnsupportedDTypeError) Is(target error) bool { return target == ErrUnsupportedDType }

// UnsupportedOperatorError is returned by a backend's Build when it has no implementation of the operator.
type UnsupportedOperatorError struct {
	Backend  string
	Operator string
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("backend %q has no implementation of operator %q", e.Backend, e.Operator)
}

// Is implements errors.Is.
func (e *UnsupportedOperatorError) Is(target error) bool { return target == ErrUnsupportedOperator }

// InvalidAttributeError is returned when an attribute value is out of the operator's legal domain,
// or when a value range can't be honored for a dtype.
type InvalidAttributeError struct {
	Operator  string
	Attribute string
	Value     any
	Reason    string
}

func (e *InvalidAttributeError) Error() string {
	if e.Operator == "" {
		return fmt.Sprintf("invalid %s=%v: %s", e.Attribute, e.Value, e.Reason)
	}
	return fmt.Sprintf("operator %q: invalid attribute %s=%v: %s", e.Operator, e.Attribute, e.Value, e.Reason)
}

// Is implements errors.Is.
func (e *InvalidAttributeError) Is(target error) bool { return target == ErrInvalidAttribute }

// ExecutionError is a run-time backend failure. Diagnostic holds the backend's text verbatim.
type ExecutionError struct {
	Backend    string
	Operator   string
	Diagnostic string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("backend %q failed executing %q: %s", e.Backend, e.Operator, e.Diagnostic)
}

// Is implements errors.Is.
func (e *ExecutionError) Is(target error) bool { return target == ErrExecution }

// StructuralMismatchError reports that two output (or gradient) sets disagree on count, names,
// dtypes or shapes.
type StructuralMismatchError struct {
	// Kind is "outputs" or "gradients".
	Kind        string
	Differences []string
}

func (e *StructuralMismatchError) Error() string {
	return fmt.Sprintf("structural mismatch in %s: %s", e.Kind, strings.Join(e.Differences, "; "))
}

// Is implements errors.Is.
func (e *StructuralMismatchError) Is(target error) bool { return target == ErrStructuralMismatch }
