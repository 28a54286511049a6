// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package backends defines the contract an execution backend implements to take part in a differential test:
// build a program for one operator, then run it on concrete inputs.
//
// Backends are registered by name (see Register) and created from a configuration string formatted as
// "<backend_name>:<backend_configuration>" (see NewWithConfig). Two are included: "ref" (package
// backends/reference), a naive float64 evaluator used as ground truth, and "go" (package backends/simplego),
// a typed, pooled and parallel implementation that is the default backend under test.
//
// Backend implementations are free to throw (panic) internally, see package github.com/gomlx/exceptions:
// Build and Run, as called through this package's Build and Run functions, convert those panics into errors.
package backends

import (
	"os"
	"slices"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/pkg/errors"
)

// Parameter is a named input (or output) specification of a program.
type Parameter struct {
	Name  string
	Shape shapes.Shape
}

// Backend is the API that needs to be implemented by an opcheck backend.
type Backend interface {
	// Name returns the short name of the backend. E.g.: "go" for the SimpleGo backend.
	Name() string

	// Description is a longer description of the Backend that can be used to pretty-print.
	Description() string

	// Capabilities returns the operations and dtypes supported by the backend.
	Capabilities() Capabilities

	// Build a program that applies op with the given attributes to inputs with the given specs.
	//
	// It returns an *errs.UnsupportedOperatorError if the backend doesn't implement op (or not for these dtypes),
	// and an *errs.InvalidAttributeError if attributes are out of the operator's legal domain.
	Build(op OpType, attributes Attributes, inputs []Parameter) (Program, error)

	// Run executes the program on the given inputs, that must match the specs the program was built with.
	//
	// It returns the requested outputs in the order requested (all outputs, if requestedOutputs is empty),
	// and, if gradients is true, the gradients of the sum of the outputs with respect to each of the
	// differentiable inputs (see GradientName).
	//
	// Any scratch resources used are released before Run returns. Failures are reported as *errs.ExecutionError.
	Run(program Program, inputs tensors.Set, requestedOutputs []string, gradients bool) (outputs, grads tensors.Set, err error)

	// Finalize releases all the associated resources immediately, and makes the backend invalid.
	Finalize()
}

// Program is a handle to a program built by a Backend. It can only be used with the Backend that built it.
type Program interface {
	// ID is a unique identifier of the program, used for logging.
	ID() string

	// Op implemented by the program.
	Op() OpType

	// Inputs returns the specs of the inputs, in the order the program expects them.
	Inputs() []Parameter

	// Outputs returns the specs of the outputs.
	Outputs() []Parameter

	// Gradients returns the specs of the gradients the program can compute. It may be empty if the program
	// is not differentiable.
	Gradients() []Parameter

	// Release frees any resources associated with the program. It is idempotent, and the program
	// cannot be used after it is called.
	Release()
}

// Build calls backend.Build, converting any panic to an error, and annotating errors with the backend name.
func Build(backend Backend, op OpType, attributes Attributes, inputs []Parameter) (program Program, err error) {
	if panicErr := exceptions.TryCatch[error](func() {
		program, err = backend.Build(op, attributes, inputs)
	}); panicErr != nil {
		err = panicErr
	}
	if err != nil {
		return nil, annotate(backend, op, err)
	}
	return program, nil
}

// Run calls backend.Run, converting any panic to an *errs.ExecutionError with the panic message as diagnostic.
func Run(backend Backend, program Program, inputs tensors.Set, requestedOutputs []string, gradients bool) (
	outputs, grads tensors.Set, err error) {
	panicErr := exceptions.TryCatch[error](func() {
		outputs, grads, err = backend.Run(program, inputs, requestedOutputs, gradients)
	})
	if panicErr != nil {
		return nil, nil, &errs.ExecutionError{Backend: backend.Name(), Operator: program.Op().String(),
			Diagnostic: panicErr.Error()}
	}
	if err != nil {
		return nil, nil, annotate(backend, program.Op(), err)
	}
	return outputs, grads, nil
}

// annotate errors that are not already part of the taxonomy as execution errors of the backend.
func annotate(backend Backend, op OpType, err error) error {
	for _, target := range []error{errs.ErrInvalidShape, errs.ErrUnsupportedDType, errs.ErrUnsupportedOperator,
		errs.ErrInvalidAttribute, errs.ErrExecution} {
		if errors.Is(err, target) {
			return err
		}
	}
	return &errs.ExecutionError{Backend: backend.Name(), Operator: op.String(), Diagnostic: err.Error()}
}

// Constructor takes a config string (optionally empty) and returns a Backend.
type Constructor func(config string) (Backend, error)

var registeredConstructors = make(map[string]Constructor)

// Register backend with the given name, and a default constructor that takes as input a configuration string that is
// passed along to the backend constructor.
//
// To be safe, call Register during initialization of a package.
func Register(name string, constructor Constructor) {
	registeredConstructors[name] = constructor
}

// List the names of the registered backends, sorted.
func List() []string {
	names := make([]string, 0, len(registeredConstructors))
	for name := range registeredConstructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

const (
	// ReferenceEnv is the environment variable with the configuration of the reference backend.
	ReferenceEnv = "OPCHECK_REFERENCE"

	// CandidateEnv is the environment variable with the configuration of the candidate backend (the one under test).
	CandidateEnv = "OPCHECK_CANDIDATE"

	// DefaultReference is the configuration of the reference backend if not otherwise specified.
	DefaultReference = "ref"

	// DefaultCandidate is the configuration of the candidate backend if not otherwise specified.
	DefaultCandidate = "go"
)

// ConfigFromEnv returns the backend configuration in the environment variable envVar if it is set,
// or defaultConfig otherwise.
func ConfigFromEnv(envVar, defaultConfig string) string {
	if config, found := os.LookupEnv(envVar); found && config != "" {
		return config
	}
	return defaultConfig
}

// NewWithConfig takes a configuration string formatted as "<backend_name>:<backend_configuration>".
// The "<backend_name>" is the name of a registered backend (e.g.: "go") and
// "<backend_configuration>" is backend specific (e.g.: for "go", "parallelism=4").
func NewWithConfig(config string) (backend Backend, err error) {
	backendName, backendConfig, _ := strings.Cut(config, ":")
	constructor, found := registeredConstructors[backendName]
	if !found {
		return nil, errors.Errorf("can't find backend %q for configuration %q, registered backends: %s",
			backendName, config, strings.Join(List(), ", "))
	}
	if panicErr := exceptions.TryCatch[error](func() {
		backend, err = constructor(backendConfig)
	}); panicErr != nil {
		err = panicErr
	}
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to create backend %q", config)
	}
	return backend, nil
}
