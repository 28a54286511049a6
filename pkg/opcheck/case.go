// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package opcheck

import (
	"fmt"
	"strings"
	"time"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/random"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/gomlx/opcheck/pkg/opcheck/compare"
	"github.com/gomlx/opcheck/pkg/opcheck/matrix"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// CaseResult is the outcome of one test case.
type CaseResult struct {
	Record *matrix.ParameterRecord

	// State is the terminal state, and Trace all the states visited, starting with StatePending.
	State State
	Trace []State

	// Seed of the random source used to generate the inputs.
	Seed uint64

	// Outputs and Gradients comparisons. Gradients is nil if gradients were not compared.
	Outputs, Gradients *compare.Result

	// Err is the reason for StateErrored, or the structural mismatch for StateFailed.
	Err error

	// SkipReason is the reason for StateSkipped.
	SkipReason string

	Duration time.Duration

	// Inputs and the outputs of both backends are kept for the cases that don't pass, for diagnostics.
	Inputs                                 tensors.Set
	ReferenceOutputs, CandidateOutputs     tensors.Set
	ReferenceGradients, CandidateGradients tensors.Set
}

// transition to the next state, panicking on an illegal transition.
func (r *CaseResult) transition(to State) {
	if !canTransition(r.State, to) {
		exceptions.Panicf("case %s: illegal transition %s -> %s", r.Record.Name, r.State, to)
	}
	r.State = to
	r.Trace = append(r.Trace, to)
}

// Diagnostic returns a bounded description of why the case didn't pass, or "" if it passed.
func (r *CaseResult) Diagnostic() string {
	switch r.State {
	case StateSkipped:
		return "skipped: " + r.SkipReason
	case StateErrored:
		return fmt.Sprintf("errored: %v", r.Err)
	case StateFailed:
		var parts []string
		for _, result := range []*compare.Result{r.Outputs, r.Gradients} {
			if result != nil && !result.Passed() {
				parts = append(parts, result.String())
			}
		}
		return "failed: " + strings.Join(parts, "\n")
	}
	return ""
}

// String implements fmt.Stringer.
func (r *CaseResult) String() string {
	s := fmt.Sprintf("%s %s: %s", r.Record, r.State, r.Duration)
	if d := r.Diagnostic(); d != "" {
		s += "\n" + d
	}
	return s
}

// skipped creates the result for a case that was never started.
func skipped(record *matrix.ParameterRecord, reason string) *CaseResult {
	r := &CaseResult{Record: record, State: StatePending, Trace: []State{StatePending}, SkipReason: reason}
	r.transition(StateSkipped)
	return r
}

// RunCase runs one test case: it consults the capability gate, generates the inputs, runs both backends with
// the very same input tensors and compares the results.
//
// Every failure is reported in the returned CaseResult: RunCase doesn't return errors nor panic on backend
// failures.
func RunCase(cfg Config, adapters *Adapters, record *matrix.ParameterRecord) *CaseResult {
	return runCase(cfg, adapters, record, nil)
}

// RunCaseWithInputs is like RunCase, but uses the given inputs instead of generating random ones.
// E.g.: to reproduce a failure from saved inputs. The inputs are frozen.
//
// The inputs must match the record's input specs, otherwise the backends fail and the case is Errored.
func RunCaseWithInputs(cfg Config, adapters *Adapters, record *matrix.ParameterRecord, inputs tensors.Set) *CaseResult {
	if inputs == nil {
		inputs = tensors.Set{}
	}
	return runCase(cfg, adapters, record, inputs)
}

func runCase(cfg Config, adapters *Adapters, record *matrix.ParameterRecord, inputs tensors.Set) *CaseResult {
	start := time.Now()
	r := &CaseResult{Record: record, State: StatePending, Trace: []State{StatePending},
		Seed: random.CaseSeed(cfg.Seed, record.Index)}
	defer func() {
		r.Duration = time.Since(start)
		if klog.V(1).Enabled() {
			klog.Infof("case %s: %s in %s", record, r.State, r.Duration)
		}
	}()

	requirement := Requirement{Operator: record.Operator, DTypes: inputDTypes(record), Requires: record.Requires}
	if allowed, reason := cfg.gate().Allows(requirement); !allowed {
		r.SkipReason = reason
		r.transition(StateSkipped)
		return r
	}

	if inputs == nil {
		var err error
		inputs, err = generateInputs(random.ForCase(cfg.Seed, record.Index), record)
		if err != nil {
			r.Err = err
			r.transition(StateErrored)
			return r
		}
	} else {
		inputs.Freeze()
	}
	r.transition(StateInputsGenerated)

	op, err := backends.ParseOperator(record.Operator)
	if err != nil {
		r.Err = err
		r.transition(StateErrored)
		return r
	}
	gradients := record.Gradients || cfg.CheckGradients
	var refRun, candRun adapterRun
	runRef := func() error {
		refRun = runAdapter(adapters.Reference, op, record, inputs, gradients)
		return refRun.err
	}
	runCand := func() error {
		candRun = runAdapter(adapters.Candidate, op, record, inputs, gradients)
		return candRun.err
	}
	if cfg.ConcurrentBackends {
		// Errors are inspected per backend below.
		var g errgroup.Group
		g.Go(runRef)
		g.Go(runCand)
		_ = g.Wait()
	} else if runRef() == nil {
		_ = runCand()
	}
	if refRun.err != nil {
		r.Err = refRun.err
		r.transition(StateErrored)
		r.Inputs = inputs
		return r
	}
	r.transition(StateReferenceRun)
	if candRun.err != nil {
		r.Err = candRun.err
		r.transition(StateErrored)
		r.Inputs, r.ReferenceOutputs = inputs, refRun.outputs
		return r
	}
	r.transition(StateCandidateRun)

	tol, gradTol := record.Tolerance, record.GradientTolerance
	if cfg.Tolerance != nil {
		tol = *cfg.Tolerance
	}
	if cfg.GradientTolerance != nil {
		gradTol = *cfg.GradientTolerance
	}
	maxMismatches := cfg.MaxMismatches
	if maxMismatches <= 0 {
		maxMismatches = compare.DefaultMaxMismatches
	}
	r.Outputs = compare.New(tol).WithMaxMismatches(maxMismatches).Compare(refRun.outputs, candRun.outputs)
	passed := r.Outputs.Passed()
	if gradients {
		r.Gradients = compare.New(gradTol).WithMaxMismatches(maxMismatches).WithKind(compare.KindGradients).
			Compare(refRun.grads, candRun.grads)
		passed = passed && r.Gradients.Passed()
	}
	r.transition(StateCompared)
	if passed {
		r.transition(StatePassed)
		return r
	}
	if err := r.Outputs.Err(); err != nil {
		r.Err = err
	} else if r.Gradients != nil {
		r.Err = r.Gradients.Err()
	}
	r.Inputs = inputs
	r.ReferenceOutputs, r.CandidateOutputs = refRun.outputs, candRun.outputs
	r.ReferenceGradients, r.CandidateGradients = refRun.grads, candRun.grads
	r.transition(StateFailed)
	return r
}

// generateInputs in the order of the record's inputs, all from the same random source.
// The returned set is frozen: both backends receive these same tensors.
func generateInputs(rng *random.Generator, record *matrix.ParameterRecord) (tensors.Set, error) {
	inputs := make(tensors.Set, len(record.Inputs))
	for ii, spec := range record.Inputs {
		t, err := rng.Generate(spec.Shape, spec.Low, spec.High)
		if err != nil {
			return nil, err
		}
		inputs[ii] = tensors.Named{Name: spec.Name, Tensor: t}
	}
	inputs.Freeze()
	return inputs, nil
}

type adapterRun struct {
	outputs, grads tensors.Set
	err            error
}

// runAdapter builds and runs the program on one backend. The program is released before it returns.
func runAdapter(backend backends.Backend, op backends.OpType, record *matrix.ParameterRecord, inputs tensors.Set,
	gradients bool) (run adapterRun) {
	program, err := backends.Build(backend, op, record.Attributes, record.Parameters())
	if err != nil {
		run.err = err
		return
	}
	defer program.Release()
	run.outputs, run.grads, run.err = backends.Run(backend, program, inputs, nil, gradients)
	return
}

// inputDTypes of the record, in order.
func inputDTypes(record *matrix.ParameterRecord) []dtypes.DType {
	dts := make([]dtypes.DType, len(record.Inputs))
	for ii, input := range record.Inputs {
		dts[ii] = input.Shape.DType
	}
	return dts
}
