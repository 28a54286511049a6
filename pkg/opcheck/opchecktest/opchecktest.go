// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package opchecktest runs opcheck suites and cases from Go tests, with the backends configured by
// the environment variables OPCHECK_REFERENCE and OPCHECK_CANDIDATE (by default "ref" and "go").
//
// Each case becomes a subtest: Skipped cases call t.Skip, Failed and Errored cases call t.Errorf with
// the case diagnostic.
package opchecktest

import (
	"fmt"
	"testing"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/gomlx/opcheck/pkg/opcheck"
	"github.com/gomlx/opcheck/pkg/opcheck/compare"
	"github.com/gomlx/opcheck/pkg/opcheck/matrix"
	"github.com/stretchr/testify/require"
)

// adapters creates the backends for the test, finalized at the end of the test.
func adapters(t *testing.T) *opcheck.Adapters {
	adapters, err := opcheck.AdaptersFromEnv()
	require.NoError(t, err, "creating backends")
	t.Cleanup(adapters.Finalize)
	return adapters
}

// RunSuite runs the suite and reports each case as a subtest of t. It returns the summary.
//
// Unless cfg.Gate is set, cases not supported by one of the backends are skipped.
func RunSuite(t *testing.T, cfg opcheck.Config, suite *opcheck.Suite) *opcheck.Summary {
	t.Helper()
	a := adapters(t)
	if cfg.Gate == nil {
		cfg.Gate = opcheck.Gates{opcheck.NewHostGate(), a.BackendGate()}
	}
	summary := opcheck.RunSuite(cfg, a, suite, nil)
	for _, result := range summary.Results {
		t.Run(fmt.Sprintf("%s_%s", result.Record.Name, result.Record.Label()), func(t *testing.T) {
			report(t, result)
		})
	}
	return summary
}

// RunDescription expands the description and runs it with the default configuration, see RunSuite.
func RunDescription(t *testing.T, description *matrix.Description) *opcheck.Summary {
	t.Helper()
	return RunSuite(t, opcheck.DefaultConfig(), opcheck.SuiteFromDescription(description))
}

// CheckOp compares the operator applied to the given inputs on both backends. Inputs are named after the
// operator's inputs ("x", "y").
//
// The test fails if the case doesn't pass.
func CheckOp(t *testing.T, operator string, attributes backends.Attributes, tolerance compare.Tolerance,
	inputs ...*tensors.Tensor) *opcheck.CaseResult {
	t.Helper()
	op, err := backends.ParseOperator(operator)
	require.NoError(t, err)
	names := op.InputNames()
	require.Lenf(t, inputs, len(names), "operator %s takes inputs %v", op, names)
	record := &matrix.ParameterRecord{
		Name:              "CheckOp(" + operator + ")",
		Operator:          operator,
		Attributes:        attributes,
		Tolerance:         tolerance,
		GradientTolerance: compare.DefaultGradientTolerance,
		Gradients:         true,
	}
	set := make(tensors.Set, len(inputs))
	for ii, input := range inputs {
		set[ii] = tensors.Named{Name: names[ii], Tensor: input}
		record.Inputs = append(record.Inputs, matrix.TensorSpec{Name: names[ii], Shape: input.Shape()})
	}
	result := opcheck.RunCaseWithInputs(opcheck.DefaultConfig(), adapters(t), record, set)
	report(t, result)
	return result
}

func report(t *testing.T, result *opcheck.CaseResult) {
	t.Helper()
	switch result.State {
	case opcheck.StateSkipped:
		t.Skipf("%s: %s", result.Record.Name, result.SkipReason)
	case opcheck.StateFailed, opcheck.StateErrored:
		t.Errorf("%s (seed %d): %s", result.Record, result.Seed, result.Diagnostic())
	}
}
