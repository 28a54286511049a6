package opcheck

import (
	"bytes"
	"sync/atomic"
	"testing"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/gomlx/opcheck/pkg/opcheck/compare"
	"github.com/gomlx/opcheck/pkg/opcheck/matrix"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend always returns the same output, and counts its calls.
type fakeBackend struct {
	output   *tensors.Tensor
	runErr   error
	numCalls atomic.Int32
}

type fakeProgram struct {
	op     backends.OpType
	inputs []backends.Parameter
}

func (p *fakeProgram) ID() string                      { return "fake" }
func (p *fakeProgram) Op() backends.OpType             { return p.op }
func (p *fakeProgram) Inputs() []backends.Parameter    { return p.inputs }
func (p *fakeProgram) Outputs() []backends.Parameter   { return nil }
func (p *fakeProgram) Gradients() []backends.Parameter { return nil }
func (p *fakeProgram) Release()                        {}

func (f *fakeBackend) Name() string        { return "fake" }
func (f *fakeBackend) Description() string { return "fake" }
func (f *fakeBackend) Finalize()           {}

func (f *fakeBackend) Capabilities() backends.Capabilities {
	return backends.Capabilities{Operations: map[backends.OpType]bool{backends.OpTypeCast: true}, DTypes: backends.AllDTypes()}
}

func (f *fakeBackend) Build(op backends.OpType, _ backends.Attributes, inputs []backends.Parameter) (backends.Program, error) {
	f.numCalls.Add(1)
	return &fakeProgram{op: op, inputs: inputs}, nil
}

func (f *fakeBackend) Run(backends.Program, tensors.Set, []string, bool) (tensors.Set, tensors.Set, error) {
	f.numCalls.Add(1)
	if f.runErr != nil {
		return nil, nil, f.runErr
	}
	return tensors.Set{{Name: backends.OutputName, Tensor: f.output}}, nil, nil
}

func defaultAdapters(t *testing.T) *Adapters {
	adapters, err := NewAdapters("ref", "go")
	require.NoError(t, err)
	t.Cleanup(adapters.Finalize)
	return adapters
}

func expandOne(t *testing.T, d *matrix.Description) *matrix.ParameterRecord {
	records := d.Expand()
	require.Len(t, records, 1)
	return &records[0]
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Parallelism = 2
	return cfg
}

func TestAffineEndToEnd(t *testing.T) {
	adapters := defaultAdapters(t)
	rec := expandOne(t, &matrix.Description{
		Operator:   "affine",
		Shapes:     []matrix.ShapeEntry{{Dimensions: []int{4}}},
		DTypes:     []matrix.DTypeEntry{{DType: dtypes.Float32}},
		Attributes: []matrix.AttributeEntry{{Attributes: backends.Attributes{"scale": 0, "bias": 10, "order": "bias_after_scale"}}},
	})
	inputs := tensors.Set{{Name: "x", Tensor: tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 4)}}
	result := RunCaseWithInputs(testConfig(), adapters, rec, inputs)
	require.Equalf(t, StatePassed, result.State, "%s", result)
	assert.Equal(t, []State{StatePending, StateInputsGenerated, StateReferenceRun, StateCandidateRun, StateCompared,
		StatePassed}, result.Trace)
	assert.True(t, inputs[0].Tensor.IsFrozen())

	// Output values of each backend.
	for _, backend := range []backends.Backend{adapters.Reference, adapters.Candidate} {
		program := must.M1(backends.Build(backend, backends.OpTypeAffine, rec.Attributes, rec.Parameters()))
		outputs, _ := must.M2(backends.Run(backend, program, inputs, nil, false))
		assert.Equal(t, []float32{10, 10, 10, 10}, tensors.MustCopyFlatData[float32](outputs[0].Tensor))
		program.Release()
	}
}

func castRecord(t *testing.T) *matrix.ParameterRecord {
	exact := true
	return expandOne(t, &matrix.Description{
		Operator:   "cast",
		Overrides:  matrix.Overrides{Exact: &exact},
		Shapes:     []matrix.ShapeEntry{{Dimensions: []int{2}}},
		DTypes:     []matrix.DTypeEntry{{DType: dtypes.Uint8}},
		Attributes: []matrix.AttributeEntry{{Attributes: backends.Attributes{"dtype": "int32"}}},
	})
}

func TestCastEndToEnd(t *testing.T) {
	rec := castRecord(t)
	require.True(t, rec.Tolerance.ExactMatch)
	inputs := func() tensors.Set {
		return tensors.Set{{Name: "x", Tensor: tensors.FromFlatDataAndDimensions([]uint8{0, 255}, 2)}}
	}
	result := RunCaseWithInputs(testConfig(), defaultAdapters(t), rec, inputs())
	require.Equalf(t, StatePassed, result.State, "%s", result)

	// A candidate with a wraparound bug.
	wrapped := &fakeBackend{output: tensors.FromFlatDataAndDimensions([]int32{0, -1}, 2)}
	adapters := &Adapters{Reference: defaultAdapters(t).Reference, Candidate: wrapped}
	result = RunCaseWithInputs(testConfig(), adapters, rec, inputs())
	require.Equal(t, StateFailed, result.State)
	assert.NoError(t, result.Err)
	assert.Equal(t, 1, result.Outputs.NumMismatches)
	assert.Equal(t, []int{1}, result.Outputs.Mismatches[0].Index)
	assert.Contains(t, result.Diagnostic(), "reference=255, candidate=-1")
	assert.NotNil(t, result.Inputs)
	assert.NotNil(t, result.CandidateOutputs)

	// A candidate that returns the wrong dtype: structural mismatch.
	adapters.Candidate = &fakeBackend{output: tensors.FromFlatDataAndDimensions([]int64{0, 255}, 2)}
	result = RunCaseWithInputs(testConfig(), adapters, rec, inputs())
	require.Equal(t, StateFailed, result.State)
	assert.ErrorIs(t, result.Err, errs.ErrStructuralMismatch)
}

func TestSkippedAndErrored(t *testing.T) {
	rec := castRecord(t)
	ref, cand := &fakeBackend{}, &fakeBackend{}
	adapters := &Adapters{Reference: ref, Candidate: cand}
	cfg := testConfig()
	cfg.Gate = GateFunc(func(req Requirement) (bool, string) {
		assert.Equal(t, "cast", req.Operator)
		assert.Equal(t, []dtypes.DType{dtypes.Uint8}, req.DTypes)
		return false, "no accelerator"
	})
	result := RunCase(cfg, adapters, rec)
	assert.Equal(t, StateSkipped, result.State)
	assert.Equal(t, []State{StatePending, StateSkipped}, result.Trace)
	assert.Equal(t, "no accelerator", result.SkipReason)
	assert.Zero(t, ref.numCalls.Load())
	assert.Zero(t, cand.numCalls.Load())

	// Backend failure: Errored, with the backend diagnostic.
	cfg.Gate = nil
	cand.runErr = &errs.ExecutionError{Backend: "fake", Operator: "cast", Diagnostic: "device lost"}
	ref.output = tensors.FromFlatDataAndDimensions([]int32{1, 2}, 2)
	result = RunCase(cfg, adapters, rec)
	assert.Equal(t, StateErrored, result.State)
	assert.Equal(t, []State{StatePending, StateInputsGenerated, StateReferenceRun, StateErrored}, result.Trace)
	assert.ErrorIs(t, result.Err, errs.ErrExecution)
	assert.Contains(t, result.Diagnostic(), "device lost")

	// Invalid shape: Errored before inputs are generated.
	bad := expandOne(t, &matrix.Description{
		Operator:   "relu",
		Shapes:     []matrix.ShapeEntry{{Dimensions: []int{0}}},
		DTypes:     []matrix.DTypeEntry{{DType: dtypes.Float32}},
		Attributes: []matrix.AttributeEntry{{}},
	})
	result = RunCase(cfg, defaultAdapters(t), bad)
	assert.Equal(t, []State{StatePending, StateErrored}, result.Trace)
	assert.ErrorIs(t, result.Err, errs.ErrInvalidShape)

	// Unknown operator.
	bad = expandOne(t, &matrix.Description{
		Operator:   "softmax",
		Shapes:     []matrix.ShapeEntry{{Dimensions: []int{3}}},
		DTypes:     []matrix.DTypeEntry{{DType: dtypes.Float32}},
		Attributes: []matrix.AttributeEntry{{}},
	})
	result = RunCase(cfg, defaultAdapters(t), bad)
	assert.Equal(t, StateErrored, result.State)
	assert.ErrorIs(t, result.Err, errs.ErrUnsupportedOperator)
}

func TestGates(t *testing.T) {
	host := &HostGate{GOOS: "linux", GOARCH: "amd64", NumCPU: 4,
		LookupEnv: func(name string) (string, bool) { return "1", name == "HAS_GPU" }}
	for _, tc := range []struct {
		requires []string
		allowed  bool
	}{
		{nil, true},
		{[]string{"os:linux", "arch:amd64"}, true},
		{[]string{"os:darwin"}, false},
		{[]string{"!os:windows"}, true},
		{[]string{"!arch:amd64"}, false},
		{[]string{"min_cpus:4"}, true},
		{[]string{"min_cpus:8"}, false},
		{[]string{"env:HAS_GPU"}, true},
		{[]string{"env:HAS_TPU"}, false},
		{[]string{"something_else"}, true},
	} {
		allowed, _ := host.Allows(Requirement{Operator: "relu", Requires: tc.requires})
		assert.Equalf(t, tc.allowed, allowed, "requires=%v", tc.requires)
	}

	adapters := &Adapters{Reference: &fakeBackend{}, Candidate: &fakeBackend{}}
	backendGate := adapters.BackendGate()
	allowed, _ := backendGate.Allows(Requirement{Operator: "cast", DTypes: []dtypes.DType{dtypes.Float16}})
	assert.True(t, allowed)
	allowed, reason := backendGate.Allows(Requirement{Operator: "relu"})
	assert.False(t, allowed)
	assert.Contains(t, reason, "relu")
	allowed, _ = backendGate.Allows(Requirement{Operator: "cast", Requires: []string{"backend:fake"}})
	assert.True(t, allowed)
	allowed, _ = backendGate.Allows(Requirement{Operator: "cast", Requires: []string{"backend:xla"}})
	assert.False(t, allowed)

	gates := Gates{AllowAll, host, backendGate}
	allowed, _ = gates.Allows(Requirement{Operator: "cast", Requires: []string{"os:linux"}})
	assert.True(t, allowed)
	allowed, _ = gates.Allows(Requirement{Operator: "cast", Requires: []string{"os:plan9"}})
	assert.False(t, allowed)
}

func scaleSuite() *Suite {
	tol := compare.Tolerance{Absolute: 1e-5, Relative: 1e-5}
	f16Tol := compare.Tolerance{Absolute: 2e-3, Relative: 2e-3}
	return SuiteFromDescription(&matrix.Description{
		Name:      "scale",
		Operator:  "affine",
		Gradients: true,
		Overrides: matrix.Overrides{Tolerance: &tol},
		Shapes:    []matrix.ShapeEntry{{Dimensions: []int{4}}, {Dimensions: []int{3, 50}}},
		DTypes: []matrix.DTypeEntry{{DType: dtypes.Float32}, {DType: dtypes.Float64},
			{DType: dtypes.Float16, Overrides: matrix.Overrides{Tolerance: &f16Tol}}, {DType: dtypes.Int16}},
		Attributes: []matrix.AttributeEntry{
			{Attributes: backends.Attributes{"scale": 0, "bias": 10}},
			{Attributes: backends.Attributes{"scale": -1.5, "bias": 2, "bias_after_scale": false}},
		},
	})
}

func TestRunSuite(t *testing.T) {
	adapters := defaultAdapters(t)
	suite := scaleSuite()
	require.Len(t, suite.Records, 16)
	var numDone atomic.Int32
	summary := RunSuite(testConfig(), adapters, suite, func(*CaseResult) { numDone.Add(1) })
	for _, r := range summary.Results {
		assert.Equalf(t, StatePassed, r.State, "%s", r)
	}
	assert.Equal(t, 16, summary.Passed)
	assert.True(t, summary.OK())
	assert.EqualValues(t, 16, numDone.Load())
	assert.NotEmpty(t, summary.RunID)
	assert.Equal(t, 0, adapters.Candidate.(interface{ NumLiveBuffers() int }).NumLiveBuffers())

	// Same seed, same results; concurrent backends don't change them.
	cfg := testConfig()
	cfg.ConcurrentBackends = true
	cfg.Parallelism = 0
	again := RunSuite(cfg, adapters, suite, nil)
	assert.Equal(t, 16, again.Passed)
	for ii := range summary.Results {
		assert.Equal(t, summary.Results[ii].Seed, again.Results[ii].Seed)
	}

	var buf bytes.Buffer
	require.NoError(t, Report(&buf, summary, ReportOptions{Verbose: true}))
	assert.Contains(t, buf.String(), "16 cases: 16 passed, 0 failed, 0 skipped, 0 errored")
	assert.Contains(t, buf.String(), "shape=[3 50] dtype=int16")
}

func TestRunSuiteStopOnFailure(t *testing.T) {
	rec := castRecord(t)
	records := []matrix.ParameterRecord{*rec, *rec, *rec}
	for ii := range records {
		records[ii].Index = ii
	}
	adapters := &Adapters{
		Reference: &fakeBackend{output: tensors.FromFlatDataAndDimensions([]int32{0, 255}, 2)},
		Candidate: &fakeBackend{output: tensors.FromFlatDataAndDimensions([]int32{0, -1}, 2)},
	}
	cfg := testConfig()
	cfg.Parallelism = 0
	cfg.StopOnFailure = true
	summary := RunSuite(cfg, adapters, &Suite{Name: "stop", Records: records}, nil)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, "not run", summary.Results[2].SkipReason)
	assert.False(t, summary.OK())

	var buf bytes.Buffer
	require.NoError(t, Report(&buf, summary, ReportOptions{Diagnostics: true}))
	assert.Contains(t, buf.String(), "reference=255, candidate=-1")

	cfg.StopOnFailure = false
	summary = RunSuite(cfg, adapters, &Suite{Name: "all", Records: records}, nil)
	assert.Equal(t, 3, summary.Failed)
}

func TestStateMachine(t *testing.T) {
	assert.True(t, StatePassed.IsTerminal())
	assert.False(t, StateCompared.IsTerminal())
	assert.Equal(t, "InputsGenerated", StateInputsGenerated.String())
	assert.True(t, canTransition(StateCompared, StateFailed))
	assert.False(t, canTransition(StateReferenceRun, StatePassed))
	assert.False(t, canTransition(StatePassed, StatePending))
}
