// Package reference implements the "ref" backend: a naive evaluator that decodes every input to float64
// (or int64 for integer arithmetic), computes with gonum's floats package and rounds the result to the
// output dtype once.
//
// It favours being obviously right over being fast, and it is the default reference (ground truth)
// in a differential test.
package reference

import (
	"sync"
	"sync/atomic"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/backends/shapeinference"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// BackendName to be used in OPCHECK_REFERENCE (or OPCHECK_CANDIDATE) to select this backend.
const BackendName = "ref"

func init() {
	backends.Register(BackendName, New)
}

// New constructs a new reference Backend. It takes no configuration.
func New(config string) (backends.Backend, error) {
	if config != "" {
		return nil, errors.Errorf("backend %q takes no configuration, got %q", BackendName, config)
	}
	return &Backend{live: make(map[string]*Program)}, nil
}

// Backend implements the backends.Backend interface.
type Backend struct {
	mu   sync.Mutex
	live map[string]*Program
}

// Compile-time check that reference.Backend implements backends.Backend.
var _ backends.Backend = &Backend{}

// Name returns the short name of the backend.
func (b *Backend) Name() string { return BackendName }

// Description is a longer description of the Backend that can be used to pretty-print.
func (b *Backend) Description() string {
	return "Reference float64 evaluator"
}

// Capabilities returns the operations and dtypes supported: all of them.
func (b *Backend) Capabilities() backends.Capabilities {
	return backends.Capabilities{
		Operations: map[backends.OpType]bool{
			backends.OpTypeAffine:   true,
			backends.OpTypeCast:     true,
			backends.OpTypeAdd:      true,
			backends.OpTypeMultiply: true,
			backends.OpTypeRelu:     true,
		},
		DTypes: backends.AllDTypes(),
	}
}

// NumLivePrograms returns the number of programs built and not yet released.
func (b *Backend) NumLivePrograms() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.live)
}

// Finalize releases all programs.
func (b *Backend) Finalize() {
	b.mu.Lock()
	programs := make([]*Program, 0, len(b.live))
	for _, p := range b.live {
		programs = append(programs, p)
	}
	b.mu.Unlock()
	for _, p := range programs {
		p.Release()
	}
}

// Program implements backends.Program for the reference backend.
type Program struct {
	backend  *Backend
	id       string
	sig      *shapeinference.Signature
	released atomic.Bool
}

var _ backends.Program = &Program{}

// ID implements backends.Program.
func (p *Program) ID() string { return p.id }

// Op implements backends.Program.
func (p *Program) Op() backends.OpType { return p.sig.Op }

// Inputs implements backends.Program.
func (p *Program) Inputs() []backends.Parameter { return p.sig.Inputs }

// Outputs implements backends.Program.
func (p *Program) Outputs() []backends.Parameter { return []backends.Parameter{p.sig.Output} }

// Gradients implements backends.Program.
func (p *Program) Gradients() []backends.Parameter { return p.sig.Gradients }

// Release implements backends.Program. It is idempotent.
func (p *Program) Release() {
	if p.released.Swap(true) {
		return
	}
	p.backend.mu.Lock()
	delete(p.backend.live, p.id)
	p.backend.mu.Unlock()
}

// Build implements backends.Backend.
func (b *Backend) Build(op backends.OpType, attributes backends.Attributes, inputs []backends.Parameter) (backends.Program, error) {
	sig, err := shapeinference.Infer(BackendName, op, attributes, inputs)
	if err != nil {
		return nil, err
	}
	p := &Program{backend: b, id: uuid.NewString(), sig: sig}
	b.mu.Lock()
	b.live[p.id] = p
	b.mu.Unlock()
	if klog.V(2).Enabled() {
		klog.Infof("%s: built program %s: %s%v -> %s", BackendName, p.id, op, inputs, sig.Output.Shape)
	}
	return p, nil
}

// Run implements backends.Backend.
func (b *Backend) Run(program backends.Program, inputs tensors.Set, requestedOutputs []string, gradients bool) (
	outputs, grads tensors.Set, err error) {
	p, ok := program.(*Program)
	if !ok || p.backend != b {
		return nil, nil, &errs.ExecutionError{Backend: BackendName, Operator: program.Op().String(),
			Diagnostic: "program was not built by this backend"}
	}
	if p.released.Load() {
		return nil, nil, &errs.ExecutionError{Backend: BackendName, Operator: p.sig.Op.String(),
			Diagnostic: "program " + p.id + " was already released"}
	}
	if err = shapeinference.CheckInputs(BackendName, p.sig, inputs); err != nil {
		return nil, nil, err
	}

	out := evaluate(p.sig, inputs)
	outputs, err = shapeinference.SelectOutputs(BackendName, p.sig, tensors.Set{{Name: backends.OutputName, Tensor: out}},
		requestedOutputs)
	if err != nil {
		return nil, nil, err
	}
	if gradients {
		grads = gradientsOf(p.sig, inputs)
	}
	return outputs, grads, nil
}
