// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"sync/atomic"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/backends/shapeinference"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/google/uuid"
	"k8s.io/klog/v2"
)

// executor computes the output of a program into the given output buffer.
type executor func(backend *Backend, sig *shapeinference.Signature, inputs []*Buffer, output *Buffer)

// gradientExecutor computes the gradient of sum(output) with respect to inputs[inputIdx] into the given buffer.
type gradientExecutor func(backend *Backend, sig *shapeinference.Signature, inputs []*Buffer, inputIdx int, output *Buffer)

var (
	nodeExecutors     [backends.OpTypeLast]executor
	gradientExecutors [backends.OpTypeLast]gradientExecutor
)

// setNodeExecutor registers the executor for the op, it is called during initialization by each exec_*.go file.
func setNodeExecutor(op backends.OpType, fn executor) {
	nodeExecutors[op] = fn
}

// setGradientExecutor registers the gradient executor for the op.
func setGradientExecutor(op backends.OpType, fn gradientExecutor) {
	gradientExecutors[op] = fn
}

// Program implements backends.Program for SimpleGo.
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
	delete(p.backend.programs, p.id)
	p.backend.mu.Unlock()
}

// Build implements backends.Backend.
func (b *Backend) Build(op backends.OpType, attributes backends.Attributes, inputs []backends.Parameter) (backends.Program, error) {
	if op <= backends.OpTypeInvalid || op >= backends.OpTypeLast || nodeExecutors[op] == nil || !Capabilities.Operations[op] {
		return nil, &errs.UnsupportedOperatorError{Backend: BackendName, Operator: op.String()}
	}
	sig, err := shapeinference.Infer(BackendName, op, attributes, inputs)
	if err != nil {
		return nil, err
	}
	for _, input := range inputs {
		if !Capabilities.DTypes[input.Shape.DType] {
			return nil, &errs.UnsupportedDTypeError{DType: input.Shape.DType.String(), Context: op.String() + " on backend " + BackendName}
		}
	}
	p := &Program{backend: b, id: uuid.NewString(), sig: sig}
	b.mu.Lock()
	b.programs[p.id] = p
	b.mu.Unlock()
	if klog.V(2).Enabled() {
		klog.Infof("%s: built program %s: %s%v -> %s", BackendName, p.id, op, inputs, sig.Output.Shape)
	}
	return p, nil
}

// Run implements backends.Backend.
//
// Every pooled buffer used is returned before Run returns, also if a kernel panics.
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
	inputBuffers := make([]*Buffer, len(inputs))
	for ii, input := range inputs {
		inputBuffers[ii] = viewOf(input.Tensor)
	}

	out := b.execute(p.sig.Output, func(output *Buffer) { nodeExecutors[p.sig.Op](b, p.sig, inputBuffers, output) })
	outputs, err = shapeinference.SelectOutputs(BackendName, p.sig, tensors.Set{{Name: backends.OutputName, Tensor: out}},
		requestedOutputs)
	if err != nil {
		return nil, nil, err
	}
	if gradients && len(p.sig.Gradients) > 0 {
		gradFn := gradientExecutors[p.sig.Op]
		if gradFn == nil {
			return nil, nil, &errs.ExecutionError{Backend: BackendName, Operator: p.sig.Op.String(),
				Diagnostic: "gradients not implemented"}
		}
		grads = make(tensors.Set, 0, len(p.sig.Gradients))
		for _, spec := range p.sig.Gradients {
			inputIdx := inputs.Index(spec.Name[:len(spec.Name)-len(backends.GradientSuffix)])
			grad := b.execute(spec, func(output *Buffer) { gradFn(b, p.sig, inputBuffers, inputIdx, output) })
			grads = append(grads, tensors.Named{Name: spec.Name, Tensor: grad})
		}
	}
	return outputs, grads, nil
}

// execute runs the kernel on a pooled output buffer and copies the result to a new tensor.
// The buffer is returned to the pool before it returns.
func (b *Backend) execute(spec backends.Parameter, kernel func(output *Buffer)) *tensors.Tensor {
	buf := b.newBuffer(spec.Shape)
	defer b.putBuffer(buf)
	kernel(buf)
	return buf.toTensor()
}
