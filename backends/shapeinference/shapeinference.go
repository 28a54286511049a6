// Package shapeinference validates build requests and calculates the resulting output and gradient specs.
//
// Both backends use it at Build time, so they agree on what is a legal request: the input names and count
// for the operator, matching dtypes and shapes for binary operators, and attribute values in the operator's
// legal domain. What each backend then computes is entirely its own.
package shapeinference

import (
	"fmt"
	"slices"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/gomlx/opcheck/pkg/support/sets"
	"github.com/pkg/errors"
)

var (
	// UnaryOperations take one input named "x".
	UnaryOperations = sets.MakeWith(backends.OpTypeAffine, backends.OpTypeCast, backends.OpTypeRelu)

	// BinaryOperations take two inputs named "x" and "y", with the same shape and dtype.
	BinaryOperations = sets.MakeWith(backends.OpTypeAdd, backends.OpTypeMultiply)
)

// Signature is a validated build request, with the decoded attributes.
type Signature struct {
	Op        backends.OpType
	Inputs    []backends.Parameter
	Output    backends.Parameter
	Gradients []backends.Parameter

	// Scale, Bias and BiasAfterScale are the decoded attributes of OpTypeAffine.
	Scale, Bias    float64
	BiasAfterScale bool

	// Target is the decoded "dtype" attribute of OpTypeCast.
	Target dtypes.DType
}

// Infer validates the build request for op and returns its Signature.
//
// Errors returned are *errs.UnsupportedOperatorError, *errs.InvalidAttributeError,
// *errs.InvalidShapeError or *errs.UnsupportedDTypeError.
func Infer(backendName string, op backends.OpType, attributes backends.Attributes, inputs []backends.Parameter) (
	sig *Signature, err error) {
	if !UnaryOperations.Has(op) && !BinaryOperations.Has(op) {
		return nil, &errs.UnsupportedOperatorError{Backend: backendName, Operator: op.String()}
	}
	wantNames := op.InputNames()
	gotNames := make([]string, len(inputs))
	for ii, input := range inputs {
		gotNames[ii] = input.Name
		if err := input.Shape.Validate(); err != nil {
			return nil, errors.WithMessagef(err, "operator %q input %q", op, input.Name)
		}
	}
	if !slices.Equal(wantNames, gotNames) {
		return nil, &errs.InvalidShapeError{
			Reason: fmt.Sprintf("operator %q takes inputs %q, got %q", op, wantNames, gotNames),
		}
	}

	sig = &Signature{Op: op, Inputs: slices.Clone(inputs)}
	var output shapes.Shape
	if BinaryOperations.Has(op) {
		output, err = BinaryOp(op, inputs[0].Shape, inputs[1].Shape)
	} else {
		output, err = sig.unaryOp(attributes, inputs[0].Shape)
	}
	if err != nil {
		var attrErr *errs.InvalidAttributeError
		if errors.As(err, &attrErr) && attrErr.Operator == "" {
			attrErr.Operator = op.String()
		}
		return nil, err
	}
	sig.Output = backends.Parameter{Name: backends.OutputName, Shape: output}
	sig.Gradients = sig.gradients()
	return sig, nil
}

// BinaryOp validates the operands of a binary operation and returns the output shape.
// No broadcasting is done: shapes must be equal.
func BinaryOp(op backends.OpType, lhsShape, rhsShape shapes.Shape) (output shapes.Shape, err error) {
	if lhsShape.DType != rhsShape.DType {
		err = &errs.UnsupportedDTypeError{DType: rhsShape.DType.String(),
			Context: fmt.Sprintf("operator %q with lhs %s: data types (DType) must match", op, lhsShape)}
		return
	}
	if !lhsShape.EqualDimensions(rhsShape) {
		err = &errs.InvalidShapeError{Dimensions: rhsShape.Dimensions,
			Reason: fmt.Sprintf("operator %q requires operands of the same dimensions, got %s and %s", op, lhsShape, rhsShape)}
		return
	}
	return lhsShape.Clone(), nil
}

func (sig *Signature) unaryOp(attributes backends.Attributes, operand shapes.Shape) (output shapes.Shape, err error) {
	switch sig.Op {
	case backends.OpTypeAffine:
		if sig.Scale, err = attributes.Float(backends.AttrScale, 1); err != nil {
			return
		}
		if sig.Bias, err = attributes.Float(backends.AttrBias, 0); err != nil {
			return
		}
		if sig.BiasAfterScale, err = attributes.BiasAfterScale(); err != nil {
			return
		}
		return operand.Clone(), nil
	case backends.OpTypeCast:
		if sig.Target, err = attributes.DType(backends.AttrDType); err != nil {
			return
		}
		return operand.WithDType(sig.Target), nil
	default:
		return operand.Clone(), nil
	}
}

// differentiable returns whether the output is differentiable with respect to inputs of the given dtype.
func (sig *Signature) differentiable(dtype dtypes.DType) bool {
	if !dtype.IsFloat() {
		return false
	}
	if sig.Op == backends.OpTypeCast {
		return sig.Target.IsFloat()
	}
	return true
}

func (sig *Signature) gradients() []backends.Parameter {
	var grads []backends.Parameter
	for _, input := range sig.Inputs {
		if sig.differentiable(input.Shape.DType) {
			grads = append(grads, backends.Parameter{Name: backends.GradientName(input.Name), Shape: input.Shape.Clone()})
		}
	}
	return grads
}

// CheckInputs verifies that inputs match exactly the specs the program was built with, in name, order,
// dtype and shape. It returns an *errs.ExecutionError otherwise.
func CheckInputs(backendName string, sig *Signature, inputs tensors.Set) error {
	if len(inputs) != len(sig.Inputs) {
		return &errs.ExecutionError{Backend: backendName, Operator: sig.Op.String(),
			Diagnostic: fmt.Sprintf("program takes %d inputs, got %d", len(sig.Inputs), len(inputs))}
	}
	for ii, input := range inputs {
		want := sig.Inputs[ii]
		if input.Name != want.Name || input.Tensor == nil || !input.Tensor.Shape().Equal(want.Shape) {
			got := "<nil>"
			if input.Tensor != nil {
				got = input.Tensor.Shape().String()
			}
			return &errs.ExecutionError{Backend: backendName, Operator: sig.Op.String(),
				Diagnostic: fmt.Sprintf("input #%d: program built for %q %s, got %q %s", ii, want.Name, want.Shape, input.Name, got)}
		}
	}
	return nil
}

// SelectOutputs returns the outputs requested (all of them if requested is empty), in the order requested.
// It returns an *errs.ExecutionError for unknown names.
func SelectOutputs(backendName string, sig *Signature, outputs tensors.Set, requested []string) (tensors.Set, error) {
	selected, err := outputs.Select(requested...)
	if err != nil {
		return nil, &errs.ExecutionError{Backend: backendName, Operator: sig.Op.String(), Diagnostic: err.Error()}
	}
	return selected, nil
}
