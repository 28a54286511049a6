// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package backends

import (
	"strings"

	"github.com/gomlx/opcheck/pkg/core/errs"
)

// OpType is an enum of the operators that can be built by a Backend.
type OpType int

//go:generate go tool enumer -type=OpType -trimprefix=OpType -transform=snake -text -output=gen_optype_enumer.go optype.go

const (
	OpTypeInvalid OpType = iota

	// OpTypeAffine computes scale*x+bias (attribute bias_after_scale=true, the default) or scale*(x+bias).
	OpTypeAffine

	// OpTypeCast converts x to the dtype given by the attribute "dtype".
	OpTypeCast

	// OpTypeAdd is the element-wise x+y.
	OpTypeAdd

	// OpTypeMultiply is the element-wise x*y.
	OpTypeMultiply

	// OpTypeRelu is max(x, 0).
	OpTypeRelu

	// OpTypeLast should always be kept the last, it is used as a counter/marker for OpType.
	OpTypeLast
)

// Names of inputs and outputs of the operators.
const (
	InputX = "x"
	InputY = "y"

	// OutputName is the name of the (single) output of every operator.
	OutputName = "out"

	// GradientSuffix is appended to the input name to name its gradient.
	GradientSuffix = "@GRAD"
)

// GradientName returns the name of the gradient with respect to the given input.
func GradientName(input string) string {
	return input + GradientSuffix
}

// operatorAliases are alternative names accepted by ParseOperator.
var operatorAliases = map[string]OpType{
	"scale": OpTypeAffine,
	"mul":   OpTypeMultiply,
}

// ParseOperator returns the OpType for the given operator name (case-insensitive), including aliases
// (e.g. "scale" for OpTypeAffine).
// It returns an *errs.UnsupportedOperatorError for unknown names.
func ParseOperator(name string) (OpType, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if op, found := operatorAliases[key]; found {
		return op, nil
	}
	op, err := OpTypeString(key)
	if err != nil || op == OpTypeInvalid || op == OpTypeLast {
		return OpTypeInvalid, &errs.UnsupportedOperatorError{Operator: name}
	}
	return op, nil
}

// InputNames returns the names of the inputs of the operator, in order.
func (op OpType) InputNames() []string {
	switch op {
	case OpTypeAdd, OpTypeMultiply:
		return []string{InputX, InputY}
	case OpTypeAffine, OpTypeCast, OpTypeRelu:
		return []string{InputX}
	}
	return nil
}
