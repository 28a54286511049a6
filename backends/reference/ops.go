package reference

import (
	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/backends/shapeinference"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"gonum.org/v1/gonum/floats"
)

// int64s decodes the integer tensor to int64, keeping the bits of uint64 values.
func int64s(t *tensors.Tensor) []int64 {
	values := make([]int64, t.Size())
	for ii := range values {
		values[ii] = t.Int64At(ii)
	}
	return values
}

// evaluate the operator: integer arithmetic is done on int64 (wrapping like the narrower types do, once the
// result is truncated to its low bits) and everything else on float64, rounded once to the output dtype.
func evaluate(sig *shapeinference.Signature, inputs tensors.Set) *tensors.Tensor {
	x := inputs[0].Tensor
	dtype, dims := sig.Output.Shape.DType, sig.Output.Shape.Dimensions
	isInt := x.DType().IsInt()

	switch sig.Op {
	case backends.OpTypeAffine:
		values := x.Float64s()
		if sig.BiasAfterScale {
			floats.Scale(sig.Scale, values)
			floats.AddConst(sig.Bias, values)
		} else {
			floats.AddConst(sig.Bias, values)
			floats.Scale(sig.Scale, values)
		}
		return tensors.FromFloat64s(dtype, values, dims...)

	case backends.OpTypeCast:
		if isInt {
			return tensors.FromIntegers(dtype, int64s(x), x.DType().IsUnsigned(), dims...)
		}
		return tensors.FromFloat64s(dtype, x.Float64s(), dims...)

	case backends.OpTypeAdd, backends.OpTypeMultiply:
		y := inputs[1].Tensor
		if isInt {
			lhs, rhs := int64s(x), int64s(y)
			for ii := range lhs {
				if sig.Op == backends.OpTypeAdd {
					lhs[ii] += rhs[ii]
				} else {
					lhs[ii] *= rhs[ii]
				}
			}
			return tensors.FromInt64s(dtype, lhs, dims...)
		}
		lhs, rhs := x.Float64s(), y.Float64s()
		if sig.Op == backends.OpTypeAdd {
			floats.Add(lhs, rhs)
		} else {
			floats.Mul(lhs, rhs)
		}
		return tensors.FromFloat64s(dtype, lhs, dims...)

	case backends.OpTypeRelu:
		if isInt {
			values := int64s(x)
			if !dtype.IsUnsigned() {
				for ii, v := range values {
					if v < 0 {
						values[ii] = 0
					}
				}
			}
			return tensors.FromInt64s(dtype, values, dims...)
		}
		values := x.Float64s()
		for ii, v := range values {
			// NaN and -0 are kept as they are.
			if v < 0 {
				values[ii] = 0
			}
		}
		return tensors.FromFloat64s(dtype, values, dims...)
	}
	panic("reference: unknown operator " + sig.Op.String())
}

// gradientsOf returns the gradient of sum(out) with respect to each differentiable input.
func gradientsOf(sig *shapeinference.Signature, inputs tensors.Set) tensors.Set {
	grads := make(tensors.Set, 0, len(sig.Gradients))
	for _, spec := range sig.Gradients {
		inputIdx := inputs.Index(spec.Name[:len(spec.Name)-len(backends.GradientSuffix)])
		x := inputs[inputIdx].Tensor
		var values []float64
		switch sig.Op {
		case backends.OpTypeAffine:
			values = make([]float64, x.Size())
			floats.AddConst(sig.Scale, values)
		case backends.OpTypeCast, backends.OpTypeAdd:
			values = make([]float64, x.Size())
			floats.AddConst(1, values)
		case backends.OpTypeMultiply:
			// d(x*y)/dx = y and vice versa.
			values = inputs[1-inputIdx].Tensor.Float64s()
		case backends.OpTypeRelu:
			values = x.Float64s()
			for ii, v := range values {
				if v > 0 {
					values[ii] = 1
				} else {
					values[ii] = 0
				}
			}
		}
		grads = append(grads, tensors.Named{Name: spec.Name, Tensor: tensors.FromFloat64s(spec.Shape.DType, values, spec.Shape.Dimensions...)})
	}
	return grads
}
