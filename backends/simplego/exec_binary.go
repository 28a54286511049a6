// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/backends/shapeinference"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
)

var (
	dispatchAdd      = NewDTypeDispatcher[executor]("Add")
	dispatchMultiply = NewDTypeDispatcher[executor]("Multiply")

	dispatchAddGradient      = NewDTypeDispatcher[gradientExecutor]("AddGradient")
	dispatchMultiplyGradient = NewDTypeDispatcher[gradientExecutor]("MultiplyGradient")
)

func init() {
	setNodeExecutor(backends.OpTypeAdd, binaryExecutor(dispatchAdd))
	setNodeExecutor(backends.OpTypeMultiply, binaryExecutor(dispatchMultiply))
	setGradientExecutor(backends.OpTypeAdd, binaryGradientExecutor(dispatchAddGradient))
	setGradientExecutor(backends.OpTypeMultiply, binaryGradientExecutor(dispatchMultiplyGradient))

	registerBinary[int8](dtypes.Int8)
	registerBinary[int16](dtypes.Int16)
	registerBinary[int32](dtypes.Int32)
	registerBinary[int64](dtypes.Int64)
	registerBinary[uint8](dtypes.Uint8)
	registerBinary[uint16](dtypes.Uint16)
	registerBinary[uint32](dtypes.Uint32)
	registerBinary[uint64](dtypes.Uint64)
	registerBinary[float32](dtypes.Float32)
	registerBinary[float64](dtypes.Float64)
	dispatchAdd.Register(dtypes.Float16, withFloat32(execAdd[float32]))
	dispatchMultiply.Register(dtypes.Float16, withFloat32(execMultiply[float32]))

	dispatchAddGradient.Register(dtypes.Float32, execAddGradient[float32])
	dispatchAddGradient.Register(dtypes.Float64, execAddGradient[float64])
	dispatchAddGradient.Register(dtypes.Float16, withFloat32Gradient(execAddGradient[float32]))
	dispatchMultiplyGradient.Register(dtypes.Float32, execMultiplyGradient[float32])
	dispatchMultiplyGradient.Register(dtypes.Float64, execMultiplyGradient[float64])
	dispatchMultiplyGradient.Register(dtypes.Float16, withFloat32Gradient(execMultiplyGradient[float32]))
}

func registerBinary[T PODNumericConstraints](dtype dtypes.DType) {
	dispatchAdd.Register(dtype, execAdd[T])
	dispatchMultiply.Register(dtype, execMultiply[T])
}

// binaryExecutor dispatches on the dtype of the first operand; both operands share the dtype.
func binaryExecutor(dispatcher *DTypeDispatcher[executor]) executor {
	return func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
		dispatcher.Get(inputs[0].shape.DType)(b, sig, inputs, output)
	}
}

func binaryGradientExecutor(dispatcher *DTypeDispatcher[gradientExecutor]) gradientExecutor {
	return func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, inputIdx int, output *Buffer) {
		dispatcher.Get(inputs[inputIdx].shape.DType)(b, sig, inputs, inputIdx, output)
	}
}

// execAdd wraps around on integer overflow, like Go's own arithmetic.
func execAdd[T PODNumericConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	lhs, rhs, out := inputs[0].flat.([]T), inputs[1].flat.([]T), output.flat.([]T)
	b.parallelFor(len(out), func(start, end int) {
		for ii := start; ii < end; ii++ {
			out[ii] = lhs[ii] + rhs[ii]
		}
	})
}

func execMultiply[T PODNumericConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	lhs, rhs, out := inputs[0].flat.([]T), inputs[1].flat.([]T), output.flat.([]T)
	b.parallelFor(len(out), func(start, end int) {
		for ii := start; ii < end; ii++ {
			out[ii] = lhs[ii] * rhs[ii]
		}
	})
}

func execAddGradient[T PODFloatConstraints](b *Backend, _ *shapeinference.Signature, _ []*Buffer, _ int, output *Buffer) {
	fill(b, output.flat.([]T), 1)
}

// execMultiplyGradient: the gradient with respect to one operand is the other operand.
func execMultiplyGradient[T PODFloatConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, inputIdx int, output *Buffer) {
	other := inputs[1-inputIdx].flat.([]T)
	grad := output.flat.([]T)
	b.parallelFor(len(grad), func(start, end int) {
		copy(grad[start:end], other[start:end])
	})
}
