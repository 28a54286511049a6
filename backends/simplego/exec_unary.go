// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/backends/shapeinference"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
)

// Affine ===========================================================================================================

var (
	dispatchAffine         = NewDTypeDispatcher[executor]("Affine")
	dispatchAffineGradient = NewDTypeDispatcher[gradientExecutor]("AffineGradient")
)

func init() {
	setNodeExecutor(backends.OpTypeAffine, func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
		dispatchAffine.Get(inputs[0].shape.DType)(b, sig, inputs, output)
	})
	setGradientExecutor(backends.OpTypeAffine, func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, inputIdx int, output *Buffer) {
		dispatchAffineGradient.Get(inputs[inputIdx].shape.DType)(b, sig, inputs, inputIdx, output)
	})

	dispatchAffine.Register(dtypes.Int8, execAffineInt[int8])
	dispatchAffine.Register(dtypes.Int16, execAffineInt[int16])
	dispatchAffine.Register(dtypes.Int32, execAffineInt[int32])
	dispatchAffine.Register(dtypes.Int64, execAffineInt[int64])
	dispatchAffine.Register(dtypes.Uint8, execAffineInt[uint8])
	dispatchAffine.Register(dtypes.Uint16, execAffineInt[uint16])
	dispatchAffine.Register(dtypes.Uint32, execAffineInt[uint32])
	dispatchAffine.Register(dtypes.Uint64, execAffineInt[uint64])
	dispatchAffine.Register(dtypes.Float32, execAffineFloat[float32])
	dispatchAffine.Register(dtypes.Float64, execAffineFloat[float64])
	dispatchAffine.Register(dtypes.Float16, withFloat32(execAffineFloat[float32]))

	dispatchAffineGradient.Register(dtypes.Float32, execAffineGradient[float32])
	dispatchAffineGradient.Register(dtypes.Float64, execAffineGradient[float64])
	dispatchAffineGradient.Register(dtypes.Float16, withFloat32Gradient(execAffineGradient[float32]))
}

// execAffineFloat computes in the native float width.
func execAffineFloat[T PODFloatConstraints](b *Backend, sig *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	x, out := inputs[0].flat.([]T), output.flat.([]T)
	scale, bias := T(sig.Scale), T(sig.Bias)
	b.parallelFor(len(x), func(start, end int) {
		if sig.BiasAfterScale {
			for ii := start; ii < end; ii++ {
				out[ii] = scale*x[ii] + bias
			}
		} else {
			for ii := start; ii < end; ii++ {
				out[ii] = scale * (x[ii] + bias)
			}
		}
	})
}

// execAffineInt computes in float64, then truncates toward zero and saturates to T.
func execAffineInt[T PODIntegerConstraints](b *Backend, sig *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	x, out := inputs[0].flat.([]T), output.flat.([]T)
	dtype := output.shape.DType
	b.parallelFor(len(x), func(start, end int) {
		for ii := start; ii < end; ii++ {
			var v float64
			if sig.BiasAfterScale {
				// The explicit conversion rounds the product before the addition, preventing a fused multiply-add.
				v = float64(float64(x[ii])*sig.Scale) + sig.Bias
			} else {
				v = (float64(x[ii]) + sig.Bias) * sig.Scale
			}
			out[ii] = tensors.SaturatedFromFloat64[T](dtype, v)
		}
	})
}

func execAffineGradient[T PODFloatConstraints](b *Backend, sig *shapeinference.Signature, _ []*Buffer, _ int, output *Buffer) {
	fill(b, output.flat.([]T), T(sig.Scale))
}

// fill the slice with value.
func fill[T PODNumericConstraints](b *Backend, flat []T, value T) {
	b.parallelFor(len(flat), func(start, end int) {
		for ii := start; ii < end; ii++ {
			flat[ii] = value
		}
	})
}

// Relu =============================================================================================================

var (
	dispatchRelu         = NewDTypeDispatcher[executor]("Relu")
	dispatchReluGradient = NewDTypeDispatcher[gradientExecutor]("ReluGradient")
)

func init() {
	setNodeExecutor(backends.OpTypeRelu, func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
		dispatchRelu.Get(inputs[0].shape.DType)(b, sig, inputs, output)
	})
	setGradientExecutor(backends.OpTypeRelu, func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, inputIdx int, output *Buffer) {
		dispatchReluGradient.Get(inputs[inputIdx].shape.DType)(b, sig, inputs, inputIdx, output)
	})

	dispatchRelu.Register(dtypes.Int8, execRelu[int8])
	dispatchRelu.Register(dtypes.Int16, execRelu[int16])
	dispatchRelu.Register(dtypes.Int32, execRelu[int32])
	dispatchRelu.Register(dtypes.Int64, execRelu[int64])
	dispatchRelu.Register(dtypes.Uint8, execRelu[uint8])
	dispatchRelu.Register(dtypes.Uint16, execRelu[uint16])
	dispatchRelu.Register(dtypes.Uint32, execRelu[uint32])
	dispatchRelu.Register(dtypes.Uint64, execRelu[uint64])
	dispatchRelu.Register(dtypes.Float32, execRelu[float32])
	dispatchRelu.Register(dtypes.Float64, execRelu[float64])
	dispatchRelu.Register(dtypes.Float16, withFloat32(execRelu[float32]))

	dispatchReluGradient.Register(dtypes.Float32, execReluGradient[float32])
	dispatchReluGradient.Register(dtypes.Float64, execReluGradient[float64])
	dispatchReluGradient.Register(dtypes.Float16, withFloat32Gradient(execReluGradient[float32]))
}

// execRelu keeps NaN and -0 as they are.
func execRelu[T PODNumericConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	x, out := inputs[0].flat.([]T), output.flat.([]T)
	b.parallelFor(len(x), func(start, end int) {
		for ii := start; ii < end; ii++ {
			v := x[ii]
			if v < 0 {
				v = 0
			}
			out[ii] = v
		}
	})
}

func execReluGradient[T PODFloatConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, inputIdx int, output *Buffer) {
	x, grad := inputs[inputIdx].flat.([]T), output.flat.([]T)
	b.parallelFor(len(x), func(start, end int) {
		for ii := start; ii < end; ii++ {
			if x[ii] > 0 {
				grad[ii] = 1
			} else {
				grad[ii] = 0
			}
		}
	})
}
