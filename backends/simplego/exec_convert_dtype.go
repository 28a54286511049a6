// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/backends/shapeinference"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/x448/float16"
)

var (
	convertDTypePairMap  = NewDTypePairMap[executor]("Cast")
	dispatchCastGradient = NewDTypeDispatcher[gradientExecutor]("CastGradient")
)

func init() {
	setNodeExecutor(backends.OpTypeCast, func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
		convertDTypePairMap.Get(inputs[0].shape.DType, output.shape.DType)(b, sig, inputs, output)
	})
	setGradientExecutor(backends.OpTypeCast, func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, inputIdx int, output *Buffer) {
		dispatchCastGradient.Get(inputs[inputIdx].shape.DType)(b, sig, inputs, inputIdx, output)
	})

	registerConvertFrom[int8](dtypes.Int8)
	registerConvertFrom[int16](dtypes.Int16)
	registerConvertFrom[int32](dtypes.Int32)
	registerConvertFrom[int64](dtypes.Int64)
	registerConvertFrom[uint8](dtypes.Uint8)
	registerConvertFrom[uint16](dtypes.Uint16)
	registerConvertFrom[uint32](dtypes.Uint32)
	registerConvertFrom[uint64](dtypes.Uint64)
	registerConvertFrom[float32](dtypes.Float32)
	registerConvertFrom[float64](dtypes.Float64)

	convertDTypePairMap.Register(dtypes.Float16, dtypes.Float16, execConvertCopy[float16.Float16])
	convertDTypePairMap.Register(dtypes.Float16, dtypes.Float32, execConvertFromFloat16[float32])
	convertDTypePairMap.Register(dtypes.Float16, dtypes.Float64, execConvertFromFloat16[float64])
	registerConvertFromFloat16ToInt[int8](dtypes.Int8)
	registerConvertFromFloat16ToInt[int16](dtypes.Int16)
	registerConvertFromFloat16ToInt[int32](dtypes.Int32)
	registerConvertFromFloat16ToInt[int64](dtypes.Int64)
	registerConvertFromFloat16ToInt[uint8](dtypes.Uint8)
	registerConvertFromFloat16ToInt[uint16](dtypes.Uint16)
	registerConvertFromFloat16ToInt[uint32](dtypes.Uint32)
	registerConvertFromFloat16ToInt[uint64](dtypes.Uint64)

	dispatchCastGradient.Register(dtypes.Float32, execAddGradient[float32])
	dispatchCastGradient.Register(dtypes.Float64, execAddGradient[float64])
	dispatchCastGradient.Register(dtypes.Float16, withFloat32Gradient(execAddGradient[float32]))
}

// registerConvertFrom registers all conversions from the native type FromT.
func registerConvertFrom[FromT PODNumericConstraints](from dtypes.DType) {
	registerConvertPair[FromT, int8](from, dtypes.Int8)
	registerConvertPair[FromT, int16](from, dtypes.Int16)
	registerConvertPair[FromT, int32](from, dtypes.Int32)
	registerConvertPair[FromT, int64](from, dtypes.Int64)
	registerConvertPair[FromT, uint8](from, dtypes.Uint8)
	registerConvertPair[FromT, uint16](from, dtypes.Uint16)
	registerConvertPair[FromT, uint32](from, dtypes.Uint32)
	registerConvertPair[FromT, uint64](from, dtypes.Uint64)
	convertDTypePairMap.Register(from, dtypes.Float32, execConvertPlain[FromT, float32])
	convertDTypePairMap.Register(from, dtypes.Float64, execConvertPlain[FromT, float64])
	convertDTypePairMap.Register(from, dtypes.Float16, execConvertToFloat16[FromT])
}

// registerConvertPair picks the conversion to the integer type ToT: wrapping from integers and
// saturating from floats.
func registerConvertPair[FromT PODNumericConstraints, ToT PODIntegerConstraints](from, to dtypes.DType) {
	if from.IsFloat() {
		convertDTypePairMap.Register(from, to, execConvertSaturated[FromT, ToT])
	} else {
		convertDTypePairMap.Register(from, to, execConvertPlain[FromT, ToT])
	}
}

func registerConvertFromFloat16ToInt[ToT PODIntegerConstraints](to dtypes.DType) {
	convertDTypePairMap.Register(dtypes.Float16, to, execConvertFromFloat16Saturated[ToT])
}

// execConvertPlain uses Go's conversion: integer narrowing wraps around.
func execConvertPlain[FromT, ToT PODNumericConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	x, out := inputs[0].flat.([]FromT), output.flat.([]ToT)
	b.parallelFor(len(x), func(start, end int) {
		for ii := start; ii < end; ii++ {
			out[ii] = ToT(x[ii])
		}
	})
}

// execConvertSaturated truncates floats toward zero, clamps to the range of ToT and maps NaN to 0.
func execConvertSaturated[FromT PODNumericConstraints, ToT PODIntegerConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	x, out := inputs[0].flat.([]FromT), output.flat.([]ToT)
	dtype := output.shape.DType
	b.parallelFor(len(x), func(start, end int) {
		for ii := start; ii < end; ii++ {
			out[ii] = tensors.SaturatedFromFloat64[ToT](dtype, float64(x[ii]))
		}
	})
}

func execConvertCopy[T any](_ *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	copy(output.flat.([]T), inputs[0].flat.([]T))
}

// execConvertToFloat16 rounds once: float64 holds exactly every source value below the float16 overflow threshold.
func execConvertToFloat16[FromT PODNumericConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	x, out := inputs[0].flat.([]FromT), output.flat.([]float16.Float16)
	b.parallelFor(len(x), func(start, end int) {
		for ii := start; ii < end; ii++ {
			out[ii] = tensors.Float16FromFloat64(float64(x[ii]))
		}
	})
}

func execConvertFromFloat16[ToT PODFloatConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	x, out := inputs[0].flat.([]float16.Float16), output.flat.([]ToT)
	b.parallelFor(len(x), func(start, end int) {
		for ii := start; ii < end; ii++ {
			out[ii] = ToT(x[ii].Float32())
		}
	})
}

func execConvertFromFloat16Saturated[ToT PODIntegerConstraints](b *Backend, _ *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
	x, out := inputs[0].flat.([]float16.Float16), output.flat.([]ToT)
	dtype := output.shape.DType
	b.parallelFor(len(x), func(start, end int) {
		for ii := start; ii < end; ii++ {
			out[ii] = tensors.SaturatedFromFloat64[ToT](dtype, float64(x[ii].Float32()))
		}
	})
}
