package tensors

import (
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/x448/float16"
)

// Float64At returns the element at the flat index converted to float64.
// Int64/Uint64 values beyond 2^53 lose precision.
func (t *Tensor) Float64At(flatIdx int) float64 {
	switch flat := t.flat.(type) {
	case []float64:
		return flat[flatIdx]
	case []float32:
		return float64(flat[flatIdx])
	case []float16.Float16:
		return float64(flat[flatIdx].Float32())
	case []int8:
		return float64(flat[flatIdx])
	case []int16:
		return float64(flat[flatIdx])
	case []int32:
		return float64(flat[flatIdx])
	case []int64:
		return float64(flat[flatIdx])
	case []uint8:
		return float64(flat[flatIdx])
	case []uint16:
		return float64(flat[flatIdx])
	case []uint32:
		return float64(flat[flatIdx])
	case []uint64:
		return float64(flat[flatIdx])
	}
	exceptions.Panicf("Float64At: unsupported flat data type %T", t.flat)
	return 0
}

// Float64s returns a copy of all elements converted to float64.
func (t *Tensor) Float64s() []float64 {
	values := make([]float64, t.Size())
	for ii := range values {
		values[ii] = t.Float64At(ii)
	}
	return values
}

// Int64At returns the integer element at the flat index as an int64.
// Uint64 values are reinterpreted (two's complement), so no bits are lost.
// It panics for float tensors.
func (t *Tensor) Int64At(flatIdx int) int64 {
	switch flat := t.flat.(type) {
	case []int8:
		return int64(flat[flatIdx])
	case []int16:
		return int64(flat[flatIdx])
	case []int32:
		return int64(flat[flatIdx])
	case []int64:
		return flat[flatIdx]
	case []uint8:
		return int64(flat[flatIdx])
	case []uint16:
		return int64(flat[flatIdx])
	case []uint32:
		return int64(flat[flatIdx])
	case []uint64:
		return int64(flat[flatIdx])
	}
	exceptions.Panicf("Int64At: tensor of dtype %s is not an integer tensor", t.shape.DType)
	return 0
}

// BitsAt returns the raw bit pattern of the element at the flat index, zero-extended to 64 bits.
// Two elements are bit-identical if and only if their BitsAt are equal.
func (t *Tensor) BitsAt(flatIdx int) uint64 {
	switch flat := t.flat.(type) {
	case []float64:
		return math.Float64bits(flat[flatIdx])
	case []float32:
		return uint64(math.Float32bits(flat[flatIdx]))
	case []float16.Float16:
		return uint64(flat[flatIdx].Bits())
	case []int8:
		return uint64(uint8(flat[flatIdx]))
	case []int16:
		return uint64(uint16(flat[flatIdx]))
	case []int32:
		return uint64(uint32(flat[flatIdx]))
	case []int64:
		return uint64(flat[flatIdx])
	case []uint8:
		return uint64(flat[flatIdx])
	case []uint16:
		return uint64(flat[flatIdx])
	case []uint32:
		return uint64(flat[flatIdx])
	case []uint64:
		return flat[flatIdx]
	}
	exceptions.Panicf("BitsAt: unsupported flat data type %T", t.flat)
	return 0
}

// FromFloat64s creates a tensor of the given dtype and dimensions, rounding each value to the
// nearest representable value of dtype. For integer dtypes, values are truncated toward zero and
// saturated to the dtype's range (NaN becomes 0).
func FromFloat64s(dtype dtypes.DType, values []float64, dimensions ...int) *Tensor {
	t := FromShape(makeShape(dtype, dimensions))
	if len(values) != t.Size() {
		exceptions.Panicf("FromFloat64s(%s): got %d values, want %d", t.shape, len(values), t.Size())
	}
	switch flat := t.flat.(type) {
	case []float64:
		copy(flat, values)
	case []float32:
		for ii, v := range values {
			flat[ii] = float32(v)
		}
	case []float16.Float16:
		for ii, v := range values {
			flat[ii] = Float16FromFloat64(v)
		}
	case []int8:
		fillSaturated(flat, values)
	case []int16:
		fillSaturated(flat, values)
	case []int32:
		fillSaturated(flat, values)
	case []int64:
		fillSaturated(flat, values)
	case []uint8:
		fillSaturated(flat, values)
	case []uint16:
		fillSaturated(flat, values)
	case []uint32:
		fillSaturated(flat, values)
	case []uint64:
		fillSaturated(flat, values)
	}
	return t
}

// FromInt64s creates an integer tensor of the given dtype keeping the low bits of each value,
// that is, with two's complement wraparound.
func FromInt64s(dtype dtypes.DType, values []int64, dimensions ...int) *Tensor {
	t := FromShape(makeShape(dtype, dimensions))
	if len(values) != t.Size() {
		exceptions.Panicf("FromInt64s(%s): got %d values, want %d", t.shape, len(values), t.Size())
	}
	switch flat := t.flat.(type) {
	case []int8:
		fillWrapped(flat, values)
	case []int16:
		fillWrapped(flat, values)
	case []int32:
		fillWrapped(flat, values)
	case []int64:
		copy(flat, values)
	case []uint8:
		fillWrapped(flat, values)
	case []uint16:
		fillWrapped(flat, values)
	case []uint32:
		fillWrapped(flat, values)
	case []uint64:
		fillWrapped(flat, values)
	default:
		exceptions.Panicf("FromInt64s: dtype %s is not an integer dtype", dtype)
	}
	return t
}

// FromIntegers creates a tensor of the given dtype from integer values, each rounded once to dtype.
// The values are int64 bit patterns: if unsigned is set they are read as uint64.
// Integer dtypes keep the low bits, like FromInt64s.
func FromIntegers(dtype dtypes.DType, values []int64, unsigned bool, dimensions ...int) *Tensor {
	if !dtype.IsFloat() {
		return FromInt64s(dtype, values, dimensions...)
	}
	t := FromShape(makeShape(dtype, dimensions))
	if len(values) != t.Size() {
		exceptions.Panicf("FromIntegers(%s): got %d values, want %d", t.shape, len(values), t.Size())
	}
	switch flat := t.flat.(type) {
	case []float64:
		fillFromIntegers(flat, values, unsigned)
	case []float32:
		fillFromIntegers(flat, values, unsigned)
	case []float16.Float16:
		// Integers with magnitude >= 2^24 overflow float16 whichever way they are rounded, and smaller
		// ones are exact in float64.
		for ii, v := range values {
			if unsigned {
				flat[ii] = Float16FromFloat64(float64(uint64(v)))
			} else {
				flat[ii] = Float16FromFloat64(float64(v))
			}
		}
	}
	return t
}

func fillFromIntegers[T float32 | float64](flat []T, values []int64, unsigned bool) {
	for ii, v := range values {
		if unsigned {
			flat[ii] = T(uint64(v))
		} else {
			flat[ii] = T(v)
		}
	}
}

// Float16FromFloat64 rounds v to the nearest float16 (ties to even).
//
// float16.Fromfloat32(float32(v)) rounds twice and can be off by one ulp, so v is first rounded to
// float32 with round-to-odd, which keeps enough information for the second rounding to be exact.
func Float16FromFloat64(v float64) float16.Float16 {
	return float16.Fromfloat32(roundToOddFloat32(v))
}

func roundToOddFloat32(v float64) float32 {
	f := float32(v)
	if float64(f) == v || math.IsNaN(v) || math.IsInf(float64(f), 0) {
		return f
	}
	if math.Abs(float64(f)) > math.Abs(v) {
		// Truncate toward zero.
		f = math.Nextafter32(f, 0)
	}
	// Inexact: set the lowest mantissa bit.
	return math.Float32frombits(math.Float32bits(f) | 1)
}

type integer interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

func fillWrapped[T integer](flat []T, values []int64) {
	for ii, v := range values {
		flat[ii] = T(v)
	}
}

func fillSaturated[T integer](flat []T, values []float64) {
	dtype := dtypes.FromGenericsType[T]()
	for ii, v := range values {
		flat[ii] = SaturatedFromFloat64[T](dtype, v)
	}
}

// SaturatedFromFloat64 converts v to the integer type T: truncating toward zero, saturating
// at the limits of dtype (which must be T's dtype), and mapping NaN to 0.
//
// Go's own conversion is implementation-defined for out-of-range values, hence the explicit checks.
func SaturatedFromFloat64[T integer](dtype dtypes.DType, v float64) T {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Trunc(v)
	low, high := dtype.Range()
	if v <= low {
		return lowest[T](dtype)
	}
	if v >= high {
		return highest[T](dtype)
	}
	return T(v)
}

// lowest and highest go through an int64 variable: a constant conversion to T must fit every type in
// the integer type set, which -128 (for uint8) doesn't.
func lowest[T integer](dtype dtypes.DType) T {
	var v int64
	switch dtype {
	case dtypes.Int8:
		v = math.MinInt8
	case dtypes.Int16:
		v = math.MinInt16
	case dtypes.Int32:
		v = math.MinInt32
	case dtypes.Int64:
		v = math.MinInt64
	}
	return T(v)
}

func highest[T integer](dtype dtypes.DType) T {
	var v int64
	switch dtype {
	case dtypes.Int8:
		v = math.MaxInt8
	case dtypes.Int16:
		v = math.MaxInt16
	case dtypes.Int32:
		v = math.MaxInt32
	case dtypes.Int64:
		v = math.MaxInt64
	default:
		// Unsigned: all bits set.
		var zero T
		return ^zero
	}
	return T(v)
}

func makeShape(dtype dtypes.DType, dimensions []int) (shape shapes.Shape) {
	return shapes.Make(dtype, dimensions...)
}
