package tensors

import (
	"math"
	"testing"

	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromFloat64s(t *testing.T) {
	tensor := FromFloat64s(dtypes.Int8, []float64{-1000, -1.7, 1.7, 1000, math.NaN()}, 5)
	assert.Equal(t, []int8{-128, -1, 1, 127, 0}, MustCopyFlatData[int8](tensor))

	tensor = FromFloat64s(dtypes.Uint8, []float64{-3, 255.9, 300}, 3)
	assert.Equal(t, []uint8{0, 255, 255}, MustCopyFlatData[uint8](tensor))

	tensor = FromFloat64s(dtypes.Uint64, []float64{1e30}, 1)
	assert.Equal(t, uint64(math.MaxUint64), MustCopyFlatData[uint64](tensor)[0])

	tensor = FromFloat64s(dtypes.Float16, []float64{0.1, 70000}, 2)
	values := tensor.Float64s()
	assert.InDelta(t, 0.1, values[0], 1e-4)
	assert.True(t, math.IsInf(values[1], 1))

	require.Panics(t, func() { FromFloat64s(dtypes.Float32, []float64{1, 2}, 3) })
}

func TestFromInt64s(t *testing.T) {
	tensor := FromInt64s(dtypes.Uint8, []int64{-1, 256, 257}, 3)
	assert.Equal(t, []uint8{255, 0, 1}, MustCopyFlatData[uint8](tensor))
	assert.Equal(t, int64(255), tensor.Int64At(0))

	tensor = FromInt64s(dtypes.Uint64, []int64{-1}, 1)
	assert.Equal(t, int64(-1), tensor.Int64At(0))
	assert.Equal(t, uint64(math.MaxUint64), tensor.BitsAt(0))

	require.Panics(t, func() { FromInt64s(dtypes.Float32, []int64{1}, 1) })
}

func TestBitsAt(t *testing.T) {
	zero := FromFloat64s(dtypes.Float32, []float64{0}, 1)
	negZero := FromFloat64s(dtypes.Float32, []float64{math.Copysign(0, -1)}, 1)
	assert.Equal(t, zero.Float64At(0), negZero.Float64At(0))
	assert.NotEqual(t, zero.BitsAt(0), negZero.BitsAt(0))

	minusOne := FromInt64s(dtypes.Int16, []int64{-1}, 1)
	assert.Equal(t, uint64(0xFFFF), minusOne.BitsAt(0))
}

func TestSaturatedFromFloat64Limits(t *testing.T) {
	low, high := math.Inf(-1), math.Inf(1)
	assert.Equal(t, int8(math.MinInt8), SaturatedFromFloat64[int8](dtypes.Int8, low))
	assert.Equal(t, int8(math.MaxInt8), SaturatedFromFloat64[int8](dtypes.Int8, high))
	assert.Equal(t, int16(math.MinInt16), SaturatedFromFloat64[int16](dtypes.Int16, low))
	assert.Equal(t, int16(math.MaxInt16), SaturatedFromFloat64[int16](dtypes.Int16, high))
	assert.Equal(t, int32(math.MinInt32), SaturatedFromFloat64[int32](dtypes.Int32, low))
	assert.Equal(t, int32(math.MaxInt32), SaturatedFromFloat64[int32](dtypes.Int32, high))
	assert.Equal(t, int64(math.MinInt64), SaturatedFromFloat64[int64](dtypes.Int64, low))
	assert.Equal(t, int64(math.MaxInt64), SaturatedFromFloat64[int64](dtypes.Int64, high))
	assert.Equal(t, uint8(0), SaturatedFromFloat64[uint8](dtypes.Uint8, low))
	assert.Equal(t, uint8(math.MaxUint8), SaturatedFromFloat64[uint8](dtypes.Uint8, high))
	assert.Equal(t, uint16(0), SaturatedFromFloat64[uint16](dtypes.Uint16, low))
	assert.Equal(t, uint16(math.MaxUint16), SaturatedFromFloat64[uint16](dtypes.Uint16, high))
	assert.Equal(t, uint32(0), SaturatedFromFloat64[uint32](dtypes.Uint32, low))
	assert.Equal(t, uint32(math.MaxUint32), SaturatedFromFloat64[uint32](dtypes.Uint32, high))
	assert.Equal(t, uint64(0), SaturatedFromFloat64[uint64](dtypes.Uint64, low))
	assert.Equal(t, uint64(math.MaxUint64), SaturatedFromFloat64[uint64](dtypes.Uint64, high))
	assert.Equal(t, int16(-7), SaturatedFromFloat64[int16](dtypes.Int16, -7.9))
}

func TestFromIntegers(t *testing.T) {
	// 2^60 + 2^36 + 1 is just above half a float32 ulp: going through float64 first would drop the
	// +1 and round the resulting tie down to 2^60.
	v := int64(1<<60 + 1<<36 + 1)
	tensor := FromIntegers(dtypes.Float32, []int64{v, -3}, false, 2)
	assert.Equal(t, []float32{float32(v), -3}, MustCopyFlatData[float32](tensor))
	assert.NotEqual(t, float32(float64(v)), float32(v))

	tensor = FromIntegers(dtypes.Float64, []int64{-1}, true, 1)
	assert.Equal(t, float64(math.MaxUint64), MustCopyFlatData[float64](tensor)[0])

	tensor = FromIntegers(dtypes.Float16, []int64{-1, 1 << 20}, false, 2)
	values := tensor.Float64s()
	assert.Equal(t, -1.0, values[0])
	assert.True(t, math.IsInf(values[1], 1))

	tensor = FromIntegers(dtypes.Uint8, []int64{-1}, false, 1)
	assert.Equal(t, []uint8{255}, MustCopyFlatData[uint8](tensor))
}

func TestFloat16FromFloat64(t *testing.T) {
	// Slightly above the midpoint between 1 and the next float16: rounding first to float32 lands exactly
	// on the midpoint, and the tie would then round down to 1.
	above := 1 + math.Ldexp(1, -11) + math.Ldexp(1, -40)
	assert.Equal(t, uint16(0x3C01), Float16FromFloat64(above).Bits())
	assert.Equal(t, uint16(0xBC01), Float16FromFloat64(-above).Bits())
	assert.Equal(t, uint16(0x3C00), Float16FromFloat64(1+math.Ldexp(1, -11)).Bits())
	assert.Equal(t, uint16(0x3C00), Float16FromFloat64(1).Bits())
	assert.Equal(t, float32(-2.5), Float16FromFloat64(-2.5).Float32())
	assert.True(t, Float16FromFloat64(1e10).IsInf(1))
	assert.True(t, Float16FromFloat64(math.NaN()).IsNaN())
	assert.Equal(t, uint16(0x8000), Float16FromFloat64(math.Copysign(0, -1)).Bits())
}
