// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"math"
	"testing"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/backends/reference"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/random"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func runOn(t *testing.T, backend backends.Backend, op backends.OpType, attrs backends.Attributes, gradients bool,
	inputs ...*tensors.Tensor) (out *tensors.Tensor, grads tensors.Set) {
	set := make(tensors.Set, len(inputs))
	params := make([]backends.Parameter, len(inputs))
	for ii, input := range inputs {
		name := op.InputNames()[ii]
		set[ii] = tensors.Named{Name: name, Tensor: input}
		params[ii] = backends.Parameter{Name: name, Shape: input.Shape()}
	}
	program, err := backends.Build(backend, op, attrs, params)
	require.NoError(t, err)
	defer program.Release()
	outputs, grads, err := backends.Run(backend, program, set, nil, gradients)
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	return outputs[0].Tensor, grads
}

func TestNew(t *testing.T) {
	b := must.M1(New("parallelism=2,chunk=8")).(*Backend)
	assert.Equal(t, 2, b.workers.MaxParallelism())
	assert.Equal(t, 8, b.chunkSize)
	assert.Equal(t, "go", b.Name())

	for _, config := range []string{"parallelism", "chunk=x", "chunk=0", "foo=1"} {
		_, err := New(config)
		assert.Errorf(t, err, "config %q should have failed", config)
	}

	backend, err := backends.NewWithConfig("go:chunk=4")
	require.NoError(t, err)
	assert.Equal(t, 4, backend.(*Backend).chunkSize)
}

func TestAffine(t *testing.T) {
	b := must.M1(New("")).(*Backend)
	x := tensors.FromFlatDataAndDimensions([]float32{1, 2, 3, 4}, 4)
	out, _ := runOn(t, b, backends.OpTypeAffine, backends.Attributes{"scale": 0, "bias": 10}, false, x)
	assert.Equal(t, []float32{10, 10, 10, 10}, tensors.MustCopyFlatData[float32](out))

	out, grads := runOn(t, b, backends.OpTypeAffine, backends.Attributes{"scale": 2, "bias": 1, "order": "bias_before_scale"}, true, x)
	assert.Equal(t, []float32{4, 6, 8, 10}, tensors.MustCopyFlatData[float32](out))
	require.Len(t, grads, 1)
	assert.Equal(t, []float32{2, 2, 2, 2}, tensors.MustCopyFlatData[float32](grads.Get("x@GRAD")))

	xi := tensors.FromFlatDataAndDimensions([]int8{-3, 1, 100}, 3)
	out, grads = runOn(t, b, backends.OpTypeAffine, backends.Attributes{"scale": 1.5}, true, xi)
	assert.Equal(t, []int8{-4, 1, 127}, tensors.MustCopyFlatData[int8](out))
	assert.Empty(t, grads)

	xh := tensors.FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(1), float16.Fromfloat32(-2)}, 2)
	out, grads = runOn(t, b, backends.OpTypeAffine, backends.Attributes{"scale": 3, "bias": 0.5}, true, xh)
	assert.Equal(t, []float16.Float16{float16.Fromfloat32(3.5), float16.Fromfloat32(-5.5)}, tensors.MustCopyFlatData[float16.Float16](out))
	assert.Equal(t, []float16.Float16{float16.Fromfloat32(3), float16.Fromfloat32(3)},
		tensors.MustCopyFlatData[float16.Float16](grads.Get("x@GRAD")))
	assert.Zero(t, b.NumLiveBuffers())
}

func TestCast(t *testing.T) {
	b := must.M1(New("")).(*Backend)
	x := tensors.FromFlatDataAndDimensions([]uint8{0, 255}, 2)
	out, _ := runOn(t, b, backends.OpTypeCast, backends.Attributes{"dtype": "int32"}, false, x)
	assert.Equal(t, []int32{0, 255}, tensors.MustCopyFlatData[int32](out))
	out, _ = runOn(t, b, backends.OpTypeCast, backends.Attributes{"dtype": "int8"}, false, x)
	assert.Equal(t, []int8{0, -1}, tensors.MustCopyFlatData[int8](out))

	xf := tensors.FromFlatDataAndDimensions([]float32{-1.5, 2.7, 1e10, float32(math.NaN())}, 4)
	out, _ = runOn(t, b, backends.OpTypeCast, backends.Attributes{"dtype": dtypes.Int64}, false, xf)
	assert.Equal(t, []int64{-1, 2, 10000000000, 0}, tensors.MustCopyFlatData[int64](out))
	out, _ = runOn(t, b, backends.OpTypeCast, backends.Attributes{"dtype": dtypes.Uint8}, false, xf)
	assert.Equal(t, []uint8{0, 2, 255, 0}, tensors.MustCopyFlatData[uint8](out))

	out, grads := runOn(t, b, backends.OpTypeCast, backends.Attributes{"dtype": "float16"}, true, xf)
	assert.Equal(t, float16.Fromfloat32(2.7), tensors.MustCopyFlatData[float16.Float16](out)[1])
	assert.Equal(t, []float32{1, 1, 1, 1}, tensors.MustCopyFlatData[float32](grads.Get("x@GRAD")))
	assert.Zero(t, b.NumLiveBuffers())
}

func TestBinaryAndRelu(t *testing.T) {
	b := must.M1(New("")).(*Backend)
	x := tensors.FromFlatDataAndDimensions([]float64{1, -2, 3}, 3)
	y := tensors.FromFlatDataAndDimensions([]float64{4, 5, 6}, 3)
	out, grads := runOn(t, b, backends.OpTypeMultiply, nil, true, x, y)
	assert.Equal(t, []float64{4, -10, 18}, tensors.MustCopyFlatData[float64](out))
	assert.Equal(t, []float64{4, 5, 6}, tensors.MustCopyFlatData[float64](grads.Get("x@GRAD")))
	assert.Equal(t, []float64{1, -2, 3}, tensors.MustCopyFlatData[float64](grads.Get("y@GRAD")))

	out, grads = runOn(t, b, backends.OpTypeAdd, nil, true, x, y)
	assert.Equal(t, []float64{5, 3, 9}, tensors.MustCopyFlatData[float64](out))
	assert.Equal(t, []float64{1, 1, 1}, tensors.MustCopyFlatData[float64](grads.Get("y@GRAD")))

	xi := tensors.FromFlatDataAndDimensions([]uint8{200, 1}, 2)
	yi := tensors.FromFlatDataAndDimensions([]uint8{100, 2}, 2)
	out, _ = runOn(t, b, backends.OpTypeAdd, nil, false, xi, yi)
	assert.Equal(t, []uint8{44, 3}, tensors.MustCopyFlatData[uint8](out))

	negZero := math.Copysign(0, -1)
	xr := tensors.FromFlatDataAndDimensions([]float64{-1, 2, negZero, math.NaN()}, 4)
	out, grads = runOn(t, b, backends.OpTypeRelu, nil, true, xr)
	got := tensors.MustCopyFlatData[float64](out)
	assert.Equal(t, []float64{0, 2}, got[:2])
	assert.True(t, math.Signbit(got[2]))
	assert.True(t, math.IsNaN(got[3]))
	assert.Equal(t, []float64{0, 1, 0, 0}, tensors.MustCopyFlatData[float64](grads.Get("x@GRAD")))
	assert.Zero(t, b.NumLiveBuffers())
}

func TestErrors(t *testing.T) {
	b := must.M1(New("")).(*Backend)
	_, err := b.Build(backends.OpTypeInvalid, nil, nil)
	assert.ErrorIs(t, err, errs.ErrUnsupportedOperator)

	params := []backends.Parameter{
		{Name: "x", Shape: shapes.Make(dtypes.Float32, 2)},
		{Name: "y", Shape: shapes.Make(dtypes.Float32, 3)},
	}
	_, err = b.Build(backends.OpTypeAdd, nil, params)
	assert.ErrorIs(t, err, errs.ErrInvalidShape)

	program, err := b.Build(backends.OpTypeRelu, nil, params[:1])
	require.NoError(t, err)
	assert.Equal(t, 1, b.NumLivePrograms())
	wrong := tensors.Set{{Name: "x", Tensor: tensors.FromFlatDataAndDimensions([]float32{1, 2, 3}, 3)}}
	_, _, err = b.Run(program, wrong, nil, false)
	assert.ErrorIs(t, err, errs.ErrExecution)

	program.Release()
	program.Release()
	assert.Zero(t, b.NumLivePrograms())
	right := tensors.Set{{Name: "x", Tensor: tensors.FromFlatDataAndDimensions([]float32{1, 2}, 2)}}
	_, _, err = b.Run(program, right, nil, false)
	assert.ErrorIs(t, err, errs.ErrExecution)

	other := must.M1(reference.New(""))
	refProgram := must.M1(other.Build(backends.OpTypeRelu, nil, params[:1]))
	_, _, err = b.Run(refProgram, right, nil, false)
	assert.ErrorIs(t, err, errs.ErrExecution)
	refProgram.Release()
	assert.Zero(t, b.NumLiveBuffers())
}

// TestAgainstReference runs every operation on random inputs large enough to be split in parallel chunks,
// and compares with the reference backend.
func TestAgainstReference(t *testing.T) {
	b := must.M1(New("parallelism=4,chunk=100"))
	ref := must.M1(reference.New(""))
	defer b.Finalize()
	defer ref.Finalize()
	for _, dtype := range []dtypes.DType{dtypes.Int8, dtypes.Uint16, dtypes.Int32, dtypes.Int64, dtypes.Float32, dtypes.Float64} {
		shape := shapes.Make(dtype, 7, 91)
		rng := random.New(uint64(dtype))
		low, high := random.DefaultRange(dtype)
		x := must.M1(rng.Generate(shape, low, high))
		y := must.M1(rng.Generate(shape, low, high))
		for _, op := range []backends.OpType{backends.OpTypeAdd, backends.OpTypeMultiply} {
			want, _ := runOn(t, ref, op, nil, false, x, y)
			got, _ := runOn(t, b, op, nil, false, x, y)
			assert.Truef(t, want.Equal(got), "%s on %s: want %s, got %s", op, dtype, want, got)
		}
		want, _ := runOn(t, ref, backends.OpTypeRelu, nil, false, x)
		got, _ := runOn(t, b, backends.OpTypeRelu, nil, false, x)
		assert.Truef(t, want.Equal(got), "relu on %s", dtype)

		attrs := backends.Attributes{"dtype": "int16"}
		want, _ = runOn(t, ref, backends.OpTypeCast, attrs, false, x)
		got, _ = runOn(t, b, backends.OpTypeCast, attrs, false, x)
		assert.Truef(t, want.Equal(got), "cast %s to int16", dtype)
	}
	assert.Zero(t, b.(*Backend).NumLiveBuffers())
}

// TestCastRounding checks conversions where rounding twice would be visible, against the reference.
func TestCastRounding(t *testing.T) {
	b := must.M1(New(""))
	ref := must.M1(reference.New(""))
	defer b.Finalize()
	defer ref.Finalize()
	big := int64(1<<60 + 1<<36 + 1)
	aboveTie := 1 + math.Ldexp(1, -11) + math.Ldexp(1, -40)
	for _, tc := range []struct {
		x  *tensors.Tensor
		to string
	}{
		{tensors.FromFlatDataAndDimensions([]int64{big, -big, 3}, 3), "float32"},
		{tensors.FromFlatDataAndDimensions([]uint64{math.MaxUint64, 1 << 63}, 2), "float32"},
		{tensors.FromFlatDataAndDimensions([]int32{-7, 65519, 65520}, 3), "float16"},
		{tensors.FromFlatDataAndDimensions([]float64{aboveTie, -aboveTie, 1e6}, 3), "float16"},
	} {
		attrs := backends.Attributes{"dtype": tc.to}
		want, _ := runOn(t, ref, backends.OpTypeCast, attrs, false, tc.x)
		got, _ := runOn(t, b, backends.OpTypeCast, attrs, false, tc.x)
		assert.Truef(t, want.Equal(got), "cast %s to %s: want %s, got %s", tc.x.DType(), tc.to, want, got)
	}
	got, _ := runOn(t, b, backends.OpTypeCast, backends.Attributes{"dtype": "float16"}, false,
		tensors.FromFlatDataAndDimensions([]float64{aboveTie}, 1))
	assert.Equal(t, uint64(0x3C01), got.BitsAt(0))
	assert.Zero(t, b.(*Backend).NumLiveBuffers())
}
