package shapeinference

import (
	"testing"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func params(shape shapes.Shape, names ...string) []backends.Parameter {
	ps := make([]backends.Parameter, len(names))
	for ii, name := range names {
		ps[ii] = backends.Parameter{Name: name, Shape: shape}
	}
	return ps
}

func TestInferAffine(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 4)
	sig, err := Infer("test", backends.OpTypeAffine,
		backends.Attributes{"scale": 0, "bias": 10, "order": "bias_after_scale"}, params(shape, "x"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, sig.Scale)
	assert.Equal(t, 10.0, sig.Bias)
	assert.True(t, sig.BiasAfterScale)
	assert.True(t, sig.Output.Shape.Equal(shape))
	assert.Equal(t, backends.OutputName, sig.Output.Name)
	require.Len(t, sig.Gradients, 1)
	assert.Equal(t, "x@GRAD", sig.Gradients[0].Name)

	// Integer inputs are not differentiable.
	sig, err = Infer("test", backends.OpTypeAffine, nil, params(shapes.Make(dtypes.Int32, 4), "x"))
	require.NoError(t, err)
	assert.Equal(t, 1.0, sig.Scale)
	assert.Empty(t, sig.Gradients)

	_, err = Infer("test", backends.OpTypeAffine, backends.Attributes{"scale": "abc"}, params(shape, "x"))
	var attrErr *errs.InvalidAttributeError
	require.True(t, errors.As(err, &attrErr))
	assert.Equal(t, "affine", attrErr.Operator)
	assert.Equal(t, "scale", attrErr.Attribute)
}

func TestInferCast(t *testing.T) {
	sig, err := Infer("test", backends.OpTypeCast, backends.Attributes{"dtype": "int32"},
		params(shapes.Make(dtypes.Uint8, 2), "x"))
	require.NoError(t, err)
	assert.Equal(t, dtypes.Int32, sig.Output.Shape.DType)
	assert.Equal(t, []int{2}, sig.Output.Shape.Dimensions)
	assert.Empty(t, sig.Gradients)

	sig, err = Infer("test", backends.OpTypeCast, backends.Attributes{"dtype": dtypes.Float16},
		params(shapes.Make(dtypes.Float64, 2), "x"))
	require.NoError(t, err)
	assert.Len(t, sig.Gradients, 1)

	_, err = Infer("test", backends.OpTypeCast, backends.Attributes{"dtype": "complex64"},
		params(shapes.Make(dtypes.Uint8, 2), "x"))
	require.ErrorIs(t, err, errs.ErrInvalidAttribute)
	_, err = Infer("test", backends.OpTypeCast, nil, params(shapes.Make(dtypes.Uint8, 2), "x"))
	require.ErrorIs(t, err, errs.ErrInvalidAttribute)
}

func TestInferBinary(t *testing.T) {
	shape := shapes.Make(dtypes.Float64, 2, 3)
	sig, err := Infer("test", backends.OpTypeMultiply, nil, params(shape, "x", "y"))
	require.NoError(t, err)
	require.Len(t, sig.Gradients, 2)
	assert.Equal(t, "y@GRAD", sig.Gradients[1].Name)

	_, err = Infer("test", backends.OpTypeAdd, nil, []backends.Parameter{
		{Name: "x", Shape: shape}, {Name: "y", Shape: shape.WithDType(dtypes.Float32)}})
	require.ErrorIs(t, err, errs.ErrUnsupportedDType)

	_, err = Infer("test", backends.OpTypeAdd, nil, []backends.Parameter{
		{Name: "x", Shape: shape}, {Name: "y", Shape: shapes.Make(dtypes.Float64, 3, 2)}})
	require.ErrorIs(t, err, errs.ErrInvalidShape)

	_, err = Infer("test", backends.OpTypeAdd, nil, params(shape, "x"))
	require.ErrorIs(t, err, errs.ErrInvalidShape)

	_, err = Infer("test", backends.OpTypeInvalid, nil, params(shape, "x"))
	require.ErrorIs(t, err, errs.ErrUnsupportedOperator)
}

func TestCheckInputsAndSelect(t *testing.T) {
	shape := shapes.Make(dtypes.Float32, 2)
	sig, err := Infer("test", backends.OpTypeRelu, nil, params(shape, "x"))
	require.NoError(t, err)

	x := tensors.FromFlatDataAndDimensions([]float32{-1, 1}, 2)
	require.NoError(t, CheckInputs("test", sig, tensors.Set{{Name: "x", Tensor: x}}))
	require.ErrorIs(t, CheckInputs("test", sig, tensors.Set{{Name: "y", Tensor: x}}), errs.ErrExecution)
	require.ErrorIs(t, CheckInputs("test", sig, nil), errs.ErrExecution)
	wrongShape := tensors.FromFlatDataAndDimensions([]float32{-1, 1, 2}, 3)
	require.ErrorIs(t, CheckInputs("test", sig, tensors.Set{{Name: "x", Tensor: wrongShape}}), errs.ErrExecution)

	outputs := tensors.Set{{Name: "out", Tensor: x}}
	selected, err := SelectOutputs("test", sig, outputs, nil)
	require.NoError(t, err)
	assert.Len(t, selected, 1)
	_, err = SelectOutputs("test", sig, outputs, []string{"other"})
	require.ErrorIs(t, err, errs.ErrExecution)
}
