// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"math"
	"testing"

	"github.com/gomlx/opcheck/pkg/core/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
	"gopkg.in/yaml.v3"
)

func TestMapOfNames(t *testing.T) {
	assert.Equal(t, Float16, MapOfNames["Float16"])
	assert.Equal(t, Float16, MapOfNames["float16"])
	assert.Equal(t, Float16, MapOfNames["F16"])
	assert.Equal(t, Float16, MapOfNames["f16"])
	assert.Equal(t, Uint8, MapOfNames["uint8"])
	assert.Equal(t, Float64, MapOfNames["double"])
}

func TestParse(t *testing.T) {
	dtype, err := Parse("int64")
	require.NoError(t, err)
	assert.Equal(t, Int64, dtype)

	dtype, err = Parse(" Float32 ")
	require.NoError(t, err)
	assert.Equal(t, Float32, dtype)

	for _, name := range []string{"bool", "bfloat16", "complex64", "", "InvalidDType"} {
		_, err = Parse(name)
		require.Errorf(t, err, "Parse(%q) should fail", name)
		assert.ErrorIs(t, err, errs.ErrUnsupportedDType)
	}
}

func TestYAML(t *testing.T) {
	var values struct {
		DTypes []DType `yaml:"dtypes"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("dtypes: [uint8, F16, float64]"), &values))
	assert.Equal(t, []DType{Uint8, Float16, Float64}, values.DTypes)

	err := yaml.Unmarshal([]byte("dtypes: [bool]"), &values)
	require.Error(t, err)

	out, err := yaml.Marshal([]DType{Uint8})
	require.NoError(t, err)
	assert.Equal(t, "- uint8\n", string(out))

	out, err = yaml.Marshal([]DType{Float16, Int64})
	require.NoError(t, err)
	assert.Equal(t, "- float16\n- int64\n", string(out))
}

func TestValidate(t *testing.T) {
	for _, dtype := range All() {
		require.NoError(t, dtype.Validate())
	}
	assert.Len(t, All(), 11)
	require.ErrorIs(t, InvalidDType.Validate(), errs.ErrUnsupportedDType)
	require.ErrorIs(t, DType(77).Validate(), errs.ErrUnsupportedDType)
	assert.Equal(t, "DType(77)", DType(77).String())
}

func TestFromGenericsType(t *testing.T) {
	assert.Equal(t, Uint16, FromGenericsType[uint16]())
	assert.Equal(t, Float16, FromGenericsType[float16.Float16]())
	assert.Equal(t, Int64, FromGenericsType[int64]())
}

func TestSize(t *testing.T) {
	assert.Equal(t, 8, Int64.Size())
	assert.Equal(t, 4, Float32.Size())
	assert.Equal(t, 2, Float16.Size())
	assert.Equal(t, 16, Uint16.Bits())
}

func TestRange(t *testing.T) {
	low, high := Uint8.Range()
	assert.Equal(t, 0.0, low)
	assert.Equal(t, 255.0, high)
	low, high = Int16.Range()
	assert.Equal(t, -32768.0, low)
	assert.Equal(t, 32767.0, high)
	_, high = Float16.Range()
	assert.Equal(t, float64(float16.Fromfloat32(65504).Float32()), high)
	_, high = Float32.Range()
	assert.Equal(t, float64(math.MaxFloat32), high)
}
