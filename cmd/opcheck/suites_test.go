package main

import (
	"path/filepath"
	"testing"

	"github.com/gomlx/opcheck/backends"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/opcheck/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadBundled(t *testing.T, file string) map[string]*matrix.Description {
	descriptions, err := matrix.LoadDescriptions(filepath.Join("suites", file))
	require.NoError(t, err)
	byName := make(map[string]*matrix.Description, len(descriptions))
	for _, d := range descriptions {
		byName[d.Name] = d
	}
	return byName
}

func TestBundledSuitesParse(t *testing.T) {
	files, err := filepath.Glob(filepath.Join("suites", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	for _, file := range files {
		descriptions, err := matrix.LoadDescriptions(file)
		require.NoError(t, err, "file=%s", file)
		for _, d := range descriptions {
			assert.NotEmpty(t, d.Expand(), "suite=%s", d.Name)
		}
	}
}

func TestBundledCastSuite(t *testing.T) {
	suite := loadBundled(t, "cast.yaml")["cast-small"]
	require.NotNil(t, suite)
	type pair struct{ from, to dtypes.DType }
	seen := make(map[pair]bool)
	for _, record := range suite.Expand() {
		to, err := record.Attributes.DType(backends.AttrDType)
		require.NoError(t, err)
		from := record.Inputs[0].Shape.DType
		seen[pair{from, to}] = true
		assert.True(t, record.Tolerance.ExactMatch)
		assert.Equal(t, 1.0, record.Inputs[0].Low)
		assert.Equal(t, 10.0, record.Inputs[0].High)
	}
	for _, want := range []pair{
		{dtypes.Int32, dtypes.Uint8},
		{dtypes.Uint8, dtypes.Int32},
		{dtypes.Float32, dtypes.Int64},
		{dtypes.Float32, dtypes.Float32},
	} {
		assert.True(t, seen[want], "missing cast %s -> %s", want.from, want.to)
	}
}

func TestBundledScaleSuite(t *testing.T) {
	suite := loadBundled(t, "scale.yaml")["scale"]
	require.NotNil(t, suite)
	type combination struct {
		scale, bias    float64
		biasAfterScale bool
	}
	seen := make(map[combination]bool)
	for _, entry := range suite.Attributes {
		attrs := entry.Attributes
		scale, err := attrs.Float(backends.AttrScale, 1)
		require.NoError(t, err)
		bias, err := attrs.Float(backends.AttrBias, 0)
		require.NoError(t, err)
		after, err := attrs.BiasAfterScale()
		require.NoError(t, err)
		seen[combination{scale, bias, after}] = true
	}
	for _, want := range []combination{
		{0, 0, true}, {0, 0, false},
		{0.1, 10, true}, {-0.1, 10, false},
		{1, 0, true}, {-1, 0, false},
		{0, 10, true}, {0, 10, false},
	} {
		assert.True(t, seen[want], "missing attributes %+v", want)
	}

	var shapes [][]int
	for _, entry := range suite.Shapes {
		shapes = append(shapes, entry.Dimensions)
	}
	assert.Contains(t, shapes, []int{512, 256})
	assert.Contains(t, shapes, []int{16, 8, 4, 2, 1})
}
