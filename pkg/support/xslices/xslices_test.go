package xslices

import (
	"flag"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"bias", "dtype", "scale"}, SortedKeys(map[string]any{"scale": 2, "bias": 1, "dtype": "int8"}))
	assert.Empty(t, SortedKeys(map[int]bool{}))
}

func TestFlag(t *testing.T) {
	f := &sliceFlag[int]{values: []int{1}, parserFn: strconv.Atoi}
	var _ flag.Value = f
	assert.Equal(t, "1", f.String())
	require.NoError(t, f.Set("3, 4,5"))
	assert.Equal(t, []int{3, 4, 5}, f.values)
	assert.Equal(t, "3,4,5", f.String())
	require.NoError(t, f.Set(""))
	assert.Empty(t, f.values)
	assert.Error(t, f.Set("1,x"))
}
