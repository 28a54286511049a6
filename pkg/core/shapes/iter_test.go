package shapes

import (
	"slices"
	"testing"

	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStrides(t *testing.T) {
	assert.Equal(t, []int{6, 2, 1}, Make(dtypes.Float32, 4, 3, 2).Strides())
	assert.Nil(t, Make(dtypes.Float32).Strides())
}

func TestIter(t *testing.T) {
	shape := Make(dtypes.Int8, 2, 1, 3)
	var got [][]int
	var flats []int
	for flatIdx, indices := range shape.Iter() {
		flats = append(flats, flatIdx)
		got = append(got, slices.Clone(indices))
	}
	require.Equal(t, []int{0, 1, 2, 3, 4, 5}, flats)
	require.Equal(t, [][]int{{0, 0, 0}, {0, 0, 1}, {0, 0, 2}, {1, 0, 0}, {1, 0, 1}, {1, 0, 2}}, got)

	// Early break.
	count := 0
	for range shape.Iter() {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestUnflattenIndex(t *testing.T) {
	shape := Make(dtypes.Float16, 4, 3, 2)
	for flatIdx, indices := range shape.Iter() {
		require.Equal(t, indices, shape.UnflattenIndex(flatIdx))
		require.Equal(t, flatIdx, shape.FlattenIndex(indices))
	}
	require.Panics(t, func() { _ = shape.UnflattenIndex(24) })
	require.Panics(t, func() { _ = shape.FlattenIndex([]int{1}) })
}
