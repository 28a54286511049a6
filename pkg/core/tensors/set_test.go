package tensors

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	x := FromFlatDataAndDimensions([]float32{1, 2}, 2)
	y := FromFlatDataAndDimensions([]int32{3, 4, 5}, 3)
	set := Set{{Name: "x", Tensor: x}, {Name: "y", Tensor: y}}

	assert.Equal(t, []string{"x", "y"}, set.Names())
	assert.Same(t, y, set.Get("y"))
	assert.Nil(t, set.Get("z"))
	assert.Equal(t, 1, set.Index("y"))
	assert.Equal(t, -1, set.Index("z"))
	assert.Equal(t, uintptr(8+12), set.Memory())
	assert.Equal(t, "{x=(Float32)[2], y=(Int32)[3]}", set.String())

	selected, err := set.Select("y", "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, selected.Names())
	_, err = set.Select("z")
	require.Error(t, err)

	set.Freeze()
	assert.True(t, x.IsFrozen())
	assert.True(t, y.IsFrozen())
}
