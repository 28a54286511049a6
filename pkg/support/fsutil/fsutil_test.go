package fsutil

import (
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplaceTildeInDir(t *testing.T) {
	usr, err := user.Current()
	if err != nil {
		t.Skipf("no current user: %v", err)
	}
	for _, pair := range [][2]string{
		{"", ""},
		{"/tmp/dumps", "/tmp/dumps"},
		{"relative/~", "relative/~"},
		{"~", usr.HomeDir},
		{"~/dumps", filepath.Join(usr.HomeDir, "dumps")},
		{"~" + usr.Username + "/x", filepath.Join(usr.HomeDir, "x")},
	} {
		dir, want := pair[0], pair[1]
		got, err := ReplaceTildeInDir(dir)
		require.NoError(t, err, dir)
		assert.Equal(t, want, got, dir)
	}

	_, err = ReplaceTildeInDir("~no-such-user-opcheck/x")
	assert.Error(t, err)
}
