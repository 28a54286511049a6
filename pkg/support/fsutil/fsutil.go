// Package fsutil has file system helpers for the command line tools.
package fsutil

import (
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ReplaceTildeInDir replaces a leading "~" (current user) or "~name" (user name) by the corresponding home directory.
// Other paths are returned unchanged.
func ReplaceTildeInDir(dir string) (string, error) {
	if !strings.HasPrefix(dir, "~") {
		return dir, nil
	}
	userName, rest, _ := strings.Cut(dir[1:], "/")
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to find the home directory for %q", dir)
	}
	return filepath.Join(usr.HomeDir, rest), nil
}
