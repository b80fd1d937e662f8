//go:build !windows
// +build !windows

package fs

import (
	"os"

	"github.com/spf13/afero"
)

// Open opens an image file or disk device for checking. The file comes
// from the supplied afero filesystem so tests can run against in-memory
// images; opening a block device requires the OS-backed filesystem and
// appropriate privileges.
func Open(afs afero.Fs, path string, readOnly bool) (File, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	return afs.OpenFile(path, flag, 0)
}

// NormalizePath is a no-op outside Windows.
func NormalizePath(path string) string {
	return path
}
