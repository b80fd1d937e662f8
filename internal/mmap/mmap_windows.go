//go:build windows
// +build windows

package mmap

import (
	"errors"
	"os"
)

var errUnsupported = errors.New("mmap is not supported on this platform")

// Region is a stub on Windows; Map always fails and callers take the
// read-buffer fallback path.
type Region struct {
	Data []byte
}

func Map(f *os.File, offset int64, length int, writable bool) (*Region, error) {
	return nil, errUnsupported
}

func (r *Region) Sync() error  { return nil }
func (r *Region) Close() error { return nil }
