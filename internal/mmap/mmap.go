//go:build !windows
// +build !windows

package mmap

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Region is a shared memory mapping of a byte range of a file or raw
// device. Writes through Data go straight to the underlying store.
type Region struct {
	Data []byte // The requested byte range

	full     []byte // The page-aligned mapping Data is a sub-slice of
	writable bool
}

// Map creates a shared mapping of length bytes of f starting at offset.
//
// The offset does not need to be page-aligned: the mapping is extended
// downwards to the previous page boundary and Data is sliced to the
// requested range. If writable is false the pages are mapped read-only
// and any store through Data faults.
//
// f must be backed by a real file descriptor. Callers are expected to
// fall back to an ordinary read buffer when Map returns an error.
func Map(f *os.File, offset int64, length int, writable bool) (*Region, error) {
	if offset < 0 {
		return nil, fmt.Errorf("offset cannot be negative: %d", offset)
	}
	if length <= 0 {
		return nil, fmt.Errorf("mapping length must be positive: %d", length)
	}

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %q: %w", f.Name(), err)
	}
	if fi.Size() > 0 && offset+int64(length) > fi.Size() {
		return nil, fmt.Errorf("requested mapping (offset %d + length %d) extends beyond file size %d",
			offset, length, fi.Size())
	}

	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}

	// mmap wants a page-aligned offset; map from the previous page
	// boundary and hand out the sub-slice.
	pageSize := int64(unix.Getpagesize())
	alignedOff := offset &^ (pageSize - 1)
	delta := int(offset - alignedOff)

	full, err := unix.Mmap(int(f.Fd()), alignedOff, delta+length, prot, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap %q at offset %d with length %d: %w",
			f.Name(), offset, length, err)
	}

	return &Region{
		Data:     full[delta : delta+length],
		full:     full,
		writable: writable,
	}, nil
}

// Sync flushes modified pages back to the underlying store.
func (r *Region) Sync() error {
	if r.full == nil || !r.writable {
		return nil
	}
	if err := unix.Msync(r.full, unix.MS_SYNC); err != nil {
		return fmt.Errorf("failed to msync: %w", err)
	}
	return nil
}

// Close unmaps the region. Data must not be used afterwards.
func (r *Region) Close() error {
	if r.full == nil {
		return nil
	}
	if err := unix.Munmap(r.full); err != nil {
		return fmt.Errorf("failed to munmap: %w", err)
	}
	r.full = nil
	r.Data = nil
	return nil
}
