// Copyright (c) 2025 The chkfat authors
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
package fat

import (
	"errors"
	"fmt"
	"os"

	"github.com/chkfat/chkfat/internal/bitmap"
	"github.com/chkfat/chkfat/internal/boot"
	"github.com/chkfat/chkfat/internal/fs"
	"github.com/chkfat/chkfat/internal/mmap"
)

// Table holds the first on-disk FAT copy in memory, either as a shared
// mapping of the backing store or as an owned buffer, together with the
// used/head bitmaps for the current check pass.
//
// The same region backs every read until Persist; a repair written into
// it is immediately visible to every subsequent operation of the pass.
type Table struct {
	geom  *boot.Geometry
	env   *Env
	codec entryCodec

	fatbuf []byte
	region *mmap.Region // non-nil when fatbuf is a mapped view

	used *bitmap.Bitmap
	head *bitmap.Bitmap
}

// Load reads or maps the first FAT copy and allocates the cluster state
// bitmaps. A zero-copy mapping is attempted first; when the backing
// store cannot be mapped the whole copy is read into an owned buffer.
// Release must be called on every exit path once Load has succeeded.
func Load(f fs.File, geom *boot.Geometry, env *Env) (*Table, error) {
	t := &Table{
		geom:  geom,
		env:   env,
		codec: newEntryCodec(geom.Type),
	}

	size := geom.FATSize()
	if osf, ok := f.(*os.File); ok {
		region, err := mmap.Map(osf, geom.FATOffset(0), size, !env.ReadOnly)
		if err == nil {
			t.region = region
			t.fatbuf = region.Data
			env.Log.Debugf("FAT mapped: %d bytes at offset %d", size, geom.FATOffset(0))
		} else {
			env.Log.Debugf("FAT mapping unavailable, falling back to buffered read: %v", err)
		}
	}

	if t.fatbuf == nil {
		buf := make([]byte, size)
		if _, err := f.ReadAt(buf, geom.FATOffset(0)); err != nil {
			return nil, fmt.Errorf("unable to read FAT: %w", err)
		}
		t.fatbuf = buf
	}

	t.used = bitmap.New(geom.NumClusters, false)
	t.head = bitmap.New(geom.NumClusters, true)
	return t, nil
}

// Geometry returns the geometry the table was constructed from.
func (t *Table) Geometry() *boot.Geometry {
	return t.geom
}

// ValidCl reports whether cl is a valid data cluster index.
func (t *Table) ValidCl(cl Cluster) bool {
	return cl >= ClustFirst && uint32(cl) < t.geom.NumClusters
}

func (t *Table) checkCl(cl Cluster) {
	if !t.ValidCl(cl) {
		panic(fmt.Sprintf("fat: invalid cluster index %d", cl))
	}
}

// Next decodes the successor entry of cl. cl must be a valid index.
func (t *Table) Next(cl Cluster) Cluster {
	t.checkCl(cl)
	return t.codec.next(t.fatbuf, cl)
}

// SetNext encodes value into the entry of cl. cl must be a valid index.
// In read-only mode nothing is written and ErrReadOnly is returned.
func (t *Table) SetNext(cl, value Cluster) error {
	t.checkCl(cl)
	if t.env.ReadOnly {
		return ErrReadOnly
	}
	t.codec.setNext(t.fatbuf, cl, value)
	return nil
}

// writeEOF truncates the chain at cl. The read-only case is reported
// and swallowed: the repair is simply skipped.
func (t *Table) writeEOF(cl Cluster) bool {
	if err := t.SetNext(cl, ClustEOF); err != nil {
		t.env.Log.Warnf("cluster %d not truncated: %v", cl, err)
		return false
	}
	return true
}

// Used/head bitmap accessors. The strict discipline lives in the bitmap
// package: double set or double clear is an internal fault and panics.

func (t *Table) MarkUsed(cl Cluster)    { t.used.Set(uint32(cl)) }
func (t *Table) ClearUsed(cl Cluster)   { t.used.Clear(uint32(cl)) }
func (t *Table) IsUsed(cl Cluster) bool { return t.used.Get(uint32(cl)) }

func (t *Table) ClearHead(cl Cluster)   { t.head.Clear(uint32(cl)) }
func (t *Table) IsHead(cl Cluster) bool { return t.head.Get(uint32(cl)) }

// HeadCount returns the number of head bits still set.
func (t *Table) HeadCount() uint { return t.head.Count() }

// headInWord reports whether any head bit is set in the fixed-size
// block containing cl. Scan shortcut only.
func (t *Table) headInWord(cl Cluster) bool { return !t.head.NoneInWord(uint32(cl)) }

// Persist writes the table region back to the on-disk copies. When the
// table is buffer-backed every copy is rewritten; a mapped table already
// mutates copy 0 through the mapping, so only the remaining copies are
// written explicitly. All copies are attempted even if one fails; any
// failure makes the overall result fatal.
func (t *Table) Persist(f fs.File) error {
	if t.env.ReadOnly {
		return ErrReadOnly
	}

	var errs []error
	first := uint32(0)
	if t.region != nil {
		if err := t.region.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("unable to flush mapped FAT copy 0: %w", err))
		}
		first = 1
	}

	for i := first; i < t.geom.FATs; i++ {
		if _, err := f.WriteAt(t.fatbuf, t.geom.FATOffset(i)); err != nil {
			errs = append(errs, fmt.Errorf("unable to write FAT copy %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// Release unmaps or frees the table region. Safe to call more than once.
func (t *Table) Release() {
	if t.region != nil {
		if err := t.region.Close(); err != nil {
			t.env.Log.Warnf("unable to unmap FAT: %v", err)
		}
		t.region = nil
	}
	t.fatbuf = nil
}
