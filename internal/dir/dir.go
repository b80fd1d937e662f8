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

// Package dir walks the directory tree and validates the cluster chain
// of every file and directory it discovers, claiming the chains in the
// FAT's used/head bookkeeping. Chains left unclaimed afterwards are
// lost chains, handled by the sweep in the fat package.
package dir

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/unicode"

	"github.com/chkfat/chkfat/internal/boot"
	"github.com/chkfat/chkfat/internal/fat"
	"github.com/chkfat/chkfat/internal/fs"
)

// Directory entry attribute flags.
const (
	AttrReadOnly = 0x01
	AttrHidden   = 0x02
	AttrSystem   = 0x04
	AttrVolume   = 0x08
	AttrDir      = 0x10
	AttrArchive  = 0x20

	// AttrLFN marks a long-file-name continuation entry.
	AttrLFN = AttrReadOnly | AttrHidden | AttrSystem | AttrVolume
)

const (
	entrySize   = 32
	deletedFlag = 0xE5
)

// rawEntry mirrors one 32-byte on-disk directory entry.
type rawEntry struct {
	Name         [11]byte
	Attr         byte
	NTRes        byte
	CrtTimeTenth byte
	CrtTime      uint16
	CrtDate      uint16
	LstAccDate   uint16
	ClusterHi    uint16
	WrtTime      uint16
	WrtDate      uint16
	ClusterLo    uint16
	Size         uint32
}

// Stats accumulates what the walk saw, for the final summary.
type Stats struct {
	Files int
	Dirs  int
}

// Walker traverses the directory tree from the root, invoking the
// chain walker once per discovered chain head.
type Walker struct {
	f    fs.File
	geom *boot.Geometry
	tbl  *fat.Table
	env  *fat.Env

	stats Stats
}

func NewWalker(f fs.File, tbl *fat.Table, env *fat.Env) *Walker {
	return &Walker{
		f:    f,
		geom: tbl.Geometry(),
		tbl:  tbl,
		env:  env,
	}
}

// Stats returns the counters accumulated by Walk.
func (w *Walker) Stats() Stats {
	return w.stats
}

// Walk processes the whole tree. Structural chain defects are resolved
// at the point of discovery; the returned status carries the aggregate
// Modified/Errors outcome. The error return is for I/O failures only,
// which abort the pass.
func (w *Walker) Walk() (fat.Status, error) {
	if w.geom.Type == boot.FAT32 {
		head := fat.Cluster(w.geom.RootCl)
		if !w.tbl.IsHead(head) {
			w.env.Log.Warnf("root directory at cluster %d is not a chain head", w.geom.RootCl)
			return fat.StatusErrors, nil
		}
		_, st, err := w.walkChain(head, "/", true)
		return st, err
	}

	// FAT12/16 keep the root directory in a fixed region outside the
	// cluster area.
	data := make([]byte, w.geom.RootDirEnts*entrySize)
	if _, err := w.f.ReadAt(data, w.geom.RootDirOffset()); err != nil {
		return fat.StatusFatal, fmt.Errorf("unable to read root directory: %w", err)
	}
	return w.walkEntries(data, "/")
}

// walkChain validates the chain at head, then, for directories, reads
// the chain's clusters and walks the entries they contain. It returns
// the chain length reported by the chain walker.
func (w *Walker) walkChain(head fat.Cluster, path string, isDir bool) (uint32, fat.Status, error) {
	size, outcome := w.tbl.CheckChain(head)

	ret := fat.StatusOK
	switch outcome {
	case fat.ChainRepaired:
		ret |= fat.StatusModified
	case fat.ChainDeclined:
		ret |= fat.StatusErrors
	}
	if !isDir {
		return size, ret, nil
	}

	// Read exactly the walked prefix. After a declined repair the
	// stored successors past it may loop back into the chain.
	clusterSize := w.geom.ClusterSize()
	data := make([]byte, 0, uint64(size)*uint64(clusterSize))
	buf := make([]byte, clusterSize)
	cl := head
	for n := uint32(0); n < size && w.tbl.ValidCl(cl); n++ {
		if _, err := w.f.ReadAt(buf, w.geom.ClusterOffset(uint32(cl))); err != nil {
			return size, ret | fat.StatusFatal, fmt.Errorf("unable to read directory %s (cluster %d): %w", path, cl, err)
		}
		data = append(data, buf...)
		cl = w.tbl.Next(cl)
	}

	st, err := w.walkEntries(data, path)
	return size, ret | st, err
}

// walkEntries parses one directory's raw entries and recurses into
// subdirectories.
func (w *Walker) walkEntries(data []byte, path string) (fat.Status, error) {
	ret := fat.StatusOK

	var lfn longName
	r := bytes.NewReader(data)
	for {
		var ent rawEntry
		if err := binary.Read(r, binary.LittleEndian, &ent); err != nil {
			break // end of region
		}
		if ent.Name[0] == 0 {
			break // end-of-directory marker
		}
		if ent.Name[0] == deletedFlag {
			lfn.reset()
			continue
		}
		if ent.Attr&AttrLFN == AttrLFN && ent.Attr&AttrDir == 0 {
			lfn.add(&ent)
			continue
		}
		if ent.Attr&AttrVolume != 0 {
			lfn.reset()
			continue
		}

		name := lfn.take()
		if name == "" {
			name = shortName(ent.Name)
		}
		if name == "." || name == ".." {
			continue
		}

		isDir := ent.Attr&AttrDir != 0
		head := fat.Cluster(uint32(ent.ClusterHi)<<16 | uint32(ent.ClusterLo))
		full := path + name

		if isDir {
			w.stats.Dirs++
		} else {
			w.stats.Files++
		}

		if head == 0 {
			if isDir {
				w.env.Log.Warnf("%s: directory has no first cluster", full)
				ret |= fat.StatusErrors
			} else if ent.Size != 0 {
				w.env.Log.Warnf("%s: file has size %d but no first cluster", full, ent.Size)
				ret |= fat.StatusErrors
			}
			continue
		}
		if !w.tbl.ValidCl(head) {
			w.env.Log.Warnf("%s: first cluster %d out of range", full, head)
			ret |= fat.StatusErrors
			continue
		}
		if !w.tbl.IsHead(head) {
			// Either the cluster is part of a chain claimed earlier,
			// or two directory entries share one chain.
			w.env.Log.Warnf("%s: first cluster %d is already claimed by another chain", full, head)
			ret |= fat.StatusErrors
			continue
		}

		chainLen, st, err := w.walkChain(head, full+"/", isDir)
		ret |= st
		if err != nil {
			return ret, err
		}
		if st&fat.StatusFatal != 0 {
			return ret, nil
		}

		if !isDir {
			w.checkSize(full, ent.Size, chainLen)
		}
	}
	return ret, nil
}

// checkSize cross-checks a file's recorded size against the cluster
// count of its chain. Size repair belongs to the directory data, which
// this checker reports on but does not rewrite.
func (w *Walker) checkSize(path string, size, chainLen uint32) {
	clusterSize := uint64(w.geom.ClusterSize())
	expected := (uint64(size) + clusterSize - 1) / clusterSize
	if expected != uint64(chainLen) {
		w.env.Log.Warnf("%s: size %d needs %d cluster(s), chain has %d",
			path, size, expected, chainLen)
	}
}

// longName accumulates long-file-name continuation entries. They are
// stored physically before the short entry in reverse sequence order.
type longName struct {
	parts [][]byte
}

func (l *longName) reset() {
	l.parts = l.parts[:0]
}

func (l *longName) add(ent *rawEntry) {
	// 13 UTF-16 units per entry, split across three fields: bytes
	// 1-10, 14-25 and 28-31 of the 32-byte record.
	raw := make([]byte, 0, 26)
	raw = append(raw, ent.Name[1:11]...)
	var mid [12]byte
	binary.LittleEndian.PutUint16(mid[0:], ent.CrtTime)
	binary.LittleEndian.PutUint16(mid[2:], ent.CrtDate)
	binary.LittleEndian.PutUint16(mid[4:], ent.LstAccDate)
	binary.LittleEndian.PutUint16(mid[6:], ent.ClusterHi)
	binary.LittleEndian.PutUint16(mid[8:], ent.WrtTime)
	binary.LittleEndian.PutUint16(mid[10:], ent.WrtDate)
	raw = append(raw, mid[:]...)
	var end [4]byte
	binary.LittleEndian.PutUint32(end[0:], ent.Size)
	raw = append(raw, end[:]...)

	l.parts = append(l.parts, raw)
}

// take assembles and decodes the pending long name, if any.
func (l *longName) take() string {
	if len(l.parts) == 0 {
		return ""
	}

	var raw []byte
	for i := len(l.parts) - 1; i >= 0; i-- {
		raw = append(raw, l.parts[i]...)
	}
	l.reset()

	// Trim the 0x0000 terminator and 0xFFFF padding.
	for len(raw) >= 2 {
		last := binary.LittleEndian.Uint16(raw[len(raw)-2:])
		if last != 0x0000 && last != 0xFFFF {
			break
		}
		raw = raw[:len(raw)-2]
	}

	dec := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	name, err := dec.Bytes(raw)
	if err != nil {
		return ""
	}
	return string(name)
}

// shortName renders an 8.3 name from its padded on-disk form.
func shortName(raw [11]byte) string {
	base := strings.TrimRight(string(raw[:8]), " ")
	ext := strings.TrimRight(string(raw[8:]), " ")

	// 0x05 substitutes for a leading 0xE5 in a live entry.
	if len(base) > 0 && base[0] == 0x05 {
		base = string(byte(deletedFlag)) + base[1:]
	}
	if ext == "" {
		return base
	}
	return base + "." + ext
}
