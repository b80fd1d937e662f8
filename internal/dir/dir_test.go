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
package dir

import (
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/chkfat/chkfat/internal/boot"
	"github.com/chkfat/chkfat/internal/fat"
	"github.com/chkfat/chkfat/internal/fs"
	"github.com/chkfat/chkfat/internal/logger"
)

func testEnv(answer bool) *fat.Env {
	return &fat.Env{
		Log: logger.New(io.Discard, logger.ErrorLevel),
		Confirm: func(def bool, prompt string) bool {
			return answer
		},
	}
}

// imageBuilder assembles a small FAT16 volume: one reserved sector, two
// single-sector FAT copies, a one-sector root directory and the data
// clusters.
type imageBuilder struct {
	geom *boot.Geometry
	img  []byte
}

func newImageBuilder() *imageBuilder {
	g := &boot.Geometry{
		Type:        boot.FAT16,
		ClustMask:   boot.Clust16Mask,
		BytesPerSec: 512,
		SecPerClust: 1,
		ResSectors:  1,
		FATs:        2,
		FATsecs:     1,
		RootDirEnts: 16,
		Media:       0xF8,
		NumClusters: 12,
	}

	size := g.ClusterOffset(g.NumClusters)
	b := &imageBuilder{geom: g, img: make([]byte, size)}

	fat0 := b.img[g.FATOffset(0):]
	fat0[0], fat0[1], fat0[2], fat0[3] = g.Media, 0xFF, 0xFF, 0xFF
	return b
}

func (b *imageBuilder) setFAT(cl, v uint16) {
	binary.LittleEndian.PutUint16(b.img[b.geom.FATOffset(0)+int64(cl)*2:], v)
}

// entry writes one short directory entry into the given region slot.
func entry(region []byte, slot int, name, ext string, attr byte, cluster uint16, size uint32) {
	e := region[slot*32:]
	copy(e[0:8], []byte(name+strings.Repeat(" ", 8-len(name))))
	copy(e[8:11], []byte(ext+strings.Repeat(" ", 3-len(ext))))
	e[11] = attr
	binary.LittleEndian.PutUint16(e[26:], cluster)
	binary.LittleEndian.PutUint32(e[28:], size)
}

func (b *imageBuilder) root() []byte {
	return b.img[b.geom.RootDirOffset():]
}

func (b *imageBuilder) cluster(cl uint16) []byte {
	return b.img[b.geom.ClusterOffset(uint32(cl)):]
}

func (b *imageBuilder) open(t *testing.T, env *fat.Env) (fs.File, *fat.Table) {
	t.Helper()

	afs := afero.NewMemMapFs()
	f, err := afs.Create("dir.img")
	require.NoError(t, err)
	_, err = f.WriteAt(b.img, 0)
	require.NoError(t, err)

	tbl, err := fat.Load(f, b.geom, env)
	require.NoError(t, err)
	t.Cleanup(tbl.Release)
	require.Equal(t, fat.StatusOK, tbl.Scan())
	return f, tbl
}

func TestWalkTree(t *testing.T) {
	b := newImageBuilder()
	// FILE1.TXT spans two clusters, SUBDIR holds FILE2.
	b.setFAT(2, 3)
	b.setFAT(3, 0xFFFF)
	b.setFAT(4, 0xFFFF)
	b.setFAT(5, 0xFFFF)
	entry(b.root(), 0, "FILE1", "TXT", AttrArchive, 2, 600)
	entry(b.root(), 1, "SUBDIR", "", AttrDir, 4, 0)

	sub := b.cluster(4)
	entry(sub, 0, ".", "", AttrDir, 4, 0)
	entry(sub, 1, "..", "", AttrDir, 0, 0)
	entry(sub, 2, "FILE2", "", AttrArchive, 5, 100)

	env := testEnv(false)
	f, tbl := b.open(t, env)

	w := NewWalker(f, tbl, env)
	st, err := w.Walk()
	require.NoError(t, err)
	require.Equal(t, fat.StatusOK, st)
	require.Equal(t, Stats{Files: 2, Dirs: 1}, w.Stats())

	// Every chain is claimed; nothing is left for the lost sweep.
	require.Equal(t, fat.StatusOK, tbl.CheckLost(f, nil))
	require.Equal(t, uint(0), tbl.HeadCount())
}

func TestWalkCrossLinkedFiles(t *testing.T) {
	b := newImageBuilder()
	b.setFAT(2, 0xFFFF)
	entry(b.root(), 0, "A", "", AttrArchive, 2, 100)
	entry(b.root(), 1, "B", "", AttrArchive, 2, 100)

	env := testEnv(false)
	f, tbl := b.open(t, env)

	st, err := NewWalker(f, tbl, env).Walk()
	require.NoError(t, err)
	require.Equal(t, fat.StatusErrors, st)
}

func TestWalkBadStartCluster(t *testing.T) {
	b := newImageBuilder()
	entry(b.root(), 0, "A", "", AttrArchive, 100, 100) // out of range
	entry(b.root(), 1, "B", "", AttrArchive, 7, 100)   // free cluster

	env := testEnv(false)
	f, tbl := b.open(t, env)

	st, err := NewWalker(f, tbl, env).Walk()
	require.NoError(t, err)
	require.Equal(t, fat.StatusErrors, st)
}

func TestWalkEmptyDirectoryEntryRejected(t *testing.T) {
	b := newImageBuilder()
	entry(b.root(), 0, "SUBDIR", "", AttrDir, 0, 0)

	env := testEnv(false)
	f, tbl := b.open(t, env)

	st, err := NewWalker(f, tbl, env).Walk()
	require.NoError(t, err)
	require.Equal(t, fat.StatusErrors, st)
}

func TestWalkLoopingFileChainDeclined(t *testing.T) {
	b := newImageBuilder()
	// The file's chain loops back into itself: 2 -> 3 -> 4 -> 3.
	b.setFAT(2, 3)
	b.setFAT(3, 4)
	b.setFAT(4, 3)
	entry(b.root(), 0, "LOOP", "", AttrArchive, 2, 100)

	env := testEnv(false)
	f, tbl := b.open(t, env)

	w := NewWalker(f, tbl, env)
	st, err := w.Walk()
	require.NoError(t, err)
	require.Equal(t, fat.StatusErrors, st)
	require.Equal(t, Stats{Files: 1}, w.Stats())

	// Declined, so the looping entry stays in place.
	require.Equal(t, fat.Cluster(3), tbl.Next(4))
}

func TestWalkLoopingDirectoryChainDeclined(t *testing.T) {
	b := newImageBuilder()
	// SUBDIR's chain loops: 4 -> 5 -> 6 -> 5. With the repair declined
	// the walk must still terminate, reading only the walked prefix.
	b.setFAT(4, 5)
	b.setFAT(5, 6)
	b.setFAT(6, 5)
	entry(b.root(), 0, "SUBDIR", "", AttrDir, 4, 0)

	sub := b.cluster(4)
	entry(sub, 0, ".", "", AttrDir, 4, 0)
	entry(sub, 1, "..", "", AttrDir, 0, 0)

	env := testEnv(false)
	f, tbl := b.open(t, env)

	w := NewWalker(f, tbl, env)
	st, err := w.Walk()
	require.NoError(t, err)
	require.Equal(t, fat.StatusErrors, st)
	require.Equal(t, Stats{Dirs: 1}, w.Stats())
	require.Equal(t, fat.Cluster(5), tbl.Next(6))
}

func TestWalkTruncatesBrokenChain(t *testing.T) {
	b := newImageBuilder()
	b.setFAT(2, 3)
	b.setFAT(3, 0) // chain runs into a free cluster
	entry(b.root(), 0, "A", "", AttrArchive, 2, 100)

	env := testEnv(true)
	f, tbl := b.open(t, env)

	st, err := NewWalker(f, tbl, env).Walk()
	require.NoError(t, err)
	require.Equal(t, fat.StatusModified, st)
	require.Equal(t, fat.Cluster(3), tbl.Next(2))
	require.Equal(t, fat.ClustEOF, tbl.Next(3))
}

func TestShortName(t *testing.T) {
	require.Equal(t, "FILE1.TXT", shortName([11]byte{'F', 'I', 'L', 'E', '1', ' ', ' ', ' ', 'T', 'X', 'T'}))
	require.Equal(t, "NOEXT", shortName([11]byte{'N', 'O', 'E', 'X', 'T', ' ', ' ', ' ', ' ', ' ', ' '}))
}

func TestLongNameAssembly(t *testing.T) {
	// "longfilename.txt" is 16 UTF-16 units: two continuation entries,
	// stored highest sequence first.
	units := func(s string, pad int) []uint16 {
		u := make([]uint16, 0, 13)
		for _, r := range s {
			u = append(u, uint16(r))
		}
		if pad > 0 {
			u = append(u, 0x0000)
			for len(u) < 13 {
				u = append(u, 0xFFFF)
			}
		}
		return u
	}

	toEntry := func(seq byte, u []uint16) *rawEntry {
		raw := make([]byte, 32)
		raw[0] = seq
		raw[11] = AttrLFN
		pos := []int{1, 3, 5, 7, 9, 14, 16, 18, 20, 22, 24, 28, 30}
		for i, v := range u {
			binary.LittleEndian.PutUint16(raw[pos[i]:], v)
		}
		var ent rawEntry
		require.NoError(t, binary.Read(strings.NewReader(string(raw)), binary.LittleEndian, &ent))
		return &ent
	}

	var lfn longName
	lfn.add(toEntry(0x42, units("ame.txt", 1)))
	lfn.add(toEntry(0x01, units("longfilen", 0)))
	require.Equal(t, "longfilename.txt", lfn.take())
	require.Empty(t, lfn.parts)
}
