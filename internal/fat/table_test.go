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
	"encoding/binary"
	"io"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/chkfat/chkfat/internal/boot"
	"github.com/chkfat/chkfat/internal/fs"
	"github.com/chkfat/chkfat/internal/logger"
)

// testEnv answers every repair prompt the same way.
func testEnv(answer bool) *Env {
	return &Env{
		Log: logger.New(io.Discard, logger.ErrorLevel),
		Confirm: func(def bool, prompt string) bool {
			return answer
		},
	}
}

func testGeom16(numClusters uint32) *boot.Geometry {
	return &boot.Geometry{
		Type:        boot.FAT16,
		ClustMask:   boot.Clust16Mask,
		BytesPerSec: 512,
		SecPerClust: 1,
		ResSectors:  1,
		FATs:        2,
		FATsecs:     1,
		Media:       0xF8,
		NumClusters: numClusters,
	}
}

// newTable16 builds an in-memory FAT16 image holding the given entries
// and loads a table from it. Unlisted clusters are free.
func newTable16(t *testing.T, env *Env, entries map[Cluster]Cluster, numClusters uint32) (*Table, fs.File) {
	t.Helper()

	g := testGeom16(numClusters)
	fatb := make([]byte, g.FATSize())
	fatb[0], fatb[1], fatb[2], fatb[3] = g.Media, 0xFF, 0xFF, 0xFF
	for cl, v := range entries {
		binary.LittleEndian.PutUint16(fatb[cl<<1:], uint16(v&boot.Clust16Mask))
	}

	afs := afero.NewMemMapFs()
	f, err := afs.Create("test.img")
	require.NoError(t, err)
	_, err = f.WriteAt(fatb, g.FATOffset(0))
	require.NoError(t, err)

	tbl, err := Load(f, g, env)
	require.NoError(t, err)
	t.Cleanup(tbl.Release)
	return tbl, f
}

func TestScanCountsFreeAndBad(t *testing.T) {
	tbl, _ := newTable16(t, testEnv(false), map[Cluster]Cluster{
		2: 3, 3: ClustEOF,
		5: Cluster(0xFFF7), // bad
	}, 12)

	st := tbl.Scan()
	require.Equal(t, StatusOK, st)

	g := tbl.Geometry()
	require.Equal(t, uint32(7), g.NumFree) // 4, 6..11
	require.Equal(t, uint32(1), g.NumBad)

	// Only the head of the 2->3 chain survives the scan.
	require.Equal(t, uint(1), tbl.HeadCount())
	require.True(t, tbl.IsHead(2))
	require.False(t, tbl.IsHead(3))
}

func TestScanTruncatesReservedSuccessor(t *testing.T) {
	tbl, _ := newTable16(t, testEnv(true), map[Cluster]Cluster{
		2: Cluster(0xFFF6), // reserved band
	}, 12)

	st := tbl.Scan()
	require.Equal(t, StatusModified, st)
	require.Equal(t, ClustEOF, tbl.Next(2))
}

func TestScanReservedSuccessorDeclined(t *testing.T) {
	tbl, _ := newTable16(t, testEnv(false), map[Cluster]Cluster{
		2: Cluster(0xFFF6),
	}, 12)

	st := tbl.Scan()
	require.Equal(t, StatusErrors, st)
	require.Equal(t, Cluster(0xFFF6), tbl.Next(2))
}

func TestScanRepairsOddSignature(t *testing.T) {
	tbl, _ := newTable16(t, testEnv(true), nil, 12)
	tbl.fatbuf[0] = 0x00

	st := tbl.Scan()
	require.Equal(t, StatusModified, st)
	require.Equal(t, byte(0xF8), tbl.fatbuf[0])
	require.Equal(t, byte(0xFF), tbl.fatbuf[3])
}

func TestScanDetectsDirtySignature(t *testing.T) {
	tbl, _ := newTable16(t, testEnv(true), nil, 12)
	tbl.fatbuf[3] = 0x7F

	st := tbl.Scan()
	require.Equal(t, StatusDirty, st)
}

func TestSetNextReadOnly(t *testing.T) {
	env := testEnv(true)
	env.ReadOnly = true
	tbl, f := newTable16(t, env, map[Cluster]Cluster{2: 3, 3: ClustEOF}, 12)

	require.ErrorIs(t, tbl.SetNext(2, ClustEOF), ErrReadOnly)
	require.Equal(t, Cluster(3), tbl.Next(2))
	require.ErrorIs(t, tbl.Persist(f), ErrReadOnly)
}

func TestAskDeclinesWhenReadOnly(t *testing.T) {
	env := testEnv(true)
	env.ReadOnly = true
	require.False(t, env.Ask(true, "Fix"))
}

func TestPersistWritesEveryCopy(t *testing.T) {
	tbl, f := newTable16(t, testEnv(true), map[Cluster]Cluster{
		2: Cluster(0xFFF6),
	}, 12)

	st := tbl.Scan()
	require.Equal(t, StatusModified, st)
	require.NoError(t, tbl.Persist(f))

	g := tbl.Geometry()
	for copyNo := uint32(0); copyNo < g.FATs; copyNo++ {
		raw := make([]byte, g.FATSize())
		_, err := f.ReadAt(raw, g.FATOffset(copyNo))
		require.NoError(t, err)
		require.Equal(t, uint16(0xFFFF), binary.LittleEndian.Uint16(raw[4:]))
	}
}

func TestNextPanicsOnInvalidCluster(t *testing.T) {
	tbl, _ := newTable16(t, testEnv(false), nil, 12)

	require.Panics(t, func() { tbl.Next(0) })
	require.Panics(t, func() { tbl.Next(12) })
}
