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
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chkfat/chkfat/internal/boot"
)

// dirtyImage places the given pseudo-entry bytes at the first FAT
// sector of an otherwise empty image.
func dirtyImage(g *boot.Geometry, sig []byte) *bytes.Reader {
	img := make([]byte, g.FATOffset(0)+int64(g.BytesPerSec))
	copy(img[g.FATOffset(0):], sig)
	return bytes.NewReader(img)
}

func TestCheckDirtyFAT16(t *testing.T) {
	g := testGeom16(12)

	dirty, err := CheckDirty(dirtyImage(g, []byte{0xF8, 0xFF, 0xFF, 0xFF}), g)
	require.NoError(t, err)
	require.False(t, dirty)

	// Clean-dismount flag cleared.
	dirty, err = CheckDirty(dirtyImage(g, []byte{0xF8, 0xFF, 0xFF, 0x7F}), g)
	require.NoError(t, err)
	require.True(t, dirty)

	// Hard-error flag cleared.
	dirty, err = CheckDirty(dirtyImage(g, []byte{0xF8, 0xFF, 0xFF, 0xBF}), g)
	require.NoError(t, err)
	require.True(t, dirty)

	// A signature that is not a FAT at all is treated as unclean.
	dirty, err = CheckDirty(dirtyImage(g, []byte{0x00, 0x00, 0x00, 0x00}), g)
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestCheckDirtyFAT32(t *testing.T) {
	g := testGeom32(10)

	clean := []byte{0xF8, 0xFF, 0xFF, 0x0F, 0xFF, 0xFF, 0xFF, 0x0F}
	dirty, err := CheckDirty(dirtyImage(g, clean), g)
	require.NoError(t, err)
	require.False(t, dirty)

	crashed := []byte{0xF8, 0xFF, 0xFF, 0x0F, 0xFF, 0xFF, 0xFF, 0x07}
	dirty, err = CheckDirty(dirtyImage(g, crashed), g)
	require.NoError(t, err)
	require.True(t, dirty)
}

func TestCheckDirtyFAT12(t *testing.T) {
	g := testGeom16(12)
	g.Type = boot.FAT12
	g.ClustMask = boot.Clust12Mask

	// FAT12 carries no dirty flags.
	dirty, err := CheckDirty(dirtyImage(g, []byte{0x00, 0x00, 0x00}), g)
	require.NoError(t, err)
	require.False(t, dirty)
}
