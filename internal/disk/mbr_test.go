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
package disk

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// mbrSector builds an MBR with a FAT32 partition in slot 1 and a Linux
// partition in slot 3.
func mbrSector() []byte {
	raw := make([]byte, mbrSize)
	binary.LittleEndian.PutUint16(raw[mbrSize-2:], mbrSignature)

	e := raw[entryTable:]
	e[0] = 0x80          // bootable
	e[4] = TypeFAT32LBA
	binary.LittleEndian.PutUint32(e[8:], 2048)
	binary.LittleEndian.PutUint32(e[12:], 204800)

	e = raw[entryTable+2*entrySize:]
	e[4] = 0x83
	binary.LittleEndian.PutUint32(e[8:], 206848)
	binary.LittleEndian.PutUint32(e[12:], 4096)
	return raw
}

func TestReadPartitions(t *testing.T) {
	parts, err := ReadPartitions(bytes.NewReader(mbrSector()))
	require.NoError(t, err)
	require.Len(t, parts, 2)

	require.Equal(t, 1, parts[0].Num)
	require.True(t, parts[0].Bootable)
	require.True(t, parts[0].IsFAT())
	require.Equal(t, int64(2048*512), parts[0].Offset)
	require.Equal(t, uint32(204800), parts[0].Sectors)
	require.Equal(t, "FAT32 (LBA)", parts[0].TypeName())

	require.Equal(t, 3, parts[1].Num)
	require.False(t, parts[1].IsFAT())
}

func TestReadPartitionsNoSignature(t *testing.T) {
	_, err := ReadPartitions(bytes.NewReader(make([]byte, mbrSize)))
	require.Error(t, err)
}

func TestFind(t *testing.T) {
	parts, err := ReadPartitions(bytes.NewReader(mbrSector()))
	require.NoError(t, err)

	p, err := Find(parts, 3)
	require.NoError(t, err)
	require.Equal(t, 3, p.Num)

	_, err = Find(parts, 2)
	require.Error(t, err)
}
