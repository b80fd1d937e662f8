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
package boot

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FSInfo block layout (FAT32 only).
const (
	fsInfoLeadSig   = 0x41615252 // "RRaA" at offset 0
	fsInfoStrucSig  = 0x61417272 // "rrAa" at offset 0x1E4
	fsInfoTrailSig  = 0xAA550000 // at offset 0x1FC
	fsInfoFreeOff   = 0x1E8
	fsInfoNextOff   = 0x1EC
	fsInfoStrucOff  = 0x1E4
	fsInfoTrailOff  = 0x1FC
	fsInfoBlockSize = 512
)

func (g *Geometry) fsInfoOffset() int64 {
	return g.Offset + int64(g.FSInfoSec)*int64(g.BytesPerSec)
}

// ReadFSInfo loads the free-space hints from the FSInfo block. A block
// with bad signatures is reported as an error; the caller may treat the
// hints as absent in that case.
func ReadFSInfo(f io.ReaderAt, g *Geometry) error {
	if !g.HasFSInfo() {
		return nil
	}

	raw := make([]byte, fsInfoBlockSize)
	if _, err := f.ReadAt(raw, g.fsInfoOffset()); err != nil {
		return fmt.Errorf("unable to read FSInfo block: %w", err)
	}

	if binary.LittleEndian.Uint32(raw[0:]) != fsInfoLeadSig ||
		binary.LittleEndian.Uint32(raw[fsInfoStrucOff:]) != fsInfoStrucSig ||
		binary.LittleEndian.Uint32(raw[fsInfoTrailOff:]) != fsInfoTrailSig {
		return fmt.Errorf("invalid FSInfo block signature at sector %d", g.FSInfoSec)
	}

	g.FSFree = binary.LittleEndian.Uint32(raw[fsInfoFreeOff:])
	g.FSNext = binary.LittleEndian.Uint32(raw[fsInfoNextOff:])
	return nil
}

// WriteFSInfo stores the current FSFree/FSNext hints back into the
// FSInfo block, leaving the rest of the sector untouched.
func WriteFSInfo(f interface {
	io.ReaderAt
	io.WriterAt
}, g *Geometry) error {
	if !g.HasFSInfo() {
		return nil
	}

	raw := make([]byte, fsInfoBlockSize)
	if _, err := f.ReadAt(raw, g.fsInfoOffset()); err != nil {
		return fmt.Errorf("unable to read FSInfo block: %w", err)
	}

	binary.LittleEndian.PutUint32(raw[0:], fsInfoLeadSig)
	binary.LittleEndian.PutUint32(raw[fsInfoStrucOff:], fsInfoStrucSig)
	binary.LittleEndian.PutUint32(raw[fsInfoFreeOff:], g.FSFree)
	binary.LittleEndian.PutUint32(raw[fsInfoNextOff:], g.FSNext)
	binary.LittleEndian.PutUint32(raw[fsInfoTrailOff:], fsInfoTrailSig)

	if _, err := f.WriteAt(raw, g.fsInfoOffset()); err != nil {
		return fmt.Errorf("unable to write FSInfo block: %w", err)
	}
	return nil
}
