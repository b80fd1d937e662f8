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

	"github.com/chkfat/chkfat/internal/boot"
)

// entryCodec translates between raw bit-packed table entries and
// logical cluster values for one entry width. One variant is selected
// at table construction and used for every access.
type entryCodec interface {
	// next decodes the successor stored at entry cl.
	next(fatbuf []byte, cl Cluster) Cluster
	// setNext encodes value into entry cl, truncating it to the
	// entry width.
	setNext(fatbuf []byte, cl Cluster, value Cluster)
	// mask returns the value mask of the entry width.
	mask() Cluster
}

func newEntryCodec(t boot.FatType) entryCodec {
	switch t {
	case boot.FAT12:
		return codec12{}
	case boot.FAT16:
		return codec16{}
	default:
		return codec32{}
	}
}

// extend widens a decoded value so that the Bad/Reserved/EOF thresholds
// compare uniformly across entry widths.
func extend(v, mask Cluster) Cluster {
	if v >= ClustBad&mask {
		v |= ^mask
	}
	return v
}

// codec12: entries are packed two per three bytes. The 16-bit word at
// byte offset cl+cl/2 holds the entry in its low 12 bits for even cl
// and its high 12 bits for odd cl.
type codec12 struct{}

func (codec12) mask() Cluster { return boot.Clust12Mask }

func (codec12) next(fatbuf []byte, cl Cluster) Cluster {
	off := uint32(cl) + uint32(cl)>>1
	v := Cluster(binary.LittleEndian.Uint16(fatbuf[off:]))
	if cl&1 == 1 {
		v >>= 4
	}
	return extend(v&boot.Clust12Mask, boot.Clust12Mask)
}

func (codec12) setNext(fatbuf []byte, cl Cluster, value Cluster) {
	off := uint32(cl) + uint32(cl)>>1
	value &= boot.Clust12Mask

	// The shared byte carries 4 bits of the adjacent entry; fold them
	// back in before storing.
	if cl&1 == 0 {
		value |= Cluster(fatbuf[off+1]&0xF0) << 8
	} else {
		value <<= 4
		value |= Cluster(fatbuf[off] & 0x0F)
	}
	binary.LittleEndian.PutUint16(fatbuf[off:], uint16(value))
}

// codec16: one little-endian 16-bit word per entry.
type codec16 struct{}

func (codec16) mask() Cluster { return boot.Clust16Mask }

func (codec16) next(fatbuf []byte, cl Cluster) Cluster {
	v := Cluster(binary.LittleEndian.Uint16(fatbuf[cl<<1:]))
	return extend(v, boot.Clust16Mask)
}

func (codec16) setNext(fatbuf []byte, cl Cluster, value Cluster) {
	binary.LittleEndian.PutUint16(fatbuf[cl<<1:], uint16(value&boot.Clust16Mask))
}

// codec32: one little-endian 32-bit word per entry; the top 4 bits are
// reserved, excluded from the value and preserved on write.
type codec32 struct{}

func (codec32) mask() Cluster { return boot.Clust32Mask }

func (codec32) next(fatbuf []byte, cl Cluster) Cluster {
	v := Cluster(binary.LittleEndian.Uint32(fatbuf[cl<<2:])) & boot.Clust32Mask
	return extend(v, boot.Clust32Mask)
}

func (codec32) setNext(fatbuf []byte, cl Cluster, value Cluster) {
	off := uint32(cl) << 2
	old := binary.LittleEndian.Uint32(fatbuf[off:])
	v := old&^uint32(boot.Clust32Mask) | uint32(value&boot.Clust32Mask)
	binary.LittleEndian.PutUint32(fatbuf[off:], v)
}
