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

// Package disk reads the MBR partition table of an image or device so a
// filesystem inside a partition can be addressed by number instead of a
// raw byte offset.
package disk

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	mbrSize      = 512
	mbrSignature = 0xAA55
	entryTable   = 0x1BE
	entrySize    = 16

	// LBA values address 512-byte sectors regardless of the medium's
	// logical sector size.
	lbaSector = 512
)

// MBR partition type IDs this tool cares about.
const (
	TypeEmpty      = 0x00
	TypeFAT12      = 0x01
	TypeFAT16Small = 0x04
	TypeFAT16      = 0x06
	TypeFAT32CHS   = 0x0B
	TypeFAT32LBA   = 0x0C
	TypeFAT16LBA   = 0x0E
	TypeGPT        = 0xEE
)

// Partition is one populated MBR partition table entry.
type Partition struct {
	Num      int // 1-based slot number
	Type     byte
	Bootable bool
	Offset   int64 // byte offset from the start of the medium
	Sectors  uint32
}

// IsFAT reports whether the entry's type ID names a FAT variant.
func (p Partition) IsFAT() bool {
	switch p.Type {
	case TypeFAT12, TypeFAT16Small, TypeFAT16, TypeFAT32CHS, TypeFAT32LBA, TypeFAT16LBA:
		return true
	}
	return false
}

// TypeName names the entry's partition type ID.
func (p Partition) TypeName() string {
	switch p.Type {
	case TypeFAT12:
		return "FAT12"
	case TypeFAT16Small:
		return "FAT16 (<32MB)"
	case TypeFAT16:
		return "FAT16"
	case TypeFAT32CHS:
		return "FAT32 (CHS)"
	case TypeFAT32LBA:
		return "FAT32 (LBA)"
	case TypeFAT16LBA:
		return "FAT16 (LBA)"
	case TypeGPT:
		return "GPT protective"
	default:
		return fmt.Sprintf("type 0x%02X", p.Type)
	}
}

func (p Partition) String() string {
	return fmt.Sprintf("partition %d: %s, %d sectors at byte offset %d",
		p.Num, p.TypeName(), p.Sectors, p.Offset)
}

// ReadPartitions parses the MBR in the first sector of f and returns
// its populated entries. An image without a partition table (a plain
// filesystem starting at byte 0) fails the signature check or yields no
// entries; callers treat both as "no partitions".
func ReadPartitions(f io.ReaderAt) ([]Partition, error) {
	raw := make([]byte, mbrSize)
	if _, err := f.ReadAt(raw, 0); err != nil {
		return nil, fmt.Errorf("unable to read MBR: %w", err)
	}
	if binary.LittleEndian.Uint16(raw[mbrSize-2:]) != mbrSignature {
		return nil, fmt.Errorf("no MBR signature")
	}

	var parts []Partition
	for i := 0; i < 4; i++ {
		e := raw[entryTable+i*entrySize:]
		if e[4] == TypeEmpty {
			continue
		}
		parts = append(parts, Partition{
			Num:      i + 1,
			Type:     e[4],
			Bootable: e[0] == 0x80,
			Offset:   int64(binary.LittleEndian.Uint32(e[8:])) * lbaSector,
			Sectors:  binary.LittleEndian.Uint32(e[12:]),
		})
	}
	return parts, nil
}

// Find returns the partition in the given 1-based slot.
func Find(parts []Partition, num int) (Partition, error) {
	for _, p := range parts {
		if p.Num == num {
			return p, nil
		}
	}
	return Partition{}, fmt.Errorf("no partition in slot %d", num)
}
