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

// Package boot parses the FAT boot sector (BIOS parameter block) into the
// geometry record every other component sizes itself from, and reads and
// writes the FAT32 FSInfo block carrying the free-space hints.
package boot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// SectorSize is the boot sector size. FAT media can use larger logical
// sectors, but the BPB always fits in the first 512 bytes.
const SectorSize = 512

const bootMarker = 0xAA55

// Entry width variants. The value is the number of bits per FAT entry.
type FatType int

const (
	FAT12 FatType = 12
	FAT16 FatType = 16
	FAT32 FatType = 32
)

func (t FatType) String() string {
	return fmt.Sprintf("FAT%d", int(t))
}

// Cluster value masks per entry width.
const (
	Clust12Mask = 0x00000FFF
	Clust16Mask = 0x0000FFFF
	Clust32Mask = 0x0FFFFFFF
)

// FirstCluster is the lowest valid data cluster index. Entries 0 and 1
// are reserved pseudo-clusters.
const FirstCluster = 2

// unsetHint marks an FSInfo hint field the filesystem left unset.
const unsetHint = 0xFFFFFFFF

// Geometry describes the filesystem layout derived from the boot sector.
// It is shared, mutable state for one check pass: the FAT scan and the
// lost-chain sweep maintain the NumFree/NumBad counters and may rewrite
// the FSFree/FSNext hints before they are persisted via WriteFSInfo.
type Geometry struct {
	// Offset is the byte offset of the filesystem within the backing
	// store, for images carrying a partition table.
	Offset int64

	Type        FatType
	ClustMask   uint32
	BytesPerSec uint32
	SecPerClust uint32
	ResSectors  uint32
	FATs        uint32
	FATsecs     uint32 // sectors per FAT copy
	RootDirEnts uint32 // FAT12/16 fixed root directory entry count
	RootCl      uint32 // FAT32 root directory head cluster
	Sectors     uint32 // total sector count
	Media       byte

	// NumClusters is the exclusive upper bound of valid cluster
	// indices: valid data clusters are [FirstCluster, NumClusters).
	NumClusters uint32

	// FSInfo block: sector number (0 when absent) and the cached hints.
	FSInfoSec uint32
	FSFree    uint32
	FSNext    uint32

	// Counters maintained during a check pass.
	NumFree uint32
	NumBad  uint32
}

// bootSector mirrors the on-disk BPB layout. Multi-byte fields are
// little-endian; binary.Read handles the packing.
type bootSector struct {
	Jump        [3]byte
	OEMName     [8]byte
	BytesPerSec uint16
	SecPerClust uint8
	ResSectors  uint16
	FATs        uint8
	RootDirEnts uint16
	Sectors     uint16
	Media       uint8
	FATsmall    uint16
	SecPerTrack uint16
	Heads       uint16
	HiddenSecs  uint32
	HugeSectors uint32

	// FAT32 extension, garbage on FAT12/16
	FATlarge  uint32
	ExtFlags  uint16
	FSVers    uint16
	RootCl    uint32
	FSInfoSec uint16
	Backup    uint16
	Reserved  [12]byte
	DriveNum  uint8
	Reserved1 uint8
	BootSig   uint8
	VolID     [4]byte
	VolLab    [11]byte
	FSType    [8]byte

	Pad    [420]byte
	Marker uint16
}

// Read parses the boot sector at offset within f and derives the
// filesystem geometry. It does not touch the FSInfo block; call
// ReadFSInfo afterwards for FAT32 volumes that carry one.
func Read(f io.ReaderAt, offset int64) (*Geometry, error) {
	raw := make([]byte, SectorSize)
	if _, err := f.ReadAt(raw, offset); err != nil {
		return nil, fmt.Errorf("unable to read boot sector: %w", err)
	}

	var bs bootSector
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &bs); err != nil {
		return nil, fmt.Errorf("unable to decode boot sector: %w", err)
	}
	if bs.Marker != bootMarker {
		return nil, fmt.Errorf("invalid boot sector signature: expected 0x%04X, got 0x%04X",
			bootMarker, bs.Marker)
	}

	g := &Geometry{
		Offset:      offset,
		BytesPerSec: uint32(bs.BytesPerSec),
		SecPerClust: uint32(bs.SecPerClust),
		ResSectors:  uint32(bs.ResSectors),
		FATs:        uint32(bs.FATs),
		RootDirEnts: uint32(bs.RootDirEnts),
		Media:       bs.Media,
		FSFree:      unsetHint,
		FSNext:      unsetHint,
	}

	if g.BytesPerSec < SectorSize || g.BytesPerSec&(g.BytesPerSec-1) != 0 {
		return nil, fmt.Errorf("invalid sector size: %d", g.BytesPerSec)
	}
	if g.SecPerClust == 0 || g.SecPerClust&(g.SecPerClust-1) != 0 {
		return nil, fmt.Errorf("invalid sectors per cluster: %d", g.SecPerClust)
	}
	if g.ResSectors == 0 {
		return nil, fmt.Errorf("invalid reserved sector count: %d", g.ResSectors)
	}
	if g.FATs == 0 {
		return nil, fmt.Errorf("invalid FAT copy count: %d", g.FATs)
	}

	g.Sectors = uint32(bs.Sectors)
	if g.Sectors == 0 {
		g.Sectors = bs.HugeSectors
	}
	if g.Sectors == 0 {
		return nil, fmt.Errorf("boot sector reports zero total sectors")
	}

	g.FATsecs = uint32(bs.FATsmall)
	if bs.RootDirEnts == 0 {
		// No fixed root directory means FAT32.
		g.Type = FAT32
		g.ClustMask = Clust32Mask
		g.FATsecs = bs.FATlarge
		g.RootCl = bs.RootCl
		g.FSInfoSec = uint32(bs.FSInfoSec)
		if g.FSInfoSec == 0xFFFF {
			g.FSInfoSec = 0
		}
		if bs.FSVers != 0 {
			return nil, fmt.Errorf("unknown FAT32 filesystem version: %04x", bs.FSVers)
		}
	}
	if g.FATsecs == 0 {
		return nil, fmt.Errorf("boot sector reports zero FAT sectors")
	}

	rootDirSecs := (g.RootDirEnts*32 + g.BytesPerSec - 1) / g.BytesPerSec
	sysSectors := g.ResSectors + g.FATs*g.FATsecs + rootDirSecs
	if g.Sectors <= sysSectors {
		return nil, fmt.Errorf("filesystem metadata (%d sectors) exceeds volume size (%d sectors)",
			sysSectors, g.Sectors)
	}
	g.NumClusters = (g.Sectors-sysSectors)/g.SecPerClust + FirstCluster

	if g.Type == FAT32 {
		if g.NumClusters >= 0x0FFFFFF6 {
			return nil, fmt.Errorf("too many clusters for FAT32: %d", g.NumClusters)
		}
		if g.RootCl < FirstCluster || g.RootCl >= g.NumClusters {
			return nil, fmt.Errorf("FAT32 root cluster out of range: %d", g.RootCl)
		}
	} else if g.NumClusters >= 0xFF6 {
		g.Type = FAT16
		g.ClustMask = Clust16Mask
		if g.NumClusters >= 0xFFF6 {
			return nil, fmt.Errorf("too many clusters for FAT16: %d", g.NumClusters)
		}
	} else {
		g.Type = FAT12
		g.ClustMask = Clust12Mask
	}

	// The FAT must be able to address every data cluster.
	if capacity := g.fatCapacity(); g.NumClusters > capacity {
		return nil, fmt.Errorf("FAT size too small: %d entries for %d clusters",
			capacity, g.NumClusters)
	}

	return g, nil
}

// fatCapacity returns the number of entries that fit in one FAT copy.
func (g *Geometry) fatCapacity() uint32 {
	fatBytes := uint64(g.FATsecs) * uint64(g.BytesPerSec)
	switch g.Type {
	case FAT12:
		return uint32(fatBytes * 2 / 3)
	case FAT16:
		return uint32(fatBytes / 2)
	default:
		return uint32(fatBytes / 4)
	}
}

// FATOffset returns the absolute byte offset of the given FAT copy.
func (g *Geometry) FATOffset(copy uint32) int64 {
	return g.Offset + int64(g.ResSectors+copy*g.FATsecs)*int64(g.BytesPerSec)
}

// FATSize returns the size in bytes of one FAT copy.
func (g *Geometry) FATSize() int {
	return int(g.FATsecs) * int(g.BytesPerSec)
}

// RootDirOffset returns the absolute byte offset of the fixed root
// directory region. Only meaningful for FAT12/16.
func (g *Geometry) RootDirOffset() int64 {
	return g.Offset + int64(g.ResSectors+g.FATs*g.FATsecs)*int64(g.BytesPerSec)
}

// ClusterSize returns the size of one cluster in bytes.
func (g *Geometry) ClusterSize() uint32 {
	return g.SecPerClust * g.BytesPerSec
}

// ClusterOffset returns the absolute byte offset of a data cluster.
func (g *Geometry) ClusterOffset(cl uint32) int64 {
	rootDirSecs := (g.RootDirEnts*32 + g.BytesPerSec - 1) / g.BytesPerSec
	firstDataSec := g.ResSectors + g.FATs*g.FATsecs + rootDirSecs
	return g.Offset + (int64(firstDataSec)+int64(cl-FirstCluster)*int64(g.SecPerClust))*int64(g.BytesPerSec)
}

// HasFSInfo reports whether the volume carries an FSInfo block.
func (g *Geometry) HasFSInfo() bool {
	return g.Type == FAT32 && g.FSInfoSec != 0
}

// FSFreeSet reports whether the free-cluster-count hint is set.
func (g *Geometry) FSFreeSet() bool { return g.FSFree != unsetHint }

// FSNextSet reports whether the next-free-cluster hint is set.
func (g *Geometry) FSNextSet() bool { return g.FSNext != unsetHint }
