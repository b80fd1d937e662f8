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
	"github.com/chkfat/chkfat/internal/boot"
)

// Scan validates the table signature bytes and traverses the whole
// table once, classifying every entry and clearing the head bit of
// every cluster referenced as a successor. It also counts free and bad
// clusters into the geometry record.
//
// After Scan the remaining head bits are exactly the heads of chains
// not yet attributed to any owner.
func (t *Table) Scan() Status {
	ret := t.checkSignature()

	g := t.geom
	g.NumFree, g.NumBad = 0, 0

	total := g.NumClusters
	for cl := Cluster(ClustFirst); uint32(cl) < g.NumClusters; cl++ {
		if t.env.Progress != nil && uint32(cl)%4096 == 0 {
			t.env.Progress(uint32(cl), total)
		}

		next := t.Next(cl)
		switch {
		case next == ClustFree:
			if t.IsHead(cl) {
				t.ClearHead(cl)
			}
			g.NumFree++
		case next == ClustBad:
			if t.IsHead(cl) {
				t.ClearHead(cl)
			}
			g.NumBad++
		case next < ClustFirst || (uint32(next) >= g.NumClusters && next < ClustEOFS):
			t.env.Log.Warnf("cluster %d continues with %s cluster number %d",
				cl, rsrvdClType(next), next&t.codec.mask())
			if t.env.Ask(false, "Truncate") {
				if t.writeEOF(cl) {
					ret |= StatusModified
				}
			} else {
				ret |= StatusErrors
			}
		case uint32(next) < g.NumClusters:
			if t.IsHead(next) {
				t.ClearHead(next)
			}
			// Otherwise cl crosses a chain scanned earlier; the
			// chain walk will catch it from the owning head.
		}
	}
	if t.env.Progress != nil {
		t.env.Progress(total, total)
	}
	return ret
}

// rsrvdClType names the band an invalid successor value falls into.
func rsrvdClType(cl Cluster) string {
	switch {
	case cl == ClustFree:
		return "free"
	case cl < ClustBad:
		if cl < ClustRsrvd {
			return "out of range"
		}
		return "reserved"
	case cl > ClustBad:
		return "EOF"
	default:
		return "bad"
	}
}

// checkSignature inspects the reserved entries at the start of the
// table. The first byte must carry the media descriptor and the rest of
// the two pseudo-entries an all-ones fill; Windows additionally clears
// some bits at boot to flag an unclean shutdown, which is recognized
// here rather than treated as corruption.
func (t *Table) checkSignature() Status {
	buf := t.fatbuf
	media := t.geom.Media

	ok := buf[0] == media && buf[1] == 0xFF && buf[2] == 0xFF
	if ok {
		switch t.geom.Type {
		case boot.FAT16:
			ok = buf[3] == 0xFF
		case boot.FAT32:
			ok = buf[3]&0x0F == 0x0F &&
				buf[4] == 0xFF && buf[5] == 0xFF &&
				buf[6] == 0xFF && buf[7]&0x0F == 0x0F
		}
	}
	if ok {
		return StatusOK
	}

	// Windows 95 OSR2 and later rewrite the signature on boot so a
	// crash leaves it recognizably altered.
	if buf[0] == media && buf[1] == 0xFF && buf[2] == 0xFF {
		if (t.geom.Type == boot.FAT16 && buf[3] == 0x7F) ||
			(t.geom.Type == boot.FAT32 && buf[3] == 0x0F &&
				buf[4] == 0xFF && buf[5] == 0xFF &&
				buf[6] == 0xFF && buf[7] == 0x07) {
			return StatusDirty
		}
	}

	n := 3
	switch t.geom.Type {
	case boot.FAT16:
		n = 4
	case boot.FAT32:
		n = 8
	}
	t.env.Log.Warnf("FAT starts with odd byte sequence (% x)", buf[:n])

	if !t.env.Ask(true, "Correct") {
		return StatusErrors
	}
	if t.env.ReadOnly {
		return StatusErrors
	}

	buf[0] = media
	buf[1], buf[2] = 0xFF, 0xFF
	switch t.geom.Type {
	case boot.FAT16:
		buf[3] = 0xFF
	case boot.FAT32:
		buf[3] = 0x0F
		buf[4], buf[5], buf[6] = 0xFF, 0xFF, 0xFF
		buf[7] = 0x0F
	}
	return StatusModified
}
