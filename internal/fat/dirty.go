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
	"fmt"
	"io"

	"github.com/chkfat/chkfat/internal/boot"
)

// The first two FAT entries are pseudo-clusters:
//
//	31...... ........ ........ .......0
//	rrrr1111 11111111 11111111 mmmmmmmm    FAT32 entry 0
//	rrrrsh11 11111111 11111111 11111xxx    FAT32 entry 1
//
//	                  11111111 mmmmmmmm    FAT16 entry 0
//	                  sh111111 11111xxx    FAT16 entry 1
//
//	r = reserved
//	m = BPB media ID byte
//	s = clean flag (1 = dismounted; 0 = still mounted)
//	h = hard error flag (1 = ok; 0 = I/O error)
//	x = any value ok

// CheckDirty inspects the clean-dismount and no-hard-error flags in the
// reserved pseudo-entries and reports whether the filesystem appears to
// have been dismounted uncleanly. It reads the raw first table sector,
// bypassing the per-cluster codec, and never mutates anything.
//
// FAT12 carries no such flags; the probe reports clean there. On a read
// failure the probe returns not-dirty together with the error, and the
// caller is expected to surface the error rather than trust the result.
func CheckDirty(f io.ReaderAt, g *boot.Geometry) (bool, error) {
	if g.Type != boot.FAT16 && g.Type != boot.FAT32 {
		return false, nil
	}

	buf := make([]byte, g.BytesPerSec)
	if _, err := f.ReadAt(buf, g.FATOffset(0)); err != nil {
		return false, fmt.Errorf("unable to read FAT: %w", err)
	}

	// A FAT we don't understand belongs to a filesystem that must be
	// assumed unclean.
	if buf[0] != g.Media || buf[1] != 0xFF {
		return true, nil
	}
	if g.Type == boot.FAT16 {
		if buf[2]&0xF8 != 0xF8 || buf[3]&0x3F != 0x3F {
			return true, nil
		}
		return buf[3]&0xC0 != 0xC0, nil
	}

	if buf[2] != 0xFF || buf[3]&0x0F != 0x0F ||
		buf[4]&0xF8 != 0xF8 || buf[5] != 0xFF ||
		buf[6] != 0xFF || buf[7]&0x03 != 0x03 {
		return true, nil
	}
	return buf[7]&0x0C != 0x0C, nil
}
