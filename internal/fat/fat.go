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

// Package fat implements the cluster-chain engine: the per-entry codec
// for the three FAT entry widths, the in-memory table with its load and
// persist strategy, the chain walker, and the lost-chain sweep.
//
// Used and head bitmaps
//
// For each cluster the table keeps two bits: "used" marks clusters that
// have been claimed by some chain, "head" marks chain head candidates.
//
// The head bitmap starts all ones. The initial table scan clears the
// bit of every cluster referenced as somebody's successor, so afterwards
// the remaining ones are exactly the heads of chains. A head that no
// directory entry claims by the end of the directory walk is the head
// of a lost chain.
//
// The used bitmap starts all zeroes. The chain walker sets the bit of
// every cluster it incorporates into a chain; running into an already
// used cluster is how a cross-linked chain is detected immediately.
package fat

import (
	"errors"
	"fmt"

	"github.com/chkfat/chkfat/internal/logger"
)

// Cluster is a FAT cluster index or entry value. Entry values decoded
// from the table are sign-extended to 32 bits so the sentinel thresholds
// below apply to every entry width.
type Cluster uint32

// Special cluster values, sign-extended.
const (
	ClustFree  Cluster = 0          // unallocated
	ClustFirst Cluster = 2          // first legal data cluster
	ClustRsrvd Cluster = 0xFFFFFFF6 // start of the reserved band
	ClustBad   Cluster = 0xFFFFFFF7 // bad block marker
	ClustEOFS  Cluster = 0xFFFFFFF8 // start of the EOF band
	ClustEOF   Cluster = 0xFFFFFFFF // canonical chain terminator
)

// ErrReadOnly is returned when a mutation is attempted while the check
// runs in read-only mode. The specific operation is skipped; the pass
// itself continues.
var ErrReadOnly = errors.New("write attempted in read-only mode")

// Status is the aggregate outcome of a check pass, a bit set.
type Status uint8

const (
	// StatusErrors: defects were found and left unrepaired.
	StatusErrors Status = 1 << iota
	// StatusModified: the FAT was changed and must be written back.
	StatusModified
	// StatusDirty: the filesystem was not cleanly dismounted.
	StatusDirty
	// StatusFatal: the pass cannot continue.
	StatusFatal
)

// StatusOK is the empty status: nothing wrong, nothing changed.
const StatusOK Status = 0

func (s Status) String() string {
	if s == StatusOK {
		return "ok"
	}
	out := ""
	add := func(name string) {
		if out != "" {
			out += "|"
		}
		out += name
	}
	if s&StatusErrors != 0 {
		add("errors")
	}
	if s&StatusModified != 0 {
		add("modified")
	}
	if s&StatusDirty != 0 {
		add("dirty")
	}
	if s&StatusFatal != 0 {
		add("fatal")
	}
	return out
}

// Env is the ambient state of one check pass: the dry-run flag, the
// diagnostic sink and the interactive confirmation callback. It is
// threaded explicitly through every operation that may repair something.
type Env struct {
	// ReadOnly suppresses every mutation. Confirmation requests are
	// answered "no" without prompting.
	ReadOnly bool

	// Log receives a diagnostic for every detected defect.
	Log *logger.Logger

	// Confirm is asked before every proposed repair. def is the answer
	// to assume when no interactive confirmation is available.
	Confirm func(def bool, prompt string) bool

	// Progress, when set, is invoked periodically during full-table
	// scans with the number of entries examined so far and the total.
	Progress func(done, total uint32)
}

// Ask requests confirmation for a repair. In read-only mode the repair
// is always declined and noted, matching the dry-run contract.
func (e *Env) Ask(def bool, format string, args ...any) bool {
	prompt := fmt.Sprintf(format, args...)
	if e.ReadOnly {
		e.Log.Infof("%s? no (read-only)", prompt)
		return false
	}
	if e.Confirm == nil {
		e.Log.Infof("%s? %s (assumed)", prompt, yesno(def))
		return def
	}
	return e.Confirm(def, prompt)
}

func yesno(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
