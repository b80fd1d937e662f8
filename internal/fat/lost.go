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
	"github.com/chkfat/chkfat/internal/bitmap"
	"github.com/chkfat/chkfat/internal/boot"
	"github.com/chkfat/chkfat/internal/fs"
)

// Reattach is the external collaborator that links a lost chain back
// into the directory tree. It reports whether the chain was taken; a
// chain not taken is offered for clearing instead.
type Reattach func(head Cluster, size uint32) bool

// CheckLost sweeps the table for lost cluster chains after the
// directory walk has claimed every reachable chain: any head bit still
// set marks a chain no directory entry owns. Each lost chain is walked
// and either handed to the reattach collaborator or offered for
// clearing.
//
// Afterwards the FSInfo free-space hints, when present, are reconciled
// against the counts accumulated during the pass.
func (t *Table) CheckLost(f fs.File, reattach Reattach) Status {
	ret := StatusOK
	g := t.geom

	remaining := t.HeadCount()
	for head := Cluster(ClustFirst); remaining > 0 && uint32(head) < g.NumClusters; head++ {
		// The head bitmap is expected to be very sparse by now; skip
		// whole empty words.
		if uint32(head)%bitmap.WordBits == 0 && !t.headInWord(head) {
			head += bitmap.WordBits - 1
			continue
		}
		if !t.IsHead(head) {
			continue
		}

		size, outcome := t.CheckChain(head)
		remaining--

		if outcome == ChainDeclined {
			ret |= StatusErrors
			if t.env.Ask(false, "Clear") && t.clearLost(head) {
				ret |= StatusModified
			}
			continue
		}

		if outcome == ChainRepaired {
			ret |= StatusModified
		}
		t.env.Log.Warnf("lost cluster chain at cluster %d, %d cluster(s) lost", head, size)

		if reattach != nil && t.env.Ask(true, "Reconnect") && reattach(head, size) {
			ret |= StatusModified
			continue
		}
		if t.env.Ask(false, "Clear") {
			if t.clearLost(head) {
				ret |= StatusModified
			}
		} else {
			ret |= StatusErrors
		}
	}

	if g.HasFSInfo() {
		ret |= t.checkFSInfo(f)
	}
	return ret
}

func (t *Table) clearLost(head Cluster) bool {
	if err := t.ClearChain(head); err != nil {
		t.env.Log.Warnf("lost chain at cluster %d not cleared: %v", head, err)
		return false
	}
	return true
}

// checkFSInfo reconciles the cached free-space hints with the counts
// observed during this pass.
func (t *Table) checkFSInfo(f fs.File) Status {
	g := t.geom
	changed := false

	if g.FSFreeSet() && g.FSFree != g.NumFree {
		t.env.Log.Warnf("free space in FSInfo block (%d) not correct (%d)", g.FSFree, g.NumFree)
		if t.env.Ask(true, "Fix") {
			g.FSFree = g.NumFree
			changed = true
		}
	}

	if g.FSNextSet() {
		next := Cluster(g.FSNext)
		stale := !t.ValidCl(next)
		if !stale && g.NumFree > 0 && t.Next(next) != ClustFree {
			stale = true
		}
		if stale {
			reason := "not free"
			if !t.ValidCl(next) {
				reason = "invalid"
			}
			t.env.Log.Warnf("next free cluster in FSInfo block (%d) %s", g.FSNext, reason)
			if t.env.Ask(true, "Fix") {
				for cl := Cluster(ClustFirst); uint32(cl) < g.NumClusters; cl++ {
					if t.Next(cl) == ClustFree {
						g.FSNext = uint32(cl)
						changed = true
						break
					}
				}
			}
		}
	}

	if !changed {
		return StatusOK
	}
	if err := boot.WriteFSInfo(f, g); err != nil {
		t.env.Log.Errorf("unable to update FSInfo block: %v", err)
		return StatusFatal
	}
	return StatusModified
}
