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

import "fmt"

// Outcome classifies the result of one chain walk.
type Outcome int

const (
	// ChainOK: the chain ended in a proper EOF terminator.
	ChainOK Outcome = iota
	// ChainRepaired: a fault was found and the chain truncated.
	ChainRepaired
	// ChainDeclined: a fault was found, the repair was declined and
	// the entry left untouched.
	ChainDeclined
)

func (o Outcome) String() string {
	switch o {
	case ChainOK:
		return "ok"
	case ChainRepaired:
		return "repaired"
	case ChainDeclined:
		return "declined"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// CheckChain walks the chain starting at head, verifying every link and
// counting the chain's clusters.
//
// The caller must hand over a real, unvisited head: a valid cluster
// index whose head bit is still set and whose used bit is clear. The
// initial table scan already excluded every cluster claimed as somebody
// else's successor, so a violation is an internal fault.
//
// On any return every visited cluster, the head included, is marked
// used with its head bit cleared. The returned size counts the chain's
// clusters up to but not including a faulting successor; for a clean
// chain it includes the EOF-terminated tail cluster.
func (t *Table) CheckChain(head Cluster) (size uint32, outcome Outcome) {
	if !t.ValidCl(head) || !t.IsHead(head) || t.IsUsed(head) {
		panic(fmt.Sprintf("fat: cluster %d is not an unvisited chain head", head))
	}

	// Claim the head immediately; the loop claims the rest.
	t.ClearHead(head)
	t.MarkUsed(head)
	size = 1

	// A well-formed chain is a singly linked list whose every node is
	// a valid, not yet seen cluster, ending in an EOF marker. Anything
	// else is corruption, and the only viable repair is truncating at
	// the last good node.
	current := head
	for {
		next := t.Next(current)
		if !t.ValidCl(next) {
			if next >= ClustEOFS {
				// A natural end.
				return size, ChainOK
			}
			t.env.Log.Warnf("cluster %d continues with %s cluster number %d",
				current, rsrvdClType(next), next&t.codec.mask())
			return size, t.truncateAt(current)
		}

		if t.IsUsed(next) {
			t.env.Log.Warnf("cluster %d crossed a chain at %d with %d",
				head, current, next)
			return size, t.truncateAt(current)
		}

		if t.IsHead(next) {
			t.ClearHead(next)
		}
		t.MarkUsed(next)
		size++
		current = next
	}
}

// truncateAt offers to rewrite current's entry to the EOF sentinel.
func (t *Table) truncateAt(current Cluster) Outcome {
	if t.env.Ask(false, "Truncate") && t.writeEOF(current) {
		return ChainRepaired
	}
	return ChainDeclined
}

// ClearChain frees the chain starting at head: every entry is set to
// Free, the free-cluster counter incremented and the used bit cleared.
// The walk stops at the first successor that is not a valid index, or
// whose entry is already free. The latter ends a looping chain after
// one visit per cluster instead of double-counting the loop's entry.
//
// Used both for discarded lost chains and for ordinary file deletion.
func (t *Table) ClearChain(head Cluster) error {
	for cl := head; t.ValidCl(cl); {
		next := t.Next(cl)
		if next == ClustFree {
			// Already free: either counted by the scan or cleared
			// earlier this walk on a looping chain.
			if t.IsUsed(cl) {
				t.ClearUsed(cl)
			}
			break
		}
		if err := t.SetNext(cl, ClustFree); err != nil {
			return err
		}
		t.geom.NumFree++
		if t.IsUsed(cl) {
			t.ClearUsed(cl)
		}
		cl = next
	}
	return nil
}
