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

// Package bitmap provides the per-cluster state sets used while scanning
// a FAT: one bit per cluster index, with a strict set/clear discipline.
package bitmap

import "math/bits"

// WordBits is the number of cluster indices covered by one word. The
// sweep over lost-chain heads skips whole words at this granularity.
const WordBits = 64

// Bitmap is a fixed-size bit set indexed by cluster number.
//
// Set requires the bit to be clear and Clear requires it to be set;
// a violation means the used/head bookkeeping is corrupted and panics
// rather than letting the pass continue with bad state.
type Bitmap struct {
	words []uint64
	count uint
}

// New creates a bitmap covering indices [0, size). With allOne the map
// starts with every bit set, otherwise every bit clear.
func New(size uint32, allOne bool) *Bitmap {
	nwords := (uint(size) + WordBits - 1) / WordBits
	b := &Bitmap{words: make([]uint64, nwords)}
	if allOne {
		for i := range b.words {
			b.words[i] = ^uint64(0)
		}
		// Keep bits beyond size clear so whole-word scans see only
		// real indices.
		if rem := uint(size) % WordBits; rem != 0 && nwords > 0 {
			b.words[nwords-1] = (uint64(1) << rem) - 1
		}
		b.count = uint(size)
	}
	return b
}

// Set marks index i. The bit must currently be clear.
func (b *Bitmap) Set(i uint32) {
	w, mask := i/WordBits, uint64(1)<<(i%WordBits)
	if b.words[w]&mask != 0 {
		panic("bitmap: bit already set")
	}
	b.words[w] |= mask
	b.count++
}

// Clear unmarks index i. The bit must currently be set.
func (b *Bitmap) Clear(i uint32) {
	w, mask := i/WordBits, uint64(1)<<(i%WordBits)
	if b.words[w]&mask == 0 {
		panic("bitmap: bit already clear")
	}
	b.words[w] &^= mask
	b.count--
}

// Get reports whether index i is set.
func (b *Bitmap) Get(i uint32) bool {
	return b.words[i/WordBits]&(uint64(1)<<(i%WordBits)) != 0
}

// NoneInWord reports whether the whole word containing index i has no
// bit set. This is a scan shortcut only; correctness never depends on it.
func (b *Bitmap) NoneInWord(i uint32) bool {
	return b.words[i/WordBits] == 0
}

// Count returns the number of set bits.
func (b *Bitmap) Count() uint {
	return b.count
}

// OnesCount recomputes the set-bit count from the words. Used by tests
// to cross-check the live counter.
func (b *Bitmap) OnesCount() uint {
	var n uint
	for _, w := range b.words {
		n += uint(bits.OnesCount64(w))
	}
	return n
}
