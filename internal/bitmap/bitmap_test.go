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
package bitmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitmapSetClear(t *testing.T) {
	b := New(200, false)
	require.Equal(t, uint(0), b.Count())

	b.Set(0)
	b.Set(63)
	b.Set(64)
	b.Set(199)
	require.Equal(t, uint(4), b.Count())
	require.True(t, b.Get(0))
	require.True(t, b.Get(63))
	require.True(t, b.Get(64))
	require.True(t, b.Get(199))
	require.False(t, b.Get(1))
	require.False(t, b.Get(198))

	b.Clear(63)
	require.False(t, b.Get(63))
	require.Equal(t, uint(3), b.Count())
	require.Equal(t, b.Count(), b.OnesCount())
}

func TestBitmapAllOne(t *testing.T) {
	for _, size := range []uint32{1, 63, 64, 65, 127, 128, 1000} {
		b := New(size, true)
		require.Equal(t, uint(size), b.Count())
		require.Equal(t, uint(size), b.OnesCount())
		require.True(t, b.Get(size-1))
	}
}

func TestBitmapStrictDiscipline(t *testing.T) {
	b := New(64, false)

	require.Panics(t, func() { b.Clear(10) })
	b.Set(10)
	require.Panics(t, func() { b.Set(10) })
	b.Clear(10)
	require.Panics(t, func() { b.Clear(10) })
}

func TestBitmapNoneInWord(t *testing.T) {
	b := New(256, false)
	require.True(t, b.NoneInWord(10))

	b.Set(70)
	require.True(t, b.NoneInWord(10))
	require.False(t, b.NoneInWord(64))
	require.False(t, b.NoneInWord(127))
	require.True(t, b.NoneInWord(128))
}
