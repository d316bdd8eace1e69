// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import "unsafe"

// requestedBlockSize turns a caller byte request into the total block size
// (header + payload + footer) that must be found or carved. The result is
// always a multiple of dwordSize, so every payload address it produces
// stays A-aligned once placed.
func requestedBlockSize(want uintptr) uintptr {
	if want <= 2*wordSize {
		return minBlockSize
	}
	return roundupPow2(want+dwordSize, dwordSize)
}

// findFit walks bins starting at binOf(asize) and upward, returning the
// first free block whose size is at least asize. Because earlier bins
// strictly cannot satisfy the request, first-fit within the segregated
// lists behaves like best-fit in practice. Returns (nil, false) if no bin
// has a large-enough block.
func (a *Allocator) findFit(asize uintptr) (unsafe.Pointer, bool) {
	for k := binOf(asize); k < numBins; k++ {
		for p := a.bins[k]; p != nil; p = asNode(p).next {
			if sizeOf(p) >= asize {
				return p, true
			}
		}
	}
	return nil, false
}

// place carves asize bytes out of a free block of size csize >= asize,
// splitting off a usable free remainder when one would be at least
// minBlockSize. The allocated block always comes first; any remainder
// follows and is reinserted into its bin.
func (a *Allocator) place(p unsafe.Pointer, asize uintptr) {
	csize := sizeOf(p)
	a.listRemove(p)

	if csize-asize >= minBlockSize {
		setTags(p, asize, true)
		rem := nextBlock(p)
		setTags(rem, csize-asize, false)
		a.listInsert(rem)
		return
	}

	setTags(p, csize, true)
}
