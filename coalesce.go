// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import "unsafe"

// coalesce merges a just-freed block p with any free neighbours according
// to the four boundary-tag cases (neither neighbour free, only the
// previous, only the next, or both), and returns the merged block's
// payload pointer. p must already be tagged free and already be on its
// bin's list; coalesce removes it (and any merged neighbour) from their
// lists and reinserts exactly one resulting block.
//
// No special-casing is needed at either end of the heap: the prologue's
// and epilogue's boundary tags are always allocated, so prevBlock/
// nextBlock arithmetic naturally reports "allocated" there and this never
// reaches past the sentinels, exactly the role those sentinel blocks are
// meant to play.
func (a *Allocator) coalesce(p unsafe.Pointer) unsafe.Pointer {
	prevAlloc := allocOf(prevBlock(p))
	next := nextBlock(p)
	nextAlloc := allocOf(next)

	switch {
	case prevAlloc && nextAlloc:
		return p

	case prevAlloc && !nextAlloc:
		a.listRemove(p)
		a.listRemove(next)
		newSize := sizeOf(p) + sizeOf(next)
		setTags(p, newSize, false)
		a.listInsert(p)
		return p

	case !prevAlloc && nextAlloc:
		prev := prevBlock(p)
		a.listRemove(p)
		a.listRemove(prev)
		newSize := sizeOf(prev) + sizeOf(p)
		setTags(prev, newSize, false)
		a.listInsert(prev)
		return prev

	default: // !prevAlloc && !nextAlloc
		prev := prevBlock(p)
		a.listRemove(p)
		a.listRemove(prev)
		a.listRemove(next)
		newSize := sizeOf(prev) + sizeOf(p) + sizeOf(next)
		setTags(prev, newSize, false)
		a.listInsert(prev)
		return prev
	}
}
