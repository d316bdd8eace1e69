// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import "unsafe"

// numBins is the number of segregated size classes: bin 0 covers
// everything up to 128 bytes and each following bin roughly doubles the
// previous one's ceiling.
const numBins = 12

const binCeiling = 128

// node is the free-list linkage embedded in a free block's first two
// payload words. It is never read or written through this type on an
// allocated block — the caller owns that payload entirely.
type node struct {
	prev, next unsafe.Pointer // payload pointers of neighbouring free blocks
}

func asNode(p unsafe.Pointer) *node { return (*node)(p) }

// binOf classifies a block size into one of numBins bins by repeatedly
// halving it until it no longer exceeds binCeiling, capping at the last
// bin. Deterministic, O(log(size/128)).
func binOf(size uintptr) int {
	k := 0
	c := size
	for c > binCeiling && k < numBins-1 {
		c >>= 1
		k++
	}
	return k
}

// listInsert pushes a free block onto the head of its bin's list (LIFO),
// so the most recently freed block is the first one findFit tries.
func (a *Allocator) listInsert(p unsafe.Pointer) {
	k := binOf(sizeOf(p))
	n := asNode(p)
	n.prev = nil
	n.next = a.bins[k]
	if a.bins[k] != nil {
		asNode(a.bins[k]).prev = p
	}
	a.bins[k] = p
}

// listRemove splices a free block out of its bin's list. O(1): both
// neighbours (or the bin head) are already known.
func (a *Allocator) listRemove(p unsafe.Pointer) {
	k := binOf(sizeOf(p))
	n := asNode(p)
	if n.prev != nil {
		asNode(n.prev).next = n.next
	} else {
		a.bins[k] = n.next
	}
	if n.next != nil {
		asNode(n.next).prev = n.prev
	}
}
