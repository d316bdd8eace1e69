// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import (
	"fmt"
	"os"
	"unsafe"
)

// CheckHeap walks the heap from the prologue to the epilogue verifying
// block alignment, minimum size, and header/footer agreement. When verbose
// is set it also dumps every block's address, size and allocated flag as
// it is visited, and then walks every bin verifying that each listed block
// is actually free and classified correctly; without verbose the bins are
// not walked. It never mutates state. Violations are written to stderr as
// they are found. CheckHeap reports whether the heap passed every check.
func (a *Allocator) CheckHeap(verbose bool) bool {
	if a.lib == nil {
		fmt.Fprintln(os.Stderr, "checkheap: allocator not initialized")
		return false
	}

	ok := true
	report := func(format string, args ...interface{}) {
		ok = false
		fmt.Fprintf(os.Stderr, "checkheap: "+format+"\n", args...)
	}

	prologueHdr := headerAddr(a.prologue)
	if tag := readWord(prologueHdr); tagSize(tag) != dwordSize || !tagAlloc(tag) {
		report("prologue header corrupt: %#x", tag)
	}
	if tag := readWord(a.prologue); tagSize(tag) != dwordSize || !tagAlloc(tag) {
		report("prologue footer corrupt: %#x", tag)
	}

	p := nextBlock(a.prologue)
	for {
		hdr := readWord(headerAddr(p))
		size := tagSize(hdr)
		if size == 0 {
			if headerAddr(p) != a.epilogue {
				report("epilogue found at %p, expected %p", headerAddr(p), a.epilogue)
			}
			if !tagAlloc(hdr) {
				report("epilogue not marked allocated")
			}
			break
		}

		if size%dwordSize != 0 {
			report("block at %p has misaligned size %#x", p, size)
		}
		if uintptr(p)%dwordSize != 0 {
			report("block payload at %p is not %d-byte aligned", p, dwordSize)
		}
		if size < minBlockSize {
			report("block at %p has sub-minimum size %#x", p, size)
		}

		ftr := readWord(footerAddr(p))
		if hdr != ftr {
			report("block at %p header/footer mismatch: %#x != %#x", p, hdr, ftr)
		}

		if verbose {
			a.printBlock(p)
		}

		p = nextBlock(p)
	}

	if got, want := uintptr(a.lib.Hi())-wordSize, uintptr(a.epilogue); got != want {
		report("epilogue at %#x, heap provider's last word is at %#x", want, got)
	}

	if verbose {
		a.checkBins(report)
	}
	return ok
}

// checkBins verifies that every block on a bin's list is free and
// classifies to that bin. (By construction of listInsert/listRemove,
// which this walk does not otherwise re-verify, each free block sits on
// exactly one list.)
func (a *Allocator) checkBins(report func(string, ...interface{})) {
	for k := 0; k < numBins; k++ {
		for p := a.bins[k]; p != nil; p = asNode(p).next {
			if allocOf(p) {
				report("bin %d holds allocated block at %p", k, p)
			}
			if got := binOf(sizeOf(p)); got != k {
				report("block at %p of size %#x sits in bin %d, belongs in %d", p, sizeOf(p), k, got)
			}
		}
	}
}

// printBlock writes one line describing the block at p: its address,
// size, and allocated flag.
func (a *Allocator) printBlock(p unsafe.Pointer) {
	hdr := readWord(headerAddr(p))
	state := "free"
	if tagAlloc(hdr) {
		state = "alloc"
	}
	fmt.Fprintf(os.Stderr, "block %p: size=%#x %s\n", p, tagSize(hdr), state)
}
