// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package segalloc implements a segregated free-list memory allocator
// with immediate boundary-tag coalescing and splitting, first-fit
// placement within each size class, and LIFO free-list insertion, over a
// single contiguous, grow-only heap region supplied by package memlib.
package segalloc

import (
	"fmt"
	"os"
	"unsafe"
)

// Malloc allocates size bytes and returns a pointer to the start of the
// block's payload, or nil if size is zero (not an error) or if the heap
// provider refused to grow (ErrOutOfMemory).
func (a *Allocator) Malloc(size uintptr) (p unsafe.Pointer, err error) {
	if a.trace {
		defer func() { fmt.Fprintf(os.Stderr, "Malloc(%#x) %p, %v\n", size, p, err) }()
	}
	if a.lib == nil {
		return nil, ErrNotInitialized
	}
	if size == 0 {
		return nil, nil
	}

	asize := requestedBlockSize(size)
	if fit, ok := a.findFit(asize); ok {
		a.place(fit, asize)
		a.stats.Allocs++
		return fit, nil
	}

	fresh, err := a.extend(max(asize, chunkSize))
	if err != nil {
		return nil, err
	}
	a.place(fresh, asize)
	a.stats.Allocs++
	return fresh, nil
}

// Calloc is like Malloc except the allocated memory is zeroed.
func (a *Allocator) Calloc(size uintptr) (unsafe.Pointer, error) {
	p, err := a.Malloc(size)
	if p == nil || err != nil {
		return p, err
	}

	b := unsafe.Slice((*byte)(p), usableSize(p))
	for i := range b {
		b[i] = 0
	}
	return p, nil
}

// Free deallocates the block at p. The nil pointer is a silent no-op.
// Freeing a pointer not obtained from Malloc/Calloc/Realloc, or freeing
// the same pointer twice, is undefined behaviour: the allocator does not
// defend against it.
func (a *Allocator) Free(p unsafe.Pointer) (err error) {
	if a.trace {
		defer func() { fmt.Fprintf(os.Stderr, "Free(%p) %v\n", p, err) }()
	}
	if a.lib == nil {
		return ErrNotInitialized
	}
	if p == nil {
		return nil
	}

	size := sizeOf(p)
	setTags(p, size, false)
	a.listInsert(p)
	a.coalesce(p)
	a.stats.Allocs--
	return nil
}

// Realloc changes the size of the block at p to size bytes, preserving
// the contents up to min(size, old payload size). It first attempts the
// in-place fast paths (shrink-in-place, absorb-next-free) before falling
// through to allocate+copy+free. If it returns a non-nil
// pointer different from p, p has already been freed. If it returns a
// nil pointer for size > 0 (ErrOutOfMemory), p is untouched and remains
// valid.
func (a *Allocator) Realloc(p unsafe.Pointer, size uintptr) (r unsafe.Pointer, err error) {
	if a.trace {
		defer func() { fmt.Fprintf(os.Stderr, "Realloc(%p, %#x) %p, %v\n", p, size, r, err) }()
	}
	if a.lib == nil {
		return nil, ErrNotInitialized
	}
	if size == 0 {
		return nil, a.Free(p)
	}
	if p == nil {
		return a.Malloc(size)
	}

	asize := requestedBlockSize(size)
	old := sizeOf(p)

	switch {
	case asize == old:
		return p, nil

	case asize < old:
		return a.reallocShrink(p, asize, old), nil

	default:
		if q, ok := a.reallocGrowInPlace(p, asize, old); ok {
			return q, nil
		}
	}

	q, err := a.Malloc(size)
	if err != nil {
		return nil, err
	}

	copySize := size
	if old-dwordSize < copySize {
		copySize = old - dwordSize
	}
	copy(unsafe.Slice((*byte)(q), copySize), unsafe.Slice((*byte)(p), copySize))
	if err := a.Free(p); err != nil {
		return nil, err
	}
	return q, nil
}

// reallocShrink splits off a trailing free remainder when it would be at
// least minBlockSize, otherwise leaves the block's internal slack
// untouched.
func (a *Allocator) reallocShrink(p unsafe.Pointer, asize, old uintptr) unsafe.Pointer {
	delta := old - asize
	if delta < minBlockSize {
		return p
	}

	setTags(p, asize, true)
	rem := nextBlock(p)
	setTags(rem, delta, false)
	a.listInsert(rem)
	a.coalesce(rem)
	return p
}

// reallocGrowInPlace absorbs all or part of the next block if it is free
// and large enough, without moving p.
func (a *Allocator) reallocGrowInPlace(p unsafe.Pointer, asize, old uintptr) (unsafe.Pointer, bool) {
	next := nextBlock(p)
	if allocOf(next) {
		return nil, false
	}

	need := asize - old
	n := sizeOf(next)
	switch {
	case n >= need+minBlockSize:
		a.listRemove(next)
		setTags(p, asize, true)
		rem := unsafe.Pointer(uintptr(p) + asize)
		setTags(rem, n-need, false)
		a.listInsert(rem)
		return p, true

	case n >= need:
		a.listRemove(next)
		setTags(p, old+n, true)
		return p, true

	default:
		return nil, false
	}
}

// usableSize reports the payload byte count of the block at p: its total
// block size minus the header and footer words.
func usableSize(p unsafe.Pointer) uintptr { return sizeOf(p) - dwordSize }

// Stats reports the allocator's current bookkeeping counters.
func (a *Allocator) Stats() Stats { return a.stats }

// Close releases the heap provider's reserved region. It is not necessary
// to Close an Allocator before process exit.
func (a *Allocator) Close() error {
	if a.lib == nil {
		return nil
	}
	err := a.lib.Close()
	*a = Allocator{}
	return err
}

func max(a, b uintptr) uintptr {
	if a > b {
		return a
	}
	return b
}
