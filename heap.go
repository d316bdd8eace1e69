// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/zifengliang/segalloc/memlib"
)

// chunkSize is the number of bytes requested from the heap provider the
// first time the heap is primed, and the floor for every later extension.
const chunkSize = 4096

// defaultReservation bounds the virtual address space memlib reserves up
// front. The allocator itself is grow-only and never shrinks the heap back
// to the OS, so this is simply the ceiling on how much a single Allocator
// can ever hand out.
const defaultReservation = 1 << 30 // 1 GiB

var (
	// ErrNotInitialized is returned by Malloc, Calloc, Free and Realloc if
	// Init has not yet run.
	ErrNotInitialized = errors.New("segalloc: allocator not initialized")
	// ErrAlreadyInitialized guards against calling Init twice on the same
	// Allocator.
	ErrAlreadyInitialized = errors.New("segalloc: already initialized")
	// ErrOutOfMemory surfaces a heap-provider extension failure.
	ErrOutOfMemory = errors.New("segalloc: out of memory")
)

// Stats reports bookkeeping counters useful for diagnostics and for
// exhaustion-and-recovery tests. Nothing in the allocator's control flow
// depends on these; they exist purely to observe it.
type Stats struct {
	Allocs    int // outstanding Malloc calls not yet Freed
	Extends   int // number of times the heap provider was asked to grow
	HeapBytes int // total bytes currently owned, as reported by the provider
}

// Allocator is a segregated free-list, boundary-tag allocator over a
// single grow-only heap region. Init must be called exactly once before
// any other method. Allocator is not safe for concurrent use: callers
// needing that must serialize externally.
type Allocator struct {
	lib      *memlib.Lib
	bins     [numBins]unsafe.Pointer // segregated free-list heads, kept
	                                 // Go-resident rather than in-heap; see
	                                 // DESIGN.md's open-question note.
	prologue unsafe.Pointer // payload pointer of the prologue block
	epilogue unsafe.Pointer // header address of the current epilogue
	stats    Stats
	trace    bool
}

// Trace enables or disables per-call diagnostic logging to stderr, the
// same opt-in cznic/memory gates behind its package-level trace flag.
func (a *Allocator) Trace(on bool) { a.trace = on }

// Init primes the heap with a prologue and epilogue and an initial free
// chunk. It must be called exactly once before any other Allocator method.
func (a *Allocator) Init() error {
	return a.initWithCapacity(defaultReservation)
}

// initWithCapacity is Init with an explicit reservation ceiling, split out
// so tests can exercise heap-exhaustion paths against a small heap
// instead of the full default reservation.
func (a *Allocator) initWithCapacity(maxBytes int) (err error) {
	if a.trace {
		defer func() { fmt.Fprintf(os.Stderr, "Init() %v\n", err) }()
	}
	if a.lib != nil {
		return ErrAlreadyInitialized
	}

	lib, err := memlib.New(maxBytes)
	if err != nil {
		return err
	}
	a.lib = lib

	// Reserve [pad][prologue header][prologue footer][epilogue header].
	base, err := lib.Request(4 * int(wordSize))
	if err != nil {
		return err
	}

	prologueHdr := unsafe.Pointer(uintptr(base) + wordSize)
	prologueFtr := unsafe.Pointer(uintptr(base) + 2*wordSize)
	epilogueHdr := unsafe.Pointer(uintptr(base) + 3*wordSize)

	writeWord(prologueHdr, packTag(dwordSize, true))
	writeWord(prologueFtr, packTag(dwordSize, true))
	writeWord(epilogueHdr, packTag(0, true))

	a.prologue = prologueFtr // degenerate zero-payload block: its payload pointer is its footer
	a.epilogue = epilogueHdr

	if _, err := a.extend(chunkSize); err != nil {
		return err
	}
	return nil
}

// extend requests at least n bytes (rounded up to a double-word multiple)
// from the heap provider, installs the returned region as a new free
// block in place of the old epilogue, writes a fresh epilogue past it,
// and coalesces the new block with its predecessor. It returns the
// resulting free block's payload pointer, or an error if the provider
// refuses to grow.
func (a *Allocator) extend(n uintptr) (unsafe.Pointer, error) {
	n = roundupPow2(n, dwordSize)

	bp, err := a.lib.Request(int(n))
	if err != nil {
		return nil, ErrOutOfMemory
	}
	a.stats.Extends++
	a.stats.HeapBytes = a.lib.Size()

	// bp is the first byte past the old epilogue header: bp itself becomes
	// the new block's payload pointer, so its header is bp-W, which is
	// precisely the address the old epilogue header occupied.
	setTags(bp, n, false)
	a.epilogue = headerAddr(nextBlock(bp))
	writeWord(a.epilogue, packTag(0, true))

	a.listInsert(bp)
	return a.coalesce(bp), nil
}
