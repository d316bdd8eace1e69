// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import (
	"testing"
	"unsafe"

	"github.com/cznic/mathutil"
	"github.com/stretchr/testify/require"
)

func newTestAllocator(t *testing.T) *Allocator {
	t.Helper()
	a := &Allocator{}
	require.NoError(t, a.Init())
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// Allocating right after freeing the only block of that size must reuse
// it: the just-freed block is tried first (LIFO + first-fit).
func TestAllocFreeAllocReusesBlock(t *testing.T) {
	a := newTestAllocator(t)

	p1, err := a.Malloc(1)
	require.NoError(t, err)
	require.NoError(t, a.Free(p1))

	p2, err := a.Malloc(1)
	require.NoError(t, err)
	require.Equal(t, p1, p2)
	require.True(t, a.CheckHeap(false))
}

// Three same-size blocks carved from one chunk, freed out of order, must
// coalesce back into a single free block spanning at least all three.
func TestFreeOutOfOrderCoalescesFully(t *testing.T) {
	a := newTestAllocator(t)

	p1, err := a.Malloc(24)
	require.NoError(t, err)
	p2, err := a.Malloc(24)
	require.NoError(t, err)
	p3, err := a.Malloc(24)
	require.NoError(t, err)

	require.NoError(t, a.Free(p1))
	require.NoError(t, a.Free(p3))
	require.NoError(t, a.Free(p2))

	require.True(t, a.CheckHeap(false))
	require.False(t, allocOf(p1))
	// p1's merged block must now span at least the three original
	// blocks' combined size.
	want := requestedBlockSize(24) * 3
	require.GreaterOrEqual(t, sizeOf(p1), want)
}

// Shrinking realloc splits the block in place and leaves the remainder
// on a bin list, without moving the block.
func TestReallocShrinkSplitsInPlace(t *testing.T) {
	a := newTestAllocator(t)

	p, err := a.Malloc(100)
	require.NoError(t, err)
	old := sizeOf(p)
	// Pin down p's right neighbour as allocated so the split-off
	// remainder's exact size is observable instead of being absorbed by
	// a further coalesce against free space beyond it.
	_, err = a.Malloc(8)
	require.NoError(t, err)

	q, err := a.Realloc(p, 50)
	require.NoError(t, err)
	require.Equal(t, p, q)

	newSize := sizeOf(q)
	require.Less(t, newSize, old)

	rem := nextBlock(q)
	require.False(t, allocOf(rem))
	require.Equal(t, old-newSize, sizeOf(rem))
	require.True(t, a.CheckHeap(false))
}

// Growing realloc absorbs a free right-neighbour in place instead of
// moving the block.
func TestReallocGrowAbsorbsNextFree(t *testing.T) {
	a := newTestAllocator(t)

	p, err := a.Malloc(100)
	require.NoError(t, err)

	// Carve out and free a neighbour so there is free space right after p.
	filler, err := a.Malloc(512)
	require.NoError(t, err)
	require.NoError(t, a.Free(filler))
	require.False(t, allocOf(nextBlock(p)))

	q, err := a.Realloc(p, 200)
	require.NoError(t, err)
	require.Equal(t, p, q)
	require.True(t, a.CheckHeap(false))
}

// Reallocating to size zero frees the block and returns nil; a
// subsequent allocation of the same size may reuse its region.
func TestReallocZeroFreesAndReturnsNil(t *testing.T) {
	a := newTestAllocator(t)

	p, err := a.Malloc(64)
	require.NoError(t, err)

	r, err := a.Realloc(p, 0)
	require.NoError(t, err)
	require.Nil(t, r)

	q, err := a.Malloc(64)
	require.NoError(t, err)
	require.Equal(t, p, q)
}

// Freeing nil is a no-op.
func TestFreeNilIsNoop(t *testing.T) {
	a := newTestAllocator(t)
	require.NoError(t, a.Free(nil))
	require.Equal(t, 0, a.Stats().Allocs)
}

// Reallocating to the block's own current payload size returns the same
// pointer unchanged.
func TestReallocEqualSizeReturnsSamePointer(t *testing.T) {
	a := newTestAllocator(t)

	p, err := a.Malloc(48)
	require.NoError(t, err)
	payload := usableSize(p)

	q, err := a.Realloc(p, payload)
	require.NoError(t, err)
	require.Equal(t, p, q)
}

// Allocating a single byte rounds up to the minimum block size.
func TestAllocOneReturnsMinimumBlock(t *testing.T) {
	a := newTestAllocator(t)
	p, err := a.Malloc(1)
	require.NoError(t, err)
	require.Equal(t, minBlockSize, sizeOf(p))
}

// A request larger than the reservation fails cleanly without
// corrupting the heap for subsequent, reasonable requests.
func TestAllocBeyondCapacityFailsCleanly(t *testing.T) {
	a := newTestAllocator(t)

	_, err := a.Malloc(defaultReservation * 2)
	require.ErrorIs(t, err, ErrOutOfMemory)
	require.True(t, a.CheckHeap(false))

	p, err := a.Malloc(32)
	require.NoError(t, err)
	require.NotNil(t, p)
}

func TestMallocZeroReturnsNilWithoutError(t *testing.T) {
	a := newTestAllocator(t)
	p, err := a.Malloc(0)
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestCallocZeroesMemory(t *testing.T) {
	a := newTestAllocator(t)
	p, err := a.Calloc(64)
	require.NoError(t, err)

	b := unsafe.Slice((*byte)(p), 64)
	for i, v := range b {
		require.Zerof(t, v, "byte %d not zeroed", i)
	}
}

func TestOperationsBeforeInitFail(t *testing.T) {
	var a Allocator
	_, err := a.Malloc(8)
	require.ErrorIs(t, err, ErrNotInitialized)
	require.ErrorIs(t, a.Free(nil), ErrNotInitialized)
}

func TestInitTwiceFails(t *testing.T) {
	a := newTestAllocator(t)
	require.ErrorIs(t, a.Init(), ErrAlreadyInitialized)
}

// Randomized soak test: drive a full cycle of allocate-fill / verify /
// free with a deterministic full-cycle PRNG, checking heap invariants
// throughout and confirming every byte survives until it is freed.
func TestSoakRandomAllocFree(t *testing.T) {
	const quota = 512 << 10
	a := newTestAllocator(t)

	rng, err := mathutil.NewFC32(1, 512, true)
	require.NoError(t, err)
	rng.Seed(42)

	var ptrs []unsafe.Pointer
	var sizes []int
	rem := quota
	for rem > 0 {
		size := rng.Next()
		rem -= size
		p, err := a.Malloc(uintptr(size))
		require.NoError(t, err)
		b := unsafe.Slice((*byte)(p), size)
		for i := range b {
			b[i] = byte(size + i)
		}
		ptrs = append(ptrs, p)
		sizes = append(sizes, size)
		require.True(t, a.CheckHeap(false))
	}

	for i, p := range ptrs {
		b := unsafe.Slice((*byte)(p), sizes[i])
		for j, v := range b {
			require.Equal(t, byte(sizes[i]+j), v)
		}
	}

	// Free in reverse order, exercising the coalescer's merge with a free
	// next neighbour repeatedly.
	for i := len(ptrs) - 1; i >= 0; i-- {
		require.NoError(t, a.Free(ptrs[i]))
		require.True(t, a.CheckHeap(false))
	}
	require.Equal(t, 0, a.Stats().Allocs)
}

// Repeatedly allocate fixed-size blocks until the heap provider refuses
// to grow further, then free them all in reverse order; the heap must
// fully coalesce back down and report zero outstanding allocations.
func TestExhaustionThenFullRecovery(t *testing.T) {
	a := &Allocator{}
	require.NoError(t, a.initWithCapacity(64<<10)) // small heap: exhaust quickly
	t.Cleanup(func() { _ = a.Close() })

	const blockSize = 256
	var ptrs []unsafe.Pointer
	for {
		p, err := a.Malloc(blockSize)
		if err != nil {
			require.ErrorIs(t, err, ErrOutOfMemory)
			break
		}
		ptrs = append(ptrs, p)
		if len(ptrs) > 1<<16 {
			t.Fatal("allocator never reported out of memory")
		}
	}
	require.NotEmpty(t, ptrs)
	require.True(t, a.CheckHeap(false))

	for i := len(ptrs) - 1; i >= 0; i-- {
		require.NoError(t, a.Free(ptrs[i]))
	}
	require.Equal(t, 0, a.Stats().Allocs)
	require.True(t, a.CheckHeap(false))
}
