// Copyright 2017 The Memory Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package segalloc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestCheckHeapPassesOnFreshHeap(t *testing.T) {
	a := newTestAllocator(t)
	require.True(t, a.CheckHeap(false))
	require.True(t, a.CheckHeap(true))
}

func TestCheckHeapPassesAfterMixedWorkload(t *testing.T) {
	a := newTestAllocator(t)

	var ptrs []unsafe.Pointer
	for i := 0; i < 64; i++ {
		p, err := a.Malloc(uintptr(8 + i*3))
		require.NoError(t, err)
		ptrs = append(ptrs, p)
	}
	for i := 0; i < len(ptrs); i += 2 {
		require.NoError(t, a.Free(ptrs[i]))
	}

	require.True(t, a.CheckHeap(true))
}

func TestCheckHeapOnUninitializedAllocatorFails(t *testing.T) {
	var a Allocator
	require.False(t, a.CheckHeap(false))
}
