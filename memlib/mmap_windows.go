// Copyright 2011 Evan Shaw. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE-MMAP-GO file.

// Modifications (c) 2017 The Memory Authors.
// Further modifications for segalloc's memlib heap provider.

package memlib

import (
	"errors"
	"unsafe"

	"golang.org/x/sys/windows"
)

// handleMap lets unmap recover the mapping handle from the address the
// caller released.
var handleMap = map[uintptr]windows.Handle{}

func mmap0(size int) ([]byte, error) {
	h, err := windows.CreateFileMapping(windows.InvalidHandle, nil, windows.PAGE_READWRITE, uint32(uint64(size)>>32), uint32(size&0xFFFFFFFF), nil)
	if err != nil {
		return nil, err
	}

	addr, err := windows.MapViewOfFile(h, windows.FILE_MAP_WRITE, 0, 0, uintptr(size))
	if err != nil {
		return nil, err
	}

	if addr&uintptr(osPageMask) != 0 {
		panic("internal error: mmap returned unaligned region")
	}

	handleMap[addr] = h
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), size), nil
}

func unmap(addr unsafe.Pointer, size int) error {
	a := uintptr(addr)
	if err := windows.UnmapViewOfFile(a); err != nil {
		return err
	}

	handle, ok := handleMap[a]
	if !ok {
		return errors.New("memlib: unknown base address")
	}
	delete(handleMap, a)

	return windows.CloseHandle(handle)
}
