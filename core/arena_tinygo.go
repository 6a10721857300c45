//go:build tinygo

package core

import "unsafe"

func arenaBase(a *Arena) uint32 {
	if len(a.store) == 0 {
		return 0
	}
	return uint32(uintptr(unsafe.Pointer(&a.store[0])))
}
