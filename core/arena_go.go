//go:build !tinygo

package core

import "wavedma/stm32g4"

// Host arenas get distinct synthetic SRAM addresses so the simulator can
// route DMA memory accesses to the right backing slice.
var nextArenaBase uint32 = stm32g4.SRAMBase

func arenaBase(a *Arena) uint32 {
	base := nextArenaBase
	size := (uint32(len(a.store))*2 + 0xFFF) &^ 0xFFF
	if size == 0 {
		size = 0x1000
	}
	nextArenaBase += size
	return base
}
