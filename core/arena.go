package core

import "errors"

var (
	ErrArenaFull    = errors.New("buffer arena exhausted")
	ErrBufferLeased = errors.New("buffer is leased to a DMA channel")
	ErrBufferRange  = errors.New("buffer index out of range")
)

// Arena owns the static backing storage that DMA transfers read from and
// write to. Buffers are carved out once at startup and never freed.
type Arena struct {
	store []uint16
	used  int
	base  uint32
}

// NewArena reserves capacity 16-bit words.
func NewArena(capacity int) *Arena {
	a := &Arena{store: make([]uint16, capacity)}
	a.base = arenaBase(a)
	return a
}

// Alloc carves n words out of the arena.
func (a *Arena) Alloc(n int) (*Buffer, error) {
	if n <= 0 || a.used+n > len(a.store) {
		return nil, ErrArenaFull
	}
	b := &Buffer{
		words: a.store[a.used : a.used+n : a.used+n],
		addr:  a.base + uint32(a.used)*2,
	}
	a.used += n
	return b, nil
}

// Free returns the number of unallocated words.
func (a *Arena) Free() int {
	return len(a.store) - a.used
}

// Base is the bus address of the first word.
func (a *Arena) Base() uint32 {
	return a.base
}

// Contains reports whether addr falls inside the arena.
func (a *Arena) Contains(addr uint32) bool {
	return addr >= a.base && addr < a.base+uint32(len(a.store))*2
}

// Load16 and Store16 are the memory port used by the simulated DMA engine.
func (a *Arena) Load16(addr uint32) (uint16, bool) {
	if !a.Contains(addr) {
		return 0, false
	}
	return a.store[(addr-a.base)/2], true
}

func (a *Arena) Store16(addr uint32, v uint16) bool {
	if !a.Contains(addr) {
		return false
	}
	a.store[(addr-a.base)/2] = v
	return true
}

// Buffer is a region of arena memory. Software may write it only while no
// DMA channel holds its lease; a channel takes the lease on Configure and
// gives it back on Stop.
type Buffer struct {
	words  []uint16
	addr   uint32
	leased bool
	holder int
}

func (b *Buffer) Len() int        { return len(b.words) }
func (b *Buffer) Address() uint32 { return b.addr }
func (b *Buffer) Leased() bool    { return b.leased }

// Holder returns the DMA channel number holding the lease, or 0.
func (b *Buffer) Holder() int {
	if !b.leased {
		return 0
	}
	return b.holder
}

// Fill copies vals into the buffer from index 0.
func (b *Buffer) Fill(vals []uint16) error {
	if b.leased {
		return ErrBufferLeased
	}
	if len(vals) > len(b.words) {
		return ErrBufferRange
	}
	copy(b.words, vals)
	return nil
}

// CopyTo copies the buffer into dst. Rejected while leased, since a
// peripheral-to-memory transfer may be writing it.
func (b *Buffer) CopyTo(dst []uint16) (int, error) {
	if b.leased {
		return 0, ErrBufferLeased
	}
	return copy(dst, b.words), nil
}

func (b *Buffer) lease(channel int) error {
	if b.leased && b.holder != channel {
		return ErrBufferLeased
	}
	b.leased = true
	b.holder = channel
	return nil
}

func (b *Buffer) release() {
	b.leased = false
	b.holder = 0
}

// at reads one word without the lease check; only valid for buffers that
// DMA reads from.
func (b *Buffer) at(i int) uint16 {
	return b.words[i]
}
