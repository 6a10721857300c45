package regs

// WriteHook transforms a software write before it lands in a MemBank.
// It receives the stored value and the written value and returns the value
// to store. Used for write-one-to-clear and read-only registers.
type WriteHook func(old, written uint32) uint32

// MemBank is a word-addressed register bank backed by ordinary memory.
// Host tests and the simulator use it in place of real MMIO.
type MemBank struct {
	words  []uint32
	hooks  map[uint32]WriteHook
	writes map[uint32]int
}

// NewMemBank creates a zeroed bank covering size bytes.
func NewMemBank(size uint32) *MemBank {
	return &MemBank{
		words:  make([]uint32, (size+3)/4),
		hooks:  make(map[uint32]WriteHook),
		writes: make(map[uint32]int),
	}
}

func (b *MemBank) Load(off uint32) uint32 {
	return b.words[off/4]
}

// Store is the software write path: hooks run and the write is counted.
func (b *MemBank) Store(off uint32, v uint32) {
	idx := off / 4
	if hook, ok := b.hooks[off]; ok {
		v = hook(b.words[idx], v)
	}
	b.words[idx] = v
	b.writes[off]++
}

// Poke is the hardware write path: no hooks, no counting.
func (b *MemBank) Poke(off uint32, v uint32) {
	b.words[off/4] = v
}

// OnWrite installs a hook for software writes to off.
func (b *MemBank) OnWrite(off uint32, hook WriteHook) {
	b.hooks[off] = hook
}

// Writes returns how many software writes hit off.
func (b *MemBank) Writes(off uint32) int {
	return b.writes[off]
}

// ClearOnWrite returns a hook for write-one-to-clear flag registers paired
// with a status register: every bit written as one is cleared in target.
func ClearOnWrite(target *MemBank, statusOff uint32) WriteHook {
	return func(old, written uint32) uint32 {
		target.Poke(statusOff, target.Load(statusOff)&^written)
		return 0
	}
}

// ReadOnly returns a hook that discards software writes.
func ReadOnly() WriteHook {
	return func(old, written uint32) uint32 { return old }
}

// WriteOneToClear returns a hook for flag registers where writing one
// clears the bit and writing zero leaves it.
func WriteOneToClear() WriteHook {
	return func(old, written uint32) uint32 { return old &^ written }
}

// ClearOnZero returns a hook for status registers whose bits software can
// only clear, by writing zero to them.
func ClearOnZero() WriteHook {
	return func(old, written uint32) uint32 { return old & written }
}
