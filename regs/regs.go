// Package regs provides typed access to memory-mapped peripheral register
// blocks. A Window covers one peripheral's register block and only accepts
// accesses that fall inside it; Fields name bit ranges inside a register and
// refuse values that do not fit.
package regs

import (
	"errors"
	"strconv"
)

var (
	ErrFieldOverflow = errors.New("regs: value does not fit field")
	ErrWrongRegister = errors.New("regs: field belongs to another register")
)

// Reg names one 32-bit register by its byte offset from the block base.
type Reg struct {
	Name   string
	Offset uint32
}

// Field names a contiguous bit range inside a register.
type Field struct {
	Name  string
	Reg   Reg
	Shift uint8
	Width uint8
}

// Bit is shorthand for a one-bit field.
func Bit(name string, r Reg, shift uint8) Field {
	return Field{Name: name, Reg: r, Shift: shift, Width: 1}
}

// Max returns the largest value the field can hold.
func (f Field) Max() uint32 {
	return uint32((uint64(1) << f.Width) - 1)
}

// Mask returns the field's bits in register position.
func (f Field) Mask() uint32 {
	return f.Max() << f.Shift
}

// Encode shifts v into register position.
func (f Field) Encode(v uint32) (uint32, error) {
	if v > f.Max() {
		return 0, ErrFieldOverflow
	}
	return v << f.Shift, nil
}

// Extract pulls the field value out of a full register word.
func (f Field) Extract(word uint32) uint32 {
	return (word & f.Mask()) >> f.Shift
}

// With pairs the field with a value for Compose and Apply.
func (f Field) With(v uint32) FieldValue {
	return FieldValue{Field: f, Value: v}
}

// FieldValue is a field and the value destined for it.
type FieldValue struct {
	Field Field
	Value uint32
}

// Compose builds a register word from field values. All fields must live in
// the same register.
func Compose(vals ...FieldValue) (uint32, error) {
	var word uint32
	for i, fv := range vals {
		if i > 0 && fv.Field.Reg != vals[0].Field.Reg {
			return 0, ErrWrongRegister
		}
		enc, err := fv.Field.Encode(fv.Value)
		if err != nil {
			return 0, err
		}
		word = word&^fv.Field.Mask() | enc
	}
	return word, nil
}

// Bank is the raw storage behind a Window. Offsets are relative to the
// block base.
type Bank interface {
	Load(off uint32) uint32
	Store(off uint32, v uint32)
}

// AccessError is raised (as a panic value) when code touches a register
// outside its window. That is a programming fault, not a runtime condition.
type AccessError struct {
	Window string
	Offset uint32
}

func (e *AccessError) Error() string {
	return "regs: offset 0x" + strconv.FormatUint(uint64(e.Offset), 16) +
		" outside window " + e.Window
}

// Window is a capability over one peripheral register block.
type Window struct {
	name string
	base uint32
	size uint32
	bank Bank
}

// NewWindow creates a window of size bytes at bus address base.
func NewWindow(name string, base, size uint32, bank Bank) *Window {
	return &Window{name: name, base: base, size: size, bank: bank}
}

func (w *Window) Name() string { return w.name }
func (w *Window) Base() uint32 { return w.base }
func (w *Window) Size() uint32 { return w.size }

// Address returns the bus address of r.
func (w *Window) Address(r Reg) uint32 {
	w.check(r)
	return w.base + r.Offset
}

func (w *Window) check(r Reg) {
	if r.Offset%4 != 0 || r.Offset+4 > w.size {
		panic(&AccessError{Window: w.name, Offset: r.Offset})
	}
}

func (w *Window) Read(r Reg) uint32 {
	w.check(r)
	return w.bank.Load(r.Offset)
}

func (w *Window) Write(r Reg, v uint32) {
	w.check(r)
	w.bank.Store(r.Offset, v)
}

// Get reads one field.
func (w *Window) Get(f Field) uint32 {
	return f.Extract(w.Read(f.Reg))
}

// IsSet reports whether any bit of f is set.
func (w *Window) IsSet(f Field) bool {
	return w.Read(f.Reg)&f.Mask() != 0
}

// Set writes one field with a read-modify-write. Nothing is written when v
// does not fit.
func (w *Window) Set(f Field, v uint32) error {
	return w.Apply(f.With(v))
}

// Apply updates several fields of one register with a single
// read-modify-write.
func (w *Window) Apply(vals ...FieldValue) error {
	if len(vals) == 0 {
		return nil
	}
	word, err := Compose(vals...)
	if err != nil {
		return err
	}
	var mask uint32
	for _, fv := range vals {
		mask |= fv.Field.Mask()
	}
	r := vals[0].Field.Reg
	w.Write(r, w.Read(r)&^mask|word)
	return nil
}

// Store composes the fields and writes the whole register; bits not named
// are written as zero.
func (w *Window) Store(vals ...FieldValue) error {
	if len(vals) == 0 {
		return nil
	}
	word, err := Compose(vals...)
	if err != nil {
		return err
	}
	w.Write(vals[0].Field.Reg, word)
	return nil
}

func (w *Window) SetBits(r Reg, mask uint32) {
	w.Write(r, w.Read(r)|mask)
}

func (w *Window) ClearBits(r Reg, mask uint32) {
	w.Write(r, w.Read(r)&^mask)
}

// Modify applies fn to the current register value and writes the result.
func (w *Window) Modify(r Reg, fn func(uint32) uint32) {
	w.Write(r, fn(w.Read(r)))
}
