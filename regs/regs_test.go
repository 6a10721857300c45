package regs

import (
	"errors"
	"testing"
)

var (
	testCR   = Reg{Name: "CR", Offset: 0x00}
	testSR   = Reg{Name: "SR", Offset: 0x04}
	testICR  = Reg{Name: "ICR", Offset: 0x08}
	testEN   = Bit("EN", testCR, 0)
	testMode = Field{Name: "MODE", Reg: testCR, Shift: 4, Width: 3}
	testPL   = Field{Name: "PL", Reg: testCR, Shift: 12, Width: 2}
)

func newTestWindow() (*Window, *MemBank) {
	bank := NewMemBank(0x10)
	return NewWindow("TEST", 0x4000_0000, 0x10, bank), bank
}

func TestFieldEncode(t *testing.T) {
	testCases := []struct {
		name    string
		field   Field
		value   uint32
		want    uint32
		wantErr error
	}{
		{"bit set", testEN, 1, 0x1, nil},
		{"bit overflow", testEN, 2, 0, ErrFieldOverflow},
		{"mode max", testMode, 7, 0x70, nil},
		{"mode overflow", testMode, 8, 0, ErrFieldOverflow},
		{"priority", testPL, 1, 0x1000, nil},
		{"full width", Field{Name: "ALL", Reg: testCR, Width: 32}, 0xFFFF_FFFF, 0xFFFF_FFFF, nil},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.field.Encode(tc.value)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Encode(%d) error = %v, want %v", tc.value, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("Encode(%d) = 0x%X, want 0x%X", tc.value, got, tc.want)
			}
		})
	}
}

func TestWindowSetRejectsOverflowWithoutWriting(t *testing.T) {
	w, bank := newTestWindow()
	w.Write(testCR, 0x50)
	before := bank.Writes(testCR.Offset)

	if err := w.Set(testMode, 9); !errors.Is(err, ErrFieldOverflow) {
		t.Fatalf("Set overflow error = %v, want ErrFieldOverflow", err)
	}
	if bank.Writes(testCR.Offset) != before {
		t.Errorf("overflowing Set wrote the register")
	}
	if got := w.Read(testCR); got != 0x50 {
		t.Errorf("CR = 0x%X after rejected Set, want 0x50", got)
	}
}

func TestWindowApplyPreservesOtherBits(t *testing.T) {
	w, _ := newTestWindow()
	w.Write(testCR, 0xFFFF_0000)

	if err := w.Apply(testEN.With(1), testMode.With(5)); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if got := w.Read(testCR); got != 0xFFFF_0051 {
		t.Errorf("CR = 0x%X, want 0xFFFF0051", got)
	}
	if got := w.Get(testMode); got != 5 {
		t.Errorf("MODE = %d, want 5", got)
	}
}

func TestComposeRejectsMixedRegisters(t *testing.T) {
	other := Bit("X", testSR, 0)
	if _, err := Compose(testEN.With(1), other.With(1)); !errors.Is(err, ErrWrongRegister) {
		t.Errorf("Compose mixed registers error = %v, want ErrWrongRegister", err)
	}
}

func TestWindowOutOfRangePanics(t *testing.T) {
	w, _ := newTestWindow()
	testCases := []Reg{
		{Name: "past end", Offset: 0x10},
		{Name: "misaligned", Offset: 0x02},
	}
	for _, r := range testCases {
		t.Run(r.Name, func(t *testing.T) {
			defer func() {
				rec := recover()
				if _, ok := rec.(*AccessError); !ok {
					t.Errorf("recover() = %v, want *AccessError", rec)
				}
			}()
			w.Read(r)
		})
	}
}

func TestWindowAddress(t *testing.T) {
	w, _ := newTestWindow()
	if got := w.Address(testICR); got != 0x4000_0008 {
		t.Errorf("Address(ICR) = 0x%X, want 0x40000008", got)
	}
}

func TestClearOnWriteHook(t *testing.T) {
	w, bank := newTestWindow()
	bank.Poke(testSR.Offset, 0xF)
	bank.OnWrite(testICR.Offset, ClearOnWrite(bank, testSR.Offset))

	w.Write(testICR, 0x2)
	if got := w.Read(testSR); got != 0xD {
		t.Errorf("SR = 0x%X after clearing bit 1, want 0xD", got)
	}
	if got := w.Read(testICR); got != 0 {
		t.Errorf("ICR reads 0x%X, want 0", got)
	}
}
