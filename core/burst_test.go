package core

import (
	"errors"
	"testing"

	"wavedma/stm32g4"
)

func TestBurstDCR(t *testing.T) {
	d := BurstDescriptor{BaseOffset: 13, Length: 4, ItemWidth: Size16}
	if d.DCR() != 0x030D {
		t.Errorf("DCR = 0x%04X, want 0x030D", d.DCR())
	}
	for k := 0; k < 4; k++ {
		if got, want := d.TargetOffset(k), stm32g4.TIM_CCR[k].Offset; got != want {
			t.Errorf("TargetOffset(%d) = 0x%X, want 0x%X", k, got, want)
		}
	}
}

func TestBurstValidate(t *testing.T) {
	table, err := BuildTable(NewArena(512), 128, 4, 840, QuadraturePattern)
	if err != nil {
		t.Fatal(err)
	}
	odd, err := TableFromValues(NewArena(8), 2, []uint16{1, 2, 3, 4, 5, 6})
	if err != nil {
		t.Fatal(err)
	}

	testCases := []struct {
		name    string
		d       BurstDescriptor
		table   *DutyTable
		wantErr error
	}{
		{"ccr window", BurstDescriptor{13, 4, Size16}, table, nil},
		{"no table", BurstDescriptor{13, 4, Size16}, nil, nil},
		{"empty", BurstDescriptor{13, 0, Size16}, table, ErrBurstWindow},
		{"too long", BurstDescriptor{0, 19, Size16}, nil, ErrBurstWindow},
		{"past registers", BurstDescriptor{25, 4, Size16}, nil, ErrBurstWindow},
		{"wider than stride", BurstDescriptor{13, 4, Size32}, table, ErrBurstStride},
		{"length not dividing table", BurstDescriptor{13, 4, Size16}, odd, ErrBurstStride},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.d.Validate(tc.table); !errors.Is(err, tc.wantErr) {
				t.Errorf("Validate = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
