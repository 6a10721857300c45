package core

import (
	"errors"
	"testing"
)

func TestPeakFromMaxDuty(t *testing.T) {
	testCases := []struct {
		maxDuty, percent, want uint32
	}{
		{8499, 10, 840},
		{8499, 100, 8400},
		{99, 50, 0},
		{1000, 25, 250},
	}
	for _, tc := range testCases {
		if got := PeakFromMaxDuty(tc.maxDuty, tc.percent); got != tc.want {
			t.Errorf("PeakFromMaxDuty(%d, %d) = %d, want %d", tc.maxDuty, tc.percent, got, tc.want)
		}
	}
}

func TestBuildQuadratureTable(t *testing.T) {
	a := NewArena(1024)
	table, err := BuildTable(a, 128, 4, 840, QuadraturePattern)
	if err != nil {
		t.Fatalf("BuildTable: %v", err)
	}
	if table.Len() != 512 || table.Steps() != 128 || table.Stride() != 4 {
		t.Fatalf("shape = len %d steps %d stride %d", table.Len(), table.Steps(), table.Stride())
	}

	rows := [][]uint16{
		{840, 0, 840, 0},
		{0, 840, 840, 0},
		{0, 840, 0, 840},
		{840, 0, 0, 840},
	}
	for step := 0; step < table.Steps(); step++ {
		want := rows[step%4]
		for ch := 0; ch < 4; ch++ {
			if got := table.At(step*4 + ch); got != want[ch] {
				t.Fatalf("step %d ch %d = %d, want %d", step, ch+1, got, want[ch])
			}
		}
	}
	if a.Free() != 1024-512 {
		t.Errorf("arena free = %d, want %d", a.Free(), 1024-512)
	}
}

func TestBuildTablePeak100(t *testing.T) {
	table, err := BuildTable(NewArena(512), 128, 4, 100, QuadraturePattern)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint16{100, 0, 100, 0, 0, 100, 100, 0}
	for i, w := range want {
		if got := table.At(i); got != w {
			t.Errorf("entry %d = %d, want %d", i, got, w)
		}
	}
}

func TestBuildTableShapes(t *testing.T) {
	testCases := []struct {
		name    string
		steps   int
		pattern PhasePattern
	}{
		{"3 rows 2 channels", 7, PhasePattern{{1, 0}, {0, 1}, {1, 1}}},
		{"1 row 5 channels", 4, PhasePattern{{1, 0, 2, 0, 3}}},
		{"2 rows 3 channels", 5, PhasePattern{{0, 1, 0}, {2, 0, 1}}},
		{"5 rows 1 channel", 11, PhasePattern{{0}, {1}, {2}, {3}, {4}}},
	}
	for _, tc := range testCases {
		channels := len(tc.pattern[0])
		for _, peak := range []uint32{0, 1, 100, 840} {
			t.Run(tc.name, func(t *testing.T) {
				table, err := BuildTable(NewArena(256), tc.steps, channels, peak, tc.pattern)
				if err != nil {
					t.Fatalf("peak %d: %v", peak, err)
				}
				if table.Len() != tc.steps*channels || table.Stride() != channels || table.Steps() != tc.steps {
					t.Fatalf("peak %d: len %d stride %d steps %d", peak, table.Len(), table.Stride(), table.Steps())
				}
				for step := 0; step < tc.steps; step++ {
					row := tc.pattern[step%len(tc.pattern)]
					for ch := 0; ch < channels; ch++ {
						want := uint16(uint32(row[ch]) * peak)
						if got := table.At(step*channels + ch); got != want {
							t.Fatalf("peak %d step %d ch %d = %d, want %d", peak, step, ch, got, want)
						}
					}
				}
			})
		}
	}
}

func TestBuildTableRejects(t *testing.T) {
	testCases := []struct {
		name    string
		steps   int
		chans   int
		peak    uint32
		pattern PhasePattern
		wantErr error
	}{
		{"no steps", 0, 4, 840, QuadraturePattern, ErrTableShape},
		{"no pattern", 4, 4, 840, nil, ErrTableShape},
		{"ragged", 4, 4, 840, PhasePattern{{1, 0, 1}}, ErrTableShape},
		{"overflow", 4, 4, 70000, QuadraturePattern, ErrDutyOverflow},
		{"too big for arena", 1000, 4, 840, QuadraturePattern, ErrArenaFull},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := BuildTable(NewArena(64), tc.steps, tc.chans, tc.peak, tc.pattern)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("BuildTable error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTableFromValues(t *testing.T) {
	a := NewArena(16)
	if _, err := TableFromValues(a, 4, []uint16{1, 2, 3}); !errors.Is(err, ErrTableShape) {
		t.Fatalf("ragged values error = %v, want ErrTableShape", err)
	}
	table, err := TableFromValues(a, 2, []uint16{10, 20, 30, 40})
	if err != nil {
		t.Fatalf("TableFromValues: %v", err)
	}
	got := table.Values()
	got[0] = 99
	if table.At(0) != 10 {
		t.Errorf("Values returned the backing slice")
	}
	if table.Steps() != 2 {
		t.Errorf("Steps = %d, want 2", table.Steps())
	}
}
