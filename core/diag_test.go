package core

import (
	"strings"
	"testing"

	"wavedma/stm32g4"
)

func TestFormatSnapshot(t *testing.T) {
	testCases := []struct {
		name string
		s    Snapshot
		want string
	}{
		{
			"running",
			Snapshot{Tick: 5, ARR: 8499, CCR: [4]uint32{840, 0, 840, 0}, Remaining: 508, Channel: StateEnabled, Timer: TimerRunning},
			"[DIAG] t=5 psc=0 arr=8499 rcr=0 ccr=840,0,840,0 ndt=508 dma=enabled tim=running",
		},
		{
			"errors and adc",
			Snapshot{ARR: 8499, Channel: StateConfigured, Timer: TimerArmed, TransferErrors: 2, ADCRaw: 2048, ADCMilliVolts: 1650},
			"[DIAG] t=0 psc=0 arr=8499 rcr=0 ccr=0,0,0,0 ndt=0 dma=configured tim=armed te=2 adc=2048 mv=1650",
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FormatSnapshot(tc.s); got != tc.want {
				t.Errorf("FormatSnapshot =\n%s\nwant\n%s", got, tc.want)
			}
		})
	}
}

func TestDiagnosticsSample(t *testing.T) {
	tim, bank, _, set := newTestTimer(t)
	lines := resetDebug(t)
	tim.ConfigureFrequency(20_000, 170_000_000)
	dma := NewDMA(mustTake(t, set, "DMA1"), mustTake(t, set, "DMAMUX1"), stm32g4.DMA1Channels)
	ch, _ := dma.Channel(1)
	buf, _ := NewArena(512).Alloc(512)
	port, _ := tim.BurstDestination(BurstDescriptor{13, 4, Size16})
	ch.Configure(buf, port, waveformConfig())
	ch.Enable()

	for i, v := range []uint32{840, 0, 840, 0} {
		bank.Poke(stm32g4.TIM_CCR[i].Offset, v)
	}
	diag := NewDiagnostics(tim, ch)
	var sunk []Snapshot
	diag.OnReport(func(s Snapshot) { sunk = append(sunk, s) })

	s := diag.Report()
	if s.ARR != 8499 || s.CCR != [4]uint32{840, 0, 840, 0} || s.Remaining != 512 || s.Channel != StateEnabled {
		t.Errorf("snapshot = %+v", s)
	}
	if len(sunk) != 1 || sunk[0] != s || diag.Last() != s {
		t.Errorf("sink saw %v", sunk)
	}
	if len(*lines) != 1 || !strings.HasPrefix((*lines)[0], "[DIAG] ") {
		t.Errorf("lines = %q", *lines)
	}
	for _, want := range []string{"arr=8499", "ccr=840,0,840,0", "ndt=512", "dma=enabled"} {
		if !strings.Contains((*lines)[0], want) {
			t.Errorf("report %q missing %q", (*lines)[0], want)
		}
	}
	if bank.Writes(stm32g4.TIM_CCR1.Offset) != 0 {
		t.Error("sampling wrote CCR1")
	}
}
