package stm32g4

import "testing"

func TestDMAChannelOffsets(t *testing.T) {
	testCases := []struct {
		channel                int
		ccr, cndtr, cpar, cmar uint32
	}{
		{1, 0x08, 0x0C, 0x10, 0x14},
		{2, 0x1C, 0x20, 0x24, 0x28},
		{6, 0x6C, 0x70, 0x74, 0x78},
	}
	for _, tc := range testCases {
		r := DMAChannel(tc.channel)
		if r.CCR.Offset != tc.ccr || r.CNDTR.Offset != tc.cndtr ||
			r.CPAR.Offset != tc.cpar || r.CMAR.Offset != tc.cmar {
			t.Errorf("DMAChannel(%d) = %+v", tc.channel, r)
		}
	}
}

func TestDMAFlagBits(t *testing.T) {
	if m := DMAFlag(1, DMAFlagTCIF).Mask(); m != 0x2 {
		t.Errorf("ch1 TCIF mask = 0x%X, want 0x2", m)
	}
	if m := DMAFlag(2, DMAFlagTEIF).Mask(); m != 0x80 {
		t.Errorf("ch2 TEIF mask = 0x%X, want 0x80", m)
	}
	if m := DMAChannelFlags(3); m != 0xF00 {
		t.Errorf("ch3 flags = 0x%X, want 0xF00", m)
	}
}

func TestTimerChannelFields(t *testing.T) {
	testCases := []struct {
		name string
		mask uint32
		reg  string
		want uint32
	}{
		{"CC1DE", TIM_DIER_CCDE(1).Mask(), TIM_DIER_CCDE(1).Reg.Name, 1 << 9},
		{"CC4DE", TIM_DIER_CCDE(4).Mask(), TIM_DIER_CCDE(4).Reg.Name, 1 << 12},
		{"OC1M", TIM_CCMR_OCM(1).Mask(), TIM_CCMR_OCM(1).Reg.Name, 0x70},
		{"OC2PE", TIM_CCMR_OCPE(2).Mask(), TIM_CCMR_OCPE(2).Reg.Name, 1 << 11},
		{"OC3M", TIM_CCMR_OCM(3).Mask(), TIM_CCMR_OCM(3).Reg.Name, 0x70},
		{"OC4M3", TIM_CCMR_OCM3(4).Mask(), TIM_CCMR_OCM3(4).Reg.Name, 1 << 24},
		{"CC3E", TIM_CCER_CCE(3).Mask(), TIM_CCER_CCE(3).Reg.Name, 1 << 8},
	}
	wantReg := map[string]string{
		"CC1DE": "DIER", "CC4DE": "DIER", "OC1M": "CCMR1", "OC2PE": "CCMR1",
		"OC3M": "CCMR2", "OC4M3": "CCMR2", "CC3E": "CCER",
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if tc.mask != tc.want {
				t.Errorf("mask = 0x%X, want 0x%X", tc.mask, tc.want)
			}
			if tc.reg != wantReg[tc.name] {
				t.Errorf("register = %s, want %s", tc.reg, wantReg[tc.name])
			}
		})
	}
}

func TestBurstTargetIsCCR1(t *testing.T) {
	// DBA counts registers from CR1; CCR1 sits at index 13.
	if TIM_CCR1.Offset/4 != 0xD {
		t.Errorf("CCR1 index = %d, want 13", TIM_CCR1.Offset/4)
	}
}

func TestRequestLookup(t *testing.T) {
	id, ok := RequestByName("TIM2_UP")
	if !ok || id != 60 {
		t.Errorf("RequestByName(TIM2_UP) = %d, %v; want 60, true", id, ok)
	}
	if ReqTIM2_CH1 != 56 {
		t.Errorf("TIM2_CH1 = %d, want 56", ReqTIM2_CH1)
	}
	if RequestID(99).Known() {
		t.Error("request 99 reported as known")
	}
}
