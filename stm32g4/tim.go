package stm32g4

import "wavedma/regs"

// General purpose timer registers (TIM2..TIM5).
var (
	TIM_CR1   = regs.Reg{Name: "CR1", Offset: 0x00}
	TIM_CR2   = regs.Reg{Name: "CR2", Offset: 0x04}
	TIM_SMCR  = regs.Reg{Name: "SMCR", Offset: 0x08}
	TIM_DIER  = regs.Reg{Name: "DIER", Offset: 0x0C}
	TIM_SR    = regs.Reg{Name: "SR", Offset: 0x10}
	TIM_EGR   = regs.Reg{Name: "EGR", Offset: 0x14}
	TIM_CCMR1 = regs.Reg{Name: "CCMR1", Offset: 0x18}
	TIM_CCMR2 = regs.Reg{Name: "CCMR2", Offset: 0x1C}
	TIM_CCER  = regs.Reg{Name: "CCER", Offset: 0x20}
	TIM_CNT   = regs.Reg{Name: "CNT", Offset: 0x24}
	TIM_PSC   = regs.Reg{Name: "PSC", Offset: 0x28}
	TIM_ARR   = regs.Reg{Name: "ARR", Offset: 0x2C}
	TIM_RCR   = regs.Reg{Name: "RCR", Offset: 0x30}
	TIM_CCR1  = regs.Reg{Name: "CCR1", Offset: 0x34}
	TIM_CCR2  = regs.Reg{Name: "CCR2", Offset: 0x38}
	TIM_CCR3  = regs.Reg{Name: "CCR3", Offset: 0x3C}
	TIM_CCR4  = regs.Reg{Name: "CCR4", Offset: 0x40}
	TIM_DCR   = regs.Reg{Name: "DCR", Offset: 0x3DC}
	TIM_DMAR  = regs.Reg{Name: "DMAR", Offset: 0x3E0}

	TIM_CCR = [4]regs.Reg{TIM_CCR1, TIM_CCR2, TIM_CCR3, TIM_CCR4}
)

var (
	TIM_CR1_CEN  = regs.Bit("CEN", TIM_CR1, 0)
	TIM_CR1_URS  = regs.Bit("URS", TIM_CR1, 2)
	TIM_CR1_ARPE = regs.Bit("ARPE", TIM_CR1, 7)

	TIM_CR2_CCDS = regs.Bit("CCDS", TIM_CR2, 3)

	TIM_DIER_UIE = regs.Bit("UIE", TIM_DIER, 0)
	TIM_DIER_UDE = regs.Bit("UDE", TIM_DIER, 8)

	TIM_SR_UIF   = regs.Bit("UIF", TIM_SR, 0)
	TIM_SR_CC1IF = regs.Bit("CC1IF", TIM_SR, 1)
	TIM_EGR_UG   = regs.Bit("UG", TIM_EGR, 0)

	TIM_PSC_PSC = regs.Field{Name: "PSC", Reg: TIM_PSC, Shift: 0, Width: 16}
	TIM_RCR_REP = regs.Field{Name: "REP", Reg: TIM_RCR, Shift: 0, Width: 16}

	TIM_DCR_DBA = regs.Field{Name: "DBA", Reg: TIM_DCR, Shift: 0, Width: 5}
	TIM_DCR_DBL = regs.Field{Name: "DBL", Reg: TIM_DCR, Shift: 8, Width: 5}
)

// TIM_DIER_CCDE returns the compare DMA request enable of channel ch (1-4).
func TIM_DIER_CCDE(ch int) regs.Field {
	return regs.Bit("CCDE", TIM_DIER, uint8(8+ch))
}

// TIM_CCER_CCE returns the output enable of channel ch (1-4).
func TIM_CCER_CCE(ch int) regs.Field {
	return regs.Bit("CCE", TIM_CCER, uint8(4*(ch-1)))
}

// TIM_CCER_CCP returns the output polarity of channel ch (1-4).
func TIM_CCER_CCP(ch int) regs.Field {
	return regs.Bit("CCP", TIM_CCER, uint8(4*(ch-1)+1))
}

// Output compare fields of channel ch. Each CCMR register holds two
// channels; the mode is split into three low bits and one high bit.
func ccmr(ch int) (regs.Reg, uint8) {
	if ch <= 2 {
		return TIM_CCMR1, uint8(8 * (ch - 1))
	}
	return TIM_CCMR2, uint8(8 * (ch - 3))
}

// TIM_CCMR_OCPE returns the compare preload enable of channel ch.
func TIM_CCMR_OCPE(ch int) regs.Field {
	r, s := ccmr(ch)
	return regs.Bit("OCPE", r, s+3)
}

// TIM_CCMR_OCM returns the low three mode bits of channel ch.
func TIM_CCMR_OCM(ch int) regs.Field {
	r, s := ccmr(ch)
	return regs.Field{Name: "OCM", Reg: r, Shift: s + 4, Width: 3}
}

// TIM_CCMR_OCM3 returns the high mode bit of channel ch.
func TIM_CCMR_OCM3(ch int) regs.Field {
	r, s := ccmr(ch)
	return regs.Bit("OCM3", r, s+16)
}

// TIM_CCMR_CCS returns the channel direction selection of channel ch.
func TIM_CCMR_CCS(ch int) regs.Field {
	r, s := ccmr(ch)
	return regs.Field{Name: "CCS", Reg: r, Shift: s, Width: 2}
}

// TimerBurstRegisters is the number of registers from CR1 reachable through
// DMAR: DBA counts 32-bit registers from CR1 up to OR.
const TimerBurstRegisters = 0x1B
