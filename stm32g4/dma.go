package stm32g4

import "wavedma/regs"

var (
	DMA_ISR  = regs.Reg{Name: "ISR", Offset: 0x00}
	DMA_IFCR = regs.Reg{Name: "IFCR", Offset: 0x04}
)

// DMAChannelRegs groups the per-channel registers of one DMA channel.
type DMAChannelRegs struct {
	CCR   regs.Reg
	CNDTR regs.Reg
	CPAR  regs.Reg
	CMAR  regs.Reg
}

// DMAChannel returns the register set of channel n (1-based).
func DMAChannel(n int) DMAChannelRegs {
	off := uint32(0x14 * (n - 1))
	return DMAChannelRegs{
		CCR:   regs.Reg{Name: "CCR", Offset: 0x08 + off},
		CNDTR: regs.Reg{Name: "CNDTR", Offset: 0x0C + off},
		CPAR:  regs.Reg{Name: "CPAR", Offset: 0x10 + off},
		CMAR:  regs.Reg{Name: "CMAR", Offset: 0x14 + off},
	}
}

// CCR fields, positioned for any channel's CCR register.
func DMA_CCR_EN(ccr regs.Reg) regs.Field      { return regs.Bit("EN", ccr, 0) }
func DMA_CCR_TCIE(ccr regs.Reg) regs.Field    { return regs.Bit("TCIE", ccr, 1) }
func DMA_CCR_HTIE(ccr regs.Reg) regs.Field    { return regs.Bit("HTIE", ccr, 2) }
func DMA_CCR_TEIE(ccr regs.Reg) regs.Field    { return regs.Bit("TEIE", ccr, 3) }
func DMA_CCR_DIR(ccr regs.Reg) regs.Field     { return regs.Bit("DIR", ccr, 4) }
func DMA_CCR_CIRC(ccr regs.Reg) regs.Field    { return regs.Bit("CIRC", ccr, 5) }
func DMA_CCR_PINC(ccr regs.Reg) regs.Field    { return regs.Bit("PINC", ccr, 6) }
func DMA_CCR_MINC(ccr regs.Reg) regs.Field    { return regs.Bit("MINC", ccr, 7) }
func DMA_CCR_MEM2MEM(ccr regs.Reg) regs.Field { return regs.Bit("MEM2MEM", ccr, 14) }

func DMA_CCR_PSIZE(ccr regs.Reg) regs.Field {
	return regs.Field{Name: "PSIZE", Reg: ccr, Shift: 8, Width: 2}
}

func DMA_CCR_MSIZE(ccr regs.Reg) regs.Field {
	return regs.Field{Name: "MSIZE", Reg: ccr, Shift: 10, Width: 2}
}

func DMA_CCR_PL(ccr regs.Reg) regs.Field {
	return regs.Field{Name: "PL", Reg: ccr, Shift: 12, Width: 2}
}

func DMA_CNDTR_NDT(cndtr regs.Reg) regs.Field {
	return regs.Field{Name: "NDT", Reg: cndtr, Shift: 0, Width: 16}
}

// ISR/IFCR hold four flags per channel.
const (
	DMAFlagGIF  = 0
	DMAFlagTCIF = 1
	DMAFlagHTIF = 2
	DMAFlagTEIF = 3
)

// DMAFlag returns the ISR (or IFCR) bit of flag for channel n.
func DMAFlag(n int, flag uint8) regs.Field {
	return regs.Bit("IF", DMA_ISR, uint8(4*(n-1))+flag)
}

// DMAClear returns the IFCR bit clearing flag for channel n.
func DMAClear(n int, flag uint8) regs.Field {
	return regs.Bit("CIF", DMA_IFCR, uint8(4*(n-1))+flag)
}

// DMAChannelFlags masks all four flags of channel n.
func DMAChannelFlags(n int) uint32 {
	return 0xF << (4 * uint(n-1))
}

// DMAMUX channel configuration. DMA1 channel n is served by DMAMUX
// channel n-1.
func DMAMUX_CCR(n int) regs.Reg {
	return regs.Reg{Name: "CxCR", Offset: uint32(4 * (n - 1))}
}

func DMAMUX_CCR_DMAREQ_ID(n int) regs.Field {
	return regs.Field{Name: "DMAREQ_ID", Reg: DMAMUX_CCR(n), Shift: 0, Width: 7}
}
