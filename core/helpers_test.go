package core

import (
	"testing"

	"wavedma/regs"
	"wavedma/stm32g4"
)

// testBanks builds memory banks for every block with the flag semantics the
// drivers depend on: DMA IFCR clears ISR bits, TIM SR bits only clear and
// the ADC calibrates and readies at once.
func testBanks() (map[string]*regs.MemBank, *PeripheralSet) {
	banks := make(map[string]*regs.MemBank)
	var windows []*regs.Window
	for _, b := range stm32g4.Blocks {
		bank := regs.NewMemBank(b.Size)
		switch b.Name {
		case "DMA1":
			bank.OnWrite(stm32g4.DMA_IFCR.Offset, regs.ClearOnWrite(bank, stm32g4.DMA_ISR.Offset))
			bank.OnWrite(stm32g4.DMA_ISR.Offset, regs.ReadOnly())
		case "TIM2", "TIM3":
			bank.OnWrite(stm32g4.TIM_SR.Offset, regs.ClearOnZero())
		case "ADC1":
			adcInstant(bank)
		}
		banks[b.Name] = bank
		windows = append(windows, regs.NewWindow(b.Name, b.Base, b.Size, bank))
	}
	return banks, NewPeripheralSet(windows...)
}

// adcInstant makes calibration finish and ADRDY rise as soon as they are
// requested.
func adcInstant(bank *regs.MemBank) {
	isr := stm32g4.ADC_ISR.Offset
	bank.OnWrite(isr, regs.WriteOneToClear())
	bank.OnWrite(stm32g4.ADC_CR.Offset, func(old, v uint32) uint32 {
		v &^= stm32g4.ADC_CR_ADCAL.Mask()
		if v&stm32g4.ADC_CR_ADEN.Mask() != 0 && old&stm32g4.ADC_CR_ADEN.Mask() == 0 {
			bank.Poke(isr, bank.Load(isr)|stm32g4.ADC_ISR_ADRDY.Mask())
		}
		return v
	})
}

// raiseDMAFlag sets flag for channel n the way the controller would.
func raiseDMAFlag(bank *regs.MemBank, n int, flag uint8) {
	isr := stm32g4.DMA_ISR.Offset
	bit := stm32g4.DMAFlag(n, flag).Mask() | stm32g4.DMAFlag(n, stm32g4.DMAFlagGIF).Mask()
	bank.Poke(isr, bank.Load(isr)|bit)
}

func mustTake(t *testing.T, set *PeripheralSet, name string) *regs.Window {
	t.Helper()
	w, err := set.Take(name)
	if err != nil {
		t.Fatalf("Take(%s): %v", name, err)
	}
	return w
}

// resetDebug restores the package debug and halt hooks after a test.
func resetDebug(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	SetDebugWriter(func(s string) { lines = append(lines, s) })
	t.Cleanup(func() {
		SetDebugWriter(func(string) {})
		SetHaltHandler(nil)
		ClearEventRing()
	})
	return &lines
}
