// Package sim models the STM32G431 peripherals the waveform engine drives,
// closely enough to run the real core code on a host: TIM2/TIM3 update
// events, DMAMUX routing, DMA1 channels with burst writes through DMAR,
// circular reload, HT/TC/TE flags, and a one-shot ADC sequence.
//
// The machine is single threaded. Interrupts are delivered by calling
// Dispatcher.Run as soon as the modelled hardware raises them. Host tooling
// on other goroutines goes through Do, which holds the machine lock.
package sim

import (
	"sync"

	"wavedma/core"
	"wavedma/regs"
	"wavedma/stm32g4"
)

// Machine is a simulated G431 with its register banks.
type Machine struct {
	mu sync.Mutex

	clockHz uint32
	arena   *core.Arena
	d       *core.Dispatcher

	blocks []block
	banks  map[string]*regs.MemBank
	set    *core.PeripheralSet
	timers []*timerModel

	reload   [stm32g4.DMA1Channels]uint32
	adcInput uint16
	adcRegUS uint32
	adcCal   bool
	tickRem  uint64
	cycles   uint64
	irqs     []core.IRQ
}

type block struct {
	stm32g4.Block
	bank *regs.MemBank
}

type timerModel struct {
	layout  stm32g4.TimerLayout
	bank    *regs.MemBank
	acc     uint64
	updates uint64
}

// New builds a machine whose DMA engine reads and writes arena memory and
// whose interrupts run on d.
func New(clockHz uint32, arena *core.Arena, d *core.Dispatcher) *Machine {
	m := &Machine{
		clockHz: clockHz,
		arena:   arena,
		d:       d,
		banks:   make(map[string]*regs.MemBank),
	}
	var windows []*regs.Window
	for _, b := range stm32g4.Blocks {
		bank := regs.NewMemBank(b.Size)
		m.banks[b.Name] = bank
		m.blocks = append(m.blocks, block{b, bank})
		windows = append(windows, regs.NewWindow(b.Name, b.Base, b.Size, bank))
	}
	m.set = core.NewPeripheralSet(windows...)

	dma := m.banks["DMA1"]
	dma.OnWrite(stm32g4.DMA_IFCR.Offset, regs.ClearOnWrite(dma, stm32g4.DMA_ISR.Offset))
	dma.OnWrite(stm32g4.DMA_ISR.Offset, regs.ReadOnly())
	for n := 1; n <= stm32g4.DMA1Channels; n++ {
		m.latchOnEnable(n)
	}
	for _, layout := range []stm32g4.TimerLayout{stm32g4.TIM2, stm32g4.TIM3} {
		bank := m.banks[layout.Name]
		bank.OnWrite(stm32g4.TIM_SR.Offset, regs.ClearOnZero())
		m.timers = append(m.timers, &timerModel{layout: layout, bank: bank})
	}
	m.modelADC()
	return m
}

// modelADC gives ADC1 its bring-up rules: calibration finishes only after
// the regulator has been on for its start-up time, and ADRDY rises on ADEN
// only for a calibrated converter with a clock.
func (m *Machine) modelADC() {
	adc := m.banks["ADC1"]
	isr := stm32g4.ADC_ISR.Offset
	adc.OnWrite(isr, regs.WriteOneToClear())
	adc.OnWrite(stm32g4.ADC_CR.Offset, func(old, v uint32) uint32 {
		regulator := stm32g4.ADC_CR_ADVREGEN.Mask()
		if v&regulator == 0 || v&stm32g4.ADC_CR_DEEPPWD.Mask() != 0 {
			m.adcRegUS = 0
			m.adcCal = false
		} else if old&regulator == 0 {
			m.adcRegUS = 0
		}
		if v&stm32g4.ADC_CR_ADCAL.Mask() != 0 && m.adcRegUS >= stm32g4.ADCRegulatorStartupUS && v&regulator != 0 {
			v &^= stm32g4.ADC_CR_ADCAL.Mask()
			m.adcCal = true
		}
		en := stm32g4.ADC_CR_ADEN.Mask()
		if v&en != 0 && old&en == 0 && m.adcCal && m.adcClocked() {
			adc.Poke(isr, adc.Load(isr)|stm32g4.ADC_ISR_ADRDY.Mask())
		}
		return v
	})
}

// adcClocked reports whether ADC12 has a synchronous or kernel clock.
func (m *Machine) adcClocked() bool {
	ccr := m.banks["ADC12_COMMON"].Load(stm32g4.ADC12_CCR.Offset)
	ccipr := m.banks["RCC"].Load(stm32g4.RCC_CCIPR.Offset)
	return stm32g4.ADC12_CCR_CKMODE.Extract(ccr) != stm32g4.CKModeAsync ||
		stm32g4.RCC_CCIPR_ADC12SEL.Extract(ccipr) != stm32g4.ADC12SelNone
}

// Delay is the machine's busy-wait. It only feeds the ADC regulator timing.
func (m *Machine) Delay(us uint32) {
	m.adcRegUS += us
}

// latchOnEnable keeps the transfer count written before EN goes high; the
// controller reloads it in circular mode.
func (m *Machine) latchOnEnable(n int) {
	dma := m.banks["DMA1"]
	r := stm32g4.DMAChannel(n)
	dma.OnWrite(r.CCR.Offset, func(old, v uint32) uint32 {
		if v&1 != 0 && old&1 == 0 {
			m.reload[n-1] = dma.Load(r.CNDTR.Offset)
		}
		return v
	})
}

// Peripherals returns the claimable register windows.
func (m *Machine) Peripherals() *core.PeripheralSet { return m.set }

// Clock returns the machine's clock as a ClockSource.
func (m *Machine) Clock() core.ClockSource { return core.FixedClock(m.clockHz) }

// Bank exposes one block's backing memory.
func (m *Machine) Bank(name string) *regs.MemBank { return m.banks[name] }

// Do runs fn with the machine locked.
func (m *Machine) Do(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn()
}

// Cycles returns the simulated clock cycles elapsed.
func (m *Machine) Cycles() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cycles
}

// Updates returns how many update events the named timer has generated.
func (m *Machine) Updates(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.timers {
		if t.layout.Name == name {
			return t.updates
		}
	}
	return 0
}

// Compare returns CCR1..4 of the named timer.
func (m *Machine) Compare(name string) [4]uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out [4]uint32
	if bank := m.banks[name]; bank != nil {
		for i, r := range stm32g4.TIM_CCR {
			out[i] = bank.Load(r.Offset)
		}
	}
	return out
}

// SetADCInput sets the value every conversion returns.
func (m *Machine) SetADCInput(raw uint16) {
	m.mu.Lock()
	m.adcInput = raw & core.ADCFullScale
	m.mu.Unlock()
}

// InjectTransferError makes channel n fail on the bus: TEIF is raised, the
// controller clears EN and the channel interrupt fires if TEIE is set. A
// disabled channel makes no bus accesses and cannot fail.
func (m *Machine) InjectTransferError(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.banks["DMA1"].Load(stm32g4.DMAChannel(n).CCR.Offset)&1 == 0 {
		return
	}
	m.transferError(n)
	m.deliver()
}

// Period returns the update period of the named timer in clock cycles, or
// 0 while it is stopped.
func (m *Machine) Period(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.timers {
		if t.layout.Name == name {
			return t.period()
		}
	}
	return 0
}

// Step advances to the next update event of the named timer.
func (m *Machine) Step(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.timers {
		if t.layout.Name == name && t.period() != 0 {
			m.advance(t.period() - t.acc)
			return
		}
	}
}

// Advance runs the machine for cycles clock cycles.
func (m *Machine) Advance(cycles uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.advance(cycles)
}

func (m *Machine) advance(cycles uint64) {
	for cycles > 0 {
		next := cycles
		for _, t := range m.timers {
			if p := t.period(); p != 0 && p-t.acc < next {
				next = p - t.acc
			}
		}
		for _, t := range m.timers {
			p := t.period()
			if p == 0 {
				continue
			}
			t.acc += next
			if t.acc >= p {
				t.acc = 0
				m.update(t)
			}
			psc := uint64(t.bank.Load(stm32g4.TIM_PSC.Offset)) + 1
			t.bank.Poke(stm32g4.TIM_CNT.Offset, uint32(t.acc/psc))
		}
		m.cycles += next
		m.tick(next)
		cycles -= next
	}
}

// tick moves the core's system time along with the simulated clock.
func (m *Machine) tick(cycles uint64) {
	total := m.tickRem + cycles*uint64(core.TickFrequency())
	core.AdvanceTime(uint32(total / uint64(m.clockHz)))
	m.tickRem = total % uint64(m.clockHz)
	core.ProcessTimers()
}

func (t *timerModel) period() uint64 {
	if t.bank.Load(stm32g4.TIM_CR1.Offset)&stm32g4.TIM_CR1_CEN.Mask() == 0 {
		return 0
	}
	arr := uint64(t.bank.Load(stm32g4.TIM_ARR.Offset))
	if arr == 0 {
		return 0
	}
	psc := uint64(t.bank.Load(stm32g4.TIM_PSC.Offset))
	return (psc + 1) * (arr + 1)
}

// update is one counter overflow: UIF, then DMA requests, then the update
// interrupt.
func (m *Machine) update(t *timerModel) {
	b := t.bank
	t.updates++
	b.Poke(stm32g4.TIM_SR.Offset, b.Load(stm32g4.TIM_SR.Offset)|stm32g4.TIM_SR_UIF.Mask())

	dier := b.Load(stm32g4.TIM_DIER.Offset)
	if dier&stm32g4.TIM_DIER_UDE.Mask() != 0 {
		m.request(t.layout.UpdateReq)
	}
	for ch := 1; ch <= int(t.layout.Channels); ch++ {
		if dier&stm32g4.TIM_DIER_CCDE(ch).Mask() != 0 {
			m.request(t.layout.CompareReq[ch-1])
		}
	}
	if dier&stm32g4.TIM_DIER_UIE.Mask() != 0 {
		m.irqs = append(m.irqs, core.IRQ(t.layout.IRQ))
	}
	m.deliver()
	m.convert()
	m.deliver()
}

// deliver runs the interrupts raised since the last call.
func (m *Machine) deliver() {
	for len(m.irqs) > 0 {
		irq := m.irqs[0]
		m.irqs = m.irqs[1:]
		m.d.Run(irq)
	}
}

// routed returns the enabled channel serving request id, or 0.
func (m *Machine) routed(id stm32g4.RequestID) int {
	mux, dma := m.banks["DMAMUX1"], m.banks["DMA1"]
	for n := 1; n <= stm32g4.DMA1Channels; n++ {
		f := stm32g4.DMAMUX_CCR_DMAREQ_ID(n)
		if stm32g4.RequestID(f.Extract(mux.Load(f.Reg.Offset))) != id {
			continue
		}
		if dma.Load(stm32g4.DMAChannel(n).CCR.Offset)&1 != 0 {
			return n
		}
	}
	return 0
}

// request serves one DMA request. A channel whose peripheral address is a
// timer's DMAR register performs a burst of DBL+1 items into consecutive
// timer registers starting at DBA.
func (m *Machine) request(id stm32g4.RequestID) {
	n := m.routed(id)
	if n == 0 {
		return
	}
	cpar := m.banks["DMA1"].Load(stm32g4.DMAChannel(n).CPAR.Offset)
	for _, t := range m.timers {
		if cpar != t.layout.Base+stm32g4.TIM_DMAR.Offset {
			continue
		}
		dcr := t.bank.Load(stm32g4.TIM_DCR.Offset)
		dba := stm32g4.TIM_DCR_DBA.Extract(dcr)
		dbl := stm32g4.TIM_DCR_DBL.Extract(dcr)
		for k := uint32(0); k <= dbl; k++ {
			off := (dba + k) * 4
			if !m.item(n, func(v uint32) { t.bank.Poke(off, v) }, nil) {
				return
			}
		}
		return
	}
	m.item(n, func(v uint32) { m.store(cpar, v) }, func() uint32 { return m.load(cpar) })
}

// item moves one data item on channel n. periphWrite takes memory-to-
// peripheral data; periphRead supplies peripheral-to-memory data. It
// reports whether the channel can take another item.
func (m *Machine) item(n int, periphWrite func(uint32), periphRead func() uint32) bool {
	dma := m.banks["DMA1"]
	r := stm32g4.DMAChannel(n)
	ccr := dma.Load(r.CCR.Offset)
	ndt := dma.Load(r.CNDTR.Offset) & 0xFFFF
	if ccr&1 == 0 || ndt == 0 {
		return false
	}
	total := m.reload[n-1]
	idx := total - ndt
	addr := dma.Load(r.CMAR.Offset)
	if stm32g4.DMA_CCR_MINC(r.CCR).Extract(ccr) != 0 {
		addr += idx * 2
	}
	if stm32g4.DMA_CCR_MSIZE(r.CCR).Extract(ccr) != uint32(core.Size16) {
		m.transferError(n)
		return false
	}

	if stm32g4.DMA_CCR_DIR(r.CCR).Extract(ccr) == 1 {
		v, ok := m.arena.Load16(addr)
		if !ok {
			m.transferError(n)
			return false
		}
		periphWrite(uint32(v))
	} else {
		if periphRead == nil || !m.arena.Store16(addr, uint16(periphRead())) {
			m.transferError(n)
			return false
		}
	}

	ndt--
	var flags uint32
	if ndt == total/2 {
		flags |= stm32g4.DMAFlag(n, stm32g4.DMAFlagHTIF).Mask()
	}
	if ndt == 0 {
		flags |= stm32g4.DMAFlag(n, stm32g4.DMAFlagTCIF).Mask()
		if stm32g4.DMA_CCR_CIRC(r.CCR).Extract(ccr) != 0 {
			ndt = total
		}
	}
	dma.Poke(r.CNDTR.Offset, ndt)
	if flags != 0 {
		m.raise(n, flags)
	}
	return ndt != 0
}

func (m *Machine) transferError(n int) {
	dma := m.banks["DMA1"]
	r := stm32g4.DMAChannel(n)
	dma.Poke(r.CCR.Offset, dma.Load(r.CCR.Offset)&^1)
	m.raise(n, stm32g4.DMAFlag(n, stm32g4.DMAFlagTEIF).Mask())
}

// raise sets channel flags and queues the channel interrupt when an enabled
// flag is among them.
func (m *Machine) raise(n int, flags uint32) {
	dma := m.banks["DMA1"]
	r := stm32g4.DMAChannel(n)
	gif := stm32g4.DMAFlag(n, stm32g4.DMAFlagGIF).Mask()
	isr := stm32g4.DMA_ISR.Offset
	dma.Poke(isr, dma.Load(isr)|flags|gif)

	ccr := dma.Load(r.CCR.Offset)
	enabled := map[uint8]regs.Field{
		stm32g4.DMAFlagTCIF: stm32g4.DMA_CCR_TCIE(r.CCR),
		stm32g4.DMAFlagHTIF: stm32g4.DMA_CCR_HTIE(r.CCR),
		stm32g4.DMAFlagTEIF: stm32g4.DMA_CCR_TEIE(r.CCR),
	}
	for flag, ie := range enabled {
		if flags&stm32g4.DMAFlag(n, flag).Mask() != 0 && ccr&ie.Mask() != 0 {
			m.irqs = append(m.irqs, core.IRQ(stm32g4.DMA1ChannelIRQ(n)))
			return
		}
	}
}

// convert runs a started ADC sequence to completion. Each conversion is
// moved by the channel routed to ADC1 when DMAEN is set.
func (m *Machine) convert() {
	adc := m.banks["ADC1"]
	cr := adc.Load(stm32g4.ADC_CR.Offset)
	if cr&stm32g4.ADC_CR_ADEN.Mask() == 0 || cr&stm32g4.ADC_CR_ADSTART.Mask() == 0 {
		return
	}
	if adc.Load(stm32g4.ADC_ISR.Offset)&stm32g4.ADC_ISR_ADRDY.Mask() == 0 {
		return
	}
	count := stm32g4.ADC_SQR1_L.Extract(adc.Load(stm32g4.ADC_SQR1.Offset)) + 1
	dmaen := adc.Load(stm32g4.ADC_CFGR.Offset)&stm32g4.ADC_CFGR_DMAEN.Mask() != 0
	for i := uint32(0); i < count; i++ {
		adc.Poke(stm32g4.ADC_DR.Offset, uint32(m.adcInput))
		if !dmaen {
			continue
		}
		if n := m.routed(stm32g4.ReqADC1); n != 0 {
			m.item(n, nil, func() uint32 { return adc.Load(stm32g4.ADC_DR.Offset) })
		}
	}
	adc.Poke(stm32g4.ADC_CR.Offset, cr&^stm32g4.ADC_CR_ADSTART.Mask())
	adc.Poke(stm32g4.ADC_ISR.Offset, adc.Load(stm32g4.ADC_ISR.Offset)|stm32g4.ADC_ISR_EOC.Mask())
}

func (m *Machine) find(addr uint32) (*regs.MemBank, uint32, bool) {
	for _, b := range m.blocks {
		if addr >= b.Base && addr < b.Base+b.Size {
			return b.bank, addr - b.Base, true
		}
	}
	return nil, 0, false
}

func (m *Machine) load(addr uint32) uint32 {
	if bank, off, ok := m.find(addr); ok {
		return bank.Load(off)
	}
	return 0
}

func (m *Machine) store(addr, v uint32) {
	if bank, off, ok := m.find(addr); ok {
		bank.Poke(off, v)
	}
}
