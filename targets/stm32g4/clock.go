//go:build tinygo && stm32g4

package main

import (
	"errors"
	"runtime/volatile"
	"unsafe"

	"wavedma/core"
	"wavedma/regs"
	"wavedma/stm32g4"
)

var errClockTimeout = errors.New("clock: ready flag timeout")

// pllClock runs the G431 from HSI16 through the main PLL:
// 16 MHz / M(4) * N(85) / R(2) = 170 MHz, the range 1 boost maximum.
type pllClock struct {
	rcc, flash, pwr *regs.Window
	hz              uint32
}

const (
	pllM       = 4
	pllN       = 85
	pllR       = 2
	sysclkHz   = 16_000_000 / pllM * pllN / pllR
	flashWaits = 4
	readySpins = 1_000_000

	pllSourceHSI = 2
	switchPLL    = 3
	ahbDiv2      = 8
)

func newPLLClock(set *core.PeripheralSet) (*pllClock, error) {
	c := &pllClock{hz: sysclkHz}
	var err error
	if c.rcc, err = set.Take("RCC"); err != nil {
		return nil, err
	}
	if c.flash, err = set.Take("FLASH"); err != nil {
		return nil, err
	}
	if c.pwr, err = set.Take("PWR"); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *pllClock) SysclkHz() uint32 { return c.hz }

func (c *pllClock) Setup() error {
	if c.rcc.Get(stm32g4.RCC_CFGR_SWS) == switchPLL {
		c.enablePeripherals()
		return nil
	}
	c.rcc.SetBits(stm32g4.RCC_APB1ENR1, stm32g4.RCC_APB1ENR1_PWREN.Mask())
	c.pwr.ClearBits(stm32g4.PWR_CR5, stm32g4.PWR_CR5_R1MODE.Mask())

	c.rcc.SetBits(stm32g4.RCC_CR, stm32g4.RCC_CR_HSION.Mask())
	if !c.wait(stm32g4.RCC_CR_HSIRDY, true) {
		return errClockTimeout
	}
	c.rcc.ClearBits(stm32g4.RCC_CR, stm32g4.RCC_CR_PLLON.Mask())
	if !c.wait(stm32g4.RCC_CR_PLLRDY, false) {
		return errClockTimeout
	}
	err := c.rcc.Store(
		stm32g4.RCC_PLLCFGR_PLLSRC.With(pllSourceHSI),
		stm32g4.RCC_PLLCFGR_PLLM.With(pllM-1),
		stm32g4.RCC_PLLCFGR_PLLN.With(pllN),
		stm32g4.RCC_PLLCFGR_PLLR.With(pllR/2-1),
		stm32g4.RCC_PLLCFGR_PLLREN.With(1),
	)
	if err != nil {
		return err
	}
	c.rcc.SetBits(stm32g4.RCC_CR, stm32g4.RCC_CR_PLLON.Mask())
	if !c.wait(stm32g4.RCC_CR_PLLRDY, true) {
		return errClockTimeout
	}

	if err := c.flash.Set(stm32g4.FLASH_ACR_LATENCY, flashWaits); err != nil {
		return err
	}
	// Step through AHB/2 when switching above 80 MHz.
	if err := c.rcc.Apply(stm32g4.RCC_CFGR_HPRE.With(ahbDiv2), stm32g4.RCC_CFGR_SW.With(switchPLL)); err != nil {
		return err
	}
	for i := 0; c.rcc.Get(stm32g4.RCC_CFGR_SWS) != switchPLL; i++ {
		if i == readySpins {
			return errClockTimeout
		}
	}
	for i := 0; i < 200; i++ {
		volatile.LoadUint32(&spin)
	}
	if err := c.rcc.Set(stm32g4.RCC_CFGR_HPRE, 0); err != nil {
		return err
	}
	c.enablePeripherals()
	return nil
}

var spin uint32

func (c *pllClock) wait(f regs.Field, set bool) bool {
	for i := 0; i < readySpins; i++ {
		if c.rcc.IsSet(f) == set {
			return true
		}
	}
	return false
}

func (c *pllClock) enablePeripherals() {
	c.rcc.SetBits(stm32g4.RCC_AHB1ENR,
		stm32g4.RCC_AHB1ENR_DMA1EN.Mask()|stm32g4.RCC_AHB1ENR_DMAMUXEN.Mask())
	c.rcc.SetBits(stm32g4.RCC_AHB2ENR,
		stm32g4.RCC_AHB2ENR_GPIOAEN.Mask()|stm32g4.RCC_AHB2ENR_GPIOBEN.Mask()|
			stm32g4.RCC_AHB2ENR_GPIOCEN.Mask()|stm32g4.RCC_AHB2ENR_ADC12EN.Mask())
	c.rcc.SetBits(stm32g4.RCC_APB1ENR1,
		stm32g4.RCC_APB1ENR1_TIM2EN.Mask()|stm32g4.RCC_APB1ENR1_TIM3EN.Mask()|
			stm32g4.RCC_APB1ENR1_USART2.Mask()|stm32g4.RCC_APB1ENR1_USART3.Mask())
	c.rcc.SetBits(stm32g4.RCC_APB2ENR, stm32g4.RCC_APB2ENR_SYSCFGEN.Mask())
	c.rcc.Set(stm32g4.RCC_CCIPR_ADC12SEL, stm32g4.ADC12SelSysclk)
}

// Cortex-M4 cycle counter, the system tick source.
const (
	demcrAddr   = 0xE000_EDFC
	dwtCtrlAddr = 0xE000_1000
	dwtCyccnt   = 0xE000_1004
	demcrTRCENA = 1 << 24
)

var (
	demcr   = (*volatile.Register32)(unsafe.Pointer(uintptr(demcrAddr)))
	dwtCtrl = (*volatile.Register32)(unsafe.Pointer(uintptr(dwtCtrlAddr)))
	cyccnt  = (*volatile.Register32)(unsafe.Pointer(uintptr(dwtCyccnt)))
)

var cyclesPerMicro uint32

// initCycleCounter starts DWT_CYCCNT and makes it the core tick source and
// the busy-wait clock.
func initCycleCounter(hz uint32) {
	demcr.SetBits(demcrTRCENA)
	cyccnt.Set(0)
	dwtCtrl.SetBits(1)
	core.SetTickFrequency(hz)
	cyclesPerMicro = hz / 1_000_000
	core.SetDelay(delayMicros)
}

func delayMicros(us uint32) {
	start := cyccnt.Get()
	wait := us * cyclesPerMicro
	for cyccnt.Get()-start < wait {
	}
}

// updateSystemTime copies the cycle counter into the core clock.
func updateSystemTime() {
	core.SetTime(cyccnt.Get())
}
