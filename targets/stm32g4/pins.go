//go:build tinygo && stm32g4

package main

import (
	"wavedma/core"
	"wavedma/regs"
	"wavedma/stm32g4"
)

type pinRef struct {
	port string
	pin  int
}

type altPin struct {
	pinRef
	af uint32
}

// Bridge inputs on TIM2 CH1..CH4, the telemetry UART on the ST-LINK virtual
// COM port and the driver UART.
var altPins = []altPin{
	{pinRef{"GPIOA", 0}, 1},  // TIM2_CH1
	{pinRef{"GPIOA", 1}, 1},  // TIM2_CH2
	{pinRef{"GPIOB", 10}, 1}, // TIM2_CH3
	{pinRef{"GPIOB", 11}, 1}, // TIM2_CH4
	{pinRef{"GPIOA", 2}, 7},  // USART2_TX
	{pinRef{"GPIOA", 3}, 7},  // USART2_RX
	{pinRef{"GPIOC", 10}, 7}, // USART3_TX
	{pinRef{"GPIOC", 11}, 7}, // USART3_RX
}

var (
	bridgeReset  = pinRef{"GPIOB", 2}
	bridgeEnable = pinRef{"GPIOA", 4}
	dirPin       = pinRef{"GPIOB", 0}
	buttonPin    = pinRef{"GPIOA", 10}
)

type gpioPorts map[string]*regs.Window

func takePorts(set *core.PeripheralSet) (gpioPorts, error) {
	p := make(gpioPorts)
	for _, name := range []string{"GPIOA", "GPIOB", "GPIOC"} {
		w, err := set.Take(name)
		if err != nil {
			return nil, err
		}
		p[name] = w
	}
	return p, nil
}

func (p gpioPorts) mode(r pinRef, mode uint32) error {
	return p[r.port].Apply(stm32g4.GPIO_MODE(r.pin).With(mode))
}

func (p gpioPorts) set(r pinRef, high bool) {
	bit := uint32(1) << r.pin
	if !high {
		bit <<= 16
	}
	p[r.port].Write(stm32g4.GPIO_BSRR, bit)
}

func (p gpioPorts) high(r pinRef) bool {
	return p[r.port].Read(stm32g4.GPIO_IDR)&(1<<r.pin) != 0
}

func (p gpioPorts) toggle(r pinRef) {
	high := p[r.port].Read(stm32g4.GPIO_ODR)&(1<<r.pin) != 0
	p.set(r, !high)
}

func pinSetup(p gpioPorts) core.PinSetup {
	return func() error {
		for _, a := range altPins {
			if err := p[a.port].Apply(stm32g4.GPIO_AF(a.pin).With(a.af)); err != nil {
				return err
			}
			if err := p.mode(a.pinRef, stm32g4.PinAlternate); err != nil {
				return err
			}
		}
		// Bridge out of reset and enabled, direction low.
		for _, r := range []pinRef{bridgeReset, bridgeEnable} {
			p.set(r, true)
		}
		p.set(dirPin, false)
		for _, r := range []pinRef{bridgeReset, bridgeEnable, dirPin} {
			if err := p.mode(r, stm32g4.PinOutput); err != nil {
				return err
			}
		}
		if err := p.mode(buttonPin, stm32g4.PinInput); err != nil {
			return err
		}
		return p[buttonPin.port].Apply(stm32g4.GPIO_PUPD(buttonPin.pin).With(1))
	}
}
