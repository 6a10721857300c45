//go:build tinygo && stm32g4

package main

import (
	"runtime/volatile"

	"wavedma/regs"
	"wavedma/stm32g4"
)

// usart is a polled transmitter with an interrupt-fed receive ring.
type usart struct {
	w    *regs.Window
	rx   [256]byte
	head uint8
	tail uint8
}

func newUSART(w *regs.Window, clockHz, baud uint32, receive bool) *usart {
	u := &usart{w: w}
	w.Write(stm32g4.USART_CR1, 0)
	w.Write(stm32g4.USART_BRR, (clockHz+baud/2)/baud)
	cr1 := stm32g4.USART_CR1_UE.Mask() | stm32g4.USART_CR1_TE.Mask()
	if receive {
		cr1 |= stm32g4.USART_CR1_RE.Mask() | stm32g4.USART_CR1_RXNEIE.Mask()
	}
	w.Write(stm32g4.USART_CR1, cr1)
	return u
}

// Write blocks until every byte is in the transmit register.
func (u *usart) Write(p []byte) (int, error) {
	for _, c := range p {
		for !u.w.IsSet(stm32g4.USART_ISR_TXE) {
		}
		u.w.Write(stm32g4.USART_TDR, uint32(c))
	}
	return len(p), nil
}

// handleInterrupt moves a received byte into the ring. A full ring drops it.
func (u *usart) handleInterrupt() {
	for u.w.IsSet(stm32g4.USART_ISR_RXNE) {
		c := byte(u.w.Read(stm32g4.USART_RDR))
		head := u.head
		if head+1 == volatile.LoadUint8(&u.tail) {
			continue
		}
		u.rx[head] = c
		volatile.StoreUint8(&u.head, head+1)
	}
}

// drain copies pending bytes into buf. The tail only moves here.
func (u *usart) drain(buf []byte) int {
	n := 0
	tail := u.tail
	for n < len(buf) && tail != volatile.LoadUint8(&u.head) {
		buf[n] = u.rx[tail]
		tail++
		n++
	}
	volatile.StoreUint8(&u.tail, tail)
	return n
}

// Println is the debug sink.
func (u *usart) Println(msg string) {
	u.Write([]byte(msg))
	u.Write([]byte("\r\n"))
}
