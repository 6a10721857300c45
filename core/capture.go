package core

import (
	"errors"

	"wavedma/regs"
	"wavedma/stm32g4"
)

var (
	ErrCaptureLength = errors.New("adc: sequence must be 1..16 conversions")
	ErrCaptureBusy   = errors.New("adc: previous capture still in flight")
	ErrADCCalibrate  = errors.New("adc: calibration did not finish")
	ErrADCNotReady   = errors.New("adc: converter never became ready")
)

// adcSpins bounds the polls for calibration and ADRDY.
const adcSpins = 100_000

// ADCFullScale is the largest 12-bit conversion result.
const ADCFullScale = 4095

// ToMillivolts converts a raw 12-bit reading against vrefMV.
func ToMillivolts(raw uint16, vrefMV uint32) uint32 {
	return uint32(raw) * vrefMV / ADCFullScale
}

// Reading is the result of one completed capture.
type Reading struct {
	Raw        uint16 // mean of the captured conversions
	MilliVolts uint32
	Samples    int
}

// Capture runs one-shot DMA captures of an ADC regular sequence. Every
// conversion of the sequence samples the same input; the DMA channel moves
// each result from DR into an arena buffer and raises transfer complete
// after the last one.
//
// Trigger and the completion handler run from different tasks, so a board
// keeps the Capture behind a Resource.
type Capture struct {
	w      *regs.Window
	common *regs.Window
	ch     *Channel
	buf    *Buffer
	vrefMV uint32
	input  uint8

	armed       bool
	last        Reading
	completions uint32
	scratch     []uint16
}

// NewCapture binds the ADC window and its common block to a DMA channel
// and a result buffer holding one word per conversion.
func NewCapture(w, common *regs.Window, ch *Channel, buf *Buffer, vrefMV uint32) *Capture {
	c := &Capture{
		w:       w,
		common:  common,
		ch:      ch,
		buf:     buf,
		vrefMV:  vrefMV,
		scratch: make([]uint16, buf.Len()),
	}
	ch.OnComplete(func(*Channel) { c.finish() })
	return c
}

// Init clocks the converter from HCLK/4, leaves deep power down, waits out
// the regulator start-up, runs a single-ended calibration and programs a
// sequence of buf.Len() conversions of input with DMA requests enabled.
// It returns once ADRDY is set.
func (c *Capture) Init(input uint8) error {
	n := c.buf.Len()
	if n < 1 || n > 16 {
		return ErrCaptureLength
	}
	if err := c.common.Set(stm32g4.ADC12_CCR_CKMODE, stm32g4.CKModeHCLKDiv4); err != nil {
		return err
	}
	c.w.ClearBits(stm32g4.ADC_CR, stm32g4.ADC_CR_DEEPPWD.Mask())
	c.w.SetBits(stm32g4.ADC_CR, stm32g4.ADC_CR_ADVREGEN.Mask())
	Delay(stm32g4.ADCRegulatorStartupUS)

	c.w.ClearBits(stm32g4.ADC_CR, stm32g4.ADC_CR_ADCALDIF.Mask())
	c.w.SetBits(stm32g4.ADC_CR, stm32g4.ADC_CR_ADCAL.Mask())
	if !c.poll(stm32g4.ADC_CR_ADCAL, false) {
		return ErrADCCalibrate
	}

	err := c.w.Apply(
		stm32g4.ADC_SQR1_L.With(uint32(n-1)),
		stm32g4.ADC_SQR1_SQ1.With(uint32(input)),
	)
	if err != nil {
		return err
	}
	c.w.SetBits(stm32g4.ADC_CFGR, stm32g4.ADC_CFGR_DMAEN.Mask())

	c.w.Write(stm32g4.ADC_ISR, stm32g4.ADC_ISR_ADRDY.Mask())
	c.w.SetBits(stm32g4.ADC_CR, stm32g4.ADC_CR_ADEN.Mask())
	if !c.poll(stm32g4.ADC_ISR_ADRDY, true) {
		return ErrADCNotReady
	}
	c.input = input
	return nil
}

func (c *Capture) poll(f regs.Field, set bool) bool {
	for i := 0; i < adcSpins; i++ {
		if c.w.IsSet(f) == set {
			return true
		}
	}
	return false
}

// Source is the DMA port reading the data register.
func (c *Capture) Source() PeripheralPort {
	return PeripheralPort{
		Address: c.w.Address(stm32g4.ADC_DR),
		Request: stm32g4.ReqADC1,
	}
}

// Trigger arms a one-shot transfer and starts the conversion sequence.
// A capture still in flight is left alone and ErrCaptureBusy returned.
func (c *Capture) Trigger() error {
	if c.armed {
		return ErrCaptureBusy
	}
	cfg := ChannelConfig{
		Priority:        PriorityMedium,
		MemoryIncrement: true,
		MemorySize:      Size16,
		PeripheralSize:  Size32,
		Direction:       PeripheralToMemory,
		Interrupts:      IRQTransferComplete | IRQTransferError,
	}
	if err := c.ch.Configure(c.buf, c.Source(), cfg); err != nil {
		return err
	}
	if err := c.ch.Enable(); err != nil {
		c.ch.Stop()
		return err
	}
	c.armed = true
	c.w.SetBits(stm32g4.ADC_CR, stm32g4.ADC_CR_ADSTART.Mask())
	return nil
}

// HandleInterrupt is the DMA channel's interrupt entry. Transfer complete
// finishes the capture; a transfer error leaves it disarmed.
func (c *Capture) HandleInterrupt() {
	errs := c.ch.TransferErrors()
	c.ch.HandleInterrupt()
	if c.ch.TransferErrors() != errs && c.armed {
		c.ch.Stop()
		c.armed = false
	}
}

// finish runs once per armed transfer: the channel is stopped so the
// buffer lease returns to software, then the results are averaged.
func (c *Capture) finish() {
	if !c.armed {
		return
	}
	c.armed = false
	c.ch.Stop()

	n, err := c.buf.CopyTo(c.scratch)
	if err != nil || n == 0 {
		return
	}
	var sum uint32
	for _, v := range c.scratch[:n] {
		sum += uint32(v)
	}
	raw := uint16(sum / uint32(n))
	c.last = Reading{Raw: raw, MilliVolts: ToMillivolts(raw, c.vrefMV), Samples: n}
	c.completions++
	RecordEvent(EvtCapture, c.input, uint32(raw), c.last.MilliVolts)
}

// Abort stops an in-flight transfer without producing a reading.
func (c *Capture) Abort() {
	if !c.armed {
		return
	}
	c.ch.Stop()
	c.armed = false
}

// Last returns the most recent reading.
func (c *Capture) Last() Reading { return c.last }

// Completions counts finished captures.
func (c *Capture) Completions() uint32 { return c.completions }

// Armed reports whether a transfer is in flight.
func (c *Capture) Armed() bool { return c.armed }

// Channel returns the DMA channel serving the capture.
func (c *Capture) Channel() *Channel { return c.ch }
