package core

import (
	"errors"

	"wavedma/regs"
	"wavedma/stm32g4"
)

var (
	ErrChannelBusy     = errors.New("dma: channel is enabled; stop it first")
	ErrNotConfigured   = errors.New("dma: channel not configured")
	ErrNoChannel       = errors.New("dma: no such channel")
	ErrBadRequest      = errors.New("dma: unknown request line")
	ErrBadTransfer     = errors.New("dma: buffer must hold 1..65535 items")
	ErrWordSize        = errors.New("dma: invalid transfer width")
	ErrTransferErrors  = errors.New("dma: repeated transfer errors")
	ErrChannelInactive = errors.New("dma: channel not enabled")
)

// DefaultMaxTransferErrors is the number of consecutive transfer errors
// after which a channel halts the system.
const DefaultMaxTransferErrors = 3

// ChannelState tracks a DMA channel through its lifecycle.
type ChannelState uint8

const (
	StateIdle ChannelState = iota
	StateConfigured
	StateEnabled
	StateComplete
)

func (s ChannelState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfigured:
		return "configured"
	case StateEnabled:
		return "enabled"
	case StateComplete:
		return "complete"
	}
	return "unknown"
}

// DMAPriority is the channel arbitration priority (PL field).
type DMAPriority uint8

const (
	PriorityLow DMAPriority = iota
	PriorityMedium
	PriorityHigh
	PriorityVeryHigh
)

// ParseDMAPriority accepts "low", "medium", "high" and "very_high".
func ParseDMAPriority(s string) (DMAPriority, bool) {
	switch s {
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	case "very_high", "veryhigh":
		return PriorityVeryHigh, true
	}
	return PriorityLow, false
}

// Direction of a transfer, as encoded in the DIR bit.
type Direction uint8

const (
	PeripheralToMemory Direction = 0
	MemoryToPeripheral Direction = 1
)

// InterruptKind selects one channel interrupt flag.
type InterruptKind uint8

const (
	IntTransferComplete InterruptKind = iota
	IntHalfTransfer
	IntTransferError
)

func (k InterruptKind) flag() uint8 {
	switch k {
	case IntHalfTransfer:
		return stm32g4.DMAFlagHTIF
	case IntTransferError:
		return stm32g4.DMAFlagTEIF
	}
	return stm32g4.DMAFlagTCIF
}

// InterruptMask selects which channel interrupts are enabled.
type InterruptMask uint8

const (
	IRQTransferComplete InterruptMask = 1 << iota
	IRQHalfTransfer
	IRQTransferError
)

// ChannelConfig holds the transfer parameters written to CCR.
type ChannelConfig struct {
	Circular            bool
	Priority            DMAPriority
	MemoryIncrement     bool
	PeripheralIncrement bool
	MemorySize          WordSize
	PeripheralSize      WordSize
	Direction           Direction
	Interrupts          InterruptMask
}

// PeripheralPort is the peripheral end of a transfer: the register
// address, the DMAMUX request line that paces it, and for timer bursts the
// burst window.
type PeripheralPort struct {
	Address uint32
	Request stm32g4.RequestID
	Burst   *BurstDescriptor
}

// DMA owns DMA1 and its request multiplexer.
type DMA struct {
	dma       *regs.Window
	mux       *regs.Window
	channels  []*Channel
	maxErrors int
	fatal     func(error)
}

// NewDMA wraps the DMA and DMAMUX windows. nchannels is the number of
// channels the device implements.
func NewDMA(dma, mux *regs.Window, nchannels int) *DMA {
	d := &DMA{
		dma:       dma,
		mux:       mux,
		channels:  make([]*Channel, nchannels),
		maxErrors: DefaultMaxTransferErrors,
		fatal:     Halt,
	}
	return d
}

// SetMaxTransferErrors sets the consecutive-error threshold; n <= 0
// restores the default.
func (d *DMA) SetMaxTransferErrors(n int) {
	if n <= 0 {
		n = DefaultMaxTransferErrors
	}
	d.maxErrors = n
}

// SetFatalHandler replaces the handler called when the threshold is hit.
func (d *DMA) SetFatalHandler(fn func(error)) {
	d.fatal = fn
}

// Channel claims channel n (1-based). Each channel can be claimed once.
func (d *DMA) Channel(n int) (*Channel, error) {
	if n < 1 || n > len(d.channels) {
		return nil, ErrNoChannel
	}
	state := disableInterrupts()
	defer restoreInterrupts(state)
	if d.channels[n-1] != nil {
		return nil, peripheralError{"DMA1_CH" + itoa(n), ErrAlreadyClaimed}
	}
	c := &Channel{dma: d, n: n, r: stm32g4.DMAChannel(n)}
	d.channels[n-1] = c
	return c, nil
}

// Route connects DMAMUX output n to request line id.
func (d *DMA) Route(n int, id stm32g4.RequestID) error {
	if !id.Known() {
		return ErrBadRequest
	}
	return d.mux.Set(stm32g4.DMAMUX_CCR_DMAREQ_ID(n), uint32(id))
}

// Routed returns the request line currently routed to channel n.
func (d *DMA) Routed(n int) stm32g4.RequestID {
	return stm32g4.RequestID(d.mux.Get(stm32g4.DMAMUX_CCR_DMAREQ_ID(n)))
}

// Channel drives one DMA channel.
type Channel struct {
	dma   *DMA
	n     int
	r     stm32g4.DMAChannelRegs
	state ChannelState
	cfg   ChannelConfig
	buf   *Buffer
	port  PeripheralPort

	totalErrors uint32
	consecutive int

	onComplete func(*Channel)
	onHalf     func(*Channel)
	onError    func(*Channel)
}

func (c *Channel) Number() int                  { return c.n }
func (c *Channel) Config() ChannelConfig        { return c.cfg }
func (c *Channel) Port() PeripheralPort         { return c.port }
func (c *Channel) Buffer() *Buffer              { return c.buf }
func (c *Channel) TransferErrors() uint32       { return c.totalErrors }
func (c *Channel) OnComplete(fn func(*Channel)) { c.onComplete = fn }
func (c *Channel) OnHalfTransfer(fn func(*Channel)) {
	c.onHalf = fn
}

// OnTransferError installs a callback for transfer errors below the fatal
// threshold. It runs after the channel has dropped back to Configured, so
// calling Enable from it re-arms the transfer.
func (c *Channel) OnTransferError(fn func(*Channel)) {
	c.onError = fn
}

// IRQ returns the interrupt line of this channel.
func (c *Channel) IRQ() IRQ {
	return IRQ(stm32g4.DMA1ChannelIRQ(c.n))
}

// Configure programs the channel to move buf to or from port. The channel
// must not be enabled. On success the channel holds buf's lease until Stop
// and gives up any buffer it held before; on failure nothing changes.
func (c *Channel) Configure(buf *Buffer, port PeripheralPort, cfg ChannelConfig) error {
	if c.state == StateEnabled || c.state == StateComplete {
		return ErrChannelBusy
	}
	if !port.Request.Known() {
		return ErrBadRequest
	}
	if buf == nil || buf.Len() == 0 || buf.Len() > 0xFFFF {
		return ErrBadTransfer
	}
	if cfg.MemorySize > Size32 || cfg.PeripheralSize > Size32 {
		return ErrWordSize
	}
	ccr := c.r.CCR
	word, err := regs.Compose(
		stm32g4.DMA_CCR_DIR(ccr).With(uint32(cfg.Direction)),
		stm32g4.DMA_CCR_CIRC(ccr).With(boolBit(cfg.Circular)),
		stm32g4.DMA_CCR_PINC(ccr).With(boolBit(cfg.PeripheralIncrement)),
		stm32g4.DMA_CCR_MINC(ccr).With(boolBit(cfg.MemoryIncrement)),
		stm32g4.DMA_CCR_PSIZE(ccr).With(uint32(cfg.PeripheralSize)),
		stm32g4.DMA_CCR_MSIZE(ccr).With(uint32(cfg.MemorySize)),
		stm32g4.DMA_CCR_PL(ccr).With(uint32(cfg.Priority)),
		stm32g4.DMA_CCR_TCIE(ccr).With(boolBit(cfg.Interrupts&IRQTransferComplete != 0)),
		stm32g4.DMA_CCR_HTIE(ccr).With(boolBit(cfg.Interrupts&IRQHalfTransfer != 0)),
		stm32g4.DMA_CCR_TEIE(ccr).With(boolBit(cfg.Interrupts&IRQTransferError != 0)),
	)
	if err != nil {
		return err
	}
	if err := buf.lease(c.n); err != nil {
		return err
	}
	if err := c.dma.Route(c.n, port.Request); err != nil {
		if buf != c.buf {
			buf.release()
		}
		return err
	}

	w := c.dma.dma
	w.Write(ccr, 0)
	w.Write(c.r.CPAR, port.Address)
	w.Write(c.r.CMAR, buf.Address())
	w.Write(c.r.CNDTR, uint32(buf.Len()))
	w.Write(stm32g4.DMA_IFCR, stm32g4.DMAChannelFlags(c.n))
	w.Write(ccr, word)

	if c.buf != nil && c.buf != buf {
		c.buf.release()
	}
	c.buf = buf
	c.port = port
	c.cfg = cfg
	c.consecutive = 0
	c.state = StateConfigured
	RecordEvent(EvtDMAConfigure, uint8(c.n), uint32(port.Request), uint32(buf.Len()))
	return nil
}

// Enable starts the channel. The address and count are reloaded first, so
// a completed one-shot channel, or one stopped by a transfer error, is
// re-armed from the start of its buffer.
func (c *Channel) Enable() error {
	switch c.State() {
	case StateIdle:
		return ErrNotConfigured
	case StateEnabled:
		return nil
	}
	w := c.dma.dma
	en := stm32g4.DMA_CCR_EN(c.r.CCR).Mask()
	w.ClearBits(c.r.CCR, en)
	w.Write(c.r.CMAR, c.buf.Address())
	w.Write(c.r.CNDTR, uint32(c.buf.Len()))
	w.Write(stm32g4.DMA_IFCR, stm32g4.DMAChannelFlags(c.n))
	w.SetBits(c.r.CCR, en)
	c.state = StateEnabled
	RecordEvent(EvtDMAEnable, uint8(c.n), uint32(c.buf.Len()), 0)
	return nil
}

// Stop disables the channel, clears its flags and releases the buffer.
// Stopping an idle channel does nothing. Safe from interrupt context.
func (c *Channel) Stop() {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if c.state == StateIdle {
		return
	}
	w := c.dma.dma
	w.ClearBits(c.r.CCR, stm32g4.DMA_CCR_EN(c.r.CCR).Mask())
	w.Write(stm32g4.DMA_IFCR, stm32g4.DMAChannelFlags(c.n))
	remaining := w.Read(c.r.CNDTR)
	if c.buf != nil {
		c.buf.release()
	}
	c.state = StateIdle
	RecordEvent(EvtDMAStop, uint8(c.n), remaining, 0)
}

// ClearInterrupt clears one pending flag. The enable bit is not touched.
func (c *Channel) ClearInterrupt(kind InterruptKind) {
	c.dma.dma.Write(stm32g4.DMA_IFCR, stm32g4.DMAClear(c.n, kind.flag()).Mask())
}

// Pending reports whether the flag for kind is set.
func (c *Channel) Pending(kind InterruptKind) bool {
	return c.dma.dma.IsSet(stm32g4.DMAFlag(c.n, kind.flag()))
}

// State returns the channel state, observing one-shot completion from the
// transfer-complete flag.
func (c *Channel) State() ChannelState {
	if c.state == StateEnabled && !c.cfg.Circular && c.Pending(IntTransferComplete) {
		c.state = StateComplete
		RecordEvent(EvtDMAComplete, uint8(c.n), 0, 0)
	}
	return c.state
}

// Remaining returns the number of items left before the count reloads
// (circular) or the transfer completes (one-shot).
func (c *Channel) Remaining() uint32 {
	return c.dma.dma.Get(stm32g4.DMA_CNDTR_NDT(c.r.CNDTR))
}

// HandleInterrupt services the channel interrupt.
func (c *Channel) HandleInterrupt() {
	if c.Pending(IntTransferError) {
		c.transferError()
		return
	}
	if c.Pending(IntHalfTransfer) {
		c.ClearInterrupt(IntHalfTransfer)
		c.consecutive = 0
		if c.onHalf != nil {
			c.onHalf(c)
		}
	}
	if c.Pending(IntTransferComplete) {
		if !c.cfg.Circular && c.state == StateEnabled {
			c.state = StateComplete
			RecordEvent(EvtDMAComplete, uint8(c.n), 0, 0)
		}
		c.ClearInterrupt(IntTransferComplete)
		c.consecutive = 0
		if c.onComplete != nil {
			c.onComplete(c)
		}
	}
}

// PollErrors handles a transfer error flag when the error interrupt is
// not enabled. It reports whether an error was found.
func (c *Channel) PollErrors() bool {
	if !c.Pending(IntTransferError) {
		return false
	}
	c.transferError()
	return true
}

// transferError records a bus error. The hardware has already cleared EN,
// so the channel drops back to Configured and keeps its lease. A half or
// full transfer flag still pending from the last Enable means data moved
// since the previous error, which ends the run of consecutive errors.
func (c *Channel) transferError() {
	if c.Pending(IntHalfTransfer) || c.Pending(IntTransferComplete) {
		c.consecutive = 0
	}
	c.ClearInterrupt(IntTransferError)
	c.totalErrors++
	c.consecutive++
	if c.state == StateEnabled || c.state == StateComplete {
		c.state = StateConfigured
	}
	RecordEvent(EvtDMAError, uint8(c.n), c.totalErrors, uint32(c.consecutive))
	Report("[DMA] ch" + itoa(c.n) + " transfer error #" + utoa(c.totalErrors))
	if c.consecutive >= c.dma.maxErrors {
		if c.dma.fatal != nil {
			c.dma.fatal(ErrTransferErrors)
		}
		return
	}
	if c.onError != nil {
		c.onError(c)
	}
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
