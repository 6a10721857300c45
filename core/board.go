package core

import (
	"errors"
	"io"

	"wavedma/config"
	"wavedma/protocol"
	"wavedma/stm32g4"
	"wavedma/tmc"
)

var (
	ErrNoClock       = errors.New("board: no clock source registered")
	ErrUnknownTimer  = errors.New("board: unknown timer")
	ErrNotStarted    = errors.New("board: not started")
	ErrAlreadyActive = errors.New("board: already started")
)

// Task priorities. The waveform channel only interrupts on transfer errors.
const (
	PriorityWaveformDMA = 3
	PriorityDiagTimer   = 2
	PriorityDiagReport  = 1
	PriorityCaptureDMA  = 1
)

// IRQDiagReport is the software task that writes the diagnostic report.
const IRQDiagReport = SoftwareIRQBase

var haltHandler = haltForever

// SetHaltHandler replaces what Halt does after reporting. Host builds use it
// to turn a halt into an error.
func SetHaltHandler(fn func(error)) {
	if fn == nil {
		fn = haltForever
	}
	haltHandler = fn
}

// Halt reports a fatal error, dumps the event ring and stops. On target
// builds it never returns.
func Halt(err error) {
	RecordEvent(EvtHalt, 0, 0, 0)
	Report("[HALT] " + err.Error())
	DumpEventRing()
	haltHandler(err)
}

type stageError struct {
	stage string
	err   error
}

func (e stageError) Error() string { return "board: " + e.stage + ": " + e.err.Error() }
func (e stageError) Unwrap() error { return e.err }

func stage(name string, err error) error {
	if err == nil {
		return nil
	}
	return stageError{name, err}
}

// Board runs the startup sequence of the waveform engine and owns the
// pieces it builds.
type Board struct {
	cfg   config.Config
	set   *PeripheralSet
	d     *Dispatcher
	arena *Arena

	clockHz uint32
	table   *DutyTable
	burst   BurstDescriptor
	port    PeripheralPort
	dmaCfg  ChannelConfig
	dma     *DMA
	channel *Channel
	timer   *TriggerTimer

	diagTimer *TriggerTimer
	diag      *Diagnostics
	capture   *Resource[*Capture]

	dict     *Dictionary
	link     *Resource[*protocol.Link]
	conn     *protocol.Link
	linkOut  io.Writer
	commands *CommandRegistry

	started bool
	running bool
}

// NewBoard prepares a board; nothing touches hardware until Start.
func NewBoard(cfg config.Config, set *PeripheralSet, d *Dispatcher, arena *Arena) *Board {
	b := &Board{cfg: cfg, set: set, d: d, arena: arena, commands: NewCommandRegistry()}
	b.commands.Handle(MsgGetStatus, b.handleGetStatus)
	b.commands.Handle(MsgGetSnapshot, b.handleGetSnapshot)
	b.commands.Handle(MsgStartWaveform, func(*[]byte) error { return b.StartWaveform() })
	b.commands.Handle(MsgStopWaveform, func(*[]byte) error { b.StopWaveform(); return nil })
	b.commands.Handle(MsgIdentify, b.handleIdentify)
	return b
}

// AttachTelemetry sends telemetry frames to w. Must be called before Start.
func (b *Board) AttachTelemetry(w io.Writer) {
	b.linkOut = w
}

// Start brings the board up in order: clock, pins, duty table, peripheral
// claims, trigger timer, DMA channel, DMA enable, request generation,
// counter start, driver frame, capture and diagnostics. The first error
// aborts the sequence; the caller decides whether it is fatal.
func (b *Board) Start() error {
	if b.started {
		return ErrAlreadyActive
	}
	cfg := b.cfg
	if err := cfg.Validate(); err != nil {
		return stage("config", err)
	}
	SetDebugEnabled(cfg.Debug)

	if clockSource == nil {
		return stage("clock", ErrNoClock)
	}
	if err := clockSource.Setup(); err != nil {
		return stage("clock", err)
	}
	b.clockHz = clockSource.SysclkHz()
	if pinSetup != nil {
		if err := pinSetup(); err != nil {
			return stage("pins", err)
		}
	}

	layout, ok := stm32g4.TimerByName(cfg.Timer.Name)
	if !ok {
		return stage("timer", ErrUnknownTimer)
	}
	if err := b.buildTable(layout); err != nil {
		return stage("table", err)
	}

	tw, err := b.set.Take(layout.Name)
	if err != nil {
		return stage("claim", err)
	}
	dw, err := b.set.Take("DMA1")
	if err != nil {
		return stage("claim", err)
	}
	mw, err := b.set.Take("DMAMUX1")
	if err != nil {
		return stage("claim", err)
	}

	b.timer = NewTriggerTimer(tw, layout)
	if err := b.timer.ConfigureFrequency(cfg.Timer.FrequencyHz, b.clockHz); err != nil {
		return stage("timer", err)
	}
	mode, _ := ParseOutputMode(cfg.Timer.Mode)
	for ch := 1; ch <= int(layout.Channels) && ch <= cfg.Waveform.Channels; ch++ {
		if err := b.timer.EnablePwmChannel(ch, mode, cfg.Timer.InitialDuty); err != nil {
			return stage("pwm", err)
		}
	}

	b.burst = BurstDescriptor{BaseOffset: cfg.Burst.BaseOffset, Length: cfg.Burst.Length, ItemWidth: Size16}
	if err := b.burst.Validate(b.table); err != nil {
		return stage("burst", err)
	}
	b.port, err = b.timer.BurstDestination(b.burst)
	if err != nil {
		return stage("burst", err)
	}
	if want, ok := stm32g4.RequestByName(cfg.DMA.Request); !ok || want != b.port.Request {
		return stage("dma", ErrBadRequest)
	}

	b.dma = NewDMA(dw, mw, stm32g4.DMA1Channels)
	b.dma.SetMaxTransferErrors(cfg.DMA.MaxTransferErrors)
	b.channel, err = b.dma.Channel(cfg.DMA.Channel)
	if err != nil {
		return stage("dma", err)
	}
	prio, _ := ParseDMAPriority(cfg.DMA.Priority)
	b.dmaCfg = ChannelConfig{
		Circular:        cfg.DMA.Circular,
		Priority:        prio,
		MemoryIncrement: true,
		MemorySize:      Size16,
		PeripheralSize:  Size32,
		Direction:       MemoryToPeripheral,
	}
	if cfg.DMA.ErrorInterrupt {
		b.dmaCfg.Interrupts = IRQTransferError
	}
	if _, err := b.d.Bind(b.channel.IRQ(), "waveform-dma", PriorityWaveformDMA, b.channel.HandleInterrupt); err != nil {
		return stage("dispatch", err)
	}
	b.channel.OnTransferError(b.rearmWaveform)

	if err := b.armWaveform(); err != nil {
		return err
	}
	b.sendDriverFrame()

	if b.linkOut != nil {
		if err := b.buildDictionary(); err != nil {
			return stage("dictionary", err)
		}
		b.conn = protocol.NewLink(b.linkOut, b.commands.Dispatch)
		b.link = NewResource(b.d, "telemetry", b.conn)
	}
	b.diag = NewDiagnostics(b.timer, b.channel)
	if cfg.Diagnostics.Enabled {
		if err := b.startDiagnostics(); err != nil {
			return err
		}
	}
	b.started = true
	Report("[BOARD] waveform running: " + utoa(uint32(b.table.Steps())) + " steps at " +
		utoa(cfg.Timer.FrequencyHz) + " Hz, arr=" + utoa(b.timer.MaxDuty()))
	return nil
}

// buildDictionary describes the running configuration for identify.
func (b *Board) buildDictionary() error {
	cfg := b.cfg
	d := NewDictionary(FirmwareVersion)
	d.AddConstant("MCU", "stm32g431")
	d.AddConstant("CLOCK_FREQ", b.clockHz)
	d.AddConstant("TICK_FREQ", TickFrequency())
	d.AddConstant("TIMER", cfg.Timer.Name)
	d.AddConstant("TIMER_FREQ", cfg.Timer.FrequencyHz)
	d.AddConstant("TIMER_ARR", b.timer.MaxDuty())
	d.AddConstant("TABLE_STEPS", uint32(b.table.Steps()))
	d.AddConstant("TABLE_CHANNELS", uint32(b.table.Stride()))
	d.AddConstant("BURST_BASE", cfg.Burst.BaseOffset)
	d.AddConstant("BURST_LENGTH", cfg.Burst.Length)
	d.AddConstant("DMA_CHANNEL", cfg.DMA.Channel)
	d.AddConstant("DMA_CIRCULAR", cfg.DMA.Circular)
	d.AddConstant("ADC_ENABLED", cfg.ADC.Enabled)
	requests := make(map[string]uint32)
	for _, id := range stm32g4.RequestIDs() {
		requests[id.String()] = uint32(id)
	}
	d.AddEnumeration("dma_request", requests)
	b.dict = d
	return d.Build()
}

func (b *Board) buildTable(layout stm32g4.TimerLayout) error {
	w := b.cfg.Waveform
	var err error
	if len(w.Values) > 0 {
		b.table, err = TableFromValues(b.arena, w.Channels, w.Values)
		return err
	}
	_, arr, err := ComputeTiming(b.clockHz, b.cfg.Timer.FrequencyHz, layout.CounterBits)
	if err != nil {
		return err
	}
	pattern := make(PhasePattern, len(w.Pattern))
	copy(pattern, w.Pattern)
	b.table, err = BuildTable(b.arena, w.Steps, w.Channels, PeakFromMaxDuty(arr, w.PeakPercent), pattern)
	return err
}

// armWaveform runs the DMA half of the sequence. The channel is enabled
// before the timer may raise requests, so the first update event finds it
// ready.
func (b *Board) armWaveform() error {
	if err := b.channel.Configure(b.table.Buffer(), b.port, b.dmaCfg); err != nil {
		return stage("dma", err)
	}
	if err := b.timer.AttachDMA(b.channel); err != nil {
		return stage("dma", err)
	}
	if err := b.channel.Enable(); err != nil {
		return stage("dma", err)
	}
	if err := b.timer.EnableBurstRequest(); err != nil {
		return stage("request", err)
	}
	b.timer.Start()
	b.running = true
	return nil
}

// rearmWaveform restarts the table after a transfer error. Request
// generation and the counter stay on, so the next update event starts a
// burst from the first step.
func (b *Board) rearmWaveform(c *Channel) {
	if !b.running {
		return
	}
	if err := c.Enable(); err != nil {
		Report("[BOARD] re-arm: " + err.Error())
		return
	}
	DebugPrintln("[BOARD] waveform re-armed after transfer error")
}

// streaming reports whether the waveform channel is live. A transfer
// error past the fatal threshold leaves it configured but disabled.
func (b *Board) streaming() bool {
	return b.running && b.channel.State() != StateConfigured
}

// sendDriverFrame writes the stepper driver configuration once. A failed
// write is logged and not retried.
func (b *Board) sendDriverFrame() {
	drv := b.cfg.Driver
	if !drv.Enabled || driverPort == nil {
		return
	}
	g := tmc.GConf{
		PDNDisable:    drv.PDNDisable,
		MstepRegister: drv.MstepRegister,
		MultistepFilt: drv.MultistepFilt,
	}
	if err := tmc.SendGConf(driverPort, drv.Address, g); err != nil {
		Report("[BOARD] driver frame: " + err.Error())
		return
	}
	DebugPrintln("[BOARD] driver GCONF=" + hex32(g.Value()))
}

func (b *Board) startDiagnostics() error {
	cfg := b.cfg
	layout, ok := stm32g4.TimerByName(cfg.Diagnostics.Timer)
	if !ok {
		return stage("diagnostics", ErrUnknownTimer)
	}
	w, err := b.set.Take(layout.Name)
	if err != nil {
		return stage("claim", err)
	}
	b.diagTimer = NewTriggerTimer(w, layout)
	if err := b.diagTimer.ConfigureFrequency(cfg.Diagnostics.FrequencyHz, b.clockHz); err != nil {
		return stage("diagnostics", err)
	}

	tick, err := b.d.Bind(b.diagTimer.IRQ(), "diag-timer", PriorityDiagTimer, b.onDiagTick)
	if err != nil {
		return stage("dispatch", err)
	}
	report, err := b.d.Bind(IRQDiagReport, "diag-report", PriorityDiagReport, b.onDiagReport)
	if err != nil {
		return stage("dispatch", err)
	}
	if b.link != nil {
		b.link.Share(report)
		b.diag.OnReport(func(s Snapshot) {
			b.link.Lock(func(l **protocol.Link) {
				(*l).Send(uint16(MsgSnapshot), func(out protocol.OutputBuffer) { EncodeSnapshot(out, s) })
			})
		})
	}

	if cfg.ADC.Enabled {
		if err := b.startCapture(tick, report); err != nil {
			return err
		}
	}

	b.diagTimer.EnableUpdateInterrupt()
	b.diagTimer.Start()
	return nil
}

func (b *Board) startCapture(users ...*Task) error {
	a := b.cfg.ADC
	w, err := b.set.Take("ADC1")
	if err != nil {
		return stage("claim", err)
	}
	common, err := b.set.Take("ADC12_COMMON")
	if err != nil {
		return stage("claim", err)
	}
	ch, err := b.dma.Channel(a.DMAChannel)
	if err != nil {
		return stage("capture", err)
	}
	buf, err := b.arena.Alloc(a.Samples)
	if err != nil {
		return stage("capture", err)
	}
	c := NewCapture(w, common, ch, buf, a.VrefMV)
	if err := c.Init(a.Input); err != nil {
		return stage("capture", err)
	}
	b.capture = NewResource(b.d, "adc", c)
	done, err := b.d.Bind(ch.IRQ(), "adc-dma", PriorityCaptureDMA, func() {
		b.capture.Lock(func(c **Capture) { (*c).HandleInterrupt() })
	})
	if err != nil {
		return stage("dispatch", err)
	}
	b.capture.Share(append(users, done)...)
	b.diag.WithCapture(b.capture)
	return nil
}

// onDiagTick runs on every diagnostic timer update: it starts an ADC
// capture and hands the report to the lower priority task.
func (b *Board) onDiagTick() {
	b.diagTimer.ClearUpdateFlag()
	if b.capture != nil {
		b.capture.Lock(func(c **Capture) {
			if err := (*c).Trigger(); err != nil && err != ErrCaptureBusy {
				Report("[ADC] trigger: " + err.Error())
			}
		})
	}
	b.d.Pend(IRQDiagReport)
}

func (b *Board) onDiagReport() {
	if !b.cfg.DMA.ErrorInterrupt {
		b.channel.PollErrors()
	}
	b.diag.Report()
}

// StopWaveform stops the counter, then request generation, then the DMA
// channel. The duty table lease returns to software.
func (b *Board) StopWaveform() {
	if b.timer == nil || !b.running {
		return
	}
	b.timer.Stop()
	b.timer.DisableRequest()
	b.channel.Stop()
	b.running = false
}

// Stop halts the waveform and the diagnostic timer. An armed capture is
// abandoned and its buffer released. StartWaveform restarts the waveform
// only.
func (b *Board) Stop() {
	b.StopWaveform()
	if b.diagTimer != nil {
		b.diagTimer.Stop()
	}
	if b.capture != nil {
		b.capture.Lock(func(c **Capture) { (*c).Abort() })
	}
}

// StartWaveform re-arms a stopped waveform from the start of the table. A
// waveform left dead by transfer errors is stopped and armed again.
func (b *Board) StartWaveform() error {
	if b.timer == nil {
		return ErrNotStarted
	}
	if b.streaming() {
		return nil
	}
	b.StopWaveform()
	return b.armWaveform()
}

// Receive passes bytes read from the telemetry UART to the link.
func (b *Board) Receive(p []byte) {
	if b.link == nil {
		return
	}
	b.link.Lock(func(l **protocol.Link) { (*l).Receive(p) })
}

// Status returns the short state report.
func (b *Board) Status() Status {
	var s Status
	if b.channel != nil {
		s.Running = b.streaming()
		s.Channel = b.channel.State()
		s.Errors = b.channel.TransferErrors()
	}
	if b.timer != nil {
		s.Timer = b.timer.State()
	}
	return s
}

// Snapshot samples the diagnostics without reporting.
func (b *Board) Snapshot() Snapshot {
	if b.diag == nil {
		return Snapshot{}
	}
	return b.diag.Sample()
}

func (b *Board) handleGetStatus(*[]byte) error {
	s := b.Status()
	return b.send(MsgStatus, func(out protocol.OutputBuffer) { EncodeStatus(out, s) })
}

func (b *Board) handleGetSnapshot(*[]byte) error {
	s := b.Snapshot()
	return b.send(MsgSnapshot, func(out protocol.OutputBuffer) { EncodeSnapshot(out, s) })
}

func (b *Board) handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	if count > IdentifyChunk {
		count = IdentifyChunk
	}
	chunk := b.dict.Chunk(offset, uint8(count))
	return b.send(MsgIdentifyResponse, func(out protocol.OutputBuffer) {
		protocol.EncodeVLQUint(out, offset)
		protocol.EncodeVLQBytes(out, chunk)
	})
}

// send is only called from command handlers, which already run under the
// link lock.
func (b *Board) send(id MessageID, args func(protocol.OutputBuffer)) error {
	return b.conn.Send(uint16(id), args)
}

func (b *Board) Config() config.Config        { return b.cfg }
func (b *Board) Table() *DutyTable            { return b.table }
func (b *Board) Dictionary() *Dictionary      { return b.dict }
func (b *Board) Channel() *Channel            { return b.channel }
func (b *Board) Timer() *TriggerTimer         { return b.timer }
func (b *Board) DiagTimer() *TriggerTimer     { return b.diagTimer }
func (b *Board) Diagnostics() *Diagnostics    { return b.diag }
func (b *Board) Capture() *Resource[*Capture] { return b.capture }
func (b *Board) DMA() *DMA                    { return b.dma }
func (b *Board) Running() bool                { return b.streaming() }
