package core

import (
	"errors"

	"wavedma/regs"
	"wavedma/stm32g4"
)

var (
	ErrFrequency        = errors.New("timer: frequency not reachable from clock")
	ErrTimerRunning     = errors.New("timer: stop the counter before reconfiguring")
	ErrTimerArmed       = errors.New("timer: disable request generation before reconfiguring")
	ErrTimerChannel     = errors.New("timer: no such channel")
	ErrDutyRange        = errors.New("timer: duty must be within [0, 1]")
	ErrNoDMA            = errors.New("timer: no DMA channel attached")
	ErrRequestBeforeDMA = errors.New("timer: DMA channel must be enabled before request generation")
)

// TimerState tracks a trigger timer.
type TimerState uint8

const (
	TimerDisabled TimerState = iota
	TimerArmed
	TimerRunning
)

func (s TimerState) String() string {
	switch s {
	case TimerDisabled:
		return "disabled"
	case TimerArmed:
		return "armed"
	case TimerRunning:
		return "running"
	}
	return "unknown"
}

// OutputMode is the output compare mode (OCxM encoding).
type OutputMode uint8

const (
	ModeFrozen        OutputMode = 0
	ModeActive        OutputMode = 1
	ModeInactive      OutputMode = 2
	ModeToggle        OutputMode = 3
	ModeForceInactive OutputMode = 4
	ModeForceActive   OutputMode = 5
	ModePWM1          OutputMode = 6
	ModePWM2          OutputMode = 7
)

// ParseOutputMode accepts "pwm1", "pwm2", "toggle", "active", "inactive"
// and "frozen".
func ParseOutputMode(s string) (OutputMode, bool) {
	switch s {
	case "pwm1":
		return ModePWM1, true
	case "pwm2":
		return ModePWM2, true
	case "toggle":
		return ModeToggle, true
	case "active":
		return ModeActive, true
	case "inactive":
		return ModeInactive, true
	case "frozen":
		return ModeFrozen, true
	}
	return ModeFrozen, false
}

// ComputeTiming returns the prescaler and auto-reload that make a counter
// of counterBits overflow at targetHz. The prescaler stays 0 when the
// reload fits; otherwise the smallest prescaler that fits is used.
func ComputeTiming(clockHz, targetHz uint32, counterBits uint8) (psc, arr uint32, err error) {
	if targetHz == 0 || targetHz > clockHz {
		return 0, 0, ErrFrequency
	}
	maxReload := uint64(1)<<counterBits - 1
	ticks := uint64(clockHz / targetHz)
	p := (ticks - 1) / (maxReload + 1)
	if p > 0xFFFF {
		return 0, 0, ErrFrequency
	}
	a := uint64(clockHz)/((p+1)*uint64(targetHz)) - 1
	if a == 0 || a > maxReload {
		return 0, 0, ErrFrequency
	}
	return uint32(p), uint32(a), nil
}

// TriggerTimer is a general purpose timer used as a PWM generator and as
// the pacing source for DMA requests.
type TriggerTimer struct {
	w      *regs.Window
	layout stm32g4.TimerLayout
	state  TimerState
	psc    uint32
	arr    uint32

	dma     *Channel
	port    PeripheralPort
	request bool
}

// NewTriggerTimer wraps the timer window described by layout.
func NewTriggerTimer(w *regs.Window, layout stm32g4.TimerLayout) *TriggerTimer {
	return &TriggerTimer{w: w, layout: layout}
}

func (t *TriggerTimer) State() TimerState            { return t.state }
func (t *TriggerTimer) Layout() stm32g4.TimerLayout { return t.layout }

// IRQ returns the timer's interrupt line.
func (t *TriggerTimer) IRQ() IRQ { return IRQ(t.layout.IRQ) }

// unit is the timer number used in event records.
func (t *TriggerTimer) unit() uint8 {
	name := t.layout.Name
	if name == "" {
		return 0
	}
	return name[len(name)-1] - '0'
}

// ConfigureFrequency programs the prescaler and auto-reload for targetHz
// and latches them with an update event. The timer must be disabled.
func (t *TriggerTimer) ConfigureFrequency(targetHz, clockHz uint32) error {
	switch t.state {
	case TimerRunning:
		return ErrTimerRunning
	case TimerArmed:
		return ErrTimerArmed
	}
	psc, arr, err := ComputeTiming(clockHz, targetHz, t.layout.CounterBits)
	if err != nil {
		return err
	}
	if err := t.w.Set(stm32g4.TIM_PSC_PSC, psc); err != nil {
		return err
	}
	t.w.Write(stm32g4.TIM_ARR, arr)
	t.w.SetBits(stm32g4.TIM_CR1, stm32g4.TIM_CR1_ARPE.Mask()|stm32g4.TIM_CR1_URS.Mask())
	t.w.Write(stm32g4.TIM_EGR, stm32g4.TIM_EGR_UG.Mask())
	t.ClearUpdateFlag()
	t.psc, t.arr = psc, arr
	RecordEvent(EvtTimerConfig, t.unit(), psc, arr)
	return nil
}

// MaxDuty is the compare value of a 100% duty cycle.
func (t *TriggerTimer) MaxDuty() uint32 {
	return t.arr
}

func (t *TriggerTimer) checkChannel(ch int) error {
	if ch < 1 || ch > int(t.layout.Channels) {
		return ErrTimerChannel
	}
	return nil
}

// EnablePwmChannel configures output compare channel ch in mode with a
// compare preload, sets the initial duty and enables the output.
func (t *TriggerTimer) EnablePwmChannel(ch int, mode OutputMode, duty float32) error {
	if err := t.checkChannel(ch); err != nil {
		return err
	}
	if duty < 0 || duty > 1 {
		return ErrDutyRange
	}
	err := t.w.Apply(
		stm32g4.TIM_CCMR_CCS(ch).With(0),
		stm32g4.TIM_CCMR_OCPE(ch).With(1),
		stm32g4.TIM_CCMR_OCM(ch).With(uint32(mode)&0x7),
		stm32g4.TIM_CCMR_OCM3(ch).With(uint32(mode)>>3),
	)
	if err != nil {
		return err
	}
	t.w.Write(stm32g4.TIM_CCR[ch-1], uint32(float32(t.arr)*duty))
	return t.w.Set(stm32g4.TIM_CCER_CCE(ch), 1)
}

// SetCompare writes a raw compare value.
func (t *TriggerTimer) SetCompare(ch int, v uint32) error {
	if err := t.checkChannel(ch); err != nil {
		return err
	}
	t.w.Write(stm32g4.TIM_CCR[ch-1], v)
	return nil
}

// ReadCompareRegister returns the live compare value of ch. With a burst
// transfer in flight the four channels may come from different steps.
func (t *TriggerTimer) ReadCompareRegister(ch int) uint32 {
	if t.checkChannel(ch) != nil {
		return 0
	}
	return t.w.Read(stm32g4.TIM_CCR[ch-1])
}

// ReadTiming returns the prescaler, auto-reload and repetition counter.
func (t *TriggerTimer) ReadTiming() (psc, arr, rcr uint32) {
	return t.w.Get(stm32g4.TIM_PSC_PSC), t.w.Read(stm32g4.TIM_ARR), t.w.Get(stm32g4.TIM_RCR_REP)
}

// BurstDestination returns the DMA port for a burst through DMAR, paced by
// the update event.
func (t *TriggerTimer) BurstDestination(d BurstDescriptor) (PeripheralPort, error) {
	if err := d.Validate(nil); err != nil {
		return PeripheralPort{}, err
	}
	return PeripheralPort{
		Address: t.w.Address(stm32g4.TIM_DMAR),
		Request: t.layout.UpdateReq,
		Burst:   &d,
	}, nil
}

// CompareDestination returns the DMA port writing CCRch directly, paced by
// that channel's compare event.
func (t *TriggerTimer) CompareDestination(ch int) (PeripheralPort, error) {
	if err := t.checkChannel(ch); err != nil {
		return PeripheralPort{}, err
	}
	return PeripheralPort{
		Address: t.w.Address(stm32g4.TIM_CCR[ch-1]),
		Request: t.layout.CompareReq[ch-1],
	}, nil
}

// AttachDMA records the configured channel that serves this timer's
// requests. The channel's request line must be one this timer generates.
func (t *TriggerTimer) AttachDMA(c *Channel) error {
	port := c.Port()
	if !t.generates(port.Request) {
		return ErrBadRequest
	}
	t.dma = c
	t.port = port
	return nil
}

func (t *TriggerTimer) generates(id stm32g4.RequestID) bool {
	if id == t.layout.UpdateReq {
		return true
	}
	for _, req := range t.layout.CompareReq {
		if req == id {
			return true
		}
	}
	return false
}

// compareChannel returns the channel whose compare event the port's
// request belongs to, or 0 for the update event.
func (t *TriggerTimer) compareChannel() int {
	for i, id := range t.layout.CompareReq {
		if id == t.port.Request {
			return i + 1
		}
	}
	return 0
}

// EnableBurstRequest turns on DMA request generation. The attached DMA
// channel must already be enabled, or the first requests would be lost.
func (t *TriggerTimer) EnableBurstRequest() error {
	if t.dma == nil {
		return ErrNoDMA
	}
	if t.dma.State() != StateEnabled {
		return ErrRequestBeforeDMA
	}
	if t.port.Burst != nil {
		b := t.port.Burst
		if err := t.w.Store(stm32g4.TIM_DCR_DBA.With(b.DBA()), stm32g4.TIM_DCR_DBL.With(b.DBL())); err != nil {
			return err
		}
	}
	if ch := t.compareChannel(); ch != 0 {
		t.w.SetBits(stm32g4.TIM_DIER, stm32g4.TIM_DIER_CCDE(ch).Mask())
	} else {
		t.w.SetBits(stm32g4.TIM_DIER, stm32g4.TIM_DIER_UDE.Mask())
	}
	t.request = true
	if t.state == TimerDisabled {
		t.state = TimerArmed
	}
	RecordEvent(EvtTimerArm, t.unit(), t.w.Read(stm32g4.TIM_DIER), 0)
	return nil
}

// DisableRequest turns off DMA request generation.
func (t *TriggerTimer) DisableRequest() {
	mask := stm32g4.TIM_DIER_UDE.Mask()
	for ch := 1; ch <= int(t.layout.Channels); ch++ {
		mask |= stm32g4.TIM_DIER_CCDE(ch).Mask()
	}
	t.w.ClearBits(stm32g4.TIM_DIER, mask)
	t.request = false
	if t.state == TimerArmed {
		t.state = TimerDisabled
	}
}

// Start enables the counter.
func (t *TriggerTimer) Start() {
	if t.state == TimerRunning {
		return
	}
	t.w.SetBits(stm32g4.TIM_CR1, stm32g4.TIM_CR1_CEN.Mask())
	t.state = TimerRunning
	RecordEvent(EvtTimerStart, t.unit(), t.psc, t.arr)
}

// Stop clears the counter enable bit. Request generation stays as it was.
func (t *TriggerTimer) Stop() {
	if t.state != TimerRunning {
		return
	}
	t.w.ClearBits(stm32g4.TIM_CR1, stm32g4.TIM_CR1_CEN.Mask())
	if t.request {
		t.state = TimerArmed
	} else {
		t.state = TimerDisabled
	}
	RecordEvent(EvtTimerStop, t.unit(), t.w.Read(stm32g4.TIM_CNT), 0)
}

// EnableUpdateInterrupt raises the timer interrupt on every update event.
func (t *TriggerTimer) EnableUpdateInterrupt() {
	t.w.SetBits(stm32g4.TIM_DIER, stm32g4.TIM_DIER_UIE.Mask())
}

// UpdatePending reports whether the update flag is set.
func (t *TriggerTimer) UpdatePending() bool {
	return t.w.IsSet(stm32g4.TIM_SR_UIF)
}

// ClearUpdateFlag acknowledges the update interrupt.
func (t *TriggerTimer) ClearUpdateFlag() {
	t.w.Write(stm32g4.TIM_SR, ^stm32g4.TIM_SR_UIF.Mask())
}
