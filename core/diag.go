package core

// Snapshot is one diagnostic sample of the waveform engine. Compare values
// are read while the burst transfer may be writing them, so the four
// channels can come from adjacent steps.
type Snapshot struct {
	Tick           uint32
	PSC            uint32
	ARR            uint32
	RCR            uint32
	CCR            [4]uint32
	Remaining      uint32
	Channel        ChannelState
	Timer          TimerState
	TransferErrors uint32
	ADCRaw         uint16
	ADCMilliVolts  uint32
}

// SnapshotSink receives every reported snapshot, e.g. a telemetry encoder.
type SnapshotSink func(Snapshot)

// Diagnostics samples the trigger timer and its DMA channel and reports the
// result. Sampling only reads registers.
type Diagnostics struct {
	timer   *TriggerTimer
	dma     *Channel
	capture *Resource[*Capture]
	sinks   []SnapshotSink
	last    Snapshot
	reports uint32
	timerEv SoftTimer
}

func NewDiagnostics(timer *TriggerTimer, dma *Channel) *Diagnostics {
	return &Diagnostics{timer: timer, dma: dma}
}

// WithCapture adds the last ADC reading to every snapshot.
func (d *Diagnostics) WithCapture(r *Resource[*Capture]) {
	d.capture = r
}

// OnReport registers a sink called after each report line.
func (d *Diagnostics) OnReport(sink SnapshotSink) {
	d.sinks = append(d.sinks, sink)
}

// Sample reads the current state.
func (d *Diagnostics) Sample() Snapshot {
	s := Snapshot{Tick: GetTime()}
	s.PSC, s.ARR, s.RCR = d.timer.ReadTiming()
	for ch := 1; ch <= 4; ch++ {
		s.CCR[ch-1] = d.timer.ReadCompareRegister(ch)
	}
	s.Timer = d.timer.State()
	if d.dma != nil {
		s.Remaining = d.dma.Remaining()
		s.Channel = d.dma.State()
		s.TransferErrors = d.dma.TransferErrors()
	}
	if d.capture != nil {
		d.capture.Lock(func(c **Capture) {
			r := (*c).Last()
			s.ADCRaw, s.ADCMilliVolts = r.Raw, r.MilliVolts
		})
	}
	return s
}

// Report samples, writes one text line and feeds the sinks.
func (d *Diagnostics) Report() Snapshot {
	s := d.Sample()
	Report(FormatSnapshot(s))
	for _, sink := range d.sinks {
		sink(s)
	}
	d.last = s
	d.reports++
	return s
}

// Last returns the most recent reported snapshot.
func (d *Diagnostics) Last() Snapshot { return d.last }

// Reports counts Report calls.
func (d *Diagnostics) Reports() uint32 { return d.reports }

// ScheduleEvery reports from the software timer list every period ticks.
// Boards without a spare hardware timer use this in place of the update
// interrupt.
func (d *Diagnostics) ScheduleEvery(period uint32) {
	CancelTimer(&d.timerEv)
	d.timerEv.WakeTime = GetTime() + period
	d.timerEv.Handler = func(t *SoftTimer) uint8 {
		d.Report()
		t.WakeTime += period
		return SF_RESCHEDULE
	}
	ScheduleTimer(&d.timerEv)
}

// Cancel removes the scheduled report.
func (d *Diagnostics) Cancel() {
	CancelTimer(&d.timerEv)
}

// FormatSnapshot renders s as one diagnostic line.
func FormatSnapshot(s Snapshot) string {
	line := "[DIAG] t=" + utoa(s.Tick) +
		" psc=" + utoa(s.PSC) +
		" arr=" + utoa(s.ARR) +
		" rcr=" + utoa(s.RCR) +
		" ccr=" + utoa(s.CCR[0]) + "," + utoa(s.CCR[1]) + "," + utoa(s.CCR[2]) + "," + utoa(s.CCR[3]) +
		" ndt=" + utoa(s.Remaining) +
		" dma=" + s.Channel.String() +
		" tim=" + s.Timer.String()
	if s.TransferErrors != 0 {
		line += " te=" + utoa(s.TransferErrors)
	}
	if s.ADCRaw != 0 || s.ADCMilliVolts != 0 {
		line += " adc=" + utoa(uint32(s.ADCRaw)) + " mv=" + utoa(s.ADCMilliVolts)
	}
	return line
}
