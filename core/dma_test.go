package core

import (
	"errors"
	"testing"

	"wavedma/regs"
	"wavedma/stm32g4"
)

type dmaFixture struct {
	dma    *DMA
	bank   *regs.MemBank
	mux    *regs.MemBank
	ch     *Channel
	buf    *Buffer
	port   PeripheralPort
	fatals []error
}

func newDMAFixture(t *testing.T) *dmaFixture {
	t.Helper()
	resetDebug(t)
	banks, set := testBanks()
	f := &dmaFixture{bank: banks["DMA1"], mux: banks["DMAMUX1"]}
	f.dma = NewDMA(mustTake(t, set, "DMA1"), mustTake(t, set, "DMAMUX1"), stm32g4.DMA1Channels)
	f.dma.SetFatalHandler(func(err error) { f.fatals = append(f.fatals, err) })
	var err error
	if f.ch, err = f.dma.Channel(1); err != nil {
		t.Fatal(err)
	}
	if f.buf, err = NewArena(512).Alloc(512); err != nil {
		t.Fatal(err)
	}
	d := BurstDescriptor{13, 4, Size16}
	f.port = PeripheralPort{Address: stm32g4.TIM2Base + stm32g4.TIM_DMAR.Offset, Request: stm32g4.ReqTIM2_UP, Burst: &d}
	return f
}

func waveformConfig() ChannelConfig {
	return ChannelConfig{
		Circular:        true,
		Priority:        PriorityMedium,
		MemoryIncrement: true,
		MemorySize:      Size16,
		PeripheralSize:  Size32,
		Direction:       MemoryToPeripheral,
		Interrupts:      IRQTransferError,
	}
}

func TestChannelConfigureWaveform(t *testing.T) {
	f := newDMAFixture(t)
	if err := f.ch.Configure(f.buf, f.port, waveformConfig()); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	r := stm32g4.DMAChannel(1)
	if got := f.bank.Load(r.CCR.Offset); got != 0x16B8 {
		t.Errorf("CCR = 0x%04X, want 0x16B8", got)
	}
	if got := f.bank.Load(r.CNDTR.Offset); got != 512 {
		t.Errorf("CNDTR = %d, want 512", got)
	}
	if got := f.bank.Load(r.CPAR.Offset); got != 0x4000_03E0 {
		t.Errorf("CPAR = 0x%08X, want TIM2 DMAR", got)
	}
	if got := f.bank.Load(r.CMAR.Offset); got != f.buf.Address() {
		t.Errorf("CMAR = 0x%08X, want 0x%08X", got, f.buf.Address())
	}
	if got := f.dma.Routed(1); got != stm32g4.ReqTIM2_UP {
		t.Errorf("DMAMUX request = %v, want TIM2_UP", got)
	}
	if f.ch.State() != StateConfigured {
		t.Errorf("state = %v, want configured", f.ch.State())
	}
	if f.buf.Holder() != 1 {
		t.Errorf("buffer holder = %d, want 1", f.buf.Holder())
	}
	if err := f.buf.Fill([]uint16{1}); !errors.Is(err, ErrBufferLeased) {
		t.Errorf("Fill on leased buffer = %v, want ErrBufferLeased", err)
	}
}

func TestChannelLifecycle(t *testing.T) {
	f := newDMAFixture(t)
	if err := f.ch.Enable(); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("Enable before Configure = %v, want ErrNotConfigured", err)
	}
	if err := f.ch.Configure(f.buf, f.port, waveformConfig()); err != nil {
		t.Fatal(err)
	}
	if err := f.ch.Enable(); err != nil {
		t.Fatal(err)
	}
	if f.ch.State() != StateEnabled {
		t.Fatalf("state = %v, want enabled", f.ch.State())
	}
	if err := f.ch.Configure(f.buf, f.port, waveformConfig()); !errors.Is(err, ErrChannelBusy) {
		t.Errorf("Configure while enabled = %v, want ErrChannelBusy", err)
	}

	f.ch.Stop()
	if f.ch.State() != StateIdle || f.buf.Leased() {
		t.Fatalf("after Stop: state %v leased %v", f.ch.State(), f.buf.Leased())
	}
	ccr := stm32g4.DMAChannel(1).CCR.Offset
	writes := f.bank.Writes(ccr)
	f.ch.Stop()
	if f.bank.Writes(ccr) != writes {
		t.Errorf("second Stop wrote CCR")
	}
}

func TestChannelRejects(t *testing.T) {
	f := newDMAFixture(t)
	bad := f.port
	bad.Request = stm32g4.ReqNone
	if err := f.ch.Configure(f.buf, bad, waveformConfig()); !errors.Is(err, ErrBadRequest) {
		t.Errorf("unknown request = %v, want ErrBadRequest", err)
	}
	if f.buf.Leased() {
		t.Errorf("rejected Configure kept the lease")
	}

	cfg := waveformConfig()
	cfg.MemorySize = 3
	if err := f.ch.Configure(f.buf, f.port, cfg); !errors.Is(err, ErrWordSize) {
		t.Errorf("bad width = %v, want ErrWordSize", err)
	}

	if _, err := f.dma.Channel(1); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second claim = %v, want ErrAlreadyClaimed", err)
	}
	if _, err := f.dma.Channel(7); !errors.Is(err, ErrNoChannel) {
		t.Errorf("channel 7 = %v, want ErrNoChannel", err)
	}

	other, _ := f.dma.Channel(2)
	if err := f.ch.Configure(f.buf, f.port, waveformConfig()); err != nil {
		t.Fatal(err)
	}
	if err := other.Configure(f.buf, f.port, waveformConfig()); !errors.Is(err, ErrBufferLeased) {
		t.Errorf("second channel on leased buffer = %v, want ErrBufferLeased", err)
	}
}

func TestTransferErrorsHaltAfterThreshold(t *testing.T) {
	f := newDMAFixture(t)
	if err := f.ch.Configure(f.buf, f.port, waveformConfig()); err != nil {
		t.Fatal(err)
	}
	for i := 1; i <= DefaultMaxTransferErrors; i++ {
		if err := f.ch.Enable(); err != nil {
			t.Fatal(err)
		}
		raiseDMAFlag(f.bank, 1, stm32g4.DMAFlagTEIF)
		f.ch.HandleInterrupt()

		if f.ch.State() != StateConfigured {
			t.Fatalf("error %d: state = %v, want configured", i, f.ch.State())
		}
		if f.ch.Pending(IntTransferError) {
			t.Fatalf("error %d: TE flag not cleared", i)
		}
		if f.ch.TransferErrors() != uint32(i) {
			t.Fatalf("error count = %d, want %d", f.ch.TransferErrors(), i)
		}
		if !f.buf.Leased() {
			t.Fatalf("transfer error released the buffer")
		}
	}
	if len(f.fatals) != 1 || !errors.Is(f.fatals[0], ErrTransferErrors) {
		t.Errorf("fatal calls = %v, want one ErrTransferErrors", f.fatals)
	}
}

func TestHalfTransferResetsErrorRun(t *testing.T) {
	f := newDMAFixture(t)
	cfg := waveformConfig()
	cfg.Interrupts |= IRQHalfTransfer
	if err := f.ch.Configure(f.buf, f.port, cfg); err != nil {
		t.Fatal(err)
	}
	var halves int
	f.ch.OnHalfTransfer(func(*Channel) { halves++ })

	for i := 0; i < 2*DefaultMaxTransferErrors; i++ {
		f.ch.Enable()
		raiseDMAFlag(f.bank, 1, stm32g4.DMAFlagTEIF)
		f.ch.HandleInterrupt()
		if i%2 == 1 {
			f.ch.Enable()
			raiseDMAFlag(f.bank, 1, stm32g4.DMAFlagHTIF)
			f.ch.HandleInterrupt()
		}
	}
	if len(f.fatals) != 0 {
		t.Errorf("non-consecutive errors halted: %v", f.fatals)
	}
	if halves != DefaultMaxTransferErrors {
		t.Errorf("half-transfer callbacks = %d, want %d", halves, DefaultMaxTransferErrors)
	}
}

func TestOneShotCompletes(t *testing.T) {
	f := newDMAFixture(t)
	cfg := waveformConfig()
	cfg.Circular = false
	cfg.Interrupts = IRQTransferComplete
	if err := f.ch.Configure(f.buf, f.port, cfg); err != nil {
		t.Fatal(err)
	}
	f.ch.Enable()
	var done int
	f.ch.OnComplete(func(*Channel) { done++ })
	raiseDMAFlag(f.bank, 1, stm32g4.DMAFlagTCIF)
	f.ch.HandleInterrupt()

	if f.ch.State() != StateComplete || done != 1 {
		t.Fatalf("state %v callbacks %d, want complete and 1", f.ch.State(), done)
	}
	if err := f.ch.Enable(); err != nil {
		t.Fatalf("re-enable: %v", err)
	}
	if f.ch.State() != StateEnabled {
		t.Errorf("re-enabled state = %v", f.ch.State())
	}
}

func TestPollErrors(t *testing.T) {
	f := newDMAFixture(t)
	cfg := waveformConfig()
	cfg.Interrupts = 0
	f.ch.Configure(f.buf, f.port, cfg)
	f.ch.Enable()
	if f.ch.PollErrors() {
		t.Fatal("PollErrors reported an error with no flag set")
	}
	raiseDMAFlag(f.bank, 1, stm32g4.DMAFlagTEIF)
	if !f.ch.PollErrors() || f.ch.TransferErrors() != 1 {
		t.Errorf("PollErrors did not record the error")
	}
}

func TestTransferErrorCallbackRearms(t *testing.T) {
	f := newDMAFixture(t)
	if err := f.ch.Configure(f.buf, f.port, waveformConfig()); err != nil {
		t.Fatal(err)
	}
	var rearms int
	f.ch.OnTransferError(func(c *Channel) {
		rearms++
		if err := c.Enable(); err != nil {
			t.Errorf("re-arm: %v", err)
		}
	})
	f.ch.Enable()

	for i := 1; i <= DefaultMaxTransferErrors; i++ {
		raiseDMAFlag(f.bank, 1, stm32g4.DMAFlagTEIF)
		f.ch.HandleInterrupt()
		if i < DefaultMaxTransferErrors && f.ch.State() != StateEnabled {
			t.Fatalf("error %d: state = %v, want enabled again", i, f.ch.State())
		}
	}
	if rearms != DefaultMaxTransferErrors-1 {
		t.Errorf("callback ran %d times, want %d", rearms, DefaultMaxTransferErrors-1)
	}
	if f.ch.State() != StateConfigured {
		t.Errorf("state after fatal error = %v, want configured", f.ch.State())
	}
	if len(f.fatals) != 1 || !errors.Is(f.fatals[0], ErrTransferErrors) {
		t.Errorf("fatal calls = %v", f.fatals)
	}
}

func TestTransferErrorAfterProgressStartsNewRun(t *testing.T) {
	f := newDMAFixture(t)
	if err := f.ch.Configure(f.buf, f.port, waveformConfig()); err != nil {
		t.Fatal(err)
	}
	f.ch.OnTransferError(func(c *Channel) { c.Enable() })
	f.ch.Enable()

	// HTIE is off: the half transfer flag is only visible in ISR.
	for i := 0; i < 2*DefaultMaxTransferErrors; i++ {
		raiseDMAFlag(f.bank, 1, stm32g4.DMAFlagHTIF)
		raiseDMAFlag(f.bank, 1, stm32g4.DMAFlagTEIF)
		f.ch.HandleInterrupt()
	}
	if len(f.fatals) != 0 {
		t.Errorf("errors separated by progress halted: %v", f.fatals)
	}
	if f.ch.TransferErrors() != 2*DefaultMaxTransferErrors {
		t.Errorf("errors = %d", f.ch.TransferErrors())
	}
}

func TestReconfigureFailureKeepsBuffer(t *testing.T) {
	f := newDMAFixture(t)
	if err := f.ch.Configure(f.buf, f.port, waveformConfig()); err != nil {
		t.Fatal(err)
	}
	other, _ := NewArena(64).Alloc(64)
	cfg := waveformConfig()
	cfg.Priority = 9
	if err := f.ch.Configure(other, f.port, cfg); !errors.Is(err, regs.ErrFieldOverflow) {
		t.Fatalf("bad priority = %v, want ErrFieldOverflow", err)
	}
	if !f.buf.Leased() || f.ch.Buffer() != f.buf {
		t.Errorf("failed Configure dropped the held buffer")
	}
	if other.Leased() {
		t.Errorf("failed Configure kept the new buffer leased")
	}
	if f.ch.State() != StateConfigured {
		t.Errorf("state = %v", f.ch.State())
	}
	if got := f.bank.Load(stm32g4.DMAChannel(1).CNDTR.Offset); got != 512 {
		t.Errorf("CNDTR = %d, want the held buffer's 512", got)
	}

	if err := f.ch.Configure(other, f.port, waveformConfig()); err != nil {
		t.Fatal(err)
	}
	if f.buf.Leased() || !other.Leased() {
		t.Errorf("successful Configure did not swap leases")
	}
}
