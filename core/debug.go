package core

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// Event is one entry of the post-mortem event ring.
type Event struct {
	Type   uint8  // Event type code
	Unit   uint8  // DMA channel or timer number
	Clock  uint32 // System ticks at event
	Value1 uint32 // Context-dependent value
	Value2 uint32 // Context-dependent value
}

// Event type codes
const (
	EvtDMAConfigure = 1  // channel programmed; v1=request, v2=count
	EvtDMAEnable    = 2  // EN set; v1=count
	EvtDMAStop      = 3  // EN cleared; v1=remaining
	EvtDMAComplete  = 4  // one-shot transfer finished
	EvtDMAError     = 5  // transfer error; v1=total, v2=consecutive
	EvtTimerConfig  = 6  // v1=psc, v2=arr
	EvtTimerArm     = 7  // request generation enabled; v1=DIER
	EvtTimerStart   = 8  // CEN set
	EvtTimerStop    = 9  // CEN cleared
	EvtCapture      = 10 // ADC reading converted; v1=raw, v2=millivolts
	EvtHalt         = 11 // fatal stop
)

const EventRingSize = 32

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled gates DebugPrintln; diagnostics always go through
	debugEnabled bool

	eventRing     [EventRingSize]Event
	eventRingHead uint8

	// Async debug output channel
	debugChan chan string
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables verbose debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// InitAsyncDebug starts the async debug output goroutine.
// Call this from main() after SetDebugWriter.
func InitAsyncDebug() {
	debugChan = make(chan string, 16)
	go func() {
		for msg := range debugChan {
			debugPrintln(msg)
		}
	}()
}

// DebugPrintln writes a debug message when verbose output is enabled
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// Report writes a message regardless of the verbose flag. Diagnostic lines
// and fatal errors use it.
func Report(msg string) {
	if debugChan != nil {
		DebugAsync(msg)
		return
	}
	if debugPrintln != nil {
		debugPrintln(msg)
	}
}

// DebugAsync queues a message for the output goroutine; drops it when the
// queue is full so interrupt handlers never block.
func DebugAsync(msg string) {
	if debugChan == nil {
		return
	}
	select {
	case debugChan <- msg:
	default:
	}
}

// RecordEvent appends an event to the ring.
func RecordEvent(typ, unit uint8, v1, v2 uint32) {
	idx := eventRingHead
	eventRing[idx] = Event{
		Type:   typ,
		Unit:   unit,
		Clock:  GetTime(),
		Value1: v1,
		Value2: v2,
	}
	eventRingHead = (idx + 1) % EventRingSize
}

// Events returns the recorded events, oldest first.
func Events() []Event {
	out := make([]Event, 0, EventRingSize)
	for i := uint8(0); i < EventRingSize; i++ {
		evt := eventRing[(eventRingHead+i)%EventRingSize]
		if evt.Type != 0 {
			out = append(out, evt)
		}
	}
	return out
}

func eventName(typ uint8) string {
	switch typ {
	case EvtDMAConfigure:
		return "DMA_CONFIG"
	case EvtDMAEnable:
		return "DMA_ENABLE"
	case EvtDMAStop:
		return "DMA_STOP"
	case EvtDMAComplete:
		return "DMA_DONE"
	case EvtDMAError:
		return "DMA_ERROR!"
	case EvtTimerConfig:
		return "TIM_CONFIG"
	case EvtTimerArm:
		return "TIM_ARM"
	case EvtTimerStart:
		return "TIM_START"
	case EvtTimerStop:
		return "TIM_STOP"
	case EvtCapture:
		return "ADC_READ"
	case EvtHalt:
		return "HALT"
	}
	return "UNKNOWN"
}

// DumpEventRing writes the event ring through the debug writer (call on
// shutdown or after a fatal error).
func DumpEventRing() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[EVENTS] === Event Ring Dump ===")
	for _, evt := range Events() {
		debugPrintln("[EVENTS] " + eventName(evt.Type) +
			" unit=" + utoa(uint32(evt.Unit)) +
			" clock=" + utoa(evt.Clock) +
			" v1=" + utoa(evt.Value1) +
			" v2=" + utoa(evt.Value2))
	}
	debugPrintln("[EVENTS] === End Dump ===")
}

// ClearEventRing clears the event buffer
func ClearEventRing() {
	eventRing = [EventRingSize]Event{}
	eventRingHead = 0
}
