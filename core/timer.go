package core

// DefaultTickFreq is the system tick rate until a target sets its own.
const DefaultTickFreq = 1000000

var (
	tickFreq    uint32 = DefaultTickFreq
	systemTicks uint32
)

// SetTickFrequency sets the rate at which the system tick counter advances.
func SetTickFrequency(hz uint32) {
	if hz != 0 {
		tickFreq = hz
	}
}

// TickFrequency returns the system tick rate in Hz.
func TickFrequency() uint32 {
	return tickFreq
}

// GetTime returns the current system time in ticks
func GetTime() uint32 {
	return getSystemTicks()
}

// SetTime sets the current system time (simulator and target tick source)
func SetTime(ticks uint32) {
	setSystemTicks(ticks)
}

// AdvanceTime moves the system time forward by ticks.
func AdvanceTime(ticks uint32) {
	setSystemTicks(getSystemTicks() + ticks)
}

// TicksFromMS converts milliseconds to system ticks
func TicksFromMS(ms uint32) uint32 {
	return uint32(uint64(ms) * uint64(tickFreq) / 1000)
}

// TicksToMS converts system ticks to milliseconds
func TicksToMS(ticks uint32) uint32 {
	return uint32(uint64(ticks) * 1000 / uint64(tickFreq))
}

// ProcessTimers runs every software timer that is due at the current time.
func ProcessTimers() {
	runDueTimers(GetTime())
}
