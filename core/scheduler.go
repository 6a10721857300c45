package core

// SoftTimer is a software timer driven by the system tick. Handlers run
// from ProcessTimers on the main path, never from interrupt context.
type SoftTimer struct {
	WakeTime uint32
	Handler  func(*SoftTimer) uint8
	next     *SoftTimer
}

const (
	SF_DONE       = 0
	SF_RESCHEDULE = 1
)

var timerList *SoftTimer

// timerBefore compares tick values across counter wraparound.
func timerBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// ScheduleTimer adds a timer to the schedule
func ScheduleTimer(t *SoftTimer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)
	insertTimer(t)
}

// CancelTimer removes t from the schedule if present.
func CancelTimer(t *SoftTimer) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	if timerList == t {
		timerList = t.next
		t.next = nil
		return
	}
	for cur := timerList; cur != nil; cur = cur.next {
		if cur.next == t {
			cur.next = t.next
			t.next = nil
			return
		}
	}
}

// insertTimer inserts a timer in sorted order by WakeTime
func insertTimer(t *SoftTimer) {
	if timerList == nil || timerBefore(t.WakeTime, timerList.WakeTime) {
		t.next = timerList
		timerList = t
		return
	}

	cur := timerList
	for cur.next != nil && !timerBefore(t.WakeTime, cur.next.WakeTime) {
		cur = cur.next
	}
	t.next = cur.next
	cur.next = t
}

// runDueTimers runs all timers whose WakeTime is at or before now.
// A rescheduled timer that is still due runs again only on the next call.
func runDueTimers(now uint32) {
	state := disableInterrupts()
	defer restoreInterrupts(state)

	var again *SoftTimer
	for timerList != nil && !timerBefore(now, timerList.WakeTime) {
		t := timerList
		timerList = t.next
		t.next = nil

		if t.Handler(t) == SF_RESCHEDULE {
			t.next = again
			again = t
		}
	}
	for again != nil {
		t := again
		again = t.next
		t.next = nil
		insertTimer(t)
	}
}

// resetTimers drops every scheduled timer.
func resetTimers() {
	timerList = nil
}
