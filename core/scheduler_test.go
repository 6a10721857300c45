package core

import "testing"

func TestSoftTimersRunInOrder(t *testing.T) {
	resetTimers()
	SetTime(1000)
	t.Cleanup(resetTimers)

	var order []int
	mk := func(id int, wake uint32) *SoftTimer {
		return &SoftTimer{WakeTime: wake, Handler: func(*SoftTimer) uint8 {
			order = append(order, id)
			return SF_DONE
		}}
	}
	ScheduleTimer(mk(3, 1300))
	ScheduleTimer(mk(1, 1100))
	ScheduleTimer(mk(2, 1200))
	cancelled := mk(4, 1150)
	ScheduleTimer(cancelled)
	CancelTimer(cancelled)

	AdvanceTime(250)
	ProcessTimers()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("order = %v, want [1 2]", order)
	}
	AdvanceTime(100)
	ProcessTimers()
	if len(order) != 3 || order[2] != 3 {
		t.Errorf("order = %v, want [1 2 3]", order)
	}
}

func TestTimerWraparound(t *testing.T) {
	resetTimers()
	t.Cleanup(resetTimers)
	SetTime(0xFFFF_FF00)

	fired := false
	ScheduleTimer(&SoftTimer{WakeTime: 0x10, Handler: func(*SoftTimer) uint8 {
		fired = true
		return SF_DONE
	}})
	ProcessTimers()
	if fired {
		t.Fatal("timer past the wrap fired early")
	}
	AdvanceTime(0x200)
	ProcessTimers()
	if !fired {
		t.Error("timer did not fire after wrap")
	}
}

func TestDiagnosticsSchedule(t *testing.T) {
	tim, _, _, _ := newTestTimer(t)
	lines := resetDebug(t)
	resetTimers()
	t.Cleanup(resetTimers)
	SetTime(0)

	tim.ConfigureFrequency(20_000, 170_000_000)
	diag := NewDiagnostics(tim, nil)
	diag.ScheduleEvery(TicksFromMS(1000))

	for i := 0; i < 3; i++ {
		AdvanceTime(TicksFromMS(1000))
		ProcessTimers()
	}
	if diag.Reports() != 3 {
		t.Errorf("reports = %d, want 3", diag.Reports())
	}
	diag.Cancel()
	AdvanceTime(TicksFromMS(1000))
	ProcessTimers()
	if diag.Reports() != 3 {
		t.Errorf("report after Cancel")
	}
	if len(*lines) != 3 {
		t.Errorf("report lines = %d, want 3", len(*lines))
	}
}
