package recorder

import (
	"path/filepath"
	"testing"

	"wavedma/core"
)

func TestRecordAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	r, err := Open(path, "sim")
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	want := []core.Snapshot{
		{Tick: 1, ARR: 8499, CCR: [4]uint32{840, 0, 840, 0}, Remaining: 508, Channel: core.StateEnabled, Timer: core.TimerRunning},
		{Tick: 2, ARR: 8499, CCR: [4]uint32{0, 840, 840, 0}, Remaining: 504, Channel: core.StateEnabled, Timer: core.TimerRunning,
			TransferErrors: 1, ADCRaw: 2048, ADCMilliVolts: 1650},
	}
	for _, s := range want {
		if err := r.Record(s); err != nil {
			t.Fatal(err)
		}
	}
	if n, err := r.Count(); err != nil || n != 2 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	got, err := r.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0] != want[1] || got[1] != want[0] {
		t.Errorf("Recent = %+v", got)
	}
}

func TestSessionsAreSeparate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	first, err := Open(path, "/dev/ttyACM0")
	if err != nil {
		t.Fatal(err)
	}
	first.Record(core.Snapshot{Tick: 1})
	first.Close()

	second, err := Open(path, "/dev/ttyACM0")
	if err != nil {
		t.Fatal(err)
	}
	defer second.Close()
	if second.Session() == first.Session() {
		t.Errorf("both sessions have id %d", first.Session())
	}
	if n, _ := second.Count(); n != 0 {
		t.Errorf("new session sees %d old snapshots", n)
	}
}
