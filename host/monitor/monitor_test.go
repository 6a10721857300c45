package monitor

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"testing"
	"time"

	"wavedma/core"
)

type memSink struct {
	got []core.Snapshot
	err error
}

func (s *memSink) Record(snap core.Snapshot) error {
	s.got = append(s.got, snap)
	return s.err
}

func TestObserveThrottles(t *testing.T) {
	var out bytes.Buffer
	m := New(log.New(&out, "", 0), time.Hour)
	sink := &memSink{}
	m.AddSink(sink)

	for i := 0; i < 5; i++ {
		m.Observe(core.Snapshot{Tick: uint32(i), ARR: 8499})
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 1 || !strings.Contains(lines[0], "arr=8499") {
		t.Errorf("log = %q", out.String())
	}
	if len(sink.got) != 5 {
		t.Errorf("sink got %d snapshots, want all 5", len(sink.got))
	}
	seen, suppressed, _ := m.Stats()
	if seen != 5 || suppressed != 4 {
		t.Errorf("seen %d suppressed %d", seen, suppressed)
	}

	m.Observe(core.Snapshot{ARR: 8499, TransferErrors: 1})
	if !strings.Contains(out.String(), "te=1 (4 suppressed)") {
		t.Errorf("error change not logged: %q", out.String())
	}
}

func TestObserveSinkError(t *testing.T) {
	var out bytes.Buffer
	m := New(log.New(&out, "", 0), time.Nanosecond)
	m.AddSink(&memSink{err: errors.New("disk full")})
	m.Observe(core.Snapshot{})
	if _, _, errs := m.Stats(); errs != 1 {
		t.Errorf("sink errors = %d", errs)
	}
	if !strings.Contains(out.String(), "disk full") {
		t.Errorf("log = %q", out.String())
	}
}
