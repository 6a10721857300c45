// Package monitor logs the snapshots a board reports, throttled so a fast
// diagnostic rate does not flood the terminal, and forwards every one of
// them to sinks such as the recorder.
package monitor

import (
	"log"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"wavedma/core"
)

// Sink receives every snapshot.
type Sink interface {
	Record(core.Snapshot) error
}

// Monitor fans snapshots out to sinks and to a rate limited log.
type Monitor struct {
	logger *log.Logger
	limit  *rate.Limiter

	mu         sync.Mutex
	sinks      []Sink
	seen       uint64
	suppressed uint64
	sinkErrors uint64
	lastErrors uint32
}

// New logs at most one line per interval. Transfer error changes are
// always logged.
func New(logger *log.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// AddSink registers s.
func (m *Monitor) AddSink(s Sink) {
	m.mu.Lock()
	m.sinks = append(m.sinks, s)
	m.mu.Unlock()
}

// Observe handles one snapshot.
func (m *Monitor) Observe(s core.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen++
	for _, sink := range m.sinks {
		if err := sink.Record(s); err != nil {
			m.sinkErrors++
			m.logger.Printf("record snapshot: %v", err)
		}
	}

	newErrors := s.TransferErrors != m.lastErrors
	m.lastErrors = s.TransferErrors
	if !newErrors && !m.limit.Allow() {
		m.suppressed++
		return
	}
	line := core.FormatSnapshot(s)
	if m.suppressed > 0 {
		m.logger.Printf("%s (%d suppressed)", line, m.suppressed)
		m.suppressed = 0
		return
	}
	m.logger.Print(line)
}

// Stats returns how many snapshots were seen, how many log lines are
// currently held back, and how many sink writes failed.
func (m *Monitor) Stats() (seen, suppressed, sinkErrors uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seen, m.suppressed, m.sinkErrors
}
