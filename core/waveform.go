package core

import "errors"

var (
	ErrTableShape   = errors.New("waveform table: step count, channel count and pattern must be non-empty and rectangular")
	ErrDutyOverflow = errors.New("waveform table: duty value exceeds 16 bits")
)

// PhasePattern lists, per phase, the on/off multiplier of every channel.
type PhasePattern [][]uint16

// QuadraturePattern is the four-phase full-step sequence of a bipolar
// stepper. Channels 1-2 drive coil A, channels 3-4 drive coil B.
var QuadraturePattern = PhasePattern{
	{1, 0, 1, 0},
	{0, 1, 1, 0},
	{0, 1, 0, 1},
	{1, 0, 0, 1},
}

// PeakFromMaxDuty scales the timer's maximum duty to percent. The division
// happens first, so the result truncates: 8499 at 10% gives 840.
func PeakFromMaxDuty(maxDuty, percent uint32) uint32 {
	return maxDuty / 100 * percent
}

// DutyTable is the playback sequence for a burst DMA channel. Entry i is
// the compare value of channel i%Stride during step i/Stride. The table has
// no mutators; it is filled once when built.
type DutyTable struct {
	buf    *Buffer
	stride int
}

// BuildTable computes a steps*channels table in arena memory where
// entry i = pattern[(i/channels) % len(pattern)][i % channels] * peak.
func BuildTable(a *Arena, steps, channels int, peak uint32, pattern PhasePattern) (*DutyTable, error) {
	if steps <= 0 || channels <= 0 || len(pattern) == 0 {
		return nil, ErrTableShape
	}
	for _, row := range pattern {
		if len(row) != channels {
			return nil, ErrTableShape
		}
		for _, m := range row {
			if uint64(m)*uint64(peak) > 0xFFFF {
				return nil, ErrDutyOverflow
			}
		}
	}

	buf, err := a.Alloc(steps * channels)
	if err != nil {
		return nil, err
	}
	for i := range buf.words {
		buf.words[i] = pattern[(i/channels)%len(pattern)][i%channels] * uint16(peak)
	}
	return &DutyTable{buf: buf, stride: channels}, nil
}

// TableFromValues stages a literal table whose length is a multiple of
// stride.
func TableFromValues(a *Arena, stride int, values []uint16) (*DutyTable, error) {
	if stride <= 0 || len(values) == 0 || len(values)%stride != 0 {
		return nil, ErrTableShape
	}
	buf, err := a.Alloc(len(values))
	if err != nil {
		return nil, err
	}
	copy(buf.words, values)
	return &DutyTable{buf: buf, stride: stride}, nil
}

// Len returns the number of entries.
func (t *DutyTable) Len() int { return t.buf.Len() }

// Stride returns the number of entries consumed per trigger.
func (t *DutyTable) Stride() int { return t.stride }

// Steps returns the number of triggers in one pass over the table.
func (t *DutyTable) Steps() int { return t.buf.Len() / t.stride }

// At returns entry i.
func (t *DutyTable) At(i int) uint16 { return t.buf.at(i) }

// Values returns a copy of the table.
func (t *DutyTable) Values() []uint16 {
	out := make([]uint16, t.buf.Len())
	copy(out, t.buf.words)
	return out
}

// Buffer returns the arena buffer handed to the DMA controller.
func (t *DutyTable) Buffer() *Buffer { return t.buf }
