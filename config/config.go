// Package config holds the board configuration: the waveform table, the
// trigger timer, the DMA channel and the diagnostic, capture, driver and
// host-link settings. It has no dependencies so the firmware can embed a
// Default() configuration; loading from YAML lives in load.go, host only.
package config

import (
	"errors"
	"fmt"
)

// Config is the complete board configuration.
type Config struct {
	Clock       Clock       `koanf:"clock" yaml:"clock"`
	Waveform    Waveform    `koanf:"waveform" yaml:"waveform"`
	Timer       Timer       `koanf:"timer" yaml:"timer"`
	Burst       Burst       `koanf:"burst" yaml:"burst"`
	DMA         DMA         `koanf:"dma" yaml:"dma"`
	Diagnostics Diagnostics `koanf:"diagnostics" yaml:"diagnostics"`
	ADC         ADC         `koanf:"adc" yaml:"adc"`
	Driver      Driver      `koanf:"driver" yaml:"driver"`
	Serial      Serial      `koanf:"serial" yaml:"serial"`
	HTTP        HTTP        `koanf:"http" yaml:"http"`
	Debug       bool        `koanf:"debug" yaml:"debug"`
}

// Clock is the system clock the timers count.
type Clock struct {
	SysclkHz uint32 `koanf:"sysclkhz" yaml:"sysclkhz"`
}

// Waveform describes the duty table. When Values is set it is used
// verbatim (length a multiple of Channels) and the pattern is ignored.
type Waveform struct {
	Steps       int        `koanf:"steps" yaml:"steps"`
	Channels    int        `koanf:"channels" yaml:"channels"`
	PeakPercent uint32     `koanf:"peakpercent" yaml:"peakpercent"`
	Pattern     [][]uint16 `koanf:"pattern" yaml:"pattern"`
	Values      []uint16   `koanf:"values" yaml:"values"`
}

// Timer is the trigger timer generating the PWM outputs and the burst
// requests.
type Timer struct {
	Name        string  `koanf:"name" yaml:"name"`
	FrequencyHz uint32  `koanf:"frequencyhz" yaml:"frequencyhz"`
	Mode        string  `koanf:"mode" yaml:"mode"`
	InitialDuty float32 `koanf:"initialduty" yaml:"initialduty"`
}

// Burst is the register window written per update event.
type Burst struct {
	BaseOffset uint8 `koanf:"baseoffset" yaml:"baseoffset"`
	Length     uint8 `koanf:"length" yaml:"length"`
}

// DMA selects and configures the waveform channel.
type DMA struct {
	Channel           int    `koanf:"channel" yaml:"channel"`
	Priority          string `koanf:"priority" yaml:"priority"`
	Circular          bool   `koanf:"circular" yaml:"circular"`
	Request           string `koanf:"request" yaml:"request"`
	ErrorInterrupt    bool   `koanf:"errorinterrupt" yaml:"errorinterrupt"`
	MaxTransferErrors int    `koanf:"maxtransfererrors" yaml:"maxtransfererrors"`
}

// Diagnostics configures the periodic register report.
type Diagnostics struct {
	Enabled     bool   `koanf:"enabled" yaml:"enabled"`
	Timer       string `koanf:"timer" yaml:"timer"`
	FrequencyHz uint32 `koanf:"frequencyhz" yaml:"frequencyhz"`
}

// ADC configures the one-shot capture run on every diagnostic tick.
type ADC struct {
	Enabled    bool   `koanf:"enabled" yaml:"enabled"`
	Input      uint8  `koanf:"input" yaml:"input"`
	Samples    int    `koanf:"samples" yaml:"samples"`
	DMAChannel int    `koanf:"dmachannel" yaml:"dmachannel"`
	VrefMV     uint32 `koanf:"vrefmv" yaml:"vrefmv"`
}

// Driver is the stepper driver configuration frame sent once at startup.
type Driver struct {
	Enabled       bool   `koanf:"enabled" yaml:"enabled"`
	Address       uint8  `koanf:"address" yaml:"address"`
	PDNDisable    bool   `koanf:"pdndisable" yaml:"pdndisable"`
	MstepRegister bool   `koanf:"mstepregister" yaml:"mstepregister"`
	MultistepFilt bool   `koanf:"multistepfilt" yaml:"multistepfilt"`
	Baud          uint32 `koanf:"baud" yaml:"baud"`
}

// Serial is the host side of the telemetry link.
type Serial struct {
	Port          string `koanf:"port" yaml:"port"`
	Baud          int    `koanf:"baud" yaml:"baud"`
	ReadTimeoutMS int    `koanf:"readtimeoutms" yaml:"readtimeoutms"`
	RetrySeconds  int    `koanf:"retryseconds" yaml:"retryseconds"`
}

// HTTP is the status API served by the host simulator.
type HTTP struct {
	Addr     string `koanf:"addr" yaml:"addr"`
	Database string `koanf:"database" yaml:"database"`
}

// ArenaWords is the number of 16-bit words the board needs for the duty
// table and the capture buffer.
func (c Config) ArenaWords() int {
	n := c.Waveform.Steps * c.Waveform.Channels
	if len(c.Waveform.Values) > 0 {
		n = len(c.Waveform.Values)
	}
	if c.ADC.Enabled {
		n += c.ADC.Samples
	}
	return n
}

// Quadrature is the four-phase full-step pattern of a bipolar stepper.
func Quadrature() [][]uint16 {
	return [][]uint16{
		{1, 0, 1, 0},
		{0, 1, 1, 0},
		{0, 1, 0, 1},
		{1, 0, 0, 1},
	}
}

// Default reproduces the reference board: a 170 MHz G431 driving a
// DRV8844 bridge from TIM2 at 20 kHz through DMA1 channel 1, with a 1 Hz
// diagnostic report on TIM3.
func Default() Config {
	return Config{
		Clock: Clock{SysclkHz: 170_000_000},
		Waveform: Waveform{
			Steps:       128,
			Channels:    4,
			PeakPercent: 10,
			Pattern:     Quadrature(),
		},
		Timer: Timer{
			Name:        "TIM2",
			FrequencyHz: 20_000,
			Mode:        "pwm1",
		},
		Burst: Burst{BaseOffset: 13, Length: 4},
		DMA: DMA{
			Channel:           1,
			Priority:          "medium",
			Circular:          true,
			Request:           "TIM2_UP",
			ErrorInterrupt:    true,
			MaxTransferErrors: 3,
		},
		Diagnostics: Diagnostics{
			Enabled:     true,
			Timer:       "TIM3",
			FrequencyHz: 1,
		},
		ADC: ADC{
			Enabled:    false,
			Input:      2,
			Samples:    1,
			DMAChannel: 2,
			VrefMV:     3300,
		},
		Driver: Driver{
			Enabled:    true,
			Address:    0,
			PDNDisable: true,
			Baud:       9600,
		},
		Serial: Serial{
			Port:          "/dev/ttyACM0",
			Baud:          115200,
			ReadTimeoutMS: 100,
			RetrySeconds:  30,
		},
		HTTP: HTTP{Addr: ":8000"},
	}
}

var (
	ErrWaveform    = errors.New("config: invalid waveform")
	ErrTimer       = errors.New("config: invalid timer")
	ErrBurst       = errors.New("config: invalid burst window")
	ErrDMA         = errors.New("config: invalid DMA channel")
	ErrDiagnostics = errors.New("config: invalid diagnostics")
	ErrADC         = errors.New("config: invalid ADC capture")
)

var (
	timerNames = map[string]bool{"TIM2": true, "TIM3": true}
	priorities = map[string]bool{"low": true, "medium": true, "high": true, "very_high": true}
	modes      = map[string]bool{"pwm1": true, "pwm2": true, "toggle": true, "active": true, "inactive": true, "frozen": true}
)

// maxDMAChannel is the DMA1 channel count of the G431.
const maxDMAChannel = 6

// Validate checks each section and the relations between them.
func (c Config) Validate() error {
	if c.Clock.SysclkHz == 0 {
		return fmt.Errorf("%w: sysclk must be set", ErrTimer)
	}

	w := c.Waveform
	if w.Channels <= 0 {
		return fmt.Errorf("%w: channels must be positive", ErrWaveform)
	}
	if len(w.Values) > 0 {
		if len(w.Values)%w.Channels != 0 {
			return fmt.Errorf("%w: %d values is not a multiple of %d channels", ErrWaveform, len(w.Values), w.Channels)
		}
	} else {
		if w.Steps <= 0 || len(w.Pattern) == 0 {
			return fmt.Errorf("%w: steps and pattern must be non-empty", ErrWaveform)
		}
		for i, row := range w.Pattern {
			if len(row) != w.Channels {
				return fmt.Errorf("%w: pattern row %d has %d entries, want %d", ErrWaveform, i, len(row), w.Channels)
			}
		}
		if w.PeakPercent == 0 || w.PeakPercent > 100 {
			return fmt.Errorf("%w: peak percent %d outside 1..100", ErrWaveform, w.PeakPercent)
		}
	}

	t := c.Timer
	if !timerNames[t.Name] {
		return fmt.Errorf("%w: unknown timer %q", ErrTimer, t.Name)
	}
	if t.FrequencyHz == 0 || t.FrequencyHz > c.Clock.SysclkHz {
		return fmt.Errorf("%w: frequency %d Hz", ErrTimer, t.FrequencyHz)
	}
	if !modes[t.Mode] {
		return fmt.Errorf("%w: unknown output mode %q", ErrTimer, t.Mode)
	}
	if t.InitialDuty < 0 || t.InitialDuty > 1 {
		return fmt.Errorf("%w: initial duty %v outside [0, 1]", ErrTimer, t.InitialDuty)
	}

	b := c.Burst
	if b.Length == 0 || int(b.Length) > w.Channels {
		return fmt.Errorf("%w: length %d for %d channels", ErrBurst, b.Length, w.Channels)
	}

	d := c.DMA
	if d.Channel < 1 || d.Channel > maxDMAChannel {
		return fmt.Errorf("%w: channel %d", ErrDMA, d.Channel)
	}
	if !priorities[d.Priority] {
		return fmt.Errorf("%w: priority %q", ErrDMA, d.Priority)
	}
	if d.Request != t.Name+"_UP" {
		return fmt.Errorf("%w: request %q is not the update request of %s", ErrDMA, d.Request, t.Name)
	}

	g := c.Diagnostics
	if g.Enabled {
		if !timerNames[g.Timer] || g.Timer == t.Name {
			return fmt.Errorf("%w: timer %q", ErrDiagnostics, g.Timer)
		}
		if g.FrequencyHz == 0 {
			return fmt.Errorf("%w: frequency must be positive", ErrDiagnostics)
		}
	}

	a := c.ADC
	if a.Enabled {
		if !g.Enabled {
			return fmt.Errorf("%w: capture runs on the diagnostic tick", ErrADC)
		}
		if a.Samples < 1 || a.Samples > 16 {
			return fmt.Errorf("%w: %d samples outside 1..16", ErrADC, a.Samples)
		}
		if a.DMAChannel < 1 || a.DMAChannel > maxDMAChannel || a.DMAChannel == d.Channel {
			return fmt.Errorf("%w: DMA channel %d", ErrADC, a.DMAChannel)
		}
		if a.VrefMV == 0 {
			return fmt.Errorf("%w: vref must be set", ErrADC)
		}
	}
	return nil
}
