// Package serial opens the telemetry link between the host and the board.
package serial

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff"

	"wavedma/config"
)

// ErrNoConfig is returned when Open is given a nil configuration.
var ErrNoConfig = errors.New("serial: config cannot be nil")

// Port represents a serial port. Native ports use github.com/tarm/serial;
// tests substitute an in-memory pipe.
type Port interface {
	io.ReadWriteCloser

	// Flush flushes any buffered data
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; USB CDC adapters ignore it
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the board's default link settings for device.
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// FromConfig builds a port configuration from the serial section of the
// board configuration.
func FromConfig(c config.Serial) *Config {
	cfg := DefaultConfig(c.Port)
	if c.Baud != 0 {
		cfg.Baud = c.Baud
	}
	if c.ReadTimeoutMS != 0 {
		cfg.ReadTimeout = c.ReadTimeoutMS
	}
	return cfg
}

// Opener opens a port. Open is the native one.
type Opener func(*Config) (Port, error)

// OpenWithRetry calls open with exponential backoff until it succeeds or
// maxElapsed has passed. USB adapters re-enumerate for a second or two
// after the board resets, so the first attempts often fail. notify, if
// set, sees every failed attempt.
func OpenWithRetry(open Opener, cfg *Config, maxElapsed time.Duration, notify func(attempt int, err error)) (Port, error) {
	if cfg == nil {
		return nil, ErrNoConfig
	}
	var (
		port    Port
		attempt int
	)
	op := func() error {
		attempt++
		p, err := open(cfg)
		if err != nil {
			if notify != nil {
				notify(attempt, err)
			}
			return err
		}
		port = p
		return nil
	}
	err := backoff.Retry(op, &backoff.ExponentialBackOff{
		InitialInterval:     25 * time.Millisecond,
		RandomizationFactor: 0.,
		Multiplier:          2.,
		MaxInterval:         1 * time.Second,
		MaxElapsedTime:      maxElapsed,
		Clock:               backoff.SystemClock})
	if err != nil {
		return nil, fmt.Errorf("open %s after %d attempts: %w", cfg.Device, attempt, err)
	}
	return port, nil
}
