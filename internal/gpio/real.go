//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads the sensor line from actual hardware using the Linux GPIO
// character device.
type RealReader struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	activeLow bool
}

// NewRealReader requests the sensor pin as an input. pullUp selects the bias
// (pull-up for contact/open-collector sensors, pull-down otherwise) and
// activeLow inverts the raw level so Read returns logical "interrupted".
func NewRealReader(pin int, pullUp, activeLow bool) (*RealReader, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	bias := gpiocdev.WithPullDown
	if pullUp {
		bias = gpiocdev.WithPullUp
	}

	line, err := chip.RequestLine(pin, gpiocdev.AsInput, bias)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", pin, err)
	}

	return &RealReader{
		chip:      chip,
		line:      line,
		activeLow: activeLow,
	}, nil
}

// Read returns the logical state of the sensor line (true = interrupted).
func (r *RealReader) Read() (bool, error) {
	raw, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read sensor pin: %w", err)
	}

	interrupted := raw != 0
	if r.activeLow {
		interrupted = raw == 0
	}
	return interrupted, nil
}

// Close releases GPIO resources. The pin is reconfigured to a plain input
// first so external sensor modules cannot hold it in an unexpected state
// across a restart.
func (r *RealReader) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure sensor pin: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sensor pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
