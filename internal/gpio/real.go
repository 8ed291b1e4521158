// SPDX-License-Identifier: MIT
//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives the relay on actual hardware using the Linux GPIO
// character device.
type RealDriver struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealDriver requests the given line (BCM numbering) as an output,
// initially low so the relay starts de-energized.
func NewRealDriver(line int) (*RealDriver, error) {
	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	out, err := chip.RequestLine(line, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay line %d: %w", line, err)
	}

	return &RealDriver{chip: chip, line: out}, nil
}

// Set drives the relay line level.
func (r *RealDriver) Set(on bool) error {
	value := 0
	if on {
		value = 1
	}
	if err := r.line.SetValue(value); err != nil {
		return fmt.Errorf("set relay line: %w", err)
	}
	return nil
}

// Close forces the relay off, then reconfigures the line to input so the pin
// returns to its boot default before release. A relay left energized across a
// restart keeps whatever it switches running unattended.
func (r *RealDriver) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("clear relay line: %w", err))
		}
		if err := r.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure relay line: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay line: %w", err))
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
