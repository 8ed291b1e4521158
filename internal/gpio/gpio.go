// SPDX-License-Identifier: MIT
// Package gpio provides the relay output line with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Driver drives the relay output level.
type Driver interface {
	// Set drives the relay line: true energizes the relay.
	Set(on bool) error

	// Close de-energizes the relay and releases GPIO resources.
	Close() error
}

// DefaultLine is the relay output (BCM numbering).
const DefaultLine = 17
