// SPDX-License-Identifier: MIT
package transport

// Transport defines a generic interface for publishing pipeline events
// (onsets, tempo updates, statistics snapshots). Implementations should be
// thread-safe.
type Transport interface {
	Send(data any) error
	Close() error
}

// DatagramSender transmits fixed-size wire packets, best effort. The clock
// path calls Send once per firing, so implementations must not block beyond a
// single non-blocking socket write.
type DatagramSender interface {
	Send(data []byte) error
	Close() error
}
