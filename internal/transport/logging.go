// SPDX-License-Identifier: MIT
package transport

import (
	applog "clapsync/internal/log"
)

// LoggingTransport implements the Transport interface by logging events at
// debug level. Used when no telemetry consumer is configured.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received event.
func (lt *LoggingTransport) Send(data any) error {
	applog.Debugf("Transport: event (%T): %+v", data, data)
	return nil // Logging transport never fails to "send".
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
