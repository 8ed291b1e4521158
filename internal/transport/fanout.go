// SPDX-License-Identifier: MIT
package transport

// Fanout duplicates events across multiple transports, so the same stream
// can feed MQTT, a WebSocket dashboard, and the debug log at once.
type Fanout struct {
	transports []Transport
}

// NewFanout creates a fanout over the given transports. Nil entries are
// skipped so callers can pass conditionally constructed transports directly.
func NewFanout(transports ...Transport) *Fanout {
	f := &Fanout{}
	for _, t := range transports {
		if t != nil {
			f.transports = append(f.transports, t)
		}
	}
	return f
}

// Send delivers the event to every transport. A failing transport does not
// block the others; the first error is returned.
func (f *Fanout) Send(data any) error {
	var firstErr error
	for _, t := range f.transports {
		if err := t.Send(data); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every transport, returning the first error.
func (f *Fanout) Close() error {
	var firstErr error
	for _, t := range f.transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Transport = (*Fanout)(nil)
