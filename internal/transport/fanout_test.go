// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"testing"
)

type recordingTransport struct {
	sent   []any
	err    error
	closed bool
}

func (r *recordingTransport) Send(data any) error {
	r.sent = append(r.sent, data)
	return r.err
}

func (r *recordingTransport) Close() error {
	r.closed = true
	return r.err
}

func TestFanoutDeliversToAll(t *testing.T) {
	a := &recordingTransport{}
	b := &recordingTransport{}
	f := NewFanout(a, nil, b)

	if err := f.Send("event"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("delivery counts: a=%d b=%d, want 1 each", len(a.sent), len(b.sent))
	}
}

func TestFanoutFailureDoesNotBlockOthers(t *testing.T) {
	a := &recordingTransport{err: errors.New("broker down")}
	b := &recordingTransport{}
	f := NewFanout(a, b)

	if err := f.Send("event"); err == nil {
		t.Error("expected error from failing transport")
	}
	if len(b.sent) != 1 {
		t.Errorf("healthy transport got %d events, want 1", len(b.sent))
	}
}

func TestFanoutCloseClosesAll(t *testing.T) {
	a := &recordingTransport{}
	b := &recordingTransport{}
	f := NewFanout(a, b)

	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("not all transports closed")
	}
}
