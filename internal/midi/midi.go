// SPDX-License-Identifier: MIT
/*
Package midi defines the realtime MIDI status bytes and the datagram framing
used to carry them between metronome peers.

Only the system-realtime subset matters here: a beat clock is a stream of
single status bytes, so each datagram carries exactly one of them plus enough
header to detect loss and reorder on the receiving side.
*/
package midi

import (
	"encoding/binary"
	"fmt"
)

// System-realtime status bytes (MIDI 1.0, table 5).
const (
	StatusClock    byte = 0xF8 // Timing clock, 24 per quarter note.
	StatusStart    byte = 0xFA // Start playback from the top.
	StatusContinue byte = 0xFB // Resume playback.
	StatusStop     byte = 0xFC // Stop playback.
)

const (
	// PacketSize is the fixed length of one clock datagram.
	PacketSize = 13

	// payloadType identifies MIDI command payloads, from the dynamic
	// RTP payload type range.
	payloadType byte = 97

	versionByte byte = 0x80 // RTP version 2, no padding, no extension.
)

/*
Clock Packet Structure (BigEndian)

+---------------------------------------------------------------------------+
| Field           | Data Type | Size (Bytes) | Description                  |
|-----------------|-----------|--------------|------------------------------|
| Version         | byte      | 1            | Constant 0x80                |
| Payload Type    | byte      | 1            | Constant 97                  |
| Sequence Number | uint16    | 2            | Increments per packet        |
| Timestamp       | uint32    | 4            | Sender microseconds (mod 2^32)|
| SSRC            | uint32    | 4            | Sender session identifier    |
| Status          | byte      | 1            | 0xF8 / 0xFA / 0xFB / 0xFC    |
+---------------------------------------------------------------------------+

Visual Layout:

|<-1->|<-1->|<-- 2 Bytes -->|<---- 4 Bytes ---->|<---- 4 Bytes ---->|<-1->|
+-----+-----+---------------+-------------------+-------------------+-----+
| Ver | PT  |   Sequence    |     Timestamp     |       SSRC        | Sta |
+-----+-----+---------------+-------------------+-------------------+-----+
*/

// Packet is one decoded clock datagram.
type Packet struct {
	Sequence    uint16
	TimestampUS uint32
	SSRC        uint32
	Status      byte
}

// IsRealtime reports whether the status byte is one of the system-realtime
// messages this protocol carries.
func IsRealtime(status byte) bool {
	switch status {
	case StatusClock, StatusStart, StatusContinue, StatusStop:
		return true
	}
	return false
}

// Encoder frames realtime status bytes into clock datagrams. It keeps the
// running sequence number and reuses a single packet buffer, so the slice
// returned by Encode is only valid until the next call. Not safe for
// concurrent use; the clock goroutine owns it.
type Encoder struct {
	sequence uint16
	ssrc     uint32
	buf      [PacketSize]byte
}

// NewEncoder creates an Encoder with the given session identifier.
func NewEncoder(ssrc uint32) *Encoder {
	e := &Encoder{ssrc: ssrc}
	e.buf[0] = versionByte
	e.buf[1] = payloadType
	binary.BigEndian.PutUint32(e.buf[8:12], ssrc)
	return e
}

// Encode builds the datagram for one status byte. The timestamp is truncated
// to 32 bits; receivers only use it for relative spacing, so the wrap every
// ~71 minutes is harmless.
func (e *Encoder) Encode(status byte, tsUS uint64) []byte {
	e.sequence++
	binary.BigEndian.PutUint16(e.buf[2:4], e.sequence)
	binary.BigEndian.PutUint32(e.buf[4:8], uint32(tsUS))
	e.buf[12] = status
	return e.buf[:]
}

// Sequence returns the sequence number of the most recently encoded packet.
func (e *Encoder) Sequence() uint16 { return e.sequence }

// Decode parses one clock datagram.
func Decode(data []byte) (Packet, error) {
	if len(data) != PacketSize {
		return Packet{}, fmt.Errorf("midi: packet length %d, want %d", len(data), PacketSize)
	}
	if data[0] != versionByte {
		return Packet{}, fmt.Errorf("midi: unexpected version byte 0x%02X", data[0])
	}
	if data[1] != payloadType {
		return Packet{}, fmt.Errorf("midi: unexpected payload type %d", data[1])
	}
	p := Packet{
		Sequence:    binary.BigEndian.Uint16(data[2:4]),
		TimestampUS: binary.BigEndian.Uint32(data[4:8]),
		SSRC:        binary.BigEndian.Uint32(data[8:12]),
		Status:      data[12],
	}
	if !IsRealtime(p.Status) {
		return Packet{}, fmt.Errorf("midi: unexpected status byte 0x%02X", p.Status)
	}
	return p, nil
}
