// SPDX-License-Identifier: MIT
package udp

import (
	"fmt"
	"net"
	"strconv"
)

// ClockLink bundles the two datagram flows of a metronome peering: control
// messages (start/stop) on the configured port and the clock stream on the
// next port up, mirroring the usual RTP control/data port split.
type ClockLink struct {
	control *UDPSender
	data    *UDPSender
}

// NewClockLink dials both flows toward the peer. peerAddress names the
// control port; the data port is control+1.
func NewClockLink(peerAddress string) (*ClockLink, error) {
	dataAddress, err := deriveDataAddress(peerAddress)
	if err != nil {
		return nil, err
	}

	control, err := NewUDPSender(peerAddress)
	if err != nil {
		return nil, err
	}
	data, err := NewUDPSender(dataAddress)
	if err != nil {
		control.Close()
		return nil, err
	}

	return &ClockLink{control: control, data: data}, nil
}

// SendControl transmits one start/stop packet.
func (l *ClockLink) SendControl(pkt []byte) error {
	return l.control.Send(pkt)
}

// SendData transmits one clock packet.
func (l *ClockLink) SendData(pkt []byte) error {
	return l.data.Send(pkt)
}

// Close closes both flows, reporting the first error.
func (l *ClockLink) Close() error {
	errControl := l.control.Close()
	errData := l.data.Close()
	if errControl != nil {
		return errControl
	}
	return errData
}

// deriveDataAddress maps "host:port" to "host:port+1".
func deriveDataAddress(controlAddress string) (string, error) {
	host, portStr, err := net.SplitHostPort(controlAddress)
	if err != nil {
		return "", fmt.Errorf("invalid peer address '%s': %w", controlAddress, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", fmt.Errorf("invalid peer port '%s': %w", portStr, err)
	}
	if port <= 0 || port >= 65535 {
		return "", fmt.Errorf("peer port %d leaves no room for a data port", port)
	}
	return net.JoinHostPort(host, strconv.Itoa(port+1)), nil
}
