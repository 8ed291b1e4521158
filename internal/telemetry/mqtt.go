// SPDX-License-Identifier: MIT
// Package telemetry publishes pipeline events to an MQTT broker for the
// dashboard and home-automation consumers.
package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"clapsync/internal/bridge"
	"clapsync/internal/detect"
	applog "clapsync/internal/log"
	"clapsync/internal/transport"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// MQTTTransport implements transport.Transport over an MQTT broker. Events
// are routed to per-kind topics under the configured prefix.
type MQTTTransport struct {
	client paho.Client
	prefix string
}

// NewMQTTTransport creates a transport connected to the given broker
// (e.g. "tcp://127.0.0.1:1883").
func NewMQTTTransport(broker, clientID, prefix string) (*MQTTTransport, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("mqtt: connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect to broker: %w", err)
	}

	applog.Infof("Telemetry: connected to MQTT broker %s", broker)
	return &MQTTTransport{client: client, prefix: prefix}, nil
}

// Send publishes one event as JSON, QoS 0, not retained. The clock and
// detection paths never wait on delivery.
func (t *MQTTTransport) Send(data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("mqtt: format payload: %w", err)
	}

	topic := t.prefix + "/" + topicFor(data)
	token := t.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish: %w", err)
	}
	return nil
}

// Close disconnects from the broker.
func (t *MQTTTransport) Close() error {
	t.client.Disconnect(1000) // Milliseconds allowed for in-flight messages.
	return nil
}

// topicFor maps an event to its topic suffix.
func topicFor(data any) string {
	switch data.(type) {
	case bridge.OnsetMessage:
		return "onsets"
	case bridge.TempoMessage:
		return "tempo"
	case bridge.StatsMessage:
		return "stats"
	case detect.Telemetry:
		return "detector"
	default:
		return "events"
	}
}

var _ transport.Transport = (*MQTTTransport)(nil)
