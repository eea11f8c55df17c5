package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"i4.energy/across/nbiotgw/at"
	"i4.energy/across/nbiotgw/modem"
)

// Defaults of the modem-side MQTT connection.
const (
	DefaultBufferSize    = 512
	DefaultBrokerTimeout = 10 * time.Second
)

// NBIoTConfig describes the network bring-up and the MQTT session opened on
// the modem. Use DefaultNBIoTConfig and adjust the fields that differ.
type NBIoTConfig struct {
	Server  string
	Port    int
	Network modem.Network

	Session modem.SessionOptions
	QoS     at.QoS
	// BufferSize is the largest payload the modem accepts.
	BufferSize int
	// BrokerTimeout is the modem-side timeout of broker operations.
	BrokerTimeout time.Duration
}

// DefaultNBIoTConfig returns the settings of the Telenor NB-IoT network with
// an MQTT 3.1 session for userID.
func DefaultNBIoTConfig(server, userID string) NBIoTConfig {
	return NBIoTConfig{
		Server: server,
		Port:   DefaultPort,
		Network: modem.Network{
			Operator: "23802",
			Profile:  modem.Profile{Type: at.PDPIP, APN: "telenor.iot"},
		},
		Session: modem.SessionOptions{
			Version:   at.MQTT31,
			ClientID:  userID,
			KeepAlive: DefaultKeepAlive,
		},
		QoS:           at.ExactlyOnce,
		BufferSize:    DefaultBufferSize,
		BrokerTimeout: DefaultBrokerTimeout,
	}
}

// NBIoT publishes through the modem's built-in MQTT client.
type NBIoT struct {
	modem *modem.Modem
	mqtt  *modem.MQTT
	qos   at.QoS
}

// DialNBIoT brings the network up, opens the broker connection and
// establishes the session. A failure after the connection was opened
// disconnects it again.
func DialNBIoT(ctx context.Context, m *modem.Modem, config NBIoTConfig) (*NBIoT, error) {
	if config.Server == "" {
		return nil, errors.New("messaging: broker address is required")
	}
	if config.Port == 0 {
		config.Port = DefaultPort
	}
	if config.BufferSize == 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.BrokerTimeout == 0 {
		config.BrokerTimeout = DefaultBrokerTimeout
	}

	if err := m.BringUp(ctx, config.Network); err != nil {
		return nil, fmt.Errorf("bring up network: %w", err)
	}

	mq := m.MQTT()
	if err := mq.Open(ctx, config.Server, config.Port, config.BrokerTimeout, config.BufferSize); err != nil {
		return nil, err
	}
	if err := mq.Connect(ctx, config.Session); err != nil {
		_ = mq.Close(ctx)
		return nil, err
	}
	return &NBIoT{modem: m, mqtt: mq, qos: config.QoS}, nil
}

func (p *NBIoT) Publish(ctx context.Context, topic, payload string) error {
	return p.mqtt.Publish(ctx, topic, payload, p.qos)
}

// Close disconnects from the broker and turns the radio off. The radio is
// turned off even when the disconnect fails.
func (p *NBIoT) Close(ctx context.Context) error {
	return errors.Join(p.mqtt.Close(ctx), p.modem.DisableRadio(ctx))
}
