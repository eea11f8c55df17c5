package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// Client is the part of the paho client used by IP.
type Client interface {
	Connect() mqtt.Token
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Disconnect(quiesce uint)
}

// IPConfig describes a direct MQTT connection over TCP.
type IPConfig struct {
	Server    string
	Port      int
	ClientID  string
	KeepAlive time.Duration
	QoS       byte
	Username  string
	Password  string
	Logger    *slog.Logger
}

// IP publishes over a regular network connection with paho.
type IP struct {
	client Client
	qos    byte
}

// ClientOptions maps config to paho options.
func (c IPConfig) ClientOptions() *mqtt.ClientOptions {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	keepAlive := c.KeepAlive
	if keepAlive == 0 {
		keepAlive = DefaultKeepAlive
	}
	log := c.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	opts := mqtt.NewClientOptions().
		AddBroker("tcp://" + net.JoinHostPort(c.Server, strconv.Itoa(port))).
		SetClientID(c.ClientID).
		SetKeepAlive(keepAlive).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Warn("MQTT connection lost", "error", err)
		}).
		SetOnConnectHandler(func(mqtt.Client) {
			log.Info("MQTT connected", "server", c.Server, "port", port)
		})
	if c.Username != "" {
		opts.SetUsername(c.Username)
		opts.SetPassword(c.Password)
	}
	return opts
}

// DialIP connects a new paho client.
func DialIP(ctx context.Context, config IPConfig) (*IP, error) {
	if config.Server == "" {
		return nil, errors.New("messaging: broker address is required")
	}
	return NewIP(ctx, mqtt.NewClient(config.ClientOptions()), config.QoS)
}

// NewIP connects client and publishes with qos.
func NewIP(ctx context.Context, client Client, qos byte) (*IP, error) {
	if qos > 2 {
		return nil, fmt.Errorf("messaging: invalid qos %d", qos)
	}
	if err := tokenWait(ctx, client.Connect()); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return &IP{client: client, qos: qos}, nil
}

func (p *IP) Publish(ctx context.Context, topic, payload string) error {
	return tokenWait(ctx, p.client.Publish(topic, p.qos, false, payload))
}

// disconnectQuiesce is how long paho may spend on in-flight work, in
// milliseconds.
const disconnectQuiesce = 500

func (p *IP) Close(context.Context) error {
	p.client.Disconnect(disconnectQuiesce)
	return nil
}

// tokenWait blocks until token completes or ctx is done.
func tokenWait(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}
