package modem

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"i4.energy/across/nbiotgw/at"
)

// SessionOptions are the AT+CMQCON parameters.
type SessionOptions struct {
	Version      at.ProtocolVersion
	ClientID     string
	KeepAlive    time.Duration
	CleanSession bool
	Username     string
	Password     string
}

// MQTT drives the modem's built-in MQTT client. The modem holds the TCP
// connection and speaks MQTT on the wire; this type only translates the
// session lifecycle into AT commands.
//
// No command is retried. Any AT failure is returned wrapped but otherwise
// unchanged.
type MQTT struct {
	channel *Channel
	log     *slog.Logger

	newTimeout    time.Duration
	statusTimeout time.Duration

	id         int
	hasID      bool
	bufferSize int
	session    SessionOptions
}

func newMQTT(ch *Channel, config Config, log *slog.Logger) *MQTT {
	return &MQTT{
		channel:       ch,
		log:           log,
		newTimeout:    config.mqttNewTimeout,
		statusTimeout: config.mqttStatusTimeout,
	}
}

// Open creates the broker connection. The creation reply does not carry the
// connection id, so it is discovered with a status query right after.
// timeout is the modem-side command timeout sent with the request; the
// buffer size bounds every later Publish.
func (c *MQTT) Open(ctx context.Context, host string, port int, timeout time.Duration, bufferSize int) error {
	if _, err := c.channel.Send(ctx, at.MQTTNew(host, port, timeout, bufferSize), c.newTimeout); err != nil {
		return fmt.Errorf("mqtt new %s:%d: %w", host, port, err)
	}
	c.bufferSize = bufferSize

	found, err := c.Discover(ctx)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("mqtt new %s:%d: %w", host, port, ErrConnectionNotEstablished)
	}
	c.log.Info("MQTT connection created", "id", c.id, "server", host, "port", port, "buffer", bufferSize)
	return nil
}

// Discover queries the connection table and records the id of the first
// slot bound to a server. It reports whether one was found.
func (c *MQTT) Discover(ctx context.Context) (bool, error) {
	resp, err := c.channel.Send(ctx, at.CmdMQTTStatus, c.statusTimeout)
	if err != nil {
		return false, fmt.Errorf("mqtt status: %w", err)
	}
	for _, line := range resp.Lines {
		id, ok := parseConnection(line)
		if ok {
			c.id, c.hasID = id, true
			return true, nil
		}
	}
	c.hasID = false
	return false, nil
}

// parseConnection reads "+CMQNEW: <id>,<state>,<server>". A server of null
// marks a free slot.
func parseConnection(line string) (int, bool) {
	v, ok := strings.CutPrefix(strings.TrimSpace(line), at.PrefixMQTTStatus)
	if !ok {
		return 0, false
	}
	fields := strings.Split(v, ",")
	if len(fields) < 3 || strings.TrimSpace(fields[2]) == at.Null {
		return 0, false
	}
	id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return 0, false
	}
	return id, true
}

// ConnectionID returns the discovered connection id.
func (c *MQTT) ConnectionID() (int, bool) { return c.id, c.hasID }

// BufferSize returns the buffer size negotiated at Open.
func (c *MQTT) BufferSize() int { return c.bufferSize }

// Session returns the options of the last successful Connect.
func (c *MQTT) Session() SessionOptions { return c.session }

// Connect establishes the MQTT session on the open connection.
func (c *MQTT) Connect(ctx context.Context, opts SessionOptions) error {
	if !c.hasID {
		return ErrConnectionNotEstablished
	}
	cmd := at.MQTTConnect(c.id, opts.Version, opts.ClientID, opts.KeepAlive, opts.CleanSession, opts.Username, opts.Password)
	if _, err := c.channel.Send(ctx, cmd, 0); err != nil {
		return fmt.Errorf("mqtt connect %q: %w", opts.ClientID, err)
	}
	c.session = opts
	c.log.Info("MQTT session established", "id", c.id, "client", opts.ClientID, "version", opts.Version)
	return nil
}

// Publish sends message to topic. Line breaks are removed first because a
// single AT command cannot carry them.
func (c *MQTT) Publish(ctx context.Context, topic, message string, qos at.QoS) error {
	if !c.hasID {
		return ErrConnectionNotEstablished
	}
	if !qos.Valid() {
		return fmt.Errorf("qos %d: %w", qos, at.ErrUnknownVariant)
	}
	message = strings.NewReplacer("\n", "", "\r", "").Replace(message)
	if len(message) > c.bufferSize {
		return fmt.Errorf("%w: %d bytes, buffer is %d", ErrPayloadTooLarge, len(message), c.bufferSize)
	}
	if _, err := c.channel.Send(ctx, at.MQTTPublish(c.id, topic, qos, message), 0); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects the connection. The radio is left as it is.
func (c *MQTT) Close(ctx context.Context) error {
	if !c.hasID {
		return ErrConnectionNotEstablished
	}
	if _, err := c.channel.Send(ctx, at.MQTTDisconnect(c.id), 0); err != nil {
		return fmt.Errorf("mqtt disconnect %d: %w", c.id, err)
	}
	c.log.Info("MQTT connection closed", "id", c.id)
	c.hasID = false
	return nil
}
