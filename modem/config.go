package modem

import (
	"log/slog"
	"time"
)

// Config holds the settings of a Modem. Build it with NewConfigBuilder so
// defaults are applied and the result is validated.
type Config struct {
	dialer Dialer
	logger *slog.Logger

	// minimum spacing between the end of one transaction and the next write
	commandDelay time.Duration
	// default timeout of a transaction
	atTimeout time.Duration
	// radio teardown is slow
	radioOffTimeout time.Duration
	// AT+CMQNEW waits for the TCP connect to the broker
	mqttNewTimeout time.Duration
	// AT+CMQNEW? is answered immediately
	mqttStatusTimeout time.Duration
	poll              PollConfig
}

// PollConfig bounds a polling loop such as waiting for network attach.
type PollConfig struct {
	// Interval is the time between polling attempts
	Interval time.Duration
	// MaxRetries is the maximum number of polling attempts
	MaxRetries int
}

func (p PollConfig) withDefaults(d PollConfig) PollConfig {
	if p.Interval <= 0 {
		p.Interval = d.Interval
	}
	if p.MaxRetries <= 0 {
		p.MaxRetries = d.MaxRetries
	}
	return p
}

const (
	DefaultCommandDelay      = 100 * time.Millisecond
	DefaultATTimeout         = 3 * time.Second
	DefaultRadioOffTimeout   = 10 * time.Second
	DefaultMQTTNewTimeout    = 10 * time.Second
	DefaultMQTTStatusTimeout = 1 * time.Second
)

var defaultPoll = PollConfig{Interval: time.Second, MaxRetries: 120}

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}
	if c.commandDelay == 0 {
		c.commandDelay = DefaultCommandDelay
	}
	if c.atTimeout == 0 {
		c.atTimeout = DefaultATTimeout
	}
	if c.radioOffTimeout == 0 {
		c.radioOffTimeout = DefaultRadioOffTimeout
	}
	if c.mqttNewTimeout == 0 {
		c.mqttNewTimeout = DefaultMQTTNewTimeout
	}
	if c.mqttStatusTimeout == 0 {
		c.mqttStatusTimeout = DefaultMQTTStatusTimeout
	}
	c.poll = c.poll.withDefaults(defaultPoll)
}

// ConfigBuilder assembles a Config step by step.
type ConfigBuilder struct {
	config Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{}
}

func (b *ConfigBuilder) WithDialer(d Dialer) *ConfigBuilder {
	b.config.dialer = d
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

// WithCommandDelay sets the minimum delay between two transactions. A
// negative value disables pacing.
func (b *ConfigBuilder) WithCommandDelay(d time.Duration) *ConfigBuilder {
	b.config.commandDelay = d
	return b
}

func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

func (b *ConfigBuilder) WithRadioOffTimeout(d time.Duration) *ConfigBuilder {
	b.config.radioOffTimeout = d
	return b
}

func (b *ConfigBuilder) WithMQTTTimeouts(create, status time.Duration) *ConfigBuilder {
	b.config.mqttNewTimeout = create
	b.config.mqttStatusTimeout = status
	return b
}

// WithAttachPoll sets the default bound of WaitAttached.
func (b *ConfigBuilder) WithAttachPoll(p PollConfig) *ConfigBuilder {
	b.config.poll = p
	return b
}

// Build validates the configuration and fills in defaults.
func (b *ConfigBuilder) Build() (Config, error) {
	c := b.config
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
