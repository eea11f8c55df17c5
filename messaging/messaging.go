// Package messaging publishes message records to the MQTT broker over one of
// the gateway's uplinks and retrieves the exported readings afterwards.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"i4.energy/across/nbiotgw/payload"
)

const (
	DefaultPrefix      = "ubiss/"
	DefaultUserID      = "group"
	DefaultPort        = 1883
	DefaultKeepAlive   = 600 * time.Second
	DefaultSettleDelay = 2 * time.Second
	// DownloadAll requests the export of every sensor.
	DownloadAll = "all"
)

var (
	ErrNoRecords = errors.New("no records to send")
	ErrNoFetcher = errors.New("no fetcher configured")
)

// Publisher delivers one MQTT message.
type Publisher interface {
	Publish(ctx context.Context, topic, payload string) error
	Close(ctx context.Context) error
}

// Fetcher retrieves the exported readings of a user.
type Fetcher interface {
	Fetch(ctx context.Context, userID string, w io.Writer) error
}

// Config holds the topic layout and identity used by a Messenger.
type Config struct {
	Prefix string
	UserID string
	// SettleDelay is the pause between a download request and the fetch,
	// giving the subscriber time to write the export.
	SettleDelay time.Duration
	Logger      *slog.Logger
}

func (c *Config) setDefaults() {
	if c.Prefix == "" {
		c.Prefix = DefaultPrefix
	}
	if c.UserID == "" {
		c.UserID = DefaultUserID
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Messenger composes topics and payloads for a user and sends them through
// a Publisher. Publish sequences are serialized so concurrent callers can
// share one uplink.
type Messenger struct {
	mu        sync.Mutex
	publisher Publisher
	config    Config
	log       *slog.Logger
}

func NewMessenger(p Publisher, config Config) *Messenger {
	config.setDefaults()
	return &Messenger{
		publisher: p,
		config:    config,
		log:       config.Logger,
	}
}

func (m *Messenger) Prefix() string { return m.config.Prefix }

func (m *Messenger) UserID() string { return m.config.UserID }

// Send publishes records as one message. A single record goes to
// prefix+identifier, several to prefix+"multiple".
func (m *Messenger) Send(ctx context.Context, records ...*payload.Record) error {
	if len(records) == 0 {
		return ErrNoRecords
	}
	topic := payload.Topic(m.config.Prefix, records...)
	body := payload.Compose(m.config.UserID, records...)
	if err := m.Publish(ctx, topic, body); err != nil {
		return err
	}
	m.log.Info("Records sent", "topic", topic, "records", len(records), "bytes", len(body))
	return nil
}

// Publish sends a raw payload to topic.
func (m *Messenger) Publish(ctx context.Context, topic, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.publisher.Publish(ctx, topic, body); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// RequestDownload asks the subscriber to export the readings of sensor, or
// of every sensor for DownloadAll.
func (m *Messenger) RequestDownload(ctx context.Context, sensor string) error {
	if sensor == "" {
		sensor = DownloadAll
	}
	return m.Publish(ctx, m.config.Prefix+payload.DownloadTopic, m.config.UserID+","+sensor)
}

// Download requests an export, waits for the subscriber to write it and
// copies the result to w.
func (m *Messenger) Download(ctx context.Context, sensor string, f Fetcher, w io.Writer) error {
	if f == nil {
		return ErrNoFetcher
	}
	if err := m.RequestDownload(ctx, sensor); err != nil {
		return err
	}

	timer := time.NewTimer(m.config.SettleDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
	}

	if err := f.Fetch(ctx, m.config.UserID, w); err != nil {
		return fmt.Errorf("fetch export of %s: %w", m.config.UserID, err)
	}
	return nil
}

// Close releases the uplink.
func (m *Messenger) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publisher.Close(ctx)
}
