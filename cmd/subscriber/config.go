package main

import (
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the subscriber configuration
type Config struct {
	// Broker is the MQTT broker URL (e.g. "tcp://172.20.0.22:1883")
	Broker string `yaml:"broker"`
	// ClientID is the MQTT client id of the subscriber
	ClientID string `yaml:"client_id"`
	// TopicPrefix is the prefix shared by all gateway topics
	TopicPrefix string `yaml:"topic_prefix"`
	// Database is the SQLite file readings are stored in
	Database string `yaml:"database"`
	// ExportDir is where per-user CSV exports are written
	ExportDir string `yaml:"export_dir"`
	// BindAddress is the address the export file server listens on
	BindAddress string `yaml:"bind_address"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.Broker = "tcp://172.20.0.22:1883"
		c.ClientID = "all_subscriber"
		c.TopicPrefix = "ubiss/"
		c.Database = "data/readings.db"
		c.ExportDir = "files"
		c.BindAddress = "0.0.0.0:9080"
		c.LogLevel = "info"
		return nil
	}
}

// WithFile loads configuration from a YAML file. An empty path is ignored.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		for name, dst := range map[string]*string{
			"MQTT_BROKER":  &c.Broker,
			"CLIENT_ID":    &c.ClientID,
			"TOPIC_PREFIX": &c.TopicPrefix,
			"DB_PATH":      &c.Database,
			"EXPORT_DIR":   &c.ExportDir,
			"BIND_ADDRESS": &c.BindAddress,
			"LOG_LEVEL":    &c.LogLevel,
		} {
			if v := os.Getenv(name); v != "" {
				*dst = v
			}
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "broker":
				c.Broker = f.Value.String()
			case "client-id":
				c.ClientID = f.Value.String()
			case "topic-prefix":
				c.TopicPrefix = f.Value.String()
			case "database":
				c.Database = f.Value.String()
			case "export-dir":
				c.ExportDir = f.Value.String()
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			}
		})
		return nil
	}
}
