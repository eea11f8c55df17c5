package main

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"i4.energy/across/nbiotgw/at"
)

// Uplink modes
const (
	ModeNBIoT = "nbiot"
	ModeIP    = "ip"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the modem's serial port (e.g. "/dev/ttyAMA0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the modem (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`

	// Mode selects the uplink, "nbiot" through the modem or "ip" directly
	Mode string `yaml:"mode"`
	// Server is the MQTT broker host
	Server string `yaml:"server"`
	// Port is the MQTT broker port
	Port int `yaml:"port"`
	// TopicPrefix is prepended to every topic (e.g. "ubiss/")
	TopicPrefix string `yaml:"topic_prefix"`
	// UserID identifies the group in payloads and is the MQTT client id
	UserID string `yaml:"user_id"`
	// KeepAlive is the MQTT keep-alive interval
	KeepAlive time.Duration `yaml:"keep_alive"`

	// Operator is the numeric operator code, empty for automatic selection
	Operator string `yaml:"operator"`
	// APN of the default packet data profile
	APN string `yaml:"apn"`
	// PDPType of the default packet data profile (IP, IPV6, IPV4V6, Non-IP)
	PDPType string `yaml:"pdp_type"`

	// DownloadURL is where exports are fetched from; defaults to port 9080
	// on the broker host
	DownloadURL string `yaml:"download_url"`
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

	return config, config.validate()
}

func (c *Config) validate() error {
	switch c.Mode {
	case ModeNBIoT, ModeIP:
	default:
		return fmt.Errorf("mode %q: must be %q or %q", c.Mode, ModeNBIoT, ModeIP)
	}
	if c.Server == "" {
		return errors.New("server is required")
	}
	if _, err := at.ParsePDPType(c.PDPType); err != nil {
		return err
	}
	return nil
}

// FetchURL returns DownloadURL or its default.
func (c *Config) FetchURL() string {
	if c.DownloadURL != "" {
		return c.DownloadURL
	}
	return "http://" + net.JoinHostPort(c.Server, "9080")
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyAMA0"
		c.BaudRate = 115200
		c.LogLevel = "info"
		c.Mode = ModeNBIoT
		c.Server = "172.20.0.22"
		c.Port = 1883
		c.TopicPrefix = "ubiss/"
		c.UserID = "group"
		c.KeepAlive = 600 * time.Second
		c.Operator = "23802"
		c.APN = "telenor.iot"
		c.PDPType = string(at.PDPIP)
		return nil
	}
}

// WithFile loads configuration from a YAML file. Keys missing from the file
// keep their current value. An empty path is ignored.
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
			"BIND_ADDRESS": &c.BindAddress,
			"SERIAL_PORT":  &c.SerialPort,
			"LOG_LEVEL":    &c.LogLevel,
			"MODE":         &c.Mode,
			"MQTT_SERVER":  &c.Server,
			"TOPIC_PREFIX": &c.TopicPrefix,
			"USER_ID":      &c.UserID,
			"OPERATOR":     &c.Operator,
			"APN":          &c.APN,
			"PDP_TYPE":     &c.PDPType,
			"DOWNLOAD_URL": &c.DownloadURL,
		} {
			if v := os.Getenv(name); v != "" {
				*dst = v
			}
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if port := os.Getenv("MQTT_PORT"); port != "" {
			if p, err := strconv.Atoi(port); err == nil {
				c.Port = p
			}
		}

		if ka := os.Getenv("KEEP_ALIVE"); ka != "" {
			if d, err := time.ParseDuration(ka); err == nil {
				c.KeepAlive = d
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
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "mode":
				c.Mode = f.Value.String()
			case "server":
				c.Server = f.Value.String()
			case "port":
				if p, err := strconv.Atoi(f.Value.String()); err == nil {
					c.Port = p
				}
			case "topic-prefix":
				c.TopicPrefix = f.Value.String()
			case "user-id":
				c.UserID = f.Value.String()
			case "keep-alive":
				if d, err := time.ParseDuration(f.Value.String()); err == nil {
					c.KeepAlive = d
				}
			case "operator":
				c.Operator = f.Value.String()
			case "apn":
				c.APN = f.Value.String()
			case "pdp-type":
				c.PDPType = f.Value.String()
			case "download-url":
				c.DownloadURL = f.Value.String()
			}
		})
		return nil
	}
}
