package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"i4.energy/across/nbiotgw/at"
	"i4.energy/across/nbiotgw/messaging"
	"i4.energy/across/nbiotgw/modem"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file")
	flag.String("serial-port", "/dev/ttyAMA0", "Serial port to connect to the modem")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("mode", ModeNBIoT, "Uplink mode (nbiot, ip)")
	flag.String("server", "172.20.0.22", "MQTT broker host")
	flag.Int("port", 1883, "MQTT broker port")
	flag.String("topic-prefix", "ubiss/", "Prefix of every MQTT topic")
	flag.String("user-id", "group", "User id sent with every record")
	flag.Duration("keep-alive", 600*time.Second, "MQTT keep-alive interval")
	flag.String("operator", "23802", "Numeric network operator code, empty for automatic selection")
	flag.String("apn", "telenor.iot", "APN of the default packet data profile")
	flag.String("pdp-type", "IP", "PDP type of the default packet data profile")
	flag.String("download-url", "", "Base URL of the export server")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var publisher messaging.Publisher
	var m *modem.Modem
	switch config.Mode {
	case ModeNBIoT:
		m, publisher, err = dialNBIoT(ctx, config, logger)
	case ModeIP:
		publisher, err = messaging.DialIP(ctx, messaging.IPConfig{
			Server:    config.Server,
			Port:      config.Port,
			ClientID:  config.UserID,
			KeepAlive: config.KeepAlive,
			Logger:    logger.With("component", "mqtt"),
		})
	}
	if err != nil {
		logger.Error("Failed to connect uplink", "mode", config.Mode, "error", err)
		if m != nil {
			m.Close()
		}
		os.Exit(1)
	}

	messenger := messaging.NewMessenger(publisher, messaging.Config{
		Prefix: config.TopicPrefix,
		UserID: config.UserID,
		Logger: logger.With("component", "messaging"),
	})

	logger.Info("Starting NB-IoT Gateway", "mode", config.Mode, "server", config.Server, "user", config.UserID)

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:    logger.With("component", "server"),
			Messenger: messenger,
			Fetcher:   &messaging.HTTPFetcher{BaseURL: config.FetchURL()},
		},
	}

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing uplink")
	if err := messenger.Close(shutdownCtx); err != nil {
		logger.Error("Failed to close uplink", "error", err)
	}
	if m != nil {
		logger.Info("Closing modem connection")
		if err := m.Close(); err != nil {
			logger.Error("Failed to close modem", "error", err)
		}
	}
}

func dialNBIoT(ctx context.Context, config *Config, logger *slog.Logger) (*modem.Modem, messaging.Publisher, error) {
	modemConfig, err := modem.NewConfigBuilder().
		WithLogger(logger.With("component", "modem")).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
		}).
		Build()
	if err != nil {
		return nil, nil, err
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		return nil, nil, err
	}

	nbiot := messaging.DefaultNBIoTConfig(config.Server, config.UserID)
	nbiot.Port = config.Port
	nbiot.Session.KeepAlive = config.KeepAlive
	nbiot.Network.Operator = config.Operator
	nbiot.Network.Profile = modem.Profile{Type: at.PDPType(config.PDPType), APN: config.APN}

	p, err := messaging.DialNBIoT(ctx, m, nbiot)
	if err != nil {
		return m, nil, err
	}
	return m, p, nil
}
