// Command subscriber stores the readings published by gateways and serves
// the per-user exports they request.
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

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"i4.energy/across/nbiotgw/store"
	"i4.energy/across/nbiotgw/subscriber"
)

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "Path to a YAML configuration file")
	flag.String("broker", "tcp://172.20.0.22:1883", "MQTT broker URL")
	flag.String("client-id", "all_subscriber", "MQTT client id")
	flag.String("topic-prefix", "ubiss/", "Prefix of the gateway topics")
	flag.String("database", "data/readings.db", "SQLite database file")
	flag.String("export-dir", "files", "Directory for CSV exports")
	flag.String("bind-address", "0.0.0.0:9080", "Bind address of the export file server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	var logLevel slog.Level
	if err := logLevel.UnmarshalText([]byte(config.LogLevel)); err != nil {
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	db, err := store.Open(config.Database)
	if err != nil {
		logger.Error("Failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := subscriber.NewHandler(db, config.TopicPrefix, config.ExportDir, logger.With("component", "subscriber"))
	topic := config.TopicPrefix + "#"

	opts := mqtt.NewClientOptions().
		AddBroker(config.Broker).
		SetClientID(config.ClientID).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			logger.Warn("MQTT connection lost", "error", err)
		}).
		SetOnConnectHandler(func(c mqtt.Client) {
			// Subscribing here renews the subscription after a reconnect.
			logger.Info("MQTT connected, subscribing", "topic", topic)
			if token := c.Subscribe(topic, 0, handler.MessageHandler(ctx)); token.Wait() && token.Error() != nil {
				logger.Error("MQTT subscribe failed", "topic", topic, "error", token.Error())
			}
		})
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Error("Failed to connect to broker", "broker", config.Broker, "error", token.Error())
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    config.BindAddress,
		Handler: subscriber.Router(config.ExportDir),
	}

	go func() {
		logger.Info("Starting export file server", "address", httpServer.Addr, "dir", config.ExportDir)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Received shutdown signal")

	client.Disconnect(500)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}
}
