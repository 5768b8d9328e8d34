package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saaga0h/agent2mqtt/internal/bridge"
	"github.com/saaga0h/agent2mqtt/pkg/config"
	"github.com/saaga0h/agent2mqtt/pkg/health"
	"github.com/saaga0h/agent2mqtt/pkg/mqtt"
)

func main() {
	// Load configuration with hierarchy: defaults → flags → positional args
	cfg := config.NewConfig()
	if err := cfg.LoadFromFlags(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Argument error: %v\n", err)
		os.Exit(2)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("Starting agent2mqtt bridge",
		"mqtt_broker", cfg.MQTTAddress(),
		"mqtt_client_id", cfg.MQTTClientID,
		"agent_socket", cfg.AgentSocketPath,
		"command_topic", mqtt.TopicCommand,
		"response_topic", mqtt.TopicResponse,
		"log_level", cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	mqttClient := mqtt.NewClient(cfg, logger)
	link := bridge.NewBrokerLink(mqttClient, logger)
	channel := bridge.NewLocalChannel(cfg.AgentSocketPath, bridge.DialSeqpacket, logger)
	b := bridge.New(link, channel, logger)

	var httpServer *http.Server
	if cfg.HealthPort > 0 {
		httpServer = startHealthServer(cfg.HealthPort, health.NewChecker(link, channel, logger), logger)
	}

	bridgeErr := make(chan error, 1)
	go func() {
		bridgeErr <- b.Start(ctx)
	}()

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("Shutdown signal received (SIGTERM/SIGINT)")
	case err := <-bridgeErr:
		if err != nil {
			logger.Error("Bridge failed", "error", err)
			exitCode = 1
		}
	}

	cancel()

	if err := b.Stop(); err != nil {
		logger.Error("Error stopping bridge", "error", err)
	}

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("Error shutting down health server", "error", err)
		}
		shutdownCancel()
	}

	os.Exit(exitCode)
}

func startHealthServer(port int, checker *health.Checker, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", checker.HandlerFunc())
	mux.HandleFunc("/health/detailed", checker.DetailedHandlerFunc())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		logger.Info("Starting health check server", "port", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Health server error", "error", err)
		}
	}()

	return server
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
