package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"i4.energy/across/wifigw/modem"
)

func main() {
	configFile := flag.String("config", "", "Path to a YAML configuration file")
	envFile := flag.String("env-file", ".env", "Path to a .env file (ignored when missing)")
	flag.String("serial-port", "/dev/ttyUSB0", "Serial port to connect to the module")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("reset-signal", "dtr", "Control line wired to the module reset (dtr, rts, none)")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("wifi-ssid", "", "WiFi network to join at startup")
	flag.String("wifi-password", "", "WiFi password")
	flag.String("wifi-security", "wpa2", "WiFi security (none, wep64, wep128, wpa2)")
	flag.String("nats-url", "", "NATS server URL for event publishing")
	flag.Parse()

	config, err := LoadConfig(
		WithDefaults(),
		WithFile(*configFile),
		WithDotEnv(*envFile),
		WithEnv(),
		WithFlags(flag.CommandLine),
	)
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

	resetSignal, err := parseResetSignal(config.ResetSignal)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := modem.NewMetrics("wifigw")
	if err := metrics.Register(registry); err != nil {
		logger.Error("Failed to register metrics", "error", err)
		os.Exit(1)
	}

	modemConfig, err := modem.NewConfigBuilder().
		WithATTimeout(5 * time.Second).
		WithInitTimeout(30 * time.Second).
		WithLogger(logger.With("component", "modem")).
		WithMetrics(metrics).
		WithDialer(modem.SerialDialer{
			PortName: config.SerialPort,
			BaudRate: config.BaudRate,
			Reset:    resetSignal,
		}).
		Build()
	if err != nil {
		logger.Error("Failed to create modem config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		logger.Error("Failed to create modem", "error", err)
		os.Exit(1)
	}

	hub := NewEventHub(logger.With("component", "events"))
	observers := []modem.Observer{hub.Broadcast}

	if config.NATS.URL != "" {
		conn, err := connectNATS(config.NATS.URL, logger.With("component", "nats"))
		if err != nil {
			logger.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer conn.Drain()

		publisher := NewPublisher(conn, config.NATS.SubjectPrefix, logger.With("component", "nats"))
		observers = append(observers, publisher.Handle)
		logger.Info("Publishing events to NATS", "url", config.NATS.URL, "prefix", config.NATS.SubjectPrefix)
	}

	logger.Info("Starting WiFi Gateway", "serial_port", config.SerialPort, "baud_rate", config.BaudRate)

	if err := startModem(ctx, m, config.WiFi, logger, observers...); err != nil {
		logger.Error("Failed to start module", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:  logger.With("component", "server"),
			Modem:   m,
			Events:  hub,
			Metrics: promhttp.HandlerFor(registry, promhttp.HandlerOpts{EnableOpenMetrics: true}),
		},
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start HTTP server in a goroutine
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	sig := <-sigChan
	logger.Info("Received shutdown signal", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	logger.Info("Closing HTTP server")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Failed to gracefully shutdown server", "error", err)
	}

	logger.Info("Closing modem connection")
	cancel()
	if err := m.Close(); err != nil {
		logger.Error("Failed to close modem", "error", err)
	}
}

// startModem subscribes observers, starts the worker and brings the module
// up, joining the configured network if any. Observers are subscribed first
// so they see the boot and join indications.
func startModem(ctx context.Context, m *modem.Modem, wifi WiFiConfig, logger *slog.Logger, observers ...modem.Observer) error {
	for _, o := range observers {
		m.Subscribe(o)
	}

	go func() {
		if err := m.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Modem loop stopped", "error", err)
		}
	}()

	if err := m.TurnOn(); err != nil {
		return fmt.Errorf("turn on module: %w", err)
	}
	if err := m.Init(ctx); err != nil {
		return err
	}

	if wifi.SSID != "" {
		if err := joinWiFi(ctx, m, wifi); err != nil {
			return fmt.Errorf("join WiFi network %s: %w", wifi.SSID, err)
		}
		logger.Info("WiFi configured", "ssid", wifi.SSID)
	}
	return nil
}

func parseResetSignal(s string) (modem.ResetSignal, error) {
	switch s {
	case "", "none":
		return modem.ResetNone, nil
	case "dtr":
		return modem.ResetDTR, nil
	case "rts":
		return modem.ResetRTS, nil
	default:
		return "", fmt.Errorf("unknown reset signal %q", s)
	}
}

// parseWiFiSecurity maps a configured security name onto the password type
// and security mode pair the module expects.
func parseWiFiSecurity(s string) (modem.PasswordType, modem.SecurityMode, error) {
	switch s {
	case "none", "open":
		return modem.PasswordOpen, modem.SecurityNone, nil
	case "wep64":
		return modem.PasswordWEP64, modem.SecurityWEP, nil
	case "wep128":
		return modem.PasswordWEP128, modem.SecurityWEP, nil
	case "", "wpa2":
		return modem.PasswordWPAText, modem.SecurityWPA2Personal, nil
	default:
		return 0, 0, fmt.Errorf("unknown wifi security %q", s)
	}
}

func joinWiFi(ctx context.Context, m *modem.Modem, cfg WiFiConfig) error {
	ptype, security, err := parseWiFiSecurity(cfg.Security)
	if err != nil {
		return err
	}
	return m.ConnectWiFi(ctx, cfg.SSID, cfg.Password, ptype, modem.RadioStation, security)
}
