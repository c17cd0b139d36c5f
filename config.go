package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	// BindAddress is the address the server listens on (e.g. "0.0.0.0:8080")
	BindAddress string `yaml:"bind_address"`
	// SerialPort is the path to the module's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string `yaml:"serial_port"`
	// BaudRate is the baud rate for serial communication with the module (e.g. 115200)
	BaudRate int `yaml:"baud_rate"`
	// ResetSignal names the control line wired to the module reset ("dtr", "rts" or "none")
	ResetSignal string `yaml:"reset_signal"`
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string `yaml:"log_level"`

	WiFi WiFiConfig `yaml:"wifi"`
	NATS NATSConfig `yaml:"nats"`
}

// WiFiConfig describes the network joined at startup. Nothing is joined
// when SSID is empty.
type WiFiConfig struct {
	SSID     string `yaml:"ssid"`
	Password string `yaml:"password"`
	// Security is one of "none", "wep64", "wep128" or "wpa2"
	Security string `yaml:"security"`
}

// NATSConfig enables publishing of module events. Disabled when URL is empty.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
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
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 115200
		c.ResetSignal = "dtr"
		c.LogLevel = "info"
		c.WiFi.Security = "wpa2"
		c.NATS.SubjectPrefix = "wifigw"
		return nil
	}
}

// WithFile merges a YAML configuration file. An empty path is a no-op.
func WithFile(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("parse config file %s: %w", path, err)
		}
		return nil
	}
}

// WithDotEnv loads a .env file into the process environment. Variables that
// are already set win, and a missing file is ignored.
func WithDotEnv(path string) ConfigOption {
	return func(c *Config) error {
		if path == "" {
			return nil
		}
		err := godotenv.Load(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if serial := os.Getenv("SERIAL_PORT"); serial != "" {
			c.SerialPort = serial
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if reset := os.Getenv("RESET_SIGNAL"); reset != "" {
			c.ResetSignal = reset
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if ssid := os.Getenv("WIFI_SSID"); ssid != "" {
			c.WiFi.SSID = ssid
		}

		if password := os.Getenv("WIFI_PASSWORD"); password != "" {
			c.WiFi.Password = password
		}

		if security := os.Getenv("WIFI_SECURITY"); security != "" {
			c.WiFi.Security = security
		}

		if url := os.Getenv("NATS_URL"); url != "" {
			c.NATS.URL = url
		}

		if prefix := os.Getenv("NATS_SUBJECT_PREFIX"); prefix != "" {
			c.NATS.SubjectPrefix = prefix
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
			case "reset-signal":
				c.ResetSignal = f.Value.String()
			case "log-level":
				c.LogLevel = f.Value.String()
			case "wifi-ssid":
				c.WiFi.SSID = f.Value.String()
			case "wifi-password":
				c.WiFi.Password = f.Value.String()
			case "wifi-security":
				c.WiFi.Security = f.Value.String()
			case "nats-url":
				c.NATS.URL = f.Value.String()
			}
		})
		return nil
	}
}
