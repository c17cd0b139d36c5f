package modem

import (
	"log/slog"
	"time"
)

func (c *Config) validate() error {
	if c.dialer == nil {
		return ErrNoDialer
	}
	return nil
}

// Config holds the settings of a Modem. Build one with NewConfigBuilder.
type Config struct {
	dialer    Dialer
	resetLine ResetLine
	logger    *slog.Logger
	metrics   *Metrics

	readTimeout     time.Duration
	atTimeout       time.Duration
	initTimeout     time.Duration
	resetPulse      time.Duration
	workerIdle      time.Duration
	pollInterval    time.Duration
	maxLineLength   int
	maxSkippedLines int
	readSize        int
	indicationQueue int
}

func (c *Config) setDefaults() {
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.readTimeout == 0 {
		c.readTimeout = 100 * time.Millisecond
	}
	if c.atTimeout == 0 {
		c.atTimeout = 5 * time.Second
	}
	if c.initTimeout == 0 {
		c.initTimeout = 30 * time.Second
	}
	if c.resetPulse == 0 {
		c.resetPulse = 100 * time.Millisecond
	}
	if c.workerIdle == 0 {
		c.workerIdle = 250 * time.Millisecond
	}
	if c.pollInterval == 0 {
		c.pollInterval = 50 * time.Millisecond
	}
	if c.maxLineLength == 0 {
		c.maxLineLength = 4096
	}
	if c.maxSkippedLines == 0 {
		c.maxSkippedLines = 64
	}
	if c.readSize == 0 {
		c.readSize = 1024
	}
	if c.indicationQueue == 0 {
		c.indicationQueue = 100
	}
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

// WithResetLine sets the reset line explicitly. Without it, a Transport that
// also implements ResetLine is used, and otherwise resets are only logged.
func (b *ConfigBuilder) WithResetLine(l ResetLine) *ConfigBuilder {
	b.config.resetLine = l
	return b
}

func (b *ConfigBuilder) WithLogger(l *slog.Logger) *ConfigBuilder {
	b.config.logger = l
	return b
}

func (b *ConfigBuilder) WithMetrics(m *Metrics) *ConfigBuilder {
	b.config.metrics = m
	return b
}

// WithReadTimeout bounds each transport read, which is also how quickly the
// worker notices a pause request.
func (b *ConfigBuilder) WithReadTimeout(d time.Duration) *ConfigBuilder {
	b.config.readTimeout = d
	return b
}

// WithATTimeout bounds multi-line exchanges such as Exec.
func (b *ConfigBuilder) WithATTimeout(d time.Duration) *ConfigBuilder {
	b.config.atTimeout = d
	return b
}

func (b *ConfigBuilder) WithInitTimeout(d time.Duration) *ConfigBuilder {
	b.config.initTimeout = d
	return b
}

func (b *ConfigBuilder) WithResetPulse(d time.Duration) *ConfigBuilder {
	b.config.resetPulse = d
	return b
}

func (b *ConfigBuilder) WithWorkerIdle(d time.Duration) *ConfigBuilder {
	b.config.workerIdle = d
	return b
}

func (b *ConfigBuilder) WithPollInterval(d time.Duration) *ConfigBuilder {
	b.config.pollInterval = d
	return b
}

func (b *ConfigBuilder) WithMaxLineLength(n int) *ConfigBuilder {
	b.config.maxLineLength = n
	return b
}

func (b *ConfigBuilder) WithMaxSkippedLines(n int) *ConfigBuilder {
	b.config.maxSkippedLines = n
	return b
}

func (b *ConfigBuilder) WithIndicationQueue(n int) *ConfigBuilder {
	b.config.indicationQueue = n
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
