package modem

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"i4.energy/across/wifigw/at"
)

// Modem drives an SPWF04Sx WiFi module over AT commands. A background worker
// (Loop) drains unsolicited lines while nobody else needs the transport;
// foreground operations pause it, talk to the module directly and resume it.
type Modem struct {
	// transport provides the physical connection to the module
	transport Transport
	// reset drives the module's reset input
	reset ResetLine
	// config contains the modem configuration settings
	config  Config
	logger  *slog.Logger
	metrics *Metrics
	// framer turns transport bytes into lines; only the owner may use it
	framer *lineFramer

	observers observers
	indChan   chan at.Indication

	// owner is a one-slot semaphore held by whoever reads the transport: the
	// worker while it drains, or a foreground caller between Pause and Resume.
	owner chan struct{}
	// stopping asks the worker to hand the transport back
	stopping atomic.Bool
	// wake nudges the worker after Resume
	wake chan struct{}
	// takenOver lets blank lines through the filter. Only the owner touches it.
	takenOver bool

	stateMu sync.Mutex
	paused  bool

	// opMu serializes public operations against each other
	opMu sync.Mutex

	expectMu sync.Mutex
	expected string
	matched  chan struct{}

	loopRunning atomic.Bool
	closed      atomic.Bool
	done        chan struct{}
}

// New dials the module and prepares the driver. The module is held in reset
// and the worker starts out paused; call TurnOn to release it and Loop to
// start draining.
func New(ctx context.Context, config Config) (*Modem, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.dialer.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	if err := transport.SetReadTimeout(config.readTimeout); err != nil {
		transport.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}

	reset := config.resetLine
	if reset == nil {
		if rl, ok := transport.(ResetLine); ok {
			reset = rl
		} else {
			reset = loggedResetLine{logger: config.logger}
		}
	}

	m := &Modem{
		transport: transport,
		reset:     reset,
		config:    config,
		logger:    config.logger,
		metrics:   config.metrics,
		framer:    newLineFramer(transport, config.readSize, config.maxLineLength),
		indChan:   make(chan at.Indication, config.indicationQueue),
		owner:     make(chan struct{}, 1),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	m.observers.logger = config.logger
	m.observers.add(m.queueIndication)

	// Constructed paused: the constructor owns the transport until TurnOn.
	m.owner <- struct{}{}
	m.stopping.Store(true)
	m.takenOver = true
	m.paused = true

	if err := m.reset.Set(false); err != nil {
		transport.Close()
		return nil, fmt.Errorf("hold module in reset: %w", err)
	}

	return m, nil
}

// TurnOn resumes the worker and releases the module from reset.
func (m *Modem) TurnOn() error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if err := m.Resume(); err != nil {
		return err
	}
	if err := m.reset.Set(true); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	m.logger.Info("module powered on")
	return nil
}

// Init waits until the module answers the attention command, retrying until
// the init timeout elapses. Use it after TurnOn while the module boots.
func (m *Modem) Init(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, m.config.initTimeout)
	defer cancel()

	for {
		ok, err := m.SendATCommand(ctx, at.CmdTest, at.OK, time.Second)
		if err != nil {
			return fmt.Errorf("module not responding: %w", err)
		}
		if ok {
			return nil
		}
		m.logger.Debug("module not ready yet")
	}
}

// HardReset pulses the reset line.
func (m *Modem) HardReset() error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	return m.pulseReset()
}

// Close shuts down the modem and releases all resources. A running Loop
// returns, and the modem cannot be reused.
func (m *Modem) Close() error {
	if !m.closed.CompareAndSwap(false, true) {
		return ErrAlreadyClosed
	}
	close(m.done)
	return m.transport.Close()
}

// extractLine returns the next line meant for whoever owns the transport.
// Every line is reported to observers and checked against the armed expected
// prefix; indications are consumed here and never returned.
func (m *Modem) extractLine(stop func() bool) (string, error) {
	for skipped := 0; ; skipped++ {
		if skipped > m.config.maxSkippedLines {
			return "", ErrIndicationFlood
		}

		line, err := m.framer.next(stop)
		if err != nil {
			return "", err
		}
		if line == "" && !m.takenOver {
			continue
		}

		m.logger.Debug("line received", "line", line)
		m.metrics.lineReceived()
		m.observers.publish(LineReceived{Line: line})
		m.matchExpected(line)

		if ind, ok := at.ParseIndication(line); ok {
			m.handleIndication(ind)
			continue
		}
		if strings.HasPrefix(line, at.IndicationPrefix) && strings.Contains(line, at.IndicationSep) {
			m.logger.Warn("unparseable indication passed through", "line", line)
		}
		return line, nil
	}
}

func (m *Modem) handleIndication(ind at.Indication) {
	m.logger.Info("indication", "code", ind.Code, "description", ind.Description)
	m.metrics.indication(ind.Code)
	m.observers.publish(IndicationReceived{Indication: ind})

	if ind.Code == at.IndicationFatal {
		m.logger.Warn("fatal indication, resetting module", "description", ind.Description)
		if err := m.pulseReset(); err != nil {
			m.logger.Error("reset pulse failed", "error", err)
		}
	}
}

func (m *Modem) pulseReset() error {
	m.metrics.resetPulse()
	if err := m.reset.Set(false); err != nil {
		return fmt.Errorf("assert reset: %w", err)
	}
	time.Sleep(m.config.resetPulse)
	if err := m.reset.Set(true); err != nil {
		return fmt.Errorf("release reset: %w", err)
	}
	return nil
}

// arm registers prefix as the expected reply and returns the channel closed
// on the first matching line. An empty prefix arms nothing.
func (m *Modem) arm(prefix string) <-chan struct{} {
	m.expectMu.Lock()
	defer m.expectMu.Unlock()
	m.expected = prefix
	m.matched = make(chan struct{})
	return m.matched
}

func (m *Modem) disarm(matched <-chan struct{}) {
	m.expectMu.Lock()
	defer m.expectMu.Unlock()
	if m.matched == matched {
		m.expected = ""
	}
}

func (m *Modem) matchExpected(line string) {
	m.expectMu.Lock()
	defer m.expectMu.Unlock()
	if m.expected == "" || !strings.HasPrefix(line, m.expected) {
		return
	}
	m.expected = ""
	close(m.matched)
}

// loggedResetLine stands in when no reset line is wired.
type loggedResetLine struct {
	logger *slog.Logger
}

func (l loggedResetLine) Set(high bool) error {
	l.logger.Debug("reset line not wired", "high", high)
	return nil
}
