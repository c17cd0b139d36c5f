package modem

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/wifigw/at"
)

// WaitForever disables the timeout of SendATCommand.
const WaitForever time.Duration = -1

// SendATCommand writes cmd and, when expected is not empty, waits until a
// line starting with expected arrives or timeout elapses. It reports whether
// the expected line was seen; a timeout is not an error.
//
// With the worker running the worker reads the reply. While the caller holds
// a Pause the call pumps the transport itself, and lines other than the
// expected one are discarded.
func (m *Modem) SendATCommand(ctx context.Context, cmd, expected string, timeout time.Duration) (bool, error) {
	if err := validateCommand(cmd); err != nil {
		return false, err
	}
	if timeout == 0 {
		return false, ErrZeroTimeout
	}
	if m.closed.Load() {
		return false, ErrAlreadyClosed
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	matched := m.arm(expected)
	if err := m.writeLine(cmd); err != nil {
		m.disarm(matched)
		return false, err
	}
	if expected == "" {
		return true, nil
	}

	var (
		ok  bool
		err error
	)
	if m.Paused() {
		ok, err = m.pump(ctx, matched, timeout)
	} else {
		ok, err = m.await(ctx, matched, timeout)
	}
	if !ok {
		m.disarm(matched)
		if err == nil {
			m.metrics.commandTimeout()
			m.logger.Debug("expected reply not seen", "command", strings.TrimSpace(cmd), "expected", expected)
		}
	}
	return ok, err
}

// await waits for the worker to observe the expected line.
func (m *Modem) await(ctx context.Context, matched <-chan struct{}, timeout time.Duration) (bool, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-matched:
		return true, nil
	case <-deadline:
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-m.done:
		return false, ErrAlreadyClosed
	}
}

// pump extracts lines on the caller's goroutine until the expected line was
// seen or timeout elapses.
func (m *Modem) pump(ctx context.Context, matched <-chan struct{}, timeout time.Duration) (bool, error) {
	end := time.Now().Add(timeout)
	expired := func() bool { return timeout > 0 && time.Now().After(end) }
	seen := func() bool {
		select {
		case <-matched:
			return true
		default:
			return false
		}
	}
	stop := func() bool { return seen() || ctx.Err() != nil || expired() }

	for {
		if seen() {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		if expired() {
			return false, nil
		}
		if _, err := m.extractLine(stop); err != nil && !errors.Is(err, errCancelled) {
			return false, err
		}
	}
}

// Exec runs cmd with the worker paused and returns the lines preceding the
// status line. The module has to start answering within the AT timeout. An
// error status is returned as a *StatusError.
func (m *Modem) Exec(ctx context.Context, cmd string) ([]string, error) {
	if err := validateCommand(cmd); err != nil {
		return nil, err
	}
	var lines []string
	err := m.exclusive("exec", func() error {
		var err error
		lines, err = m.exec(ctx, cmd, nil)
		return err
	})
	return lines, err
}

// exec writes cmd, then payload when given, and collects reply lines up to
// the status line. The caller must own the transport.
func (m *Modem) exec(ctx context.Context, cmd string, payload []byte) ([]string, error) {
	if err := m.writeLine(cmd); err != nil {
		return nil, err
	}
	if payload != nil {
		if err := m.writeRaw(payload); err != nil {
			return nil, err
		}
	}

	var lines []string
	for {
		line, err := m.nextLine(ctx)
		if err != nil {
			return lines, fmt.Errorf("%s: %w", commandName(cmd), err)
		}
		switch {
		case line == at.OK:
			return lines, nil
		case strings.HasPrefix(line, at.ErrorPrefix):
			return lines, &StatusError{Op: commandName(cmd), Status: line}
		case line == "":
		default:
			lines = append(lines, line)
		}
	}
}

// nextLine extracts one line, giving up when the module stays silent for the
// AT timeout. The caller must own the transport.
func (m *Modem) nextLine(ctx context.Context) (string, error) {
	end := time.Now().Add(m.config.atTimeout)
	line, err := m.extractLine(func() bool {
		return ctx.Err() != nil || time.Now().After(end)
	})
	if errors.Is(err, errCancelled) {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", ErrReplyTimeout
	}
	return line, err
}

// readLines extracts exactly n lines, blank ones included.
func (m *Modem) readLines(ctx context.Context, n int) ([]string, error) {
	lines := make([]string, 0, n)
	for range n {
		line, err := m.nextLine(ctx)
		if err != nil {
			return lines, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// expectStatus reads the next non-blank line and fails unless it is the
// success token.
func (m *Modem) expectStatus(ctx context.Context, op string) error {
	for {
		status, err := m.nextLine(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if status != "" {
			return checkStatus(op, status)
		}
	}
}

func checkStatus(op, status string) error {
	if status != at.OK {
		return &StatusError{Op: op, Status: status}
	}
	return nil
}

// writeLine writes one command with its carriage return and waits until it
// has left the output buffer.
func (m *Modem) writeLine(cmd string) error {
	wire := strings.TrimRight(cmd, "\r\n") + at.CR
	if err := m.write([]byte(wire)); err != nil {
		return fmt.Errorf("write command %q: %w", strings.TrimSpace(cmd), err)
	}
	m.logger.Debug("line sent", "line", strings.TrimSpace(cmd))
	m.metrics.commandSent()
	m.observers.publish(LineSent{Line: wire})
	return nil
}

// writeRaw writes payload bytes that follow a length-prefixed command.
func (m *Modem) writeRaw(payload []byte) error {
	if err := m.write(payload); err != nil {
		return fmt.Errorf("write %d payload bytes: %w", len(payload), err)
	}
	return nil
}

func (m *Modem) write(p []byte) error {
	if _, err := m.transport.Write(p); err != nil {
		return err
	}
	return m.transport.Drain()
}

func validateCommand(cmd string) error {
	if !strings.Contains(cmd, at.Marker) {
		return fmt.Errorf("%q: %w", cmd, ErrInvalidCommand)
	}
	return nil
}

// commandName strips arguments so errors and metrics stay readable.
func commandName(cmd string) string {
	cmd = strings.TrimSpace(cmd)
	if i := strings.IndexByte(cmd, '='); i >= 0 {
		return cmd[:i]
	}
	return cmd
}
