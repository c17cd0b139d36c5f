package modem

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Loop is the background worker. While the modem is not paused it owns the
// transport and drains lines, which keeps indications flowing to observers
// and to the Indications channel. Lines that are not indications have no
// taker and are dropped.
//
// Loop blocks until ctx is cancelled, the modem is closed or the transport
// fails. Only one Loop may run at a time.
//
// Usage:
//
//	m, err := modem.New(ctx, config)
//	if err != nil { return err }
//	go m.Loop(ctx)
//	if err := m.TurnOn(); err != nil { return err }
func (m *Modem) Loop(ctx context.Context) error {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	if !m.loopRunning.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer m.loopRunning.Store(false)

	m.logger.Info("worker started")
	defer m.logger.Info("worker stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case <-m.wake:
		}

		if err := m.drain(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case <-time.After(m.config.workerIdle):
		}
	}
}

// drain takes the transport and extracts lines until asked to stop. It
// always leaves with the transport released.
func (m *Modem) drain(ctx context.Context) error {
	select {
	case m.owner <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	case <-m.done:
		return nil
	}
	defer func() { <-m.owner }()

	stop := func() bool {
		return m.stopping.Load() || ctx.Err() != nil || m.closed.Load()
	}

	for {
		line, err := m.extractLine(stop)
		switch {
		case err == nil:
			m.logger.Debug("dropping unsolicited line", "line", line)
		case errors.Is(err, errCancelled):
			return ctx.Err()
		case errors.Is(err, ErrLineTooLong), errors.Is(err, ErrIndicationFlood):
			m.logger.Warn("worker skipped input", "error", err)
		default:
			if m.closed.Load() {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}
	}
}

// Pause takes the transport away from the worker and blocks until the worker
// has acknowledged. After Pause the caller owns the transport until Resume.
// Pauses do not nest: a second Pause fails with ErrAlreadyPaused.
func (m *Modem) Pause() error {
	m.stateMu.Lock()
	if m.paused {
		m.stateMu.Unlock()
		return ErrAlreadyPaused
	}
	m.paused = true
	m.stateMu.Unlock()

	start := time.Now()
	m.stopping.Store(true)
	m.owner <- struct{}{}
	m.takenOver = true
	m.metrics.pauseWait(time.Since(start).Seconds())
	return nil
}

// Resume hands the transport back to the worker.
func (m *Modem) Resume() error {
	m.stateMu.Lock()
	if !m.paused {
		m.stateMu.Unlock()
		return ErrNotPaused
	}
	// paused clears before the transport is released, so a Pause that
	// reports ErrAlreadyPaused always finds the transport still held.
	m.takenOver = false
	m.stopping.Store(false)
	m.paused = false
	<-m.owner
	m.stateMu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Paused reports whether a foreground caller currently owns the transport.
func (m *Modem) Paused() bool {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	return m.paused
}

// exclusive runs fn with the worker paused and public operations serialized.
func (m *Modem) exclusive(op string, fn func() error) (err error) {
	if m.closed.Load() {
		return ErrAlreadyClosed
	}
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.Pause(); err != nil {
		return err
	}
	defer func() {
		if rerr := m.Resume(); rerr != nil && err == nil {
			err = rerr
		}
		m.metrics.operation(op, err)
	}()

	return fn()
}
