package modem

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"
)

// TestTransport is an in-memory Transport for tests. Reads block for at most
// the read timeout like a serial port does and return whatever was queued
// with SendData. Writes are recorded, and an optional responder can answer
// them with scripted module output.
type TestTransport struct {
	mu          sync.Mutex
	queue       []byte
	written     bytes.Buffer
	readTimeout time.Duration
	respond     func(written []byte) string
	closed      bool

	avail chan struct{}
	done  chan struct{}
}

// NewTestTransport creates a new test transport for testing.
// Exported for use in tests.
func NewTestTransport() *TestTransport {
	return &TestTransport{
		readTimeout: 10 * time.Millisecond,
		avail:       make(chan struct{}, 1),
		done:        make(chan struct{}),
	}
}

// Respond installs fn to be called with every write. A non-empty return
// value is queued as module output.
func (t *TestTransport) Respond(fn func(written []byte) string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.respond = fn
}

func (t *TestTransport) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return 0, io.ErrClosedPipe
	}
	t.written.Write(p)
	respond := t.respond
	t.mu.Unlock()

	if respond != nil {
		if reply := respond(p); reply != "" {
			t.SendData(reply)
		}
	}
	return len(p), nil
}

func (t *TestTransport) Read(p []byte) (n int, err error) {
	timer := time.NewTimer(t.timeout())
	defer timer.Stop()

	for {
		t.mu.Lock()
		if len(t.queue) > 0 {
			n = copy(p, t.queue)
			t.queue = t.queue[n:]
			t.mu.Unlock()
			return n, nil
		}
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return 0, io.EOF
		}

		select {
		case <-t.avail:
		case <-t.done:
		case <-timer.C:
			return 0, nil
		}
	}
}

func (t *TestTransport) Drain() error { return nil }

func (t *TestTransport) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readTimeout = d
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)
	return nil
}

// SendData queues data to be read by the transport.
// This simulates receiving data from the module.
func (t *TestTransport) SendData(data string) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.queue = append(t.queue, data...)
	t.mu.Unlock()

	select {
	case t.avail <- struct{}{}:
	default:
	}
}

// Written returns everything written so far.
func (t *TestTransport) Written() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written.String()
}

// Pending reports how many queued bytes have not been read yet.
func (t *TestTransport) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.queue)
}

func (t *TestTransport) timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.readTimeout
}

// TestDialer hands out a fixed Transport.
type TestDialer struct {
	Transport Transport
}

func (d TestDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Transport, nil
}

// TestResetLine records every level driven on the reset line.
type TestResetLine struct {
	mu     sync.Mutex
	levels []bool
}

func (l *TestResetLine) Set(high bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.levels = append(l.levels, high)
	return nil
}

// Levels returns a copy of the recorded levels.
func (l *TestResetLine) Levels() []bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.levels...)
}
