package modem_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	gomock "go.uber.org/mock/gomock"
	"i4.energy/across/wifigw/modem"
)

// testReadTimeout is what New applies to the transport in these tests.
const testReadTimeout = 5 * time.Millisecond

type MockSequenceBuilder struct {
	transport *modem.MockTransport
	reset     *modem.MockResetLine
	calls     []any
}

func NewMockSequence(transport *modem.MockTransport, reset *modem.MockResetLine) *MockSequenceBuilder {
	return &MockSequenceBuilder{
		transport: transport,
		reset:     reset,
		calls:     []any{},
	}
}

// Open covers New: read timeout setup and holding the module in reset.
func (b *MockSequenceBuilder) Open() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().SetReadTimeout(testReadTimeout).Return(nil),
		b.reset.EXPECT().Set(false).Return(nil),
	)
	return b
}

func (b *MockSequenceBuilder) TurnOn() *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.reset.EXPECT().Set(true).Return(nil),
	)
	return b
}

// Command expects cmd to be written and answers it with reply in one read.
func (b *MockSequenceBuilder) Command(cmd, reply string) *MockSequenceBuilder {
	wire := []byte(cmd + "\r")
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(wire).Return(len(wire), nil),
		b.transport.EXPECT().Drain().Return(nil),
	)
	if reply != "" {
		b.Reply(reply)
	}
	return b
}

// Payload expects raw bytes following a length-prefixed command.
func (b *MockSequenceBuilder) Payload(data []byte) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Write(data).Return(len(data), nil),
		b.transport.EXPECT().Drain().Return(nil),
	)
	return b
}

func (b *MockSequenceBuilder) Reply(reply string) *MockSequenceBuilder {
	b.calls = append(b.calls,
		b.transport.EXPECT().Read(gomock.Any()).DoAndReturn(func(p []byte) (int, error) {
			return copy(p, reply), nil
		}),
	)
	return b
}

func (b *MockSequenceBuilder) Build() []any {
	return b.calls
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// mockConfig builds a config around gomock doubles.
func mockConfig(t *testing.T, dialer modem.Dialer, reset modem.ResetLine) modem.Config {
	t.Helper()
	config, err := modem.NewConfigBuilder().
		WithDialer(dialer).
		WithResetLine(reset).
		WithLogger(discardLogger()).
		WithReadTimeout(testReadTimeout).
		WithATTimeout(200 * time.Millisecond).
		WithResetPulse(time.Millisecond).
		WithWorkerIdle(time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}
	return config
}

type testModem struct {
	*modem.Modem
	transport *modem.TestTransport
	reset     *modem.TestResetLine
}

type testOptions struct {
	loop     bool
	paused   bool
	builders []func(*modem.ConfigBuilder)
}

type testOption func(*testOptions)

// withLoop runs the worker for the lifetime of the test.
func withLoop() testOption {
	return func(o *testOptions) { o.loop = true }
}

// withoutTurnOn leaves the modem as New returns it: paused and in reset.
func withoutTurnOn() testOption {
	return func(o *testOptions) { o.paused = true }
}

func withConfig(fn func(*modem.ConfigBuilder)) testOption {
	return func(o *testOptions) { o.builders = append(o.builders, fn) }
}

// newTestModem wires a Modem to a TestTransport and a recording reset line.
func newTestModem(t *testing.T, opts ...testOption) *testModem {
	t.Helper()

	var o testOptions
	for _, opt := range opts {
		opt(&o)
	}

	transport := modem.NewTestTransport()
	reset := &modem.TestResetLine{}

	builder := modem.NewConfigBuilder().
		WithDialer(modem.TestDialer{Transport: transport}).
		WithResetLine(reset).
		WithLogger(discardLogger()).
		WithReadTimeout(testReadTimeout).
		WithATTimeout(500 * time.Millisecond).
		WithResetPulse(time.Millisecond).
		WithWorkerIdle(time.Millisecond).
		WithPollInterval(time.Millisecond)
	for _, fn := range o.builders {
		fn(builder)
	}
	config, err := builder.Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	m, err := modem.New(ctx, config)
	if err != nil {
		cancel()
		t.Fatalf("failed to create modem: %v", err)
	}

	loopDone := make(chan error, 1)
	if o.loop {
		go func() {
			loopDone <- m.Loop(ctx)
		}()
	} else {
		loopDone <- nil
	}

	t.Cleanup(func() {
		cancel()
		m.Close()
		<-loopDone
	})

	if !o.paused {
		if err := m.TurnOn(); err != nil {
			t.Fatalf("TurnOn() failed: %v", err)
		}
	}

	return &testModem{Modem: m, transport: transport, reset: reset}
}

// eventually polls cond until it holds or a second has passed.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}
