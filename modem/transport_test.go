package modem

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.bug.st/serial"
	"go.uber.org/mock/gomock"
)

func TestSerialDialer_Dial_EmptyPortName(t *testing.T) {
	dialer := SerialDialer{
		PortName: "",
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	if err == nil {
		t.Error("expected error for empty port name")
	}
	if transport != nil {
		t.Error("expected nil transport for empty port name")
	}
	if err.Error() != "wifigw: serial port name is required" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_NilContext(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/ttyUSB0",
	}

	transport, err := dialer.Dial(nil)

	if err == nil {
		t.Error("expected error for nil context")
	}
	if transport != nil {
		t.Error("expected nil transport for nil context")
	}
	if err.Error() != "wifigw: context is nil" {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSerialDialer_Dial_ContextCanceled(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent", // Port that should fail to open
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	transport, err := dialer.Dial(ctx)

	if err != context.Canceled {
		t.Errorf("expected context.Canceled, got: %v", err)
	}
	if transport != nil {
		t.Error("expected nil transport for canceled context")
	}
}

func TestSerialDialer_Dial_WithMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent", // This will fail, but we test the path
		Mode: &serial.Mode{
			BaudRate: 115200,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		},
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	// Since we're using a non-existent port, expect an error
	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
	// Check that the error mentions the port name
	if err != nil && err.Error() == "" {
		t.Error("expected descriptive error message")
	}
}

func TestSerialDialer_Dial_DefaultMode(t *testing.T) {
	dialer := SerialDialer{
		PortName: "/dev/nonexistent", // This will fail, but we test the path
		// Mode is nil - should use defaults
	}

	ctx := context.Background()
	transport, err := dialer.Dial(ctx)

	// Since we're using a non-existent port, expect an error
	if err == nil {
		t.Error("expected error for non-existent port")
	}
	if transport != nil {
		t.Error("expected nil transport for non-existent port")
	}
}

func TestNew_AppliesReadTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dialer := NewMockDialer(ctrl)
	transport := NewMockTransport(ctrl)
	reset := NewMockResetLine(ctrl)

	ctx := context.Background()
	gomock.InOrder(
		dialer.EXPECT().Dial(ctx).Return(transport, nil),
		transport.EXPECT().SetReadTimeout(25*time.Millisecond).Return(nil),
		reset.EXPECT().Set(false).Return(nil),
		transport.EXPECT().Close().Return(nil),
	)

	config, err := NewConfigBuilder().
		WithDialer(dialer).
		WithResetLine(reset).
		WithReadTimeout(25 * time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	m, err := New(ctx, config)
	if err != nil {
		t.Fatalf("failed to create modem: %v", err)
	}
	if !m.Paused() {
		t.Error("expected a new modem to start paused")
	}
	if err := m.Close(); err != nil {
		t.Errorf("unexpected close error: %v", err)
	}
}

func TestNew_ResetFailureClosesTransport(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	dialer := NewMockDialer(ctrl)
	transport := NewMockTransport(ctrl)
	reset := NewMockResetLine(ctrl)
	lineErr := errors.New("gpio busy")

	ctx := context.Background()
	gomock.InOrder(
		dialer.EXPECT().Dial(ctx).Return(transport, nil),
		transport.EXPECT().SetReadTimeout(gomock.Any()).Return(nil),
		reset.EXPECT().Set(false).Return(lineErr),
		transport.EXPECT().Close().Return(nil),
	)

	config, err := NewConfigBuilder().
		WithDialer(dialer).
		WithResetLine(reset).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	m, err := New(ctx, config)
	if !errors.Is(err, lineErr) {
		t.Errorf("expected the reset line error, got: %v", err)
	}
	if m != nil {
		t.Error("expected nil modem on error")
	}
}

func TestResetLineFunc(t *testing.T) {
	var levels []bool
	line := ResetLineFunc(func(high bool) error {
		levels = append(levels, high)
		return nil
	})

	if err := line.Set(true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(levels) != 1 || !levels[0] {
		t.Errorf("expected one high level, got %v", levels)
	}
}

// resettableTransport is a transport with its own reset control line.
type resettableTransport struct {
	*TestTransport
	TestResetLine
}

func TestNew_TransportProvidesResetLine(t *testing.T) {
	transport := &resettableTransport{TestTransport: NewTestTransport()}

	config, err := NewConfigBuilder().
		WithDialer(TestDialer{Transport: transport}).
		Build()
	if err != nil {
		t.Fatalf("unexpected error from Build(): %v", err)
	}

	m, err := New(context.Background(), config)
	if err != nil {
		t.Fatalf("failed to create modem: %v", err)
	}
	defer m.Close()

	if levels := transport.Levels(); len(levels) != 1 || levels[0] {
		t.Errorf("expected the transport's line held low, got %v", levels)
	}
}
