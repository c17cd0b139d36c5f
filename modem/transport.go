package modem

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

//go:generate go tool mockgen -source=transport.go -destination=mock_transport_test.go -package=modem

// Transport represents an established, bidirectional byte stream to a
// SPWF04Sx module.
//
// Reads are bounded: Read returns whatever is currently available, possibly
// zero bytes, once the configured read timeout elapses. A serial.Port from
// go.bug.st/serial satisfies this interface as is; in-memory fakes are used
// for testing.
type Transport interface {
	io.ReadWriteCloser
	// Drain blocks until every written byte has left the output buffer.
	Drain() error
	// SetReadTimeout sets how long Read waits for data before returning.
	SetReadTimeout(t time.Duration) error
}

// ResetLine drives the module's active-low reset input.
type ResetLine interface {
	Set(high bool) error
}

// ResetLineFunc adapts a plain function to the ResetLine interface.
type ResetLineFunc func(high bool) error

func (f ResetLineFunc) Set(high bool) error { return f(high) }

// Dialer opens a Transport to a module.
//
// Dialer abstracts how the connection is created (for example, via a serial
// port or a test double) and is used during modem construction only. Once a
// Transport is obtained, the Dialer is no longer needed.
type Dialer interface {
	// Dial is responsible for creating and returning a connected Transport. It may
	// perform blocking operations and should respect cancellation and deadlines
	// provided by the context. Dial returns an error if the transport cannot be
	// established.
	Dial(ctx context.Context) (Transport, error)
}

// ResetSignal selects which serial control line is wired to the module reset.
type ResetSignal string

const (
	ResetNone ResetSignal = ""
	ResetDTR  ResetSignal = "dtr"
	ResetRTS  ResetSignal = "rts"
)

// SerialDialer opens the module over a serial port using go.bug.st/serial.
// When Mode is nil the module defaults are used: 115200 8N1, no handshake.
type SerialDialer struct {
	PortName string
	BaudRate int
	Mode     *serial.Mode
	// Reset routes ResetLine calls to a modem control line of the same port.
	Reset ResetSignal
}

// Dial opens the port. The returned Transport also implements ResetLine when
// Reset names a control line.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if ctx == nil {
		return nil, errors.New("wifigw: context is nil")
	}
	if d.PortName == "" {
		return nil, errors.New("wifigw: serial port name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := d.Mode
	if mode == nil {
		baud := d.BaudRate
		if baud == 0 {
			baud = 115200
		}
		mode = &serial.Mode{
			BaudRate: baud,
			Parity:   serial.NoParity,
			DataBits: 8,
			StopBits: serial.OneStopBit,
		}
	}

	port, err := serial.Open(d.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}

	switch d.Reset {
	case ResetDTR:
		return &serialTransport{Port: port, set: port.SetDTR}, nil
	case ResetRTS:
		return &serialTransport{Port: port, set: port.SetRTS}, nil
	default:
		return port, nil
	}
}

// serialTransport exposes one control line of the port as the reset line.
type serialTransport struct {
	serial.Port
	set func(bool) error
}

func (t *serialTransport) Set(high bool) error { return t.set(high) }
