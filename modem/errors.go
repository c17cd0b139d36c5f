package modem

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Modem is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// establish a connection to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a Modem
	// that has not been successfully initialized.
	//
	// This can occur if the dialer returned no transport or if the Modem was
	// not created via New.
	ErrNotInitialized = errors.New("modem not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Modem that has
	// already been closed, or when an operation follows Close.
	ErrAlreadyClosed = errors.New("modem already closed")

	// ErrLoopRunning is returned by Loop when another Loop is active.
	ErrLoopRunning = errors.New("loop already running")

	// ErrLineTooLong is returned when the module sends more than the
	// configured maximum line length without a CRLF terminator. The
	// unterminated data is discarded.
	ErrLineTooLong = errors.New("response line too long")

	// ErrIndicationFlood is returned when a single line extraction skips more
	// blank or indication lines than the configured bound.
	ErrIndicationFlood = errors.New("too many consecutive indications")

	// ErrAlreadyPaused is returned by Pause while the transport is already
	// owned by a foreground caller. Pauses do not nest.
	ErrAlreadyPaused = errors.New("worker already paused")

	// ErrNotPaused is returned by Resume without a matching Pause.
	ErrNotPaused = errors.New("worker not paused")

	// ErrInvalidCommand is returned for command text lacking the AT marker.
	ErrInvalidCommand = errors.New("command must contain AT")

	// ErrZeroTimeout is returned when SendATCommand is given a zero timeout.
	ErrZeroTimeout = errors.New("timeout cannot be zero")

	// ErrCertificateSize is returned when a CA certificate is outside the
	// size range accepted for one-way authentication.
	ErrCertificateSize = errors.New("certificate size out of range")

	// ErrUnsupportedSecurity is returned for password type, security mode
	// or radio mode combinations the module cannot be configured with.
	ErrUnsupportedSecurity = errors.New("unsupported security configuration")

	// ErrUnexpectedStatus is the target of every *StatusError.
	ErrUnexpectedStatus = errors.New("unexpected status")

	// ErrMalformedReply is returned when a reply line cannot be parsed.
	ErrMalformedReply = errors.New("malformed reply")

	// ErrReplyTimeout is returned when the module stays silent for longer
	// than the AT timeout while a reply line is awaited.
	ErrReplyTimeout = errors.New("timed out waiting for reply")

	// ErrInvalidSocketType is returned for an unknown SocketType.
	ErrInvalidSocketType = errors.New("invalid socket type")
)

// StatusError reports a reply whose status line was not the success token.
type StatusError struct {
	Op     string
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %q", e.Op, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUnexpectedStatus }
