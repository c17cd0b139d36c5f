package modem

import (
	"bytes"
	"context"
	"errors"
	"io"

	"i4.energy/across/wifigw/at"
)

// errCancelled is returned by the framer when its stop condition fires
// before a complete line is available. Nothing is consumed in that case.
var errCancelled = errors.New("line extraction cancelled")

// lineFramer accumulates transport bytes and splits them into CRLF lines.
// The pending buffer always holds an unconsumed suffix of the stream; it is
// only touched by the current owner of the transport.
type lineFramer struct {
	r       io.Reader
	scratch []byte
	pending []byte
	maxLine int
}

func newLineFramer(r io.Reader, readSize, maxLine int) *lineFramer {
	return &lineFramer{
		r:       r,
		scratch: make([]byte, readSize),
		maxLine: maxLine,
	}
}

// next returns the next complete line without its terminator. While no line
// is buffered it pulls bounded reads from the transport, polling stop before
// each one.
func (f *lineFramer) next(stop func() bool) (string, error) {
	for {
		if advance, token, _ := at.Splitter(f.pending, false); advance > 0 {
			line := string(token)
			f.consume(advance)
			return line, nil
		}

		if len(f.pending) > f.maxLine {
			f.pending = f.pending[:0]
			return "", ErrLineTooLong
		}

		if stop != nil && stop() {
			return "", errCancelled
		}

		if err := f.fill(); err != nil {
			return "", err
		}
	}
}

// fill appends one bounded read to the pending buffer. NUL bytes the module
// emits around a reset are dropped when they would start a new line.
func (f *lineFramer) fill() error {
	n, err := f.r.Read(f.scratch)
	if n > 0 {
		chunk := f.scratch[:n]
		if len(f.pending) == 0 {
			chunk = bytes.TrimLeft(chunk, "\x00")
		}
		f.pending = append(f.pending, chunk...)
	}
	if err != nil {
		if errors.Is(err, io.EOF) && n > 0 {
			return nil
		}
		return err
	}
	return nil
}

// readRaw returns exactly n bytes, taking buffered bytes first and then
// loading at most the missing amount from the transport, so nothing past the
// payload is consumed. It has no deadline of its own.
func (f *lineFramer) readRaw(ctx context.Context, n int) ([]byte, error) {
	data := make([]byte, 0, n)

	take := min(n, len(f.pending))
	data = append(data, f.pending[:take]...)
	f.consume(take)

	for len(data) < n {
		if err := ctx.Err(); err != nil {
			return data, err
		}
		want := min(len(f.scratch), n-len(data))
		got, err := f.r.Read(f.scratch[:want])
		data = append(data, f.scratch[:got]...)
		if err != nil && !(errors.Is(err, io.EOF) && got > 0) {
			return data, err
		}
	}
	return data, nil
}

func (f *lineFramer) consume(n int) {
	f.pending = append(f.pending[:0], f.pending[n:]...)
}

func (f *lineFramer) buffered() int {
	return len(f.pending)
}
