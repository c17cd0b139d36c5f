package modem

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"i4.energy/across/wifigw/at"
)

// ChunkFunc receives response body chunks in arrival order. Every chunk but
// the last ends with CRLF.
type ChunkFunc func(chunk string)

// FormField is one name=value pair of a form POST. Order is preserved.
type FormField struct {
	Name  string
	Value string
}

// HTTPGet requests path from host on port 80 and streams the body. It
// reports whether the module ended the exchange with a success status.
func (m *Modem) HTTPGet(ctx context.Context, host, path string, onChunk ChunkFunc) (bool, error) {
	return m.doHTTP(ctx, fmt.Sprintf("%s%s,%s", at.CmdHTTPGet, host, path), nil, onChunk)
}

// HTTPPost posts form to path on host.
func (m *Modem) HTTPPost(ctx context.Context, host, path string, form []FormField, onChunk ChunkFunc) (bool, error) {
	return m.doHTTP(ctx, fmt.Sprintf("%s%s,%s,%s", at.CmdHTTPPost, host, path, encodeForm(form)), nil, onChunk)
}

// HTTPCustom sends a raw request (request line, headers and body) to host.
func (m *Modem) HTTPCustom(ctx context.Context, host string, port int, request string, onChunk ChunkFunc) (bool, error) {
	return m.doHTTP(ctx, fmt.Sprintf("%s%s,%d,%d", at.CmdHTTPRequest, host, port, len(request)), []byte(request), onChunk)
}

// HTTPCustomSecure sends a raw request over a TLS socket and returns the
// whole response once the server has nothing more to send.
func (m *Modem) HTTPCustomSecure(ctx context.Context, host, commonName string, port int, request string) (string, error) {
	id, err := m.OpenSecureSocket(ctx, host, port, commonName)
	if err != nil {
		return "", err
	}

	body, err := m.exchange(ctx, id, []byte(request))
	if cerr := m.CloseSocket(ctx, id); cerr != nil && err == nil {
		err = cerr
	}
	return string(body), err
}

// exchange writes request on socket id, waits for the first reply bytes and
// reads until the socket reports nothing more pending.
func (m *Modem) exchange(ctx context.Context, id string, request []byte) ([]byte, error) {
	if err := m.WriteSocket(ctx, id, request); err != nil {
		return nil, err
	}

	n, err := m.SocketAvailable(ctx, id)
	for err == nil && n == 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.config.pollInterval):
		}
		n, err = m.SocketAvailable(ctx, id)
	}

	var body bytes.Buffer
	for err == nil && n > 0 {
		var chunk []byte
		chunk, err = m.ReadSocket(ctx, id, n)
		body.Write(chunk)
		if err == nil {
			n, err = m.SocketAvailable(ctx, id)
		}
	}
	return body.Bytes(), err
}

// doHTTP streams an HTTP reply: every body line is held back until the next
// line shows whether it was the last one, so only the final chunk lacks its
// terminator.
func (m *Modem) doHTTP(ctx context.Context, request string, body []byte, onChunk ChunkFunc) (bool, error) {
	emit := func(chunk string) {
		m.observers.publish(HTTPData{Chunk: chunk})
		if onChunk != nil {
			onChunk(chunk)
		}
	}

	var ok bool
	err := m.exclusive("http", func() error {
		if err := m.writeLine(request); err != nil {
			return err
		}
		if body != nil {
			if err := m.writeRaw(body); err != nil {
				return err
			}
		}

		a, err := m.nextLine(ctx)
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
		for {
			b, err := m.nextLine(ctx)
			if err != nil {
				return fmt.Errorf("http: %w", err)
			}
			if b == at.HTTPEnd {
				emit(a)
				break
			}
			emit(a + at.CRLF)
			a = b
		}

		trailer, err := m.readLines(ctx, 2)
		if err != nil {
			return fmt.Errorf("http trailer: %w", err)
		}
		ok = trailer[1] == at.OK
		if !ok {
			m.logger.Warn("http request failed", "status", trailer[1])
		}
		return nil
	})
	return ok, err
}

// encodeForm joins the fields as name=value pairs separated by '&'.
func encodeForm(form []FormField) string {
	parts := make([]string, 0, len(form))
	for _, f := range form {
		parts = append(parts, f.Name+"="+f.Value)
	}
	return strings.Join(parts, "&")
}
