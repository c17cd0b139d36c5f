package modem

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"i4.energy/across/wifigw/at"
)

// SocketType selects the transport of a client socket.
type SocketType int

const (
	SocketTCP SocketType = iota
	SocketUDP
	SocketSecure
)

func (t SocketType) selector() (string, error) {
	switch t {
	case SocketTCP:
		return "t", nil
	case SocketUDP:
		return "u", nil
	case SocketSecure:
		return "s", nil
	default:
		return "", fmt.Errorf("socket type %d: %w", t, ErrInvalidSocketType)
	}
}

// The plain open reply carries the handle on its second line as
// " ID: <n>"; the TLS open reply on its third line after the last colon.
const plainSocketIDOffset = 5

// OpenSocket opens a client socket and returns its handle.
func (m *Modem) OpenSocket(ctx context.Context, host string, port int, kind SocketType) (string, error) {
	sel, err := kind.selector()
	if err != nil {
		return "", err
	}

	var id string
	err = m.exclusive("socket_open", func() error {
		if err := m.writeLine(fmt.Sprintf("%s%s,%d,,%s", at.CmdSocketOpen, host, port, sel)); err != nil {
			return err
		}
		lines, err := m.readLines(ctx, 4)
		if err != nil {
			return fmt.Errorf("open socket: %w", err)
		}
		if err := checkStatus("open socket", lines[3]); err != nil {
			return err
		}
		if len(lines[1]) < plainSocketIDOffset {
			return fmt.Errorf("open socket: handle line %q: %w", lines[1], ErrMalformedReply)
		}
		id = strings.TrimSpace(lines[1][plainSocketIDOffset:])
		return nil
	})
	return id, err
}

// OpenSecureSocket opens a TLS socket whose server certificate must carry
// commonName, and returns its handle.
func (m *Modem) OpenSecureSocket(ctx context.Context, host string, port int, commonName string) (string, error) {
	var id string
	err := m.exclusive("socket_open_tls", func() error {
		if err := m.writeLine(fmt.Sprintf("%s%s,%d,,%s", at.CmdSocketOpen, host, port, commonName)); err != nil {
			return err
		}
		lines, err := m.readLines(ctx, 4)
		if err != nil {
			return fmt.Errorf("open secure socket: %w", err)
		}
		if err := checkStatus("open secure socket", lines[3]); err != nil {
			return err
		}
		id = afterLastColon(lines[2])
		return nil
	})
	return id, err
}

// SocketAvailable returns how many received bytes are waiting on socket id.
func (m *Modem) SocketAvailable(ctx context.Context, id string) (int, error) {
	var n int
	err := m.exclusive("socket_query", func() error {
		if err := m.writeLine(at.CmdSocketQuery + id); err != nil {
			return err
		}
		lines, err := m.readLines(ctx, 2)
		if err != nil {
			return fmt.Errorf("query socket %s: %w", id, err)
		}
		if err := checkStatus("query socket", lines[1]); err != nil {
			return err
		}
		n, err = strconv.Atoi(afterLastColon(lines[0]))
		if err != nil {
			return fmt.Errorf("query socket %s: length line %q: %w", id, lines[0], ErrMalformedReply)
		}
		return nil
	})
	return n, err
}

// WriteSocket sends data on socket id.
func (m *Modem) WriteSocket(ctx context.Context, id string, data []byte) error {
	return m.exclusive("socket_write", func() error {
		if err := m.writeLine(fmt.Sprintf("%s%s,%d", at.CmdSocketWrite, id, len(data))); err != nil {
			return err
		}
		if err := m.writeRaw(data); err != nil {
			return err
		}
		return m.expectStatus(ctx, "write socket")
	})
}

// ReadSocket reads exactly n bytes from socket id. It waits for all n bytes,
// so n should not exceed what SocketAvailable reported.
func (m *Modem) ReadSocket(ctx context.Context, id string, n int) ([]byte, error) {
	var data []byte
	err := m.exclusive("socket_read", func() error {
		if err := m.writeLine(fmt.Sprintf("%s%s,%d", at.CmdSocketRead, id, n)); err != nil {
			return err
		}
		var err error
		data, err = m.framer.readRaw(ctx, n)
		if err != nil {
			return fmt.Errorf("read socket %s: %w", id, err)
		}
		return m.expectStatus(ctx, "read socket")
	})
	return data, err
}

// CloseSocket closes socket id.
func (m *Modem) CloseSocket(ctx context.Context, id string) error {
	return m.exclusive("socket_close", func() error {
		if err := m.writeLine(at.CmdSocketClose + id); err != nil {
			return err
		}
		return m.expectStatus(ctx, "close socket")
	})
}

// ServerSocket starts the module's socket server on port.
func (m *Modem) ServerSocket(ctx context.Context, port int) error {
	_, err := m.Exec(ctx, at.CmdSocketServer+strconv.Itoa(port))
	return err
}

// CloseServerSocket stops the module's socket server.
func (m *Modem) CloseServerSocket(ctx context.Context) error {
	_, err := m.Exec(ctx, at.CmdSocketServer+"0")
	return err
}

func afterLastColon(s string) string {
	if i := strings.LastIndex(s, ":"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}
