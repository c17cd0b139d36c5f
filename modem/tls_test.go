package modem_test

import (
	"bytes"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"

	"i4.energy/across/wifigw/modem"
)

// tlsModule records the commands it receives and accepts all of them.
type tlsModule struct {
	mu       sync.Mutex
	commands []string
	payload  int
	failing  string
}

func (s *tlsModule) respond(w []byte) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.payload > 0 {
		s.payload -= len(w)
		return "AT-S.OK\r\n"
	}

	cmd := strings.TrimSuffix(string(w), "\r")
	s.commands = append(s.commands, cmd)
	if i := strings.LastIndex(cmd, ","); strings.HasPrefix(cmd, "AT+S.TLSCERT=f_") && i >= 0 && cmd != "AT+S.TLSCERT=f_content,0" {
		var n int
		for _, c := range cmd[i+1:] {
			n = n*10 + int(c-'0')
		}
		s.payload = n
		return ""
	}
	if s.failing != "" && strings.HasPrefix(cmd, s.failing) {
		return "AT-S.ERROR:1:Failed\r\n"
	}
	if strings.HasPrefix(cmd, "AT+S.SOCKON=") {
		return "AT-S.On:01\r\nAT-S.OK\r\n"
	}
	return "AT-S.OK\r\n"
}

func (s *tlsModule) sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.commands)
}

func TestTLSOneWayAuth(t *testing.T) {
	t.Run("Rejects a certificate outside the size range before any I/O", func(t *testing.T) {
		for _, size := range []int{500, 2001} {
			m := newTestModem(t, withLoop())

			_, err := m.TLSOneWayAuth(context.Background(), "08:35:02", bytes.Repeat([]byte("c"), size), "example.com", "example.com", 443)
			if !errors.Is(err, modem.ErrCertificateSize) {
				t.Errorf("size %d: expected ErrCertificateSize, got: %v", size, err)
			}
			if got := m.transport.Written(); got != "" {
				t.Errorf("size %d: expected nothing written, got %q", size, got)
			}
		}
	})

	t.Run("Runs every provisioning step before opening", func(t *testing.T) {
		m := newTestModem(t, withLoop())
		module := &tlsModule{}
		m.transport.Respond(module.respond)

		ca := bytes.Repeat([]byte("c"), 1500)
		id, err := m.TLSOneWayAuth(context.Background(), "08:35:02", ca, "example.com", "example.com", 443)
		if err != nil {
			t.Fatalf("TLSOneWayAuth() failed: %v", err)
		}
		if id != "01" {
			t.Errorf("expected handle 01, got %q", id)
		}

		want := []string{
			"AT+S.TLSCERT2=clean,all",
			"AT+S.SETTIME=08:35:02",
			"AT+S.SETTIME",
			"AT+S.TLSCERT=f_ca,1500",
			"AT+S.TLSDOMAIN=f_domain,example.com",
			"AT+S.TLSCERT=f_content,0",
			"AT+S.SOCKON=example.com,443,s,ind",
		}
		if got := module.sent(); !slices.Equal(got, want) {
			t.Errorf("expected commands %q, got %q", want, got)
		}
		if !strings.Contains(m.transport.Written(), string(ca)) {
			t.Error("expected the certificate to be written raw")
		}
	})

	t.Run("A failing step does not stop the workflow", func(t *testing.T) {
		m := newTestModem(t)
		module := &tlsModule{failing: "AT+S.TLSCERT2"}
		m.transport.Respond(module.respond)

		id, err := m.TLSOneWayAuth(context.Background(), "08:35:02", bytes.Repeat([]byte("c"), 700), "example.com", "example.com", 443)
		if err != nil {
			t.Fatalf("TLSOneWayAuth() failed: %v", err)
		}
		if id != "01" {
			t.Errorf("expected handle 01, got %q", id)
		}
		if got := len(module.sent()); got != 7 {
			t.Errorf("expected 7 commands, got %d", got)
		}
	})

	t.Run("The final open decides", func(t *testing.T) {
		m := newTestModem(t)
		module := &tlsModule{failing: "AT+S.SOCKON"}
		m.transport.Respond(module.respond)

		_, err := m.TLSOneWayAuth(context.Background(), "08:35:02", bytes.Repeat([]byte("c"), 2000), "example.com", "example.com", 443)
		if !errors.Is(err, modem.ErrUnexpectedStatus) {
			t.Errorf("expected ErrUnexpectedStatus, got: %v", err)
		}
	})
}

func TestTLSMutualAuth(t *testing.T) {
	m := newTestModem(t)
	module := &tlsModule{}
	m.transport.Respond(module.respond)

	_, err := m.TLSMutualAuth(context.Background(), "08:35:02",
		[]byte("ca"), []byte("cert"), []byte("key"), "example.com", "example.com", 443)
	if err != nil {
		t.Fatalf("TLSMutualAuth() failed: %v", err)
	}

	want := []string{
		"AT+S.TLSCERT2=clean,all",
		"AT+S.SETTIME=08:35:02",
		"AT+S.SETTIME",
		"AT+S.TLSCERT=f_ca,2",
		"AT+S.TLSCERT=f_cert,4",
		"AT+S.TLSCERT=f_key,3",
		"AT+S.TLSDOMAIN=f_domain,example.com",
		"AT+S.TLSCERT=f_content,0",
		"AT+S.SOCKON=example.com,443,s,ind",
	}
	if got := module.sent(); !slices.Equal(got, want) {
		t.Errorf("expected commands %q, got %q", want, got)
	}
}

func TestTLSAnonymous(t *testing.T) {
	m := newTestModem(t)
	module := &tlsModule{}
	m.transport.Respond(module.respond)

	if _, err := m.TLSAnonymous(context.Background(), "08:35:02", "example.com", 443); err != nil {
		t.Fatalf("TLSAnonymous() failed: %v", err)
	}

	want := []string{
		"AT+S.TLSCERT2=clean,all",
		"AT+S.SETTIME=08:35:02",
		"AT+S.SETTIME",
		"AT+S.SOCKON=example.com,443,s",
	}
	if got := module.sent(); !slices.Equal(got, want) {
		t.Errorf("expected commands %q, got %q", want, got)
	}
}
