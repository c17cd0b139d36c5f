package modem

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"i4.energy/across/wifigw/at"
)

// Size range the firmware accepts for a CA certificate in one-way mode.
const (
	minCACertSize = 700
	maxCACertSize = 2000
)

// TLSAnonymous opens a TLS socket to host without certificate verification.
// now is the module clock setting, e.g. "08:35:02". Every workflow sets the
// clock and then reads it back before touching certificates.
func (m *Modem) TLSAnonymous(ctx context.Context, now, host string, port int) (string, error) {
	if err := m.provision(ctx, "clean", at.CmdTLSClean, nil); err != nil {
		return "", err
	}
	if err := m.provision(ctx, "set_time", at.CmdSetTime+now, nil); err != nil {
		return "", err
	}
	if err := m.provision(ctx, "get_time", at.CmdTime, nil); err != nil {
		return "", err
	}
	return m.openProvisioned(ctx, fmt.Sprintf("%s%s,%d,s", at.CmdSocketOpen, host, port))
}

// TLSOneWayAuth stores ca and domain on the module and opens a TLS socket that
// verifies the server against them. ca must be 700 to 2000 bytes long.
func (m *Modem) TLSOneWayAuth(ctx context.Context, now string, ca []byte, domain, host string, port int) (string, error) {
	if len(ca) < minCACertSize || len(ca) > maxCACertSize {
		return "", fmt.Errorf("CA certificate of %d bytes: %w", len(ca), ErrCertificateSize)
	}

	steps := []provisionStep{
		{"clean", at.CmdTLSClean, nil},
		{"set_time", at.CmdSetTime + now, nil},
		{"get_time", at.CmdTime, nil},
		{"ca", at.CmdTLSCA + strconv.Itoa(len(ca)), ca},
		{"domain", at.CmdTLSDomain + domain, nil},
		{"check", at.CmdTLSCheck, nil},
	}
	return m.provisionAndOpen(ctx, steps, host, port)
}

// TLSMutualAuth is TLSOneWayAuth plus a client certificate and key.
func (m *Modem) TLSMutualAuth(ctx context.Context, now string, ca, cert, key []byte, domain, host string, port int) (string, error) {
	steps := []provisionStep{
		{"clean", at.CmdTLSClean, nil},
		{"set_time", at.CmdSetTime + now, nil},
		{"get_time", at.CmdTime, nil},
		{"ca", at.CmdTLSCA + strconv.Itoa(len(ca)), ca},
		{"client_cert", at.CmdTLSClient + strconv.Itoa(len(cert)), cert},
		{"client_key", at.CmdTLSKey + strconv.Itoa(len(key)), key},
		{"domain", at.CmdTLSDomain + domain, nil},
		{"check", at.CmdTLSCheck, nil},
	}
	return m.provisionAndOpen(ctx, steps, host, port)
}

type provisionStep struct {
	name    string
	cmd     string
	payload []byte
}

func (m *Modem) provisionAndOpen(ctx context.Context, steps []provisionStep, host string, port int) (string, error) {
	for _, s := range steps {
		if err := m.provision(ctx, s.name, s.cmd, s.payload); err != nil {
			return "", err
		}
	}
	return m.openProvisioned(ctx, fmt.Sprintf("%s%s,%d,s,ind", at.CmdSocketOpen, host, port))
}

// provision runs one step with its own pause, so the worker drains between
// steps. A failing reply is logged and the workflow goes on; the final open
// decides. Only cancellation and a closed modem stop the workflow.
func (m *Modem) provision(ctx context.Context, name, cmd string, payload []byte) error {
	err := m.exclusive("tls_"+name, func() error {
		_, err := m.exec(ctx, cmd, payload)
		return err
	})
	switch {
	case err == nil:
		m.logger.Debug("tls step done", "step", name)
		return nil
	case errors.Is(err, ErrAlreadyClosed), ctx.Err() != nil:
		return fmt.Errorf("tls %s: %w", name, err)
	default:
		m.logger.Warn("tls step failed, continuing", "step", name, "error", err)
		return nil
	}
}

// openProvisioned opens the secure socket and returns the handle reported on
// the last reply line before the status.
func (m *Modem) openProvisioned(ctx context.Context, cmd string) (string, error) {
	var id string
	err := m.exclusive("tls_open", func() error {
		lines, err := m.exec(ctx, cmd, nil)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("open secure socket: %w", ErrMalformedReply)
		}
		id = afterLastColon(lines[len(lines)-1])
		return nil
	})
	return id, err
}
