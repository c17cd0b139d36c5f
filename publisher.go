package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"i4.energy/across/wifigw/modem"
)

// natsPublisher is the part of *nats.Conn the Publisher needs.
type natsPublisher interface {
	Publish(subject string, data []byte) error
}

// Publisher forwards indications and HTTP body chunks onto NATS subjects.
type Publisher struct {
	conn   natsPublisher
	prefix string
	logger *slog.Logger
}

func NewPublisher(conn natsPublisher, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, prefix: prefix, logger: logger}
}

// Handle is a modem.Observer. Indications go to <prefix>.indication.<code>
// as JSON, HTTP chunks go to <prefix>.http as raw bytes. Other events are
// not published.
func (p *Publisher) Handle(ev modem.Event) {
	var (
		subject string
		data    []byte
	)

	switch e := ev.(type) {
	case modem.IndicationReceived:
		subject = fmt.Sprintf("%s.indication.%d", p.prefix, e.Code)
		var err error
		if data, err = json.Marshal(e.Indication); err != nil {
			p.logger.Warn("Failed to encode indication", "code", e.Code, "error", err)
			return
		}
	case modem.HTTPData:
		subject = p.prefix + ".http"
		data = []byte(e.Chunk)
	default:
		return
	}

	// Publish buffers in the client, so this does not block the driver.
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn("Failed to publish event", "subject", subject, "error", err)
	}
}

// connectNATS dials the server with unlimited reconnects and logs
// connection state changes.
func connectNATS(url string, logger *slog.Logger) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name("wifigw"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", url, err)
	}
	return conn, nil
}
