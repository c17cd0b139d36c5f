package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"i4.energy/across/wifigw/modem"
)

// EventFrame is the JSON structure sent to websocket clients for every
// driver event.
type EventFrame struct {
	Kind  string      `json:"kind"`
	Stamp int64       `json:"stamp"`
	Data  modem.Event `json:"data"`
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// EventHub fans driver events out to websocket clients. Slow clients miss
// frames instead of blocking the driver.
type EventHub struct {
	logger *slog.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader
}

func NewEventHub(logger *slog.Logger) *EventHub {
	return &EventHub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Clients returns the number of connected clients.
func (h *EventHub) Clients() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the connection.
func (h *EventHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, 64),
	}

	h.clientsMu.Lock()
	h.clients[client] = struct{}{}
	total := len(h.clients)
	h.clientsMu.Unlock()

	h.logger.Info("Event client connected", "client", client.id, "total", total)

	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Incoming messages are ignored; reading detects the disconnect.
	go func() {
		defer func() {
			h.clientsMu.Lock()
			delete(h.clients, client)
			total := len(h.clients)
			h.clientsMu.Unlock()
			close(client.send)
			h.logger.Info("Event client disconnected", "client", client.id, "total", total)
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast is a modem.Observer.
func (h *EventHub) Broadcast(ev modem.Event) {
	data, err := json.Marshal(EventFrame{
		Kind:  ev.Kind(),
		Stamp: time.Now().UnixMilli(),
		Data:  ev,
	})
	if err != nil {
		h.logger.Warn("Failed to encode event", "kind", ev.Kind(), "error", err)
		return
	}

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- data:
		default:
			h.logger.Debug("Event client too slow, dropping frame", "client", client.id)
		}
	}
}
