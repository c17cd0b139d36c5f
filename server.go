package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/google/uuid"

	"i4.energy/across/wifigw/modem"
)

// Driver is the subset of *modem.Modem the HTTP API uses.
type Driver interface {
	Status(ctx context.Context) ([]string, error)
	Ping(ctx context.Context, host string) ([]string, error)

	HTTPGet(ctx context.Context, host, path string, onChunk modem.ChunkFunc) (bool, error)
	HTTPPost(ctx context.Context, host, path string, form []modem.FormField, onChunk modem.ChunkFunc) (bool, error)
	HTTPCustom(ctx context.Context, host string, port int, request string, onChunk modem.ChunkFunc) (bool, error)
	HTTPCustomSecure(ctx context.Context, host, commonName string, port int, request string) (string, error)

	OpenSocket(ctx context.Context, host string, port int, kind modem.SocketType) (string, error)
	OpenSecureSocket(ctx context.Context, host string, port int, commonName string) (string, error)
	SocketAvailable(ctx context.Context, id string) (int, error)
	ReadSocket(ctx context.Context, id string, n int) ([]byte, error)
	WriteSocket(ctx context.Context, id string, data []byte) error
	CloseSocket(ctx context.Context, id string) error
}

// Server handles incoming HTTP requests for interacting with the
// configured module
type Server struct {
	Logger *slog.Logger
	Modem  Driver
	// Events serves GET /events when set.
	Events http.Handler
	// Metrics serves GET /metrics when set.
	Metrics http.Handler

	once sync.Once
	mux  *http.ServeMux
}

// ServeHTTP implements the http.Handler interface for the Server struct
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.once.Do(s.routes)
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux = http.NewServeMux()
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /ping", s.handlePing)
	s.mux.HandleFunc("POST /http", s.handleHTTP)
	s.mux.HandleFunc("POST /sockets", s.handleSocketOpen)
	s.mux.HandleFunc("POST /sockets/{id}/write", s.handleSocketWrite)
	s.mux.HandleFunc("GET /sockets/{id}", s.handleSocketRead)
	s.mux.HandleFunc("DELETE /sockets/{id}", s.handleSocketClose)
	if s.Events != nil {
		s.mux.Handle("GET /events", s.Events)
	}
	if s.Metrics != nil {
		s.mux.Handle("GET /metrics", s.Metrics)
	}
}

func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	if message == "" {
		w.WriteHeader(statusCode)
		return
	}

	type ErrorResponse struct {
		Message string `json:"message"`
	}
	resp := ErrorResponse{Message: message}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) sendJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(v)
}

// sendDriverError maps driver failures onto gateway status codes.
func (s *Server) sendDriverError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, modem.ErrInvalidSocketType),
		errors.Is(err, modem.ErrInvalidCommand):
		s.sendError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, modem.ErrReplyTimeout),
		errors.Is(err, context.DeadlineExceeded):
		s.sendError(w, err.Error(), http.StatusGatewayTimeout)
	case errors.Is(err, modem.ErrAlreadyClosed):
		s.sendError(w, err.Error(), http.StatusServiceUnavailable)
	default:
		s.sendError(w, err.Error(), http.StatusBadGateway)
	}
}

func (s *Server) requestLogger(r *http.Request) *slog.Logger {
	id := r.Header.Get("X-Request-Id")
	if id == "" {
		id = uuid.NewString()
	}
	return s.Logger.With("request_id", id, "path", r.URL.Path)
}

type linesResponse struct {
	Lines []string `json:"lines"`
}

// handleStatus returns the module status report
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	lines, err := s.Modem.Status(r.Context())
	if err != nil {
		s.requestLogger(r).Error("Failed to query status", "error", err)
		s.sendDriverError(w, err)
		return
	}
	s.sendJSON(w, linesResponse{Lines: lines})
}

// handlePing asks the module to ping a host
func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	type PingRequest struct {
		Host string `json:"host"`
	}

	var req PingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Host == "" {
		s.sendError(w, "'host' field is required", http.StatusBadRequest)
		return
	}

	lines, err := s.Modem.Ping(r.Context(), req.Host)
	if err != nil {
		s.requestLogger(r).Error("Failed to ping", "error", err, "host", req.Host)
		s.sendDriverError(w, err)
		return
	}
	s.sendJSON(w, linesResponse{Lines: lines})
}

// HTTPRequest is the body of POST /http.
type HTTPRequest struct {
	// Method is GET, POST or CUSTOM. CUSTOM sends Body as a raw request.
	Method     string            `json:"method"`
	Host       string            `json:"host"`
	Path       string            `json:"path"`
	Port       int               `json:"port"`
	Form       []modem.FormField `json:"form"`
	Body       string            `json:"body"`
	Secure     bool              `json:"secure"`
	CommonName string            `json:"common_name"`
}

// HTTPResponse is the result of POST /http.
type HTTPResponse struct {
	OK   bool   `json:"ok"`
	Body string `json:"body"`
}

// handleHTTP performs an HTTP request through the module's client
func (s *Server) handleHTTP(w http.ResponseWriter, r *http.Request) {
	var req HTTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Host == "" {
		s.sendError(w, "'host' field is required", http.StatusBadRequest)
		return
	}

	var body strings.Builder
	collect := func(chunk string) { body.WriteString(chunk) }

	var (
		ok  bool
		err error
	)
	switch strings.ToUpper(req.Method) {
	case "", http.MethodGet:
		ok, err = s.Modem.HTTPGet(r.Context(), req.Host, pathOrRoot(req.Path), collect)
	case http.MethodPost:
		ok, err = s.Modem.HTTPPost(r.Context(), req.Host, pathOrRoot(req.Path), req.Form, collect)
	case "CUSTOM":
		if req.Port == 0 || req.Body == "" {
			s.sendError(w, "'port' and 'body' fields are required for CUSTOM", http.StatusBadRequest)
			return
		}
		if req.Secure {
			var resp string
			resp, err = s.Modem.HTTPCustomSecure(r.Context(), req.Host, req.CommonName, req.Port, req.Body)
			ok = err == nil
			body.WriteString(resp)
		} else {
			ok, err = s.Modem.HTTPCustom(r.Context(), req.Host, req.Port, req.Body, collect)
		}
	default:
		s.sendError(w, "unsupported method "+req.Method, http.StatusBadRequest)
		return
	}

	if err != nil {
		s.requestLogger(r).Error("HTTP request failed", "error", err, "host", req.Host, "method", req.Method)
		s.sendDriverError(w, err)
		return
	}

	s.requestLogger(r).Info("HTTP request completed", "host", req.Host, "ok", ok, "body_length", body.Len())
	s.sendJSON(w, HTTPResponse{OK: ok, Body: body.String()})
}

func pathOrRoot(p string) string {
	if p == "" {
		return "/"
	}
	return p
}

// handleSocketOpen opens a client socket
func (s *Server) handleSocketOpen(w http.ResponseWriter, r *http.Request) {
	type OpenRequest struct {
		Host string `json:"host"`
		Port int    `json:"port"`
		// Type is tcp, udp or tls.
		Type       string `json:"type"`
		CommonName string `json:"common_name"`
	}

	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Host == "" || req.Port == 0 {
		s.sendError(w, "both 'host' and 'port' fields are required", http.StatusBadRequest)
		return
	}

	var (
		id  string
		err error
	)
	switch strings.ToLower(req.Type) {
	case "", "tcp":
		id, err = s.Modem.OpenSocket(r.Context(), req.Host, req.Port, modem.SocketTCP)
	case "udp":
		id, err = s.Modem.OpenSocket(r.Context(), req.Host, req.Port, modem.SocketUDP)
	case "tls":
		id, err = s.Modem.OpenSecureSocket(r.Context(), req.Host, req.Port, req.CommonName)
	default:
		s.sendError(w, "unsupported socket type "+req.Type, http.StatusBadRequest)
		return
	}
	if err != nil {
		s.requestLogger(r).Error("Failed to open socket", "error", err, "host", req.Host, "port", req.Port)
		s.sendDriverError(w, err)
		return
	}

	s.requestLogger(r).Info("Socket opened", "id", id, "host", req.Host, "port", req.Port)
	s.sendJSON(w, struct {
		ID string `json:"id"`
	}{ID: id})
}

// handleSocketWrite sends the raw request body over a socket
func (s *Server) handleSocketWrite(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(data) == 0 {
		s.sendError(w, "request body is empty", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	if err := s.Modem.WriteSocket(r.Context(), id, data); err != nil {
		s.requestLogger(r).Error("Failed to write socket", "error", err, "id", id)
		s.sendDriverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSocketRead returns whatever the socket has buffered
func (s *Server) handleSocketRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	n, err := s.Modem.SocketAvailable(r.Context(), id)
	if err != nil {
		s.requestLogger(r).Error("Failed to query socket", "error", err, "id", id)
		s.sendDriverError(w, err)
		return
	}
	if n == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	data, err := s.Modem.ReadSocket(r.Context(), id, n)
	if err != nil {
		s.requestLogger(r).Error("Failed to read socket", "error", err, "id", id)
		s.sendDriverError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// handleSocketClose closes a socket
func (s *Server) handleSocketClose(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.Modem.CloseSocket(r.Context(), id); err != nil {
		s.requestLogger(r).Error("Failed to close socket", "error", err, "id", id)
		s.sendDriverError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
