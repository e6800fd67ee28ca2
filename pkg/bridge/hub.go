// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge re-broadcasts the raw telemetry stream to WebSocket
// clients. Clients receive binary messages holding consecutive stream
// bytes and can decode them as if they were reading the transport.
package bridge

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait            = 5 * time.Second
	defaultBuffer        = 64
	defaultFlushBytes    = 512
	defaultFlushInterval = 20 * time.Millisecond
)

// Options configures a Hub
type Options struct {
	// Username and Password enable HTTP basic auth when both are set
	Username string
	Password string
	// Buffer is the number of pending messages per client before the
	// client is dropped
	Buffer int
	// FlushBytes triggers an immediate broadcast once this many bytes
	// are pending
	FlushBytes int
	// FlushInterval is the broadcast period used by Run
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// Hub fans the stream out to every connected client. Write never blocks
// on a client: a client whose queue is full is disconnected.
type Hub struct {
	opts     Options
	log      *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[uuid.UUID]*client
	pending []byte
	closed  bool

	sent    atomic.Uint64
	dropped atomic.Uint64
}

type client struct {
	id     uuid.UUID
	remote string
	conn   *websocket.Conn
	send   chan []byte
}

// NewHub creates a hub
func NewHub(opts Options) *Hub {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.FlushBytes <= 0 {
		opts.FlushBytes = defaultFlushBytes
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Hub{
		opts:    opts,
		log:     log,
		clients: make(map[uuid.UUID]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// Write queues stream bytes for broadcast
func (h *Hub) Write(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return len(p), nil
	}
	h.pending = append(h.pending, p...)
	if len(h.pending) >= h.opts.FlushBytes {
		h.flushLocked()
	}
	return len(p), nil
}

// Flush broadcasts pending bytes now
func (h *Hub) Flush() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
}

// Run flushes on FlushInterval until ctx is done
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(h.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.Flush()
			return
		case <-ticker.C:
			h.Flush()
		}
	}
}

func (h *Hub) flushLocked() {
	if len(h.pending) == 0 {
		return
	}
	msg := h.pending
	h.pending = nil

	for id, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Warn("dropping slow bridge client", "client", id, "remote", c.remote)
			h.dropped.Add(1)
			h.removeLocked(id)
		}
	}
	h.sent.Add(uint64(len(msg)))
}

// ServeHTTP upgrades the request and registers the client
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="vescstat"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied
		h.log.Debug("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}

	c := &client{
		id:     uuid.New(),
		remote: r.RemoteAddr,
		conn:   conn,
		send:   make(chan []byte, h.opts.Buffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	h.mu.Unlock()

	h.log.Info("bridge client connected", "client", c.id, "remote", c.remote)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.opts.Username == "" || h.opts.Password == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.opts.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.opts.Password)) == 1
	return userOK && passOK
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			h.log.Debug("bridge write failed", "client", c.id, "err", err)
			h.remove(c.id)
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// readPump discards client messages and notices disconnects
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c.id)
			h.log.Info("bridge client disconnected", "client", c.id, "remote", c.remote)
			return
		}
	}
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
}

func (h *Hub) removeLocked(id uuid.UUID) {
	if c, ok := h.clients[id]; ok {
		close(c.send)
		delete(h.clients, id)
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Sent returns the number of stream bytes broadcast
func (h *Hub) Sent() uint64 {
	return h.sent.Load()
}

// Dropped returns the number of clients dropped for falling behind
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close disconnects every client. Later writes are discarded.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushLocked()
	h.closed = true
	for id := range h.clients {
		h.removeLocked(id)
	}
	return nil
}
