// Package dashboard pushes job and schedule events to connected browsers over
// WebSocket.
//
// A nil *Hub is valid and drops every event, so callers can wire it
// unconditionally.
package dashboard

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
)

// MessageTypeHello is sent to each client right after it connects.
const MessageTypeHello = "hello"

// Message is the frame written to clients.
type Message struct {
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type Config struct {
	// Buffer is the size of the broadcast queue (default 100).
	Buffer int
	// WriteTimeout bounds each client write (default 5s).
	WriteTimeout time.Duration
	Logger       *log.Logger
	Now          func() time.Time
}

// Hub tracks WebSocket clients and fans out published events.
type Hub struct {
	clients   map[*websocket.Conn]bool
	clientsMu sync.RWMutex

	broadcast chan Message
	cfg       Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewHub starts the broadcast loop. Close stops it.
func NewHub(cfg Config) *Hub {
	if cfg.Buffer <= 0 {
		cfg.Buffer = 100
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan Message, cfg.Buffer),
		cfg:       cfg,
		ctx:       ctx,
		cancel:    cancel,
	}
	h.wg.Add(1)
	go h.broadcastLoop()
	return h
}

// Publish queues an event for every connected client. It never blocks: when
// the queue is full the event is dropped.
func (h *Hub) Publish(kind string, data any) {
	if h == nil {
		return
	}
	msg := Message{Type: kind, Timestamp: h.cfg.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			h.cfg.Logger.Printf("dashboard: marshal %s: %v", kind, err)
			return
		}
		msg.Data = raw
	}
	select {
	case h.broadcast <- msg:
	case <-h.ctx.Done():
	default:
		h.cfg.Logger.Printf("dashboard: queue full, dropping %s", kind)
	}
}

// ServeHTTP upgrades the request and registers the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h == nil {
		http.Error(w, "dashboard disabled", http.StatusNotFound)
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.cfg.Logger.Printf("dashboard: upgrade failed: %v", err)
		return
	}

	h.clientsMu.Lock()
	h.clients[conn] = true
	count := len(h.clients)
	h.clientsMu.Unlock()
	h.cfg.Logger.Printf("dashboard: client connected (total: %d)", count)

	hello, _ := json.Marshal(Message{Type: MessageTypeHello, Timestamp: h.cfg.Now()})
	ctx, cancel := context.WithTimeout(h.ctx, h.cfg.WriteTimeout)
	err = conn.Write(ctx, websocket.MessageText, hello)
	cancel()
	if err != nil {
		h.removeClient(conn)
		return
	}

	h.readLoop(conn)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	if h == nil {
		return 0
	}
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and stops the broadcast loop.
func (h *Hub) Close() {
	if h == nil {
		return
	}
	h.cancel()
	h.clientsMu.Lock()
	for conn := range h.clients {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
		delete(h.clients, conn)
	}
	h.clientsMu.Unlock()
	h.wg.Wait()
}

func (h *Hub) broadcastLoop() {
	defer h.wg.Done()
	for {
		select {
		case <-h.ctx.Done():
			return
		case msg := <-h.broadcast:
			data, err := json.Marshal(msg)
			if err != nil {
				h.cfg.Logger.Printf("dashboard: marshal message: %v", err)
				continue
			}

			h.clientsMu.RLock()
			clients := make([]*websocket.Conn, 0, len(h.clients))
			for conn := range h.clients {
				clients = append(clients, conn)
			}
			h.clientsMu.RUnlock()

			for _, conn := range clients {
				ctx, cancel := context.WithTimeout(h.ctx, h.cfg.WriteTimeout)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					h.cfg.Logger.Printf("dashboard: send failed: %v", err)
					h.removeClient(conn)
				}
			}
		}
	}
}

// readLoop holds the connection open until the client goes away. Client
// frames are ignored.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer h.removeClient(conn)
	for {
		if _, _, err := conn.Read(h.ctx); err != nil {
			return
		}
	}
}

func (h *Hub) removeClient(conn *websocket.Conn) {
	h.clientsMu.Lock()
	if _, ok := h.clients[conn]; !ok {
		h.clientsMu.Unlock()
		return
	}
	delete(h.clients, conn)
	count := len(h.clients)
	h.clientsMu.Unlock()

	_ = conn.Close(websocket.StatusNormalClosure, "")
	h.cfg.Logger.Printf("dashboard: client disconnected (total: %d)", count)
}
