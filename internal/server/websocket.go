package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zeusync/autosave/internal/core/observability/log"
	"github.com/zeusync/autosave/internal/core/persistence/autosave"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const clientBuffer = 16

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// reportHub fans save reports out to websocket clients. New clients first
// receive the most recent reports.
type reportHub struct {
	mu           sync.Mutex
	clients      map[*client]struct{}
	history      [][]byte
	historySize  int
	closed       bool
	writeTimeout time.Duration
	logger       log.Log
}

func newReportHub(historySize int, writeTimeout time.Duration, logger log.Log) *reportHub {
	return &reportHub{
		clients:      make(map[*client]struct{}),
		historySize:  historySize,
		writeTimeout: writeTimeout,
		logger:       logger,
	}
}

// broadcast never blocks: a client whose buffer is full is disconnected.
func (h *reportHub) broadcast(report autosave.Report) {
	msg, err := json.Marshal(report)
	if err != nil {
		h.logger.Error("Failed to encode report", log.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.historySize > 0 {
		h.history = append(h.history, msg)
		if len(h.history) > h.historySize {
			h.history = h.history[len(h.history)-h.historySize:]
		}
	}

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Dropping slow monitor client",
				log.String("remote_addr", c.conn.RemoteAddr().String()))
			h.removeLocked(c)
		}
	}
}

func (h *reportHub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("Websocket upgrade failed", log.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, clientBuffer+h.historySize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""),
			time.Now().Add(h.writeTimeout))
		_ = conn.Close()
		return
	}
	for _, msg := range h.history {
		c.send <- msg
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Debug("Monitor client connected", log.String("remote_addr", conn.RemoteAddr().String()))

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and notices disconnects.
func (h *reportHub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		h.removeLocked(c)
		h.mu.Unlock()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *reportHub) writePump(c *client) {
	defer func() { _ = c.conn.Close() }()

	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(h.writeTimeout))
}

func (h *reportHub) removeLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// open lets clients connect again after closeAll.
func (h *reportHub) open() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = false
}

// closeAll disconnects every client and turns away new ones until open.
func (h *reportHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.removeLocked(c)
	}
}

func (h *reportHub) clientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
