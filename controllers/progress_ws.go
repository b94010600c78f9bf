package controller

import (
	"sync"

	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"

	"mailblast/worker"
)

// ProgressHub fans dispatch and verification progress events out to
// connected WebSocket clients. It satisfies worker.ProgressNotifier so
// the engines stay unaware of the transport.
type ProgressHub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger *logrus.Logger
}

func NewProgressHub(logger *logrus.Logger) *ProgressHub {
	return &ProgressHub{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// Notify broadcasts the event to every connected client. Slow or dead
// connections are dropped rather than allowed to stall the send loop.
func (h *ProgressHub) Notify(event worker.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn := range h.conns {
		if err := conn.WriteJSON(event); err != nil {
			h.logger.WithError(err).Debug("dropping stale progress client")
			conn.Close()
			delete(h.conns, conn)
		}
	}
}

// Handle registers the connection and blocks until the client goes away.
// Incoming messages are read and discarded to service control frames.
func (h *ProgressHub) Handle(c *websocket.Conn) {
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.conns, c)
		h.mu.Unlock()
		c.Close()
	}()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			return
		}
	}
}
