// Package realtime exposes the push channel clients keep open to the service.
// Connections are accepted and tracked; nothing is pushed on them yet.
package realtime

import (
	"context"
	"sync"

	"github.com/labstack/echo/v4"
	"golang.org/x/net/websocket"

	"github.com/vissharm/ecommerce-app-user-service/internal/logging"
)

// Hub tracks open websocket connections.
type Hub struct {
	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	logger logging.Logger
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	return &Hub{
		conns:  make(map[*websocket.Conn]struct{}),
		logger: logger,
	}
}

// Handler upgrades the request and holds the connection until the client goes away.
func (h *Hub) Handler(c echo.Context) error {
	websocket.Handler(func(ws *websocket.Conn) {
		ctx := ws.Request().Context()
		h.add(ws)
		defer h.remove(ws)
		h.logger.Info(ctx, "realtime client connected", "remote_addr", ws.Request().RemoteAddr)

		var msg string
		for {
			if err := websocket.Message.Receive(ws, &msg); err != nil {
				return
			}
		}
	}).ServeHTTP(c.Response(), c.Request())
	return nil
}

// Count returns the number of open connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Close drops every open connection.
func (h *Hub) Close(ctx context.Context) {
	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for ws := range h.conns {
		conns = append(conns, ws)
	}
	h.mu.Unlock()

	for _, ws := range conns {
		_ = ws.Close()
	}
	if len(conns) > 0 {
		h.logger.Info(ctx, "realtime connections closed", "count", len(conns))
	}
}

func (h *Hub) add(ws *websocket.Conn) {
	h.mu.Lock()
	h.conns[ws] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, ws)
	h.mu.Unlock()
	_ = ws.Close()
}
