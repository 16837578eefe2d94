package websocket

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/application"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/contextkeys"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/safego"
)

// Handler upgrades HTTP requests to WebSocket connections and runs their read loops.
type Handler struct {
	logger         domain.Logger
	configProvider config.Provider
	connManager    *application.ConnectionManager

	mu   sync.Mutex
	live map[*Connection]struct{} // every open transport, including rejected ones no longer registered
}

// NewHandler creates a new WebSocket Handler.
func NewHandler(logger domain.Logger, cfgProvider config.Provider, connManager *application.ConnectionManager) *Handler {
	return &Handler{
		logger:         logger,
		configProvider: cfgProvider,
		connManager:    connManager,
		live:           make(map[*Connection]struct{}),
	}
}

// ServeHTTP upgrades the request and blocks until the connection ends.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg := h.configProvider.Get()
	opts := &websocket.AcceptOptions{
		OriginPatterns: cfg.Server.AllowedOrigins,
	}
	c, err := websocket.Accept(w, r, opts)
	if err != nil {
		h.logger.Warn(r.Context(), "WebSocket upgrade failed", "remote_addr", r.RemoteAddr, "error", err.Error())
		return
	}
	if limit := cfg.Relay.MaxMessageBytes; limit > 0 {
		// Leave headroom so the relay, not the library, classifies oversized frames.
		c.SetReadLimit(int64(limit) * 2)
	}

	baseCtx := context.WithValue(context.WithoutCancel(r.Context()), contextkeys.RemoteAddrKey, r.RemoteAddr)
	connCtx, cancel := context.WithCancel(baseCtx)
	conn := NewConnection(connCtx, cancel, c, r.RemoteAddr, h.logger, h.configProvider)

	id := h.connManager.Open(conn)
	conn.Start(id)
	h.track(conn)

	defer func() {
		h.connManager.Close(conn.Context(), id)
		if err := conn.Close(websocket.StatusNormalClosure, "connection ended"); err != nil {
			h.logger.Debug(conn.Context(), "WebSocket close returned error", "error", err.Error())
		}
		h.untrack(conn)
	}()

	h.readLoop(conn)
}

func (h *Handler) readLoop(conn *Connection) {
	ctx := conn.Context()
	for {
		msgType, payload, err := conn.ReadMessage(ctx)
		if err != nil {
			h.logReadError(ctx, err)
			return
		}

		switch msgType {
		case websocket.MessageText:
			err = h.connManager.HandleText(ctx, conn.ID(), payload)
		default:
			err = h.connManager.HandleBinary(ctx, conn.ID())
		}
		if err != nil {
			h.logger.Debug(ctx, "Inbound frame had no effect", "error", err.Error())
		}
	}
}

func (h *Handler) logReadError(ctx context.Context, err error) {
	status := websocket.CloseStatus(err)
	switch {
	case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
		h.logger.Info(ctx, "WebSocket connection closed by peer", "status_code", int(status))
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		h.logger.Info(ctx, "WebSocket connection context cancelled, ending read loop")
	case status == -1:
		h.logger.Info(ctx, "WebSocket connection dropped", "error", err.Error())
	default:
		h.logger.Warn(ctx, "Error reading from WebSocket", "error", err.Error(), "status_code", int(status))
	}
}

func (h *Handler) track(conn *Connection) {
	h.mu.Lock()
	h.live[conn] = struct{}{}
	h.mu.Unlock()
}

func (h *Handler) untrack(conn *Connection) {
	h.mu.Lock()
	delete(h.live, conn)
	h.mu.Unlock()
}

// LiveConnections returns the number of open transports.
func (h *Handler) LiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// CloseAll closes every open transport with statusCode; used on shutdown.
func (h *Handler) CloseAll(ctx context.Context, statusCode websocket.StatusCode, reason string) int {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.live))
	for conn := range h.live {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	var wg sync.WaitGroup
	for _, conn := range conns {
		c := conn
		wg.Add(1)
		safego.Execute(ctx, h.logger, "WebSocketShutdownClose", func() {
			defer wg.Done()
			if err := c.Close(statusCode, reason); err != nil {
				h.logger.Debug(ctx, "Error closing connection during shutdown", "remote_addr", c.RemoteAddr(), "error", err.Error())
			}
		})
	}
	wg.Wait()
	h.logger.Info(ctx, "Closed all WebSocket connections", "count", len(conns), "status_code", int(statusCode))
	return len(conns)
}
