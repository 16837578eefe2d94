package websocket

import (
	"context"
	"net/http"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/middleware"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

// WebSocketPath is the upgrade endpoint clients connect to.
const WebSocketPath = "/ws"

// Router registers the WebSocket endpoint on a mux.
type Router struct {
	logger    domain.Logger
	wsHandler http.Handler
}

// NewRouter creates a new WebSocket router.
func NewRouter(logger domain.Logger, wsHandler *Handler) *Router {
	return &Router{
		logger:    logger,
		wsHandler: wsHandler,
	}
}

// RegisterRoutes sets up GET /ws. Clients identify themselves with a join frame after
// the upgrade, so the endpoint carries no authentication middleware.
func (r *Router) RegisterRoutes(ctx context.Context, mux *http.ServeMux) {
	mux.Handle("GET "+WebSocketPath, middleware.RequestIDMiddleware(r.wsHandler))
	r.logger.Info(ctx, "WebSocket endpoint registered", "pattern", "GET "+WebSocketPath)
}
