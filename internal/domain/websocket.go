package domain

import (
	"context"

	"github.com/coder/websocket"
)

// ManagedConnection is the part of a live WebSocket connection the application layer needs.
// WriteJSON must never block indefinitely: implementations queue into a bounded buffer
// and report a DeliveryFailure instead of stalling the caller.
type ManagedConnection interface {
	// Close attempts to close the WebSocket connection with a specified status code and reason.
	Close(statusCode websocket.StatusCode, reason string) error

	// WriteJSON sends a JSON-encoded frame to the client.
	WriteJSON(v interface{}) error

	// RemoteAddr returns the remote network address string of the client.
	RemoteAddr() string

	// Context returns the context associated with this specific connection.
	Context() context.Context
}
