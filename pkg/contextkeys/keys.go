package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// ConnectionIDKey carries the relay-assigned connection id of a WebSocket client.
	ConnectionIDKey contextKey = "connection_id"

	// DisplayNameKey carries the display name once a client has sent its join frame.
	DisplayNameKey contextKey = "display_name"

	// RemoteAddrKey carries the remote address of the client that opened the connection.
	RemoteAddrKey contextKey = "remote_addr"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
