package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/metrics"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/contextkeys"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/safego"
)

const (
	backpressurePolicyDropOldest = "drop_oldest"
	backpressurePolicyDropNewest = "drop_newest"
	backpressurePolicyBlock      = "block" // waits at most the write timeout, then drops the new frame

	defaultBufferSize   = 64
	defaultWriteTimeout = 10 * time.Second
)

// ErrConnectionClosed is returned by WriteJSON after Close.
var ErrConnectionClosed = errors.New("websocket connection closed")

// ErrSendBufferFull is returned when a frame is dropped by the backpressure policy.
var ErrSendBufferFull = errors.New("websocket send buffer full")

// Connection wraps a websocket.Conn with a bounded outbound buffer drained by a
// single writer goroutine, so callers never block on a slow peer.
type Connection struct {
	wsConn       *websocket.Conn
	logger       domain.Logger
	connCtx      context.Context    // cancelled when the connection is done for any reason
	cancel       context.CancelFunc // cancels connCtx
	remoteAddr   string
	id           domain.ConnectionID
	writeTimeout time.Duration
	pingInterval time.Duration
	pongWait     time.Duration
	dropPolicy   string

	queueMu       sync.Mutex // guards closed and sends on messageBuffer
	closed        bool
	messageBuffer chan []byte

	writeCtx     context.Context // bounds in-flight writes; cancelled when a close drain times out
	cancelWrites context.CancelFunc
	workers      sync.WaitGroup
	closeOnce    sync.Once
	closeErr     error
}

// NewConnection wraps an accepted websocket. Call Start once the connection has an id.
func NewConnection(
	connCtx context.Context,
	cancel context.CancelFunc,
	wsConn *websocket.Conn,
	remoteAddr string,
	logger domain.Logger,
	cfgProvider config.Provider,
) *Connection {
	appCfg := cfgProvider.Get().App
	bufferCap := appCfg.WebsocketMessageBufferSize
	if bufferCap <= 0 {
		bufferCap = defaultBufferSize
		logger.Warn(connCtx, "WebsocketMessageBufferSize not configured or invalid, using default", "default_size", bufferCap)
	}
	dropPolicy := strings.ToLower(appCfg.WebsocketBackpressureDropPolicy)
	switch dropPolicy {
	case backpressurePolicyDropOldest, backpressurePolicyDropNewest, backpressurePolicyBlock:
	default:
		logger.Warn(connCtx, "Invalid WebsocketBackpressureDropPolicy, defaulting to drop_oldest", "configured_policy", appCfg.WebsocketBackpressureDropPolicy)
		dropPolicy = backpressurePolicyDropOldest
	}
	writeTimeout := time.Duration(appCfg.WriteTimeoutSeconds) * time.Second
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}

	writeCtx, cancelWrites := context.WithCancel(context.Background())
	return &Connection{
		wsConn:        wsConn,
		logger:        logger,
		connCtx:       connCtx,
		cancel:        cancel,
		remoteAddr:    remoteAddr,
		writeTimeout:  writeTimeout,
		pingInterval:  time.Duration(appCfg.PingIntervalSeconds) * time.Second,
		pongWait:      time.Duration(appCfg.PongWaitSeconds) * time.Second,
		dropPolicy:    dropPolicy,
		messageBuffer: make(chan []byte, bufferCap),
		writeCtx:      writeCtx,
		cancelWrites:  cancelWrites,
	}
}

// Start binds the registry id for logging and starts the writer and pinger goroutines.
func (c *Connection) Start(id domain.ConnectionID) {
	c.id = id
	c.connCtx = context.WithValue(c.connCtx, contextkeys.ConnectionIDKey, id)

	c.workers.Add(1)
	safego.Execute(c.connCtx, c.logger, fmt.Sprintf("WebSocketWriter-%s", id), func() {
		defer c.workers.Done()
		c.runWriter()
	})

	if c.pingInterval <= 0 {
		c.logger.Warn(c.connCtx, "Ping interval is not configured, server-initiated pings disabled")
		return
	}
	safego.Execute(c.connCtx, c.logger, fmt.Sprintf("WebSocketPinger-%s", id), c.runPinger)
}

func (c *Connection) runWriter() {
	for {
		select {
		case <-c.connCtx.Done():
			return
		case msg, ok := <-c.messageBuffer:
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(c.writeCtx, c.writeTimeout)
			err := c.wsConn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
					c.logger.Info(c.connCtx, "WebSocket write timed out, treating peer as gone", "error", err.Error())
				} else {
					c.logger.Warn(c.connCtx, "Failed to write frame to WebSocket", "error", err.Error())
				}
				c.cancel()
				return
			}
		}
	}
}

// runPinger pings the peer every interval and cancels the connection when a pong
// does not arrive within the pong wait. Ping requires the read loop to be running.
func (c *Connection) runPinger() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	pongWait := c.pongWait
	if pongWait <= 0 {
		pongWait = c.pingInterval
	}

	for {
		select {
		case <-c.connCtx.Done():
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(c.connCtx, pongWait)
			err := c.wsConn.Ping(ctx)
			cancel()
			if err != nil {
				if c.connCtx.Err() == nil {
					c.logger.Warn(c.connCtx, "Pong not received in time, closing connection", "pong_wait", pongWait.String(), "error", err.Error())
					c.cancel()
				}
				return
			}
			c.logger.Debug(c.connCtx, "Ping acknowledged")
		}
	}
}

// WriteJSON encodes v and queues it for the writer. It never blocks longer than the
// write timeout; a full buffer is resolved by the configured backpressure policy.
func (c *Connection) WriteJSON(v interface{}) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	frameType := "unknown"
	if f, ok := v.(domain.Frame); ok {
		frameType = f.Kind()
	}

	c.queueMu.Lock()
	defer c.queueMu.Unlock()
	if c.closed || c.connCtx.Err() != nil {
		return ErrConnectionClosed
	}

	select {
	case c.messageBuffer <- msg:
		return nil
	default:
	}

	switch c.dropPolicy {
	case backpressurePolicyDropOldest:
		select {
		case <-c.messageBuffer:
			metrics.IncrementFramesDropped("buffer_full_dropped_oldest")
		default:
		}
		select {
		case c.messageBuffer <- msg:
			c.logger.Debug(c.connCtx, "Dropped oldest queued frame for slow peer", "frame_type", frameType)
			return nil
		default:
		}
	case backpressurePolicyBlock:
		timer := time.NewTimer(c.writeTimeout)
		defer timer.Stop()
		select {
		case c.messageBuffer <- msg:
			return nil
		case <-timer.C:
		case <-c.connCtx.Done():
			return ErrConnectionClosed
		}
	}

	metrics.IncrementFramesDropped("buffer_full_dropped_newest")
	c.logger.Warn(c.connCtx, "WebSocket send buffer is full, frame dropped", "frame_type", frameType, "policy", c.dropPolicy)
	return ErrSendBufferFull
}

// Close stops accepting frames, lets the writer flush what is queued for at most the
// write timeout, then closes the websocket with statusCode. It is safe to call repeatedly.
func (c *Connection) Close(statusCode websocket.StatusCode, reason string) error {
	c.closeOnce.Do(func() {
		c.logger.Info(c.connCtx, "Closing WebSocket connection", "status_code", int(statusCode), "reason", reason)

		c.queueMu.Lock()
		c.closed = true
		close(c.messageBuffer)
		c.queueMu.Unlock()

		drainTimer := time.AfterFunc(c.writeTimeout, c.cancelWrites)
		c.workers.Wait()
		drainTimer.Stop()
		c.cancelWrites()

		c.closeErr = c.wsConn.Close(statusCode, reason)
		c.cancel()
	})
	return c.closeErr
}

// ReadMessage reads the next data message. Control frames are handled by the library.
func (c *Connection) ReadMessage(ctx context.Context) (websocket.MessageType, []byte, error) {
	return c.wsConn.Read(ctx)
}

func (c *Connection) Context() context.Context { return c.connCtx }

func (c *Connection) RemoteAddr() string { return c.remoteAddr }

// ID returns the registry id bound by Start.
func (c *Connection) ID() domain.ConnectionID { return c.id }
