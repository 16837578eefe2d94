package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/coder/websocket"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

// ErrMockWriteFailed is returned by a MockConnection configured to fail writes.
var ErrMockWriteFailed = errors.New("mock connection write failed")

// RecordedFrame is one frame written to a MockConnection, kept both raw and decoded.
type RecordedFrame struct {
	Raw     []byte
	Type    string
	Message string
	Sender  string
	Status  string
	Name    string
}

// MockConnection implements domain.ManagedConnection and records everything written to it.
type MockConnection struct {
	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	remoteAddr  string
	frames      []RecordedFrame
	failWrites  bool
	discard     bool
	closed      bool
	closeCode   websocket.StatusCode
	closeReason string
	closeCh     chan struct{}
}

// NewMockConnection creates a live mock connection.
func NewMockConnection(remoteAddr string) *MockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &MockConnection{
		ctx:        ctx,
		cancel:     cancel,
		remoteAddr: remoteAddr,
		closeCh:    make(chan struct{}),
	}
}

// FailWrites makes subsequent WriteJSON calls fail when set.
func (m *MockConnection) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// Discard stops recording frames while still encoding them; used by benchmarks.
func (m *MockConnection) Discard(discard bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discard = discard
}

func (m *MockConnection) WriteJSON(v interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrites || m.closed {
		return ErrMockWriteFailed
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if m.discard {
		return nil
	}
	var rf RecordedFrame
	if err := json.Unmarshal(raw, &rf); err != nil {
		return err
	}
	rf.Raw = raw
	m.frames = append(m.frames, rf)
	return nil
}

func (m *MockConnection) Close(statusCode websocket.StatusCode, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.closeCode = statusCode
	m.closeReason = reason
	m.cancel()
	close(m.closeCh)
	return nil
}

func (m *MockConnection) RemoteAddr() string { return m.remoteAddr }

func (m *MockConnection) Context() context.Context { return m.ctx }

// Frames returns a copy of every recorded frame.
func (m *MockConnection) Frames() []RecordedFrame {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecordedFrame, len(m.frames))
	copy(out, m.frames)
	return out
}

// FramesOfType returns the recorded frames whose type field equals frameType.
func (m *MockConnection) FramesOfType(frameType string) []RecordedFrame {
	var out []RecordedFrame
	for _, f := range m.Frames() {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

// SystemMessages returns the message text of every system frame received.
func (m *MockConnection) SystemMessages() []string {
	var out []string
	for _, f := range m.FramesOfType(domain.FrameTypeSystem) {
		out = append(out, f.Message)
	}
	return out
}

// Reset forgets recorded frames.
func (m *MockConnection) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = nil
}

// Closed reports whether Close was called and with which code.
func (m *MockConnection) Closed() (bool, websocket.StatusCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed, m.closeCode
}

// CloseCh is closed once Close has been called.
func (m *MockConnection) CloseCh() <-chan struct{} { return m.closeCh }
