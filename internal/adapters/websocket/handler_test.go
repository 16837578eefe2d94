package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/application"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/mocks"
)

type relayServer struct {
	server   *httptest.Server
	handler  *Handler
	workflow *application.ApprovalWorkflow
	notifier *mocks.MockNotifier
}

func newRelayServer(t *testing.T) *relayServer {
	t.Helper()
	cfg := mocks.NewMockConfigProvider()
	logger := mocks.NewMockLogger()
	notifier := mocks.NewMockNotifier()

	registry := application.NewConnectionRegistry(logger)
	router := application.NewBroadcastRouter(logger, cfg, registry)
	workflow := application.NewApprovalWorkflow(logger, cfg, registry, router, application.NewDecisionLinkBuilder(cfg), notifier, nil, nil)
	manager := application.NewConnectionManager(logger, cfg, registry, workflow, router, nil)
	handler := NewHandler(logger, cfg, manager)

	mux := http.NewServeMux()
	NewRouter(logger, handler).RegisterRoutes(context.Background(), mux)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &relayServer{server: server, handler: handler, workflow: workflow, notifier: notifier}
}

func (s *relayServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(s.server.URL, "http") + WebSocketPath
	c, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.CloseNow() })
	return c
}

// join sends a join request as name, approves it and consumes the approval frame.
func (s *relayServer) join(t *testing.T, c *websocket.Conn, name string) {
	t.Helper()
	send(t, c, map[string]string{"type": domain.FrameTypeJoinRequest, "name": name})

	var notice domain.ApprovalNotice
	select {
	case notice = <-s.notifier.Sent:
	case <-time.After(5 * time.Second):
		t.Fatalf("no approval notice for %s", name)
	}
	require.Equal(t, name, notice.RequesterName)

	_, err := s.workflow.Decide(context.Background(), notice.ConnectionID, domain.DecisionAccept)
	require.NoError(t, err)

	frame := read(t, c)
	require.Equal(t, domain.FrameTypeApprovalStatus, frame["type"])
	require.Equal(t, domain.ApprovalStatusApproved, frame["status"])
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, wsjson.Write(ctx, c, v))
}

func read(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var frame map[string]any
	require.NoError(t, wsjson.Read(ctx, c, &frame))
	return frame
}

func TestHandler_GatedRelayEndToEnd(t *testing.T) {
	s := newRelayServer(t)

	alice := s.dial(t)
	s.join(t, alice, "Alice")

	bob := s.dial(t)
	s.join(t, bob, "Bob")

	joined := read(t, alice)
	assert.Equal(t, domain.FrameTypeSystem, joined["type"])
	assert.Equal(t, "Bob joined the chat.", joined["message"])

	send(t, bob, map[string]string{"type": domain.FrameTypeChat, "message": "hi"})
	for _, c := range []*websocket.Conn{alice, bob} {
		chat := read(t, c)
		assert.Equal(t, domain.FrameTypeChat, chat["type"])
		assert.Equal(t, "Bob", chat["sender"])
		assert.Equal(t, "hi", chat["message"])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, alice.Write(ctx, websocket.MessageText, []byte("plain text")))
	raw := read(t, bob)
	assert.Equal(t, "Alice", raw["sender"])
	assert.Equal(t, "plain text", raw["message"])
	_ = read(t, alice)

	require.NoError(t, bob.Close(websocket.StatusNormalClosure, "bye"))
	left := read(t, alice)
	assert.Equal(t, domain.FrameTypeSystem, left["type"])
	assert.Equal(t, "Bob left the chat.", left["message"])
}

func TestHandler_PendingConnectionReceivesNothing(t *testing.T) {
	s := newRelayServer(t)

	alice := s.dial(t)
	s.join(t, alice, "Alice")

	eve := s.dial(t)
	send(t, eve, map[string]string{"type": domain.FrameTypeJoinRequest, "name": "Eve"})
	<-s.notifier.Sent

	send(t, alice, map[string]string{"type": domain.FrameTypeChat, "message": "secret"})
	_ = read(t, alice)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var frame map[string]any
	err := wsjson.Read(ctx, eve, &frame)
	assert.Error(t, err, "pending connection must not receive chat")
}

func TestHandler_CloseAllSendsGoingAway(t *testing.T) {
	s := newRelayServer(t)
	c := s.dial(t)

	require.Eventually(t, func() bool { return s.handler.LiveConnections() == 1 }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, s.handler.CloseAll(context.Background(), domain.StatusGoingAway, "Server is shutting down"))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, err := c.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, domain.StatusGoingAway, websocket.CloseStatus(err))

	assert.Eventually(t, func() bool { return s.handler.LiveConnections() == 0 }, 5*time.Second, 10*time.Millisecond)
}
