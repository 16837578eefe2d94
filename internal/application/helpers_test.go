package application

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/mocks"
)

type relayFixture struct {
	cfg      *mocks.MockConfigProvider
	logger   *mocks.MockLogger
	notifier *mocks.MockNotifier
	journal  *mocks.MockDecisionJournal
	events   *mocks.MockMembershipPublisher

	registry *ConnectionRegistry
	router   *BroadcastRouter
	workflow *ApprovalWorkflow
	manager  *ConnectionManager
}

func newRelayFixture(t testing.TB) *relayFixture {
	t.Helper()
	f := &relayFixture{
		cfg:      mocks.NewMockConfigProvider(),
		logger:   mocks.NewMockLogger(),
		notifier: mocks.NewMockNotifier(),
		journal:  mocks.NewMockDecisionJournal(),
		events:   mocks.NewMockMembershipPublisher(),
	}
	f.registry = NewConnectionRegistry(f.logger)
	f.router = NewBroadcastRouter(f.logger, f.cfg, f.registry)
	f.workflow = NewApprovalWorkflow(f.logger, f.cfg, f.registry, f.router, NewDecisionLinkBuilder(f.cfg), f.notifier, f.journal, f.events)
	f.manager = NewConnectionManager(f.logger, f.cfg, f.registry, f.workflow, f.router, f.events)
	return f
}

// open accepts a new mock transport.
func (f *relayFixture) open() (domain.ConnectionID, *mocks.MockConnection) {
	conn := mocks.NewMockConnection("127.0.0.1:0")
	return f.manager.Open(conn), conn
}

// send delivers a structured frame as the client would.
func (f *relayFixture) send(t testing.TB, id domain.ConnectionID, frame domain.InboundFrame) error {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	return f.manager.HandleText(context.Background(), id, raw)
}

// member opens a connection and takes it through the approval flow, then clears its frames.
func (f *relayFixture) member(t testing.TB, name string) (domain.ConnectionID, *mocks.MockConnection) {
	t.Helper()
	id, conn := f.open()
	require.NoError(t, f.send(t, id, domain.InboundFrame{Type: domain.FrameTypeJoinRequest, Name: name}))
	_, err := f.workflow.Decide(context.Background(), id, domain.DecisionAccept)
	require.NoError(t, err)
	conn.Reset()
	return id, conn
}

// members creates n approved members named user-0..user-n-1.
func (f *relayFixture) members(t testing.TB, n int) []*mocks.MockConnection {
	t.Helper()
	conns := make([]*mocks.MockConnection, 0, n)
	for i := 0; i < n; i++ {
		_, conn := f.member(t, fmt.Sprintf("user-%d", i))
		conns = append(conns, conn)
	}
	for _, c := range conns {
		c.Reset()
	}
	return conns
}
