package mocks

import (
	"context"
	"sync"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

// MockNotifier implements domain.ApprovalNotifier.
type MockNotifier struct {
	mu      sync.Mutex
	notices []domain.ApprovalNotice
	Err     error

	// Sent receives each notice after it is recorded when non-nil.
	Sent chan domain.ApprovalNotice
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{Sent: make(chan domain.ApprovalNotice, 64)}
}

func (m *MockNotifier) NotifyApprovalRequest(ctx context.Context, notice domain.ApprovalNotice) error {
	m.mu.Lock()
	m.notices = append(m.notices, notice)
	err := m.Err
	m.mu.Unlock()
	if m.Sent != nil {
		select {
		case m.Sent <- notice:
		default:
		}
	}
	return err
}

// Notices returns every notice received so far.
func (m *MockNotifier) Notices() []domain.ApprovalNotice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.ApprovalNotice, len(m.notices))
	copy(out, m.notices)
	return out
}

// MockDecisionJournal implements domain.DecisionJournal in memory.
type MockDecisionJournal struct {
	mu          sync.Mutex
	Pending     map[domain.ConnectionID]domain.PendingRequest
	Resolutions []domain.DecisionOutcome
	Forgotten   []domain.ConnectionID
}

func NewMockDecisionJournal() *MockDecisionJournal {
	return &MockDecisionJournal{Pending: make(map[domain.ConnectionID]domain.PendingRequest)}
}

func (m *MockDecisionJournal) RecordPending(ctx context.Context, req domain.PendingRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Pending[req.ConnectionID] = req
	return nil
}

func (m *MockDecisionJournal) RecordResolution(ctx context.Context, outcome domain.DecisionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Pending, outcome.ConnectionID)
	m.Resolutions = append(m.Resolutions, outcome)
	return nil
}

func (m *MockDecisionJournal) ForgetPending(ctx context.Context, id domain.ConnectionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Pending, id)
	m.Forgotten = append(m.Forgotten, id)
	return nil
}

// ResolutionCount returns the number of resolutions recorded.
func (m *MockDecisionJournal) ResolutionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Resolutions)
}

// MockMembershipPublisher implements domain.MembershipPublisher in memory.
type MockMembershipPublisher struct {
	mu     sync.Mutex
	events []domain.MembershipEvent
}

func NewMockMembershipPublisher() *MockMembershipPublisher {
	return &MockMembershipPublisher{}
}

func (m *MockMembershipPublisher) PublishMembership(ctx context.Context, event domain.MembershipEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

// EventTypes returns the types of every published event in order.
func (m *MockMembershipPublisher) EventTypes() []domain.MembershipEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.MembershipEventType, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}
