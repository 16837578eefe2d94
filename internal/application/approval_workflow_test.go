package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

func TestApprovalWorkflow_SubmitNotifiesOperatorOnce(t *testing.T) {
	f := newRelayFixture(t)
	id, _ := f.open()

	links, err := f.workflow.Submit(context.Background(), id, "  Alice ")
	require.NoError(t, err)
	assert.Equal(t, "http://relay.test/approve?action=ACCEPT&user_id="+id.String(), links.Accept)
	assert.Equal(t, "http://relay.test/approve?action=REJECT&user_id="+id.String(), links.Reject)

	select {
	case notice := <-f.notifier.Sent:
		assert.Equal(t, "Alice", notice.RequesterName)
		assert.Equal(t, "operator@example.com", notice.OperatorContact)
		assert.Equal(t, links, notice.Links)
	case <-time.After(time.Second):
		t.Fatal("approval notice was not sent")
	}

	state, _ := f.registry.State(id)
	assert.Equal(t, domain.StatePendingApproval, state)
	pending := f.workflow.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "Alice", pending[0].RequesterName)
}

func TestApprovalWorkflow_SubmitTwiceKeepsFirstRequest(t *testing.T) {
	f := newRelayFixture(t)
	id, _ := f.open()

	_, err := f.workflow.Submit(context.Background(), id, "Alice")
	require.NoError(t, err)
	_, err = f.workflow.Submit(context.Background(), id, "Alicia")
	assert.ErrorIs(t, err, ErrRequestAlreadyPending)

	pending := f.workflow.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "Alice", pending[0].RequesterName)
	assert.Never(t, func() bool { return len(f.notifier.Notices()) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestApprovalWorkflow_SubmitRejectsInvalidNames(t *testing.T) {
	f := newRelayFixture(t)
	id, _ := f.open()

	_, err := f.workflow.Submit(context.Background(), id, "   ")
	assert.ErrorIs(t, err, ErrInvalidDisplayName)
	_, err = f.workflow.Submit(context.Background(), id, strings.Repeat("x", 33))
	assert.ErrorIs(t, err, ErrInvalidDisplayName)

	state, _ := f.registry.State(id)
	assert.Equal(t, domain.StateUnauthenticated, state)
	assert.Empty(t, f.workflow.Pending())
}

func TestApprovalWorkflow_AcceptThenReject(t *testing.T) {
	f := newRelayFixture(t)
	_, bob := f.member(t, "Bob")
	id, alice := f.open()
	_, err := f.workflow.Submit(context.Background(), id, "Alice")
	require.NoError(t, err)

	outcome, err := f.workflow.Decide(context.Background(), id, domain.DecisionAccept)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionAccept, outcome.Action)
	assert.Equal(t, domain.ResolvedByOperator, outcome.Source)
	assert.True(t, outcome.Delivered)

	_, err = f.workflow.Decide(context.Background(), id, domain.DecisionReject)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	statuses := alice.FramesOfType(domain.FrameTypeApprovalStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.ApprovalStatusApproved, statuses[0].Status)
	assert.Equal(t, "Alice", statuses[0].Name)
	assert.Empty(t, alice.SystemMessages(), "requester must not get its own joined notice")
	assert.Equal(t, []string{"Alice joined the chat."}, bob.SystemMessages())

	state, _ := f.registry.State(id)
	assert.Equal(t, domain.StateApproved, state)
	assert.Empty(t, f.workflow.Pending())
}

func TestApprovalWorkflow_RejectThenAccept(t *testing.T) {
	f := newRelayFixture(t)
	_, bob := f.member(t, "Bob")
	id, carol := f.open()
	_, err := f.workflow.Submit(context.Background(), id, "Carol")
	require.NoError(t, err)

	outcome, err := f.workflow.Decide(context.Background(), id, domain.DecisionReject)
	require.NoError(t, err)
	assert.Equal(t, domain.DecisionReject, outcome.Action)

	_, err = f.workflow.Decide(context.Background(), id, domain.DecisionAccept)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	statuses := carol.FramesOfType(domain.FrameTypeApprovalStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.ApprovalStatusRejected, statuses[0].Status)
	assert.Empty(t, bob.Frames(), "a rejection broadcasts nothing")

	_, ok := f.registry.State(id)
	assert.False(t, ok)
	closed, _ := carol.Closed()
	assert.False(t, closed, "transport stays open unless close_on_reject is set")
}

func TestApprovalWorkflow_CloseOnReject(t *testing.T) {
	f := newRelayFixture(t)
	f.cfg.Update(func(c *config.Config) { c.Relay.CloseOnReject = true })
	id, conn := f.open()
	_, err := f.workflow.Submit(context.Background(), id, "Mallory")
	require.NoError(t, err)

	_, err = f.workflow.Decide(context.Background(), id, domain.DecisionReject)
	require.NoError(t, err)

	select {
	case <-conn.CloseCh():
	case <-time.After(time.Second):
		t.Fatal("rejected connection was not closed")
	}
	_, code := conn.Closed()
	assert.Equal(t, websocket.StatusCode(4403), code)
}

func TestApprovalWorkflow_DecideErrors(t *testing.T) {
	f := newRelayFixture(t)
	id, _ := f.open()
	_, err := f.workflow.Submit(context.Background(), id, "Alice")
	require.NoError(t, err)

	_, err = f.workflow.Decide(context.Background(), id, domain.DecisionAction("MAYBE"))
	assert.ErrorIs(t, err, ErrInvalidDecisionAction)
	assert.Len(t, f.workflow.Pending(), 1, "an invalid action leaves the request pending")

	_, err = f.workflow.Decide(context.Background(), domain.ConnectionID(4242), domain.DecisionAccept)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestApprovalWorkflow_NotificationFailureKeepsRequestPending(t *testing.T) {
	f := newRelayFixture(t)
	f.notifier.Err = errors.New("smtp: connection refused")
	id, _ := f.open()

	_, err := f.workflow.Submit(context.Background(), id, "Alice")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return f.logger.HasEntry("ERROR", "Approval notification failed")
	}, time.Second, 10*time.Millisecond)
	state, _ := f.registry.State(id)
	assert.Equal(t, domain.StatePendingApproval, state)

	_, err = f.workflow.Decide(context.Background(), id, domain.DecisionAccept)
	assert.NoError(t, err, "operator can still resolve manually")
}

func TestApprovalWorkflow_CancelledRequestCannotBeDecided(t *testing.T) {
	f := newRelayFixture(t)
	id, _ := f.open()
	_, err := f.workflow.Submit(context.Background(), id, "Alice")
	require.NoError(t, err)

	f.manager.Close(context.Background(), id)

	assert.Empty(t, f.workflow.Pending())
	_, err = f.workflow.Decide(context.Background(), id, domain.DecisionAccept)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestApprovalWorkflow_ConcurrentDecisionsApplyOnce(t *testing.T) {
	f := newRelayFixture(t)
	id, conn := f.open()
	_, err := f.workflow.Submit(context.Background(), id, "Alice")
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan error, 8)
	for i := 0; i < 8; i++ {
		action := domain.DecisionAccept
		if i%2 == 1 {
			action = domain.DecisionReject
		}
		wg.Add(1)
		go func(a domain.DecisionAction) {
			defer wg.Done()
			_, err := f.workflow.Decide(context.Background(), id, a)
			results <- err
		}(action)
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrRequestNotFound)
	}
	assert.Equal(t, 1, succeeded)
	assert.Len(t, conn.FramesOfType(domain.FrameTypeApprovalStatus), 1)
}

func TestApprovalWorkflow_ExpireStale(t *testing.T) {
	f := newRelayFixture(t)
	f.cfg.Update(func(c *config.Config) { c.Approval.RequestTTLSeconds = 60 })
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	f.workflow.now = func() time.Time { return base }

	oldID, oldConn := f.open()
	_, err := f.workflow.Submit(context.Background(), oldID, "Old")
	require.NoError(t, err)

	f.workflow.now = func() time.Time { return base.Add(45 * time.Second) }
	freshID, _ := f.open()
	_, err = f.workflow.Submit(context.Background(), freshID, "Fresh")
	require.NoError(t, err)

	f.workflow.now = func() time.Time { return base.Add(90 * time.Second) }
	assert.Equal(t, 1, f.workflow.ExpireStale(context.Background()))

	pending := f.workflow.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, freshID, pending[0].ConnectionID)

	statuses := oldConn.FramesOfType(domain.FrameTypeApprovalStatus)
	require.Len(t, statuses, 1)
	assert.Equal(t, domain.ApprovalStatusRejected, statuses[0].Status)
	_, err = f.workflow.Decide(context.Background(), oldID, domain.DecisionAccept)
	assert.ErrorIs(t, err, ErrRequestNotFound)
}

func TestApprovalWorkflow_JournalAndEvents(t *testing.T) {
	f := newRelayFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	f.workflow.Start(ctx)
	t.Cleanup(func() {
		cancel()
		f.workflow.Wait()
	})

	acceptedID, _ := f.open()
	_, err := f.workflow.Submit(ctx, acceptedID, "Alice")
	require.NoError(t, err)
	rejectedID, _ := f.open()
	_, err = f.workflow.Submit(ctx, rejectedID, "Bob")
	require.NoError(t, err)

	_, err = f.workflow.Decide(ctx, acceptedID, domain.DecisionAccept)
	require.NoError(t, err)
	_, err = f.workflow.Decide(ctx, rejectedID, domain.DecisionReject)
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return f.journal.ResolutionCount() == 2 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		types := f.events.EventTypes()
		return containsEvent(types, domain.MembershipJoined) && containsEvent(types, domain.MembershipRejected)
	}, time.Second, 10*time.Millisecond)
}

func TestApprovalWorkflow_AdmitUnderOpenPolicy(t *testing.T) {
	f := newRelayFixture(t)
	_, bob := f.member(t, "Bob")
	id, dave := f.open()

	require.NoError(t, f.workflow.Admit(context.Background(), id, "Dave"))

	state, _ := f.registry.State(id)
	assert.Equal(t, domain.StateApproved, state)
	assert.Equal(t, []string{"Dave joined the chat."}, dave.SystemMessages())
	assert.Equal(t, []string{"Dave joined the chat."}, bob.SystemMessages())
	assert.Empty(t, f.workflow.Pending())

	assert.ErrorIs(t, f.workflow.Admit(context.Background(), id, "Dave"), ErrInvalidTransition)
}

func containsEvent(types []domain.MembershipEventType, want domain.MembershipEventType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}
