package application

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/metrics"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

type connectionEntry struct {
	conn        domain.ManagedConnection
	state       domain.ConnectionState
	displayName string
	openedAt    time.Time
}

// ConnectionRegistry is the single owner of per-connection state.
// All mutations happen under mu; readers get snapshots so fan-out never holds the lock.
type ConnectionRegistry struct {
	logger domain.Logger

	mu       sync.RWMutex
	nextID   uint64
	entries  map[domain.ConnectionID]*connectionEntry
	approved int
}

// NewConnectionRegistry creates an empty registry.
func NewConnectionRegistry(logger domain.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		logger:  logger,
		entries: make(map[domain.ConnectionID]*connectionEntry),
	}
}

// Register stores a freshly accepted connection in StateUnauthenticated and returns its new id.
func (r *ConnectionRegistry) Register(conn domain.ManagedConnection) domain.ConnectionID {
	r.mu.Lock()
	r.nextID++
	id := domain.ConnectionID(r.nextID)
	r.entries[id] = &connectionEntry{
		conn:     conn,
		state:    domain.StateUnauthenticated,
		openedAt: time.Now(),
	}
	r.mu.Unlock()

	metrics.IncrementActiveConnections()
	r.logger.Info(conn.Context(), "Connection registered", "connection_id", id, "remote_addr", conn.RemoteAddr())
	return id
}

// State returns the state of id. Unknown ids report StateClosed and false.
func (r *ConnectionRegistry) State(id domain.ConnectionID) (domain.ConnectionState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return domain.StateClosed, false
	}
	return e.state, true
}

func validTransition(from, to domain.ConnectionState) bool {
	switch from {
	case domain.StateUnauthenticated:
		return to == domain.StatePendingApproval || to == domain.StateApproved || to == domain.StateClosed
	case domain.StatePendingApproval:
		return to == domain.StateApproved || to == domain.StateClosed
	case domain.StateApproved:
		return to == domain.StateClosed
	default:
		return false
	}
}

// SetState moves id to the given state if the lifecycle allows it.
// Moving to StateClosed removes the entry.
func (r *ConnectionRegistry) SetState(id domain.ConnectionID, to domain.ConnectionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("set state %s on %s: %w", to, id, ErrConnectionNotFound)
	}
	return r.applyLocked(id, e, to)
}

// TransitionState moves id from one state to another atomically.
// It fails with ErrInvalidTransition when the current state is not from.
func (r *ConnectionRegistry) TransitionState(id domain.ConnectionID, from, to domain.ConnectionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("transition %s -> %s on %s: %w", from, to, id, ErrConnectionNotFound)
	}
	if e.state != from {
		return fmt.Errorf("transition %s -> %s on %s (current %s): %w", from, to, id, e.state, ErrInvalidTransition)
	}
	return r.applyLocked(id, e, to)
}

func (r *ConnectionRegistry) applyLocked(id domain.ConnectionID, e *connectionEntry, to domain.ConnectionState) error {
	if !validTransition(e.state, to) {
		return fmt.Errorf("%s -> %s on %s: %w", e.state, to, id, ErrInvalidTransition)
	}
	if e.state == domain.StateApproved {
		r.approved--
	}
	if to == domain.StateApproved {
		r.approved++
	}
	if to == domain.StateClosed {
		delete(r.entries, id)
		metrics.DecrementActiveConnections()
	} else {
		e.state = to
	}
	metrics.SetApprovedMembers(r.approved)
	return nil
}

// SetDisplayName assigns the display name of id once.
func (r *ConnectionRegistry) SetDisplayName(id domain.ConnectionID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("set display name on %s: %w", id, ErrConnectionNotFound)
	}
	if e.displayName != "" {
		return fmt.Errorf("set display name on %s: %w", id, ErrDisplayNameAlreadySet)
	}
	e.displayName = name
	return nil
}

// DisplayName returns the display name of id, empty when none was assigned.
func (r *ConnectionRegistry) DisplayName(id domain.ConnectionID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return "", false
	}
	return e.displayName, true
}

// Connection returns the transport handle of id.
func (r *ConnectionRegistry) Connection(id domain.ConnectionID) (domain.ManagedConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.conn, true
}

// ApprovedMembers returns a snapshot of every approved connection ordered by id.
func (r *ConnectionRegistry) ApprovedMembers() []domain.ApprovedMember {
	r.mu.RLock()
	members := make([]domain.ApprovedMember, 0, r.approved)
	for id, e := range r.entries {
		if e.state == domain.StateApproved {
			members = append(members, domain.ApprovedMember{ConnectionID: id, DisplayName: e.displayName, Conn: e.conn})
		}
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool { return members[i].ConnectionID < members[j].ConnectionID })
	return members
}

// ApprovedCount returns the number of approved members.
func (r *ConnectionRegistry) ApprovedCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.approved
}

// Count returns the number of registered connections in any state.
func (r *ConnectionRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Unregister removes id and reports the state and name it had.
// It is idempotent; a second call returns ok=false.
func (r *ConnectionRegistry) Unregister(id domain.ConnectionID) (prev domain.ConnectionState, name string, ok bool) {
	r.mu.Lock()
	e, found := r.entries[id]
	if !found {
		r.mu.Unlock()
		return domain.StateClosed, "", false
	}
	prev, name = e.state, e.displayName
	if prev == domain.StateApproved {
		r.approved--
	}
	delete(r.entries, id)
	approved := r.approved
	r.mu.Unlock()

	metrics.DecrementActiveConnections()
	metrics.SetApprovedMembers(approved)
	r.logger.Info(e.conn.Context(), "Connection unregistered",
		"connection_id", id,
		"previous_state", prev.String(),
		"display_name", name,
		"lifetime", time.Since(e.openedAt).String(),
	)
	return prev, name, true
}
