package domain

import "strconv"

// ConnectionID identifies one accepted transport connection. Ids are assigned at
// accept time from a monotonic counter and are never reused within a process.
type ConnectionID uint64

func (id ConnectionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ConnectionState is the lifecycle state of a connection.
type ConnectionState int

const (
	StateUnauthenticated ConnectionState = iota
	StatePendingApproval
	StateApproved
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StatePendingApproval:
		return "pending_approval"
	case StateApproved:
		return "approved"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ApprovedMember is a derived view of a connection currently in StateApproved.
type ApprovedMember struct {
	ConnectionID ConnectionID
	DisplayName  string
	Conn         ManagedConnection
}

// JoinPolicy selects how the Unauthenticated -> Approved edge is taken.
type JoinPolicy string

const (
	// JoinPolicyApproval routes every join through an operator decision.
	JoinPolicyApproval JoinPolicy = "approval"
	// JoinPolicyOpen approves a connection as soon as it sends its join frame.
	JoinPolicyOpen JoinPolicy = "open"
)

// ParseJoinPolicy falls back to JoinPolicyApproval for anything it does not recognise.
func ParseJoinPolicy(s string) JoinPolicy {
	if JoinPolicy(s) == JoinPolicyOpen {
		return JoinPolicyOpen
	}
	return JoinPolicyApproval
}
