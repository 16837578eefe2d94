package domain

import (
	"context"
	"time"
)

// MembershipEventType names a membership transition.
type MembershipEventType string

const (
	MembershipRequested MembershipEventType = "requested"
	MembershipJoined    MembershipEventType = "joined"
	MembershipRejected  MembershipEventType = "rejected"
	MembershipExpired   MembershipEventType = "expired"
	MembershipLeft      MembershipEventType = "left"
)

// MembershipEvent is published for external observers of the room.
type MembershipEvent struct {
	Type         MembershipEventType `json:"type"`
	ConnectionID ConnectionID        `json:"connection_id"`
	DisplayName  string              `json:"display_name"`
	InstanceID   string              `json:"instance_id"`
	OccurredAt   time.Time           `json:"occurred_at"`
}

// MembershipPublisher exports membership transitions. Failures are logged by the caller.
type MembershipPublisher interface {
	PublishMembership(ctx context.Context, event MembershipEvent) error
}
