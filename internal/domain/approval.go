package domain

import (
	"context"
	"strings"
	"time"
)

// DecisionAction is the operator's verdict on a pending join request.
type DecisionAction string

const (
	DecisionAccept DecisionAction = "ACCEPT"
	DecisionReject DecisionAction = "REJECT"
)

// ParseDecisionAction accepts the action query value case-insensitively.
func ParseDecisionAction(s string) (DecisionAction, bool) {
	switch DecisionAction(strings.ToUpper(strings.TrimSpace(s))) {
	case DecisionAccept:
		return DecisionAccept, true
	case DecisionReject:
		return DecisionReject, true
	default:
		return "", false
	}
}

// PendingRequest is one outstanding approval ask. At most one exists per connection.
type PendingRequest struct {
	ConnectionID  ConnectionID `json:"connection_id"`
	RequesterName string       `json:"requester_name"`
	CreatedAt     time.Time    `json:"created_at"`
}

// LinkPair holds the single-use decision links issued for a pending request.
type LinkPair struct {
	Accept string `json:"accept"`
	Reject string `json:"reject"`
}

// ResolutionSource records who resolved a pending request.
type ResolutionSource string

const (
	ResolvedByOperator ResolutionSource = "operator"
	ResolvedByExpiry   ResolutionSource = "expiry"
)

// DecisionOutcome is the result of applying a decision to a pending request.
type DecisionOutcome struct {
	ConnectionID ConnectionID     `json:"connection_id"`
	DisplayName  string           `json:"display_name"`
	Action       DecisionAction   `json:"action"`
	Source       ResolutionSource `json:"source"`
	ResolvedAt   time.Time        `json:"resolved_at"`
	// Delivered is false when the status frame could not be queued to the requester.
	Delivered bool `json:"delivered"`
}

// ApprovalNotice is everything the operator needs to resolve a request out of band.
type ApprovalNotice struct {
	OperatorContact string
	RequesterName   string
	ConnectionID    ConnectionID
	Links           LinkPair
	RequestedAt     time.Time
}

// ApprovalNotifier delivers the one-time approval notice for a pending request.
// Delivery is best effort; a returned error is logged and never blocks the relay.
type ApprovalNotifier interface {
	NotifyApprovalRequest(ctx context.Context, notice ApprovalNotice) error
}
