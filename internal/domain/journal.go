package domain

import "context"

// DecisionJournal keeps an operator-visible record of pending requests and their resolution.
// It is written best effort and is never consulted to decide whether a request is pending.
type DecisionJournal interface {
	RecordPending(ctx context.Context, req PendingRequest) error
	RecordResolution(ctx context.Context, outcome DecisionOutcome) error
	// ForgetPending drops the mirror of a request whose connection closed before a decision.
	ForgetPending(ctx context.Context, id ConnectionID) error
}
