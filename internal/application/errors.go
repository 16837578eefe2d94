package application

import "errors"

var (
	// ErrRequestAlreadyPending is returned when a connection submits a second join request.
	ErrRequestAlreadyPending = errors.New("join request already pending for connection")
	// ErrRequestNotFound is returned for decisions on unknown, closed or already resolved connections.
	ErrRequestNotFound = errors.New("no pending join request for connection")
	// ErrInvalidDecisionAction is returned for an action other than ACCEPT or REJECT.
	ErrInvalidDecisionAction = errors.New("invalid decision action")
	// ErrDisplayNameAlreadySet guards the immutability of a display name.
	ErrDisplayNameAlreadySet = errors.New("display name already set")
	// ErrConnectionNotFound is returned when an id is not in the registry.
	ErrConnectionNotFound = errors.New("connection not found")
	// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid connection state transition")
	// ErrMalformedFrame marks an inbound payload that could not be interpreted.
	ErrMalformedFrame = errors.New("malformed frame")
	// ErrInvalidDisplayName is returned for an empty or oversized display name.
	ErrInvalidDisplayName = errors.New("invalid display name")
	// ErrFrameIgnored marks a well formed frame that is not valid in the connection's current state.
	ErrFrameIgnored = errors.New("frame ignored in current state")
	// ErrSenderNotApproved is returned when a non-member tries to broadcast chat.
	ErrSenderNotApproved = errors.New("sender is not an approved member")
)
