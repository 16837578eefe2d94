package application

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/metrics"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

const (
	frameLabelRaw       = "raw"
	frameLabelMalformed = "malformed"
	frameLabelBinary    = "binary"
	frameLabelUnknown   = "unknown"
)

// frameLabel bounds the metric label set to the protocol's frame types.
func frameLabel(frameType string) string {
	switch frameType {
	case domain.FrameTypeJoin, domain.FrameTypeJoinRequest, domain.FrameTypeChat:
		return frameType
	default:
		return frameLabelUnknown
	}
}

// ConnectionManager drives the per-connection lifecycle: it registers accepted
// transports, routes inbound frames according to the connection's state and
// cleans up on close. Transport adapters call it from their read loops.
type ConnectionManager struct {
	logger         domain.Logger
	configProvider config.Provider
	registry       *ConnectionRegistry
	workflow       *ApprovalWorkflow
	router         *BroadcastRouter
	events         membershipEmitter
}

// NewConnectionManager creates a new ConnectionManager. publisher may be nil.
func NewConnectionManager(
	logger domain.Logger,
	configProvider config.Provider,
	registry *ConnectionRegistry,
	workflow *ApprovalWorkflow,
	router *BroadcastRouter,
	publisher domain.MembershipPublisher,
) *ConnectionManager {
	return &ConnectionManager{
		logger:         logger,
		configProvider: configProvider,
		registry:       registry,
		workflow:       workflow,
		router:         router,
		events: membershipEmitter{
			logger:     logger,
			publisher:  publisher,
			instanceID: func() string { return configProvider.Get().Server.InstanceID },
		},
	}
}

// Open registers a newly accepted transport in StateUnauthenticated.
func (cm *ConnectionManager) Open(conn domain.ManagedConnection) domain.ConnectionID {
	return cm.registry.Register(conn)
}

// HandleText processes one inbound text payload. The returned error classifies why a
// payload had no effect; the connection stays open in every case.
func (cm *ConnectionManager) HandleText(ctx context.Context, id domain.ConnectionID, payload []byte) error {
	state, ok := cm.registry.State(id)
	if !ok {
		cm.logger.Debug(ctx, "Frame received for connection no longer registered", "connection_id", id)
		return fmt.Errorf("frame from %s: %w", id, ErrConnectionNotFound)
	}

	cfg := cm.configProvider.Get()
	if limit := cfg.Relay.MaxMessageBytes; limit > 0 && len(payload) > limit {
		return cm.malformed(ctx, id, state, fmt.Errorf("payload of %d bytes exceeds %d", len(payload), limit))
	}
	if !utf8.Valid(payload) {
		return cm.malformed(ctx, id, state, errors.New("payload is not valid UTF-8"))
	}

	switch state {
	case domain.StateUnauthenticated, domain.StatePendingApproval:
		frame, err := decodeFrame(payload)
		if err != nil {
			return cm.malformed(ctx, id, state, err)
		}
		metrics.IncrementFramesReceived(frameLabel(frame.Type))
		if !frame.IsJoin() {
			cm.logger.Debug(ctx, "Ignoring frame not valid before approval", "connection_id", id, "state", state.String(), "frame_type", frame.Type)
			return fmt.Errorf("%s frame in state %s: %w", frame.Type, state, ErrFrameIgnored)
		}
		return cm.join(ctx, id, frame.Name)

	case domain.StateApproved:
		message, err := cm.chatText(payload, cfg.Relay.AllowRawChat)
		if err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				return cm.malformed(ctx, id, state, err)
			}
			cm.logger.Debug(ctx, "Ignoring frame from approved member", "connection_id", id, "reason", err.Error())
			return err
		}
		delivered, err := cm.router.BroadcastChat(ctx, id, message)
		if err != nil {
			return err
		}
		cm.logger.Debug(ctx, "Chat relayed", "connection_id", id, "delivered", delivered)
		return nil
	}
	return fmt.Errorf("frame in state %s: %w", state, ErrFrameIgnored)
}

// HandleBinary rejects a binary payload without changing state.
func (cm *ConnectionManager) HandleBinary(ctx context.Context, id domain.ConnectionID) error {
	state, ok := cm.registry.State(id)
	if !ok {
		return fmt.Errorf("frame from %s: %w", id, ErrConnectionNotFound)
	}
	metrics.IncrementFramesReceived(frameLabelBinary)
	return cm.malformed(ctx, id, state, errors.New("binary frames are not supported"))
}

// Close removes id from the relay. A pending request is cancelled and, if the
// connection was an approved member, the remaining members get a leave notice.
func (cm *ConnectionManager) Close(ctx context.Context, id domain.ConnectionID) {
	prev, name, ok := cm.registry.Unregister(id)
	cm.workflow.Cancel(ctx, id)
	if !ok || prev != domain.StateApproved {
		return
	}
	cm.router.BroadcastSystem(ctx, leftNotice(name))
	cm.events.emit(ctx, domain.MembershipLeft, id, name)
}

func (cm *ConnectionManager) join(ctx context.Context, id domain.ConnectionID, name string) error {
	var err error
	switch domain.ParseJoinPolicy(cm.configProvider.Get().Relay.JoinPolicy) {
	case domain.JoinPolicyOpen:
		err = cm.workflow.Admit(ctx, id, name)
	default:
		_, err = cm.workflow.Submit(ctx, id, name)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRequestAlreadyPending):
		cm.logger.Warn(ctx, "Duplicate join request ignored; existing request kept",
			"connection_id", id,
			"error_code", domain.ErrAlreadyPending,
		)
	case errors.Is(err, ErrInvalidDisplayName):
		cm.logger.Warn(ctx, "Join request with invalid display name dropped",
			"connection_id", id,
			"error_code", domain.ErrMalformedFrame,
			"error", err.Error(),
		)
	default:
		cm.logger.Warn(ctx, "Join request not accepted", "connection_id", id, "error", err.Error())
	}
	return err
}

func (cm *ConnectionManager) malformed(ctx context.Context, id domain.ConnectionID, state domain.ConnectionState, cause error) error {
	metrics.IncrementFramesDropped(frameLabelMalformed)
	cm.logger.Warn(ctx, "Malformed frame dropped",
		"connection_id", id,
		"state", state.String(),
		"error_code", domain.ErrMalformedFrame,
		"error", cause.Error(),
	)
	if errors.Is(cause, ErrMalformedFrame) {
		return cause
	}
	return fmt.Errorf("%w: %v", ErrMalformedFrame, cause)
}

// decodeFrame parses a structured client frame. A frame without a type is malformed.
func decodeFrame(payload []byte) (domain.InboundFrame, error) {
	var frame domain.InboundFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		return frame, fmt.Errorf("decode frame: %w", err)
	}
	if frame.Type == "" {
		return frame, errors.New("frame has no type")
	}
	return frame, nil
}

// chatText extracts the line an approved member wants relayed. Structured chat frames
// are always accepted; any other text is relayed verbatim when allowRaw is set.
func (cm *ConnectionManager) chatText(payload []byte, allowRaw bool) (string, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty chat line: %w", ErrFrameIgnored)
	}

	if trimmed[0] == '{' {
		frame, err := decodeFrame(trimmed)
		switch {
		case err == nil && frame.Type == domain.FrameTypeChat:
			metrics.IncrementFramesReceived(domain.FrameTypeChat)
			if strings.TrimSpace(frame.Message) == "" {
				return "", fmt.Errorf("empty chat message: %w", ErrFrameIgnored)
			}
			return frame.Message, nil
		case err == nil:
			metrics.IncrementFramesReceived(frameLabel(frame.Type))
			return "", fmt.Errorf("%s frame from approved member: %w", frame.Type, ErrFrameIgnored)
		case !allowRaw:
			return "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
		}
	} else if !allowRaw {
		return "", fmt.Errorf("%w: raw text chat is disabled", ErrMalformedFrame)
	}

	metrics.IncrementFramesReceived(frameLabelRaw)
	return string(payload), nil
}
