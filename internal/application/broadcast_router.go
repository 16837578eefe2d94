package application

import (
	"context"
	"fmt"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/metrics"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

// noExclusion is never a valid id; ids start at 1.
const noExclusion domain.ConnectionID = 0

// BroadcastRouter fans frames out to approved members.
// Membership is snapshotted per broadcast; a failed write to one member never stops the rest.
type BroadcastRouter struct {
	logger         domain.Logger
	configProvider config.Provider
	registry       *ConnectionRegistry
}

func NewBroadcastRouter(logger domain.Logger, configProvider config.Provider, registry *ConnectionRegistry) *BroadcastRouter {
	return &BroadcastRouter{
		logger:         logger,
		configProvider: configProvider,
		registry:       registry,
	}
}

// BroadcastSystem sends a system notice to every approved member and returns the delivered count.
func (r *BroadcastRouter) BroadcastSystem(ctx context.Context, message string) int {
	return r.fanOut(ctx, domain.NewSystemFrame(message), noExclusion)
}

// BroadcastSystemExcept sends a system notice to every approved member other than exclude.
func (r *BroadcastRouter) BroadcastSystemExcept(ctx context.Context, exclude domain.ConnectionID, message string) int {
	return r.fanOut(ctx, domain.NewSystemFrame(message), exclude)
}

// BroadcastChat relays a chat line from senderID tagged with the sender's display name.
// The sender receives its own line only when echo_to_sender is enabled.
func (r *BroadcastRouter) BroadcastChat(ctx context.Context, senderID domain.ConnectionID, message string) (int, error) {
	state, ok := r.registry.State(senderID)
	if !ok || state != domain.StateApproved {
		return 0, fmt.Errorf("broadcast chat from %s (state %s): %w", senderID, state, ErrSenderNotApproved)
	}
	name, _ := r.registry.DisplayName(senderID)

	exclude := noExclusion
	if !r.configProvider.Get().Relay.EchoToSender {
		exclude = senderID
	}
	return r.fanOut(ctx, domain.NewChatFrame(name, message), exclude), nil
}

// SendTo writes one frame to a single connection outside of the approved set.
func (r *BroadcastRouter) SendTo(ctx context.Context, id domain.ConnectionID, conn domain.ManagedConnection, frame domain.Frame) error {
	if err := conn.WriteJSON(frame); err != nil {
		metrics.IncrementDeliveryFailures()
		r.logger.Warn(ctx, "Direct frame delivery failed",
			"connection_id", id,
			"frame_type", frame.Kind(),
			"error_code", domain.ErrDeliveryFailure,
			"error", err.Error(),
		)
		return fmt.Errorf("send %s frame to %s: %w", frame.Kind(), id, err)
	}
	metrics.IncrementFramesSent(frame.Kind())
	return nil
}

func (r *BroadcastRouter) fanOut(ctx context.Context, frame domain.Frame, exclude domain.ConnectionID) int {
	members := r.registry.ApprovedMembers()
	delivered := 0
	for _, m := range members {
		if m.ConnectionID == exclude {
			continue
		}
		if err := m.Conn.WriteJSON(frame); err != nil {
			metrics.IncrementDeliveryFailures()
			r.logger.Warn(ctx, "Broadcast delivery failed; continuing with remaining members",
				"connection_id", m.ConnectionID,
				"frame_type", frame.Kind(),
				"error_code", domain.ErrDeliveryFailure,
				"error", err.Error(),
			)
			continue
		}
		metrics.IncrementFramesSent(frame.Kind())
		delivered++
	}
	r.logger.Debug(ctx, "Broadcast complete",
		"frame_type", frame.Kind(),
		"members", len(members),
		"delivered", delivered,
		"operation", "fanOut",
	)
	return delivered
}
