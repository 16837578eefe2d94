package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

const defaultSubjectPrefix = "relay.membership"

// MembershipPublisherAdapter publishes membership events as JSON on core NATS.
type MembershipPublisherAdapter struct {
	nc          *nats.Conn
	logger      domain.Logger
	cfgProvider config.Provider
}

// NewMembershipPublisherAdapter connects to the configured NATS server. The returned
// cleanup drains the connection.
func NewMembershipPublisherAdapter(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*MembershipPublisherAdapter, func(), error) {
	appCfg := cfgProvider.Get()
	natsURL := appCfg.NATS.URL

	appLogger.Info(ctx, "Attempting to connect to NATS server", "url", natsURL)

	nc, err := nats.Connect(natsURL,
		nats.Name(fmt.Sprintf("%s-publisher-%s", appCfg.App.ServiceName, appCfg.Server.InstanceID)),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			appLogger.Error(ctx, "NATS error", "error", err.Error())
		}),
		nats.ClosedHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS connection closed")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			appLogger.Info(ctx, "NATS reconnected", "url", c.ConnectedUrl())
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			if err != nil {
				appLogger.Warn(ctx, "NATS disconnected", "error", err.Error())
			}
		}),
	)
	if err != nil {
		appLogger.Error(ctx, "Failed to connect to NATS", "url", natsURL, "error", err.Error())
		return nil, nil, fmt.Errorf("failed to connect to NATS at %s: %w", natsURL, err)
	}

	adapter := &MembershipPublisherAdapter{nc: nc, logger: appLogger, cfgProvider: cfgProvider}
	cleanup := func() {
		appLogger.Info(context.Background(), "Closing NATS connection...")
		adapter.Close()
	}
	return adapter, cleanup, nil
}

// PublishMembership publishes event on <prefix>.<type>.
func (a *MembershipPublisherAdapter) PublishMembership(ctx context.Context, event domain.MembershipEvent) error {
	payload, err := EncodeEvent(event)
	if err != nil {
		return err
	}
	subject := Subject(a.cfgProvider.Get().NATS.SubjectPrefix, event.Type)
	if err := a.nc.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish membership event on %s: %w", subject, err)
	}
	a.logger.Debug(ctx, "Published membership event", "subject", subject, "connection_id", event.ConnectionID)
	return nil
}

// Status reports the connection state for readiness checks.
func (a *MembershipPublisherAdapter) Status() nats.Status {
	return a.nc.Status()
}

// Close drains and closes the NATS connection.
func (a *MembershipPublisherAdapter) Close() {
	if a.nc != nil && !a.nc.IsClosed() {
		if err := a.nc.Drain(); err != nil {
			a.logger.Error(context.Background(), "Error draining NATS connection", "error", err.Error())
		}
	}
}

// Subject builds the subject for an event type, e.g. relay.membership.joined.
func Subject(prefix string, eventType domain.MembershipEventType) string {
	prefix = strings.Trim(prefix, ".")
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return prefix + "." + string(eventType)
}

// EncodeEvent marshals event, stamping OccurredAt when unset.
func EncodeEvent(event domain.MembershipEvent) ([]byte, error) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal membership event: %w", err)
	}
	return payload, nil
}
