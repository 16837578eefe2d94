package application

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/safego"
)

func joinedNotice(name string) string {
	return fmt.Sprintf("%s joined the chat.", name)
}

func leftNotice(name string) string {
	return fmt.Sprintf("%s left the chat.", name)
}

// normalizeDisplayName trims name and checks it against maxLen runes. maxLen <= 0 means unlimited.
func normalizeDisplayName(name string, maxLen int) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty name: %w", ErrInvalidDisplayName)
	}
	if !utf8.ValidString(name) {
		return "", fmt.Errorf("name is not valid UTF-8: %w", ErrInvalidDisplayName)
	}
	if maxLen > 0 && utf8.RuneCountInString(name) > maxLen {
		return "", fmt.Errorf("name longer than %d characters: %w", maxLen, ErrInvalidDisplayName)
	}
	return name, nil
}

// membershipEmitter publishes membership events off the caller's goroutine.
type membershipEmitter struct {
	logger     domain.Logger
	publisher  domain.MembershipPublisher
	instanceID func() string
}

func (e membershipEmitter) emit(ctx context.Context, eventType domain.MembershipEventType, id domain.ConnectionID, name string) {
	if e.publisher == nil {
		return
	}
	event := domain.MembershipEvent{
		Type:         eventType,
		ConnectionID: id,
		DisplayName:  name,
		InstanceID:   e.instanceID(),
		OccurredAt:   time.Now().UTC(),
	}
	bg := context.WithoutCancel(ctx)
	safego.Execute(bg, e.logger, "MembershipPublish-"+string(eventType), func() {
		if err := e.publisher.PublishMembership(bg, event); err != nil {
			e.logger.Warn(bg, "Failed to publish membership event",
				"event_type", string(eventType),
				"connection_id", id,
				"error", err.Error(),
			)
		}
	})
}
