package nats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		prefix string
		typ    domain.MembershipEventType
		want   string
	}{
		{prefix: "relay.membership", typ: domain.MembershipJoined, want: "relay.membership.joined"},
		{prefix: "chat.", typ: domain.MembershipLeft, want: "chat.left"},
		{prefix: "", typ: domain.MembershipRequested, want: "relay.membership.requested"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject(tt.prefix, tt.typ))
	}
}

func TestEncodeEvent(t *testing.T) {
	payload, err := EncodeEvent(domain.MembershipEvent{
		Type:         domain.MembershipRejected,
		ConnectionID: 12,
		DisplayName:  "Alice",
		InstanceID:   "relay-1",
	})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, "rejected", decoded["type"])
	assert.Equal(t, float64(12), decoded["connection_id"])
	assert.Equal(t, "Alice", decoded["display_name"])
	assert.Equal(t, "relay-1", decoded["instance_id"])

	occurred, err := time.Parse(time.RFC3339Nano, decoded["occurred_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), occurred, time.Minute)
}
