package application

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/mocks"
)

func TestDecisionLinkBuilder_Links(t *testing.T) {
	cfg := mocks.NewMockConfigProvider()
	links := NewDecisionLinkBuilder(cfg).Links(42)

	assert.Equal(t, "http://relay.test/approve?action=ACCEPT&user_id=42", links.Accept)
	assert.Equal(t, "http://relay.test/approve?action=REJECT&user_id=42", links.Reject)

	cfg.Update(func(c *config.Config) { c.Server.PublicBaseURL = "https://chat.example.com/relay" })
	u, err := url.Parse(NewDecisionLinkBuilder(cfg).Links(7).Accept)
	require.NoError(t, err)
	assert.Equal(t, "/relay/approve", u.Path)
	assert.Equal(t, "7", u.Query().Get("user_id"))
	assert.Equal(t, "ACCEPT", u.Query().Get("action"))
}
