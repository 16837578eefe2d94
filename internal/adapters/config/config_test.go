package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewViperProvider_Defaults(t *testing.T) {
	t.Setenv("VIPER_CONFIG_PATH", t.TempDir())
	t.Setenv("RELAY_SERVER_INSTANCE_ID", "relay-test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := NewViperProvider(ctx, zap.NewNop())
	require.NoError(t, err)

	cfg := p.Get()
	assert.Equal(t, 3000, cfg.Server.HTTPPort)
	assert.Equal(t, "relay-test", cfg.Server.InstanceID)
	assert.Equal(t, "approval", cfg.Relay.JoinPolicy)
	assert.True(t, cfg.Relay.EchoToSender)
	assert.True(t, cfg.Relay.AllowRawChat)
	assert.Equal(t, 64, cfg.Relay.MaxNameLength)
	assert.Equal(t, "drop_oldest", cfg.App.WebsocketBackpressureDropPolicy)
}

func TestNewViperProvider_EnvOverrides(t *testing.T) {
	t.Setenv("VIPER_CONFIG_PATH", t.TempDir())
	t.Setenv("RELAY_SERVER_PUBLIC_BASE_URL", "https://chat.example.com/")
	t.Setenv("RELAY_RELAY_JOIN_POLICY", "open")
	t.Setenv("RELAY_RELAY_ECHO_TO_SENDER", "false")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p, err := NewViperProvider(ctx, zap.NewNop())
	require.NoError(t, err)

	cfg := p.Get()
	assert.Equal(t, "https://chat.example.com", cfg.Server.PublicBaseURL)
	assert.Equal(t, "open", cfg.Relay.JoinPolicy)
	assert.False(t, cfg.Relay.EchoToSender)
	assert.NotEmpty(t, cfg.Server.InstanceID)
}
