package mocks

import (
	"sync/atomic"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
)

// MockConfigProvider implements config.Provider with settings suited to tests.
type MockConfigProvider struct {
	config atomic.Pointer[config.Config]
}

// NewMockConfigProvider returns a provider with approval policy, echo on and raw chat allowed.
func NewMockConfigProvider() *MockConfigProvider {
	m := &MockConfigProvider{}
	m.config.Store(&config.Config{
		Server: config.ServerConfig{
			HTTPPort:      0,
			InstanceID:    "test-instance",
			PublicBaseURL: "http://relay.test",
		},
		Relay: config.RelayConfig{
			JoinPolicy:      "approval",
			EchoToSender:    true,
			CloseOnReject:   false,
			AllowRawChat:    true,
			MaxNameLength:   32,
			MaxMessageBytes: 4096,
		},
		Approval: config.ApprovalConfig{
			OperatorContact:      "operator@example.com",
			RequestTTLSeconds:    0,
			SweepIntervalSeconds: 1,
			NotifyTimeoutSeconds: 1,
		},
		SMTP: config.SMTPConfig{
			Port:      587,
			From:      "relay@example.com",
			TLSPolicy: "none",
		},
		Redis: config.RedisConfig{
			JournalTTLSeconds: 60,
		},
		NATS: config.NATSConfig{
			SubjectPrefix: "relay.membership",
		},
		Auth: config.AuthConfig{
			AdminAPIKey: "test-admin-key",
		},
		Log: config.LogConfig{
			Level: "error",
		},
		App: config.AppConfig{
			ServiceName:                     "gatekeeper-relay-test",
			Version:                         "test",
			PingIntervalSeconds:             5,
			PongWaitSeconds:                 10,
			WriteTimeoutSeconds:             2,
			ShutdownTimeoutSeconds:          1,
			WebsocketMessageBufferSize:      16,
			WebsocketBackpressureDropPolicy: "drop_oldest",
		},
	})
	return m
}

// Get implements config.Provider
func (m *MockConfigProvider) Get() *config.Config {
	return m.config.Load()
}

// Update applies fn to a copy of the current config and stores the result.
func (m *MockConfigProvider) Update(fn func(cfg *config.Config)) {
	next := *m.config.Load()
	fn(&next)
	m.config.Store(&next)
}
