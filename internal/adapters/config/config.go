package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "RELAY"

// ServerConfig holds listener and addressing configuration.
// Note: Fields should be exported (start with uppercase) to be unmarshalled by Viper.
type ServerConfig struct {
	HTTPPort      int    `mapstructure:"http_port"`
	GRPCPort      int    `mapstructure:"grpc_port"`       // 0 disables the gRPC health server
	InstanceID    string `mapstructure:"instance_id"`     // scopes journal keys and membership events
	PublicBaseURL string `mapstructure:"public_base_url"` // used to build decision links
	StaticDir     string `mapstructure:"static_dir"`      // optional directory served at GET /

	// AllowedOrigins are extra host patterns accepted on the WebSocket upgrade; same origin is always allowed.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RelayConfig holds the chat relay policies.
type RelayConfig struct {
	JoinPolicy      string `mapstructure:"join_policy"` // "approval" or "open"
	EchoToSender    bool   `mapstructure:"echo_to_sender"`
	CloseOnReject   bool   `mapstructure:"close_on_reject"`
	AllowRawChat    bool   `mapstructure:"allow_raw_chat"`
	MaxNameLength   int    `mapstructure:"max_name_length"`
	MaxMessageBytes int    `mapstructure:"max_message_bytes"`
}

// ApprovalConfig holds the operator approval workflow settings.
type ApprovalConfig struct {
	OperatorContact      string `mapstructure:"operator_contact"`
	RequestTTLSeconds    int    `mapstructure:"request_ttl_seconds"` // 0 keeps requests until decided or closed
	SweepIntervalSeconds int    `mapstructure:"sweep_interval_seconds"`
	NotifyTimeoutSeconds int    `mapstructure:"notify_timeout_seconds"`
}

// SMTPConfig holds the transport credentials for approval emails.
type SMTPConfig struct {
	Host      string `mapstructure:"host"` // empty selects the log notifier
	Port      int    `mapstructure:"port"`
	Username  string `mapstructure:"username"` // Should primarily come from ENV
	Password  string `mapstructure:"password"` // Should primarily come from ENV
	From      string `mapstructure:"from"`
	TLSPolicy string `mapstructure:"tls_policy"` // "mandatory", "opportunistic" or "none"
}

// RedisConfig holds Redis-related configurations.
type RedisConfig struct {
	Address           string `mapstructure:"address"` // empty disables the decision journal
	Password          string `mapstructure:"password"`
	DB                int    `mapstructure:"db"`
	JournalTTLSeconds int    `mapstructure:"journal_ttl_seconds"`
}

// NATSConfig holds NATS-related configurations.
type NATSConfig struct {
	URL           string `mapstructure:"url"` // empty disables membership events
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// AuthConfig holds authentication-related configurations.
type AuthConfig struct {
	AdminAPIKey string `mapstructure:"admin_api_key"` // Should primarily come from ENV
}

// LogConfig holds logging-related configurations.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// AppConfig holds application-specific configurations.
type AppConfig struct {
	ServiceName                     string `mapstructure:"service_name"`
	Version                         string `mapstructure:"version"`
	PingIntervalSeconds             int    `mapstructure:"ping_interval_seconds"`
	PongWaitSeconds                 int    `mapstructure:"pong_wait_seconds"`
	WriteTimeoutSeconds             int    `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds          int    `mapstructure:"shutdown_timeout_seconds"`
	WebsocketMessageBufferSize      int    `mapstructure:"websocket_message_buffer_size"`
	WebsocketBackpressureDropPolicy string `mapstructure:"websocket_backpressure_drop_policy"`
}

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Relay    RelayConfig    `mapstructure:"relay"`
	Approval ApprovalConfig `mapstructure:"approval"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Redis    RedisConfig    `mapstructure:"redis"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	App      AppConfig      `mapstructure:"app"`
}

// Provider defines an interface for accessing application configuration.
// This allows for easy mocking in tests and decouples the app from Viper.
type Provider interface {
	Get() *Config
}

// viperProvider implements the Provider interface using Viper.
type viperProvider struct {
	config atomic.Pointer[Config]
	logger *zap.Logger // zap directly, not domain.Logger: the domain logger is configured from this provider
}

// SetDefaults registers the values used when neither the file nor the environment sets a key.
// Every key needs a default, even an empty one, for AutomaticEnv to reach it during Unmarshal.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.http_port", 3000)
	v.SetDefault("server.grpc_port", 0)
	v.SetDefault("server.instance_id", "")
	v.SetDefault("server.public_base_url", "http://localhost:3000")
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.allowed_origins", []string{})

	v.SetDefault("relay.join_policy", "approval")
	v.SetDefault("relay.echo_to_sender", true)
	v.SetDefault("relay.close_on_reject", false)
	v.SetDefault("relay.allow_raw_chat", true)
	v.SetDefault("relay.max_name_length", 64)
	v.SetDefault("relay.max_message_bytes", 64*1024)

	v.SetDefault("approval.operator_contact", "")
	v.SetDefault("approval.request_ttl_seconds", 0)
	v.SetDefault("approval.sweep_interval_seconds", 30)
	v.SetDefault("approval.notify_timeout_seconds", 15)

	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.username", "")
	v.SetDefault("smtp.password", "")
	v.SetDefault("smtp.from", "")
	v.SetDefault("smtp.tls_policy", "mandatory")

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.journal_ttl_seconds", 86400)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "relay.membership")

	v.SetDefault("auth.admin_api_key", "")

	v.SetDefault("log.level", "info")

	v.SetDefault("app.service_name", "gatekeeper-relay")
	v.SetDefault("app.version", "dev")
	v.SetDefault("app.ping_interval_seconds", 25)
	v.SetDefault("app.pong_wait_seconds", 60)
	v.SetDefault("app.write_timeout_seconds", 10)
	v.SetDefault("app.shutdown_timeout_seconds", 30)
	v.SetDefault("app.websocket_message_buffer_size", 64)
	v.SetDefault("app.websocket_backpressure_drop_policy", "drop_oldest")
}

// NewViperProvider creates and initializes a new configuration provider using Viper.
// It loads configuration from file and environment variables, and sets up hot-reloading
// on SIGHUP and on config file changes. appCtx bounds the lifetime of the reload goroutine.
func NewViperProvider(appCtx context.Context, logger *zap.Logger) (Provider, error) {
	v := newViper()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logger.Warn("Config file not found; relying on defaults and environment variables", zap.Error(err))
		} else {
			logger.Error("Failed to read config file", zap.Error(err))
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg, err := unmarshal(v)
	if err != nil {
		logger.Error("Failed to unmarshal config", zap.Error(err))
		return nil, err
	}

	p := &viperProvider{logger: logger}
	p.config.Store(cfg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGHUP)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("Panic recovered in SIGHUP handler goroutine",
					zap.String("goroutine_name", "SIGHUPConfigReloader"),
					zap.Any("panic_info", r),
					zap.String("stacktrace", string(debug.Stack())),
				)
			}
		}()
		defer signal.Stop(sigChan)
		for {
			select {
			case sig := <-sigChan:
				p.logger.Info("SIGHUP received, attempting to reload configuration...", zap.String("signal", sig.String()))
				if err := v.ReadInConfig(); err != nil {
					p.logger.Error("Failed to re-read config file on SIGHUP", zap.Error(err))
					continue
				}
				p.reload(v, "sighup")
			case <-appCtx.Done():
				p.logger.Info("SIGHUPConfigReloader goroutine shutting down due to context cancellation.")
				return
			}
		}
	}()

	if v.ConfigFileUsed() != "" {
		v.OnConfigChange(func(e fsnotify.Event) {
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("Panic recovered in OnConfigChange callback",
						zap.String("event_name", e.Name),
						zap.Any("panic_info", r),
						zap.String("stacktrace", string(debug.Stack())),
					)
				}
			}()
			p.logger.Info("Config file changed", zap.String("name", e.Name), zap.String("op", e.Op.String()))
			p.reload(v, "file_change")
		})
		v.WatchConfig()
	}

	p.logger.Info("Configuration loaded successfully", zap.String("config_file_used", v.ConfigFileUsed()))
	return p, nil
}

// Get returns the current configuration.
func (p *viperProvider) Get() *Config {
	return p.config.Load()
}

func (p *viperProvider) reload(v *viper.Viper, trigger string) {
	newCfg, err := unmarshal(v)
	if err != nil {
		p.logger.Error("Failed to unmarshal reloaded config", zap.String("trigger", trigger), zap.Error(err))
		return
	}
	p.config.Store(newCfg)
	p.logger.Info("Configuration reloaded successfully", zap.String("trigger", trigger))
}

func newViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)

	v.SetConfigName(getEnv("VIPER_CONFIG_NAME", "config"))
	v.SetConfigType("yaml")
	v.AddConfigPath(getEnv("VIPER_CONFIG_PATH", "./config"))
	v.AddConfigPath(".")

	// server.http_port becomes RELAY_SERVER_HTTP_PORT
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Server.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.Server.InstanceID = host
		} else {
			cfg.Server.InstanceID = "local"
		}
	}
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
