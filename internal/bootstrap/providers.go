package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	appgrpc "gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/grpc"
	apphttp "gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/http"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/logger"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/middleware"
	appnats "gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/nats"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/notifier"
	appredis "gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/redis"
	wsadapter "gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/websocket"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/application"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

// Distinct types so Wire can tell the handlers and middleware apart.
type (
	DecisionLinkHandler    http.HandlerFunc
	PendingRequestsHandler http.HandlerFunc
	AdminAuthMiddleware    func(http.Handler) http.Handler
)

// InitialZapLoggerProvider provides a basic *zap.Logger instance, primarily for config initialization.
func InitialZapLoggerProvider() (*zap.Logger, func(), error) {
	logger, err := zap.NewProduction()
	if err != nil {
		logger, err = zap.NewDevelopment()
		if err != nil {
			logger = zap.NewExample()
			fmt.Fprintf(os.Stderr, "Failed to create initial zap logger (production and development failed, falling back to example): %v\n", err)
		}
	}

	cleanup := func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to sync initial zap logger: %v\n", syncErr)
		}
	}
	return logger, cleanup, nil
}

// App struct is defined here for Wire to use.
type App struct {
	configProvider  config.Provider
	logger          domain.Logger
	httpServeMux    *http.ServeMux
	httpServer      *http.Server
	grpcServer      *appgrpc.Server
	wsRouter        *wsadapter.Router
	wsHandler       *wsadapter.Handler
	workflow        *application.ApprovalWorkflow
	decisionHandler DecisionLinkHandler
	pendingHandler  PendingRequestsHandler
	adminAuth       AdminAuthMiddleware
	journal         *appredis.DecisionJournalAdapter    // nil when redis.address is empty
	redisClient     *redis.Client                       // nil when redis.address is empty
	natsPublisher   *appnats.MembershipPublisherAdapter // nil when nats.url is empty
}

// NewApp is the constructor for App, also for Wire.
func NewApp(
	cfgProvider config.Provider,
	appLogger domain.Logger,
	mux *http.ServeMux,
	server *http.Server,
	grpcSrv *appgrpc.Server,
	wsRouter *wsadapter.Router,
	wsHandler *wsadapter.Handler,
	workflow *application.ApprovalWorkflow,
	decisionHandler DecisionLinkHandler,
	pendingHandler PendingRequestsHandler,
	adminAuth AdminAuthMiddleware,
	journal *appredis.DecisionJournalAdapter,
	redisClient *redis.Client,
	natsPublisher *appnats.MembershipPublisherAdapter,
) (*App, func(), error) {
	app := &App{
		configProvider:  cfgProvider,
		logger:          appLogger,
		httpServeMux:    mux,
		httpServer:      server,
		grpcServer:      grpcSrv,
		wsRouter:        wsRouter,
		wsHandler:       wsHandler,
		workflow:        workflow,
		decisionHandler: decisionHandler,
		pendingHandler:  pendingHandler,
		adminAuth:       adminAuth,
		journal:         journal,
		redisClient:     redisClient,
		natsPublisher:   natsPublisher,
	}

	cleanup := func() {
		app.logger.Info(context.Background(), "Running app cleanup...")
		if app.grpcServer != nil {
			app.grpcServer.GracefulStop()
		}
	}
	return app, cleanup, nil
}

// ConfigProvider provides the application configuration.
func ConfigProvider(appCtx context.Context, logger *zap.Logger) (config.Provider, error) {
	return config.NewViperProvider(appCtx, logger)
}

// LoggerProvider provides the application logger.
func LoggerProvider(cfgProvider config.Provider) (domain.Logger, error) {
	return logger.NewZapAdapter(cfgProvider, cfgProvider.Get().App.ServiceName)
}

// HTTPServeMuxProvider provides the main HTTP multiplexer.
func HTTPServeMuxProvider() *http.ServeMux {
	return http.NewServeMux()
}

// HTTPGracefulServerProvider provides the HTTP server. WriteTimeout stays zero because
// the same server carries long lived WebSocket connections.
func HTTPGracefulServerProvider(cfgProvider config.Provider, mux *http.ServeMux) *http.Server {
	appCfg := cfgProvider.Get()
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", appCfg.Server.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// RedisClientProvider provides a Redis client and a cleanup function.
// It returns a nil client when no address is configured.
func RedisClientProvider(cfgProvider config.Provider, appLogger domain.Logger) (*redis.Client, func(), error) {
	appCfg := cfgProvider.Get()
	if appCfg.Redis.Address == "" {
		appLogger.Info(context.Background(), "Redis address not configured; decision journal disabled")
		return nil, func() {}, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     appCfg.Redis.Address,
		Password: appCfg.Redis.Password,
		DB:       appCfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		appLogger.Error(context.Background(), "Failed to connect to Redis", "error", err.Error(), "address", appCfg.Redis.Address)
		_ = client.Close()
		return nil, nil, fmt.Errorf("failed to connect to Redis at %s: %w", appCfg.Redis.Address, err)
	}
	cleanup := func() {
		_ = client.Close()
		appLogger.Info(context.Background(), "Redis connection closed")
	}
	appLogger.Info(context.Background(), "Successfully connected to Redis", "address", appCfg.Redis.Address)
	return client, cleanup, nil
}

// DecisionJournalAdapterProvider provides the Redis journal, or nil without a client.
func DecisionJournalAdapterProvider(redisClient *redis.Client, logger domain.Logger, cfgProvider config.Provider) *appredis.DecisionJournalAdapter {
	if redisClient == nil {
		return nil
	}
	return appredis.NewDecisionJournalAdapter(redisClient, logger, cfgProvider)
}

// DecisionJournalProvider exposes the adapter as the domain port. A nil adapter
// becomes a nil interface, which disables journaling.
func DecisionJournalProvider(adapter *appredis.DecisionJournalAdapter) domain.DecisionJournal {
	if adapter == nil {
		return nil
	}
	return adapter
}

// MembershipPublisherAdapterProvider connects to NATS, or returns nil when no URL is configured.
func MembershipPublisherAdapterProvider(ctx context.Context, cfgProvider config.Provider, appLogger domain.Logger) (*appnats.MembershipPublisherAdapter, func(), error) {
	if cfgProvider.Get().NATS.URL == "" {
		appLogger.Info(ctx, "NATS URL not configured; membership events disabled")
		return nil, func() {}, nil
	}
	return appnats.NewMembershipPublisherAdapter(ctx, cfgProvider, appLogger)
}

// MembershipPublisherProvider exposes the adapter as the domain port, nil when disabled.
func MembershipPublisherProvider(adapter *appnats.MembershipPublisherAdapter) domain.MembershipPublisher {
	if adapter == nil {
		return nil
	}
	return adapter
}

// ApprovalNotifierProvider picks SMTP or log delivery for approval notices.
func ApprovalNotifierProvider(logger domain.Logger, cfgProvider config.Provider) domain.ApprovalNotifier {
	return notifier.New(logger, cfgProvider)
}

// ConnectionRegistryProvider provides the connection registry.
func ConnectionRegistryProvider(logger domain.Logger) *application.ConnectionRegistry {
	return application.NewConnectionRegistry(logger)
}

// BroadcastRouterProvider provides the broadcast router.
func BroadcastRouterProvider(logger domain.Logger, cfgProvider config.Provider, registry *application.ConnectionRegistry) *application.BroadcastRouter {
	return application.NewBroadcastRouter(logger, cfgProvider, registry)
}

// DecisionLinkBuilderProvider provides the decision link builder.
func DecisionLinkBuilderProvider(cfgProvider config.Provider) *application.DecisionLinkBuilder {
	return application.NewDecisionLinkBuilder(cfgProvider)
}

// ApprovalWorkflowProvider provides the approval workflow.
func ApprovalWorkflowProvider(
	logger domain.Logger,
	cfgProvider config.Provider,
	registry *application.ConnectionRegistry,
	router *application.BroadcastRouter,
	links *application.DecisionLinkBuilder,
	approvalNotifier domain.ApprovalNotifier,
	journal domain.DecisionJournal,
	publisher domain.MembershipPublisher,
) *application.ApprovalWorkflow {
	return application.NewApprovalWorkflow(logger, cfgProvider, registry, router, links, approvalNotifier, journal, publisher)
}

// ConnectionManagerProvider provides a ConnectionManager.
func ConnectionManagerProvider(
	logger domain.Logger,
	cfgProvider config.Provider,
	registry *application.ConnectionRegistry,
	workflow *application.ApprovalWorkflow,
	router *application.BroadcastRouter,
	publisher domain.MembershipPublisher,
) *application.ConnectionManager {
	return application.NewConnectionManager(logger, cfgProvider, registry, workflow, router, publisher)
}

// WebsocketHandlerProvider provides the websocket handler.
func WebsocketHandlerProvider(logger domain.Logger, cfgProvider config.Provider, connManager *application.ConnectionManager) *wsadapter.Handler {
	return wsadapter.NewHandler(logger, cfgProvider, connManager)
}

// WebsocketRouterProvider provides the websocket router.
func WebsocketRouterProvider(logger domain.Logger, wsHandler *wsadapter.Handler) *wsadapter.Router {
	return wsadapter.NewRouter(logger, wsHandler)
}

// DecisionLinkHandlerProvider provides the GET /approve handler.
func DecisionLinkHandlerProvider(workflow *application.ApprovalWorkflow, logger domain.Logger) DecisionLinkHandler {
	return DecisionLinkHandler(apphttp.DecisionHandler(workflow, logger))
}

// PendingRequestsHandlerProvider provides the GET /admin/pending handler.
func PendingRequestsHandlerProvider(workflow *application.ApprovalWorkflow, logger domain.Logger) PendingRequestsHandler {
	return PendingRequestsHandler(apphttp.PendingRequestsHandler(workflow, logger))
}

// AdminAuthMiddlewareProvider provides the API key middleware for /admin routes.
func AdminAuthMiddlewareProvider(cfgProvider config.Provider, logger domain.Logger) AdminAuthMiddleware {
	return middleware.APIKeyAuthMiddleware(cfgProvider, logger)
}

// GRPCServerProvider provides the gRPC health server.
func GRPCServerProvider(appCtx context.Context, logger domain.Logger, cfgProvider config.Provider) *appgrpc.Server {
	return appgrpc.NewServer(appCtx, logger, cfgProvider)
}

// ProviderSet is the Wire provider set for the entire application.
var ProviderSet = wire.NewSet(
	InitialZapLoggerProvider,
	ConfigProvider,
	LoggerProvider,
	HTTPServeMuxProvider,
	HTTPGracefulServerProvider,

	// Infrastructure Adapters
	RedisClientProvider,
	DecisionJournalAdapterProvider,
	DecisionJournalProvider,
	MembershipPublisherAdapterProvider,
	MembershipPublisherProvider,
	ApprovalNotifierProvider,
	GRPCServerProvider,

	// Application Services
	ConnectionRegistryProvider,
	BroadcastRouterProvider,
	DecisionLinkBuilderProvider,
	ApprovalWorkflowProvider,
	ConnectionManagerProvider,

	// Transport
	WebsocketHandlerProvider,
	WebsocketRouterProvider,
	DecisionLinkHandlerProvider,
	PendingRequestsHandlerProvider,
	AdminAuthMiddlewareProvider,

	NewApp,
)
