package bootstrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	appgrpc "gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/grpc"
	apphttp "gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/http"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/middleware"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/application"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/safego"
)

const shutdownMessage = "Server is shutting down"

// Run registers routes, starts the background services and serves HTTP until a
// shutdown signal or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	cfg := a.configProvider.Get()
	a.logger.Info(ctx, "Starting application",
		"service_name", cfg.App.ServiceName,
		"version", cfg.App.Version,
		"instance_id", cfg.Server.InstanceID,
		"join_policy", cfg.Relay.JoinPolicy,
	)

	a.registerRoutes(ctx)

	runCtx, stopServices := context.WithCancel(ctx)
	defer stopServices()
	a.workflow.Start(runCtx)

	if a.grpcServer != nil {
		if err := a.grpcServer.Start(); err != nil && !errors.Is(err, appgrpc.ErrDisabled) {
			return fmt.Errorf("failed to start gRPC server: %w", err)
		}
	}

	shutdownDone := make(chan struct{})
	safego.Execute(ctx, a.logger, "SignalListenerAndGracefulShutdown", func() {
		defer close(shutdownDone)
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)
		select {
		case sig := <-quit:
			a.logger.Info(context.Background(), "Shutdown signal received, initiating graceful shutdown...", "signal", sig.String())
		case <-ctx.Done():
			a.logger.Info(context.Background(), "Application context cancelled, initiating graceful shutdown...")
		}
		a.shutdown(stopServices)
	})

	a.logger.Info(ctx, fmt.Sprintf("HTTP server listening on port %d", cfg.Server.HTTPPort))
	if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		a.logger.Error(ctx, "HTTP server ListenAndServe error", "error", err.Error())
		stopServices()
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	<-shutdownDone
	a.logger.Info(ctx, "Application shut down gracefully.")
	return nil
}

func (a *App) registerRoutes(ctx context.Context) {
	a.httpServeMux.Handle("GET /health", middleware.RequestIDMiddleware(http.HandlerFunc(a.handleHealth)))
	a.httpServeMux.Handle("GET /ready", middleware.RequestIDMiddleware(http.HandlerFunc(a.handleReady)))
	a.httpServeMux.Handle("GET /metrics", middleware.RequestIDMiddleware(promhttp.Handler()))
	a.logger.Info(ctx, "Prometheus metrics endpoint registered at /metrics")

	a.wsRouter.RegisterRoutes(ctx, a.httpServeMux)

	a.httpServeMux.Handle("GET "+application.DecisionPath, middleware.RequestIDMiddleware(http.HandlerFunc(a.decisionHandler)))
	a.logger.Info(ctx, "Decision endpoint registered", "pattern", "GET "+application.DecisionPath)

	a.httpServeMux.Handle("GET /admin/pending", middleware.RequestIDMiddleware(a.adminAuth(http.HandlerFunc(a.pendingHandler))))
	if a.journal != nil {
		recent := apphttp.RecentDecisionsHandler(a.journal, a.logger)
		a.httpServeMux.Handle("GET /admin/decisions", middleware.RequestIDMiddleware(a.adminAuth(recent)))
	}

	if dir := a.configProvider.Get().Server.StaticDir; dir != "" {
		a.httpServeMux.Handle("GET /", http.FileServer(http.Dir(dir)))
		a.logger.Info(ctx, "Serving static chat client", "dir", dir)
	}
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, `{"status":"OK"}`)
}

func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	ready := true
	dependenciesStatus := make(map[string]string)

	if a.redisClient != nil {
		if err := a.redisClient.Ping(r.Context()).Err(); err == nil {
			dependenciesStatus["redis"] = "connected"
		} else {
			dependenciesStatus["redis"] = "disconnected"
			ready = false
			a.logger.Warn(r.Context(), "Readiness check failed: Redis ping failed", "error", err.Error())
		}
	} else {
		dependenciesStatus["redis"] = "not_configured"
	}

	if a.natsPublisher != nil {
		if status := a.natsPublisher.Status(); status == nats.CONNECTED {
			dependenciesStatus["nats"] = "connected"
		} else {
			dependenciesStatus["nats"] = "disconnected"
			ready = false
			a.logger.Warn(r.Context(), "Readiness check failed: NATS disconnected", "status", status.String())
		}
	} else {
		dependenciesStatus["nats"] = "not_configured"
	}

	response := struct {
		Status       string            `json:"status"`
		Connections  int               `json:"connections"`
		Pending      int               `json:"pending_requests"`
		Dependencies map[string]string `json:"dependencies"`
	}{
		Connections:  a.wsHandler.LiveConnections(),
		Pending:      len(a.workflow.Pending()),
		Dependencies: dependenciesStatus,
	}

	if ready {
		response.Status = "READY"
		w.WriteHeader(http.StatusOK)
	} else {
		response.Status = "NOT_READY"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		a.logger.Error(r.Context(), "Failed to encode readiness response", "error", err.Error())
	}
}

func (a *App) shutdown(stopServices context.CancelFunc) {
	shutdownTimeout := 30 * time.Second
	if s := a.configProvider.Get().App.ShutdownTimeoutSeconds; s > 0 {
		shutdownTimeout = time.Duration(s) * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if a.grpcServer != nil {
		a.grpcServer.SetServing(false)
	}

	a.logger.Info(shutdownCtx, "Closing all WebSocket connections gracefully...")
	a.wsHandler.CloseAll(shutdownCtx, domain.StatusGoingAway, shutdownMessage)

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error(shutdownCtx, "HTTP server graceful shutdown failed", "error", err.Error())
	}
	a.logger.Info(shutdownCtx, "HTTP server shut down.")

	stopServices()
	a.workflow.Wait()

	if a.grpcServer != nil {
		a.grpcServer.GracefulStop()
	}
}
