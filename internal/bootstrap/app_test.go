package bootstrap

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/mocks"
)

func newTestApp(t *testing.T, staticDir string) *App {
	t.Helper()
	cfg := mocks.NewMockConfigProvider()
	cfg.Update(func(c *config.Config) { c.Server.StaticDir = staticDir })
	logger := mocks.NewMockLogger()

	registry := ConnectionRegistryProvider(logger)
	router := BroadcastRouterProvider(logger, cfg, registry)
	workflow := ApprovalWorkflowProvider(logger, cfg, registry, router, DecisionLinkBuilderProvider(cfg), mocks.NewMockNotifier(), nil, nil)
	manager := ConnectionManagerProvider(logger, cfg, registry, workflow, router, nil)
	wsHandler := WebsocketHandlerProvider(logger, cfg, manager)
	mux := HTTPServeMuxProvider()

	app, _, err := NewApp(
		cfg, logger, mux, HTTPGracefulServerProvider(cfg, mux), nil,
		WebsocketRouterProvider(logger, wsHandler), wsHandler, workflow,
		DecisionLinkHandlerProvider(workflow, logger),
		PendingRequestsHandlerProvider(workflow, logger),
		AdminAuthMiddlewareProvider(cfg, logger),
		nil, nil, nil,
	)
	require.NoError(t, err)
	app.registerRoutes(context.Background())
	return app
}

func (a *App) serve(method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	a.httpServeMux.ServeHTTP(rec, req)
	return rec
}

func TestApp_Routes(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>chat</h1>"), 0o644))
	app := newTestApp(t, dir)

	rec := app.serve(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = app.serve(http.MethodGet, "/ready", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ready map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ready))
	assert.Equal(t, "READY", ready["status"])
	assert.Equal(t, map[string]any{"redis": "not_configured", "nats": "not_configured"}, ready["dependencies"])

	rec = app.serve(http.MethodGet, "/admin/pending", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = app.serve(http.MethodGet, "/admin/pending", http.Header{"X-Api-Key": {"test-admin-key"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0,"pending":[]}`, rec.Body.String())

	rec = app.serve(http.MethodGet, "/admin/decisions", http.Header{"X-Api-Key": {"test-admin-key"}})
	assert.NotEqual(t, http.StatusOK, rec.Code, "decision history needs the journal")

	rec = app.serve(http.MethodGet, "/approve?user_id=1&action=ACCEPT", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = app.serve(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>chat</h1>")

	rec = app.serve(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_NoStaticDir(t *testing.T) {
	app := newTestApp(t, "")
	rec := app.serve(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
