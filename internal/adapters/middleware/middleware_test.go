package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/mocks"
	"gitlab.com/timkado/api/gatekeeper-relay/pkg/contextkeys"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	h := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(contextkeys.RequestIDKey).(string)
	}))

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "generated when missing", incoming: ""},
		{name: "kept when safe", incoming: "req-123_abc.DEF", keep: true},
		{name: "replaced when unsafe", incoming: "bad id\nwith newline"},
		{name: "replaced when too long", incoming: strings.Repeat("a", 200)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(XRequestIDHeader, tt.incoming)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.NotEmpty(t, seen)
			assert.Equal(t, seen, rec.Header().Get(XRequestIDHeader))
			if tt.keep {
				assert.Equal(t, tt.incoming, seen)
			} else {
				assert.NotEqual(t, tt.incoming, seen)
			}
		})
	}
}

func TestAPIKeyAuthMiddleware(t *testing.T) {
	cfg := mocks.NewMockConfigProvider()
	h := APIKeyAuthMiddleware(cfg, mocks.NewMockLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		query  string
		want   int
	}{
		{name: "missing key", want: http.StatusUnauthorized},
		{name: "wrong key", header: "nope", want: http.StatusUnauthorized},
		{name: "header key", header: "test-admin-key", want: http.StatusNoContent},
		{name: "query key", query: "test-admin-key", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/admin/pending"
			if tt.query != "" {
				target += "?x-api-key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	t.Run("disabled without configured key", func(t *testing.T) {
		cfg.Update(func(c *config.Config) { c.Auth.AdminAPIKey = "" })
		req := httptest.NewRequest(http.MethodGet, "/admin/pending", nil)
		req.Header.Set("X-API-Key", "anything")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
