package middleware

import (
	"crypto/subtle"
	"net/http"

	"gitlab.com/timkado/api/gatekeeper-relay/internal/adapters/config"
	"gitlab.com/timkado/api/gatekeeper-relay/internal/domain"
)

const (
	apiKeyHeaderName = "X-API-Key"
	apiKeyQueryParam = "x-api-key"
)

// APIKeyAuthMiddleware guards operator endpoints with the configured admin API key.
// The key is read from the X-API-Key header or the x-api-key query parameter.
// When no key is configured the endpoint is disabled and answers 404.
func APIKeyAuthMiddleware(cfgProvider config.Provider, logger domain.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			expected := cfgProvider.Get().Auth.AdminAPIKey
			if expected == "" {
				logger.Debug(r.Context(), "Admin endpoint requested but no admin API key configured", "path", r.URL.Path)
				http.NotFound(w, r)
				return
			}

			apiKey := r.Header.Get(apiKeyHeaderName)
			if apiKey == "" {
				apiKey = r.URL.Query().Get(apiKeyQueryParam)
			}

			if apiKey == "" {
				logger.Warn(r.Context(), "API key authentication failed: Key missing", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrUnauthorized, "API key is required", "Provide API key in X-API-Key header or x-api-key query parameter.").WriteJSON(w, http.StatusUnauthorized)
				return
			}

			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(expected)) != 1 {
				logger.Warn(r.Context(), "API key authentication failed: Invalid key", "path", r.URL.Path)
				domain.NewErrorResponse(domain.ErrUnauthorized, "Invalid API key", "The provided API key is not valid.").WriteJSON(w, http.StatusUnauthorized)
				return
			}

			logger.Debug(r.Context(), "API key authentication successful", "path", r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
}
