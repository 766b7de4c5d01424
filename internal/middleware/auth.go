package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"tablesheet/internal/domain"
)

// AuthMiddleware validates the bearer token and stores the owner in the
// request context. The token is read from the Authorization header, or from
// the access_token query parameter for websocket upgrades. Requests without
// a valid token get a 401 before reaching any handler.
func AuthMiddleware(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				writeUnauthorized(w, "missing bearer token")
				return
			}

			claims, err := validator.Validate(r.Context(), token)
			if err != nil {
				logger.Debug("token rejected", "error", err, "request_id", RequestIDFromContext(r.Context()))
				writeUnauthorized(w, "invalid token")
				return
			}
			if claims.Subject == "" {
				writeUnauthorized(w, "token has no subject")
				return
			}

			owner := domain.ContextOwner{ID: claims.Subject}
			if claims.Email != nil {
				owner.Email = *claims.Email
			}
			ctx := domain.WithOwner(r.Context(), owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, tok, ok := strings.Cut(auth, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(tok)
		}
		return ""
	}
	if isWebsocketUpgrade(r) {
		return r.URL.Query().Get("access_token")
	}
	return ""
}

func isWebsocketUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="tablesheet"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    401,
		"message": "unauthorized: " + msg,
	})
}
