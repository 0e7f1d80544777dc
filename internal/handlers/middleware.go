package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	clientIDKey contextKey = "clientID"
	agentIDKey  contextKey = "agentID"
)

// RequestLogger logs every request with method, path, status and duration.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("Request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// parseBearerToken validates the Authorization header's JWT and returns the
// numeric "id" claim. Token issuance is owned by the auth service; this core
// only verifies.
func parseBearerToken(r *http.Request, secret string) (uint, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
		return 0, fmt.Errorf("no token provided")
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, fmt.Errorf("invalid token claims")
	}
	id, ok := claims["id"].(float64)
	if !ok || id <= 0 {
		return 0, fmt.Errorf("token is missing a valid id claim")
	}
	return uint(id), nil
}

// ClientAuth verifies a client (tenant) JWT and stores the client id on the
// request context.
func ClientAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID, err := parseBearerToken(r, secret)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Client token verification failed")
				respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
				return
			}
			ctx := context.WithValue(r.Context(), clientIDKey, clientID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AgentAuth verifies an agent JWT and stores the agent id on the request context.
func AgentAuth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			agentID, err := parseBearerToken(r, secret)
			if err != nil {
				log.Warn().Err(err).Str("path", r.URL.Path).Msg("Agent token verification failed")
				respondJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid token"})
				return
			}
			ctx := context.WithValue(r.Context(), agentIDKey, agentID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientIDFromContext returns the authenticated client id, if any.
func ClientIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(clientIDKey).(uint)
	return id, ok
}

// AgentIDFromContext returns the authenticated agent id, if any.
func AgentIDFromContext(ctx context.Context) (uint, bool) {
	id, ok := ctx.Value(agentIDKey).(uint)
	return id, ok
}
