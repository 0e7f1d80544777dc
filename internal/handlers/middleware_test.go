package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"botup-realtime/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const testSecret = "test-secret"

func TestMain(m *testing.M) {
	log.Logger = zerolog.New(io.Discard)
	os.Exit(m.Run())
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

func TestClientAuthStoresClientID(t *testing.T) {
	var gotID uint
	var gotOK bool
	handler := ClientAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = ClientIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conversations/1", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{
		"id":  7,
		"exp": time.Now().Add(time.Hour).Unix(),
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !gotOK || gotID != 7 {
		t.Errorf("client id = (%d, %v), want (7, true)", gotID, gotOK)
	}
}

func TestAgentAuthStoresAgentID(t *testing.T) {
	var gotID uint
	handler := AgentAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = AgentIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPut, "/api/agents/status", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, jwt.MapClaims{"id": 3}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || gotID != 3 {
		t.Errorf("status = %d, agent id = %d", rec.Code, gotID)
	}
}

func TestAuthRejections(t *testing.T) {
	handler := ClientAuth(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with invalid credentials")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"not bearer", "Basic abc"},
		{"garbage token", "Bearer not-a-jwt"},
		{"wrong secret", "Bearer " + signToken(t, "other-secret", jwt.MapClaims{"id": 7})},
		{"missing id claim", "Bearer " + signToken(t, testSecret, jwt.MapClaims{"sub": "x"})},
		{"expired", "Bearer " + signToken(t, testSecret, jwt.MapClaims{
			"id":  7,
			"exp": time.Now().Add(-time.Hour).Unix(),
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/conversations/1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
		})
	}
}

func TestRespondErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("conversation 1: %w", store.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("conversation 1: %w", store.ErrNotAssigned), http.StatusNotFound},
		{fmt.Errorf("%w: bad input", store.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("conversation 1: %w", store.ErrAlreadyAssigned), http.StatusConflict},
		{fmt.Errorf("conversation 1: %w", store.ErrConversationEnded), http.StatusConflict},
		{fmt.Errorf("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		respondError(rec, tt.err)
		if rec.Code != tt.status {
			t.Errorf("respondError(%v) status = %d, want %d", tt.err, rec.Code, tt.status)
		}

		var body map[string]string
		if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
			t.Errorf("response body not JSON: %v", err)
		} else if body["error"] == "" {
			t.Errorf("response body missing error field: %v", body)
		}
	}
}

func TestRequestLoggerPreservesStatus(t *testing.T) {
	handler := RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
}
