package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tablesheet/internal/domain"
)

// === Test JWT Validator ===

type stubValidator struct {
	claims *JWTClaims
	err    error
	got    string
}

func (v *stubValidator) Validate(_ context.Context, token string) (*JWTClaims, error) {
	v.got = token
	return v.claims, v.err
}

func ownerEcho(t *testing.T, called *bool) http.Handler {
	t.Helper()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		owner, ok := domain.OwnerFromContext(r.Context())
		require.True(t, ok)
		_, _ = w.Write([]byte(owner.ID + "|" + owner.Email))
	})
}

func TestAuthMiddleware(t *testing.T) {
	email := "alice@example.com"

	tests := []struct {
		name       string
		validator  *stubValidator
		setup      func(r *http.Request)
		wantStatus int
		wantBody   string
		wantToken  string
	}{
		{
			name:       "valid bearer token",
			validator:  &stubValidator{claims: &JWTClaims{Subject: "alice", Email: &email}},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok-1") },
			wantStatus: http.StatusOK,
			wantBody:   "alice|alice@example.com",
			wantToken:  "tok-1",
		},
		{
			name:       "lowercase scheme",
			validator:  &stubValidator{claims: &JWTClaims{Subject: "alice"}},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "bearer tok-2") },
			wantStatus: http.StatusOK,
			wantBody:   "alice|",
			wantToken:  "tok-2",
		},
		{
			name:       "missing header",
			validator:  &stubValidator{},
			setup:      func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "basic scheme",
			validator:  &stubValidator{},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Basic abc") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "invalid token",
			validator:  &stubValidator{err: errors.New("bad signature")},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "token without subject",
			validator:  &stubValidator{claims: &JWTClaims{}},
			setup:      func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:      "query token on websocket upgrade",
			validator: &stubValidator{claims: &JWTClaims{Subject: "alice"}},
			setup: func(r *http.Request) {
				r.Header.Set("Upgrade", "websocket")
				q := r.URL.Query()
				q.Set("access_token", "ws-tok")
				r.URL.RawQuery = q.Encode()
			},
			wantStatus: http.StatusOK,
			wantBody:   "alice|",
			wantToken:  "ws-tok",
		},
		{
			name:      "query token ignored on plain request",
			validator: &stubValidator{claims: &JWTClaims{Subject: "alice"}},
			setup: func(r *http.Request) {
				q := r.URL.Query()
				q.Set("access_token", "leaky")
				r.URL.RawQuery = q.Encode()
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := AuthMiddleware(tt.validator, nil)(ownerEcho(t, &called))

			req := httptest.NewRequest(http.MethodGet, "/v1/tables", nil)
			tt.setup(req)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus != http.StatusOK {
				assert.False(t, called, "handler must not run")
				var body map[string]interface{}
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.InDelta(t, float64(401), body["code"], 0.001)
				assert.Contains(t, body["message"], "unauthorized")
				return
			}
			assert.True(t, called)
			assert.Equal(t, tt.wantBody, rec.Body.String())
			assert.Equal(t, tt.wantToken, tt.validator.got)
		})
	}
}

func TestAuthMiddleware_HS256EndToEnd(t *testing.T) {
	const secret = "test-secret-32-bytes-long-xxxxx"
	v, err := NewHS256Validator(secret, "")
	require.NoError(t, err)

	called := false
	handler := AuthMiddleware(v, nil)(ownerEcho(t, &called))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+makeToken(secret, jwt.MapClaims{
		"sub": "owner-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner-42|", rec.Body.String())
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	handler := RequestID(RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/v1/tables", nil)
	req.Header.Set("X-Request-ID", "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "/v1/tables", line["path"])
	assert.InDelta(t, float64(http.StatusTeapot), line["status"], 0.001)
	assert.Equal(t, "req-1", line["request_id"])
}
