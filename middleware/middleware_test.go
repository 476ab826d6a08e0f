package middleware

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dosada05/talent-vote/models"
	"github.com/Dosada05/talent-vote/ratelimit"
)

const testSecret = "test-secret"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func validClaims(role models.UserRole) jwt.MapClaims {
	return jwt.MapClaims{
		"user_id": float64(42),
		"role":    string(role),
		"exp":     time.Now().Add(time.Hour).Unix(),
	}
}

func roleEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, string(RoleOrAnonymous(r.Context())))
	})
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator(testSecret, testLogger())
	handler := auth.Authenticate(roleEcho())

	expired := validClaims(models.RoleAdmin)
	expired["exp"] = time.Now().Add(-time.Minute).Unix()

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{name: "missing", header: "", status: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "bad signature", header: "Bearer " + signToken(t, "other", validClaims(models.RoleAdmin)), status: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + signToken(t, testSecret, expired), status: http.StatusUnauthorized},
		{name: "valid", header: "Bearer " + signToken(t, testSecret, validClaims(models.RoleOrganizer)), status: http.StatusOK, body: "organizer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestOptionalAuthenticate(t *testing.T) {
	auth := NewAuthenticator(testSecret, testLogger())
	handler := auth.OptionalAuthenticate(roleEcho())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "voter", rec.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"unauthorized","message":"authorization token is invalid or expired"}`, rec.Body.String())
}

func TestRequireRole(t *testing.T) {
	auth := NewAuthenticator(testSecret, testLogger())
	handler := auth.Authenticate(RequireRole(models.RoleAdmin)(roleEcho()))

	for role, want := range map[models.UserRole]int{
		models.RoleAdmin:     http.StatusOK,
		models.RoleOrganizer: http.StatusForbidden,
		models.RoleVoter:     http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, validClaims(role)))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, want, rec.Code, role)
	}
}

func TestGetUserIDFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), userContextKey, jwt.MapClaims{"user_id": float64(7)})
	id, err := GetUserIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	ctx = context.WithValue(context.Background(), userContextKey, jwt.MapClaims{"user_id": "u-9"})
	id, err = GetUserIDFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "u-9", id)

	_, err = GetUserIDFromContext(context.Background())
	assert.ErrorIs(t, err, ErrNoClaims)

	ctx = context.WithValue(context.Background(), userContextKey, jwt.MapClaims{"user_id": 1.5})
	_, err = GetUserIDFromContext(ctx)
	assert.Error(t, err)
}

type stubLimiter struct {
	decision ratelimit.Decision
	err      error
	subjects []string
}

func (s *stubLimiter) Allow(ctx context.Context, scope, subject string, limit int, window time.Duration) (ratelimit.Decision, error) {
	s.subjects = append(s.subjects, subject)
	return s.decision, s.err
}

func TestRateLimit(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	t.Run("blocked", func(t *testing.T) {
		limiter := &stubLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 17 * time.Second}}
		handler := RateLimit(limiter, "votes", 5, time.Minute, testLogger())(ok)

		req := httptest.NewRequest(http.MethodPost, "/api/votes", nil)
		req.RemoteAddr = "10.0.0.7:51234"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "17", rec.Header().Get("Retry-After"))
		assert.Equal(t, []string{"10.0.0.7"}, limiter.subjects)
	})

	t.Run("redis failure fails open", func(t *testing.T) {
		limiter := &stubLimiter{err: errors.New("connection refused")}
		handler := RateLimit(limiter, "votes", 5, time.Minute, testLogger())(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/votes", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("disabled", func(t *testing.T) {
		handler := RateLimit(nil, "votes", 5, time.Minute, testLogger())(ok)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/votes", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
