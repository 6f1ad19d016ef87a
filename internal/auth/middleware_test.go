package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/guard"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSessions struct {
	live map[string]bool
	err  error
}

func (s *stubSessions) Exists(ctx context.Context, sessionID string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	return s.live[sessionID], nil
}

func serveWithAuth(t *testing.T, tm *TokenManager, sessions SessionChecker, authHeader string) (*httptest.ResponseRecorder, *models.TokenClaims) {
	t.Helper()
	var seen *models.TokenClaims
	handler := AuthMiddleware(tm, sessions, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetUserFromContext(r)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/me", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec, seen
}

func issuePair(t *testing.T, tm *TokenManager, sessionID string) *models.TokenPair {
	t.Helper()
	access, refresh := guard.DefaultTokenPolicy.Issue(42, sessionID, time.Now())
	pair, err := tm.SignPair(access, refresh)
	require.NoError(t, err)
	return pair
}

func TestAuthMiddleware_ValidSession(t *testing.T) {
	tm := NewTokenManager(sharedKey(t), "gatekeeper-test")
	pair := issuePair(t, tm, "sess-1")

	rec, claims := serveWithAuth(t, tm, &stubSessions{live: map[string]bool{"sess-1": true}}, "Bearer "+pair.AccessToken)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "sess-1", claims.SessionID)
}

func TestAuthMiddleware_MissingHeader(t *testing.T) {
	tm := NewTokenManager(sharedKey(t), "gatekeeper-test")

	rec, claims := serveWithAuth(t, tm, &stubSessions{}, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, claims)
}

func TestAuthMiddleware_GarbageToken(t *testing.T) {
	tm := NewTokenManager(sharedKey(t), "gatekeeper-test")

	rec, _ := serveWithAuth(t, tm, &stubSessions{}, "Bearer not.a.jwt")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_RejectsRefreshToken(t *testing.T) {
	tm := NewTokenManager(sharedKey(t), "gatekeeper-test")
	pair := issuePair(t, tm, "sess-1")

	rec, _ := serveWithAuth(t, tm, &stubSessions{live: map[string]bool{"sess-1": true}}, "Bearer "+pair.RefreshToken)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthMiddleware_LoggedOutSession(t *testing.T) {
	tm := NewTokenManager(sharedKey(t), "gatekeeper-test")
	pair := issuePair(t, tm, "sess-1")

	rec, _ := serveWithAuth(t, tm, &stubSessions{live: map[string]bool{}}, "Bearer "+pair.AccessToken)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Session has ended")
}

func TestAuthMiddleware_SessionCacheDown(t *testing.T) {
	tm := NewTokenManager(sharedKey(t), "gatekeeper-test")
	pair := issuePair(t, tm, "sess-1")

	rec, _ := serveWithAuth(t, tm, &stubSessions{err: errors.New("connection refused")}, "Bearer "+pair.AccessToken)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

type stubProfiles struct {
	profiles map[int64]*models.Profile
	err      error
}

func (s *stubProfiles) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return p, nil
}

func serveWithRole(profiles ProfileLookup, subject string) *httptest.ResponseRecorder {
	handler := RequireRole(profiles, models.RoleAdmin, slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/users", nil)
	if subject != "" {
		claims := &models.TokenClaims{
			Type:             models.TokenTypeAccess,
			SessionID:        "sess-1",
			RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		}
		req = req.WithContext(context.WithValue(req.Context(), UserContextKey, claims))
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRequireRole(t *testing.T) {
	profiles := &stubProfiles{profiles: map[int64]*models.Profile{
		1: {ID: 1, Role: models.RoleAdmin, Status: string(models.StatusActive)},
		2: {ID: 2, Role: models.RoleCustomer, Status: string(models.StatusActive)},
		3: {ID: 3, Role: models.RoleAdmin, Status: string(models.StatusInactive)},
	}}

	tests := []struct {
		name    string
		subject string
		want    int
	}{
		{"active admin", "1", http.StatusOK},
		{"customer", "2", http.StatusForbidden},
		{"deactivated admin", "3", http.StatusForbidden},
		{"unknown account", "99", http.StatusUnauthorized},
		{"malformed subject", "abc", http.StatusUnauthorized},
		{"no claims", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveWithRole(profiles, tt.subject)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireRole_LookupFailure(t *testing.T) {
	rec := serveWithRole(&stubProfiles{err: errors.New("connection refused")}, "1")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal_error")
}
