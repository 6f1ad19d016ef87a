package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds access token claims to the request context for testing authenticated endpoints
func WithAuthContext(req *http.Request, userID int64, sessionID string) *http.Request {
	claims := &models.TokenClaims{
		Type:             models.TokenTypeAccess,
		SessionID:        sessionID,
		RegisteredClaims: jwt.RegisteredClaims{Subject: strconv.FormatInt(userID, 10)},
	}
	ctx := context.WithValue(req.Context(), auth.UserContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response and returns it
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// MockAccountService implements AccountServiceInterface for testing
type MockAccountService struct {
	RegisterFunc           func(ctx context.Context, in services.RegisterInput) (*services.RegisterResponse, error)
	VerifyEmailFunc        func(ctx context.Context, token string, client services.ClientInfo) (*services.MessageResponse, error)
	ResendVerificationFunc func(ctx context.Context, email string, client services.ClientInfo) (*services.MessageResponse, error)
}

func (m *MockAccountService) Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResponse, error) {
	if m.RegisterFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.RegisterFunc(ctx, in)
}

func (m *MockAccountService) VerifyEmail(ctx context.Context, token string, client services.ClientInfo) (*services.MessageResponse, error) {
	if m.VerifyEmailFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.VerifyEmailFunc(ctx, token, client)
}

func (m *MockAccountService) ResendVerification(ctx context.Context, email string, client services.ClientInfo) (*services.MessageResponse, error) {
	if m.ResendVerificationFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ResendVerificationFunc(ctx, email, client)
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc  func(ctx context.Context, in services.LoginInput) (*services.LoginResponse, error)
	LogoutFunc func(ctx context.Context, claims *models.TokenClaims, client services.ClientInfo) error
}

func (m *MockAuthService) Login(ctx context.Context, in services.LoginInput) (*services.LoginResponse, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *models.TokenClaims, client services.ClientInfo) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx, claims, client)
}

// MockUserService implements UserServiceInterface for testing
type MockUserService struct {
	GetProfileFunc    func(ctx context.Context, id int64) (*models.Profile, error)
	UpdateProfileFunc func(ctx context.Context, in services.UpdateProfileInput) (*services.ProfileResponse, error)
	CreateUserFunc    func(ctx context.Context, in services.CreateUserInput) (*services.ProfileResponse, error)
	ListUsersFunc     func(ctx context.Context, in services.ListUsersInput) (*services.ListUsersResponse, error)
	DeactivateFunc    func(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.MessageResponse, error)
	ReactivateFunc    func(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.ProfileResponse, error)
}

func (m *MockUserService) GetProfile(ctx context.Context, id int64) (*models.Profile, error) {
	if m.GetProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.GetProfileFunc(ctx, id)
}

func (m *MockUserService) UpdateProfile(ctx context.Context, in services.UpdateProfileInput) (*services.ProfileResponse, error) {
	if m.UpdateProfileFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.UpdateProfileFunc(ctx, in)
}

func (m *MockUserService) CreateUser(ctx context.Context, in services.CreateUserInput) (*services.ProfileResponse, error) {
	if m.CreateUserFunc == nil {
		return nil, models.ErrInternalServer
	}
	return m.CreateUserFunc(ctx, in)
}

func (m *MockUserService) ListUsers(ctx context.Context, in services.ListUsersInput) (*services.ListUsersResponse, error) {
	if m.ListUsersFunc == nil {
		return &services.ListUsersResponse{Users: []models.Profile{}, Limit: in.Limit, Offset: in.Offset}, nil
	}
	return m.ListUsersFunc(ctx, in)
}

func (m *MockUserService) Deactivate(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.MessageResponse, error) {
	if m.DeactivateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.DeactivateFunc(ctx, actorID, id, client)
}

func (m *MockUserService) Reactivate(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.ProfileResponse, error) {
	if m.ReactivateFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.ReactivateFunc(ctx, actorID, id, client)
}
