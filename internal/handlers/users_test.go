package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/handlers"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// userRouter mounts the handler on its real paths so chi URL params resolve.
func userRouter(h *handlers.UserHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/v1/me", h.Me)
	r.Patch("/v1/me", h.UpdateMe)
	r.Get("/v1/users", h.ListUsers)
	r.Post("/v1/users", h.CreateUser)
	r.Get("/v1/users/{id}", h.GetUser)
	r.Patch("/v1/users/{id}", h.UpdateUser)
	r.Delete("/v1/users/{id}", h.DeactivateUser)
	r.Post("/v1/users/{id}/reactivate", h.ReactivateUser)
	return r
}

func serveAs(h *handlers.UserHandler, req *http.Request, userID int64) *httptest.ResponseRecorder {
	if userID != 0 {
		req = handlers.WithAuthContext(req, userID, "session-1")
	}
	w := httptest.NewRecorder()
	userRouter(h).ServeHTTP(w, req)
	return w
}

func TestMe_Success(t *testing.T) {
	mockUsers := &handlers.MockUserService{
		GetProfileFunc: func(ctx context.Context, id int64) (*models.Profile, error) {
			assert.Equal(t, int64(42), id)
			return &models.Profile{ID: 42, Email: "ada@example.com", FullName: "Ada Lovelace", Status: "active"}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)

	w := serveAs(handler, httptest.NewRequest("GET", "/v1/me", nil), 42)

	var resp map[string]any
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "42", resp["id"])
	assert.Equal(t, "Ada Lovelace", resp["full_name"])
}

func TestMe_AccountGone(t *testing.T) {
	handler := handlers.NewUserHandler(&handlers.MockUserService{}, nil)

	w := serveAs(handler, httptest.NewRequest("GET", "/v1/me", nil), 42)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMe_Unauthenticated(t *testing.T) {
	handler := handlers.NewUserHandler(&handlers.MockUserService{}, nil)

	w := serveAs(handler, httptest.NewRequest("GET", "/v1/me", nil), 0)

	handlers.AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
}

func TestUpdateMe_Success(t *testing.T) {
	var got services.UpdateProfileInput
	mockUsers := &handlers.MockUserService{
		UpdateProfileFunc: func(ctx context.Context, in services.UpdateProfileInput) (*services.ProfileResponse, error) {
			got = in
			return &services.ProfileResponse{
				Profile: models.Profile{ID: in.UserID, Email: *in.Email, Status: "pending"},
				Message: "Profile updated. Please verify your new email address before logging in again.",
			}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)
	req := handlers.NewTestRequest(t, "PATCH", "/v1/me", map[string]any{
		"email":         "new@example.com",
		"date_of_birth": "1990-05-17",
	})

	w := serveAs(handler, req, 42)

	var resp services.ProfileResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "pending", resp.Profile.Status)
	assert.Equal(t, int64(42), got.UserID)
	require.NotNil(t, got.DateOfBirth)
	assert.Equal(t, time.Date(1990, 5, 17, 0, 0, 0, 0, time.UTC), *got.DateOfBirth)
	assert.Nil(t, got.FullName, "omitted fields stay nil")
}

func TestUpdateMe_InvalidEmail(t *testing.T) {
	handler := handlers.NewUserHandler(&handlers.MockUserService{}, nil)
	req := handlers.NewTestRequest(t, "PATCH", "/v1/me", map[string]any{"email": "nope"})

	w := serveAs(handler, req, 42)

	resp := handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
	assert.Equal(t, "field=email", resp.Details)
}

func TestListUsers_QueryParams(t *testing.T) {
	var got services.ListUsersInput
	mockUsers := &handlers.MockUserService{
		ListUsersFunc: func(ctx context.Context, in services.ListUsersInput) (*services.ListUsersResponse, error) {
			got = in
			return &services.ListUsersResponse{
				Users: []models.Profile{{ID: 7, Email: "ada@example.com"}},
				Total: 31, Limit: in.Limit, Offset: in.Offset,
			}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)

	w := serveAs(handler, httptest.NewRequest("GET", "/v1/users?limit=5&offset=10&status=inactive", nil), 1)

	var resp services.ListUsersResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, services.ListUsersInput{Status: models.StatusInactive, Limit: 5, Offset: 10}, got)
	assert.Equal(t, int64(31), resp.Total)
	require.Len(t, resp.Users, 1)
}

func TestListUsers_Defaults(t *testing.T) {
	var got services.ListUsersInput
	mockUsers := &handlers.MockUserService{
		ListUsersFunc: func(ctx context.Context, in services.ListUsersInput) (*services.ListUsersResponse, error) {
			got = in
			return &services.ListUsersResponse{Users: []models.Profile{}}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)

	w := serveAs(handler, httptest.NewRequest("GET", "/v1/users", nil), 1)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, services.ListUsersInput{Limit: services.DefaultListLimit}, got)
}

func TestListUsers_BadParams(t *testing.T) {
	handler := handlers.NewUserHandler(&handlers.MockUserService{}, nil)

	for _, query := range []string{"limit=0", "limit=101", "limit=ten", "offset=-1", "offset=10001"} {
		t.Run(query, func(t *testing.T) {
			w := serveAs(handler, httptest.NewRequest("GET", "/v1/users?"+query, nil), 1)
			handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
		})
	}
}

func TestCreateUser_Success(t *testing.T) {
	var got services.CreateUserInput
	mockUsers := &handlers.MockUserService{
		CreateUserFunc: func(ctx context.Context, in services.CreateUserInput) (*services.ProfileResponse, error) {
			got = in
			return &services.ProfileResponse{Profile: models.Profile{ID: 99, Email: in.Email, Role: in.Role}}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/users", map[string]any{
		"email":          "ops@example.com",
		"password":       "Secret#123",
		"full_name":      "Ops Admin",
		"role":           "admin",
		"email_verified": true,
	})

	w := serveAs(handler, req, 1)

	var resp services.ProfileResponse
	handlers.AssertJSONResponse(t, w, http.StatusCreated, &resp)
	assert.Equal(t, int64(99), resp.Profile.ID)
	assert.Equal(t, int64(1), got.ActorID)
	assert.Equal(t, "admin", got.Role)
	assert.True(t, got.Verified)
}

func TestCreateUser_UnknownRole(t *testing.T) {
	handler := handlers.NewUserHandler(&handlers.MockUserService{}, nil)
	req := handlers.NewTestRequest(t, "POST", "/v1/users", map[string]any{
		"email":     "ops@example.com",
		"password":  "Secret#123",
		"full_name": "Ops Admin",
		"role":      "root",
	})

	w := serveAs(handler, req, 1)

	resp := handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "validation_failed")
	assert.Equal(t, "field=role", resp.Details)
}

func TestGetUser(t *testing.T) {
	mockUsers := &handlers.MockUserService{
		GetProfileFunc: func(ctx context.Context, id int64) (*models.Profile, error) {
			return &models.Profile{ID: id}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)

	w := serveAs(handler, httptest.NewRequest("GET", "/v1/users/7205759403792793600", nil), 1)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"7205759403792793600"`)

	w = serveAs(handler, httptest.NewRequest("GET", "/v1/users/abc", nil), 1)
	handlers.AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestUpdateUser_TargetsPathID(t *testing.T) {
	var got services.UpdateProfileInput
	mockUsers := &handlers.MockUserService{
		UpdateProfileFunc: func(ctx context.Context, in services.UpdateProfileInput) (*services.ProfileResponse, error) {
			got = in
			return &services.ProfileResponse{Profile: models.Profile{ID: in.UserID}}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)
	req := handlers.NewTestRequest(t, "PATCH", "/v1/users/7", map[string]any{"full_name": "Ada King"})

	w := serveAs(handler, req, 1)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), got.UserID)
	require.NotNil(t, got.FullName)
	assert.Equal(t, "Ada King", *got.FullName)
}

func TestDeactivateUser(t *testing.T) {
	var actor, target int64
	mockUsers := &handlers.MockUserService{
		DeactivateFunc: func(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.MessageResponse, error) {
			actor, target = actorID, id
			return &services.MessageResponse{Message: "User deactivated successfully."}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)

	w := serveAs(handler, httptest.NewRequest("DELETE", "/v1/users/7", nil), 1)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1), actor)
	assert.Equal(t, int64(7), target)
}

func TestDeactivateUser_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"self", models.Violation(models.ErrValidationFailed, "Administrators cannot deactivate their own account"), http.StatusBadRequest, "validation_failed"},
		{"already inactive", models.Violation(models.ErrConflict, "Account is already deactivated"), http.StatusConflict, "conflict"},
		{"unknown", models.Violation(models.ErrNotFound, "Account not found"), http.StatusNotFound, "not_found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockUsers := &handlers.MockUserService{
				DeactivateFunc: func(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.MessageResponse, error) {
					return nil, tt.err
				},
			}
			handler := handlers.NewUserHandler(mockUsers, nil)

			w := serveAs(handler, httptest.NewRequest("DELETE", "/v1/users/7", nil), 1)

			handlers.AssertErrorResponse(t, w, tt.wantStatus, tt.wantCode)
		})
	}
}

func TestReactivateUser(t *testing.T) {
	mockUsers := &handlers.MockUserService{
		ReactivateFunc: func(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.ProfileResponse, error) {
			return &services.ProfileResponse{Profile: models.Profile{ID: id, Status: "active"}}, nil
		},
	}
	handler := handlers.NewUserHandler(mockUsers, nil)

	w := serveAs(handler, httptest.NewRequest("POST", "/v1/users/7/reactivate", nil), 1)

	var resp services.ProfileResponse
	handlers.AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, "active", resp.Profile.Status)
}
