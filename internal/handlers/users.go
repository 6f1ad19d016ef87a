package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
	"github.com/go-chi/chi/v5"
)

// UserServiceInterface defines profile and account administration operations
type UserServiceInterface interface {
	GetProfile(ctx context.Context, id int64) (*models.Profile, error)
	UpdateProfile(ctx context.Context, in services.UpdateProfileInput) (*services.ProfileResponse, error)
	CreateUser(ctx context.Context, in services.CreateUserInput) (*services.ProfileResponse, error)
	ListUsers(ctx context.Context, in services.ListUsersInput) (*services.ListUsersResponse, error)
	Deactivate(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.MessageResponse, error)
	Reactivate(ctx context.Context, actorID, id int64, client services.ClientInfo) (*services.ProfileResponse, error)
}

// UserHandler serves the caller's own profile and the admin user routes
type UserHandler struct {
	users    UserServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewUserHandler(users UserServiceInterface, ipConfig *pkghttp.IPConfig) *UserHandler {
	return &UserHandler{users: users, ipConfig: ipConfig}
}

// Request DTOs

type UpdateProfileRequest struct {
	FullName    *string `json:"full_name,omitempty"`
	Email       *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type CreateUserRequest struct {
	Email         string  `json:"email" validate:"required,email"`
	Password      string  `json:"password" validate:"required,max=128"`
	FullName      string  `json:"full_name" validate:"required"`
	Phone         *string `json:"phone,omitempty"`
	DateOfBirth   *string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Role          string  `json:"role,omitempty" validate:"omitempty,oneof=customer admin"`
	EmailVerified bool    `json:"email_verified"`
}

// callerID returns the account id of the bearer token, writing the 401 itself on failure.
func callerID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return 0, false
	}
	id, err := auth.SubjectID(claims)
	if err != nil {
		pkghttp.WriteUnauthorized(w, "Invalid token subject")
		return 0, false
	}
	return id, true
}

// pathUserID parses the {id} URL parameter, writing the 400 itself on failure.
func pathUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		pkghttp.WriteBadRequest(w, "Invalid user ID")
		return 0, false
	}
	return id, true
}

// parseIntParam reads an optional integer query parameter within [lo, hi].
func parseIntParam(r *http.Request, name string, fallback, lo, hi int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < lo || n > hi {
		return 0, false
	}
	return n, true
}

// Me handles GET /v1/me
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

// UpdateMe handles PATCH /v1/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	h.updateProfile(w, r, userID)
}

// GetUser handles GET /v1/users/{id}
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}

	profile, err := h.users.GetProfile(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, profile)
}

// UpdateUser handles PATCH /v1/users/{id}
func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}
	h.updateProfile(w, r, id)
}

func (h *UserHandler) updateProfile(w http.ResponseWriter, r *http.Request, userID int64) {
	var req UpdateProfileRequest
	if !decode(w, r, &req) {
		return
	}

	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := h.users.UpdateProfile(r.Context(), services.UpdateProfileInput{
		UserID:      userID,
		FullName:    req.FullName,
		Phone:       req.Phone,
		DateOfBirth: dob,
		Email:       req.Email,
		Client:      clientInfo(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ListUsers handles GET /v1/users?limit=&offset=&status=
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseIntParam(r, "limit", services.DefaultListLimit, 1, services.MaxListLimit)
	if !ok {
		pkghttp.WriteBadRequest(w, "Invalid limit parameter")
		return
	}
	offset, ok := parseIntParam(r, "offset", 0, 0, 10000)
	if !ok {
		pkghttp.WriteBadRequest(w, "Invalid offset parameter")
		return
	}

	resp, err := h.users.ListUsers(r.Context(), services.ListUsersInput{
		Status: models.AccountStatus(r.URL.Query().Get("status")),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// CreateUser handles POST /v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}

	var req CreateUserRequest
	if !decode(w, r, &req) {
		return
	}

	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := h.users.CreateUser(r.Context(), services.CreateUserInput{
		ActorID:     actorID,
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		Phone:       req.Phone,
		DateOfBirth: dob,
		Role:        req.Role,
		Verified:    req.EmailVerified,
		Client:      clientInfo(r, h.ipConfig),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// DeactivateUser handles DELETE /v1/users/{id}. Accounts are soft-deleted.
func (h *UserHandler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}

	resp, err := h.users.Deactivate(r.Context(), actorID, id, clientInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ReactivateUser handles POST /v1/users/{id}/reactivate
func (h *UserHandler) ReactivateUser(w http.ResponseWriter, r *http.Request) {
	actorID, ok := callerID(w, r)
	if !ok {
		return
	}
	id, ok := pathUserID(w, r)
	if !ok {
		return
	}

	resp, err := h.users.Reactivate(r.Context(), actorID, id, clientInfo(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}
