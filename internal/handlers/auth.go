package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/BradenHooton/gatekeeper/internal/auth"
	"github.com/BradenHooton/gatekeeper/internal/models"
	"github.com/BradenHooton/gatekeeper/internal/services"
	pkghttp "github.com/BradenHooton/gatekeeper/pkg/http"
)

// AccountServiceInterface defines the registration and verification operations
type AccountServiceInterface interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResponse, error)
	VerifyEmail(ctx context.Context, token string, client services.ClientInfo) (*services.MessageResponse, error)
	ResendVerification(ctx context.Context, email string, client services.ClientInfo) (*services.MessageResponse, error)
}

// AuthServiceInterface defines the session operations
type AuthServiceInterface interface {
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResponse, error)
	Logout(ctx context.Context, claims *models.TokenClaims, client services.ClientInfo) error
}

// AuthHandler handles registration, verification and login requests
type AuthHandler struct {
	accounts AccountServiceInterface
	auth     AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

func NewAuthHandler(accounts AccountServiceInterface, authService AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		accounts: accounts,
		auth:     authService,
		ipConfig: ipConfig,
	}
}

// Request DTOs

type RegisterRequest struct {
	Email       string  `json:"email" validate:"required,email"`
	Password    string  `json:"password" validate:"required,max=128"`
	FullName    string  `json:"full_name" validate:"required"`
	Phone       *string `json:"phone,omitempty"`
	DateOfBirth *string `json:"date_of_birth,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type LoginRequest struct {
	Email      string `json:"email" validate:"required,email"`
	Password   string `json:"password" validate:"required,max=128"`
	DeviceInfo string `json:"device_info,omitempty" validate:"max=255"`
}

type VerifyEmailRequest struct {
	Token string `json:"token" validate:"required"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// decode reads and validates a request body, writing the 400 itself on failure.
func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := pkghttp.DecodeJSON(w, r, dst); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return false
	}
	if err := ValidateRequest(dst); err != nil {
		writeServiceError(w, err)
		return false
	}
	return true
}

// parseDateOfBirth reads an optional YYYY-MM-DD date.
func parseDateOfBirth(value *string) (*time.Time, error) {
	if value == nil {
		return nil, nil
	}
	parsed, err := time.Parse(time.DateOnly, *value)
	if err != nil {
		return nil, models.FieldViolation(models.ErrValidationFailed, "date_of_birth", "Invalid date of birth")
	}
	return &parsed, nil
}

func clientInfo(r *http.Request, ipConfig *pkghttp.IPConfig) services.ClientInfo {
	return services.ClientInfo{
		IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

func (h *AuthHandler) clientInfo(r *http.Request) services.ClientInfo {
	return clientInfo(r, h.ipConfig)
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}

	dob, err := parseDateOfBirth(req.DateOfBirth)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp, err := h.accounts.Register(r.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		FullName:    req.FullName,
		Phone:       req.Phone,
		DateOfBirth: dob,
		Client:      h.clientInfo(r),
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, resp)
}

// VerifyEmail handles POST /v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req VerifyEmailRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.accounts.VerifyEmail(r.Context(), req.Token, h.clientInfo(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// ResendVerification handles POST /v1/auth/resend-verification
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req ResendVerificationRequest
	if !decode(w, r, &req) {
		return
	}

	resp, err := h.accounts.ResendVerification(r.Context(), req.Email, h.clientInfo(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Login handles POST /v1/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req) {
		return
	}

	client := h.clientInfo(r)
	deviceInfo := req.DeviceInfo
	if deviceInfo == "" {
		deviceInfo = client.UserAgent
	}

	resp, err := h.auth.Login(r.Context(), services.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: deviceInfo,
		Client:     client,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Logout handles POST /v1/logout. It ends the session of the presented access token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.auth.Logout(r.Context(), claims, h.clientInfo(r)); err != nil {
		writeServiceError(w, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, services.MessageResponse{Message: "Logged out successfully"})
}
