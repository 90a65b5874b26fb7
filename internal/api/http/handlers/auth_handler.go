package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/queue-booking-service/internal/api/dto"
	"github.com/spec-kit/queue-booking-service/internal/service"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// AuthHandler exposes login, the caller's identity and the admin bootstrap.
type AuthHandler struct {
	auth  *service.AuthService
	users *service.UserService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, userService *service.UserService) *AuthHandler {
	return &AuthHandler{auth: authService, users: userService}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	user, token, err := h.auth.Authenticate(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return data(c, dto.AuthResponse{
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
		User:      dto.NewUserResponse(user),
	})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	identity, err := callerFrom(c)
	if err != nil {
		return err
	}
	return data(c, dto.NewIdentityResponse(identity))
}

// CreateAdmin handles POST /api/setup/create-admin.
func (h *AuthHandler) CreateAdmin(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.users.CreateAdmin(c.UserContext(), service.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return err
	}
	return created(c, dto.NewUserResponse(user))
}
