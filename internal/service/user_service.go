package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/auth"
	"github.com/spec-kit/queue-booking-service/internal/config"
	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/repository"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

const minPasswordLength = 6

// UserService manages staff accounts.
type UserService struct {
	users      repository.UserRepository
	bcryptCost int
	logger     *zap.Logger
}

// UserDependencies encapsulates repositories required for account management.
type UserDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// CreateUserInput describes a new account.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
}

// UpdateUserInput carries optional account changes.
type UpdateUserInput struct {
	Name     *string
	Email    *string
	Password *string
	Role     *domain.Role
}

// NewUserService constructs the service.
func NewUserService(cfg config.Config, deps UserDependencies) *UserService {
	return &UserService{
		users:      deps.UserRepo,
		bcryptCost: cfg.Auth.BcryptCost,
		logger:     loggerOrNop(deps.Logger),
	}
}

func requireAdmin(actor *domain.Identity) error {
	if actor == nil || !actor.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// CreateAdmin bootstraps the first administrator. It is refused once any admin exists.
func (s *UserService) CreateAdmin(ctx context.Context, input CreateUserInput) (*domain.User, error) {
	admins, err := s.users.CountAdmins(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if admins > 0 {
		return nil, adminExists()
	}
	input.Role = domain.RoleAdmin
	return s.create(ctx, input, s.users.CreateFirstAdmin)
}

func adminExists() error {
	return apperrors.NewForbidden("an admin account already exists")
}

// CreateUser adds a staff account.
func (s *UserService) CreateUser(ctx context.Context, actor *domain.Identity, input CreateUserInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.create(ctx, input, s.users.Create)
}

func (s *UserService) create(ctx context.Context, input CreateUserInput, insert func(context.Context, *domain.User) error) (*domain.User, error) {
	role, err := normalizeRole(input.Role)
	if err != nil {
		return nil, err
	}
	user := &domain.User{
		Name:  strings.TrimSpace(input.Name),
		Email: strings.TrimSpace(input.Email),
		Role:  role,
	}
	if err := validateAccount(user.Name, user.Email); err != nil {
		return nil, err
	}
	if err := validatePassword(input.Password); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash

	if err := insert(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, duplicateEmail(user.Email)
		case errors.Is(err, repository.ErrAdminExists):
			return nil, adminExists()
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.logger.Info("user created", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, nil
}

// ListUsers returns every account.
func (s *UserService) ListUsers(ctx context.Context, actor *domain.Identity) ([]domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// GetUser fetches one account.
func (s *UserService) GetUser(ctx context.Context, actor *domain.Identity, id string) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.getUser(ctx, id)
}

// UpdateUser applies the provided changes.
func (s *UserService) UpdateUser(ctx context.Context, actor *domain.Identity, id string, input UpdateUserInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	user, err := s.getUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		user.Name = strings.TrimSpace(*input.Name)
	}
	if input.Email != nil {
		user.Email = strings.TrimSpace(*input.Email)
	}
	if input.Role != nil {
		role, err := normalizeRole(*input.Role)
		if err != nil {
			return nil, err
		}
		user.Role = role
	}
	if err := validateAccount(user.Name, user.Email); err != nil {
		return nil, err
	}
	if input.Password != nil {
		if err := validatePassword(*input.Password); err != nil {
			return nil, err
		}
		hash, err := auth.HashPassword(*input.Password, s.bcryptCost)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		user.PasswordHash = hash
	}

	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return nil, duplicateEmail(user.Email)
		case errors.Is(err, pgx.ErrNoRows):
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// DeleteUser removes an account. Bookings it handled keep their history without the staff link.
func (s *UserService) DeleteUser(ctx context.Context, actor *domain.Identity, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return apperrors.NewInternalError(err)
	}
	s.logger.Info("user deleted", zap.String("user_id", id), zap.String("actor_id", actor.UserID))
	return nil
}

func (s *UserService) getUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFound("user", map[string]any{"id": id})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

func normalizeRole(role domain.Role) (domain.Role, error) {
	switch {
	case strings.TrimSpace(string(role)) == "":
		return domain.RoleUser, nil
	case role.IsAdmin():
		return domain.RoleAdmin, nil
	case strings.EqualFold(string(role), string(domain.RoleUser)):
		return domain.RoleUser, nil
	}
	return "", apperrors.NewValidationError("unknown role", map[string]any{"role": role})
}

func validateAccount(name, email string) error {
	details := map[string]any{}
	if name == "" {
		details["name"] = "required"
	}
	if _, err := mail.ParseAddress(email); err != nil {
		details["email"] = "must be a valid email address"
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("invalid user", details)
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.NewValidationError("password too short", map[string]any{"min_length": minPasswordLength})
	}
	return nil
}

func duplicateEmail(email string) error {
	return apperrors.NewDuplicate("email already registered", map[string]any{"email": email})
}
