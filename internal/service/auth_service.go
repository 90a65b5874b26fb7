package service

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/spec-kit/queue-booking-service/internal/auth"
	"github.com/spec-kit/queue-booking-service/internal/config"
	"github.com/spec-kit/queue-booking-service/internal/domain"
	"github.com/spec-kit/queue-booking-service/internal/repository"
	apperrors "github.com/spec-kit/queue-booking-service/pkg/util/errorutil"
)

// AuthService issues bearer tokens and resolves them back to identities.
type AuthService struct {
	users    repository.UserRepository
	tokenMgr *auth.TokenManager
	logger   *zap.Logger
}

// AuthDependencies encapsulates repo requirements for auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) *AuthService {
	return &AuthService{
		users:    deps.UserRepo,
		tokenMgr: auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.App.Name, cfg.Auth.AccessTokenTTLMinutes),
		logger:   loggerOrNop(deps.Logger),
	}
}

// Authenticate verifies credentials and issues an access token.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (*domain.User, domain.Token, error) {
	invalid := apperrors.NewUnauthorized("invalid email or password")

	user, err := s.users.GetByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.Token{}, invalid
		}
		return nil, domain.Token{}, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return nil, domain.Token{}, invalid
		}
		return nil, domain.Token{}, apperrors.NewInternalError(err)
	}

	token, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, domain.Token{}, apperrors.NewInternalError(err)
	}
	s.logger.Info("user authenticated", zap.String("user_id", user.ID))
	return user, token, nil
}

// Identify validates a bearer token and loads the caller. Tokens of deleted users are rejected and
// the role is read from storage, so a demotion applies before the token expires.
func (s *AuthService) Identify(ctx context.Context, token string) (*domain.Identity, error) {
	claims, err := s.tokenMgr.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewUnauthorized("invalid token")
	}

	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthorized("user not found")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.Identity{UserID: user.ID, Name: user.Name, Email: user.Email, Role: user.Role}, nil
}

// TokenManager exposes the underlying token manager.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}
