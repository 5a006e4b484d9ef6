package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/propagentic/maintenance-service/internal/auth"
	"github.com/propagentic/maintenance-service/internal/domain"
	"github.com/propagentic/maintenance-service/internal/repository"
	apperrors "github.com/propagentic/maintenance-service/pkg/util"
)

// registerableRoles lists the roles open to self-registration. Admins are
// provisioned out of band.
var registerableRoles = map[domain.UserRole]struct{}{
	domain.UserRoleTenant:     {},
	domain.UserRoleLandlord:   {},
	domain.UserRoleContractor: {},
}

// AccountService handles registration and login.
type AccountService struct {
	users      repository.UserRepository
	tokens     *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
}

// AccountDependencies bundles collaborators.
type AccountDependencies struct {
	UserRepo   repository.UserRepository
	Tokens     *auth.TokenManager
	BcryptCost int
	Logger     *zap.Logger
}

// NewAccountService creates the service.
func NewAccountService(deps AccountDependencies) *AccountService {
	return &AccountService{
		users:      deps.UserRepo,
		tokens:     deps.Tokens,
		bcryptCost: deps.BcryptCost,
		logger:     deps.Logger,
	}
}

// RegisterInput carries the registration request.
type RegisterInput struct {
	Name     string
	Email    string
	Phone    *string
	Password string
	Role     domain.UserRole
}

// AuthResult bundles the issued token with its user.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// Register creates an account and issues a token.
func (s *AccountService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	if input.Name == "" {
		return nil, apperrors.NewInvalidArgument("name required", nil)
	}
	if input.Email == "" || !strings.Contains(input.Email, "@") {
		return nil, apperrors.NewInvalidArgument("valid email required", nil)
	}
	if len(input.Password) < 8 {
		return nil, apperrors.NewInvalidArgument("password must be at least 8 characters", nil)
	}
	if _, ok := registerableRoles[input.Role]; !ok {
		return nil, apperrors.NewInvalidArgument("unsupported role", map[string]any{"role": input.Role})
	}

	if _, err := s.users.GetByEmail(ctx, input.Email); err == nil {
		return nil, apperrors.NewInvalidArgument("email already registered", nil)
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.MapError(err)
	}

	hashed, err := auth.HashPassword(input.Password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         input.Name,
		Email:        input.Email,
		Phone:        input.Phone,
		PasswordHash: hashed,
		Role:         input.Role,
		Preferences:  domain.ChannelPreferences{Email: true, SMS: false, Push: true},
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}

	return s.issue(user)
}

// Login verifies credentials and issues a token.
func (s *AccountService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewUnauthenticated("invalid credentials")
		}
		return nil, apperrors.MapError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthenticated("invalid credentials")
	}
	return s.issue(user)
}

func (s *AccountService) issue(user *domain.User) (*AuthResult, error) {
	token, expiresAt, err := s.tokens.GenerateToken(user.ID, user.Role)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}
