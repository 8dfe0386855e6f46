package auth

import (
	"context"
	"errors"
	"fmt"

	"chat-backend/internal/models"
	"chat-backend/internal/repositories"
)

var (
	ErrInvalidCredentials = errors.New("incorrect email or password")
	ErrUnauthorized       = errors.New("not authenticated")
)

// RegisterInput is the data needed to open an account.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName *string
	LastName  *string
}

// Service registers users, issues tokens and resolves the current user from a token.
type Service struct {
	users  repositories.UserRepository
	hasher *PasswordHasher
	tokens *JWTManager
}

// NewService constructs an auth Service.
func NewService(users repositories.UserRepository, hasher *PasswordHasher, tokens *JWTManager) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens}
}

// Register creates an account. Duplicate usernames or emails surface as *repositories.DuplicateError.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return models.User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.users.Create(ctx, models.NewUser{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
	})
}

// Login checks credentials and returns a signed access token.
func (s *Service) Login(ctx context.Context, email, password string) (string, models.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return "", models.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", models.User{}, err
	}
	if !user.IsActive || !s.hasher.Verify(password, user.PasswordHash) {
		return "", models.User{}, ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID, user.Username)
	if err != nil {
		return "", models.User{}, fmt.Errorf("sign token: %w", err)
	}
	return token, user, nil
}

// ValidateToken verifies the token and returns the id of an active user.
func (s *Service) ValidateToken(ctx context.Context, token string) (int, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return 0, err
	}
	user, err := s.users.GetByID(ctx, claims.UserID)
	if errors.Is(err, repositories.ErrUserNotFound) {
		return 0, ErrUnauthorized
	}
	if err != nil {
		return 0, err
	}
	if !user.IsActive {
		return 0, ErrUnauthorized
	}
	return user.ID, nil
}

// HashPassword exposes the configured hasher for password changes.
func (s *Service) HashPassword(password string) (string, error) {
	return s.hasher.Hash(password)
}

// SeedTestUser creates the development account testuser/testpassword when missing.
func (s *Service) SeedTestUser(ctx context.Context) (models.User, error) {
	if user, err := s.users.GetByUsername(ctx, "testuser"); err == nil {
		return user, nil
	}
	first, last := "Test", "User"
	return s.Register(ctx, RegisterInput{
		Username:  "testuser",
		Email:     "test@example.com",
		Password:  "testpassword",
		FirstName: &first,
		LastName:  &last,
	})
}
