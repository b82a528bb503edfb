package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/ptahnest/ptahnest/internal/models"
)

var (
	// ErrUserNotFound indicates no account matches the identifier.
	ErrUserNotFound = errors.New("user service: user not found")
	// ErrUserExists signals an email or username collision at registration.
	ErrUserExists = errors.New("user service: email or username already exists")
)

// UserService is the credential store: it persists accounts and resolves
// identifiers case-insensitively.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a user service once a database handle is supplied.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// CreateUserInput captures the fields persisted at registration. Password
// must already be hashed.
type CreateUserInput struct {
	Username     string
	Email        string
	PasswordHash string
}

// Create persists a new account. The unique indexes on email and the
// lower-cased username are the gate against duplicate registrations; a
// constraint violation surfaces as ErrUserExists.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if username == "" || email == "" || input.PasswordHash == "" {
		return nil, errors.New("user service: username, email and password are required")
	}

	user := &models.User{
		Username:      username,
		UsernameLower: strings.ToLower(username),
		Email:         email,
		Password:      input.PasswordHash,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	return user, nil
}

// FindByIdentifier resolves an account by email or case-insensitive username.
func (s *UserService) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? OR username_lower = ?", identifier, identifier).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: query user: %w", err)
	}

	return &user, nil
}

// FindByID fetches an account by its identifier.
func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: query user: %w", err)
	}

	return &user, nil
}
