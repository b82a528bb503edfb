package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ptahnest/ptahnest/internal/models"
	"github.com/ptahnest/ptahnest/internal/services"
	"github.com/ptahnest/ptahnest/pkg/crypto"
	appErrors "github.com/ptahnest/ptahnest/pkg/errors"
	"github.com/ptahnest/ptahnest/pkg/logger"
	"github.com/ptahnest/ptahnest/pkg/metrics"
)

// AuthService orchestrates the credential store, the brute-force guard and
// the session service for register, login and logout flows.
type AuthService struct {
	users    *services.UserService
	guard    *LoginGuard
	sessions *SessionService
	// compare is the slow hash comparison, injectable for tests that assert
	// it runs exactly once on every login path.
	compare func(hashedPassword, password string) bool
	log     *zap.Logger
}

// NewAuthService wires the authentication flow dependencies together.
func NewAuthService(users *services.UserService, guard *LoginGuard, sessions *SessionService) (*AuthService, error) {
	if users == nil {
		return nil, errors.New("auth service: user service is required")
	}
	if guard == nil {
		return nil, errors.New("auth service: login guard is required")
	}
	if sessions == nil {
		return nil, errors.New("auth service: session service is required")
	}

	return &AuthService{
		users:    users,
		guard:    guard,
		sessions: sessions,
		compare:  crypto.VerifyPassword,
		log:      logger.WithModule("auth"),
	}, nil
}

// RegisterInput captures the details required to register a new account.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput captures a login attempt.
type LoginInput struct {
	Identifier string
	Password   string
	Remember   bool
}

// Register creates the account and signs it in: the session is issued with
// the request fingerprint in the same step that rotates the session id.
func (s *AuthService) Register(ctx context.Context, input RegisterInput, fp Fingerprint, previousToken string) (*models.User, *models.Session, error) {
	username := strings.TrimSpace(input.Username)
	email := strings.TrimSpace(input.Email)
	if username == "" || email == "" || input.Password == "" {
		return nil, nil, appErrors.NewBadRequest("All fields are required")
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, "Internal server error")
	}

	user, err := s.users.Create(ctx, services.CreateUserInput{
		Username:     username,
		Email:        email,
		PasswordHash: hashed,
	})
	if errors.Is(err, services.ErrUserExists) {
		return nil, nil, appErrors.ErrConflict.WithMessage("Email or username already exists")
	}
	if err != nil {
		return nil, nil, appErrors.Wrap(err, "Internal server error")
	}

	session, err := s.sessions.Issue(ctx, user.ID, fp, false, previousToken)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, "Internal server error")
	}

	s.log.Info("user registered",
		zap.String("user_id", user.ID),
		zap.String("ip", fp.IPAddress),
	)

	return user, session, nil
}

// Login verifies credentials behind the brute-force guard. The hash
// comparison runs exactly once whether or not the identifier resolves, so
// response timing does not leak account existence.
func (s *AuthService) Login(ctx context.Context, input LoginInput, fp Fingerprint, previousToken string) (*models.User, *models.Session, error) {
	identifier := strings.TrimSpace(input.Identifier)
	if identifier == "" || input.Password == "" {
		return nil, nil, appErrors.NewBadRequest("Email/username and password are required")
	}

	decision, err := s.guard.Check(ctx, fp.IPAddress)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, "Internal server error")
	}
	if !decision.Allowed {
		metrics.AuthAttempts.WithLabelValues("throttled").Inc()
		metrics.LoginThrottle.WithLabelValues(decision.Reason).Inc()
		return nil, nil, appErrors.ErrRateLimit.WithMessage(decision.Message)
	}

	user, err := s.users.FindByIdentifier(ctx, identifier)
	if err != nil && !errors.Is(err, services.ErrUserNotFound) {
		return nil, nil, appErrors.Wrap(err, "Internal server error")
	}

	hashToCompare := crypto.DummyHash
	if user != nil {
		hashToCompare = user.Password
	}
	validPassword := s.compare(hashToCompare, input.Password)

	if user == nil || !validPassword {
		if err := s.guard.Record(ctx, fp.IPAddress); err != nil {
			return nil, nil, appErrors.Wrap(err, "Internal server error")
		}
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, nil, appErrors.ErrInvalidCredentials.WithMessage("Invalid credentials")
	}

	if err := s.guard.Clear(ctx, fp.IPAddress); err != nil {
		return nil, nil, appErrors.Wrap(err, "Internal server error")
	}

	session, err := s.sessions.Issue(ctx, user.ID, fp, input.Remember, previousToken)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, "Internal server error")
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	return user, session, nil
}

// Logout destroys the presented session. Destroying an absent session is
// fine; the operation is idempotent.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return appErrors.Wrap(err, "Logout failed")
	}
	return nil
}

// Me returns the public view of the authenticated principal.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, services.ErrUserNotFound) {
		return nil, appErrors.ErrUnauthorized.WithMessage("User not found")
	}
	if err != nil {
		return nil, appErrors.Wrap(err, "Internal server error")
	}
	return user, nil
}

// Guard exposes the login guard, primarily for maintenance wiring.
func (s *AuthService) Guard() *LoginGuard { return s.guard }

// Sessions exposes the session service for middleware wiring.
func (s *AuthService) Sessions() *SessionService { return s.sessions }
