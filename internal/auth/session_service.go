package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ptahnest/ptahnest/internal/models"
	"github.com/ptahnest/ptahnest/pkg/crypto"
	"github.com/ptahnest/ptahnest/pkg/metrics"
)

// Session lifetimes. An ephemeral session cookie dies with the browser, but
// the server-side row still expires after DefaultSessionTTL.
const (
	DefaultSessionTTL  = 24 * time.Hour
	DefaultRememberTTL = 30 * 24 * time.Hour
	defaultTokenLength = 32
)

var (
	// ErrSessionNotFound indicates that no session matches the provided token.
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionExpired signals that the session row has reached its expiry.
	ErrSessionExpired = errors.New("session: expired")
)

// Fingerprint is the (source address, client signature) pair bound to a
// session when it is issued.
type Fingerprint struct {
	IPAddress string
	UserAgent string
}

// Matches reports whether both fingerprint components are unchanged.
func (f Fingerprint) Matches(other Fingerprint) bool {
	return f.IPAddress == other.IPAddress && f.UserAgent == other.UserAgent
}

// SessionConfig describes tunable behaviour for the SessionService.
type SessionConfig struct {
	SessionTTL  time.Duration
	RememberTTL time.Duration
	TokenLength int
	Clock       func() time.Time
}

// SessionService manages creation, rotation and destruction of sessions.
// Sessions only come into existence on successful login or registration, so
// issuing a session, rotating its identifier and stamping the fingerprint
// are a single insert; a request can never observe a rotated session
// without a fingerprint.
type SessionService struct {
	db          *gorm.DB
	sessionTTL  time.Duration
	rememberTTL time.Duration
	tokenLen    int
	now         func() time.Time
}

// NewSessionService constructs a session manager backed by the provided database.
func NewSessionService(db *gorm.DB, cfg SessionConfig) (*SessionService, error) {
	if db == nil {
		return nil, errors.New("session service: db is required")
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}

	remember := cfg.RememberTTL
	if remember <= 0 {
		remember = DefaultRememberTTL
	}

	length := cfg.TokenLength
	if length <= 0 {
		length = defaultTokenLength
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &SessionService{
		db:          db,
		sessionTTL:  ttl,
		rememberTTL: remember,
		tokenLen:    length,
		now:         clock,
	}, nil
}

// Issue creates a fresh session for the user, stamped with the request
// fingerprint. Any session the request presented is destroyed in the same
// transaction, which is what defeats fixation: the pre-auth token never
// becomes an authenticated one.
func (s *SessionService) Issue(ctx context.Context, userID string, fp Fingerprint, remember bool, previousToken string) (*models.Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("session service: user id is required")
	}

	token, err := crypto.GenerateToken(s.tokenLen)
	if err != nil {
		return nil, fmt.Errorf("session service: generate token: %w", err)
	}

	now := s.now()
	ttl := s.sessionTTL
	if remember {
		ttl = s.rememberTTL
	}

	session := &models.Session{
		Token:      token,
		UserID:     userID,
		IPAddress:  strings.TrimSpace(fp.IPAddress),
		UserAgent:  strings.TrimSpace(fp.UserAgent),
		Remember:   remember,
		ExpiresAt:  now.Add(ttl),
		LastUsedAt: now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if previousToken != "" {
			if err := tx.Delete(&models.Session{}, "token = ?", previousToken).Error; err != nil {
				return err
			}
		}
		return tx.Create(session).Error
	})
	if err != nil {
		return nil, fmt.Errorf("session service: issue session: %w", err)
	}

	metrics.ActiveSessions.Inc()
	return session, nil
}

// Resolve looks up a session by token, rejecting expired rows.
func (s *SessionService) Resolve(ctx context.Context, token string) (*models.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrSessionNotFound
	}

	var session models.Session
	err := s.db.WithContext(ctx).Take(&session, "token = ?", token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session service: find session: %w", err)
	}

	if session.ExpiresAt.Before(s.now()) {
		_ = s.Destroy(ctx, token)
		return nil, ErrSessionExpired
	}

	return &session, nil
}

// Touch records session activity.
func (s *SessionService) Touch(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Model(&models.Session{}).
		Where("token = ?", token).
		Update("last_used_at", s.now()).Error
}

// Destroy removes the session. Destroying an already-destroyed session is a no-op.
func (s *SessionService) Destroy(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}

	result := s.db.WithContext(ctx).Delete(&models.Session{}, "token = ?", token)
	if result.Error != nil {
		return fmt.Errorf("session service: destroy session: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}
	return nil
}

// CleanupExpired removes expired sessions and updates the session gauge.
func (s *SessionService) CleanupExpired(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("expires_at < ?", s.now()).
		Delete(&models.Session{})
	if result.Error != nil {
		return 0, fmt.Errorf("session service: cleanup expired sessions: %w", result.Error)
	}

	if result.RowsAffected > 0 {
		metrics.ActiveSessions.Sub(float64(result.RowsAffected))
	}
	return result.RowsAffected, nil
}
