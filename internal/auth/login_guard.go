package auth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ptahnest/ptahnest/internal/models"
)

// Guard decision reasons.
const (
	ReasonLocked = "locked"
	ReasonDelay  = "delay"
)

// GuardConfig describes tunable behaviour for the LoginGuard.
type GuardConfig struct {
	// FreeAttempts is how many failures are tolerated before delays start.
	FreeAttempts int
	// BaseDelay is the wait required after the first throttled attempt; it
	// doubles with every further failure.
	BaseDelay time.Duration
	// LockThreshold is the failure count that triggers a temporary lock.
	LockThreshold int
	// LockDuration is how long a locked address stays blocked.
	LockDuration time.Duration
	Clock        func() time.Time
}

// Decision is the outcome of a guard check for a source address.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter int // seconds
	Message    string
}

// LoginGuard throttles login attempts per source address with exponential
// backoff and a temporary lockout. Counters are per address, never per
// account, so one origin cannot lock out somebody else's credentials.
type LoginGuard struct {
	db            *gorm.DB
	clock         func() time.Time
	freeAttempts  int
	baseDelay     time.Duration
	lockThreshold int
	lockDuration  time.Duration
}

// NewLoginGuard constructs a guard with sane defaults.
func NewLoginGuard(db *gorm.DB, cfg GuardConfig) (*LoginGuard, error) {
	if db == nil {
		return nil, errors.New("login guard: db is required")
	}

	free := cfg.FreeAttempts
	if free <= 0 {
		free = 4
	}

	base := cfg.BaseDelay
	if base <= 0 {
		base = 5 * time.Second
	}

	threshold := cfg.LockThreshold
	if threshold <= 0 {
		threshold = 10
	}

	duration := cfg.LockDuration
	if duration <= 0 {
		duration = 30 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LoginGuard{
		db:            db,
		clock:         clock,
		freeAttempts:  free,
		baseDelay:     base,
		lockThreshold: threshold,
		lockDuration:  duration,
	}, nil
}

// Check reports whether a login attempt from the address may proceed. Call
// it before any credential work so throttled attempts stay cheap.
func (g *LoginGuard) Check(ctx context.Context, ip string) (Decision, error) {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return Decision{Allowed: true}, nil
	}

	var record models.LoginAttempt
	err := g.db.WithContext(ctx).Take(&record, "ip = ?", ip).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{Allowed: true}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("login guard: query attempts: %w", err)
	}

	now := g.clock()

	if record.LockedUntil != nil {
		if record.LockedUntil.After(now) {
			remaining := int(math.Ceil(record.LockedUntil.Sub(now).Seconds()))
			return Decision{
				Allowed:    false,
				Reason:     ReasonLocked,
				RetryAfter: remaining,
				Message: fmt.Sprintf(
					"Too many failed attempts. Your IP is temporarily blocked. Try again in %d minutes %d seconds.",
					remaining/60, remaining%60),
			}, nil
		}

		// Lock elapsed; the record is spent.
		if err := g.Clear(ctx, ip); err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: true}, nil
	}

	if record.Attempts > g.freeAttempts && !record.LastAttempt.IsZero() {
		delay := g.requiredDelay(record.Attempts)
		elapsed := now.Sub(record.LastAttempt)
		if elapsed < delay {
			wait := int(math.Ceil((delay - elapsed).Seconds()))
			return Decision{
				Allowed:    false,
				Reason:     ReasonDelay,
				RetryAfter: wait,
				Message:    fmt.Sprintf("Too many attempts. Please wait %d seconds before trying again.", wait),
			}, nil
		}
	}

	return Decision{Allowed: true}, nil
}

// requiredDelay doubles per attempt beyond the free allowance: 5s, 10s,
// 20s, 40s, 80s and so on.
func (g *LoginGuard) requiredDelay(attempts int) time.Duration {
	exp := attempts - g.freeAttempts - 1
	if exp < 0 {
		return 0
	}
	return g.baseDelay << uint(exp)
}

// Record notes a failed attempt for the address. The increment happens in
// the database row itself so concurrent failures never under-count.
func (g *LoginGuard) Record(ctx context.Context, ip string) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil
	}

	now := g.clock()

	attempt := models.LoginAttempt{
		IP:          ip,
		Attempts:    1,
		LastAttempt: now,
	}

	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ip"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"attempts":     gorm.Expr("attempts + 1"),
			"last_attempt": now,
		}),
	}).Create(&attempt).Error
	if err != nil {
		return fmt.Errorf("login guard: record attempt: %w", err)
	}

	var record models.LoginAttempt
	if err := g.db.WithContext(ctx).Take(&record, "ip = ?", ip).Error; err != nil {
		return fmt.Errorf("login guard: reload attempts: %w", err)
	}

	if record.Attempts >= g.lockThreshold && record.LockedUntil == nil {
		lockedUntil := now.Add(g.lockDuration)
		err := g.db.WithContext(ctx).Model(&models.LoginAttempt{}).
			Where("ip = ? AND attempts >= ? AND locked_until IS NULL", ip, g.lockThreshold).
			Update("locked_until", lockedUntil).Error
		if err != nil {
			return fmt.Errorf("login guard: lock address: %w", err)
		}
	}

	return nil
}

// Clear forgets the address, typically after a successful login.
func (g *LoginGuard) Clear(ctx context.Context, ip string) error {
	ip = strings.TrimSpace(ip)
	if ip == "" {
		return nil
	}

	if err := g.db.WithContext(ctx).Delete(&models.LoginAttempt{}, "ip = ?", ip).Error; err != nil {
		return fmt.Errorf("login guard: clear attempts: %w", err)
	}
	return nil
}

// CleanupExpired removes records whose lock has elapsed. Run from the
// maintenance scheduler; Check also clears them lazily.
func (g *LoginGuard) CleanupExpired(ctx context.Context) (int64, error) {
	result := g.db.WithContext(ctx).
		Where("locked_until IS NOT NULL AND locked_until < ?", g.clock()).
		Delete(&models.LoginAttempt{})
	if result.Error != nil {
		return 0, fmt.Errorf("login guard: cleanup expired locks: %w", result.Error)
	}
	return result.RowsAffected, nil
}
